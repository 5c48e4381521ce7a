package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/huddlekit/huddle-server/internal/v1/types"
)

func fakeJWT(t *testing.T, payload map[string]interface{}) string {
	t.Helper()
	payloadBytes, err := json.Marshal(payload)
	assert.NoError(t, err)
	encoded := base64.RawURLEncoding.EncodeToString(payloadBytes)
	return "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9." + encoded + ".fake-signature"
}

func TestMockValidator_ValidateToken_WithValidJWT(t *testing.T) {
	mock := &MockValidator{}

	// Create a valid JWT structure (header.payload.signature)
	payload := map[string]interface{}{
		"sub":   "test-user-123",
		"name":  "Test User",
		"email": "test@example.com",
	}
	payloadBytes, _ := json.Marshal(payload)
	encodedPayload := base64.RawURLEncoding.EncodeToString(payloadBytes)

	// Create fake JWT
	token := "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9." + encodedPayload + ".fake-signature"

	claims, err := mock.ValidateToken(token)
	assert.NoError(t, err)
	assert.NotNil(t, claims)
	assert.Equal(t, "test-user-123", claims.Subject)
	assert.Equal(t, "Test User", claims.Name)
	assert.Equal(t, "test@example.com", claims.Email)
}

func TestMockValidator_ValidateToken_WithInvalidJWT(t *testing.T) {
	mock := &MockValidator{}

	// Invalid JWT (not 3 parts)
	claims, err := mock.ValidateToken("invalid-token")
	assert.NoError(t, err)
	assert.NotNil(t, claims)
	// Should use defaults
	assert.Equal(t, "dev-user-123", claims.Subject)
	assert.Equal(t, "Dev User", claims.Name)
	assert.Equal(t, "dev@example.com", claims.Email)
}

func TestMockValidator_ValidateToken_WithPartialClaims(t *testing.T) {
	mock := &MockValidator{}

	// JWT with only sub claim
	payload := map[string]interface{}{
		"sub": "partial-user",
	}
	payloadBytes, _ := json.Marshal(payload)
	encodedPayload := base64.RawURLEncoding.EncodeToString(payloadBytes)

	token := "header." + encodedPayload + ".signature"

	claims, err := mock.ValidateToken(token)
	assert.NoError(t, err)
	assert.NotNil(t, claims)
	assert.Equal(t, "partial-user", claims.Subject)
	assert.Equal(t, "Dev User", claims.Name)         // Default
	assert.Equal(t, "dev@example.com", claims.Email) // Default
}

func TestMockValidator_Verify_BuildsUserDescriptor(t *testing.T) {
	mock := &MockValidator{}

	token := fakeJWT(t, map[string]interface{}{
		"sub":     "auth0|abc",
		"name":    "Test User",
		"email":   "test@example.com",
		"picture": "https://cdn.example.com/p.png",
	})

	user, err := mock.Verify(context.Background(), token)
	assert.NoError(t, err)
	assert.Equal(t, types.UserID("auth0|abc"), user.ID)
	assert.Equal(t, "Test User", user.DisplayName)
	assert.Equal(t, "test@example.com", user.Email)
	assert.Equal(t, "https://cdn.example.com/p.png", user.AvatarURL)
}

func TestUserFromClaims_DisplayNameFallbacks(t *testing.T) {
	// Name claim missing: fall back to the email local part.
	claims := &CustomClaims{Email: "jane.doe@example.com"}
	claims.Subject = "auth0|xyz"
	user := userFromClaims(claims)
	assert.Equal(t, "jane.doe", user.DisplayName)

	// No name and no email: fall back to the subject.
	claims = &CustomClaims{}
	claims.Subject = "auth0|bare"
	user = userFromClaims(claims)
	assert.Equal(t, "auth0|bare", user.DisplayName)
}
