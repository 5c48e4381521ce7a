package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/huddlekit/huddle-server/internal/v1/types"
)

// SessionAuthenticator resolves the user descriptor for an incoming
// connection. The chat engine requires a verified token; the video engine
// admits credential-less connections as anonymous guests.
type SessionAuthenticator struct {
	verifier       types.TokenVerifier
	allowAnonymous bool
}

// NewSessionAuthenticator wires a token verifier into an authenticator.
// allowAnonymous controls whether a missing credential yields a guest
// descriptor instead of AUTH_REQUIRED.
func NewSessionAuthenticator(verifier types.TokenVerifier, allowAnonymous bool) *SessionAuthenticator {
	return &SessionAuthenticator{verifier: verifier, allowAnonymous: allowAnonymous}
}

// AuthenticateHandshake resolves the user for a duplex upgrade request.
// The credential is read from the Authorization header, then the socket-style
// "auth.token" query field, then the plain "token" query parameter.
//
// A missing credential is AUTH_REQUIRED unless anonymous sessions are
// allowed, in which case a guest descriptor derived from the session id is
// returned. A present but unverifiable credential is always AUTH_FAILED;
// anonymous admission never masks a bad token.
func (a *SessionAuthenticator) AuthenticateHandshake(ctx context.Context, r *http.Request, sessionID types.SessionID) (*types.User, *types.Error) {
	token := extractHandshakeToken(r)
	if token == "" {
		if a.allowAnonymous {
			return AnonymousUser(sessionID), nil
		}
		return nil, types.NewError(types.CodeAuthRequired, "authentication token required")
	}

	user, err := a.verifier.Verify(ctx, token)
	if err != nil {
		return nil, types.NewError(types.CodeAuthFailed, "token verification failed")
	}
	return user, nil
}

// AuthenticateRequest resolves the user for a plain HTTP request from the
// Authorization header only.
func (a *SessionAuthenticator) AuthenticateRequest(ctx context.Context, r *http.Request) (*types.User, *types.Error) {
	token := bearerToken(r.Header.Get("Authorization"))
	if token == "" {
		return nil, types.NewError(types.CodeAuthRequired, "authorization header required")
	}

	user, err := a.verifier.Verify(ctx, token)
	if err != nil {
		return nil, types.NewError(types.CodeAuthFailed, "token verification failed")
	}
	return user, nil
}

// AnonymousUser synthesizes the guest descriptor for a credential-less video
// session: id "anonymous_<sessionId>", display name "Guest <first8>".
func AnonymousUser(sessionID types.SessionID) *types.User {
	short := string(sessionID)
	if len(short) > 8 {
		short = short[:8]
	}
	return &types.User{
		ID:          types.UserID(types.AnonymousPrefix + string(sessionID)),
		DisplayName: fmt.Sprintf("Guest %s", short),
	}
}

func extractHandshakeToken(r *http.Request) string {
	if token := bearerToken(r.Header.Get("Authorization")); token != "" {
		return token
	}
	// Socket-style handshake payloads surface as an "auth.token" query field.
	if token := r.URL.Query().Get("auth.token"); token != "" {
		return token
	}
	return r.URL.Query().Get("token")
}

// bearerToken strips a case-insensitive "Bearer " prefix. A header without
// the scheme is treated as absent, not as a token.
func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	const prefix = "bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}
