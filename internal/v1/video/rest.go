package video

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/huddlekit/huddle-server/internal/v1/ratelimit"
	"github.com/huddlekit/huddle-server/internal/v1/types"
)

// RegisterRoutes mounts the read-only conference API. Every response uses
// the {success, data|error} envelope; error carries the wire code.
func RegisterRoutes(r gin.IRouter, svc *Service, limiter *ratelimit.Limiter) {
	rooms := r.Group("/rooms")
	if limiter != nil {
		rooms.Use(limiter.PublicAPIMiddleware())
	}

	rooms.GET("/:roomId", func(c *gin.Context) {
		room, werr := svc.GetRoom(c.Request.Context(), types.RoomID(c.Param("roomId")))
		if werr != nil {
			restError(c, werr)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "data": room})
	})

	rooms.GET("/:roomId/participants", func(c *gin.Context) {
		roomID := types.RoomID(c.Param("roomId"))
		// Room existence first, so an unknown id is a 404 and not an
		// empty roster.
		if _, werr := svc.GetRoom(c.Request.Context(), roomID); werr != nil {
			restError(c, werr)
			return
		}
		participants, werr := svc.Participants(c.Request.Context(), roomID)
		if werr != nil {
			restError(c, werr)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "data": participants})
	})

	rooms.GET("/:roomId/participants/:userId/screen-sharing", func(c *gin.Context) {
		participant, werr := svc.TargetParticipant(c.Request.Context(),
			types.RoomID(c.Param("roomId")), types.UserID(c.Param("userId")))
		if werr != nil {
			restError(c, werr)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{
			"userId":        participant.UserID,
			"screenSharing": participant.ScreenSharing,
			"videoEnabled":  participant.VideoEnabled,
			"audioEnabled":  participant.AudioEnabled,
		}})
	})
}

func restError(c *gin.Context, werr *types.Error) {
	c.JSON(restStatus(werr.Code), gin.H{"success": false, "error": string(werr.Code)})
}

// restStatus maps wire codes onto HTTP statuses for the read-only API.
func restStatus(code types.Code) int {
	switch code {
	case types.CodeRoomNotFound, types.CodeTargetUserNotFound, types.CodeNotInRoom:
		return http.StatusNotFound
	case types.CodeStoreTimeout, types.CodeStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
