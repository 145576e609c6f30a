package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Iam-samyog/EduCircle/internal/rooms"
)

type updateProfileRequest struct {
	DisplayName string `json:"displayName"`
}

type createRoomRequest struct {
	Name     string `json:"name"`
	IsPublic *bool  `json:"isPublic"`
}

type updateRoomRequest struct {
	Name     *string `json:"name"`
	IsPublic *bool   `json:"isPublic"`
}

type updateRoleRequest struct {
	Role string `json:"role"`
}

func (h *httpHandler) registerRoomRoutes(group *gin.RouterGroup) {
	group.GET("/me", h.handleGetMe)
	group.PATCH("/me", h.handleUpdateMe)

	group.GET("/rooms", h.handleListMyRooms)
	group.POST("/rooms", h.handleCreateRoom)
	group.GET("/public-rooms", h.handleListPublicRooms)
	group.GET("/rooms/:roomID", h.handleGetRoom)
	group.PATCH("/rooms/:roomID", h.handleUpdateRoom)
	group.DELETE("/rooms/:roomID", h.handleDeleteRoom)
	group.POST("/rooms/:roomID/join", h.handleJoinRoom)
	group.POST("/rooms/:roomID/leave", h.handleLeaveRoom)
	group.POST("/rooms/:roomID/join-requests", h.handleRequestJoin)
	group.POST("/rooms/:roomID/join-requests/:userID/approve", h.handleApproveJoin)
	group.POST("/rooms/:roomID/join-requests/:userID/reject", h.handleRejectJoin)
	group.PATCH("/rooms/:roomID/participants/:userID", h.handleUpdateRole)
	group.GET("/rooms/:roomID/overview", h.handleRoomOverview)
}

func (h *httpHandler) handleGetMe(c *gin.Context) {
	profile, err := h.users.GetProfile(c.Request.Context(), actorFrom(c).UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newProfilePayload(profile))
}

func (h *httpHandler) handleUpdateMe(c *gin.Context) {
	var request updateProfileRequest
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.DisplayName) == "" {
		h.respondBadRequest(c, "displayName is required")
		return
	}
	profile, err := h.users.UpdateDisplayName(c.Request.Context(), actorFrom(c).UserID, request.DisplayName)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newProfilePayload(profile))
}

func (h *httpHandler) handleListMyRooms(c *gin.Context) {
	views, err := h.rooms.ListForUser(c.Request.Context(), actorFrom(c).UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rooms": newRoomPayloads(views)})
}

func (h *httpHandler) handleListPublicRooms(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	views, err := h.rooms.ListPublic(c.Request.Context(), limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rooms": newRoomPayloads(views)})
}

func (h *httpHandler) handleCreateRoom(c *gin.Context) {
	var request createRoomRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondBadRequest(c, "invalid JSON body")
		return
	}
	isPublic := true
	if request.IsPublic != nil {
		isPublic = *request.IsPublic
	}
	view, err := h.rooms.CreateRoom(c.Request.Context(), actorFrom(c), request.Name, isPublic)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newRoomPayload(view))
}

func (h *httpHandler) handleGetRoom(c *gin.Context) {
	view, err := h.rooms.GetRoom(c.Request.Context(), actorFrom(c), c.Param("roomID"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newRoomPayload(view))
}

func (h *httpHandler) handleUpdateRoom(c *gin.Context) {
	var request updateRoomRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondBadRequest(c, "invalid JSON body")
		return
	}
	view, err := h.rooms.UpdateRoom(c.Request.Context(), actorFrom(c), c.Param("roomID"), rooms.RoomUpdate{
		Name:     request.Name,
		IsPublic: request.IsPublic,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newRoomPayload(view))
}

func (h *httpHandler) handleDeleteRoom(c *gin.Context) {
	if err := h.rooms.DeleteRoom(c.Request.Context(), actorFrom(c), c.Param("roomID")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleJoinRoom(c *gin.Context) {
	view, err := h.rooms.JoinRoom(c.Request.Context(), actorFrom(c), c.Param("roomID"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newRoomPayload(view))
}

func (h *httpHandler) handleLeaveRoom(c *gin.Context) {
	if err := h.rooms.LeaveRoom(c.Request.Context(), actorFrom(c), c.Param("roomID")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleRequestJoin(c *gin.Context) {
	view, err := h.rooms.RequestJoin(c.Request.Context(), actorFrom(c), c.Param("roomID"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, newRoomPayload(view))
}

func (h *httpHandler) handleApproveJoin(c *gin.Context) {
	view, err := h.rooms.ApproveJoinRequest(c.Request.Context(), actorFrom(c), c.Param("roomID"), c.Param("userID"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newRoomPayload(view))
}

func (h *httpHandler) handleRejectJoin(c *gin.Context) {
	view, err := h.rooms.RejectJoinRequest(c.Request.Context(), actorFrom(c), c.Param("roomID"), c.Param("userID"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newRoomPayload(view))
}

func (h *httpHandler) handleUpdateRole(c *gin.Context) {
	var request updateRoleRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondBadRequest(c, "invalid JSON body")
		return
	}
	role, err := rooms.ParseRole(request.Role)
	if err != nil {
		h.respondBadRequest(c, "role must be admin or member")
		return
	}
	view, err := h.rooms.UpdateParticipantRole(c.Request.Context(), actorFrom(c), c.Param("roomID"), c.Param("userID"), role)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newRoomPayload(view))
}
