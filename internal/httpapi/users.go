package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/caioluan/tabchat/internal/chat"
)

func userJSON(u *chat.User) gin.H {
	return gin.H{
		"id":           u.ID,
		"phone":        u.Phone,
		"display_name": u.DisplayName,
		"status":       u.Status,
		"last_seen":    u.LastSeen.Format(time.RFC3339),
	}
}

func (h *Handler) me(c *gin.Context) {
	user, err := h.deps.Users.Get(c.Request.Context(), currentUser(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": userJSON(user)})
}

type updateProfileRequest struct {
	DisplayName string `json:"display_name" binding:"required"`
}

func (h *Handler) updateProfile(c *gin.Context) {
	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "display_name is required")
		return
	}
	if err := h.deps.Users.UpdateProfile(c.Request.Context(), currentUser(c), req.DisplayName); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

type setPresenceRequest struct {
	Status string `json:"status" binding:"required"`
}

func (h *Handler) setPresence(c *gin.Context) {
	var req setPresenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "status is required")
		return
	}
	err := h.deps.Users.SetPresence(c.Request.Context(), currentUser(c), chat.PresenceStatus(req.Status))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

func (h *Handler) getPresence(c *gin.Context) {
	st, err := h.deps.Users.Presence(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    st.Status,
		"last_seen": st.LastSeen.Format(time.RFC3339),
	})
}
