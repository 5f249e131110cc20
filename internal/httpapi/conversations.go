package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/caioluan/tabchat/internal/chat"
)

func conversationJSON(c *chat.Conversation) gin.H {
	return gin.H{
		"id":              c.ID,
		"participants":    c.Participants,
		"created_by":      c.CreatedBy,
		"last_message_id": c.LastMessageID,
		"last_activity":   c.LastActivity.Format(time.RFC3339),
		"unread":          c.Unread,
	}
}

type createConversationRequest struct {
	OtherUserID string `json:"other_user_id" binding:"required"`
}

// createConversation finds or creates the conversation with the other
// user. Repeat calls return the same conversation.
func (h *Handler) createConversation(c *gin.Context) {
	var req createConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "other_user_id is required")
		return
	}
	conv, err := h.deps.Registry.Create(c.Request.Context(), currentUser(c), req.OtherUserID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation": conversationJSON(conv)})
}

func (h *Handler) listConversations(c *gin.Context) {
	convs, err := h.deps.Registry.ListForUser(c.Request.Context(), currentUser(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]gin.H, len(convs))
	for i, conv := range convs {
		out[i] = conversationJSON(conv)
	}
	c.JSON(http.StatusOK, gin.H{"conversations": out})
}

func (h *Handler) getConversation(c *gin.Context) {
	conv, err := h.deps.Registry.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if conv.Slot(currentUser(c)) < 0 {
		h.fail(c, chat.ErrNotParticipant)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation": conversationJSON(conv)})
}

func (h *Handler) markConversationRead(c *gin.Context) {
	err := h.deps.Registry.MarkRead(c.Request.Context(), c.Param("id"), currentUser(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "read"})
}

func (h *Handler) deleteConversation(c *gin.Context) {
	ctx := c.Request.Context()
	conv, err := h.deps.Registry.Get(ctx, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if conv.Slot(currentUser(c)) < 0 {
		h.fail(c, chat.ErrNotParticipant)
		return
	}
	if err := h.deps.Registry.Delete(ctx, conv.ID); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}
