package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/caioluan/tabchat/internal/chat"
)

func messageJSON(m *chat.Message) gin.H {
	out := gin.H{
		"id":          m.ID,
		"tab_id":      m.TabID,
		"sender_id":   m.SenderID,
		"type":        m.Type,
		"content":     m.Content,
		"media_url":   m.MediaURL,
		"media_type":  m.MediaType,
		"reply_to_id": m.ReplyToID,
		"sent_at":     m.SentAt.Format(time.RFC3339),
		"order":       m.Order,
		"is_deleted":  m.Deleted,
	}
	if m.DeliveredAt != nil {
		out["delivered_at"] = m.DeliveredAt.Format(time.RFC3339)
	}
	if m.ReadAt != nil {
		out["read_at"] = m.ReadAt.Format(time.RFC3339)
	}
	return out
}

func (h *Handler) listMessages(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	msgs, err := h.deps.Messages.List(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]gin.H, len(msgs))
	for i, m := range msgs {
		out[i] = messageJSON(m)
	}
	c.JSON(http.StatusOK, gin.H{"messages": out})
}

type sendMessageRequest struct {
	Type      string `json:"type"`
	Content   string `json:"content"`
	MediaURL  string `json:"media_url"`
	MediaType string `json:"media_type"`
	ReplyToID string `json:"reply_to_id"`
}

func (h *Handler) sendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid message body")
		return
	}
	msg, err := h.deps.Messages.Send(c.Request.Context(), chat.SendInput{
		TabID:     c.Param("id"),
		SenderID:  currentUser(c),
		Type:      chat.MessageType(req.Type),
		Content:   req.Content,
		MediaURL:  req.MediaURL,
		MediaType: req.MediaType,
		ReplyToID: req.ReplyToID,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": messageJSON(msg)})
}

func (h *Handler) markTabRead(c *gin.Context) {
	err := h.deps.Messages.MarkTabRead(c.Request.Context(), c.Param("id"), currentUser(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "read"})
}

func (h *Handler) markMessageRead(c *gin.Context) {
	if err := h.deps.Messages.MarkRead(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "read"})
}

func (h *Handler) deleteMessage(c *gin.Context) {
	err := h.deps.Messages.SoftDelete(c.Request.Context(), c.Param("id"), currentUser(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}
