package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// uploadMedia stores an attachment and returns the URL to reference from a
// subsequent message send.
func (h *Handler) uploadMedia(c *gin.Context) {
	conversationID := c.PostForm("conversation_id")
	if conversationID == "" {
		badRequest(c, "conversation_id is required")
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "file is required")
		return
	}

	f, err := fh.Open()
	if err != nil {
		h.fail(c, err)
		return
	}
	defer func() { _ = f.Close() }()

	res, err := h.deps.Media.Upload(c.Request.Context(), conversationID, fh.Filename, f)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"url":          res.URL,
		"content_type": res.ContentType,
		"size":         res.Size,
	})
}
