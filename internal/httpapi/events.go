package httpapi

import (
	"io"

	"github.com/gin-gonic/gin"

	"github.com/caioluan/tabchat/internal/bus"
)

// events streams bus events to the client as server-sent events until the
// client disconnects. The buffer absorbs bursts; a stalled client misses
// events instead of stalling publishers.
func (h *Handler) events(c *gin.Context) {
	prefix := c.DefaultQuery("prefix", "")
	ch, cancel := h.deps.Bus.Subscribe(prefix, 64)
	defer cancel()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	clientGone := c.Request.Context().Done()
	c.Stream(func(_ io.Writer) bool {
		select {
		case evt, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(evt.Kind, eventJSON(evt))
			return true
		case <-clientGone:
			return false
		}
	})
}

func eventJSON(evt bus.Event) gin.H {
	return gin.H{
		"kind":      evt.Kind,
		"timestamp": evt.Timestamp,
		"payload":   evt.Payload,
	}
}
