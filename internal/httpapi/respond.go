package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/caioluan/tabchat/internal/authn"
	"github.com/caioluan/tabchat/internal/chat"
	"github.com/caioluan/tabchat/internal/docstore"
	"github.com/caioluan/tabchat/internal/media"
)

const userIDKey = "tabchat.user_id"

// requireSignIn rejects requests while no identity is signed in and stashes
// the user id on the context.
func (h *Handler) requireSignIn(c *gin.Context) {
	id := h.deps.Auth.CurrentUserID()
	if id == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not signed in"})
		return
	}
	c.Set(userIDKey, id)
	c.Next()
}

func currentUser(c *gin.Context) string {
	id, _ := c.Get(userIDKey)
	s, _ := id.(string)
	return s
}

// fail maps domain errors onto HTTP statuses.
func (h *Handler) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, docstore.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, chat.ErrUnauthenticated), errors.Is(err, authn.ErrCodeRejected):
		status = http.StatusUnauthorized
	case errors.Is(err, chat.ErrNotParticipant):
		status = http.StatusForbidden
	case errors.Is(err, chat.ErrDefaultTab), errors.Is(err, chat.ErrTabNotEmpty):
		status = http.StatusConflict
	case errors.Is(err, chat.ErrInvariant):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, media.ErrTooLarge):
		status = http.StatusRequestEntityTooLarge
	case errors.Is(err, docstore.ErrUnavailable), errors.Is(err, authn.ErrGatewayUnavailable):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		h.deps.Logger.Error("request failed",
			zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}
