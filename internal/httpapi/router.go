// Package httpapi is the daemon's local HTTP surface: REST routes for the
// chat core plus a server-sent event stream fed by the bus.
package httpapi

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/caioluan/tabchat/internal/authn"
	"github.com/caioluan/tabchat/internal/bus"
	"github.com/caioluan/tabchat/internal/chat"
	"github.com/caioluan/tabchat/internal/media"
	"github.com/caioluan/tabchat/internal/topic"
)

// Deps are the collaborators the API surface exposes.
type Deps struct {
	Auth     authn.Provider
	Users    *chat.Users
	Registry *chat.Registry
	Tabs     *chat.Tabs
	Messages *chat.Sequencer
	Topics   *topic.Engine
	Media    media.Uploader
	Bus      *bus.Bus
	Logger   *zap.Logger
}

// Handler holds the route handlers.
type Handler struct {
	deps Deps
}

// NewRouter builds the gin engine with all routes registered.
func NewRouter(deps Deps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	h := &Handler{deps: deps}

	r.GET("/healthz", h.health)

	v1 := r.Group("/v1")
	{
		auth := v1.Group("/auth")
		{
			auth.POST("/otp/send", h.sendOTP)
			auth.POST("/otp/verify", h.verifyOTP)
		}

		signed := v1.Group("")
		signed.Use(h.requireSignIn)
		{
			signed.POST("/auth/signout", h.signOut)

			signed.GET("/me", h.me)
			signed.PUT("/me", h.updateProfile)
			signed.PUT("/me/presence", h.setPresence)
			signed.GET("/users/:id/presence", h.getPresence)

			signed.POST("/conversations", h.createConversation)
			signed.GET("/conversations", h.listConversations)
			signed.GET("/conversations/:id", h.getConversation)
			signed.POST("/conversations/:id/read", h.markConversationRead)
			signed.DELETE("/conversations/:id", h.deleteConversation)
			signed.GET("/conversations/:id/tabs", h.listTabs)
			signed.POST("/conversations/:id/tabs", h.createTab)
			signed.PUT("/conversations/:id/tabs/order", h.reorderTabs)

			signed.GET("/tabs/:id/messages", h.listMessages)
			signed.POST("/tabs/:id/messages", h.sendMessage)
			signed.POST("/tabs/:id/read", h.markTabRead)
			signed.PUT("/tabs/:id/name", h.renameTab)
			signed.POST("/tabs/:id/detect", h.detectTopic)
			signed.DELETE("/tabs/:id", h.deleteTab)

			signed.POST("/messages/:id/read", h.markMessageRead)
			signed.DELETE("/messages/:id", h.deleteMessage)

			signed.POST("/media", h.uploadMedia)
			signed.GET("/events", h.events)
		}
	}

	return r
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(200, gin.H{"status": "ok"})
}
