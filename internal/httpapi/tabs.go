package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/caioluan/tabchat/internal/chat"
)

func tabJSON(t *chat.Tab) gin.H {
	return gin.H{
		"id":              t.ID,
		"conversation_id": t.ConversationID,
		"name":            t.Name,
		"order":           t.Order,
		"is_default":      t.IsDefault,
		"created_by":      t.CreatedBy,
	}
}

func (h *Handler) listTabs(c *gin.Context) {
	tabs, err := h.deps.Tabs.List(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]gin.H, len(tabs))
	for i, t := range tabs {
		out[i] = tabJSON(t)
	}
	c.JSON(http.StatusOK, gin.H{"tabs": out})
}

type createTabRequest struct {
	Name string `json:"name" binding:"required"`
}

func (h *Handler) createTab(c *gin.Context) {
	var req createTabRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "name is required")
		return
	}
	tab, err := h.deps.Tabs.Create(c.Request.Context(), c.Param("id"), currentUser(c), req.Name)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tab": tabJSON(tab)})
}

type reorderTabsRequest struct {
	TabIDs []string `json:"tab_ids" binding:"required"`
}

func (h *Handler) reorderTabs(c *gin.Context) {
	var req reorderTabsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "tab_ids is required")
		return
	}
	if err := h.deps.Tabs.Reorder(c.Request.Context(), c.Param("id"), req.TabIDs); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "reordered"})
}

type renameTabRequest struct {
	Name string `json:"name" binding:"required"`
}

func (h *Handler) renameTab(c *gin.Context) {
	var req renameTabRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "name is required")
		return
	}
	if err := h.deps.Tabs.Rename(c.Request.Context(), c.Param("id"), req.Name); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "renamed"})
}

// detectTopic forces a topic detection pass, clearing any cached verdict
// for the tab first.
func (h *Handler) detectTopic(c *gin.Context) {
	if err := h.deps.Topics.ManualDetect(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": string(h.deps.Topics.State(c.Param("id")))})
}

func (h *Handler) deleteTab(c *gin.Context) {
	if err := h.deps.Tabs.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}
