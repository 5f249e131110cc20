package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type sendOTPRequest struct {
	Phone string `json:"phone" binding:"required"`
}

func (h *Handler) sendOTP(c *gin.Context) {
	var req sendOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "phone is required")
		return
	}
	if err := h.deps.Auth.SendOTP(c.Request.Context(), req.Phone); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "sent"})
}

type verifyOTPRequest struct {
	Phone       string `json:"phone" binding:"required"`
	Code        string `json:"code" binding:"required"`
	DisplayName string `json:"display_name"`
}

func (h *Handler) verifyOTP(c *gin.Context) {
	var req verifyOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "phone and code are required")
		return
	}

	userID, err := h.deps.Auth.VerifyOTP(c.Request.Context(), req.Phone, req.Code)
	if err != nil {
		h.fail(c, err)
		return
	}
	user, err := h.deps.Users.Register(c.Request.Context(), userID, req.Phone, req.DisplayName)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": userJSON(user)})
}

func (h *Handler) signOut(c *gin.Context) {
	if err := h.deps.Auth.SignOut(c.Request.Context()); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "signed out"})
}
