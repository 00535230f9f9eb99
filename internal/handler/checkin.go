package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"classattend/internal/device"
)

// ---------- Check-in ----------

type checkInRequest struct {
	Payload string `json:"payload"`
}

// CheckIn admits the caller into the class encoded in the scanned payload.
func (h *Handler) CheckIn(c *gin.Context) {
	var req checkInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	deviceID := device.Identify(c.Request, h.opts.DeviceSalt)
	evt, err := h.classes.CheckIn(c.Request.Context(), req.Payload, identity(c), deviceID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, evt)
}

// CheckDevice tells the sign-in page whether email may use this device.
func (h *Handler) CheckDevice(c *gin.Context) {
	var req struct {
		Email string `json:"email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" {
		badRequest(c, "email is required")
		return
	}
	d, err := h.classes.CheckDevice(c.Request.Context(), device.Identify(c.Request, h.opts.DeviceSalt), req.Email)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"allowed": d.Allowed, "reason": d.Reason})
}
