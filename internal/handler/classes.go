package handler

import (
	"bytes"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/skip2/go-qrcode"

	"classattend/internal/attendance"
)

// ---------- Profile ----------

func (h *Handler) Me(c *gin.Context) {
	p, err := h.classes.Profile(c.Request.Context(), identity(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

type profileRequest struct {
	Name        string `json:"name"`
	StudentID   string `json:"studentId"`
	Institution string `json:"institution"`
}

func (h *Handler) UpdateProfile(c *gin.Context) {
	var req profileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	p, err := h.classes.UpdateProfile(c.Request.Context(), identity(c), req.Name, req.StudentID, req.Institution)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// ---------- Classes ----------

type classView struct {
	attendance.Class
	CheckedInCount int  `json:"checkedInCount"`
	Owner          bool `json:"owner"`
}

func view(cl attendance.Class, who attendance.Identity) classView {
	return classView{Class: cl, CheckedInCount: cl.CheckedInCount(), Owner: cl.OwnedBy(who)}
}

func (h *Handler) CreateClass(c *gin.Context) {
	var req struct {
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	who := identity(c)
	cl, err := h.classes.CreateClass(c.Request.Context(), req.Name, who)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, view(cl, who))
}

func (h *Handler) ListClasses(c *gin.Context) {
	scope := c.DefaultQuery("scope", "owned")
	if scope != "owned" && scope != "joined" {
		badRequest(c, "scope must be owned or joined")
		return
	}
	who := identity(c)
	list, err := h.classes.ListClasses(c.Request.Context(), who, scope == "joined")
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]classView, 0, len(list))
	for _, cl := range list {
		out = append(out, view(cl, who))
	}
	c.JSON(http.StatusOK, gin.H{"classes": out})
}

func (h *Handler) ClassDetail(c *gin.Context) {
	who := identity(c)
	cl, days, err := h.classes.ClassDetail(c.Request.Context(), c.Param("id"), who)
	if err != nil {
		h.fail(c, err)
		return
	}
	if days == nil {
		days = []attendance.DayList{}
	}
	c.JSON(http.StatusOK, gin.H{"class": view(cl, who), "days": days})
}

func (h *Handler) DeleteClass(c *gin.Context) {
	if err := h.classes.DeleteClass(c.Request.Context(), c.Param("id"), identity(c)); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// QRCode renders the class's check-in code. The payload never changes; the
// display window header only tells the client when to hide it.
func (h *Handler) QRCode(c *gin.Context) {
	cl, err := h.classes.OwnedClass(c.Request.Context(), c.Param("id"), identity(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	size := 320
	if v, err := strconv.Atoi(c.Query("size")); err == nil && v >= 128 && v <= 1024 {
		size = v
	}
	png, err := qrcode.Encode(attendance.CodeURL(h.opts.PublicBaseURL, cl.ID), qrcode.Medium, size)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Header("X-QR-Display-Seconds", strconv.Itoa(h.opts.QRDisplaySeconds))
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, int64(len(png)), "image/png", bytes.NewReader(png), nil)
}
