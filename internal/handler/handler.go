// Package handler exposes the attendance operations over HTTP.
package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"classattend/internal/apperr"
	"classattend/internal/attendance"
	"classattend/internal/auth"
	"classattend/internal/export"
	"classattend/internal/metrics"
	"classattend/internal/observability"
	"classattend/internal/roster"
	"classattend/internal/summary"
)

// Probe reports whether a dependency is reachable.
type Probe func(ctx context.Context) bool

// Options carries the HTTP-facing settings.
type Options struct {
	PublicBaseURL    string
	QRDisplaySeconds int
	DeviceSalt       string
	JWTSigningKey    string
	JWTIssuer        string
	Probes           map[string]Probe
}

type Handler struct {
	classes   *attendance.Service
	summaries *summary.Service
	exporter  *export.Exporter
	importer  *roster.Importer
	opts      Options
	log       *zap.Logger
}

func New(classes *attendance.Service, summaries *summary.Service, exporter *export.Exporter,
	importer *roster.Importer, opts Options, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.QRDisplaySeconds <= 0 {
		opts.QRDisplaySeconds = 60
	}
	return &Handler{classes: classes, summaries: summaries, exporter: exporter, importer: importer, opts: opts, log: log}
}

// Register mounts every route on r.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/healthz", h.Healthz)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	v1 := r.Group("/v1")
	v1.POST("/devices/check", h.CheckDevice)

	authed := v1.Group("", auth.AccountAuth(h.opts.JWTSigningKey, h.opts.JWTIssuer))
	{
		authed.GET("/me", h.Me)
		authed.PUT("/me/profile", h.UpdateProfile)

		authed.POST("/classes", h.CreateClass)
		authed.GET("/classes", h.ListClasses)
		authed.GET("/classes/:id", h.ClassDetail)
		authed.DELETE("/classes/:id", h.DeleteClass)
		authed.GET("/classes/:id/qr", h.QRCode)

		authed.POST("/checkins", h.CheckIn)

		authed.GET("/classes/:id/summary", h.Summary)
		authed.GET("/classes/:id/summary/chart", h.SummaryChart)
		authed.GET("/classes/:id/summary/stream", h.SummaryStream)
		authed.GET("/classes/:id/export", h.Export)
		authed.POST("/classes/:id/roster", h.ImportRoster)
		authed.POST("/classes/:id/roster/preview", h.PreviewRoster)
	}
}

// ---------- Health ----------

func (h *Handler) Healthz(c *gin.Context) {
	body := gin.H{"status": "ok"}
	status := http.StatusOK
	for name, probe := range h.opts.Probes {
		ok := probe(c.Request.Context())
		body[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}

// ---------- Helpers ----------

// identity returns the caller set by AccountAuth.
func identity(c *gin.Context) attendance.Identity {
	who, _ := auth.IdentityFrom(c)
	return who
}

// fail writes err as a coded rejection. Unexpected errors are logged and reported.
func (h *Handler) fail(c *gin.Context, err error) {
	d := apperr.From(err)
	if apperr.IsInternal(err) {
		h.log.Error("request failed",
			zap.String("method", c.Request.Method), zap.String("path", c.FullPath()), zap.Error(err))
		observability.CaptureWithTags(err, map[string]string{"route": c.FullPath(), "class": c.Param("id")})
	}
	c.JSON(d.Status, gin.H{"code": d.Code, "error": d.Message})
}

func badRequest(c *gin.Context, msg string) {
	d := apperr.InvalidInput.WithMessage(msg)
	c.JSON(d.Status, gin.H{"code": d.Code, "error": d.Message})
}
