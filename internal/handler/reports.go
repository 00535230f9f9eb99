package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"classattend/internal/apperr"
	"classattend/internal/export"
	"classattend/internal/roster"
	"classattend/internal/summary"
)

// ---------- Summary ----------

func summaryQuery(c *gin.Context) (summary.Query, error) {
	q := summary.Query{ClassID: c.Param("id"), Viewer: identity(c), Date: c.Query("date")}
	switch mode := c.DefaultQuery("mode", string(summary.ModeSummary)); summary.Mode(mode) {
	case summary.ModeSummary:
		q.Mode = summary.ModeSummary
	case summary.ModeDaily:
		q.Mode = summary.ModeDaily
	default:
		return q, apperr.InvalidInput.WithMessage("mode must be summary or daily")
	}
	return q, nil
}

func (h *Handler) Summary(c *gin.Context) {
	q, err := summaryQuery(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	res, err := h.summaries.Compute(c.Request.Context(), q)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) SummaryChart(c *gin.Context) {
	q, err := summaryQuery(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	filter, err := summary.ParseFilter(c.Query("filter"))
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	res, err := h.summaries.Compute(c.Request.Context(), q)
	if err != nil {
		h.fail(c, err)
		return
	}
	bars := summary.BarChart(res, filter)
	if bars == nil {
		bars = []summary.Bar{}
	}
	c.JSON(http.StatusOK, gin.H{"mode": res.Mode, "filter": filter, "bars": bars})
}

// SummaryStream pushes a fresh aggregate as a server-sent event after every
// change to the class until the client goes away.
func (h *Handler) SummaryStream(c *gin.Context) {
	q, err := summaryQuery(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	ctx := c.Request.Context()
	if _, err := h.summaries.Compute(ctx, q); err != nil {
		h.fail(c, err)
		return
	}

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	sub := h.summaries.Subscribe(q.ClassID)
	err = h.summaries.Watch(ctx, q, sub, func(res summary.Result) error {
		c.SSEvent("summary", res)
		c.Writer.Flush()
		return ctx.Err()
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		d := apperr.From(err)
		if apperr.IsInternal(err) {
			h.log.Warn("summary stream stopped", zap.String("class", q.ClassID), zap.Error(err))
		}
		c.SSEvent("error", gin.H{"code": d.Code, "error": d.Message})
		c.Writer.Flush()
	}
}

// ---------- Export ----------

func (h *Handler) Export(c *gin.Context) {
	f, err := h.exporter.Export(c.Request.Context(), c.Param("id"), identity(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+f.Name+`"`)
	c.Data(http.StatusOK, export.ContentType, f.Content)
}

// ---------- Roster ----------

func (h *Handler) ImportRoster(c *gin.Context) {
	h.withUpload(c, func(ctx context.Context, name string, r io.Reader) (any, error) {
		return h.importer.Import(ctx, c.Param("id"), identity(c), name, r)
	})
}

func (h *Handler) PreviewRoster(c *gin.Context) {
	h.withUpload(c, func(ctx context.Context, name string, r io.Reader) (any, error) {
		return h.importer.Preview(ctx, c.Param("id"), identity(c), name, r)
	})
}

// withUpload hands the multipart "file" field to fn and writes its result.
func (h *Handler) withUpload(c *gin.Context, fn func(ctx context.Context, name string, r io.Reader) (any, error)) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, roster.MaxUploadSize+1<<20)
	fh, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "file field required")
		return
	}
	src, err := fh.Open()
	if err != nil {
		badRequest(c, "cannot read upload")
		return
	}
	defer src.Close()

	out, err := fn(c.Request.Context(), fh.Filename, src)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}
