package export

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"classattend/internal/apperr"
	"classattend/internal/attendance"
	"classattend/internal/metrics"
)

// File is a rendered report ready for download.
type File struct {
	Name    string
	Content []byte
	Report  Report
}

// ContentType is the xlsx MIME type.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Exporter produces owner-only monthly reports.
type Exporter struct {
	classes *attendance.Service
	opts    Options
	log     *zap.Logger
	now     func() time.Time
}

func NewExporter(classes *attendance.Service, opts Options, log *zap.Logger) *Exporter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Exporter{classes: classes, opts: opts.withDefaults(), log: log, now: time.Now}
}

// Export builds the report for classID. Only the class creator may export.
func (x *Exporter) Export(ctx context.Context, classID string, who attendance.Identity) (File, error) {
	class, err := x.classes.OwnedClass(ctx, classID, who)
	if err != nil {
		return File{}, err
	}
	days, err := x.classes.Store().Days(ctx, classID)
	if err != nil {
		return File{}, fmt.Errorf("load days: %w", err)
	}
	events := days.All()
	if len(events) == 0 {
		return File{}, apperr.NoData
	}

	start := time.Now()
	rep := BuildMonthly(class.Name, events, x.opts)
	content, err := Bytes(rep)
	if err != nil {
		return File{}, err
	}
	metrics.ObserveExport(time.Since(start))
	x.log.Info("report exported",
		zap.String("class", classID), zap.Int("students", len(rep.Rows)), zap.Int("dates", len(rep.Dates)))
	return File{
		Name:    Filename(class.Name, x.now().In(x.opts.Location)),
		Content: content,
		Report:  rep,
	}, nil
}
