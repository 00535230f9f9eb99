package roster

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"classattend/internal/apperr"
	"classattend/internal/attendance"
	"classattend/internal/metrics"
)

// PreviewRows is how many data rows Preview returns.
const PreviewRows = 3

// Preview describes an upload without importing it.
type Preview struct {
	Headers   []string `json:"headers"`
	Rows      []Record `json:"preview"`
	TotalRows int      `json:"totalRows"`
	Sheets    []string `json:"sheets"`
}

// Importer loads roster files into a class.
type Importer struct {
	classes *attendance.Service
	log     *zap.Logger
}

func NewImporter(classes *attendance.Service, log *zap.Logger) *Importer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Importer{classes: classes, log: log}
}

// Import normalizes the upload and inserts each accepted row on its own.
// A failed insert is reported in Errors and the batch continues.
func (im *Importer) Import(ctx context.Context, classID string, who attendance.Identity, filename string, r io.Reader) (Result, error) {
	if _, err := im.classes.OwnedClass(ctx, classID, who); err != nil {
		return Result{}, err
	}
	table, err := read(filename, r)
	if err != nil {
		return Result{}, err
	}

	norm := Normalize(table.Rows)
	res := Result{Errors: norm.Errors}
	store := im.classes.Store()
	for _, e := range norm.Imported {
		e.ClassID = classID
		saved, err := store.AddRosterEntry(ctx, e)
		if err != nil {
			im.log.Warn("roster row insert failed", zap.String("class", classID), zap.String("student", e.StudentID), zap.Error(err))
			res.Errors = append(res.Errors, fmt.Sprintf("row %s: %v", e.StudentID, err))
			continue
		}
		res.Imported = append(res.Imported, saved)
	}
	metrics.RosterRows.WithLabelValues("imported").Add(float64(len(res.Imported)))
	metrics.RosterRows.WithLabelValues("rejected").Add(float64(len(res.Errors)))
	im.log.Info("roster imported",
		zap.String("class", classID), zap.Int("imported", len(res.Imported)), zap.Int("errors", len(res.Errors)))
	return res, nil
}

// Preview returns headers, the first rows and the row count of an upload.
func (im *Importer) Preview(ctx context.Context, classID string, who attendance.Identity, filename string, r io.Reader) (Preview, error) {
	if _, err := im.classes.OwnedClass(ctx, classID, who); err != nil {
		return Preview{}, err
	}
	table, err := read(filename, r)
	if err != nil {
		return Preview{}, err
	}
	n := len(table.Rows)
	if n > PreviewRows {
		n = PreviewRows
	}
	return Preview{Headers: table.Headers, Rows: table.Rows[:n], TotalRows: len(table.Rows), Sheets: table.Sheets}, nil
}

func read(filename string, r io.Reader) (Table, error) {
	t, err := Read(filename, r)
	switch {
	case err == nil:
		return t, nil
	case errors.Is(err, ErrEmpty):
		return Table{}, apperr.InvalidInput.WithMessage("file is empty")
	default:
		return Table{}, apperr.InvalidInput.WithMessage(err.Error())
	}
}
