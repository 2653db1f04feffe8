package snapshot

import (
	"bytes"
	"context"
	"log/slog"
)

const ContentTypeCSV = "text/csv"

// ObjectStore is the storage write path used by the Writer.
type ObjectStore interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
}

// Status is the outcome of a single snapshot write.
type Status string

const (
	StatusWritten Status = "written"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Result describes one Write call.
type Result struct {
	File   string `json:"file"`
	Key    string `json:"key"`
	Rows   int    `json:"rows"`
	Status Status `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Writer serializes tables to CSV and stores them under prefix+filename.
type Writer struct {
	store  ObjectStore
	prefix string
	log    *slog.Logger
}

// NewWriter creates a Writer.
func NewWriter(store ObjectStore, prefix string, log *slog.Logger) *Writer {
	if log == nil {
		log = slog.Default()
	}
	return &Writer{store: store, prefix: prefix, log: log}
}

// Write stores t as filename. Empty tables are skipped. Storage failures are
// logged and reported in the Result; they are never returned as errors.
func (w *Writer) Write(ctx context.Context, filename string, t *Table) Result {
	res := Result{File: filename, Key: w.prefix + filename, Rows: t.Len()}

	if t.Empty() {
		w.log.Info("table is empty, not saving", "file", filename)
		res.Status = StatusSkipped
		return res
	}

	var buf bytes.Buffer
	if err := t.WriteCSV(&buf); err != nil {
		return w.fail(res, err)
	}

	if err := w.store.Put(ctx, res.Key, buf.Bytes(), ContentTypeCSV); err != nil {
		return w.fail(res, err)
	}

	w.log.Info("saved snapshot", "rows", res.Rows, "key", res.Key)
	res.Status = StatusWritten
	return res
}

func (w *Writer) fail(res Result, err error) Result {
	w.log.Error("error saving snapshot", "key", res.Key, "error", err)
	res.Status = StatusFailed
	res.Error = err.Error()
	return res
}
