package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/wolfeidau/repospanner/telemetry"
)

// InstrumentedBackend wraps a Backend with metrics recording.
type InstrumentedBackend struct {
	backend Backend
	name    string
}

// NewInstrumentedBackend creates a new instrumented backend wrapper.
func NewInstrumentedBackend(b Backend, name string) *InstrumentedBackend {
	return &InstrumentedBackend{backend: b, name: name}
}

func (ib *InstrumentedBackend) Read(ctx context.Context, key string) (io.ReadCloser, error) {
	start := time.Now()
	rc, err := ib.backend.Read(ctx, key)
	telemetry.RecordBackendOp(ctx, ib.name, "read", outcomeFromError(err), time.Since(start), 0)
	if err != nil {
		return nil, err
	}
	return rc, nil
}

func (ib *InstrumentedBackend) Exists(ctx context.Context, key string) (bool, error) {
	start := time.Now()
	exists, err := ib.backend.Exists(ctx, key)
	telemetry.RecordBackendOp(ctx, ib.name, "exists", outcomeFromError(err), time.Since(start), 0)
	return exists, err
}

// Writer delegates to the underlying backend if it implements WriterBackend.
// Bytes are recorded when the staged write is committed.
func (ib *InstrumentedBackend) Writer(ctx context.Context, key string) (StagedWriter, error) {
	wb, ok := ib.backend.(WriterBackend)
	if !ok {
		return nil, fmt.Errorf("backend does not support Writer")
	}
	start := time.Now()
	w, err := wb.Writer(ctx, key)
	if err != nil {
		telemetry.RecordBackendOp(ctx, ib.name, "writer", outcomeFromError(err), time.Since(start), 0)
		return nil, err
	}
	return &instrumentedWriter{StagedWriter: w, ctx: ctx, name: ib.name, start: start}, nil
}

func outcomeFromError(err error) string {
	if err == nil {
		return "success"
	}
	if errors.Is(err, ErrNotFound) {
		return "not_found"
	}
	return "error"
}

// instrumentedWriter records one "writer" op when the staged write ends.
type instrumentedWriter struct {
	StagedWriter
	ctx      context.Context
	name     string
	start    time.Time
	n        int64
	recorded bool
}

func (w *instrumentedWriter) Write(p []byte) (int, error) {
	n, err := w.StagedWriter.Write(p)
	w.n += int64(n)
	return n, err
}

func (w *instrumentedWriter) Close() error {
	err := w.StagedWriter.Close()
	w.record(outcomeFromError(err))
	return err
}

func (w *instrumentedWriter) Abort() error {
	err := w.StagedWriter.Abort()
	w.record("aborted")
	return err
}

func (w *instrumentedWriter) record(outcome string) {
	if w.recorded {
		return
	}
	w.recorded = true
	telemetry.RecordBackendOp(w.ctx, w.name, "writer", outcome, time.Since(w.start), w.n)
}

// Compile-time interface checks
var (
	_ Backend       = (*InstrumentedBackend)(nil)
	_ WriterBackend = (*InstrumentedBackend)(nil)
)
