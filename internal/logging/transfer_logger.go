package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// fanOutHandler dispatches every record to two handlers: the process-wide
// logger and a dedicated per-transfer file.
type fanOutHandler struct {
	primary   slog.Handler
	secondary slog.Handler
}

func (h *fanOutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.primary.Enabled(ctx, level) || h.secondary.Enabled(ctx, level)
}

func (h *fanOutHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.primary.Enabled(ctx, r.Level) {
		if err := h.primary.Handle(ctx, r); err != nil {
			return err
		}
	}
	if h.secondary.Enabled(ctx, r.Level) {
		_ = h.secondary.Handle(ctx, r)
	}
	return nil
}

func (h *fanOutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &fanOutHandler{primary: h.primary.WithAttrs(attrs), secondary: h.secondary.WithAttrs(attrs)}
}

func (h *fanOutHandler) WithGroup(name string) slog.Handler {
	return &fanOutHandler{primary: h.primary.WithGroup(name), secondary: h.secondary.WithGroup(name)}
}

// NewTransferLogger returns a logger that writes both to baseLogger and to a
// dedicated debug-level JSON file at {transferLogDir}/{hostname}/{requestID}.log,
// along with an io.Closer that must be closed when the transfer finishes and
// the file's path. If transferLogDir is empty this is a no-op returning
// baseLogger unchanged.
func NewTransferLogger(baseLogger *slog.Logger, transferLogDir, hostname, requestID string) (*slog.Logger, io.Closer, string, error) {
	if transferLogDir == "" {
		return baseLogger, io.NopCloser(nil), "", nil
	}

	dir := filepath.Join(transferLogDir, hostname)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, nil, "", fmt.Errorf("creating transfer log directory %s: %w", dir, err)
	}

	logPath := filepath.Join(dir, requestID+".log")
	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, "", fmt.Errorf("opening transfer log file %s: %w", logPath, err)
	}

	fileHandler := slog.NewJSONHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug})
	combined := &fanOutHandler{primary: baseLogger.Handler(), secondary: fileHandler}

	return slog.New(combined), f, logPath, nil
}

// RemoveTransferLog deletes the per-transfer log file for a completed
// transfer. No-op if transferLogDir is empty or the file doesn't exist.
func RemoveTransferLog(transferLogDir, hostname, requestID string) {
	if transferLogDir == "" {
		return
	}
	os.Remove(filepath.Join(transferLogDir, hostname, requestID+".log"))
}
