package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// FileLogger writes audit entries as append-only JSONL.
// Each entry is a single JSON line followed by a newline.
// Thread-safe: multiple goroutines can append concurrently.
type FileLogger struct {
	mu     sync.Mutex
	file   *os.File
	logger *slog.Logger
}

// NewFileLogger opens (or creates) the audit log file in append-only mode.
// File permissions are 0600 (owner read/write only).
func NewFileLogger(path string, logger *slog.Logger) (*FileLogger, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("opening audit log %s: %w", path, err)
	}
	return &FileLogger{file: f, logger: logger}, nil
}

// Append serializes the entry as JSON and appends it to the log file.
// Marshal happens outside the lock; only the file write is serialized.
func (l *FileLogger) Append(ctx context.Context, entry *Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.RequestedAt.IsZero() {
		entry.RequestedAt = time.Now().UTC()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling audit entry: %w", err)
	}
	data = append(data, '\n')

	l.mu.Lock()
	_, writeErr := l.file.Write(data)
	l.mu.Unlock()

	if writeErr != nil {
		return fmt.Errorf("writing audit entry: %w", writeErr)
	}

	l.logger.InfoContext(ctx, "audit entry logged",
		slog.String("action", entry.Action),
		slog.String("actor_id", entry.ActorID),
		slog.String("result", entry.ResultStatus),
	)
	return nil
}

// Close closes the underlying file.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}
