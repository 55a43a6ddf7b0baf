package connectors

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/stacklok/connsync/internal/replication"
	"github.com/stacklok/connsync/internal/status"
)

// DevNullWriter discards every record
type DevNullWriter struct {
	written atomic.Int64
}

// Start is a no-op
func (*DevNullWriter) Start(context.Context, map[string]any, replication.Catalog) error {
	return nil
}

// Write counts and drops the records
func (w *DevNullWriter) Write(_ context.Context, _ replication.StreamDescriptor, records []json.RawMessage) error {
	w.written.Add(int64(len(records)))
	return nil
}

// Written returns the number of records discarded so far
func (w *DevNullWriter) Written() int64 {
	return w.written.Load()
}

// Close is a no-op
func (*DevNullWriter) Close() error {
	return nil
}

type jsonlConfig struct {
	// Path is the directory the stream files are written to
	Path string `mapstructure:"path"`
}

// JSONLWriter writes every stream to <path>/<namespace>_<name>.jsonl, one record per line.
// Overwrite streams are truncated when the writer starts.
type JSONLWriter struct {
	mu    sync.Mutex
	dir   string
	files map[replication.StreamDescriptor]*os.File
}

// Start creates the output directory and opens one file per stream
func (w *JSONLWriter) Start(_ context.Context, config map[string]any, catalog replication.Catalog) error {
	var cfg jsonlConfig
	if err := decodeConfig(status.FailureOriginDestination, config, &cfg); err != nil {
		return err
	}
	if cfg.Path == "" {
		return replication.ConfigError(status.FailureOriginDestination, "path is required", nil)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.dir = filepath.Clean(cfg.Path)
	if err := os.MkdirAll(w.dir, 0750); err != nil {
		return replication.ConfigError(status.FailureOriginDestination, "cannot create output directory", err)
	}

	w.files = make(map[replication.StreamDescriptor]*os.File, len(catalog.Streams))
	for _, s := range catalog.Streams {
		flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
		if s.DestinationSyncMode == replication.DestinationSyncModeOverwrite {
			flags = os.O_CREATE | os.O_WRONLY | os.O_TRUNC
		}
		// #nosec G304 -- the file name is built from the configured directory and a stream name
		f, err := os.OpenFile(w.fileName(s.Stream), flags, 0600)
		if err != nil {
			w.closeLocked()
			return replication.TransientError(status.FailureOriginDestination,
				fmt.Sprintf("cannot open output file for stream %s", s.Stream), err)
		}
		w.files[s.Stream] = f
	}
	return nil
}

func (w *JSONLWriter) fileName(s replication.StreamDescriptor) string {
	name := s.Name
	if s.Namespace != "" {
		name = s.Namespace + "_" + s.Name
	}
	name = strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(name)
	return filepath.Join(w.dir, name+".jsonl")
}

// Write appends the records and syncs the file
func (w *JSONLWriter) Write(_ context.Context, stream replication.StreamDescriptor, records []json.RawMessage) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, ok := w.files[stream]
	if !ok {
		return fmt.Errorf("stream %s is not in the catalog", stream)
	}

	buf := bufio.NewWriter(f)
	for _, r := range records {
		if _, err := buf.Write(r); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
		if err := buf.WriteByte('\n'); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
	}
	if err := buf.Flush(); err != nil {
		return fmt.Errorf("failed to flush records: %w", err)
	}
	return f.Sync()
}

// Close closes every stream file
func (w *JSONLWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLWriter) closeLocked() error {
	var errs []error
	for s, f := range w.files {
		if err := f.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close file of stream %s: %w", s, err))
		}
	}
	w.files = nil
	return errors.Join(errs...)
}
