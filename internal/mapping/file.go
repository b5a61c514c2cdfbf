package mapping

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"

	"github.com/roach88/velora/internal/ir"
)

// recordSet is the on-disk layout of a FileBackend.
type recordSet struct {
	Version int               `json:"version"`
	Entries []ir.MappingEntry `json:"entries"`
}

// FileBackend stores the record set as a versioned JSON document, suitable
// for committing next to the requirements document.
type FileBackend struct {
	Path string
}

// NewFileBackend returns a backend for the JSON file at path.
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{Path: path}
}

// Load reads the record set. A missing file is an empty store.
func (b *FileBackend) Load(_ context.Context) ([]ir.MappingEntry, error) {
	data, err := os.ReadFile(b.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return []ir.MappingEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", b.Path, err)
	}

	var rs recordSet
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&rs); err != nil {
		return nil, fmt.Errorf("decode %s: %w", b.Path, err)
	}
	if rs.Version != ir.MappingFormatVersion {
		return nil, fmt.Errorf("%s: unsupported mapping format version %d (want %d)", b.Path, rs.Version, ir.MappingFormatVersion)
	}
	if rs.Entries == nil {
		rs.Entries = []ir.MappingEntry{}
	}
	return rs.Entries, nil
}

// Commit atomically replaces the file: the document is written to a
// temporary file in the same directory, synced, then renamed over the target.
func (b *FileBackend) Commit(ctx context.Context, entries []ir.MappingEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if entries == nil {
		entries = []ir.MappingEntry{}
	}
	data, err := json.MarshalIndent(recordSet{Version: ir.MappingFormatVersion, Entries: entries}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode mapping store: %w", err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(b.Path), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(b.Path), err)
	}
	if err := atomic.WriteFile(b.Path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write %s: %w", b.Path, err)
	}
	return nil
}
