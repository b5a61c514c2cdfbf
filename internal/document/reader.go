// Package document extracts requirement sections from source documents.
//
// Readers emit ir.RawRequirement values in document order with a heading path
// that gives each section a stable positional identity. A source that cannot
// be read wraps ir.ErrSourceUnavailable; a source that cannot be parsed wraps
// ir.ErrSourceMalformed. Both are fatal for a run.
package document

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/roach88/velora/internal/ir"
)

// Reader extracts requirement sections from a document.
type Reader interface {
	Read(ctx context.Context, path string) ([]ir.RawRequirement, error)
}

// ForPath selects a reader by file extension. Unknown extensions are read as
// plain text.
func ForPath(path string) Reader {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return MarkdownReader{}
	case ".docx":
		return DocxReader{}
	default:
		return TextReader{}
	}
}

// Read extracts requirements from path with the reader matching its extension.
func Read(ctx context.Context, path string) ([]ir.RawRequirement, error) {
	return ForPath(path).Read(ctx, path)
}

func readFile(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w: %w", path, ir.ErrSourceUnavailable, err)
	}
	return data, nil
}
