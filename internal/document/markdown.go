package document

import (
	"bytes"
	"context"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/roach88/velora/internal/ir"
)

// MarkdownReader reads CommonMark documents. Top-level headings define the
// heading path; everything between two headings is the section body, kept as
// Markdown source.
type MarkdownReader struct{}

// Read implements Reader.
func (MarkdownReader) Read(ctx context.Context, path string) ([]ir.RawRequirement, error) {
	data, err := readFile(ctx, path)
	if err != nil {
		return nil, err
	}
	return ParseMarkdown(data), nil
}

// ParseMarkdown splits Markdown source into requirement sections.
func ParseMarkdown(src []byte) []ir.RawRequirement {
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	var s sectionizer
	offset := 0
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		h, ok := n.(*ast.Heading)
		if !ok || h.Lines().Len() == 0 {
			continue
		}
		start, end := headingSpan(h, src)
		if start < offset {
			continue
		}
		s.text(string(src[offset:start]))
		s.heading(h.Level, headingTitle(h, src))
		offset = end
	}
	s.text(string(src[offset:]))
	return s.finish()
}

// headingSpan returns the byte range of the heading's source lines,
// including the underline of a setext heading.
func headingSpan(h *ast.Heading, src []byte) (int, int) {
	lines := h.Lines()
	start := lineStart(src, lines.At(0).Start)
	last := lines.At(lines.Len() - 1)
	stop := last.Stop
	if stop > last.Start {
		// a segment may or may not include its trailing newline
		stop--
	}
	end := lineEnd(src, stop)

	if !bytes.HasPrefix(bytes.TrimLeft(src[start:], " "), []byte("#")) {
		// setext: skip the "===" or "---" underline
		end = lineEnd(src, end)
	}
	return start, end
}

func headingTitle(h *ast.Heading, src []byte) string {
	var b strings.Builder
	lines := h.Lines()
	for i := 0; i < lines.Len(); i++ {
		if i > 0 {
			b.WriteByte(' ')
		}
		seg := lines.At(i)
		b.Write(bytes.TrimSpace(seg.Value(src)))
	}
	return strings.TrimSpace(b.String())
}

func lineStart(src []byte, pos int) int {
	return bytes.LastIndexByte(src[:pos], '\n') + 1
}

// lineEnd returns the offset just past the newline ending the line at pos.
func lineEnd(src []byte, pos int) int {
	if pos >= len(src) {
		return len(src)
	}
	i := bytes.IndexByte(src[pos:], '\n')
	if i < 0 {
		return len(src)
	}
	return pos + i + 1
}
