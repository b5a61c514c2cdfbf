package document

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/roach88/velora/internal/ir"
)

// DocxReader reads Word documents. Paragraphs styled HeadingN (or Title)
// become headings; every other paragraph is body text.
type DocxReader struct{}

var headingStyle = regexp.MustCompile(`(?i)^heading\s*([1-9])$`)

// Read implements Reader.
func (DocxReader) Read(ctx context.Context, path string) ([]ir.RawRequirement, error) {
	data, err := readFile(ctx, path)
	if err != nil {
		return nil, err
	}
	return ParseDocx(data)
}

// ParseDocx extracts sections from the bytes of a .docx archive.
func ParseDocx(data []byte) ([]ir.RawRequirement, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open docx: %w: %w", ir.ErrSourceMalformed, err)
	}

	var body io.ReadCloser
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			body, err = f.Open()
			if err != nil {
				return nil, fmt.Errorf("open word/document.xml: %w: %w", ir.ErrSourceMalformed, err)
			}
			break
		}
	}
	if body == nil {
		return nil, fmt.Errorf("docx has no word/document.xml: %w", ir.ErrSourceMalformed)
	}
	defer body.Close()

	paragraphs, err := docxParagraphs(body)
	if err != nil {
		return nil, fmt.Errorf("parse word/document.xml: %w: %w", ir.ErrSourceMalformed, err)
	}

	var s sectionizer
	for _, p := range paragraphs {
		switch {
		case p.level > 0:
			s.heading(p.level, p.text)
		default:
			if _, _, ok := parseRequirementHeader(p.text); ok {
				s.heading(reqHeaderLevel, p.text)
				continue
			}
			s.line(p.text)
		}
	}
	return s.finish(), nil
}

type docxParagraph struct {
	level int
	text  string
}

// docxParagraphs walks the WordprocessingML token stream collecting paragraph
// text and heading levels.
func docxParagraphs(r io.Reader) ([]docxParagraph, error) {
	dec := xml.NewDecoder(r)
	var (
		out    []docxParagraph
		cur    *docxParagraph
		buf    strings.Builder
		inText bool
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				cur = &docxParagraph{}
				buf.Reset()
			case "pStyle":
				if cur != nil {
					cur.level = styleLevel(attr(t, "val"))
				}
			case "t":
				inText = true
			case "tab":
				buf.WriteByte('\t')
			case "br":
				buf.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if cur != nil {
					cur.text = buf.String()
					out = append(out, *cur)
					cur = nil
				}
			}
		case xml.CharData:
			if inText {
				buf.Write(t)
			}
		}
	}
}

func attr(el xml.StartElement, local string) string {
	for _, a := range el.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

func styleLevel(style string) int {
	if strings.EqualFold(style, "Title") {
		return 1
	}
	m := headingStyle.FindStringSubmatch(style)
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}
