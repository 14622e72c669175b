// Package textextract pulls raw text out of uploaded study material. The rest
// of the pipeline consumes the extracted pages; extraction quality is the
// concern of this package alone.
package textextract

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PageSeparator delimits pages when extracted text is flattened into a single
// stored column.
const PageSeparator = "\f"

type ExtractedText struct {
	Pages []string // one entry per source page; TXT yields a single page
}

// Content joins the pages into a single blob for chunking.
func (e *ExtractedText) Content() string {
	return strings.Join(e.Pages, "\n\n")
}

// Serialize flattens the pages for storage; SplitPages reverses it.
func (e *ExtractedText) Serialize() string {
	return strings.Join(e.Pages, PageSeparator)
}

func SplitPages(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, PageSeparator)
}

func Extract(data io.ReaderAt, size int64, fileType string) (*ExtractedText, error) {
	switch strings.ToLower(fileType) {
	case ".pdf", "pdf", "application/pdf":
		return extractPDF(data, size)
	case ".txt", "txt", "text/plain":
		return extractTXT(data, size)
	default:
		return nil, fmt.Errorf("unsupported file type: %s", fileType)
	}
}

func SupportedTypes() []string {
	return []string{".pdf", ".txt"}
}

func extractPDF(data io.ReaderAt, size int64) (*ExtractedText, error) {
	reader, err := pdf.NewReader(data, size)
	if err != nil {
		return nil, fmt.Errorf("open PDF: %w", err)
	}

	var pages []string
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// Pages that fail to decode are skipped rather than failing the
			// whole document.
			continue
		}
		if strings.TrimSpace(text) != "" {
			pages = append(pages, text)
		}
	}

	return &ExtractedText{Pages: pages}, nil
}

func extractTXT(data io.ReaderAt, size int64) (*ExtractedText, error) {
	buf := make([]byte, size)
	if _, err := data.ReadAt(buf, 0); err != nil && err != io.EOF {
		return nil, fmt.Errorf("read TXT: %w", err)
	}

	content := string(bytes.TrimSpace(buf))
	if content == "" {
		return &ExtractedText{}, nil
	}
	return &ExtractedText{Pages: []string{content}}, nil
}
