package readers

import (
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFReader extracts text from PDF files page by page.
type PDFReader struct {
	path     string
	chunkMax int
}

func NewPDFReader(path string, chunkMax int) *PDFReader {
	return &PDFReader{path: path, chunkMax: chunkMax}
}

func (r *PDFReader) SourceType() SourceType { return SourceLocalPDFFile }

func (r *PDFReader) pageTexts() ([]string, error) {
	f, doc, err := pdf.Open(r.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}
	defer f.Close()

	pages := make([]string, 0, doc.NumPage())
	for i := 1; i <= doc.NumPage(); i++ {
		page := doc.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to extract pdf page %d: %w", i, err)
		}
		pages = append(pages, text)
	}
	return pages, nil
}

func (r *PDFReader) Read() (string, error) {
	pages, err := r.pageTexts()
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, text := range pages {
		b.WriteString(text)
		b.WriteString("\n")
	}
	return b.String(), nil
}

// Chunks yields one chunk per non-empty page. Offsets index into the
// concatenation of all page texts, matching Read's output.
func (r *PDFReader) Chunks() ([]Chunk, error) {
	pages, err := r.pageTexts()
	if err != nil {
		return nil, err
	}

	var chunks []Chunk
	pos := 0
	for i, text := range pages {
		if i < len(pages)-1 {
			text += "\n"
		}
		if strings.TrimSpace(text) != "" {
			pageChunk := Chunk{
				StartIndex: pos,
				EndIndex:   pos + len(text),
				Text:       strings.TrimSpace(text),
			}
			chunks = append(chunks, splitChunk(r.chunkMax, pageChunk)...)
		}
		pos += len(text)
	}
	return chunks, nil
}
