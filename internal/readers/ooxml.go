package readers

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

const (
	wordNamespace    = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"
	drawingNamespace = "http://schemas.openxmlformats.org/drawingml/2006/main"
)

// DocxReader extracts text from Word documents paragraph by paragraph.
type DocxReader struct {
	path     string
	chunkMax int
}

func NewDocxReader(path string, chunkMax int) *DocxReader {
	return &DocxReader{path: path, chunkMax: chunkMax}
}

func (r *DocxReader) SourceType() SourceType { return SourceLocalDocxFile }

func (r *DocxReader) paragraphs() ([]string, error) {
	zr, err := zip.OpenReader(r.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open docx: %w", err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open docx document part: %w", err)
		}
		defer rc.Close()
		return parseWordParagraphs(rc)
	}
	return nil, fmt.Errorf("docx has no word/document.xml part")
}

// parseWordParagraphs walks document.xml collecting the text runs of each
// w:p element.
func parseWordParagraphs(r io.Reader) ([]string, error) {
	dec := xml.NewDecoder(r)
	var (
		paras  []string
		cur    strings.Builder
		depth  int
		inText bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse docx xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Space != wordNamespace {
				continue
			}
			switch t.Name.Local {
			case "p":
				if depth == 0 {
					cur.Reset()
				}
				depth++
			case "t":
				inText = depth > 0
			}
		case xml.EndElement:
			if t.Name.Space != wordNamespace {
				continue
			}
			switch t.Name.Local {
			case "p":
				depth--
				if depth == 0 {
					paras = append(paras, cur.String())
				}
			case "t":
				inText = false
			}
		case xml.CharData:
			if inText {
				cur.Write(t)
			}
		}
	}
	return paras, nil
}

func (r *DocxReader) Read() (string, error) {
	paras, err := r.paragraphs()
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, p := range paras {
		b.WriteString(p)
		b.WriteString("\n")
	}
	return b.String(), nil
}

// Chunks yields one chunk per non-empty paragraph. Offsets index into the
// newline-joined paragraph text that Read returns.
func (r *DocxReader) Chunks() ([]Chunk, error) {
	paras, err := r.paragraphs()
	if err != nil {
		return nil, err
	}
	return blockChunks(paras, r.chunkMax), nil
}

// PptxReader extracts text from PowerPoint decks shape by shape.
type PptxReader struct {
	path     string
	chunkMax int
}

func NewPptxReader(path string, chunkMax int) *PptxReader {
	return &PptxReader{path: path, chunkMax: chunkMax}
}

func (r *PptxReader) SourceType() SourceType { return SourceLocalPptxFile }

// shapeTexts returns the text of every text-bearing shape in slide order.
// A shape's paragraphs are joined with newlines.
func (r *PptxReader) shapeTexts() ([]string, error) {
	zr, err := zip.OpenReader(r.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pptx: %w", err)
	}
	defer zr.Close()

	type slideFile struct {
		num  int
		file *zip.File
	}
	var slides []slideFile
	for _, f := range zr.File {
		name := f.Name
		if !strings.HasPrefix(name, "ppt/slides/slide") || !strings.HasSuffix(name, ".xml") {
			continue
		}
		numStr := strings.TrimSuffix(strings.TrimPrefix(name, "ppt/slides/slide"), ".xml")
		num, err := strconv.Atoi(numStr)
		if err != nil {
			continue
		}
		slides = append(slides, slideFile{num: num, file: f})
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].num < slides[j].num })

	var shapes []string
	for _, s := range slides {
		rc, err := s.file.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open slide %d: %w", s.num, err)
		}
		slideShapes, err := parseSlideShapes(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to parse slide %d: %w", s.num, err)
		}
		shapes = append(shapes, slideShapes...)
	}
	return shapes, nil
}

// parseSlideShapes collects one string per txBody element, joining its a:p
// paragraphs with newlines.
func parseSlideShapes(r io.Reader) ([]string, error) {
	dec := xml.NewDecoder(r)
	var (
		shapes []string
		paras  []string
		cur    strings.Builder
		inBody bool
		inPara bool
		inText bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse slide xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch {
			case t.Name.Local == "txBody":
				inBody = true
				paras = paras[:0]
			case inBody && t.Name.Space == drawingNamespace && t.Name.Local == "p":
				inPara = true
				cur.Reset()
			case inPara && t.Name.Space == drawingNamespace && t.Name.Local == "t":
				inText = true
			}
		case xml.EndElement:
			switch {
			case t.Name.Local == "txBody":
				inBody = false
				shapes = append(shapes, strings.Join(paras, "\n"))
			case inBody && t.Name.Space == drawingNamespace && t.Name.Local == "p":
				inPara = false
				paras = append(paras, cur.String())
			case t.Name.Space == drawingNamespace && t.Name.Local == "t":
				inText = false
			}
		case xml.CharData:
			if inText {
				cur.Write(t)
			}
		}
	}
	return shapes, nil
}

func (r *PptxReader) Read() (string, error) {
	shapes, err := r.shapeTexts()
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, s := range shapes {
		b.WriteString(s)
		b.WriteString("\n")
	}
	return b.String(), nil
}

// Chunks yields one chunk per non-empty text shape. Offsets index into the
// newline-joined shape text that Read returns.
func (r *PptxReader) Chunks() ([]Chunk, error) {
	shapes, err := r.shapeTexts()
	if err != nil {
		return nil, err
	}
	return blockChunks(shapes, r.chunkMax), nil
}

// blockChunks positions each block in the newline-joined document the way
// Read renders it, skipping blocks that are blank after trimming.
func blockChunks(blocks []string, chunkMax int) []Chunk {
	var chunks []Chunk
	pos := 0
	for _, block := range blocks {
		withNewline := block + "\n"
		if strings.TrimSpace(block) != "" {
			blockChunk := Chunk{
				StartIndex: pos,
				EndIndex:   pos + len(withNewline),
				Text:       strings.TrimSpace(block),
			}
			chunks = append(chunks, splitChunk(chunkMax, blockChunk)...)
		}
		pos += len(withNewline)
	}
	return chunks
}
