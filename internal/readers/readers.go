// Package readers extracts positioned text chunks from the file formats the
// ingestion pipeline accepts.
//
// Every reader reports chunks with byte offsets into the original file
// content, so search can later re-open the file and extend a hit with
// surrounding context.
package readers

import (
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

// SourceType labels where a piece of text came from.
type SourceType string

const (
	SourceLocalTextFile        SourceType = "LOCAL_TEXT_FILE"
	SourceLocalPDFFile         SourceType = "LOCAL_PDF_FILE"
	SourceLocalDocxFile        SourceType = "LOCAL_DOCX_FILE"
	SourceLocalDocFile         SourceType = "LOCAL_DOC_FILE"
	SourceLocalPptxFile        SourceType = "LOCAL_PPTX_FILE"
	SourceLocalPptFile         SourceType = "LOCAL_PPT_FILE"
	SourceLocalHTMLFile        SourceType = "LOCAL_HTML_FILE"
	SourceYouTubeTranscription SourceType = "YOUTUBE_TRANSCRIPTION"
	SourceLocalAudioFile       SourceType = "LOCAL_AUDIO_FILE"
	SourceUserQuery            SourceType = "user_query"
)

// Chunk is a piece of extracted text with its position in the original
// content.
type Chunk struct {
	StartIndex int    `json:"start_index"`
	EndIndex   int    `json:"end_index"`
	Text       string `json:"text"`
}

// Reader extracts text from one file.
type Reader interface {
	// Read returns the file's full extracted text.
	Read() (string, error)
	// Chunks returns the extracted text split into position-tracked chunks
	// no larger than the reader's chunk limit.
	Chunks() ([]Chunk, error)
	// SourceType reports the kind of file this reader handles.
	SourceType() SourceType
}

// extensionSources maps supported extensions to the reader constructor used
// for them.
var extensionSources = map[string]func(path string, chunkMax int) Reader{
	".pdf":  func(p string, m int) Reader { return NewPDFReader(p, m) },
	".docx": func(p string, m int) Reader { return NewDocxReader(p, m) },
	".pptx": func(p string, m int) Reader { return NewPptxReader(p, m) },
	".ppsx": func(p string, m int) Reader { return NewPptxReader(p, m) },
	".pptm": func(p string, m int) Reader { return NewPptxReader(p, m) },
	".txt":  func(p string, m int) Reader { return NewTextReader(p, m) },
	".html": func(p string, m int) Reader { return NewHTMLReader(p, m) },
	".htm":  func(p string, m int) Reader { return NewHTMLReader(p, m) },
}

// ForPath picks a reader by file extension, falling back to the plain text
// reader for unknown extensions.
func ForPath(path string, chunkMax int, log zerolog.Logger) Reader {
	ext := strings.ToLower(filepath.Ext(path))
	if ctor, ok := extensionSources[ext]; ok {
		return ctor(path, chunkMax)
	}
	log.Warn().Str("path", path).Msg("no reader for extension, defaulting to text reader")
	return NewTextReader(path, chunkMax)
}

// IsSupported reports whether the extension has a dedicated reader.
func IsSupported(path string) bool {
	_, ok := extensionSources[strings.ToLower(filepath.Ext(path))]
	return ok
}

// SupportedExtensions lists every extension with a dedicated reader.
func SupportedExtensions() []string {
	exts := make([]string, 0, len(extensionSources))
	for ext := range extensionSources {
		exts = append(exts, ext)
	}
	return exts
}

// splitChunk breaks an oversized chunk at word boundaries, keeping byte
// offsets relative to the original content. Chunk text is trimmed but
// offsets cover the untrimmed span.
func splitChunk(max int, c Chunk) []Chunk {
	text := c.Text
	if len(text) <= max {
		return []Chunk{c}
	}

	var out []Chunk
	start := 0
	for start < len(text) {
		end := start + max
		if end > len(text) {
			end = len(text)
		}
		if end < len(text) {
			if sp := strings.LastIndex(text[start:end], " "); sp > 0 {
				end = start + sp
			}
		}
		// Never cut through a multi-byte rune.
		for end < len(text) && end > start && !utf8.RuneStart(text[end]) {
			end--
		}
		if end == start {
			_, size := utf8.DecodeRuneInString(text[start:])
			end = start + size
		}

		if chunkText := strings.TrimSpace(text[start:end]); chunkText != "" {
			out = append(out, Chunk{
				StartIndex: c.StartIndex + start,
				EndIndex:   c.StartIndex + end,
				Text:       chunkText,
			})
		}

		start = end
		for start < len(text) {
			r, size := utf8.DecodeRuneInString(text[start:])
			if !unicode.IsSpace(r) {
				break
			}
			start += size
		}
	}
	return out
}
