package readers

import (
	"fmt"
	"os"
	"strings"
)

// TextReader handles plain text files line by line. Unknown extensions fall
// back to it.
type TextReader struct {
	path     string
	chunkMax int
}

func NewTextReader(path string, chunkMax int) *TextReader {
	return &TextReader{path: path, chunkMax: chunkMax}
}

func (r *TextReader) SourceType() SourceType { return SourceLocalTextFile }

func (r *TextReader) Read() (string, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return "", fmt.Errorf("failed to read text file: %w", err)
	}
	return string(data), nil
}

// Chunks yields one chunk per non-blank line. Offsets exclude the line's
// trailing newline but the running position advances past it, so chunk
// positions always index into the raw file content.
func (r *TextReader) Chunks() ([]Chunk, error) {
	content, err := r.Read()
	if err != nil {
		return nil, err
	}

	var chunks []Chunk
	pos := 0
	for pos < len(content) {
		var line string
		advance := 0
		if idx := strings.IndexByte(content[pos:], '\n'); idx >= 0 {
			line = content[pos : pos+idx]
			advance = idx + 1
		} else {
			line = content[pos:]
			advance = len(line)
		}

		text := strings.TrimRight(line, "\r")
		if strings.TrimSpace(text) != "" {
			lineChunk := Chunk{
				StartIndex: pos,
				EndIndex:   pos + len(text),
				Text:       text,
			}
			chunks = append(chunks, splitChunk(r.chunkMax, lineChunk)...)
		}
		pos += advance
	}
	return chunks, nil
}
