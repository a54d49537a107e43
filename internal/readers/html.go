package readers

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// HTMLReader extracts visible text from HTML files. Chunk offsets point at
// the text's position in the raw HTML, tags included, so search context
// extension slices the original markup.
type HTMLReader struct {
	path     string
	chunkMax int
}

func NewHTMLReader(path string, chunkMax int) *HTMLReader {
	return &HTMLReader{path: path, chunkMax: chunkMax}
}

func (r *HTMLReader) SourceType() SourceType { return SourceLocalHTMLFile }

func (r *HTMLReader) Read() (string, error) {
	chunks, err := r.Chunks()
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, c := range chunks {
		b.WriteString(c.Text)
	}
	return b.String(), nil
}

func (r *HTMLReader) Chunks() ([]Chunk, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read html file: %w", err)
	}
	content := string(data)

	doc, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}

	var nodes []string
	collectTextNodes(doc, &nodes)

	var chunks []Chunk
	searchStart := 0
	for _, text := range nodes {
		pos := findTextPosition(content, text, searchStart)
		if pos < 0 {
			continue
		}
		searchStart = pos + len(text)

		cleaned := strings.TrimSpace(whitespaceRun.ReplaceAllString(text, " "))
		if cleaned == "" {
			continue
		}
		segment := Chunk{StartIndex: pos, EndIndex: pos + len(text), Text: cleaned}
		chunks = append(chunks, splitHTMLChunk(r.chunkMax, segment)...)
	}
	return chunks, nil
}

// collectTextNodes walks the parse tree in document order, skipping script
// and style subtrees.
func collectTextNodes(n *html.Node, out *[]string) {
	if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
		return
	}
	if n.Type == html.TextNode {
		if text := strings.TrimSpace(n.Data); text != "" {
			*out = append(*out, text)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectTextNodes(c, out)
	}
}

// findTextPosition locates text in the raw HTML at or after start, skipping
// occurrences that sit inside a tag. Entity-encoded nodes decode differently
// from the raw markup and simply produce no match.
func findTextPosition(content, text string, start int) int {
	if strings.TrimSpace(text) == "" {
		return -1
	}
	for pos := start; pos < len(content); {
		idx := strings.Index(content[pos:], text)
		if idx < 0 {
			return -1
		}
		found := pos + idx
		if !insideTag(content, found) {
			return found
		}
		pos = found + 1
	}
	return -1
}

// insideTag reports whether the byte at position sits between a '<' and its
// closing '>'.
func insideTag(content string, position int) bool {
	lastOpen := strings.LastIndex(content[:position], "<")
	lastClose := strings.LastIndex(content[:position], ">")
	return lastOpen > lastClose
}

// splitHTMLChunk breaks an oversized segment at word boundaries. Text offsets
// cannot map directly back into markup, so sub-chunk positions are spread
// proportionally across the segment's HTML span.
func splitHTMLChunk(max int, c Chunk) []Chunk {
	text := c.Text
	if len(text) <= max {
		return []Chunk{c}
	}

	var out []Chunk
	textLen := len(text)
	htmlLen := c.EndIndex - c.StartIndex
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

		if chunkText := strings.TrimSpace(text[start:end]); chunkText != "" {
			startRatio := float64(start) / float64(textLen)
			endRatio := float64(end) / float64(textLen)
			out = append(out, Chunk{
				StartIndex: c.StartIndex + int(startRatio*float64(htmlLen)),
				EndIndex:   c.StartIndex + int(endRatio*float64(htmlLen)),
				Text:       chunkText,
			})
		}

		start = end
		for start < len(text) && (text[start] == ' ' || text[start] == '\t' || text[start] == '\n' || text[start] == '\r') {
			start++
		}
	}
	return out
}
