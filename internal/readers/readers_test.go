package readers

import (
	"archive/zip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/mcp-brag/internal/logging"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestForPathDispatch(t *testing.T) {
	t.Parallel()

	log := logging.Nop()
	assert.IsType(t, &PDFReader{}, ForPath("a.pdf", 100, log))
	assert.IsType(t, &DocxReader{}, ForPath("a.DOCX", 100, log))
	assert.IsType(t, &PptxReader{}, ForPath("deck.pptx", 100, log))
	assert.IsType(t, &PptxReader{}, ForPath("deck.ppsx", 100, log))
	assert.IsType(t, &HTMLReader{}, ForPath("page.htm", 100, log))
	assert.IsType(t, &TextReader{}, ForPath("notes.txt", 100, log))
	assert.IsType(t, &TextReader{}, ForPath("unknown.xyz", 100, log), "unknown extensions fall back to text")

	assert.True(t, IsSupported("x.html"))
	assert.False(t, IsSupported("x.xyz"))
	assert.NotEmpty(t, SupportedExtensions())
}

func TestTextReaderChunksPerLine(t *testing.T) {
	t.Parallel()

	content := "first line\n\nsecond line\nthird\n"
	path := writeFile(t, "notes.txt", content)

	r := NewTextReader(path, 1000)
	chunks, err := r.Chunks()
	require.NoError(t, err)
	require.Len(t, chunks, 3, "blank lines produce no chunks")

	assert.Equal(t, "first line", chunks[0].Text)
	assert.Equal(t, 0, chunks[0].StartIndex)
	assert.Equal(t, len("first line"), chunks[0].EndIndex)

	assert.Equal(t, "second line", chunks[1].Text)
	assert.Equal(t, content[chunks[1].StartIndex:chunks[1].EndIndex], chunks[1].Text)

	assert.Equal(t, "third", chunks[2].Text)
	assert.Equal(t, content[chunks[2].StartIndex:chunks[2].EndIndex], chunks[2].Text)
}

func TestTextReaderOffsetsSurviveCRLF(t *testing.T) {
	t.Parallel()

	content := "alpha\r\nbeta\r\ngamma"
	path := writeFile(t, "dos.txt", content)

	chunks, err := NewTextReader(path, 1000).Chunks()
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	for _, c := range chunks {
		assert.Equal(t, c.Text, content[c.StartIndex:c.EndIndex],
			"offsets must index into the raw file bytes")
	}
}

func TestTextReaderSplitsLongLines(t *testing.T) {
	t.Parallel()

	content := "aaaa bbbb cccc dddd eeee"
	path := writeFile(t, "long.txt", content)

	chunks, err := NewTextReader(path, 10).Chunks()
	require.NoError(t, err)
	require.True(t, len(chunks) > 1)

	for _, c := range chunks {
		assert.LessOrEqual(t, len(c.Text), 10)
		assert.Equal(t, c.Text, strings.TrimSpace(content[c.StartIndex:c.EndIndex]))
	}
	var joined []string
	for _, c := range chunks {
		joined = append(joined, c.Text)
	}
	assert.Equal(t, content, strings.Join(joined, " "), "splitting loses no words")
}

func TestSplitChunkWordBoundaries(t *testing.T) {
	t.Parallel()

	c := Chunk{StartIndex: 100, EndIndex: 123, Text: "one two three four five"}
	out := splitChunk(9, c)
	require.Len(t, out, 3)

	assert.Equal(t, "one two", out[0].Text)
	assert.Equal(t, 100, out[0].StartIndex)
	assert.Equal(t, "three", out[1].Text)
	assert.Equal(t, "four five", out[2].Text)
}

func TestSplitChunkKeepsSmallChunksIntact(t *testing.T) {
	t.Parallel()

	c := Chunk{StartIndex: 5, EndIndex: 10, Text: "small"}
	out := splitChunk(100, c)
	require.Len(t, out, 1)
	assert.Equal(t, c, out[0])
}

func TestHTMLReaderMapsOffsetsIntoMarkup(t *testing.T) {
	t.Parallel()

	content := `<html><head><title>Title</title><style>body {color: red}</style>` +
		`<script>var x = "hidden";</script></head>` +
		`<body><p>Hello world</p><div>More text here</div></body></html>`
	path := writeFile(t, "page.html", content)

	chunks, err := NewHTMLReader(path, 1000).Chunks()
	require.NoError(t, err)

	var texts []string
	for _, c := range chunks {
		texts = append(texts, c.Text)
		assert.Equal(t, c.Text, content[c.StartIndex:c.EndIndex],
			"offsets must point at the text inside the raw markup")
	}
	assert.Equal(t, []string{"Title", "Hello world", "More text here"}, texts)
}

func TestHTMLReaderSkipsScriptAndStyle(t *testing.T) {
	t.Parallel()

	content := `<body><script>ignore me</script><p>keep me</p><style>.x{}</style></body>`
	path := writeFile(t, "page.htm", content)

	chunks, err := NewHTMLReader(path, 1000).Chunks()
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "keep me", chunks[0].Text)
}

func TestHTMLReaderCollapsesWhitespace(t *testing.T) {
	t.Parallel()

	content := "<p>spread\n   out\t text</p>"
	path := writeFile(t, "ws.html", content)

	chunks, err := NewHTMLReader(path, 1000).Chunks()
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "spread out text", chunks[0].Text)
}

func writeDocx(t *testing.T, paragraphs []string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "doc.docx")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)

	var b strings.Builder
	b.WriteString(`<?xml version="1.0"?><w:document xmlns:w="` + wordNamespace + `"><w:body>`)
	for _, p := range paragraphs {
		b.WriteString(`<w:p><w:r><w:t>` + p + `</w:t></w:r></w:p>`)
	}
	b.WriteString(`</w:body></w:document>`)
	_, err = w.Write([]byte(b.String()))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return path
}

func TestDocxReaderChunksPerParagraph(t *testing.T) {
	t.Parallel()

	path := writeDocx(t, []string{"First paragraph", "", "Second paragraph"})
	r := NewDocxReader(path, 1000)

	text, err := r.Read()
	require.NoError(t, err)
	assert.Equal(t, "First paragraph\n\nSecond paragraph\n", text)

	chunks, err := r.Chunks()
	require.NoError(t, err)
	require.Len(t, chunks, 2, "empty paragraphs are skipped")
	assert.Equal(t, "First paragraph", chunks[0].Text)
	assert.Equal(t, 0, chunks[0].StartIndex)
	assert.Equal(t, "Second paragraph", chunks[1].Text)
	assert.Equal(t, text[chunks[1].StartIndex:chunks[1].StartIndex+len(chunks[1].Text)], chunks[1].Text)
}

func writePptx(t *testing.T, slides [][]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "deck.pptx")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	for i, shapes := range slides {
		w, err := zw.Create("ppt/slides/slide" + string(rune('1'+i)) + ".xml")
		require.NoError(t, err)
		var b strings.Builder
		b.WriteString(`<?xml version="1.0"?><p:sld xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main" xmlns:a="` + drawingNamespace + `"><p:cSld><p:spTree>`)
		for _, shape := range shapes {
			b.WriteString(`<p:sp><p:txBody><a:p><a:r><a:t>` + shape + `</a:t></a:r></a:p></p:txBody></p:sp>`)
		}
		b.WriteString(`</p:spTree></p:cSld></p:sld>`)
		_, err = w.Write([]byte(b.String()))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return path
}

func TestPptxReaderChunksPerShape(t *testing.T) {
	t.Parallel()

	path := writePptx(t, [][]string{{"Title slide", "Subtitle"}, {"Body content"}})
	r := NewPptxReader(path, 1000)

	chunks, err := r.Chunks()
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, "Title slide", chunks[0].Text)
	assert.Equal(t, "Subtitle", chunks[1].Text)
	assert.Equal(t, "Body content", chunks[2].Text)

	text, err := r.Read()
	require.NoError(t, err)
	assert.Equal(t, "Title slide\nSubtitle\nBody content\n", text)
}

func TestPDFReaderSourceType(t *testing.T) {
	t.Parallel()
	assert.Equal(t, SourceLocalPDFFile, NewPDFReader("x.pdf", 100).SourceType())
}
