package ingest

// Test Plan for the ingestion service:
// 1. Expand resolves files to themselves, walks directories with the ignore
//    globs applied, and rejects paths that do not exist.
// 2. ProcessFiles carries a text file all the way into the vector index,
//    completes empty files immediately, marks missing files failed, and
//    routes audio files through transcription.
// 3. Re-ingesting a source drops its previous vectors first.
// 4. ProcessURL queues a download that lands as a searchable source.

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/mcp-brag/internal/apperr"
	"github.com/mvp-joe/mcp-brag/internal/config"
	"github.com/mvp-joe/mcp-brag/internal/download"
	"github.com/mvp-joe/mcp-brag/internal/embed"
	"github.com/mvp-joe/mcp-brag/internal/logging"
	"github.com/mvp-joe/mcp-brag/internal/metrics"
	"github.com/mvp-joe/mcp-brag/internal/pipeline"
	"github.com/mvp-joe/mcp-brag/internal/progress"
	"github.com/mvp-joe/mcp-brag/internal/readers"
	"github.com/mvp-joe/mcp-brag/internal/store"
	"github.com/mvp-joe/mcp-brag/internal/transcribe"
)

type fixture struct {
	svc   *Service
	index *store.MemoryMap
	prog  *progress.Manager
}

// newFixture builds an ingestion service over a running pipeline with mock
// providers. ytdlp may be empty when the test never downloads.
func newFixture(t *testing.T, ytdlp string) *fixture {
	t.Helper()

	log := logging.Nop()
	cfg, err := config.Load(t.TempDir(), "", log)
	require.NoError(t, err)

	if ytdlp == "" {
		ytdlp = filepath.Join(t.TempDir(), "absent-yt-dlp")
	}

	index := store.NewMemory(8, log)
	prog := progress.NewManager(log)
	m := metrics.New()
	p := pipeline.New(pipeline.Options{
		EmbedPollSleep:   10 * time.Millisecond,
		StoragePollSleep: 10 * time.Millisecond,
		TranscriptionDir: t.TempDir(),
	}, pipeline.Deps{
		Index:       index,
		Embedder:    embed.NewMock(8),
		Transcriber: transcribe.NewMock(),
		Downloader:  download.New(ytdlp, t.TempDir(), log),
		Progress:    prog,
		Metrics:     m,
	}, log)
	p.Start()
	t.Cleanup(p.Stop)

	return &fixture{
		svc:   New(index, p, prog, m, nil, cfg, log),
		index: index,
		prog:  prog,
	}
}

func (f *fixture) waitForState(t *testing.T, source string, want store.State) store.Stats {
	t.Helper()
	var stats store.Stats
	require.Eventually(t, func() bool {
		s, err := f.index.SourceStats(source)
		if err != nil {
			return false
		}
		stats = s
		return s.Status == want
	}, 10*time.Second, 20*time.Millisecond, "source %s never reached %s", source, want)
	return stats
}

func (f *fixture) search(t *testing.T, text string) []store.Result {
	t.Helper()
	vecs, err := embed.NewMock(8).Embed(context.Background(), []string{text})
	require.NoError(t, err)
	results, err := f.index.Search(vecs[0], nil, 10)
	require.NoError(t, err)
	return results
}

func TestExpand(t *testing.T) {
	t.Parallel()

	t.Run("a file expands to itself", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, "")
		path := filepath.Join(t.TempDir(), "note.txt")
		require.NoError(t, os.WriteFile(path, []byte("hi"), 0o644))

		files, err := f.svc.Expand(path)
		require.NoError(t, err)
		assert.Equal(t, []string{path}, files)
	})

	t.Run("directories are walked with ignore globs", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, "")
		root := t.TempDir()
		for _, p := range []string{"a.txt", "sub/b.txt", ".git/config", "node_modules/pkg/index.js"} {
			full := filepath.Join(root, filepath.FromSlash(p))
			require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
			require.NoError(t, os.WriteFile(full, []byte("x"), 0o644))
		}

		files, err := f.svc.Expand(root)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{
			filepath.Join(root, "a.txt"),
			filepath.Join(root, "sub", "b.txt"),
		}, files)
	})

	t.Run("a missing path is a bad request", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, "")
		_, err := f.svc.Expand(filepath.Join(t.TempDir(), "nope"))
		require.Error(t, err)
		assert.True(t, apperr.IsKind(err, apperr.KindBadRequest))
	})
}

func TestProcessFiles(t *testing.T) {
	t.Parallel()

	t.Run("ingests a text file into the index", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, "")
		path := filepath.Join(t.TempDir(), "note.txt")
		require.NoError(t, os.WriteFile(path, []byte("hello world\nsecond line"), 0o644))

		f.svc.ProcessFiles([]string{path}, "notes")

		stats := f.waitForState(t, path, store.StateCompleted)
		assert.Equal(t, 2, stats.VectorCount)
		assert.Equal(t, "notes", stats.SourceName)

		results := f.search(t, "hello world")
		require.NotEmpty(t, results)
		top := results[0]
		assert.Equal(t, "hello world", top.Text)
		assert.Equal(t, path, top.Meta.Source)
		assert.Equal(t, string(readers.SourceLocalTextFile), top.Meta.SourceType)
		assert.Equal(t, 0, top.Meta.StartIndex)
		assert.Equal(t, 11, top.Meta.EndIndex)
		assert.NotEmpty(t, top.Meta.ID)

		// Terminal sources drop their progress state.
		_, ok := f.prog.Get(path)
		assert.False(t, ok)
	})

	t.Run("completes an empty file immediately", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, "")
		path := filepath.Join(t.TempDir(), "empty.txt")
		require.NoError(t, os.WriteFile(path, nil, 0o644))

		f.svc.ProcessFiles([]string{path}, "")

		stats, err := f.index.SourceStats(path)
		require.NoError(t, err)
		assert.Equal(t, store.StateCompleted, stats.Status)
		assert.Equal(t, 0, stats.VectorCount)
	})

	t.Run("marks a missing file failed", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, "")
		path := filepath.Join(t.TempDir(), "ghost.txt")

		f.svc.ProcessFiles([]string{path}, "")

		stats, err := f.index.SourceStats(path)
		require.NoError(t, err)
		assert.Equal(t, store.StateFailed, stats.Status)

		_, ok := f.prog.Get(path)
		assert.False(t, ok)
	})

	t.Run("routes audio files through transcription", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, "")
		dir := t.TempDir()
		path := filepath.Join(dir, "talk.mp3")
		require.NoError(t, os.WriteFile(path, []byte("fake audio"), 0o644))

		f.svc.ProcessFiles([]string{path}, "")

		f.waitForState(t, path, store.StateCompleted)

		// User-owned audio is never cleaned up.
		assert.FileExists(t, path)

		results := f.search(t, "mock transcript of talk.mp3")
		require.NotEmpty(t, results)
		top := results[0]
		assert.Equal(t, "mock transcript of talk.mp3", top.Text)
		assert.Equal(t, path, top.Meta.Source)
		assert.Equal(t, string(readers.SourceLocalAudioFile), top.Meta.SourceType)
		assert.FileExists(t, top.Meta.TranscriptionPath)
	})

	t.Run("reingestion clears previous vectors", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, "")
		path := filepath.Join(t.TempDir(), "note.txt")
		require.NoError(t, os.WriteFile(path, []byte("one\ntwo\nthree"), 0o644))

		f.svc.ProcessFiles([]string{path}, "")
		stats := f.waitForState(t, path, store.StateCompleted)
		require.Equal(t, 3, stats.VectorCount)

		require.NoError(t, os.WriteFile(path, []byte("only line"), 0o644))
		f.svc.ProcessFiles([]string{path}, "")

		require.Eventually(t, func() bool {
			s, err := f.index.SourceStats(path)
			return err == nil && s.Status == store.StateCompleted && s.VectorCount == 1
		}, 10*time.Second, 20*time.Millisecond, "reingestion never settled on the new content")
	})
}

func TestProcessURL(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("fake yt-dlp script requires a POSIX shell")
	}
	t.Parallel()

	f := newFixture(t, writeFakeYtDlp(t))
	url := "https://youtube.com/watch?v=ingest1"

	require.NoError(t, f.svc.ProcessURL(url, "videos"))

	stats := f.waitForState(t, url, store.StateCompleted)
	assert.Equal(t, "videos", stats.SourceName)
	assert.Greater(t, stats.VectorCount, 0)

	results := f.search(t, "mock transcript")
	require.NotEmpty(t, results)
	top := results[0]
	assert.Equal(t, url, top.Meta.Source)
	assert.Equal(t, string(readers.SourceYouTubeTranscription), top.Meta.SourceType)
	assert.Equal(t, "Test Video", top.Meta.Title)
	assert.Equal(t, "vid123", top.Meta.VideoID)
	assert.NotEmpty(t, top.Meta.TranscriptionPath)
}

func writeFakeYtDlp(t *testing.T) string {
	t.Helper()

	script := `#!/bin/sh
out=""
prev=""
for a in "$@"; do
  if [ "$prev" = "--output" ]; then out="$a"; fi
  prev="$a"
done
path=$(printf '%s' "$out" | sed 's/%(ext)s/mp3/')
echo "dl:100/1000"
echo "dl:1000/1000"
printf 'fake audio' > "$path"
echo '{"title":"Test Video","id":"vid123","duration":42.5,"uploader":"someone"}'
`
	path := filepath.Join(t.TempDir(), "yt-dlp")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}
