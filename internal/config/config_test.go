package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/mcp-brag/internal/apperr"
	"github.com/mvp-joe/mcp-brag/internal/logging"
)

func load(t *testing.T) *Config {
	t.Helper()
	c, err := Load(t.TempDir(), "", logging.Nop())
	require.NoError(t, err)
	return c
}

func TestLoadDefaults(t *testing.T) {
	c := load(t)

	assert.Equal(t, 1500, c.Int(KeyChunkCharacterLimit))
	assert.Equal(t, 1000, c.Int(KeySearchChunkCharacterLimit))
	assert.Equal(t, 30, c.Int(KeySearchChunksLimit))
	assert.Equal(t, 10*time.Second, c.Duration(KeySearchProcessingTimeout))
	assert.Equal(t, 5, c.Int(KeySearchResultLimit))
	assert.Equal(t, 384, c.Int(KeyEmbeddingSize))
	assert.Equal(t, 2.0, c.Float(KeyRelevantSourcesThreshold))
	assert.Equal(t, "sqlite", c.Str(KeyVectorStoreBackend))
	assert.True(t, c.Bool(KeyKeywordSearchEnabled))
	assert.Equal(t, []string{".git/**", "node_modules/**"}, c.Strings(KeyIngestionIgnoreGlobs))
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("BRAG_CHUNK_CHARACTER_LIMIT", "2000")
	t.Setenv("BRAG_SEARCH_PROCESSING_TIMEOUT", "30")
	t.Setenv("BRAG_EMBEDDER_READ_SLEEP", "250ms")
	t.Setenv("BRAG_INGESTION_IGNORE_GLOBS", ".git/**, vendor/**")

	c := load(t)

	assert.Equal(t, 2000, c.Int(KeyChunkCharacterLimit))
	// Bare numbers are seconds.
	assert.Equal(t, 30*time.Second, c.Duration(KeySearchProcessingTimeout))
	assert.Equal(t, 250*time.Millisecond, c.Duration(KeyEmbedderReadSleep))
	assert.Equal(t, []string{".git/**", "vendor/**"}, c.Strings(KeyIngestionIgnoreGlobs))
}

func TestMalformedEnvFallsBackToDefault(t *testing.T) {
	t.Setenv("BRAG_SEARCH_CHUNKS_LIMIT", "not-a-number")
	t.Setenv("BRAG_SEARCH_PROCESSING_TIMEOUT", "soon")

	c := load(t)

	assert.Equal(t, 30, c.Int(KeySearchChunksLimit))
	assert.Equal(t, 10*time.Second, c.Duration(KeySearchProcessingTimeout))
}

func TestSetBeatsEnv(t *testing.T) {
	t.Setenv("BRAG_SEARCH_RESULT_LIMIT", "9")

	c := load(t)
	require.Equal(t, 9, c.Int(KeySearchResultLimit))

	entry, err := c.Set(KeySearchResultLimit, "12")
	require.NoError(t, err)
	assert.Equal(t, 12, entry.Value)
	assert.Equal(t, 12, c.Int(KeySearchResultLimit))
}

func TestSetRefusesFrozenAndUnknown(t *testing.T) {
	c := load(t)

	_, err := c.Set(KeyEmbeddingSize, 512)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindBadRequest))

	_, err = c.Set("NO_SUCH_SETTING", 1)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindBadRequest))

	// The frozen value is unchanged.
	assert.Equal(t, 384, c.Int(KeyEmbeddingSize))
}

func TestSetRefusesUncoercibleValue(t *testing.T) {
	c := load(t)

	_, err := c.Set(KeyChunkCharacterLimit, "twelve")
	require.Error(t, err)
	assert.Equal(t, 1500, c.Int(KeyChunkCharacterLimit))
}

func TestConfigFileOverridesDefaults(t *testing.T) {
	appDir := t.TempDir()
	yaml := "chunk_character_limit: 1800\nlog_level: debug\n"
	require.NoError(t, os.WriteFile(filepath.Join(appDir, "config.yaml"), []byte(yaml), 0o644))

	c, err := Load(appDir, "", logging.Nop())
	require.NoError(t, err)

	assert.Equal(t, 1800, c.Int(KeyChunkCharacterLimit))
	assert.Equal(t, "debug", c.Str(KeyLogLevel))
}

func TestAllListsEverySettingWithTags(t *testing.T) {
	c := load(t)

	all := c.All()
	require.NotEmpty(t, all)

	frozen, ok := all[KeyEmbeddingSize]
	require.True(t, ok)
	assert.True(t, frozen.Frozen)
	assert.Equal(t, "int", frozen.Type)

	editable, ok := all[KeySearchResultLimit]
	require.True(t, ok)
	assert.False(t, editable.Frozen)

	// Durations are reported in seconds.
	timeout, ok := all[KeySearchProcessingTimeout]
	require.True(t, ok)
	assert.Equal(t, "duration", timeout.Type)
	assert.Equal(t, 10.0, timeout.Value)
}
