package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Kind tags a setting with its value type. Environment and API values are
// coerced by kind; values that do not coerce fall back to the default.
type Kind int

const (
	KindString Kind = iota
	KindInt
	KindFloat
	KindBool
	KindDuration
	KindStringSlice
	KindStringMap
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindDuration:
		return "duration"
	case KindStringSlice:
		return "string_list"
	case KindStringMap:
		return "string_map"
	default:
		return "unknown"
	}
}

// Setting declares one configuration constant. Frozen settings refuse
// runtime edits through Set.
type Setting struct {
	Key     string // public UPPER_SNAKE name, also the env suffix
	Kind    Kind
	Default any
	Frozen  bool
}

// Setting keys.
const (
	KeyAppDir                      = "APP_DIR"
	KeyHTTPHost                    = "HTTP_HOST"
	KeyHTTPPort                    = "HTTP_PORT"
	KeyLogLevel                    = "LOG_LEVEL"
	KeyEmbeddingSize               = "EMBEDDING_SIZE"
	KeySQLiteDBLocation            = "SQLITE_DB_LOCATION"
	KeyVectorStoreBackend          = "VECTOR_STORE_BACKEND"
	KeyChunkCharacterLimit         = "CHUNK_CHARACTER_LIMIT"
	KeySearchChunkCharacterLimit   = "SEARCH_CHUNK_CHARACTER_LIMIT"
	KeySearchChunksLimit           = "SEARCH_CHUNKS_LIMIT"
	KeySearchProcessingTimeout     = "SEARCH_PROCESSING_TIMEOUT"
	KeySearchContextExtensionChars = "SEARCH_CONTEXT_EXTENSION_CHARACTERS"
	KeySearchResultLimit           = "SEARCH_RESULT_LIMIT"
	KeyDeepSearchResultLimit       = "DEEP_SEARCH_RESULT_LIMIT"
	KeyMaxSourcesInDeepSearch      = "MAX_SOURCES_IN_DEEP_SEARCH"
	KeyRelevantSourcesThreshold    = "RELEVANT_SOURCES_DISTANCE_THRESHOLD"
	KeyIngestionMaxFilePaths       = "INGESTION_PROCESS_MAX_FILE_PATHS"
	KeyIngestionIgnoreGlobs        = "INGESTION_IGNORE_GLOBS"
	KeyBulkQueueMaxSize            = "BULK_QUEUE_MAX_SIZE"
	KeyBulkQueueFullSleepTime      = "BULK_QUEUE_FULL_SLEEP_TIME"
	KeyBulkQueueFullRetryCount     = "BULK_QUEUE_FULL_RETRY_COUNT"
	KeyEmbedderBatchSize           = "EMBEDDER_BATCH_SIZE"
	KeyEmbedderReadSleep           = "EMBEDDER_READ_SLEEP"
	KeyEmbedderIdleTimeout         = "EMBEDDER_IDLE_TIMEOUT"
	KeyStorageBatchSize            = "STORAGE_BATCH_SIZE"
	KeyStorageReadSleep            = "STORAGE_READ_SLEEP"
	KeyTranscriptionIdleTimeout    = "TRANSCRIPTION_IDLE_TIMEOUT"
	KeyDownloadIdleTimeout         = "DOWNLOAD_IDLE_TIMEOUT"
	KeyTempAudioDir                = "TEMP_AUDIO_DIR"
	KeyAudioTranscriptionDir       = "AUDIO_TRANSCRIPTION_DIR"
	KeyEmbedProvider               = "EMBED_PROVIDER"
	KeyEmbedEndpoint               = "EMBED_ENDPOINT"
	KeyEmbedAPIKey                 = "EMBED_API_KEY"
	KeyEmbedModel                  = "EMBED_MODEL"
	KeyEmbedCacheSize              = "EMBED_CACHE_SIZE"
	KeyTranscribeProvider          = "TRANSCRIBE_PROVIDER"
	KeyTranscribeEndpoint          = "TRANSCRIBE_ENDPOINT"
	KeyTranscribeAPIKey            = "TRANSCRIBE_API_KEY"
	KeyTranscribeModel             = "TRANSCRIBE_MODEL"
	KeyYtDlpPath                   = "YT_DLP_PATH"
	KeyKeywordSearchEnabled        = "KEYWORD_SEARCH_ENABLED"
	KeyWatchEnabled                = "WATCH_ENABLED"
	KeyWatchDebounce               = "WATCH_DEBOUNCE"
	KeyMCPInstructions             = "MCP_INSTRUCTIONS"
)

const defaultInstructions = `
This MCP server is called "Brag".
The main tools are ` + "`search`, `most_relevant_files` and `deep_search`" + `.

` + "`search`" + `: It allows you to search for information in data sources to better answer questions that the user prompted
using factual information and avoid hallucinations.

` + "`most_relevant_files`" + `: It allows you to find the most relevant files for a query. This tool should be used to find relevant files and then use the deep_search tool to get more enhanced results.

` + "`deep_search`" + `: It allows you to search for relevant content across the given sources based on a query and get significantly more relevant results. Before using this tool, you should use the most_relevant_files tool to find the most relevant sources.

You should use these tools to get factual information prior to answering the user prompt, if the search results are relevant to the user prompt
and the distance is less than 0.9. The search returns multiple results ranked by distance; the lower the distance, the more relevant the result.

When using search results from this tool, you should cite the search results you used to answer the user prompt.

If the user mentioned "Brag" in the prompt, you HAVE to use some of the tools to answer the user prompt.
`

// settings declares the full registry. Paths under the app dir are derived
// at load time from APP_DIR.
func settings(appDir string) []Setting {
	return []Setting{
		{Key: KeyAppDir, Kind: KindString, Default: appDir, Frozen: true},
		{Key: KeyHTTPHost, Kind: KindString, Default: "127.0.0.1", Frozen: true},
		{Key: KeyHTTPPort, Kind: KindInt, Default: 8000, Frozen: true},
		{Key: KeyLogLevel, Kind: KindString, Default: "info"},
		{Key: KeyEmbeddingSize, Kind: KindInt, Default: 384, Frozen: true},
		{Key: KeySQLiteDBLocation, Kind: KindString, Default: appDir + "/data/sqlite_db_files/embeddings.db", Frozen: true},
		{Key: KeyVectorStoreBackend, Kind: KindString, Default: "sqlite", Frozen: true},
		{Key: KeyChunkCharacterLimit, Kind: KindInt, Default: 1500},
		{Key: KeySearchChunkCharacterLimit, Kind: KindInt, Default: 1000},
		{Key: KeySearchChunksLimit, Kind: KindInt, Default: 30},
		{Key: KeySearchProcessingTimeout, Kind: KindDuration, Default: 10 * time.Second},
		{Key: KeySearchContextExtensionChars, Kind: KindInt, Default: 1000},
		{Key: KeySearchResultLimit, Kind: KindInt, Default: 5},
		{Key: KeyDeepSearchResultLimit, Kind: KindInt, Default: 30},
		{Key: KeyMaxSourcesInDeepSearch, Kind: KindInt, Default: 3},
		{Key: KeyRelevantSourcesThreshold, Kind: KindFloat, Default: 2.0},
		{Key: KeyIngestionMaxFilePaths, Kind: KindInt, Default: 100},
		{Key: KeyIngestionIgnoreGlobs, Kind: KindStringSlice, Default: []string{".git/**", "node_modules/**"}},
		{Key: KeyBulkQueueMaxSize, Kind: KindInt, Default: 100000, Frozen: true},
		{Key: KeyBulkQueueFullSleepTime, Kind: KindDuration, Default: 100 * time.Millisecond, Frozen: true},
		{Key: KeyBulkQueueFullRetryCount, Kind: KindInt, Default: 100, Frozen: true},
		{Key: KeyEmbedderBatchSize, Kind: KindInt, Default: 100, Frozen: true},
		{Key: KeyEmbedderReadSleep, Kind: KindDuration, Default: 50 * time.Millisecond, Frozen: true},
		{Key: KeyEmbedderIdleTimeout, Kind: KindDuration, Default: 10 * time.Second, Frozen: true},
		{Key: KeyStorageBatchSize, Kind: KindInt, Default: 1000, Frozen: true},
		{Key: KeyStorageReadSleep, Kind: KindDuration, Default: time.Second, Frozen: true},
		{Key: KeyTranscriptionIdleTimeout, Kind: KindDuration, Default: 10 * time.Second, Frozen: true},
		{Key: KeyDownloadIdleTimeout, Kind: KindDuration, Default: 300 * time.Second, Frozen: true},
		{Key: KeyTempAudioDir, Kind: KindString, Default: appDir + "/temp_audio", Frozen: true},
		{Key: KeyAudioTranscriptionDir, Kind: KindString, Default: appDir + "/audio_transcriptions", Frozen: true},
		{Key: KeyEmbedProvider, Kind: KindString, Default: "openai"},
		{Key: KeyEmbedEndpoint, Kind: KindString, Default: "http://127.0.0.1:8080/v1"},
		{Key: KeyEmbedAPIKey, Kind: KindString, Default: ""},
		{Key: KeyEmbedModel, Kind: KindString, Default: "sentence-transformers/all-MiniLM-L6-v2"},
		{Key: KeyEmbedCacheSize, Kind: KindInt, Default: 4096, Frozen: true},
		{Key: KeyTranscribeProvider, Kind: KindString, Default: "openai"},
		{Key: KeyTranscribeEndpoint, Kind: KindString, Default: "http://127.0.0.1:8080/v1"},
		{Key: KeyTranscribeAPIKey, Kind: KindString, Default: ""},
		{Key: KeyTranscribeModel, Kind: KindString, Default: "whisper-1"},
		{Key: KeyYtDlpPath, Kind: KindString, Default: "yt-dlp"},
		{Key: KeyKeywordSearchEnabled, Kind: KindBool, Default: true, Frozen: true},
		{Key: KeyWatchEnabled, Kind: KindBool, Default: false, Frozen: true},
		{Key: KeyWatchDebounce, Kind: KindDuration, Default: 500 * time.Millisecond, Frozen: true},
		{Key: KeyMCPInstructions, Kind: KindString, Default: defaultInstructions, Frozen: true},
	}
}

// coerce converts value to the setting's kind. Strings are parsed; numeric
// durations are treated as seconds, matching the env convention.
func coerce(kind Kind, value any) (any, error) {
	switch kind {
	case KindString:
		switch v := value.(type) {
		case string:
			return v, nil
		case fmt.Stringer:
			return v.String(), nil
		default:
			return fmt.Sprintf("%v", v), nil
		}
	case KindInt:
		switch v := value.(type) {
		case int:
			return v, nil
		case int64:
			return int(v), nil
		case float64:
			return int(v), nil
		case string:
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return nil, fmt.Errorf("not an int: %q", v)
			}
			return n, nil
		}
	case KindFloat:
		switch v := value.(type) {
		case float64:
			return v, nil
		case int:
			return float64(v), nil
		case int64:
			return float64(v), nil
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return nil, fmt.Errorf("not a float: %q", v)
			}
			return f, nil
		}
	case KindBool:
		switch v := value.(type) {
		case bool:
			return v, nil
		case string:
			switch strings.ToLower(strings.TrimSpace(v)) {
			case "true", "1", "yes", "on":
				return true, nil
			case "false", "0", "no", "off", "":
				return false, nil
			}
			return nil, fmt.Errorf("not a bool: %q", v)
		case int:
			return v != 0, nil
		case float64:
			return v != 0, nil
		}
	case KindDuration:
		switch v := value.(type) {
		case time.Duration:
			return v, nil
		case int:
			return time.Duration(v) * time.Second, nil
		case int64:
			return time.Duration(v) * time.Second, nil
		case float64:
			return time.Duration(v * float64(time.Second)), nil
		case string:
			s := strings.TrimSpace(v)
			if d, err := time.ParseDuration(s); err == nil {
				return d, nil
			}
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return time.Duration(f * float64(time.Second)), nil
			}
			return nil, fmt.Errorf("not a duration: %q", v)
		}
	case KindStringSlice:
		switch v := value.(type) {
		case []string:
			return v, nil
		case []any:
			out := make([]string, 0, len(v))
			for _, item := range v {
				out = append(out, fmt.Sprintf("%v", item))
			}
			return out, nil
		case string:
			s := strings.TrimSpace(v)
			if s == "" {
				return []string{}, nil
			}
			parts := strings.Split(s, ",")
			out := make([]string, 0, len(parts))
			for _, p := range parts {
				out = append(out, strings.TrimSpace(p))
			}
			return out, nil
		}
	case KindStringMap:
		switch v := value.(type) {
		case map[string]string:
			return v, nil
		case map[string]any:
			out := make(map[string]string, len(v))
			for k, item := range v {
				out[k] = fmt.Sprintf("%v", item)
			}
			return out, nil
		case string:
			var out map[string]string
			if err := json.Unmarshal([]byte(v), &out); err != nil {
				return nil, fmt.Errorf("not a JSON object: %q", v)
			}
			return out, nil
		}
	}
	return nil, fmt.Errorf("cannot coerce %T to %s", value, kind)
}
