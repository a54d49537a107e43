// Package store persists embedded chunks and answers nearest-neighbor
// queries over them.
//
// Each ingested file or URL becomes a collection keyed by its source path.
// Query embeddings live in a reserved collection that every search excludes.
package store

// UserQuerySource is the reserved collection holding query embeddings.
const UserQuerySource = "user-query"

// State tracks a collection through its ingestion lifecycle.
type State string

const (
	StateNotFound       State = "not_found"
	StateNeedProcessing State = "need_processing"
	StateProcessing     State = "processing"
	StateCompleted      State = "completed"
	StateFailed         State = "failed"
)

// Meta carries a chunk's provenance through the pipeline and into storage.
type Meta struct {
	ID         string `json:"id"`
	Source     string `json:"source"`
	SourceType string `json:"source_type"`
	StartIndex int    `json:"start_index"`
	EndIndex   int    `json:"end_index"`
	Text       string `json:"text,omitempty"`

	// TranscriptionPath points search at the transcript file for audio
	// sources, whose source identifier is a URL or the audio path.
	TranscriptionPath string `json:"transcription_path,omitempty"`

	// YouTube download details.
	Title      string  `json:"title,omitempty"`
	VideoID    string  `json:"video_id,omitempty"`
	Duration   float64 `json:"duration,omitempty"`
	Uploader   string  `json:"uploader,omitempty"`
	TempFolder string  `json:"temp_folder,omitempty"`
}

// Item is one chunk of text moving through the embedding pipeline.
// SourceID groups the chunks of a single ingestion for progress tracking.
type Item struct {
	Text     string
	Meta     Meta
	Vector   []float32
	SourceID string
}

// Result is a stored item annotated with its distance to a query vector.
// Lower distances mean closer matches.
type Result struct {
	Item
	Distance float64
}

// RelevantSource aggregates the match quality of one collection for a query.
type RelevantSource struct {
	Collection  string  `json:"collection"`
	MinDistance float64 `json:"min_distance"`
	AvgDistance float64 `json:"avg_distance"`
	Count       int     `json:"count"`
}

// Stats describes one collection for status reporting.
type Stats struct {
	SourceName  string `json:"source_name"`
	SourcePath  string `json:"source_path"`
	Status      State  `json:"status"`
	VectorCount int    `json:"vector_count"`
	Dimension   int    `json:"dimension"`
}

// DataSourceMap is the collection registry plus vector index. Implementations
// must be safe for concurrent use by the pipeline workers and search.
type DataSourceMap interface {
	// Create registers a collection if it does not already exist.
	// sourceName groups related collections and may be empty.
	Create(source, sourceType, sourceName string, status State) error

	// Delete removes a collection and its vectors, reporting whether it
	// existed.
	Delete(source string) (bool, error)

	// DeleteByName removes every collection registered under sourceName,
	// reporting whether any existed.
	DeleteByName(sourceName string) (bool, error)

	// Exists reports whether the collection is registered.
	Exists(source string) (bool, error)

	// GetByID fetches one stored item by id. An empty source matches any
	// collection. Returns nil when the item is absent.
	GetByID(id, source string) (*Item, error)

	// ListSources returns every registered collection's source path.
	ListSources() ([]string, error)

	// SourcesStats returns stats for every collection keyed by source path.
	SourcesStats() (map[string]Stats, error)

	// SourceStats returns stats for one collection. Missing collections
	// report StateNotFound with zero counts.
	SourceStats(source string) (Stats, error)

	// SourceStatsByName returns stats for the collections registered under
	// sourceName.
	SourceStatsByName(sourceName string) ([]Stats, error)

	// Search returns up to k stored items nearest to queryVec, closest
	// first. The user-query collection is always excluded; a non-empty
	// sources list restricts the search to those collections.
	Search(queryVec []float32, sources []string, k int) ([]Result, error)

	// RelevantSources ranks collections by match quality against queryVec,
	// considering only matches below the distance threshold.
	RelevantSources(queryVec []float32, limit int, threshold float64, sources []string) ([]RelevantSource, error)

	// AddBatch stores items under the source collection, returning the
	// assigned ids. Items carrying a Meta.ID keep it.
	AddBatch(source string, items []Item) ([]string, error)

	// SetState updates a collection's lifecycle state.
	SetState(source string, state State) error

	// DeleteEmbeddings removes vectors without unregistering collections.
	// An empty source wipes every collection's vectors. Returns the number
	// of vectors removed.
	DeleteEmbeddings(source string) (int, error)

	// Close releases the backing resources.
	Close() error
}
