package search

import (
	"fmt"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/rs/zerolog"

	"github.com/mvp-joe/mcp-brag/internal/store"
)

// Keyword is an in-memory full-text index over stored chunks, complementing
// the vector index with exact term matching. The storage worker mirrors
// every stored chunk into it; deletions follow source deletion.
type Keyword struct {
	log zerolog.Logger

	mu  sync.RWMutex // protects idx during batches and reset
	idx bleve.Index
}

// KeywordHit is one full-text match.
type KeywordHit struct {
	Text   string  `json:"text"`
	Source string  `json:"source"`
	Score  float64 `json:"score"`
}

func NewKeyword(log zerolog.Logger) (*Keyword, error) {
	idx, err := bleve.NewMemOnly(keywordMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create keyword index: %w", err)
	}
	return &Keyword{
		idx: idx,
		log: log.With().Str("component", "keyword").Logger(),
	}, nil
}

func keywordMapping() *mapping.IndexMappingImpl {
	// Chunk text, the search target. Term vectors enable phrase queries.
	textMapping := bleve.NewTextFieldMapping()
	textMapping.Analyzer = "standard"
	textMapping.Store = true
	textMapping.Index = true
	textMapping.IncludeTermVectors = true

	// Source path, exact-match only. Indexed so deletion can find a
	// source's chunks.
	sourceMapping := bleve.NewTextFieldMapping()
	sourceMapping.Analyzer = "keyword"
	sourceMapping.Store = true
	sourceMapping.Index = true

	sourceTypeMapping := bleve.NewTextFieldMapping()
	sourceTypeMapping.Analyzer = "keyword"
	sourceTypeMapping.Store = true
	sourceTypeMapping.Index = true

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("text", textMapping)
	docMapping.AddFieldMappingsAt("source", sourceMapping)
	docMapping.AddFieldMappingsAt("source_type", sourceTypeMapping)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = docMapping
	return indexMapping
}

const keywordBatchSize = 1000

// IndexBatch mirrors stored chunks into the index. This is the pipeline's
// chunk indexer hook, so it runs on the storage worker.
func (k *Keyword) IndexBatch(items []store.Item) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	batch := k.idx.NewBatch()
	for _, item := range items {
		doc := map[string]interface{}{
			"text":        item.Text,
			"source":      item.Meta.Source,
			"source_type": item.Meta.SourceType,
		}
		if err := batch.Index(item.Meta.ID, doc); err != nil {
			return fmt.Errorf("failed to add chunk %s to batch: %w", item.Meta.ID, err)
		}
		if batch.Size() >= keywordBatchSize {
			if err := k.idx.Batch(batch); err != nil {
				return fmt.Errorf("failed to execute batch: %w", err)
			}
			batch = k.idx.NewBatch()
		}
	}
	if batch.Size() > 0 {
		if err := k.idx.Batch(batch); err != nil {
			return fmt.Errorf("failed to execute final batch: %w", err)
		}
	}
	return nil
}

// Search runs a bleve query-string search and returns scored hits. The
// query supports field scoping, boolean operators and phrase syntax.
func (k *Keyword) Search(queryStr string, limit int) ([]KeywordHit, error) {
	if limit <= 0 {
		limit = 10
	}

	req := bleve.NewSearchRequestOptions(bleve.NewQueryStringQuery(queryStr), limit, 0, false)
	req.Fields = []string{"text", "source"}

	k.mu.RLock()
	defer k.mu.RUnlock()
	res, err := k.idx.Search(req)
	if err != nil {
		return nil, fmt.Errorf("keyword search failed: %w", err)
	}

	hits := make([]KeywordHit, 0, len(res.Hits))
	for _, hit := range res.Hits {
		text, _ := hit.Fields["text"].(string)
		source, _ := hit.Fields["source"].(string)
		hits = append(hits, KeywordHit{Text: text, Source: source, Score: hit.Score})
	}
	return hits, nil
}

// DeleteSource removes every chunk of the source from the index.
func (k *Keyword) DeleteSource(source string) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	for {
		q := bleve.NewTermQuery(source)
		q.SetField("source")
		req := bleve.NewSearchRequestOptions(q, keywordBatchSize, 0, false)

		res, err := k.idx.Search(req)
		if err != nil {
			return fmt.Errorf("failed to find chunks of %s: %w", source, err)
		}
		if len(res.Hits) == 0 {
			return nil
		}

		batch := k.idx.NewBatch()
		for _, hit := range res.Hits {
			batch.Delete(hit.ID)
		}
		if err := k.idx.Batch(batch); err != nil {
			return fmt.Errorf("failed to delete chunks of %s: %w", source, err)
		}
	}
}

// Reset drops every indexed chunk, used when all vectors are cleared.
func (k *Keyword) Reset() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if err := k.idx.Close(); err != nil {
		return fmt.Errorf("failed to close keyword index: %w", err)
	}
	idx, err := bleve.NewMemOnly(keywordMapping())
	if err != nil {
		return fmt.Errorf("failed to recreate keyword index: %w", err)
	}
	k.idx = idx
	return nil
}

// DocCount reports the number of indexed chunks.
func (k *Keyword) DocCount() (uint64, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.idx.DocCount()
}

func (k *Keyword) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.idx.Close()
}
