// Package search answers similarity queries against the vector index.
//
// A query is split into lines and each line into chunks, which travel
// through the regular embedding pipeline under the reserved user-query
// collection. Once the vectors land, every query chunk fans out into its
// own index search and the hits come back as extended context windows read
// from the original files.
package search

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/mvp-joe/mcp-brag/internal/apperr"
	"github.com/mvp-joe/mcp-brag/internal/config"
	"github.com/mvp-joe/mcp-brag/internal/pipeline"
	"github.com/mvp-joe/mcp-brag/internal/readers"
	"github.com/mvp-joe/mcp-brag/internal/store"
)

// Result is one search hit with its surrounding context.
type Result struct {
	Text       string  `json:"text"`
	Source     string  `json:"source"`
	SourceType string  `json:"source_type"`
	StartIndex int     `json:"start_index"`
	EndIndex   int     `json:"end_index"`
	Distance   float64 `json:"distance"`
}

// Service runs vector searches. Query embedding reuses the ingestion
// pipeline, so searches share its batching and providers.
type Service struct {
	index store.DataSourceMap
	pipe  *pipeline.Pipeline
	cfg   *config.Config
	log   zerolog.Logger
}

func New(index store.DataSourceMap, pipe *pipeline.Pipeline, cfg *config.Config, log zerolog.Logger) *Service {
	return &Service{
		index: index,
		pipe:  pipe,
		cfg:   cfg,
		log:   log.With().Str("component", "search").Logger(),
	}
}

// Search embeds the query, waits for its vectors and returns extended
// context windows ordered by distance. Pagination slices the accumulated
// results before sorting, so pages follow the per-query-chunk grouping
// rather than the global distance order.
func (s *Service) Search(ctx context.Context, query string, sources []string, limit, offset int) ([]Result, error) {
	ids, err := s.embedQuery(query)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []Result{}, nil
	}
	if err := s.waitForVectors(ctx, ids); err != nil {
		return nil, err
	}

	k := limit + offset
	cache := s.newFileCache()
	perQuery := make([][]Result, len(ids))

	var g errgroup.Group
	for i, id := range ids {
		g.Go(func() error {
			vec, err := s.queryVector(id)
			if err != nil || vec == nil {
				return err
			}
			hits, err := s.index.Search(vec, sources, k)
			if err != nil {
				return fmt.Errorf("vector search failed: %w", err)
			}
			perQuery[i] = s.resultsFromHits(hits, cache)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var results []Result
	for _, part := range perQuery {
		results = append(results, part...)
	}

	results = page(results, offset, limit)
	sort.SliceStable(results, func(i, j int) bool { return results[i].Distance < results[j].Distance })
	return results, nil
}

// MostRelevantSources ranks sources by match quality for the query. Each
// query chunk produces its own ranking and the rankings merge into one
// aggregate weighted by match counts.
func (s *Service) MostRelevantSources(ctx context.Context, query string, sources []string, limit int) ([]store.RelevantSource, error) {
	ids, err := s.embedQuery(query)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []store.RelevantSource{}, nil
	}
	if err := s.waitForVectors(ctx, ids); err != nil {
		return nil, err
	}

	threshold := s.cfg.Float(config.KeyRelevantSourcesThreshold)
	perQuery := make([][]store.RelevantSource, len(ids))

	var g errgroup.Group
	for i, id := range ids {
		g.Go(func() error {
			vec, err := s.queryVector(id)
			if err != nil || vec == nil {
				return err
			}
			relevant, err := s.index.RelevantSources(vec, limit, threshold, sources)
			if err != nil {
				return fmt.Errorf("relevant sources search failed: %w", err)
			}
			perQuery[i] = relevant
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var order []string
	merged := make(map[string]*store.RelevantSource)
	for _, part := range perQuery {
		for _, rs := range part {
			existing, ok := merged[rs.Collection]
			if !ok {
				cp := rs
				merged[rs.Collection] = &cp
				order = append(order, rs.Collection)
				continue
			}
			total := existing.Count + rs.Count
			existing.AvgDistance = (existing.AvgDistance*float64(existing.Count) + rs.AvgDistance*float64(rs.Count)) / float64(total)
			existing.Count = total
			if rs.MinDistance < existing.MinDistance {
				existing.MinDistance = rs.MinDistance
			}
		}
	}

	out := make([]store.RelevantSource, 0, len(order))
	for _, collection := range order {
		out = append(out, *merged[collection])
	}
	return out, nil
}

// embedQuery queues the query's chunks for embedding and returns one id
// per query line. Multi-chunk lines register only their first chunk under
// the line id, so the id always resolves to exactly one stored vector.
func (s *Service) embedQuery(query string) ([]string, error) {
	chunkMax := s.cfg.Int(config.KeySearchChunkCharacterLimit)
	maxLines := s.cfg.Int(config.KeySearchChunksLimit)

	var (
		ids   []string
		items []store.Item
	)
	for _, line := range strings.Split(query, "\n") {
		if len(ids) >= maxLines {
			break
		}
		chunks := cutLine(line, chunkMax)
		if len(chunks) == 0 {
			continue
		}

		queryID := uuid.NewString()
		ids = append(ids, queryID)
		for i, chunk := range chunks {
			id := queryID
			if i > 0 {
				id = uuid.NewString()
			}
			items = append(items, store.Item{
				Text: chunk.Text,
				Meta: store.Meta{
					ID:         id,
					Source:     store.UserQuerySource,
					SourceType: string(readers.SourceUserQuery),
					StartIndex: chunk.StartIndex,
					EndIndex:   chunk.EndIndex,
				},
				SourceID: queryID,
			})
		}
	}
	if len(items) == 0 {
		return nil, nil
	}

	s.log.Info().Int("lines", len(ids)).Int("chunks", len(items)).Msg("embedding user query")
	if err := s.pipe.EmbedderRead().PutMany(items); err != nil {
		return nil, fmt.Errorf("failed to queue query for embedding: %w", err)
	}
	return ids, nil
}

// waitForVectors polls the index until every query id has a stored vector,
// backing off between rounds. The deadline comes from configuration.
func (s *Service) waitForVectors(ctx context.Context, ids []string) error {
	timeout := s.cfg.Duration(config.KeySearchProcessingTimeout)
	deadline := time.Now().Add(timeout)
	sleep := 10 * time.Millisecond

	for {
		ready := true
		for _, id := range ids {
			item, err := s.index.GetByID(id, store.UserQuerySource)
			if err != nil {
				return fmt.Errorf("failed to check query embedding: %w", err)
			}
			if item == nil || len(item.Vector) == 0 {
				ready = false
				break
			}
		}
		if ready {
			return nil
		}
		if time.Now().After(deadline) {
			return apperr.Timeout("timeout waiting for query embeddings after %s", timeout)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}
		sleep = time.Duration(float64(sleep) * 1.2)
		if sleep > 500*time.Millisecond {
			sleep = 500 * time.Millisecond
		}
	}
}

// queryVector loads the stored vector for a query id. A missing vector is
// logged and skipped instead of failing the whole search.
func (s *Service) queryVector(id string) ([]float32, error) {
	item, err := s.index.GetByID(id, store.UserQuerySource)
	if err != nil {
		return nil, fmt.Errorf("failed to load query embedding: %w", err)
	}
	if item == nil || len(item.Vector) == 0 {
		s.log.Warn().Str("query_id", id).Msg("query embedding has no vector")
		return nil, nil
	}
	return item.Vector, nil
}

// resultsFromHits turns raw index hits into extended context windows,
// grouped per source so overlapping hits collapse into one window.
func (s *Service) resultsFromHits(hits []store.Result, cache *fileCache) []Result {
	ext := s.cfg.Int(config.KeySearchContextExtensionChars)

	var order []string
	groups := make(map[string][]store.Result)
	for _, hit := range hits {
		src := hit.Meta.Source
		if _, ok := groups[src]; !ok {
			order = append(order, src)
		}
		groups[src] = append(groups[src], hit)
	}

	var out []Result
	for _, src := range order {
		group := groups[src]
		first := group[0].Meta

		// Audio-backed sources are read through their transcript file.
		path := src
		if first.SourceType == string(readers.SourceYouTubeTranscription) ||
			first.SourceType == string(readers.SourceLocalAudioFile) {
			path = first.TranscriptionPath
		}

		for _, w := range mergeWindows(group, ext) {
			if r, ok := s.readWindow(cache, path, src, first.SourceType, w); ok {
				out = append(out, r)
			}
		}
	}
	return out
}

type window struct {
	start, end int
	distance   float64
}

// mergeWindows extends every hit by ext bytes on both sides and merges
// overlapping windows. A merged window keeps the smallest distance of its
// members.
func mergeWindows(hits []store.Result, ext int) []window {
	ws := make([]window, 0, len(hits))
	for _, h := range hits {
		start := h.Meta.StartIndex - ext
		if start < 0 {
			start = 0
		}
		ws = append(ws, window{start: start, end: h.Meta.EndIndex + ext, distance: h.Distance})
	}
	sort.Slice(ws, func(i, j int) bool {
		if ws[i].start != ws[j].start {
			return ws[i].start < ws[j].start
		}
		return ws[i].end < ws[j].end
	})

	merged := make([]window, 0, len(ws))
	merged = append(merged, ws[0])
	for _, w := range ws[1:] {
		cur := &merged[len(merged)-1]
		if w.start <= cur.end {
			if w.end > cur.end {
				cur.end = w.end
			}
			if w.distance < cur.distance {
				cur.distance = w.distance
			}
			continue
		}
		merged = append(merged, w)
	}
	return merged
}

// readWindow slices the window out of the content behind the source.
// Windows outside the content or whose file cannot be read are dropped.
func (s *Service) readWindow(cache *fileCache, path, source, sourceType string, w window) (Result, bool) {
	content, err := cache.content(path)
	if err != nil {
		s.log.Warn().Err(err).Str("source", source).Str("path", path).
			Msg("failed to read source content for context extension")
		return Result{}, false
	}

	start, end := w.start, w.end
	if end > len(content) {
		end = len(content)
	}
	for start < len(content) && !utf8.RuneStart(content[start]) {
		start++
	}
	for end < len(content) && !utf8.RuneStart(content[end]) {
		end++
	}
	if start >= end {
		return Result{}, false
	}

	return Result{
		Text:       content[start:end],
		Source:     source,
		SourceType: sourceType,
		StartIndex: start,
		EndIndex:   end,
		Distance:   w.distance,
	}, true
}

func (s *Service) newFileCache() *fileCache {
	return newFileCache(s.cfg.Int(config.KeyChunkCharacterLimit), s.log)
}

// fileCache memoizes file contents for the duration of one search, so a
// source hit by several query chunks is read once and re-ingested files
// never serve stale content across searches.
type fileCache struct {
	chunkMax int
	log      zerolog.Logger

	mu       sync.Mutex
	contents map[string]string
}

func newFileCache(chunkMax int, log zerolog.Logger) *fileCache {
	return &fileCache{chunkMax: chunkMax, log: log, contents: make(map[string]string)}
}

func (c *fileCache) content(path string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if text, ok := c.contents[path]; ok {
		return text, nil
	}
	text, err := readers.ForPath(path, c.chunkMax, c.log).Read()
	if err != nil {
		return "", err
	}
	c.contents[path] = text
	return text, nil
}

// page slices results for pagination, clamping out-of-range offsets to an
// empty page.
func page(results []Result, offset, limit int) []Result {
	if offset < 0 {
		offset = 0
	}
	if limit < 0 {
		limit = 0
	}
	if offset >= len(results) {
		return []Result{}
	}
	end := offset + limit
	if end > len(results) {
		end = len(results)
	}
	return results[offset:end]
}

// cutLine splits one query line into chunks of at most max bytes, breaking
// at spaces where possible. Offsets are line-relative and only mirror the
// stored chunk shape.
func cutLine(line string, max int) []readers.Chunk {
	if strings.TrimSpace(line) == "" {
		return nil
	}
	if len(line) <= max {
		return []readers.Chunk{{StartIndex: 0, EndIndex: len(line), Text: strings.TrimSpace(line)}}
	}

	var chunks []readers.Chunk
	pos := 0
	for pos < len(line) {
		end := pos + max
		if end > len(line) {
			end = len(line)
		}
		if end < len(line) {
			if sp := strings.LastIndex(line[pos:end], " "); sp > 0 {
				end = pos + sp
			}
		}
		for end < len(line) && end > pos && !utf8.RuneStart(line[end]) {
			end--
		}
		if end == pos {
			_, size := utf8.DecodeRuneInString(line[pos:])
			end = pos + size
		}
		if text := strings.TrimSpace(line[pos:end]); text != "" {
			chunks = append(chunks, readers.Chunk{StartIndex: pos, EndIndex: end, Text: text})
		}
		pos = end
		for pos < len(line) {
			r, size := utf8.DecodeRuneInString(line[pos:])
			if !unicode.IsSpace(r) {
				break
			}
			pos += size
		}
	}
	return chunks
}
