package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// relevantSourcesK is the KNN probe depth when ranking collections.
// Matches deeper than this never influence the ranking.
const relevantSourcesK = 4096

var vecOnce sync.Once

// SQLiteMap stores collections and vectors in a single SQLite database,
// using sqlite-vec's vec0 virtual table for nearest-neighbor queries.
//
// The vec0 table partitions rows by collection so that filtered searches
// only scan the collections they target. Chunk text and metadata live in
// auxiliary columns next to the vector, so search results need no join.
type SQLiteMap struct {
	db  *sql.DB
	dim int
	log zerolog.Logger
}

var _ DataSourceMap = (*SQLiteMap)(nil)

// OpenSQLite opens or creates the vector database at path. Vectors must
// have exactly dim dimensions. The sqlite-vec extension is registered once
// per process and applies to all future connections.
func OpenSQLite(path string, dim int, log zerolog.Logger) (*SQLiteMap, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("invalid embedding dimension %d", dim)
	}
	vecOnce.Do(sqlite_vec.Auto)

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps the storage worker and concurrent searches
	// from tripping over SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	m := &SQLiteMap{db: db, dim: dim, log: log}
	if err := m.init(); err != nil {
		db.Close()
		return nil, err
	}

	log.Debug().Str("path", path).Int("dimension", dim).Msg("vector database ready")
	return m, nil
}

func (m *SQLiteMap) init() error {
	if _, err := m.db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("failed to enable WAL: %w", err)
	}

	if _, err := m.db.Exec(`
		CREATE TABLE IF NOT EXISTS collections (
			source      TEXT PRIMARY KEY,
			id          TEXT NOT NULL,
			source_type TEXT NOT NULL,
			source_name TEXT NOT NULL DEFAULT '',
			status      TEXT NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("failed to create collections table: %w", err)
	}

	createVec := fmt.Sprintf(`
		CREATE VIRTUAL TABLE IF NOT EXISTS embeddings USING vec0(
			id TEXT PRIMARY KEY,
			collection TEXT PARTITION KEY,
			+text TEXT,
			+metadata TEXT,
			embedding float[%d]
		)
	`, m.dim)
	if _, err := m.db.Exec(createVec); err != nil {
		return fmt.Errorf("failed to create vector table: %w", err)
	}

	return nil
}

// placeholders returns n comma-joined SQL parameter markers for IN clauses.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func (m *SQLiteMap) Create(source, sourceType, sourceName string, status State) error {
	_, err := m.db.Exec(
		"INSERT OR IGNORE INTO collections (source, id, source_type, source_name, status) VALUES (?, ?, ?, ?, ?)",
		source, uuid.New().String(), sourceType, sourceName, string(status),
	)
	if err != nil {
		return fmt.Errorf("failed to create collection %s: %w", source, err)
	}
	return nil
}

func (m *SQLiteMap) Delete(source string) (bool, error) {
	tx, err := m.db.Begin()
	if err != nil {
		return false, fmt.Errorf("failed to begin delete: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec("DELETE FROM collections WHERE source = ?", source)
	if err != nil {
		return false, fmt.Errorf("failed to delete collection %s: %w", source, err)
	}
	if _, err := tx.Exec("DELETE FROM embeddings WHERE collection = ?", source); err != nil {
		return false, fmt.Errorf("failed to delete vectors for %s: %w", source, err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit delete: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read delete result: %w", err)
	}
	return n > 0, nil
}

func (m *SQLiteMap) DeleteByName(sourceName string) (bool, error) {
	rows, err := m.db.Query("SELECT source FROM collections WHERE source_name = ?", sourceName)
	if err != nil {
		return false, fmt.Errorf("failed to list collections named %s: %w", sourceName, err)
	}
	sources, err := scanStrings(rows)
	if err != nil {
		return false, err
	}
	if len(sources) == 0 {
		return false, nil
	}

	tx, err := m.db.Begin()
	if err != nil {
		return false, fmt.Errorf("failed to begin delete: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM collections WHERE source_name = ?", sourceName); err != nil {
		return false, fmt.Errorf("failed to delete collections named %s: %w", sourceName, err)
	}
	args := make([]any, len(sources))
	for i, src := range sources {
		args[i] = src
	}
	delVec := fmt.Sprintf("DELETE FROM embeddings WHERE collection IN (%s)", placeholders(len(sources)))
	if _, err := tx.Exec(delVec, args...); err != nil {
		return false, fmt.Errorf("failed to delete vectors named %s: %w", sourceName, err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit delete: %w", err)
	}
	return true, nil
}

func (m *SQLiteMap) Exists(source string) (bool, error) {
	var one int
	err := m.db.QueryRow("SELECT 1 FROM collections WHERE source = ?", source).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check collection %s: %w", source, err)
	}
	return true, nil
}

// GetByID resolves the item through a vec0 point query on the primary key;
// the collection filter is applied afterwards.
func (m *SQLiteMap) GetByID(id, source string) (*Item, error) {
	var collection, text, metaJSON, vecJSON string
	err := m.db.QueryRow(
		"SELECT collection, text, metadata, vec_to_json(embedding) FROM embeddings WHERE id = ?",
		id,
	).Scan(&collection, &text, &metaJSON, &vecJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch embedding %s: %w", id, err)
	}
	if source != "" && collection != source {
		return nil, nil
	}

	var meta Meta
	if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
		return nil, fmt.Errorf("failed to decode metadata for %s: %w", id, err)
	}
	var vec []float32
	if err := json.Unmarshal([]byte(vecJSON), &vec); err != nil {
		return nil, fmt.Errorf("failed to decode embedding for %s: %w", id, err)
	}
	return &Item{Text: text, Meta: meta, Vector: vec}, nil
}

func (m *SQLiteMap) ListSources() ([]string, error) {
	rows, err := m.db.Query("SELECT source FROM collections ORDER BY source")
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	return scanStrings(rows)
}

func (m *SQLiteMap) SourcesStats() (map[string]Stats, error) {
	counts := make(map[string]int)
	rows, err := m.db.Query("SELECT collection, COUNT(*) FROM embeddings GROUP BY collection")
	if err != nil {
		return nil, fmt.Errorf("failed to count vectors: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var collection string
		var count int
		if err := rows.Scan(&collection, &count); err != nil {
			return nil, fmt.Errorf("failed to scan vector count: %w", err)
		}
		counts[collection] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating vector counts: %w", err)
	}

	stats := make(map[string]Stats)
	crows, err := m.db.Query("SELECT source, source_name, status FROM collections")
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	defer crows.Close()
	for crows.Next() {
		var source, name, status string
		if err := crows.Scan(&source, &name, &status); err != nil {
			return nil, fmt.Errorf("failed to scan collection: %w", err)
		}
		stats[source] = Stats{
			SourceName:  name,
			SourcePath:  source,
			Status:      State(status),
			VectorCount: counts[source],
			Dimension:   m.dim,
		}
	}
	if err := crows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating collections: %w", err)
	}
	return stats, nil
}

func (m *SQLiteMap) SourceStats(source string) (Stats, error) {
	var name, status string
	err := m.db.QueryRow("SELECT source_name, status FROM collections WHERE source = ?", source).Scan(&name, &status)
	if err == sql.ErrNoRows {
		return Stats{SourcePath: source, Status: StateNotFound}, nil
	}
	if err != nil {
		return Stats{}, fmt.Errorf("failed to fetch collection %s: %w", source, err)
	}

	var count int
	if err := m.db.QueryRow("SELECT COUNT(*) FROM embeddings WHERE collection = ?", source).Scan(&count); err != nil {
		return Stats{}, fmt.Errorf("failed to count vectors for %s: %w", source, err)
	}
	return Stats{
		SourceName:  name,
		SourcePath:  source,
		Status:      State(status),
		VectorCount: count,
		Dimension:   m.dim,
	}, nil
}

func (m *SQLiteMap) SourceStatsByName(sourceName string) ([]Stats, error) {
	rows, err := m.db.Query("SELECT source FROM collections WHERE source_name = ? ORDER BY source", sourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to list collections named %s: %w", sourceName, err)
	}
	sources, err := scanStrings(rows)
	if err != nil {
		return nil, err
	}

	stats := make([]Stats, 0, len(sources))
	for _, src := range sources {
		s, err := m.SourceStats(src)
		if err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}
	return stats, nil
}

func (m *SQLiteMap) Search(queryVec []float32, sources []string, k int) ([]Result, error) {
	if k <= 0 {
		return nil, nil
	}
	targets, err := m.searchTargets(sources)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, nil
	}

	queryBytes, err := sqlite_vec.SerializeFloat32(queryVec)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize query embedding: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT id, collection, text, metadata, distance
		FROM embeddings
		WHERE embedding MATCH ?
		  AND k = ?
		  AND collection IN (%s)
		ORDER BY distance
	`, placeholders(len(targets)))

	args := make([]any, 0, len(targets)+2)
	args = append(args, queryBytes, k)
	for _, src := range targets {
		args = append(args, src)
	}

	rows, err := m.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query vector index: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var (
			id, collection, text, metaJSON string
			distance                       float64
		)
		if err := rows.Scan(&id, &collection, &text, &metaJSON, &distance); err != nil {
			return nil, fmt.Errorf("failed to scan vector result: %w", err)
		}
		var meta Meta
		if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
			return nil, fmt.Errorf("failed to decode metadata for %s: %w", id, err)
		}
		results = append(results, Result{
			Item:     Item{Text: text, Meta: meta},
			Distance: distance,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating vector results: %w", err)
	}
	return results, nil
}

func (m *SQLiteMap) RelevantSources(queryVec []float32, limit int, threshold float64, sources []string) ([]RelevantSource, error) {
	targets, err := m.searchTargets(sources)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, nil
	}

	queryBytes, err := sqlite_vec.SerializeFloat32(queryVec)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize query embedding: %w", err)
	}

	// KNN probes cannot filter on distance, so the threshold is applied
	// over the materialized matches.
	query := fmt.Sprintf(`
		WITH matches AS (
			SELECT collection, distance
			FROM embeddings
			WHERE embedding MATCH ?
			  AND k = ?
			  AND collection IN (%s)
		)
		SELECT collection, MIN(distance), AVG(distance), COUNT(*)
		FROM matches
		WHERE distance < ?
		GROUP BY collection
		ORDER BY MIN(distance)
		LIMIT ?
	`, placeholders(len(targets)))

	args := make([]any, 0, len(targets)+4)
	args = append(args, queryBytes, relevantSourcesK)
	for _, src := range targets {
		args = append(args, src)
	}
	args = append(args, threshold, limit)

	rows, err := m.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to rank collections: %w", err)
	}
	defer rows.Close()

	var relevant []RelevantSource
	for rows.Next() {
		var r RelevantSource
		if err := rows.Scan(&r.Collection, &r.MinDistance, &r.AvgDistance, &r.Count); err != nil {
			return nil, fmt.Errorf("failed to scan collection rank: %w", err)
		}
		relevant = append(relevant, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating collection ranks: %w", err)
	}
	return relevant, nil
}

// searchTargets resolves the collections a query may touch. The user-query
// collection never participates, even when asked for explicitly.
func (m *SQLiteMap) searchTargets(sources []string) ([]string, error) {
	if len(sources) == 0 {
		all, err := m.ListSources()
		if err != nil {
			return nil, err
		}
		sources = all
	}
	targets := make([]string, 0, len(sources))
	for _, src := range sources {
		if src != UserQuerySource {
			targets = append(targets, src)
		}
	}
	return targets, nil
}

func (m *SQLiteMap) AddBatch(source string, items []Item) ([]string, error) {
	if len(items) == 0 {
		return nil, nil
	}

	tx, err := m.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin insert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare("INSERT INTO embeddings (id, collection, text, metadata, embedding) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return nil, fmt.Errorf("failed to prepare insert statement: %w", err)
	}
	defer stmt.Close()

	ids := make([]string, 0, len(items))
	for _, item := range items {
		meta := item.Meta
		if meta.ID == "" {
			meta.ID = uuid.New().String()
		}
		metaJSON, err := json.Marshal(meta)
		if err != nil {
			return nil, fmt.Errorf("failed to encode metadata for %s: %w", meta.ID, err)
		}
		embBytes, err := sqlite_vec.SerializeFloat32(item.Vector)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize embedding for %s: %w", meta.ID, err)
		}
		if _, err := stmt.Exec(meta.ID, source, item.Text, string(metaJSON), embBytes); err != nil {
			return nil, fmt.Errorf("failed to insert embedding %s: %w", meta.ID, err)
		}
		ids = append(ids, meta.ID)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit insert: %w", err)
	}
	return ids, nil
}

func (m *SQLiteMap) SetState(source string, state State) error {
	if _, err := m.db.Exec("UPDATE collections SET status = ? WHERE source = ?", string(state), source); err != nil {
		return fmt.Errorf("failed to update state for %s: %w", source, err)
	}
	return nil
}

func (m *SQLiteMap) DeleteEmbeddings(source string) (int, error) {
	tx, err := m.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin delete: %w", err)
	}
	defer tx.Rollback()

	countQ := "SELECT COUNT(*) FROM embeddings"
	delQ := "DELETE FROM embeddings"
	var args []any
	if source != "" {
		countQ += " WHERE collection = ?"
		delQ += " WHERE collection = ?"
		args = append(args, source)
	}

	var count int
	if err := tx.QueryRow(countQ, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count embeddings: %w", err)
	}
	if _, err := tx.Exec(delQ, args...); err != nil {
		return 0, fmt.Errorf("failed to delete embeddings: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit delete: %w", err)
	}
	return count, nil
}

func (m *SQLiteMap) Close() error {
	return m.db.Close()
}

func scanStrings(rows *sql.Rows) ([]string, error) {
	defer rows.Close()
	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return values, nil
}
