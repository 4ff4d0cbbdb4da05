// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package store persists source records returned by live searches in SQLite
// so that later sessions can fall back to them when the search provider is
// unavailable or rate limited. Only provider responses are stored; sessions
// themselves stay in memory.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/deep-research/pkg/types"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// candidateLimit bounds how many rows a term lookup scans before ranking.
const candidateLimit = 200

// Store manages the source cache database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the cache database at path, creating parent
// directories as needed. Use MemoryPath for a throwaway cache.
func Open(path string) (*Store, error) {
	dsn := MemoryPath
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
		dsn = path + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One connection keeps an in-memory database alive and serialises writers.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS sources (
			id TEXT PRIMARY KEY,
			url TEXT NOT NULL,
			title TEXT,
			snippet TEXT,
			quality TEXT NOT NULL,
			provider TEXT,
			score REAL,
			published_date TEXT,
			retrieved_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS query_results (
			query TEXT NOT NULL,
			source_id TEXT NOT NULL REFERENCES sources(id),
			position INTEGER NOT NULL,
			PRIMARY KEY (query, source_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_query_results_query ON query_results(query)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Save records the results of a live query. Existing sources are updated in
// place; the query's previous result list is replaced.
func (s *Store) Save(ctx context.Context, query string, records []types.SourceRecord) error {
	if len(records) == 0 {
		return nil
	}
	key := NormalizeQuery(query)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM query_results WHERE query = ?`, key); err != nil {
		return fmt.Errorf("clearing query results: %w", err)
	}

	for i, r := range records {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO sources (id, url, title, snippet, quality, provider, score, published_date, retrieved_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET
				title = excluded.title,
				snippet = excluded.snippet,
				quality = excluded.quality,
				provider = excluded.provider,
				score = excluded.score,
				published_date = excluded.published_date,
				retrieved_at = excluded.retrieved_at`,
			r.ID, r.URL, r.Title, r.Snippet, string(r.Quality), r.Provider, r.Score, r.PublishedDate,
			r.RetrievedAt.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return fmt.Errorf("upserting source %s: %w", r.ID, err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO query_results (query, source_id, position) VALUES (?, ?, ?)`,
			key, r.ID, i,
		); err != nil {
			return fmt.Errorf("linking source %s: %w", r.ID, err)
		}
	}

	return tx.Commit()
}

// Lookup returns cached sources for query, at most limit. Sources saved for
// the same normalized query come first in their original order; otherwise
// sources are ranked by how many query terms their title and snippet
// contain, most recent first on ties.
func (s *Store) Lookup(ctx context.Context, query string, limit int) ([]types.SourceRecord, error) {
	if limit <= 0 {
		limit = 5
	}

	exact, err := s.queryRecords(ctx,
		`SELECT s.id, s.url, s.title, s.snippet, s.quality, s.provider, s.score, s.published_date, s.retrieved_at
		 FROM query_results q JOIN sources s ON s.id = q.source_id
		 WHERE q.query = ? ORDER BY q.position LIMIT ?`,
		NormalizeQuery(query), limit)
	if err != nil {
		return nil, err
	}
	if len(exact) > 0 {
		return exact, nil
	}

	terms := Terms(query)
	if len(terms) == 0 {
		return nil, nil
	}

	var (
		clauses []string
		args    []any
	)
	for _, term := range terms {
		clauses = append(clauses, `(lower(title) LIKE ? OR lower(snippet) LIKE ?)`)
		pattern := "%" + term + "%"
		args = append(args, pattern, pattern)
	}
	args = append(args, candidateLimit)

	candidates, err := s.queryRecords(ctx,
		`SELECT id, url, title, snippet, quality, provider, score, published_date, retrieved_at
		 FROM sources WHERE `+strings.Join(clauses, " OR ")+`
		 ORDER BY retrieved_at DESC LIMIT ?`,
		args...)
	if err != nil {
		return nil, err
	}

	hits := make(map[string]int, len(candidates))
	for _, c := range candidates {
		text := strings.ToLower(c.Title + " " + c.Snippet)
		for _, term := range terms {
			if strings.Contains(text, term) {
				hits[c.ID]++
			}
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return hits[candidates[i].ID] > hits[candidates[j].ID]
	})

	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

// Count returns the number of cached sources.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM sources`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting sources: %w", err)
	}
	return n, nil
}

func (s *Store) queryRecords(ctx context.Context, query string, args ...any) ([]types.SourceRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying sources: %w", err)
	}
	defer rows.Close()

	var records []types.SourceRecord
	for rows.Next() {
		var (
			r                                   types.SourceRecord
			title, snippet, provider, published sql.NullString
			score                               sql.NullFloat64
			quality, retrieved                  string
		)
		if err := rows.Scan(&r.ID, &r.URL, &title, &snippet, &quality, &provider, &score, &published, &retrieved); err != nil {
			return nil, fmt.Errorf("scanning source: %w", err)
		}
		r.Title = title.String
		r.Snippet = snippet.String
		r.Provider = provider.String
		r.Score = score.Float64
		r.PublishedDate = published.String
		r.Quality = types.Quality(quality)
		r.Type = types.SourceTypeForURL(r.URL)
		if t, err := time.Parse(time.RFC3339Nano, retrieved); err == nil {
			r.RetrievedAt = t
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// stopwords are dropped from lookup terms.
var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "what": true, "how": true,
	"are": true, "was": true, "were": true, "does": true, "why": true, "who": true,
	"which": true, "about": true, "from": true, "that": true, "this": true, "into": true,
	"between": true, "versus": true, "vs": true, "is": true, "of": true, "in": true,
}

// Terms splits a query into lowercase lookup terms of at least three letters,
// dropping stopwords and duplicates.
func Terms(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r > 127)
	})
	seen := make(map[string]bool)
	var terms []string
	for _, f := range fields {
		if len([]rune(f)) < 3 || stopwords[f] || seen[f] {
			continue
		}
		seen[f] = true
		terms = append(terms, f)
	}
	return terms
}

// NormalizeQuery lowercases a query and collapses whitespace.
func NormalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}
