// Package store writes extracted records into PostgreSQL alongside (or
// instead of) the line output.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	charmlog "github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"patent-biblio/internal/config"
	"patent-biblio/internal/record"
)

// Sink upserts one row per document, keyed by its source position so that
// reprocessing an archive replaces rather than duplicates rows.
type Sink struct {
	db     *sql.DB
	table  string
	runID  uuid.UUID
	log    *charmlog.Logger
	insert string

	inserted atomic.Int64
	mu       sync.Mutex
	failures map[string]int64
}

// Open connects with lib/pq, checks the connection and bootstraps the table.
func Open(ctx context.Context, cfg config.DatabaseConfig, runID uuid.UUID, lg *charmlog.Logger) (*Sink, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)

	s := New(db, cfg.Table, runID, lg)
	if err := s.EnsureTable(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Check connects and pings without touching the schema.
func Check(ctx context.Context, cfg config.DatabaseConfig) error {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}

// New wraps an open database handle.
func New(db *sql.DB, table string, runID uuid.UUID, lg *charmlog.Logger) *Sink {
	t := pq.QuoteIdentifier(table)
	return &Sink{
		db:       db,
		table:    table,
		runID:    runID,
		log:      lg,
		failures: make(map[string]int64),
		insert: `INSERT INTO ` + t + ` (
			source_archive, source_entry, segment_index, format,
			doc_id, doc_date, raw_date, title, abstract_text,
			inventors, inventor_countries, assignees, assignee_countries,
			ipc, uspc, fields, run_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (source_archive, source_entry, segment_index) DO UPDATE SET
			format = EXCLUDED.format,
			doc_id = EXCLUDED.doc_id,
			doc_date = EXCLUDED.doc_date,
			raw_date = EXCLUDED.raw_date,
			title = EXCLUDED.title,
			abstract_text = EXCLUDED.abstract_text,
			inventors = EXCLUDED.inventors,
			inventor_countries = EXCLUDED.inventor_countries,
			assignees = EXCLUDED.assignees,
			assignee_countries = EXCLUDED.assignee_countries,
			ipc = EXCLUDED.ipc,
			uspc = EXCLUDED.uspc,
			fields = EXCLUDED.fields,
			run_id = EXCLUDED.run_id`,
	}
}

// EnsureTable creates the record table and its indexes when missing.
func (s *Sink) EnsureTable(ctx context.Context) error {
	t := pq.QuoteIdentifier(s.table)
	query := `
	CREATE TABLE IF NOT EXISTS ` + t + ` (
		id BIGSERIAL PRIMARY KEY,
		source_archive TEXT NOT NULL,
		source_entry TEXT NOT NULL,
		segment_index INTEGER NOT NULL,
		format VARCHAR(16) NOT NULL,
		doc_id VARCHAR(32),
		doc_date DATE,
		raw_date VARCHAR(16),
		title TEXT,
		abstract_text TEXT,
		inventors TEXT[],
		inventor_countries TEXT[],
		assignees TEXT[],
		assignee_countries TEXT[],
		ipc TEXT[],
		uspc TEXT[],
		fields JSONB NOT NULL,
		run_id UUID NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (source_archive, source_entry, segment_index)
	);

	CREATE INDEX IF NOT EXISTS ` + pq.QuoteIdentifier("idx_"+s.table+"_doc_id") + ` ON ` + t + `(doc_id);
	CREATE INDEX IF NOT EXISTS ` + pq.QuoteIdentifier("idx_"+s.table+"_run_id") + ` ON ` + t + `(run_id);
	`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

// row is the column projection of one document.
type row struct {
	docID             sql.NullString
	docDate           sql.NullTime
	rawDate           sql.NullString
	title             sql.NullString
	abstract          sql.NullString
	inventors         []string
	inventorCountries []string
	assignees         []string
	assigneeCountries []string
	ipc               []string
	uspc              []string
	fields            []byte
}

func project(rec record.Record) (row, error) {
	var r row
	if v, ok := rec.First(record.ID); ok {
		r.docID = sql.NullString{String: clean(v), Valid: true}
	}
	if v, ok := rec.First(record.APD); ok {
		r.rawDate = sql.NullString{String: clean(v), Valid: true}
		if d, err := parseUSPTODate(v); err == nil {
			r.docDate = sql.NullTime{Time: d, Valid: true}
		}
	}
	if v, ok := rec.First(record.TTL); ok {
		r.title = sql.NullString{String: clean(v), Valid: true}
	}
	if vs := rec.Values(record.ABST); len(vs) > 0 {
		r.abstract = sql.NullString{String: clean(strings.Join(vs, "\n\n")), Valid: true}
	}
	r.inventors = cleanAll(rec.Values(record.INV))
	r.inventorCountries = cleanAll(rec.Values(record.ICN))
	r.assignees = cleanAll(rec.Values(record.AS))
	r.assigneeCountries = cleanAll(rec.Values(record.ACN))
	r.ipc = cleanAll(rec.Values(record.ICL))
	r.uspc = cleanAll(rec.Values(record.CCL))

	pairs := make([][2]string, 0, rec.Len())
	for _, f := range rec.Fields {
		pairs = append(pairs, [2]string{string(f.Code), clean(f.Value)})
	}
	b, err := json.Marshal(pairs)
	if err != nil {
		return r, fmt.Errorf("encode fields: %w", err)
	}
	r.fields = b
	return r, nil
}

// Write stores one document. Row-level data errors are counted and skipped;
// anything else (lost connection, missing table) is returned.
func (s *Sink) Write(ctx context.Context, doc record.Document) error {
	r, err := project(doc.Record)
	if err != nil {
		s.recordFailure("db_invalid_json", doc, err)
		return nil
	}
	_, err = s.db.ExecContext(ctx, s.insert,
		doc.Archive, doc.Entry, doc.Index, doc.Format,
		r.docID, r.docDate, r.rawDate, r.title, r.abstract,
		pq.Array(r.inventors), pq.Array(r.inventorCountries),
		pq.Array(r.assignees), pq.Array(r.assigneeCountries),
		pq.Array(r.ipc), pq.Array(r.uspc),
		r.fields, s.runID.String(),
	)
	if err != nil {
		category := categorizeDBError(err)
		s.recordFailure(category, doc, err)
		if isRowError(err) {
			return nil
		}
		return fmt.Errorf("insert %s/%s#%d: %w", doc.Archive, doc.Entry, doc.Index, err)
	}
	s.inserted.Add(1)
	return nil
}

// Count returns the rows written by this run.
func (s *Sink) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM `+pq.QuoteIdentifier(s.table)+` WHERE run_id = $1`, s.runID.String()).Scan(&n)
	return n, err
}

// Inserted returns how many rows were accepted.
func (s *Sink) Inserted() int64 { return s.inserted.Load() }

// Failures returns a copy of failure counts by category.
func (s *Sink) Failures() map[string]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int64, len(s.failures))
	for k, v := range s.failures {
		out[k] = v
	}
	return out
}

func (s *Sink) Close() error { return s.db.Close() }

func (s *Sink) recordFailure(category string, doc record.Document, err error) {
	s.mu.Lock()
	s.failures[category]++
	s.mu.Unlock()
	if s.log != nil {
		s.log.Warn("record not stored", "category", category, "archive", doc.Archive,
			"entry", doc.Entry, "segment", doc.Index, "err", err)
	}
}

func categorizeDBError(err error) string {
	errStr := err.Error()
	if strings.Contains(errStr, "invalid input syntax for type json") {
		return "db_invalid_json"
	}
	if strings.Contains(errStr, "duplicate key") {
		return "db_duplicate"
	}
	if strings.Contains(errStr, "violates foreign key") {
		return "db_foreign_key"
	}
	if strings.Contains(errStr, "value too long") {
		return "db_value_too_long"
	}
	return "db_other"
}

// isRowError reports whether err concerns only the offending row: data
// exceptions (class 22) and integrity violations (class 23).
func isRowError(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	switch pqErr.Code.Class() {
	case "22", "23":
		return true
	}
	return false
}

func parseUSPTODate(dateStr string) (time.Time, error) {
	dateStr = strings.TrimSpace(dateStr)
	// YYYYMMDD (20251104)
	if len(dateStr) == 8 {
		return time.Parse("20060102", dateStr)
	}
	if len(dateStr) == 10 {
		return time.Parse("2006-01-02", dateStr)
	}
	return time.Time{}, fmt.Errorf("unknown date format: %s", dateStr)
}

// clean drops NUL bytes, which PostgreSQL rejects in TEXT and JSONB.
func clean(s string) string {
	return strings.ReplaceAll(s, "\x00", "")
}

func cleanAll(vs []string) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = clean(v)
	}
	return out
}
