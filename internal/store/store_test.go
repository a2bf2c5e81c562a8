package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"patent-biblio/internal/logger"
	"patent-biblio/internal/record"
)

func sampleRecord() record.Record {
	var r record.Record
	r.Add(record.ID, "05123456")
	r.Add(record.APD, "19920114")
	r.Add(record.TTL, "Widget\x00 holder")
	r.Add(record.INV, "Jane Smith")
	r.Add(record.INV, "John Doe")
	r.Add(record.ICN, "US")
	r.Add(record.ICL, "A47G 1/00")
	r.Add(record.CCL, "248/309.1")
	r.Add(record.ABST, "A holder.")
	return r
}

func TestProject(t *testing.T) {
	t.Parallel()

	t.Run("Should map codes onto columns", func(t *testing.T) {
		t.Parallel()
		r, err := project(sampleRecord())
		require.NoError(t, err)
		assert.Equal(t, "05123456", r.docID.String)
		assert.True(t, r.docDate.Valid)
		assert.Equal(t, time.Date(1992, 1, 14, 0, 0, 0, 0, time.UTC), r.docDate.Time)
		assert.Equal(t, "Widget holder", r.title.String)
		assert.Equal(t, []string{"Jane Smith", "John Doe"}, r.inventors)
		assert.Equal(t, []string{"US"}, r.inventorCountries)
		assert.Empty(t, r.assignees)
		assert.Equal(t, []string{"248/309.1"}, r.uspc)

		var pairs [][2]string
		require.NoError(t, json.Unmarshal(r.fields, &pairs))
		require.Len(t, pairs, 9)
		assert.Equal(t, [2]string{"ID", "05123456"}, pairs[0])
		assert.Equal(t, [2]string{"TTL", "Widget holder"}, pairs[2])
	})

	t.Run("Should keep an unparseable date only as raw text", func(t *testing.T) {
		t.Parallel()
		var rec record.Record
		rec.Add(record.APD, "1992")
		r, err := project(rec)
		require.NoError(t, err)
		assert.False(t, r.docDate.Valid)
		assert.Equal(t, "1992", r.rawDate.String)
		assert.False(t, r.docID.Valid)
		assert.False(t, r.abstract.Valid)
	})
}

func TestParseUSPTODate(t *testing.T) {
	t.Parallel()
	d, err := parseUSPTODate("20251104")
	require.NoError(t, err)
	assert.Equal(t, 2025, d.Year())
	d, err = parseUSPTODate("2002-03-19")
	require.NoError(t, err)
	assert.Equal(t, time.March, d.Month())
	_, err = parseUSPTODate("19920")
	assert.Error(t, err)
	_, err = parseUSPTODate("19921399")
	assert.Error(t, err)
}

func TestCategorizeDBError(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "db_duplicate", categorizeDBError(errors.New(`pq: duplicate key value violates unique constraint "x"`)))
	assert.Equal(t, "db_value_too_long", categorizeDBError(errors.New("pq: value too long for type character varying(32)")))
	assert.Equal(t, "db_invalid_json", categorizeDBError(errors.New("pq: invalid input syntax for type json")))
	assert.Equal(t, "db_other", categorizeDBError(errors.New("connection refused")))
}

func TestIsRowError(t *testing.T) {
	t.Parallel()
	assert.True(t, isRowError(&pq.Error{Code: "22001"}))
	assert.True(t, isRowError(&pq.Error{Code: "23505"}))
	assert.False(t, isRowError(&pq.Error{Code: "42P01"}))
	assert.False(t, isRowError(errors.New("driver: bad connection")))
}

func setupPostgres(t *testing.T) *sql.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()
	var (
		pgContainer *postgres.PostgresContainer
		err         error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = errors.New("docker unavailable")
			}
		}()
		pgContainer, err = postgres.Run(ctx, "postgres:15-alpine",
			postgres.WithDatabase("test-db"),
			postgres.WithUsername("user"),
			postgres.WithPassword("password"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second),
			),
		)
	}()
	if err != nil {
		t.Skipf("postgres container not available: %v", err)
	}
	t.Cleanup(func() {
		terminateCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = pgContainer.Terminate(terminateCtx)
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	db, err := sql.Open("postgres", connStr)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.PingContext(ctx))
	return db
}

func TestSinkPostgres(t *testing.T) {
	db := setupPostgres(t)
	ctx := context.Background()

	runID := uuid.New()
	s := New(db, "patent_biblio", runID, logger.Discard())
	require.NoError(t, s.EnsureTable(ctx))
	require.NoError(t, s.EnsureTable(ctx), "table bootstrap is idempotent")

	doc := record.Document{Archive: "1992.zip", Entry: "pftaps19920114_wk02.txt", Index: 0, Format: "aps", Record: sampleRecord()}

	t.Run("Should insert and then upsert by source position", func(t *testing.T) {
		require.NoError(t, s.Write(ctx, doc))
		require.NoError(t, s.Write(ctx, doc))
		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)
		assert.EqualValues(t, 2, s.Inserted())

		var (
			title     string
			inventors []string
		)
		err = db.QueryRowContext(ctx,
			`SELECT title, inventors FROM patent_biblio WHERE source_entry = $1`, doc.Entry).
			Scan(&title, pq.Array(&inventors))
		require.NoError(t, err)
		assert.Equal(t, "Widget holder", title)
		assert.Equal(t, []string{"Jane Smith", "John Doe"}, inventors)
	})

	t.Run("Should count and skip a row that does not fit", func(t *testing.T) {
		var rec record.Record
		rec.Add(record.ID, "X123456789012345678901234567890123456789")
		bad := record.Document{Archive: "1992.zip", Entry: "bad.txt", Index: 0, Format: "aps", Record: rec}
		require.NoError(t, s.Write(ctx, bad))
		assert.EqualValues(t, 1, s.Failures()["db_value_too_long"])
	})

	t.Run("Should return an error when the table is gone", func(t *testing.T) {
		other := New(db, "missing_table", runID, logger.Discard())
		err := other.Write(ctx, doc)
		require.Error(t, err)
		assert.EqualValues(t, 1, other.Failures()["db_other"])
	})
}
