package repositories

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"

	"posprint/internal/models"
	"posprint/internal/pkg/errors"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

var schemas = map[string]string{
	DriverPostgres: `
		CREATE TABLE IF NOT EXISTS print_journal (
			job_id      TEXT PRIMARY KEY,
			kind        TEXT NOT NULL,
			bytes       INTEGER NOT NULL,
			success     BOOLEAN NOT NULL,
			error_text  TEXT,
			started_at  TIMESTAMPTZ NOT NULL,
			duration_ms BIGINT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS print_journal_started_at ON print_journal (started_at)`,
	DriverSQLite: `
		CREATE TABLE IF NOT EXISTS print_journal (
			job_id      TEXT PRIMARY KEY,
			kind        TEXT NOT NULL,
			bytes       INTEGER NOT NULL,
			success     BOOLEAN NOT NULL,
			error_text  TEXT,
			started_at  TIMESTAMP NOT NULL,
			duration_ms INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS print_journal_started_at ON print_journal (started_at)`,
}

// JournalRepository persists job outcomes. Queries are written with "?"
// placeholders and rebound for postgres.
type JournalRepository struct {
	db      *sql.DB
	dialect string
}

// OpenJournal opens dsn with the pgx stdlib driver for postgres or
// go-sqlite3 for sqlite3.
func OpenJournal(dialect, dsn string) (*JournalRepository, error) {
	driver := dialect
	switch dialect {
	case DriverPostgres:
		driver = "pgx"
	case DriverSQLite:
	default:
		return nil, errors.ValidationField("journal.driver", "unsupported journal driver: "+dialect)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "journal.Open", "opening database")
	}
	if dialect == DriverSQLite {
		// One writer at a time avoids SQLITE_BUSY from the worker and the API.
		db.SetMaxOpenConns(1)
	}
	return NewJournalRepository(db, dialect), nil
}

func NewJournalRepository(db *sql.DB, dialect string) *JournalRepository {
	return &JournalRepository{db: db, dialect: dialect}
}

func (r *JournalRepository) EnsureSchema(ctx context.Context) error {
	for _, stmt := range strings.Split(schemas[r.dialect], ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "journal.EnsureSchema", "creating print_journal")
		}
	}
	return nil
}

// Record implements worker.Recorder.
func (r *JournalRepository) Record(ctx context.Context, o models.JobOutcome) error {
	var errText sql.NullString
	if o.Error != "" {
		errText = sql.NullString{String: o.Error, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, r.rebind(`
		INSERT INTO print_journal (job_id, kind, bytes, success, error_text, started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`), o.JobID, string(o.Kind), o.Bytes, o.Success, errText, o.StartedAt.UTC(), o.Duration.Milliseconds())
	if err != nil {
		return errors.Wrap(err, "journal.Record", "inserting outcome")
	}
	return nil
}

func (r *JournalRepository) Summary(ctx context.Context, since time.Time) (models.JournalSummary, error) {
	s := models.JournalSummary{Since: since.UTC()}
	err := r.db.QueryRowContext(ctx, r.rebind(`
		SELECT
			COALESCE(SUM(CASE WHEN success THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN success THEN 0 ELSE 1 END), 0),
			COALESCE(SUM(bytes), 0)
		FROM print_journal
		WHERE started_at >= ?
	`), since.UTC()).Scan(&s.Succeeded, &s.Failed, &s.Bytes)
	if err != nil {
		return s, errors.Wrap(err, "journal.Summary", "aggregating outcomes")
	}
	return s, nil
}

// Recent returns the newest outcomes first.
func (r *JournalRepository) Recent(ctx context.Context, limit int) ([]models.JobOutcome, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, r.rebind(`
		SELECT job_id, kind, bytes, success, error_text, started_at, duration_ms
		FROM print_journal
		ORDER BY started_at DESC
		LIMIT ?
	`), limit)
	if err != nil {
		return nil, errors.Wrap(err, "journal.Recent", "querying outcomes")
	}
	defer rows.Close()

	var out []models.JobOutcome
	for rows.Next() {
		var (
			o       models.JobOutcome
			kind    string
			errText sql.NullString
			ms      int64
		)
		if err := rows.Scan(&o.JobID, &kind, &o.Bytes, &o.Success, &errText, &o.StartedAt, &ms); err != nil {
			return nil, errors.Wrap(err, "journal.Recent", "scanning outcome")
		}
		o.Kind = models.Kind(kind)
		o.Error = errText.String
		o.Duration = time.Duration(ms) * time.Millisecond
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "journal.Recent", "iterating outcomes")
	}
	return out, nil
}

func (r *JournalRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *JournalRepository) Close() error {
	return r.db.Close()
}

// rebind turns "?" placeholders into "$1", "$2"... for postgres.
func (r *JournalRepository) rebind(q string) string {
	if r.dialect != DriverPostgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, c := range q {
		if c == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}
