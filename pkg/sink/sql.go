package sink

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/amosWeiskopf/listingsmith/internal/models"
)

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		description TEXT NOT NULL,
		organization TEXT,
		sector TEXT,
		location TEXT,
		price TEXT,
		publication_date TEXT,
		deadline_date TEXT,
		reference TEXT,
		detail_url TEXT,
		contact TEXT,
		source_url TEXT,
		extracted_at DATETIME NOT NULL
	)`

const postgresSchema = `
	CREATE TABLE IF NOT EXISTS records (
		id BIGSERIAL PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT NOT NULL,
		organization TEXT,
		sector TEXT,
		location TEXT,
		price TEXT,
		publication_date TEXT,
		deadline_date TEXT,
		reference TEXT,
		detail_url TEXT,
		contact TEXT,
		source_url TEXT,
		extracted_at TIMESTAMPTZ NOT NULL
	)`

// SQLiteWriter appends records to the records table of a SQLite database
type SQLiteWriter struct {
	db *sql.DB
}

// NewSQLiteWriter opens the database at path, creating the file and the
// table when missing. ":memory:" opens a private in-memory database.
func NewSQLiteWriter(path string) (*SQLiteWriter, error) {
	if path == "" {
		return nil, fmt.Errorf("SQLite database path is required")
	}
	dsn := path
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		dsn = path + "?_busy_timeout=5000&_journal_mode=WAL"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SQLite: %w", err)
	}
	// single writer; also keeps an in-memory database on one connection
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create records table: %w", err)
	}
	return &SQLiteWriter{db: db}, nil
}

func (w *SQLiteWriter) Write(ctx context.Context, records []models.Record) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO records (
		title, description, organization, sector, location, price, publication_date,
		deadline_date, reference, detail_url, contact, source_url, extracted_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, columnValues(r)...); err != nil {
			return fmt.Errorf("failed to insert %q: %w", r.Title, err)
		}
	}
	return tx.Commit()
}

// Count returns the number of stored records
func (w *SQLiteWriter) Count(ctx context.Context) (int, error) {
	var n int
	err := w.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&n)
	return n, err
}

func (w *SQLiteWriter) Close() error { return w.db.Close() }

// PostgresWriter appends records to the records table through a pgx pool
type PostgresWriter struct {
	pool *pgxpool.Pool
}

func NewPostgresWriter(ctx context.Context, dsn string) (*PostgresWriter, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create records table: %w", err)
	}
	return &PostgresWriter{pool: pool}, nil
}

func (w *PostgresWriter) Write(ctx context.Context, records []models.Record) error {
	batch := &pgx.Batch{}
	for _, r := range records {
		batch.Queue(`INSERT INTO records (
			title, description, organization, sector, location, price, publication_date,
			deadline_date, reference, detail_url, contact, source_url, extracted_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`, columnValues(r)...)
	}
	if err := w.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert records: %w", err)
	}
	return nil
}

// Count returns the number of stored records
func (w *PostgresWriter) Count(ctx context.Context) (int, error) {
	var n int
	err := w.pool.QueryRow(ctx, `SELECT COUNT(*) FROM records`).Scan(&n)
	return n, err
}

func (w *PostgresWriter) Close() error {
	w.pool.Close()
	return nil
}

func columnValues(r models.Record) []any {
	extracted := r.ExtractedAt
	if extracted.IsZero() {
		extracted = time.Now()
	}
	return []any{
		r.Title, r.Description, r.Organization, r.Sector, r.Location, r.Price,
		r.PublicationDate, r.DeadlineDate, r.Reference, r.DetailURL, r.Contact,
		models.StringPtr(r.SourceURL), extracted.UTC(),
	}
}
