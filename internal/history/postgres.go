package history

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/godhahn/data-project/internal/extract"
)

// MigrationsTable tracks the schema version of the history tables.
const MigrationsTable = "extract_schema_migrations"

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresRepository stores run summaries in the extract_runs table.
type PostgresRepository struct {
	db  *sql.DB
	log *slog.Logger
}

// OpenPostgres connects to dsn, brings the schema up to date and returns the repository.
func OpenPostgres(ctx context.Context, dsn string, log *slog.Logger) (*PostgresRepository, error) {
	if log == nil {
		log = slog.Default()
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping history database: %w", err)
	}

	if err := migrateUp(db, log); err != nil {
		db.Close()
		return nil, err
	}
	return &PostgresRepository{db: db, log: log}, nil
}

func migrateUp(db *sql.DB, log *slog.Logger) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: MigrationsTable})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Debug("history schema is up to date")
			return nil
		}
		return fmt.Errorf("run migrations: %w", err)
	}
	log.Info("history schema migrated")
	return nil
}

// Save inserts sum, replacing an earlier row with the same run id.
func (r *PostgresRepository) Save(ctx context.Context, sum extract.Summary) error {
	payload, err := json.Marshal(sum)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}

	var finished sql.NullTime
	if !sum.FinishedAt.IsZero() {
		finished = sql.NullTime{Time: sum.FinishedAt, Valid: true}
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO extract_runs (run_id, status, started_at, finished_at, summary)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (run_id) DO UPDATE
		SET status = EXCLUDED.status,
		    finished_at = EXCLUDED.finished_at,
		    summary = EXCLUDED.summary`,
		sum.RunID, string(sum.Status), sum.StartedAt, finished, payload)
	if err != nil {
		return fmt.Errorf("save run %s: %w", sum.RunID, err)
	}
	return nil
}

// Latest returns the run with the newest start time.
func (r *PostgresRepository) Latest(ctx context.Context) (extract.Summary, error) {
	runs, err := r.List(ctx, 1)
	if err != nil {
		return extract.Summary{}, err
	}
	if len(runs) == 0 {
		return extract.Summary{}, ErrNotFound
	}
	return runs[0], nil
}

// List returns up to limit runs, newest first. A non-positive limit returns all runs.
func (r *PostgresRepository) List(ctx context.Context, limit int) ([]extract.Summary, error) {
	query := `SELECT summary FROM extract_runs ORDER BY started_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []extract.Summary
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		var sum extract.Summary
		if err := json.Unmarshal(payload, &sum); err != nil {
			return nil, fmt.Errorf("decode run: %w", err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Close releases the connection pool.
func (r *PostgresRepository) Close() error {
	return r.db.Close()
}
