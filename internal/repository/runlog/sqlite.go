package runlog

import (
	"context"
	"database/sql"
	"embed"
	"time"

	"github.com/jaennil/guide_helper/backend/prefetch/pkg/logger"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

const (
	KindAcquire = "acquire"
	KindRetry   = "retry"
)

// Run is one row of the journal.
type Run struct {
	ID         int64
	Kind       string
	Provider   string
	ZoomStart  uint32
	ZoomEnd    uint32
	StartedAt  time.Time
	FinishedAt time.Time
	Total      uint64
	Fetched    uint64
	Skipped    uint64
	Failed     uint64
	Error      string
}

type SQLiteRunLog struct {
	db     *sql.DB
	logger logger.Logger
}

func NewSQLiteRunLog(path string, l logger.Logger) (*SQLiteRunLog, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	err = db.Ping()
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	r := &SQLiteRunLog{
		db:     db,
		logger: l,
	}

	err = r.runMigrations()
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	l.Info("sqlite run log initialized", "path", path)

	return r, nil
}

func (r *SQLiteRunLog) runMigrations() error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())

	err := goose.SetDialect("sqlite3")
	if err != nil {
		return err
	}

	return goose.Up(r.db, "migrations")
}

func (r *SQLiteRunLog) Save(ctx context.Context, run Run) (int64, error) {
	query := `INSERT INTO runs (kind, provider, zoom_start, zoom_end, started_at, finished_at, total, fetched, skipped, failed, error)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	res, err := r.db.ExecContext(ctx, query,
		run.Kind, run.Provider, run.ZoomStart, run.ZoomEnd,
		run.StartedAt.UTC(), run.FinishedAt.UTC(),
		run.Total, run.Fetched, run.Skipped, run.Failed, run.Error,
	)
	if err != nil {
		r.logger.Error("run log save failed", "kind", run.Kind, "provider", run.Provider, "error", err)
		return 0, err
	}

	return res.LastInsertId()
}

// Recent returns up to limit runs, newest first.
func (r *SQLiteRunLog) Recent(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT id, kind, provider, zoom_start, zoom_end, started_at, finished_at, total, fetched, skipped, failed, error
	FROM runs
	ORDER BY id DESC
	LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		err := rows.Scan(&run.ID, &run.Kind, &run.Provider, &run.ZoomStart, &run.ZoomEnd,
			&run.StartedAt, &run.FinishedAt, &run.Total, &run.Fetched, &run.Skipped, &run.Failed, &run.Error)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (r *SQLiteRunLog) Close() error {
	return r.db.Close()
}
