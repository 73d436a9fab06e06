package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dunamismax/pixelconvert/internal/domain"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

type dialect struct {
	driver        string
	timestampType string
	numbered      bool
}

var (
	postgresDialect = dialect{driver: "postgres", timestampType: "TIMESTAMPTZ", numbered: true}
	sqliteDialect   = dialect{driver: "sqlite3", timestampType: "TIMESTAMP"}
)

func (d dialect) schema() string {
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	source_type TEXT NOT NULL,
	webhook_url TEXT NOT NULL DEFAULT '',
	object_key TEXT NOT NULL,
	source_format TEXT NOT NULL,
	target_format TEXT NOT NULL,
	quality INTEGER NOT NULL,
	output_key TEXT NOT NULL DEFAULT '',
	backend TEXT NOT NULL DEFAULT '',
	error TEXT NOT NULL DEFAULT '',
	created_at %[1]s NOT NULL,
	updated_at %[1]s NOT NULL
);

CREATE TABLE IF NOT EXISTS usage_logs (
	job_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	backend TEXT NOT NULL,
	input_bytes BIGINT NOT NULL,
	output_bytes BIGINT NOT NULL,
	bytes_saved BIGINT NOT NULL,
	compute_time_ms BIGINT NOT NULL,
	created_at %[1]s NOT NULL
);
`, d.timestampType)
}

// rebind rewrites ? placeholders to $n for drivers that need numbered ones.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SQLStore persists jobs and usage logs in Postgres or SQLite.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
}

func NewPostgresStore(ctx context.Context, dsn string) (*SQLStore, error) {
	return openSQLStore(ctx, postgresDialect, dsn)
}

func NewSQLiteStore(ctx context.Context, path string) (*SQLStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite directory: %w", err)
		}
	}
	return openSQLStore(ctx, sqliteDialect, path+"?_journal_mode=WAL&_busy_timeout=5000")
}

func openSQLStore(ctx context.Context, d dialect, dsn string) (*SQLStore, error) {
	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s connection: %w", d.driver, err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", d.driver, err)
	}

	store := &SQLStore{db: db, dialect: d}
	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.schema()); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) Create(ctx context.Context, job domain.Job) error {
	_, err := s.db.ExecContext(
		ctx,
		s.dialect.rebind(`INSERT INTO jobs (id, user_id, status, source_type, webhook_url, object_key, source_format, target_format, quality, output_key, backend, error, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		job.ID,
		job.UserID,
		job.Status,
		job.SourceType,
		job.WebhookURL,
		job.ObjectKey,
		job.SourceFormat,
		job.TargetFormat,
		job.Quality,
		job.OutputKey,
		job.Backend,
		job.Error,
		job.CreatedAt.UTC(),
		job.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, id string) (domain.Job, bool, error) {
	row := s.db.QueryRowContext(
		ctx,
		s.dialect.rebind(`SELECT id, user_id, status, source_type, webhook_url, object_key, source_format, target_format, quality, output_key, backend, error, created_at, updated_at
		 FROM jobs
		 WHERE id = ?`),
		id,
	)

	var job domain.Job
	if err := row.Scan(
		&job.ID,
		&job.UserID,
		&job.Status,
		&job.SourceType,
		&job.WebhookURL,
		&job.ObjectKey,
		&job.SourceFormat,
		&job.TargetFormat,
		&job.Quality,
		&job.OutputKey,
		&job.Backend,
		&job.Error,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Job{}, false, nil
		}
		return domain.Job{}, false, fmt.Errorf("query job: %w", err)
	}

	return job, true, nil
}

func (s *SQLStore) UpdateStatus(ctx context.Context, id, status string) (domain.Job, error) {
	return s.exec(ctx, id, "update job status",
		`UPDATE jobs SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UTC(), id,
	)
}

func (s *SQLStore) Complete(ctx context.Context, id string, outcome domain.JobOutcome) (domain.Job, error) {
	return s.exec(ctx, id, "complete job",
		`UPDATE jobs SET status = ?, output_key = ?, backend = ?, error = ?, updated_at = ? WHERE id = ?`,
		outcome.Status, outcome.OutputKey, outcome.Backend, outcome.Error, time.Now().UTC(), id,
	)
}

func (s *SQLStore) exec(ctx context.Context, id, op, query string, args ...any) (domain.Job, error) {
	res, err := s.db.ExecContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return domain.Job{}, fmt.Errorf("%s: %w", op, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.Job{}, ErrJobNotFound
	}

	job, ok, err := s.Get(ctx, id)
	if err != nil {
		return domain.Job{}, err
	}
	if !ok {
		return domain.Job{}, ErrJobNotFound
	}
	return job, nil
}

func (s *SQLStore) CreateUsageLog(ctx context.Context, usage domain.UsageLog) error {
	_, err := s.db.ExecContext(
		ctx,
		s.dialect.rebind(`INSERT INTO usage_logs (job_id, user_id, backend, input_bytes, output_bytes, bytes_saved, compute_time_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		usage.JobID,
		usage.UserID,
		usage.Backend,
		usage.InputBytes,
		usage.OutputBytes,
		usage.BytesSaved,
		usage.ComputeTimeMS,
		usage.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert usage log: %w", err)
	}
	return nil
}
