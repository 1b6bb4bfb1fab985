package fakeapp

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/kuitang/knowledge-e2e/internal/errs"
	"github.com/kuitang/knowledge-e2e/internal/model"
	sqlite3 "github.com/mutecomm/go-sqlcipher/v4"
)

// SQLiteDriverName is the SQLCipher driver registered for the fake API's store.
const SQLiteDriverName = "sqlite3_knowledge_fake"

func init() {
	sql.Register(SQLiteDriverName, &sqlite3.SQLiteDriver{})
}

const schema = `
CREATE TABLE IF NOT EXISTS sources (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL UNIQUE,
    type TEXT NOT NULL,
    status TEXT NOT NULL,
    config TEXT NOT NULL DEFAULT '{}',
    metadata TEXT NOT NULL DEFAULT '{}',
    document_count INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sources_type ON sources(type);
CREATE INDEX IF NOT EXISTS idx_sources_status ON sources(status);

CREATE TABLE IF NOT EXISTS jobs (
    id TEXT PRIMARY KEY,
    source_id TEXT NOT NULL,
    status TEXT NOT NULL,
    progress INTEGER NOT NULL DEFAULT 0,
    documents INTEGER NOT NULL DEFAULT 0,
    error TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL,
    completed_at INTEGER
);
CREATE INDEX IF NOT EXISTS idx_jobs_source_id ON jobs(source_id);
`

var storeCounter atomic.Int64

// Store persists sources and jobs in an encrypted in-memory SQLite database.
// A single connection serializes all access.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// OpenStore creates a fresh, empty store.
func OpenStore(now func() time.Time) (*Store, error) {
	if now == nil {
		now = time.Now
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate store key: %w", err)
	}
	name := fmt.Sprintf("fakeapp-%d", storeCounter.Add(1))
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma_key=x'%s'&_pragma_cipher_page_size=4096", name, hex.EncodeToString(key))

	sqlDB, err := sql.Open(SQLiteDriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open fake store: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	if _, err := sqlDB.Exec(schema); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("initialize fake store schema: %w", err)
	}
	return &Store{db: sqlDB, now: now}, nil
}

// Close releases the database; the in-memory data is gone afterwards.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping measures a round trip to the database.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	var one int
	if err := s.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return 0, err
	}
	return time.Since(start), nil
}

// stamp returns a UTC timestamp strictly after prev.
func (s *Store) stamp(prev time.Time) time.Time {
	now := s.now().UTC()
	if !now.After(prev) {
		now = prev.Add(time.Microsecond)
	}
	return now
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique
}

func nameConflict(name string) error {
	return errs.Newf(errs.Conflict, "Source with name %q already exists", name)
}

func sourceNotFound(id string) error {
	return errs.Newf(errs.NotFound, "Source %s not found", id)
}

// CreateSource inserts a new source in the configured state.
func (s *Store) CreateSource(ctx context.Context, in model.Source) (*model.Source, error) {
	now := s.stamp(time.Time{})
	out := in
	out.ID = uuid.NewString()
	out.Status = model.SourceStatusConfigured
	out.Documents = 0
	out.CreatedAt = now
	out.UpdatedAt = now

	cfg, meta, err := encodeMaps(out.Config, out.Metadata)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sources (id, name, type, status, config, metadata, document_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		out.ID, out.Name, string(out.Type), out.Status, cfg, meta, now.UnixNano(), now.UnixNano())
	if isUniqueViolation(err) {
		return nil, nameConflict(out.Name)
	}
	if err != nil {
		return nil, fmt.Errorf("insert source: %w", err)
	}
	return &out, nil
}

const sourceColumns = `id, name, type, status, config, metadata, document_count, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSource(row rowScanner) (*model.Source, error) {
	var (
		src                  model.Source
		typ, cfg, meta       string
		createdAt, updatedAt int64
	)
	if err := row.Scan(&src.ID, &src.Name, &typ, &src.Status, &cfg, &meta, &src.Documents, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	src.Type = model.SourceType(typ)
	src.CreatedAt = time.Unix(0, createdAt).UTC()
	src.UpdatedAt = time.Unix(0, updatedAt).UTC()
	if err := json.Unmarshal([]byte(cfg), &src.Config); err != nil {
		return nil, fmt.Errorf("decode source config: %w", err)
	}
	if err := json.Unmarshal([]byte(meta), &src.Metadata); err != nil {
		return nil, fmt.Errorf("decode source metadata: %w", err)
	}
	return &src, nil
}

// GetSource returns one source.
func (s *Store) GetSource(ctx context.Context, id string) (*model.Source, error) {
	src, err := scanSource(s.db.QueryRowContext(ctx, `SELECT `+sourceColumns+` FROM sources WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sourceNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("read source: %w", err)
	}
	return src, nil
}

// ListFilter narrows a source listing.
type ListFilter struct {
	Type   string
	Status string
	Search string
	Limit  int
	Offset int
}

// ListSources returns one page in insertion order plus the filtered total.
func (s *Store) ListSources(ctx context.Context, f ListFilter) ([]model.Source, int, error) {
	var (
		where []string
		args  []any
	)
	if f.Type != "" {
		where = append(where, "type = ?")
		args = append(args, f.Type)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if f.Search != "" {
		where = append(where, "instr(lower(name), lower(?)) > 0")
		args = append(args, f.Search)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sources`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count sources: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sourceColumns+` FROM sources`+clause+` ORDER BY rowid LIMIT ? OFFSET ?`,
		append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	items := make([]model.Source, 0, f.Limit)
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan source: %w", err)
		}
		items = append(items, *src)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate sources: %w", err)
	}
	return items, total, nil
}

// SaveSource writes every mutable field of src and bumps updatedAt.
func (s *Store) SaveSource(ctx context.Context, src *model.Source) (*model.Source, error) {
	out := *src
	out.UpdatedAt = s.stamp(src.UpdatedAt)

	cfg, meta, err := encodeMaps(out.Config, out.Metadata)
	if err != nil {
		return nil, err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE sources SET name = ?, type = ?, status = ?, config = ?, metadata = ?, document_count = ?, updated_at = ?
		WHERE id = ?`,
		out.Name, string(out.Type), out.Status, cfg, meta, out.Documents, out.UpdatedAt.UnixNano(), out.ID)
	if isUniqueViolation(err) {
		return nil, nameConflict(out.Name)
	}
	if err != nil {
		return nil, fmt.Errorf("update source: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, sourceNotFound(out.ID)
	}
	return &out, nil
}

// DeleteSource removes a source and its jobs.
func (s *Store) DeleteSource(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete source: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	res, err := tx.ExecContext(ctx, `DELETE FROM sources WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete source: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sourceNotFound(id)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM jobs WHERE source_id = ?`, id); err != nil {
		return fmt.Errorf("delete source jobs: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete source: %w", err)
	}
	return nil
}

// CreateJob records a running job for a source.
func (s *Store) CreateJob(ctx context.Context, sourceID string) (*model.Job, error) {
	job := &model.Job{
		JobID:     uuid.NewString(),
		SourceID:  sourceID,
		Status:    model.JobRunning,
		CreatedAt: s.stamp(time.Time{}),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, source_id, status, progress, created_at) VALUES (?, ?, ?, 0, ?)`,
		job.JobID, job.SourceID, job.Status, job.CreatedAt.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return job, nil
}

// GetJob returns one job.
func (s *Store) GetJob(ctx context.Context, id string) (*model.Job, error) {
	var (
		job         model.Job
		createdAt   int64
		completedAt sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, source_id, status, progress, documents, error, created_at, completed_at FROM jobs WHERE id = ?`, id).
		Scan(&job.JobID, &job.SourceID, &job.Status, &job.Progress, &job.Documents, &job.Error, &createdAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.Newf(errs.NotFound, "Job %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("read job: %w", err)
	}
	job.CreatedAt = time.Unix(0, createdAt).UTC()
	if completedAt.Valid {
		job.CompletedAt = time.Unix(0, completedAt.Int64).UTC()
	}
	return &job, nil
}

// RunningJobFor returns the source's running job, if any.
func (s *Store) RunningJobFor(ctx context.Context, sourceID string) (*model.Job, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM jobs WHERE source_id = ? AND status = ? LIMIT 1`, sourceID, model.JobRunning).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find running job: %w", err)
	}
	return s.GetJob(ctx, id)
}

// SaveJob writes job progress and terminal state.
func (s *Store) SaveJob(ctx context.Context, job *model.Job) error {
	var completedAt sql.NullInt64
	if !job.CompletedAt.IsZero() {
		completedAt = sql.NullInt64{Int64: job.CompletedAt.UnixNano(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, progress = ?, documents = ?, error = ?, completed_at = ? WHERE id = ?`,
		job.Status, job.Progress, job.Documents, job.Error, completedAt, job.JobID)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}

func encodeMaps(cfg, meta map[string]any) (string, string, error) {
	if cfg == nil {
		cfg = map[string]any{}
	}
	if meta == nil {
		meta = map[string]any{}
	}
	c, err := json.Marshal(cfg)
	if err != nil {
		return "", "", errs.Wrap(errs.InvalidArgument, "Invalid source config", err)
	}
	m, err := json.Marshal(meta)
	if err != nil {
		return "", "", errs.Wrap(errs.InvalidArgument, "Invalid source metadata", err)
	}
	return string(c), string(m), nil
}
