package dlq

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/costplane/costplane/internal/domain"
	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure-Go SQLite driver (no CGO required)
)

// dlqMigrations define the durable store schema. Versions are tracked in
// the schema_versions table.
var dlqMigrations = []struct {
	version int
	sql     string
}{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS dlq_items (
    id              TEXT PRIMARY KEY,
    organization_id TEXT NOT NULL,
    payload         TEXT NOT NULL,
    item_type       TEXT NOT NULL,
    status          TEXT NOT NULL DEFAULT 'pending',
    failure_reason  TEXT NOT NULL,
    error_message   TEXT NOT NULL DEFAULT '',
    error_details   TEXT NOT NULL DEFAULT '',
    retry_count     INTEGER NOT NULL DEFAULT 0,
    max_retries     INTEGER NOT NULL DEFAULT 3,
    created_at      DATETIME NOT NULL,
    updated_at      DATETIME NOT NULL,
    next_retry_at   DATETIME,
    processed_at    DATETIME,
    expires_at      DATETIME,
    metadata        TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_dlq_status       ON dlq_items(status);
CREATE INDEX IF NOT EXISTS idx_dlq_organization ON dlq_items(organization_id);
CREATE INDEX IF NOT EXISTS idx_dlq_next_retry   ON dlq_items(status, next_retry_at);
CREATE INDEX IF NOT EXISTS idx_dlq_created_at   ON dlq_items(created_at);
CREATE INDEX IF NOT EXISTS idx_dlq_expires_at   ON dlq_items(expires_at);
`,
	},
}

// SQLiteStore is the durable Store backend.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at path. Use
// ":memory:" for an ephemeral store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_versions (
        version    INTEGER PRIMARY KEY,
        applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
    )`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}
	for _, m := range dlqMigrations {
		var count int
		if err := s.db.QueryRow(`SELECT COUNT(*) FROM schema_versions WHERE version = ?`, m.version).Scan(&count); err != nil {
			return fmt.Errorf("check migration %d: %w", m.version, err)
		}
		if count > 0 {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}
		if _, err := s.db.Exec(`INSERT INTO schema_versions(version) VALUES(?)`, m.version); err != nil {
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
	}
	return nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

const dlqColumns = `id, organization_id, payload, item_type, status, failure_reason,
    error_message, error_details, retry_count, max_retries,
    created_at, updated_at, next_retry_at, processed_at, expires_at, metadata`

func (s *SQLiteStore) Add(ctx context.Context, item Item) error {
	meta, err := json.Marshal(item.Metadata)
	if err != nil {
		return domain.WrapError(domain.ErrDatabase, err, "encode metadata")
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO dlq_items (`+dlqColumns+`)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID.String(), item.OrganizationID, item.Payload, item.ItemType,
		string(item.Status), string(item.FailureReason),
		item.ErrorMessage, item.ErrorDetails,
		item.RetryCount, item.MaxRetries,
		item.CreatedAt, item.UpdatedAt,
		nullableTime(item.NextRetryAt), nullableTime(item.ProcessedAt), nullableTime(item.ExpiresAt),
		string(meta))
	if err != nil {
		return domain.WrapError(domain.ErrDatabase, err, "insert dlq item")
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id uuid.UUID) (Item, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+dlqColumns+` FROM dlq_items WHERE id = ?`, id.String())
	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return Item{}, false, nil
	}
	if err != nil {
		return Item{}, false, domain.WrapError(domain.ErrDatabase, err, "get dlq item")
	}
	return item, true, nil
}

func (s *SQLiteStore) Update(ctx context.Context, item Item) error {
	meta, err := json.Marshal(item.Metadata)
	if err != nil {
		return domain.WrapError(domain.ErrDatabase, err, "encode metadata")
	}
	res, err := s.db.ExecContext(ctx, `UPDATE dlq_items SET
        organization_id = ?, payload = ?, item_type = ?, status = ?,
        failure_reason = ?, error_message = ?, error_details = ?,
        retry_count = ?, max_retries = ?, updated_at = ?,
        next_retry_at = ?, processed_at = ?, expires_at = ?, metadata = ?
        WHERE id = ?`,
		item.OrganizationID, item.Payload, item.ItemType, string(item.Status),
		string(item.FailureReason), item.ErrorMessage, item.ErrorDetails,
		item.RetryCount, item.MaxRetries, item.UpdatedAt,
		nullableTime(item.NextRetryAt), nullableTime(item.ProcessedAt), nullableTime(item.ExpiresAt),
		string(meta), item.ID.String())
	if err != nil {
		return domain.WrapError(domain.ErrDatabase, err, "update dlq item")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NewError(domain.ErrDatabase, "dlq item %s not found", item.ID)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM dlq_items WHERE id = ?`, id.String()); err != nil {
		return domain.WrapError(domain.ErrDatabase, err, "delete dlq item")
	}
	return nil
}

func (s *SQLiteStore) GetReadyForRetry(ctx context.Context, limit int) ([]Item, error) {
	now := time.Now().UTC()
	return s.queryItems(ctx, `SELECT `+dlqColumns+` FROM dlq_items
        WHERE status = 'pending'
          AND retry_count <= max_retries
          AND (next_retry_at IS NULL OR next_retry_at <= ?)
          AND (expires_at IS NULL OR expires_at >= ?)
        ORDER BY created_at ASC LIMIT ?`, now, now, limitOrDefault(limit))
}

func (s *SQLiteStore) GetByStatus(ctx context.Context, status Status, limit int) ([]Item, error) {
	return s.queryItems(ctx, `SELECT `+dlqColumns+` FROM dlq_items
        WHERE status = ? ORDER BY created_at ASC LIMIT ?`,
		string(status), limitOrDefault(limit))
}

func (s *SQLiteStore) GetByOrganization(ctx context.Context, orgID string, limit int) ([]Item, error) {
	return s.queryItems(ctx, `SELECT `+dlqColumns+` FROM dlq_items
        WHERE organization_id = ? ORDER BY created_at ASC LIMIT ?`,
		orgID, limitOrDefault(limit))
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM dlq_items`).Scan(&n)
	if err != nil {
		return 0, domain.WrapError(domain.ErrDatabase, err, "count dlq items")
	}
	return n, nil
}

func (s *SQLiteStore) CountByStatus(ctx context.Context, status Status) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM dlq_items WHERE status = ?`, string(status)).Scan(&n)
	if err != nil {
		return 0, domain.WrapError(domain.ErrDatabase, err, "count dlq items by status")
	}
	return n, nil
}

func (s *SQLiteStore) GetExpired(ctx context.Context, limit int) ([]Item, error) {
	return s.queryItems(ctx, `SELECT `+dlqColumns+` FROM dlq_items
        WHERE expires_at IS NOT NULL AND expires_at < ?
        ORDER BY created_at ASC LIMIT ?`, time.Now().UTC(), limitOrDefault(limit))
}

func (s *SQLiteStore) CleanupExpired(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM dlq_items WHERE expires_at IS NOT NULL AND expires_at < ?`,
		time.Now().UTC())
	if err != nil {
		return 0, domain.WrapError(domain.ErrDatabase, err, "cleanup expired dlq items")
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *SQLiteStore) GetForReview(ctx context.Context, limit int) ([]Item, error) {
	return s.GetByStatus(ctx, StatusReviewRequired, limit)
}

func (s *SQLiteStore) Search(ctx context.Context, q SearchQuery) ([]Item, error) {
	query := `SELECT ` + dlqColumns + ` FROM dlq_items WHERE 1=1`
	var args []any
	if q.OrganizationID != "" {
		query += ` AND organization_id = ?`
		args = append(args, q.OrganizationID)
	}
	if q.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(q.Status))
	}
	if q.ItemType != "" {
		query += ` AND item_type = ?`
		args = append(args, q.ItemType)
	}
	query += ` ORDER BY created_at ASC LIMIT ? OFFSET ?`
	args = append(args, limitOrDefault(q.Limit), q.Offset)
	return s.queryItems(ctx, query, args...)
}

func (s *SQLiteStore) queryItems(ctx context.Context, query string, args ...any) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.WrapError(domain.ErrDatabase, err, "query dlq items")
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, domain.WrapError(domain.ErrDatabase, err, "scan dlq item")
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (Item, error) {
	var (
		item                              Item
		id, status, reason, meta          string
		nextRetry, processedAt, expiresAt sql.NullTime
	)
	err := row.Scan(&id, &item.OrganizationID, &item.Payload, &item.ItemType,
		&status, &reason, &item.ErrorMessage, &item.ErrorDetails,
		&item.RetryCount, &item.MaxRetries,
		&item.CreatedAt, &item.UpdatedAt,
		&nextRetry, &processedAt, &expiresAt, &meta)
	if err != nil {
		return Item{}, err
	}
	item.ID, err = uuid.Parse(id)
	if err != nil {
		return Item{}, fmt.Errorf("parse item id %q: %w", id, err)
	}
	item.Status = Status(status)
	item.FailureReason = FailureReason(reason)
	if nextRetry.Valid {
		t := nextRetry.Time
		item.NextRetryAt = &t
	}
	if processedAt.Valid {
		t := processedAt.Time
		item.ProcessedAt = &t
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		item.ExpiresAt = &t
	}
	if err := json.Unmarshal([]byte(meta), &item.Metadata); err != nil {
		return Item{}, fmt.Errorf("decode metadata: %w", err)
	}
	return item, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return 1000
	}
	return limit
}
