package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/costplane/costplane/internal/domain"
	"github.com/costplane/costplane/internal/pricing"
	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure-Go SQLite driver (no CGO required)
)

var storageMigrations = []struct {
	version int
	sql     string
}{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS usage_records (
    id          TEXT PRIMARY KEY,
    organization_id TEXT NOT NULL,
    timestamp   DATETIME NOT NULL,
    ingested_at DATETIME NOT NULL,
    body        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_usage_org_time ON usage_records(organization_id, timestamp);

CREATE TABLE IF NOT EXISTS cost_records (
    id              TEXT PRIMARY KEY,
    usage_id        TEXT NOT NULL,
    organization_id TEXT NOT NULL,
    calculated_at   DATETIME NOT NULL,
    body            TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cost_org_time ON cost_records(organization_id, calculated_at);
CREATE INDEX IF NOT EXISTS idx_cost_usage    ON cost_records(usage_id);

CREATE TABLE IF NOT EXISTS pricing_tables (
    id             TEXT PRIMARY KEY,
    provider       TEXT NOT NULL,
    model          TEXT NOT NULL,
    effective_from DATETIME NOT NULL,
    effective_to   DATETIME,
    body           TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_pricing_pair ON pricing_tables(provider, model, effective_from);
`,
	},
}

// SQLiteBackend implements the three repositories over one database.
// Entities are stored as JSON documents with the query columns lifted out,
// which keeps the decimal fields exact (decimal strings, never REAL).
type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLiteBackend opens (creating if needed) the database at path.
func NewSQLiteBackend(path string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	b := &SQLiteBackend{db: db}
	if err := b.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return b, nil
}

func (b *SQLiteBackend) migrate() error {
	_, err := b.db.Exec(`CREATE TABLE IF NOT EXISTS schema_versions (
        version    INTEGER PRIMARY KEY,
        applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
    )`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}
	for _, m := range storageMigrations {
		var count int
		if err := b.db.QueryRow(`SELECT COUNT(*) FROM schema_versions WHERE version = ?`, m.version).Scan(&count); err != nil {
			return fmt.Errorf("check migration %d: %w", m.version, err)
		}
		if count > 0 {
			continue
		}
		if _, err := b.db.Exec(m.sql); err != nil {
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}
		if _, err := b.db.Exec(`INSERT INTO schema_versions(version) VALUES(?)`, m.version); err != nil {
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
	}
	return nil
}

// Close releases the database handle.
func (b *SQLiteBackend) Close() error { return b.db.Close() }

// Repositories exposes the backend through the repository contract.
func (b *SQLiteBackend) Repositories() Repositories {
	return Repositories{
		Usage:   &sqliteUsageRepo{db: b.db},
		Costs:   &sqliteCostRepo{db: b.db},
		Pricing: &sqlitePricingRepo{db: b.db},
	}
}

// ─── Usage ────────────────────────────────────────────────────────────────────

type sqliteUsageRepo struct{ db *sql.DB }

func (r *sqliteUsageRepo) Create(ctx context.Context, record domain.UsageRecord) error {
	body, err := json.Marshal(record)
	if err != nil {
		return domain.WrapError(domain.ErrDatabase, err, "encode usage record")
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO usage_records (id, organization_id, timestamp, ingested_at, body)
         VALUES (?, ?, ?, ?, ?)`,
		record.ID.String(), record.OrganizationID, record.Timestamp, record.IngestedAt, string(body))
	if err != nil {
		return domain.WrapError(domain.ErrDatabase, err, "insert usage record")
	}
	return nil
}

func (r *sqliteUsageRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.UsageRecord, bool, error) {
	var body string
	err := r.db.QueryRowContext(ctx,
		`SELECT body FROM usage_records WHERE id = ?`, id.String()).Scan(&body)
	if err == sql.ErrNoRows {
		return domain.UsageRecord{}, false, nil
	}
	if err != nil {
		return domain.UsageRecord{}, false, domain.WrapError(domain.ErrDatabase, err, "get usage record")
	}
	var rec domain.UsageRecord
	if err := json.Unmarshal([]byte(body), &rec); err != nil {
		return domain.UsageRecord{}, false, domain.WrapError(domain.ErrDatabase, err, "decode usage record")
	}
	return rec, true, nil
}

func (r *sqliteUsageRepo) ListByOrganization(ctx context.Context, orgID string, from, to time.Time) ([]domain.UsageRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT body FROM usage_records
         WHERE organization_id = ? AND timestamp >= ? AND timestamp <= ?
         ORDER BY timestamp ASC`, orgID, from, to)
	if err != nil {
		return nil, domain.WrapError(domain.ErrDatabase, err, "list usage records")
	}
	return decodeRows[domain.UsageRecord](rows)
}

func (r *sqliteUsageRepo) ListAll(ctx context.Context) ([]domain.UsageRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT body FROM usage_records ORDER BY timestamp ASC`)
	if err != nil {
		return nil, domain.WrapError(domain.ErrDatabase, err, "list usage records")
	}
	return decodeRows[domain.UsageRecord](rows)
}

// ─── Costs ────────────────────────────────────────────────────────────────────

type sqliteCostRepo struct{ db *sql.DB }

func (r *sqliteCostRepo) Create(ctx context.Context, record domain.CostRecord) error {
	body, err := json.Marshal(record)
	if err != nil {
		return domain.WrapError(domain.ErrDatabase, err, "encode cost record")
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO cost_records (id, usage_id, organization_id, calculated_at, body)
         VALUES (?, ?, ?, ?, ?)`,
		record.ID.String(), record.UsageID.String(), record.OrganizationID,
		record.CalculatedAt, string(body))
	if err != nil {
		return domain.WrapError(domain.ErrDatabase, err, "insert cost record")
	}
	return nil
}

func (r *sqliteCostRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.CostRecord, bool, error) {
	var body string
	err := r.db.QueryRowContext(ctx,
		`SELECT body FROM cost_records WHERE id = ?`, id.String()).Scan(&body)
	if err == sql.ErrNoRows {
		return domain.CostRecord{}, false, nil
	}
	if err != nil {
		return domain.CostRecord{}, false, domain.WrapError(domain.ErrDatabase, err, "get cost record")
	}
	var rec domain.CostRecord
	if err := json.Unmarshal([]byte(body), &rec); err != nil {
		return domain.CostRecord{}, false, domain.WrapError(domain.ErrDatabase, err, "decode cost record")
	}
	return rec, true, nil
}

func (r *sqliteCostRepo) ListByOrganization(ctx context.Context, orgID string, from, to time.Time) ([]domain.CostRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT body FROM cost_records
         WHERE organization_id = ? AND calculated_at >= ? AND calculated_at <= ?
         ORDER BY calculated_at ASC`, orgID, from, to)
	if err != nil {
		return nil, domain.WrapError(domain.ErrDatabase, err, "list cost records")
	}
	return decodeRows[domain.CostRecord](rows)
}

func (r *sqliteCostRepo) ListAll(ctx context.Context) ([]domain.CostRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT body FROM cost_records ORDER BY calculated_at ASC`)
	if err != nil {
		return nil, domain.WrapError(domain.ErrDatabase, err, "list cost records")
	}
	return decodeRows[domain.CostRecord](rows)
}

// ─── Pricing ──────────────────────────────────────────────────────────────────

type sqlitePricingRepo struct{ db *sql.DB }

func (r *sqlitePricingRepo) Create(ctx context.Context, table pricing.Table) error {
	if err := table.Validate(); err != nil {
		return err
	}
	body, err := json.Marshal(table)
	if err != nil {
		return domain.WrapError(domain.ErrDatabase, err, "encode pricing table")
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO pricing_tables (id, provider, model, effective_from, effective_to, body)
         VALUES (?, ?, ?, ?, ?, ?)`,
		table.ID.String(), table.Provider.String(), table.Model,
		table.EffectiveFrom, nullableTime(table.EffectiveTo), string(body))
	if err != nil {
		return domain.WrapError(domain.ErrDatabase, err, "insert pricing table")
	}
	return nil
}

func (r *sqlitePricingRepo) GetByID(ctx context.Context, id uuid.UUID) (pricing.Table, bool, error) {
	var body string
	err := r.db.QueryRowContext(ctx,
		`SELECT body FROM pricing_tables WHERE id = ?`, id.String()).Scan(&body)
	if err == sql.ErrNoRows {
		return pricing.Table{}, false, nil
	}
	if err != nil {
		return pricing.Table{}, false, domain.WrapError(domain.ErrDatabase, err, "get pricing table")
	}
	var table pricing.Table
	if err := json.Unmarshal([]byte(body), &table); err != nil {
		return pricing.Table{}, false, domain.WrapError(domain.ErrDatabase, err, "decode pricing table")
	}
	return table, true, nil
}

// GetActive applies the resolution rule in SQL: active window, latest
// effective_from first, ties broken by ascending id.
func (r *sqlitePricingRepo) GetActive(ctx context.Context, provider domain.Provider, model string, at time.Time) (pricing.Table, error) {
	var body string
	err := r.db.QueryRowContext(ctx,
		`SELECT body FROM pricing_tables
         WHERE provider = ? AND model = ?
           AND effective_from <= ?
           AND (effective_to IS NULL OR effective_to >= ?)
         ORDER BY effective_from DESC, id ASC
         LIMIT 1`, provider.String(), model, at, at).Scan(&body)
	if err == sql.ErrNoRows {
		return pricing.Table{}, domain.NewError(domain.ErrMissingTariff,
			"no active pricing for provider=%s model=%s at %s",
			provider, model, at.Format(time.RFC3339))
	}
	if err != nil {
		return pricing.Table{}, domain.WrapError(domain.ErrDatabase, err, "resolve pricing")
	}
	var table pricing.Table
	if err := json.Unmarshal([]byte(body), &table); err != nil {
		return pricing.Table{}, domain.WrapError(domain.ErrDatabase, err, "decode pricing table")
	}
	return table, nil
}

func (r *sqlitePricingRepo) ListAll(ctx context.Context) ([]pricing.Table, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT body FROM pricing_tables ORDER BY effective_from ASC, id ASC`)
	if err != nil {
		return nil, domain.WrapError(domain.ErrDatabase, err, "list pricing tables")
	}
	return decodeRows[pricing.Table](rows)
}

func decodeRows[T any](rows *sql.Rows) ([]T, error) {
	defer rows.Close()
	var out []T
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, domain.WrapError(domain.ErrDatabase, err, "scan row")
		}
		var v T
		if err := json.Unmarshal([]byte(body), &v); err != nil {
			return nil, domain.WrapError(domain.ErrDatabase, err, "decode row")
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
