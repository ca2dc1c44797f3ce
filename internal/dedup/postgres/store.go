// Package postgres provides the Postgres-backed dedup store.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/leadscout/leadscout/internal/dedup"
	"github.com/leadscout/leadscout/internal/lead"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for the dedup table.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type querier interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// Store implements dedup.Store on a pgx pool.
type Store struct {
	pool  querier
	table string
}

// New creates a Postgres-backed Store using the provided config.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("dedup.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "sent_leads"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool, table: table}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(pool querier, table string) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "sent_leads"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Store{pool: pool, table: table}, nil
}

// Init creates the dedup table when it does not exist.
func (s *Store) Init(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	fingerprint TEXT PRIMARY KEY,
	payload JSONB,
	created_at TIMESTAMPTZ NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return unavailable("create table", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Contains reports whether the fingerprint was already admitted.
func (s *Store) Contains(ctx context.Context, fp lead.Fingerprint) (bool, error) {
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE fingerprint = $1)`, s.table)
	var exists bool
	if err := s.pool.QueryRow(ctx, query, string(fp)).Scan(&exists); err != nil {
		return false, unavailable("contains", err)
	}
	return exists, nil
}

// TryAdmit inserts the record unless the fingerprint already exists. The
// conflict target makes admission atomic under concurrent callers.
func (s *Store) TryAdmit(ctx context.Context, rec lead.DeliveryRecord) (bool, error) {
	if rec.Fingerprint == "" {
		return false, fmt.Errorf("fingerprint is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (fingerprint, payload, created_at)
VALUES ($1, $2, $3)
ON CONFLICT (fingerprint) DO NOTHING`, s.table)
	tag, err := s.pool.Exec(ctx, query, string(rec.Fingerprint), rec.Payload, rec.CreatedAt)
	if err != nil {
		return false, unavailable("admit", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListAll returns every admitted record, newest first.
func (s *Store) ListAll(ctx context.Context) ([]lead.DeliveryRecord, error) {
	query := fmt.Sprintf(`SELECT fingerprint, payload, created_at FROM %s ORDER BY created_at DESC`, s.table)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, unavailable("list", err)
	}
	defer rows.Close()

	var out []lead.DeliveryRecord
	for rows.Next() {
		var (
			fp      string
			payload []byte
			created time.Time
		)
		if err := rows.Scan(&fp, &payload, &created); err != nil {
			return nil, unavailable("scan", err)
		}
		out = append(out, lead.DeliveryRecord{
			Fingerprint: lead.Fingerprint(fp),
			Payload:     payload,
			CreatedAt:   created,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list", err)
	}
	return out, nil
}

// RemoveMany deletes the given fingerprints.
func (s *Store) RemoveMany(ctx context.Context, fps []lead.Fingerprint) (int64, error) {
	if len(fps) == 0 {
		return 0, nil
	}
	ids := make([]string, len(fps))
	for i, fp := range fps {
		ids[i] = string(fp)
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE fingerprint = ANY($1)`, s.table)
	tag, err := s.pool.Exec(ctx, query, ids)
	if err != nil {
		return 0, unavailable("remove", err)
	}
	return tag.RowsAffected(), nil
}

// RemoveOlderThan deletes records created before the cutoff.
func (s *Store) RemoveOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE created_at < $1`, s.table)
	tag, err := s.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, unavailable("remove older", err)
	}
	return tag.RowsAffected(), nil
}

// RemoveByContact deletes records whose stored payload mentions the contact.
func (s *Store) RemoveByContact(ctx context.Context, contact string) (int64, error) {
	if contact == "" {
		return 0, nil
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE payload::text ILIKE $1`, s.table)
	tag, err := s.pool.Exec(ctx, query, "%"+contact+"%")
	if err != nil {
		return 0, unavailable("remove by contact", err)
	}
	return tag.RowsAffected(), nil
}

// Backup copies the current table into a timestamped snapshot table and
// returns its name.
func (s *Store) Backup(ctx context.Context) (string, error) {
	name := fmt.Sprintf("%s_backup_%s", s.table, time.Now().UTC().Format("20060102t150405"))
	query := fmt.Sprintf(`CREATE TABLE %s AS SELECT * FROM %s`, name, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return "", unavailable("backup", err)
	}
	return name, nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", dedup.ErrStoreUnavailable, op, err)
}
