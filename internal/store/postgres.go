package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/j2kenton/apptrack/internal/db"
	"github.com/j2kenton/apptrack/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"insert_record":  `INSERT INTO records (id, company, position, status, applied_date, detail, provenance, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
	"update_record":  `UPDATE records SET company = $1, position = $2, status = $3, applied_date = $4, detail = $5, provenance = $6, updated_at = $7 WHERE id = $8`,
	"get_record":     `SELECT id, company, position, status, applied_date, detail, provenance, created_at, updated_at FROM records WHERE id = $1`,
	"get_history":    `SELECT status, date, source_id, confidence FROM status_history WHERE record_id = $1 ORDER BY seq`,
	"mark_processed": `INSERT INTO processed_messages (source_id, record_id, processed_at) VALUES ($1, $2, $3) ON CONFLICT (source_id) DO UPDATE SET record_id = $2, processed_at = $3`,
	"is_processed":   `SELECT 1 FROM processed_messages WHERE source_id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS records (
	id           TEXT PRIMARY KEY,
	company      TEXT NOT NULL,
	position     TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'applied',
	applied_date DATE,
	detail       JSONB NOT NULL DEFAULT '{}'::jsonb,
	provenance   JSONB,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS status_history (
	record_id  TEXT NOT NULL REFERENCES records(id),
	seq        INTEGER NOT NULL,
	status     TEXT NOT NULL,
	date       TIMESTAMPTZ NOT NULL,
	source_id  TEXT NOT NULL,
	confidence DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (record_id, seq)
);

CREATE TABLE IF NOT EXISTS processed_messages (
	source_id    TEXT PRIMARY KEY,
	record_id    TEXT NOT NULL,
	processed_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_records_status ON records(status);
CREATE INDEX IF NOT EXISTS idx_records_company ON records(company);
CREATE INDEX IF NOT EXISTS idx_processed_record_id ON processed_messages(record_id);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRecord(ctx context.Context, record *model.ApplicationRecord) error {
	detailJSON, provJSON, err := marshalRecord(record)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO records (id, company, position, status, applied_date, detail, provenance, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		record.ID, record.Company, record.Position, string(record.Status),
		record.AppliedDate, detailJSON, provJSON, record.CreatedAt, record.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: insert record %s", record.ID)
}

func (s *PostgresStore) UpdateRecord(ctx context.Context, record *model.ApplicationRecord) error {
	detailJSON, provJSON, err := marshalRecord(record)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE records SET company = $1, position = $2, status = $3, applied_date = $4, detail = $5, provenance = $6, updated_at = $7 WHERE id = $8`,
		record.Company, record.Position, string(record.Status), record.AppliedDate,
		detailJSON, provJSON, record.UpdatedAt, record.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update record %s", record.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("record not found: %s", record.ID)
	}
	return nil
}

func (s *PostgresStore) GetRecord(ctx context.Context, id string) (*model.ApplicationRecord, error) {
	var r model.ApplicationRecord
	var detailJSON []byte
	var provJSON *[]byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, company, position, status, applied_date, detail, provenance, created_at, updated_at FROM records WHERE id = $1`,
		id,
	).Scan(&r.ID, &r.Company, &r.Position, &r.Status, &r.AppliedDate, &detailJSON, &provJSON, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get record %s", id)
	}

	if err := unmarshalRecord(&r, detailJSON, provJSON); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *PostgresStore) ListRecords(ctx context.Context, filter RecordFilter) ([]model.ApplicationRecord, error) {
	query := `SELECT id, company, position, status, applied_date, detail, provenance, created_at, updated_at FROM records WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.Company != "" {
		query += fmt.Sprintf(` AND company = $%d`, argIdx)
		args = append(args, filter.Company)
		argIdx++
	}
	query += ` ORDER BY updated_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
		argIdx++
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list records")
	}
	defer rows.Close()

	var records []model.ApplicationRecord
	for rows.Next() {
		var r model.ApplicationRecord
		var detailJSON []byte
		var provJSON *[]byte

		if err := rows.Scan(&r.ID, &r.Company, &r.Position, &r.Status, &r.AppliedDate, &detailJSON, &provJSON, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan record")
		}
		if err := unmarshalRecord(&r, detailJSON, provJSON); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, eris.Wrap(rows.Err(), "postgres: list records iterate")
}

func (s *PostgresStore) ReplaceStatusHistory(ctx context.Context, recordID string, entries []model.StatusHistoryEntry) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin replace history")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM status_history WHERE record_id = $1`, recordID); err != nil {
		return eris.Wrapf(err, "postgres: delete history %s", recordID)
	}

	for seq, e := range entries {
		if _, err := tx.Exec(ctx,
			`INSERT INTO status_history (record_id, seq, status, date, source_id, confidence) VALUES ($1, $2, $3, $4, $5, $6)`,
			recordID, seq, string(e.Status), e.Date, e.SourceID, e.Confidence,
		); err != nil {
			return eris.Wrapf(err, "postgres: insert history %s", recordID)
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit replace history")
}

func (s *PostgresStore) GetStatusHistory(ctx context.Context, recordID string) ([]model.StatusHistoryEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT status, date, source_id, confidence FROM status_history WHERE record_id = $1 ORDER BY seq`,
		recordID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get history %s", recordID)
	}
	defer rows.Close()

	var entries []model.StatusHistoryEntry
	for rows.Next() {
		var e model.StatusHistoryEntry
		if err := rows.Scan(&e.Status, &e.Date, &e.SourceID, &e.Confidence); err != nil {
			return nil, eris.Wrap(err, "postgres: scan history entry")
		}
		e.Date = e.Date.UTC()
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: get history iterate")
}

func (s *PostgresStore) MarkProcessed(ctx context.Context, sourceID, recordID string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO processed_messages (source_id, record_id, processed_at) VALUES ($1, $2, $3) ON CONFLICT (source_id) DO UPDATE SET record_id = $2, processed_at = $3`,
		sourceID, recordID, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: mark processed %s", sourceID)
}

func (s *PostgresStore) IsProcessed(ctx context.Context, sourceID string) (bool, error) {
	var one int
	err := s.pool.QueryRow(ctx,
		`SELECT 1 FROM processed_messages WHERE source_id = $1`,
		sourceID,
	).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, eris.Wrapf(err, "postgres: is processed %s", sourceID)
	}
	return true, nil
}

func unmarshalRecord(r *model.ApplicationRecord, detailJSON []byte, provJSON *[]byte) error {
	var detail recordDetail
	if err := json.Unmarshal(detailJSON, &detail); err != nil {
		return eris.Wrap(err, "postgres: unmarshal detail")
	}
	applyDetail(r, detail)
	if provJSON != nil {
		if err := json.Unmarshal(*provJSON, &r.Provenance); err != nil {
			return eris.Wrap(err, "postgres: unmarshal provenance")
		}
	}
	if r.AppliedDate != nil {
		t := r.AppliedDate.UTC()
		r.AppliedDate = &t
	}
	return nil
}
