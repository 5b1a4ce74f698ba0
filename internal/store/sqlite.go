package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/j2kenton/apptrack/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS records (
	id           TEXT PRIMARY KEY,
	company      TEXT NOT NULL,
	position     TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'applied',
	applied_date DATETIME,
	detail       TEXT NOT NULL DEFAULT '{}',
	provenance   TEXT,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS status_history (
	record_id  TEXT NOT NULL REFERENCES records(id),
	seq        INTEGER NOT NULL,
	status     TEXT NOT NULL,
	date       DATETIME NOT NULL,
	source_id  TEXT NOT NULL,
	confidence REAL NOT NULL,
	PRIMARY KEY (record_id, seq)
);

CREATE TABLE IF NOT EXISTS processed_messages (
	source_id    TEXT PRIMARY KEY,
	record_id    TEXT NOT NULL,
	processed_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_records_status ON records(status);
CREATE INDEX IF NOT EXISTS idx_records_company ON records(company);
CREATE INDEX IF NOT EXISTS idx_processed_record_id ON processed_messages(record_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRecord(ctx context.Context, record *model.ApplicationRecord) error {
	detailJSON, provJSON, err := marshalRecord(record)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO records (id, company, position, status, applied_date, detail, provenance, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.Company, record.Position, string(record.Status),
		record.AppliedDate, string(detailJSON), jsonArg(provJSON), record.CreatedAt, record.UpdatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert record %s", record.ID)
}

func (s *SQLiteStore) UpdateRecord(ctx context.Context, record *model.ApplicationRecord) error {
	detailJSON, provJSON, err := marshalRecord(record)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE records SET company = ?, position = ?, status = ?, applied_date = ?,
		 detail = ?, provenance = ?, updated_at = ? WHERE id = ?`,
		record.Company, record.Position, string(record.Status), record.AppliedDate,
		string(detailJSON), jsonArg(provJSON), record.UpdatedAt, record.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update record %s", record.ID)
	}
	return checkRowsAffected(res, "record", record.ID)
}

func (s *SQLiteStore) GetRecord(ctx context.Context, id string) (*model.ApplicationRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, company, position, status, applied_date, detail, provenance, created_at, updated_at
		 FROM records WHERE id = ?`,
		id,
	)
	return scanRecord(row)
}

func (s *SQLiteStore) ListRecords(ctx context.Context, filter RecordFilter) ([]model.ApplicationRecord, error) {
	query := `SELECT id, company, position, status, applied_date, detail, provenance, created_at, updated_at
		 FROM records WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Company != "" {
		query += ` AND company = ?`
		args = append(args, filter.Company)
	}
	query += ` ORDER BY updated_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list records")
	}
	defer rows.Close()

	var records []model.ApplicationRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *r)
	}
	return records, eris.Wrap(rows.Err(), "sqlite: list records iterate")
}

func (s *SQLiteStore) ReplaceStatusHistory(ctx context.Context, recordID string, entries []model.StatusHistoryEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin replace history")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM status_history WHERE record_id = ?`, recordID); err != nil {
		return eris.Wrapf(err, "sqlite: delete history %s", recordID)
	}

	for seq, e := range entries {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO status_history (record_id, seq, status, date, source_id, confidence) VALUES (?, ?, ?, ?, ?, ?)`,
			recordID, seq, string(e.Status), e.Date, e.SourceID, e.Confidence,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert history %s", recordID)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit replace history")
}

func (s *SQLiteStore) GetStatusHistory(ctx context.Context, recordID string) ([]model.StatusHistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, date, source_id, confidence FROM status_history WHERE record_id = ? ORDER BY seq`,
		recordID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get history %s", recordID)
	}
	defer rows.Close()

	var entries []model.StatusHistoryEntry
	for rows.Next() {
		var e model.StatusHistoryEntry
		if err := rows.Scan(&e.Status, &e.Date, &e.SourceID, &e.Confidence); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan history entry")
		}
		e.Date = e.Date.UTC()
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: get history iterate")
}

func (s *SQLiteStore) MarkProcessed(ctx context.Context, sourceID, recordID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO processed_messages (source_id, record_id, processed_at) VALUES (?, ?, ?)
		 ON CONFLICT (source_id) DO UPDATE SET record_id = excluded.record_id, processed_at = excluded.processed_at`,
		sourceID, recordID, time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: mark processed %s", sourceID)
}

func (s *SQLiteStore) IsProcessed(ctx context.Context, sourceID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM processed_messages WHERE source_id = ?`,
		sourceID,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: is processed %s", sourceID)
	}
	return true, nil
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

func marshalRecord(record *model.ApplicationRecord) (detailJSON, provJSON []byte, err error) {
	detailJSON, err = json.Marshal(detailOf(record))
	if err != nil {
		return nil, nil, eris.Wrap(err, "store: marshal detail")
	}
	if len(record.Provenance) == 0 {
		return detailJSON, nil, nil
	}
	provJSON, err = json.Marshal(record.Provenance)
	if err != nil {
		return nil, nil, eris.Wrap(err, "store: marshal provenance")
	}
	return detailJSON, provJSON, nil
}

// jsonArg passes a nullable JSON blob to database/sql as TEXT or NULL.
func jsonArg(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRecord(row scannable) (*model.ApplicationRecord, error) {
	var r model.ApplicationRecord
	var detailJSON string
	var applied sql.NullTime
	var provJSON sql.NullString

	err := row.Scan(&r.ID, &r.Company, &r.Position, &r.Status, &applied, &detailJSON, &provJSON, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("record not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan record")
	}

	if applied.Valid {
		t := applied.Time.UTC()
		r.AppliedDate = &t
	}
	var detail recordDetail
	if err := json.Unmarshal([]byte(detailJSON), &detail); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal detail")
	}
	applyDetail(&r, detail)
	if provJSON.Valid {
		if err := json.Unmarshal([]byte(provJSON.String), &r.Provenance); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal provenance")
		}
	}
	return &r, nil
}
