package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/imoran/clade/pkg/errors"
)

const cycleTable = "clade_cycles"

// SQLiteStore persists archived cycles in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) a SQLite archive at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.New(errors.CodeConfiguration, "failed to open archive database", err).
			WithContext("path", path)
	}
	return NewSQLiteStore(db)
}

// NewSQLiteStore wraps an existing database handle and ensures schema.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New(errors.CodeConfiguration, "db is nil", nil)
	}
	if err := ensureSchema(db); err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func ensureSchema(db *sql.DB) error {
	_, err := db.Exec(fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		cycle_id TEXT PRIMARY KEY,
		created_at INTEGER NOT NULL,
		mandate_json BLOB NOT NULL,
		result_json BLOB NOT NULL,
		lineage_json BLOB NOT NULL
	)`, cycleTable))
	if err != nil {
		return errors.New(errors.CodeConfiguration, "failed to ensure archive schema", err)
	}
	return nil
}

func (s *SQLiteStore) Save(ctx context.Context, record Record) error {
	if record.CycleID == "" {
		return errors.New(errors.CodeValidation, "cycle id is required", nil)
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	mandateJSON, err := json.Marshal(record.Mandate)
	if err != nil {
		return err
	}
	resultJSON, err := json.Marshal(record.Result)
	if err != nil {
		return err
	}
	lineageJSON, err := json.Marshal(struct {
		Agents any `json:"agents,omitempty"`
		Edges  any `json:"edges,omitempty"`
	}{record.Agents, record.Edges})
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		fmt.Sprintf("INSERT OR REPLACE INTO %s (cycle_id, created_at, mandate_json, result_json, lineage_json) VALUES (?, ?, ?, ?, ?)", cycleTable),
		record.CycleID, record.CreatedAt.UnixMilli(), mandateJSON, resultJSON, lineageJSON)
	return err
}

func (s *SQLiteStore) Get(ctx context.Context, cycleID string) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT cycle_id, created_at, mandate_json, result_json, lineage_json FROM %s WHERE cycle_id = ?", cycleTable),
		cycleID)
	record, err := scanRecord(row.Scan)
	if err == sql.ErrNoRows {
		return nil, errors.New(errors.CodeNotFound, "cycle not archived", nil).
			WithContext("cycle_id", cycleID)
	}
	return record, err
}

// List returns records newest first. limit <= 0 returns all.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]*Record, error) {
	query := fmt.Sprintf("SELECT cycle_id, created_at, mandate_json, result_json, lineage_json FROM %s ORDER BY created_at DESC", cycleTable)
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		record, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func scanRecord(scan func(dest ...any) error) (*Record, error) {
	var (
		record      Record
		createdAtMs int64
		mandateJSON []byte
		resultJSON  []byte
		lineageJSON []byte
	)
	if err := scan(&record.CycleID, &createdAtMs, &mandateJSON, &resultJSON, &lineageJSON); err != nil {
		return nil, err
	}
	record.CreatedAt = time.UnixMilli(createdAtMs).UTC()
	if err := json.Unmarshal(mandateJSON, &record.Mandate); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(resultJSON, &record.Result); err != nil {
		return nil, err
	}
	var doc struct {
		Agents json.RawMessage `json:"agents"`
		Edges  json.RawMessage `json:"edges"`
	}
	if err := json.Unmarshal(lineageJSON, &doc); err != nil {
		return nil, err
	}
	if len(doc.Agents) > 0 {
		if err := json.Unmarshal(doc.Agents, &record.Agents); err != nil {
			return nil, err
		}
	}
	if len(doc.Edges) > 0 {
		if err := json.Unmarshal(doc.Edges, &record.Edges); err != nil {
			return nil, err
		}
	}
	return &record, nil
}
