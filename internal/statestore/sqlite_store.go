package statestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver, no CGO

	"github.com/quadrant-vms/core-sub001/internal/log"
)

// SQLiteStore is the durable Store backing used when `database_url`
// points at a local file (SPEC_FULL.md's statestore supplement). It
// exists purely so a worker can reconstruct in-flight task records after
// a restart — it plays no role in the lease invariant.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) dbPath and runs the schema migration.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_synchronous=NORMAL", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open statestore database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping statestore database: %w", err)
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate statestore database: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) migrate() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS task_records (
		domain TEXT NOT NULL,
		id TEXT NOT NULL,
		node_id TEXT NOT NULL,
		state TEXT NOT NULL,
		last_error TEXT NOT NULL DEFAULT '',
		config_json TEXT NOT NULL DEFAULT '{}',
		frames INTEGER NOT NULL DEFAULT 0,
		detections INTEGER NOT NULL DEFAULT 0,
		started_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (domain, id)
	);
	CREATE INDEX IF NOT EXISTS idx_task_records_node ON task_records(domain, node_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Upsert(ctx context.Context, rec Record) (Record, error) {
	cfg, err := json.Marshal(rec.Config)
	if err != nil {
		return Record{}, err
	}
	now := time.Now().UTC()
	if rec.StartedAt.IsZero() {
		rec.StartedAt = now
	}
	rec.UpdatedAt = now

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO task_records (domain, id, node_id, state, last_error, config_json, frames, detections, started_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(domain, id) DO UPDATE SET
			node_id=excluded.node_id, state=excluded.state, last_error=excluded.last_error,
			config_json=excluded.config_json, updated_at=excluded.updated_at
	`, rec.Domain, rec.ID, rec.NodeID, rec.State, rec.LastError, string(cfg), rec.Stats.Frames, rec.Stats.Detections,
		rec.StartedAt.Format(time.RFC3339Nano), rec.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return Record{}, err
	}
	return s.mustGet(ctx, rec.Domain, rec.ID)
}

func (s *SQLiteStore) mustGet(ctx context.Context, domain Domain, id string) (Record, error) {
	rec, ok, err := s.Get(ctx, domain, id)
	if err != nil {
		return Record{}, err
	}
	if !ok {
		return Record{}, sql.ErrNoRows
	}
	return rec, nil
}

func (s *SQLiteStore) Get(ctx context.Context, domain Domain, id string) (Record, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT domain, id, node_id, state, last_error, config_json, frames, detections, started_at, updated_at
		FROM task_records WHERE domain = ? AND id = ?`, domain, id)
	rec, err := scanRecord(row.Scan)
	if err == sql.ErrNoRows {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}

func (s *SQLiteStore) List(ctx context.Context, domain Domain, nodeID string) ([]Record, error) {
	query := `SELECT domain, id, node_id, state, last_error, config_json, frames, detections, started_at, updated_at
		FROM task_records WHERE domain = ?`
	args := []any{domain}
	if nodeID != "" {
		query += " AND node_id = ?"
		args = append(args, nodeID)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Delete(ctx context.Context, domain Domain, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM task_records WHERE domain = ? AND id = ?`, domain, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *SQLiteStore) UpdateState(ctx context.Context, domain Domain, id string, state TaskState, lastError string) (Record, bool, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx, `
		UPDATE task_records SET state = ?, last_error = ?, updated_at = ? WHERE domain = ? AND id = ?`,
		state, lastError, now, domain, id)
	if err != nil {
		return Record{}, false, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Record{}, false, nil
	}
	rec, err := s.mustGet(ctx, domain, id)
	return rec, true, err
}

func (s *SQLiteStore) UpdateStats(ctx context.Context, domain Domain, id string, framesDelta, detectionsDelta int64) (Record, bool, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx, `
		UPDATE task_records SET frames = frames + ?, detections = detections + ?, updated_at = ?
		WHERE domain = ? AND id = ?`, framesDelta, detectionsDelta, now, domain, id)
	if err != nil {
		return Record{}, false, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Record{}, false, nil
	}
	rec, err := s.mustGet(ctx, domain, id)
	return rec, true, err
}

func scanRecord(scan func(dest ...any) error) (Record, error) {
	var rec Record
	var cfgJSON, started, updated string
	if err := scan(&rec.Domain, &rec.ID, &rec.NodeID, &rec.State, &rec.LastError, &cfgJSON,
		&rec.Stats.Frames, &rec.Stats.Detections, &started, &updated); err != nil {
		return Record{}, err
	}
	if cfgJSON != "" {
		if err := json.Unmarshal([]byte(cfgJSON), &rec.Config); err != nil {
			log.WithComponent("statestore").Warn().Err(err).Msg("failed to decode task config json")
		}
	}
	rec.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
	rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return rec, nil
}
