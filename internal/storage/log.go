package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	_ "modernc.org/sqlite"
)

// Log is the tabular record of trained models, one row per model. Several
// training processes may append to the same file.
type Log struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

// LogRow is the summary columns of a log entry.
type LogRow struct {
	ID         float64
	UUID       string
	Timetag    string
	Constraint string
	Loss       string
	Params     int64
	Size       int64
	FinalLoss  sql.NullFloat64
}

func NewLog(path string) *Log {
	return &Log{path: path}
}

func (l *Log) Init(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.path == "" {
		return errors.New("log path is required")
	}
	if l.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", l.path)
	if err != nil {
		return err
	}

	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}

	for _, pragma := range []string{"PRAGMA busy_timeout=5000", "PRAGMA journal_mode=WAL"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return fmt.Errorf("%s: %w", pragma, err)
		}
	}

	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	l.db = db
	return nil
}

// Append inserts the record, replacing any row with the same id.
func (l *Log) Append(ctx context.Context, rec Record) error {
	db, err := l.getDB()
	if err != nil {
		return err
	}
	id, err := rec.ID()
	if err != nil {
		return err
	}
	payload, err := yaml.Marshal(rec)
	if err != nil {
		return err
	}
	row := rowOf(rec)

	_, err = db.ExecContext(ctx, `
		INSERT INTO models (id, uuid, timetag, constraint_fcn, loss_fcn, params, size, final_loss, record)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			timetag = excluded.timetag,
			constraint_fcn = excluded.constraint_fcn,
			loss_fcn = excluded.loss_fcn,
			params = excluded.params,
			size = excluded.size,
			final_loss = excluded.final_loss,
			record = excluded.record
	`, id, uuid.NewString(), row.Timetag, row.Constraint, row.Loss, row.Params, row.Size, row.FinalLoss, payload)
	return err
}

// Get returns the full record stored for id.
func (l *Log) Get(ctx context.Context, id float64) (Record, bool, error) {
	db, err := l.getDB()
	if err != nil {
		return nil, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT record FROM models WHERE id = ?`, id).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	rec := Record{}
	if err := yaml.Unmarshal(payload, &rec); err != nil {
		return nil, false, fmt.Errorf("decode record %s: %w", FormatID(id), err)
	}
	return rec, true, nil
}

// Rows returns the summary columns ordered by id.
func (l *Log) Rows(ctx context.Context) ([]LogRow, error) {
	db, err := l.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT id, uuid, timetag, constraint_fcn, loss_fcn, params, size, final_loss
		FROM models ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LogRow
	for rows.Next() {
		var r LogRow
		if err := rows.Scan(&r.ID, &r.UUID, &r.Timetag, &r.Constraint, &r.Loss, &r.Params, &r.Size, &r.FinalLoss); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.db == nil {
		return nil
	}
	err := l.db.Close()
	l.db = nil
	return err
}

func (l *Log) getDB() (*sql.DB, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.db == nil {
		return nil, errors.New("log is not initialized")
	}
	return l.db, nil
}

func rowOf(rec Record) LogRow {
	sum := summarize(rec)
	row := LogRow{
		ID:         sum.ID,
		Timetag:    sum.Timetag,
		Constraint: sum.Constraint,
		Loss:       sum.Loss,
		Params:     int64(sum.Params),
		Size:       sum.Size,
	}
	if v, ok := rec.Float("final_loss"); ok {
		row.FinalLoss = sql.NullFloat64{Float64: v, Valid: true}
	}
	return row
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS models (
			id REAL PRIMARY KEY,
			uuid TEXT NOT NULL,
			timetag TEXT NOT NULL,
			constraint_fcn TEXT NOT NULL,
			loss_fcn TEXT NOT NULL,
			params INTEGER NOT NULL,
			size INTEGER NOT NULL,
			final_loss REAL,
			record BLOB NOT NULL
		);
	`)
	return err
}
