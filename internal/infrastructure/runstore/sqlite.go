package runstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Ashirog1/rl4co/internal/domain/nco"
)

// SQLiteStore implements Store on an embedded SQLite database.
type SQLiteStore struct {
	mu sync.Mutex
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) a SQLite store at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = ".data/rl4co.db"
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("runstore: failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("runstore: failed to open database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			env TEXT NOT NULL,
			config TEXT NOT NULL,
			seed INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS step_metrics (
			run_id TEXT NOT NULL,
			step INTEGER NOT NULL,
			mean_reward REAL NOT NULL,
			loss REAL NOT NULL,
			surrogate_loss REAL NOT NULL,
			value_loss REAL NOT NULL,
			entropy REAL NOT NULL,
			clip_fraction REAL NOT NULL,
			num_updates INTEGER NOT NULL,
			lr REAL NOT NULL,
			recorded_at INTEGER NOT NULL,
			PRIMARY KEY (run_id, step)
		);

		CREATE INDEX IF NOT EXISTS idx_step_metrics_run ON step_metrics(run_id, step);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("runstore: failed to create schema: %w", err)
	}
	return nil
}

// SaveRun records a new training run.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *nco.TrainingRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := json.Marshal(run.Config)
	if err != nil {
		return fmt.Errorf("runstore: failed to encode config: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, env, config, seed, created_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.Env, string(cfg), run.Seed, run.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("runstore: failed to save run: %w", err)
	}
	return nil
}

// AppendStep records the metrics of one outer step.
func (s *SQLiteStore) AppendStep(ctx context.Context, m *nco.StepMetrics) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO step_metrics
			(run_id, step, mean_reward, loss, surrogate_loss, value_loss, entropy,
			 clip_fraction, num_updates, lr, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.RunID, m.Step, m.MeanReward, m.Loss.Total, m.Loss.Surrogate, m.Loss.Value,
		m.Loss.Entropy, m.ClipFraction, m.NumUpdates, m.LR, m.RecordedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("runstore: failed to append step: %w", err)
	}
	return nil
}

// ListRuns returns all runs, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context) ([]*nco.TrainingRun, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, env, config, seed, created_at FROM runs ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("runstore: failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*nco.TrainingRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// StepsForRun returns a run's step metrics in step order.
func (s *SQLiteStore) StepsForRun(ctx context.Context, runID string) ([]*nco.StepMetrics, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, step, mean_reward, loss, surrogate_loss, value_loss, entropy,
		        clip_fraction, num_updates, lr, recorded_at
		 FROM step_metrics WHERE run_id = ? ORDER BY step`, runID)
	if err != nil {
		return nil, fmt.Errorf("runstore: failed to query steps: %w", err)
	}
	defer rows.Close()

	var steps []*nco.StepMetrics
	for rows.Next() {
		m, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		steps = append(steps, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return steps, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// scanRun decodes one runs row.
func scanRun(rows *sql.Rows) (*nco.TrainingRun, error) {
	var run nco.TrainingRun
	var cfg string
	var createdAt int64
	if err := rows.Scan(&run.ID, &run.Env, &cfg, &run.Seed, &createdAt); err != nil {
		return nil, fmt.Errorf("runstore: failed to scan run: %w", err)
	}
	if err := json.Unmarshal([]byte(cfg), &run.Config); err != nil {
		return nil, fmt.Errorf("runstore: failed to decode config: %w", err)
	}
	run.CreatedAt = time.UnixMilli(createdAt)
	return &run, nil
}

// scanStep decodes one step_metrics row.
func scanStep(rows *sql.Rows) (*nco.StepMetrics, error) {
	var m nco.StepMetrics
	var recordedAt int64
	if err := rows.Scan(&m.RunID, &m.Step, &m.MeanReward, &m.Loss.Total, &m.Loss.Surrogate,
		&m.Loss.Value, &m.Loss.Entropy, &m.ClipFraction, &m.NumUpdates, &m.LR, &recordedAt); err != nil {
		return nil, fmt.Errorf("runstore: failed to scan step: %w", err)
	}
	m.RecordedAt = time.UnixMilli(recordedAt)
	return &m, nil
}
