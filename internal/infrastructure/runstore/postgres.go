package runstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/Ashirog1/rl4co/internal/domain/nco"
)

// PostgresConfig holds PostgreSQL connection settings. Unset fields fall back
// to the standard PG* environment variables.
type PostgresConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSL      bool   `json:"ssl"`
}

// PostgresStore implements Store on PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects to PostgreSQL and ensures the schema exists.
func NewPostgresStore(ctx context.Context, config PostgresConfig) (*PostgresStore, error) {
	if config.Host == "" {
		config.Host = getEnvOrDefault("PGHOST", "localhost")
	}
	if config.Port == 0 {
		config.Port = 5432
	}
	if config.User == "" {
		config.User = getEnvOrDefault("PGUSER", "postgres")
	}
	if config.Password == "" {
		config.Password = os.Getenv("PGPASSWORD")
	}
	if config.Database == "" {
		config.Database = os.Getenv("PGDATABASE")
	}

	sslMode := "disable"
	if config.SSL {
		sslMode = "require"
	}
	connStr := fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Database, sslMode)
	if config.Password != "" {
		connStr += fmt.Sprintf(" password=%s", config.Password)
	}

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("runstore: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("runstore: failed to ping database: %w", err)
	}

	s := &PostgresStore{db: db}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			env TEXT NOT NULL,
			config JSONB NOT NULL,
			seed BIGINT NOT NULL,
			created_at BIGINT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS step_metrics (
			run_id TEXT NOT NULL,
			step INTEGER NOT NULL,
			mean_reward DOUBLE PRECISION NOT NULL,
			loss DOUBLE PRECISION NOT NULL,
			surrogate_loss DOUBLE PRECISION NOT NULL,
			value_loss DOUBLE PRECISION NOT NULL,
			entropy DOUBLE PRECISION NOT NULL,
			clip_fraction DOUBLE PRECISION NOT NULL,
			num_updates INTEGER NOT NULL,
			lr DOUBLE PRECISION NOT NULL,
			recorded_at BIGINT NOT NULL,
			PRIMARY KEY (run_id, step)
		);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("runstore: failed to create schema: %w", err)
	}
	return nil
}

// SaveRun records a new training run.
func (s *PostgresStore) SaveRun(ctx context.Context, run *nco.TrainingRun) error {
	cfg, err := json.Marshal(run.Config)
	if err != nil {
		return fmt.Errorf("runstore: failed to encode config: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, env, config, seed, created_at) VALUES ($1, $2, $3, $4, $5)`,
		run.ID, run.Env, string(cfg), run.Seed, run.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("runstore: failed to save run: %w", err)
	}
	return nil
}

// AppendStep records the metrics of one outer step.
func (s *PostgresStore) AppendStep(ctx context.Context, m *nco.StepMetrics) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO step_metrics
			(run_id, step, mean_reward, loss, surrogate_loss, value_loss, entropy,
			 clip_fraction, num_updates, lr, recorded_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		m.RunID, m.Step, m.MeanReward, m.Loss.Total, m.Loss.Surrogate, m.Loss.Value,
		m.Loss.Entropy, m.ClipFraction, m.NumUpdates, m.LR, m.RecordedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("runstore: failed to append step: %w", err)
	}
	return nil
}

// ListRuns returns all runs, newest first.
func (s *PostgresStore) ListRuns(ctx context.Context) ([]*nco.TrainingRun, error) {
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
func (s *PostgresStore) StepsForRun(ctx context.Context, runID string) ([]*nco.StepMetrics, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, step, mean_reward, loss, surrogate_loss, value_loss, entropy,
		        clip_fraction, num_updates, lr, recorded_at
		 FROM step_metrics WHERE run_id = $1 ORDER BY step`, runID)
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
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// getEnvOrDefault returns an environment variable value or a default.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
