package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/cheapfinder/backend/internal/model"
)

var ErrRunNotFound = errors.New("check run not found")

const runColumns = `
	id, trigger, state, started_at, finished_at, total, ok_count, failed_count, skipped_count, alert_count`

type RunRepository struct {
	db *sqlx.DB
}

func NewRunRepository(db *sqlx.DB) *RunRepository {
	return &RunRepository{db: db}
}

// SaveRun inserts the run or updates its state and counters.
func (r *RunRepository) SaveRun(ctx context.Context, run *model.CheckRun) error {
	query := `
		INSERT INTO check_runs (id, trigger, state, started_at, finished_at, total, ok_count, failed_count, skipped_count, alert_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE
		SET state = EXCLUDED.state,
		    finished_at = EXCLUDED.finished_at,
		    total = EXCLUDED.total,
		    ok_count = EXCLUDED.ok_count,
		    failed_count = EXCLUDED.failed_count,
		    skipped_count = EXCLUDED.skipped_count,
		    alert_count = EXCLUDED.alert_count`

	_, err := r.db.ExecContext(ctx, query,
		run.ID, run.Trigger, run.State, run.StartedAt, run.FinishedAt,
		run.Total, run.OK, run.Failed, run.Skipped, run.Alerts,
	)
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}

func (r *RunRepository) GetRun(ctx context.Context, id uuid.UUID) (*model.CheckRun, error) {
	return r.getRun(ctx, `SELECT`+runColumns+` FROM check_runs WHERE id = $1`, id)
}

// LatestRun returns the most recently started run.
func (r *RunRepository) LatestRun(ctx context.Context) (*model.CheckRun, error) {
	return r.getRun(ctx, `SELECT`+runColumns+` FROM check_runs ORDER BY started_at DESC LIMIT 1`)
}

func (r *RunRepository) getRun(ctx context.Context, query string, args ...interface{}) (*model.CheckRun, error) {
	var run model.CheckRun
	err := r.db.GetContext(ctx, &run, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return &run, nil
}

func (r *RunRepository) ListRuns(ctx context.Context, limit int) ([]model.CheckRun, error) {
	var runs []model.CheckRun
	query := `SELECT` + runColumns + ` FROM check_runs ORDER BY started_at DESC LIMIT $1`
	if err := r.db.SelectContext(ctx, &runs, query, limit); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}
