package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cheapfinder/backend/internal/model"
)

var runRowColumns = []string{
	"id", "trigger", "state", "started_at", "finished_at", "total", "ok_count", "failed_count", "skipped_count", "alert_count",
}

func TestRunRepository_SaveRun(t *testing.T) {
	t.Parallel()

	db, mock := newMockDB(t)
	defer func() { _ = db.Close() }()
	repo := NewRunRepository(db)

	finished := time.Now()
	run := &model.CheckRun{
		ID:         uuid.New(),
		Trigger:    model.TriggerManual,
		State:      model.RunPartiallyFailed,
		StartedAt:  finished.Add(-time.Minute),
		FinishedAt: &finished,
		Total:      12,
		OK:         10,
		Failed:     2,
		Alerts:     1,
	}
	mock.ExpectExec(`INSERT INTO check_runs .* ON CONFLICT \(id\) DO UPDATE`).
		WithArgs(run.ID, run.Trigger, run.State, run.StartedAt, run.FinishedAt, 12, 10, 2, 0, 1).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.SaveRun(context.Background(), run))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunRepository_LatestRun(t *testing.T) {
	t.Parallel()

	db, mock := newMockDB(t)
	defer func() { _ = db.Close() }()
	repo := NewRunRepository(db)
	ctx := context.Background()

	id := uuid.New()
	now := time.Now()
	mock.ExpectQuery(`FROM check_runs ORDER BY started_at DESC LIMIT 1`).
		WillReturnRows(sqlmock.NewRows(runRowColumns).
			AddRow(id.String(), "scheduled", "completed", now.Add(-time.Minute), now, 3, 3, 0, 0, 1))
	mock.ExpectQuery(`FROM check_runs ORDER BY started_at DESC LIMIT 1`).
		WillReturnError(sql.ErrNoRows)

	run, err := repo.LatestRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, id, run.ID)
	assert.Equal(t, model.RunCompleted, run.State)
	assert.True(t, run.Finished())

	_, err = repo.LatestRun(ctx)
	assert.ErrorIs(t, err, ErrRunNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunRepository_GetAndList(t *testing.T) {
	t.Parallel()

	db, mock := newMockDB(t)
	defer func() { _ = db.Close() }()
	repo := NewRunRepository(db)
	ctx := context.Background()

	id := uuid.New()
	now := time.Now()
	mock.ExpectQuery(`FROM check_runs WHERE id = \$1`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(runRowColumns).
			AddRow(id.String(), "manual", "running", now, nil, 0, 0, 0, 0, 0))
	mock.ExpectQuery(`FROM check_runs ORDER BY started_at DESC LIMIT \$1`).
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows(runRowColumns).
			AddRow(id.String(), "manual", "running", now, nil, 0, 0, 0, 0, 0))

	run, err := repo.GetRun(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, run.FinishedAt)
	assert.False(t, run.Finished())

	runs, err := repo.ListRuns(ctx, 5)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}
