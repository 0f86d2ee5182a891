package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cheapfinder/backend/internal/apperror"
	"github.com/cheapfinder/backend/internal/model"
	"github.com/cheapfinder/backend/internal/repository/memstore"
	"github.com/cheapfinder/backend/internal/scraper"
	"github.com/cheapfinder/backend/internal/tracking"
)

// MockCheckRunner is a mock implementation of CheckRunner
type MockCheckRunner struct {
	mock.Mock
	health *scraper.MetricsCollector
}

func (m *MockCheckRunner) Run(ctx context.Context, trigger model.RunTrigger) (*model.CheckRun, error) {
	args := m.Called(ctx, trigger)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CheckRun), args.Error(1)
}

func (m *MockCheckRunner) Running() bool {
	return m.Called().Bool(0)
}

func (m *MockCheckRunner) Health() *scraper.MetricsCollector {
	return m.health
}

func TestPriceCheckService_Trigger(t *testing.T) {
	t.Parallel()

	runner := &MockCheckRunner{health: scraper.NewMetricsCollector()}
	done := make(chan struct{})
	runner.On("Running").Return(false).Once()
	runner.On("Run", mock.Anything, model.TriggerManual).
		Run(func(mock.Arguments) { close(done) }).
		Return(&model.CheckRun{ID: uuid.New(), State: model.RunCompleted}, nil)

	svc := NewPriceCheckService(runner, memstore.New(), newTestRegistry(t), nil, nil)
	defer svc.Close()

	require.NoError(t, svc.Trigger(context.Background()))
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("run was not started")
	}
}

func TestPriceCheckService_TriggerWhileRunning(t *testing.T) {
	t.Parallel()

	runner := &MockCheckRunner{health: scraper.NewMetricsCollector()}
	runner.On("Running").Return(true)

	svc := NewPriceCheckService(runner, memstore.New(), newTestRegistry(t), nil, nil)
	defer svc.Close()

	err := svc.Trigger(context.Background())
	assert.ErrorIs(t, err, apperror.ErrConflict)
	runner.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
}

func TestPriceCheckService_RunSyncConflict(t *testing.T) {
	t.Parallel()

	runner := &MockCheckRunner{health: scraper.NewMetricsCollector()}
	runner.On("Run", mock.Anything, model.TriggerManual).Return(nil, tracking.ErrRunInProgress)

	svc := NewPriceCheckService(runner, memstore.New(), newTestRegistry(t), nil, nil)
	_, err := svc.RunSync(context.Background())
	assert.ErrorIs(t, err, apperror.ErrConflict)
}

func TestPriceCheckService_Runs(t *testing.T) {
	t.Parallel()

	store := memstore.New()
	svc := NewPriceCheckService(&MockCheckRunner{health: scraper.NewMetricsCollector()}, store, newTestRegistry(t), nil, nil)
	ctx := context.Background()

	_, err := svc.LatestRun(ctx)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	older := &model.CheckRun{ID: uuid.New(), State: model.RunCompleted, StartedAt: time.Now().Add(-24 * time.Hour)}
	newer := &model.CheckRun{ID: uuid.New(), State: model.RunPartiallyFailed, StartedAt: time.Now()}
	require.NoError(t, store.SaveRun(ctx, older))
	require.NoError(t, store.SaveRun(ctx, newer))

	latest, err := svc.LatestRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, newer.ID, latest.ID)

	runs, err := svc.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestPriceCheckService_GetHealth(t *testing.T) {
	t.Parallel()

	health := scraper.NewMetricsCollector()
	health.Record("nrml", model.OutcomeOK, time.Second, nil)
	health.Record("ssense", model.OutcomeBlocked, time.Second, assert.AnError)
	health.FinishRun()

	next := time.Date(2026, 1, 2, 6, 0, 0, 0, time.UTC)
	svc := NewPriceCheckService(&MockCheckRunner{health: health}, memstore.New(), newTestRegistry(t),
		func() time.Time { return next }, nil)

	status := svc.GetHealth()
	assert.False(t, status.Healthy)
	assert.Equal(t, next, status.NextRunTime)
	assert.Equal(t, 2, status.TotalRetailers)
	assert.Equal(t, []string{"ssense"}, status.UnhealthyRetailers)

	metrics := svc.GetRetailerMetrics()
	assert.Equal(t, 1, metrics["ssense"].Blocked)

	probe := svc.ProbeRetailers(context.Background())
	assert.Equal(t, map[string]bool{"nrml": true, "ssense": true}, probe)
}
