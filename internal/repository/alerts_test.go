package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cheapfinder/backend/internal/model"
)

var (
	ruleRowColumns = []string{
		"id", "brand_id", "product_id", "condition", "threshold_pct", "threshold_amount",
		"notify_dashboard", "notify_email", "notify_telegram", "enabled", "created_at",
	}
	eventRowColumns = []string{
		"id", "rule_id", "product_id", "old_observation_id", "new_observation_id", "old_price",
		"new_price", "currency", "drop_pct", "kind", "created_at",
	}
	deliveryRowColumns = []string{"id", "event_id", "channel", "status", "attempts", "last_error", "updated_at"}
)

func TestAlertRepository_ListRulesForProduct(t *testing.T) {
	t.Parallel()

	db, mock := newMockDB(t)
	defer func() { _ = db.Close() }()
	repo := NewAlertRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(ruleRowColumns).
		AddRow(1, 3, nil, "pct_drop", "10", 0, true, true, false, true, now).
		AddRow(2, nil, nil, "any_sale", "0", 0, true, false, false, true, now)
	mock.ExpectQuery(`FROM alert_rules\s+WHERE enabled`).
		WithArgs(int64(4), int64(3)).
		WillReturnRows(rows)

	rules, err := repo.ListRulesForProduct(context.Background(), model.Product{ID: 4, BrandID: 3})

	require.NoError(t, err)
	require.Len(t, rules, 2)
	require.NotNil(t, rules[0].BrandID)
	assert.Equal(t, int64(3), *rules[0].BrandID)
	assert.True(t, rules[0].ThresholdPct.Equal(decimal.NewFromInt(10)))
	assert.Nil(t, rules[1].BrandID)
	assert.Equal(t, model.ConditionAnySale, rules[1].Condition)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAlertRepository_CreateRule(t *testing.T) {
	t.Parallel()

	db, mock := newMockDB(t)
	defer func() { _ = db.Close() }()
	repo := NewAlertRepository(db)

	brandID := int64(3)
	rule := &model.AlertRule{
		BrandID:         &brandID,
		Condition:       model.ConditionPctDrop,
		ThresholdPct:    decimal.NewFromInt(10),
		NotifyDashboard: true,
		NotifyEmail:     true,
		Enabled:         true,
	}
	mock.ExpectQuery(`INSERT INTO alert_rules`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(8, time.Now()))

	require.NoError(t, repo.CreateRule(context.Background(), rule))
	assert.Equal(t, int64(8), rule.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAlertRepository_FindEventByKey(t *testing.T) {
	t.Parallel()

	db, mock := newMockDB(t)
	defer func() { _ = db.Close() }()
	repo := NewAlertRepository(db)
	ctx := context.Background()
	key := model.EventKey{RuleID: 1, ProductID: 4, NewObservationID: 10}

	mock.ExpectQuery(`FROM alert_events\s+WHERE rule_id = \$1 AND product_id = \$2 AND new_observation_id = \$3`).
		WithArgs(key.RuleID, key.ProductID, key.NewObservationID).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`FROM alert_events`).
		WithArgs(key.RuleID, key.ProductID, key.NewObservationID).
		WillReturnRows(sqlmock.NewRows(eventRowColumns).
			AddRow(5, 1, 4, 9, 10, 50000, 44000, "CAD", "12.00", "price_drop", time.Now()))

	e, err := repo.FindEventByKey(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, e)

	e, err = repo.FindEventByKey(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, int64(5), e.ID)
	assert.Equal(t, key, e.Key())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func newDropEvent() *model.AlertEvent {
	old := int64(9)
	return &model.AlertEvent{
		RuleID:           1,
		ProductID:        4,
		OldObservationID: &old,
		NewObservationID: 10,
		OldPrice:         50000,
		NewPrice:         44000,
		Currency:         "CAD",
		DropPct:          decimal.NewFromInt(12),
		Kind:             model.EventPriceDrop,
	}
}

func TestAlertRepository_AppendAlertEvent_Created(t *testing.T) {
	t.Parallel()

	db, mock := newMockDB(t)
	defer func() { _ = db.Close() }()
	repo := NewAlertRepository(db)

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO alert_events .* ON CONFLICT \(rule_id, product_id, new_observation_id\) DO NOTHING`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(5, now))
	mock.ExpectQuery(`INSERT INTO alert_deliveries`).
		WithArgs(int64(5), model.ChannelDashboard, model.DeliveryPending).
		WillReturnRows(sqlmock.NewRows([]string{"id", "updated_at"}).AddRow(20, now))
	mock.ExpectQuery(`INSERT INTO alert_deliveries`).
		WithArgs(int64(5), model.ChannelEmail, model.DeliveryPending).
		WillReturnRows(sqlmock.NewRows([]string{"id", "updated_at"}).AddRow(21, now))
	mock.ExpectCommit()

	e := newDropEvent()
	created, err := repo.AppendAlertEvent(context.Background(), e, []model.Channel{model.ChannelDashboard, model.ChannelEmail})

	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, int64(5), e.ID)
	require.Len(t, e.Deliveries, 2)
	assert.Equal(t, model.ChannelEmail, e.Deliveries[1].Channel)
	assert.Equal(t, model.DeliveryPending, e.Deliveries[1].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAlertRepository_AppendAlertEvent_Duplicate(t *testing.T) {
	t.Parallel()

	db, mock := newMockDB(t)
	defer func() { _ = db.Close() }()
	repo := NewAlertRepository(db)

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO alert_events`).WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`FROM alert_events WHERE rule_id = \$1`).
		WithArgs(int64(1), int64(4), int64(10)).
		WillReturnRows(sqlmock.NewRows(eventRowColumns).
			AddRow(5, 1, 4, 9, 10, 50000, 44000, "CAD", "12.00", "price_drop", now))
	mock.ExpectQuery(`FROM alert_deliveries WHERE event_id = \$1`).
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows(deliveryRowColumns).
			AddRow(20, 5, "dashboard", "delivered", 1, "", now))
	mock.ExpectCommit()

	e := newDropEvent()
	created, err := repo.AppendAlertEvent(context.Background(), e, []model.Channel{model.ChannelDashboard})

	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, int64(5), e.ID)
	require.Len(t, e.Deliveries, 1)
	assert.Equal(t, model.DeliveryDelivered, e.Deliveries[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAlertRepository_AppendAlertEvent_DeliveryFailureRollsBack(t *testing.T) {
	t.Parallel()

	db, mock := newMockDB(t)
	defer func() { _ = db.Close() }()
	repo := NewAlertRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO alert_events`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(5, time.Now()))
	mock.ExpectQuery(`INSERT INTO alert_deliveries`).WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	_, err := repo.AppendAlertEvent(context.Background(), newDropEvent(), []model.Channel{model.ChannelEmail})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert email delivery")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAlertRepository_UpdateDelivery(t *testing.T) {
	t.Parallel()

	db, mock := newMockDB(t)
	defer func() { _ = db.Close() }()
	repo := NewAlertRepository(db)
	ctx := context.Background()

	mock.ExpectQuery(`UPDATE alert_deliveries`).
		WithArgs(int64(20), model.DeliveryFailed, 4, "smtp: timeout").
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(time.Now()))
	mock.ExpectQuery(`UPDATE alert_deliveries`).
		WithArgs(int64(99), model.DeliveryDelivered, 1, "").
		WillReturnError(sql.ErrNoRows)

	d := &model.Delivery{ID: 20, Status: model.DeliveryFailed, Attempts: 4, LastError: "smtp: timeout"}
	require.NoError(t, repo.UpdateDelivery(ctx, d))
	assert.False(t, d.UpdatedAt.IsZero())

	missing := &model.Delivery{ID: 99, Status: model.DeliveryDelivered, Attempts: 1}
	assert.ErrorIs(t, repo.UpdateDelivery(ctx, missing), ErrDeliveryNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAlertRepository_ListPendingDeliveries(t *testing.T) {
	t.Parallel()

	db, mock := newMockDB(t)
	defer func() { _ = db.Close() }()
	repo := NewAlertRepository(db)

	now := time.Now()
	mock.ExpectQuery(`FROM alert_deliveries\s+WHERE status = 'pending'`).
		WithArgs(100).
		WillReturnRows(sqlmock.NewRows(deliveryRowColumns).
			AddRow(21, 5, "email", "pending", 2, "timeout", now).
			AddRow(22, 5, "telegram", "pending", 0, "", now).
			AddRow(30, 6, "email", "pending", 0, "", now))
	mock.ExpectQuery(`FROM alert_events WHERE id = ANY\(\$1\)`).
		WillReturnRows(sqlmock.NewRows(eventRowColumns).
			AddRow(5, 1, 4, 9, 10, 50000, 44000, "CAD", "12.00", "price_drop", now).
			AddRow(6, 1, 7, nil, 12, 0, 9900, "CAD", "0", "sale_started", now))

	events, err := repo.ListPendingDeliveries(context.Background(), 100)

	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Len(t, events[0].Deliveries, 2)
	assert.Len(t, events[1].Deliveries, 1)
	assert.Nil(t, events[1].OldObservationID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAlertRepository_ListPendingDeliveries_Empty(t *testing.T) {
	t.Parallel()

	db, mock := newMockDB(t)
	defer func() { _ = db.Close() }()
	repo := NewAlertRepository(db)

	mock.ExpectQuery(`FROM alert_deliveries`).
		WithArgs(100).
		WillReturnRows(sqlmock.NewRows(deliveryRowColumns))

	events, err := repo.ListPendingDeliveries(context.Background(), 100)

	require.NoError(t, err)
	assert.Empty(t, events)
	assert.NoError(t, mock.ExpectationsWereMet())
}
