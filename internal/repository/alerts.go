package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/cheapfinder/backend/internal/model"
)

var (
	ErrAlertEventNotFound = errors.New("alert event not found")
	ErrDeliveryNotFound   = errors.New("delivery not found")
)

const (
	ruleColumns = `
		id, brand_id, product_id, condition, threshold_pct, threshold_amount,
		notify_dashboard, notify_email, notify_telegram, enabled, created_at`
	eventColumns = `
		id, rule_id, product_id, old_observation_id, new_observation_id, old_price,
		new_price, currency, drop_pct, kind, created_at`
	deliveryColumns = `id, event_id, channel, status, attempts, last_error, updated_at`
)

// AlertRepository stores alert rules, events and their per-channel deliveries.
type AlertRepository struct {
	db *sqlx.DB
}

func NewAlertRepository(db *sqlx.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

// ListRulesForProduct returns the enabled rules scoped to the product, its
// brand, or every product.
func (r *AlertRepository) ListRulesForProduct(ctx context.Context, product model.Product) ([]model.AlertRule, error) {
	query := `SELECT` + ruleColumns + `
		FROM alert_rules
		WHERE enabled
		  AND (product_id = $1
		       OR (product_id IS NULL AND brand_id = $2)
		       OR (product_id IS NULL AND brand_id IS NULL))
		ORDER BY id`

	var rules []model.AlertRule
	if err := r.db.SelectContext(ctx, &rules, query, product.ID, product.BrandID); err != nil {
		return nil, fmt.Errorf("list rules for product: %w", err)
	}
	return rules, nil
}

func (r *AlertRepository) CreateRule(ctx context.Context, rule *model.AlertRule) error {
	query := `
		INSERT INTO alert_rules (brand_id, product_id, condition, threshold_pct, threshold_amount,
		                         notify_dashboard, notify_email, notify_telegram, enabled, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		RETURNING id, created_at`

	err := r.db.QueryRowxContext(ctx, query,
		rule.BrandID, rule.ProductID, rule.Condition, rule.ThresholdPct, rule.ThresholdAmount,
		rule.NotifyDashboard, rule.NotifyEmail, rule.NotifyTelegram, rule.Enabled,
	).Scan(&rule.ID, &rule.CreatedAt)
	if err != nil {
		return fmt.Errorf("create alert rule: %w", err)
	}
	return nil
}

// FindEventByKey returns the event for the key, or nil when none exists.
func (r *AlertRepository) FindEventByKey(ctx context.Context, key model.EventKey) (*model.AlertEvent, error) {
	query := `SELECT` + eventColumns + `
		FROM alert_events
		WHERE rule_id = $1 AND product_id = $2 AND new_observation_id = $3`

	var e model.AlertEvent
	err := r.db.GetContext(ctx, &e, query, key.RuleID, key.ProductID, key.NewObservationID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find alert event: %w", err)
	}
	return &e, nil
}

// AppendAlertEvent inserts the event with one pending delivery per channel.
// When an event with the same key already exists it is loaded into e
// instead, and created is false.
func (r *AlertRepository) AppendAlertEvent(ctx context.Context, e *model.AlertEvent, channels []model.Channel) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin alert event: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	insertEvent := `
		INSERT INTO alert_events (rule_id, product_id, old_observation_id, new_observation_id,
		                          old_price, new_price, currency, drop_pct, kind, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (rule_id, product_id, new_observation_id) DO NOTHING
		RETURNING id, created_at`

	err = tx.QueryRowxContext(ctx, insertEvent,
		e.RuleID, e.ProductID, e.OldObservationID, e.NewObservationID,
		e.OldPrice, e.NewPrice, e.Currency, e.DropPct, e.Kind,
	).Scan(&e.ID, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		existing, err := loadEvent(ctx, tx, `rule_id = $1 AND product_id = $2 AND new_observation_id = $3`,
			e.RuleID, e.ProductID, e.NewObservationID)
		if err != nil {
			return false, err
		}
		*e = *existing
		return false, tx.Commit()
	}
	if err != nil {
		return false, fmt.Errorf("insert alert event: %w", err)
	}

	insertDelivery := `
		INSERT INTO alert_deliveries (event_id, channel, status, attempts, last_error, updated_at)
		VALUES ($1, $2, $3, 0, '', NOW())
		RETURNING id, updated_at`

	e.Deliveries = make([]model.Delivery, 0, len(channels))
	for _, ch := range channels {
		d := model.Delivery{EventID: e.ID, Channel: ch, Status: model.DeliveryPending}
		if err := tx.QueryRowxContext(ctx, insertDelivery, e.ID, ch, d.Status).Scan(&d.ID, &d.UpdatedAt); err != nil {
			return false, fmt.Errorf("insert %s delivery: %w", ch, err)
		}
		e.Deliveries = append(e.Deliveries, d)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit alert event: %w", err)
	}
	return true, nil
}

// GetAlertEvent returns an event with all of its deliveries.
func (r *AlertRepository) GetAlertEvent(ctx context.Context, id int64) (*model.AlertEvent, error) {
	return loadEvent(ctx, r.db, `id = $1`, id)
}

func loadEvent(ctx context.Context, q sqlx.QueryerContext, where string, args ...interface{}) (*model.AlertEvent, error) {
	var e model.AlertEvent
	err := sqlx.GetContext(ctx, q, &e, `SELECT`+eventColumns+` FROM alert_events WHERE `+where, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAlertEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load alert event: %w", err)
	}

	query := `SELECT ` + deliveryColumns + ` FROM alert_deliveries WHERE event_id = $1 ORDER BY id`
	if err := sqlx.SelectContext(ctx, q, &e.Deliveries, query, e.ID); err != nil {
		return nil, fmt.Errorf("load deliveries: %w", err)
	}
	return &e, nil
}

// UpdateDelivery persists the status, attempt count and last error of a delivery.
func (r *AlertRepository) UpdateDelivery(ctx context.Context, d *model.Delivery) error {
	query := `
		UPDATE alert_deliveries
		SET status = $2, attempts = $3, last_error = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`

	err := r.db.QueryRowxContext(ctx, query, d.ID, d.Status, d.Attempts, d.LastError).Scan(&d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrDeliveryNotFound
	}
	if err != nil {
		return fmt.Errorf("update delivery: %w", err)
	}
	return nil
}

// ListPendingDeliveries returns events that still have pending deliveries.
// Only the pending deliveries are attached to each event.
func (r *AlertRepository) ListPendingDeliveries(ctx context.Context, limit int) ([]model.AlertEvent, error) {
	var pending []model.Delivery
	query := `SELECT ` + deliveryColumns + `
		FROM alert_deliveries
		WHERE status = 'pending'
		ORDER BY event_id, id
		LIMIT $1`
	if err := r.db.SelectContext(ctx, &pending, query, limit); err != nil {
		return nil, fmt.Errorf("list pending deliveries: %w", err)
	}
	if len(pending) == 0 {
		return nil, nil
	}

	ids := make([]int64, 0, len(pending))
	byEvent := make(map[int64][]model.Delivery)
	for _, d := range pending {
		if _, ok := byEvent[d.EventID]; !ok {
			ids = append(ids, d.EventID)
		}
		byEvent[d.EventID] = append(byEvent[d.EventID], d)
	}

	var events []model.AlertEvent
	query = `SELECT` + eventColumns + ` FROM alert_events WHERE id = ANY($1) ORDER BY id`
	if err := r.db.SelectContext(ctx, &events, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("load pending events: %w", err)
	}
	for i := range events {
		events[i].Deliveries = byEvent[events[i].ID]
	}
	return events, nil
}
