// Package alert turns new price observations into alert events and delivers
// them to the configured channels.
package alert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cheapfinder/backend/internal/logger"
	"github.com/cheapfinder/backend/internal/metrics"
	"github.com/cheapfinder/backend/internal/model"
)

// EvaluatorStore is the persistence the evaluator needs.
type EvaluatorStore interface {
	ListRulesForProduct(ctx context.Context, product model.Product) ([]model.AlertRule, error)
	LatestSuccessful(ctx context.Context, productID, beforeID int64) (*model.PriceObservation, error)
	FindEventByKey(ctx context.Context, key model.EventKey) (*model.AlertEvent, error)
	AppendAlertEvent(ctx context.Context, e *model.AlertEvent, channels []model.Channel) (bool, error)
}

// Evaluator applies alert rules to each newly persisted observation.
// Evaluations of the same product never overlap.
type Evaluator struct {
	store   EvaluatorStore
	policy  Policy
	locks   *keyedMutex
	logger  *slog.Logger
	metrics *metrics.Pipeline
}

// NewEvaluator creates an evaluator. m may be nil.
func NewEvaluator(store EvaluatorStore, policy Policy, m *metrics.Pipeline, log *slog.Logger) *Evaluator {
	if log == nil {
		log = slog.Default()
	}
	return &Evaluator{
		store:   store,
		policy:  policy,
		locks:   newKeyedMutex(),
		logger:  log,
		metrics: m,
	}
}

// Evaluate checks obs against every enabled rule in scope for the product and
// returns the events it created. Re-evaluating the same observation returns
// no events. A failure on one rule does not stop the others.
func (e *Evaluator) Evaluate(ctx context.Context, product model.Product, obs model.PriceObservation) ([]model.AlertEvent, error) {
	if !obs.Outcome.Successful() {
		return nil, nil
	}

	unlock := e.locks.Lock(product.ID)
	defer unlock()

	log := logger.With(ctx, e.logger).With(slog.Int64("product_id", product.ID))

	rules, err := e.store.ListRulesForProduct(ctx, product)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	if len(rules) == 0 {
		return nil, nil
	}

	prev, err := e.store.LatestSuccessful(ctx, product.ID, obs.ID)
	if err != nil {
		return nil, fmt.Errorf("load previous observation: %w", err)
	}

	var (
		created []model.AlertEvent
		errs    []error
	)
	for _, rule := range rules {
		if !rule.Enabled || !rule.AppliesTo(product) {
			continue
		}
		decision, ok := Decide(rule, prev, obs, e.policy)
		if !ok {
			continue
		}

		event, isNew, err := e.emit(ctx, rule, product, prev, obs, decision)
		if err != nil {
			log.Error("Failed to record alert event",
				slog.Int64("rule_id", rule.ID),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("rule %d: %w", rule.ID, err))
			continue
		}
		if !isNew {
			log.Debug("Alert event already recorded", slog.Int64("rule_id", rule.ID), slog.Int64("event_id", event.ID))
			continue
		}

		e.metrics.ObserveAlert(string(event.Kind))
		log.Info("Alert triggered",
			slog.Int64("rule_id", rule.ID),
			slog.Int64("event_id", event.ID),
			slog.String("kind", string(event.Kind)),
			slog.String("drop_pct", event.DropPct.StringFixed(1)),
		)
		created = append(created, *event)
	}

	return created, errors.Join(errs...)
}

func (e *Evaluator) emit(
	ctx context.Context,
	rule model.AlertRule,
	product model.Product,
	prev *model.PriceObservation,
	obs model.PriceObservation,
	decision Decision,
) (*model.AlertEvent, bool, error) {
	key := model.EventKey{RuleID: rule.ID, ProductID: product.ID, NewObservationID: obs.ID}
	existing, err := e.store.FindEventByKey(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("find event: %w", err)
	}
	if existing != nil {
		return existing, false, nil
	}

	event := &model.AlertEvent{
		RuleID:           rule.ID,
		ProductID:        product.ID,
		NewObservationID: obs.ID,
		NewPrice:         obs.Price,
		Currency:         obs.Currency,
		DropPct:          decision.DropPct,
		Kind:             decision.Kind,
	}
	switch {
	case prev != nil:
		prevID := prev.ID
		event.OldObservationID = &prevID
		event.OldPrice = prev.Price
	case obs.OriginalPrice != nil:
		event.OldPrice = *obs.OriginalPrice
	}

	// The unique key still guards against a concurrent writer in another process.
	isNew, err := e.store.AppendAlertEvent(ctx, event, rule.Channels())
	if err != nil {
		return nil, false, fmt.Errorf("append event: %w", err)
	}
	return event, isNew, nil
}
