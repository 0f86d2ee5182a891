package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/cheapfinder/backend/internal/model"
)

const observationColumns = `
	id, product_id, run_id, price, original_price, currency, on_sale, outcome, detail, observed_at`

// ObservationRepository stores the append-only price history.
type ObservationRepository struct {
	db *sqlx.DB
}

func NewObservationRepository(db *sqlx.DB) *ObservationRepository {
	return &ObservationRepository{db: db}
}

// AppendObservation inserts an observation and sets its ID. Observations are
// never updated.
func (r *ObservationRepository) AppendObservation(ctx context.Context, o *model.PriceObservation) error {
	query := `
		INSERT INTO price_observations (product_id, run_id, price, original_price, currency, on_sale, outcome, detail, observed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`

	if o.ObservedAt.IsZero() {
		o.ObservedAt = time.Now().UTC()
	}
	err := r.db.QueryRowxContext(ctx, query,
		o.ProductID, o.RunID, o.Price, o.OriginalPrice, o.Currency, o.OnSale, o.Outcome, o.Detail, o.ObservedAt,
	).Scan(&o.ID)
	if err != nil {
		return fmt.Errorf("append observation: %w", err)
	}
	return nil
}

// LatestSuccessful returns the newest successful observation of the product
// recorded before beforeID, or nil when there is none.
func (r *ObservationRepository) LatestSuccessful(ctx context.Context, productID, beforeID int64) (*model.PriceObservation, error) {
	query := `SELECT` + observationColumns + `
		FROM price_observations
		WHERE product_id = $1 AND outcome = 'ok' AND id < $2
		ORDER BY id DESC
		LIMIT 1`

	var o model.PriceObservation
	err := r.db.GetContext(ctx, &o, query, productID, beforeID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest successful observation: %w", err)
	}
	return &o, nil
}

// PriceHistory returns successful observations since the given time, oldest first.
func (r *ObservationRepository) PriceHistory(ctx context.Context, productID int64, since time.Time) ([]model.PriceObservation, error) {
	query := `SELECT` + observationColumns + `
		FROM price_observations
		WHERE product_id = $1 AND outcome = 'ok' AND observed_at >= $2
		ORDER BY observed_at ASC, id ASC`

	var history []model.PriceObservation
	if err := r.db.SelectContext(ctx, &history, query, productID, since); err != nil {
		return nil, fmt.Errorf("price history: %w", err)
	}
	return history, nil
}
