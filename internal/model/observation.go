package model

import (
	"time"

	"github.com/google/uuid"
)

// Outcome tags how a price check ended.
type Outcome string

const (
	OutcomeOK           Outcome = "ok"
	OutcomeNotFound     Outcome = "not-found"
	OutcomeParseError   Outcome = "parse-error"
	OutcomeBlocked      Outcome = "blocked"
	OutcomeNetworkError Outcome = "network-error"
)

// Successful reports whether an observation carries a usable price.
func (o Outcome) Successful() bool {
	return o == OutcomeOK
}

// PriceObservation is an immutable, append-only price fact. Failed checks are
// stored too, with a zero price, for diagnostics.
type PriceObservation struct {
	ID            int64     `db:"id" json:"id"`
	ProductID     int64     `db:"product_id" json:"productId"`
	RunID         uuid.UUID `db:"run_id" json:"runId"`
	Price         int64     `db:"price" json:"price"` // minor units
	OriginalPrice *int64    `db:"original_price" json:"originalPrice,omitempty"`
	Currency      string    `db:"currency" json:"currency"`
	OnSale        bool      `db:"on_sale" json:"onSale"`
	Outcome       Outcome   `db:"outcome" json:"outcome"`
	Detail        string    `db:"detail" json:"detail,omitempty"`
	ObservedAt    time.Time `db:"observed_at" json:"observedAt"`
}
