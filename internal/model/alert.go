package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// AlertCondition selects how a rule decides that a price change qualifies.
type AlertCondition string

const (
	ConditionPctDrop      AlertCondition = "pct_drop"
	ConditionAbsoluteDrop AlertCondition = "absolute_drop"
	ConditionAnySale      AlertCondition = "any_sale"
)

// Channel is a notification transport an alert can be delivered through.
type Channel string

const (
	ChannelDashboard Channel = "dashboard"
	ChannelEmail     Channel = "email"
	ChannelTelegram  Channel = "telegram"
)

// AlertRule is user configuration; the pipeline only reads it.
// A rule with neither BrandID nor ProductID set applies to every product.
type AlertRule struct {
	ID              int64           `db:"id" json:"id"`
	BrandID         *int64          `db:"brand_id" json:"brandId,omitempty"`
	ProductID       *int64          `db:"product_id" json:"productId,omitempty"`
	Condition       AlertCondition  `db:"condition" json:"condition"`
	ThresholdPct    decimal.Decimal `db:"threshold_pct" json:"thresholdPct"`
	ThresholdAmount int64           `db:"threshold_amount" json:"thresholdAmount"`
	NotifyDashboard bool            `db:"notify_dashboard" json:"notifyDashboard"`
	NotifyEmail     bool            `db:"notify_email" json:"notifyEmail"`
	NotifyTelegram  bool            `db:"notify_telegram" json:"notifyTelegram"`
	Enabled         bool            `db:"enabled" json:"enabled"`
	CreatedAt       time.Time       `db:"created_at" json:"createdAt"`
}

// Channels returns the configured channels in a stable order.
func (r AlertRule) Channels() []Channel {
	var out []Channel
	if r.NotifyDashboard {
		out = append(out, ChannelDashboard)
	}
	if r.NotifyEmail {
		out = append(out, ChannelEmail)
	}
	if r.NotifyTelegram {
		out = append(out, ChannelTelegram)
	}
	return out
}

// AppliesTo reports whether the rule is in scope for the product.
func (r AlertRule) AppliesTo(p Product) bool {
	switch {
	case r.ProductID != nil:
		return *r.ProductID == p.ID
	case r.BrandID != nil:
		return *r.BrandID == p.BrandID
	default:
		return true
	}
}

// EventKind distinguishes why an alert fired.
type EventKind string

const (
	EventPriceDrop     EventKind = "price_drop"
	EventSaleStarted   EventKind = "sale_started"
	EventTrackedOnSale EventKind = "tracked_on_sale"
)

// AlertEvent records one qualifying transition. It is unique per
// (RuleID, ProductID, NewObservationID); only delivery state changes later.
type AlertEvent struct {
	ID               int64           `db:"id" json:"id"`
	RuleID           int64           `db:"rule_id" json:"ruleId"`
	ProductID        int64           `db:"product_id" json:"productId"`
	OldObservationID *int64          `db:"old_observation_id" json:"oldObservationId,omitempty"`
	NewObservationID int64           `db:"new_observation_id" json:"newObservationId"`
	OldPrice         int64           `db:"old_price" json:"oldPrice"`
	NewPrice         int64           `db:"new_price" json:"newPrice"`
	Currency         string          `db:"currency" json:"currency"`
	DropPct          decimal.Decimal `db:"drop_pct" json:"dropPct"`
	Kind             EventKind       `db:"kind" json:"kind"`
	CreatedAt        time.Time       `db:"created_at" json:"createdAt"`
	Deliveries       []Delivery      `db:"-" json:"deliveries,omitempty"`
}

// EventKey identifies an alert event for idempotence checks.
type EventKey struct {
	RuleID           int64
	ProductID        int64
	NewObservationID int64
}

// Key returns the idempotence key of the event.
func (e AlertEvent) Key() EventKey {
	return EventKey{RuleID: e.RuleID, ProductID: e.ProductID, NewObservationID: e.NewObservationID}
}

// DeliveryStatus is the per-channel state of an alert event.
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
)

// Delivery tracks one channel of one alert event.
type Delivery struct {
	ID        int64          `db:"id" json:"id"`
	EventID   int64          `db:"event_id" json:"eventId"`
	Channel   Channel        `db:"channel" json:"channel"`
	Status    DeliveryStatus `db:"status" json:"status"`
	Attempts  int            `db:"attempts" json:"attempts"`
	LastError string         `db:"last_error" json:"lastError,omitempty"`
	UpdatedAt time.Time      `db:"updated_at" json:"updatedAt"`
}

// Notification is the dashboard projection of an alert event. Read is the
// only field that changes after creation.
type Notification struct {
	ID           int64     `db:"id" json:"id"`
	AlertEventID int64     `db:"alert_event_id" json:"alertEventId"`
	Title        string    `db:"title" json:"title"`
	Message      string    `db:"message" json:"message"`
	Read         bool      `db:"read" json:"read"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}
