package alert

import (
	"github.com/shopspring/decimal"

	"github.com/cheapfinder/backend/internal/model"
)

// DefaultThresholdPct applies to pct_drop rules stored without a threshold.
var DefaultThresholdPct = decimal.NewFromInt(10)

var hundred = decimal.NewFromInt(100)

// Policy holds the explicit evaluation choices that are not rule data.
type Policy struct {
	// AlertOnTrackedSale emits a tracked_on_sale event when a product's first
	// observation is already on sale. First observations never emit drops.
	AlertOnTrackedSale bool
}

// Decision is the outcome of comparing two observations under one rule.
type Decision struct {
	Kind    model.EventKind
	DropPct decimal.Decimal
}

// DropPct returns (old-new)/old as a percentage rounded to two places. It is
// zero when old is not positive and negative when the price went up.
func DropPct(oldPrice, newPrice int64) decimal.Decimal {
	if oldPrice <= 0 {
		return decimal.Zero
	}
	diff := decimal.NewFromInt(oldPrice - newPrice)
	return diff.Mul(hundred).Div(decimal.NewFromInt(oldPrice)).Round(2)
}

// Decide reports whether cur, compared with the previous successful
// observation prev, qualifies under rule. prev is nil for a first observation.
func Decide(rule model.AlertRule, prev *model.PriceObservation, cur model.PriceObservation, policy Policy) (Decision, bool) {
	if !cur.Outcome.Successful() {
		return Decision{}, false
	}

	if prev == nil {
		if policy.AlertOnTrackedSale && cur.OnSale {
			d := Decision{Kind: model.EventTrackedOnSale}
			if cur.OriginalPrice != nil {
				d.DropPct = DropPct(*cur.OriginalPrice, cur.Price)
			}
			return d, true
		}
		return Decision{}, false
	}

	// Prices in different currencies are not comparable; only the sale flag is.
	comparable := prev.Currency == cur.Currency
	drop := decimal.Zero
	if comparable && cur.Price < prev.Price {
		drop = DropPct(prev.Price, cur.Price)
	}

	if comparable && cur.Price < prev.Price && dropQualifies(rule, prev.Price, cur.Price) {
		return Decision{Kind: model.EventPriceDrop, DropPct: drop}, true
	}
	if !prev.OnSale && cur.OnSale {
		return Decision{Kind: model.EventSaleStarted, DropPct: drop}, true
	}
	return Decision{}, false
}

// dropQualifies compares the exact drop with the rule; the rounded DropPct is
// only reported.
func dropQualifies(rule model.AlertRule, oldPrice, newPrice int64) bool {
	amount := oldPrice - newPrice
	switch rule.Condition {
	case model.ConditionAnySale:
		return amount > 0
	case model.ConditionAbsoluteDrop:
		return rule.ThresholdAmount > 0 && amount >= rule.ThresholdAmount
	default:
		threshold := rule.ThresholdPct
		if !threshold.IsPositive() {
			threshold = DefaultThresholdPct
		}
		// (old-new)/old*100 >= threshold, without division.
		lhs := decimal.NewFromInt(amount).Mul(hundred)
		rhs := threshold.Mul(decimal.NewFromInt(oldPrice))
		return lhs.GreaterThanOrEqual(rhs)
	}
}
