package alert

import (
	"context"
	"fmt"

	"github.com/cheapfinder/backend/internal/model"
)

// RuleCreator persists alert rules.
type RuleCreator interface {
	CreateRule(ctx context.Context, rule *model.AlertRule) error
}

// DefaultRuleForBrand is the rule every new brand starts with: a percentage
// drop at the brand's threshold, sent by email and to the dashboard.
func DefaultRuleForBrand(brand model.Brand) model.AlertRule {
	threshold := brand.AlertThresholdPct
	if !threshold.IsPositive() {
		threshold = DefaultThresholdPct
	}
	brandID := brand.ID
	return model.AlertRule{
		BrandID:         &brandID,
		Condition:       model.ConditionPctDrop,
		ThresholdPct:    threshold,
		NotifyDashboard: true,
		NotifyEmail:     true,
		Enabled:         true,
	}
}

// CreateDefaultRule stores DefaultRuleForBrand for the brand.
func CreateDefaultRule(ctx context.Context, store RuleCreator, brand model.Brand) (*model.AlertRule, error) {
	rule := DefaultRuleForBrand(brand)
	if err := store.CreateRule(ctx, &rule); err != nil {
		return nil, fmt.Errorf("create default rule for brand %d: %w", brand.ID, err)
	}
	return &rule, nil
}
