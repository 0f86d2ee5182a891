package alert

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cheapfinder/backend/internal/model"
	"github.com/cheapfinder/backend/internal/repository/memstore"
)

type fixture struct {
	store   *memstore.Store
	product model.Product
	rule    model.AlertRule
}

func newFixture(t *testing.T, threshold int64) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memstore.New()

	brand := &model.Brand{Name: "Arc'teryx", AlertThresholdPct: decimal.NewFromInt(threshold)}
	require.NoError(t, store.CreateBrand(ctx, brand))
	product := &model.Product{RetailerID: "nrml", BrandID: brand.ID, Name: "Beta Jacket", URL: "https://nrml.ca/products/beta", Tracked: true}
	require.NoError(t, store.CreateProduct(ctx, product))
	rule, err := CreateDefaultRule(ctx, store, *brand)
	require.NoError(t, err)

	product.BrandName = brand.Name
	return &fixture{store: store, product: *product, rule: *rule}
}

func (f *fixture) observe(t *testing.T, price int64, onSale bool) model.PriceObservation {
	t.Helper()
	o := &model.PriceObservation{
		ProductID: f.product.ID,
		RunID:     uuid.New(),
		Price:     price,
		Currency:  "CAD",
		OnSale:    onSale,
		Outcome:   model.OutcomeOK,
	}
	require.NoError(t, f.store.AppendObservation(context.Background(), o))
	return *o
}

func TestEvaluator_DropCreatesExactlyOneEvent(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 10)
	ev := NewEvaluator(f.store, Policy{}, nil, nil)
	ctx := context.Background()

	first := f.observe(t, 5000, false)
	events, err := ev.Evaluate(ctx, f.product, first)
	require.NoError(t, err)
	assert.Empty(t, events, "first observation must not alert")

	second := f.observe(t, 4400, false)
	events, err = ev.Evaluate(ctx, f.product, second)
	require.NoError(t, err)
	require.Len(t, events, 1)

	e := events[0]
	assert.Equal(t, model.EventPriceDrop, e.Kind)
	assert.Equal(t, int64(5000), e.OldPrice)
	assert.Equal(t, int64(4400), e.NewPrice)
	assert.True(t, e.DropPct.Equal(decimal.NewFromInt(12)))
	require.NotNil(t, e.OldObservationID)
	assert.Equal(t, first.ID, *e.OldObservationID)
	assert.Equal(t, second.ID, e.NewObservationID)
	assert.Len(t, e.Deliveries, 2)

	// Re-evaluating the same observation creates nothing.
	events, err = ev.Evaluate(ctx, f.product, second)
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Len(t, f.store.Events(), 1)
}

func TestEvaluator_FailedObservationsAreSkipped(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 10)
	ev := NewEvaluator(f.store, Policy{}, nil, nil)
	ctx := context.Background()

	f.observe(t, 5000, false)

	blocked := &model.PriceObservation{ProductID: f.product.ID, Outcome: model.OutcomeBlocked}
	require.NoError(t, f.store.AppendObservation(ctx, blocked))
	events, err := ev.Evaluate(ctx, f.product, *blocked)
	require.NoError(t, err)
	assert.Empty(t, events)

	// The comparison skips the blocked row and uses the last good price.
	cur := f.observe(t, 4000, false)
	events, err = ev.Evaluate(ctx, f.product, cur)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, int64(5000), events[0].OldPrice)
}

func TestEvaluator_TrackedOnSalePolicy(t *testing.T) {
	t.Parallel()

	for _, enabled := range []bool{false, true} {
		enabled := enabled
		t.Run(map[bool]string{false: "off", true: "on"}[enabled], func(t *testing.T) {
			t.Parallel()

			f := newFixture(t, 10)
			ev := NewEvaluator(f.store, Policy{AlertOnTrackedSale: enabled}, nil, nil)

			original := int64(25000)
			o := &model.PriceObservation{
				ProductID:     f.product.ID,
				Price:         20000,
				OriginalPrice: &original,
				Currency:      "CAD",
				OnSale:        true,
				Outcome:       model.OutcomeOK,
			}
			require.NoError(t, f.store.AppendObservation(context.Background(), o))

			events, err := ev.Evaluate(context.Background(), f.product, *o)
			require.NoError(t, err)
			if !enabled {
				assert.Empty(t, events)
				return
			}
			require.Len(t, events, 1)
			assert.Equal(t, model.EventTrackedOnSale, events[0].Kind)
			assert.Nil(t, events[0].OldObservationID)
			assert.Equal(t, int64(25000), events[0].OldPrice)
		})
	}
}

func TestEvaluator_GlobalAndProductRules(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 30)
	ctx := context.Background()

	global := &model.AlertRule{Condition: model.ConditionAnySale, NotifyDashboard: true, Enabled: true}
	require.NoError(t, f.store.CreateRule(ctx, global))
	productID := f.product.ID
	perProduct := &model.AlertRule{ProductID: &productID, Condition: model.ConditionAbsoluteDrop, ThresholdAmount: 1000, NotifyTelegram: true, Enabled: true}
	require.NoError(t, f.store.CreateRule(ctx, perProduct))
	disabled := &model.AlertRule{Condition: model.ConditionAnySale, NotifyEmail: true, Enabled: false}
	require.NoError(t, f.store.CreateRule(ctx, disabled))

	ev := NewEvaluator(f.store, Policy{}, nil, nil)
	f.observe(t, 10000, false)
	cur := f.observe(t, 8500, false)

	events, err := ev.Evaluate(ctx, f.product, cur)
	require.NoError(t, err)

	// Brand rule wants 30%, so only the global and product rules fire.
	require.Len(t, events, 2)
	ruleIDs := []int64{events[0].RuleID, events[1].RuleID}
	assert.ElementsMatch(t, []int64{global.ID, perProduct.ID}, ruleIDs)
}

func TestEvaluator_ConcurrentEvaluationIsIdempotent(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 10)
	ev := NewEvaluator(f.store, Policy{}, nil, nil)
	f.observe(t, 5000, false)
	cur := f.observe(t, 4400, false)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			events, err := ev.Evaluate(context.Background(), f.product, cur)
			assert.NoError(t, err)
			mu.Lock()
			total += len(events)
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, total)
	assert.Len(t, f.store.Events(), 1)
}

type failingRuleStore struct {
	*memstore.Store
}

func (failingRuleStore) ListRulesForProduct(context.Context, model.Product) ([]model.AlertRule, error) {
	return nil, errors.New("database unavailable")
}

func TestEvaluator_StoreErrors(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 10)
	ev := NewEvaluator(failingRuleStore{f.store}, Policy{}, nil, nil)
	cur := f.observe(t, 4400, false)

	_, err := ev.Evaluate(context.Background(), f.product, cur)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list rules")
}
