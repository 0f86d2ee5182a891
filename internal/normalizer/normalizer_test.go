package normalizer

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cheapfinder/backend/internal/model"
	"github.com/cheapfinder/backend/pkg/currency"
)

func int64Ptr(v int64) *int64 { return &v }

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  model.RawPrice
		home currency.Currency
		want model.CanonicalPrice
	}{
		{
			name: "explicit code in text",
			raw:  model.RawPrice{PriceText: "$49.99 CAD"},
			home: currency.USD,
			want: model.CanonicalPrice{Price: 4999, Currency: "CAD"},
		},
		{
			name: "home currency default",
			raw:  model.RawPrice{PriceText: "$200.00"},
			home: currency.CAD,
			want: model.CanonicalPrice{Price: 20000, Currency: "CAD"},
		},
		{
			name: "thousands separator",
			raw:  model.RawPrice{PriceText: "$1,299.00"},
			home: currency.CAD,
			want: model.CanonicalPrice{Price: 129900, Currency: "CAD"},
		},
		{
			name: "symbol prefix",
			raw:  model.RawPrice{PriceText: "CA$ 120"},
			home: currency.GBP,
			want: model.CanonicalPrice{Price: 12000, Currency: "CAD"},
		},
		{
			name: "comma decimal euro",
			raw:  model.RawPrice{PriceText: "129,95 €"},
			home: currency.CAD,
			want: model.CanonicalPrice{Price: 12995, Currency: "EUR"},
		},
		{
			name: "european grouping",
			raw:  model.RawPrice{PriceText: "1.299,00 EUR"},
			home: currency.CAD,
			want: model.CanonicalPrice{Price: 129900, Currency: "EUR"},
		},
		{
			name: "zero decimal currency",
			raw:  model.RawPrice{PriceText: "¥5000"},
			home: currency.CAD,
			want: model.CanonicalPrice{Price: 5000, Currency: "JPY"},
		},
		{
			name: "structured currency field",
			raw:  model.RawPrice{PriceText: "150.00", CurrencyText: "usd"},
			home: currency.CAD,
			want: model.CanonicalPrice{Price: 15000, Currency: "USD"},
		},
		{
			name: "struck original price marks sale",
			raw:  model.RawPrice{PriceText: "207.35", OriginalPriceText: "319.00"},
			home: currency.CAD,
			want: model.CanonicalPrice{Price: 20735, OriginalPrice: int64Ptr(31900), Currency: "CAD", OnSale: true},
		},
		{
			name: "original equal to price is not a sale",
			raw:  model.RawPrice{PriceText: "160.00", OriginalPriceText: "160.00"},
			home: currency.CAD,
			want: model.CanonicalPrice{Price: 16000, Currency: "CAD"},
		},
		{
			name: "sale badge without original",
			raw:  model.RawPrice{PriceText: "$150", SaleBadge: true},
			home: currency.CAD,
			want: model.CanonicalPrice{Price: 15000, Currency: "CAD", OnSale: true},
		},
		{
			name: "unreadable original is ignored",
			raw:  model.RawPrice{PriceText: "$150", OriginalPriceText: "was a lot"},
			home: currency.CAD,
			want: model.CanonicalPrice{Price: 15000, Currency: "CAD"},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Normalize(tt.raw, tt.home)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalize_FailsClosed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  model.RawPrice
	}{
		{"empty", model.RawPrice{PriceText: "  "}},
		{"no digits", model.RawPrice{PriceText: "Sold out"}},
		{"price range", model.RawPrice{PriceText: "$49.99 - $59.99"}},
		{"zero", model.RawPrice{PriceText: "$0.00"}},
		{"sub-cent precision", model.RawPrice{PriceText: "$49.995"}},
		{"ambiguous grouping", model.RawPrice{PriceText: "1.299"}},
		{"bad grouping", model.RawPrice{PriceText: "12,34,567"}},
		{"conflicting codes", model.RawPrice{PriceText: "49.99 USD", CurrencyText: "CAD"}},
		{"unsupported structured code", model.RawPrice{PriceText: "49.99", CurrencyText: "BTC"}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Normalize(tt.raw, currency.CAD)
			assert.ErrorIs(t, err, ErrNormalization)
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	t.Parallel()

	raws := []model.RawPrice{
		{PriceText: "$49.99 CAD"},
		{PriceText: "207.35", OriginalPriceText: "319.00"},
		{PriceText: "129,95 €", SaleBadge: true},
	}

	for _, raw := range raws {
		first, err := Normalize(raw, currency.CAD)
		require.NoError(t, err)
		second, err := Normalize(raw, currency.CAD)
		require.NoError(t, err)

		a, err := json.Marshal(first)
		require.NoError(t, err)
		b, err := json.Marshal(second)
		require.NoError(t, err)
		assert.Equal(t, a, b)
	}
}
