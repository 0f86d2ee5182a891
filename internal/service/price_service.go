// Package service provides business logic for the application.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cheapfinder/backend/internal/apperror"
	"github.com/cheapfinder/backend/internal/model"
	"github.com/cheapfinder/backend/internal/repository"
	"github.com/cheapfinder/backend/pkg/datetime"
)

const (
	DefaultHistoryDays = 30
	MaxHistoryDays     = 365
)

// PriceStore is the read side of observations the price service needs.
type PriceStore interface {
	GetProduct(ctx context.Context, id int64) (*model.Product, error)
	PriceHistory(ctx context.Context, productID int64, since time.Time) ([]model.PriceObservation, error)
}

// PricePoint is one successful observation in a product's history.
type PricePoint struct {
	Price         int64     `json:"price"`
	OriginalPrice *int64    `json:"originalPrice,omitempty"`
	OnSale        bool      `json:"onSale"`
	ObservedAt    time.Time `json:"observedAt"`
}

// DailyLow is the lowest successful price seen on one UTC day.
type DailyLow struct {
	Date  string `json:"date"`
	Price int64  `json:"price"`
}

// PriceTrend summarizes a product's prices over a window. Prices are in
// minor units of Currency.
type PriceTrend struct {
	Product  model.Product `json:"product"`
	Days     int           `json:"days"`
	Currency string        `json:"currency,omitempty"`
	Current  *int64        `json:"current,omitempty"`
	Lowest   *int64        `json:"lowest,omitempty"`
	Highest  *int64        `json:"highest,omitempty"`
	Average  *int64        `json:"average,omitempty"`
	Points   []PricePoint  `json:"points"`
	Daily    []DailyLow    `json:"daily"`
}

// PriceService handles price history queries
type PriceService struct {
	store PriceStore
	now   func() time.Time
}

// NewPriceService creates a new price service
func NewPriceService(store PriceStore) *PriceService {
	return &PriceService{store: store, now: time.Now}
}

// GetTrend returns the successful observations of the last days calendar
// days with their lowest, highest and average price and the low of each day.
// Observations in a currency other than the latest one are left out of the
// aggregates.
func (s *PriceService) GetTrend(ctx context.Context, productID int64, days int) (*PriceTrend, error) {
	if days == 0 {
		days = DefaultHistoryDays
	}
	if days < 1 || days > MaxHistoryDays {
		return nil, apperror.ValidationError("days", fmt.Sprintf("must be between 1 and %d", MaxHistoryDays))
	}

	product, err := s.store.GetProduct(ctx, productID)
	if errors.Is(err, repository.ErrProductNotFound) {
		return nil, apperror.NotFound("product")
	}
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}

	since := datetime.WindowStart(s.now(), days)
	history, err := s.store.PriceHistory(ctx, productID, since)
	if err != nil {
		return nil, fmt.Errorf("get price history: %w", err)
	}

	trend := &PriceTrend{
		Product: *product,
		Days:    days,
		Points:  make([]PricePoint, 0, len(history)),
		Daily:   []DailyLow{},
	}
	for _, o := range history {
		trend.Points = append(trend.Points, PricePoint{
			Price:         o.Price,
			OriginalPrice: o.OriginalPrice,
			OnSale:        o.OnSale,
			ObservedAt:    o.ObservedAt,
		})
	}
	if len(history) == 0 {
		return trend, nil
	}

	latest := history[len(history)-1]
	trend.Currency = latest.Currency
	current := latest.Price
	trend.Current = &current

	var (
		lowest, highest int64
		sum             decimal.Decimal
		n               int64
	)
	for _, o := range history {
		if o.Currency != latest.Currency {
			continue
		}
		if n == 0 || o.Price < lowest {
			lowest = o.Price
		}
		if n == 0 || o.Price > highest {
			highest = o.Price
		}
		sum = sum.Add(decimal.NewFromInt(o.Price))
		n++

		day := datetime.DayKey(o.ObservedAt)
		if last := len(trend.Daily) - 1; last >= 0 && trend.Daily[last].Date == day {
			if o.Price < trend.Daily[last].Price {
				trend.Daily[last].Price = o.Price
			}
		} else {
			trend.Daily = append(trend.Daily, DailyLow{Date: day, Price: o.Price})
		}
	}
	average := sum.Div(decimal.NewFromInt(n)).Round(0).IntPart()
	trend.Lowest, trend.Highest, trend.Average = &lowest, &highest, &average

	return trend, nil
}
