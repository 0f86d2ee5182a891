package handler

import (
	"context"

	"github.com/cheapfinder/backend/internal/model"
	"github.com/cheapfinder/backend/internal/scraper"
	"github.com/cheapfinder/backend/internal/service"
)

// PriceCheckServiceInterface for handler testing
type PriceCheckServiceInterface interface {
	Trigger(ctx context.Context) error
	RunSync(ctx context.Context) (*model.CheckRun, error)
	Running() bool
	LatestRun(ctx context.Context) (*model.CheckRun, error)
	ListRuns(ctx context.Context, limit int) ([]model.CheckRun, error)
	GetHealth() scraper.HealthStatus
	GetRetailerMetrics() map[string]scraper.RetailerMetrics
	ProbeRetailers(ctx context.Context) map[string]bool
}

// CatalogServiceInterface for handler testing
type CatalogServiceInterface interface {
	ListRetailers() []model.Retailer
	ListBrands(ctx context.Context) ([]model.Brand, error)
	AddBrand(ctx context.Context, input service.AddBrandInput) (*model.Brand, error)
	ListProducts(ctx context.Context) ([]model.Product, error)
	TrackProduct(ctx context.Context, input service.TrackProductInput) (*model.Product, error)
	SetTracked(ctx context.Context, id int64, tracked bool) error
	Deactivate(ctx context.Context, id int64) error
}

// PriceServiceInterface for handler testing
type PriceServiceInterface interface {
	GetTrend(ctx context.Context, productID int64, days int) (*service.PriceTrend, error)
}

// NotificationServiceInterface for handler testing
type NotificationServiceInterface interface {
	List(ctx context.Context, unreadOnly bool, limit int) ([]model.Notification, error)
	MarkRead(ctx context.Context, id int64) error
	MarkAllRead(ctx context.Context) (int64, error)
	UnreadCount(ctx context.Context) (int, error)
}
