package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/mock"

	"github.com/cheapfinder/backend/internal/model"
	"github.com/cheapfinder/backend/internal/scraper"
	"github.com/cheapfinder/backend/internal/service"
)

// withURLParam attaches a chi route parameter to the request
func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

// MockPriceCheckService implements PriceCheckServiceInterface for testing
type MockPriceCheckService struct {
	mock.Mock
}

func (m *MockPriceCheckService) Trigger(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockPriceCheckService) RunSync(ctx context.Context) (*model.CheckRun, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CheckRun), args.Error(1)
}

func (m *MockPriceCheckService) Running() bool {
	return m.Called().Bool(0)
}

func (m *MockPriceCheckService) LatestRun(ctx context.Context) (*model.CheckRun, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CheckRun), args.Error(1)
}

func (m *MockPriceCheckService) ListRuns(ctx context.Context, limit int) ([]model.CheckRun, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.CheckRun), args.Error(1)
}

func (m *MockPriceCheckService) GetHealth() scraper.HealthStatus {
	return m.Called().Get(0).(scraper.HealthStatus)
}

func (m *MockPriceCheckService) GetRetailerMetrics() map[string]scraper.RetailerMetrics {
	return m.Called().Get(0).(map[string]scraper.RetailerMetrics)
}

func (m *MockPriceCheckService) ProbeRetailers(ctx context.Context) map[string]bool {
	return m.Called(ctx).Get(0).(map[string]bool)
}

// MockCatalogService implements CatalogServiceInterface for testing
type MockCatalogService struct {
	mock.Mock
}

func (m *MockCatalogService) ListRetailers() []model.Retailer {
	return m.Called().Get(0).([]model.Retailer)
}

func (m *MockCatalogService) ListBrands(ctx context.Context) ([]model.Brand, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Brand), args.Error(1)
}

func (m *MockCatalogService) AddBrand(ctx context.Context, input service.AddBrandInput) (*model.Brand, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Brand), args.Error(1)
}

func (m *MockCatalogService) ListProducts(ctx context.Context) ([]model.Product, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Product), args.Error(1)
}

func (m *MockCatalogService) TrackProduct(ctx context.Context, input service.TrackProductInput) (*model.Product, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Product), args.Error(1)
}

func (m *MockCatalogService) SetTracked(ctx context.Context, id int64, tracked bool) error {
	return m.Called(ctx, id, tracked).Error(0)
}

func (m *MockCatalogService) Deactivate(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

// MockPriceService implements PriceServiceInterface for testing
type MockPriceService struct {
	mock.Mock
}

func (m *MockPriceService) GetTrend(ctx context.Context, productID int64, days int) (*service.PriceTrend, error) {
	args := m.Called(ctx, productID, days)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.PriceTrend), args.Error(1)
}

// MockNotificationService implements NotificationServiceInterface for testing
type MockNotificationService struct {
	mock.Mock
}

func (m *MockNotificationService) List(ctx context.Context, unreadOnly bool, limit int) ([]model.Notification, error) {
	args := m.Called(ctx, unreadOnly, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Notification), args.Error(1)
}

func (m *MockNotificationService) MarkRead(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockNotificationService) MarkAllRead(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockNotificationService) UnreadCount(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}
