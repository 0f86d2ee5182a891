package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/cheapfinder/backend/internal/alert"
	"github.com/cheapfinder/backend/internal/apperror"
	"github.com/cheapfinder/backend/internal/model"
	"github.com/cheapfinder/backend/internal/repository"
	"github.com/cheapfinder/backend/internal/scraper"
)

// CatalogStore is the brand, product and rule persistence the catalog needs.
type CatalogStore interface {
	ListActiveProducts(ctx context.Context) ([]model.Product, error)
	GetProduct(ctx context.Context, id int64) (*model.Product, error)
	CreateProduct(ctx context.Context, p *model.Product) error
	SetProductTracked(ctx context.Context, id int64, tracked bool) error
	DeactivateProduct(ctx context.Context, id int64) error
	ListBrands(ctx context.Context) ([]model.Brand, error)
	GetBrand(ctx context.Context, id int64) (*model.Brand, error)
	CreateBrand(ctx context.Context, b *model.Brand) error
	CreateRule(ctx context.Context, rule *model.AlertRule) error
}

// AddBrandInput is the request body for creating a brand.
type AddBrandInput struct {
	Name              string           `json:"name"`
	AlertThresholdPct *decimal.Decimal `json:"alertThresholdPct,omitempty"`
}

// TrackProductInput is the request body for tracking a product. RetailerID
// is resolved from the URL when empty.
type TrackProductInput struct {
	BrandID      int64  `json:"brandId"`
	RetailerID   string `json:"retailerId,omitempty"`
	Name         string `json:"name"`
	URL          string `json:"url"`
	SKU          string `json:"sku,omitempty"`
	ThumbnailURL string `json:"thumbnailUrl,omitempty"`
}

// CatalogService manages curated brands and the products tracked for them
type CatalogService struct {
	store    CatalogStore
	scrapers *scraper.Registry
	logger   *slog.Logger
}

// NewCatalogService creates a new catalog service
func NewCatalogService(store CatalogStore, scrapers *scraper.Registry, logger *slog.Logger) *CatalogService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CatalogService{store: store, scrapers: scrapers, logger: logger}
}

// ListRetailers returns the static data of every registered retailer.
func (s *CatalogService) ListRetailers() []model.Retailer {
	all := s.scrapers.All()
	out := make([]model.Retailer, 0, len(all))
	for _, sc := range all {
		out = append(out, s.scrapers.Retailer(sc.ID()))
	}
	return out
}

func (s *CatalogService) ListBrands(ctx context.Context) ([]model.Brand, error) {
	brands, err := s.store.ListBrands(ctx)
	if err != nil {
		return nil, fmt.Errorf("list brands: %w", err)
	}
	return brands, nil
}

// AddBrand creates a brand together with its default alert rule.
func (s *CatalogService) AddBrand(ctx context.Context, input AddBrandInput) (*model.Brand, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperror.ValidationError("name", "is required")
	}

	threshold := alert.DefaultThresholdPct
	if input.AlertThresholdPct != nil {
		threshold = *input.AlertThresholdPct
	}
	if !threshold.IsPositive() || threshold.GreaterThan(decimal.NewFromInt(100)) {
		return nil, apperror.ValidationError("alertThresholdPct", "must be greater than 0 and at most 100")
	}

	brand := &model.Brand{Name: name, AlertThresholdPct: threshold}
	if err := s.store.CreateBrand(ctx, brand); err != nil {
		return nil, fmt.Errorf("create brand: %w", err)
	}
	rule, err := alert.CreateDefaultRule(ctx, s.store, *brand)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Brand added",
		slog.Int64("brand_id", brand.ID),
		slog.String("brand", brand.Name),
		slog.Int64("rule_id", rule.ID),
	)
	return brand, nil
}

func (s *CatalogService) ListProducts(ctx context.Context) ([]model.Product, error) {
	products, err := s.store.ListActiveProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	if products == nil {
		products = []model.Product{}
	}
	return products, nil
}

// TrackProduct starts tracking a product URL. Tracking a URL that is already
// known reactivates it.
func (s *CatalogService) TrackProduct(ctx context.Context, input TrackProductInput) (*model.Product, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, apperror.ValidationError("name", "is required")
	}
	u, err := url.Parse(strings.TrimSpace(input.URL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, apperror.ValidationError("url", "must be an absolute http(s) URL")
	}

	retailerID := input.RetailerID
	if retailerID == "" {
		sc, ok := s.scrapers.ForURL(u.String())
		if !ok {
			return nil, apperror.ValidationError("url", "no retailer supports this URL")
		}
		retailerID = sc.ID()
	} else if _, ok := s.scrapers.Get(retailerID); !ok {
		return nil, apperror.ValidationError("retailerId", "unknown retailer")
	}

	brand, err := s.store.GetBrand(ctx, input.BrandID)
	if errors.Is(err, repository.ErrBrandNotFound) {
		return nil, apperror.NotFound("brand")
	}
	if err != nil {
		return nil, fmt.Errorf("get brand: %w", err)
	}

	product := &model.Product{
		RetailerID:   retailerID,
		BrandID:      brand.ID,
		BrandName:    brand.Name,
		Name:         strings.TrimSpace(input.Name),
		URL:          u.String(),
		SKU:          input.SKU,
		ThumbnailURL: input.ThumbnailURL,
		Tracked:      true,
	}
	if err := s.store.CreateProduct(ctx, product); err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}
	return product, nil
}

// SetTracked toggles whether a product is included in price checks.
func (s *CatalogService) SetTracked(ctx context.Context, id int64, tracked bool) error {
	return s.productError(s.store.SetProductTracked(ctx, id, tracked), "set product tracked")
}

// Deactivate removes a product from price checks for good. Its history stays.
func (s *CatalogService) Deactivate(ctx context.Context, id int64) error {
	return s.productError(s.store.DeactivateProduct(ctx, id), "deactivate product")
}

func (s *CatalogService) productError(err error, op string) error {
	if errors.Is(err, repository.ErrProductNotFound) {
		return apperror.NotFound("product")
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
