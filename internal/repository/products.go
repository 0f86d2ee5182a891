package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/cheapfinder/backend/internal/model"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrBrandNotFound   = errors.New("brand not found")
)

const productColumns = `
	p.id, p.retailer_id, p.brand_id, b.name AS brand_name, p.name, p.url, p.sku,
	p.thumbnail_url, p.tracked, p.active, p.created_at`

type ProductRepository struct {
	db *sqlx.DB
}

func NewProductRepository(db *sqlx.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// ListActiveProducts returns every active product the user tracks.
func (r *ProductRepository) ListActiveProducts(ctx context.Context) ([]model.Product, error) {
	query := `SELECT` + productColumns + `
		FROM products p
		JOIN brands b ON b.id = p.brand_id
		WHERE p.active AND p.tracked
		ORDER BY p.retailer_id, p.id`

	var products []model.Product
	if err := r.db.SelectContext(ctx, &products, query); err != nil {
		return nil, fmt.Errorf("list active products: %w", err)
	}
	return products, nil
}

func (r *ProductRepository) GetProduct(ctx context.Context, id int64) (*model.Product, error) {
	query := `SELECT` + productColumns + `
		FROM products p
		JOIN brands b ON b.id = p.brand_id
		WHERE p.id = $1`

	var p model.Product
	err := r.db.GetContext(ctx, &p, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	return &p, nil
}

// CreateProduct inserts a product, or refreshes the listing details of an
// existing (retailer, url) pair.
func (r *ProductRepository) CreateProduct(ctx context.Context, p *model.Product) error {
	query := `
		INSERT INTO products (retailer_id, brand_id, name, url, sku, thumbnail_url, tracked, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE, NOW())
		ON CONFLICT (retailer_id, url) DO UPDATE
		SET name = EXCLUDED.name, sku = EXCLUDED.sku, thumbnail_url = EXCLUDED.thumbnail_url, active = TRUE
		RETURNING id, active, created_at`

	err := r.db.QueryRowxContext(ctx, query,
		p.RetailerID, p.BrandID, p.Name, p.URL, p.SKU, p.ThumbnailURL, p.Tracked,
	).Scan(&p.ID, &p.Active, &p.CreatedAt)
	if err != nil {
		return fmt.Errorf("create product: %w", err)
	}
	return nil
}

func (r *ProductRepository) SetProductTracked(ctx context.Context, id int64, tracked bool) error {
	return r.update(ctx, `UPDATE products SET tracked = $2 WHERE id = $1`, id, tracked)
}

// DeactivateProduct hides a product from future runs. Its history is kept.
func (r *ProductRepository) DeactivateProduct(ctx context.Context, id int64) error {
	return r.update(ctx, `UPDATE products SET active = FALSE WHERE id = $1`, id)
}

func (r *ProductRepository) update(ctx context.Context, query string, args ...interface{}) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrProductNotFound
	}
	return nil
}

func (r *ProductRepository) ListBrands(ctx context.Context) ([]model.Brand, error) {
	var brands []model.Brand
	query := `SELECT id, name, alert_threshold_pct, created_at FROM brands ORDER BY name`
	if err := r.db.SelectContext(ctx, &brands, query); err != nil {
		return nil, fmt.Errorf("list brands: %w", err)
	}
	return brands, nil
}

func (r *ProductRepository) GetBrand(ctx context.Context, id int64) (*model.Brand, error) {
	var b model.Brand
	query := `SELECT id, name, alert_threshold_pct, created_at FROM brands WHERE id = $1`
	err := r.db.GetContext(ctx, &b, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBrandNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get brand: %w", err)
	}
	return &b, nil
}

func (r *ProductRepository) CreateBrand(ctx context.Context, b *model.Brand) error {
	query := `
		INSERT INTO brands (name, alert_threshold_pct, created_at)
		VALUES ($1, $2, NOW())
		RETURNING id, created_at`

	if err := r.db.QueryRowxContext(ctx, query, b.Name, b.AlertThresholdPct).Scan(&b.ID, &b.CreatedAt); err != nil {
		return fmt.Errorf("create brand: %w", err)
	}
	return nil
}
