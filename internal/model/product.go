package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Brand is a curated brand whose products are tracked across retailers.
type Brand struct {
	ID                int64           `db:"id" json:"id"`
	Name              string          `db:"name" json:"name"`
	AlertThresholdPct decimal.Decimal `db:"alert_threshold_pct" json:"alertThresholdPct"`
	CreatedAt         time.Time       `db:"created_at" json:"createdAt"`
}

// Retailer is static registry data describing one supported shop.
type Retailer struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	BaseURL      string `json:"baseUrl"`
	HomeCurrency string `json:"homeCurrency"`
	RequiresJS   bool   `json:"requiresJs"`
}

// Product is a single item at a single retailer. Products are never deleted,
// only deactivated.
type Product struct {
	ID           int64     `db:"id" json:"id"`
	RetailerID   string    `db:"retailer_id" json:"retailerId"`
	BrandID      int64     `db:"brand_id" json:"brandId"`
	BrandName    string    `db:"brand_name" json:"brandName"`
	Name         string    `db:"name" json:"name"`
	URL          string    `db:"url" json:"url"`
	SKU          string    `db:"sku" json:"sku,omitempty"`
	ThumbnailURL string    `db:"thumbnail_url" json:"thumbnailUrl,omitempty"`
	Tracked      bool      `db:"tracked" json:"tracked"`
	Active       bool      `db:"active" json:"active"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}

// ProductCandidate is a product discovered by searching a retailer for a brand.
// Prices are left as the raw text the retailer displayed.
type ProductCandidate struct {
	Name              string `json:"name"`
	URL               string `json:"url"`
	SKU               string `json:"sku,omitempty"`
	Brand             string `json:"brand,omitempty"`
	ThumbnailURL      string `json:"thumbnailUrl,omitempty"`
	PriceText         string `json:"priceText"`
	OriginalPriceText string `json:"originalPriceText,omitempty"`
	Currency          string `json:"currency,omitempty"`
}
