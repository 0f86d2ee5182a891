package model

// RawPrice is what a retailer scraper extracted from a page, before any
// interpretation. All price fields are the literal text shown by the retailer.
type RawPrice struct {
	PriceText         string
	OriginalPriceText string // struck-through "was" price, if any
	CurrencyText      string // explicit ISO code from structured data, if any
	SaleBadge         bool
	Page              []byte // raw response, kept for failure snapshots
}

// CanonicalPrice is the normalized form of a RawPrice.
type CanonicalPrice struct {
	Price         int64  `json:"price"`
	OriginalPrice *int64 `json:"originalPrice,omitempty"`
	Currency      string `json:"currency"`
	OnSale        bool   `json:"onSale"`
}
