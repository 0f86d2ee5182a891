package handler

import (
	"encoding/json"
	"net/http"

	"github.com/cheapfinder/backend/internal/service"
)

// CatalogHandler handles brands, retailers and tracked products
type CatalogHandler struct {
	catalog CatalogServiceInterface
	prices  PriceServiceInterface
}

// NewCatalogHandler creates a new catalog handler
func NewCatalogHandler(catalog CatalogServiceInterface, prices PriceServiceInterface) *CatalogHandler {
	return &CatalogHandler{catalog: catalog, prices: prices}
}

// ListRetailers godoc
// @Summary List retailers
// @Tags catalog
// @Produce json
// @Success 200 {array} model.Retailer
// @Router /retailers [get]
func (h *CatalogHandler) ListRetailers(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.catalog.ListRetailers())
}

// ListBrands godoc
// @Summary List brands
// @Tags catalog
// @Produce json
// @Success 200 {array} model.Brand
// @Router /brands [get]
func (h *CatalogHandler) ListBrands(w http.ResponseWriter, r *http.Request) {
	brands, err := h.catalog.ListBrands(r.Context())
	if err != nil {
		respondServiceError(w, r, err, "failed to fetch brands")
		return
	}
	respondJSON(w, http.StatusOK, brands)
}

// AddBrand godoc
// @Summary Add a brand
// @Description Add a curated brand. A default drop alert rule is created with it.
// @Tags catalog
// @Accept json
// @Produce json
// @Param input body service.AddBrandInput true "Brand data"
// @Success 201 {object} model.Brand
// @Failure 400 {object} ErrorResponse
// @Router /brands [post]
func (h *CatalogHandler) AddBrand(w http.ResponseWriter, r *http.Request) {
	var input service.AddBrandInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	brand, err := h.catalog.AddBrand(r.Context(), input)
	if err != nil {
		respondServiceError(w, r, err, "failed to add brand")
		return
	}
	respondJSON(w, http.StatusCreated, brand)
}

// ListProducts godoc
// @Summary List products
// @Description List every active product
// @Tags catalog
// @Produce json
// @Success 200 {array} model.Product
// @Router /products [get]
func (h *CatalogHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.ListProducts(r.Context())
	if err != nil {
		respondServiceError(w, r, err, "failed to fetch products")
		return
	}
	respondJSON(w, http.StatusOK, products)
}

// TrackProduct godoc
// @Summary Track a product
// @Tags catalog
// @Accept json
// @Produce json
// @Param input body service.TrackProductInput true "Product data"
// @Success 201 {object} model.Product
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /products [post]
func (h *CatalogHandler) TrackProduct(w http.ResponseWriter, r *http.Request) {
	var input service.TrackProductInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	product, err := h.catalog.TrackProduct(r.Context(), input)
	if err != nil {
		respondServiceError(w, r, err, "failed to track product")
		return
	}
	respondJSON(w, http.StatusCreated, product)
}

type setTrackedRequest struct {
	Tracked *bool `json:"tracked"`
}

// SetTracked godoc
// @Summary Toggle tracking
// @Description Mark a product as tracked or untracked
// @Tags catalog
// @Accept json
// @Param id path int true "Product ID"
// @Success 204
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /products/{id}/tracked [patch]
func (h *CatalogHandler) SetTracked(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid id")
		return
	}

	var req setTrackedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Tracked == nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.catalog.SetTracked(r.Context(), id, *req.Tracked); err != nil {
		respondServiceError(w, r, err, "failed to update product")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Deactivate godoc
// @Summary Stop checking a product
// @Description Deactivate a product. Its price history is kept.
// @Tags catalog
// @Param id path int true "Product ID"
// @Success 204
// @Failure 404 {object} ErrorResponse
// @Router /products/{id} [delete]
func (h *CatalogHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid id")
		return
	}

	if err := h.catalog.Deactivate(r.Context(), id); err != nil {
		respondServiceError(w, r, err, "failed to deactivate product")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetHistory godoc
// @Summary Price history
// @Description Successful observations of a product with lowest, highest and average price
// @Tags catalog
// @Produce json
// @Param id path int true "Product ID"
// @Param days query int false "Window in days" default(30)
// @Success 200 {object} service.PriceTrend
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /products/{id}/history [get]
func (h *CatalogHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid id")
		return
	}
	days, err := queryInt(r, "days", 0)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid days")
		return
	}

	trend, err := h.prices.GetTrend(r.Context(), id, days)
	if err != nil {
		respondServiceError(w, r, err, "failed to fetch price history")
		return
	}
	respondJSON(w, http.StatusOK, trend)
}
