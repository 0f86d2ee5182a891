package handler

import (
	"net/http"

	_ "github.com/cheapfinder/backend/internal/model" // swagger types
)

// PriceCheckHandler handles price check runs and pipeline health
type PriceCheckHandler struct {
	service PriceCheckServiceInterface
}

// NewPriceCheckHandler creates a new price check handler
func NewPriceCheckHandler(svc PriceCheckServiceInterface) *PriceCheckHandler {
	return &PriceCheckHandler{service: svc}
}

// Run godoc
// @Summary Start a price check
// @Description Start a manual price check over every active product. With wait=true the request blocks until the run finishes.
// @Tags price-check
// @Produce json
// @Param wait query bool false "Wait for the run to finish"
// @Success 200 {object} model.CheckRun
// @Success 202 {object} MessageResponse
// @Failure 409 {object} ErrorResponse
// @Router /price-check/run [post]
func (h *PriceCheckHandler) Run(w http.ResponseWriter, r *http.Request) {
	if queryBool(r, "wait") {
		run, err := h.service.RunSync(r.Context())
		if err != nil {
			respondServiceError(w, r, err, "price check failed")
			return
		}
		respondJSON(w, http.StatusOK, run)
		return
	}

	if err := h.service.Trigger(r.Context()); err != nil {
		respondServiceError(w, r, err, "failed to start price check")
		return
	}
	respondJSON(w, http.StatusAccepted, MessageResponse{Message: "price check started"})
}

// Status godoc
// @Summary Run status
// @Description Report whether a price check is running
// @Tags price-check
// @Produce json
// @Success 200 {object} map[string]bool
// @Router /price-check/status [get]
func (h *PriceCheckHandler) Status(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]bool{"running": h.service.Running()})
}

// LatestRun godoc
// @Summary Latest run
// @Description Get the most recent price check run
// @Tags price-check
// @Produce json
// @Success 200 {object} model.CheckRun
// @Failure 404 {object} ErrorResponse
// @Router /price-check/runs/latest [get]
func (h *PriceCheckHandler) LatestRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.service.LatestRun(r.Context())
	if err != nil {
		respondServiceError(w, r, err, "failed to fetch latest run")
		return
	}
	respondJSON(w, http.StatusOK, run)
}

// ListRuns godoc
// @Summary List runs
// @Description List recent price check runs, newest first
// @Tags price-check
// @Produce json
// @Param limit query int false "Number of runs" default(20)
// @Success 200 {array} model.CheckRun
// @Failure 400 {object} ErrorResponse
// @Router /price-check/runs [get]
func (h *PriceCheckHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid limit")
		return
	}

	runs, err := h.service.ListRuns(r.Context(), limit)
	if err != nil {
		respondServiceError(w, r, err, "failed to fetch runs")
		return
	}
	respondJSON(w, http.StatusOK, runs)
}

// GetHealth godoc
// @Summary Pipeline health
// @Description Per-retailer health of the last run and the next scheduled run
// @Tags price-check
// @Produce json
// @Success 200 {object} scraper.HealthStatus
// @Router /price-check/health [get]
func (h *PriceCheckHandler) GetHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.service.GetHealth())
}

// GetRetailerMetrics godoc
// @Summary Retailer metrics
// @Description Per-retailer outcome counts of the last run
// @Tags price-check
// @Produce json
// @Success 200 {object} map[string]scraper.RetailerMetrics
// @Router /price-check/metrics [get]
func (h *PriceCheckHandler) GetRetailerMetrics(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.service.GetRetailerMetrics())
}

// ProbeRetailers godoc
// @Summary Probe retailers
// @Description Run a live health check against every retailer
// @Tags price-check
// @Produce json
// @Success 200 {object} map[string]bool
// @Router /price-check/probe [post]
func (h *PriceCheckHandler) ProbeRetailers(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.service.ProbeRetailers(r.Context()))
}
