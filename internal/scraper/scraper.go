// Package scraper defines the retailer capability set, the registry retailers
// are looked up in, and the failure taxonomy shared by all of them.
package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/cheapfinder/backend/internal/model"
	"github.com/cheapfinder/backend/internal/ratelimit"
	"github.com/cheapfinder/backend/pkg/currency"
)

// Scraper is implemented by every supported retailer.
type Scraper interface {
	ID() string
	Name() string
	SearchBrand(ctx context.Context, brand string) ([]model.ProductCandidate, error)
	GetPrice(ctx context.Context, product model.Product) (*model.RawPrice, error)
	HealthCheck(ctx context.Context) bool
}

// Describer is implemented by scrapers that expose their static retailer data.
type Describer interface {
	Retailer() model.Retailer
}

// Registry holds scrapers keyed by their stable ID.
type Registry struct {
	mu       sync.RWMutex
	scrapers map[string]Scraper
	order    []string
	fallback string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{scrapers: make(map[string]Scraper)}
}

// Register adds a scraper. IDs must be unique.
func (r *Registry) Register(s Scraper) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := s.ID()
	if id == "" {
		return fmt.Errorf("scraper %q has an empty id", s.Name())
	}
	if _, ok := r.scrapers[id]; ok {
		return fmt.Errorf("scraper already registered: %s", id)
	}
	r.scrapers[id] = s
	r.order = append(r.order, id)
	return nil
}

// SetFallback names the scraper ForURL returns when no retailer matches.
func (r *Registry) SetFallback(id string) {
	r.mu.Lock()
	r.fallback = id
	r.mu.Unlock()
}

// Get returns the scraper registered under id.
func (r *Registry) Get(id string) (Scraper, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.scrapers[id]
	return s, ok
}

// All returns scrapers in registration order.
func (r *Registry) All() []Scraper {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Scraper, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.scrapers[id])
	}
	return out
}

// Len returns the number of registered scrapers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// ForURL finds the scraper whose retailer hosts rawURL, falling back to the
// generic scraper when one is configured.
func (r *Registry) ForURL(rawURL string) (Scraper, bool) {
	host := ratelimit.DomainOf(rawURL)

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, id := range r.order {
		d, ok := r.scrapers[id].(Describer)
		if !ok {
			continue
		}
		base := d.Retailer().BaseURL
		if base != "" && ratelimit.DomainOf(base) == host {
			return r.scrapers[id], true
		}
	}

	if s, ok := r.scrapers[r.fallback]; ok {
		return s, true
	}
	return nil, false
}

// Retailer returns the static data for a retailer id. Unknown retailers get
// the default home currency.
func (r *Registry) Retailer(id string) model.Retailer {
	if s, ok := r.Get(id); ok {
		if d, ok := s.(Describer); ok {
			info := d.Retailer()
			if info.HomeCurrency == "" {
				info.HomeCurrency = string(currency.DefaultCurrency)
			}
			return info
		}
		return model.Retailer{ID: id, Name: s.Name(), HomeCurrency: string(currency.DefaultCurrency)}
	}
	return model.Retailer{ID: id, HomeCurrency: string(currency.DefaultCurrency)}
}

// Domain returns the rate-limit key for a product: its URL host, or the
// retailer's base URL host when the product URL is relative.
func (r *Registry) Domain(p model.Product) string {
	if u, err := url.Parse(p.URL); err == nil && u.Host != "" {
		return ratelimit.DomainOf(p.URL)
	}
	if base := r.Retailer(p.RetailerID).BaseURL; base != "" {
		return ratelimit.DomainOf(base)
	}
	return p.RetailerID
}

// HealthCheckAll checks every registered scraper, at most limit at a time.
func (r *Registry) HealthCheckAll(ctx context.Context, limit int, logger *slog.Logger) map[string]bool {
	if logger == nil {
		logger = slog.Default()
	}
	if limit <= 0 {
		limit = 4
	}

	scrapers := r.All()
	results := make(map[string]bool, len(scrapers))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, s := range scrapers {
		g.Go(func() error {
			ok := s.HealthCheck(gctx)
			if !ok {
				logger.Warn("retailer health check failed", slog.String("retailer", s.ID()))
			}
			mu.Lock()
			results[s.ID()] = ok
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return results
}
