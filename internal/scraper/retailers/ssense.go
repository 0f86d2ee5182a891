package retailers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/cheapfinder/backend/internal/model"
	"github.com/cheapfinder/backend/internal/scraper"
)

var ssenseSlugs = map[string]string{
	"arc'teryx":       "arcteryx",
	"arcteryx":        "arcteryx",
	"a.p.c.":          "apc",
	"apc":             "apc",
	"new balance":     "new-balance",
	"on cloud":        "on",
	"on running":      "on",
	"satisfy":         "satisfy",
	"satisfy running": "satisfy",
	"sabre paris":     "sabre",
	"sabre":           "sabre",
	"balmoral":        "balmoral",
}

// SSENSEScraper reads SSENSE product pages. The static HTML usually carries
// JSON-LD; when it is stripped the page is rendered in the browser.
type SSENSEScraper struct {
	BaseScraper
	logger *slog.Logger
}

// NewSSENSE creates the SSENSE scraper. renderer may be nil.
func NewSSENSE(client *http.Client, renderer Renderer, logger *slog.Logger) *SSENSEScraper {
	if logger == nil {
		logger = slog.Default()
	}
	return &SSENSEScraper{
		BaseScraper: BaseScraper{
			Client:   client,
			Renderer: renderer,
			Info: model.Retailer{
				ID:           "ssense",
				Name:         "SSENSE",
				BaseURL:      "https://www.ssense.com",
				HomeCurrency: "CAD",
				RequiresJS:   true,
			},
		},
		logger: logger,
	}
}

// GetPrice reads the Product offer, rendering the page when the static HTML
// is an empty shell. Blocks are returned as-is so the domain backs off.
func (s *SSENSEScraper) GetPrice(ctx context.Context, product model.Product) (*model.RawPrice, error) {
	target := s.Absolute(product.URL)

	doc, body, err := s.FetchPage(ctx, target)
	if err != nil {
		return nil, err
	}
	raw, err := s.extract(doc, body)
	if err == nil || !errors.Is(err, scraper.ErrParse) || s.Renderer == nil {
		return raw, err
	}

	s.logger.Debug("Rendering page in browser", slog.String("retailer", s.ID()), slog.String("url", target))
	doc, body, err = s.RenderPage(ctx, target, `script[type="application/ld+json"]`)
	if err != nil {
		return nil, err
	}
	return s.extract(doc, body)
}

func (s *SSENSEScraper) extract(doc *goquery.Document, body []byte) (*model.RawPrice, error) {
	for _, n := range jsonLDNodes(doc) {
		if ldType(n) != "Product" {
			continue
		}
		p, ok := ldOffer(n)
		if !ok {
			continue
		}
		if p.unavailable() {
			return nil, scraper.NotFound(s.ID(), "get price", fmt.Errorf("product unavailable: %s", p.Availability))
		}
		return p.raw(body), nil
	}

	if p, ok := metaPrice(doc); ok {
		return p.raw(body), nil
	}
	return nil, scraper.ParseFailure(s.ID(), "get price", errors.New("no product data on page"), body)
}

// SearchBrand reads the men's and women's designer pages.
func (s *SSENSEScraper) SearchBrand(ctx context.Context, brand string) ([]model.ProductCandidate, error) {
	slug := brandSlug(brand, ssenseSlugs, nil)
	base := strings.TrimRight(s.Info.BaseURL, "/")

	var out []model.ProductCandidate
	seen := make(map[string]bool)
	for _, gender := range []string{"men", "women"} {
		target := fmt.Sprintf("%s/en-ca/%s/designers/%s", base, gender, slug)
		if err := s.pace(ctx, target); err != nil {
			return nil, err
		}
		doc, _, err := s.FetchPage(ctx, target)
		if err != nil {
			s.logger.Debug("Failed to fetch designer page",
				slog.String("retailer", s.ID()),
				slog.String("gender", gender),
				slog.String("error", err.Error()),
			)
			continue
		}
		for _, c := range jsonLDCandidates(doc, s.Absolute) {
			if seen[c.URL] {
				continue
			}
			seen[c.URL] = true
			if c.Currency == "" {
				c.Currency = s.Info.HomeCurrency
			}
			out = append(out, c)
		}
	}

	s.logger.Info("Found products",
		slog.String("retailer", s.ID()),
		slog.String("brand", brand),
		slog.Int("count", len(out)),
	)
	return out, nil
}
