package retailers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/cheapfinder/backend/internal/model"
	"github.com/cheapfinder/backend/internal/scraper"
)

// maxVendorPages caps the /products.json walk used when a brand has no
// collection.
const maxVendorPages = 5

type shopifyVariant struct {
	Price          string  `json:"price"`
	CompareAtPrice *string `json:"compare_at_price"`
	Available      *bool   `json:"available"`
	SKU            string  `json:"sku"`
}

type shopifyImage struct {
	Src string `json:"src"`
}

type shopifyProduct struct {
	Title    string           `json:"title"`
	Handle   string           `json:"handle"`
	Vendor   string           `json:"vendor"`
	Variants []shopifyVariant `json:"variants"`
	Images   []shopifyImage   `json:"images"`
}

type shopifySearchProduct struct {
	Title             string `json:"title"`
	URL               string `json:"url"`
	Vendor            string `json:"vendor"`
	Price             string `json:"price"`
	CompareAtPriceMax string `json:"compare_at_price_max"`
	Image             string `json:"image"`
}

// ShopifyConfig describes a classic Shopify storefront.
type ShopifyConfig struct {
	Info model.Retailer
	// SlugMap maps lowercase brand names to collection handles.
	SlugMap map[string]string
	// VendorMap lists vendor names to match when walking /products.json.
	// Nil disables the walk.
	VendorMap map[string][]string
}

// ShopifyScraper uses the storefront JSON endpoints.
type ShopifyScraper struct {
	BaseScraper
	slugMap   map[string]string
	vendorMap map[string][]string
	logger    *slog.Logger
}

// NewShopifyScraper creates a Shopify scraper.
func NewShopifyScraper(cfg ShopifyConfig, client *http.Client, logger *slog.Logger) *ShopifyScraper {
	if logger == nil {
		logger = slog.Default()
	}
	return &ShopifyScraper{
		BaseScraper: BaseScraper{Client: client, Info: cfg.Info},
		slugMap:     cfg.SlugMap,
		vendorMap:   cfg.VendorMap,
		logger:      logger,
	}
}

// NewNRML creates the NRML scraper.
func NewNRML(client *http.Client, logger *slog.Logger) *ShopifyScraper {
	return NewShopifyScraper(ShopifyConfig{
		Info: model.Retailer{ID: "nrml", Name: "NRML", BaseURL: "https://nrml.ca", HomeCurrency: "CAD"},
		SlugMap: map[string]string{
			"on cloud":    "on-cloud",
			"on running":  "on-cloud",
			"new balance": "new-balance",
			"a.p.c.":      "apc",
			"apc":         "apc",
			"arc'teryx":   "arcteryx",
			"arcteryx":    "arcteryx",
			"satisfy":     "satisfy",
			"sabre":       "sabre",
		},
	}, client, logger)
}

// NewLivestock creates the Livestock (Deadstock) scraper. Its collections are
// often empty, so brand search falls back to filtering by vendor.
func NewLivestock(client *http.Client, logger *slog.Logger) *ShopifyScraper {
	return NewShopifyScraper(ShopifyConfig{
		Info: model.Retailer{ID: "livestock", Name: "Livestock", BaseURL: "https://www.deadstock.ca", HomeCurrency: "CAD"},
		SlugMap: map[string]string{
			"arc'teryx":   "arcteryx",
			"arcteryx":    "arcteryx",
			"new balance": "new-balance",
			"on cloud":    "on",
			"on running":  "on",
		},
		VendorMap: map[string][]string{
			"arc'teryx":   {"arcteryx", "arc'teryx"},
			"arcteryx":    {"arcteryx", "arc'teryx"},
			"new balance": {"new balance"},
			"on cloud":    {"on", "on running"},
			"on running":  {"on", "on running"},
		},
	}, client, logger)
}

// GetPrice reads the first variant of /products/{handle}.json.
func (s *ShopifyScraper) GetPrice(ctx context.Context, product model.Product) (*model.RawPrice, error) {
	target, err := productJSONURL(s.Absolute(product.URL))
	if err != nil {
		return nil, scraper.NotFound(s.ID(), "get price", err)
	}

	var payload struct {
		Product *shopifyProduct `json:"product"`
	}
	body, err := s.FetchJSON(ctx, target, &payload)
	if err != nil {
		return nil, err
	}
	if payload.Product == nil || len(payload.Product.Variants) == 0 {
		return nil, scraper.ParseFailure(s.ID(), "get price", errors.New("product has no variants"), body)
	}

	v := payload.Product.Variants[0]
	if v.Available != nil && !*v.Available {
		return nil, scraper.NotFound(s.ID(), "get price", errors.New("product unavailable"))
	}

	raw := &model.RawPrice{PriceText: v.Price, Page: body}
	if v.CompareAtPrice != nil {
		raw.OriginalPriceText = *v.CompareAtPrice
	}
	return raw, nil
}

// SearchBrand tries the brand collection, then predictive search, then (when
// configured) a vendor filter over the full catalogue.
func (s *ShopifyScraper) SearchBrand(ctx context.Context, brand string) ([]model.ProductCandidate, error) {
	base := strings.TrimRight(s.Info.BaseURL, "/")
	slug := brandSlug(brand, s.slugMap, nil)

	collectionURL := fmt.Sprintf("%s/collections/%s/products.json?limit=250", base, slug)
	products, err := s.fetchProducts(ctx, collectionURL)
	if err != nil && !errors.Is(err, scraper.ErrNotFound) {
		return nil, err
	}
	if len(products) > 0 {
		s.logger.Info("Found products via collection",
			slog.String("retailer", s.ID()),
			slog.String("brand", brand),
			slog.Int("count", len(products)),
		)
		return s.candidates(products), nil
	}

	searchURL := fmt.Sprintf("%s/search/suggest.json?q=%s&resources[type]=product&resources[limit]=20",
		base, url.QueryEscape(brand))
	if err := s.pace(ctx, searchURL); err != nil {
		return nil, err
	}
	var suggest struct {
		Resources struct {
			Results struct {
				Products []shopifySearchProduct `json:"products"`
			} `json:"results"`
		} `json:"resources"`
	}
	if _, err := s.FetchJSON(ctx, searchURL, &suggest); err != nil && !errors.Is(err, scraper.ErrNotFound) {
		return nil, err
	}

	var out []model.ProductCandidate
	for _, p := range suggest.Resources.Results.Products {
		if p.Title == "" || p.URL == "" {
			continue
		}
		out = append(out, model.ProductCandidate{
			Name:              p.Title,
			URL:               s.Absolute(p.URL),
			Brand:             p.Vendor,
			ThumbnailURL:      s.Absolute(p.Image),
			PriceText:         p.Price,
			OriginalPriceText: p.CompareAtPriceMax,
			Currency:          s.Info.HomeCurrency,
		})
	}
	if len(out) > 0 || s.vendorMap == nil {
		return out, nil
	}

	return s.searchByVendor(ctx, brand)
}

func (s *ShopifyScraper) searchByVendor(ctx context.Context, brand string) ([]model.ProductCandidate, error) {
	base := strings.TrimRight(s.Info.BaseURL, "/")
	vendors, ok := s.vendorMap[strings.ToLower(brand)]
	if !ok {
		vendors = []string{strings.ToLower(brand)}
	}

	var matched []shopifyProduct
	for page := 1; page <= maxVendorPages; page++ {
		products, err := s.fetchProducts(ctx, fmt.Sprintf("%s/products.json?limit=250&page=%d", base, page))
		if err != nil {
			return nil, err
		}
		if len(products) == 0 {
			break
		}
		for _, p := range products {
			if vendorMatches(p.Vendor, vendors) {
				matched = append(matched, p)
			}
		}
	}

	s.logger.Info("Found products via vendor filter",
		slog.String("retailer", s.ID()),
		slog.String("brand", brand),
		slog.Int("count", len(matched)),
	)
	return s.candidates(matched), nil
}

// vendorMatches compares whole vendor names so that "on" does not match "salomon".
func vendorMatches(vendor string, names []string) bool {
	v := strings.ToLower(strings.TrimSpace(vendor))
	for _, n := range names {
		if v == n {
			return true
		}
	}
	return false
}

func (s *ShopifyScraper) fetchProducts(ctx context.Context, target string) ([]shopifyProduct, error) {
	if err := s.pace(ctx, target); err != nil {
		return nil, err
	}
	var payload struct {
		Products []shopifyProduct `json:"products"`
	}
	if _, err := s.FetchJSON(ctx, target, &payload); err != nil {
		return nil, err
	}
	return payload.Products, nil
}

func (s *ShopifyScraper) candidates(products []shopifyProduct) []model.ProductCandidate {
	out := make([]model.ProductCandidate, 0, len(products))
	for _, p := range products {
		if p.Title == "" || p.Handle == "" || len(p.Variants) == 0 {
			continue
		}
		v := p.Variants[0]
		c := model.ProductCandidate{
			Name:      p.Title,
			URL:       strings.TrimRight(s.Info.BaseURL, "/") + "/products/" + p.Handle,
			SKU:       v.SKU,
			Brand:     p.Vendor,
			PriceText: v.Price,
			Currency:  s.Info.HomeCurrency,
		}
		if v.CompareAtPrice != nil {
			c.OriginalPriceText = *v.CompareAtPrice
		}
		if len(p.Images) > 0 {
			c.ThumbnailURL = shopifyThumbnail(p.Images[0].Src)
		}
		out = append(out, c)
	}
	return out
}

// shopifyThumbnail asks the Shopify CDN for a 400px rendition.
func shopifyThumbnail(src string) string {
	for _, ext := range []string{".jpg", ".png"} {
		if i := strings.Index(src, ext); i >= 0 {
			return src[:i] + "_400x" + src[i:]
		}
	}
	return src
}

// productJSONURL turns a product page URL into its .json endpoint.
func productJSONURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parsing product url: %w", err)
	}
	if !strings.Contains(u.Path, "/products/") {
		return "", fmt.Errorf("not a shopify product url: %s", raw)
	}
	u.RawQuery = ""
	u.Fragment = ""
	u.Path = strings.TrimRight(u.Path, "/")
	if !strings.HasSuffix(u.Path, ".json") {
		u.Path += ".json"
	}
	return u.String(), nil
}
