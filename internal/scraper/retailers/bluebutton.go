package retailers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/cheapfinder/backend/internal/model"
	"github.com/cheapfinder/backend/internal/scraper"
)

var (
	redStyleRe = regexp.MustCompile(`(?i)color:\s*red`)
	digitRe    = regexp.MustCompile(`\d`)
)

var blueButtonSlugs = map[string]string{
	"new balance":     "New-Balance",
	"arc'teryx":       "Arcteryx",
	"arcteryx":        "Arcteryx",
	"a.p.c.":          "APC",
	"apc":             "APC",
	"apfr":            "APFR",
	"on cloud":        "On",
	"on running":      "On",
	"beams plus":      "Beams-Plus",
	"satisfy":         "Satisfy",
	"satisfy running": "Satisfy",
	"goldwin":         "Goldwin",
	"goldwin 0":       "Goldwin-0",
	"balmoral":        "Balmoral",
}

// BlueButtonScraper reads Blue Button Shop's server-rendered product cards.
type BlueButtonScraper struct {
	BaseScraper
	logger *slog.Logger
}

// NewBlueButton creates the Blue Button Shop scraper.
func NewBlueButton(client *http.Client, logger *slog.Logger) *BlueButtonScraper {
	if logger == nil {
		logger = slog.Default()
	}
	return &BlueButtonScraper{
		BaseScraper: BaseScraper{
			Client: client,
			Info: model.Retailer{
				ID:           "bluebuttonshop",
				Name:         "Blue Button Shop",
				BaseURL:      "https://www.bluebuttonshop.com",
				HomeCurrency: "CAD",
			},
		},
		logger: logger,
	}
}

// GetPrice reads the price block of a product detail page.
func (s *BlueButtonScraper) GetPrice(ctx context.Context, product model.Product) (*model.RawPrice, error) {
	doc, body, err := s.FetchPage(ctx, s.Absolute(product.URL))
	if err != nil {
		return nil, err
	}

	// Detail pages use css-price-line, listings use css-price.
	block := doc.Find("div.css-price-line").First()
	if block.Length() == 0 {
		block = doc.Find("div.css-price").First()
	}
	if block.Length() == 0 {
		return nil, scraper.ParseFailure(s.ID(), "get price", errors.New("price block not found"), body)
	}

	raw, ok := parseBlueButtonPrice(block)
	if !ok {
		return nil, scraper.ParseFailure(s.ID(), "get price", errors.New("price block has no amount"), body)
	}
	raw.Page = body
	return raw, nil
}

// parseBlueButtonPrice reads a price block. Regular items carry one span;
// sale items carry a css-strike-through original and a red sale span.
func parseBlueButtonPrice(block *goquery.Selection) (*model.RawPrice, bool) {
	strike := block.Find("span.css-strike-through").First()
	if strike.Length() > 0 {
		var sale string
		block.Find("span").EachWithBreak(func(_ int, sp *goquery.Selection) bool {
			style, _ := sp.Attr("style")
			if redStyleRe.MatchString(style) {
				sale = strings.TrimSpace(sp.Text())
				return false
			}
			return true
		})
		if sale == "" {
			return nil, false
		}
		return &model.RawPrice{
			PriceText:         sale,
			OriginalPriceText: strings.TrimSpace(strike.Text()),
			SaleBadge:         true,
		}, true
	}

	var price string
	block.Find("span").EachWithBreak(func(_ int, sp *goquery.Selection) bool {
		text := strings.TrimSpace(sp.Text())
		if digitRe.MatchString(text) {
			price = text
			return false
		}
		return true
	})
	if price == "" {
		return nil, false
	}
	return &model.RawPrice{PriceText: price}, true
}

// SearchBrand reads the brand listing page, falling back to site search.
func (s *BlueButtonScraper) SearchBrand(ctx context.Context, brand string) ([]model.ProductCandidate, error) {
	slug := brandSlug(brand, blueButtonSlugs, titleSlug)
	base := strings.TrimRight(s.Info.BaseURL, "/")

	var lastErr error
	for _, target := range []string{
		base + "/shop/BRAND/D/" + slug + "/ALL/0",
		base + "/shop/SEARCH/D/" + slug + "/ALL/0",
	} {
		if err := s.pace(ctx, target); err != nil {
			return nil, err
		}
		doc, _, err := s.FetchPage(ctx, target)
		if err != nil {
			s.logger.Warn("Failed to fetch listing",
				slog.String("retailer", s.ID()),
				slog.String("url", target),
				slog.String("error", err.Error()),
			)
			lastErr = err
			continue
		}
		if products := s.parseListing(doc); len(products) > 0 {
			return products, nil
		}
	}
	return nil, lastErr
}

func (s *BlueButtonScraper) parseListing(doc *goquery.Document) []model.ProductCandidate {
	var out []model.ProductCandidate
	doc.Find("div.css-prod-frame").Each(func(_ int, frame *goquery.Selection) {
		if c, ok := s.parseCard(frame); ok {
			out = append(out, c)
		}
	})
	return out
}

func (s *BlueButtonScraper) parseCard(frame *goquery.Selection) (model.ProductCandidate, bool) {
	link := frame.Find("div.css-image a").First()
	href, ok := link.Attr("href")
	if !ok || href == "" {
		return model.ProductCandidate{}, false
	}

	desc := frame.Find("div.css-desc").First()
	if desc.Length() == 0 {
		return model.ProductCandidate{}, false
	}
	brandText := strings.TrimSpace(desc.Find("span").First().Text())

	// The product name is the last line of the description, after the brand.
	var lines []string
	desc.Contents().Each(func(_ int, n *goquery.Selection) {
		if t := strings.TrimSpace(n.Text()); t != "" {
			lines = append(lines, t)
		}
	})
	if len(lines) == 0 {
		return model.ProductCandidate{}, false
	}
	name := lines[len(lines)-1]

	c := model.ProductCandidate{
		Name:     name,
		URL:      s.Absolute(href),
		Brand:    brandText,
		Currency: s.Info.HomeCurrency,
	}
	if src, ok := link.Find("img").Last().Attr("src"); ok {
		c.ThumbnailURL = s.Absolute(src)
	}
	if raw, ok := parseBlueButtonPrice(frame.Find("div.css-price").First()); ok {
		c.PriceText = raw.PriceText
		c.OriginalPriceText = raw.OriginalPriceText
	}
	return c, true
}

// titleSlug turns "beams plus" into "Beams-Plus".
func titleSlug(brand string) string {
	words := strings.Fields(brand)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, "-")
}
