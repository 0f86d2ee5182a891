package retailers

import (
	"bytes"
	"encoding/json"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/cheapfinder/backend/internal/model"
)

var nonSlugRe = regexp.MustCompile(`[^a-z0-9]+`)

// slugify lowercases s and joins its words with hyphens.
func slugify(s string) string {
	return strings.Trim(nonSlugRe.ReplaceAllString(strings.ToLower(s), "-"), "-")
}

// brandSlug maps a brand name to a retailer URL slug. Exact keys win, then
// the longest key contained in (or containing) the brand, then slugify.
func brandSlug(brand string, slugMap map[string]string, fallback func(string) string) string {
	lower := strings.ToLower(strings.TrimSpace(brand))
	if slug, ok := slugMap[lower]; ok {
		return slug
	}

	keys := make([]string, 0, len(slugMap))
	for k := range slugMap {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	for _, k := range keys {
		if strings.Contains(lower, k) || strings.Contains(k, lower) {
			return slugMap[k]
		}
	}

	if fallback != nil {
		return fallback(brand)
	}
	return slugify(brand)
}

// structuredPrice is a price read from page metadata.
type structuredPrice struct {
	Price        string
	Currency     string
	Availability string
}

// unavailable reports a schema.org availability meaning the product cannot be bought.
func (p structuredPrice) unavailable() bool {
	a := strings.ToLower(p.Availability)
	return strings.Contains(a, "outofstock") ||
		strings.Contains(a, "soldout") ||
		strings.Contains(a, "discontinued")
}

func (p structuredPrice) raw(page []byte) *model.RawPrice {
	return &model.RawPrice{PriceText: p.Price, CurrencyText: p.Currency, Page: page}
}

// metaPrice reads product:price:amount or og:price:amount.
func metaPrice(doc *goquery.Document) (structuredPrice, bool) {
	for _, prefix := range []string{"product:price", "og:price"} {
		amount, ok := doc.Find(`meta[property="` + prefix + `:amount"]`).Attr("content")
		if !ok || strings.TrimSpace(amount) == "" {
			continue
		}
		currency, _ := doc.Find(`meta[property="` + prefix + `:currency"]`).Attr("content")
		return structuredPrice{Price: strings.TrimSpace(amount), Currency: strings.TrimSpace(currency)}, true
	}
	return structuredPrice{}, false
}

// jsonLDNodes returns every JSON-LD object on the page, flattening arrays
// and @graph containers.
func jsonLDNodes(doc *goquery.Document) []map[string]any {
	var out []map[string]any
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		dec := json.NewDecoder(bytes.NewReader([]byte(s.Text())))
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err != nil {
			return
		}
		out = append(out, flattenLD(v)...)
	})
	return out
}

func flattenLD(v any) []map[string]any {
	switch t := v.(type) {
	case []any:
		var out []map[string]any
		for _, item := range t {
			out = append(out, flattenLD(item)...)
		}
		return out
	case map[string]any:
		out := []map[string]any{t}
		if graph, ok := t["@graph"]; ok {
			out = append(out, flattenLD(graph)...)
		}
		return out
	}
	return nil
}

func ldType(node map[string]any) string {
	switch t := node["@type"].(type) {
	case string:
		return t
	case []any:
		for _, v := range t {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	return ""
}

func ldString(node map[string]any, key string) string {
	switch v := node[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case map[string]any:
		// brand: {"@type": "Brand", "name": "..."}
		return ldString(v, "name")
	case []any:
		if len(v) > 0 {
			if s, ok := v[0].(string); ok {
				return s
			}
		}
	}
	return ""
}

// ldOffer returns the first offer of a Product node.
func ldOffer(node map[string]any) (structuredPrice, bool) {
	var offer map[string]any
	switch o := node["offers"].(type) {
	case map[string]any:
		offer = o
	case []any:
		for _, item := range o {
			if m, ok := item.(map[string]any); ok {
				offer = m
				break
			}
		}
	}
	if offer == nil {
		return structuredPrice{}, false
	}

	price := ldString(offer, "price")
	if price == "" {
		price = ldString(offer, "lowPrice")
	}
	if price == "" {
		return structuredPrice{}, false
	}
	return structuredPrice{
		Price:        price,
		Currency:     ldString(offer, "priceCurrency"),
		Availability: ldString(offer, "availability"),
	}, true
}

// jsonLDPrice finds the offer of the page's Product node.
func jsonLDPrice(doc *goquery.Document) (structuredPrice, bool) {
	nodes := jsonLDNodes(doc)
	for _, n := range nodes {
		if ldType(n) == "Product" {
			if p, ok := ldOffer(n); ok {
				return p, true
			}
		}
	}
	// Some shops omit @type on the product node.
	for _, n := range nodes {
		if p, ok := ldOffer(n); ok {
			return p, true
		}
	}
	return structuredPrice{}, false
}

// jsonLDCandidates reads products listed on a search or brand page, either as
// an ItemList or as standalone Product nodes.
func jsonLDCandidates(doc *goquery.Document, absolute func(string) string) []model.ProductCandidate {
	var out []model.ProductCandidate
	seen := make(map[string]bool)

	add := func(n map[string]any) {
		name := ldString(n, "name")
		url := absolute(ldString(n, "url"))
		if name == "" || url == "" || seen[url] {
			return
		}
		seen[url] = true

		c := model.ProductCandidate{
			Name:         name,
			URL:          url,
			SKU:          ldString(n, "sku"),
			Brand:        ldString(n, "brand"),
			ThumbnailURL: absolute(ldString(n, "image")),
		}
		if p, ok := ldOffer(n); ok {
			c.PriceText = p.Price
			c.Currency = p.Currency
		}
		out = append(out, c)
	}

	for _, n := range jsonLDNodes(doc) {
		switch ldType(n) {
		case "ItemList":
			items, _ := n["itemListElement"].([]any)
			for _, entry := range items {
				m, ok := entry.(map[string]any)
				if !ok {
					continue
				}
				if item, ok := m["item"].(map[string]any); ok {
					m = item
				}
				if ldType(m) == "Product" || ldType(m) == "" {
					add(m)
				}
			}
		case "Product":
			add(n)
		}
	}
	return out
}
