package alert

import (
	"fmt"
	"strings"

	"github.com/cheapfinder/backend/internal/model"
	"github.com/cheapfinder/backend/pkg/currency"
)

// Content is the rendered text of an alert for every channel.
type Content struct {
	Title   string // dashboard
	Message string // dashboard
	Subject string // email
	Body    string // email
	Text    string // telegram
}

// Render builds the channel texts for an event on the product.
func Render(product model.Product, retailerName string, e model.AlertEvent) Content {
	brand := product.BrandName
	if brand == "" {
		brand = "Unknown"
	}
	if retailerName == "" {
		retailerName = "Unknown"
	}
	pct := e.DropPct.Round(0).String()
	newPrice := formatMinor(e.NewPrice, e.Currency)

	var c Content
	switch e.Kind {
	case model.EventSaleStarted:
		c.Title = "On sale: " + product.Name
		c.Message = fmt.Sprintf("%s — %s is now on sale at %s", brand, product.Name, newPrice)
		c.Subject = fmt.Sprintf("On Sale: %s — %s", brand, product.Name)
	case model.EventTrackedOnSale:
		c.Title = "Tracked on sale: " + product.Name
		c.Message = fmt.Sprintf("%s — %s is on sale at %s", brand, product.Name, newPrice)
		c.Subject = fmt.Sprintf("Now Tracking: %s — %s (on sale)", brand, product.Name)
	default:
		oldPrice := formatMinor(e.OldPrice, e.Currency)
		c.Title = "Price drop: " + product.Name
		c.Message = fmt.Sprintf("%s — %s dropped %s%% (%s → %s)", brand, product.Name, pct, oldPrice, newPrice)
		c.Subject = fmt.Sprintf("Price Drop: %s — %s (-%s%%)", brand, product.Name, pct)
	}

	headline := "Price drop detected!"
	if e.Kind != model.EventPriceDrop {
		headline = "Sale detected!"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", headline)
	fmt.Fprintf(&b, "Brand: %s\n", brand)
	fmt.Fprintf(&b, "Product: %s\n", product.Name)
	fmt.Fprintf(&b, "Retailer: %s\n\n", retailerName)
	if e.OldPrice > 0 {
		fmt.Fprintf(&b, "Old price: %s %s\n", formatMinor(e.OldPrice, e.Currency), e.Currency)
	}
	fmt.Fprintf(&b, "New price: %s %s\n", newPrice, e.Currency)
	if e.DropPct.IsPositive() {
		fmt.Fprintf(&b, "Drop: %s%%\n", e.DropPct.StringFixed(1))
	}
	fmt.Fprintf(&b, "\nLink: %s\n", product.URL)
	c.Body = b.String()

	c.Text = fmt.Sprintf("%s\n%s\n%s", c.Title, c.Message, product.URL)
	return c
}

func formatMinor(minor int64, code string) string {
	return currency.NewMoneyFromMinor(minor, currency.Currency(code)).Format()
}
