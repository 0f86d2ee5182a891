package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/cheapfinder/backend/internal/logger"
	"github.com/cheapfinder/backend/internal/ratelimit"
	"github.com/cheapfinder/backend/internal/scraper"
	"github.com/cheapfinder/backend/internal/scraper/retailers"
)

// Searches one or every retailer for a brand and prints the candidates, to
// check selectors after a retailer changes its site.
func main() {
	brand := flag.String("brand", "Arc'teryx", "Brand to search for")
	retailer := flag.String("retailer", "", "Retailer ID (default: all)")
	limit := flag.Int("limit", 3, "Candidates to print per retailer")
	timeout := flag.Duration("timeout", 2*time.Minute, "Overall timeout")
	flag.Parse()

	log := logger.New(os.Getenv("ENV"), os.Stderr)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	limits := ratelimit.NewRegistry(ratelimit.Config{
		Interval:   500 * time.Millisecond,
		MaxPenalty: 10 * time.Second,
	})
	registry := retailers.NewRegistry(retailers.Options{
		Client: &http.Client{Timeout: 15 * time.Second},
		Gate:   limits,
		Logger: log,
	})

	var targets []scraper.Scraper
	if *retailer != "" {
		s, ok := registry.Get(*retailer)
		if !ok {
			fmt.Fprintf(os.Stderr, "unknown retailer %q\n", *retailer)
			os.Exit(2)
		}
		targets = append(targets, s)
	} else {
		targets = registry.All()
	}

	fmt.Printf("\n=== Searching %d retailers for %q ===\n\n", len(targets), *brand)

	var total, failed int
	for _, s := range targets {
		start := time.Now()
		candidates, err := s.SearchBrand(ctx, *brand)
		elapsed := time.Since(start).Round(time.Millisecond)
		if err != nil {
			failed++
			fmt.Printf("✗ %s (%s) [%s] in %v: %v\n", s.Name(), s.ID(), scraper.KindOf(err), elapsed, err)
			continue
		}

		total += len(candidates)
		fmt.Printf("✓ %s (%s): %d products in %v\n", s.Name(), s.ID(), len(candidates), elapsed)
		for i, c := range candidates {
			if i >= *limit {
				fmt.Printf("   ... and %d more\n", len(candidates)-*limit)
				break
			}
			line := fmt.Sprintf("   - %s  %s", c.Name, c.PriceText)
			if c.OriginalPriceText != "" {
				line += " (was " + c.OriginalPriceText + ")"
			}
			fmt.Println(line)
		}
	}

	fmt.Printf("\n=== Summary ===\n")
	fmt.Printf("Retailers: %d, failed: %d, products: %d\n", len(targets), failed, total)

	for _, d := range limits.Domains() {
		if until := limits.For(d).BlockedUntil(); !until.IsZero() {
			log.Warn("Domain cooling down", slog.String("domain", d), slog.Time("until", until))
		}
	}

	if failed > 0 {
		os.Exit(1)
	}
}
