package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cheapfinder/backend/internal/app"
	"github.com/cheapfinder/backend/internal/config"
	"github.com/cheapfinder/backend/internal/database"
	"github.com/cheapfinder/backend/internal/logger"
	"github.com/cheapfinder/backend/internal/model"
	"github.com/cheapfinder/backend/internal/repository"
	"github.com/cheapfinder/backend/internal/repository/memstore"
	"github.com/cheapfinder/backend/pkg/currency"
)

func main() {
	// Flags
	url := flag.String("url", "", "Check a single product URL in memory without touching the database")
	health := flag.Bool("health", false, "Probe every retailer and exit")
	output := flag.String("output", "", "Write the run summary as JSON to this file")
	flag.Parse()

	cfg := config.Load()
	log := logger.New(cfg.Env, os.Stderr)
	slog.SetDefault(log)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration:\n%v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		store   app.Store
		mem     *memstore.Store
		adhocID int64
	)
	if *url != "" || *health {
		mem = memstore.New()
		store = mem
	} else {
		db, err := database.Connect(ctx, cfg.DatabaseURL, database.DefaultPoolConfig())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = db.Close() }()
		if err := database.RunMigrations(db.DB); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		store = repository.NewStore(db)
	}

	// In-memory runs never deliver alerts over the network.
	if mem != nil {
		cfg.SMTP.Host = ""
		cfg.TelegramBotToken = ""
		cfg.RedisURL = ""
	}

	pipeline, err := app.NewPipeline(ctx, cfg, store, nil, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = pipeline.Close() }()

	if *health {
		results := pipeline.Scrapers.HealthCheckAll(ctx, 4, log)
		failed := 0
		for _, s := range pipeline.Scrapers.All() {
			mark := "✅"
			if !results[s.ID()] {
				mark = "❌"
				failed++
			}
			fmt.Printf("%s %s (%s)\n", mark, s.Name(), s.ID())
		}
		if failed > 0 {
			os.Exit(1)
		}
		return
	}

	if *url != "" {
		adhocID, err = seedURL(ctx, mem, pipeline, *url)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(2)
		}
	}

	fmt.Println("═══════════════════════════════════════════════════════════════")
	fmt.Printf("  Price check: %d retailers\n", pipeline.Scrapers.Len())
	fmt.Println("═══════════════════════════════════════════════════════════════")

	start := time.Now()
	run, err := pipeline.Orchestrator.Run(ctx, model.TriggerManual)
	if err != nil && run == nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Printf("SUMMARY: %s, %d/%d ok, %d failed, %d skipped, %d alerts, %.1fs\n",
		run.State, run.OK, run.Total, run.Failed, run.Skipped, run.Alerts, time.Since(start).Seconds())

	for id, m := range pipeline.Orchestrator.Health().GetLastRunMetrics() {
		line := fmt.Sprintf("  %-16s %d/%d ok", id, m.OK, m.Attempted)
		if m.LastError != "" {
			line += "  last error: " + m.LastError
		}
		fmt.Println(line)
	}

	if mem != nil {
		for _, o := range mem.Observations(adhocID) {
			fmt.Printf("\n%s: %s", o.Outcome, formatObservation(o))
		}
		fmt.Println()
	}

	if *output != "" {
		data, _ := json.MarshalIndent(run, "", "  ")
		if err := os.WriteFile(*output, data, 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing output: %v\n", err)
			os.Exit(1)
		}
	}

	if run.State != model.RunCompleted {
		os.Exit(1)
	}
}

// seedURL registers url as the only tracked product of an in-memory store.
func seedURL(ctx context.Context, mem *memstore.Store, p *app.Pipeline, url string) (int64, error) {
	s, ok := p.Scrapers.ForURL(url)
	if !ok {
		return 0, fmt.Errorf("no retailer supports %s", url)
	}
	brand := &model.Brand{Name: "adhoc"}
	if err := mem.CreateBrand(ctx, brand); err != nil {
		return 0, err
	}
	product := &model.Product{
		RetailerID: s.ID(),
		BrandID:    brand.ID,
		Name:       url,
		URL:        url,
		Tracked:    true,
	}
	if err := mem.CreateProduct(ctx, product); err != nil {
		return 0, err
	}
	return product.ID, nil
}

func formatObservation(o model.PriceObservation) string {
	if !o.Outcome.Successful() {
		return o.Detail
	}
	c := currency.Currency(o.Currency)
	var b strings.Builder
	b.WriteString(currency.NewMoneyFromMinor(o.Price, c).Format())
	if o.OriginalPrice != nil {
		fmt.Fprintf(&b, " (was %s)", currency.NewMoneyFromMinor(*o.OriginalPrice, c).Format())
	}
	if o.OnSale {
		b.WriteString(" on sale")
	}
	return b.String()
}
