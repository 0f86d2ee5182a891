// Package tracking runs price checks: one bounded, rate-limited pass over
// every tracked product, feeding successful observations to the alert
// pipeline as they are persisted.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/cheapfinder/backend/internal/logger"
	"github.com/cheapfinder/backend/internal/metrics"
	"github.com/cheapfinder/backend/internal/model"
	"github.com/cheapfinder/backend/internal/normalizer"
	"github.com/cheapfinder/backend/internal/ratelimit"
	"github.com/cheapfinder/backend/internal/scraper"
	"github.com/cheapfinder/backend/pkg/currency"
)

// ErrRunInProgress is returned when a run is requested while another one is
// still running.
var ErrRunInProgress = errors.New("price check already in progress")

const (
	maxDetailLen   = 500
	persistTimeout = 10 * time.Second
)

// Store is the persistence the orchestrator needs.
type Store interface {
	ListActiveProducts(ctx context.Context) ([]model.Product, error)
	AppendObservation(ctx context.Context, obs *model.PriceObservation) error
	SaveRun(ctx context.Context, run *model.CheckRun) error
}

// Evaluator turns a persisted observation into alert events.
type Evaluator interface {
	Evaluate(ctx context.Context, product model.Product, obs model.PriceObservation) ([]model.AlertEvent, error)
}

// Dispatcher delivers alert events.
type Dispatcher interface {
	Dispatch(ctx context.Context, event model.AlertEvent) error
	ResumePending(ctx context.Context, limit int) (int, error)
}

// Config holds configuration for the check orchestrator
type Config struct {
	// MaxConcurrency bounds the number of in-flight tasks across all domains.
	MaxConcurrency int
	// RunTimeout bounds a whole run. Tasks not started by then are skipped.
	RunTimeout time.Duration
	// ResumeLimit caps how many pending deliveries are retried at run start.
	ResumeLimit int
	// DispatchWorkers deliver alert events outside the scrape pool.
	DispatchWorkers int
	// DispatchTimeout bounds the delivery of one event on every channel.
	DispatchTimeout time.Duration
	Retry           RetryConfig
}

// DefaultConfig returns the default orchestrator configuration
func DefaultConfig() Config {
	return Config{
		MaxConcurrency:  8,
		RunTimeout:      45 * time.Minute,
		ResumeLimit:     100,
		DispatchWorkers: 2,
		DispatchTimeout: 3 * time.Minute,
		Retry:           DefaultRetryConfig(),
	}
}

// Dependencies are the collaborators of an Orchestrator. Evaluator,
// Dispatcher, Snapshots, Health, Metrics and Lock are optional.
type Dependencies struct {
	Store      Store
	Scrapers   *scraper.Registry
	Limits     *ratelimit.Registry
	Evaluator  Evaluator
	Dispatcher Dispatcher
	Snapshots  *scraper.SnapshotWriter
	Health     *scraper.MetricsCollector
	Metrics    *metrics.Pipeline
	Lock       RunLock
}

// Orchestrator coordinates price checks across retailers
type Orchestrator struct {
	config     Config
	store      Store
	scrapers   *scraper.Registry
	limits     *ratelimit.Registry
	evaluator  Evaluator
	dispatcher Dispatcher
	snapshots  *scraper.SnapshotWriter
	health     *scraper.MetricsCollector
	metrics    *metrics.Pipeline
	lock       RunLock
	logger     *slog.Logger

	running atomic.Bool
	mu      sync.RWMutex
	current *model.CheckRun
}

// NewOrchestrator creates a new check orchestrator
func NewOrchestrator(deps Dependencies, cfg Config, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	if cfg.MaxConcurrency < 1 {
		cfg.MaxConcurrency = 1
	}
	if cfg.Retry.Attempts < 1 {
		cfg.Retry.Attempts = 1
	}
	if cfg.DispatchWorkers < 1 {
		cfg.DispatchWorkers = 1
	}
	if cfg.DispatchTimeout <= 0 {
		cfg.DispatchTimeout = DefaultConfig().DispatchTimeout
	}
	if deps.Limits == nil {
		deps.Limits = ratelimit.NewRegistry(ratelimit.DefaultConfig())
	}
	if deps.Health == nil {
		deps.Health = scraper.NewMetricsCollector()
	}

	return &Orchestrator{
		config:     cfg,
		store:      deps.Store,
		scrapers:   deps.Scrapers,
		limits:     deps.Limits,
		evaluator:  deps.Evaluator,
		dispatcher: deps.Dispatcher,
		snapshots:  deps.Snapshots,
		health:     deps.Health,
		metrics:    deps.Metrics,
		lock:       deps.Lock,
		logger:     log,
	}
}

// Health returns the per-retailer collector fed by every run.
func (o *Orchestrator) Health() *scraper.MetricsCollector {
	return o.health
}

// Running reports whether a run is in progress in this process.
func (o *Orchestrator) Running() bool {
	return o.running.Load()
}

// Current returns a copy of the run in progress, or of the last finished run.
func (o *Orchestrator) Current() (model.CheckRun, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.current == nil {
		return model.CheckRun{}, false
	}
	return *o.current, true
}

func (o *Orchestrator) publish(run *model.CheckRun) {
	snapshot := *run
	o.mu.Lock()
	o.current = &snapshot
	o.mu.Unlock()
}

// taskResult is the terminal state of one product's task.
type taskResult struct {
	outcome model.Outcome
	alerts  int
	stored  bool
}

// Run checks every active tracked product once. It returns ErrRunInProgress
// when another run holds the guard. A single failed product never aborts the
// run; failures are counted and the run ends PartiallyFailed.
func (o *Orchestrator) Run(ctx context.Context, trigger model.RunTrigger) (*model.CheckRun, error) {
	if !o.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer o.running.Store(false)

	if o.lock != nil {
		release, ok, err := o.lock.TryAcquire(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrRunInProgress
		}
		defer release()
	}

	run := &model.CheckRun{
		ID:        uuid.New(),
		Trigger:   trigger,
		State:     model.RunRunning,
		StartedAt: time.Now().UTC(),
	}
	ctx = logger.WithRunID(ctx, run.ID.String())
	log := logger.With(ctx, o.logger)

	if err := o.store.SaveRun(ctx, run); err != nil {
		return nil, fmt.Errorf("save run: %w", err)
	}
	o.publish(run)

	runCtx := ctx
	if o.config.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, o.config.RunTimeout)
		defer cancel()
	}

	o.resumeDeliveries(runCtx, log)

	products, err := o.store.ListActiveProducts(runCtx)
	if err != nil {
		err = fmt.Errorf("list active products: %w", err)
		o.finish(ctx, run, err, log)
		return run, err
	}

	tasks, domains := o.order(products)
	run.Total = len(tasks)
	o.publish(run)

	log.Info("Starting price check",
		slog.String("trigger", string(trigger)),
		slog.Int("product_count", len(tasks)),
		slog.Int("domain_count", len(domains)),
		slog.Int("max_concurrency", o.config.MaxConcurrency),
	)
	for _, d := range domains {
		log.Debug("Domain queue", slog.String("domain", d.name), slog.Int("products", d.count))
	}

	var (
		wg         sync.WaitGroup
		countMu    sync.Mutex
		sem        = semaphore.NewWeighted(int64(o.config.MaxConcurrency))
		deliveries = o.startDeliveries()
	)
	record := func(res taskResult) {
		countMu.Lock()
		defer countMu.Unlock()
		if res.outcome.Successful() && res.stored {
			run.OK++
		} else {
			run.Failed++
		}
		run.Alerts += res.alerts
		o.publish(run)
	}

	for i, p := range tasks {
		err := runCtx.Err()
		if err == nil {
			err = sem.Acquire(runCtx, 1)
		}
		if err != nil {
			countMu.Lock()
			run.Skipped += len(tasks) - i
			countMu.Unlock()
			log.Warn("Price check interrupted, skipping remaining products",
				slog.Int("dispatched", i),
				slog.Int("skipped", len(tasks)-i),
				slog.String("reason", err.Error()),
			)
			break
		}

		wg.Add(1)
		go func(p model.Product) {
			defer wg.Done()
			defer sem.Release(1)
			record(o.checkProduct(runCtx, run.ID, p, deliveries))
		}(p)
	}
	wg.Wait()
	deliveries.close()

	o.finish(ctx, run, nil, log)
	return run, nil
}

// finish moves the run to its terminal state and persists it even when ctx
// has been cancelled.
func (o *Orchestrator) finish(ctx context.Context, run *model.CheckRun, runErr error, log *slog.Logger) {
	finished := time.Now().UTC()
	run.FinishedAt = &finished
	if runErr == nil && run.Failed == 0 && run.Skipped == 0 && run.Total == run.OK {
		run.State = model.RunCompleted
	} else {
		run.State = model.RunPartiallyFailed
	}

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := o.store.SaveRun(saveCtx, run); err != nil {
		log.Error("Failed to save check run", slog.String("error", err.Error()))
	}

	o.health.FinishRun()
	duration := finished.Sub(run.StartedAt)
	o.metrics.ObserveRun(string(run.Trigger), string(run.State), duration, run.OK, run.Failed, run.Skipped)
	o.publish(run)

	log.Info("Price check completed",
		slog.String("state", string(run.State)),
		slog.Int("total", run.Total),
		slog.Int("ok", run.OK),
		slog.Int("failed", run.Failed),
		slog.Int("skipped", run.Skipped),
		slog.Int("alerts", run.Alerts),
		slog.Duration("duration", duration),
	)
}

func (o *Orchestrator) resumeDeliveries(ctx context.Context, log *slog.Logger) {
	if o.dispatcher == nil {
		return
	}
	n, err := o.dispatcher.ResumePending(ctx, o.config.ResumeLimit)
	if err != nil {
		log.Warn("Some pending deliveries failed again", slog.String("error", err.Error()))
	}
	if n > 0 {
		log.Info("Resumed pending deliveries", slog.Int("count", n))
	}
}

type domainQueue struct {
	name     string
	count    int
	products []model.Product
}

// order groups products by rate-limit domain and interleaves the groups so
// that the worker pool is not saturated by a single slow retailer.
func (o *Orchestrator) order(products []model.Product) ([]model.Product, []*domainQueue) {
	byDomain := make(map[string]*domainQueue)
	for _, p := range products {
		d := o.scrapers.Domain(p)
		q, ok := byDomain[d]
		if !ok {
			q = &domainQueue{name: d}
			byDomain[d] = q
		}
		q.products = append(q.products, p)
		q.count++
	}

	queues := make([]*domainQueue, 0, len(byDomain))
	for _, q := range byDomain {
		queues = append(queues, q)
	}
	sort.Slice(queues, func(i, j int) bool { return queues[i].name < queues[j].name })

	ordered := make([]model.Product, 0, len(products))
	for round := 0; len(ordered) < len(products); round++ {
		for _, q := range queues {
			if round < len(q.products) {
				ordered = append(ordered, q.products[round])
			}
		}
	}
	return ordered, queues
}

// checkProduct runs one task to a terminal outcome: fetch, normalize,
// persist, then hand successful observations to the alert pipeline.
func (o *Orchestrator) checkProduct(ctx context.Context, runID uuid.UUID, product model.Product, deliveries *deliveryQueue) taskResult {
	start := time.Now()
	obs := &model.PriceObservation{ProductID: product.ID, RunID: runID}

	s, ok := o.scrapers.Get(product.RetailerID)
	if !ok {
		s, ok = o.scrapers.ForURL(product.URL)
	}
	if !ok {
		obs.Outcome = model.OutcomeParseError
		obs.Detail = fmt.Sprintf("no scraper registered for retailer %q", product.RetailerID)
		return o.persist(ctx, product, obs, nil, deliveries)
	}

	ctx = logger.WithRetailer(ctx, s.ID())
	log := logger.With(ctx, o.logger).With(slog.Int64("product_id", product.ID))
	domain := o.scrapers.Domain(product)

	fetched := o.fetch(ctx, s, product, domain, log)
	var taskErr error
	switch {
	case fetched.err != nil:
		taskErr = fetched.err
		kind := scraper.KindOf(fetched.err)
		obs.Outcome = kind.Outcome()
		obs.Detail = truncate(fetched.err.Error())
		if isInterrupted(ctx, fetched.err) {
			obs.Outcome = model.OutcomeNetworkError
			obs.Detail = truncate("interrupted: " + fetched.err.Error())
		}
		if kind == scraper.KindParse {
			o.snapshot(s.ID(), product.ID, scraper.PageOf(fetched.err), log)
		}
		log.Warn("Price check failed",
			slog.String("outcome", string(obs.Outcome)),
			slog.Int("attempts", fetched.attempts),
			slog.String("error", fetched.err.Error()),
		)

	default:
		home := currency.Currency(o.scrapers.Retailer(s.ID()).HomeCurrency)
		canonical, err := normalizer.Normalize(*fetched.raw, home)
		if err != nil {
			taskErr = err
			obs.Outcome = model.OutcomeParseError
			obs.Detail = truncate(err.Error())
			o.snapshot(s.ID(), product.ID, fetched.raw.Page, log)
			log.Warn("Price normalization failed",
				slog.String("price_text", fetched.raw.PriceText),
				slog.String("error", err.Error()),
			)
			break
		}
		obs.Outcome = model.OutcomeOK
		obs.Price = canonical.Price
		obs.OriginalPrice = canonical.OriginalPrice
		obs.Currency = canonical.Currency
		obs.OnSale = canonical.OnSale
	}

	o.health.Record(s.ID(), obs.Outcome, time.Since(start), taskErr)
	return o.persist(ctx, product, obs, log, deliveries)
}

// persist persists obs and, when it carries a price, evaluates it and queues
// the resulting events for delivery. A stored price is always evaluated, even
// when the run was cancelled while it was being fetched.
func (o *Orchestrator) persist(ctx context.Context, product model.Product, obs *model.PriceObservation, log *slog.Logger, deliveries *deliveryQueue) taskResult {
	if log == nil {
		log = logger.With(ctx, o.logger).With(slog.Int64("product_id", product.ID))
	}
	res := taskResult{outcome: obs.Outcome}

	detached := context.WithoutCancel(ctx)
	persistCtx, cancel := context.WithTimeout(detached, persistTimeout)
	defer cancel()
	obs.ObservedAt = time.Now().UTC()
	if err := o.store.AppendObservation(persistCtx, obs); err != nil {
		log.Error("Failed to save observation", slog.String("error", err.Error()))
		return res
	}
	res.stored = true

	if !obs.Outcome.Successful() || o.evaluator == nil {
		return res
	}

	log.Debug("Price observed",
		slog.Int64("price", obs.Price),
		slog.String("currency", obs.Currency),
		slog.Bool("on_sale", obs.OnSale),
	)

	evalCtx, cancelEval := context.WithTimeout(detached, persistTimeout)
	defer cancelEval()
	events, err := o.evaluator.Evaluate(evalCtx, product, *obs)
	if err != nil {
		log.Error("Alert evaluation failed", slog.String("error", err.Error()))
	}
	res.alerts = len(events)
	for _, e := range events {
		deliveries.enqueue(ctx, e, log)
	}
	return res
}

func (o *Orchestrator) snapshot(retailer string, productID int64, page []byte, log *slog.Logger) {
	path, err := o.snapshots.Save(retailer, productID, page)
	if err != nil {
		log.Warn("Failed to save page snapshot", slog.String("error", err.Error()))
		return
	}
	if path != "" {
		log.Info("Saved page snapshot", slog.String("path", path))
	}
}

func truncate(s string) string {
	if len(s) <= maxDetailLen {
		return s
	}
	return s[:maxDetailLen]
}
