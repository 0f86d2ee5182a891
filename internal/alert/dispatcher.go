package alert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/cheapfinder/backend/internal/logger"
	"github.com/cheapfinder/backend/internal/metrics"
	"github.com/cheapfinder/backend/internal/model"
)

// EmailSender sends a plain text email.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// TelegramSender posts a message to the configured chat.
type TelegramSender interface {
	SendTelegram(ctx context.Context, text string) error
}

// DispatchStore is the persistence the dispatcher needs.
type DispatchStore interface {
	GetProduct(ctx context.Context, id int64) (*model.Product, error)
	CreateDashboardNotification(ctx context.Context, n *model.Notification) error
	UpdateDelivery(ctx context.Context, d *model.Delivery) error
	ListPendingDeliveries(ctx context.Context, limit int) ([]model.AlertEvent, error)
}

// DispatcherConfig bounds delivery retries.
type DispatcherConfig struct {
	EmailTo         string
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// RetailerName resolves a retailer ID for message text. Optional.
	RetailerName func(id string) string
}

func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		MaxAttempts:     4,
		InitialInterval: 2 * time.Second,
		MaxInterval:     time.Minute,
	}
}

// Dispatcher delivers alert events. Every channel has its own delivery row
// and is attempted independently of the others.
type Dispatcher struct {
	store    DispatchStore
	email    EmailSender
	telegram TelegramSender
	cfg      DispatcherConfig
	metrics  *metrics.Pipeline
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher. email, telegram and m may be nil.
func NewDispatcher(store DispatchStore, email EmailSender, telegram TelegramSender, cfg DispatcherConfig, m *metrics.Pipeline, log *slog.Logger) *Dispatcher {
	def := DefaultDispatcherConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = def.InitialInterval
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = def.MaxInterval
	}
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		store:    store,
		email:    email,
		telegram: telegram,
		cfg:      cfg,
		metrics:  m,
		logger:   log,
	}
}

// Dispatch attempts every pending delivery of the event. The returned error
// joins a *DeliveryError per channel that ended failed.
func (d *Dispatcher) Dispatch(ctx context.Context, event model.AlertEvent) error {
	product, err := d.store.GetProduct(ctx, event.ProductID)
	if err != nil {
		return fmt.Errorf("load product %d: %w", event.ProductID, err)
	}

	retailer := product.RetailerID
	if d.cfg.RetailerName != nil {
		retailer = d.cfg.RetailerName(product.RetailerID)
	}
	content := Render(*product, retailer, event)

	var errs []error
	for i := range event.Deliveries {
		del := &event.Deliveries[i]
		if del.Status != model.DeliveryPending {
			continue
		}
		if err := d.deliver(ctx, event, del, content); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ResumePending retries deliveries left pending by an interrupted run and
// returns the number of events it processed.
func (d *Dispatcher) ResumePending(ctx context.Context, limit int) (int, error) {
	events, err := d.store.ListPendingDeliveries(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("list pending deliveries: %w", err)
	}
	if len(events) > 0 {
		d.logger.Info("Resuming pending alert deliveries", slog.Int("events", len(events)))
	}

	var errs []error
	for _, e := range events {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		if err := d.Dispatch(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return len(events), errors.Join(errs...)
}

func (d *Dispatcher) deliver(ctx context.Context, event model.AlertEvent, del *model.Delivery, content Content) error {
	log := logger.With(ctx, d.logger).With(
		slog.Int64("event_id", event.ID),
		slog.String("channel", string(del.Channel)),
	)

	remaining := d.cfg.MaxAttempts - del.Attempts
	if remaining <= 0 {
		return d.fail(ctx, log, event, del, errors.New("attempt budget exhausted"))
	}

	op := func() error {
		del.Attempts++
		err := d.send(ctx, event, del.Channel, content)
		if err == nil {
			return nil
		}
		del.LastError = err.Error()
		if errors.Is(err, ErrChannelUnavailable) || errors.Is(err, ErrUnknownChannel) {
			return backoff.Permanent(err)
		}
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.cfg.InitialInterval
	b.MaxInterval = d.cfg.MaxInterval
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(remaining-1)), ctx)

	err := backoff.RetryNotify(op, policy, func(err error, wait time.Duration) {
		log.Warn("Alert delivery failed, retrying",
			slog.Int("attempt", del.Attempts),
			slog.Duration("wait", wait),
			slog.String("error", err.Error()),
		)
		// Keep the attempt count durable in case the process stops mid-retry.
		if uerr := d.store.UpdateDelivery(ctx, del); uerr != nil {
			log.Warn("Failed to record delivery attempt", slog.String("error", uerr.Error()))
		}
	})

	switch {
	case err == nil:
		del.Status = model.DeliveryDelivered
		del.LastError = ""
		d.metrics.ObserveDelivery(string(del.Channel), string(del.Status))
		if uerr := d.store.UpdateDelivery(context.WithoutCancel(ctx), del); uerr != nil {
			return fmt.Errorf("record %s delivery: %w", del.Channel, uerr)
		}
		log.Info("Alert delivered", slog.Int("attempts", del.Attempts))
		return nil
	case ctx.Err() != nil:
		// Interrupted: leave the delivery pending for ResumePending.
		if uerr := d.store.UpdateDelivery(context.WithoutCancel(ctx), del); uerr != nil {
			log.Warn("Failed to record delivery attempt", slog.String("error", uerr.Error()))
		}
		return ctx.Err()
	default:
		return d.fail(ctx, log, event, del, err)
	}
}

func (d *Dispatcher) fail(ctx context.Context, log *slog.Logger, event model.AlertEvent, del *model.Delivery, cause error) error {
	del.Status = model.DeliveryFailed
	if del.LastError == "" {
		del.LastError = cause.Error()
	}
	d.metrics.ObserveDelivery(string(del.Channel), string(del.Status))
	log.Error("Alert delivery failed permanently",
		slog.Int("attempts", del.Attempts),
		slog.String("error", cause.Error()),
	)

	derr := &DeliveryError{EventID: event.ID, Channel: del.Channel, Attempts: del.Attempts, Err: cause}
	if uerr := d.store.UpdateDelivery(context.WithoutCancel(ctx), del); uerr != nil {
		return errors.Join(derr, fmt.Errorf("record %s delivery: %w", del.Channel, uerr))
	}
	return derr
}

func (d *Dispatcher) send(ctx context.Context, event model.AlertEvent, ch model.Channel, content Content) error {
	switch ch {
	case model.ChannelDashboard:
		n := &model.Notification{AlertEventID: event.ID, Title: content.Title, Message: content.Message}
		return d.store.CreateDashboardNotification(ctx, n)
	case model.ChannelEmail:
		if d.email == nil || d.cfg.EmailTo == "" {
			return ErrChannelUnavailable
		}
		return d.email.SendEmail(ctx, d.cfg.EmailTo, content.Subject, content.Body)
	case model.ChannelTelegram:
		if d.telegram == nil {
			return ErrChannelUnavailable
		}
		return d.telegram.SendTelegram(ctx, content.Text)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownChannel, ch)
	}
}
