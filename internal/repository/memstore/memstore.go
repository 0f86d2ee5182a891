// Package memstore is an in-memory implementation of the repository
// interfaces, used by tests and dry runs.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cheapfinder/backend/internal/model"
	"github.com/cheapfinder/backend/internal/repository"
)

var _ repository.StoreInterface = (*Store)(nil)

// Store keeps every table in maps guarded by one mutex.
type Store struct {
	mu sync.RWMutex

	now func() time.Time

	brands        map[int64]model.Brand
	products      map[int64]model.Product
	observations  []model.PriceObservation
	rules         map[int64]model.AlertRule
	events        map[int64]model.AlertEvent
	eventKeys     map[model.EventKey]int64
	deliveries    map[int64]model.Delivery
	notifications map[int64]model.Notification
	runs          map[uuid.UUID]model.CheckRun

	nextID int64
}

func New() *Store {
	return &Store{
		now:           func() time.Time { return time.Now().UTC() },
		brands:        make(map[int64]model.Brand),
		products:      make(map[int64]model.Product),
		rules:         make(map[int64]model.AlertRule),
		events:        make(map[int64]model.AlertEvent),
		eventKeys:     make(map[model.EventKey]int64),
		deliveries:    make(map[int64]model.Delivery),
		notifications: make(map[int64]model.Notification),
		runs:          make(map[uuid.UUID]model.CheckRun),
	}
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

// Products

func (s *Store) ListActiveProducts(_ context.Context) ([]model.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Product
	for _, p := range s.products {
		if p.Active && p.Tracked {
			out = append(out, s.withBrand(p))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RetailerID != out[j].RetailerID {
			return out[i].RetailerID < out[j].RetailerID
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) withBrand(p model.Product) model.Product {
	if b, ok := s.brands[p.BrandID]; ok {
		p.BrandName = b.Name
	}
	return p
}

func (s *Store) GetProduct(_ context.Context, id int64) (*model.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, repository.ErrProductNotFound
	}
	p = s.withBrand(p)
	return &p, nil
}

func (s *Store) CreateProduct(_ context.Context, p *model.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, existing := range s.products {
		if existing.RetailerID == p.RetailerID && existing.URL == p.URL {
			existing.Name, existing.SKU, existing.ThumbnailURL, existing.Active = p.Name, p.SKU, p.ThumbnailURL, true
			s.products[id] = existing
			p.ID, p.Active, p.CreatedAt = id, true, existing.CreatedAt
			return nil
		}
	}

	p.ID = s.id()
	p.Active = true
	p.CreatedAt = s.now()
	s.products[p.ID] = *p
	return nil
}

func (s *Store) SetProductTracked(_ context.Context, id int64, tracked bool) error {
	return s.updateProduct(id, func(p *model.Product) { p.Tracked = tracked })
}

func (s *Store) DeactivateProduct(_ context.Context, id int64) error {
	return s.updateProduct(id, func(p *model.Product) { p.Active = false })
}

func (s *Store) updateProduct(id int64, fn func(*model.Product)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok {
		return repository.ErrProductNotFound
	}
	fn(&p)
	s.products[id] = p
	return nil
}

func (s *Store) ListBrands(_ context.Context) ([]model.Brand, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Brand, 0, len(s.brands))
	for _, b := range s.brands {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name) })
	return out, nil
}

func (s *Store) GetBrand(_ context.Context, id int64) (*model.Brand, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.brands[id]
	if !ok {
		return nil, repository.ErrBrandNotFound
	}
	return &b, nil
}

func (s *Store) CreateBrand(_ context.Context, b *model.Brand) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b.ID = s.id()
	b.CreatedAt = s.now()
	s.brands[b.ID] = *b
	return nil
}

// Observations

func (s *Store) AppendObservation(_ context.Context, o *model.PriceObservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o.ID = s.id()
	if o.ObservedAt.IsZero() {
		o.ObservedAt = s.now()
	}
	s.observations = append(s.observations, *o)
	return nil
}

func (s *Store) LatestSuccessful(_ context.Context, productID, beforeID int64) (*model.PriceObservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(s.observations) - 1; i >= 0; i-- {
		o := s.observations[i]
		if o.ProductID == productID && o.ID < beforeID && o.Outcome.Successful() {
			return &o, nil
		}
	}
	return nil, nil
}

func (s *Store) PriceHistory(_ context.Context, productID int64, since time.Time) ([]model.PriceObservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.PriceObservation
	for _, o := range s.observations {
		if o.ProductID == productID && o.Outcome.Successful() && !o.ObservedAt.Before(since) {
			out = append(out, o)
		}
	}
	return out, nil
}

// Observations returns every stored observation of the product, oldest first.
func (s *Store) Observations(productID int64) []model.PriceObservation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.PriceObservation
	for _, o := range s.observations {
		if o.ProductID == productID {
			out = append(out, o)
		}
	}
	return out
}

// Alerts

func (s *Store) ListRulesForProduct(_ context.Context, product model.Product) ([]model.AlertRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.AlertRule
	for _, r := range s.rules {
		if r.Enabled && r.AppliesTo(product) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) CreateRule(_ context.Context, rule *model.AlertRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rule.ID = s.id()
	rule.CreatedAt = s.now()
	s.rules[rule.ID] = *rule
	return nil
}

func (s *Store) FindEventByKey(_ context.Context, key model.EventKey) (*model.AlertEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.eventKeys[key]
	if !ok {
		return nil, nil
	}
	e := s.eventLocked(id)
	return &e, nil
}

func (s *Store) AppendAlertEvent(_ context.Context, e *model.AlertEvent, channels []model.Channel) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.eventKeys[e.Key()]; ok {
		*e = s.eventLocked(id)
		return false, nil
	}

	e.ID = s.id()
	e.CreatedAt = s.now()
	e.Deliveries = make([]model.Delivery, 0, len(channels))
	for _, ch := range channels {
		d := model.Delivery{ID: s.id(), EventID: e.ID, Channel: ch, Status: model.DeliveryPending, UpdatedAt: e.CreatedAt}
		s.deliveries[d.ID] = d
		e.Deliveries = append(e.Deliveries, d)
	}

	stored := *e
	stored.Deliveries = nil
	s.events[e.ID] = stored
	s.eventKeys[e.Key()] = e.ID
	return true, nil
}

func (s *Store) GetAlertEvent(_ context.Context, id int64) (*model.AlertEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.events[id]; !ok {
		return nil, repository.ErrAlertEventNotFound
	}
	e := s.eventLocked(id)
	return &e, nil
}

func (s *Store) eventLocked(id int64) model.AlertEvent {
	e := s.events[id]
	e.Deliveries = s.deliveriesLocked(id, nil)
	return e
}

func (s *Store) deliveriesLocked(eventID int64, keep func(model.Delivery) bool) []model.Delivery {
	var out []model.Delivery
	for _, d := range s.deliveries {
		if d.EventID == eventID && (keep == nil || keep(d)) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) UpdateDelivery(_ context.Context, d *model.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.deliveries[d.ID]
	if !ok {
		return repository.ErrDeliveryNotFound
	}
	stored.Status, stored.Attempts, stored.LastError = d.Status, d.Attempts, d.LastError
	stored.UpdatedAt = s.now()
	s.deliveries[d.ID] = stored
	d.UpdatedAt = stored.UpdatedAt
	return nil
}

func (s *Store) ListPendingDeliveries(_ context.Context, limit int) ([]model.AlertEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]int64, 0, len(s.events))
	for id := range s.events {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	pending := func(d model.Delivery) bool { return d.Status == model.DeliveryPending }
	var out []model.AlertEvent
	count := 0
	for _, id := range ids {
		ds := s.deliveriesLocked(id, pending)
		if len(ds) == 0 {
			continue
		}
		if limit > 0 && count+len(ds) > limit {
			ds = ds[:limit-count]
		}
		e := s.events[id]
		e.Deliveries = ds
		out = append(out, e)
		count += len(ds)
		if limit > 0 && count >= limit {
			break
		}
	}
	return out, nil
}

// Events returns every stored alert event with its deliveries.
func (s *Store) Events() []model.AlertEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.AlertEvent, 0, len(s.events))
	for id := range s.events {
		out = append(out, s.eventLocked(id))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Notifications

func (s *Store) CreateDashboardNotification(_ context.Context, n *model.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.notifications {
		if existing.AlertEventID == n.AlertEventID {
			*n = existing
			return nil
		}
	}
	n.ID = s.id()
	n.Read = false
	n.CreatedAt = s.now()
	s.notifications[n.ID] = *n
	return nil
}

func (s *Store) ListNotifications(_ context.Context, unreadOnly bool, limit int) ([]model.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Notification
	for _, n := range s.notifications {
		if unreadOnly && n.Read {
			continue
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) MarkNotificationRead(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[id]
	if !ok {
		return repository.ErrNotificationNotFound
	}
	n.Read = true
	s.notifications[id] = n
	return nil
}

func (s *Store) MarkAllNotificationsRead(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	for id, n := range s.notifications {
		if !n.Read {
			n.Read = true
			s.notifications[id] = n
			count++
		}
	}
	return count, nil
}

func (s *Store) CountUnreadNotifications(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, n := range s.notifications {
		if !n.Read {
			count++
		}
	}
	return count, nil
}

// Runs

func (s *Store) SaveRun(_ context.Context, run *model.CheckRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs[run.ID] = *run
	return nil
}

func (s *Store) GetRun(_ context.Context, id uuid.UUID) (*model.CheckRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, repository.ErrRunNotFound
	}
	return &run, nil
}

func (s *Store) LatestRun(ctx context.Context) (*model.CheckRun, error) {
	runs, _ := s.ListRuns(ctx, 1)
	if len(runs) == 0 {
		return nil, repository.ErrRunNotFound
	}
	return &runs[0], nil
}

func (s *Store) ListRuns(_ context.Context, limit int) ([]model.CheckRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.CheckRun, 0, len(s.runs))
	for _, r := range s.runs {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
