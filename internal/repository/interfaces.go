package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/cheapfinder/backend/internal/model"
)

type ProductRepositoryInterface interface {
	ListActiveProducts(ctx context.Context) ([]model.Product, error)
	GetProduct(ctx context.Context, id int64) (*model.Product, error)
	CreateProduct(ctx context.Context, p *model.Product) error
	SetProductTracked(ctx context.Context, id int64, tracked bool) error
	DeactivateProduct(ctx context.Context, id int64) error
	ListBrands(ctx context.Context) ([]model.Brand, error)
	GetBrand(ctx context.Context, id int64) (*model.Brand, error)
	CreateBrand(ctx context.Context, b *model.Brand) error
}

type ObservationRepositoryInterface interface {
	AppendObservation(ctx context.Context, o *model.PriceObservation) error
	LatestSuccessful(ctx context.Context, productID, beforeID int64) (*model.PriceObservation, error)
	PriceHistory(ctx context.Context, productID int64, since time.Time) ([]model.PriceObservation, error)
}

type AlertRepositoryInterface interface {
	ListRulesForProduct(ctx context.Context, product model.Product) ([]model.AlertRule, error)
	CreateRule(ctx context.Context, rule *model.AlertRule) error
	FindEventByKey(ctx context.Context, key model.EventKey) (*model.AlertEvent, error)
	AppendAlertEvent(ctx context.Context, e *model.AlertEvent, channels []model.Channel) (bool, error)
	GetAlertEvent(ctx context.Context, id int64) (*model.AlertEvent, error)
	UpdateDelivery(ctx context.Context, d *model.Delivery) error
	ListPendingDeliveries(ctx context.Context, limit int) ([]model.AlertEvent, error)
}

type NotificationRepositoryInterface interface {
	CreateDashboardNotification(ctx context.Context, n *model.Notification) error
	ListNotifications(ctx context.Context, unreadOnly bool, limit int) ([]model.Notification, error)
	MarkNotificationRead(ctx context.Context, id int64) error
	MarkAllNotificationsRead(ctx context.Context) (int64, error)
	CountUnreadNotifications(ctx context.Context) (int, error)
}

type RunRepositoryInterface interface {
	SaveRun(ctx context.Context, run *model.CheckRun) error
	GetRun(ctx context.Context, id uuid.UUID) (*model.CheckRun, error)
	LatestRun(ctx context.Context) (*model.CheckRun, error)
	ListRuns(ctx context.Context, limit int) ([]model.CheckRun, error)
}

// StoreInterface is the full persistence surface of the pipeline.
type StoreInterface interface {
	ProductRepositoryInterface
	ObservationRepositoryInterface
	AlertRepositoryInterface
	NotificationRepositoryInterface
	RunRepositoryInterface
}

// Store bundles the Postgres repositories behind a single value.
type Store struct {
	*ProductRepository
	*ObservationRepository
	*AlertRepository
	*NotificationRepository
	*RunRepository
}

var _ StoreInterface = (*Store)(nil)

func NewStore(db *sqlx.DB) *Store {
	return &Store{
		ProductRepository:      NewProductRepository(db),
		ObservationRepository:  NewObservationRepository(db),
		AlertRepository:        NewAlertRepository(db),
		NotificationRepository: NewNotificationRepository(db),
		RunRepository:          NewRunRepository(db),
	}
}
