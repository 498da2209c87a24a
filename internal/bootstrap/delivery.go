// Package bootstrap assembles the delivery repositories, the cascade outbox
// and the application services over one database handle.
package bootstrap

import (
	"time"

	deliveryapp "github.com/pharmaerp/backend/internal/application/delivery"
	"github.com/pharmaerp/backend/internal/domain/delivery"
	"github.com/pharmaerp/backend/internal/domain/shared"
	"github.com/pharmaerp/backend/internal/infrastructure/cache"
	"github.com/pharmaerp/backend/internal/infrastructure/config"
	"github.com/pharmaerp/backend/internal/infrastructure/event"
	"github.com/pharmaerp/backend/internal/infrastructure/persistence"
	"github.com/pharmaerp/backend/internal/infrastructure/telemetry"
	"github.com/pharmaerp/backend/internal/interfaces/http/handler"
	"github.com/pharmaerp/backend/internal/interfaces/http/router"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Options tune the delivery container. The zero value is usable.
type Options struct {
	DeleteWindowDays       int
	RetryPolicy            shared.RetryPolicy
	Processor              event.OutboxProcessorConfig
	StaleProcessing        time.Duration
	Idempotency            shared.IdempotencyConfig
	IdempotencyStore       shared.IdempotencyStore
	DiscountRule           delivery.DiscountRule
	LargeDiscountThreshold decimal.Decimal
	Notifier               shared.Notifier
	Metrics                *telemetry.DeliveryMetrics
}

// DefaultOptions returns options with idempotency on and default retry budgets
func DefaultOptions() Options {
	return Options{
		DeleteWindowDays: deliveryapp.DefaultDeleteWindowDays,
		RetryPolicy:      shared.DefaultRetryPolicy(),
		Processor:        event.DefaultOutboxProcessorConfig(),
		Idempotency:      shared.DefaultIdempotencyConfig(),
	}
}

// OptionsFromConfig maps the loaded configuration onto container options.
// The idempotency store, notifier and metrics are left for the caller.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	opts := DefaultOptions()
	opts.DeleteWindowDays = cfg.Delivery.DeleteWindowDays
	opts.RetryPolicy = shared.RetryPolicy{
		MaxRetries:  cfg.Event.MaxRetries,
		BaseBackoff: cfg.Event.BaseBackoff,
		MaxBackoff:  cfg.Event.MaxBackoff,
	}
	opts.Processor = event.OutboxProcessorConfig{
		BatchSize:        cfg.Event.BatchSize,
		PollInterval:     cfg.Event.PollInterval,
		Workers:          cfg.Event.Workers,
		CleanupEnabled:   cfg.Event.CleanupEnabled,
		CleanupRetention: cfg.Event.CleanupRetention,
		CleanupInterval:  cfg.Event.CleanupInterval,
	}
	opts.StaleProcessing = cfg.Event.StaleProcessing
	if cfg.Event.IdempotencyTTL > 0 {
		opts.Idempotency.TTL = cfg.Event.IdempotencyTTL
	}

	tiers, err := cfg.Delivery.ParseDiscountTiers()
	if err != nil {
		return Options{}, err
	}
	if len(tiers) > 0 {
		rule := make([]delivery.DiscountTier, len(tiers))
		for i, t := range tiers {
			rule[i] = delivery.DiscountTier{MinAmount: t.MinAmount, Percentage: t.Percentage}
		}
		opts.DiscountRule = delivery.NewTieredDiscountRule(rule)
		opts.LargeDiscountThreshold = cfg.Delivery.LargeDiscountThreshold
	}
	return opts, nil
}

// Delivery holds every wired component of the delivery service
type Delivery struct {
	DB *gorm.DB

	Logs          *persistence.GormShortReturnLogRepository
	InvoiceGroups *persistence.GormInvoiceGroupRepository
	Sheets        *persistence.GormDeliverySheetRepository
	Orders        *persistence.GormOrderRepository
	Couriers      *persistence.GormCourierRepository
	Organizations *persistence.GormOrganizationRepository
	Outbox        *event.GormOutboxRepository

	Serializer *event.EventSerializer
	Dispatcher *event.Dispatcher
	Processor  *event.OutboxProcessor

	GroupAggregator *deliveryapp.InvoiceGroupAggregator
	SheetAggregator *deliveryapp.SheetAggregator
	ShortReturns    *deliveryapp.ShortReturnService
	SheetService    *deliveryapp.SheetService
	Assigner        *deliveryapp.SubSheetAssigner
	Reconciler      *deliveryapp.ReconciliationService
}

// NewDelivery wires repositories, the cascade outbox and the services
func NewDelivery(db *gorm.DB, opts Options, logger *zap.Logger) *Delivery {
	d := &Delivery{
		DB:            db,
		Logs:          persistence.NewGormShortReturnLogRepository(db),
		InvoiceGroups: persistence.NewGormInvoiceGroupRepository(db),
		Sheets:        persistence.NewGormDeliverySheetRepository(db),
		Orders:        persistence.NewGormOrderRepository(db),
		Couriers:      persistence.NewGormCourierRepository(db),
		Organizations: persistence.NewGormOrganizationRepository(db),
		Outbox:        event.NewGormOutboxRepository(db),
		Serializer:    event.NewEventSerializer(),
		Dispatcher:    event.NewDispatcher(logger),
	}
	if opts.StaleProcessing > 0 {
		d.Outbox.SetStaleProcessingAfter(opts.StaleProcessing)
	}

	event.RegisterDeliveryEvents(d.Serializer)
	publisher := event.NewOutboxPublisher(d.Serializer, opts.RetryPolicy)
	d.Logs.SetOutboxEventSaver(publisher)
	d.InvoiceGroups.SetOutboxEventSaver(publisher)

	d.GroupAggregator = deliveryapp.NewInvoiceGroupAggregator(d.InvoiceGroups, d.Logs, logger)
	if opts.DiscountRule != nil {
		d.GroupAggregator.SetDiscountRule(opts.DiscountRule, opts.LargeDiscountThreshold)
	}
	d.SheetAggregator = deliveryapp.NewSheetAggregator(d.Sheets, logger)
	d.ShortReturns = deliveryapp.NewShortReturnService(d.Logs, d.InvoiceGroups, d.Orders, opts.DeleteWindowDays, logger)
	d.SheetService = deliveryapp.NewSheetService(d.Sheets, d.InvoiceGroups, d.Logs, d.GroupAggregator, d.SheetAggregator, logger)
	d.Assigner = deliveryapp.NewSubSheetAssigner(d.Sheets, d.Couriers, d.Organizations, d.SheetAggregator, logger)
	d.Reconciler = deliveryapp.NewReconciliationService(d.Sheets, d.GroupAggregator, d.SheetAggregator, logger)

	if opts.Notifier != nil {
		d.GroupAggregator.SetNotifier(opts.Notifier)
		d.SheetService.SetNotifier(opts.Notifier)
		d.Assigner.SetNotifier(opts.Notifier)
		d.Reconciler.SetNotifier(opts.Notifier)
	}

	store := opts.IdempotencyStore
	if store == nil {
		store = cache.NewInMemoryIdempotencyStore(5 * time.Minute)
	}
	cascades := []shared.EventHandler{
		deliveryapp.NewInvoiceGroupCascadeHandler(d.GroupAggregator, logger),
		deliveryapp.NewDeliverySheetCascadeHandler(d.Sheets, d.SheetAggregator, logger),
	}
	for _, h := range cascades {
		d.Dispatcher.Subscribe(event.NewIdempotentHandler(h, store, logger,
			event.WithIdempotencyConfig(opts.Idempotency)))
	}

	d.Processor = event.NewOutboxProcessor(d.Outbox, d.Dispatcher, d.Serializer, opts.Processor, logger)
	if opts.Metrics != nil {
		d.Processor.SetObserver(opts.Metrics)
		d.Reconciler.SetSweepObserver(opts.Metrics)
	}
	return d
}

// Handlers builds the HTTP handlers backed by this container
func (d *Delivery) Handlers(name string, db handler.Pinger) router.Handlers {
	return router.Handlers{
		ShortReturn:   handler.NewShortReturnHandler(d.ShortReturns),
		DeliverySheet: handler.NewDeliverySheetHandler(d.SheetService, d.Assigner, d.Reconciler),
		Outbox:        handler.NewOutboxHandler(d.Outbox, d.Processor),
		System:        handler.NewSystemHandler(name, db),
	}
}
