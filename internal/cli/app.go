package cli

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/spot-confirmation/internal/clock"
	"github.com/iliyamo/spot-confirmation/internal/config"
	"github.com/iliyamo/spot-confirmation/internal/confirmation"
	"github.com/iliyamo/spot-confirmation/internal/dashboard"
	"github.com/iliyamo/spot-confirmation/internal/database"
	"github.com/iliyamo/spot-confirmation/internal/metrics"
	"github.com/iliyamo/spot-confirmation/internal/model"
	"github.com/iliyamo/spot-confirmation/internal/notify"
	"github.com/iliyamo/spot-confirmation/internal/queue"
	"github.com/iliyamo/spot-confirmation/internal/reminder"
	"github.com/iliyamo/spot-confirmation/internal/repository"
	"github.com/iliyamo/spot-confirmation/internal/sweeper"
)

// spotLister is the read side the dashboard needs from either store.
type spotLister interface {
	ListByEvents(ctx context.Context, eventIDs []string) ([]model.Spot, error)
}

// app is the wired object graph shared by serve and sweep.
type app struct {
	cfg      config.Config
	log      *logrus.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	notifier confirmation.Notifier
	svc      *confirmation.Service
	dash     *dashboard.Service
	sweeper  *sweeper.Sweeper

	memory *repository.MemoryStore // set only for STORE_DRIVER=memory
	db     *sql.DB
}

func newApp(ctx context.Context, cfg config.Config, log *logrus.Logger, clk clock.Clock) (*app, error) {
	a := &app{cfg: cfg, log: log, registry: prometheus.NewRegistry()}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.New(a.registry)

	var (
		spots  confirmation.SpotStore
		events confirmation.EventDirectory
		lister spotLister
	)
	switch cfg.StoreDriver {
	case "memory":
		a.memory = repository.NewMemoryStore()
		spots, events, lister = a.memory, a.memory, a.memory
	case "mysql":
		db, err := database.Open(ctx, cfg.DB)
		if err != nil {
			return nil, err
		}
		if cfg.DB.AutoMigrate {
			if err := database.EnsureSchema(ctx, db); err != nil {
				db.Close()
				return nil, err
			}
		}
		a.db = db
		st := repository.NewStore(db)
		spots, events, lister = st, st.Events, st
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}

	switch cfg.Notifier {
	case "amqp":
		a.notifier = queue.NewPublisher(cfg.AMQPURL, log.WithField("component", "publisher"))
	default:
		a.notifier = notify.LogNotifier{Log: log.WithField("component", "notifier")}
	}

	a.svc = confirmation.New(spots, events,
		confirmation.WithClock(clk),
		confirmation.WithNotifier(a.notifier),
		confirmation.WithLogger(log.WithField("component", "confirmation")),
		confirmation.WithMetrics(a.metrics),
		confirmation.WithMaxAttempts(cfg.Confirmation.MaxAttempts),
		confirmation.WithLateConfirmation(cfg.Confirmation.AllowLateConfirmation),
		confirmation.WithDefaultDeadline(cfg.Confirmation.DefaultDeadline),
	)
	a.dash = dashboard.NewService(events, lister, clk)

	tiers, err := reminder.ParseTiers(cfg.Confirmation.ReminderTiers)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("REMINDER_TIERS: %w", err)
	}
	policy, err := reminder.NewPolicy(tiers...)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("REMINDER_TIERS: %w", err)
	}
	a.sweeper = sweeper.New(a.svc, policy, a.notifier, sweeper.Config{
		Backoff: sweeper.Backoff{
			Attempts: cfg.Sweep.NotifyAttempts,
			Base:     cfg.Sweep.NotifyBaseDelay,
			Max:      cfg.Sweep.NotifyMaxDelay,
		},
		Concurrency: cfg.Sweep.Concurrency,
		Logger:      log.WithField("component", "sweeper"),
		Metrics:     a.metrics,
	})
	return a, nil
}

// Close releases the database pool, if any.
func (a *app) Close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.WithError(err).Warn("close database")
		}
	}
}

// seedDemo fills the in-memory store with one event and an open lineup
// so the API can be tried without MySQL.
func (a *app) seedDemo(ctx context.Context, promoterID string, clk clock.Clock) ([]string, error) {
	if a.memory == nil {
		return nil, fmt.Errorf("seeding needs STORE_DRIVER=memory")
	}
	ev := model.Event{ID: uuid.NewString(), PromoterID: promoterID, Title: "Demo Showcase", StartsAt: clk.Now().Add(72 * time.Hour)}
	if err := a.memory.PutEvent(ctx, ev); err != nil {
		return nil, err
	}
	lineup := []struct {
		name string
		mins int
		fee  int64
	}{{"Host", 20, 100}, {"Opener", 10, 50}, {"Feature", 15, 75}, {"Headliner", 30, 250}}

	ids := make([]string, 0, len(lineup))
	for i, l := range lineup {
		s := model.Spot{
			ID:              uuid.NewString(),
			EventID:         ev.ID,
			Name:            l.name,
			DurationMinutes: l.mins,
			PaymentAmount:   decimal.NewFromInt(l.fee),
			Currency:        "USD",
			OrderIndex:      i + 1,
		}
		if err := a.memory.CreateSpot(ctx, s); err != nil {
			return nil, err
		}
		ids = append(ids, s.ID)
	}
	return ids, nil
}
