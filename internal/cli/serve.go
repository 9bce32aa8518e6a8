package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"

	"github.com/iliyamo/spot-confirmation/internal/clock"
	"github.com/iliyamo/spot-confirmation/internal/config"
	"github.com/iliyamo/spot-confirmation/internal/handler"
	"github.com/iliyamo/spot-confirmation/internal/middleware"
	"github.com/iliyamo/spot-confirmation/internal/queue"
	"github.com/iliyamo/spot-confirmation/internal/router"
	"github.com/iliyamo/spot-confirmation/internal/sweeper"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	Consume      bool
	Seed         bool
	SeedPromoter string
}

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	opts := &ServeOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the in-process deadline sweeper",
		Long: `Run the HTTP API.  With SWEEP_ENABLED=true the deadline sweeper runs
every SWEEP_INTERVAL inside the same process.  With --consume and
NOTIFIER=amqp the notification consumer runs alongside it.

Example:
  STORE_DRIVER=memory JWT_SECRET=dev spotd serve --seed`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Consume, "consume", false, "also run the notification consumer")
	cmd.Flags().BoolVar(&opts.Seed, "seed", false, "create a demo event and lineup (memory store only)")
	cmd.Flags().StringVar(&opts.SeedPromoter, "seed-promoter", "promoter-demo", "promoter owning the demo event")

	return cmd
}

func runServe(ctx context.Context, cmd *cobra.Command, opts *ServeOptions) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.RequireJWTSecret(); err != nil {
		return err
	}
	log, err := newLogger(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, log, clock.System{})
	if err != nil {
		return err
	}
	defer a.Close()

	if opts.Seed {
		ids, err := a.seedDemo(ctx, opts.SeedPromoter, clock.System{})
		if err != nil {
			return err
		}
		log.WithField("promoter_id", opts.SeedPromoter).WithField("spot_ids", ids).Info("demo lineup seeded")
	}

	var limiter *middleware.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = middleware.NewRateLimiter(cfg.RateLimit, config.NewRedisClient(cfg.Redis), log.WithField("component", "ratelimit"))
		if limiter == nil {
			log.Warn("redis unavailable, rate limiting disabled")
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	router.RegisterRoutes(e, router.Deps{
		JWTSecret: cfg.JWTSecret,
		Timeout:   cfg.RequestTimeout,
		Logger:    log.WithField("component", "http"),
		Gatherer:  a.registry,
		Limiter:   limiter,
		Spots:     handler.NewSpotHandler(a.svc),
		Dashboard: handler.NewDashboardHandler(a.dash),
		Admin:     handler.NewAdminHandler(a.sweeper),
	})

	if cfg.Sweep.Enabled {
		go sweeper.NewRunner(a.sweeper, cfg.Sweep.Interval).Start(ctx)
	}
	if opts.Consume {
		if cfg.Notifier != "amqp" {
			log.Warn("--consume ignored: NOTIFIER is not amqp")
		} else {
			d, err := newDeliverer(cfg, log)
			if err != nil {
				return err
			}
			go func() {
				if err := queue.StartNotificationConsumer(ctx, cfg.AMQPURL, d, log.WithField("component", "consumer")); err != nil && !errors.Is(err, context.Canceled) {
					log.WithError(err).Error("notification consumer stopped")
				}
			}()
		}
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", ":"+cfg.Port).WithField("env", cfg.Env).Info("listening")
		errCh <- e.Start(":" + cfg.Port)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	log.Info("shutting down")
	return e.Shutdown(shutdownCtx)
}
