package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/duyanhad/shop-api/internal/domain/auth"
	"github.com/duyanhad/shop-api/internal/domain/inventory"
	"github.com/duyanhad/shop-api/internal/domain/order"
	"github.com/duyanhad/shop-api/internal/event"
	"github.com/duyanhad/shop-api/internal/event/kafka"
	"github.com/duyanhad/shop-api/internal/handler"
	"github.com/duyanhad/shop-api/internal/postgres"
	"github.com/duyanhad/shop-api/pkg/health"
	"github.com/duyanhad/shop-api/pkg/httpmiddleware"
)

// Run wires every dependency together and serves HTTP until the context is
// cancelled, then drains in-flight requests before returning.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Starting", zap.String("addr", cfg.Addr))

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	healthSvc := newHealth(ctx, pool)

	userRepo := postgres.NewUserRepository(pool)
	productRepo := postgres.NewProductRepository(pool)
	orderRepo := postgres.NewOrderRepository(pool)

	// A log sink is always subscribed; Kafka joins only when brokers are
	// configured.
	subs := []event.Subscriber{event.NewLogSink(lg.Named("events"))}
	if len(cfg.Events.KafkaBrokers) > 0 {
		sink := kafka.NewSink(lg.Named("kafka"), cfg.Events.KafkaBrokers, cfg.Events.KafkaTopic)
		defer func() {
			if err := sink.Close(); err != nil {
				lg.Warn("Kafka sink close error", zap.Error(err))
			}
		}()
		subs = append(subs, sink)
	}
	dispatcher := event.NewDispatcher(lg.Named("dispatcher"), cfg.Events.Buffer, subs...)
	defer dispatcher.Close()

	tokens := auth.NewTokenIssuer([]byte(cfg.JWTSecret), cfg.TokenTTL)
	authSvc := auth.NewService(userRepo, tokens, []byte(cfg.PasswordPepper))
	inventorySvc := inventory.NewService(productRepo, postgres.NewFulfillmentStore(pool), dispatcher)
	orderSvc := order.NewService(orderRepo, inventorySvc, dispatcher)

	h := handler.New(authSvc, userRepo, productRepo, orderSvc, inventorySvc)

	// Probe endpoints sit outside the API router so they skip auth.
	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	mux.Handle("/", h.Routes())

	instrumented := otelhttp.NewHandler(mux, "shop-api",
		otelhttp.WithTracerProvider(m.TracerProvider()),
		otelhttp.WithMeterProvider(m.MeterProvider()),
	)

	server := &http.Server{
		Addr:              cfg.Addr,
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Handler: httpmiddleware.Wrap(instrumented,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.LogRequests(),
		),
	}

	done := drainOnCancel(ctx, lg, cfg, server, healthSvc)

	lg.Info("Listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-done
	return nil
}

func newHealth(ctx context.Context, pool *pgxpool.Pool) *health.Health {
	svc := health.New()
	svc.AddReadinessCheck("postgres", 5*time.Second, func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	svc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	svc.Start(ctx, 10*time.Second)
	svc.SetReady(true)
	return svc
}

// drainOnCancel watches the context and runs the shutdown sequence when it
// fires: flip readiness off, give load balancers time to notice, then stop
// the server with a deadline. The returned channel closes when shutdown is
// complete.
func drainOnCancel(ctx context.Context, lg *zap.Logger, cfg *Config, server *http.Server, healthSvc *health.Health) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()

		healthSvc.SetReady(false)
		lg.Info("Draining", zap.Duration("readiness_delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Stopping server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
	}()
	return done
}
