package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/shopflow-backend/api/routes"
	"github.com/angelmondragon/shopflow-backend/internal/cart"
	"github.com/angelmondragon/shopflow-backend/internal/catalog"
	"github.com/angelmondragon/shopflow-backend/internal/checkout"
	"github.com/angelmondragon/shopflow-backend/internal/localstate"
	"github.com/angelmondragon/shopflow-backend/internal/orders"
	"github.com/angelmondragon/shopflow-backend/internal/payments"
	"github.com/angelmondragon/shopflow-backend/internal/shipping"
	"github.com/angelmondragon/shopflow-backend/internal/webhooks"
	"github.com/angelmondragon/shopflow-backend/pkg/config"
	"github.com/angelmondragon/shopflow-backend/pkg/db"
	"github.com/angelmondragon/shopflow-backend/pkg/instance"
	"github.com/angelmondragon/shopflow-backend/pkg/logger"
	"github.com/angelmondragon/shopflow-backend/pkg/maps"
	"github.com/angelmondragon/shopflow-backend/pkg/metrics"
	"github.com/angelmondragon/shopflow-backend/pkg/migrate"
	"github.com/angelmondragon/shopflow-backend/pkg/momo"
	"github.com/angelmondragon/shopflow-backend/pkg/outbox"
	"github.com/angelmondragon/shopflow-backend/pkg/pricing"
	"github.com/angelmondragon/shopflow-backend/pkg/redis"
)

const (
	serviceKind      = "api"
	ipnDeliveryTTL   = 7 * 24 * time.Hour
	ipnDeliveryScope = "momo-ipn"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceKind})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceKind

	logg = logger.New(logger.Options{
		ServiceName: serviceKind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	deps, err := buildDependencies(cfg, logg, dbClient, redisClient)
	if err != nil {
		logg.Error(context.Background(), "failed to wire api dependencies", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":         cfg.App.Env,
		"addr":        addr,
		"serviceKind": cfg.Service.Kind,
		"momo":        cfg.MoMo.Enabled(),
		"instance":    instance.GetID(),
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(cfg, logg, deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		serveErr <- server.ListenAndServe()
	}()

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-sigCtx.Done():
		logg.Info(ctx, "api server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown incomplete", err)
		}
	}
}

func buildDependencies(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client) (routes.Dependencies, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	fees, err := pricing.NewEngine(pricing.Table{
		Tiers:       cfg.Pricing.Tiers,
		OverageUnit: cfg.Pricing.OverageUnit,
		DefaultFee:  cfg.Pricing.DefaultFee,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}

	local, err := localstate.NewRedisStore(redisClient, cfg.Session.TTL, logg)
	if err != nil {
		return routes.Dependencies{}, err
	}

	remoteCarts, err := cart.NewService(cart.NewRepository(dbClient.DB()), dbClient)
	if err != nil {
		return routes.Dependencies{}, err
	}
	carts, err := cart.NewStore(cart.StoreParams{
		Local:   local,
		Remote:  remoteCarts,
		Catalog: catalog.NewRepository(dbClient.DB(), logg),
		Fees:    fees,
		TaxRate: cfg.Cart.TaxRate,
		Logger:  logg,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}

	shippingParams := shipping.Params{
		Origin: maps.LatLng{Latitude: cfg.Store.Latitude, Longitude: cfg.Store.Longitude},
		Fees:   fees,
		Local:  local,
		Maps:   cfg.GoogleMaps,
		Logger: logg,
	}
	if cfg.GoogleMaps.APIKey != "" {
		mapsClient, err := maps.NewClient(cfg.GoogleMaps.APIKey)
		if err != nil {
			return routes.Dependencies{}, err
		}
		shippingParams.Router = mapsClient
		shippingParams.Places = mapsClient
	} else {
		logg.Warn(context.Background(), "google maps key not set; shipping quotes use the default fee")
	}
	shippingSvc, err := shipping.NewService(shippingParams)
	if err != nil {
		return routes.Dependencies{}, err
	}

	events := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	ordersSvc, err := orders.NewService(orders.NewRepository(dbClient.DB()), dbClient, events, logg)
	if err != nil {
		return routes.Dependencies{}, err
	}
	admin, err := orders.NewAdminConsole(ordersSvc)
	if err != nil {
		return routes.Dependencies{}, err
	}

	var (
		provider payments.Provider = payments.Unconfigured{}
		verifier routes.NotificationVerifier
	)
	if cfg.MoMo.Enabled() {
		momoClient, err := momo.NewClient(cfg.MoMo, logg)
		if err != nil {
			return routes.Dependencies{}, err
		}
		provider = payments.NewMoMoProvider(momoClient)
		verifier = momoClient
	}

	txns := payments.NewTransactionRepository(dbClient.DB())
	reconciler, err := payments.NewReconciler(payments.ReconcilerParams{
		Orders:       ordersSvc,
		Transactions: txns,
		Tx:           dbClient,
		Outbox:       events,
		Provider:     provider,
		Markers:      local,
		Budget:       payments.BudgetFromConfig(cfg.Reconciler),
		Metrics:      metrics.NewReconcileMetrics(reg),
		Logger:       logg,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}
	channel, err := payments.NewChannel(payments.ChannelParams{
		Transactions:   txns,
		Tx:             dbClient,
		Outbox:         events,
		Provider:       provider,
		Tracker:        reconciler,
		TransactionTTL: cfg.Reconciler.TransactionTTL,
		Logger:         logg,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}

	checkoutSvc, err := checkout.NewService(carts, shippingSvc, ordersSvc, channel, logg)
	if err != nil {
		return routes.Dependencies{}, err
	}

	guard, err := webhooks.NewDeliveryGuard(redisClient, ipnDeliveryTTL, ipnDeliveryScope)
	if err != nil {
		return routes.Dependencies{}, err
	}

	return routes.Dependencies{
		DB:       dbClient,
		Redis:    redisClient,
		Cart:     carts,
		Shipping: shippingSvc,
		Checkout: checkoutSvc,
		Orders:   ordersSvc,
		Admin:    admin,
		Payments: reconciler,
		Verifier: verifier,
		Delivery: guard,
		Metrics:  reg,
	}, nil
}
