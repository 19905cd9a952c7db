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
	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront/api/routes"
	"github.com/angelmondragon/storefront/internal/auth"
	"github.com/angelmondragon/storefront/internal/cart"
	"github.com/angelmondragon/storefront/internal/catalog"
	"github.com/angelmondragon/storefront/internal/checkout"
	"github.com/angelmondragon/storefront/internal/identity"
	"github.com/angelmondragon/storefront/internal/users"
	"github.com/angelmondragon/storefront/pkg/auth/session"
	"github.com/angelmondragon/storefront/pkg/config"
	"github.com/angelmondragon/storefront/pkg/db"
	"github.com/angelmondragon/storefront/pkg/env"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/metrics"
	"github.com/angelmondragon/storefront/pkg/migrate"
	"github.com/angelmondragon/storefront/pkg/redis"
	"github.com/angelmondragon/storefront/pkg/remote"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, dbClient.Close()) }()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, redisClient.Close()) }()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	remoteMetrics := metrics.NewRemoteMetrics(registry)

	deps, err := buildDeps(cfg, logg, dbClient, redisClient, registry, remoteMetrics)
	if err != nil {
		return err
	}

	addr := ":" + env.Get("PORT", cfg.App.Port)
	logCtx := logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(logCtx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(cfg, logg, deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logg.Info(logCtx, "shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func buildDeps(
	cfg *config.Config,
	logg *logger.Logger,
	dbClient *db.Client,
	redisClient *redis.Client,
	registry *prometheus.Registry,
	observer remote.Observer,
) (routes.Deps, error) {
	backend, err := remote.NewClient("commerce", cfg.Backend.BaseURL,
		remote.WithAPIKey("X-API-Key", cfg.Backend.APIKey),
		remote.WithTimeout(cfg.Backend.Timeout),
		remote.WithObserver(observer),
	)
	if err != nil {
		return routes.Deps{}, err
	}
	identityRemote, err := remote.NewClient("identity", cfg.Identity.BaseURL,
		remote.WithAPIKey("apikey", cfg.Identity.APIKey),
		remote.WithTimeout(cfg.Identity.Timeout),
		remote.WithObserver(observer),
	)
	if err != nil {
		return routes.Deps{}, err
	}

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		return routes.Deps{}, err
	}

	userService, err := users.NewService(users.NewRepository(dbClient.DB()))
	if err != nil {
		return routes.Deps{}, err
	}
	identityProvider, err := identity.NewClient(identityRemote)
	if err != nil {
		return routes.Deps{}, err
	}
	catalogRemote, err := catalog.NewRemote(backend)
	if err != nil {
		return routes.Deps{}, err
	}
	catalogService, err := catalog.NewService(catalogRemote)
	if err != nil {
		return routes.Deps{}, err
	}

	threshold, fee, err := cfg.Cart.ShippingAmounts()
	if err != nil {
		return routes.Deps{}, err
	}
	cartRemote, err := cart.NewRemote(backend)
	if err != nil {
		return routes.Deps{}, err
	}
	holder, err := cart.NewRedisHolder(redisClient, cfg.Cart.CacheTTL)
	if err != nil {
		return routes.Deps{}, err
	}
	cartService, err := cart.NewService(cartRemote, holder,
		cart.ShippingPolicy{FreeThreshold: threshold, FlatFee: fee},
		logg, metrics.NewCartMetrics(registry))
	if err != nil {
		return routes.Deps{}, err
	}

	authService, err := auth.NewService(auth.ServiceParams{
		Identity:       identityProvider,
		Users:          userService,
		SessionManager: sessionManager,
		JWTConfig:      cfg.JWT,
		RedirectURL:    cfg.Identity.RedirectURL,
		MagicLinks:     cfg.FeatureFlags.MagicLinks,
		Carts:          cartService,
		Logger:         logg,
	})
	if err != nil {
		return routes.Deps{}, err
	}

	orders, err := checkout.NewOrderPlacer(backend)
	if err != nil {
		return routes.Deps{}, err
	}
	checkoutService, err := checkout.NewService(cartService, orders, logg)
	if err != nil {
		return routes.Deps{}, err
	}

	return routes.Deps{
		DB:       dbClient,
		Redis:    redisClient,
		Sessions: sessionManager,
		Gatherer: registry,
		HTTP:     metrics.NewHTTPMetrics(registry),
		Auth:     authService,
		Users:    userService,
		Catalog:  catalogService,
		Cart:     cartService,
		Checkout: checkoutService,
	}, nil
}
