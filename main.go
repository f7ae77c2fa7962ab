package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	firebase "firebase.google.com/go/v4"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/HSouheill/barrim_notifier/config"
	"github.com/HSouheill/barrim_notifier/controllers"
	"github.com/HSouheill/barrim_notifier/middleware"
	"github.com/HSouheill/barrim_notifier/models"
	"github.com/HSouheill/barrim_notifier/repositories"
	"github.com/HSouheill/barrim_notifier/routes"
	"github.com/HSouheill/barrim_notifier/services"
	"github.com/HSouheill/barrim_notifier/utils"
	"github.com/HSouheill/barrim_notifier/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := config.NewLogger("info", "console", os.Stderr)
		bootLog.Fatal().Err(err).Msg("invalid configuration")
	}
	log := config.NewLogger(cfg.LogLevel, cfg.LogFormat, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Firebase backs both the Firestore store and FCM push
	var app *firebase.App
	if cfg.StoreDriver == config.StoreFirestore || cfg.PushProvider == config.PushFCM {
		app, err = config.InitFirebase(ctx, cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize Firebase")
		}
	}

	store, closeStore := openStore(ctx, cfg, app, log)
	defer closeStore()

	dispatcher := newDispatcher(ctx, cfg, app, log)

	var guard services.PushGuard = services.NopPushGuard{}
	if rdb := config.ConnectRedis(ctx, cfg, log); rdb != nil {
		defer rdb.Close()
		guard = services.NewRedisPushGuard(rdb, cfg.PushGuardTTL)
	}

	// Create WebSocket hub
	hub := websocket.NewHub()
	go hub.Run(ctx)

	writer := services.NewFanOutWriter(store, store, services.FanOutOptions{
		FallbackLink: cfg.FallbackItemLink,
		Concurrency:  cfg.IndexUpdateConcurrency,
		Observer:     hub,
	}, log)
	reconciler := services.NewReadReconciler(store, hub, log)
	repairer := services.NewIndexRepairer(store, hub, log)

	notifications := services.NewNotificationService(services.NotificationServiceDeps{
		Selector:     services.NewRecipientSelector(store),
		Writer:       writer,
		Reconciler:   reconciler,
		Repairer:     repairer,
		Dispatcher:   dispatcher,
		Guard:        guard,
		Users:        store,
		FallbackLink: cfg.FallbackItemLink,
	}, log)

	if cfg.RepairInterval > 0 {
		log.Info().Dur("interval", cfg.RepairInterval).Msg("starting periodic unread index sweep")
		go repairer.Run(ctx, cfg.RepairInterval)
	}

	if mongoStore, ok := store.(*repositories.MongoStore); ok && cfg.WatchesMongoReads() {
		go func() {
			policy := services.DefaultRetryPolicy()
			err := mongoStore.WatchReadTransitions(ctx, func(ctx context.Context, change models.NotificationChange) {
				if _, err := notifications.ReconcileWithRetry(ctx, change, policy); err != nil {
					log.Error().Err(err).
						Str("userId", change.UserID).
						Str("notificationId", change.NotificationID).
						Msg("read transition not reconciled, left to the repair sweep")
				}
			})
			if err != nil {
				log.Error().Err(err).Msg("read transition watcher stopped")
			}
		}()
	}

	limiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	go limiter.Cleanup(ctx, time.Hour)

	e := echo.New()
	e.HideBanner = true
	e.Validator = utils.NewValidator()
	e.Use(echoMiddleware.Recover())
	e.Use(middleware.RequestLogger(log))

	routes.SetupRoutes(e, routes.Deps{
		Trigger:      controllers.NewTriggerController(notifications, log),
		Notification: controllers.NewNotificationController(notifications, hub, log),
		Auth:         middleware.JWTMiddleware(cfg.JWTSecret, log),
		RateLimiter:  limiter,
		TriggerToken: cfg.TriggerToken,
		StoreDriver:  cfg.StoreDriver,
	})

	go func() {
		log.Info().Str("port", cfg.Port).Str("store", cfg.StoreDriver).Str("push", cfg.PushProvider).Msg("starting notifier")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server stopped")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}

// openStore connects the configured backend and returns it with its close function
func openStore(ctx context.Context, cfg *config.Config, app *firebase.App, log zerolog.Logger) (repositories.Store, func()) {
	switch cfg.StoreDriver {
	case config.StoreMongo:
		client, err := config.ConnectDB(ctx, cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to MongoDB")
		}
		return repositories.NewMongoStore(client, cfg.DBName, cfg.BatchSize, log), func() {
			_ = client.Disconnect(context.Background())
		}
	case config.StoreMemory:
		log.Warn().Msg("using in-memory store, data is lost on restart")
		return repositories.NewMemoryStore(cfg.BatchSize), func() {}
	default:
		client, err := app.Firestore(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create Firestore client")
		}
		return repositories.NewFirestoreStore(client, cfg.BatchSize), func() {
			_ = client.Close()
		}
	}
}

// newDispatcher builds the configured push transport
func newDispatcher(ctx context.Context, cfg *config.Config, app *firebase.App, log zerolog.Logger) services.PushDispatcher {
	switch cfg.PushProvider {
	case config.PushOneSignal:
		return services.NewOneSignalDispatcher(services.OneSignalConfig{
			AppID:         cfg.OneSignalAppID,
			APIKey:        cfg.OneSignalAPIKey,
			Endpoint:      cfg.OneSignalURL,
			RatePerSecond: cfg.OneSignalRateSec,
		})
	case config.PushFCM:
		client, err := app.Messaging(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize messaging client")
		}
		return services.NewFCMDispatcher(client, cfg.FCMTopic)
	default:
		return services.NopDispatcher{Log: log}
	}
}
