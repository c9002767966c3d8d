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
	"golang.org/x/sync/errgroup"

	"tally/internal/amqp"
	"tally/internal/config"
	"tally/internal/core"
	apphttp "tally/internal/http"
	"tally/internal/identity"
	idgoogle "tally/internal/identity/google"
	idmem "tally/internal/identity/memory"
	"tally/internal/log"
	"tally/internal/services"
	"tally/internal/store"
	storemem "tally/internal/store/memory"
	storesqlite "tally/internal/store/sqlite"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	logger := log.New(log.DefaultConfig())
	log.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", log.FieldError, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := newStore(cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize store", log.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("Store close error", log.FieldError, err)
		}
	}()

	provider, err := newProvider(ctx, cfg)
	if err != nil {
		logger.Error("Failed to initialize identity provider", log.FieldError, err, "backend", cfg.IdentityBackend)
		os.Exit(1)
	}
	session := identity.NewSession(provider, st, logger)

	// The change feed is optional; without a broker the instance still
	// sees its own writes through the store subscriptions.
	var feed *amqp.Client
	if cfg.AMQPURL != "" {
		// Exchange scoped per namespace so unrelated deployments can
		// share one broker.
		feed, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange+"."+cfg.Namespace)
		if err != nil {
			logger.Error("Failed to connect to AMQP broker", log.FieldError, err)
			os.Exit(1)
		}
		defer func() {
			if err := feed.Close(); err != nil {
				logger.Error("AMQP close error", log.FieldError, err)
			}
		}()
	}

	var publisher services.ChangePublisher
	if feed != nil {
		publisher = feed
	}
	ledger := services.NewLedgerService(session, st, publisher, logger)
	srv := apphttp.NewServer(":"+cfg.Port, session, ledger, st, logger)
	srv.ReadTimeout = 10 * time.Second
	srv.IdleTimeout = 120 * time.Second
	srv.MaxHeaderBytes = 1 << 16
	// No WriteTimeout: /events holds connections open indefinitely.

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting tally server", "port", cfg.Port, "data_backend", cfg.DataBackend, "identity_backend", cfg.IdentityBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if feed != nil {
		g.Go(func() error {
			err := feed.ConsumeCollectionChanges(gctx, func(collection string) error {
				return st.Refresh(gctx, collection)
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("Server error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}

func newStore(cfg *config.Config, logger *log.Logger) (store.Store, error) {
	switch cfg.DataBackend {
	case "sqlite":
		logger.Info("Initialized sqlite backend", "path", cfg.SQLiteDBPath)
		return storesqlite.New(cfg.SQLiteDBPath)
	default:
		logger.Info("Initialized memory backend")
		return storemem.New(), nil
	}
}

func newProvider(ctx context.Context, cfg *config.Config) (identity.Provider, error) {
	switch cfg.IdentityBackend {
	case "google":
		return idgoogle.NewFromEnv(ctx)
	default:
		return idmem.New(core.User{ID: cfg.DevUserID, DisplayName: cfg.DevUserName}), nil
	}
}
