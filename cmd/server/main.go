package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/juju/clock"
	"github.com/sirupsen/logrus"

	"github.com/sudo-init-do/fieldhub/internal/catalog"
	"github.com/sudo-init-do/fieldhub/internal/config"
	"github.com/sudo-init-do/fieldhub/internal/db"
	"github.com/sudo-init-do/fieldhub/internal/directory"
	"github.com/sudo-init-do/fieldhub/internal/events"
	"github.com/sudo-init-do/fieldhub/internal/logging"
	"github.com/sudo-init-do/fieldhub/internal/metrics"
	"github.com/sudo-init-do/fieldhub/internal/requests"
	"github.com/sudo-init-do/fieldhub/internal/seed"
	"github.com/sudo-init-do/fieldhub/internal/server"
)

type stores struct {
	catalog   catalog.Store
	directory directory.Store
	ledger    requests.Ledger
	pool      *pgxpool.Pool
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("config: %v", err)
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("storage init failed")
	}
	if st.pool != nil {
		defer st.pool.Close()
	}

	var publisher requests.Publisher
	if cfg.EventsEnabled {
		client := events.NewRedisClient(cfg.RedisAddr)
		defer client.Close()
		publisher = events.NewPublisher(client, log)
		log.WithField("redis", cfg.RedisAddr).Info("lifecycle events enabled")
	}

	m := metrics.New()
	engine := requests.NewEngine(requests.Deps{
		Ledger:    st.ledger,
		Catalog:   st.catalog,
		Directory: st.directory,
		Events:    publisher,
		Metrics:   m,
		Clock:     clock.WallClock,
		Log:       log,
		Policy:    requests.Policy{AllowCancelAfterAccept: cfg.AllowCancelAfterAccept},
	})

	e := server.New(server.Options{
		JWTSecret:    cfg.JWTSecret,
		RateLimitRPS: cfg.RateLimitRPS,
		Log:          log,
		Engine:       engine,
		Catalog:      st.catalog,
		Metrics:      m,
		Pool:         st.pool,
	})

	go func() {
		log.WithFields(logrus.Fields{"port": cfg.Port, "storage": cfg.Storage}).Info("server starting")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server error")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("shutdown")
	}
}

func openStores(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*stores, error) {
	if cfg.Storage == config.StorageMemory {
		services, people := catalog.NewMemoryStore(), directory.NewMemoryStore()
		if cfg.SeedFile != "" {
			f, err := seed.Load(cfg.SeedFile)
			if err != nil {
				return nil, err
			}
			if err := f.Apply(ctx, services, people); err != nil {
				return nil, err
			}
			log.WithField("file", cfg.SeedFile).Info("memory stores seeded")
		}
		return &stores{catalog: services, directory: people, ledger: requests.NewMemoryLedger()}, nil
	}

	dsn := cfg.DatabaseURL()
	if err := db.Migrate(dsn, log); err != nil {
		return nil, err
	}
	pool, err := db.Connect(ctx, dsn, log)
	if err != nil {
		return nil, err
	}
	services, people := catalog.NewPostgresStore(pool), directory.NewPostgresStore(pool)
	if cfg.SeedFile != "" {
		f, err := seed.Load(cfg.SeedFile)
		if err == nil {
			err = f.Apply(ctx, services, people)
		}
		if err != nil {
			pool.Close()
			return nil, err
		}
	}
	return &stores{catalog: services, directory: people, ledger: requests.NewPostgresLedger(pool), pool: pool}, nil
}
