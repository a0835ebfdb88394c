package main

import (
	"context"
	"flag"

	"github.com/sirupsen/logrus"

	"github.com/sudo-init-do/fieldhub/internal/config"
	"github.com/sudo-init-do/fieldhub/internal/db"
	"github.com/sudo-init-do/fieldhub/internal/events"
	"github.com/sudo-init-do/fieldhub/internal/logging"
)

func main() {
	concurrency := flag.Int("concurrency", 5, "number of lifecycle tasks processed in parallel")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("config: %v", err)
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat)

	dsn := cfg.DatabaseURL()
	if err := db.Migrate(dsn, log); err != nil {
		log.WithError(err).Fatal("migrate")
	}
	pool, err := db.Connect(context.Background(), dsn, log)
	if err != nil {
		log.WithError(err).Fatal("database")
	}
	defer pool.Close()

	processor := events.NewProcessor(events.NewPostgresAudit(pool), log)
	srv := events.NewServer(cfg.RedisAddr, *concurrency)

	log.WithField("redis", cfg.RedisAddr).Info("lifecycle worker starting")
	// Run blocks until SIGTERM or SIGINT.
	if err := srv.Run(processor.Mux()); err != nil {
		log.WithError(err).Fatal("worker stopped")
	}
}
