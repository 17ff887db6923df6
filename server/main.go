package main

import (
	"context"
	"flag"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meikuraledutech/pipeline"
	"github.com/meikuraledutech/pipeline/internal/config"
	"github.com/meikuraledutech/pipeline/internal/logger"
	"github.com/meikuraledutech/pipeline/internal/tracer"
	"github.com/meikuraledutech/pipeline/postgres"
	"github.com/meikuraledutech/pipeline/sqlite"
)

func main() {
	configPath := flag.String("config", "pipeline.yaml", "path to YAML config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	appLog, closeLog, err := logger.New(cfg.Logger)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer closeLog()

	ctx := context.Background()
	shutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		log.Fatalf("tracer: %v", err)
	}
	defer shutdown(ctx)

	store, closeStore, err := openStore(ctx, cfg.Store)
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	defer closeStore()

	if err := store.CreateSchema(ctx); err != nil {
		log.Fatalf("schema: %v", err)
	}

	app := newApp(store, cfg.Layout, appLog)
	appLog.Info("listening", "addr", cfg.Server.Addr, "store", cfg.Store.Driver)
	if err := app.Listen(cfg.Server.Addr); err != nil {
		appLog.Error("server stopped", "error", err)
	}
}

// openStore wires the configured backend behind the Store interface.
func openStore(ctx context.Context, cfg config.StoreConfig) (pipeline.Store, func(), error) {
	switch cfg.Driver {
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return postgres.New(pool), pool.Close, nil
	default:
		s, err := sqlite.Open(cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	}
}

