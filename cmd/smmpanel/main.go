package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pagalshaikh9912-create/smm-panel-full-stack/internal/catalog"
	"github.com/pagalshaikh9912-create/smm-panel-full-stack/internal/config"
	"github.com/pagalshaikh9912-create/smm-panel-full-stack/internal/deps"
	"github.com/pagalshaikh9912-create/smm-panel-full-stack/internal/events"
	"github.com/pagalshaikh9912-create/smm-panel-full-stack/internal/ledger"
	"github.com/pagalshaikh9912-create/smm-panel-full-stack/internal/provider"
	"github.com/pagalshaikh9912-create/smm-panel-full-stack/internal/server"
	"github.com/pagalshaikh9912-create/smm-panel-full-stack/internal/settlement"
	"github.com/pagalshaikh9912-create/smm-panel-full-stack/internal/storage"
	"github.com/pagalshaikh9912-create/smm-panel-full-stack/internal/storage/memory"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatal(err)
	}

	d := deps.NewDependencies(cfg.JWTSecret)
	defer d.Logger.Sync()

	var store storage.Store
	if cfg.DatabaseURI != "" {
		store, err = storage.NewPostgresStorage(ctx, cfg.DatabaseURI)
		if err != nil {
			d.Logger.Fatal(err)
		}
	} else {
		d.Logger.Warn("DATABASE_URI is empty, balances live in memory only")
		store = memory.New()
	}
	defer store.Close()

	var rdb *redis.Client
	if cfg.RedisAddress != "" {
		rdb, err = catalog.NewRedisClient(ctx, cfg.RedisAddress)
		if err != nil {
			d.Logger.Fatal(err)
		}
		defer rdb.Close()
	}

	if cfg.NatsURL != "" {
		bus, err := events.ConnectNats(cfg.NatsURL)
		if err != nil {
			d.Logger.Fatal(err)
		}
		defer bus.Close()
		d.WithBus(bus)
	}

	guard := ledger.NewGuard(d.Logger, d.Metrics)
	wallet := ledger.New(store, guard, d)
	cat := catalog.New(store, rdb, cfg.CacheTTL, d.Logger)
	settler := settlement.New(store, cat, guard, d)

	syncer := provider.NewSyncer(store, cat, settler, provider.NewClient(10*time.Second, d.Metrics), cfg.SyncInterval, d.Logger)
	srv := server.NewServer(store, wallet, settler, cat, cfg, d)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error { return syncer.Run(gctx) })

	if err := g.Wait(); err != nil {
		d.Logger.Fatal(err)
	}
}
