package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"se-assistant/db/clickhouse"
	"se-assistant/db/postgres"
	"se-assistant/decision/billing"
	"se-assistant/decision/catalog"
	"se-assistant/decision/estimation"
	"se-assistant/decision/pipeline"
	"se-assistant/decision/policy"
	"se-assistant/internal/config"
	"se-assistant/internal/llm"
	"se-assistant/internal/pricing"
	"se-assistant/pkg/api"
)

const configKey = "config"

// runStore is implemented by both run history backends.
type runStore interface {
	SaveRun(ctx context.Context, rec api.RunRecord) error
	ListRuns(ctx context.Context, limit int) ([]api.RunRecord, error)
	GetRun(ctx context.Context, id string) (*api.RunRecord, error)
	Ping(ctx context.Context) error
	Close() error
}

func configFrom(c *cli.Context) *config.Config {
	return c.App.Metadata[configKey].(*config.Config)
}

func openClickHouse(cfg *config.Config) (*clickhouse.Store, error) {
	return clickhouse.NewStore(&clickhouse.Config{
		Host:     cfg.ClickHouse.Host,
		Port:     cfg.ClickHouse.Port,
		Database: cfg.ClickHouse.Database,
		Username: cfg.ClickHouse.User,
		Password: cfg.ClickHouse.Password,
	})
}

// openRunStore returns nil, nil when run history is switched off.
func openRunStore(ctx context.Context, cfg *config.Config) (runStore, error) {
	switch cfg.RunStore {
	case config.StoreClickHouse:
		store, err := openClickHouse(cfg)
		if err != nil {
			return nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, err
		}
		return store, nil
	case config.StorePostgres:
		store, err := postgres.NewStore(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, nil
	}
}

func requireRunStore(ctx context.Context, cfg *config.Config) (runStore, error) {
	store, err := openRunStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, fmt.Errorf("run history is disabled; set --run-store to %s or %s", config.StoreClickHouse, config.StorePostgres)
	}
	return store, nil
}

func retailConfig(cfg *config.Config) *pricing.Config {
	return &pricing.Config{
		BaseURL:    cfg.Retail.BaseURL,
		APIVersion: cfg.Retail.APIVersion,
		Timeout:    cfg.Retail.Timeout,
	}
}

// lookupFactory returns a factory producing one fresh lookup per run plus a
// cleanup for anything the factory shares between runs.
func lookupFactory(cfg *config.Config) (estimation.LookupFactory, func(), error) {
	switch cfg.PriceSource {
	case config.PriceSourceSnapshot:
		store, err := openClickHouse(cfg)
		if err != nil {
			return nil, nil, err
		}
		return func() billing.Lookup { return clickhouse.NewSnapshotLookup(store) }, func() { store.Close() }, nil
	default:
		cache := pricing.NewCache(cfg.PriceTTL)
		rc := retailConfig(cfg)
		return func() billing.Lookup {
			return pricing.NewCachedClient(pricing.NewClient(rc), cache)
		}, func() {}, nil
	}
}

type deps struct {
	coordinator *pipeline.Coordinator
	reviewer    *policy.Engine
	catalog     *catalog.Catalog
	store       runStore
	cleanup     func()
}

// buildDeps wires the pipeline from configuration. withStore opens run
// history when configured.
func buildDeps(ctx context.Context, cfg *config.Config, withStore bool) (*deps, error) {
	client, err := llm.New(cfg.LLM)
	if err != nil {
		return nil, err
	}

	reviewer, err := policy.NewEngine(ctx, cfg.PoliciesDir)
	if err != nil {
		return nil, err
	}

	newLookup, closeLookups, err := lookupFactory(cfg)
	if err != nil {
		return nil, err
	}

	d := &deps{
		reviewer: reviewer,
		catalog:  catalog.Default(),
		cleanup:  closeLookups,
	}

	var opts []pipeline.Option
	if withStore {
		store, err := openRunStore(ctx, cfg)
		if err != nil {
			closeLookups()
			return nil, err
		}
		if store != nil {
			d.store = store
			d.cleanup = func() {
				closeLookups()
				store.Close()
			}
			opts = append(opts, pipeline.WithRecorder(pipeline.StoreRecorder(store)))
		}
	}

	d.coordinator = pipeline.NewCoordinator(client, d.catalog, newLookup, opts...)
	return d, nil
}
