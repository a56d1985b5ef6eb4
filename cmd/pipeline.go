package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/dealsync/internal/catalog"
	"github.com/sells-group/dealsync/internal/dlq"
	"github.com/sells-group/dealsync/internal/enrich"
	"github.com/sells-group/dealsync/internal/mapping"
	"github.com/sells-group/dealsync/internal/resilience"
	"github.com/sells-group/dealsync/internal/webhook"
	"github.com/sells-group/dealsync/pkg/enerflo"
	"github.com/sells-group/dealsync/pkg/quickbase"
)

// env holds the wired pipeline for one command invocation.
type env struct {
	Catalog   *catalog.Catalog
	Builder   *mapping.Builder
	Upserter  webhook.Upserter
	Enricher  webhook.Enricher
	Processor *webhook.Processor
	DLQ       *dlq.SQLiteStore
}

func (e *env) Close() {
	if e.DLQ != nil {
		if err := e.DLQ.Close(); err != nil {
			zap.L().Warn("close dead-letter store", zap.Error(err))
		}
	}
}

// initPipeline wires the full sync pipeline from config. Commands that
// only need the mapping layer use initMapping instead.
func initPipeline(ctx context.Context) (*env, error) {
	e, err := initMapping()
	if err != nil {
		return nil, err
	}

	if !cfg.QuickBase.Configured() {
		return nil, eris.New("quickbase realm, table id, and user token must be configured")
	}

	retry := resilience.FromConfig(
		cfg.Retry.MaxAttempts,
		cfg.Retry.InitialBackoffMs,
		cfg.Retry.MaxBackoffMs,
		cfg.Retry.Multiplier,
		cfg.Retry.JitterFraction,
	)

	qbOpts := []quickbase.Option{
		quickbase.WithRateLimit(cfg.QuickBase.RateLimit),
		quickbase.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.QuickBase.TimeoutSecs) * time.Second}),
	}
	if cfg.QuickBase.BaseURL != "" {
		qbOpts = append(qbOpts, quickbase.WithBaseURL(cfg.QuickBase.BaseURL))
	}
	qbClient := quickbase.NewClient(cfg.QuickBase.Realm, cfg.QuickBase.UserToken, qbOpts...)
	upserter := quickbase.NewUpserter(
		qbClient,
		cfg.QuickBase.TableID,
		cfg.QuickBase.DealIDFieldID,
		cfg.QuickBase.RecordIDFieldID,
		retry,
	)

	var enricher webhook.Enricher
	if cfg.Enerflo.Configured() {
		efOpts := []enerflo.Option{
			enerflo.WithRateLimit(cfg.Enerflo.RateLimit),
			enerflo.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Enerflo.TimeoutSecs) * time.Second}),
		}
		if cfg.Enerflo.V1BaseURL != "" {
			efOpts = append(efOpts, enerflo.WithV1BaseURL(cfg.Enerflo.V1BaseURL))
		}
		if cfg.Enerflo.V2BaseURL != "" {
			efOpts = append(efOpts, enerflo.WithV2BaseURL(cfg.Enerflo.V2BaseURL))
		}
		efClient := enerflo.NewClient(cfg.Enerflo.APIKey, cfg.Enerflo.OrgID, efOpts...)
		enricher = enrich.New(efClient, upserter, time.Duration(cfg.Server.EnrichTimeoutSs)*time.Second)
	} else {
		zap.L().Warn("enerflo api key not set, enrichment disabled")
	}

	var store *dlq.SQLiteStore
	if cfg.DLQ.Path != "" {
		store, err = dlq.NewSQLite(cfg.DLQ.Path)
		if err != nil {
			return nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, err
		}
	}

	var dlqStore dlq.Store
	if store != nil {
		dlqStore = store
	}
	e.Upserter = upserter
	e.Enricher = enricher
	e.Processor = webhook.NewProcessor(e.Builder, e.Catalog, upserter, enricher, dlqStore)
	e.DLQ = store
	return e, nil
}

// initMapping loads the catalog and mapping table only.
func initMapping() (*env, error) {
	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		return nil, err
	}

	table, err := mapping.LoadTable()
	if err != nil {
		return nil, err
	}

	return &env{
		Catalog: cat,
		Builder: mapping.NewBuilder(table),
	}, nil
}
