package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/raphaelgruber/stadtzhharvest-go/internal/ckan"
	"github.com/raphaelgruber/stadtzhharvest-go/internal/config"
	"github.com/raphaelgruber/stadtzhharvest-go/internal/db"
	"github.com/raphaelgruber/stadtzhharvest-go/internal/fingerprint"
	"github.com/raphaelgruber/stadtzhharvest-go/internal/kvstore"
	"github.com/raphaelgruber/stadtzhharvest-go/internal/metrics"
	"github.com/raphaelgruber/stadtzhharvest-go/internal/source"
	"github.com/raphaelgruber/stadtzhharvest-go/internal/store"
)

// Runtime is the wired harvester process shared by the server and the
// local CLI mode.
type Runtime struct {
	Jobs    *JobManager
	Store   store.Store
	Metrics *metrics.Collector
}

// Bootstrap opens the harvest store, connects the catalog client and
// registers every source of the sources file.
func Bootstrap(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Runtime, error) {
	sources, err := config.LoadSources(cfg.SourcesFile)
	if err != nil {
		return nil, err
	}

	st, err := OpenStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	collector := metrics.NewCollector()
	fp := fingerprint.New(
		fingerprint.OptAttempts(cfg.FingerprintAttempts),
		fingerprint.OptDelay(cfg.FingerprintDelay),
		fingerprint.OptLogger(logger),
	)
	platform := ckan.New(cfg.CKANURL,
		ckan.OptToken(cfg.CKANToken),
		ckan.OptCollector(collector),
		ckan.OptOpener(fp.Open),
	)

	jobs := NewJobManager(cfg.Concurrency, st, collector, logger)
	for _, src := range sources {
		sc, reader, err := newReader(src, fp, logger)
		if err != nil {
			_ = st.Close(ctx)
			return nil, err
		}
		jobs.Register(NewHarvester(src, reader, platform, st, logger), ExecutionContext{
			SiteUser: cfg.SiteUser,
			Schema:   cfg.DatasetType,
			SourceID: src.ID,
			Config:   sc,
			Now:      time.Now,
		})
		logger.Debug("registered source", "source", src.Name, "type", src.Type)
	}

	return &Runtime{Jobs: jobs, Store: st, Metrics: collector}, nil
}

// OpenStore opens the configured harvest store backend.
func OpenStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (store.Store, error) {
	switch cfg.Store {
	case config.StoreBadger:
		kv, err := kvstore.Open(cfg.BadgerDir)
		if err != nil {
			return nil, fmt.Errorf("open badger store: %w", err)
		}
		return kv, nil
	case config.StoreSurreal:
		client, err := db.NewClient(ctx, db.ConfigFrom(cfg), logger)
		if err != nil {
			return nil, fmt.Errorf("connect to SurrealDB: %w", err)
		}
		if err := client.InitSchema(ctx); err != nil {
			_ = client.Close(ctx)
			return nil, fmt.Errorf("init schema: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

func newReader(src config.Source, fp *fingerprint.Fingerprinter, logger *slog.Logger) (config.SourceConfig, source.Reader, error) {
	switch src.Type {
	case config.SourceDropzone:
		sc, err := config.ParseSourceConfig(src.Config)
		if err != nil {
			return sc, nil, fmt.Errorf("source %s: %w", src.Name, err)
		}
		return sc, source.NewDropzone(sc, fp, logger.With("source", src.Name)), nil
	case config.SourceSDK:
		// Export sources only use the flags; data_path does not apply.
		var sc config.SourceConfig
		if src.Config != "" {
			if err := json.Unmarshal([]byte(src.Config), &sc); err != nil {
				return sc, nil, fmt.Errorf("source %s: decode config: %w", src.Name, err)
			}
		}
		return sc, source.NewSDKExport(src.URL, logger.With("source", src.Name)), nil
	default:
		return config.SourceConfig{}, nil, fmt.Errorf("source %s: unknown type %q", src.Name, src.Type)
	}
}

// Close releases the harvest store.
func (r *Runtime) Close(ctx context.Context) error {
	return r.Store.Close(ctx)
}
