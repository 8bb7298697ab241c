package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/dusk-indust/adqueue/internal/archive"
	"github.com/dusk-indust/adqueue/internal/config"
	"github.com/dusk-indust/adqueue/internal/gameconfig"
	"github.com/dusk-indust/adqueue/internal/metrics"
	"github.com/dusk-indust/adqueue/internal/orchestrator"
	"github.com/dusk-indust/adqueue/internal/reasoning"
)

// openArchive opens the configured build archive.
func openArchive(ctx context.Context, cfg config.ArchiveConfig) (archive.Store, error) {
	switch cfg.Driver {
	case "memory":
		return archive.NewMemoryStore(), nil
	case "sqlite":
		return archive.NewSQLiteStore(ctx, cfg.Path)
	}
	return nil, fmt.Errorf("unknown archive driver %q", cfg.Driver)
}

// openWorkbench wires the reasoning service, archive and metrics into a
// Workbench. The returned close function closes the workbench and then the
// archive.
func openWorkbench(ctx context.Context, cfg *config.Config, logger *zap.Logger, reg prometheus.Registerer) (*orchestrator.Workbench, func() error, error) {
	if !cfg.HasAPIKey() {
		return nil, nil, errors.New("no reasoning API key: set GEMINI_API_KEY or reasoning.api_key")
	}

	gemini, err := reasoning.NewGemini(ctx, reasoning.GeminiConfig{
		APIKey:     cfg.Reasoning.APIKey,
		Model:      cfg.Reasoning.Model,
		ImageModel: cfg.Reasoning.ImageModel,
	}, logger)
	if err != nil {
		return nil, nil, err
	}
	limited := reasoning.NewLimited(gemini, gemini, cfg.Reasoning.RatePerMinute, cfg.Reasoning.Timeout)

	var initial *gameconfig.Snapshot
	if cfg.Build.DefaultsDir != "" {
		initial, err = gameconfig.LoadDir(cfg.Build.DefaultsDir)
		if err != nil {
			return nil, nil, err
		}
	}

	store, err := openArchive(ctx, cfg.Archive)
	if err != nil {
		return nil, nil, err
	}

	wb, err := orchestrator.Open(ctx, orchestrator.Config{
		Reasoner:     limited,
		Merger:       gemini,
		Imager:       limited,
		Archive:      store,
		Initial:      initial,
		Variations:   cfg.Reasoning.Variations,
		MergeTimeout: cfg.Build.MergeTimeout,
		Metrics:      metrics.New(reg),
	}, logger.Named("workbench"))
	if err != nil {
		store.Close()
		return nil, nil, err
	}

	closeFn := func() error {
		wb.Close()
		return store.Close()
	}
	return wb, closeFn, nil
}
