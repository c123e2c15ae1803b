package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/Aman-CERP/lockerindex/internal/config"
	"github.com/Aman-CERP/lockerindex/internal/coordinator"
	"github.com/Aman-CERP/lockerindex/internal/datastore"
	"github.com/Aman-CERP/lockerindex/internal/gather"
)

// loadConfig loads the configuration for the working directory.
func loadConfig() (*config.Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current directory: %w", err)
	}
	cfg, err := config.Load(cwd)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// openCoordinator creates a coordinator over the configured index and
// selects its engine. An unusable engine degrades to the null engine.
func openCoordinator(cfg *config.Config, opts ...coordinator.Option) (*coordinator.Coordinator, error) {
	opts = append([]coordinator.Option{coordinator.WithBatchSize(cfg.Index.BatchSize)}, opts...)
	c := coordinator.New(opts...)

	if err := c.SetIndexPath(cfg.Index.Path); err != nil {
		_ = c.Close()
		return nil, err
	}
	c.SetEngine(cfg.Index.Engine)

	slog.Debug("coordinator_opened",
		slog.String("index_path", cfg.Index.Path),
		slog.String("engine", c.EngineName()))
	return c, nil
}

// openJournal opens the datastore, or returns nil when journaling is
// disabled.
func openJournal(cfg *config.Config) (*datastore.Store, error) {
	if cfg.Datastore.Path == "" {
		return nil, nil
	}
	return datastore.Open(cfg.Datastore.Path, cfg.Datastore.CacheSize)
}

// lockIndex takes the cross-process write lock for the index.
func lockIndex(cfg *config.Config) (*coordinator.IndexLock, error) {
	lock := coordinator.NewIndexLock(cfg.Index.Path)
	acquired, err := lock.TryLock()
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, fmt.Errorf("index %s is in use by another process (lock: %s)", cfg.Index.Path, lock.Path())
	}
	return lock, nil
}

// gatherServices converts configured services to gather services.
func gatherServices(cfg *config.Config) []gather.Service {
	services := make([]gather.Service, 0, len(cfg.Locker.Services))
	for _, s := range cfg.Locker.Services {
		services = append(services, gather.Service{Name: s.Name, Type: s.Type, Scheme: s.Scheme, Journal: s.Journal})
	}
	return services
}
