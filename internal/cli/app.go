package cli

import (
	"fmt"
	"time"

	"github.com/lumapix/lumapix-cli/internal/api"
	"github.com/lumapix/lumapix-cli/internal/batch"
	"github.com/lumapix/lumapix-cli/internal/cache"
	"github.com/lumapix/lumapix-cli/internal/config"
	"github.com/lumapix/lumapix-cli/internal/events"
	"github.com/lumapix/lumapix-cli/internal/library"
	"github.com/lumapix/lumapix-cli/internal/models"
)

// App bundles the wired-up components a command needs.
type App struct {
	Config       *config.Config
	Client       *api.Client
	Bus          *events.EventBus
	Cache        *cache.Store
	Registry     *batch.ItemRegistry
	Orchestrator *batch.Orchestrator
	Library      *library.Service
}

// loadConfig loads the config file and applies flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if apiBaseURL != "" {
		cfg.APIBaseURL = apiBaseURL
	}
	if apiKey != "" {
		cfg.APIKey = apiKey
	}
	return cfg, nil
}

// newApp wires config, API client, cache, registry, orchestrator and library
// service together for one command invocation.
func newApp() (*App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration invalid (run 'lumapix config init'): %w", err)
	}

	client, err := api.NewClient(cfg)
	if err != nil {
		return nil, err
	}

	bus := events.NewEventBus(0)

	ttls := map[cache.Kind]time.Duration{
		cache.KindPhotos:  cfg.Cache.PhotosTTL,
		cache.KindFolders: cfg.Cache.FoldersTTL,
		cache.KindStatus:  cfg.Cache.StatusTTL,
	}
	store, err := cache.NewStore(cfg.Cache.Path, ttls)
	if err != nil {
		return nil, err
	}

	log := GetLogger()

	var orch *batch.Orchestrator
	registry := batch.NewItemRegistry(func(gen uint64, item batch.ItemState) {
		if orch != nil {
			orch.PublishItemChange(gen, item)
		}
	})

	selector := models.ProviderSelector{
		Provider: cfg.Analysis.Provider,
		Model:    cfg.Analysis.Model,
	}
	orch = batch.New(client, registry, bus, store, log, selector, batch.Options{
		PollInterval: cfg.Analysis.PollInterval,
		InitialDelay: cfg.Analysis.InitialDelay,
		Timeout:      cfg.Analysis.Timeout,
	})

	lib := library.NewService(client, store, registry, log)
	// Each invocation starts with an empty registry; replay cached listings
	// so previously listed photos are known before any command runs.
	lib.SeedFromCache()

	return &App{
		Config:       cfg,
		Client:       client,
		Bus:          bus,
		Cache:        store,
		Registry:     registry,
		Orchestrator: orch,
		Library:      lib,
	}, nil
}

// Close releases app resources.
func (a *App) Close() {
	a.Bus.Close()
	if err := a.Cache.Close(); err != nil {
		GetLogger().Warn().Err(err).Msg("Failed to close cache")
	}
}
