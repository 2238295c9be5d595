package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/RBarbieri13/decant/internal/common"
	"github.com/RBarbieri13/decant/internal/handlers"
	"github.com/RBarbieri13/decant/internal/interfaces"
	"github.com/RBarbieri13/decant/internal/metrics"
	"github.com/RBarbieri13/decant/internal/resilience"
	"github.com/RBarbieri13/decant/internal/services/classify"
	"github.com/RBarbieri13/decant/internal/services/enrichment"
	"github.com/RBarbieri13/decant/internal/services/extractors"
	"github.com/RBarbieri13/decant/internal/services/importer"
	"github.com/RBarbieri13/decant/internal/services/llm"
	"github.com/RBarbieri13/decant/internal/services/similarity"
	"github.com/RBarbieri13/decant/internal/storage/badger"
	"github.com/RBarbieri13/decant/internal/storage/sqlite"
)

// App holds all application components and dependencies.
type App struct {
	Config  *common.Config
	Logger  arbor.ILogger
	Metrics *metrics.Metrics

	ctx       context.Context
	cancelCtx context.CancelFunc

	// Storage
	DB       *sqlite.DB
	Queue    *badger.EnrichmentQueue
	Nodes    interfaces.NodeStorage
	Search   interfaces.SearchStorage
	Trees    interfaces.TreeStorage
	Metadata interfaces.MetadataStorage
	Edges    interfaces.SimilarityStorage
	Taxonomy interfaces.TaxonomyStorage
	Audit    interfaces.AuditStorage
	Keystore interfaces.Keystore

	// Services
	Breakers          *resilience.BreakerRegistry
	LLMService        interfaces.LLMService
	ExtractorFactory  interfaces.ExtractorFactory
	Classifier        interfaces.Classifier
	Assigner          *classify.Assigner
	SimilarityService interfaces.SimilarityService
	ImportService     interfaces.ImportService
	EnrichmentWorker  *enrichment.Worker

	// HTTP handlers
	ImportHandler   *handlers.ImportHandler
	NodeHandler     *handlers.NodeHandler
	SearchHandler   *handlers.SearchHandler
	TreeHandler     *handlers.TreeHandler
	SettingsHandler *handlers.SettingsHandler
	HealthHandler   *handlers.HealthHandler
}

// New initializes the application with all dependencies.
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics.New(),
	}

	if err := app.initStorage(); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	if err := app.initServices(); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	app.initHandlers()

	logger.Info().
		Str("environment", cfg.Environment).
		Str("llm_provider", cfg.LLM.DefaultProvider).
		Bool("enrichment_enabled", cfg.Enrichment.Enabled).
		Msg("Application initialization complete")

	return app, nil
}

func (a *App) initStorage() error {
	db, err := sqlite.Open(a.Logger, &a.Config.Storage)
	if err != nil {
		return err
	}
	a.DB = db

	queue, err := badger.OpenEnrichmentQueue(a.Logger, a.Config.Storage.QueuePath)
	if err != nil {
		db.Close()
		return err
	}
	a.Queue = queue

	a.Nodes = sqlite.NewNodeStore(db, a.Logger)
	a.Search = sqlite.NewSearchStore(db, a.Logger)
	a.Trees = sqlite.NewTreeStore(db, a.Logger)
	a.Metadata = sqlite.NewMetadataStore(db, a.Logger)
	a.Edges = sqlite.NewSimilarityStore(db, a.Logger)
	a.Taxonomy = sqlite.NewTaxonomyStore(db, a.Logger)
	a.Audit = sqlite.NewAuditStore(db, a.Logger)

	keystore, err := sqlite.NewKeyStore(db, a.Logger, a.Config.MasterKey)
	if err != nil {
		return err
	}
	a.Keystore = keystore

	a.Logger.Debug().
		Str("database", a.Config.Storage.DatabasePath).
		Str("queue", a.Config.Storage.QueuePath).
		Msg("Storage layer initialized")
	return nil
}

func (a *App) initServices() error {
	a.Breakers = resilience.NewBreakerRegistry(a.Logger)

	// Keys saved through the settings endpoint take effect on restart when
	// config and environment leave them empty.
	a.hydrateLLMKeys()

	a.LLMService = llm.NewProvider(a.Logger, &a.Config.LLM, a.Breakers)
	if !a.LLMService.Available() {
		a.Logger.Warn().
			Str("provider", a.Config.LLM.DefaultProvider).
			Msg("No LLM API key configured, classification falls back to INBOX defaults")
	}

	a.ExtractorFactory = extractors.NewFactory(a.Logger, &a.Config.Extractors, a.Breakers, a.LLMService)
	a.Classifier = classify.NewClassifier(a.Logger, a.LLMService)
	a.Assigner = classify.NewAssigner(a.Logger, a.Nodes)
	a.SimilarityService = similarity.NewService(a.Logger, a.Metadata, a.Edges)

	a.ImportService = importer.NewService(
		a.Logger,
		&a.Config.Import,
		a.Nodes,
		a.Trees,
		a.ExtractorFactory,
		a.Classifier,
		a.Assigner,
		a.SimilarityService,
		a.Queue,
	)

	a.EnrichmentWorker = enrichment.NewWorker(
		a.Logger,
		&a.Config.Enrichment,
		a.Queue,
		a.Nodes,
		a.Trees,
		a.ExtractorFactory,
		a.SimilarityService,
	)

	return nil
}

func (a *App) initHandlers() {
	production := a.Config.IsProduction()

	a.ImportHandler = handlers.NewImportHandler(a.Logger, a.ImportService, a.Metrics, production)
	a.NodeHandler = handlers.NewNodeHandler(a.Logger, a.Nodes, a.Trees, a.SimilarityService, a.Audit, production)
	a.SearchHandler = handlers.NewSearchHandler(a.Logger, a.Search, a.Metrics, production)
	a.TreeHandler = handlers.NewTreeHandler(a.Logger, a.Trees, a.Taxonomy, production)
	a.SettingsHandler = handlers.NewSettingsHandler(a.Logger, a.Keystore, production)
	a.HealthHandler = handlers.NewHealthHandler(a.Logger, a.DB, a.Queue)
}

func (a *App) hydrateLLMKeys() {
	ctx := context.Background()
	if a.Config.LLM.Gemini.APIKey == "" {
		if key, err := a.Keystore.GetKey(ctx, "gemini"); err == nil {
			a.Config.LLM.Gemini.APIKey = key
		}
	}
	if a.Config.LLM.Claude.APIKey == "" {
		if key, err := a.Keystore.GetKey(ctx, "claude"); err == nil {
			a.Config.LLM.Claude.APIKey = key
		}
	}
}

// StartWorkers starts the enrichment worker and the gauge collection loop.
func (a *App) StartWorkers() error {
	a.ctx, a.cancelCtx = context.WithCancel(context.Background())
	go a.collectGauges()

	if !a.Config.Enrichment.Enabled {
		a.Logger.Info().Msg("Enrichment worker disabled by configuration")
		return nil
	}
	if err := a.EnrichmentWorker.Start(); err != nil {
		return fmt.Errorf("failed to start enrichment worker: %w", err)
	}
	a.Logger.Info().
		Str("schedule", a.Config.Enrichment.Schedule).
		Msg("Enrichment worker started")
	return nil
}

// collectGauges refreshes the breaker state and enrichment queue depth
// gauges until shutdown.
func (a *App) collectGauges() {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for name, state := range a.Breakers.States() {
				a.Metrics.BreakerState.WithLabelValues(name).Set(breakerStateValue(state))
			}
			if stats, err := a.Queue.Stats(a.ctx); err == nil {
				for status, count := range stats {
					a.Metrics.EnrichmentJobs.WithLabelValues(status).Set(float64(count))
				}
			}
		case <-a.ctx.Done():
			return
		}
	}
}

func breakerStateValue(state string) float64 {
	switch state {
	case "half-open":
		return 1
	case "open":
		return 2
	default:
		return 0
	}
}

// Close releases all application resources in reverse dependency order.
func (a *App) Close() error {
	if a.cancelCtx != nil {
		a.cancelCtx()
	}

	if a.EnrichmentWorker != nil {
		a.EnrichmentWorker.Stop()
	}

	if a.Queue != nil {
		if err := a.Queue.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close enrichment queue")
		}
	}

	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			return fmt.Errorf("failed to close database: %w", err)
		}
		a.Logger.Info().Msg("Storage closed")
	}

	return nil
}
