package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/Vogeltak/reading-addiction/internal/common"
	"github.com/Vogeltak/reading-addiction/internal/handlers"
	"github.com/Vogeltak/reading-addiction/internal/interfaces"
	"github.com/Vogeltak/reading-addiction/internal/services/chunker"
	"github.com/Vogeltak/reading-addiction/internal/services/crawler"
	"github.com/Vogeltak/reading-addiction/internal/services/embeddings"
	"github.com/Vogeltak/reading-addiction/internal/services/exporter"
	"github.com/Vogeltak/reading-addiction/internal/services/importer"
	"github.com/Vogeltak/reading-addiction/internal/storage"
	"github.com/Vogeltak/reading-addiction/internal/templates"
)

// App holds all application components and dependencies
type App struct {
	Config  *common.Config
	Logger  arbor.ILogger
	Storage interfaces.ArticleStorage

	// Pipeline stages
	ImporterService *importer.Service
	CrawlerService  *crawler.Service
	ExporterService *exporter.Service

	// HTTP handlers for the reader
	PageHandler   *handlers.PageHandler
	StatusHandler *handlers.StatusHandler

	// The embedding provider needs credentials, so it is only built when a command asks for it
	providerMu sync.Mutex
	provider   interfaces.EmbeddingProvider
}

// New opens the database and builds every service over it
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	store, err := storage.NewArticleStorage(logger, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	app, err := NewWithStorage(cfg, logger, store)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return app, nil
}

// NewWithStorage builds the services over an already opened store
func NewWithStorage(cfg *common.Config, logger arbor.ILogger, store interfaces.ArticleStorage) (*App, error) {
	app := &App{
		Config:  cfg,
		Logger:  logger,
		Storage: store,
	}

	app.ImporterService = importer.NewService(store, logger, &cfg.Importer)
	app.CrawlerService = crawler.NewService(store, logger, &cfg.Crawler)
	app.ExporterService = exporter.NewService(store, logger)

	pages, err := templates.Load(cfg.Server.TemplatesDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load page templates: %w", err)
	}
	app.PageHandler = handlers.NewPageHandler(store, logger, pages)
	app.StatusHandler = handlers.NewStatusHandler(store, logger)

	logger.Debug().
		Str("db", cfg.Storage.Badger.Path).
		Msg("Application initialized")

	return app, nil
}

// EmbeddingService builds the embedding coordinator, creating the configured provider on first use
func (a *App) EmbeddingService(ctx context.Context) (*embeddings.Service, error) {
	a.providerMu.Lock()
	defer a.providerMu.Unlock()

	if a.provider == nil {
		provider, err := embeddings.NewProvider(ctx, &a.Config.Embedding, a.Logger)
		if err != nil {
			return nil, err
		}
		a.provider = provider
	}

	chunks := chunker.New(a.Config.Chunker.MaxChars, a.Config.Chunker.Overlap)
	return embeddings.NewService(a.Storage, a.provider, chunks, a.Logger, &a.Config.Embedding), nil
}

// Close releases the provider and closes the database
func (a *App) Close() error {
	var errs []error

	a.providerMu.Lock()
	if a.provider != nil {
		if err := a.provider.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close embedding provider: %w", err))
		}
		a.provider = nil
	}
	a.providerMu.Unlock()

	if a.Storage != nil {
		if err := a.Storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		}
	}

	return errors.Join(errs...)
}
