package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/raphaelgruber/voxchat/internal/auth"
	"github.com/raphaelgruber/voxchat/internal/config"
	"github.com/raphaelgruber/voxchat/internal/db"
	"github.com/raphaelgruber/voxchat/internal/events"
	"github.com/raphaelgruber/voxchat/internal/metrics"
	"github.com/raphaelgruber/voxchat/internal/speech"
	"github.com/raphaelgruber/voxchat/internal/storage"
)

// App owns every server-side dependency built from the configuration.
type App struct {
	db     *db.Client
	server *Server
}

// NewApp connects to the database, initializes the schema and wires the
// audio store, the stub speech backends and the HTTP handlers.
func NewApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	mc := metrics.NewCollector()

	dbClient, err := db.NewClient(ctx, db.Config{
		URL:       cfg.SurrealDBURL,
		Namespace: cfg.SurrealDBNamespace,
		Database:  cfg.SurrealDBDatabase,
		Username:  cfg.SurrealDBUser,
		Password:  cfg.SurrealDBPass,
		AuthLevel: cfg.SurrealDBAuthLevel,
	}, logger, mc)
	if err != nil {
		return nil, err
	}

	if err := dbClient.InitSchema(ctx); err != nil {
		dbClient.Close(ctx)
		return nil, err
	}

	blobs, err := storage.New(ctx, cfg)
	if err != nil {
		dbClient.Close(ctx)
		return nil, err
	}
	audioStore := storage.NewAudioStore(blobs, cfg.PublicBaseURL, mc)

	registry, err := speech.NewStubRegistry(speech.DefaultCatalog(), audioStore, speech.StubConfig{
		MinDelay: cfg.StubMinDelay,
		MaxDelay: cfg.StubMaxDelay,
	})
	if err != nil {
		dbClient.Close(ctx)
		return nil, fmt.Errorf("speech backends: %w", err)
	}

	logger.Info("speech backends registered", "models", registry.Names(), "storage", cfg.StorageBackend)

	srv := New(Deps{
		Store:   dbClient,
		Gateway: speech.NewGateway(registry, audioStore, mc, logger),
		Audio:   audioStore,
		Auth:    auth.NewAuthenticator(cfg.AuthSecret, cfg.AuthIssuer),
		Hub:     events.NewHub(logger),
		Metrics: mc,
		Logger:  logger,
		Health:  dbClient.Ping,
	})

	return &App{db: dbClient, server: srv}, nil
}

// Handler returns the HTTP handler.
func (a *App) Handler() http.Handler {
	return a.server.Handler()
}

// Close closes all connections.
func (a *App) Close(ctx context.Context) error {
	if a.db != nil {
		return a.db.Close(ctx)
	}
	return nil
}

// WipeData deletes all data from the database. Use for testing only.
func (a *App) WipeData(ctx context.Context) error {
	return a.db.WipeData(ctx)
}
