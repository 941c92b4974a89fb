// Package graph serves the owner-scoped persistence API and the change feed
// over GraphQL.
// It serves as dependency injection for the resolvers.
package graph

import (
	"context"
	"log/slog"

	"github.com/raphaelgruber/voxchat/internal/auth"
	"github.com/raphaelgruber/voxchat/internal/events"
	"github.com/raphaelgruber/voxchat/internal/metrics"
	"github.com/raphaelgruber/voxchat/internal/service"
)

// Resolver is the root resolver with all dependencies.
type Resolver struct {
	store   service.Store
	hub     *events.Hub
	metrics *metrics.Collector
	logger  *slog.Logger
}

// NewResolver creates a resolver over store. Writes are announced on hub.
func NewResolver(store service.Store, hub *events.Hub, mc *metrics.Collector, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{store: store, hub: hub, metrics: mc, logger: logger}
}

// ownerFrom returns the owner authenticated by the HTTP middleware.
func ownerFrom(ctx context.Context) (string, error) {
	owner, ok := auth.OwnerFrom(ctx)
	if !ok || owner == "" {
		return "", auth.ErrUnauthenticated
	}
	return owner, nil
}
