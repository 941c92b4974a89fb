// Package server exposes the inference gateway, audio blobs and the GraphQL
// persistence API with its change subscription over HTTP.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/99designs/gqlgen/graphql/handler"
	"github.com/99designs/gqlgen/graphql/handler/extension"
	"github.com/99designs/gqlgen/graphql/handler/lru"
	"github.com/99designs/gqlgen/graphql/handler/transport"
	"github.com/gorilla/websocket"
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/raphaelgruber/voxchat/internal/auth"
	"github.com/raphaelgruber/voxchat/internal/events"
	"github.com/raphaelgruber/voxchat/internal/graph"
	"github.com/raphaelgruber/voxchat/internal/metrics"
	"github.com/raphaelgruber/voxchat/internal/service"
	"github.com/raphaelgruber/voxchat/internal/speech"
	"github.com/raphaelgruber/voxchat/internal/storage"
)

// maxUploadBytes bounds one gateway upload: 30s of 16 kHz mono PCM with
// room for container overhead.
const maxUploadBytes = 8 << 20

// QueryPath is the GraphQL endpoint.
const QueryPath = "/query"

// Deps are the collaborators of a Server.
type Deps struct {
	Store   service.Store
	Gateway *speech.Gateway
	Audio   *storage.AudioStore
	Auth    *auth.Authenticator
	Hub     *events.Hub
	Metrics *metrics.Collector
	Logger  *slog.Logger
	// Health reports whether the backing services are reachable. Optional.
	Health func(ctx context.Context) error
}

// Server routes HTTP requests to the voxchat components.
type Server struct {
	deps   Deps
	logger *slog.Logger
}

// New creates a server.
func New(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Server{deps: deps, logger: deps.Logger}
}

// Handler returns the routed handler wrapped in request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle(speech.GatewayPath, withCORS(requireGatewayOwner(s.deps.Auth, http.HandlerFunc(s.handleProcessSpeech))))
	mux.HandleFunc("GET "+storage.AudioRoute+"{key...}", s.handleAudio)
	mux.Handle(QueryPath, requireOwner(s.deps.Auth, s.graphQLHandler()))
	mux.HandleFunc("GET /health", s.handleHealth)

	return LoggingMiddleware(s.logger, mux)
}

// graphQLHandler serves queries and mutations over GET and POST and the
// change subscription over websockets.
func (s *Server) graphQLHandler() http.Handler {
	srv := handler.New(graph.NewExecutableSchema(graph.Config{
		Resolvers: graph.NewResolver(s.deps.Store, s.deps.Hub, s.deps.Metrics, s.logger),
		Logger:    s.logger,
	}))

	// Websocket first so subscription upgrades are not taken by GET.
	srv.AddTransport(transport.Websocket{
		Upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // tokens, not origins, gate access
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		KeepAlivePingInterval: 10 * time.Second,
	})
	srv.AddTransport(transport.Options{})
	srv.AddTransport(transport.GET{})
	srv.AddTransport(transport.POST{})

	srv.SetQueryCache(lru.New[*ast.QueryDocument](1000))
	srv.Use(extension.AutomaticPersistedQuery{
		Cache: lru.New[string](100),
	})
	return srv
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health != nil {
		if err := s.deps.Health(r.Context()); err != nil {
			s.logger.Warn("health check failed", "error", err)
			writeError(w, http.StatusServiceUnavailable, "unavailable")
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "ok")
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}
