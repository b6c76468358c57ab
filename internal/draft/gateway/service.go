package gateway

import (
	"context"
	"net/http"

	"github.com/rs/cors"

	"github.com/kettleofketchup/draftforge/internal/draft/broadcast"
	"github.com/kettleofketchup/draftforge/internal/draft/roster"
	"github.com/kettleofketchup/draftforge/internal/draft/session"
	"github.com/kettleofketchup/draftforge/internal/draft/store"
	"github.com/kettleofketchup/draftforge/internal/models"
)

// Config bundles the gateway's tunables.
type Config struct {
	ConnectionConfig ConnectionConfig
	DefaultSettings  models.Settings
}

// Service ties the WebSocket connection manager, the team connection
// coordinator, and the session registry behind one HTTP surface.
type Service struct {
	config      Config
	connections *ConnectionManager
	coordinator *Coordinator
	registry    *session.Registry
	roster      *roster.Roster
	sequencer   *broadcast.Sequencer
	store       store.Store
}

func NewService(cfg Config, registry *session.Registry, ros *roster.Roster, seq *broadcast.Sequencer, st store.Store) *Service {
	s := &Service{
		config:      cfg,
		connections: NewConnectionManager(cfg.ConnectionConfig),
		coordinator: NewCoordinator(registry),
		registry:    registry,
		roster:      ros,
		sequencer:   seq,
		store:       st,
	}
	s.connections.OnMessage(s.handleClientMessage)
	s.connections.OnClosed(s.handleClosed)
	return s
}

// Connections exposes the manager so it can be registered as a broadcast
// sink.
func (s *Service) Connections() *ConnectionManager { return s.connections }

// RegisterRoutes mounts the WebSocket and REST endpoints.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/draft", s.handleDraftConnection)
	mux.HandleFunc("/ws/tournament", s.handleTournamentConnection)
	mux.HandleFunc("/ws/stats", s.handleConnectionStats)

	mux.HandleFunc("POST /api/drafts", s.handleCreateDraft)
	mux.HandleFunc("GET /api/drafts/{id}/state", s.handleDraftState)
	mux.HandleFunc("GET /api/drafts/{id}/events", s.handleDraftEvents)
	mux.HandleFunc("POST /api/drafts/{id}/resume", s.handleResumeDraft)
	mux.HandleFunc("POST /api/drafts/{id}/reset", s.handleResetDraft)
	mux.HandleFunc("DELETE /api/drafts/{id}", s.handleDeleteDraft)
	mux.HandleFunc("GET /api/heroes", s.handleListHeroes)
}

// Handler returns the fully wrapped HTTP handler.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	return cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-Requested-With"},
		MaxAge:         86400,
	}).Handler(mux)
}

// Shutdown closes all live connections and stops the actors.
func (s *Service) Shutdown(ctx context.Context) {
	s.connections.Shutdown(ctx)
	s.registry.Shutdown()
}
