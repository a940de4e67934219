package web

import (
	"context"
	"fmt"
	"net/http"

	"github.com/vitos/trade_journal/internal/infrastructure/notify"
	"github.com/vitos/trade_journal/internal/usecase"
	"go.uber.org/zap"
)

type Server struct {
	router  *http.ServeMux
	server  *http.Server
	service *usecase.GamificationService
	hub     *notify.Hub
	logger  *zap.Logger
}

func NewServer(
	port int,
	service *usecase.GamificationService,
	hub *notify.Hub,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		router:  http.NewServeMux(),
		service: service,
		hub:     hub,
		logger:  logger,
	}
	s.routes()
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.router,
	}
	return s
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() {
	// Status
	s.router.HandleFunc("GET /status", s.handleStatus)

	// Levels
	s.router.HandleFunc("GET /api/levels", s.handleLevels)

	// Traders
	s.router.HandleFunc("POST /api/traders/{id}/trades", s.handleRecordTrade)
	s.router.HandleFunc("GET /api/traders/{id}/progress", s.handleProgress)
	s.router.HandleFunc("GET /api/traders/{id}/challenges", s.handleChallenges)
	s.router.HandleFunc("GET /api/traders/{id}/events", s.handleEvents)
	s.router.HandleFunc("PUT /api/traders/{id}/xp", s.handleCorrectXP)

	// Partners
	s.router.HandleFunc("POST /api/partners", s.handleInvite)
	s.router.HandleFunc("GET /api/partners/{id}", s.handleGetRelationship)
	s.router.HandleFunc("POST /api/partners/{id}/accept", s.handleAccept)
	s.router.HandleFunc("POST /api/partners/{id}/end", s.handleEnd)
	s.router.HandleFunc("POST /api/partners/{id}/rules", s.handleAddRule)
	s.router.HandleFunc("DELETE /api/partners/{id}/rules/{ruleID}", s.handleRemoveRule)
	s.router.HandleFunc("GET /api/partners/{id}/violations", s.handleViolations)
	s.router.HandleFunc("GET /api/partners/{id}/challenges", s.handleSharedChallenges)

	// Notifications
	s.router.HandleFunc("GET /ws", s.handleWS)

	// Maintenance
	s.router.HandleFunc("POST /api/sweep", s.handleSweep)
}

func (s *Server) Start() error {
	s.logger.Info("Starting web server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
