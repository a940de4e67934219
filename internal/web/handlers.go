package web

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vitos/trade_journal/internal/domain"
	"go.uber.org/zap"
)

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLevels(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.service.Resolver().Table().Levels())
}

type tradeRequest struct {
	ID         string          `json:"id"`
	Symbol     string          `json:"symbol"`
	Side       domain.Side     `json:"side"`
	Quantity   decimal.Decimal `json:"quantity"`
	PnL        decimal.Decimal `json:"pnl"`
	Notes      string          `json:"notes"`
	ExecutedAt *time.Time      `json:"executed_at"`
}

func (s *Server) handleRecordTrade(w http.ResponseWriter, r *http.Request) {
	var req tradeRequest
	if !s.readJSON(w, r, &req) {
		return
	}

	if req.Symbol == "" {
		http.Error(w, "Symbol is required", http.StatusBadRequest)
		return
	}
	if req.Side != domain.SideLong && req.Side != domain.SideShort {
		http.Error(w, "Side must be LONG or SHORT", http.StatusBadRequest)
		return
	}
	if !req.Quantity.IsPositive() {
		http.Error(w, "Quantity must be greater than 0", http.StatusBadRequest)
		return
	}

	trade := domain.Trade{
		ID:       req.ID,
		TraderID: r.PathValue("id"),
		Symbol:   req.Symbol,
		Side:     req.Side,
		Quantity: req.Quantity,
		PnL:      req.PnL,
		Notes:    req.Notes,
	}
	if req.ExecutedAt != nil {
		trade.ExecutedAt = *req.ExecutedAt
	}

	report, err := s.service.RecordTrade(r.Context(), trade)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, report)
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	summary, err := s.service.Progress(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleChallenges(w http.ResponseWriter, r *http.Request) {
	list, err := s.service.Challenges(r.Context(), r.PathValue("id"), queryLimit(r, 50))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if list == nil {
		list = []domain.Challenge{}
	}
	s.writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	list, err := s.service.Events(r.Context(), r.PathValue("id"), queryLimit(r, 100))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if list == nil {
		list = []domain.RelationshipEvent{}
	}
	s.writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCorrectXP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TotalXP int64 `json:"total_xp"`
	}
	if !s.readJSON(w, r, &req) {
		return
	}
	ledger, err := s.service.CorrectXP(r.Context(), r.PathValue("id"), req.TotalXP)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ledger)
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Sweep(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	s.logger.Info("Manual sweep finished")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	traderID := r.URL.Query().Get("trader")
	if traderID == "" {
		http.Error(w, "trader is required", http.StatusBadRequest)
		return
	}
	if s.hub == nil {
		http.Error(w, "notifications disabled", http.StatusServiceUnavailable)
		return
	}
	s.logger.Debug("WS subscribe", zap.String("trader", traderID))
	s.hub.ServeWS(w, r, traderID)
}
