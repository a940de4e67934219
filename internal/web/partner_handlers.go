package web

import (
	"net/http"

	"github.com/vitos/trade_journal/internal/domain"
)

// Partner API Handlers

type inviteRequest struct {
	InviterID string               `json:"inviter_id"`
	InviteeID string               `json:"invitee_id"`
	Rules     []domain.PartnerRule `json:"rules"`
}

type actorRequest struct {
	TraderID string `json:"trader_id"`
}

type ruleRequest struct {
	TraderID string             `json:"trader_id"`
	Rule     domain.PartnerRule `json:"rule"`
}

func (s *Server) handleInvite(w http.ResponseWriter, r *http.Request) {
	var req inviteRequest
	if !s.readJSON(w, r, &req) {
		return
	}
	if req.InviterID == "" || req.InviteeID == "" {
		http.Error(w, "inviter_id and invitee_id are required", http.StatusBadRequest)
		return
	}

	rel, err := s.service.InvitePartner(r.Context(), req.InviterID, req.InviteeID, req.Rules)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, rel)
}

func (s *Server) handleGetRelationship(w http.ResponseWriter, r *http.Request) {
	rel, err := s.service.Relationship(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rel)
}

func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	var req actorRequest
	if !s.readJSON(w, r, &req) {
		return
	}
	rel, err := s.service.AcceptPartner(r.Context(), r.PathValue("id"), req.TraderID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rel)
}

func (s *Server) handleEnd(w http.ResponseWriter, r *http.Request) {
	var req actorRequest
	if !s.readJSON(w, r, &req) {
		return
	}
	rel, err := s.service.EndPartner(r.Context(), r.PathValue("id"), req.TraderID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rel)
}

func (s *Server) handleAddRule(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	if !s.readJSON(w, r, &req) {
		return
	}
	rel, err := s.service.AddPartnerRule(r.Context(), r.PathValue("id"), req.TraderID, req.Rule)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, rel)
}

func (s *Server) handleRemoveRule(w http.ResponseWriter, r *http.Request) {
	traderID := r.URL.Query().Get("trader")
	rel, err := s.service.RemovePartnerRule(r.Context(), r.PathValue("id"), traderID, r.PathValue("ruleID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rel)
}

func (s *Server) handleViolations(w http.ResponseWriter, r *http.Request) {
	list, err := s.service.Violations(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if list == nil {
		list = []domain.RuleViolation{}
	}
	s.writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleSharedChallenges(w http.ResponseWriter, r *http.Request) {
	list, err := s.service.SharedChallenges(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if list == nil {
		list = []domain.SharedChallenge{}
	}
	s.writeJSON(w, http.StatusOK, list)
}
