package server

import (
	"errors"
	"net/http"

	"github.com/bobmcallan/mfdesk/internal/common"
	"github.com/bobmcallan/mfdesk/internal/models"
)

// handleClients handles GET (list) and POST (create) on /api/clients.
func (s *Server) handleClients(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodPost) {
		return
	}
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	if r.Method == http.MethodGet {
		clients, err := s.app.PortfolioService.ListClients(r.Context(), userID)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		if clients == nil {
			clients = []*models.ClientWithPortfolio{}
		}
		WriteJSON(w, http.StatusOK, clients)
		return
	}

	var in models.NewClientInput
	if !DecodeJSON(w, r, &in) {
		return
	}
	client, err := s.app.PortfolioService.CreateClient(r.Context(), userID, in)
	if err != nil {
		if errors.Is(err, common.ErrConflict) {
			WriteError(w, http.StatusConflict, "Client already exists")
			return
		}
		s.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, client)
}

// handleClientDetail handles GET /api/clients/{id}.
func (s *Server) handleClientDetail(w http.ResponseWriter, r *http.Request, userID, clientID int64) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	detail, err := s.app.PortfolioService.ClientDetail(r.Context(), userID, clientID)
	if err != nil {
		s.writeClientError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, detail)
}

// handleClientGoals handles GET and POST on /api/clients/{id}/goals.
func (s *Server) handleClientGoals(w http.ResponseWriter, r *http.Request, userID, clientID int64) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodPost) {
		return
	}

	if r.Method == http.MethodGet {
		goals, err := s.app.PortfolioService.ListGoals(r.Context(), userID, clientID)
		if err != nil {
			s.writeClientError(w, r, err)
			return
		}
		if goals == nil {
			goals = []*models.Goal{}
		}
		WriteJSON(w, http.StatusOK, goals)
		return
	}

	var in models.NewGoalInput
	if !DecodeJSON(w, r, &in) {
		return
	}
	goal, err := s.app.PortfolioService.CreateGoal(r.Context(), userID, clientID, in)
	if err != nil {
		s.writeClientError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, goal)
}

// writeClientError reports another user's client the same as a missing one.
func (s *Server) writeClientError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, common.ErrNotFound) {
		WriteError(w, http.StatusNotFound, "Client not found")
		return
	}
	s.writeServiceError(w, r, err)
}
