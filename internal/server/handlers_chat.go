package server

import (
	"net/http"

	"github.com/bobmcallan/mfdesk/internal/common"
	"github.com/bobmcallan/mfdesk/internal/models"
)

// handleChat handles POST /api/chat. No session is required; callers are
// throttled per IP.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	if !s.allowChat(w, r) {
		return
	}

	var req models.ChatRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	reply, err := s.app.ChatService.Reply(r.Context(), req)
	if err != nil {
		if pe, ok := common.AsProcessError(err); ok {
			s.writeProcessError(w, pe, chatMessages)
			return
		}
		if _, ok := common.AsValidationError(err); ok {
			s.writeServiceError(w, r, err)
			return
		}
		s.logger.Error().Err(err).Msg("Chat reply failed")
		WriteError(w, http.StatusInternalServerError, "Chat assistant failed")
		return
	}

	WriteJSON(w, http.StatusOK, models.ChatResponse{Response: reply})
}
