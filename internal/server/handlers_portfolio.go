package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/bobmcallan/mfdesk/internal/common"
	"github.com/bobmcallan/mfdesk/internal/models"
)

// handlePortfolioSummary handles GET /api/portfolio/summary.
func (s *Server) handlePortfolioSummary(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	summary, err := s.app.PortfolioService.Summary(r.Context(), userID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if summary.GrowthData == nil {
		summary.GrowthData = []models.GrowthPoint{}
	}
	WriteJSON(w, http.StatusOK, summary)
}

// handleGrowthChart handles GET /api/portfolio/growth-chart.
func (s *Server) handleGrowthChart(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	png, err := s.app.PortfolioService.GrowthChart(r.Context(), userID)
	if err != nil {
		if errors.Is(err, common.ErrInsufficientData) {
			WriteErrorDetails(w, http.StatusUnprocessableEntity, "Not enough data to render the growth chart", err.Error())
			return
		}
		s.writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

// handleOptimizePortfolio handles POST /api/optimize-portfolio. The session is
// checked before the body is read so anonymous calls never reach the process pool.
func (s *Server) handleOptimizePortfolio(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var in models.OptimizeInput
	if !DecodeJSON(w, r, &in) {
		return
	}
	if err := in.Validate(); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	result, err := s.app.OptimizerService.Optimize(r.Context(), in.Request())
	if err != nil {
		if pe, ok := common.AsProcessError(err); ok {
			s.logger.Warn().
				Int64("user_id", userID).
				Str("kind", pe.Kind.String()).
				Int("exit_code", pe.ExitCode).
				Msg("Portfolio optimization failed")
			s.writeProcessError(w, pe, optimizerMessages)
			return
		}
		s.writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(result)
}
