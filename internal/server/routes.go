package server

import (
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/bobmcallan/mfdesk/internal/common"
	"github.com/bobmcallan/mfdesk/internal/services/procpool"
)

// registerRoutes sets up all REST API routes on the mux.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	// System
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/version", s.handleVersion)
	mux.HandleFunc("/api/diagnostics", s.handleDiagnostics)

	// Auth
	mux.HandleFunc("/api/register", s.handleRegister)
	mux.HandleFunc("/api/login", s.handleLogin)
	mux.HandleFunc("/api/logout", s.handleLogout)
	mux.HandleFunc("/api/user", s.handleUser)

	// Clients and goals
	mux.HandleFunc("/api/clients/", s.routeClients)
	mux.HandleFunc("/api/clients", s.handleClients)

	// Portfolio
	mux.HandleFunc("/api/portfolio/summary", s.handlePortfolioSummary)
	mux.HandleFunc("/api/portfolio/growth-chart", s.handleGrowthChart)
	mux.HandleFunc("/api/optimize-portfolio", s.handleOptimizePortfolio)

	// Support chat
	mux.HandleFunc("/api/chat", s.handleChat)

	// Unknown API paths stay JSON; everything else is the SPA.
	mux.HandleFunc("/api/", s.handleAPINotFound)
	mux.HandleFunc("/", s.handleSPA)
}

// requireUser returns the session's user id, writing 401 when the request is
// anonymous.
func requireUser(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, ok := common.ResolveUserID(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, "Not authenticated")
		return 0, false
	}
	return userID, true
}

// routeClients dispatches /api/clients/{id} and /api/clients/{id}/goals.
func (s *Server) routeClients(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/clients/"), "/")
	parts := strings.Split(rest, "/")

	clientID, err := parseID(parts[0])
	if err != nil {
		WriteError(w, http.StatusNotFound, "Client not found")
		return
	}

	switch {
	case len(parts) == 1:
		s.handleClientDetail(w, r, userID, clientID)
	case len(parts) == 2 && parts[1] == "goals":
		s.handleClientGoals(w, r, userID, clientID)
	default:
		WriteError(w, http.StatusNotFound, "Not found")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"version": common.GetVersion(),
		"build":   common.Build,
		"commit":  common.GitCommit,
	})
}

// handleDiagnostics reports runtime and process pool state to signed-in users.
func (s *Server) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	if _, ok := requireUser(w, r); !ok {
		return
	}

	pools := map[string]procpool.Stats{}
	if s.app.OptimizerPool != nil {
		pools["optimizer"] = s.app.OptimizerPool.Stats()
	}
	if s.app.ChatPool != nil {
		pools["chat"] = s.app.ChatPool.Stats()
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"version":         common.GetFullVersion(),
		"environment":     s.app.Config.Environment,
		"storage_backend": s.app.Config.Storage.Backend,
		"chat_provider":   s.app.Config.Chat.Provider,
		"uptime":          time.Since(s.app.StartupTime).Round(time.Second).String(),
		"goroutines":      runtime.NumGoroutine(),
		"heap_alloc_mb":   mem.HeapAlloc / 1024 / 1024,
		"process_pools":   pools,
	})
}

func (s *Server) handleAPINotFound(w http.ResponseWriter, r *http.Request) {
	WriteError(w, http.StatusNotFound, "Not found")
}
