package server

import (
	"net/http"

	"github.com/geoscout/geoscout/internal/common"
)

// registerRoutes sets up all API routes on the mux.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	// System
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/version", s.handleVersion)

	// Token protocol
	mux.HandleFunc("/api/token/begin", s.handleTokenBegin)
	mux.HandleFunc("/api/token/backup", s.handleTokenBackup)
	mux.HandleFunc("/api/token/qr", s.handleTokenQR)
	mux.HandleFunc("/api/token/exchange", s.handleTokenExchange)

	// Legacy paths used by the deployed web app
	mux.HandleFunc("/api/get-token", s.handleTokenBegin)
	mux.HandleFunc("/api/get-backup-token", s.handleTokenBackup)
	mux.HandleFunc("/api/get-qr-token", s.handleTokenQR)
	mux.HandleFunc("/api/exchange-qr-token", s.handleTokenExchange)
	mux.HandleFunc("/api/exchange-backup-token", s.handleTokenExchange)

	// Caches and finds
	mux.HandleFunc("/api/found-cache", s.handleFoundCache)
	mux.HandleFunc("/api/found-caches", s.handleFoundCaches)
	mux.HandleFunc("/api/get-caches", s.handleGetCaches)
	mux.HandleFunc("/api/get-cache/", s.handleGetCache)
	mux.HandleFunc("/api/get-leaderboard", s.handleLeaderboard)

	// Admin
	mux.HandleFunc("/api/add-cache", s.handleAddCache)
}

// --- System handlers ---

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
		"build":   common.GetBuild(),
		"commit":  common.GetGitCommit(),
	})
}
