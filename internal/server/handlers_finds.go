package server

import (
	"crypto/subtle"
	"net/http"

	"github.com/geoscout/geoscout/internal/auth"
	"github.com/geoscout/geoscout/internal/common"
)

// foundRequest is the body of POST /api/found-cache.
type foundRequest struct {
	Cache     string `json:"cache"`
	CacheCode string `json:"cacheCode"`
}

// addCacheRequest is the body of POST /api/add-cache.
type addCacheRequest struct {
	PIN         string `json:"pin"`
	Location    string `json:"location"`
	Coordinates string `json:"coordinates,omitempty"`
}

// handleFoundCache records a find for the authenticated identity after
// validating the cable-tie code.
func (s *Server) handleFoundCache(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	ic := common.IdentityFromContext(r.Context())
	if ic == nil {
		WriteError(w, http.StatusUnauthorized, "Authorization required")
		return
	}

	var req foundRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	if err := s.app.FindsService.RecordFound(r.Context(), ic.RecordID, req.Cache, req.CacheCode); err != nil {
		WriteProtocolError(w, err)
		return
	}

	list, err := s.app.FindsService.FoundList(r.Context(), ic.RecordID)
	if err != nil {
		WriteProtocolError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"foundCaches": list, "total": len(list)})
}

// handleFoundCaches returns the authenticated identity's find history.
func (s *Server) handleFoundCaches(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	ic := common.IdentityFromContext(r.Context())
	if ic == nil {
		WriteError(w, http.StatusUnauthorized, "Authorization required")
		return
	}

	list, err := s.app.FindsService.FoundList(r.Context(), ic.RecordID)
	if err != nil {
		WriteProtocolError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"foundCaches": list, "total": len(list)})
}

// handleGetCaches lists active caches. Public.
func (s *Server) handleGetCaches(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	caches, err := s.app.FindsService.ListCaches(r.Context())
	if err != nil {
		WriteProtocolError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, caches)
}

// handleGetCache returns a single cache by id. Public.
func (s *Server) handleGetCache(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	cacheID := PathParam(r, "/api/get-cache/", "")
	if cacheID == "" {
		WriteError(w, http.StatusBadRequest, "Cache id is required")
		return
	}

	cache, err := s.app.FindsService.GetCache(r.Context(), cacheID)
	if err != nil {
		WriteProtocolError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, cache)
}

// handleAddCache creates the next cache on the trail. Gated by the admin
// PIN rather than a bearer token; a deployment without a configured PIN has
// the endpoint disabled.
func (s *Server) handleAddCache(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	if err := s.app.Limiter.Check(s.app.Config.Limits.AdminAttempts, auth.HashKey("admin", ClientIP(r))); err != nil {
		WriteProtocolError(w, err)
		return
	}

	var req addCacheRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	pin := s.app.Config.Auth.AdminPIN
	if pin == "" || subtle.ConstantTimeCompare([]byte(req.PIN), []byte(pin)) != 1 {
		WriteError(w, http.StatusUnauthorized, "Invalid PIN")
		return
	}
	if req.Location == "" {
		WriteError(w, http.StatusBadRequest, "Location is required")
		return
	}

	cache, code, err := s.app.FindsService.AddCache(r.Context(), req.Location, req.Coordinates)
	if err != nil {
		WriteProtocolError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, map[string]string{
		"id":       cache.CacheID,
		"code":     code,
		"location": cache.Location,
	})
}

// handleLeaderboard returns the ranked leaderboard. Public.
func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	board, err := s.app.FindsService.Leaderboard(r.Context())
	if err != nil {
		WriteProtocolError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, board)
}
