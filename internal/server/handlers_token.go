package server

import (
	"net/http"

	"github.com/geoscout/geoscout/internal/common"
	"github.com/geoscout/geoscout/internal/services/identity"
)

// tokenRequest is the body of the pairing and issuance endpoints. Token is
// empty on the first phase of the handshake.
type tokenRequest struct {
	UUID  string `json:"uuid"`
	Token string `json:"token,omitempty"`
}

// handleTokenBegin runs both phases of the pairing handshake. A request
// without a token starts a pairing and returns the one-time pairing token;
// a request with one completes it and returns the bearer token.
func (s *Server) handleTokenBegin(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req tokenRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	ip := ClientIP(r)
	if req.Token == "" {
		pairing, err := s.app.IdentityService.BeginPairing(r.Context(), ip, req.UUID)
		if err != nil {
			WriteProtocolError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]string{"token": pairing})
		return
	}

	accessToken, err := s.app.IdentityService.CompletePairing(r.Context(), ip, req.UUID, req.Token)
	if err != nil {
		WriteProtocolError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"accessToken": accessToken})
}

// handleTokenBackup issues a backup hand-off token for the authenticated
// identity. The name is the display id, used as the backup file name.
func (s *Server) handleTokenBackup(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	if common.IdentityFromContext(r.Context()) == nil {
		WriteError(w, http.StatusUnauthorized, "Authorization required")
		return
	}

	var req tokenRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	token, name, err := s.app.IdentityService.IssueExchangeToken(r.Context(), ClientIP(r), req.UUID, BearerToken(r), identity.KindBackup)
	if err != nil {
		WriteProtocolError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"token": token, "name": name})
}

// handleTokenQR issues a QR hand-off token and returns it rendered as an
// SVG image for the pairing screen.
func (s *Server) handleTokenQR(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	if common.IdentityFromContext(r.Context()) == nil {
		WriteError(w, http.StatusUnauthorized, "Authorization required")
		return
	}

	var req tokenRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	token, _, err := s.app.IdentityService.IssueExchangeToken(r.Context(), ClientIP(r), req.UUID, BearerToken(r), identity.KindQR)
	if err != nil {
		WriteProtocolError(w, err)
		return
	}

	svg, err := renderQRSVG(token)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to render QR code")
		WriteError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	WriteJSON(w, http.StatusCreated, map[string]string{"token": svg})
}

// handleTokenExchange trades a QR or backup hand-off token for a fresh
// bearer token. The hand-off token rides in the Authorization header.
func (s *Server) handleTokenExchange(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	token := BearerToken(r)
	if token == "" {
		WriteError(w, http.StatusUnauthorized, "Authorization required")
		return
	}

	accessToken, err := s.app.IdentityService.ExchangeToken(r.Context(), ClientIP(r), token)
	if err != nil {
		WriteProtocolError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"accessToken": accessToken})
}
