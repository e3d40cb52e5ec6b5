package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/geoscout/geoscout/internal/app"
	"github.com/geoscout/geoscout/internal/common"
	"github.com/geoscout/geoscout/internal/models"
	"github.com/geoscout/geoscout/internal/storage"
)

const testUUID = "11111111-1111-1111-1111-111111111111"

func newTestServer(t *testing.T) *Server {
	t.Helper()
	logger := common.NewSilentLogger()

	cfg := common.NewDefaultConfig()
	cfg.Auth.JWTSecret = "test-secret-test-secret-test-secret-test-secret!"
	cfg.Auth.Domain = "geoscout.test"
	cfg.Storage.Identity.Path = t.TempDir()
	cfg.Storage.Cache.Path = t.TempDir()
	// generous limits; the rate-limit tests override per case
	cfg.Limits.BeginAttempts = 100
	cfg.Limits.CompleteAttempts = 100
	cfg.Limits.IssueAttempts = 100
	cfg.Limits.ExchangeAttempts = 100
	cfg.Limits.AdminAttempts = 100
	cfg.Auth.AdminPIN = "246813"

	mgr, err := storage.NewManager(logger, cfg)
	if err != nil {
		t.Fatalf("storage.NewManager: %v", err)
	}
	t.Cleanup(func() { mgr.Close() })

	a := app.NewAppWithComponents(cfg, logger, mgr)
	return NewServer(a)
}

func jsonBody(t *testing.T, v interface{}) *bytes.Buffer {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}
	return bytes.NewBuffer(data)
}

func doRequest(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var out map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

// registerIdentity runs the handshake over HTTP and returns the bearer token.
func registerIdentity(t *testing.T, srv *Server) string {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/api/token/begin", jsonBody(t, map[string]string{"uuid": testUUID}))
	rec := doRequest(srv, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("begin: status %d: %s", rec.Code, rec.Body.String())
	}
	pairing := decodeResponse(t, rec)["token"]
	if pairing == "" {
		t.Fatal("begin: empty pairing token")
	}

	req = httptest.NewRequest(http.MethodPost, "/api/token/begin", jsonBody(t, map[string]string{"uuid": testUUID, "token": pairing}))
	rec = doRequest(srv, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("complete: status %d: %s", rec.Code, rec.Body.String())
	}
	access := decodeResponse(t, rec)["accessToken"]
	if access == "" {
		t.Fatal("complete: empty access token")
	}
	return access
}

func TestTokenHandshake(t *testing.T) {
	srv := newTestServer(t)
	access := registerIdentity(t, srv)

	// the minted token must authenticate against a protected endpoint
	req := httptest.NewRequest(http.MethodGet, "/api/found-caches", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	rec := doRequest(srv, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("found-caches: status %d: %s", rec.Code, rec.Body.String())
	}
}

func TestTokenBeginRejectsBadUUID(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/token/begin", jsonBody(t, map[string]string{"uuid": "nope"}))
	rec := doRequest(srv, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestTokenCompleteRejectsWrongSecret(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/token/begin", jsonBody(t, map[string]string{"uuid": testUUID}))
	if rec := doRequest(srv, req); rec.Code != http.StatusOK {
		t.Fatalf("begin: status %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/token/begin", jsonBody(t, map[string]string{"uuid": testUUID, "token": "wrong"}))
	rec := doRequest(srv, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestTokenBeginRateLimited(t *testing.T) {
	srv := newTestServer(t)
	srv.app.Config.Limits.BeginAttempts = 2

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/token/begin", jsonBody(t, map[string]string{"uuid": testUUID}))
		if rec := doRequest(srv, req); rec.Code != http.StatusOK {
			t.Fatalf("begin %d: status %d", i, rec.Code)
		}
	}
	req := httptest.NewRequest(http.MethodPost, "/api/token/begin", jsonBody(t, map[string]string{"uuid": testUUID}))
	rec := doRequest(srv, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", rec.Code)
	}
}

func TestBackupTokenIssueAndExchange(t *testing.T) {
	srv := newTestServer(t)
	access := registerIdentity(t, srv)

	req := httptest.NewRequest(http.MethodPost, "/api/token/backup", jsonBody(t, map[string]string{"uuid": testUUID}))
	req.Header.Set("Authorization", "Bearer "+access)
	rec := doRequest(srv, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("backup: status %d: %s", rec.Code, rec.Body.String())
	}
	out := decodeResponse(t, rec)
	if out["token"] == "" || out["name"] == "" {
		t.Fatalf("backup: incomplete response %v", out)
	}

	// a new device exchanges the backup token for its own bearer token
	req = httptest.NewRequest(http.MethodPost, "/api/token/exchange", nil)
	req.Header.Set("Authorization", "Bearer "+out["token"])
	rec = doRequest(srv, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("exchange: status %d: %s", rec.Code, rec.Body.String())
	}
	fresh := decodeResponse(t, rec)["accessToken"]

	req = httptest.NewRequest(http.MethodGet, "/api/found-caches", nil)
	req.Header.Set("Authorization", "Bearer "+fresh)
	if rec := doRequest(srv, req); rec.Code != http.StatusOK {
		t.Errorf("exchanged token rejected: status %d", rec.Code)
	}
}

func TestQRTokenReturnsSVG(t *testing.T) {
	srv := newTestServer(t)
	access := registerIdentity(t, srv)

	req := httptest.NewRequest(http.MethodPost, "/api/token/qr", jsonBody(t, map[string]string{"uuid": testUUID}))
	req.Header.Set("Authorization", "Bearer "+access)
	rec := doRequest(srv, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("qr: status %d: %s", rec.Code, rec.Body.String())
	}
	svg := decodeResponse(t, rec)["token"]
	if !strings.HasPrefix(svg, "<svg") || !strings.HasSuffix(svg, "</svg>") {
		t.Errorf("qr response is not an SVG document: %.60s", svg)
	}
}

func TestBackupTokenRequiresAuthorization(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/token/backup", jsonBody(t, map[string]string{"uuid": testUUID}))
	rec := doRequest(srv, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestExchangeRejectsAppToken(t *testing.T) {
	srv := newTestServer(t)
	access := registerIdentity(t, srv)

	req := httptest.NewRequest(http.MethodPost, "/api/token/exchange", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	rec := doRequest(srv, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestBearerMiddlewareRejectsMalformedToken(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/found-caches", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec := doRequest(srv, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestBearerMiddlewareRejectsUnlistedTokenID(t *testing.T) {
	srv := newTestServer(t)
	access := registerIdentity(t, srv)

	record, _, err := srv.app.IdentityService.Authenticate(context.Background(), access)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}

	// a correctly signed app token is still refused when its id never made
	// the record's access allow-list
	forged, err := srv.app.Codec.Issue(record.DisplayID, record.RecordID, "never-listed-id", srv.app.Codec.Policies().App)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/found-caches", nil)
	req.Header.Set("Authorization", "Bearer "+forged)
	rec := doRequest(srv, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("found-caches: status = %d, want 401", rec.Code)
	}

	// backup issuance with the same bearer fails before minting anything
	req = httptest.NewRequest(http.MethodPost, "/api/token/backup", jsonBody(t, map[string]string{"uuid": testUUID}))
	req.Header.Set("Authorization", "Bearer "+forged)
	rec = doRequest(srv, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("backup: status = %d, want 401", rec.Code)
	}
}

func TestHealthAndVersion(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(srv, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("health: status %d", rec.Code)
	}

	rec = doRequest(srv, httptest.NewRequest(http.MethodGet, "/api/version", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("version: status %d", rec.Code)
	}

	rec = doRequest(srv, httptest.NewRequest(http.MethodDelete, "/api/health", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("health DELETE: status %d, want 405", rec.Code)
	}
}

func TestLegacyPathsRouteToHandlers(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/get-token", jsonBody(t, map[string]string{"uuid": testUUID}))
	rec := doRequest(srv, req)
	if rec.Code != http.StatusOK {
		t.Errorf("get-token: status %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/exchange-backup-token", nil)
	rec = doRequest(srv, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("exchange-backup-token without token: status %d, want 401", rec.Code)
	}
}

// seed helper shared with the finds handler tests
func seedCache(t *testing.T, srv *Server, cache *models.Cache) {
	t.Helper()
	if err := srv.app.Storage.CacheStore().Save(context.Background(), cache); err != nil {
		t.Fatalf("seed cache %s: %v", cache.CacheID, err)
	}
}
