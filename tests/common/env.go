// Package common provides shared test infrastructure for the API tests:
// a fully wired server over temp-dir storage, exposed through a real HTTP
// listener so the tests exercise the complete middleware stack.
package common

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/geoscout/geoscout/internal/app"
	appcommon "github.com/geoscout/geoscout/internal/common"
	"github.com/geoscout/geoscout/internal/models"
	"github.com/geoscout/geoscout/internal/server"
	"github.com/geoscout/geoscout/internal/storage"
)

// Env is an isolated test environment around a running test server.
type Env struct {
	t      *testing.T
	App    *app.App
	server *httptest.Server
}

// NewEnv starts a server on local storage with test credentials.
func NewEnv(t *testing.T) *Env {
	t.Helper()

	cfg := appcommon.NewDefaultConfig()
	cfg.Auth.JWTSecret = "api-test-secret-api-test-secret-api-test-secret!"
	cfg.Auth.Domain = "geoscout.test"
	cfg.Auth.AdminPIN = "246813"
	cfg.Storage.Identity.Path = t.TempDir()
	cfg.Storage.Cache.Path = t.TempDir()
	cfg.Limits.BeginAttempts = 1000
	cfg.Limits.CompleteAttempts = 1000
	cfg.Limits.IssueAttempts = 1000
	cfg.Limits.ExchangeAttempts = 1000

	logger := appcommon.NewSilentLogger()
	mgr, err := storage.NewManager(logger, cfg)
	if err != nil {
		t.Fatalf("storage.NewManager: %v", err)
	}

	a := app.NewAppWithComponents(cfg, logger, mgr)
	srv := server.NewServer(a)

	return &Env{
		t:      t,
		App:    a,
		server: httptest.NewServer(srv.Handler()),
	}
}

// Cleanup stops the server and releases storage.
func (e *Env) Cleanup() {
	e.server.Close()
	e.App.Close()
}

// URL returns the base URL of the test server.
func (e *Env) URL() string {
	return e.server.URL
}

// HTTPGet performs a GET with optional headers.
func (e *Env) HTTPGet(path string, headers ...map[string]string) (*http.Response, error) {
	return e.HTTPRequest(http.MethodGet, path, nil, headers...)
}

// HTTPPost performs a POST with a JSON body and optional headers.
func (e *Env) HTTPPost(path string, body interface{}, headers ...map[string]string) (*http.Response, error) {
	return e.HTTPRequest(http.MethodPost, path, body, headers...)
}

// HTTPRequest performs an arbitrary request. body (when non-nil) is JSON
// encoded.
func (e *Env) HTTPRequest(method, path string, body interface{}, headers ...map[string]string) (*http.Response, error) {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, e.server.URL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, h := range headers {
		for k, v := range h {
			req.Header.Set(k, v)
		}
	}
	return e.server.Client().Do(req)
}

// SeedCache writes a cache record directly to storage.
func (e *Env) SeedCache(cache *models.Cache) {
	e.t.Helper()
	if err := e.App.Storage.CacheStore().Save(context.Background(), cache); err != nil {
		e.t.Fatalf("seed cache %s: %v", cache.CacheID, err)
	}
}
