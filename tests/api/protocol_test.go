package api

import (
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geoscout/geoscout/tests/common"
)

const deviceUUID = "7c9e6679-7425-40de-944b-e07fc1f90ae7"

// --- Helpers ---

func readBody(t *testing.T, body io.ReadCloser) []byte {
	t.Helper()
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	return data
}

func decodeJSON(t *testing.T, resp *http.Response) map[string]string {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]string
	require.NoError(t, json.Unmarshal(readBody(t, resp.Body), &out))
	return out
}

func withBearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

// registerDevice runs both handshake phases and returns the bearer token.
func registerDevice(t *testing.T, env *common.Env, uuid string) string {
	t.Helper()

	resp, err := env.HTTPPost("/api/token/begin", map[string]string{"uuid": uuid})
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
	pairing := decodeJSON(t, resp)["token"]
	require.NotEmpty(t, pairing)

	resp, err = env.HTTPPost("/api/token/begin", map[string]string{"uuid": uuid, "token": pairing})
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
	access := decodeJSON(t, resp)["accessToken"]
	require.NotEmpty(t, access)
	return access
}

// --- Pairing handshake ---

func TestHandshake_NewDevice(t *testing.T) {
	env := common.NewEnv(t)
	defer env.Cleanup()

	access := registerDevice(t, env, deviceUUID)

	resp, err := env.HTTPGet("/api/found-caches", withBearer(access))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 200, resp.StatusCode)
}

func TestHandshake_InvalidUUID(t *testing.T) {
	env := common.NewEnv(t)
	defer env.Cleanup()

	resp, err := env.HTTPPost("/api/token/begin", map[string]string{"uuid": "not-a-uuid"})
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 400, resp.StatusCode)
}

func TestHandshake_PairingTokenSingleUse(t *testing.T) {
	env := common.NewEnv(t)
	defer env.Cleanup()

	resp, err := env.HTTPPost("/api/token/begin", map[string]string{"uuid": deviceUUID})
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
	pairing := decodeJSON(t, resp)["token"]

	resp, err = env.HTTPPost("/api/token/begin", map[string]string{"uuid": deviceUUID, "token": pairing})
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, 200, resp.StatusCode)

	// replaying the consumed pairing token must fail
	resp, err = env.HTTPPost("/api/token/begin", map[string]string{"uuid": deviceUUID, "token": pairing})
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 400, resp.StatusCode)
}

func TestHandshake_MismatchConsumesPairing(t *testing.T) {
	env := common.NewEnv(t)
	defer env.Cleanup()

	resp, err := env.HTTPPost("/api/token/begin", map[string]string{"uuid": deviceUUID})
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
	pairing := decodeJSON(t, resp)["token"]

	resp, err = env.HTTPPost("/api/token/begin", map[string]string{"uuid": deviceUUID, "token": "wrong"})
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, 400, resp.StatusCode)

	// the real token was consumed by the failed attempt
	resp, err = env.HTTPPost("/api/token/begin", map[string]string{"uuid": deviceUUID, "token": pairing})
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 400, resp.StatusCode)
}

func TestHandshake_RateLimited(t *testing.T) {
	env := common.NewEnv(t)
	defer env.Cleanup()

	env.App.Config.Limits.BeginAttempts = 3
	for i := 0; i < 3; i++ {
		resp, err := env.HTTPPost("/api/token/begin", map[string]string{"uuid": deviceUUID})
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, 200, resp.StatusCode)
	}

	resp, err := env.HTTPPost("/api/token/begin", map[string]string{"uuid": deviceUUID})
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 429, resp.StatusCode)
}

// --- Backup and QR hand-off ---

func TestBackupToken_FullRoundTrip(t *testing.T) {
	env := common.NewEnv(t)
	defer env.Cleanup()

	access := registerDevice(t, env, deviceUUID)

	resp, err := env.HTTPPost("/api/token/backup", map[string]string{"uuid": deviceUUID}, withBearer(access))
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
	out := decodeJSON(t, resp)
	require.NotEmpty(t, out["token"])
	require.NotEmpty(t, out["name"], "backup response carries the display id as file name")

	// second device redeems the backup token
	resp, err = env.HTTPPost("/api/token/exchange", nil, withBearer(out["token"]))
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
	fresh := decodeJSON(t, resp)["accessToken"]
	require.NotEmpty(t, fresh)

	// both tokens resolve to the same identity
	respA, err := env.HTTPGet("/api/found-caches", withBearer(access))
	require.NoError(t, err)
	respA.Body.Close()
	respB, err := env.HTTPGet("/api/found-caches", withBearer(fresh))
	require.NoError(t, err)
	respB.Body.Close()
	assert.Equal(t, 200, respA.StatusCode)
	assert.Equal(t, 200, respB.StatusCode)

	// backup tokens are not revoked on use
	resp, err = env.HTTPPost("/api/token/exchange", nil, withBearer(out["token"]))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 200, resp.StatusCode)
}

func TestQRToken_ReturnsSVG(t *testing.T) {
	env := common.NewEnv(t)
	defer env.Cleanup()

	access := registerDevice(t, env, deviceUUID)

	resp, err := env.HTTPPost("/api/token/qr", map[string]string{"uuid": deviceUUID}, withBearer(access))
	require.NoError(t, err)
	require.Equal(t, 201, resp.StatusCode)
	svg := decodeJSON(t, resp)["token"]
	assert.Contains(t, svg, "<svg")
}

func TestExchange_RejectsGarbage(t *testing.T) {
	env := common.NewEnv(t)
	defer env.Cleanup()

	resp, err := env.HTTPPost("/api/token/exchange", nil, withBearer("garbage"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 401, resp.StatusCode)
}

func TestIssuance_RequiresBearer(t *testing.T) {
	env := common.NewEnv(t)
	defer env.Cleanup()

	for _, path := range []string{"/api/token/backup", "/api/token/qr"} {
		resp, err := env.HTTPPost(path, map[string]string{"uuid": deviceUUID})
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, 401, resp.StatusCode, path)
	}
}

// --- Legacy paths ---

func TestLegacyPaths(t *testing.T) {
	env := common.NewEnv(t)
	defer env.Cleanup()

	resp, err := env.HTTPPost("/api/get-token", map[string]string{"uuid": deviceUUID})
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
	pairing := decodeJSON(t, resp)["token"]

	resp, err = env.HTTPPost("/api/get-token", map[string]string{"uuid": deviceUUID, "token": pairing})
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 200, resp.StatusCode)
}
