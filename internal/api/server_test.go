//nolint:errcheck // Test file - unchecked errors are acceptable
package api_test

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fzdarsky/realmgate/internal/account"
	"github.com/fzdarsky/realmgate/internal/api"
	"github.com/fzdarsky/realmgate/internal/logging"
	"github.com/fzdarsky/realmgate/internal/metrics"
	"github.com/fzdarsky/realmgate/internal/server"
	tlspkg "github.com/fzdarsky/realmgate/internal/tls"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type unhealthyStore struct{ *account.MemoryStore }

func (unhealthyStore) Healthcheck(context.Context) error { return errors.New("connection refused") }
func (unhealthyStore) Realms(context.Context) ([]account.Realm, error) {
	return nil, errors.New("connection refused")
}

type fixedSessions []server.SessionInfo

func (f fixedSessions) Snapshot() []server.SessionInfo { return f }

func newTestServer(t *testing.T, token string) (*api.Server, *account.MemoryStore) {
	t.Helper()

	store := account.NewMemoryStore()
	_, err := store.AddRealm(context.Background(), &account.Realm{Name: "Alpha", Address: "203.0.113.7", Port: 8085})
	require.NoError(t, err)

	m := metrics.New(nil)
	m.ConnectionOpened()

	sessions := fixedSessions{{
		ID:          "3f1c",
		RemoteAddr:  "198.51.100.4:51000",
		Username:    "ALICE",
		Status:      "Authed",
		ConnectedAt: time.Unix(1700000000, 0).UTC(),
	}}

	srv := api.New(api.Config{Address: "127.0.0.1:0", Token: token}, api.Dependencies{
		Store:    store,
		Realms:   store,
		Sessions: sessions,
		Metrics:  m,
	}, logging.Discard())
	return srv, store
}

func get(t *testing.T, h http.Handler, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestServer_Healthz(t *testing.T) {
	srv, _ := newTestServer(t, "")

	rr := get(t, srv.Handler(), "/healthz", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestServer_HealthzUnavailable(t *testing.T) {
	store := unhealthyStore{account.NewMemoryStore()}
	srv := api.New(api.Config{}, api.Dependencies{
		Store:    store,
		Realms:   store,
		Sessions: fixedSessions{},
	}, logging.Discard())

	rr := get(t, srv.Handler(), "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), "connection refused")

	rr = get(t, srv.Handler(), "/realms", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestServer_Metrics(t *testing.T) {
	srv, _ := newTestServer(t, "")

	rr := get(t, srv.Handler(), "/metrics", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "realmgate_connections_total 1")
}

func TestServer_Realms(t *testing.T) {
	srv, _ := newTestServer(t, "")

	rr := get(t, srv.Handler(), "/realms", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var realms []account.Realm
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &realms))
	require.Len(t, realms, 1)
	assert.Equal(t, "Alpha", realms[0].Name)
	assert.Equal(t, "203.0.113.7", realms[0].Address)
	assert.Equal(t, uint16(8085), realms[0].Port)
}

func TestServer_Sessions(t *testing.T) {
	srv, _ := newTestServer(t, "")

	rr := get(t, srv.Handler(), "/sessions", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Count    int                  `json:"count"`
		Sessions []server.SessionInfo `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
	assert.Equal(t, "ALICE", body.Sessions[0].Username)
	assert.Equal(t, "Authed", body.Sessions[0].Status)
}

func TestServer_TokenProtectsListings(t *testing.T) {
	srv, _ := newTestServer(t, "ops-token")

	assert.Equal(t, http.StatusUnauthorized, get(t, srv.Handler(), "/realms", "").Code)
	assert.Equal(t, http.StatusUnauthorized, get(t, srv.Handler(), "/sessions", "wrong").Code)
	assert.Equal(t, http.StatusOK, get(t, srv.Handler(), "/sessions", "ops-token").Code)

	// Health checks and scrapes stay open.
	assert.Equal(t, http.StatusOK, get(t, srv.Handler(), "/healthz", "").Code)
	assert.Equal(t, http.StatusOK, get(t, srv.Handler(), "/metrics", "").Code)
}

func TestServer_MethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t, "")

	req := httptest.NewRequest(http.MethodPost, "/realms", nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestServer_ServeAndShutdown(t *testing.T) {
	srv, _ := newTestServer(t, "")

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, listener) }()

	resp, err := http.Get("http://" + listener.Addr().String() + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "ok")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop after context cancellation")
	}
}

func TestServer_ServeTLS(t *testing.T) {
	dir := t.TempDir()
	certPath, keyPath := filepath.Join(dir, "ops.crt"), filepath.Join(dir, "ops.key")
	require.NoError(t, tlspkg.GenerateSelfSignedCert(certPath, keyPath, time.Hour))
	tlsConfig, err := tlspkg.NewServerConfig(certPath, keyPath)
	require.NoError(t, err)

	srv := api.New(api.Config{TLS: tlsConfig}, api.Dependencies{
		Store:    account.NewMemoryStore(),
		Realms:   account.NewMemoryStore(),
		Sessions: fixedSessions{},
		Metrics:  metrics.New(nil),
	}, logging.Discard())

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = srv.Serve(ctx, listener) }()

	pool := x509.NewCertPool()
	pemData, err := os.ReadFile(certPath)
	require.NoError(t, err)
	require.True(t, pool.AppendCertsFromPEM(pemData))
	client := &http.Client{
		Transport: &http.Transport{TLSClientConfig: &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}},
		Timeout:   5 * time.Second,
	}

	resp, err := client.Get("https://" + listener.Addr().String() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Cleartext requests never reach the handlers.
	plain, err := (&http.Client{Timeout: 5 * time.Second}).Get("http://" + listener.Addr().String() + "/healthz")
	if err == nil {
		plain.Body.Close()
		assert.Equal(t, http.StatusBadRequest, plain.StatusCode)
	}

	// TLS 1.1 is below the minimum version.
	legacy := &http.Client{
		Transport: &http.Transport{TLSClientConfig: &tls.Config{RootCAs: pool, MaxVersion: tls.VersionTLS11}}, //nolint:gosec // exercising the version floor
		Timeout:   5 * time.Second,
	}
	_, err = legacy.Get("https://" + listener.Addr().String() + "/healthz")
	assert.Error(t, err)
}
