package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/woozymasta/herald/internal/a2s"
	"github.com/woozymasta/herald/internal/config"
	"github.com/woozymasta/herald/internal/fake"
	"github.com/woozymasta/herald/internal/models"
	"github.com/woozymasta/herald/internal/poller"
	"github.com/woozymasta/herald/internal/storage"
	"github.com/woozymasta/herald/internal/targets"
)

const token = "secret"

type env struct {
	srv    *Server
	store  *storage.Repository
	poller *poller.Poller
	h      http.Handler
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Server.AuthToken = token
	cfg.Server.MaxBodySize = 1024
	cfg.Server.QueueSize = 8
	cfg.Server.Workers = 1
	cfg.RateLimit.HardLimitCount = 100
	cfg.RateLimit.HardLimitWin = time.Minute

	return cfg
}

func newEnv(t *testing.T, cfg *config.Config) *env {
	t.Helper()

	store, err := storage.New(filepath.Join(t.TempDir(), "herald.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	client := a2s.New(200 * time.Millisecond)
	p := poller.New(client, store, nil, poller.Options{Interval: time.Hour})
	srv := New(store, p, client, cfg)

	return &env{srv: srv, store: store, poller: p, h: srv.Run()}
}

func (e *env) do(t *testing.T, method, target, body string, auth bool) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if auth {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.h.ServeHTTP(rec, req)

	return rec
}

func startFake(t *testing.T, h fake.Handler) *fake.Responder {
	t.Helper()

	r, err := fake.Listen("127.0.0.1:0", h)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	return r
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestPublicEndpoints(t *testing.T) {
	e := newEnv(t, testConfig())

	rec := e.do(t, http.MethodGet, "/healthz", "", false)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = e.do(t, http.MethodGet, "/api/version", "", false)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Herald", decode[map[string]any](t, rec)["name"])
}

func TestAuthRequired(t *testing.T) {
	e := newEnv(t, testConfig())

	rec := e.do(t, http.MethodGet, "/api/servers", "", false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/servers", "", true)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestServerStatusEndpoints(t *testing.T) {
	e := newEnv(t, testConfig())
	key := targets.Target{Host: "10.0.0.1", Port: 27015}.Key()
	require.NoError(t, e.store.UpsertStatus(models.ServerStatus{
		Key: key, Name: "Main", Host: "10.0.0.1", Port: 27015,
		ServerName: "Herald", Players: 5, Bots: 7, LastChecked: time.Now(),
	}))

	rec := e.do(t, http.MethodGet, "/api/server?host=10.0.0.1&port=27015", "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[map[string]any](t, rec)
	assert.Equal(t, "Herald", got["server_name"])
	assert.EqualValues(t, 0, got["human_players"])

	rec = e.do(t, http.MethodGet, "/api/server?host=10.0.0.1", "", true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/servers", "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]map[string]any](t, rec), 1)

	rec = e.do(t, http.MethodDelete, "/api/server?host=10.0.0.1&port=27015", "", true)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/server?host=10.0.0.1&port=27015", "", true)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.do(t, http.MethodDelete, "/api/server?host=10.0.0.1&port=27015", "", true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServerEndpointsIgnoreHostCase(t *testing.T) {
	e := newEnv(t, testConfig())
	target := targets.Target{Name: "main", Host: "play.example.com", Port: 2302}
	e.poller.SetTargets([]targets.Target{target})
	require.NoError(t, e.store.UpsertStatus(models.ServerStatus{
		Key: target.Key(), Name: target.Name, Host: target.Host, Port: target.Port,
		ServerName: "Herald", LastChecked: time.Now(),
	}))

	rec := e.do(t, http.MethodGet, "/api/server?host=PLAY.Example.com&port=2302", "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Herald", decode[map[string]any](t, rec)["server_name"])

	rec = e.do(t, http.MethodDelete, "/api/server?host=PLAY.Example.com&port=2302", "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[map[string]any](t, rec)
	assert.EqualValues(t, 1, got["deleted"])
	assert.Equal(t, true, got["untracked"])

	status, err := e.store.GetStatus(target.Key())
	require.NoError(t, err)
	assert.Nil(t, status)
	assert.Empty(t, e.poller.Keys())
}

func TestDeleteUntracksTarget(t *testing.T) {
	e := newEnv(t, testConfig())
	target := targets.Target{Name: "x", Host: "10.0.0.5", Port: 2302}
	e.poller.SetTargets([]targets.Target{target})

	rec := e.do(t, http.MethodDelete, "/api/server?host=10.0.0.5&port=2302", "", true)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, e.poller.Keys())
}

func TestServerQuery(t *testing.T) {
	e := newEnv(t, testConfig())

	info := fake.RandomInfo()
	up := startFake(t, fake.Reply(fake.EncodeInfo(info)))
	silent := startFake(t, fake.Silent())
	odd := startFake(t, fake.Reply(fake.Packet(0x6D, []byte("x"))))

	rec := e.do(t, http.MethodGet, "/api/a2s?host=127.0.0.1&port="+strconv.Itoa(up.Port()), "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, info.Name, decode[map[string]any](t, rec)["name"])

	rec = e.do(t, http.MethodGet, "/api/a2s?host=127.0.0.1&port="+strconv.Itoa(silent.Port()), "", true)
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	assert.Equal(t, "timeout", decode[errorResponse](t, rec).Kind)

	rec = e.do(t, http.MethodGet, "/api/a2s?host=127.0.0.1&port="+strconv.Itoa(odd.Port()), "", true)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "unexpected_response", decode[errorResponse](t, rec).Kind)

	rec = e.do(t, http.MethodGet, "/api/a2s?host=127.0.0.1&port=99999", "", true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.HardLimitCount = 1
	e := newEnv(t, cfg)

	rec := e.do(t, http.MethodGet, "/api/a2s?host=127.0.0.1", "", true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/a2s?host=127.0.0.1", "", true)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestPollTrigger(t *testing.T) {
	e := newEnv(t, testConfig())

	rec := e.do(t, http.MethodPost, "/api/poll", "", true)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestRegisterTarget(t *testing.T) {
	e := newEnv(t, testConfig())
	e.srv.StartWorkers()

	up := startFake(t, fake.DevHandler(fake.RandomInfo(), []byte{1, 2, 3, 4}))
	down := startFake(t, fake.Silent())

	body := `{"name":"Main","host":"127.0.0.1","port":` + strconv.Itoa(up.Port()) + `}`
	rec := e.do(t, http.MethodPost, "/api/targets", body, true)
	require.Equal(t, http.StatusAccepted, rec.Code)

	body = `{"host":"127.0.0.1","port":` + strconv.Itoa(down.Port()) + `}`
	rec = e.do(t, http.MethodPost, "/api/targets", body, true)
	require.Equal(t, http.StatusAccepted, rec.Code)

	e.srv.StopWorkers()

	list := e.poller.Targets()
	require.Len(t, list, 1)
	assert.Equal(t, "Main", list[0].Name)

	status, err := e.store.GetStatus(targets.Target{Host: "127.0.0.1", Port: down.Port()}.Key())
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.False(t, status.Online)
}

func TestRegisterTargetInvalid(t *testing.T) {
	e := newEnv(t, testConfig())

	rec := e.do(t, http.MethodPost, "/api/targets", `{"host":"127.0.0.1","port":0}`, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/targets", `not json`, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRegisterTargetQueueFull(t *testing.T) {
	cfg := testConfig()
	cfg.Server.QueueSize = 1
	e := newEnv(t, cfg)

	body := `{"host":"127.0.0.1","port":27015}`
	rec := e.do(t, http.MethodPost, "/api/targets", body, true)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/targets", body, true)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestGetRealIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:5555"
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")

	assert.Equal(t, "192.0.2.1", GetRealIP(req, false))
	assert.Equal(t, "203.0.113.7", GetRealIP(req, true))

	req.Header.Set("CF-Connecting-IP", "198.51.100.2")
	assert.Equal(t, "198.51.100.2", GetRealIP(req, true))
}

func TestStopWorkersCancelsContext(t *testing.T) {
	e := newEnv(t, testConfig())
	e.srv.StartWorkers()
	e.srv.StopWorkers()

	assert.ErrorIs(t, e.srv.ctx.Err(), context.Canceled)
}
