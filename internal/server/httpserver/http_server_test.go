package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/confgate/internal/audit"
	"git.home.luguber.info/inful/confgate/internal/auth"
	"git.home.luguber.info/inful/confgate/internal/config"
	"git.home.luguber.info/inful/confgate/internal/deps"
	"git.home.luguber.info/inful/confgate/internal/drift"
	"git.home.luguber.info/inful/confgate/internal/gitrepo"
	"git.home.luguber.info/inful/confgate/internal/mutation"
	"git.home.luguber.info/inful/confgate/internal/promotion"
	"git.home.luguber.info/inful/confgate/internal/review"
	"git.home.luguber.info/inful/confgate/internal/rollback"
	"git.home.luguber.info/inful/confgate/internal/snapshot"
	"git.home.luguber.info/inful/confgate/internal/store"
)

type testEnv struct {
	api    *httptest.Server
	admin  *httptest.Server
	tokens map[string]string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	gw := gitrepo.NewGateway(t.TempDir(), nil)
	require.NoError(t, gw.Init(ctx))
	st, err := store.New(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	authSvc := auth.NewService(st, "test-secret", time.Hour)
	reader := snapshot.NewReader(gw)
	recorder := audit.NewRecorder(st)
	rb := rollback.NewEngine(gw)

	srv := New(config.Default(), Services{
		Auth:       authSvc,
		Reader:     reader,
		Changes:    review.NewChangeService(st, mutation.NewEngine(gw), reader, recorder),
		Promotions: review.NewPromotionService(st, promotion.NewEngine(gw), rb, recorder),
		Rollback:   rb,
		Analyzer:   drift.NewAnalyzer(gw),
		Registry:   deps.NewService(st, reader),
		Store:      st,
		Audit:      recorder,
	})

	env := &testEnv{
		api:    httptest.NewServer(srv.mchain(srv.apiMux())),
		admin:  httptest.NewServer(srv.adminMux()),
		tokens: map[string]string{},
	}
	t.Cleanup(env.api.Close)
	t.Cleanup(env.admin.Close)

	for user, role := range map[string]string{
		"alice": store.RoleEditor,
		"bob":   store.RoleEditor,
		"carol": store.RoleViewer,
	} {
		_, err := authSvc.CreateUser(ctx, user, "password-"+user, role)
		require.NoError(t, err)
		env.tokens[user] = env.login(t, user, "password-"+user)
	}
	return env
}

func (e *testEnv) login(t *testing.T, username, password string) string {
	t.Helper()
	body, status := e.do(t, "", "POST", "/auth/login", map[string]string{
		"username": username, "password": password,
	})
	require.Equal(t, http.StatusOK, status, "%s", body)
	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(body, &resp))
	return resp.Token
}

// do issues a request as the named user and returns body and status.
func (e *testEnv) do(t *testing.T, user, method, path string, payload any) ([]byte, int) {
	t.Helper()
	var body *bytes.Buffer
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewBuffer(data)
	} else {
		body = bytes.NewBuffer(nil)
	}
	req, err := http.NewRequest(method, e.api.URL+path, body)
	require.NoError(t, err)
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+e.tokens[user])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return buf.Bytes(), resp.StatusCode
}

func TestAuthRequired(t *testing.T) {
	e := newTestEnv(t)

	_, status := e.do(t, "", "GET", "/environments", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	body, status := e.do(t, "alice", "GET", "/environments", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `"staging"`)
}

func TestLoginRejectsBadPassword(t *testing.T) {
	e := newTestEnv(t)
	body, status := e.do(t, "", "POST", "/auth/login", map[string]string{
		"username": "alice", "password": "nope",
	})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Contains(t, string(body), "unauthenticated")
}

func TestChangeWorkflowOverHTTP(t *testing.T) {
	e := newTestEnv(t)

	body, status := e.do(t, "alice", "POST", "/changes", map[string]string{
		"env": "dev", "domain": "pricing", "key": "default",
		"operation": "create", "content": "rate: 0.1\n", "title": "add default rate",
	})
	require.Equal(t, http.StatusCreated, status, "%s", body)
	var cr struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(body, &cr))
	assert.Equal(t, "draft", cr.Status)

	_, status = e.do(t, "alice", "POST", "/changes/"+cr.ID+"/submit", nil)
	require.Equal(t, http.StatusOK, status)

	// Viewers cannot review.
	_, status = e.do(t, "carol", "POST", "/changes/"+cr.ID+"/approve", map[string]string{"comment": "ok"})
	assert.Equal(t, http.StatusForbidden, status)

	_, status = e.do(t, "bob", "POST", "/changes/"+cr.ID+"/approve", map[string]string{"comment": "ok"})
	require.Equal(t, http.StatusOK, status)
	body, status = e.do(t, "bob", "POST", "/changes/"+cr.ID+"/merge", nil)
	require.Equal(t, http.StatusOK, status, "%s", body)

	body, status = e.do(t, "carol", "GET", "/config/dev/pricing/default", nil)
	require.Equal(t, http.StatusOK, status)
	var cfg struct {
		Raw string `json:"raw"`
		Sha string `json:"sha"`
	}
	require.NoError(t, json.Unmarshal(body, &cfg))
	assert.Equal(t, "rate: 0.1\n", cfg.Raw)
	assert.NotEmpty(t, cfg.Sha)

	body, status = e.do(t, "carol", "GET", "/config/dev/pricing/default/history", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `"merge"`)
}

func TestValidateEndpoint(t *testing.T) {
	e := newTestEnv(t)

	body, status := e.do(t, "alice", "POST", "/config/validate", map[string]string{
		"content": "a: [1,\n",
	})
	require.Equal(t, http.StatusOK, status)
	var result struct {
		Valid bool   `json:"valid"`
		Error string `json:"error"`
		Line  int    `json:"line"`
	}
	require.NoError(t, json.Unmarshal(body, &result))
	assert.False(t, result.Valid)
	assert.NotEmpty(t, result.Error)
}

func TestUnknownEnvRejected(t *testing.T) {
	e := newTestEnv(t)
	body, status := e.do(t, "alice", "GET", "/config/qa", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, string(body), "invalid_input")
}

func TestDriftEndpoint(t *testing.T) {
	e := newTestEnv(t)
	body, status := e.do(t, "alice", "GET", "/drift", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `"synced_percent":100`)
}

func TestDependencyAndImpactEndpoints(t *testing.T) {
	e := newTestEnv(t)

	_, status := e.do(t, "alice", "POST", "/dependencies", map[string]string{
		"consumer": "checkout-svc", "env": "prod", "domain": "pricing", "key": "default",
	})
	require.Equal(t, http.StatusOK, status)

	body, status := e.do(t, "alice", "GET", "/impact/prod/pricing/default", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), "checkout-svc")
	assert.Contains(t, string(body), `"key_exists":false`)
}

func TestAuditTrailEndpoint(t *testing.T) {
	e := newTestEnv(t)

	_, status := e.do(t, "alice", "POST", "/auth/logout", nil)
	require.Equal(t, http.StatusOK, status)

	body, status := e.do(t, "alice", "GET", "/audit?actor=alice", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), "auth.logout")
	assert.Contains(t, string(body), "auth.login")
}

func TestHealthz(t *testing.T) {
	e := newTestEnv(t)
	resp, err := http.Get(e.admin.URL + "/healthz")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var health struct {
		Status  string `json:"status"`
		Version string `json:"version"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "dev", health.Version)
}
