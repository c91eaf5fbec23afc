package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"tessera.id/internal/auth"
	"tessera.id/internal/directory"
	"tessera.id/internal/ids"
	"tessera.id/internal/obs"
)

type plainHasher struct{}

func (plainHasher) Hash(pw string) (string, error) { return "plain:" + pw, nil }

func (plainHasher) Verify(hash, pw string) error {
	if hash != "plain:"+pw {
		return auth.ErrPasswordMismatch
	}
	return nil
}

// memStore is an in-memory directory store that counts calls per method.
type memStore struct {
	mu       sync.Mutex
	calls    map[string]int
	orgs     map[ids.ID]directory.Organization
	projects map[ids.ID]directory.Project
	apps     map[ids.ID]directory.Application
	scopes   map[ids.ID][]directory.Scope
	admins   map[string]directory.AdminUser
	methods  map[string]directory.LoginMethod
	accounts []directory.UserAccount
}

func newMemStore() *memStore {
	return &memStore{
		calls:    map[string]int{},
		orgs:     map[ids.ID]directory.Organization{},
		projects: map[ids.ID]directory.Project{},
		apps:     map[ids.ID]directory.Application{},
		scopes:   map[ids.ID][]directory.Scope{},
		admins:   map[string]directory.AdminUser{},
		methods:  map[string]directory.LoginMethod{},
	}
}

func (m *memStore) enter(op string) func() {
	m.mu.Lock()
	m.calls[op]++
	return m.mu.Unlock
}

func (m *memStore) count(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

func (m *memStore) total() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		n += c
	}
	return n
}

func (m *memStore) app(id ids.ID) directory.Application {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.apps[id]
}

func (m *memStore) scopeCount(appID ids.ID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.scopes[appID])
}

func (m *memStore) verify(identifier string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lm := m.methods[identifier]
	lm.Verified = true
	m.methods[identifier] = lm
}

func (m *memStore) CreateOrganization(_ context.Context, org directory.Organization) (directory.Organization, error) {
	defer m.enter("CreateOrganization")()
	m.orgs[org.ID] = org
	return org, nil
}

func (m *memStore) CreateProject(_ context.Context, p directory.Project) (directory.Project, error) {
	defer m.enter("CreateProject")()
	if _, ok := m.orgs[p.OrgID]; !ok {
		return directory.Project{}, directory.ErrInvalidReference
	}
	m.projects[p.ID] = p
	return p, nil
}

func (m *memStore) CreateApplication(_ context.Context, app directory.Application) (directory.Application, error) {
	defer m.enter("CreateApplication")()
	if _, ok := m.projects[app.ProjectID]; !ok {
		return directory.Application{}, directory.ErrInvalidReference
	}
	m.apps[app.ID] = app
	return app, nil
}

func (m *memStore) UpsertScopes(_ context.Context, appID ids.ID, in []directory.Scope) ([]directory.Scope, error) {
	defer m.enter("UpsertScopes")()
	if _, ok := m.apps[appID]; !ok {
		return nil, directory.ErrInvalidReference
	}
	existing := m.scopes[appID]
	out := make([]directory.Scope, 0, len(in))
next:
	for _, sc := range in {
		for i := range existing {
			if existing[i].Name == sc.Name {
				existing[i].Description = sc.Description
				out = append(out, existing[i])
				continue next
			}
		}
		existing = append(existing, sc)
		out = append(out, sc)
	}
	m.scopes[appID] = existing
	return out, nil
}

func (m *memStore) CreateAdminUser(_ context.Context, u directory.AdminUser) (directory.AdminUser, error) {
	defer m.enter("CreateAdminUser")()
	if _, ok := m.admins[u.Username]; ok {
		return directory.AdminUser{}, directory.ErrConflict
	}
	m.admins[u.Username] = u
	return u, nil
}

func (m *memStore) AdminUserByUsername(_ context.Context, username string) (directory.AdminUser, error) {
	defer m.enter("AdminUserByUsername")()
	u, ok := m.admins[username]
	if !ok {
		return directory.AdminUser{}, directory.ErrNotFound
	}
	return u, nil
}

func (m *memStore) RegisterIdentity(_ context.Context, reg directory.NewRegistration) (directory.Registration, error) {
	defer m.enter("RegisterIdentity")()
	projectID := ids.Nil
	for _, a := range m.apps {
		if a.ClientID == reg.ClientID {
			projectID = a.ProjectID
		}
	}
	if projectID.IsZero() {
		return directory.Registration{}, directory.ErrNotFound
	}
	if _, ok := m.methods[reg.Method.Identifier]; ok {
		return directory.Registration{}, directory.ErrConflict
	}
	reg.Account.ProjectID = projectID
	m.methods[reg.Method.Identifier] = reg.Method
	m.accounts = append(m.accounts, reg.Account)
	return directory.Registration{Identity: reg.Identity, Method: reg.Method, Account: reg.Account}, nil
}

func (m *memStore) PasswordLoginMethod(_ context.Context, identifier string) (directory.LoginMethod, error) {
	defer m.enter("PasswordLoginMethod")()
	lm, ok := m.methods[identifier]
	if !ok {
		return directory.LoginMethod{}, directory.ErrNotFound
	}
	return lm, nil
}

func (m *memStore) AccountForClient(_ context.Context, identityID, clientID ids.ID) (directory.UserAccount, error) {
	defer m.enter("AccountForClient")()
	for _, a := range m.apps {
		if a.ClientID != clientID {
			continue
		}
		for _, acc := range m.accounts {
			if acc.IdentityID == identityID && acc.ProjectID == a.ProjectID {
				return acc, nil
			}
		}
	}
	return directory.UserAccount{}, directory.ErrNotFound
}

func (m *memStore) VerifiedIdentifiers(_ context.Context, identityID ids.ID) ([]string, error) {
	defer m.enter("VerifiedIdentifiers")()
	var out []string
	for _, lm := range m.methods {
		if lm.IdentityID == identityID && lm.Verified {
			out = append(out, lm.Identifier)
		}
	}
	return out, nil
}

func (m *memStore) Accounts(_ context.Context, identityID ids.ID) ([]directory.UserAccount, error) {
	defer m.enter("Accounts")()
	var out []directory.UserAccount
	for _, acc := range m.accounts {
		if acc.IdentityID == identityID {
			out = append(out, acc)
		}
	}
	return out, nil
}

// syncBuffer lets handlers log while the test reads.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type failingProbe struct{ err error }

func (p failingProbe) Check(context.Context) error { return p.err }

type testEnv struct {
	t       *testing.T
	store   *memStore
	tokens  *auth.TokenService
	metrics *obs.Metrics
	logs    *syncBuffer
	api     *API
	srv     *httptest.Server
}

type envOption func(*Deps, *[]directory.IdentityOption)

func withRateLimit() envOption {
	return func(d *Deps, _ *[]directory.IdentityOption) { d.RateLimit = true }
}

func withAdminRegistration() envOption {
	return func(_ *Deps, opts *[]directory.IdentityOption) {
		*opts = append(*opts, directory.WithAdminRegistration(true))
	}
}

func withReady(r readinessChecker) envOption {
	return func(d *Deps, _ *[]directory.IdentityOption) { d.Ready = r }
}

var testTokenConfig = auth.TokenConfig{
	Admin: auth.KindConfig{Secret: []byte("admin-secret-for-tests"), TTL: 15 * time.Minute},
	User:  auth.KindConfig{Secret: []byte("user-secret-for-tests"), TTL: time.Hour},
}

func newTokenService(t *testing.T, now time.Time) *auth.TokenService {
	t.Helper()
	tokens, err := auth.NewTokenService(testTokenConfig,
		auth.WithClock(func() (time.Time, error) { return now, nil }))
	if err != nil {
		t.Fatalf("token service: %v", err)
	}
	return tokens
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	store := newMemStore()
	now := time.Now().UTC()
	tokens := newTokenService(t, now)
	metrics := obs.NewMetrics()
	logs := &syncBuffer{}
	logger := obs.NewLogger(logs, slog.LevelDebug)

	deps := Deps{Tokens: tokens, Metrics: metrics, Logger: logger, Version: "test"}
	var idOpts []directory.IdentityOption
	for _, opt := range opts {
		opt(&deps, &idOpts)
	}
	var err error
	deps.Tenants, err = directory.NewTenantService(store, plainHasher{})
	if err != nil {
		t.Fatalf("tenant service: %v", err)
	}
	deps.Identities, err = directory.NewIdentityService(store, plainHasher{}, idOpts...)
	if err != nil {
		t.Fatalf("identity service: %v", err)
	}

	api, err := New(deps)
	if err != nil {
		t.Fatalf("new api: %v", err)
	}
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)
	return &testEnv{t: t, store: store, tokens: tokens, metrics: metrics, logs: logs, api: api, srv: srv}
}

func (e *testEnv) token(subject string, kind auth.Kind) string {
	e.t.Helper()
	tok, err := e.tokens.Issue(subject, kind)
	if err != nil {
		e.t.Fatalf("issue %s token: %v", kind, err)
	}
	return tok.Value
}

func (e *testEnv) adminToken() string { return e.token(ids.New().String(), auth.KindAdmin) }

// expiredAdminToken is signed with the admin secret and already expired.
func (e *testEnv) expiredAdminToken() string {
	e.t.Helper()
	issuedAt := time.Now().UTC().Add(-testTokenConfig.Admin.TTL - 10*time.Second)
	tok, err := newTokenService(e.t, issuedAt).Issue(ids.New().String(), auth.KindAdmin)
	if err != nil {
		e.t.Fatalf("issue expired admin token: %v", err)
	}
	return tok.Value
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func (e *testEnv) do(method, path string, body any, headers map[string]string) *http.Response {
	e.t.Helper()
	var payload io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		payload = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			e.t.Fatalf("marshal body: %v", err)
		}
		payload = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, payload)
	if err != nil {
		e.t.Fatalf("new request: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := e.srv.Client().Do(req)
	if err != nil {
		e.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (e *testEnv) post(path string, body any, headers map[string]string) *http.Response {
	e.t.Helper()
	return e.do(http.MethodPost, path, body, headers)
}

func (e *testEnv) put(path string, body any, headers map[string]string) *http.Response {
	e.t.Helper()
	return e.do(http.MethodPut, path, body, headers)
}

func (e *testEnv) get(path string, headers map[string]string) *http.Response {
	e.t.Helper()
	return e.do(http.MethodGet, path, nil, headers)
}

func decodeResponse[T any](t *testing.T, resp *http.Response, wantStatus int) T {
	t.Helper()
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if resp.StatusCode != wantStatus {
		t.Fatalf("expected status %d, got %d: %s", wantStatus, resp.StatusCode, raw)
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("decode body %q: %v", raw, err)
	}
	return out
}

// provision creates an organization, project and application as an admin
// and returns the application.
func (e *testEnv) provision() directory.ApplicationCredentials {
	e.t.Helper()
	h := bearer(e.adminToken())
	org := decodeResponse[directory.Organization](e.t,
		e.post("/admin/organizations", map[string]any{"name": "Acme"}, h), http.StatusCreated)
	project := decodeResponse[directory.Project](e.t,
		e.post("/admin/projects", map[string]any{"org_id": org.ID, "name": "Storefront"}, h), http.StatusCreated)
	return decodeResponse[directory.ApplicationCredentials](e.t,
		e.post("/admin/applications", map[string]any{
			"project_id":    project.ID,
			"redirect_uris": []string{"https://shop.example.com/callback"},
		}, h), http.StatusCreated)
}

var errProbe = errors.New("database unreachable")
