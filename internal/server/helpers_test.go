package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/karibu-labs/darasa/internal/config"
	"github.com/karibu-labs/darasa/pkg/authz"
	"github.com/karibu-labs/darasa/pkg/uuidv7"
)

const (
	testOrgHost  = "one.darasa.test"
	testOrgBHost = "two.darasa.test"
)

type testEnv struct {
	handler    http.Handler
	stores     *Stores
	sessions   *memorySessionStore
	principals *memoryPrincipalStore

	orgID  string
	orgBID string
}

type stubIdentityProvider struct {
	identity authenticatedIdentity
	err      error
}

func (p *stubIdentityProvider) AuthenticatePassword(context.Context, string, string) (authenticatedIdentity, error) {
	if p.err != nil {
		return authenticatedIdentity{}, p.err
	}
	return p.identity, nil
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithProvider(t, &stubIdentityProvider{})
}

func newTestEnvWithProvider(t *testing.T, provider identityProvider) *testEnv {
	t.Helper()

	modelPath, err := defaultConfigPath("config/access/model.conf")
	if err != nil {
		t.Fatalf("model path: %v", err)
	}
	az, err := authz.NewAuthorizer(modelPath, authz.ModeEnforce)
	if err != nil {
		t.Fatalf("authorizer: %v", err)
	}

	env := &testEnv{
		stores:     NewMemoryStores(),
		sessions:   newMemorySessionStore(),
		principals: newMemoryPrincipalStore(),
		orgID:      mustUUID(t),
		orgBID:     mustUUID(t),
	}

	orgs := env.stores.Orgs.(*memoryOrgStore)
	orgs.putOrg(OrgRecord{ID: env.orgID, Name: "Mount Kenya Primary", Hostname: testOrgHost, IsActive: true, CreatedAt: time.Now().UTC()})
	orgs.putOrg(OrgRecord{ID: env.orgBID, Name: "Lakeside Academy", Hostname: testOrgBHost, IsActive: true, CreatedAt: time.Now().UTC()})

	resolver := newStaticOrgResolver(map[string]Org{
		testOrgHost:  {ID: env.orgID, Hostname: testOrgHost, Name: "Mount Kenya Primary"},
		testOrgBHost: {ID: env.orgBID, Hostname: testOrgBHost, Name: "Lakeside Academy"},
	})

	cfg := &config.Config{Env: "dev", HTTPAddr: ":0", SessionTTLHours: 336}
	h, err := NewHandlerWithOptions(HandlerOptions{
		Config:           cfg,
		Stores:           env.stores,
		Sessions:         env.sessions,
		Principals:       env.principals,
		IdentityProvider: provider,
		OrgResolver:      resolver,
		Authorizer:       az,
	})
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	env.handler = h
	return env
}

// seedSession creates an active principal with the given role and org and
// returns a live session id for it.
func (env *testEnv) seedSession(t *testing.T, role authz.Role, orgID string) (string, Principal) {
	t.Helper()
	p := Principal{
		ID:     mustUUID(t),
		UserID: mustUUID(t),
		OrgID:  orgID,
		Role:   role,
		Email:  string(role) + "@darasa.test",
		Status: "active",
	}
	env.principals.put(p)
	sid, err := env.sessions.Create(context.Background(), p.ID, time.Now().Add(time.Hour), "", "")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return sid, p
}

func (env *testEnv) request(t *testing.T, method, path string, body any, sid string) *httptest.ResponseRecorder {
	t.Helper()
	return env.requestWithHost(t, method, path, body, sid, testOrgHost)
}

func (env *testEnv) requestWithHost(t *testing.T, method, path string, body any, sid string, host string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Host = host
	if sid != "" {
		req.AddCookie(&http.Cookie{Name: "sid", Value: sid})
	}
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return m
}

func mustUUID(t *testing.T) string {
	t.Helper()
	id, err := uuidv7.NewString()
	if err != nil {
		t.Fatalf("uuid: %v", err)
	}
	return id
}
