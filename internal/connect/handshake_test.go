package connect

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/agentpi/agentpi-go/internal/issuer"
	"github.com/agentpi/agentpi-go/internal/keys"
	"github.com/agentpi/agentpi-go/internal/protocol"
	"github.com/agentpi/agentpi-go/internal/store"
	"github.com/agentpi/agentpi-go/internal/types"
	"github.com/agentpi/agentpi-go/internal/verify"
)

const (
	hsIssuer = "https://issuer.test"
	hsToolID = "tool_example"
)

type fixture struct {
	h          *Handshake
	iss        *issuer.Issuer
	provisions int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	km, err := keys.Open(t.TempDir())
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	doc, err := km.JWKS()
	if err != nil {
		t.Fatalf("jwks: %v", err)
	}
	jwksSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(doc)
	}))
	t.Cleanup(jwksSrv.Close)

	f := &fixture{
		iss: issuer.New(issuer.Config{
			Issuer:   hsIssuer,
			ToolID:   hsToolID,
			AgentKey: "agentpi_dev_key_12345",
		}, km),
	}

	provision := func(ctx context.Context, pc types.ProvisionContext) (*types.ProvisionResult, error) {
		f.provisions++
		return &types.ProvisionResult{
			WorkspaceID: "ws_test",
			AgentID:     "ta_test",
			APIKey:      "tk_live_deadbeef_secret",
		}, nil
	}

	f.h = NewHandshake(Config{
		ToolID:    hsToolID,
		Issuer:    hsIssuer,
		JWKSURL:   jwksSrv.URL,
		PlanID:    "free",
		MaxScopes: []string{"read", "deploy", "write"},
		MaxLimits: types.Limits{RPM: 120, DailyQuota: 1000, Concurrency: 5},
	}, verify.New(), store.NewMemoryJtiStore(), store.NewMemoryIdempotencyStore(), provision)

	return f
}

func grantRequest() types.ConnectGrantRequest {
	return types.ConnectGrantRequest{
		ToolID:          hsToolID,
		RequestedScopes: []string{"read", "deploy"},
		RequestedLimits: types.Limits{RPM: 60, DailyQuota: 500, Concurrency: 1},
		Workspace:       types.WorkspaceRef{Name: "Demo Workspace"},
		Nonce:           "nonce-1",
	}
}

func (f *fixture) grant(t *testing.T, req types.ConnectGrantRequest) string {
	t.Helper()
	resp, err := f.iss.Issue(req)
	if err != nil {
		t.Fatalf("issue grant: %v", err)
	}
	return resp.ConnectGrant
}

func (f *fixture) connect(grant, idemKey string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodPost, types.ConnectEndpoint, nil)
	if grant != "" {
		r.Header.Set("Authorization", "Bearer "+grant)
	}
	if idemKey != "" {
		r.Header.Set(types.IdempotencyHeader, idemKey)
	}
	w := httptest.NewRecorder()
	f.h.ServeHTTP(w, r)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) protocol.BodyError {
	t.Helper()
	var body protocol.Body
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v (%s)", err, w.Body.String())
	}
	return body.Error
}

func TestHandshake_MissingBearer(t *testing.T) {
	f := newFixture(t)
	w := f.connect("", "key-1")
	if w.Code != 401 {
		t.Fatalf("status = %d", w.Code)
	}
	if e := decodeError(t, w); e.Code != protocol.CodeUnauthorized {
		t.Fatalf("code = %s", e.Code)
	}
}

func TestHandshake_MissingIdempotencyKey(t *testing.T) {
	f := newFixture(t)
	w := f.connect(f.grant(t, grantRequest()), "")
	if w.Code != 400 {
		t.Fatalf("status = %d", w.Code)
	}
	if e := decodeError(t, w); e.Code != protocol.CodeMissingIdempotencyKey {
		t.Fatalf("code = %s", e.Code)
	}
}

func TestHandshake_HappyPath(t *testing.T) {
	f := newFixture(t)
	w := f.connect(f.grant(t, grantRequest()), "key-1")
	if w.Code != 200 {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	var res types.ConnectResult
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if res.Status != "active" {
		t.Fatalf("status = %s", res.Status)
	}
	if res.ToolWorkspaceID != "ws_test" || res.ToolAgentID != "ta_test" {
		t.Fatalf("ids = %s / %s", res.ToolWorkspaceID, res.ToolAgentID)
	}
	if res.Credentials.Type != "api_key" || res.Credentials.APIKey == "" {
		t.Fatalf("credentials = %+v", res.Credentials)
	}
	if res.AppliedPlanID != "free" {
		t.Fatalf("plan = %s", res.AppliedPlanID)
	}
	want := types.Limits{RPM: 60, DailyQuota: 500, Concurrency: 1}
	if res.AppliedLimits != want {
		t.Fatalf("limits = %+v", res.AppliedLimits)
	}
	if f.provisions != 1 {
		t.Fatalf("provisions = %d", f.provisions)
	}
}

func TestHandshake_LimitsClamped(t *testing.T) {
	f := newFixture(t)
	req := grantRequest()
	req.RequestedLimits = types.Limits{RPM: 9999, DailyQuota: 9999, Concurrency: 99}
	w := f.connect(f.grant(t, req), "key-1")
	if w.Code != 200 {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var res types.ConnectResult
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	want := types.Limits{RPM: 120, DailyQuota: 1000, Concurrency: 5}
	if res.AppliedLimits != want {
		t.Fatalf("limits = %+v", res.AppliedLimits)
	}
}

func TestHandshake_ScopesRejected(t *testing.T) {
	f := newFixture(t)
	req := grantRequest()
	req.RequestedScopes = []string{"read", "admin"}
	w := f.connect(f.grant(t, req), "key-1")
	if w.Code != 403 {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	e := decodeError(t, w)
	if e.Code != protocol.CodeScopesNotAllowed {
		t.Fatalf("code = %s", e.Code)
	}
	if f.provisions != 0 {
		t.Fatalf("provision ran despite rejection")
	}
}

func TestHandshake_CachedReplaySameInputs(t *testing.T) {
	f := newFixture(t)

	first := f.connect(f.grant(t, grantRequest()), "key-1")
	if first.Code != 200 {
		t.Fatalf("first status = %d", first.Code)
	}

	// a fresh grant over identical inputs with the same key hits the
	// cache and must return the committed bytes verbatim
	second := f.connect(f.grant(t, grantRequest()), "key-1")
	if second.Code != 200 {
		t.Fatalf("second status = %d: %s", second.Code, second.Body.String())
	}
	if first.Body.String() != second.Body.String() {
		t.Fatalf("cached replay differs:\n%s\n%s", first.Body.String(), second.Body.String())
	}
	if f.provisions != 1 {
		t.Fatalf("provisions = %d, want 1", f.provisions)
	}
}

func TestHandshake_IdempotencyConflict(t *testing.T) {
	f := newFixture(t)

	if w := f.connect(f.grant(t, grantRequest()), "key-1"); w.Code != 200 {
		t.Fatalf("seed status = %d", w.Code)
	}

	req := grantRequest()
	req.Nonce = "nonce-2"
	w := f.connect(f.grant(t, req), "key-1")
	if w.Code != 409 {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if e := decodeError(t, w); e.Code != protocol.CodeIdempotencyConflict {
		t.Fatalf("code = %s", e.Code)
	}
}

func TestHandshake_GrantReplayRejected(t *testing.T) {
	f := newFixture(t)
	grant := f.grant(t, grantRequest())

	if w := f.connect(grant, "key-1"); w.Code != 200 {
		t.Fatalf("seed status = %d", w.Code)
	}

	// same grant, different key: the idempotency cache misses and the
	// jti admission catches the reuse
	w := f.connect(grant, "key-2")
	if w.Code != 401 {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	e := decodeError(t, w)
	if e.Code != protocol.CodeInvalidGrant || !strings.Contains(e.Message, "replay") {
		t.Fatalf("error = %+v", e)
	}
}

func TestHandshake_ProvisionFailure(t *testing.T) {
	f := newFixture(t)
	f.h.provision = func(ctx context.Context, pc types.ProvisionContext) (*types.ProvisionResult, error) {
		return nil, errors.New("downstream exploded")
	}

	w := f.connect(f.grant(t, grantRequest()), "key-1")
	if w.Code != 500 {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	e := decodeError(t, w)
	if e.Code != protocol.CodeInternal {
		t.Fatalf("code = %s", e.Code)
	}
	if strings.Contains(e.Message, "exploded") {
		t.Fatal("internal error detail leaked to the wire")
	}
}

func TestHandshake_IdempotencyEntryExpiry(t *testing.T) {
	f := newFixture(t)
	// commit entries already expired so the second request misses the
	// cache and runs the full pipeline again
	f.h.cfg.IdempotencyTTL = -time.Second

	if w := f.connect(f.grant(t, grantRequest()), "key-1"); w.Code != 200 {
		t.Fatalf("seed status = %d", w.Code)
	}

	w := f.connect(f.grant(t, grantRequest()), "key-1")
	if w.Code != 200 {
		t.Fatalf("post-expiry status = %d: %s", w.Code, w.Body.String())
	}
	if f.provisions != 2 {
		t.Fatalf("provisions = %d, want 2", f.provisions)
	}
}
