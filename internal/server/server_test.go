package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"safeline/internal/config"
	"safeline/internal/db"
	"safeline/internal/domain"
	"safeline/internal/eightd"
	"safeline/internal/migrate"
	"safeline/internal/permit"
)

const testJWTSecret = "server-test-secret"

type testServer struct {
	URL     string
	client  *http.Client
	permits permit.Engine
	close   func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T, auth AuthConfig) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default()
	ed := eightd.New(conn, cfg)
	pe := permit.New(conn, cfg)
	seed := []struct{ id, org, grade string }{
		{"creator", "contractor", "C"},
		{"verifier", "epc", "C"},
		{"approver", "client", "C"},
		{"rival", "client", "C"},
		{"worker", "contractor", "C"},
		{"champ", "epc", "B"},
		{"reporter", "contractor", "C"},
	}
	for _, u := range seed {
		err := ed.Repo.InsertUser(context.Background(), domain.User{
			ID: u.id, Name: u.id, OrgType: u.org, Grade: u.grade, IsActive: true,
			CreatedAt: time.Now().UTC().Format(time.RFC3339),
		})
		if err != nil {
			t.Fatalf("seed user %s: %v", u.id, err)
		}
	}
	handler, err := New(Config{
		DB:       conn,
		EightD:   ed,
		Permits:  pe,
		Cfg:      cfg,
		BasePath: "/v0",
		Auth:     auth,
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:     "http://" + ln.Addr().String(),
		client:  &http.Client{},
		permits: pe,
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func legacyAuth() AuthConfig {
	return AuthConfig{JWTSecret: testJWTSecret, AllowLegacyUserHeader: true}
}

func asUser(id string) map[string]string {
	return map[string]string{"X-User-Id": id}
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func decodeEnvelope(t *testing.T, data []byte) apiError {
	t.Helper()
	var e apiError
	if err := json.Unmarshal(data, &e); err != nil {
		t.Fatalf("unmarshal error envelope: %v (%s)", err, string(data))
	}
	return e
}

func TestHealthSkipsAuth(t *testing.T) {
	srv, cleanup := newTestServer(t, legacyAuth())
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/permits", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without credentials, got %d: %s", res.StatusCode, string(data))
	}
	env := decodeEnvelope(t, data)
	if env.Code != "unauthorized" {
		t.Fatalf("expected code unauthorized, got %q", env.Code)
	}
	if env.Detail != "authentication required" {
		t.Fatalf("unexpected detail %q", env.Detail)
	}
}

func TestLegacyHeaderDisabled(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{JWTSecret: testJWTSecret})
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/permits", nil, asUser("creator"))
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 with legacy header disabled, got %d: %s", res.StatusCode, string(data))
	}
}

func TestJWTAndAPIKeyAuth(t *testing.T) {
	srv, cleanup := newTestServer(t, legacyAuth())
	defer cleanup()
	client := srv.Client()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "creator"})
	signed, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{
		"Authorization": "Bearer " + signed,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me via jwt status %d: %s", res.StatusCode, string(data))
	}
	var me MeResponse
	if err := json.Unmarshal(data, &me); err != nil {
		t.Fatalf("unmarshal me: %v", err)
	}
	if me.UserID != "creator" || me.Source != "jwt" {
		t.Fatalf("unexpected principal %+v", me)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{
		"Authorization": "Bearer not-a-token",
	})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/apikeys", map[string]any{
		"name": "test key",
	}, asUser("creator"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create api key status %d: %s", res.StatusCode, string(data))
	}
	var created APIKeyCreatedResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal api key: %v", err)
	}
	if created.Key == "" {
		t.Fatalf("raw key missing from create response")
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{
		"X-Api-Key": created.Key,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me via api key status %d: %s", res.StatusCode, string(data))
	}
	me = MeResponse{}
	_ = json.Unmarshal(data, &me)
	if me.UserID != "creator" || me.Source != "api_key" {
		t.Fatalf("unexpected principal %+v", me)
	}
}

func TestPermitLifecycleOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t, legacyAuth())
	defer cleanup()
	client := srv.Client()

	start := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/permits", map[string]any{
		"title":         "Hot work on tank 7",
		"planned_start": start,
		"workers":       []string{"worker"},
	}, asUser("creator"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create permit status %d: %s", res.StatusCode, string(data))
	}
	var p domain.Permit
	if err := json.Unmarshal(data, &p); err != nil {
		t.Fatalf("unmarshal permit: %v", err)
	}
	if p.Status != "draft" || !strings.HasPrefix(p.PermitNumber, "PTW-") {
		t.Fatalf("unexpected draft %+v", p)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/permits/"+p.ID+"/submit", nil, asUser("creator"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("submit status %d: %s", res.StatusCode, string(data))
	}

	// A client grade C may approve a contractor permit but never verify one.
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/permits/"+p.ID+"/verify", map[string]any{
		"approve": true,
	}, asUser("approver"))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for ineligible verifier, got %d: %s", res.StatusCode, string(data))
	}
	env := decodeEnvelope(t, data)
	if env.Code != "forbidden" || env.Msg != "permission denied" {
		t.Fatalf("unexpected envelope %+v", env)
	}
	if env.Detail == "" {
		t.Fatalf("403 envelope should carry a specific detail")
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/permits/"+p.ID+"/verify", map[string]any{
		"approve": true,
	}, asUser("verifier"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("verify status %d: %s", res.StatusCode, string(data))
	}
	_ = json.Unmarshal(data, &p)
	if p.Status != "pending_approval" || p.VerifiedBy == nil || *p.VerifiedBy != "verifier" {
		t.Fatalf("unexpected permit after verify %+v", p)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/permits/"+p.ID+"/approve", map[string]any{}, asUser("approver"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("approve status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/permits/"+p.ID+"/start", nil, asUser("worker"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("start status %d: %s", res.StatusCode, string(data))
	}
	_ = json.Unmarshal(data, &p)
	if p.Status != "active" || p.ActualStart == nil {
		t.Fatalf("unexpected permit after start %+v", p)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/permits/"+p.ID, nil, asUser("creator"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get permit status %d: %s", res.StatusCode, string(data))
	}
	var detail PermitDetailResponse
	if err := json.Unmarshal(data, &detail); err != nil {
		t.Fatalf("unmarshal detail: %v", err)
	}
	wantActions := []string{"created", "submitted", "verified", "approved", "work_started"}
	if len(detail.Audit) != len(wantActions) {
		t.Fatalf("audit length %d, want %d", len(detail.Audit), len(wantActions))
	}
	for i, want := range wantActions {
		if detail.Audit[i].Action != want {
			t.Fatalf("audit[%d] = %s, want %s", i, detail.Audit[i].Action, want)
		}
	}
}

func TestPermitActionsEligibility(t *testing.T) {
	srv, cleanup := newTestServer(t, legacyAuth())
	defer cleanup()
	client := srv.Client()

	start := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	_, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/permits", map[string]any{
		"title":         "Scaffold inspection",
		"planned_start": start,
	}, asUser("creator"))
	var p domain.Permit
	_ = json.Unmarshal(data, &p)
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/permits/"+p.ID+"/submit", nil, asUser("creator"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("submit status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/permits/"+p.ID+"/actions", nil, asUser("verifier"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("actions status %d: %s", res.StatusCode, string(data))
	}
	var actions PermitActionsResponse
	_ = json.Unmarshal(data, &actions)
	if !actions.CanVerify || actions.CanApprove {
		t.Fatalf("verifier eligibility %+v", actions)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/permits/"+p.ID+"/actions", nil, asUser("approver"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("actions status %d: %s", res.StatusCode, string(data))
	}
	_ = json.Unmarshal(data, &actions)
	// Approval only opens once verification has happened.
	if actions.CanVerify || actions.CanApprove {
		t.Fatalf("approver eligibility before verification %+v", actions)
	}
}

func TestValidationEnvelope(t *testing.T) {
	srv, cleanup := newTestServer(t, legacyAuth())
	defer cleanup()
	client := srv.Client()

	start := time.Now().Add(2 * time.Hour).UTC()
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/permits", map[string]any{
		"title":         "Backwards window",
		"planned_start": start.Format(time.RFC3339),
		"planned_end":   start.Add(-time.Hour).Format(time.RFC3339),
	}, asUser("creator"))
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", res.StatusCode, string(data))
	}
	env := decodeEnvelope(t, data)
	if env.Code != "validation_failed" {
		t.Fatalf("expected code validation_failed, got %q", env.Code)
	}
	if env.Msg != "request validation failed" {
		t.Fatalf("unexpected generic message %q", env.Msg)
	}
	if !strings.Contains(env.Detail, "planned_end") {
		t.Fatalf("detail should name the bad field, got %q", env.Detail)
	}
}

func TestApprovalConflictEnvelope(t *testing.T) {
	srv, cleanup := newTestServer(t, legacyAuth())
	defer cleanup()
	client := srv.Client()
	ctx := context.Background()

	start := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	_, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/permits", map[string]any{
		"title":         "Confined space entry",
		"planned_start": start,
	}, asUser("creator"))
	var p domain.Permit
	_ = json.Unmarshal(data, &p)
	doJSON(t, client, http.MethodPost, srv.URL+"/v0/permits/"+p.ID+"/submit", nil, asUser("creator"))
	doJSON(t, client, http.MethodPost, srv.URL+"/v0/permits/"+p.ID+"/verify", map[string]any{"approve": true}, asUser("verifier"))
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/permits/"+p.ID+"/approve", map[string]any{}, asUser("approver"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("approve status %d: %s", res.StatusCode, string(data))
	}

	// Emulate the lost-update interleaving: the status slips back to
	// pending_approval while approved_by stays bound, so the second
	// approver loses the guarded write.
	tx, err := srv.permits.DB.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}
	ts := time.Now().UTC().Format(time.RFC3339)
	if err := srv.permits.Repo.UpdatePermitStatus(ctx, tx, p.ID, "approved", "pending_approval", ts); err != nil {
		t.Fatalf("reset status: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/permits/"+p.ID+"/approve", map[string]any{}, asUser("rival"))
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", res.StatusCode, string(data))
	}
	env := decodeEnvelope(t, data)
	if env.Code != "conflict" || env.Msg != "conflicting update" {
		t.Fatalf("unexpected envelope %+v", env)
	}
	if !strings.Contains(env.Detail, "approver") {
		t.Fatalf("conflict detail should name the winning approver, got %q", env.Detail)
	}
}

func TestEightDOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t, legacyAuth())
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/incidents", map[string]any{
		"title":    "Dropped load near gate 3",
		"severity": "high",
	}, asUser("reporter"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("report incident status %d: %s", res.StatusCode, string(data))
	}
	var in domain.Incident
	_ = json.Unmarshal(data, &in)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/incidents/"+in.ID+"/assign", map[string]any{
		"user_id": "champ",
	}, asUser("reporter"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("assign status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/eightd", map[string]any{
		"incident_id":       in.ID,
		"problem_statement": "Load slipped from crane sling",
		"champion_id":       "champ",
	}, asUser("champ"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("init process status %d: %s", res.StatusCode, string(data))
	}
	var p domain.Process
	_ = json.Unmarshal(data, &p)
	if p.CurrentDiscipline != 1 || p.Status != "active" {
		t.Fatalf("unexpected process %+v", p)
	}

	// Disciplines complete strictly in order.
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/eightd/"+p.ID+"/advance", map[string]any{
		"discipline": 3,
	}, asUser("champ"))
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for out-of-order advance, got %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/eightd/"+p.ID+"/advance", map[string]any{
		"discipline": 1,
	}, asUser("reporter"))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for non-champion advance, got %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/eightd/"+p.ID+"/advance", map[string]any{
		"discipline": 1,
	}, asUser("champ"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("advance D1 status %d: %s", res.StatusCode, string(data))
	}
	_ = json.Unmarshal(data, &p)
	if p.CurrentDiscipline != 2 || p.OverallProgress != 12 {
		t.Fatalf("unexpected process after D1 %+v", p)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/eightd/"+p.ID, nil, asUser("champ"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get process status %d: %s", res.StatusCode, string(data))
	}
	var detail ProcessDetailResponse
	if err := json.Unmarshal(data, &detail); err != nil {
		t.Fatalf("unmarshal detail: %v", err)
	}
	if len(detail.Steps) != 8 {
		t.Fatalf("expected 8 steps, got %d", len(detail.Steps))
	}
	if detail.Steps[0].Status != "finish" || detail.Steps[1].Status != "process" || detail.Steps[2].Status != "wait" {
		t.Fatalf("unexpected steps %+v", detail.Steps[:3])
	}
	if len(detail.Team) == 0 {
		t.Fatalf("champion should be enrolled on the team")
	}
}

func TestNotFoundEnvelope(t *testing.T) {
	srv, cleanup := newTestServer(t, legacyAuth())
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/permits/no-such-permit", nil, asUser("creator"))
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", res.StatusCode, string(data))
	}
	env := decodeEnvelope(t, data)
	if env.Code != "not_found" || env.Msg != "resource not found" {
		t.Fatalf("unexpected envelope %+v", env)
	}
}
