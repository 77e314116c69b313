package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"

	"taskanchor/internal/config"
	"taskanchor/internal/db"
	"taskanchor/internal/domain"
	"taskanchor/internal/engine"
	"taskanchor/internal/ledger"
	"taskanchor/internal/migrate"
	"taskanchor/internal/rolesync"
)

type testServer struct {
	URL    string
	Admin  domain.User
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	cfg := config.Default()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	mem := ledger.NewMemory()
	e := engine.New(conn, mem, cfg)
	admin, err := e.CreateUser(context.Background(), "0xadmin", domain.RoleAdmin, "Admin")
	if err != nil {
		t.Fatalf("seed admin: %v", err)
	}
	sync := rolesync.New(conn, mem, cfg.Ledger.MaxBatchSize)
	handler, err := New(Config{
		Engine:   e,
		Roles:    sync,
		BasePath: "/v0",
		Auth:     AuthConfig{AllowAnonymous: true},
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
		URL:    "http://" + ln.Addr().String(),
		Admin:  admin,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
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

func createTaskBody(txnID string) map[string]any {
	return map[string]any{
		"transaction_id":     txnID,
		"task_type":          "liquidation",
		"company_and_artist": "Northwind / Vega",
		"target_price_eth":   "12.5",
		"date_deadline":      "2026-04-01",
	}
}

func TestTaskCreateExecuteVerify(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	actor := map[string]string{"X-Actor-Id": srv.Admin.ID}

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks", createTaskBody("txn-s1"), actor)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create status %d: %s", res.StatusCode, string(data))
	}
	var created TaskResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal task: %v", err)
	}
	if created.State != "stored" || created.TaskHash == "" || created.LedgerTxRef == "" {
		t.Fatalf("created = %+v", created)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks/"+created.ID+"/execute", map[string]any{
		"proofs": []map[string]any{{"type": "text", "value": "settled"}},
	}, actor)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("execute status %d: %s", res.StatusCode, string(data))
	}
	var executed TaskResponse
	_ = json.Unmarshal(data, &executed)
	if executed.State != "executed" {
		t.Fatalf("state = %s", executed.State)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/tasks/"+created.ID+"/verify", nil, actor)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("verify status %d: %s", res.StatusCode, string(data))
	}
	var v engine.Verification
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("unmarshal verification: %v", err)
	}
	if !v.HashMatches || v.LedgerAnchored == nil || !*v.LedgerAnchored {
		t.Fatalf("verification = %+v", v)
	}
}

func TestDuplicateTaskConflict(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	actor := map[string]string{"X-Actor-Id": srv.Admin.ID}

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks", createTaskBody("txn-dup"), actor)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("first create: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks", createTaskBody("txn-dup"), actor)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected conflict, got %d %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	_ = json.Unmarshal(data, &envelope)
	if envelope.Error.Code != "duplicate_task" {
		t.Fatalf("code = %q: %s", envelope.Error.Code, string(data))
	}
}

func TestInvalidPayloadRejected(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	actor := map[string]string{"X-Actor-Id": srv.Admin.ID}

	body := createTaskBody("txn-bad")
	delete(body, "target_price_eth")
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks", body, actor)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code    string         `json:"code"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	_ = json.Unmarshal(data, &envelope)
	if envelope.Error.Code != "invalid_payload" || envelope.Error.Details["field"] != "target_price_eth" {
		t.Fatalf("envelope = %+v: %s", envelope, string(data))
	}
}

func TestModerationBlocksExecution(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	actor := map[string]string{"X-Actor-Id": srv.Admin.ID}

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks", createTaskBody("txn-m1"), actor)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create: %d %s", res.StatusCode, string(data))
	}
	var created TaskResponse
	_ = json.Unmarshal(data, &created)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks/"+created.ID+"/moderate", map[string]any{
		"state": "blocked", "reason": "pending review",
	}, actor)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("moderate: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks/"+created.ID+"/execute", map[string]any{
		"proofs": []map[string]any{{"type": "text", "value": "x"}},
	}, actor)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d %s", res.StatusCode, string(data))
	}
}

func TestBatchExecuteIsolation(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	actor := map[string]string{"X-Actor-Id": srv.Admin.ID}

	var ids []string
	for _, txn := range []string{"txn-b1", "txn-b2"} {
		res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks", createTaskBody(txn), actor)
		if res.StatusCode != http.StatusCreated {
			t.Fatalf("create %s: %d %s", txn, res.StatusCode, string(data))
		}
		var created TaskResponse
		_ = json.Unmarshal(data, &created)
		ids = append(ids, created.ID)
	}

	items := []map[string]any{
		{"task_id": ids[0], "proofs": []map[string]any{{"type": "text", "value": "ok"}}},
		{"task_id": "missing", "proofs": []map[string]any{{"type": "text", "value": "ok"}}},
		{"task_id": ids[1], "proofs": []map[string]any{{"type": "text", "value": "ok"}}},
	}
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks/execute-batch", map[string]any{"items": items}, actor)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("batch: %d %s", res.StatusCode, string(data))
	}
	var result engine.BatchResult
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if result.Summary.Successful != 2 || result.Summary.Failed != 1 {
		t.Fatalf("summary = %+v", result.Summary)
	}
}

func TestRoleAssignEndpoint(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	actor := map[string]string{"X-Actor-Id": srv.Admin.ID}

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/users", map[string]any{
		"address": "0xmember", "role": "member", "name": "M",
	}, actor)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create user: %d %s", res.StatusCode, string(data))
	}
	var member domain.User
	_ = json.Unmarshal(data, &member)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/roles/assign", map[string]any{
		"assignments": []map[string]any{
			{"user_id": member.ID, "role": "consultant"},
			{"user_id": "ghost", "role": "admin"},
		},
	}, actor)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("assign: %d %s", res.StatusCode, string(data))
	}
	var result rolesync.Result
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if len(result.Applied) != 1 || len(result.Failed) != 1 {
		t.Fatalf("result = %+v", result)
	}
}

func TestModerateRequiresAdmin(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	admin := map[string]string{"X-Actor-Id": srv.Admin.ID}

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks", createTaskBody("txn-adm"), admin)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create: %d %s", res.StatusCode, string(data))
	}
	var created TaskResponse
	_ = json.Unmarshal(data, &created)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/users", map[string]any{
		"address": "0xplain", "role": "member",
	}, admin)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create member: %d %s", res.StatusCode, string(data))
	}
	var member domain.User
	_ = json.Unmarshal(data, &member)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks/"+created.ID+"/moderate", map[string]any{
		"state": "blocked",
	}, map[string]string{"X-Actor-Id": member.ID})
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d %s", res.StatusCode, string(data))
	}
}

func TestHealthRequiresNoAuth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health: %d %s", res.StatusCode, string(data))
	}
}
