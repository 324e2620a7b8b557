package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/isdelr/records-be/internal/auth"
	"github.com/isdelr/records-be/internal/database"
	"github.com/isdelr/records-be/internal/models"
	"github.com/isdelr/records-be/internal/monitoring"
	"github.com/isdelr/records-be/internal/services"
	"github.com/isdelr/records-be/internal/snapshots"
	"github.com/isdelr/records-be/internal/websocket"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	conn := database.NewConnector()
	if err := conn.Connect(context.Background(), filepath.Join(t.TempDir(), "records.db")); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if !conn.Connected() {
		t.Fatalf("connector did not connect to a local database")
	}

	sources, err := services.NewSQLCollections(conn)
	if err != nil {
		t.Fatalf("NewSQLCollections: %v", err)
	}
	listers := make([]services.Lister, 0, len(sources))
	for _, s := range sources {
		listers = append(listers, s)
	}

	store := snapshots.NewMemoryStore()
	events := services.NewEventService(conn)
	backups, err := services.NewBackupService(listers, store, events)
	if err != nil {
		t.Fatalf("NewBackupService: %v", err)
	}
	restores, err := services.NewRestoreService(sources, store, events)
	if err != nil {
		t.Fatalf("NewRestoreService: %v", err)
	}

	hub := websocket.NewHub()
	go hub.Run()
	t.Cleanup(hub.Stop)

	tokens, err := auth.NewManager("router-test-secret")
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	router := NewRouter(Deps{
		Hub:         hub,
		Tokens:      tokens,
		Conn:        conn,
		Users:       services.NewUserService(conn),
		Events:      events,
		Sources:     sources,
		Backups:     backups,
		Restores:    restores,
		Jobs:        monitoring.NewScheduler(backups, services.NewJobHistory(10), hub, 0),
		CORSOrigins: []string{"http://localhost:3000"},
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path, token string, body interface{}) (int, []byte) {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, srv.URL+path, r)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	out, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, out
}

func registerAndLogin(t *testing.T, srv *httptest.Server, name string) (string, models.User) {
	t.Helper()
	email := name + "@example.com"
	if code, body := do(t, srv, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"username": name, "email": email, "password": "correct-horse",
	}); code != http.StatusCreated {
		t.Fatalf("register %s = %d (%s), want 201", name, code, body)
	}
	code, body := do(t, srv, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": email, "password": "correct-horse",
	})
	if code != http.StatusOK {
		t.Fatalf("login %s = %d (%s), want 200", name, code, body)
	}
	var resp struct {
		Token string      `json:"token"`
		User  models.User `json:"user"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	return resp.Token, resp.User
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	srv := newTestServer(t)

	if code, body := do(t, srv, http.MethodGet, "/api/v1/healthz", "", nil); code != http.StatusOK {
		t.Fatalf("healthz = %d (%s), want 200", code, body)
	}
	if code, _ := do(t, srv, http.MethodGet, "/metrics", "", nil); code != http.StatusOK {
		t.Fatalf("metrics = %d, want 200", code)
	}
}

func TestRouter_AuthRoles(t *testing.T) {
	srv := newTestServer(t)

	adminToken, admin := registerAndLogin(t, srv, "ada")
	_, member := registerAndLogin(t, srv, "bob")
	if admin.Role != models.RoleAdmin || member.Role != models.RoleMember {
		t.Fatalf("roles = %q, %q; want admin, member", admin.Role, member.Role)
	}

	code, body := do(t, srv, http.MethodGet, "/api/v1/auth/me", adminToken, nil)
	if code != http.StatusOK {
		t.Fatalf("me = %d, want 200", code)
	}
	var me models.User
	if err := json.Unmarshal(body, &me); err != nil || me.ID != admin.ID {
		t.Fatalf("me = %s, want user %s", body, admin.ID)
	}

	if code, _ := do(t, srv, http.MethodGet, "/api/v1/auth/me", "", nil); code != http.StatusUnauthorized {
		t.Fatalf("me without token = %d, want 401", code)
	}
	for name, payload := range map[string]map[string]string{
		"same email":    {"username": "ada2", "email": "ada@example.com", "password": "correct-horse"},
		"same username": {"username": "ada", "email": "other@example.com", "password": "correct-horse"},
	} {
		if code, body := do(t, srv, http.MethodPost, "/api/v1/auth/register", "", payload); code != http.StatusConflict {
			t.Fatalf("register with %s = %d (%s), want 409", name, code, body)
		}
	}
	if code, _ := do(t, srv, http.MethodPost, "/api/v1/auth/register", "", map[string]string{"username": "x"}); code != http.StatusBadRequest {
		t.Fatalf("invalid register = %d, want 400", code)
	}
}

func TestRouter_Records(t *testing.T) {
	srv := newTestServer(t)
	token, _ := registerAndLogin(t, srv, "ada")

	if code, _ := do(t, srv, http.MethodPost, "/api/v1/records/employees", "", map[string]string{"employeeId": "e1"}); code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated create = %d, want 401", code)
	}
	if code, body := do(t, srv, http.MethodPost, "/api/v1/records/employees", token, map[string]string{"employeeId": "e1", "name": "Ada"}); code != http.StatusCreated {
		t.Fatalf("create = %d (%s), want 201", code, body)
	}
	if code, _ := do(t, srv, http.MethodPost, "/api/v1/records/employees", token, map[string]string{"employeeId": "e1"}); code != http.StatusConflict {
		t.Fatalf("duplicate create = %d, want 409", code)
	}
	if code, _ := do(t, srv, http.MethodPost, "/api/v1/records/employees", token, map[string]string{"name": "nobody"}); code != http.StatusBadRequest {
		t.Fatalf("create without key = %d, want 400", code)
	}
	if code, _ := do(t, srv, http.MethodGet, "/api/v1/records/payroll", "", nil); code != http.StatusNotFound {
		t.Fatalf("unknown collection = %d, want 404", code)
	}

	// Collections keyed by "id" get one assigned.
	code, body := do(t, srv, http.MethodPost, "/api/v1/records/announcements", token, map[string]string{"title": "hello"})
	if code != http.StatusCreated {
		t.Fatalf("create announcement = %d (%s), want 201", code, body)
	}
	var created map[string]interface{}
	if err := json.Unmarshal(body, &created); err != nil || created["id"] == "" || created["id"] == nil {
		t.Fatalf("created = %s, want a generated id", body)
	}

	code, body = do(t, srv, http.MethodGet, "/api/v1/records/employees", "", nil)
	var list []map[string]interface{}
	if code != http.StatusOK || json.Unmarshal(body, &list) != nil || len(list) != 1 {
		t.Fatalf("list = %d %s, want one employee", code, body)
	}

	if code, _ := do(t, srv, http.MethodDelete, "/api/v1/records/employees", token, nil); code != http.StatusNoContent {
		t.Fatalf("clear = %d, want 204", code)
	}
}

func TestRouter_BackupAndRestore(t *testing.T) {
	srv := newTestServer(t)
	adminToken, _ := registerAndLogin(t, srv, "ada")
	memberToken, _ := registerAndLogin(t, srv, "bob")

	do(t, srv, http.MethodPost, "/api/v1/records/employees", adminToken, map[string]string{"employeeId": "e1"})
	do(t, srv, http.MethodPost, "/api/v1/records/skillFactories", adminToken, map[string]string{"id": "sf1"})

	code, body := do(t, srv, http.MethodPost, "/api/v1/backups", memberToken, nil)
	if code != http.StatusCreated {
		t.Fatalf("create backup = %d (%s), want 201", code, body)
	}
	var res models.WriteResult
	if err := json.Unmarshal(body, &res); err != nil || res.ID == "" || res.Timestamp.IsZero() {
		t.Fatalf("create backup body = %s", body)
	}

	code, body = do(t, srv, http.MethodGet, "/api/v1/backups/"+res.ID, "", nil)
	var snap models.Snapshot
	if code != http.StatusOK || json.Unmarshal(body, &snap) != nil {
		t.Fatalf("get backup = %d (%s)", code, body)
	}
	if len(snap.Data[models.CollectionEmployees]) != 1 || snap.Metadata == nil || snap.Metadata.Trigger != models.TriggerAPI || snap.Metadata.ActorName != "bob" {
		t.Fatalf("snapshot = %+v, want one employee captured by bob via api", snap)
	}
	if code, _ := do(t, srv, http.MethodGet, "/api/v1/backups/does-not-exist", "", nil); code != http.StatusNotFound {
		t.Fatalf("get missing backup = %d, want 404", code)
	}

	code, body = do(t, srv, http.MethodGet, "/api/v1/backups/jobs", "", nil)
	var jobs []models.JobRun
	if code != http.StatusOK || json.Unmarshal(body, &jobs) != nil || len(jobs) != 1 || jobs[0].Status != models.JobStatusSuccess || jobs[0].BackupID != res.ID {
		t.Fatalf("jobs = %d %s, want one successful run", code, body)
	}

	restore := map[string]string{"backupId": res.ID, "mode": "replace"}
	if code, _ := do(t, srv, http.MethodPost, "/api/v1/backups/restore", memberToken, restore); code != http.StatusForbidden {
		t.Fatalf("member restore = %d, want 403", code)
	}

	code, body = do(t, srv, http.MethodPost, "/api/v1/backups/restore", adminToken, restore)
	var summary models.RestoreSummary
	if code != http.StatusOK || json.Unmarshal(body, &summary) != nil {
		t.Fatalf("restore = %d (%s), want 200", code, body)
	}
	if summary.RestoreMode != models.RestoreReplace || summary.Summary[models.CollectionEmployees].Restored != 1 || len(summary.Errors) != 0 {
		t.Fatalf("summary = %+v", summary)
	}

	// Merging the same snapshot again conflicts on every key but still succeeds.
	code, body = do(t, srv, http.MethodPost, "/api/v1/backups/restore", adminToken, map[string]string{"backupId": res.ID})
	if code != http.StatusOK || json.Unmarshal(body, &summary) != nil {
		t.Fatalf("merge restore = %d (%s), want 200", code, body)
	}
	if summary.RestoreMode != models.RestoreMerge || len(summary.Errors) != 2 {
		t.Fatalf("merge summary = %+v, want two conflicts", summary)
	}

	for name, payload := range map[string]map[string]string{
		"bad mode":   {"backupId": res.ID, "mode": "overwrite"},
		"unknown id": {"backupId": "nope"},
		"empty":      {},
	} {
		if code, body := do(t, srv, http.MethodPost, "/api/v1/backups/restore", adminToken, payload); code != http.StatusBadRequest {
			t.Fatalf("%s restore = %d (%s), want 400", name, code, body)
		}
	}

	code, body = do(t, srv, http.MethodGet, "/api/v1/backups", "", nil)
	var infos []models.SnapshotInfo
	if code != http.StatusOK || json.Unmarshal(body, &infos) != nil || len(infos) != 1 {
		t.Fatalf("list backups = %d %s, want one", code, body)
	}

	code, body = do(t, srv, http.MethodGet, "/api/v1/events?limit=10", "", nil)
	var evs []models.Event
	if code != http.StatusOK || json.Unmarshal(body, &evs) != nil || len(evs) == 0 {
		t.Fatalf("events = %d %s, want recorded activity", code, body)
	}
}
