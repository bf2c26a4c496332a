package taskapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/fentz26/morningtrio/internal/audit"
	"github.com/fentz26/morningtrio/internal/models"
	"github.com/fentz26/morningtrio/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var testTokens = TokenMap{
	"alice-token": "alice",
	"bob-token":   "bob",
}

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	service := NewService(st, audit.NewWriter(st))
	return NewServer(service, testTokens, "127.0.0.1:0"), st
}

func do(t *testing.T, s *Server, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
}

func TestHealthEndpoint_OK(t *testing.T) {
	s, _ := newTestServer(t)

	w := do(t, s, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var health HealthResponse
	decode(t, w, &health)
	if !health.OK {
		t.Error("Expected health.OK to be true")
	}
	if health.DB != "ok" {
		t.Errorf("Expected DB status 'ok', got '%s'", health.DB)
	}
	if health.Version == "" || health.Time == "" {
		t.Errorf("Expected version and time to be set, got %+v", health)
	}
}

func TestHealthEndpoint_DBError(t *testing.T) {
	s, st := newTestServer(t)
	st.Close()

	w := do(t, s, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", w.Code)
	}
	var health HealthResponse
	decode(t, w, &health)
	if health.OK {
		t.Error("Expected health.OK to be false")
	}
}

func TestRequiresToken(t *testing.T) {
	s, _ := newTestServer(t)

	for _, token := range []string{"", "wrong"} {
		w := do(t, s, http.MethodGet, "/tasks", token, nil)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("token %q: expected 401, got %d", token, w.Code)
		}
	}

	w := do(t, s, http.MethodGet, "/me", "alice-token", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var me struct {
		UserID string `json:"userId"`
	}
	decode(t, w, &me)
	if me.UserID != "alice" {
		t.Errorf("Expected alice, got %q", me.UserID)
	}
}

func TestCreateTask(t *testing.T) {
	s, _ := newTestServer(t)

	w := do(t, s, http.MethodPost, "/tasks", "alice-token", CreateRequest{ID: "t1", Text: "Buy milk"})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var task models.Task
	decode(t, w, &task)
	if task.UserID != "alice" || task.Section != models.SectionOther || task.TaskList != models.TaskListPersonal {
		t.Errorf("Unexpected defaults: %+v", task)
	}
	if task.CreatedDate == "" {
		t.Error("Expected createdDate default")
	}

	w = do(t, s, http.MethodPost, "/tasks", "alice-token", CreateRequest{ID: "t1", Text: "again"})
	if w.Code != http.StatusConflict {
		t.Errorf("Expected 409 on duplicate id, got %d", w.Code)
	}

	w = do(t, s, http.MethodPost, "/tasks", "alice-token", CreateRequest{ID: "t2"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 without text, got %d", w.Code)
	}

	w = do(t, s, http.MethodPost, "/tasks", "alice-token", `{not json`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 on bad json, got %d", w.Code)
	}
}

func TestTasksAreScopedToOwner(t *testing.T) {
	s, _ := newTestServer(t)

	do(t, s, http.MethodPost, "/tasks", "alice-token", CreateRequest{ID: "a1", Text: "alice's"})
	do(t, s, http.MethodPost, "/tasks", "bob-token", CreateRequest{ID: "b1", Text: "bob's"})

	w := do(t, s, http.MethodGet, "/tasks", "alice-token", nil)
	var tasks []models.Task
	decode(t, w, &tasks)
	if len(tasks) != 1 || tasks[0].ID != "a1" {
		t.Errorf("Expected only a1, got %+v", tasks)
	}

	w = do(t, s, http.MethodPut, "/tasks/b1", "alice-token", map[string]interface{}{"text": "hijack"})
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 updating another user's task, got %d", w.Code)
	}
	w = do(t, s, http.MethodDelete, "/tasks/b1", "alice-token", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 deleting another user's task, got %d", w.Code)
	}

	w = do(t, s, http.MethodPost, "/tasks", "alice-token", CreateRequest{ID: "b1", Text: "mine now"})
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 creating over another user's id, got %d", w.Code)
	}
	w = do(t, s, http.MethodGet, "/tasks", "bob-token", nil)
	var bobs []models.Task
	decode(t, w, &bobs)
	if len(bobs) != 1 || bobs[0].Text != "bob's" {
		t.Errorf("Create touched another user's task: %+v", bobs)
	}
}

func TestUpdateTask(t *testing.T) {
	s, _ := newTestServer(t)
	do(t, s, http.MethodPost, "/tasks", "alice-token", CreateRequest{ID: "t1", Text: "Run"})

	w := do(t, s, http.MethodPut, "/tasks/t1", "alice-token", map[string]interface{}{"completed": true})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var task models.Task
	decode(t, w, &task)
	if !task.Completed || task.CompletedDate == nil {
		t.Errorf("Expected completion stamped, got %+v", task)
	}
	if task.Text != "Run" {
		t.Errorf("Unpatched field changed: %q", task.Text)
	}

	w = do(t, s, http.MethodPut, "/tasks/t1", "alice-token", `{"completed":false,"completedDate":null,"taskList":"work"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	task = models.Task{}
	decode(t, w, &task)
	if task.Completed || task.CompletedDate != nil || task.TaskList != models.TaskListWork {
		t.Errorf("Expected cleared completion in work list, got %+v", task)
	}

	w = do(t, s, http.MethodPut, "/tasks/t1", "alice-token", map[string]interface{}{"section": "someday"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown section, got %d", w.Code)
	}
	w = do(t, s, http.MethodPut, "/tasks/missing", "alice-token", map[string]interface{}{"text": "x"})
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}

func TestDeleteTask(t *testing.T) {
	s, _ := newTestServer(t)
	do(t, s, http.MethodPost, "/tasks", "alice-token", CreateRequest{ID: "t1", Text: "Run"})

	w := do(t, s, http.MethodDelete, "/tasks/t1", "alice-token", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var resp struct {
		Success bool `json:"success"`
	}
	decode(t, w, &resp)
	if !resp.Success {
		t.Error("Expected success true")
	}
	w = do(t, s, http.MethodDelete, "/tasks/t1", "alice-token", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 on second delete, got %d", w.Code)
	}
}

func TestSyncTasks(t *testing.T) {
	s, _ := newTestServer(t)
	do(t, s, http.MethodPost, "/tasks", "alice-token", CreateRequest{ID: "gone", Text: "old"})
	do(t, s, http.MethodPost, "/tasks", "bob-token", CreateRequest{ID: "bobs", Text: "bob's"})

	items := []models.SyncItem{
		{Task: models.Task{ID: "n1", Text: "new", Section: models.SectionMustDo, TaskList: models.TaskListWork, OrderIndex: 2, CreatedDate: "2026-10-18"}},
		{Task: models.Task{ID: "gone"}, Deleted: true},
		{Task: models.Task{ID: "bad"}},
		{Task: models.Task{ID: "bobs", Text: "steal"}},
	}
	w := do(t, s, http.MethodPost, "/tasks/sync", "alice-token", syncRequest{Tasks: &items})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var res models.SyncResult
	decode(t, w, &res)
	want := []string{models.SyncActionSynced, models.SyncActionDeleted, models.SyncActionError, models.SyncActionError}
	if len(res.Results) != len(want) {
		t.Fatalf("Expected %d results, got %+v", len(want), res.Results)
	}
	for i, r := range res.Results {
		if r.Action != want[i] {
			t.Errorf("item %s: expected %s, got %s", r.ID, want[i], r.Action)
		}
	}
	if len(res.Tasks) != 1 || res.Tasks[0].ID != "n1" || res.Tasks[0].CreatedDate != "2026-10-18" {
		t.Errorf("Expected authoritative set [n1], got %+v", res.Tasks)
	}

	w = do(t, s, http.MethodGet, "/tasks", "bob-token", nil)
	var bobs []models.Task
	decode(t, w, &bobs)
	if len(bobs) != 1 || bobs[0].Text != "bob's" {
		t.Errorf("Sync touched another user's task: %+v", bobs)
	}
}

func TestMutationsAreAudited(t *testing.T) {
	s, st := newTestServer(t)
	do(t, s, http.MethodPost, "/tasks", "alice-token", CreateRequest{ID: "t1", Text: "Run"})
	do(t, s, http.MethodDelete, "/tasks/t1", "alice-token", nil)

	entries, err := st.ListAudit(context.Background(), "alice", 10)
	if err != nil {
		t.Fatalf("ListAudit failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected 2 audit entries, got %d", len(entries))
	}
	if entries[0].Action != "task.delete" || entries[1].Action != "task.create" {
		t.Errorf("Unexpected audit actions: %s, %s", entries[0].Action, entries[1].Action)
	}
}

func TestSyncRequiresTaskArray(t *testing.T) {
	s, _ := newTestServer(t)

	for _, body := range []string{`{}`, `{"tasks":null}`} {
		w := do(t, s, http.MethodPost, "/tasks/sync", "alice-token", body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("body %s: expected 400, got %d", body, w.Code)
		}
	}

	w := do(t, s, http.MethodPost, "/tasks/sync", "alice-token", `{"tasks":[]}`)
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 for an empty array, got %d", w.Code)
	}
}
