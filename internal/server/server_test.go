package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/ldi/taskboard/internal/db"
	"github.com/ldi/taskboard/pkg/models"
)

func newTestServer(t *testing.T) (*Server, *db.DB, *test.Hook) {
	t.Helper()
	database, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := database.Init(context.Background()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	logger, hook := test.NewNullLogger()
	return NewServer(database, logger), database, hook
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeTask(t *testing.T, rec *httptest.ResponseRecorder) models.Task {
	t.Helper()
	var task models.Task
	if err := sonic.Unmarshal(rec.Body.Bytes(), &task); err != nil {
		t.Fatalf("invalid task json %q: %v", rec.Body.String(), err)
	}
	return task
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp errorResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid error json %q: %v", rec.Body.String(), err)
	}
	if resp.Error == "" {
		t.Fatalf("expected error message in %s", rec.Body.String())
	}
	return resp.Error
}

func TestServer_TaskLifecycle(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/api/tasks", `{"title":"Ship report","priority":"urgent","dueDate":"2024-01-01"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	created := decodeTask(t, rec)
	if created.ID != 1 || created.Pinned || created.Tags == nil || len(created.Tags) != 0 {
		t.Fatalf("Unexpected created task: %+v", created)
	}
	if !strings.Contains(rec.Body.String(), `"tags":[]`) {
		t.Errorf("Expected tags to serialize as an empty array, got %s", rec.Body.String())
	}

	rec = do(t, srv, http.MethodPost, "/api/tasks", `{"title":"Undated","priority":"urgent"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", rec.Code)
	}

	rec = do(t, srv, http.MethodPatch, "/api/tasks/1", `{"pinned":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	patched := decodeTask(t, rec)
	if !patched.Pinned || patched.Title != "Ship report" || patched.DueDate == nil || *patched.DueDate != "2024-01-01" {
		t.Errorf("Partial update clobbered fields: %+v", patched)
	}

	rec = do(t, srv, http.MethodGet, "/api/tasks", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var tasks []models.Task
	if err := sonic.Unmarshal(rec.Body.Bytes(), &tasks); err != nil {
		t.Fatalf("invalid list json: %v", err)
	}
	if len(tasks) != 2 || tasks[0].ID != 1 {
		t.Fatalf("Expected pinned task first, got %+v", tasks)
	}

	rec = do(t, srv, http.MethodGet, "/api/tasks/2", "")
	if rec.Code != http.StatusOK || decodeTask(t, rec).Title != "Undated" {
		t.Errorf("Unexpected GET response %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(t, srv, http.MethodDelete, "/api/tasks/1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var msg messageResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &msg); err != nil || msg.Message == "" {
		t.Errorf("Expected message body, got %s", rec.Body.String())
	}

	rec = do(t, srv, http.MethodGet, "/api/tasks/1", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("Expected 404 after delete, got %d", rec.Code)
	}
	decodeError(t, rec)
}

func TestServer_ErrorMapping(t *testing.T) {
	srv, database, _ := newTestServer(t)
	if _, err := database.CreateTask(context.Background(), models.TaskInput{Title: "keep", Priority: models.PriorityLater}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{name: "invalid priority", method: http.MethodPost, path: "/api/tasks", body: `{"title":"x","priority":"invalid"}`, want: http.StatusBadRequest},
		{name: "missing title", method: http.MethodPost, path: "/api/tasks", body: `{"priority":"urgent"}`, want: http.StatusBadRequest},
		{name: "missing priority", method: http.MethodPost, path: "/api/tasks", body: `{"title":"x"}`, want: http.StatusBadRequest},
		{name: "malformed json", method: http.MethodPost, path: "/api/tasks", body: `{"title":`, want: http.StatusBadRequest},
		{name: "patch invalid priority", method: http.MethodPatch, path: "/api/tasks/1", body: `{"priority":"never"}`, want: http.StatusBadRequest},
		{name: "patch null title", method: http.MethodPatch, path: "/api/tasks/1", body: `{"title":null}`, want: http.StatusBadRequest},
		{name: "patch unknown id", method: http.MethodPatch, path: "/api/tasks/99", body: `{"pinned":true}`, want: http.StatusNotFound},
		{name: "patch unknown id with invalid priority", method: http.MethodPatch, path: "/api/tasks/99", body: `{"priority":"bogus"}`, want: http.StatusNotFound},
		{name: "get unknown id", method: http.MethodGet, path: "/api/tasks/99", want: http.StatusNotFound},
		{name: "non-numeric id", method: http.MethodGet, path: "/api/tasks/abc", want: http.StatusNotFound},
		{name: "delete unknown id", method: http.MethodDelete, path: "/api/tasks/42", want: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv, tt.method, tt.path, tt.body)
			if rec.Code != tt.want {
				t.Fatalf("Expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
			decodeError(t, rec)
		})
	}

	tasks, err := database.ListTasks(context.Background())
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Title != "keep" {
		t.Errorf("Failed requests must not change the store, got %+v", tasks)
	}
}

func TestServer_PatchNullClearsDueDate(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/api/tasks", `{"title":"a","priority":"later","dueDate":"2024-05-01","tags":["x","y"]}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", rec.Code)
	}

	rec = do(t, srv, http.MethodPatch, "/api/tasks/1", `{"dueDate":null,"comments":"done soon"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	task := decodeTask(t, rec)
	if task.DueDate != nil {
		t.Errorf("Expected due date cleared, got %v", *task.DueDate)
	}
	if task.Comments == nil || *task.Comments != "done soon" {
		t.Errorf("Expected comments set, got %v", task.Comments)
	}
	if len(task.Tags) != 2 || task.Tags[0] != "x" || task.Tags[1] != "y" {
		t.Errorf("Expected tags untouched, got %v", task.Tags)
	}
}

type faultyStore struct{}

var errDiskFault = errors.New("disk I/O error")

func (faultyStore) ListTasks(context.Context) ([]*models.Task, error) { return nil, errDiskFault }
func (faultyStore) GetTask(context.Context, int64) (*models.Task, error) {
	return nil, errDiskFault
}
func (faultyStore) CreateTask(context.Context, models.TaskInput) (*models.Task, error) {
	return nil, errDiskFault
}
func (faultyStore) UpdateTask(context.Context, int64, models.TaskPatch) (*models.Task, error) {
	return nil, errDiskFault
}
func (faultyStore) DeleteTask(context.Context, int64) error { return errDiskFault }
func (faultyStore) Ping(context.Context) error              { return errDiskFault }

func TestServer_StoreFaultIs500(t *testing.T) {
	logger, hook := test.NewNullLogger()
	srv := NewServer(faultyStore{}, logger)

	rec := do(t, srv, http.MethodGet, "/api/tasks", "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("Expected 500, got %d", rec.Code)
	}
	if msg := decodeError(t, rec); strings.Contains(msg, "disk") {
		t.Errorf("Internal details leaked to client: %s", msg)
	}

	var sawFault bool
	for _, entry := range hook.AllEntries() {
		if entry.Level == log.ErrorLevel && entry.Data["error"] == errDiskFault.Error() {
			sawFault = true
		}
	}
	if !sawFault {
		t.Error("Expected the store fault to be logged at error level")
	}

	rec = do(t, srv, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 from healthz, got %d", rec.Code)
	}
}

func TestServer_Healthz(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := do(t, srv, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
}

func TestServer_CORS(t *testing.T) {
	srv, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	req.Header.Set("Origin", "http://example.com")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Expected wildcard CORS header, got %q", got)
	}
}

func TestRequestLogging(t *testing.T) {
	srv, _, hook := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/api/tasks", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	entry := hook.LastEntry()
	if entry == nil || entry.Message != "http.request" {
		t.Fatalf("Expected request log entry, got %+v", entry)
	}
	if entry.Level != log.InfoLevel {
		t.Errorf("Expected info level, got %s", entry.Level)
	}
	if entry.Data["route"] != "/api/tasks" || entry.Data["method"] != http.MethodGet || entry.Data["status"] != http.StatusOK {
		t.Errorf("Unexpected fields: %v", entry.Data)
	}
	reqID, _ := entry.Data["request_id"].(string)
	if reqID == "" || reqID != rec.Header().Get("X-Request-Id") {
		t.Errorf("Expected request id %q to match response header %q", reqID, rec.Header().Get("X-Request-Id"))
	}

	hook.Reset()
	do(t, srv, http.MethodGet, "/api/tasks/404", "")
	entry = hook.LastEntry()
	if entry == nil || entry.Level != log.WarnLevel || entry.Data["status"] != http.StatusNotFound {
		t.Errorf("Expected warn entry for 404, got %+v", entry)
	}
	if _, ok := entry.Data["error"]; !ok {
		t.Errorf("Expected error field on failed request")
	}
}

func setupTestTracer(t *testing.T) (*sdktrace.TracerProvider, *tracetest.InMemoryExporter, func()) {
	t.Helper()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)),
	)
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)

	cleanup := func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			t.Logf("shutdown tracer provider: %v", err)
		}
		otel.SetTracerProvider(prev)
	}
	return tp, exporter, cleanup
}

func attributesToMap(attrs []attribute.KeyValue) map[string]any {
	out := make(map[string]any, len(attrs))
	for _, kv := range attrs {
		out[string(kv.Key)] = kv.Value.AsInterface()
	}
	return out
}

func TestRequestSpans(t *testing.T) {
	tp, exporter, restore := setupTestTracer(t)
	defer restore()

	srv, _, _ := newTestServer(t)
	rec := do(t, srv, http.MethodPost, "/api/tasks", `{"title":"traced","priority":"someday"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", rec.Code)
	}
	if err := tp.ForceFlush(context.Background()); err != nil {
		t.Fatalf("force flush spans: %v", err)
	}

	var httpSpan, dbSpan *tracetest.SpanStub
	spans := exporter.GetSpans()
	for i := range spans {
		switch spans[i].Name {
		case "http.request":
			httpSpan = &spans[i]
		case "db.CreateTask":
			dbSpan = &spans[i]
		}
	}
	if httpSpan == nil {
		t.Fatalf("Expected http.request span, got %d spans", len(spans))
	}
	attrs := attributesToMap(httpSpan.Attributes)
	if attrs["http.route"] != "/api/tasks" {
		t.Errorf("Unexpected route attribute: %v", attrs["http.route"])
	}
	if attrs["http.status_code"] != int64(http.StatusCreated) {
		t.Errorf("Unexpected status attribute: %#v", attrs["http.status_code"])
	}
	if dbSpan == nil {
		t.Fatal("Expected a store span")
	}
	if dbSpan.Parent.SpanID() != httpSpan.SpanContext.SpanID() {
		t.Errorf("Expected store span to be a child of the request span")
	}
}
