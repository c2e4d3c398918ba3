package http

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/employee-directory/internal/api/http/handlers"
	"github.com/spec-kit/employee-directory/internal/config"
	"github.com/spec-kit/employee-directory/internal/events"
	"github.com/spec-kit/employee-directory/internal/observability"
	"github.com/spec-kit/employee-directory/internal/persistence"
	"github.com/spec-kit/employee-directory/internal/repository"
	"github.com/spec-kit/employee-directory/internal/service"
	apperrors "github.com/spec-kit/employee-directory/pkg/util/errorutil"
)

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Meta  map[string]int  `json:"meta"`
	Error *struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

type employeeJSON struct {
	ID        string  `json:"id"`
	FullName  string  `json:"full_name"`
	HireDate  string  `json:"hire_date"`
	ManagerID *string `json:"manager_id"`
}

func newTestApp(t *testing.T) (*fiber.App, *observability.Metrics) {
	t.Helper()
	metrics := observability.NewMetrics()
	hierarchy := service.NewHierarchyService(config.Config{}, service.HierarchyDependencies{
		EmployeeRepo: repository.NewMemoryEmployeeRepository(),
		Dispatcher:   events.NewInMemoryDispatcher(nil),
		Metrics:      metrics,
	})

	app := fiber.New()
	RegisterMiddlewares(app, zap.NewNop(), metrics, 0)
	RegisterRoutes(app, RouteConfig{
		Health:    handlers.NewHealthHandler("employee-directory", "test", &persistence.Postgres{}, &persistence.Redis{}),
		Employees: handlers.NewEmployeesHandler(hierarchy),
		Metrics:   metrics,
	})
	return app, metrics
}

func do(t *testing.T, app *fiber.App, method, path string, body any) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("decode %s %s response %q: %v", method, path, raw, err)
		}
	}
	return resp.StatusCode, env
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("decode data %s: %v", raw, err)
	}
	return out
}

func createEmployee(t *testing.T, app *fiber.App, name string, managerID *string) employeeJSON {
	t.Helper()
	status, env := do(t, app, fiber.MethodPost, "/employees", map[string]any{
		"full_name":  name,
		"position":   "Engineer",
		"hire_date":  "2022-09-01",
		"email":      strings.ToLower(name) + "@example.com",
		"manager_id": managerID,
	})
	if status != fiber.StatusCreated {
		t.Fatalf("create %s: status %d, error %+v", name, status, env.Error)
	}
	return decode[employeeJSON](t, env.Data)
}

func TestEmployeeLifecycle(t *testing.T) {
	app, _ := newTestApp(t)

	boss := createEmployee(t, app, "Boss", nil)
	worker := createEmployee(t, app, "Worker", &boss.ID)
	if worker.ManagerID == nil || *worker.ManagerID != boss.ID || worker.HireDate != "2022-09-01" {
		t.Fatalf("unexpected worker %+v", worker)
	}

	status, env := do(t, app, fiber.MethodGet, "/employees/"+worker.ID, nil)
	if status != fiber.StatusOK || decode[employeeJSON](t, env.Data).FullName != "Worker" {
		t.Fatalf("get: status %d body %s", status, env.Data)
	}

	status, env = do(t, app, fiber.MethodPatch, "/employees/"+worker.ID, map[string]any{"manager_id": nil})
	if status != fiber.StatusOK {
		t.Fatalf("patch: status %d error %+v", status, env.Error)
	}
	if decode[employeeJSON](t, env.Data).ManagerID != nil {
		t.Fatal("explicit null should clear the manager")
	}

	status, env = do(t, app, fiber.MethodPatch, "/employees/"+worker.ID, map[string]any{"full_name": "Worker Bee"})
	if status != fiber.StatusOK {
		t.Fatalf("patch name: status %d", status)
	}
	if got := decode[employeeJSON](t, env.Data); got.FullName != "Worker Bee" || got.ManagerID != nil {
		t.Fatalf("omitted manager_id must be left alone, got %+v", got)
	}

	status, _ = do(t, app, fiber.MethodDelete, "/employees/"+boss.ID, nil)
	if status != fiber.StatusNoContent {
		t.Fatalf("delete: status %d", status)
	}
	status, env = do(t, app, fiber.MethodGet, "/employees/"+boss.ID, nil)
	if status != fiber.StatusNotFound || env.Error == nil || env.Error.Code != apperrors.CodeNotFound {
		t.Fatalf("get deleted: status %d error %+v", status, env.Error)
	}
}

func TestErrorStatusMapping(t *testing.T) {
	app, _ := newTestApp(t)
	a := createEmployee(t, app, "A", nil)
	b := createEmployee(t, app, "B", &a.ID)
	ghost := "ghost"

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{name: "validation", method: fiber.MethodPost, path: "/employees", body: map[string]any{"full_name": ""},
			status: fiber.StatusBadRequest, code: apperrors.CodeValidation},
		{name: "manager not found", method: fiber.MethodPost, path: "/employees", body: map[string]any{
			"full_name": "C", "position": "P", "hire_date": "2020-01-01", "email": "c@example.com", "manager_id": ghost,
		}, status: fiber.StatusUnprocessableEntity, code: apperrors.CodeManagerNotFound},
		{name: "self reference", method: fiber.MethodPut, path: "/employees/" + a.ID + "/manager",
			body: map[string]any{"manager_id": a.ID}, status: fiber.StatusUnprocessableEntity, code: apperrors.CodeSelfReference},
		{name: "cycle", method: fiber.MethodPut, path: "/employees/" + a.ID + "/manager",
			body: map[string]any{"manager_id": b.ID}, status: fiber.StatusConflict, code: apperrors.CodeCycleDetected},
		{name: "missing employee", method: fiber.MethodDelete, path: "/employees/ghost",
			status: fiber.StatusNotFound, code: apperrors.CodeNotFound},
		{name: "bad sort", method: fiber.MethodGet, path: "/employees?sort=salary",
			status: fiber.StatusBadRequest, code: apperrors.CodeValidation},
		{name: "bad page", method: fiber.MethodGet, path: "/employees?page=abc",
			status: fiber.StatusBadRequest, code: apperrors.CodeValidation},
		{name: "unknown route", method: fiber.MethodGet, path: "/nowhere",
			status: fiber.StatusNotFound, code: apperrors.CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, env := do(t, app, tt.method, tt.path, tt.body)
			if status != tt.status {
				t.Fatalf("status = %d, want %d (error %+v)", status, tt.status, env.Error)
			}
			if env.Error == nil || env.Error.Code != tt.code {
				t.Fatalf("error = %+v, want code %s", env.Error, tt.code)
			}
		})
	}
}

func TestHierarchyRoutes(t *testing.T) {
	app, _ := newTestApp(t)
	a := createEmployee(t, app, "Alpha", nil)
	b := createEmployee(t, app, "Bravo", &a.ID)
	c := createEmployee(t, app, "Charlie", &b.ID)
	createEmployee(t, app, "Delta", nil)

	status, env := do(t, app, fiber.MethodGet, "/employees/roots", nil)
	if status != fiber.StatusOK {
		t.Fatalf("roots: status %d error %+v", status, env.Error)
	}
	roots := decode[[]employeeJSON](t, env.Data)
	if len(roots) != 2 || roots[0].FullName != "Alpha" || roots[1].FullName != "Delta" {
		t.Fatalf("unexpected roots %+v", roots)
	}

	_, env = do(t, app, fiber.MethodGet, "/employees/"+a.ID+"/subordinates", nil)
	if direct := decode[[]employeeJSON](t, env.Data); len(direct) != 1 || direct[0].ID != b.ID {
		t.Fatalf("unexpected direct reports %+v", direct)
	}
	_, env = do(t, app, fiber.MethodGet, "/employees/"+a.ID+"/subordinates?transitive=true", nil)
	if all := decode[[]employeeJSON](t, env.Data); len(all) != 2 || all[1].ID != c.ID {
		t.Fatalf("unexpected descendants %+v", all)
	}

	_, env = do(t, app, fiber.MethodGet, "/employees/"+c.ID+"/ancestors", nil)
	if chain := decode[[]employeeJSON](t, env.Data); len(chain) != 2 || chain[0].ID != b.ID || chain[1].ID != a.ID {
		t.Fatalf("unexpected chain %+v", chain)
	}

	type node struct {
		ID           string `json:"id"`
		Subordinates []node `json:"subordinates"`
	}
	_, env = do(t, app, fiber.MethodGet, "/employees/tree?root_id="+a.ID, nil)
	tree := decode[[]node](t, env.Data)
	if len(tree) != 1 || tree[0].Subordinates[0].Subordinates[0].ID != c.ID {
		t.Fatalf("unexpected tree %+v", tree)
	}
	_, env = do(t, app, fiber.MethodGet, "/employees/tree?max_depth=1", nil)
	if shallow := decode[[]node](t, env.Data); len(shallow) != 2 || len(shallow[0].Subordinates) != 0 {
		t.Fatalf("unexpected shallow tree %+v", shallow)
	}

	_, env = do(t, app, fiber.MethodGet, "/employees/search?q=ha&limit=5", nil)
	refs := decode[[]struct {
		FullName string `json:"full_name"`
	}](t, env.Data)
	if len(refs) != 2 || refs[0].FullName != "Alpha" || refs[1].FullName != "Charlie" {
		t.Fatalf("unexpected search results %+v", refs)
	}

	status, env = do(t, app, fiber.MethodPut, "/employees/"+b.ID+"/manager", nil)
	if status != fiber.StatusOK || decode[employeeJSON](t, env.Data).ManagerID != nil {
		t.Fatalf("empty reassign body should move to top-level: status %d", status)
	}
}

func TestListPagination(t *testing.T) {
	app, _ := newTestApp(t)
	for _, name := range []string{"Erin", "Dave", "Carol", "Bob", "Alice"} {
		createEmployee(t, app, name, nil)
	}

	status, env := do(t, app, fiber.MethodGet, "/employees?page=2&page_size=2&sort=-full_name", nil)
	if status != fiber.StatusOK {
		t.Fatalf("list: status %d error %+v", status, env.Error)
	}
	page := decode[[]employeeJSON](t, env.Data)
	if len(page) != 2 || page[0].FullName != "Carol" || page[1].FullName != "Bob" {
		t.Fatalf("unexpected page %+v", page)
	}
	if env.Meta["total"] != 5 || env.Meta["page"] != 2 || env.Meta["page_size"] != 2 {
		t.Fatalf("unexpected meta %v", env.Meta)
	}

	_, env = do(t, app, fiber.MethodGet, "/employees?q=AL", nil)
	if filtered := decode[[]employeeJSON](t, env.Data); len(filtered) != 1 || filtered[0].FullName != "Alice" {
		t.Fatalf("unexpected filter result %+v", filtered)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	app, _ := newTestApp(t)
	createEmployee(t, app, "Ada", nil)

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/health/ready", nil), -1)
	if err != nil {
		t.Fatalf("ready: %v", err)
	}
	var ready struct {
		Status       string            `json:"status"`
		Dependencies map[string]string `json:"dependencies"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ready); err != nil {
		t.Fatalf("decode ready: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK || ready.Dependencies["postgres"] != "in-memory" || ready.Dependencies["redis"] != "disabled" {
		t.Fatalf("unexpected readiness %d %+v", resp.StatusCode, ready)
	}

	resp, err = app.Test(httptest.NewRequest(fiber.MethodGet, "/metrics", nil), -1)
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	for _, want := range []string{
		`hierarchy_writes_total{operation="create",outcome="ok"} 1`,
		`http_requests_total{method="POST",path="/employees`,
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}
