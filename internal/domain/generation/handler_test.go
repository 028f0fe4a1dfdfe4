package generation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/synthrec/synthrec/internal/platform/auth"
)

func newHandlerServer(t *testing.T, repo Repository) *echo.Echo {
	t.Helper()
	svc := newTestService(t, labTemplate)
	if repo != nil {
		svc.SetRepository(repo)
	}
	e := echo.New()
	api := e.Group("/api/v1", auth.DevAuthMiddleware())
	NewHandler(svc, repo).RegisterRoutes(api)
	return e
}

func doRequest(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

const generateBody = `{
	"diseases": ["diabetes"],
	"patients": 2,
	"min_docs": 1,
	"max_docs": 1,
	"start_date": "2024-01-01",
	"end_date": "2024-12-31",
	"seed": 7
}`

func TestHandler_Generate(t *testing.T) {
	e := newHandlerServer(t, nil)

	rec := doRequest(e, http.MethodPost, "/api/v1/generate", generateBody)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var res Result
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(res.Patients) != 2 || res.Metadata.Documents != 2 {
		t.Errorf("result = %+v", res.Metadata)
	}
	if res.Metadata.Seed != 7 || res.Metadata.SeedAssigned {
		t.Errorf("seed metadata = %+v", res.Metadata)
	}
}

func TestHandler_GenerateRejectsBadRequests(t *testing.T) {
	e := newHandlerServer(t, nil)

	tests := []struct {
		name, body string
	}{
		{"malformed json", `{"patients": `},
		{"invalid request", `{"patients": 0, "start_date": "2024-01-01", "end_date": "2024-12-31"}`},
		{"unknown template", `{"patients": 1, "min_docs": 1, "max_docs": 1, "start_date": "2024-01-01", "end_date": "2024-12-31", "templates": ["a/b/c"]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(e, http.MethodPost, "/api/v1/generate", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestHandler_HistoryDisabledWithoutRepo(t *testing.T) {
	e := newHandlerServer(t, nil)

	for _, target := range []string{
		"/api/v1/runs",
		"/api/v1/runs/" + uuid.New().String(),
		"/api/v1/runs/" + uuid.New().String() + "/documents",
		"/api/v1/runs/" + uuid.New().String() + "/export/ndjson",
	} {
		rec := doRequest(e, http.MethodGet, target, "")
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: status = %d, want 404", target, rec.Code)
		}
	}
}

func TestHandler_RunHistory(t *testing.T) {
	repo := NewMemoryRepo()
	e := newHandlerServer(t, repo)

	rec := doRequest(e, http.MethodPost, "/api/v1/generate", generateBody)
	if rec.Code != http.StatusOK {
		t.Fatalf("generate failed: %s", rec.Body.String())
	}
	var res Result
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}

	rec = doRequest(e, http.MethodGet, "/api/v1/runs?_count=10", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list runs: %d %s", rec.Code, rec.Body.String())
	}
	var page struct {
		Data    []StoredRun `json:"data"`
		Total   int         `json:"total"`
		Limit   int         `json:"limit"`
		HasMore bool        `json:"has_more"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatal(err)
	}
	if page.Total != 1 || len(page.Data) != 1 || page.Limit != 10 || page.HasMore {
		t.Errorf("page = %+v", page)
	}
	if page.Data[0].ID != res.RunID {
		t.Errorf("listed run %s, want %s", page.Data[0].ID, res.RunID)
	}

	rec = doRequest(e, http.MethodGet, "/api/v1/runs/"+res.RunID.String(), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get run: %d", rec.Code)
	}
	var run StoredRun
	if err := json.Unmarshal(rec.Body.Bytes(), &run); err != nil {
		t.Fatal(err)
	}
	if run.Documents != 2 {
		t.Errorf("stored run = %+v", run)
	}

	rec = doRequest(e, http.MethodGet, "/api/v1/runs/"+res.RunID.String()+"/documents", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list documents: %d", rec.Code)
	}
	var docPage struct {
		Data  []StoredDocument `json:"data"`
		Total int              `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &docPage); err != nil {
		t.Fatal(err)
	}
	if docPage.Total != 2 || len(docPage.Data) != 2 {
		t.Errorf("documents page = %+v", docPage)
	}
}

func TestHandler_RunIDValidation(t *testing.T) {
	e := newHandlerServer(t, NewMemoryRepo())

	rec := doRequest(e, http.MethodGet, "/api/v1/runs/not-a-uuid", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad id: status = %d, want 400", rec.Code)
	}

	rec = doRequest(e, http.MethodGet, "/api/v1/runs/"+uuid.New().String(), "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown id: status = %d, want 404", rec.Code)
	}
}

func TestHandler_Export(t *testing.T) {
	repo := NewMemoryRepo()
	e := newHandlerServer(t, repo)

	rec := doRequest(e, http.MethodPost, "/api/v1/generate", generateBody)
	if rec.Code != http.StatusOK {
		t.Fatalf("generate failed: %s", rec.Body.String())
	}
	var res Result
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}

	rec = doRequest(e, http.MethodGet, "/api/v1/runs/"+res.RunID.String()+"/export/ndjson", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("ndjson export: %d", rec.Code)
	}
	if got := rec.Header().Get(echo.HeaderContentType); got != "application/x-ndjson" {
		t.Errorf("content type = %s", got)
	}
	lines := strings.Split(strings.TrimRight(rec.Body.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Errorf("ndjson lines = %d, want 2", len(lines))
	}

	rec = doRequest(e, http.MethodGet, "/api/v1/runs/"+res.RunID.String()+"/export/csv", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("csv export: %d", rec.Code)
	}
	if !strings.HasPrefix(rec.Body.String(), "run_id,patient_id,template_path,outcome,score,medical_score") {
		t.Errorf("csv header = %q", strings.SplitN(rec.Body.String(), "\n", 2)[0])
	}
}

func TestHandler_ExportPagerStops(t *testing.T) {
	repo := NewMemoryRepo()
	run := storedRun(1)
	if err := repo.CreateRun(context.Background(), run, storedDocs(run.ID, 3)); err != nil {
		t.Fatal(err)
	}
	h := &Handler{repo: repo}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(run.ID.String())

	docs, err := h.exportDocs(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(docs) != 3 {
		t.Errorf("collected %d documents, want 3", len(docs))
	}
}
