package deid

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/ehr/deid/internal/platform/auth"
	"github.com/ehr/deid/internal/platform/fhir"
)

func newTestHandler(t *testing.T) (*Handler, *mockRepo, *echo.Echo) {
	t.Helper()
	svc, repo := newTestService(t)
	return NewHandler(svc), repo, echo.New()
}

func postJSON(e *echo.Echo, path, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func decodeOutcome(t *testing.T, rec *httptest.ResponseRecorder) fhir.OperationOutcome {
	t.Helper()
	var oo fhir.OperationOutcome
	if err := json.Unmarshal(rec.Body.Bytes(), &oo); err != nil {
		t.Fatalf("decode outcome: %v", err)
	}
	if oo.ResourceType != "OperationOutcome" || len(oo.Issue) == 0 {
		t.Fatalf("expected an OperationOutcome, got %s", rec.Body.String())
	}
	return oo
}

func TestHandler_Anonymize(t *testing.T) {
	h, _, e := newTestHandler(t)
	c, rec := postJSON(e, "/api/v1/anonymize", `{"resource":`+patientDoc+`}`)

	if err := h.Anonymize(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var res DocumentResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(res.Resource), "Smith") {
		t.Error("response still contains the original family name")
	}
}

func TestHandler_Anonymize_Hints(t *testing.T) {
	h, _, e := newTestHandler(t)
	c, rec := postJSON(e, "/api/v1/anonymize", `{"resource":`+observationDoc+`,"crossReferenceHints":{"P1":"abc"}}`)

	if err := h.Anonymize(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var res DocumentResult
	json.Unmarshal(rec.Body.Bytes(), &res)
	if got := subjectOf(t, res.Resource); got != "Patient/abc" {
		t.Errorf("expected Patient/abc, got %s", got)
	}
}

func TestHandler_Anonymize_BadRequest(t *testing.T) {
	cases := map[string]string{
		"malformed body":   `{`,
		"missing resource": `{}`,
		"unsupported kind": `{"resource":{"resourceType":"Encounter","id":"E1"}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			h, _, e := newTestHandler(t)
			c, rec := postJSON(e, "/api/v1/anonymize", body)
			if err := h.Anonymize(c); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", rec.Code)
			}
			if oo := decodeOutcome(t, rec); oo.Issue[0].Code != fhir.IssueTypeInvalid {
				t.Errorf("expected invalid issue, got %s", oo.Issue[0].Code)
			}
		})
	}
}

func TestHandler_AnonymizeBatch_NotJSON(t *testing.T) {
	h, _, e := newTestHandler(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/anonymize/batch", strings.NewReader("resourceType=Patient"))
	req.Header.Set(echo.HeaderContentType, echo.MIMETextPlain)
	rec := httptest.NewRecorder()
	if err := h.AnonymizeBatch(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
	if oo := decodeOutcome(t, rec); oo.Issue[0].Code != fhir.IssueTypeInvalid {
		t.Errorf("expected invalid issue, got %s", oo.Issue[0].Code)
	}
}

func TestHandler_AnonymizeBatch(t *testing.T) {
	h, _, e := newTestHandler(t)
	c, rec := postJSON(e, "/api/v1/anonymize/batch", `{"resources":[`+observationDoc+`,`+patientDoc+`]}`)

	if err := h.AnonymizeBatch(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var out BatchOutcome
	json.Unmarshal(rec.Body.Bytes(), &out)
	if out.Succeeded != 2 || len(out.Items) != 2 {
		t.Errorf("unexpected outcome %+v", out)
	}
	if len(out.Items[0].Warnings) != 0 {
		t.Errorf("expected the observation subject to resolve, got %v", out.Items[0].Warnings)
	}
}

func TestHandler_AnonymizeBatch_Empty(t *testing.T) {
	h, _, e := newTestHandler(t)
	c, rec := postJSON(e, "/api/v1/anonymize/batch", `{"resources":[]}`)
	if err := h.AnonymizeBatch(c); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestHandler_AnonymizeStoredPatient(t *testing.T) {
	h, repo, e := newTestHandler(t)
	repo.addSource(patientDoc)

	c, rec := postJSON(e, "/", "")
	c.SetParamNames("id")
	c.SetParamValues("P1")
	if err := h.AnonymizeStoredPatient(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	// The original id must not be serialized.
	if strings.Contains(rec.Body.String(), `"P1"`) {
		t.Error("response exposes the original patient id")
	}
}

func TestHandler_AnonymizeStoredPatient_NotFound(t *testing.T) {
	h, _, e := newTestHandler(t)
	c, rec := postJSON(e, "/", "")
	c.SetParamNames("id")
	c.SetParamValues("nope")
	if err := h.AnonymizeStoredPatient(c); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
	if oo := decodeOutcome(t, rec); oo.Issue[0].Code != fhir.IssueTypeNotFound {
		t.Errorf("expected not-found issue, got %s", oo.Issue[0].Code)
	}
}

func TestHandler_AnonymizeAll(t *testing.T) {
	h, repo, e := newTestHandler(t)
	repo.addSource(patientDoc)
	repo.addSource(observationDoc)

	c, rec := postJSON(e, "/", "")
	if err := h.AnonymizeAll(c); err != nil {
		t.Fatal(err)
	}
	var summary RunSummary
	json.Unmarshal(rec.Body.Bytes(), &summary)
	if summary.ByKind["Patient"] != 1 || summary.ByKind["Observation"] != 1 {
		t.Errorf("unexpected summary %+v", summary)
	}
}

func TestHandler_ListAndGetAnonymized(t *testing.T) {
	h, repo, e := newTestHandler(t)
	repo.addSource(patientDoc)
	stored, err := h.svc.AnonymizeStoredPatient(context.Background(), "P1")
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodGet, "/?limit=5", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("type")
	c.SetParamValues("Patient")
	if err := h.ListAnonymized(c); err != nil {
		t.Fatal(err)
	}
	var page struct {
		Data  []AnonymizedResource `json:"data"`
		Total int                  `json:"total"`
		Limit int                  `json:"limit"`
	}
	json.Unmarshal(rec.Body.Bytes(), &page)
	if page.Total != 1 || len(page.Data) != 1 || page.Limit != 5 {
		t.Errorf("unexpected page %+v", page)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	rec = httptest.NewRecorder()
	c = e.NewContext(req, rec)
	c.SetParamNames("type", "id")
	c.SetParamValues("Patient", stored.Anonymized.AnonymizedFHIRID)
	if err := h.GetAnonymized(c); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestHandler_GetAnonymized_UnsupportedType(t *testing.T) {
	h, _, e := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("type", "id")
	c.SetParamValues("Encounter", "x")
	if err := h.GetAnonymized(c); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestHandler_CacheStats(t *testing.T) {
	h, _, e := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	if err := h.CacheStats(e.NewContext(req, rec)); err != nil {
		t.Fatal(err)
	}
	var body map[string]any
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["total"] != float64(0) {
		t.Errorf("expected empty cache, got %v", body)
	}
}

func TestHandler_RegisterRoutes_RBAC(t *testing.T) {
	h, _, e := newTestHandler(t)
	var roles []string
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := auth.WithUser(c.Request().Context(), "tester", roles)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	})
	h.RegisterRoutes(e.Group("/api/v1"))

	tests := []struct {
		name   string
		roles  []string
		method string
		path   string
		body   string
		want   int
	}{
		{"reader can read cache stats", []string{auth.RoleReader}, http.MethodGet, "/api/v1/cache/stats", "", http.StatusOK},
		{"reader cannot anonymize", []string{auth.RoleReader}, http.MethodPost, "/api/v1/anonymize", `{"resource":` + patientDoc + `}`, http.StatusForbidden},
		{"anonymizer can anonymize", []string{auth.RoleAnonymizer}, http.MethodPost, "/api/v1/anonymize", `{"resource":` + patientDoc + `}`, http.StatusOK},
		{"admin can read", []string{auth.RoleAdmin}, http.MethodGet, "/api/v1/cache/stats", "", http.StatusOK},
		{"no roles", nil, http.MethodGet, "/api/v1/cache/stats", "", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			roles = tt.roles
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestHandler_AnonymizeBundle(t *testing.T) {
	h, _, e := newTestHandler(t)
	c, rec := postJSON(e, "/api/v1/anonymize/bundle",
		`{"resourceType":"Bundle","type":"collection","entry":[{"resource":`+patientDoc+`}]}`)
	if err := h.AnonymizeBundle(c); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var b fhir.Bundle
	if err := json.Unmarshal(rec.Body.Bytes(), &b); err != nil {
		t.Fatal(err)
	}
	if b.ResourceType != "Bundle" || len(b.Entry) != 1 {
		t.Errorf("unexpected bundle %+v", b)
	}

	c, rec = postJSON(e, "/api/v1/anonymize/bundle", `{"resourceType":"Patient"}`)
	if err := h.AnonymizeBundle(c); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a non-bundle, got %d", rec.Code)
	}
}
