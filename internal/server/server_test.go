package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"compliance/internal/compliance"
	"compliance/internal/domain"
	"compliance/internal/index"
	"compliance/internal/pointer"
	"compliance/internal/store"
	"compliance/internal/store/sqlite"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeChecker struct {
	st  store.Store
	err error
}

func (f *fakeChecker) Check(ctx context.Context, id string) (*compliance.Report, error) {
	if f.err != nil {
		return nil, f.err
	}
	status := domain.StatusFullyCompliant
	if _, err := f.st.UpdatePointer(ctx, &store.UpdatePointer{ID: id, ComplianceStatus: &status}); err != nil {
		return nil, err
	}
	resultID, err := f.st.CreateResult(ctx, id, status, "All requirements met.")
	if err != nil {
		return nil, err
	}
	return &compliance.Report{PointerID: id, ResultID: resultID, Status: status, Reasons: "All requirements met.", Elapsed: 2 * time.Second}, nil
}

type fixture struct {
	router  *gin.Engine
	st      store.Store
	checker *fakeChecker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := sqlite.NewDB(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	checker := &fakeChecker{st: db}
	svc := pointer.NewService(db, []int{2024}, []string{"English", "Arabic"}, nil)
	srv := New(db, svc, func() (Checker, error) { return checker, nil }, nil)
	return &fixture{router: srv.Router(), st: db, checker: checker}
}

func pointerForm(t *testing.T, fields map[string]string, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	for name, content := range files {
		part, err := w.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

func (f *fixture) do(method, path string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) create(t *testing.T) map[string]any {
	t.Helper()
	body, ct := pointerForm(t, map[string]string{
		"name":                    "Data Retention",
		"objective":               "1. Keep records",
		"compliance_requirements": "Retain records for five years",
		"language":                "English",
		"year":                    "2024",
	}, map[string]string{"policy.pdf": "%PDF-1.4"})
	w := f.do(http.MethodPost, "/api/v1/pointers", body, ct)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHealthCheck(t *testing.T) {
	f := newFixture(t)
	w := f.do(http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	w := f.do(http.MethodGet, "/metrics", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCreateAndGetPointer(t *testing.T) {
	f := newFixture(t)
	created := f.create(t)
	assert.Equal(t, "Data Retention", created["name"])
	assert.Equal(t, "Keep records", created["objective"])
	assert.Equal(t, "Not Checked", created["compliance_status"])
	assert.Equal(t, "not-checked", created["status_class"])
	require.Len(t, created["documents"], 1)

	id := created["id"].(string)
	w := f.do(http.MethodGet, "/api/v1/pointers/"+id, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "policy.pdf")

	w = f.do(http.MethodGet, "/api/v1/pointers?year=2024&language=English", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	w = f.do(http.MethodGet, "/api/v1/pointers?language=Arabic", nil, "")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Empty(t, list)
}

func TestCreatePointerErrors(t *testing.T) {
	f := newFixture(t)

	body, ct := pointerForm(t, map[string]string{"name": "No docs", "language": "English", "year": "2024"}, nil)
	w := f.do(http.MethodPost, "/api/v1/pointers", body, ct)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "upload at least one")

	body, ct = pointerForm(t, map[string]string{"name": "Bad year", "language": "English", "year": "1999"}, map[string]string{"a.pdf": "x"})
	w = f.do(http.MethodPost, "/api/v1/pointers", body, ct)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	body, ct = pointerForm(t, map[string]string{"name": "Bad file", "language": "English", "year": "2024"}, map[string]string{"a.exe": "x"})
	w = f.do(http.MethodPost, "/api/v1/pointers", body, ct)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodPost, "/api/v1/pointers", bytes.NewBufferString("{}"), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdatePointerResetsStatus(t *testing.T) {
	f := newFixture(t)
	id := f.create(t)["id"].(string)

	w := f.do(http.MethodPost, "/api/v1/pointers/"+id+"/check", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	body, ct := pointerForm(t, map[string]string{"name": "Renamed", "language": "Arabic", "year": "2024"}, nil)
	w = f.do(http.MethodPut, "/api/v1/pointers/"+id, body, ct)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, "Renamed", out["name"])
	assert.Equal(t, "Arabic", out["language"])
	assert.Equal(t, "Not Checked", out["compliance_status"])

	body, ct = pointerForm(t, map[string]string{"name": "Ghost", "language": "English", "year": "2024"}, nil)
	w = f.do(http.MethodPut, "/api/v1/pointers/missing", body, ct)
	assert.Equal(t, http.StatusNotFound, w.Code)

	body, ct = pointerForm(t, map[string]string{"name": "Ghost", "language": "English"}, nil)
	w = f.do(http.MethodPut, "/api/v1/pointers/missing", body, ct)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdatePointerKeepsYear(t *testing.T) {
	f := newFixture(t)
	id := f.create(t)["id"].(string)

	body, ct := pointerForm(t, map[string]string{"name": "No year given", "language": "English"}, nil)
	w := f.do(http.MethodPut, "/api/v1/pointers/"+id, body, ct)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, "No year given", out["name"])
	assert.Equal(t, 2024.0, out["year"])
}

func TestDocuments(t *testing.T) {
	f := newFixture(t)
	id := f.create(t)["id"].(string)

	body, ct := pointerForm(t, nil, map[string]string{"scan.png": "png-bytes"})
	w := f.do(http.MethodPost, "/api/v1/pointers/"+id+"/documents", body, ct)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var added struct {
		DocumentIDs []string `json:"document_ids"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &added))
	require.Len(t, added.DocumentIDs, 1)

	w = f.do(http.MethodGet, "/api/v1/documents/"+added.DocumentIDs[0]+"/download", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "png-bytes", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), "scan.png")

	w = f.do(http.MethodGet, "/api/v1/pointers/"+id+"/documents", nil, "")
	var docs []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &docs))
	assert.Len(t, docs, 2)

	w = f.do(http.MethodDelete, "/api/v1/documents/"+added.DocumentIDs[0], nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	w = f.do(http.MethodDelete, "/api/v1/documents/"+added.DocumentIDs[0], nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	body, ct = pointerForm(t, nil, nil)
	w = f.do(http.MethodPost, "/api/v1/pointers/"+id+"/documents", body, ct)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAddDocumentsMixedBatchStoresNothing(t *testing.T) {
	f := newFixture(t)
	id := f.create(t)["id"].(string)

	body, ct := pointerForm(t, nil, map[string]string{"a.pdf": "%PDF", "b.exe": "MZ"})
	w := f.do(http.MethodPost, "/api/v1/pointers/"+id+"/documents", body, ct)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "b.exe: unsupported file type")

	docs, err := f.st.ListDocuments(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "policy.pdf", docs[0].Name)
}

func TestDownloadQuotesFilename(t *testing.T) {
	f := newFixture(t)
	id := f.create(t)["id"].(string)
	docID, err := f.st.CreateDocument(context.Background(), id, `board "final".pdf`, []byte("%PDF"))
	require.NoError(t, err)

	w := f.do(http.MethodGet, "/api/v1/documents/"+docID+"/download", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	disposition, params, err := mime.ParseMediaType(w.Header().Get("Content-Disposition"))
	require.NoError(t, err)
	assert.Equal(t, "attachment", disposition)
	assert.Equal(t, `board "final".pdf`, params["filename"])
}

func TestCheckAndResults(t *testing.T) {
	f := newFixture(t)
	id := f.create(t)["id"].(string)

	w := f.do(http.MethodPost, "/api/v1/pointers/"+id+"/check", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var report map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, "Fully Compliant", report["compliance_status"])
	assert.Equal(t, "compliant", report["status_class"])
	assert.Equal(t, 2.0, report["elapsed_seconds"])

	w = f.do(http.MethodGet, "/api/v1/pointers/"+id+"/results", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var results []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &results))
	require.Len(t, results, 1)
	assert.Equal(t, "All requirements met.", results[0]["details"])
}

func TestDeletePointer(t *testing.T) {
	f := newFixture(t)
	id := f.create(t)["id"].(string)

	w := f.do(http.MethodDelete, "/api/v1/pointers/"+id, nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	w = f.do(http.MethodGet, "/api/v1/pointers/"+id, nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = f.do(http.MethodDelete, "/api/v1/pointers/"+id, nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCheckErrors(t *testing.T) {
	f := newFixture(t)
	id := f.create(t)["id"].(string)

	f.checker.err = compliance.ErrNoDocuments
	w := f.do(http.MethodPost, "/api/v1/pointers/"+id+"/check", nil, "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	f.checker.err = errors.Wrap(index.ErrIndexNotFound, "2024/English")
	w = f.do(http.MethodPost, "/api/v1/pointers/"+id+"/check", nil, "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	f.checker.err = errors.New("model unavailable")
	w = f.do(http.MethodPost, "/api/v1/pointers/"+id+"/check", nil, "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestStatusCode(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, StatusCode(errors.Wrap(store.ErrNotFound, "pointer x")))
	assert.Equal(t, http.StatusBadRequest, StatusCode(errors.Wrap(pointer.ErrInvalid, "name is required")))
	assert.Equal(t, http.StatusBadRequest, StatusCode(pointer.ErrNoUploads))
	assert.Equal(t, http.StatusBadRequest, StatusCode(errors.Wrap(pointer.ErrUnsupportedUpload, "b.exe")))
	assert.Equal(t, http.StatusUnprocessableEntity, StatusCode(compliance.ErrNoEvidence))
	assert.Equal(t, http.StatusInternalServerError, StatusCode(errors.New("boom")))
}
