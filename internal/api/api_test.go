package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/starford/dtokit/internal/recordservice"
	"github.com/starford/dtokit/internal/schemas"
	"github.com/starford/dtokit/internal/testutil"
)

const userDoc = `
schemas:
  - name: user
    description: Public profile
    fields:
      - { name: id, type: string }
      - { name: age, type: int }
      - { name: score, type: float }
      - { name: admin, type: bool }
      - { name: tags, type: array }
      - { name: born_at, type: date }
      - { name: extra }
`

// testEnv sets up a temp schema dir, SQLite DB, service, and router for testing.
// An empty authToken means disabled mode.
func testEnv(t *testing.T, authToken string) http.Handler {
	t.Helper()
	return testEnvWithSSE(t, authToken != "", authToken, nil)
}

func testEnvWithSSE(t *testing.T, authEnabled bool, token string, sseHandler http.Handler) http.Handler {
	t.Helper()
	_, store := testutil.TestSchemaDir(t, map[string]string{"users.yaml": userDoc})
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	reg := schemas.NewRegistry()
	if err := schemas.Load(reg, store, logger); err != nil {
		t.Fatalf("Load: %v", err)
	}
	svc := recordservice.NewService(reg, testutil.TestDB(t), nil)
	docs := NewDocumentHandler(store, reg, logger)
	return NewRouter(svc, docs, authEnabled, token, sseHandler)
}

func do(t *testing.T, router http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func jsonRequest(method, target string, v any) *http.Request {
	body, _ := json.Marshal(v)
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

type recordBody struct {
	Schema string         `json:"schema"`
	Record map[string]any `json:"record"`
}

func decodeRecord(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp recordBody
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v\n%s", err, w.Body.String())
	}
	return resp.Record
}

func TestListAndGetSchema(t *testing.T) {
	router := testEnv(t, "")

	w := do(t, router, httptest.NewRequest(http.MethodGet, "/schemas", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("list = %d", w.Code)
	}
	var list SchemaListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &list)
	if list.Total != 1 || list.Schemas[0].Name != "user" {
		t.Errorf("list = %+v", list)
	}

	w = do(t, router, httptest.NewRequest(http.MethodGet, "/schemas/user", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("get = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"type":"date"`) {
		t.Errorf("detail lacks field types: %s", w.Body.String())
	}

	w = do(t, router, httptest.NewRequest(http.MethodGet, "/schemas/ghost", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown schema = %d, want 404", w.Code)
	}
}

func TestGetJSONSchema(t *testing.T) {
	router := testEnv(t, "")
	w := do(t, router, httptest.NewRequest(http.MethodGet, "/schemas/user/jsonschema", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("jsonschema = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/schema+json" {
		t.Errorf("content type = %q", ct)
	}
	if !strings.Contains(w.Body.String(), `"title":"user"`) {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestPopulateRecord_JSONBody(t *testing.T) {
	router := testEnv(t, "")
	req := jsonRequest(http.MethodPost, "/records/user?age=1&id=from-query", map[string]any{
		"age":     "42abc",
		"score":   "1.5",
		"admin":   "0",
		"tags":    "solo",
		"born_at": "2024-01-15",
		"extra":   map[string]any{"k": 1},
		"ignored": true,
	})
	w := do(t, router, req)
	if w.Code != http.StatusOK {
		t.Fatalf("populate = %d, body = %s", w.Code, w.Body.String())
	}
	rec := decodeRecord(t, w)
	want := map[string]any{
		"id":      "from-query",
		"age":     float64(42),
		"score":   1.5,
		"admin":   false,
		"tags":    []any{"solo"},
		"born_at": rec["born_at"],
		"extra":   map[string]any{"k": float64(1)},
	}
	if diff := cmp.Diff(want, rec); diff != "" {
		t.Errorf("record:\n%s", diff)
	}
	if s, _ := rec["born_at"].(string); !strings.HasPrefix(s, "2024-01-15") {
		t.Errorf("born_at = %v", rec["born_at"])
	}
}

func TestPopulateRecord_FormBody(t *testing.T) {
	router := testEnv(t, "")
	form := url.Values{"age": {"7"}, "tags[]": {"a", "b"}, "admin": {"on"}}
	req := httptest.NewRequest(http.MethodPost, "/records/user", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := do(t, router, req)
	if w.Code != http.StatusOK {
		t.Fatalf("populate = %d, body = %s", w.Code, w.Body.String())
	}
	rec := decodeRecord(t, w)
	if rec["age"] != float64(7) || rec["admin"] != true {
		t.Errorf("record = %v", rec)
	}
	if diff := cmp.Diff([]any{"a", "b"}, rec["tags"]); diff != "" {
		t.Errorf("tags:\n%s", diff)
	}
	if rec["id"] != nil {
		t.Errorf("absent id = %v, want null", rec["id"])
	}
}

func TestPopulateRecord_Errors(t *testing.T) {
	router := testEnv(t, "")

	w := do(t, router, jsonRequest(http.MethodPost, "/records/user", map[string]any{"born_at": "not a date"}))
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("bad date = %d, want 422", w.Code)
	}

	w = do(t, router, jsonRequest(http.MethodPost, "/records/ghost", map[string]any{}))
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown schema = %d, want 404", w.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/records/user", strings.NewReader("{broken"))
	req.Header.Set("Content-Type", "application/json")
	if w = do(t, router, req); w.Code != http.StatusBadRequest {
		t.Errorf("bad JSON = %d, want 400", w.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/records/user", strings.NewReader("[1,2]"))
	req.Header.Set("Content-Type", "application/json")
	if w = do(t, router, req); w.Code != http.StatusBadRequest {
		t.Errorf("JSON array = %d, want 400", w.Code)
	}
}

func TestPopulateRecord_NumericDate(t *testing.T) {
	router := testEnv(t, "")
	req := httptest.NewRequest(http.MethodPost, "/records/user", strings.NewReader(`{"born_at": 1700000000}`))
	req.Header.Set("Content-Type", "application/json")
	w := do(t, router, req)
	if w.Code != http.StatusOK {
		t.Fatalf("numeric date = %d, body = %s", w.Code, w.Body.String())
	}
	rec := decodeRecord(t, w)
	if rec["born_at"] != "2023-11-14T22:13:20Z" {
		t.Errorf("born_at = %v", rec["born_at"])
	}
}

func TestPopulateRecord_FloatOverflow(t *testing.T) {
	router := testEnv(t, "")
	w := do(t, router, jsonRequest(http.MethodPost, "/records/user", map[string]any{"score": "1e999"}))
	if w.Code != http.StatusOK {
		t.Fatalf("overflow = %d, body = %s", w.Code, w.Body.String())
	}
	rec := decodeRecord(t, w)
	if rec["score"] != math.MaxFloat64 {
		t.Errorf("score = %v, want max float", rec["score"])
	}
}

func TestWriteJSON_UnencodableValue(t *testing.T) {
	w := httptest.NewRecorder()
	writeJSON(w, http.StatusOK, map[string]any{"v": math.Inf(1)})
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
	var body errResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil || body.Error == "" {
		t.Errorf("body = %q (%v)", w.Body.String(), err)
	}
}

func TestAssignRecord(t *testing.T) {
	router := testEnv(t, "")
	w := do(t, router, jsonRequest(http.MethodPost, "/records/user/assign", map[string]any{
		"data": map[string]any{"age": 3, "admin": true},
		"set":  map[string]any{"age": nil, "admin": "", "nope": 1},
	}))
	if w.Code != http.StatusOK {
		t.Fatalf("assign = %d, body = %s", w.Code, w.Body.String())
	}
	rec := decodeRecord(t, w)
	if rec["age"] != float64(0) || rec["admin"] != false {
		t.Errorf("record = %v", rec)
	}

	w = do(t, router, jsonRequest(http.MethodPost, "/records/user/assign", map[string]any{"data": map[string]any{}}))
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing set = %d, want 400", w.Code)
	}
}

func createModel(t *testing.T, router http.Handler, kind string, attrs map[string]any) ModelResponse {
	t.Helper()
	w := do(t, router, jsonRequest(http.MethodPost, "/models/"+kind, map[string]any{"attributes": attrs}))
	if w.Code != http.StatusCreated {
		t.Fatalf("create model = %d, body = %s", w.Code, w.Body.String())
	}
	var ent ModelResponse
	_ = json.Unmarshal(w.Body.Bytes(), &ent)
	return ent
}

func TestRecordFromModel(t *testing.T) {
	router := testEnv(t, "")
	ent := createModel(t, router, "account", map[string]any{"age": "30", "admin": 1, "secret": "x"})

	w := do(t, router, httptest.NewRequest(http.MethodGet, "/records/user/models/"+ent.ID, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("from model = %d, body = %s", w.Code, w.Body.String())
	}
	rec := decodeRecord(t, w)
	if rec["id"] != ent.ID || rec["age"] != float64(30) || rec["admin"] != true {
		t.Errorf("record = %v", rec)
	}
	if _, ok := rec["secret"]; ok {
		t.Error("undeclared model attribute leaked into record")
	}

	w = do(t, router, httptest.NewRequest(http.MethodGet, "/records/user/models/missing", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("missing model = %d, want 404", w.Code)
	}
}

func TestRecordFromModel_LargeInteger(t *testing.T) {
	router := testEnv(t, "")
	req := httptest.NewRequest(http.MethodPost, "/models/account", strings.NewReader(`{"attributes":{"age":9007199254740993}}`))
	req.Header.Set("Content-Type", "application/json")
	w := do(t, router, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("create model = %d, body = %s", w.Code, w.Body.String())
	}
	var ent ModelResponse
	_ = json.Unmarshal(w.Body.Bytes(), &ent)

	w = do(t, router, httptest.NewRequest(http.MethodGet, "/records/user/models/"+ent.ID, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("from model = %d, body = %s", w.Code, w.Body.String())
	}
	var resp struct {
		Record map[string]json.RawMessage `json:"record"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if got := string(resp.Record["age"]); got != "9007199254740993" {
		t.Errorf("age = %s, want 9007199254740993", got)
	}
}

func TestModelCRUD(t *testing.T) {
	router := testEnv(t, "")
	ent := createModel(t, router, "account", map[string]any{"age": 1})

	w := do(t, router, httptest.NewRequest(http.MethodGet, "/models/account/"+ent.ID, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("get = %d", w.Code)
	}
	if etag := w.Header().Get("ETag"); etag != `"`+ent.Checksum+`"` {
		t.Errorf("ETag = %q", etag)
	}

	w = do(t, router, httptest.NewRequest(http.MethodGet, "/models/other/"+ent.ID, nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("wrong kind = %d, want 404", w.Code)
	}

	w = do(t, router, httptest.NewRequest(http.MethodGet, "/models?kind=account", nil))
	var list ModelListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &list)
	if w.Code != http.StatusOK || list.Total != 1 {
		t.Errorf("list = %d %+v", w.Code, list)
	}

	w = do(t, router, httptest.NewRequest(http.MethodDelete, "/models/account/"+ent.ID, nil))
	if w.Code != http.StatusNoContent {
		t.Errorf("delete = %d, want 204", w.Code)
	}
	w = do(t, router, httptest.NewRequest(http.MethodGet, "/models/account/"+ent.ID, nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", w.Code)
	}
}

func TestUpdateModel_OptimisticLocking(t *testing.T) {
	router := testEnv(t, "")
	ent := createModel(t, router, "account", map[string]any{"age": 1})

	req := jsonRequest(http.MethodPut, "/models/account/"+ent.ID, map[string]any{"attributes": map[string]any{"age": 2}})
	req.Header.Set("If-Match", `"stale"`)
	if w := do(t, router, req); w.Code != http.StatusConflict {
		t.Errorf("stale update = %d, want 409", w.Code)
	}

	req = jsonRequest(http.MethodPut, "/models/account/"+ent.ID, map[string]any{"attributes": map[string]any{"age": 2}})
	req.Header.Set("If-Match", `"`+ent.Checksum+`"`)
	if w := do(t, router, req); w.Code != http.StatusOK {
		t.Errorf("matching update = %d, want 200", w.Code)
	}

	req = jsonRequest(http.MethodPut, "/models/account/"+ent.ID, map[string]any{"attributes": map[string]any{"age": 3}})
	if w := do(t, router, req); w.Code != http.StatusOK {
		t.Errorf("update without If-Match = %d, want 200", w.Code)
	}
}

func TestCreateModel_Validation(t *testing.T) {
	router := testEnv(t, "")
	if w := do(t, router, jsonRequest(http.MethodPost, "/models/Bad%20Kind", map[string]any{"attributes": map[string]any{}})); w.Code != http.StatusBadRequest {
		t.Errorf("bad kind = %d, want 400", w.Code)
	}
	if w := do(t, router, jsonRequest(http.MethodPost, "/models/account", map[string]any{})); w.Code != http.StatusBadRequest {
		t.Errorf("missing attributes = %d, want 400", w.Code)
	}
}

func uploadRequest(t *testing.T, filename, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = part.Write([]byte(content))
	_ = mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/documents", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestDocuments_UploadRegistersSchema(t *testing.T) {
	router := testEnv(t, "")

	w := do(t, router, uploadRequest(t, "tags.yaml", "schemas: [{name: tag, fields: [{name: label, type: string}]}]"))
	if w.Code != http.StatusCreated {
		t.Fatalf("upload = %d, body = %s", w.Code, w.Body.String())
	}
	var resp DocumentResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.File != "tags.yaml" || len(resp.Schemas) != 1 {
		t.Errorf("response = %+v", resp)
	}

	if w = do(t, router, httptest.NewRequest(http.MethodGet, "/schemas/tag", nil)); w.Code != http.StatusOK {
		t.Errorf("uploaded schema = %d, want 200", w.Code)
	}
	w = do(t, router, httptest.NewRequest(http.MethodGet, "/documents/tags.yaml", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "name: tag") {
		t.Errorf("download = %d %s", w.Code, w.Body.String())
	}

	if w = do(t, router, httptest.NewRequest(http.MethodDelete, "/documents/tags.yaml", nil)); w.Code != http.StatusNoContent {
		t.Errorf("delete = %d, want 204", w.Code)
	}
	if w = do(t, router, httptest.NewRequest(http.MethodGet, "/schemas/tag", nil)); w.Code != http.StatusNotFound {
		t.Errorf("schema after delete = %d, want 404", w.Code)
	}
}

func TestDocuments_Rejects(t *testing.T) {
	router := testEnv(t, "")

	if w := do(t, router, uploadRequest(t, "bad.yaml", "schemas: [{name: x, fields: [{name: a, type: decimal}]}]")); w.Code != http.StatusUnprocessableEntity {
		t.Errorf("invalid document = %d, want 422", w.Code)
	}
	if w := do(t, router, uploadRequest(t, "notes.txt", "schemas: []")); w.Code != http.StatusBadRequest {
		t.Errorf("wrong extension = %d, want 400", w.Code)
	}
	if w := do(t, router, httptest.NewRequest(http.MethodGet, "/documents/missing.yaml", nil)); w.Code != http.StatusNotFound {
		t.Errorf("missing document = %d, want 404", w.Code)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	router := testEnv(t, "secret123")
	req := httptest.NewRequest(http.MethodGet, "/schemas", nil)
	req.Header.Set("Authorization", "Bearer secret123")
	if w := do(t, router, req); w.Code != http.StatusOK {
		t.Errorf("authed list = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	router := testEnv(t, "secret123")
	if w := do(t, router, httptest.NewRequest(http.MethodGet, "/schemas", nil)); w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	router := testEnv(t, "secret123")
	req := httptest.NewRequest(http.MethodGet, "/schemas", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	if w := do(t, router, req); w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_HeaderForms(t *testing.T) {
	router := testEnv(t, "secret123")
	tests := map[string]int{
		"bearer secret123":  http.StatusOK,
		"BEARER  secret123": http.StatusOK,
		"Basic secret123":   http.StatusUnauthorized,
		"Bearer":            http.StatusUnauthorized,
		"Bearer secret":     http.StatusUnauthorized,
		"secret123":         http.StatusUnauthorized,
	}
	for header, want := range tests {
		req := httptest.NewRequest(http.MethodGet, "/schemas", nil)
		req.Header.Set("Authorization", header)
		w := do(t, router, req)
		if w.Code != want {
			t.Errorf("%q = %d, want %d", header, w.Code, want)
		}
		if want == http.StatusUnauthorized && w.Header().Get("WWW-Authenticate") == "" {
			t.Errorf("%q: missing WWW-Authenticate", header)
		}
	}
}

// blockingSSE writes headers and blocks until the request context is done.
var blockingSSE = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	<-r.Context().Done()
})

func TestSSEEvents_AuthProtected(t *testing.T) {
	router := testEnvWithSSE(t, true, "secret", blockingSSE)
	if w := do(t, router, httptest.NewRequest(http.MethodGet, "/events", nil)); w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	router := testEnvWithSSE(t, true, "tok", blockingSSE)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	if w := do(t, router, req); w.Code == http.StatusUnauthorized {
		t.Error("SSE with valid token should not 401")
	}
}

func TestReadPayload_QueryLists(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/x?a=1&a=2&b[]=3&c=4", nil)
	p, err := readPayload(req)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]any{"a": []any{"1", "2"}, "b": []any{"3"}, "c": "4"}
	if diff := cmp.Diff(want, p.All()); diff != "" {
		t.Errorf("payload:\n%s", diff)
	}
}
