package web

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/timClicks/messytables"
	"github.com/timClicks/messytables/internal/config"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	cfg := &config.Config{}
	cfg.Server.RequestTimeout = 30 * time.Second
	cfg.Infer.SampleWindow = 1000
	cfg.Infer.MaxBodySize = 8 << 20
	cfg.Infer.HeaderTolerance = 1

	return NewServer(cfg, nil)
}

func doRequest(t *testing.T, s *Server, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

// multipartFile builds a multipart body holding content as the "file" field.
func multipartFile(t *testing.T, filename, content string) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write([]byte(content)); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close form: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func decodeInfer(t *testing.T, rec *httptest.ResponseRecorder) InferResponse {
	t.Helper()
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", rec.Code, rec.Body.String())
	}
	var resp InferResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder, wantStatus int) ErrorResponse {
	t.Helper()
	if rec.Code != wantStatus {
		t.Fatalf("status = %d, want %d, body: %s", rec.Code, wantStatus, rec.Body.String())
	}
	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	return resp
}

// ============================================================================
// Health
// ============================================================================

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %q, want %q", body["status"], "ok")
	}
}

func TestSecurityHeaders(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
	if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q, want DENY", got)
	}
}

// ============================================================================
// Infer
// ============================================================================

func TestInferMultipartCSV(t *testing.T) {
	s := newTestServer(t)

	content := "id,amount,when\n1,3.50,2011-01-01\n2,4.25,2011-01-02\n"
	body, contentType := multipartFile(t, "ledger.csv", content)
	req := httptest.NewRequest(http.MethodPost, "/api/infer", body)
	req.Header.Set("Content-Type", contentType)

	resp := decodeInfer(t, doRequest(t, s, req))

	if len(resp.Tables) != 1 {
		t.Fatalf("tables = %d, want 1", len(resp.Tables))
	}
	tbl := resp.Tables[0]
	if tbl.Name != "ledger" {
		t.Errorf("name = %q, want %q", tbl.Name, "ledger")
	}
	if tbl.Typed {
		t.Error("typed = true for a CSV source")
	}
	if tbl.HeaderRow != 0 {
		t.Errorf("header_row = %d, want 0", tbl.HeaderRow)
	}
	wantHeaders := []string{"id", "amount", "when"}
	if len(tbl.Headers) != len(wantHeaders) {
		t.Fatalf("headers = %v, want %v", tbl.Headers, wantHeaders)
	}
	for i, h := range wantHeaders {
		if tbl.Headers[i] != h {
			t.Errorf("headers[%d] = %q, want %q", i, tbl.Headers[i], h)
		}
	}

	wantCols := []struct{ name, typ, sqlType string }{
		{"id", "Integer", "bigint"},
		{"amount", "Float", "double precision"},
		{"when", "Date", "timestamp"},
	}
	if len(tbl.Columns) != len(wantCols) {
		t.Fatalf("columns = %d, want %d", len(tbl.Columns), len(wantCols))
	}
	for i, want := range wantCols {
		col := tbl.Columns[i]
		if col.Name != want.name || col.Type != want.typ || col.SQLType != want.sqlType {
			t.Errorf("columns[%d] = %+v, want %+v", i, col, want)
		}
	}
	if tbl.Columns[2].Format != "2006-01-02" {
		t.Errorf("date format = %q, want 2006-01-02", tbl.Columns[2].Format)
	}

	if len(tbl.Sample) != 2 {
		t.Fatalf("sample rows = %d, want 2", len(tbl.Sample))
	}
	first := tbl.Sample[0]
	if first[0] != float64(1) {
		t.Errorf("sample[0][0] = %v (%T), want 1", first[0], first[0])
	}
	if first[1] != 3.5 {
		t.Errorf("sample[0][1] = %v, want 3.5", first[1])
	}
	if first[2] != "2011-01-01T00:00:00Z" {
		t.Errorf("sample[0][2] = %v, want RFC3339 date", first[2])
	}
}

func TestInferRawBodyWithFilenameHint(t *testing.T) {
	s := newTestServer(t)

	body := strings.NewReader("a\tb\n1\tx\n2\ty\n")
	req := httptest.NewRequest(http.MethodPost, "/api/infer?filename=nums.tsv", body)

	resp := decodeInfer(t, doRequest(t, s, req))

	if len(resp.Tables) != 1 {
		t.Fatalf("tables = %d, want 1", len(resp.Tables))
	}
	tbl := resp.Tables[0]
	if tbl.Name != "nums" {
		t.Errorf("name = %q, want %q", tbl.Name, "nums")
	}
	if len(tbl.Columns) != 2 {
		t.Fatalf("columns = %d, want 2", len(tbl.Columns))
	}
	if tbl.Columns[0].Type != "Integer" {
		t.Errorf("columns[0].Type = %q, want Integer", tbl.Columns[0].Type)
	}
	if tbl.Columns[1].Type != "String" {
		t.Errorf("columns[1].Type = %q, want String", tbl.Columns[1].Type)
	}
}

func TestInferSkipsTitlePreamble(t *testing.T) {
	s := newTestServer(t)

	content := "monthly totals\n\nregion,units,amount\neast,5,10.50\nwest,3,2.25\n"
	body, contentType := multipartFile(t, "report.csv", content)
	req := httptest.NewRequest(http.MethodPost, "/api/infer", body)
	req.Header.Set("Content-Type", contentType)

	resp := decodeInfer(t, doRequest(t, s, req))

	tbl := resp.Tables[0]
	if tbl.HeaderRow != 1 {
		t.Errorf("header_row = %d, want 1", tbl.HeaderRow)
	}
	wantHeaders := []string{"region", "units", "amount"}
	for i, h := range wantHeaders {
		if tbl.Headers[i] != h {
			t.Errorf("headers[%d] = %q, want %q", i, tbl.Headers[i], h)
		}
	}
	if len(tbl.Sample) != 2 {
		t.Errorf("sample rows = %d, want the preamble and header excluded", len(tbl.Sample))
	}
}

func TestInferHTMLUpload(t *testing.T) {
	s := newTestServer(t)

	page := "<html><body><table><tr><th>x</th><th>y</th></tr>" +
		"<tr><td>1</td><td>ok</td></tr></table></body></html>"
	req := httptest.NewRequest(http.MethodPost, "/api/infer?filename=page.html", strings.NewReader(page))

	resp := decodeInfer(t, doRequest(t, s, req))

	if len(resp.Tables) != 1 {
		t.Fatalf("tables = %d, want 1", len(resp.Tables))
	}
	tbl := resp.Tables[0]
	if tbl.Headers[0] != "x" || tbl.Headers[1] != "y" {
		t.Errorf("headers = %v, want [x y]", tbl.Headers)
	}
	if tbl.Columns[0].Type != "Integer" {
		t.Errorf("columns[0].Type = %q, want Integer", tbl.Columns[0].Type)
	}
}

func TestInferMissingFileField(t *testing.T) {
	s := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("note", "no file here"); err != nil {
		t.Fatalf("write field: %v", err)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/infer", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp := decodeError(t, doRequest(t, s, req), http.StatusBadRequest)
	if resp.Code != "REQ002" {
		t.Errorf("code = %q, want REQ002", resp.Code)
	}
}

func TestInferWindowParam(t *testing.T) {
	s := newTestServer(t)

	var sb strings.Builder
	sb.WriteString("n\n")
	for i := 0; i < 50; i++ {
		sb.WriteString("7\n")
	}
	req := httptest.NewRequest(http.MethodPost, "/api/infer?filename=n.csv&window=5", strings.NewReader(sb.String()))

	resp := decodeInfer(t, doRequest(t, s, req))

	tbl := resp.Tables[0]
	// Window 5 covers the header plus four data rows.
	if len(tbl.Sample) != 4 {
		t.Errorf("sample rows = %d, want 4", len(tbl.Sample))
	}
}

// ============================================================================
// Load
// ============================================================================

func TestLoadWithoutDatabase(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/load/accounts?filename=a.csv", strings.NewReader("a,b\n1,2\n"))

	resp := decodeError(t, doRequest(t, s, req), http.StatusServiceUnavailable)
	if resp.Code != "DB003" {
		t.Errorf("code = %q, want DB003", resp.Code)
	}
	if resp.Action == "" {
		t.Error("action is empty, want a hint about DATABASE_URL")
	}
}

// ============================================================================
// Table selection and processors
// ============================================================================

func TestPickTable(t *testing.T) {
	ts := stubTableSet{tables: tables("east", "west")}

	if _, err := pickTable(ts, ""); err == nil {
		t.Error("expected an error when the source is ambiguous")
	}
	rs, err := pickTable(ts, "west")
	if err != nil {
		t.Fatalf("pickTable: %v", err)
	}
	if rs.Name() != "west" {
		t.Errorf("picked %q, want west", rs.Name())
	}
	if _, err := pickTable(ts, "north"); err == nil {
		t.Error("expected an error for an unknown source name")
	}

	single := stubTableSet{tables: tables("only")}
	rs, err = pickTable(single, "")
	if err != nil {
		t.Fatalf("pickTable single: %v", err)
	}
	if rs.Name() != "only" {
		t.Errorf("picked %q, want only", rs.Name())
	}

	if _, err := pickTable(stubTableSet{}, ""); err == nil {
		t.Error("expected an error for an empty table set")
	}
}

type stubTableSet struct {
	tables []*messytables.RowSet
}

func (s stubTableSet) Tables() []*messytables.RowSet { return s.tables }
func (s stubTableSet) Close() error                  { return nil }

func tables(names ...string) []*messytables.RowSet {
	out := make([]*messytables.RowSet, len(names))
	for i, name := range names {
		out[i] = messytables.NewRowSet(name, messytables.Rows())
	}
	return out
}
