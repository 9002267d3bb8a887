package web

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/timClicks/messytables"
	"github.com/timClicks/messytables/auto"
	"github.com/timClicks/messytables/datastore"
	"github.com/timClicks/messytables/internal/logging"
)

// previewRows caps how many cast rows the infer response includes per table.
const previewRows = 10

// ColumnReport describes one inferred column.
type ColumnReport struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Format  string `json:"format,omitempty"`
	SQLType string `json:"sql_type"`
}

// TableReport is the inference result for a single table. HeaderRow is the
// offset of the detected header row in the sample, or -1 when the source
// carries column names out of band or no header was found.
type TableReport struct {
	Name      string         `json:"name"`
	Typed     bool           `json:"typed"`
	HeaderRow int            `json:"header_row"`
	Headers   []string       `json:"headers,omitempty"`
	Columns   []ColumnReport `json:"columns"`
	Sample    [][]any        `json:"sample,omitempty"`
}

// InferResponse lists every table found in the uploaded file.
type InferResponse struct {
	Tables []TableReport `json:"tables"`
}

// LoadResponse is a load result plus the number of rows strict casting
// dropped before they reached the database.
type LoadResponse struct {
	*datastore.Result
	Dropped int `json:"dropped,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

// handleInfer samples an uploaded file, locates headers, and reports the
// guessed column types with a short cast preview per table.
func (s *Server) handleInfer(w http.ResponseWriter, r *http.Request) {
	body, filename, cleanup, err := s.openUpload(w, r)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}
	defer cleanup()

	ts, err := auto.New(body,
		auto.Filename(filename),
		auto.Name(r.URL.Query().Get("name")),
		auto.Window(s.windowParam(r)),
	)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}
	defer ts.Close()

	resp := InferResponse{Tables: []TableReport{}}
	for _, rs := range ts.Tables() {
		report, err := s.analyzeTable(rs)
		if err != nil {
			s.respondError(w, r, err, http.StatusUnprocessableEntity)
			return
		}
		resp.Tables = append(resp.Tables, *report)
	}

	logging.FromContext(r.Context()).Info("inferred types",
		"filename", filename,
		"tables", len(resp.Tables),
	)
	writeJSON(w, resp)
}

// handleLoad infers the shape of an uploaded file and loads it into the
// named database table.
func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	if s.loader == nil {
		s.respondError(w, r, errors.New("no database configured"), http.StatusServiceUnavailable)
		return
	}

	table := chi.URLParam(r, "table")
	if table == "" {
		s.respondError(w, r, errors.New("missing table name"), http.StatusBadRequest)
		return
	}

	body, filename, cleanup, err := s.openUpload(w, r)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}
	defer cleanup()

	ts, err := auto.New(body,
		auto.Filename(filename),
		auto.Window(s.windowParam(r)),
	)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}
	defer ts.Close()

	rs, err := pickTable(ts, r.URL.Query().Get("source"))
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	var dropped int
	cols, err := s.prepare(rs, s.strictParam(r), &dropped)
	if err != nil {
		s.respondError(w, r, err, http.StatusUnprocessableEntity)
		return
	}

	create := boolParam(r, "create", true)

	var result *datastore.Result
	if boolParam(r, "copy", false) {
		// COPY trades per-row recovery for speed.
		result, err = s.loader.Copy(r.Context(), table, cols, rs, datastore.CreateMissing(create))
	} else {
		result, err = s.loader.Load(r.Context(), table, cols, rs, datastore.CreateMissing(create))
	}
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	logging.WithFields(r.Context(),
		"load_id", result.LoadID,
		"table", table,
	).Info("load completed",
		"inserted", result.Inserted,
		"skipped", result.Skipped,
		"dropped", dropped,
	)
	writeJSON(w, LoadResponse{Result: result, Dropped: dropped})
}

// openUpload returns the uploaded payload: the "file" field when the request
// is multipart, otherwise the raw body with an optional ?filename= hint. The
// reader is capped at the configured maximum body size.
func (s *Server) openUpload(w http.ResponseWriter, r *http.Request) (io.Reader, string, func(), error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Infer.MaxBodySize)

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(s.cfg.Infer.MaxBodySize); err != nil {
			return nil, "", nil, fmt.Errorf("parse form: %w", err)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			return nil, "", nil, errors.New("no file provided")
		}
		return file, header.Filename, func() { file.Close() }, nil
	}

	return r.Body, r.URL.Query().Get("filename"), func() {}, nil
}

func (s *Server) windowParam(r *http.Request) int {
	if v := r.URL.Query().Get("window"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return s.cfg.Infer.SampleWindow
}

func (s *Server) strictParam(r *http.Request) bool {
	return boolParam(r, "strict", s.cfg.Infer.Strict)
}

func boolParam(r *http.Request, name string, fallback bool) bool {
	if v := r.URL.Query().Get(name); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// pickTable selects which table of a source to load: the one named by
// source, or the only table when source is empty.
func pickTable(ts messytables.TableSet, source string) (*messytables.RowSet, error) {
	tables := ts.Tables()
	if len(tables) == 0 {
		return nil, errors.New("no tables found in input")
	}
	if source == "" {
		if len(tables) > 1 {
			return nil, fmt.Errorf("input has %d tables; pick one with ?source=", len(tables))
		}
		return tables[0], nil
	}
	for _, rs := range tables {
		if rs.Name() == source {
			return rs, nil
		}
	}
	return nil, fmt.Errorf("no table named %q in input", source)
}

// shape is what sampling one table reveals: the rows seen, where the header
// row sits (-1 when there is none in the data), the header names, the data
// rows after the header, and the guessed column types.
type shape struct {
	sample  []messytables.Row
	offset  int
	headers []string
	data    []messytables.Row
	types   []messytables.CellType
}

// tableShape samples rs once and works out its header and column types.
// Typed sources skip guessing; their cells already carry both.
func (s *Server) tableShape(rs *messytables.RowSet) (*shape, error) {
	sample, err := collectRows(rs.Sample())
	if err != nil {
		return nil, fmt.Errorf("sample %s: %w", rs.Name(), err)
	}

	sh := &shape{sample: sample, data: sample, offset: -1}

	if rs.Typed() {
		for _, row := range sample {
			for i, c := range row {
				if i == len(sh.headers) {
					sh.headers = append(sh.headers, c.Column)
					sh.types = append(sh.types, c.Type)
				}
			}
		}
		return sh, nil
	}

	offset, headers, err := messytables.HeadersGuess(messytables.Rows(sample...), s.cfg.Infer.HeaderTolerance)
	if err != nil {
		return nil, err
	}
	if headers != nil {
		sh.offset = offset
		sh.headers = headers
		sh.data = sample[offset+1:]
	}

	types, err := messytables.TypeGuess(messytables.Rows(sh.data...))
	if err != nil {
		return nil, err
	}
	sh.types = types
	return sh, nil
}

// analyzeTable builds the infer report for one table.
func (s *Server) analyzeTable(rs *messytables.RowSet) (*TableReport, error) {
	sh, err := s.tableShape(rs)
	if err != nil {
		return nil, err
	}

	report := &TableReport{
		Name:      rs.Name(),
		Typed:     rs.Typed(),
		HeaderRow: sh.offset,
		Headers:   sh.headers,
		Columns:   columnReports(datastore.ColumnsFor(sh.headers, sh.types)),
	}

	preview := sh.data
	if len(preview) > previewRows {
		preview = preview[:previewRows]
	}
	if !rs.Typed() {
		cast := messytables.TypesProcessor(sh.types)
		for _, row := range preview {
			cast(rs, row)
		}
	}
	report.Sample = previewValues(preview)
	return report, nil
}

// prepare works out the table's columns and registers the processors that
// shape the full pass: dropping the preamble, stamping column names, and
// casting values. Typed sources need none of that.
func (s *Server) prepare(rs *messytables.RowSet, strict bool, dropped *int) ([]datastore.Column, error) {
	sh, err := s.tableShape(rs)
	if err != nil {
		return nil, err
	}
	if len(sh.types) == 0 {
		return nil, errors.New("no columns found in input")
	}

	if !rs.Typed() {
		if sh.headers != nil {
			rs.Register(messytables.OffsetProcessor(sh.offset + 1))
			rs.Register(messytables.HeadersProcessor(sh.headers))
		}
		if strict {
			rs.Register(strictProcessor(sh.types, dropped))
		} else {
			rs.Register(messytables.TypesProcessor(sh.types))
		}
	}

	return datastore.ColumnsFor(sh.headers, sh.types), nil
}

// strictProcessor casts like TypesProcessor but drops any row holding a
// value that will not cast, counting the drops.
func strictProcessor(types []messytables.CellType, dropped *int) messytables.Processor {
	failed := false
	cast := messytables.StrictTypesProcessor(types, func(int, messytables.Cell, error) {
		failed = true
	})
	return func(rs *messytables.RowSet, row messytables.Row) messytables.Row {
		failed = false
		row = cast(rs, row)
		if failed {
			*dropped++
			return nil
		}
		return row
	}
}

func columnReports(cols []datastore.Column) []ColumnReport {
	out := make([]ColumnReport, len(cols))
	for i, c := range cols {
		name, format := describeType(c.Type)
		out[i] = ColumnReport{
			Name:    c.Name,
			Type:    name,
			Format:  format,
			SQLType: datastore.SQLType(c.Type),
		}
	}
	return out
}

// describeType splits a cell type into its bare name and, for dates, the
// layout its values parse with.
func describeType(t messytables.CellType) (string, string) {
	if d, ok := t.(messytables.DateType); ok {
		return "Date", d.Format
	}
	return t.String(), ""
}

func collectRows(rows iter.Seq2[messytables.Row, error]) ([]messytables.Row, error) {
	var out []messytables.Row
	for row, err := range rows {
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}

func previewValues(rows []messytables.Row) [][]any {
	out := make([][]any, len(rows))
	for i, row := range rows {
		vals := make([]any, len(row))
		for j, c := range row {
			vals[j] = c.Value
		}
		out[i] = vals
	}
	return out
}
