package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"InvoiceRecon/internal/model"
	"InvoiceRecon/internal/persist"
	"InvoiceRecon/internal/pipeline"
	"InvoiceRecon/internal/runlog"
	"InvoiceRecon/internal/schema"
	"InvoiceRecon/internal/sheet"
)

type fakeIngester struct {
	runs   *runlog.Memory
	err    error
	source model.SourceSystem
	dryRun bool
	rows   int
	ctxErr error
}

func (f *fakeIngester) IngestTable(ctx context.Context, source model.SourceSystem, tbl *sheet.Table, dryRun bool) (*pipeline.Outcome, error) {
	f.source, f.dryRun, f.rows = source, dryRun, len(tbl.Rows)
	f.ctxErr = ctx.Err()
	if f.err != nil {
		return &pipeline.Outcome{Run: &runlog.Run{ID: uuid.New(), Status: runlog.StatusFailed}}, f.err
	}
	run := &runlog.Run{ID: uuid.New(), Source: string(source), FileName: tbl.Name, Status: runlog.StatusSucceeded, StartedAt: time.Now()}
	run.TotalRows, run.Transformed, run.Inserted = len(tbl.Rows), len(tbl.Rows), len(tbl.Rows)
	_ = f.runs.Start(ctx, run)
	return &pipeline.Outcome{Run: run, Artifacts: []string{"summary.txt"}}, nil
}

func (f *fakeIngester) Runs() runlog.Recorder { return f.runs }

type downPinger struct{}

func (downPinger) Ping(context.Context) map[string]error {
	return map[string]error{"pgxpool": errors.New("connection refused")}
}

func upload(t *testing.T, router http.Handler, path, filename, body string, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		_ = mw.WriteField(k, v)
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write([]byte(body))
	}
	mw.Close()
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

const ausCSV = "Invoice Number,Employee Number,Work Date,Hours,Rate\n40009425,56159,2024-06-01,8.0,25.50\n"

func TestUploadIngest(t *testing.T) {
	ing := &fakeIngester{runs: runlog.NewMemory()}
	router := NewRouter(NewHandlers(ing, nil, zerolog.Nop()))

	rec := upload(t, router, "/api/ingest/aus", "aus.csv", ausCSV, map[string]string{"dry_run": "true"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	if ing.source != model.SourceAUS || !ing.dryRun || ing.rows != 1 {
		t.Errorf("ingester saw %s dry=%v rows=%d", ing.source, ing.dryRun, ing.rows)
	}
	var body struct {
		Success bool        `json:"success"`
		Message string      `json:"message"`
		Data    RunResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if !body.Success || body.Message != "Dry run complete. 1 of 1 rows would be inserted" || body.Data.Totals.Total != 1 {
		t.Errorf("body = %s", rec.Body)
	}
}

func TestUploadRunOutlivesClientDisconnect(t *testing.T) {
	ing := &fakeIngester{runs: runlog.NewMemory()}
	router := NewRouter(NewHandlers(ing, nil, zerolog.Nop()))

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "aus.csv")
	if err != nil {
		t.Fatal(err)
	}
	fw.Write([]byte(ausCSV))
	mw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/api/ingest/aus", &buf).WithContext(ctx)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	router.ServeHTTP(httptest.NewRecorder(), req)

	if ing.rows != 1 {
		t.Fatalf("ingester saw %d rows", ing.rows)
	}
	if ing.ctxErr != nil {
		t.Errorf("run context was cancelled with the request: %v", ing.ctxErr)
	}
}

func TestUploadIngestErrors(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		filename string
		fields   map[string]string
		err      error
		want     int
	}{
		{"unknown source", "/api/ingest/xyz", "a.csv", nil, nil, http.StatusBadRequest},
		{"no file", "/api/ingest/bci", "", nil, nil, http.StatusBadRequest},
		{"pdf", "/api/ingest/bci", "a.pdf", nil, nil, http.StatusBadRequest},
		{"bad dry run", "/api/ingest/bci", "a.csv", map[string]string{"dry_run": "maybe"}, nil, http.StatusBadRequest},
		{"headers", "/api/ingest/bci", "a.csv", nil, &schema.HeaderError{Schema: "BCI", File: "a.csv", Missing: []string{"Invoice_No"}}, http.StatusUnprocessableEntity},
		{"database", "/api/ingest/bci", "a.csv", nil, fmt.Errorf("run x failed: %w", persist.ErrDatabaseUnavailable), http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ing := &fakeIngester{runs: runlog.NewMemory(), err: tt.err}
			rec := upload(t, NewRouter(NewHandlers(ing, nil, zerolog.Nop())), tt.path, tt.filename, ausCSV, tt.fields)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.want, rec.Body)
			}
		})
	}
}

func TestRunEndpoints(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "summary.txt"), []byte("INVOICE DETAIL INGESTION SUMMARY\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	runs := runlog.NewMemory()
	run := &runlog.Run{ID: uuid.New(), Source: "BCI", ArtifactDir: dir, StartedAt: time.Now()}
	if err := runs.Start(context.Background(), run); err != nil {
		t.Fatal(err)
	}
	router := NewRouter(NewHandlers(&fakeIngester{runs: runs}, nil, zerolog.Nop()))

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	if rec := get("/api/runs"); rec.Code != http.StatusOK || !bytes.Contains(rec.Body.Bytes(), []byte(run.ID.String())) {
		t.Errorf("list = %d %s", rec.Code, rec.Body)
	}
	if rec := get("/api/runs?limit=0"); rec.Code != http.StatusBadRequest {
		t.Errorf("limit=0 status = %d", rec.Code)
	}
	if rec := get("/api/runs/" + run.ID.String()); rec.Code != http.StatusOK || !bytes.Contains(rec.Body.Bytes(), []byte("summary.txt")) {
		t.Errorf("get = %d %s", rec.Code, rec.Body)
	}
	if rec := get("/api/runs/" + uuid.NewString()); rec.Code != http.StatusNotFound {
		t.Errorf("unknown run status = %d", rec.Code)
	}
	if rec := get("/api/runs/not-a-uuid"); rec.Code != http.StatusBadRequest {
		t.Errorf("bad id status = %d", rec.Code)
	}
	rec := get("/api/runs/" + run.ID.String() + "/artifacts/summary.txt")
	if rec.Code != http.StatusOK || !bytes.Contains(rec.Body.Bytes(), []byte("INGESTION SUMMARY")) {
		t.Errorf("artifact = %d %s", rec.Code, rec.Body)
	}
	if rec := get("/api/runs/" + run.ID.String() + "/artifacts/.env"); rec.Code != http.StatusBadRequest {
		t.Errorf("hidden artifact status = %d", rec.Code)
	}
	if rec := get("/api/runs/" + run.ID.String() + "/artifacts/duplicates.csv"); rec.Code != http.StatusNotFound {
		t.Errorf("missing artifact status = %d", rec.Code)
	}
	if rec := get("/api/nothing"); rec.Code != http.StatusNotFound {
		t.Errorf("unknown route status = %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	NewRouter(NewHandlers(&fakeIngester{runs: runlog.NewMemory()}, downPinger{}, zerolog.Nop())).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rec.Code != http.StatusServiceUnavailable || !bytes.Contains(rec.Body.Bytes(), []byte("connection refused")) {
		t.Errorf("health = %d %s", rec.Code, rec.Body)
	}
}
