package api

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"InvoiceRecon/api/constants"
	"InvoiceRecon/internal/model"
	"InvoiceRecon/internal/persist"
	"InvoiceRecon/internal/pipeline"
	"InvoiceRecon/internal/report"
	"InvoiceRecon/internal/runlog"
	"InvoiceRecon/internal/schema"
	"InvoiceRecon/internal/sheet"
)

// Ingester is what the gateway needs from the ingest service.
type Ingester interface {
	IngestTable(ctx context.Context, source model.SourceSystem, tbl *sheet.Table, dryRun bool) (*pipeline.Outcome, error)
	Runs() runlog.Recorder
}

// Pinger reports unhealthy resources by name.
type Pinger interface {
	Ping(ctx context.Context) map[string]error
}

type Handlers struct {
	ing  Ingester
	ping Pinger
	log  zerolog.Logger
}

func NewHandlers(ing Ingester, ping Pinger, log zerolog.Logger) *Handlers {
	return &Handlers{ing: ing, ping: ping, log: log.With().Str("component", "gateway").Logger()}
}

// RunResponse is the JSON shape of a run.
type RunResponse struct {
	*runlog.Run
	Totals    report.Totals `json:"totals"`
	Artifacts []string      `json:"artifacts,omitempty"`
	Missing   []string      `json:"missing_invoices,omitempty"`
}

func runResponse(run *runlog.Run, out *pipeline.Outcome) RunResponse {
	resp := RunResponse{Run: run, Totals: report.TotalsOf(run)}
	if out != nil {
		resp.Artifacts = out.Artifacts
		if out.Bundle != nil && out.Bundle.Validation != nil {
			resp.Missing = out.Bundle.Validation.MissingInvoices
		}
	}
	return resp
}

// UploadIngest handles POST /api/ingest/{source}: multipart field "file",
// optional form value dry_run.
func (h *Handlers) UploadIngest(w http.ResponseWriter, r *http.Request) {
	source, err := model.ParseSourceSystem(mux.Vars(r)["source"])
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, constants.FormatError(constants.ErrUnknownSource, mux.Vars(r)["source"]))
		return
	}
	if err := r.ParseMultipartForm(constants.MaxUploadMemory); err != nil {
		RespondWithError(w, http.StatusBadRequest, constants.ErrMultipartForm)
		return
	}
	dryRun := false
	if v := r.FormValue("dry_run"); v != "" {
		if dryRun, err = strconv.ParseBool(v); err != nil {
			RespondWithError(w, http.StatusBadRequest, constants.ErrInvalidDryRun)
			return
		}
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, constants.ErrNoFileUploaded)
		return
	}
	defer file.Close()
	if !sheet.Supported(header.Filename) {
		RespondWithError(w, http.StatusBadRequest, constants.FormatError(constants.ErrUnsupportedFile, sheet.FileExt(header.Filename)))
		return
	}
	tbl, err := sheet.Read(file, header.Filename)
	if err != nil {
		h.log.Warn().Err(err).Str("file", header.Filename).Msg("unreadable upload")
		RespondWithError(w, http.StatusBadRequest, constants.FormatError(constants.ErrReadUploadedFile, header.Filename))
		return
	}

	// runs are not cancelled mid-way; a client that hangs up still gets its run finished
	out, err := h.ing.IngestTable(context.WithoutCancel(r.Context()), source, tbl, dryRun)
	if err != nil {
		h.respondRunError(w, out, err)
		return
	}
	t := report.TotalsOf(out.Run)
	msg := constants.FormatError(constants.SuccessIngested, t.Processed, t.Total)
	if dryRun {
		msg = constants.FormatError(constants.SuccessDryRun, t.Processed, t.Total)
	}
	RespondWithMessage(w, http.StatusOK, msg, runResponse(out.Run, out))
}

func (h *Handlers) respondRunError(w http.ResponseWriter, out *pipeline.Outcome, err error) {
	var details interface{}
	if out != nil && out.Run != nil {
		details = runResponse(out.Run, out)
	}
	var he *schema.HeaderError
	switch {
	case errors.As(err, &he):
		RespondWithErrorDetails(w, http.StatusUnprocessableEntity,
			constants.FormatError(constants.ErrHeaderMismatch, he.File, he.Schema, strings.Join(he.Missing, ", ")), details)
	case errors.Is(err, persist.ErrDatabaseUnavailable):
		h.log.Error().Err(err).Msg("ingest aborted, database unavailable")
		RespondWithErrorDetails(w, http.StatusServiceUnavailable, constants.ErrDatabaseUnavailable, details)
	case out == nil:
		// rejected before a run started: bad options or unreadable file
		RespondWithError(w, http.StatusBadRequest, constants.FormatError(constants.ErrRunFailed, err.Error()))
	default:
		h.log.Error().Err(err).Msg("ingest failed")
		RespondWithErrorDetails(w, http.StatusInternalServerError, constants.FormatError(constants.ErrRunFailed, err.Error()), details)
	}
}

// ListRuns handles GET /api/runs?limit=n.
func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := constants.DefaultRunsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			RespondWithError(w, http.StatusBadRequest, constants.ErrInvalidLimit)
			return
		}
		limit = min(n, constants.MaxRunsLimit)
	}
	runs, err := h.ing.Runs().Recent(r.Context(), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("list runs")
		RespondWithError(w, http.StatusInternalServerError, constants.ErrRunHistory)
		return
	}
	rows := make([]RunResponse, 0, len(runs))
	for i := range runs {
		rows = append(rows, runResponse(&runs[i], nil))
	}
	RespondWithPayload(w, true, "", rows)
}

// GetRun handles GET /api/runs/{id}.
func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := h.lookupRun(w, r)
	if !ok {
		return
	}
	resp := runResponse(run, nil)
	if run.ArtifactDir != "" {
		if entries, err := os.ReadDir(run.ArtifactDir); err == nil {
			for _, e := range entries {
				if !e.IsDir() {
					resp.Artifacts = append(resp.Artifacts, e.Name())
				}
			}
		}
	}
	RespondWithMessage(w, http.StatusOK, "", resp)
}

// GetArtifact handles GET /api/runs/{id}/artifacts/{name}.
func (h *Handlers) GetArtifact(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		RespondWithError(w, http.StatusBadRequest, constants.ErrInvalidArtifact)
		return
	}
	run, ok := h.lookupRun(w, r)
	if !ok {
		return
	}
	path := filepath.Join(run.ArtifactDir, name)
	if run.ArtifactDir == "" {
		RespondWithError(w, http.StatusNotFound, constants.ErrArtifactNotFound)
		return
	}
	if _, err := os.Stat(path); err != nil {
		RespondWithError(w, http.StatusNotFound, constants.ErrArtifactNotFound)
		return
	}
	switch filepath.Ext(name) {
	case ".csv":
		w.Header().Set(constants.ContentTypeText, constants.ContentTypeCSV)
	case ".txt":
		w.Header().Set(constants.ContentTypeText, constants.ContentTypePlain)
	case ".xlsx":
		w.Header().Set(constants.ContentTypeText, constants.ContentTypeXLSX)
	}
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	http.ServeFile(w, r, path)
}

func (h *Handlers) lookupRun(w http.ResponseWriter, r *http.Request) (*runlog.Run, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, constants.ErrInvalidRunID)
		return nil, false
	}
	run, err := h.ing.Runs().Get(r.Context(), id)
	if errors.Is(err, runlog.ErrNotFound) {
		RespondWithError(w, http.StatusNotFound, constants.ErrRunNotFound)
		return nil, false
	}
	if err != nil {
		h.log.Error().Err(err).Msg("get run")
		RespondWithError(w, http.StatusInternalServerError, constants.ErrRunHistory)
		return nil, false
	}
	return run, true
}

// Health handles GET /api/health.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{}
	code := http.StatusOK
	if h.ping != nil {
		for key, err := range h.ping.Ping(r.Context()) {
			status[key] = err.Error()
			code = http.StatusServiceUnavailable
		}
	}
	respond(w, code, map[string]interface{}{
		"success": code == http.StatusOK,
		"failed":  status,
	})
}
