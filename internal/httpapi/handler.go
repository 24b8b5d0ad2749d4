// Package httpapi exposes project filters and filter evaluation over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rpattn/workbench/internal/domain"
	"github.com/rpattn/workbench/internal/export"
	"github.com/rpattn/workbench/internal/filter"
	"github.com/rpattn/workbench/internal/filtering"
	"github.com/rpattn/workbench/internal/ingestion"
	"github.com/rpattn/workbench/internal/repository"
)

const (
	maxDocumentBytes = 1 << 20
	maxUploadBytes   = 32 << 20
	contentTypeXML   = "application/xml; charset=utf-8"
	contentTypeJSON  = "application/json"
)

// Handler serves the /projects/{project}/filter API.
type Handler struct {
	filters  *filtering.Service
	ingest   *ingestion.Service
	exporter *export.Service
	logger   *zap.Logger
	mux      *http.ServeMux
}

type Option func(*Handler)

func WithIngestion(service *ingestion.Service) Option {
	return func(h *Handler) {
		if service != nil {
			h.ingest = service
		}
	}
}

func WithExporter(service *export.Service) Option {
	return func(h *Handler) {
		if service != nil {
			h.exporter = service
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHandler wires the routes.
func NewHandler(filters *filtering.Service, opts ...Option) *Handler {
	h := &Handler{
		filters:  filters,
		ingest:   ingestion.NewService(),
		exporter: export.NewService(),
		logger:   zap.NewNop(),
		mux:      http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.Named("api")

	h.mux.HandleFunc("GET /healthz", h.handleHealth)
	h.mux.HandleFunc("GET /projects/{project}/filter", h.handleGetFilter)
	h.mux.HandleFunc("PUT /projects/{project}/filter", h.handlePutFilter)
	h.mux.HandleFunc("DELETE /projects/{project}/filter", h.handleClearFilter)
	h.mux.HandleFunc("GET /projects/{project}/filter/description", h.handleDescription)
	h.mux.HandleFunc("POST /projects/{project}/filter/rules", h.handleAddRule)
	h.mux.HandleFunc("DELETE /projects/{project}/filter/rules/{id}", h.handleRemoveRule)
	h.mux.HandleFunc("POST /projects/{project}/filter/evaluate", h.handleEvaluate)
	h.mux.HandleFunc("POST /projects/{project}/export", h.handleExport)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleGetFilter(w http.ResponseWriter, r *http.Request) {
	document, err := h.filters.Document(r.Context(), r.PathValue("project"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", contentTypeXML)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(document)
}

func (h *Handler) handlePutFilter(w http.ResponseWriter, r *http.Request) {
	document, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxDocumentBytes))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: err.Error()})
		return
	}
	if err := h.filters.Replace(r.Context(), r.PathValue("project"), document); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleClearFilter(w http.ResponseWriter, r *http.Request) {
	if err := h.filters.Clear(r.Context(), r.PathValue("project")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDescription(w http.ResponseWriter, r *http.Request) {
	set, err := h.filters.Active(r.Context(), r.PathValue("project"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	rules := make([]rulePayload, 0, set.Len())
	for _, rule := range set.Rules() {
		rules = append(rules, newRulePayload(rule))
	}
	writeJSON(w, http.StatusOK, descriptionResponse{Description: set.Description(), Rules: rules})
}

func (h *Handler) handleAddRule(w http.ResponseWriter, r *http.Request) {
	var payload rulePayload
	if err := decodeJSON(w, r, &payload); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	rule, err := payload.rule()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	stored, err := h.filters.AddRule(r.Context(), r.PathValue("project"), rule)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newRulePayload(stored))
}

func (h *Handler) handleRemoveRule(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid rule id: %v", err)})
		return
	}
	if err := h.filters.RemoveRule(r.Context(), r.PathValue("project"), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	project := r.PathValue("project")
	items, rowErrors, err := h.readItems(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	visible, description, err := h.filters.View(r.Context(), project, items)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	included := make([]int64, 0, len(visible))
	for _, item := range visible {
		included = append(included, item.ID)
	}
	writeJSON(w, http.StatusOK, evaluateResponse{
		Description: description,
		Total:       len(items),
		Included:    included,
		RowErrors:   rowErrors,
	})
}

// handleExport filters the uploaded items and returns the view as a file.
func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	project := r.PathValue("project")
	format := export.Format(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format"))))
	if format == "" {
		format = export.FormatXLSX
	}
	if _, err := export.FormatFromPath("view." + string(format)); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	items, _, err := h.readItems(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	visible, description, err := h.filters.View(r.Context(), project, items)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	switch format {
	case export.FormatCSV:
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	default:
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "view."+string(format)))
	view := export.View{Project: project, Description: description, Items: visible}
	if _, err := h.exporter.Write(r.Context(), w, format, view); err != nil {
		h.logger.Error("export failed after headers were sent", zap.String("project", project), zap.Error(err))
	}
}

// readItems accepts either a JSON item list or a multipart CSV/XLSX upload
// in the "file" field.
func (h *Handler) readItems(w http.ResponseWriter, r *http.Request) ([]*domain.WorkItem, []ingestion.RowError, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			return nil, nil, badRequest(fmt.Errorf("invalid form data: %w", err))
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			return nil, nil, badRequest(fmt.Errorf("file required: %w", err))
		}
		defer file.Close()

		result, err := h.ingest.Ingest(r.Context(), ingestion.Request{FileName: header.Filename, Data: file})
		if err != nil {
			return nil, nil, err
		}
		return result.Items, result.RowErrors, nil
	}

	var payload evaluateRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		return nil, nil, badRequest(err)
	}
	items := make([]*domain.WorkItem, 0, len(payload.Items))
	for i, in := range payload.Items {
		item, err := in.workItem()
		if err != nil {
			return nil, nil, badRequest(fmt.Errorf("item %d: %w", i, err))
		}
		items = append(items, item)
	}
	return items, nil, nil
}

type requestError struct{ err error }

func (e requestError) Error() string { return e.err.Error() }
func (e requestError) Unwrap() error { return e.err }

func badRequest(err error) error { return requestError{err: err} }

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var schemaErr *filter.SchemaError
	var reqErr requestError
	switch {
	case errors.As(err, &schemaErr):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: filter.ErrSchemaValidation.Error(), Violations: schemaErr.Violations})
	case errors.As(err, &reqErr),
		errors.Is(err, repository.ErrInvalidProject),
		errors.Is(err, filter.ErrInvalidArgument),
		errors.Is(err, filter.ErrInvalidFilter),
		errors.Is(err, ingestion.ErrUnsupportedFormat),
		errors.Is(err, ingestion.ErrMissingColumn):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, filtering.ErrRuleNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, context.Canceled):
		w.WriteHeader(499)
	default:
		h.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUploadBytes))
	decoder.UseNumber()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
