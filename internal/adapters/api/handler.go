// Package api exposes the notebook service over HTTP with JSON bodies.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"labcore/internal/adapters/exports"
	"labcore/internal/core"
	"labcore/pkg/domain"
)

// Handler routes HTTP requests to the core service and export worker.
type Handler struct {
	svc     *core.Service
	exports *exports.Worker
}

// NewHandler constructs an HTTP handler over the service. The export worker is
// optional; without it the export routes answer 503.
func NewHandler(svc *core.Service, worker *exports.Worker) *Handler {
	return &Handler{svc: svc, exports: worker}
}

// Router builds the route table.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.handleHealth).Methods(http.MethodGet)

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/projects", h.handleListProjects).Methods(http.MethodGet)
	v1.HandleFunc("/projects", h.handleCreateProject).Methods(http.MethodPost)
	v1.HandleFunc("/projects/{id}", h.handleGetProject).Methods(http.MethodGet)
	v1.HandleFunc("/projects/{id}", h.handlePatchProject).Methods(http.MethodPatch)
	v1.HandleFunc("/projects/{id}", h.handleDeleteProject).Methods(http.MethodDelete)
	v1.HandleFunc("/projects/{id}/experiments", h.handleListExperiments).Methods(http.MethodGet)
	v1.HandleFunc("/projects/{id}/result-schemas", h.handleListSchemas).Methods(http.MethodGet)
	v1.HandleFunc("/projects/{id}/output-config", h.handleGetOutputConfig).Methods(http.MethodGet)
	v1.HandleFunc("/output-config", h.handlePutOutputConfig).Methods(http.MethodPut)
	v1.HandleFunc("/experiments", h.handleCreateExperiment).Methods(http.MethodPost)
	v1.HandleFunc("/experiments/{id}", h.handleGetExperiment).Methods(http.MethodGet)
	v1.HandleFunc("/experiments/{id}", h.handlePatchExperiment).Methods(http.MethodPatch)
	v1.HandleFunc("/experiments/{id}", h.handleDeleteExperiment).Methods(http.MethodDelete)
	v1.HandleFunc("/result-schemas", h.handleCreateSchema).Methods(http.MethodPost)
	v1.HandleFunc("/result-schemas/{id}", h.handlePatchSchema).Methods(http.MethodPatch)
	v1.HandleFunc("/result-schemas/{id}", h.handleDeleteSchema).Methods(http.MethodDelete)
	v1.HandleFunc("/exports", h.handleCreateExport).Methods(http.MethodPost)
	v1.HandleFunc("/exports/{id}", h.handleGetExport).Methods(http.MethodGet)
	return r
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Errorf("encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// statusForError maps service failures to HTTP statuses: validation failures
// and malformed input are 400, missing references 404, blocking rule
// violations 409 (422 when the categorical-options precondition fails).
func statusForError(err error) int {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		return http.StatusBadRequest
	}
	var nf core.ErrNotFound
	if errors.As(err, &nf) {
		return http.StatusNotFound
	}
	var rverr domain.RuleViolationError
	if errors.As(err, &rverr) {
		for _, violation := range rverr.Result.Violations {
			if violation.Rule == "categorical_options_required" {
				return http.StatusUnprocessableEntity
			}
		}
		return http.StatusConflict
	}
	var badKey core.ErrInvalidSchemaKey
	var badMaterial core.ErrInvalidMaterial
	if errors.As(err, &badKey) || errors.As(err, &badMaterial) {
		return http.StatusBadRequest
	}
	return http.StatusBadRequest
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	writeError(w, statusForError(err), err.Error())
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type projectRequest struct {
	Name            string                `json:"name"`
	ProjectType     *domain.ProjectType   `json:"project_type"`
	Status          *domain.ProjectStatus `json:"status"`
	ExpectedEndDate *time.Time            `json:"expected_end_date"`
}

func (h *Handler) handleListProjects(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.ListProjects())
}

func (h *Handler) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	if !decodeBody(w, r, &req) {
		return
	}
	project := core.Project{Name: req.Name, ExpectedEndDate: req.ExpectedEndDate}
	if req.ProjectType != nil {
		project.Type = *req.ProjectType
	}
	if req.Status != nil {
		project.Status = *req.Status
	}
	created, _, err := h.svc.CreateProject(r.Context(), project)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) handleGetProject(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	project, ok := h.svc.GetProject(id)
	if !ok {
		h.fail(w, core.ErrNotFound{Entity: core.EntityProject, ID: id})
		return
	}
	writeJSON(w, http.StatusOK, project)
}

type projectPatchRequest struct {
	Name            *string               `json:"name"`
	ProjectType     *domain.ProjectType   `json:"project_type"`
	Status          *domain.ProjectStatus `json:"status"`
	ExpectedEndDate *time.Time            `json:"expected_end_date"`
}

func (h *Handler) handlePatchProject(w http.ResponseWriter, r *http.Request) {
	var req projectPatchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	updated, _, err := h.svc.UpdateProject(r.Context(), mux.Vars(r)["id"], core.ProjectPatch{
		Name:            req.Name,
		Type:            req.ProjectType,
		Status:          req.Status,
		ExpectedEndDate: req.ExpectedEndDate,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	if _, err := h.svc.DeleteProject(r.Context(), mux.Vars(r)["id"]); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListExperiments(w http.ResponseWriter, r *http.Request) {
	experiments, err := h.svc.ListExperiments(mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, experiments)
}

type experimentRequest struct {
	ProjectID    string                `json:"project_id"`
	Name         string                `json:"name"`
	Author       string                `json:"author"`
	Purpose      string                `json:"purpose"`
	Materials    []domain.MaterialLine `json:"materials"`
	ResultValues map[string]any        `json:"result_values"`
}

func (h *Handler) handleCreateExperiment(w http.ResponseWriter, r *http.Request) {
	var req experimentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	created, _, err := h.svc.CreateExperiment(r.Context(), core.Experiment{
		ProjectID:    req.ProjectID,
		Name:         req.Name,
		Author:       req.Author,
		Purpose:      req.Purpose,
		Materials:    req.Materials,
		ResultValues: req.ResultValues,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) handleGetExperiment(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	experiment, ok := h.svc.GetExperiment(id)
	if !ok {
		h.fail(w, core.ErrNotFound{Entity: core.EntityExperiment, ID: id})
		return
	}
	writeJSON(w, http.StatusOK, experiment)
}

type experimentPatchRequest struct {
	Name         *string                `json:"name"`
	Author       *string                `json:"author"`
	Purpose      *string                `json:"purpose"`
	Materials    *[]domain.MaterialLine `json:"materials"`
	ResultValues map[string]any         `json:"result_values"`
}

func (h *Handler) handlePatchExperiment(w http.ResponseWriter, r *http.Request) {
	var req experimentPatchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	updated, _, err := h.svc.UpdateExperiment(r.Context(), mux.Vars(r)["id"], core.ExperimentPatch{
		Name:         req.Name,
		Author:       req.Author,
		Purpose:      req.Purpose,
		Materials:    req.Materials,
		ResultValues: req.ResultValues,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) handleDeleteExperiment(w http.ResponseWriter, r *http.Request) {
	if _, err := h.svc.DeleteExperiment(r.Context(), mux.Vars(r)["id"]); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListSchemas(w http.ResponseWriter, r *http.Request) {
	schemas, err := h.svc.ListResultSchemas(mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, schemas)
}

type schemaRequest struct {
	ProjectID   string           `json:"project_id"`
	Key         string           `json:"key"`
	Label       string           `json:"label"`
	ValueType   domain.ValueType `json:"value_type"`
	Unit        *string          `json:"unit"`
	Description *string          `json:"description"`
	Options     []string         `json:"options"`
}

func (h *Handler) handleCreateSchema(w http.ResponseWriter, r *http.Request) {
	var req schemaRequest
	if !decodeBody(w, r, &req) {
		return
	}
	created, _, err := h.svc.CreateResultSchema(r.Context(), core.ResultSchema{
		ProjectID:   req.ProjectID,
		Key:         req.Key,
		Label:       req.Label,
		ValueType:   req.ValueType,
		Unit:        req.Unit,
		Description: req.Description,
		Options:     req.Options,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

type schemaPatchRequest struct {
	Label       *string           `json:"label"`
	ValueType   *domain.ValueType `json:"value_type"`
	Unit        *string           `json:"unit"`
	Description *string           `json:"description"`
	Options     *[]string         `json:"options"`
}

func (h *Handler) handlePatchSchema(w http.ResponseWriter, r *http.Request) {
	var req schemaPatchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	updated, _, err := h.svc.UpdateResultSchema(r.Context(), mux.Vars(r)["id"], core.SchemaPatch{
		Label:       req.Label,
		ValueType:   req.ValueType,
		Unit:        req.Unit,
		Description: req.Description,
		Options:     req.Options,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) handleDeleteSchema(w http.ResponseWriter, r *http.Request) {
	if _, err := h.svc.DeleteResultSchema(r.Context(), mux.Vars(r)["id"]); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGetOutputConfig(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	config, ok, err := h.svc.GetOutputConfig(id)
	if err != nil {
		h.fail(w, err)
		return
	}
	if !ok {
		h.fail(w, core.ErrNotFound{Entity: core.EntityOutputConfig, ID: id})
		return
	}
	writeJSON(w, http.StatusOK, config)
}

type outputConfigRequest struct {
	ProjectID    string   `json:"project_id"`
	IncludedKeys []string `json:"included_keys"`
}

func (h *Handler) handlePutOutputConfig(w http.ResponseWriter, r *http.Request) {
	var req outputConfigRequest
	if !decodeBody(w, r, &req) {
		return
	}
	saved, _, err := h.svc.PutOutputConfig(r.Context(), req.ProjectID, req.IncludedKeys)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

type exportRequest struct {
	ProjectID   string                 `json:"project_id"`
	Formats     []exports.ExportFormat `json:"formats"`
	RequestedBy string                 `json:"requested_by"`
}

func (h *Handler) handleCreateExport(w http.ResponseWriter, r *http.Request) {
	if h.exports == nil {
		writeError(w, http.StatusServiceUnavailable, "export worker not configured")
		return
	}
	var req exportRequest
	if !decodeBody(w, r, &req) {
		return
	}
	record, err := h.exports.Enqueue(r.Context(), exports.ExportInput{
		ProjectID:   req.ProjectID,
		Formats:     req.Formats,
		RequestedBy: req.RequestedBy,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, record)
}

func (h *Handler) handleGetExport(w http.ResponseWriter, r *http.Request) {
	if h.exports == nil {
		writeError(w, http.StatusServiceUnavailable, "export worker not configured")
		return
	}
	id := mux.Vars(r)["id"]
	record, ok := h.exports.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "export "+id+" not found")
		return
	}
	writeJSON(w, http.StatusOK, record)
}
