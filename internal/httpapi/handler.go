// Package httpapi exposes version history, comparison, branching, rollback
// and retention over HTTP.
package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/rpattn/rentalvc/internal/auth"
	"github.com/rpattn/rentalvc/internal/domain"
	"github.com/rpattn/rentalvc/internal/export"
	"github.com/rpattn/rentalvc/internal/middleware"
	"github.com/rpattn/rentalvc/internal/rental"
	"github.com/rpattn/rentalvc/internal/repository"
	"github.com/rpattn/rentalvc/internal/snapshot"
	"github.com/rpattn/rentalvc/internal/versioning"
	"github.com/rpattn/rentalvc/internal/versionloader"
	"github.com/rpattn/rentalvc/pkg/validator"
)

const maxBodyBytes = 1 << 20

// Handler serves the version-control HTTP API.
type Handler struct {
	service  *versioning.Service
	records  *rental.Records
	exporter *export.Exporter
	keepLast int
	logger   *logrus.Entry
}

type Option func(*Handler)

// WithRecords enables the /entities routes.
func WithRecords(records *rental.Records) Option {
	return func(h *Handler) { h.records = records }
}

// WithKeepLast sets the retention used by cleanup requests without a body.
func WithKeepLast(keepLast int) Option {
	return func(h *Handler) {
		if keepLast > 0 {
			h.keepLast = keepLast
		}
	}
}

func WithLogger(logger *logrus.Entry) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

func NewHandler(service *versioning.Service, opts ...Option) *Handler {
	h := &Handler{
		service:  service,
		exporter: export.NewExporter(service),
		keepLast: 10,
		logger:   logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// NewHTTPHandler returns the routed API.
func NewHTTPHandler(service *versioning.Service, opts ...Option) http.Handler {
	mux := http.NewServeMux()
	NewHandler(service, opts...).Register(mux)
	return mux
}

// Register adds the API routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /versions/{type}/current", h.handleCurrentBatch)
	mux.HandleFunc("GET /versions/{type}/{id}", h.handleHistory)
	mux.HandleFunc("GET /versions/{type}/{id}/current", h.handleCurrent)
	mux.HandleFunc("GET /versions/{type}/{id}/branches", h.handleListBranches)
	mux.HandleFunc("POST /versions/{type}/{id}/branches", h.handleCreateBranch)
	mux.HandleFunc("GET /versions/{type}/{id}/compare", h.handleCompare)
	mux.HandleFunc("POST /versions/{type}/{id}/rollback", h.handleRollback)
	mux.HandleFunc("GET /versions/{type}/{id}/export", h.handleExport)
	mux.HandleFunc("POST /versions/cleanup", h.handleCleanup)
	mux.HandleFunc("GET /versions/stats", h.handleStats)

	if h.records != nil {
		mux.HandleFunc("GET /entities/{type}/{id}", h.handleGetEntity)
		mux.HandleFunc("POST /entities/{type}", h.handleCreateEntity)
		mux.HandleFunc("PUT /entities/{type}/{id}", h.handleUpdateEntity)
		mux.HandleFunc("DELETE /entities/{type}/{id}", h.handleDeleteEntity)
	}
}

type historyEntry struct {
	domain.Version
	Changes map[string]domain.FieldChange `json:"changes"`
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	entityType, entityID, ok := chainParams(w, r)
	if !ok {
		return
	}
	branch, ok := branchParam(w, r)
	if !ok {
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			http.Error(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	versions, err := h.service.History(r.Context(), entityType, entityID, branch, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	entries := make([]historyEntry, 0, len(versions))
	for _, version := range versions {
		changes, err := h.service.ChangesFromParent(r.Context(), version)
		if err != nil {
			h.writeError(w, err)
			return
		}
		entries = append(entries, historyEntry{Version: version, Changes: changes})
	}
	writeJSON(w, http.StatusOK, map[string]any{"versions": entries})
}

func (h *Handler) handleCurrent(w http.ResponseWriter, r *http.Request) {
	entityType, entityID, ok := chainParams(w, r)
	if !ok {
		return
	}
	branch, ok := branchParam(w, r)
	if !ok {
		return
	}
	version, err := h.service.CurrentVersion(r.Context(), entityType, entityID, branch)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if version == nil {
		http.Error(w, "no versions recorded", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, version)
}

// handleCurrentBatch resolves the current version of several entities of one
// type. Entities without versions map to null.
func (h *Handler) handleCurrentBatch(w http.ResponseWriter, r *http.Request) {
	entityType := r.PathValue("type")
	branch, ok := branchParam(w, r)
	if !ok {
		return
	}
	if branch == "" {
		branch = h.service.DefaultBranch()
	}
	ids, err := parseIDs(r.URL.Query().Get("ids"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	keys := make([]domain.VersionKey, len(ids))
	for i, id := range ids {
		keys[i] = domain.VersionKey{EntityType: entityType, EntityID: id, Branch: branch}
	}

	var versions []*domain.Version
	if loader := middleware.VersionLoaderFromContext(r.Context()); loader != nil {
		versions, err = versionloader.LoadCurrent(r.Context(), loader, keys)
	} else {
		versions = make([]*domain.Version, len(keys))
		for i, key := range keys {
			versions[i], err = h.service.CurrentVersion(r.Context(), key.EntityType, key.EntityID, key.Branch)
			if err != nil {
				break
			}
		}
	}
	if err != nil {
		h.writeError(w, err)
		return
	}

	result := make(map[string]*domain.Version, len(ids))
	for i, id := range ids {
		result[strconv.FormatInt(id, 10)] = versions[i]
	}
	writeJSON(w, http.StatusOK, map[string]any{"branch": branch, "versions": result})
}

func (h *Handler) handleListBranches(w http.ResponseWriter, r *http.Request) {
	entityType, entityID, ok := chainParams(w, r)
	if !ok {
		return
	}
	branches, err := h.service.ListBranches(r.Context(), entityType, entityID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"branches": branches})
}

type createBranchRequest struct {
	Name string `json:"name"`
	From string `json:"from"`
}

func (h *Handler) handleCreateBranch(w http.ResponseWriter, r *http.Request) {
	entityType, entityID, ok := chainParams(w, r)
	if !ok {
		return
	}
	var req createBranchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := validator.ValidateBranchName(req.Name); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.From != "" {
		if err := validator.ValidateBranchName(req.From); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	version, err := h.service.CreateBranch(r.Context(), versioning.BranchRequest{
		EntityType: entityType,
		EntityID:   entityID,
		Name:       req.Name,
		From:       req.From,
		Author:     auth.ActorOrSystem(r.Context()),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	if version == nil {
		http.Error(w, "source branch has no versions", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusCreated, version)
}

type compareResponse struct {
	A           int64                       `json:"a"`
	B           int64                       `json:"b"`
	Differences map[string]domain.ValueDiff `json:"differences"`
	Diff        string                      `json:"diff"`
}

func (h *Handler) handleCompare(w http.ResponseWriter, r *http.Request) {
	entityType, entityID, ok := chainParams(w, r)
	if !ok {
		return
	}
	branch, ok := branchParam(w, r)
	if !ok {
		return
	}
	query := r.URL.Query()
	a, errA := strconv.ParseInt(query.Get("a"), 10, 64)
	b, errB := strconv.ParseInt(query.Get("b"), 10, 64)
	if errA != nil || errB != nil {
		http.Error(w, "a and b must be version numbers", http.StatusBadRequest)
		return
	}

	first, err := h.service.GetVersion(r.Context(), entityType, entityID, a, branch)
	if err != nil {
		h.writeError(w, err)
		return
	}
	second, err := h.service.GetVersion(r.Context(), entityType, entityID, b, branch)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if first == nil || second == nil {
		http.Error(w, "version not found", http.StatusNotFound)
		return
	}

	firstView, secondView := domain.NewSnapshotView(*first), domain.NewSnapshotView(*second)
	writeJSON(w, http.StatusOK, compareResponse{
		A:           a,
		B:           b,
		Differences: h.service.CompareVersions(*first, *second),
		Diff:        domain.DiffSnapshots(fmt.Sprintf("v%d", a), &firstView, fmt.Sprintf("v%d", b), &secondView),
	})
}

type rollbackRequest struct {
	Version *int64 `json:"version"`
	Branch  string `json:"branch"`
}

type rollbackResponse struct {
	Entity    domain.Snapshot `json:"entity"`
	Version   *domain.Version `json:"version"`
	Target    *domain.Version `json:"target"`
	Recreated bool            `json:"recreated"`
	Skipped   []string        `json:"skipped,omitempty"`
}

func (h *Handler) handleRollback(w http.ResponseWriter, r *http.Request) {
	entityType, entityID, ok := chainParams(w, r)
	if !ok {
		return
	}
	var req rollbackRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Branch != "" {
		if err := validator.ValidateBranchName(req.Branch); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	result, err := h.service.Rollback(r.Context(), versioning.RollbackRequest{
		EntityType: entityType,
		EntityID:   entityID,
		Version:    req.Version,
		Author:     auth.ActorOrSystem(r.Context()),
		Branch:     req.Branch,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	if result == nil {
		http.Error(w, "nothing to roll back to", http.StatusNotFound)
		return
	}

	snap, err := snapshot.Serialize(result.Entity)
	if err != nil {
		h.writeError(w, err)
		return
	}
	resp := rollbackResponse{
		Entity:    snap,
		Version:   result.Version,
		Target:    result.Target,
		Recreated: result.Recreated,
	}
	for _, field := range result.Skipped {
		resp.Skipped = append(resp.Skipped, field.String())
	}
	writeJSON(w, http.StatusOK, resp)
}

type cleanupRequest struct {
	KeepLast *int `json:"keepLast"`
}

func (h *Handler) handleCleanup(w http.ResponseWriter, r *http.Request) {
	var req cleanupRequest
	if !decodeBody(w, r, &req) {
		return
	}
	keepLast := h.keepLast
	if req.KeepLast != nil {
		keepLast = *req.KeepLast
	}
	result, err := h.service.Cleanup(r.Context(), keepLast)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	entityType, entityID, ok := chainParams(w, r)
	if !ok {
		return
	}
	branch, ok := branchParam(w, r)
	if !ok {
		return
	}
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if branch == "" {
		branch = h.service.DefaultBranch()
	}

	req := export.Request{EntityType: entityType, EntityID: entityID, Branch: branch, Format: format}
	var buf bytes.Buffer
	if err := h.exporter.Export(r.Context(), &buf, req); err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", req.FileName()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

type entityResponse struct {
	Entity  domain.Snapshot `json:"entity"`
	Version *domain.Version `json:"version,omitempty"`
}

func (h *Handler) handleGetEntity(w http.ResponseWriter, r *http.Request) {
	entityType, entityID, ok := chainParams(w, r)
	if !ok {
		return
	}
	entity, err := h.records.Get(r.Context(), entityType, entityID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	current, err := h.service.CurrentVersion(r.Context(), entityType, entityID, "")
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeEntity(w, http.StatusOK, entity, current)
}

func (h *Handler) handleCreateEntity(w http.ResponseWriter, r *http.Request) {
	var fields map[string]any
	if !decodeBody(w, r, &fields) {
		return
	}
	entity, version, err := h.records.Create(r.Context(), r.PathValue("type"), fields, auth.ActorOrSystem(r.Context()))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeEntity(w, http.StatusCreated, entity, version)
}

func (h *Handler) handleUpdateEntity(w http.ResponseWriter, r *http.Request) {
	entityType, entityID, ok := chainParams(w, r)
	if !ok {
		return
	}
	var fields map[string]any
	if !decodeBody(w, r, &fields) {
		return
	}
	entity, version, err := h.records.Update(r.Context(), entityType, entityID, fields, auth.ActorOrSystem(r.Context()))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeEntity(w, http.StatusOK, entity, version)
}

func (h *Handler) handleDeleteEntity(w http.ResponseWriter, r *http.Request) {
	entityType, entityID, ok := chainParams(w, r)
	if !ok {
		return
	}
	version, err := h.records.Delete(r.Context(), entityType, entityID, auth.ActorOrSystem(r.Context()))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"version": version})
}

func (h *Handler) writeEntity(w http.ResponseWriter, status int, entity domain.Entity, version *domain.Version) {
	snap, err := snapshot.Serialize(entity)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, status, entityResponse{Entity: snap, Version: version})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, versioning.ErrUnknownEntityType):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, versioning.ErrBranchExists):
		http.Error(w, err.Error(), http.StatusConflict)
	case versioning.IsTransient(err):
		w.Header().Set("Retry-After", "1")
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	case errors.Is(err, versioning.ErrInvalidKeepLast), errors.Is(err, rental.ErrInvalidFields):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		h.logger.WithError(err).Error("request failed")
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

func chainParams(w http.ResponseWriter, r *http.Request) (string, int64, bool) {
	entityType := r.PathValue("type")
	entityID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || entityID <= 0 {
		http.Error(w, "entity id must be a positive integer", http.StatusBadRequest)
		return "", 0, false
	}
	return entityType, entityID, true
}

func branchParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	branch := r.URL.Query().Get("branch")
	if branch == "" {
		return "", true
	}
	if err := validator.ValidateBranchName(branch); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return "", false
	}
	return branch, true
}

func parseIDs(raw string) ([]int64, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, errors.New("ids is required")
	}
	parts := strings.Split(raw, ",")
	ids := make([]int64, 0, len(parts))
	for _, part := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// decodeBody reads an optional JSON body. Numbers decode as json.Number so
// integer and decimal fields keep their precision.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.UseNumber()
	if err := decoder.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	_ = encoder.Encode(payload)
}
