package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/okian/attribd/internal/domain/model"
)

// AdNamesHandler manages the entity display-name mappings.
type AdNamesHandler struct {
	deps Dependencies
}

// NewAdNamesHandler creates a new ad-names handler.
func NewAdNamesHandler(deps Dependencies) *AdNamesHandler {
	return &AdNamesHandler{deps: deps}
}

// adNameJSON is the wire shape of one display-name mapping.
type adNameJSON struct {
	Platform   string `json:"platform"`
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
	Name       string `json:"name"`
	ParentID   string `json:"parent_id,omitempty"`
	UpdatedAt  string `json:"updated_at,omitempty"`
}

// HandleAdNames dispatches GET/POST/DELETE on /api/ad-names.
func (h *AdNamesHandler) HandleAdNames(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleList(w, r)
	case http.MethodPost:
		h.handleUpsert(w, r)
	case http.MethodDelete:
		h.handleDelete(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", ErrMethodNotAllowed)
	}
}

func (h *AdNamesHandler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	names, err := h.deps.AdNames(r.Context(),
		model.Platform(q.Get("platform")), q.Get("entity_type"), q.Get("search"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	out := make([]adNameJSON, 0, len(names))
	for _, n := range names {
		out = append(out, adNameJSON{
			Platform:   string(n.Platform),
			EntityType: n.EntityType,
			EntityID:   n.EntityID,
			Name:       n.Name,
			ParentID:   n.ParentID,
			UpdatedAt:  n.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"names": out})
}

func (h *AdNamesHandler) handleUpsert(w http.ResponseWriter, r *http.Request) {
	var req adNameJSON
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	err := h.deps.UpsertAdName(r.Context(), model.AdName{
		Platform:   model.Platform(req.Platform),
		EntityType: req.EntityType,
		EntityID:   req.EntityID,
		Name:       req.Name,
		ParentID:   req.ParentID,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *AdNamesHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	platform, entityType, entityID := q.Get("platform"), q.Get("entity_type"), q.Get("entity_id")
	if platform == "" || entityType == "" || entityID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}
	if err := h.deps.DeleteAdName(r.Context(), model.Platform(platform), entityType, entityID); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// HandleSync handles POST /api/ad-names/sync requests, refreshing names from
// the platform marketing APIs.
func (h *AdNamesHandler) HandleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", ErrMethodNotAllowed)
		return
	}
	results, err := h.deps.SyncAdNames(r.Context(), r.URL.Query().Get("platform"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}
