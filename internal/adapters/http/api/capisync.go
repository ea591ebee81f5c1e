package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/okian/attribd/internal/domain/model"
)

// CAPIHandler handles conversion API sync requests.
type CAPIHandler struct {
	deps Dependencies
}

// NewCAPIHandler creates a new CAPI handler.
func NewCAPIHandler(deps Dependencies) *CAPIHandler {
	return &CAPIHandler{deps: deps}
}

// HandleStatus handles GET /api/capi/status requests.
func (h *CAPIHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", ErrMethodNotAllowed)
		return
	}
	status, err := h.deps.CAPIStatus(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// HandleSync handles POST /api/capi/sync requests, running one sweep now.
func (h *CAPIHandler) HandleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", ErrMethodNotAllowed)
		return
	}
	res, err := h.deps.CAPISync(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleLog handles GET /api/capi/log requests.
func (h *CAPIHandler) HandleLog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", ErrMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	records, err := h.deps.CAPILog(r.Context(), model.Platform(q.Get("platform")), limit, offset)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	out := make([]syncRecordResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, syncRecordResponse{
			Platform:  string(rec.Platform),
			OrderID:   rec.OrderID,
			Status:    rec.Status,
			Attempts:  rec.Attempts,
			LastError: rec.LastError,
			UpdatedAt: rec.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": out})
}

// syncRecordResponse is the JSON shape of one push log row.
type syncRecordResponse struct {
	Platform  string `json:"platform"`
	OrderID   string `json:"order_id"`
	Status    string `json:"status"`
	Attempts  int    `json:"attempts"`
	LastError string `json:"last_error,omitempty"`
	UpdatedAt string `json:"updated_at"`
}
