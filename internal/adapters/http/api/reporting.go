package api

import (
	"net/http"
	"strconv"

	"github.com/okian/attribd/internal/domain/attribution"
	"github.com/okian/attribd/internal/domain/report"
)

// ReportHandler handles report build requests.
type ReportHandler struct {
	deps Dependencies
}

// NewReportHandler creates a new report handler.
func NewReportHandler(deps Dependencies) *ReportHandler {
	return &ReportHandler{deps: deps}
}

// paramsFromQuery maps the report query string onto build params. Validation
// happens inside the build.
func paramsFromQuery(r *http.Request) report.Params {
	q := r.URL.Query()
	p := report.Params{
		ReportName:     q.Get("name"),
		StartDate:      q.Get("start_date"),
		EndDate:        q.Get("end_date"),
		Model:          attribution.Model(q.Get("model")),
		ConversionType: q.Get("conversion_type"),
		ActiveTab:      report.Tab(q.Get("tab")),
		Currency:       q.Get("currency"),
	}
	if n, err := strconv.Atoi(q.Get("lookback_days")); err == nil {
		p.LookbackDays = n
	}
	if basis := q.Get("date_basis"); basis == "click" {
		p.UseClickDate = true
	}
	return p
}

// HandleReport handles GET /api/report requests.
func (h *ReportHandler) HandleReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", ErrMethodNotAllowed)
		return
	}
	rep, err := h.deps.Report(r.Context(), paramsFromQuery(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// HandleChildren handles GET /api/report/children requests.
func (h *ReportHandler) HandleChildren(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", ErrMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	parentID := q.Get("parent_id")
	if parentID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}
	parentTab, err := report.ParseTab(q.Get("parent_tab"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	children, err := h.deps.ReportChildren(r.Context(), parentTab, parentID, paramsFromQuery(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, children)
}
