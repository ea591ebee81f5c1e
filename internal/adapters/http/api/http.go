// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/okian/attribd/internal/adapters/adsync"
	"github.com/okian/attribd/internal/adapters/capi"
	"github.com/okian/attribd/internal/adapters/feed"
	service "github.com/okian/attribd/internal/app"
	"github.com/okian/attribd/internal/domain/model"
	"github.com/okian/attribd/internal/domain/report"
)

// Result shapes surfaced by ingestion endpoints.
type (
	TrackResult      = service.TrackResult
	ConversionResult = service.ConversionResult
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	Track(ctx context.Context, ev model.TrackEvent) (TrackResult, error)
	Identify(ctx context.Context, ev model.IdentifyEvent) (string, error)
	Conversion(ctx context.Context, ev model.ConversionEvent) (ConversionResult, error)

	Report(ctx context.Context, params report.Params) (*report.Report, error)
	ReportChildren(ctx context.Context, parentTab report.Tab, parentID string, params report.Params) (*report.Children, error)

	CAPIStatus(ctx context.Context) (capi.StatusReport, error)
	CAPISync(ctx context.Context) (capi.SweepResult, error)
	CAPILog(ctx context.Context, platform model.Platform, limit, offset int) ([]model.SyncRecord, error)

	AdNames(ctx context.Context, platform model.Platform, entityType, search string) ([]model.AdName, error)
	UpsertAdName(ctx context.Context, n model.AdName) error
	DeleteAdName(ctx context.Context, platform model.Platform, entityType, entityID string) error
	SyncAdNames(ctx context.Context, platform string) ([]adsync.Result, error)

	Subscribe() *feed.Subscriber
	Unsubscribe(sub *feed.Subscriber)

	Stats(ctx context.Context) (map[string]any, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler  *HealthHandler
	statsHandler   *StatsHandler
	ingestHandler  *IngestHandler
	webhookHandler *WebhookHandler
	reportHandler  *ReportHandler
	capiHandler    *CAPIHandler
	adNamesHandler *AdNamesHandler
	streamHandler  *StreamHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...ServerOption) *Server {
	o := applyServerOptions(opts)
	return &Server{
		healthHandler:  NewHealthHandler(),
		statsHandler:   NewStatsHandler(deps),
		ingestHandler:  NewIngestHandler(deps),
		webhookHandler: NewWebhookHandler(deps, o.shopifySecret, o.stripeSecret),
		reportHandler:  NewReportHandler(deps),
		capiHandler:    NewCAPIHandler(deps),
		adNamesHandler: NewAdNamesHandler(deps),
		streamHandler:  NewStreamHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("/api/track", MetricsMiddleware(s.ingestHandler.HandleTrack, "track"))
	mux.HandleFunc("/api/identify", MetricsMiddleware(s.ingestHandler.HandleIdentify, "identify"))
	mux.HandleFunc("/api/conversion", MetricsMiddleware(s.ingestHandler.HandleConversion, "conversion"))

	mux.HandleFunc("/api/webhooks/shopify", MetricsMiddleware(s.webhookHandler.HandleShopify, "webhook_shopify"))
	mux.HandleFunc("/api/webhooks/stripe", MetricsMiddleware(s.webhookHandler.HandleStripe, "webhook_stripe"))

	mux.HandleFunc("/api/report", MetricsMiddleware(s.reportHandler.HandleReport, "report"))
	mux.HandleFunc("/api/report/children", MetricsMiddleware(s.reportHandler.HandleChildren, "report_children"))

	mux.HandleFunc("/api/capi/status", MetricsMiddleware(s.capiHandler.HandleStatus, "capi_status"))
	mux.HandleFunc("/api/capi/sync", MetricsMiddleware(s.capiHandler.HandleSync, "capi_sync"))
	mux.HandleFunc("/api/capi/log", MetricsMiddleware(s.capiHandler.HandleLog, "capi_log"))

	mux.HandleFunc("/api/ad-names", MetricsMiddleware(s.adNamesHandler.HandleAdNames, "ad_names"))
	mux.HandleFunc("/api/ad-names/sync", MetricsMiddleware(s.adNamesHandler.HandleSync, "ad_names_sync"))

	mux.HandleFunc("/api/events/stream", s.streamHandler.HandleStream)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeServiceError maps known service errors to HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, report.ErrInvalidParams), errors.Is(err, report.ErrInvalidParent),
		errors.Is(err, service.ErrMissingVisitor), errors.Is(err, service.ErrMissingOrderID),
		errors.Is(err, service.ErrInvalidAdName):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	case errors.Is(err, service.ErrCAPIDisabled), errors.Is(err, service.ErrAdSyncDisabled):
		writeError(w, http.StatusNotImplemented, "not_configured", err)
	case errors.Is(err, adsync.ErrNotSupported):
		writeError(w, http.StatusBadRequest, "unsupported_platform", err)
	case errors.Is(err, model.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}
