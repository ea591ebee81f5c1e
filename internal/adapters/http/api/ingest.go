package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/okian/attribd/internal/domain/model"
)

// IngestHandler handles pixel and API ingestion requests.
type IngestHandler struct {
	deps Dependencies
}

// NewIngestHandler creates a new ingestion handler.
func NewIngestHandler(deps Dependencies) *IngestHandler {
	return &IngestHandler{deps: deps}
}

// trackRequest mirrors the JSON pixel beacon for POST /api/track.
type trackRequest struct {
	VisitorID        string         `json:"visitor_id"`
	SessionID        string         `json:"session_id"`
	TS               string         `json:"ts"`
	Event            string         `json:"event"`
	SiteToken        string         `json:"site_token"`
	CustomData       map[string]any `json:"custom_data"`
	UTMSource        string         `json:"utm_source"`
	UTMMedium        string         `json:"utm_medium"`
	UTMCampaign      string         `json:"utm_campaign"`
	UTMContent       string         `json:"utm_content"`
	UTMTerm          string         `json:"utm_term"`
	DetectedPlatform string         `json:"detected_platform"`
	GCLID            string         `json:"gclid"`
	FBCLID           string         `json:"fbclid"`
	TTCLID           string         `json:"ttclid"`
	CampaignID       string         `json:"campaign_id"`
	AdSetID          string         `json:"adset_id"`
	AdID             string         `json:"ad_id"`
	GenericAdID      string         `json:"h_ad_id"`
	Referrer         string         `json:"referrer"`
	LandingPage      string         `json:"landing_page"`
	Device           string         `json:"device"`
}

// customString plucks one string value from the pixel's custom_data blob.
func customString(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

type trackResponse struct {
	OK           bool   `json:"ok"`
	VisitorID    string `json:"visitor_id"`
	SessionID    string `json:"session_id"`
	TouchpointID string `json:"touchpoint_id,omitempty"`
}

// HandleTrack handles POST /api/track requests.
func (h *IngestHandler) HandleTrack(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", ErrMethodNotAllowed)
		return
	}
	var req trackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	ts, err := parseOptionalTS(req.TS)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	ev := model.TrackEvent{
		VisitorID: req.VisitorID,
		SessionID: req.SessionID,
		TS:        ts,
		Event:     req.Event,
		SiteToken: req.SiteToken,
		FormName:  customString(req.CustomData, "form_name"),
		Calendar:  customString(req.CustomData, "calendar"),
		Params: model.TrafficParams{
			UTMSource:        req.UTMSource,
			UTMMedium:        req.UTMMedium,
			UTMCampaign:      req.UTMCampaign,
			DetectedPlatform: req.DetectedPlatform,
			GCLID:            req.GCLID,
			FBCLID:           req.FBCLID,
			TTCLID:           req.TTCLID,
			CampaignID:       req.CampaignID,
			AdSetID:          req.AdSetID,
			AdID:             req.AdID,
			GenericAdID:      req.GenericAdID,
		},
		UTMContent:  req.UTMContent,
		UTMTerm:     req.UTMTerm,
		Referrer:    req.Referrer,
		LandingPage: req.LandingPage,
		Device:      req.Device,
	}
	res, err := h.deps.Track(r.Context(), ev)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trackResponse{
		OK:           true,
		VisitorID:    res.VisitorID,
		SessionID:    res.SessionID,
		TouchpointID: res.TouchpointID,
	})
}

// identifyRequest mirrors the JSON body for POST /api/identify.
type identifyRequest struct {
	VisitorID string `json:"visitor_id"`
	SessionID string `json:"session_id"`
	Email     string `json:"email"`
}

type identifyResponse struct {
	OK          bool   `json:"ok"`
	CustomerKey string `json:"customer_key"`
}

// HandleIdentify handles POST /api/identify requests.
func (h *IngestHandler) HandleIdentify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", ErrMethodNotAllowed)
		return
	}
	var req identifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", errors.New("email is required"))
		return
	}
	key, err := h.deps.Identify(r.Context(), model.IdentifyEvent{
		VisitorID:  req.VisitorID,
		SessionID:  req.SessionID,
		Credential: req.Email,
		TS:         time.Now(),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, identifyResponse{OK: true, CustomerKey: key})
}

// conversionRequest mirrors the JSON body for POST /api/conversion.
type conversionRequest struct {
	OrderID     string  `json:"order_id"`
	Type        string  `json:"type"`
	Value       float64 `json:"value"`
	Currency    string  `json:"currency"`
	TS          string  `json:"ts"`
	Email       string  `json:"email"`
	VisitorID   string  `json:"visitor_id"`
	SessionID   string  `json:"session_id"`
	UTMSource   string  `json:"utm_source"`
	UTMMedium   string  `json:"utm_medium"`
	UTMCampaign string  `json:"utm_campaign"`
	GCLID       string  `json:"gclid"`
	FBCLID      string  `json:"fbclid"`
	TTCLID      string  `json:"ttclid"`
	LandingPage string  `json:"landing_page"`
}

type conversionResponse struct {
	OK           bool   `json:"ok"`
	OrderID      string `json:"order_id"`
	ConversionID string `json:"conversion_id,omitempty"`
	CustomerKey  string `json:"customer_key,omitempty"`
	Duplicate    bool   `json:"duplicate"`
}

// HandleConversion handles POST /api/conversion requests.
func (h *IngestHandler) HandleConversion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", ErrMethodNotAllowed)
		return
	}
	var req conversionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	ts, err := parseOptionalTS(req.TS)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	res, err := h.deps.Conversion(r.Context(), model.ConversionEvent{
		OrderID:     req.OrderID,
		Type:        req.Type,
		Value:       req.Value,
		Currency:    req.Currency,
		TS:          ts,
		Email:       req.Email,
		VisitorID:   req.VisitorID,
		SessionID:   req.SessionID,
		UTMSource:   req.UTMSource,
		UTMMedium:   req.UTMMedium,
		UTMCampaign: req.UTMCampaign,
		GCLID:       req.GCLID,
		FBCLID:      req.FBCLID,
		TTCLID:      req.TTCLID,
		LandingPage: req.LandingPage,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conversionResponse{
		OK:           true,
		OrderID:      res.OrderID,
		ConversionID: res.ConversionID,
		CustomerKey:  res.CustomerKey,
		Duplicate:    res.Duplicate,
	})
}

// parseOptionalTS accepts an empty or RFC3339 timestamp.
func parseOptionalTS(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, errors.New("invalid ts; must be RFC3339")
	}
	return ts, nil
}
