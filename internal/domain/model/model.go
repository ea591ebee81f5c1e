// Package model contains domain models passed between layers.
package model

import "time"

// Visitor is a device/browser identity generated client-side by the pixel.
type Visitor struct {
	ID        string
	FirstSeen time.Time
}

// Session groups a visitor's activity until it idles past the session timeout.
// Sessions never merge across visitors.
type Session struct {
	ID           string
	VisitorID    string
	Start        time.Time
	LastActivity time.Time
	UTMSource    string
	UTMMedium    string
	UTMCampaign  string
	UTMContent   string
	UTMTerm      string
	Referrer     string
	LandingPage  string
	Device       string
	GCLID        string
	FBCLID       string
	TTCLID       string
	CustomerKey  string
}

// Expired reports whether the session has idled past timeout as of now.
func (s Session) Expired(now time.Time, timeout time.Duration) bool {
	return now.Sub(s.LastActivity) > timeout
}

// Touchpoint is an immutable marketing-attributable event. Touchpoints are
// totally ordered by (TS, ID); IDs are ULIDs so the ID order agrees with
// insertion time at equal timestamps.
type Touchpoint struct {
	ID          string
	TS          time.Time
	VisitorID   string
	SessionID   string
	Platform    Platform
	Channel     string
	AccountID   string
	CampaignID  string
	AdSetID     string
	AdID        string
	CreativeID  string
	UTMSource   string
	UTMMedium   string
	UTMCampaign string
	UTMContent  string
	UTMTerm     string
	GCLID       string
	FBCLID      string
	TTCLID      string
	LandingPage string
}

// IdentityLink is one row of the append-only visitor -> customer link log.
// The newest row per visitor is the current mapping; older rows are retained
// for audit and backfill.
type IdentityLink struct {
	Seq         int64
	VisitorID   string
	CustomerKey string
	LinkedAt    time.Time
}

// Conversion types.
const (
	ConversionPurchase = "Purchase"
	ConversionLead     = "Lead"
	ConversionBooking  = "Booking"
)

// Conversion records a tracked outcome with its last-touch snapshot.
// (OrderID, Type) is the idempotency key.
type Conversion struct {
	ID          string
	OrderID     string
	Type        string
	Value       float64
	Currency    string
	TS          time.Time
	CustomerKey string // empty when unresolved
	VisitorID   string
	SessionID   string
	UTMSource   string
	UTMMedium   string
	UTMCampaign string
	GCLID       string
	FBCLID      string
	TTCLID      string
	LandingPage string
}

// SpendRecord is externally synced ad spend, read-only for this engine.
type SpendRecord struct {
	Platform    Platform
	AccountID   string
	CampaignID  string
	AdSetID     string
	AdID        string
	Date        string // YYYY-MM-DD
	Clicks      int
	Cost        float64
	Impressions int
}

// ReportedValue is a platform's own claimed conversion value for a dimension
// and day, used for reconciliation.
type ReportedValue struct {
	Platform       Platform
	AccountID      string
	CampaignID     string
	AdSetID        string
	AdID           string
	Date           string
	ConversionType string
	Value          float64
}

// Ad-name entity types.
const (
	EntityCampaign = "campaign"
	EntityAdSet    = "adset"
	EntityAd       = "ad"
)

// AdNameKey identifies one named platform entity.
type AdNameKey struct {
	Platform   Platform
	EntityType string
	EntityID   string
}

// AdName maps a platform entity id to a display name and its parent entity.
type AdName struct {
	Platform   Platform
	EntityType string
	EntityID   string
	Name       string
	ParentID   string
	UpdatedAt  time.Time
}

// CAPI sync statuses.
const (
	SyncPending = "pending"
	SyncSent    = "sent"
	SyncFailed  = "failed"
	SyncSkipped = "skipped"
)

// SyncRecord tracks the CAPI push state machine for one (platform, order).
type SyncRecord struct {
	Platform  Platform
	OrderID   string
	Status    string
	Attempts  int
	LastError string
	UpdatedAt time.Time
}

// Freshness reports the newest timestamps per event table.
type Freshness struct {
	LastSession    *time.Time
	LastTouchpoint *time.Time
	LastConversion *time.Time
	LastSpendDate  string
}

// Pixel event names with dedicated feed flows.
const (
	EventPageview         = "pageview"
	EventFormSubmit       = "FormSubmit"
	EventBookingConfirmed = "BookingConfirmed"
)

// Live-feed event types.
const (
	FeedNewSession    = "new_session"
	FeedNewLead       = "new_lead"
	FeedNewBooking    = "new_booking"
	FeedNewOrder      = "new_order"
	FeedNewConversion = "new_conversion"
	FeedIdentify      = "identify"
)

// FeedEvent is a typed real-time event broadcast to live-feed subscribers.
type FeedEvent struct {
	Type   string         `json:"type"`
	TS     time.Time      `json:"ts"`
	Fields map[string]any `json:"fields,omitempty"`
}
