package model

import "time"

// TrackEvent is one pixel hit: a pageview or a named custom event such as
// FormSubmit or BookingConfirmed.
type TrackEvent struct {
	VisitorID   string
	SessionID   string
	TS          time.Time
	Event       string // empty means pageview
	SiteToken   string
	Params      TrafficParams
	UTMContent  string
	UTMTerm     string
	Referrer    string
	LandingPage string
	Device      string
	FormName    string // FormSubmit events
	Calendar    string // BookingConfirmed events
}

// IdentifyEvent links a visitor to a customer credential. The credential is
// hashed on arrival and never stored raw.
type IdentifyEvent struct {
	VisitorID  string
	SessionID  string
	Credential string
	TS         time.Time
}

// ConversionEvent is an order or lead signal from a webhook or the API.
type ConversionEvent struct {
	OrderID     string
	Type        string
	Value       float64
	Currency    string
	TS          time.Time
	Email       string // raw credential, hashed to a customer key on ingest
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
