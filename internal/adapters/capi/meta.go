package capi

import (
	"context"
	"fmt"
	"net/http"

	"github.com/okian/attribd/internal/domain/model"
)

const metaEventsURL = "https://graph.facebook.com/v18.0/%s/events"

// MetaPusher sends conversions to the Meta Conversions API.
type MetaPusher struct {
	accessToken string
	pixelID     string
	client      *http.Client
	url         string
}

var _ Pusher = (*MetaPusher)(nil)

// NewMetaPusher builds a Meta pusher. Empty credentials leave it
// unconfigured; pushes then fail with ErrNotConfigured.
func NewMetaPusher(accessToken, pixelID string, opts ...PusherOption) *MetaPusher {
	o := applyPusherOptions(opts)
	url := o.baseURL
	if url == "" {
		url = fmt.Sprintf(metaEventsURL, pixelID)
	}
	return &MetaPusher{accessToken: accessToken, pixelID: pixelID, client: o.client, url: url}
}

func (p *MetaPusher) Platform() model.Platform { return model.PlatformMeta }

func (p *MetaPusher) Configured() bool { return p.accessToken != "" && p.pixelID != "" }

// Check requires a customer key for Meta's hashed-email match.
func (p *MetaPusher) Check(c model.Conversion) error {
	if c.CustomerKey == "" && c.FBCLID == "" {
		return fmt.Errorf("%w: conversion has neither customer key nor fbclid", ErrMissingIdentifier)
	}
	return nil
}

type metaUserData struct {
	Email []string `json:"em,omitempty"`
	FBC   string   `json:"fbc,omitempty"`
}

type metaEvent struct {
	EventName      string         `json:"event_name"`
	EventTime      int64          `json:"event_time"`
	EventSourceURL string         `json:"event_source_url,omitempty"`
	ActionSource   string         `json:"action_source"`
	UserData       metaUserData   `json:"user_data"`
	CustomData     map[string]any `json:"custom_data"`
}

type metaPayload struct {
	Data        []metaEvent `json:"data"`
	AccessToken string      `json:"access_token"`
}

type metaResponse struct {
	EventsReceived int `json:"events_received"`
}

func (p *MetaPusher) Push(ctx context.Context, c model.Conversion) error {
	if !p.Configured() {
		return ErrNotConfigured
	}
	ev := metaEvent{
		EventName:      c.Type,
		EventTime:      c.TS.Unix(),
		EventSourceURL: c.LandingPage,
		ActionSource:   "website",
		CustomData: map[string]any{
			"currency":     c.Currency,
			"value":        c.Value,
			"order_id":     c.OrderID,
			"content_type": "product",
		},
	}
	if c.CustomerKey != "" {
		ev.UserData.Email = []string{hashedEmail(c.CustomerKey)}
	}
	if c.FBCLID != "" {
		ev.UserData.FBC = c.FBCLID
	}
	var out metaResponse
	if err := postJSON(ctx, p.client, p.url, nil, metaPayload{Data: []metaEvent{ev}, AccessToken: p.accessToken}, &out); err != nil {
		return fmt.Errorf("meta conversions api: %w", err)
	}
	if out.EventsReceived < 1 {
		return fmt.Errorf("meta conversions api: no events received")
	}
	return nil
}
