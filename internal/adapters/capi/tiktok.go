package capi

import (
	"context"
	"fmt"
	"net/http"

	"github.com/okian/attribd/internal/domain/model"
)

const tiktokTrackURL = "https://business-api.tiktok.com/open_api/v1.3/pixel/track/"

// TikTokPusher sends conversions to the TikTok Events API.
type TikTokPusher struct {
	accessToken string
	pixelID     string
	client      *http.Client
	url         string
}

var _ Pusher = (*TikTokPusher)(nil)

// NewTikTokPusher builds a TikTok pusher.
func NewTikTokPusher(accessToken, pixelID string, opts ...PusherOption) *TikTokPusher {
	o := applyPusherOptions(opts)
	url := o.baseURL
	if url == "" {
		url = tiktokTrackURL
	}
	return &TikTokPusher{accessToken: accessToken, pixelID: pixelID, client: o.client, url: url}
}

func (p *TikTokPusher) Platform() model.Platform { return model.PlatformTikTok }

func (p *TikTokPusher) Configured() bool { return p.accessToken != "" && p.pixelID != "" }

// Check requires either a ttclid or a customer key.
func (p *TikTokPusher) Check(c model.Conversion) error {
	if c.TTCLID == "" && c.CustomerKey == "" {
		return fmt.Errorf("%w: conversion has neither ttclid nor customer key", ErrMissingIdentifier)
	}
	return nil
}

// eventName maps conversion types onto TikTok's standard event names.
func (p *TikTokPusher) eventName(conversionType string) string {
	if conversionType == model.ConversionPurchase {
		return "CompletePayment"
	}
	return "SubmitForm"
}

type tiktokPayload struct {
	PixelCode  string         `json:"pixel_code"`
	Event      string         `json:"event"`
	EventID    string         `json:"event_id"`
	Timestamp  string         `json:"timestamp"`
	Context    map[string]any `json:"context"`
	Properties map[string]any `json:"properties"`
}

type tiktokResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (p *TikTokPusher) Push(ctx context.Context, c model.Conversion) error {
	if !p.Configured() {
		return ErrNotConfigured
	}
	user := map[string]any{}
	if c.CustomerKey != "" {
		user["email"] = hashedEmail(c.CustomerKey)
	}
	if c.TTCLID != "" {
		user["ttclid"] = c.TTCLID
	}
	payload := tiktokPayload{
		PixelCode: p.pixelID,
		Event:     p.eventName(c.Type),
		EventID:   c.OrderID,
		Timestamp: c.TS.UTC().Format("2006-01-02T15:04:05Z"),
		Context: map[string]any{
			"user": user,
			"page": map[string]any{"url": c.LandingPage},
		},
		Properties: map[string]any{
			"currency": c.Currency,
			"value":    c.Value,
			"contents": []map[string]any{{"content_type": "product", "content_id": c.OrderID}},
		},
	}
	headers := map[string]string{"Access-Token": p.accessToken}
	var out tiktokResponse
	if err := postJSON(ctx, p.client, p.url, headers, payload, &out); err != nil {
		return fmt.Errorf("tiktok events api: %w", err)
	}
	if out.Code != 0 {
		return fmt.Errorf("tiktok events api: code %d: %s", out.Code, out.Message)
	}
	return nil
}
