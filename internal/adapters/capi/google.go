package capi

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/okian/attribd/internal/domain/model"
)

const googleUploadURL = "https://googleads.googleapis.com/v15/customers/%s:uploadClickConversions"

// GooglePusher uploads offline click conversions to Google Ads.
type GooglePusher struct {
	devToken         string
	customerID       string
	conversionAction string
	accessToken      string
	client           *http.Client
	url              string
}

var _ Pusher = (*GooglePusher)(nil)

// NewGooglePusher builds a Google Ads pusher.
func NewGooglePusher(devToken, customerID, conversionAction, accessToken string, opts ...PusherOption) *GooglePusher {
	o := applyPusherOptions(opts)
	url := o.baseURL
	if url == "" {
		url = fmt.Sprintf(googleUploadURL, customerID)
	}
	return &GooglePusher{
		devToken:         devToken,
		customerID:       customerID,
		conversionAction: conversionAction,
		accessToken:      accessToken,
		client:           o.client,
		url:              url,
	}
}

func (p *GooglePusher) Platform() model.Platform { return model.PlatformGoogle }

func (p *GooglePusher) Configured() bool {
	return p.devToken != "" && p.customerID != "" && p.conversionAction != "" && p.accessToken != ""
}

// Check requires a gclid; Google matches offline conversions on click id only.
func (p *GooglePusher) Check(c model.Conversion) error {
	if c.GCLID == "" {
		return fmt.Errorf("%w: conversion has no gclid", ErrMissingIdentifier)
	}
	return nil
}

type googleClickConversion struct {
	ConversionAction   string  `json:"conversionAction"`
	ConversionDateTime string  `json:"conversionDateTime"`
	ConversionValue    float64 `json:"conversionValue"`
	CurrencyCode       string  `json:"currencyCode"`
	OrderID            string  `json:"orderId"`
	GCLID              string  `json:"gclid"`
}

type googlePayload struct {
	Conversions    []googleClickConversion `json:"conversions"`
	PartialFailure bool                    `json:"partialFailure"`
}

func (p *GooglePusher) Push(ctx context.Context, c model.Conversion) error {
	if !p.Configured() {
		return ErrNotConfigured
	}
	// Google wants "2006-01-02 15:04:05+00:00".
	ts := strings.NewReplacer("T", " ", "Z", "+00:00").Replace(c.TS.UTC().Format("2006-01-02T15:04:05Z"))
	payload := googlePayload{
		Conversions: []googleClickConversion{{
			ConversionAction:   fmt.Sprintf("customers/%s/conversionActions/%s", p.customerID, p.conversionAction),
			ConversionDateTime: ts,
			ConversionValue:    c.Value,
			CurrencyCode:       c.Currency,
			OrderID:            c.OrderID,
			GCLID:              c.GCLID,
		}},
		PartialFailure: true,
	}
	headers := map[string]string{
		"Authorization":   "Bearer " + p.accessToken,
		"developer-token": p.devToken,
	}
	if err := postJSON(ctx, p.client, p.url, headers, payload, nil); err != nil {
		return fmt.Errorf("google ads offline conversions: %w", err)
	}
	return nil
}
