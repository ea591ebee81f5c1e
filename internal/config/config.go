// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Keep fields unexported where possible and use functional options.
// - Provide New(...Option) initializer to build a Config with defaults.
// - External errors must be wrapped via this package's error helpers.
package config

import "runtime"

// Config contains process configuration. Extend as needed.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// DBPath points at the SQLite event store file.
	DBPath string `koanf:"db_path"`

	// SessionTimeoutMinutes is the inactivity window after which a session expires.
	SessionTimeoutMinutes int `koanf:"session_timeout_minutes"`

	// DefaultLookbackDays bounds touchpoint eligibility when the caller omits it.
	DefaultLookbackDays int `koanf:"default_lookback_days"`

	// TimeDecayHalfLifeDays is the half-life of the time_decay model.
	TimeDecayHalfLifeDays float64 `koanf:"time_decay_half_life_days"`

	// ReportWorkers sets the attribution fan-out parallelism per report build.
	ReportWorkers int `koanf:"report_workers"`

	// DedupeSize bounds the in-memory idempotency cache.
	DedupeSize int `koanf:"dedupe_size"`

	// FeedBufferSize bounds each live-feed subscriber buffer.
	FeedBufferSize int `koanf:"feed_buffer_size"`

	// AnomalyThreshold flags reconciliation deltas above this fraction.
	AnomalyThreshold float64 `koanf:"anomaly_threshold"`

	// CAPISweepIntervalMinutes schedules the background conversion push sweep.
	// Zero disables the scheduled sweep; manual triggers still work.
	CAPISweepIntervalMinutes int `koanf:"capi_sweep_interval_minutes"`

	// CAPIMaxAttempts bounds retries for failed pushes before they go terminal.
	CAPIMaxAttempts int `koanf:"capi_max_attempts"`

	// Per-platform CAPI credentials. Empty means the platform is not configured
	// and its conversions are skipped.
	MetaAccessToken    string `koanf:"meta_access_token"`
	MetaPixelID        string `koanf:"meta_pixel_id"`
	MetaAdAccountID    string `koanf:"meta_ad_account_id"`
	GoogleDevToken     string `koanf:"google_dev_token"`
	GoogleCustomerID   string `koanf:"google_customer_id"`
	GoogleConvAction   string `koanf:"google_conv_action"`
	GoogleAccessToken  string `koanf:"google_access_token"`
	TikTokAccessToken  string `koanf:"tiktok_access_token"`
	TikTokPixelID      string `koanf:"tiktok_pixel_id"`
	TikTokAdvertiserID string `koanf:"tiktok_advertiser_id"`

	// Webhook shared secrets. Empty disables signature verification.
	ShopifyWebhookSecret string `koanf:"shopify_webhook_secret"`
	StripeWebhookSecret  string `koanf:"stripe_webhook_secret"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:                 "info",
		Addr:                     ":9080",
		DBPath:                   "data/attribd.sqlite",
		SessionTimeoutMinutes:    30,
		DefaultLookbackDays:      30,
		TimeDecayHalfLifeDays:    7,
		ReportWorkers:            runtime.NumCPU(),
		DedupeSize:               100_000,
		FeedBufferSize:           50,
		AnomalyThreshold:         0.25,
		CAPISweepIntervalMinutes: 0,
		CAPIMaxAttempts:          3,
	}
}
