// Package capi pushes tracked conversions back to ad platform conversion
// APIs and tracks per-order sync state.
package capi

import (
	"context"
	"net/http"
	"time"

	"github.com/okian/attribd/internal/domain/model"
	"github.com/okian/attribd/pkg/logger"
	"github.com/okian/attribd/pkg/metrics"
)

// Pusher sends one conversion to one platform's conversion API.
type Pusher interface {
	Platform() model.Platform
	// Configured reports whether credentials are present.
	Configured() bool
	// Check returns a wrapped ErrMissingIdentifier when the conversion lacks
	// the identifiers the platform needs. Such conversions are skipped
	// permanently.
	Check(c model.Conversion) error
	// Push delivers the conversion. Errors are retryable.
	Push(ctx context.Context, c model.Conversion) error
}

// SyncStore is the CAPI slice of the event store.
type SyncStore interface {
	UnsyncedConversions(ctx context.Context, limit int) ([]model.Conversion, error)
	SyncRecord(ctx context.Context, platform model.Platform, orderID string) (model.SyncRecord, error)
	UpsertSyncRecord(ctx context.Context, rec model.SyncRecord) error
	SyncCounts(ctx context.Context) (map[model.Platform]map[string]int, error)
	SyncLog(ctx context.Context, platform model.Platform, limit, offset int) ([]model.SyncRecord, error)
}

const sweepBatchSize = 100

// Syncer drives the conversion push state machine:
// pending -> sent | skipped (terminal) | failed (retryable up to max attempts).
type Syncer struct {
	store       SyncStore
	pushers     map[model.Platform]Pusher
	maxAttempts int
	log         logger.Logger
}

// NewSyncer builds a Syncer over the given store and pushers.
func NewSyncer(store SyncStore, opts ...SyncerOption) *Syncer {
	o := applySyncerOptions(opts)
	return &Syncer{
		store:       store,
		pushers:     o.pushers,
		maxAttempts: o.maxAttempts,
		log:         o.log,
	}
}

// SweepResult summarizes one sweep.
type SweepResult struct {
	Total   int           `json:"total"`
	Pushed  int           `json:"pushed"`
	Failed  int           `json:"failed"`
	Skipped int           `json:"skipped"`
	Details []SweepDetail `json:"details,omitempty"`
}

// SweepDetail records one sweep decision.
type SweepDetail struct {
	OrderID  string         `json:"order_id"`
	Platform model.Platform `json:"platform"`
	Status   string         `json:"status"`
	Error    string         `json:"error,omitempty"`
}

// targetPlatform picks the destination platform from the conversion's click-id
// snapshot. Empty when no platform claims the conversion.
func targetPlatform(c model.Conversion) model.Platform {
	switch {
	case c.GCLID != "":
		return model.PlatformGoogle
	case c.FBCLID != "":
		return model.PlatformMeta
	case c.TTCLID != "":
		return model.PlatformTikTok
	}
	p, _ := model.DetectPlatform(model.TrafficParams{UTMSource: c.UTMSource, UTMMedium: c.UTMMedium})
	switch p {
	case model.PlatformMeta, model.PlatformGoogle, model.PlatformTikTok:
		return p
	}
	return ""
}

// Sweep walks unsynced conversions once, pushing each to its platform.
// Re-sweeping never re-sends an order already sent or skipped.
func (s *Syncer) Sweep(ctx context.Context) (SweepResult, error) {
	start := time.Now()
	defer func() {
		metrics.RecordCAPISweepDuration(float64(time.Since(start).Microseconds()) / 1000.0)
	}()

	var res SweepResult
	convs, err := s.store.UnsyncedConversions(ctx, sweepBatchSize)
	if err != nil {
		return res, err
	}
	for _, conv := range convs {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		res.Total++
		detail := s.sweepOne(ctx, conv)
		switch detail.Status {
		case model.SyncSent:
			res.Pushed++
		case model.SyncSkipped:
			res.Skipped++
		case model.SyncFailed:
			res.Failed++
		default:
			// Already terminal or retry budget spent; nothing was recorded.
			res.Total--
			continue
		}
		res.Details = append(res.Details, detail)
	}
	return res, nil
}

// sweepOne runs the state machine for one conversion. Returns an empty status
// when no state transition happened.
func (s *Syncer) sweepOne(ctx context.Context, conv model.Conversion) SweepDetail {
	platform := targetPlatform(conv)
	if platform == "" {
		return SweepDetail{}
	}
	pusher, ok := s.pushers[platform]
	if !ok {
		return SweepDetail{}
	}

	rec, err := s.store.SyncRecord(ctx, platform, conv.OrderID)
	switch {
	case err == nil && (rec.Status == model.SyncSent || rec.Status == model.SyncSkipped):
		return SweepDetail{}
	case err == nil && rec.Status == model.SyncFailed && rec.Attempts >= s.maxAttempts:
		return SweepDetail{}
	case err != nil && !isNotFound(err):
		s.log.Error(ctx, "capi sync record lookup failed",
			logger.String("order_id", conv.OrderID), logger.Error(err))
		return SweepDetail{}
	}
	rec.Platform = platform
	rec.OrderID = conv.OrderID

	if checkErr := pusher.Check(conv); checkErr != nil {
		rec.Status = model.SyncSkipped
		rec.LastError = checkErr.Error()
		rec.UpdatedAt = time.Now()
		s.record(ctx, rec)
		return SweepDetail{OrderID: conv.OrderID, Platform: platform, Status: rec.Status, Error: rec.LastError}
	}

	if pushErr := pusher.Push(ctx, conv); pushErr != nil {
		rec.Status = model.SyncFailed
		rec.Attempts++
		rec.LastError = pushErr.Error()
		rec.UpdatedAt = time.Now()
		s.record(ctx, rec)
		s.log.Warn(ctx, "capi push failed",
			logger.String("platform", string(platform)),
			logger.String("order_id", conv.OrderID),
			logger.Int("attempts", rec.Attempts),
			logger.Error(pushErr))
		return SweepDetail{OrderID: conv.OrderID, Platform: platform, Status: rec.Status, Error: rec.LastError}
	}

	rec.Status = model.SyncSent
	rec.Attempts++
	rec.LastError = ""
	rec.UpdatedAt = time.Now()
	s.record(ctx, rec)
	return SweepDetail{OrderID: conv.OrderID, Platform: platform, Status: rec.Status}
}

func (s *Syncer) record(ctx context.Context, rec model.SyncRecord) {
	metrics.RecordCAPIPush(string(rec.Platform), rec.Status)
	if err := s.store.UpsertSyncRecord(ctx, rec); err != nil {
		s.log.Error(ctx, "capi sync record write failed",
			logger.String("order_id", rec.OrderID), logger.Error(err))
	}
}

// Run sweeps on the given interval until ctx is canceled.
func (s *Syncer) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	s.log.Info(ctx, "capi sweep loop started", logger.String("interval", interval.String()))
	for {
		select {
		case <-ctx.Done():
			s.log.Info(ctx, "capi sweep loop stopped")
			return
		case <-ticker.C:
			if res, err := s.Sweep(ctx); err != nil {
				s.log.Error(ctx, "capi sweep failed", logger.Error(err))
			} else if res.Total > 0 {
				s.log.Info(ctx, "capi sweep done",
					logger.Int("total", res.Total),
					logger.Int("pushed", res.Pushed),
					logger.Int("failed", res.Failed),
					logger.Int("skipped", res.Skipped))
			}
		}
	}
}

// PlatformStatus describes one platform's configuration and sync stats.
type PlatformStatus struct {
	Configured bool           `json:"configured"`
	Stats      map[string]int `json:"stats,omitempty"`
}

// StatusReport is the /api/capi/status payload.
type StatusReport struct {
	Platforms map[model.Platform]PlatformStatus `json:"platforms"`
}

// Status reports configuration and per-status counts for every known pusher.
func (s *Syncer) Status(ctx context.Context) (StatusReport, error) {
	counts, err := s.store.SyncCounts(ctx)
	if err != nil {
		return StatusReport{}, err
	}
	out := StatusReport{Platforms: make(map[model.Platform]PlatformStatus, len(s.pushers))}
	for platform, p := range s.pushers {
		out.Platforms[platform] = PlatformStatus{
			Configured: p.Configured(),
			Stats:      counts[platform],
		}
	}
	return out, nil
}

// Log pages the push history, newest first.
func (s *Syncer) Log(ctx context.Context, platform model.Platform, limit, offset int) ([]model.SyncRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	return s.store.SyncLog(ctx, platform, limit, offset)
}

// newHTTPClient is the default client for platform pushers.
func newHTTPClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}
