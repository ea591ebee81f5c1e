// Package service provides the core business service that implements the
// dependencies required by the HTTP API.
package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/okian/attribd/internal/adapters/adsync"
	"github.com/okian/attribd/internal/adapters/capi"
	"github.com/okian/attribd/internal/adapters/feed"
	"github.com/okian/attribd/internal/adapters/repository"
	"github.com/okian/attribd/internal/domain/attribution"
	"github.com/okian/attribd/internal/domain/dedupe"
	"github.com/okian/attribd/internal/domain/identity"
	"github.com/okian/attribd/internal/domain/model"
	"github.com/okian/attribd/internal/domain/reconcile"
	"github.com/okian/attribd/internal/domain/report"
	"github.com/okian/attribd/pkg/logger"
	"github.com/okian/attribd/pkg/metrics"
)

// Service implements the attribution engine's operations over the event
// store and adapters.
type Service struct {
	store    repository.Store
	resolver *identity.Resolver
	engine   *attribution.Engine
	builder  *report.Builder
	deduper  dedupe.Deduper
	hub      *feed.Hub
	syncer   *capi.Syncer
	names    *adsync.Syncer

	sessionTimeout time.Duration
	lookbackDays   int
	sweepInterval  time.Duration

	mu      sync.Mutex
	started bool
	stop    context.CancelFunc
	done    chan struct{}

	log logger.Logger
}

// New wires a Service over the given store.
func New(store repository.Store, opts ...Option) *Service {
	o := applyOptions(opts)

	engine := attribution.New(attribution.WithHalfLifeDays(o.halfLifeDays))
	checker := reconcile.New(o.anomalyThreshold)
	builder := report.NewBuilder(
		func(ctx context.Context) (report.Reader, func() error, error) {
			return store.Snapshot(ctx)
		},
		engine,
		report.WithWorkers(o.reportWorkers),
		report.WithChecker(checker),
	)

	return &Service{
		store:          store,
		resolver:       identity.NewResolver(store),
		engine:         engine,
		builder:        builder,
		deduper:        dedupe.New(o.dedupeSize),
		hub:            feed.NewHub(o.feedBufferSize),
		syncer:         o.syncer,
		names:          o.nameSyncer,
		sessionTimeout: o.sessionTimeout,
		lookbackDays:   o.lookbackDays,
		sweepInterval:  o.sweepInterval,
		log:            o.log,
	}
}

// Start launches background loops. Idempotent.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	s.started = true
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.stop = cancel
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		if s.syncer != nil && s.sweepInterval > 0 {
			s.syncer.Run(runCtx, s.sweepInterval)
			return
		}
		<-runCtx.Done()
	}()
	s.log.Info(ctx, "service started",
		logger.String("session_timeout", s.sessionTimeout.String()),
		logger.Int("default_lookback_days", s.lookbackDays))
	return nil
}

// Stop halts background loops and waits for them.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	s.started = false
	s.stop()
	<-s.done
}

// TrackResult reports the ids one pixel hit resolved to.
type TrackResult struct {
	VisitorID    string
	SessionID    string
	TouchpointID string
}

// Track ingests one pixel hit: visitor upsert, session touch, and a
// touchpoint when the hit carries any marketing signal.
func (s *Service) Track(ctx context.Context, ev model.TrackEvent) (TrackResult, error) {
	if ev.TS.IsZero() {
		ev.TS = time.Now()
	}
	if ev.VisitorID == "" {
		ev.VisitorID = model.NewVisitorID()
	}
	if ev.SessionID == "" {
		ev.SessionID = model.NewSessionID()
	}

	if err := s.store.UpsertVisitor(ctx, ev.VisitorID, ev.TS); err != nil {
		metrics.RecordIntegrityError()
		return TrackResult{}, fmt.Errorf("upsert visitor: %w", err)
	}

	customerKey, err := s.resolver.Current(ctx, ev.VisitorID)
	if err != nil {
		return TrackResult{}, fmt.Errorf("resolve visitor: %w", err)
	}

	platform, channel := model.DetectPlatform(ev.Params)
	sess := model.Session{
		ID:           ev.SessionID,
		VisitorID:    ev.VisitorID,
		Start:        ev.TS,
		LastActivity: ev.TS,
		UTMSource:    ev.Params.UTMSource,
		UTMMedium:    ev.Params.UTMMedium,
		UTMCampaign:  ev.Params.UTMCampaign,
		UTMContent:   ev.UTMContent,
		UTMTerm:      ev.UTMTerm,
		Referrer:     ev.Referrer,
		LandingPage:  ev.LandingPage,
		Device:       ev.Device,
		GCLID:        ev.Params.GCLID,
		FBCLID:       ev.Params.FBCLID,
		TTCLID:       ev.Params.TTCLID,
		CustomerKey:  customerKey,
	}
	sessionID, err := s.store.TouchSession(ctx, sess, s.sessionTimeout)
	if err != nil {
		metrics.RecordIntegrityError()
		return TrackResult{}, fmt.Errorf("touch session: %w", err)
	}
	metrics.RecordEventIngested("pageview")

	res := TrackResult{VisitorID: ev.VisitorID, SessionID: sessionID}

	// Direct hits with no marketing signal stay session-only.
	if platform != model.PlatformDirect {
		campaignID, adSetID, adID := model.ResolveEntityIDs(platform, ev.Params)
		// Meta click ids carry the ad-set, not the campaign; recover it from
		// the synced name hierarchy.
		if platform == model.PlatformMeta && campaignID == "" && adSetID != "" {
			if parent, err := s.store.ParentEntityID(ctx, model.PlatformMeta, model.EntityAdSet, adSetID); err == nil && parent != "" {
				campaignID = parent
			}
		}
		tp := model.Touchpoint{
			ID:          model.NewTouchpointID(ev.TS),
			TS:          ev.TS,
			VisitorID:   ev.VisitorID,
			SessionID:   sessionID,
			Platform:    platform,
			Channel:     channel,
			CampaignID:  campaignID,
			AdSetID:     adSetID,
			AdID:        adID,
			UTMSource:   ev.Params.UTMSource,
			UTMMedium:   ev.Params.UTMMedium,
			UTMCampaign: ev.Params.UTMCampaign,
			UTMContent:  ev.UTMContent,
			UTMTerm:     ev.UTMTerm,
			GCLID:       ev.Params.GCLID,
			FBCLID:      ev.Params.FBCLID,
			TTCLID:      ev.Params.TTCLID,
			LandingPage: ev.LandingPage,
		}
		if err := s.store.InsertTouchpoint(ctx, tp); err != nil {
			metrics.RecordIntegrityError()
			return TrackResult{}, fmt.Errorf("insert touchpoint: %w", err)
		}
		res.TouchpointID = tp.ID
		metrics.RecordEventIngested("touchpoint")
	}

	s.publishTrackEvent(ev, sessionID, customerKey, platform, channel)
	return res, nil
}

// publishTrackEvent broadcasts the feed event for one pixel hit. Named custom
// events get their own feed type; everything else is a new session.
func (s *Service) publishTrackEvent(ev model.TrackEvent, sessionID, customerKey string, platform model.Platform, channel string) {
	switch ev.Event {
	case model.EventFormSubmit:
		s.hub.Publish(model.FeedEvent{
			Type: model.FeedNewLead,
			TS:   ev.TS,
			Fields: map[string]any{
				"form_name":    ev.FormName,
				"landing_page": ev.LandingPage,
				"utm_source":   ev.Params.UTMSource,
				"customer_key": customerKey,
				"source":       "pixel",
			},
		})
	case model.EventBookingConfirmed:
		s.hub.Publish(model.FeedEvent{
			Type: model.FeedNewBooking,
			TS:   ev.TS,
			Fields: map[string]any{
				"calendar":     ev.Calendar,
				"landing_page": ev.LandingPage,
				"utm_source":   ev.Params.UTMSource,
				"customer_key": customerKey,
				"source":       "pixel",
			},
		})
	default:
		fields := map[string]any{
			"visitor_id": ev.VisitorID,
			"session_id": sessionID,
			"platform":   string(platform),
			"channel":    channel,
			"page":       ev.LandingPage,
		}
		if ev.Event != "" && ev.Event != model.EventPageview {
			fields["event"] = ev.Event
		}
		s.hub.Publish(model.FeedEvent{Type: model.FeedNewSession, TS: ev.TS, Fields: fields})
	}
}

// Identify links a visitor to a customer credential and returns the customer
// key.
func (s *Service) Identify(ctx context.Context, ev model.IdentifyEvent) (string, error) {
	if ev.VisitorID == "" {
		return "", ErrMissingVisitor
	}
	key, err := s.resolver.Resolve(ctx, ev.Credential, ev.VisitorID)
	if err != nil {
		return "", err
	}
	metrics.RecordEventIngested("identify")
	s.hub.Publish(model.FeedEvent{
		Type: model.FeedIdentify,
		TS:   time.Now(),
		Fields: map[string]any{
			"visitor_id":   ev.VisitorID,
			"customer_key": key,
		},
	})
	return key, nil
}

// ConversionResult reports how one conversion signal landed.
type ConversionResult struct {
	ConversionID string
	OrderID      string
	CustomerKey  string
	Duplicate    bool
}

// Conversion ingests one order/lead signal idempotently on (order_id, type).
func (s *Service) Conversion(ctx context.Context, ev model.ConversionEvent) (ConversionResult, error) {
	if ev.OrderID == "" {
		return ConversionResult{}, ErrMissingOrderID
	}
	if ev.Type == "" {
		ev.Type = model.ConversionPurchase
	}
	if ev.TS.IsZero() {
		ev.TS = time.Now()
	}
	if ev.Currency == "" {
		ev.Currency = "USD"
	}

	dedupeKey := ev.OrderID + "|" + ev.Type
	if s.deduper.SeenAndRecord(dedupeKey) {
		metrics.RecordEventDuplicate()
		return ConversionResult{OrderID: ev.OrderID, Duplicate: true}, nil
	}

	customerKey := ""
	if strings.TrimSpace(ev.Email) != "" {
		if ev.VisitorID != "" {
			key, err := s.resolver.Resolve(ctx, ev.Email, ev.VisitorID)
			if err != nil {
				return ConversionResult{}, err
			}
			customerKey = key
		} else {
			customerKey = identity.CustomerKey(ev.Email)
		}
	} else if ev.VisitorID != "" {
		key, err := s.resolver.Current(ctx, ev.VisitorID)
		if err != nil {
			return ConversionResult{}, err
		}
		customerKey = key
	}

	conv := model.Conversion{
		ID:          model.NewConversionID(),
		OrderID:     ev.OrderID,
		Type:        ev.Type,
		Value:       ev.Value,
		Currency:    ev.Currency,
		TS:          ev.TS,
		CustomerKey: customerKey,
		VisitorID:   ev.VisitorID,
		SessionID:   ev.SessionID,
		UTMSource:   ev.UTMSource,
		UTMMedium:   ev.UTMMedium,
		UTMCampaign: ev.UTMCampaign,
		GCLID:       ev.GCLID,
		FBCLID:      ev.FBCLID,
		TTCLID:      ev.TTCLID,
		LandingPage: ev.LandingPage,
	}
	inserted, err := s.store.InsertConversion(ctx, conv)
	if err != nil {
		metrics.RecordIntegrityError()
		return ConversionResult{}, fmt.Errorf("insert conversion: %w", err)
	}
	if !inserted {
		metrics.RecordEventDuplicate()
		return ConversionResult{OrderID: ev.OrderID, Duplicate: true}, nil
	}
	metrics.RecordEventIngested("conversion")

	feedType := model.FeedNewConversion
	switch ev.Type {
	case model.ConversionPurchase:
		feedType = model.FeedNewOrder
	case model.ConversionLead:
		feedType = model.FeedNewLead
	case model.ConversionBooking:
		feedType = model.FeedNewBooking
	}
	s.hub.Publish(model.FeedEvent{
		Type: feedType,
		TS:   ev.TS,
		Fields: map[string]any{
			"order_id": ev.OrderID,
			"type":     ev.Type,
			"value":    ev.Value,
			"currency": ev.Currency,
		},
	})
	return ConversionResult{ConversionID: conv.ID, OrderID: ev.OrderID, CustomerKey: customerKey}, nil
}

// Report builds the full drillable report.
func (s *Service) Report(ctx context.Context, params report.Params) (*report.Report, error) {
	if params.LookbackDays <= 0 {
		params.LookbackDays = s.lookbackDays
	}
	return s.builder.Build(ctx, params)
}

// ReportChildren drills one report row down a level.
func (s *Service) ReportChildren(ctx context.Context, parentTab report.Tab, parentID string, params report.Params) (*report.Children, error) {
	if params.LookbackDays <= 0 {
		params.LookbackDays = s.lookbackDays
	}
	return s.builder.BuildChildren(ctx, parentTab, parentID, params)
}

// IdentityHistory returns the full link log for a visitor.
func (s *Service) IdentityHistory(ctx context.Context, visitorID string) ([]model.IdentityLink, error) {
	return s.resolver.History(ctx, visitorID)
}

// CAPIStatus reports per-platform push configuration and stats.
func (s *Service) CAPIStatus(ctx context.Context) (capi.StatusReport, error) {
	if s.syncer == nil {
		return capi.StatusReport{}, ErrCAPIDisabled
	}
	return s.syncer.Status(ctx)
}

// CAPISync runs one push sweep now.
func (s *Service) CAPISync(ctx context.Context) (capi.SweepResult, error) {
	if s.syncer == nil {
		return capi.SweepResult{}, ErrCAPIDisabled
	}
	return s.syncer.Sweep(ctx)
}

// CAPILog pages the push history.
func (s *Service) CAPILog(ctx context.Context, platform model.Platform, limit, offset int) ([]model.SyncRecord, error) {
	if s.syncer == nil {
		return nil, ErrCAPIDisabled
	}
	return s.syncer.Log(ctx, platform, limit, offset)
}

// AdNames lists display-name mappings.
func (s *Service) AdNames(ctx context.Context, platform model.Platform, entityType, search string) ([]model.AdName, error) {
	return s.store.ListAdNames(ctx, platform, entityType, search)
}

// UpsertAdName stores one manual display-name mapping.
func (s *Service) UpsertAdName(ctx context.Context, n model.AdName) error {
	if n.Platform == "" || n.EntityType == "" || n.EntityID == "" {
		return ErrInvalidAdName
	}
	switch n.EntityType {
	case model.EntityCampaign, model.EntityAdSet, model.EntityAd:
	default:
		return ErrInvalidAdName
	}
	n.UpdatedAt = time.Now()
	return s.store.UpsertAdName(ctx, n)
}

// DeleteAdName removes one display-name mapping.
func (s *Service) DeleteAdName(ctx context.Context, platform model.Platform, entityType, entityID string) error {
	return s.store.DeleteAdName(ctx, platform, entityType, entityID)
}

// SyncAdNames refreshes display names from the platform marketing APIs.
func (s *Service) SyncAdNames(ctx context.Context, platform string) ([]adsync.Result, error) {
	if s.names == nil {
		return nil, ErrAdSyncDisabled
	}
	return s.names.Sync(ctx, platform)
}

// Subscribe attaches a live-feed subscriber.
func (s *Service) Subscribe() *feed.Subscriber { return s.hub.Subscribe() }

// Unsubscribe detaches a live-feed subscriber.
func (s *Service) Unsubscribe(sub *feed.Subscriber) { s.hub.Unsubscribe(sub) }

// Stats returns operational counters for the stats endpoint.
func (s *Service) Stats(ctx context.Context) (map[string]any, error) {
	counts, err := s.store.Counts(ctx)
	if err != nil {
		return nil, err
	}
	freshness, err := s.store.Freshness(ctx)
	if err != nil {
		return nil, err
	}
	out := map[string]any{
		"counts":      counts,
		"dedupe_size": s.deduper.Size(),
	}
	if freshness.LastConversion != nil {
		out["last_conversion_ts"] = freshness.LastConversion.UTC().Format(time.RFC3339)
	}
	if freshness.LastTouchpoint != nil {
		out["last_touchpoint_ts"] = freshness.LastTouchpoint.UTC().Format(time.RFC3339)
	}
	if freshness.LastSpendDate != "" {
		out["last_spend_date"] = freshness.LastSpendDate
	}
	return out, nil
}
