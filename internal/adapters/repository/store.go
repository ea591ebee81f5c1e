// Package repository defines the event store interface and errors.
package repository

import (
	"context"
	"time"

	"github.com/okian/attribd/internal/domain/model"
)

// Reader provides the read side of the event store. A Reader obtained from
// Snapshot observes one consistent view of the data for its whole lifetime.
type Reader interface {
	// Identity
	CurrentLink(ctx context.Context, visitorID string) (model.IdentityLink, error)
	LinkHistory(ctx context.Context, visitorID string) ([]model.IdentityLink, error)
	VisitorsForCustomer(ctx context.Context, customerKey string) ([]string, error)
	AllLinks(ctx context.Context) ([]model.IdentityLink, error)

	// Events
	TouchpointsInRange(ctx context.Context, from, to time.Time) ([]model.Touchpoint, error)
	TouchpointsForVisitors(ctx context.Context, visitorIDs []string, from, to time.Time) ([]model.Touchpoint, error)
	SessionsInRange(ctx context.Context, from, to time.Time) ([]model.Session, error)
	ConversionsInRange(ctx context.Context, from, to time.Time, conversionType string) ([]model.Conversion, error)

	// External joins
	SpendInRange(ctx context.Context, startDate, endDate string) ([]model.SpendRecord, error)
	ReportedInRange(ctx context.Context, startDate, endDate, conversionType string) ([]model.ReportedValue, error)

	// Ad names
	AdNameMap(ctx context.Context) (map[model.AdNameKey]model.AdName, error)
	ListAdNames(ctx context.Context, platform model.Platform, entityType, search string) ([]model.AdName, error)
	ParentEntityID(ctx context.Context, platform model.Platform, entityType, entityID string) (string, error)

	// Diagnostics
	Freshness(ctx context.Context) (model.Freshness, error)
	Counts(ctx context.Context) (map[string]int, error)
}

// Store provides read/write access to the attribution event store.
type Store interface {
	Reader

	// Snapshot returns a Reader pinned to one consistent view plus a release
	// function. Report builds read through a snapshot so every part of one
	// response reflects the same data.
	Snapshot(ctx context.Context) (Reader, func() error, error)

	// Per-event transactional writes. No partial entity is ever visible.
	UpsertVisitor(ctx context.Context, visitorID string, seen time.Time) error
	TouchSession(ctx context.Context, s model.Session, timeout time.Duration) (string, error)
	InsertTouchpoint(ctx context.Context, tp model.Touchpoint) error
	InsertConversion(ctx context.Context, c model.Conversion) (bool, error)
	AppendIdentityLink(ctx context.Context, visitorID, customerKey string, at time.Time) error
	InsertSpend(ctx context.Context, s model.SpendRecord) error
	InsertReported(ctx context.Context, r model.ReportedValue) error

	// Ad-name writes
	UpsertAdName(ctx context.Context, n model.AdName) error
	DeleteAdName(ctx context.Context, platform model.Platform, entityType, entityID string) error

	// CAPI sync state
	SyncRecord(ctx context.Context, platform model.Platform, orderID string) (model.SyncRecord, error)
	UpsertSyncRecord(ctx context.Context, rec model.SyncRecord) error
	UnsyncedConversions(ctx context.Context, limit int) ([]model.Conversion, error)
	SyncCounts(ctx context.Context) (map[model.Platform]map[string]int, error)
	SyncLog(ctx context.Context, platform model.Platform, limit, offset int) ([]model.SyncRecord, error)

	Close() error
}
