package repository_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/okian/attribd/internal/adapters/repository"
	"github.com/okian/attribd/internal/domain/model"
)

func openTestStore(t *testing.T) *repository.SQLStore {
	t.Helper()
	store, err := repository.Open(filepath.Join(t.TempDir(), "test.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestOpenIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "test.sqlite")

	store, err := repository.Open(path)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = repository.Open(path)
	require.NoError(t, err)
	require.NoError(t, store.Close())
}

func TestUpsertVisitorKeepsFirstSeen(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	first := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, store.UpsertVisitor(ctx, "v1", first))
	require.NoError(t, store.UpsertVisitor(ctx, "v1", first.Add(time.Hour)))

	counts, err := store.Counts(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, counts["visitors"])
}

func TestTouchSession(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	timeout := 30 * time.Minute
	start := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)

	sess := model.Session{
		ID: "s1", VisitorID: "v1", Start: start, LastActivity: start,
		UTMSource: "facebook", LandingPage: "/landing",
	}

	t.Run("first sight creates the session", func(t *testing.T) {
		id, err := store.TouchSession(ctx, sess, timeout)
		require.NoError(t, err)
		require.Equal(t, "s1", id)
	})

	t.Run("activity inside the timeout keeps the session", func(t *testing.T) {
		sess.LastActivity = start.Add(10 * time.Minute)
		id, err := store.TouchSession(ctx, sess, timeout)
		require.NoError(t, err)
		require.Equal(t, "s1", id)
	})

	t.Run("idle past the timeout starts a new session", func(t *testing.T) {
		sess.LastActivity = start.Add(2 * time.Hour)
		id, err := store.TouchSession(ctx, sess, timeout)
		require.NoError(t, err)
		require.NotEqual(t, "s1", id)

		sessions, err := store.SessionsInRange(ctx, start.Add(-time.Hour), start.Add(3*time.Hour))
		require.NoError(t, err)
		require.Len(t, sessions, 2)
	})

	t.Run("a later customer key backfills the open session", func(t *testing.T) {
		s2 := model.Session{ID: "s2", VisitorID: "v2", Start: start, LastActivity: start}
		_, err := store.TouchSession(ctx, s2, timeout)
		require.NoError(t, err)

		s2.LastActivity = start.Add(5 * time.Minute)
		s2.CustomerKey = "custkey"
		_, err = store.TouchSession(ctx, s2, timeout)
		require.NoError(t, err)

		sessions, err := store.SessionsInRange(ctx, start, start)
		require.NoError(t, err)
		for _, s := range sessions {
			if s.ID == "s2" {
				require.Equal(t, "custkey", s.CustomerKey)
			}
		}
	})
}

func TestInsertConversionIdempotency(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	ts := time.Date(2025, 1, 5, 12, 0, 0, 0, time.UTC)

	conv := model.Conversion{
		ID: "c1", OrderID: "o1", Type: model.ConversionPurchase,
		Value: 100, Currency: "USD", TS: ts,
	}
	inserted, err := store.InsertConversion(ctx, conv)
	require.NoError(t, err)
	require.True(t, inserted)

	replay := conv
	replay.ID = "c2"
	replay.Value = 999
	inserted, err = store.InsertConversion(ctx, replay)
	require.NoError(t, err)
	require.False(t, inserted, "same (order_id, type) must not insert twice")

	lead := conv
	lead.ID = "c3"
	lead.Type = model.ConversionLead
	inserted, err = store.InsertConversion(ctx, lead)
	require.NoError(t, err)
	require.True(t, inserted, "same order under a different type is a distinct conversion")

	convs, err := store.ConversionsInRange(ctx, ts.Add(-time.Hour), ts.Add(time.Hour), "")
	require.NoError(t, err)
	require.Len(t, convs, 2)

	purchases, err := store.ConversionsInRange(ctx, ts.Add(-time.Hour), ts.Add(time.Hour), model.ConversionPurchase)
	require.NoError(t, err)
	require.Len(t, purchases, 1)
	require.Equal(t, float64(100), purchases[0].Value)
}

func TestIdentityLinkLog(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)

	_, err := store.CurrentLink(ctx, "v1")
	require.ErrorIs(t, err, repository.ErrNotFound)

	require.NoError(t, store.AppendIdentityLink(ctx, "v1", "keyA", base))
	require.NoError(t, store.AppendIdentityLink(ctx, "v2", "keyA", base.Add(time.Minute)))
	require.NoError(t, store.AppendIdentityLink(ctx, "v1", "keyB", base.Add(2*time.Minute)))

	cur, err := store.CurrentLink(ctx, "v1")
	require.NoError(t, err)
	require.Equal(t, "keyB", cur.CustomerKey)

	history, err := store.LinkHistory(ctx, "v1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, "keyA", history[0].CustomerKey)
	require.Equal(t, "keyB", history[1].CustomerKey)

	visitorsA, err := store.VisitorsForCustomer(ctx, "keyA")
	require.NoError(t, err)
	require.Equal(t, []string{"v2"}, visitorsA, "v1 relinked away from keyA")

	visitorsB, err := store.VisitorsForCustomer(ctx, "keyB")
	require.NoError(t, err)
	require.Equal(t, []string{"v1"}, visitorsB)

	all, err := store.AllLinks(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
}

func TestTouchpointQueries(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 5, 12, 0, 0, 0, time.UTC)

	mk := func(id, visitor string, ts time.Time) model.Touchpoint {
		return model.Touchpoint{
			ID: id, TS: ts, VisitorID: visitor, SessionID: "s1",
			Platform: model.PlatformMeta, Channel: "paid_social", CampaignID: "camp-a",
		}
	}
	require.NoError(t, store.InsertTouchpoint(ctx, mk("b", "v1", base)))
	require.NoError(t, store.InsertTouchpoint(ctx, mk("a", "v1", base)))
	require.NoError(t, store.InsertTouchpoint(ctx, mk("c", "v2", base.Add(time.Hour))))
	require.NoError(t, store.InsertTouchpoint(ctx, mk("d", "v3", base.Add(48*time.Hour))))

	t.Run("range query orders by (ts, id)", func(t *testing.T) {
		tps, err := store.TouchpointsInRange(ctx, base, base.Add(2*time.Hour))
		require.NoError(t, err)
		require.Len(t, tps, 3)
		require.Equal(t, "a", tps[0].ID)
		require.Equal(t, "b", tps[1].ID)
		require.Equal(t, "c", tps[2].ID)
	})

	t.Run("visitor filter restricts rows", func(t *testing.T) {
		tps, err := store.TouchpointsForVisitors(ctx, []string{"v1", "v3"}, base, base.Add(72*time.Hour))
		require.NoError(t, err)
		require.Len(t, tps, 3)
		for _, tp := range tps {
			require.NotEqual(t, "v2", tp.VisitorID)
		}
	})

	t.Run("empty visitor list is empty, not an error", func(t *testing.T) {
		tps, err := store.TouchpointsForVisitors(ctx, nil, base, base.Add(time.Hour))
		require.NoError(t, err)
		require.Empty(t, tps)
	})
}

func TestSpendAndReportedUpserts(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	spend := model.SpendRecord{
		Platform: model.PlatformMeta, AccountID: "acc1", CampaignID: "camp-a",
		Date: "2025-01-05", Clicks: 100, Cost: 50, Impressions: 1000,
	}
	require.NoError(t, store.InsertSpend(ctx, spend))
	spend.Cost = 75
	require.NoError(t, store.InsertSpend(ctx, spend))

	rows, err := store.SpendInRange(ctx, "2025-01-01", "2025-01-31")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, float64(75), rows[0].Cost)

	reported := model.ReportedValue{
		Platform: model.PlatformMeta, AccountID: "acc1", CampaignID: "camp-a",
		Date: "2025-01-05", ConversionType: model.ConversionPurchase, Value: 300,
	}
	require.NoError(t, store.InsertReported(ctx, reported))
	reported.Value = 350
	require.NoError(t, store.InsertReported(ctx, reported))

	vals, err := store.ReportedInRange(ctx, "2025-01-01", "2025-01-31", model.ConversionPurchase)
	require.NoError(t, err)
	require.Len(t, vals, 1)
	require.Equal(t, float64(350), vals[0].Value)
}

func TestAdNames(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)

	names := []model.AdName{
		{Platform: model.PlatformMeta, EntityType: model.EntityCampaign, EntityID: "camp-a", Name: "Summer Sale", UpdatedAt: now},
		{Platform: model.PlatformMeta, EntityType: model.EntityAdSet, EntityID: "as-1", Name: "Lookalike 1%", ParentID: "camp-a", UpdatedAt: now},
		{Platform: model.PlatformTikTok, EntityType: model.EntityCampaign, EntityID: "tt-1", Name: "Spark Ads", UpdatedAt: now},
	}
	for _, n := range names {
		require.NoError(t, store.UpsertAdName(ctx, n))
	}

	t.Run("upsert refreshes the name", func(t *testing.T) {
		n := names[0]
		n.Name = "Summer Sale v2"
		require.NoError(t, store.UpsertAdName(ctx, n))

		m, err := store.AdNameMap(ctx)
		require.NoError(t, err)
		key := model.AdNameKey{Platform: model.PlatformMeta, EntityType: model.EntityCampaign, EntityID: "camp-a"}
		require.Equal(t, "Summer Sale v2", m[key].Name)
	})

	t.Run("list filters by platform and search", func(t *testing.T) {
		got, err := store.ListAdNames(ctx, model.PlatformMeta, "", "")
		require.NoError(t, err)
		require.Len(t, got, 2)

		got, err = store.ListAdNames(ctx, "", "", "spark")
		require.NoError(t, err)
		require.Len(t, got, 1)
		require.Equal(t, "Spark Ads", got[0].Name)
	})

	t.Run("parent lookup resolves the hierarchy", func(t *testing.T) {
		parent, err := store.ParentEntityID(ctx, model.PlatformMeta, model.EntityAdSet, "as-1")
		require.NoError(t, err)
		require.Equal(t, "camp-a", parent)

		_, err = store.ParentEntityID(ctx, model.PlatformMeta, model.EntityAdSet, "ghost")
		require.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("delete removes the mapping", func(t *testing.T) {
		require.NoError(t, store.DeleteAdName(ctx, model.PlatformTikTok, model.EntityCampaign, "tt-1"))
		err := store.DeleteAdName(ctx, model.PlatformTikTok, model.EntityCampaign, "tt-1")
		require.ErrorIs(t, err, repository.ErrNotFound)
	})
}

func TestSyncRecords(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	ts := time.Date(2025, 1, 5, 12, 0, 0, 0, time.UTC)

	for i, orderID := range []string{"o1", "o2"} {
		_, err := store.InsertConversion(ctx, model.Conversion{
			ID: model.NewConversionID(), OrderID: orderID, Type: model.ConversionPurchase,
			Value: 100, Currency: "USD", TS: ts.Add(time.Duration(i) * time.Minute),
			FBCLID: "fb1",
		})
		require.NoError(t, err)
	}

	t.Run("all conversions start unsynced", func(t *testing.T) {
		convs, err := store.UnsyncedConversions(ctx, 10)
		require.NoError(t, err)
		require.Len(t, convs, 2)
		require.Equal(t, "o1", convs[0].OrderID, "oldest first")
	})

	t.Run("sent orders leave the queue, failed ones stay", func(t *testing.T) {
		require.NoError(t, store.UpsertSyncRecord(ctx, model.SyncRecord{
			Platform: model.PlatformMeta, OrderID: "o1", Status: model.SyncSent, Attempts: 1, UpdatedAt: ts,
		}))
		require.NoError(t, store.UpsertSyncRecord(ctx, model.SyncRecord{
			Platform: model.PlatformMeta, OrderID: "o2", Status: model.SyncFailed, Attempts: 1,
			LastError: "boom", UpdatedAt: ts,
		}))

		convs, err := store.UnsyncedConversions(ctx, 10)
		require.NoError(t, err)
		require.Len(t, convs, 1)
		require.Equal(t, "o2", convs[0].OrderID)
	})

	t.Run("record lookup round-trips", func(t *testing.T) {
		rec, err := store.SyncRecord(ctx, model.PlatformMeta, "o2")
		require.NoError(t, err)
		require.Equal(t, model.SyncFailed, rec.Status)
		require.Equal(t, "boom", rec.LastError)

		_, err = store.SyncRecord(ctx, model.PlatformMeta, "ghost")
		require.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("counts group by platform and status", func(t *testing.T) {
		counts, err := store.SyncCounts(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, counts[model.PlatformMeta][model.SyncSent])
		require.Equal(t, 1, counts[model.PlatformMeta][model.SyncFailed])
	})

	t.Run("log pages newest first", func(t *testing.T) {
		recs, err := store.SyncLog(ctx, model.PlatformMeta, 10, 0)
		require.NoError(t, err)
		require.Len(t, recs, 2)

		recs, err = store.SyncLog(ctx, model.PlatformGoogle, 10, 0)
		require.NoError(t, err)
		require.Empty(t, recs)
	})
}

func TestFreshnessAndSnapshot(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	ts := time.Date(2025, 1, 5, 12, 0, 0, 0, time.UTC)

	f, err := store.Freshness(ctx)
	require.NoError(t, err)
	require.Nil(t, f.LastConversion)
	require.Empty(t, f.LastSpendDate)

	_, err = store.InsertConversion(ctx, model.Conversion{
		ID: "c1", OrderID: "o1", Type: model.ConversionPurchase, Value: 10, Currency: "USD", TS: ts,
	})
	require.NoError(t, err)
	require.NoError(t, store.InsertSpend(ctx, model.SpendRecord{
		Platform: model.PlatformMeta, Date: "2025-01-05", Cost: 5,
	}))

	f, err = store.Freshness(ctx)
	require.NoError(t, err)
	require.NotNil(t, f.LastConversion)
	require.True(t, f.LastConversion.Equal(ts))
	require.Equal(t, "2025-01-05", f.LastSpendDate)

	reader, release, err := store.Snapshot(ctx)
	require.NoError(t, err)
	convs, err := reader.ConversionsInRange(ctx, ts.Add(-time.Hour), ts.Add(time.Hour), "")
	require.NoError(t, err)
	require.Len(t, convs, 1)
	require.NoError(t, release())
}
