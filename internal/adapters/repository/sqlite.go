package repository

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	// SQLite driver.
	_ "github.com/mattn/go-sqlite3"

	"github.com/okian/attribd/internal/domain/model"
	"github.com/okian/attribd/pkg/logger"
	"github.com/okian/attribd/pkg/metrics"
)

// tsLayout is the stored timestamp format. All values are UTC at second
// precision so string comparison agrees with time order.
const tsLayout = "2006-01-02T15:04:05Z"

func fmtTS(t time.Time) string { return t.UTC().Truncate(time.Second).Format(tsLayout) }

func parseTS(s string) time.Time {
	t, err := time.Parse(tsLayout, s)
	if err != nil {
		// Tolerate offset timestamps written by older ingesters.
		t, _ = time.Parse(time.RFC3339, s)
	}
	return t.UTC()
}

// SQLStore is the sqlite-backed Store implementation.
type SQLStore struct {
	reader
	db  *sql.DB
	log logger.Logger
}

var _ Store = (*SQLStore)(nil)

// Open opens (creating if needed) the sqlite database at path and applies the
// schema.
func Open(path string, opts ...Option) (*SQLStore, error) {
	o := applyOptions(opts)
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// The sqlite3 driver serializes writes per connection. A single connection
	// avoids SQLITE_BUSY between writers; reads still snapshot via WAL.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	s := &SQLStore{db: db, log: o.log}
	s.reader.q = db
	return s, nil
}

// Close closes the underlying database.
func (s *SQLStore) Close() error { return s.db.Close() }

// Snapshot begins a read transaction and returns a Reader over it. The release
// function must be called exactly once.
func (s *SQLStore) Snapshot(ctx context.Context) (Reader, func() error, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, nil, fmt.Errorf("begin snapshot: %w", err)
	}
	return &reader{q: tx}, tx.Rollback, nil
}

// UpsertVisitor records a visitor's first sighting. Re-upserts keep the
// original first_seen.
func (s *SQLStore) UpsertVisitor(ctx context.Context, visitorID string, seen time.Time) error {
	defer track("upsert_visitor")()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO visitors(visitor_id, first_seen) VALUES(?, ?)
		 ON CONFLICT(visitor_id) DO NOTHING`,
		visitorID, fmtTS(seen))
	return err
}

// TouchSession refreshes the session's last activity, creating the row on
// first sight. When the stored session has idled past timeout a fresh session
// is started instead. Returns the effective session id.
func (s *SQLStore) TouchSession(ctx context.Context, sess model.Session, timeout time.Duration) (string, error) {
	defer track("touch_session")()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback() }()

	var lastActivity, customerKey string
	err = tx.QueryRowContext(ctx,
		`SELECT last_activity, customer_key FROM sessions WHERE session_id = ?`,
		sess.ID).Scan(&lastActivity, &customerKey)
	switch {
	case err == sql.ErrNoRows:
		if err := insertSession(ctx, tx, sess); err != nil {
			return "", err
		}
	case err != nil:
		return "", err
	case sess.LastActivity.Sub(parseTS(lastActivity)) > timeout:
		// Idle past timeout: a new session begins, the old one stays closed.
		sess.ID = model.NewSessionID()
		sess.Start = sess.LastActivity
		if err := insertSession(ctx, tx, sess); err != nil {
			return "", err
		}
	default:
		key := customerKey
		if key == "" {
			key = sess.CustomerKey
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE sessions SET last_activity = ?, customer_key = ? WHERE session_id = ?`,
			fmtTS(sess.LastActivity), key, sess.ID); err != nil {
			return "", err
		}
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return sess.ID, nil
}

func insertSession(ctx context.Context, tx *sql.Tx, s model.Session) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO sessions(session_id, visitor_id, start_ts, last_activity,
		    utm_source, utm_medium, utm_campaign, utm_content, utm_term,
		    referrer, landing_page, device, gclid, fbclid, ttclid, customer_key)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.VisitorID, fmtTS(s.Start), fmtTS(s.LastActivity),
		s.UTMSource, s.UTMMedium, s.UTMCampaign, s.UTMContent, s.UTMTerm,
		s.Referrer, s.LandingPage, s.Device, s.GCLID, s.FBCLID, s.TTCLID, s.CustomerKey)
	return err
}

// InsertTouchpoint appends one immutable touchpoint.
func (s *SQLStore) InsertTouchpoint(ctx context.Context, tp model.Touchpoint) error {
	defer track("insert_touchpoint")()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO touchpoints(touchpoint_id, ts, visitor_id, session_id,
		    platform, channel, account_id, campaign_id, adset_id, ad_id, creative_id,
		    utm_source, utm_medium, utm_campaign, utm_content, utm_term,
		    gclid, fbclid, ttclid, landing_page)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tp.ID, fmtTS(tp.TS), tp.VisitorID, tp.SessionID,
		string(tp.Platform), tp.Channel, tp.AccountID, tp.CampaignID, tp.AdSetID, tp.AdID, tp.CreativeID,
		tp.UTMSource, tp.UTMMedium, tp.UTMCampaign, tp.UTMContent, tp.UTMTerm,
		tp.GCLID, tp.FBCLID, tp.TTCLID, tp.LandingPage)
	return err
}

// InsertConversion inserts a conversion unless its (order_id, type)
// idempotency key was already seen. Returns false for duplicates.
func (s *SQLStore) InsertConversion(ctx context.Context, c model.Conversion) (bool, error) {
	defer track("insert_conversion")()
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO conversions(conversion_id, order_id, type, value,
		    currency, ts, customer_key, visitor_id, session_id,
		    utm_source, utm_medium, utm_campaign, gclid, fbclid, ttclid, landing_page)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.OrderID, c.Type, c.Value,
		c.Currency, fmtTS(c.TS), c.CustomerKey, c.VisitorID, c.SessionID,
		c.UTMSource, c.UTMMedium, c.UTMCampaign, c.GCLID, c.FBCLID, c.TTCLID, c.LandingPage)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// AppendIdentityLink appends one row to the identity link log. Existing rows
// are never mutated.
func (s *SQLStore) AppendIdentityLink(ctx context.Context, visitorID, customerKey string, at time.Time) error {
	defer track("append_identity_link")()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO identity_links(visitor_id, customer_key, linked_at) VALUES(?, ?, ?)`,
		visitorID, customerKey, fmtTS(at))
	return err
}

// InsertSpend upserts one externally synced spend row.
func (s *SQLStore) InsertSpend(ctx context.Context, r model.SpendRecord) error {
	defer track("insert_spend")()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO spend(platform, account_id, campaign_id, adset_id, ad_id, date, clicks, cost, impressions)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(platform, account_id, campaign_id, adset_id, ad_id, date)
		 DO UPDATE SET clicks = excluded.clicks, cost = excluded.cost, impressions = excluded.impressions`,
		string(r.Platform), r.AccountID, r.CampaignID, r.AdSetID, r.AdID, r.Date, r.Clicks, r.Cost, r.Impressions)
	return err
}

// InsertReported upserts one platform-reported conversion value row.
func (s *SQLStore) InsertReported(ctx context.Context, r model.ReportedValue) error {
	defer track("insert_reported")()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reported_value(platform, account_id, campaign_id, adset_id, ad_id, date, conversion_type, reported_value)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(platform, account_id, campaign_id, adset_id, ad_id, date, conversion_type)
		 DO UPDATE SET reported_value = excluded.reported_value`,
		string(r.Platform), r.AccountID, r.CampaignID, r.AdSetID, r.AdID, r.Date, r.ConversionType, r.Value)
	return err
}

// UpsertAdName stores or refreshes a display name mapping.
func (s *SQLStore) UpsertAdName(ctx context.Context, n model.AdName) error {
	defer track("upsert_ad_name")()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ad_names(platform, entity_type, entity_id, name, parent_id, updated_at)
		 VALUES(?, ?, ?, ?, ?, ?)
		 ON CONFLICT(platform, entity_type, entity_id)
		 DO UPDATE SET name = excluded.name, parent_id = excluded.parent_id, updated_at = excluded.updated_at`,
		string(n.Platform), n.EntityType, n.EntityID, n.Name, n.ParentID, fmtTS(n.UpdatedAt))
	return err
}

// DeleteAdName removes one display name mapping.
func (s *SQLStore) DeleteAdName(ctx context.Context, platform model.Platform, entityType, entityID string) error {
	defer track("delete_ad_name")()
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM ad_names WHERE platform = ? AND entity_type = ? AND entity_id = ?`,
		string(platform), entityType, entityID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SyncRecord fetches the CAPI state for one (platform, order).
func (s *SQLStore) SyncRecord(ctx context.Context, platform model.Platform, orderID string) (model.SyncRecord, error) {
	var rec model.SyncRecord
	var p, updated string
	err := s.db.QueryRowContext(ctx,
		`SELECT platform, order_id, status, attempts, last_error, updated_at
		 FROM capi_log WHERE platform = ? AND order_id = ?`,
		string(platform), orderID).
		Scan(&p, &rec.OrderID, &rec.Status, &rec.Attempts, &rec.LastError, &updated)
	if err == sql.ErrNoRows {
		return rec, ErrNotFound
	}
	if err != nil {
		return rec, err
	}
	rec.Platform = model.Platform(p)
	rec.UpdatedAt = parseTS(updated)
	return rec, nil
}

// UpsertSyncRecord writes the CAPI state for one (platform, order).
func (s *SQLStore) UpsertSyncRecord(ctx context.Context, rec model.SyncRecord) error {
	defer track("upsert_sync_record")()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO capi_log(platform, order_id, status, attempts, last_error, updated_at)
		 VALUES(?, ?, ?, ?, ?, ?)
		 ON CONFLICT(platform, order_id)
		 DO UPDATE SET status = excluded.status, attempts = excluded.attempts,
		               last_error = excluded.last_error, updated_at = excluded.updated_at`,
		string(rec.Platform), rec.OrderID, rec.Status, rec.Attempts, rec.LastError, fmtTS(rec.UpdatedAt))
	return err
}

// UnsyncedConversions lists conversions that still need a CAPI decision:
// no log row yet, or a retryable failed one.
func (s *SQLStore) UnsyncedConversions(ctx context.Context, limit int) ([]model.Conversion, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+conversionCols+` FROM conversions c
		 WHERE NOT EXISTS (
		     SELECT 1 FROM capi_log l
		     WHERE l.order_id = c.order_id AND l.status IN ('sent', 'skipped')
		 )
		 ORDER BY c.ts ASC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanConversions(rows)
}

// SyncCounts returns per-platform CAPI status counts.
func (s *SQLStore) SyncCounts(ctx context.Context) (map[model.Platform]map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT platform, status, COUNT(*) FROM capi_log GROUP BY platform, status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[model.Platform]map[string]int)
	for rows.Next() {
		var p, status string
		var n int
		if err := rows.Scan(&p, &status, &n); err != nil {
			return nil, err
		}
		plat := model.Platform(p)
		if out[plat] == nil {
			out[plat] = make(map[string]int)
		}
		out[plat][status] = n
	}
	return out, rows.Err()
}

// SyncLog pages the CAPI log, newest first. Empty platform means all.
func (s *SQLStore) SyncLog(ctx context.Context, platform model.Platform, limit, offset int) ([]model.SyncRecord, error) {
	q := `SELECT platform, order_id, status, attempts, last_error, updated_at FROM capi_log`
	args := []any{}
	if platform != "" {
		q += ` WHERE platform = ?`
		args = append(args, string(platform))
	}
	q += ` ORDER BY updated_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.SyncRecord
	for rows.Next() {
		var rec model.SyncRecord
		var p, updated string
		if err := rows.Scan(&p, &rec.OrderID, &rec.Status, &rec.Attempts, &rec.LastError, &updated); err != nil {
			return nil, err
		}
		rec.Platform = model.Platform(p)
		rec.UpdatedAt = parseTS(updated)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func track(op string) func() {
	start := time.Now()
	return func() { metrics.RecordStoreWriteLatency(op, float64(time.Since(start).Microseconds())/1000.0) }
}
