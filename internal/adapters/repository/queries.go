package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/okian/attribd/internal/domain/model"
	"github.com/okian/attribd/pkg/metrics"
)

// querier is the query surface shared by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// reader implements Reader over either the live handle or a snapshot tx.
type reader struct {
	q querier
}

var _ Reader = (*reader)(nil)

const touchpointCols = `t.touchpoint_id, t.ts, t.visitor_id, t.session_id,
	t.platform, t.channel, t.account_id, t.campaign_id, t.adset_id, t.ad_id, t.creative_id,
	t.utm_source, t.utm_medium, t.utm_campaign, t.utm_content, t.utm_term,
	t.gclid, t.fbclid, t.ttclid, t.landing_page`

const conversionCols = `c.conversion_id, c.order_id, c.type, c.value, c.currency, c.ts,
	c.customer_key, c.visitor_id, c.session_id,
	c.utm_source, c.utm_medium, c.utm_campaign, c.gclid, c.fbclid, c.ttclid, c.landing_page`

const sessionCols = `s.session_id, s.visitor_id, s.start_ts, s.last_activity,
	s.utm_source, s.utm_medium, s.utm_campaign, s.utm_content, s.utm_term,
	s.referrer, s.landing_page, s.device, s.gclid, s.fbclid, s.ttclid, s.customer_key`

func scanTouchpoints(rows *sql.Rows) ([]model.Touchpoint, error) {
	var out []model.Touchpoint
	for rows.Next() {
		var tp model.Touchpoint
		var platform, ts string
		if err := rows.Scan(&tp.ID, &ts, &tp.VisitorID, &tp.SessionID,
			&platform, &tp.Channel, &tp.AccountID, &tp.CampaignID, &tp.AdSetID, &tp.AdID, &tp.CreativeID,
			&tp.UTMSource, &tp.UTMMedium, &tp.UTMCampaign, &tp.UTMContent, &tp.UTMTerm,
			&tp.GCLID, &tp.FBCLID, &tp.TTCLID, &tp.LandingPage); err != nil {
			return nil, err
		}
		tp.TS = parseTS(ts)
		tp.Platform = model.Platform(platform)
		out = append(out, tp)
	}
	return out, rows.Err()
}

func scanConversions(rows *sql.Rows) ([]model.Conversion, error) {
	var out []model.Conversion
	for rows.Next() {
		var c model.Conversion
		var ts string
		if err := rows.Scan(&c.ID, &c.OrderID, &c.Type, &c.Value, &c.Currency, &ts,
			&c.CustomerKey, &c.VisitorID, &c.SessionID,
			&c.UTMSource, &c.UTMMedium, &c.UTMCampaign, &c.GCLID, &c.FBCLID, &c.TTCLID, &c.LandingPage); err != nil {
			return nil, err
		}
		c.TS = parseTS(ts)
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanSessions(rows *sql.Rows) ([]model.Session, error) {
	var out []model.Session
	for rows.Next() {
		var s model.Session
		var start, last string
		if err := rows.Scan(&s.ID, &s.VisitorID, &start, &last,
			&s.UTMSource, &s.UTMMedium, &s.UTMCampaign, &s.UTMContent, &s.UTMTerm,
			&s.Referrer, &s.LandingPage, &s.Device, &s.GCLID, &s.FBCLID, &s.TTCLID, &s.CustomerKey); err != nil {
			return nil, err
		}
		s.Start = parseTS(start)
		s.LastActivity = parseTS(last)
		out = append(out, s)
	}
	return out, rows.Err()
}

// CurrentLink returns the newest identity link for a visitor.
func (r *reader) CurrentLink(ctx context.Context, visitorID string) (model.IdentityLink, error) {
	defer trackQuery()()
	var l model.IdentityLink
	var at string
	err := r.q.QueryRowContext(ctx,
		`SELECT seq, visitor_id, customer_key, linked_at FROM identity_links
		 WHERE visitor_id = ? ORDER BY seq DESC LIMIT 1`, visitorID).
		Scan(&l.Seq, &l.VisitorID, &l.CustomerKey, &at)
	if err == sql.ErrNoRows {
		return l, ErrNotFound
	}
	if err != nil {
		return l, err
	}
	l.LinkedAt = parseTS(at)
	return l, nil
}

// LinkHistory returns all identity links for a visitor, oldest first.
func (r *reader) LinkHistory(ctx context.Context, visitorID string) ([]model.IdentityLink, error) {
	defer trackQuery()()
	rows, err := r.q.QueryContext(ctx,
		`SELECT seq, visitor_id, customer_key, linked_at FROM identity_links
		 WHERE visitor_id = ? ORDER BY seq ASC`, visitorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLinks(rows)
}

// VisitorsForCustomer returns every visitor whose current link points at the
// customer key.
func (r *reader) VisitorsForCustomer(ctx context.Context, customerKey string) ([]string, error) {
	defer trackQuery()()
	rows, err := r.q.QueryContext(ctx,
		`SELECT visitor_id FROM identity_links l
		 WHERE customer_key = ?
		   AND seq = (SELECT MAX(seq) FROM identity_links WHERE visitor_id = l.visitor_id)`,
		customerKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// AllLinks returns the whole identity link log, oldest first.
func (r *reader) AllLinks(ctx context.Context) ([]model.IdentityLink, error) {
	defer trackQuery()()
	rows, err := r.q.QueryContext(ctx,
		`SELECT seq, visitor_id, customer_key, linked_at FROM identity_links ORDER BY seq ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLinks(rows)
}

func scanLinks(rows *sql.Rows) ([]model.IdentityLink, error) {
	var out []model.IdentityLink
	for rows.Next() {
		var l model.IdentityLink
		var at string
		if err := rows.Scan(&l.Seq, &l.VisitorID, &l.CustomerKey, &at); err != nil {
			return nil, err
		}
		l.LinkedAt = parseTS(at)
		out = append(out, l)
	}
	return out, rows.Err()
}

// TouchpointsInRange returns touchpoints with from <= ts <= to, ordered by
// (ts, touchpoint_id).
func (r *reader) TouchpointsInRange(ctx context.Context, from, to time.Time) ([]model.Touchpoint, error) {
	defer trackQuery()()
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+touchpointCols+` FROM touchpoints t
		 WHERE t.ts >= ? AND t.ts <= ?
		 ORDER BY t.ts ASC, t.touchpoint_id ASC`,
		fmtTS(from), fmtTS(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTouchpoints(rows)
}

// TouchpointsForVisitors returns the visitors' touchpoints with
// from <= ts <= to, ordered by (ts, touchpoint_id).
func (r *reader) TouchpointsForVisitors(ctx context.Context, visitorIDs []string, from, to time.Time) ([]model.Touchpoint, error) {
	if len(visitorIDs) == 0 {
		return nil, nil
	}
	defer trackQuery()()
	placeholders := strings.Repeat("?,", len(visitorIDs))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, 0, len(visitorIDs)+2)
	for _, id := range visitorIDs {
		args = append(args, id)
	}
	args = append(args, fmtTS(from), fmtTS(to))
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+touchpointCols+` FROM touchpoints t
		 WHERE t.visitor_id IN (`+placeholders+`) AND t.ts >= ? AND t.ts <= ?
		 ORDER BY t.ts ASC, t.touchpoint_id ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTouchpoints(rows)
}

// SessionsInRange returns sessions started within [from, to].
func (r *reader) SessionsInRange(ctx context.Context, from, to time.Time) ([]model.Session, error) {
	defer trackQuery()()
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+sessionCols+` FROM sessions s
		 WHERE s.start_ts >= ? AND s.start_ts <= ?
		 ORDER BY s.start_ts ASC`,
		fmtTS(from), fmtTS(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSessions(rows)
}

// ConversionsInRange returns conversions within [from, to], optionally
// filtered by type, ordered by timestamp.
func (r *reader) ConversionsInRange(ctx context.Context, from, to time.Time, conversionType string) ([]model.Conversion, error) {
	defer trackQuery()()
	q := `SELECT ` + conversionCols + ` FROM conversions c WHERE c.ts >= ? AND c.ts <= ?`
	args := []any{fmtTS(from), fmtTS(to)}
	if conversionType != "" {
		q += ` AND c.type = ?`
		args = append(args, conversionType)
	}
	q += ` ORDER BY c.ts ASC, c.conversion_id ASC`
	rows, err := r.q.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanConversions(rows)
}

// SpendInRange returns spend rows with startDate <= date <= endDate.
func (r *reader) SpendInRange(ctx context.Context, startDate, endDate string) ([]model.SpendRecord, error) {
	defer trackQuery()()
	rows, err := r.q.QueryContext(ctx,
		`SELECT platform, account_id, campaign_id, adset_id, ad_id, date, clicks, cost, impressions
		 FROM spend WHERE date >= ? AND date <= ?`, startDate, endDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.SpendRecord
	for rows.Next() {
		var s model.SpendRecord
		var p string
		if err := rows.Scan(&p, &s.AccountID, &s.CampaignID, &s.AdSetID, &s.AdID,
			&s.Date, &s.Clicks, &s.Cost, &s.Impressions); err != nil {
			return nil, err
		}
		s.Platform = model.Platform(p)
		out = append(out, s)
	}
	return out, rows.Err()
}

// ReportedInRange returns platform-reported values with
// startDate <= date <= endDate, optionally filtered by conversion type.
func (r *reader) ReportedInRange(ctx context.Context, startDate, endDate, conversionType string) ([]model.ReportedValue, error) {
	defer trackQuery()()
	q := `SELECT platform, account_id, campaign_id, adset_id, ad_id, date, conversion_type, reported_value
	      FROM reported_value WHERE date >= ? AND date <= ?`
	args := []any{startDate, endDate}
	if conversionType != "" {
		q += ` AND conversion_type = ?`
		args = append(args, conversionType)
	}
	rows, err := r.q.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.ReportedValue
	for rows.Next() {
		var v model.ReportedValue
		var p string
		if err := rows.Scan(&p, &v.AccountID, &v.CampaignID, &v.AdSetID, &v.AdID,
			&v.Date, &v.ConversionType, &v.Value); err != nil {
			return nil, err
		}
		v.Platform = model.Platform(p)
		out = append(out, v)
	}
	return out, rows.Err()
}

// AdNameMap returns all ad-name mappings keyed by entity.
func (r *reader) AdNameMap(ctx context.Context) (map[model.AdNameKey]model.AdName, error) {
	defer trackQuery()()
	rows, err := r.q.QueryContext(ctx,
		`SELECT platform, entity_type, entity_id, name, parent_id, updated_at FROM ad_names`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[model.AdNameKey]model.AdName)
	for rows.Next() {
		n, err := scanAdName(rows)
		if err != nil {
			return nil, err
		}
		out[model.AdNameKey{Platform: n.Platform, EntityType: n.EntityType, EntityID: n.EntityID}] = n
	}
	return out, rows.Err()
}

// ListAdNames lists ad-name mappings with optional platform, entity-type and
// case-insensitive name-substring filters.
func (r *reader) ListAdNames(ctx context.Context, platform model.Platform, entityType, search string) ([]model.AdName, error) {
	defer trackQuery()()
	q := `SELECT platform, entity_type, entity_id, name, parent_id, updated_at FROM ad_names WHERE 1=1`
	args := []any{}
	if platform != "" {
		q += ` AND platform = ?`
		args = append(args, string(platform))
	}
	if entityType != "" {
		q += ` AND entity_type = ?`
		args = append(args, entityType)
	}
	if search != "" {
		q += ` AND (LOWER(name) LIKE ? OR entity_id LIKE ?)`
		pat := "%" + strings.ToLower(search) + "%"
		args = append(args, pat, pat)
	}
	q += ` ORDER BY platform, entity_type, name`
	rows, err := r.q.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.AdName
	for rows.Next() {
		n, err := scanAdName(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func scanAdName(rows *sql.Rows) (model.AdName, error) {
	var n model.AdName
	var p, updated string
	if err := rows.Scan(&p, &n.EntityType, &n.EntityID, &n.Name, &n.ParentID, &updated); err != nil {
		return n, err
	}
	n.Platform = model.Platform(p)
	n.UpdatedAt = parseTS(updated)
	return n, nil
}

// ParentEntityID resolves the parent id recorded for one named entity.
func (r *reader) ParentEntityID(ctx context.Context, platform model.Platform, entityType, entityID string) (string, error) {
	defer trackQuery()()
	var parent string
	err := r.q.QueryRowContext(ctx,
		`SELECT parent_id FROM ad_names WHERE platform = ? AND entity_type = ? AND entity_id = ?`,
		string(platform), entityType, entityID).Scan(&parent)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return parent, err
}

// Freshness returns the newest timestamps across the event tables.
func (r *reader) Freshness(ctx context.Context) (model.Freshness, error) {
	defer trackQuery()()
	var f model.Freshness
	var sess, tp, conv, spend sql.NullString
	if err := r.q.QueryRowContext(ctx,
		`SELECT (SELECT MAX(last_activity) FROM sessions),
		        (SELECT MAX(ts) FROM touchpoints),
		        (SELECT MAX(ts) FROM conversions),
		        (SELECT MAX(date) FROM spend)`).
		Scan(&sess, &tp, &conv, &spend); err != nil {
		return f, err
	}
	if sess.Valid {
		t := parseTS(sess.String)
		f.LastSession = &t
	}
	if tp.Valid {
		t := parseTS(tp.String)
		f.LastTouchpoint = &t
	}
	if conv.Valid {
		t := parseTS(conv.String)
		f.LastConversion = &t
	}
	if spend.Valid {
		f.LastSpendDate = spend.String
	}
	return f, nil
}

// Counts returns table row counts for the stats endpoint.
func (r *reader) Counts(ctx context.Context) (map[string]int, error) {
	defer trackQuery()()
	out := make(map[string]int, 5)
	for _, table := range []string{"visitors", "sessions", "touchpoints", "conversions", "identity_links"} {
		var n int
		if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&n); err != nil {
			return nil, err
		}
		out[table] = n
	}
	return out, nil
}

func trackQuery() func() {
	start := time.Now()
	return func() { metrics.RecordStoreQueryLatency(float64(time.Since(start).Microseconds()) / 1000.0) }
}
