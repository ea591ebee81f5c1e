package repository

// Schema is applied on open. Statements are idempotent so opening an existing
// database is a no-op.
const schema = `
PRAGMA journal_mode = WAL;
PRAGMA foreign_keys = ON;
PRAGMA busy_timeout = 5000;

CREATE TABLE IF NOT EXISTS visitors (
    visitor_id TEXT PRIMARY KEY,
    first_seen TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions (
    session_id    TEXT PRIMARY KEY,
    visitor_id    TEXT NOT NULL,
    start_ts      TEXT NOT NULL,
    last_activity TEXT NOT NULL,
    utm_source    TEXT NOT NULL DEFAULT '',
    utm_medium    TEXT NOT NULL DEFAULT '',
    utm_campaign  TEXT NOT NULL DEFAULT '',
    utm_content   TEXT NOT NULL DEFAULT '',
    utm_term      TEXT NOT NULL DEFAULT '',
    referrer      TEXT NOT NULL DEFAULT '',
    landing_page  TEXT NOT NULL DEFAULT '',
    device        TEXT NOT NULL DEFAULT '',
    gclid         TEXT NOT NULL DEFAULT '',
    fbclid        TEXT NOT NULL DEFAULT '',
    ttclid        TEXT NOT NULL DEFAULT '',
    customer_key  TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_sessions_visitor ON sessions(visitor_id, start_ts);

CREATE TABLE IF NOT EXISTS touchpoints (
    touchpoint_id TEXT PRIMARY KEY,
    ts            TEXT NOT NULL,
    visitor_id    TEXT NOT NULL,
    session_id    TEXT NOT NULL DEFAULT '',
    platform      TEXT NOT NULL,
    channel       TEXT NOT NULL DEFAULT '',
    account_id    TEXT NOT NULL DEFAULT '',
    campaign_id   TEXT NOT NULL DEFAULT '',
    adset_id      TEXT NOT NULL DEFAULT '',
    ad_id         TEXT NOT NULL DEFAULT '',
    creative_id   TEXT NOT NULL DEFAULT '',
    utm_source    TEXT NOT NULL DEFAULT '',
    utm_medium    TEXT NOT NULL DEFAULT '',
    utm_campaign  TEXT NOT NULL DEFAULT '',
    utm_content   TEXT NOT NULL DEFAULT '',
    utm_term      TEXT NOT NULL DEFAULT '',
    gclid         TEXT NOT NULL DEFAULT '',
    fbclid        TEXT NOT NULL DEFAULT '',
    ttclid        TEXT NOT NULL DEFAULT '',
    landing_page  TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_touchpoints_visitor_ts ON touchpoints(visitor_id, ts);
CREATE INDEX IF NOT EXISTS idx_touchpoints_ts ON touchpoints(ts);

CREATE TABLE IF NOT EXISTS identity_links (
    seq          INTEGER PRIMARY KEY AUTOINCREMENT,
    visitor_id   TEXT NOT NULL,
    customer_key TEXT NOT NULL,
    linked_at    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_identity_links_visitor ON identity_links(visitor_id, seq);
CREATE INDEX IF NOT EXISTS idx_identity_links_customer ON identity_links(customer_key);

CREATE TABLE IF NOT EXISTS conversions (
    conversion_id TEXT PRIMARY KEY,
    order_id      TEXT NOT NULL,
    type          TEXT NOT NULL,
    value         REAL NOT NULL DEFAULT 0,
    currency      TEXT NOT NULL DEFAULT 'USD',
    ts            TEXT NOT NULL,
    customer_key  TEXT NOT NULL DEFAULT '',
    visitor_id    TEXT NOT NULL DEFAULT '',
    session_id    TEXT NOT NULL DEFAULT '',
    utm_source    TEXT NOT NULL DEFAULT '',
    utm_medium    TEXT NOT NULL DEFAULT '',
    utm_campaign  TEXT NOT NULL DEFAULT '',
    gclid         TEXT NOT NULL DEFAULT '',
    fbclid        TEXT NOT NULL DEFAULT '',
    ttclid        TEXT NOT NULL DEFAULT '',
    landing_page  TEXT NOT NULL DEFAULT '',
    UNIQUE(order_id, type)
);
CREATE INDEX IF NOT EXISTS idx_conversions_ts ON conversions(ts);
CREATE INDEX IF NOT EXISTS idx_conversions_customer ON conversions(customer_key);

CREATE TABLE IF NOT EXISTS spend (
    platform    TEXT NOT NULL,
    account_id  TEXT NOT NULL DEFAULT '',
    campaign_id TEXT NOT NULL DEFAULT '',
    adset_id    TEXT NOT NULL DEFAULT '',
    ad_id       TEXT NOT NULL DEFAULT '',
    date        TEXT NOT NULL,
    clicks      INTEGER NOT NULL DEFAULT 0,
    cost        REAL NOT NULL DEFAULT 0,
    impressions INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY(platform, account_id, campaign_id, adset_id, ad_id, date)
);
CREATE INDEX IF NOT EXISTS idx_spend_date ON spend(date);

CREATE TABLE IF NOT EXISTS reported_value (
    platform        TEXT NOT NULL,
    account_id      TEXT NOT NULL DEFAULT '',
    campaign_id     TEXT NOT NULL DEFAULT '',
    adset_id        TEXT NOT NULL DEFAULT '',
    ad_id           TEXT NOT NULL DEFAULT '',
    date            TEXT NOT NULL,
    conversion_type TEXT NOT NULL DEFAULT 'Purchase',
    reported_value  REAL NOT NULL DEFAULT 0,
    PRIMARY KEY(platform, account_id, campaign_id, adset_id, ad_id, date, conversion_type)
);
CREATE INDEX IF NOT EXISTS idx_reported_date ON reported_value(date);

CREATE TABLE IF NOT EXISTS ad_names (
    platform    TEXT NOT NULL,
    entity_type TEXT NOT NULL,
    entity_id   TEXT NOT NULL,
    name        TEXT NOT NULL,
    parent_id   TEXT NOT NULL DEFAULT '',
    updated_at  TEXT NOT NULL,
    PRIMARY KEY(platform, entity_type, entity_id)
);

CREATE TABLE IF NOT EXISTS capi_log (
    platform   TEXT NOT NULL,
    order_id   TEXT NOT NULL,
    status     TEXT NOT NULL,
    attempts   INTEGER NOT NULL DEFAULT 0,
    last_error TEXT NOT NULL DEFAULT '',
    updated_at TEXT NOT NULL,
    PRIMARY KEY(platform, order_id)
);
CREATE INDEX IF NOT EXISTS idx_capi_log_status ON capi_log(status);
`
