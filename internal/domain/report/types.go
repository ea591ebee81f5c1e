package report

import (
	"math"

	"github.com/okian/attribd/internal/domain/reconcile"
)

// Metrics is one row's measure block. Ratio fields are nil, not NaN or Inf,
// when their denominator is zero.
type Metrics struct {
	Clicks        int      `json:"clicks"`
	Orders        float64  `json:"orders"`
	Cost          float64  `json:"cost"`
	Revenue       float64  `json:"revenue"`
	Profit        float64  `json:"profit"`
	CPC           *float64 `json:"cpc"`
	CPA           *float64 `json:"cpa"`
	ROAS          *float64 `json:"roas"`
	CVR           *float64 `json:"cvr"` // percent
	AOV           *float64 `json:"aov"`
	Reported      *float64 `json:"reported"`
	ReportedDelta *float64 `json:"reported_delta"`
}

// safeDiv returns n/d rounded, or nil when d is zero.
func safeDiv(n, d float64) *float64 {
	if d == 0 {
		return nil
	}
	v := round2(n / d)
	return &v
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

// buildMetrics derives the full measure block from base quantities. reported
// is nil when no platform claimed this dimension.
func buildMetrics(clicks int, orders, cost, revenue float64, reported *float64) Metrics {
	m := Metrics{
		Clicks:  clicks,
		Orders:  round2(orders),
		Cost:    round2(cost),
		Revenue: round2(revenue),
		Profit:  round2(revenue - cost),
	}
	m.CPC = safeDiv(cost, float64(clicks))
	m.CPA = safeDiv(cost, orders)
	m.ROAS = safeDiv(revenue, cost)
	if cvr := safeDiv(orders*100, float64(clicks)); cvr != nil {
		m.CVR = cvr
	}
	m.AOV = safeDiv(revenue, orders)
	if reported != nil {
		r := round2(*reported)
		m.Reported = &r
		delta := round2(revenue - *reported)
		m.ReportedDelta = &delta
	}
	return m
}

// Column describes one table column for the rendering client.
type Column struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Type  string `json:"type"`
}

// Row is one dimension row of the report table.
type Row struct {
	ID                string  `json:"id"`
	Name              string  `json:"name"`
	Level             Tab     `json:"level"`
	Metrics           Metrics `json:"metrics"`
	ChildrenAvailable bool    `json:"children_available"`
	ChildrenCount     *int    `json:"children_count"`
}

// Table is the tabular section of a report.
type Table struct {
	ActiveTab Tab      `json:"active_tab"`
	Columns   []Column `json:"columns"`
	Rows      []Row    `json:"rows"`
	TotalsRow Metrics  `json:"totals_row"`
}

// TabInfo describes one selectable tab.
type TabInfo struct {
	Key   Tab    `json:"key"`
	Label string `json:"label"`
}

// Tabs lists the selectable breakdowns in drill order.
func Tabs() []TabInfo {
	return []TabInfo{
		{TabTrafficSource, "Traffic Source"},
		{TabAdAccount, "Ad Account"},
		{TabCampaign, "Campaign"},
		{TabAdSet, "Ad Set"},
		{TabAd, "Ad"},
	}
}

// CoverageBreakdown carries the raw counts behind the tracking percentage.
type CoverageBreakdown struct {
	OrdersWithSource    int `json:"orders_with_source"`
	OrdersTotal         int `json:"orders_total"`
	SessionsWithClickID int `json:"sessions_with_click_id"`
	SessionsTotal       int `json:"sessions_total"`
}

// Gap describes one tracking gap worth fixing.
type Gap struct {
	What  string `json:"what"`
	Count int    `json:"count"`
}

// Tracking is the coverage section of a report.
type Tracking struct {
	Percentage float64           `json:"tracking_percentage"`
	Coverage   CoverageBreakdown `json:"coverage_breakdown"`
	TopGaps    []Gap             `json:"top_tracking_gaps"`
}

// TimePoint is one day of the charts series.
type TimePoint struct {
	Date    string   `json:"date"`
	Cost    float64  `json:"cost"`
	Revenue float64  `json:"revenue"`
	Profit  float64  `json:"profit"`
	Clicks  int      `json:"clicks"`
	Orders  float64  `json:"orders"`
	ROAS    *float64 `json:"roas"`
	CVR     *float64 `json:"cvr"`
}

// CumulativePoint is one day of the running-total series.
type CumulativePoint struct {
	Date    string  `json:"date"`
	Revenue float64 `json:"revenue"`
	Cost    float64 `json:"cost"`
	Profit  float64 `json:"profit"`
}

// NameProfit labels one winner or loser.
type NameProfit struct {
	Name   string  `json:"name"`
	Profit float64 `json:"profit"`
}

// Charts is the chart section of a report.
type Charts struct {
	TimeSeries []TimePoint       `json:"time_series"`
	Cumulative []CumulativePoint `json:"cumulative"`
	TopWinners []NameProfit      `json:"top_winners"`
	TopLosers  []NameProfit      `json:"top_losers"`
}

// Freshness is the diagnostics data-freshness block.
type Freshness struct {
	LastEventTS   *string `json:"last_event_ts"`
	LastSpendDate *string `json:"last_spend_date"`
}

// Diagnostics is the diagnostics section of a report.
type Diagnostics struct {
	DataFreshness Freshness           `json:"data_freshness"`
	Notes         []string            `json:"notes"`
	Anomalies     []reconcile.Anomaly `json:"anomalies"`
}

// ActionItem is one prioritized recommendation.
type ActionItem struct {
	Title          string   `json:"title"`
	Why            string   `json:"why"`
	ExpectedImpact string   `json:"expected_impact"`
	Effort         string   `json:"effort"`
	Steps          []string `json:"steps"`
}

// SummaryTotals is the headline block above the table.
type SummaryTotals struct {
	Metrics
	MER                  *float64 `json:"mer"`
	CAC                  *float64 `json:"cac"`
	UnattributedOrders   float64  `json:"unattributed_orders"`
	UnattributedRevenue  float64  `json:"unattributed_revenue"`
	AttributedConversion float64  `json:"attributed_conversions"`
}

// DateRange is the report's inclusive date range.
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Meta describes how the report was computed.
type Meta struct {
	ReportName     string    `json:"report_name"`
	DateRange      DateRange `json:"date_range"`
	Model          string    `json:"attribution_model"`
	LookbackDays   int       `json:"lookback_days"`
	ConversionType string    `json:"conversion_type"`
	UseClickDate   bool      `json:"use_date_of_click_attribution"`
	Currency       string    `json:"currency"`
}

// Report is the full drillable report payload.
type Report struct {
	Meta        Meta          `json:"report_meta"`
	Tracking    Tracking      `json:"tracking"`
	Summary     SummaryTotals `json:"summary_totals"`
	Tabs        []TabInfo     `json:"tabs"`
	Table       Table         `json:"table"`
	Charts      Charts        `json:"charts"`
	Diagnostics Diagnostics   `json:"diagnostics"`
	ActionPlan  []ActionItem  `json:"action_plan"`
}

// Children is the drill-down payload.
type Children struct {
	ParentTab Tab   `json:"parent_tab"`
	ParentID  string `json:"parent_id"`
	ChildTab  Tab   `json:"child_tab"`
	Rows      []Row `json:"rows"`
}
