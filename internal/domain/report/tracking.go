package report

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// buildTracking computes coverage: half weighted on orders carrying a source,
// half on sessions carrying a click id.
func (b *Builder) buildTracking(d *dataset) Tracking {
	var cov CoverageBreakdown

	for _, c := range d.conversions {
		date := c.TS.UTC().Format(dateLayout)
		if date < d.params.StartDate || date > d.params.EndDate {
			continue
		}
		cov.OrdersTotal++
		hasSource := c.UTMSource != "" || c.GCLID != "" || c.FBCLID != "" || c.TTCLID != ""
		if !hasSource && c.CustomerKey != "" {
			for _, v := range d.visitorsByCustomer[c.CustomerKey] {
				if len(d.tpsByVisitor[v]) > 0 {
					hasSource = true
					break
				}
			}
		}
		if hasSource {
			cov.OrdersWithSource++
		}
	}

	for _, s := range d.sessions {
		cov.SessionsTotal++
		if s.GCLID != "" || s.FBCLID != "" || s.TTCLID != "" {
			cov.SessionsWithClickID++
		}
	}

	var orderRate, clickRate float64
	if cov.OrdersTotal > 0 {
		orderRate = float64(cov.OrdersWithSource) / float64(cov.OrdersTotal)
	}
	if cov.SessionsTotal > 0 {
		clickRate = float64(cov.SessionsWithClickID) / float64(cov.SessionsTotal)
	}

	var gaps []Gap
	if n := cov.OrdersTotal - cov.OrdersWithSource; n > 0 {
		gaps = append(gaps, Gap{What: "orders without any traffic source", Count: n})
	}
	if n := cov.SessionsTotal - cov.SessionsWithClickID; n > 0 {
		gaps = append(gaps, Gap{What: "sessions without a click id", Count: n})
	}
	noKey := 0
	for _, c := range d.conversions {
		if c.CustomerKey == "" {
			noKey++
		}
	}
	if noKey > 0 {
		gaps = append(gaps, Gap{What: "conversions without a customer key", Count: noKey})
	}
	sort.SliceStable(gaps, func(i, j int) bool { return gaps[i].Count > gaps[j].Count })

	return Tracking{
		Percentage: round2(100 * (0.5*orderRate + 0.5*clickRate)),
		Coverage:   cov,
		TopGaps:    gaps,
	}
}

// buildDiagnostics assembles freshness, computation notes and reconciliation
// anomalies.
func (b *Builder) buildDiagnostics(d *dataset, compare []compareRow, tracking Tracking) Diagnostics {
	var diag Diagnostics

	var lastEvent *time.Time
	for _, t := range []*time.Time{d.freshness.LastSession, d.freshness.LastTouchpoint, d.freshness.LastConversion} {
		if t != nil && (lastEvent == nil || t.After(*lastEvent)) {
			lastEvent = t
		}
	}
	if lastEvent != nil {
		s := lastEvent.UTC().Format(time.RFC3339)
		diag.DataFreshness.LastEventTS = &s
	}
	if d.freshness.LastSpendDate != "" {
		s := d.freshness.LastSpendDate
		diag.DataFreshness.LastSpendDate = &s
	}

	basis := "conversion"
	if d.params.UseClickDate {
		basis = "click"
	}
	diag.Notes = append(diag.Notes,
		fmt.Sprintf("Model=%s, lookback_days=%d, conversion_type=%s.",
			modelLabel(d.params.Model), d.params.LookbackDays, d.params.ConversionType),
		fmt.Sprintf("Attribution date basis=%s.", basis),
		"For non-paid sources, clicks may be approximated from sessions.",
	)
	if d.params.UseClickDate {
		diag.Notes = append(diag.Notes,
			"Reported value is stored by conversion date; reported_delta may not be perfectly comparable under click-date attribution.")
	}
	if tracking.Percentage < 85 {
		diag.Notes = append(diag.Notes,
			fmt.Sprintf("Tracking percentage is %.2f%%; attribution drift is likely until click-id and identity coverage improve.", tracking.Percentage))
	}

	for _, c := range compare {
		if anomaly, ok := b.checker.Check(c.name, c.revenue, c.reported); ok {
			diag.Anomalies = append(diag.Anomalies, anomaly)
		}
	}
	return diag
}

// buildSummary derives the headline totals block.
func (b *Builder) buildSummary(totals Metrics, agg *partial) SummaryTotals {
	s := SummaryTotals{
		Metrics:              totals,
		UnattributedOrders:   round2(agg.unattOrders),
		UnattributedRevenue:  round2(agg.unattRevenue),
		AttributedConversion: round2(agg.attributed),
	}
	s.MER = safeDiv(totals.Revenue, totals.Cost)
	s.CAC = safeDiv(totals.Cost, totals.Orders)
	return s
}

// buildActionPlan turns the table and tracking state into a short prioritized
// plan.
func (b *Builder) buildActionPlan(p Params, table Table, tracking Tracking) []ActionItem {
	var plan []ActionItem
	level := strings.ReplaceAll(string(p.ActiveTab), "_", " ")

	var worst, best *Row
	for i := range table.Rows {
		r := &table.Rows[i]
		if r.Metrics.Cost <= 50 {
			continue
		}
		if r.Metrics.Profit < 0 && (worst == nil || r.Metrics.Profit < worst.Metrics.Profit) {
			worst = r
		}
		if r.Metrics.Profit > 0 && (best == nil || r.Metrics.Profit > best.Metrics.Profit) {
			best = r
		}
	}
	if worst != nil {
		plan = append(plan, ActionItem{
			Title:          fmt.Sprintf("Cut or refresh losing %s: %s", level, worst.Name),
			Why:            "Negative profit with meaningful spend in the selected range.",
			ExpectedImpact: "high",
			Effort:         "low",
			Steps: []string{
				"Pause worst performers or cap spend.",
				"Refresh creative and tighten targeting.",
				"Verify landing page and tracking for this segment.",
			},
		})
	}
	if best != nil {
		plan = append(plan, ActionItem{
			Title:          fmt.Sprintf("Scale winning %s: %s", level, best.Name),
			Why:            "Positive profit with measurable spend suggests scale potential.",
			ExpectedImpact: "med",
			Effort:         "low",
			Steps: []string{
				"Increase budget 10-20% per day while monitoring CAC.",
				"Duplicate to adjacent audiences and placements.",
				"Test a few close creative variants.",
			},
		})
	}
	if tracking.Percentage < 90 {
		plan = append(plan, ActionItem{
			Title:          "Improve tracking coverage",
			Why:            "Low coverage increases attribution drift and weakens optimization decisions.",
			ExpectedImpact: "high",
			Effort:         "med",
			Steps: []string{
				"Persist click ids first-party and pass them server-side.",
				"Set the customer key consistently across sessions, touchpoints and orders.",
				"Add UTM governance checks for missing parameters.",
			},
		})
	}
	return plan
}
