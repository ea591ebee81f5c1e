package report

import (
	"sort"
	"strings"

	"github.com/okian/attribd/internal/domain/model"
)

// rowAccum gathers one table row's base quantities before metric derivation.
type rowAccum struct {
	name     string
	clicks   int
	cost     float64
	orders   float64
	revenue  float64
	reported *float64
}

// compareRow feeds reconciliation: one dimension's tracked revenue against
// the platform's claim.
type compareRow struct {
	name     string
	revenue  float64
	reported float64
}

// trafficLabel renders the traffic_source row label for an attributed
// dimension.
func trafficLabel(platform model.Platform, channel string) string {
	return model.TrafficSourceLabel(platform, channel)
}

// dimKey renders the pipe-separated dimension key for a tab.
func dimKey(tab Tab, platform model.Platform, accountID, campaignID, adSetID, adID, channel string) string {
	switch tab {
	case TabTrafficSource:
		return trafficLabel(platform, channel)
	case TabAdAccount:
		return string(platform) + "|" + accountID
	case TabCampaign:
		return string(platform) + "|" + accountID + "|" + campaignID
	case TabAdSet:
		return string(platform) + "|" + accountID + "|" + campaignID + "|" + adSetID
	case TabAd:
		return string(platform) + "|" + accountID + "|" + campaignID + "|" + adSetID + "|" + adID
	}
	return ""
}

// keyHasValue filters rows whose breakdown slot is empty, e.g. a campaign key
// with no campaign id.
func keyHasValue(key string, tab Tab) bool {
	parts := strings.Split(key, "|")
	switch tab {
	case TabAdAccount:
		return len(parts) >= 2 && (strings.TrimSpace(parts[0]) != "" || strings.TrimSpace(parts[1]) != "")
	case TabCampaign:
		return len(parts) >= 3 && strings.TrimSpace(parts[2]) != ""
	case TabAdSet:
		return len(parts) >= 4 && strings.TrimSpace(parts[3]) != ""
	case TabAd:
		return len(parts) >= 5 && strings.TrimSpace(parts[4]) != ""
	}
	return true
}

// resolveName looks a display name up from the synced ad_names, falling back
// to the raw id.
func (d *dataset) resolveName(platform model.Platform, entityType, entityID string) string {
	if entityID == "" {
		return ""
	}
	if n, ok := d.names[model.AdNameKey{Platform: platform, EntityType: entityType, EntityID: entityID}]; ok && n.Name != "" {
		return n.Name
	}
	return entityID
}

// rowName picks the display name for a dimension at the active tab.
func (d *dataset) rowName(tab Tab, key string, platform model.Platform, accountID, campaignID, adSetID, adID string) string {
	switch tab {
	case TabTrafficSource:
		return key
	case TabAdAccount:
		if accountID != "" {
			return accountID
		}
		if platform != "" {
			return string(platform) + " account"
		}
	case TabCampaign:
		return d.resolveName(platform, model.EntityCampaign, campaignID)
	case TabAdSet:
		return d.resolveName(platform, model.EntityAdSet, adSetID)
	case TabAd:
		return d.resolveName(platform, model.EntityAd, adID)
	}
	return key
}

// enrichedAccount backfills an account id from spend for dimensions the pixel
// learned without one.
func (d *dataset) enrichedAccount(platform model.Platform, accountID, campaignID string) string {
	if accountID != "" {
		return accountID
	}
	return d.accountByCampaign[string(platform)+"|"+campaignID]
}

// buildTable assembles the active tab's table from spend, attributed credit,
// platform claims, touchpoint-derived entities and session click proxies.
func (b *Builder) buildTable(d *dataset, agg *partial) (Table, []compareRow) {
	tab := d.params.ActiveTab
	byKey := make(map[string]*rowAccum)

	row := func(key, name string) *rowAccum {
		r := byKey[key]
		if r == nil {
			r = &rowAccum{name: name}
			byKey[key] = r
		}
		if r.name == "" {
			r.name = name
		}
		return r
	}

	// Spend is the base layer; it knows accounts and real click counts.
	for _, s := range d.spend {
		key := dimKey(tab, s.Platform, s.AccountID, s.CampaignID, s.AdSetID, s.AdID, "")
		name := d.rowName(tab, key, s.Platform, s.AccountID, s.CampaignID, s.AdSetID, s.AdID)
		r := row(key, name)
		r.clicks += s.Clicks
		r.cost += s.Cost
	}

	// Attributed credit.
	for k, a := range agg.dims {
		accountID := d.enrichedAccount(k.Platform, k.AccountID, k.CampaignID)
		key := dimKey(tab, k.Platform, accountID, k.CampaignID, k.AdSetID, k.AdID, k.Channel)
		name := d.rowName(tab, key, k.Platform, accountID, k.CampaignID, k.AdSetID, k.AdID)
		r := row(key, name)
		r.orders += a.orders
		r.revenue += a.revenue
	}

	// Unattributed conversions surface as direct traffic.
	if agg.unattOrders > 0 && tab == TabTrafficSource {
		r := row("direct / (none)", "direct / (none)")
		r.orders += agg.unattOrders
		r.revenue += agg.unattRevenue
	}

	// Platform claims.
	for _, v := range d.reported {
		key := dimKey(tab, v.Platform, v.AccountID, v.CampaignID, v.AdSetID, v.AdID, "")
		name := d.rowName(tab, key, v.Platform, v.AccountID, v.CampaignID, v.AdSetID, v.AdID)
		r := row(key, name)
		if r.reported == nil {
			r.reported = new(float64)
		}
		*r.reported += v.Value
	}

	// Entities learned purely from the pixel: count touches as a click proxy
	// where spend brought no clicks.
	if tab != TabTrafficSource {
		touches := make(map[string]int)
		touchName := make(map[string]string)
		for _, tp := range d.touchpoints {
			date := tp.TS.UTC().Format(dateLayout)
			if date < d.params.StartDate || date > d.params.EndDate || tp.Platform == "" {
				continue
			}
			accountID := d.enrichedAccount(tp.Platform, tp.AccountID, tp.CampaignID)
			key := dimKey(tab, tp.Platform, accountID, tp.CampaignID, tp.AdSetID, tp.AdID, tp.Channel)
			if !keyHasValue(key, tab) {
				continue
			}
			touches[key]++
			if _, ok := touchName[key]; !ok {
				touchName[key] = d.rowName(tab, key, tp.Platform, accountID, tp.CampaignID, tp.AdSetID, tp.AdID)
			}
		}
		for key, n := range touches {
			r := row(key, touchName[key])
			if r.clicks == 0 {
				r.clicks = n
			}
		}
	}

	// Session counts proxy clicks for non-paid traffic sources.
	if tab == TabTrafficSource {
		counts := make(map[string]int)
		for _, s := range d.sessions {
			platform, channel := model.DetectPlatform(model.TrafficParams{
				UTMSource:   s.UTMSource,
				UTMMedium:   s.UTMMedium,
				GCLID:       s.GCLID,
				FBCLID:      s.FBCLID,
				TTCLID:      s.TTCLID,
			})
			counts[trafficLabel(platform, channel)]++
		}
		for key, n := range counts {
			r := row(key, key)
			if r.cost == 0 && r.clicks == 0 {
				r.clicks = n
			}
		}
	}

	childCounts := d.childCounts(tab)
	hasChildren := tab != TabAd

	var rows []Row
	var compare []compareRow
	var totals rowAccum
	var totalReported float64
	reportedAny := false

	keys := make([]string, 0, len(byKey))
	for key := range byKey {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if !keyHasValue(key, tab) {
			continue
		}
		r := byKey[key]
		m := buildMetrics(r.clicks, r.orders, r.cost, r.revenue, r.reported)

		var cc *int
		available := false
		if hasChildren {
			n := childCounts[key]
			cc = &n
			available = n > 0
		}
		rows = append(rows, Row{
			ID:                key,
			Name:              r.name,
			Level:             tab,
			Metrics:           m,
			ChildrenAvailable: available,
			ChildrenCount:     cc,
		})

		totals.clicks += r.clicks
		totals.cost += r.cost
		totals.orders += r.orders
		totals.revenue += r.revenue
		if r.reported != nil {
			totalReported += *r.reported
			reportedAny = true
			compare = append(compare, compareRow{name: r.name, revenue: r.revenue, reported: *r.reported})
		}
	}

	// Most profitable first; name breaks ties so ordering is stable.
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Metrics.Profit != rows[j].Metrics.Profit {
			return rows[i].Metrics.Profit > rows[j].Metrics.Profit
		}
		return rows[i].Name < rows[j].Name
	})

	var tr *float64
	if reportedAny {
		tr = &totalReported
	}
	return Table{
		ActiveTab: tab,
		Columns:   columnsFor(tab),
		Rows:      rows,
		TotalsRow: buildMetrics(totals.clicks, totals.orders, totals.cost, totals.revenue, tr),
	}, compare
}

// childCounts counts distinct next-level children per active-tab key, from
// spend and pixel touchpoints combined.
func (d *dataset) childCounts(tab Tab) map[string]int {
	if tab == TabAd {
		return nil
	}
	next := childTab(tab)
	children := make(map[string]map[string]struct{})
	add := func(parent, child string) {
		if parent == "" || child == "" {
			return
		}
		set := children[parent]
		if set == nil {
			set = make(map[string]struct{})
			children[parent] = set
		}
		set[child] = struct{}{}
	}
	observe := func(platform model.Platform, accountID, campaignID, adSetID, adID, channel string) {
		parent := dimKey(tab, platform, accountID, campaignID, adSetID, adID, channel)
		child := dimKey(next, platform, accountID, campaignID, adSetID, adID, channel)
		if !keyHasValue(child, next) {
			return
		}
		add(parent, child)
	}
	for _, s := range d.spend {
		observe(s.Platform, s.AccountID, s.CampaignID, s.AdSetID, s.AdID, "")
	}
	for _, tp := range d.touchpoints {
		date := tp.TS.UTC().Format(dateLayout)
		if date < d.params.StartDate || date > d.params.EndDate || tp.Platform == "" {
			continue
		}
		accountID := d.enrichedAccount(tp.Platform, tp.AccountID, tp.CampaignID)
		observe(tp.Platform, accountID, tp.CampaignID, tp.AdSetID, tp.AdID, tp.Channel)
	}
	out := make(map[string]int, len(children))
	for parent, set := range children {
		out[parent] = len(set)
	}
	return out
}

func columnsFor(tab Tab) []Column {
	nameLabel := map[Tab]string{
		TabTrafficSource: "Source",
		TabAdAccount:     "Ad Account",
		TabCampaign:      "Campaign",
		TabAdSet:         "Ad Set",
		TabAd:            "Ad",
	}[tab]
	return []Column{
		{Key: "name", Label: nameLabel, Type: "dimension"},
		{Key: "clicks", Label: "Clicks", Type: "number"},
		{Key: "orders", Label: "Orders", Type: "number"},
		{Key: "cost", Label: "Cost", Type: "money"},
		{Key: "cpc", Label: "CPC", Type: "money"},
		{Key: "cpa", Label: "CPA", Type: "money"},
		{Key: "cvr", Label: "CVR", Type: "percent"},
		{Key: "revenue", Label: "Revenue", Type: "money"},
		{Key: "aov", Label: "AOV", Type: "money"},
		{Key: "roas", Label: "ROAS", Type: "ratio"},
		{Key: "profit", Label: "Profit", Type: "money"},
		{Key: "reported", Label: "Reported", Type: "money"},
		{Key: "reported_delta", Label: "Rep. Delta", Type: "money"},
	}
}
