package report

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/okian/attribd/internal/domain/attribution"
	"github.com/okian/attribd/internal/domain/model"
)

// parentFilter is the dimension constraint a drill-down parent imposes on its
// children.
type parentFilter struct {
	Platform   model.Platform
	AccountID  string
	CampaignID string
	AdSetID    string
}

// trafficSourcePlatform maps a traffic_source row label back to its platform.
var trafficSourcePlatform = map[string]model.Platform{
	"facebook / paid_social": model.PlatformMeta,
	"google / cpc":           model.PlatformGoogle,
	"tiktok / paid_social":   model.PlatformTikTok,
}

// parseParent derives the child tab and filter from a parent row id.
func parseParent(parentTab Tab, parentID string) (Tab, parentFilter, error) {
	child := childTab(parentTab)
	if child == "" {
		return "", parentFilter{}, fmt.Errorf("%w: tab %q has no children", ErrInvalidParent, parentTab)
	}
	parts := strings.Split(parentID, "|")
	var f parentFilter
	switch parentTab {
	case TabTrafficSource:
		if p, ok := trafficSourcePlatform[parentID]; ok {
			f.Platform = p
		} else {
			f.Platform = model.ParsePlatform(parts[0])
		}
	case TabAdAccount:
		if len(parts) < 2 {
			return "", parentFilter{}, fmt.Errorf("%w: malformed account id %q", ErrInvalidParent, parentID)
		}
		f.Platform = model.Platform(parts[0])
		f.AccountID = parts[1]
	case TabCampaign:
		if len(parts) >= 3 {
			f.Platform = model.Platform(parts[0])
			f.AccountID = parts[1]
			f.CampaignID = parts[2]
		} else {
			f.CampaignID = parts[0]
		}
	case TabAdSet:
		if len(parts) >= 4 {
			f.Platform = model.Platform(parts[0])
			f.AccountID = parts[1]
			f.CampaignID = parts[2]
			f.AdSetID = parts[3]
		} else {
			f.AdSetID = parts[0]
		}
	}
	return child, f, nil
}

// matches applies the parent filter. Empty dimension slots stay permissive:
// pixel-derived rows often lack the account id spend rows carry.
func (f parentFilter) matches(platform model.Platform, accountID, campaignID, adSetID string) bool {
	if f.Platform != "" && platform != f.Platform {
		return false
	}
	if f.AccountID != "" && accountID != "" && accountID != f.AccountID {
		return false
	}
	if f.CampaignID != "" && campaignID != f.CampaignID {
		return false
	}
	if f.AdSetID != "" && adSetID != f.AdSetID {
		return false
	}
	return true
}

// BuildChildren computes the drill-down rows under one parent. An unknown
// parent id yields an empty row set rather than an error.
func (b *Builder) BuildChildren(ctx context.Context, parentTab Tab, parentID string, params Params) (*Children, error) {
	p := params
	if err := p.Normalize(); err != nil {
		return nil, err
	}
	if _, err := ParseTab(string(parentTab)); err != nil {
		return nil, err
	}
	child, filter, err := parseParent(parentTab, parentID)
	if err != nil {
		return nil, err
	}
	p.ActiveTab = child

	r, release, err := b.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = release() }()

	d, err := b.load(ctx, r, p)
	if err != nil {
		return nil, err
	}

	var scorer attribution.Scorer
	if p.Model == attribution.ModelDataDriven {
		if scorer, err = b.buildScorer(ctx, d); err != nil {
			return nil, err
		}
	}
	agg, err := b.attribute(ctx, d, p.Model, scorer)
	if err != nil {
		return nil, err
	}

	byKey := make(map[string]*rowAccum)
	row := func(key, name string) *rowAccum {
		a := byKey[key]
		if a == nil {
			a = &rowAccum{name: name}
			byKey[key] = a
		}
		if a.name == "" {
			a.name = name
		}
		return a
	}

	for _, s := range d.spend {
		if !filter.matches(s.Platform, s.AccountID, s.CampaignID, s.AdSetID) {
			continue
		}
		key := dimKey(child, s.Platform, s.AccountID, s.CampaignID, s.AdSetID, s.AdID, "")
		if !keyHasValue(key, child) {
			continue
		}
		a := row(key, d.rowName(child, key, s.Platform, s.AccountID, s.CampaignID, s.AdSetID, s.AdID))
		a.clicks += s.Clicks
		a.cost += s.Cost
	}
	for k, v := range agg.dims {
		accountID := d.enrichedAccount(k.Platform, k.AccountID, k.CampaignID)
		if !filter.matches(k.Platform, accountID, k.CampaignID, k.AdSetID) {
			continue
		}
		key := dimKey(child, k.Platform, accountID, k.CampaignID, k.AdSetID, k.AdID, k.Channel)
		if !keyHasValue(key, child) {
			continue
		}
		a := row(key, d.rowName(child, key, k.Platform, accountID, k.CampaignID, k.AdSetID, k.AdID))
		a.orders += v.orders
		a.revenue += v.revenue
	}
	for _, v := range d.reported {
		if !filter.matches(v.Platform, v.AccountID, v.CampaignID, v.AdSetID) {
			continue
		}
		key := dimKey(child, v.Platform, v.AccountID, v.CampaignID, v.AdSetID, v.AdID, "")
		if !keyHasValue(key, child) {
			continue
		}
		a := row(key, d.rowName(child, key, v.Platform, v.AccountID, v.CampaignID, v.AdSetID, v.AdID))
		if a.reported == nil {
			a.reported = new(float64)
		}
		*a.reported += v.Value
	}

	// Same pixel click-proxy layer buildTable applies, so child rows sum to
	// their parent.
	touches := make(map[string]int)
	touchName := make(map[string]string)
	for _, tp := range d.touchpoints {
		date := tp.TS.UTC().Format(dateLayout)
		if date < d.params.StartDate || date > d.params.EndDate || tp.Platform == "" {
			continue
		}
		accountID := d.enrichedAccount(tp.Platform, tp.AccountID, tp.CampaignID)
		if !filter.matches(tp.Platform, accountID, tp.CampaignID, tp.AdSetID) {
			continue
		}
		key := dimKey(child, tp.Platform, accountID, tp.CampaignID, tp.AdSetID, tp.AdID, tp.Channel)
		if !keyHasValue(key, child) {
			continue
		}
		touches[key]++
		if _, ok := touchName[key]; !ok {
			touchName[key] = d.rowName(child, key, tp.Platform, accountID, tp.CampaignID, tp.AdSetID, tp.AdID)
		}
	}
	for key, n := range touches {
		a := row(key, touchName[key])
		if a.clicks == 0 {
			a.clicks = n
		}
	}

	childCounts := d.childCounts(child)
	hasGrandchildren := childTab(child) != ""

	keys := make([]string, 0, len(byKey))
	for key := range byKey {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	rows := make([]Row, 0, len(keys))
	for _, key := range keys {
		a := byKey[key]
		var cc *int
		available := false
		if hasGrandchildren {
			n := childCounts[key]
			cc = &n
			available = n > 0
		}
		rows = append(rows, Row{
			ID:                key,
			Name:              a.name,
			Level:             child,
			Metrics:           buildMetrics(a.clicks, a.orders, a.cost, a.revenue, a.reported),
			ChildrenAvailable: available,
			ChildrenCount:     cc,
		})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Metrics.Profit != rows[j].Metrics.Profit {
			return rows[i].Metrics.Profit > rows[j].Metrics.Profit
		}
		return rows[i].Name < rows[j].Name
	})

	return &Children{
		ParentTab: parentTab,
		ParentID:  parentID,
		ChildTab:  child,
		Rows:      rows,
	}, nil
}
