// Package report aggregates attributed conversions, spend and platform
// claims into the drillable performance report.
package report

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/okian/attribd/internal/domain/attribution"
	"github.com/okian/attribd/internal/domain/model"
	"github.com/okian/attribd/internal/domain/reconcile"
	"github.com/okian/attribd/pkg/logger"
	"github.com/okian/attribd/pkg/metrics"
)

// Reader is the snapshot read surface a report build consumes. Every method
// must observe the same consistent view.
type Reader interface {
	ConversionsInRange(ctx context.Context, from, to time.Time, conversionType string) ([]model.Conversion, error)
	TouchpointsInRange(ctx context.Context, from, to time.Time) ([]model.Touchpoint, error)
	SessionsInRange(ctx context.Context, from, to time.Time) ([]model.Session, error)
	SpendInRange(ctx context.Context, startDate, endDate string) ([]model.SpendRecord, error)
	ReportedInRange(ctx context.Context, startDate, endDate, conversionType string) ([]model.ReportedValue, error)
	AdNameMap(ctx context.Context) (map[model.AdNameKey]model.AdName, error)
	AllLinks(ctx context.Context) ([]model.IdentityLink, error)
	Freshness(ctx context.Context) (model.Freshness, error)
}

// SnapshotFunc opens one consistent read snapshot. The release function is
// called when the build finishes.
type SnapshotFunc func(ctx context.Context) (Reader, func() error, error)

// Builder computes reports.
type Builder struct {
	snapshot SnapshotFunc
	engine   *attribution.Engine
	checker  *reconcile.Checker
	workers  int
	log      logger.Logger
}

// NewBuilder constructs a Builder.
func NewBuilder(snapshot SnapshotFunc, engine *attribution.Engine, opts ...Option) *Builder {
	o := applyOptions(opts)
	return &Builder{
		snapshot: snapshot,
		engine:   engine,
		checker:  o.checker,
		workers:  o.workers,
		log:      o.log,
	}
}

// dim is a fully qualified attribution dimension.
type dim struct {
	Platform   model.Platform
	Channel    string
	AccountID  string
	CampaignID string
	AdSetID    string
	AdID       string
}

type accum struct {
	orders  float64
	revenue float64
}

// partial is one worker's private accumulator set.
type partial struct {
	dims         map[dim]*accum
	days         map[string]*accum
	unattOrders  float64
	unattRevenue float64
	attributed   float64
}

func newPartial() *partial {
	return &partial{dims: make(map[dim]*accum), days: make(map[string]*accum)}
}

// dataset is everything one build reads, loaded under a single snapshot and
// immutable afterwards so attribution can fan out without further queries.
type dataset struct {
	params      Params
	conversions []model.Conversion
	touchpoints []model.Touchpoint
	sessions    []model.Session
	spend       []model.SpendRecord
	reported    []model.ReportedValue
	names       map[model.AdNameKey]model.AdName
	freshness   model.Freshness

	visitorsByCustomer map[string][]string
	tpsByVisitor       map[string][]model.Touchpoint
	accountByCampaign  map[string]string // platform|campaign -> account_id
}

// load reads the full dataset for params through one snapshot.
func (b *Builder) load(ctx context.Context, r Reader, p Params) (*dataset, error) {
	start, end := p.window()
	lookback := time.Duration(p.LookbackDays) * 24 * time.Hour

	convEnd := end
	if p.UseClickDate {
		// Click-dated credit can come from conversions after the range.
		convEnd = end.Add(lookback)
	}
	conversions, err := r.ConversionsInRange(ctx, start, convEnd, p.ConversionType)
	if err != nil {
		return nil, err
	}
	touchpoints, err := r.TouchpointsInRange(ctx, start.Add(-lookback), convEnd)
	if err != nil {
		return nil, err
	}
	sessions, err := r.SessionsInRange(ctx, start, end)
	if err != nil {
		return nil, err
	}
	spend, err := r.SpendInRange(ctx, p.StartDate, p.EndDate)
	if err != nil {
		return nil, err
	}
	reported, err := r.ReportedInRange(ctx, p.StartDate, p.EndDate, p.ConversionType)
	if err != nil {
		return nil, err
	}
	names, err := r.AdNameMap(ctx)
	if err != nil {
		return nil, err
	}
	links, err := r.AllLinks(ctx)
	if err != nil {
		return nil, err
	}
	freshness, err := r.Freshness(ctx)
	if err != nil {
		return nil, err
	}

	d := &dataset{
		params:      p,
		conversions: conversions,
		touchpoints: touchpoints,
		sessions:    sessions,
		spend:       spend,
		reported:    reported,
		names:       names,
		freshness:   freshness,
	}
	d.index(links)
	return d, nil
}

// index builds the in-memory lookups the attribution fan-out reads.
func (d *dataset) index(links []model.IdentityLink) {
	// Newest link per visitor wins; links arrive in seq order.
	current := make(map[string]string)
	for _, l := range links {
		current[l.VisitorID] = l.CustomerKey
	}
	d.visitorsByCustomer = make(map[string][]string)
	for visitor, key := range current {
		d.visitorsByCustomer[key] = append(d.visitorsByCustomer[key], visitor)
	}
	for _, vs := range d.visitorsByCustomer {
		sort.Strings(vs)
	}

	d.tpsByVisitor = make(map[string][]model.Touchpoint)
	for _, tp := range d.touchpoints {
		d.tpsByVisitor[tp.VisitorID] = append(d.tpsByVisitor[tp.VisitorID], tp)
	}

	d.accountByCampaign = make(map[string]string)
	for _, s := range d.spend {
		if s.AccountID == "" || s.CampaignID == "" {
			continue
		}
		d.accountByCampaign[string(s.Platform)+"|"+s.CampaignID] = s.AccountID
	}
}

// memorySource serves the attribution engine from the preloaded dataset, so
// the parallel fan-out never touches the snapshot transaction.
type memorySource struct{ d *dataset }

var _ attribution.TouchpointSource = memorySource{}

func (s memorySource) VisitorsForCustomer(_ context.Context, customerKey string) ([]string, error) {
	return s.d.visitorsByCustomer[customerKey], nil
}

func (s memorySource) TouchpointsForVisitors(_ context.Context, visitorIDs []string, from, to time.Time) ([]model.Touchpoint, error) {
	var out []model.Touchpoint
	for _, id := range visitorIDs {
		for _, tp := range s.d.tpsByVisitor[id] {
			if tp.TS.Before(from) || tp.TS.After(to) {
				continue
			}
			out = append(out, tp)
		}
	}
	return out, nil
}

// Build computes the full report for params.
func (b *Builder) Build(ctx context.Context, params Params) (*Report, error) {
	start := time.Now()
	defer func() {
		metrics.RecordReportBuildDuration(float64(time.Since(start).Microseconds()) / 1000.0)
	}()

	p := params
	if err := p.Normalize(); err != nil {
		return nil, err
	}

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

	table, rowReported := b.buildTable(d, agg)
	tracking := b.buildTracking(d)
	charts := b.buildCharts(d, agg, table)
	diagnostics := b.buildDiagnostics(d, rowReported, tracking)
	summary := b.buildSummary(table.TotalsRow, agg)

	return &Report{
		Meta: Meta{
			ReportName:     p.ReportName,
			DateRange:      DateRange{Start: p.StartDate, End: p.EndDate},
			Model:          modelLabel(p.Model),
			LookbackDays:   p.LookbackDays,
			ConversionType: p.ConversionType,
			UseClickDate:   p.UseClickDate,
			Currency:       p.Currency,
		},
		Tracking:    tracking,
		Summary:     summary,
		Tabs:        Tabs(),
		Table:       table,
		Charts:      charts,
		Diagnostics: diagnostics,
		ActionPlan:  b.buildActionPlan(p, table, tracking),
	}, nil
}

// attribute fans the conversion set out across workers and merges their
// partial accumulators. Worker partials merge in worker order so results are
// reproducible for a given dataset.
func (b *Builder) attribute(ctx context.Context, d *dataset, m attribution.Model, scorer attribution.Scorer) (*partial, error) {
	workers := b.workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(d.conversions) && len(d.conversions) > 0 {
		workers = len(d.conversions)
	}

	src := memorySource{d: d}
	partials := make([]*partial, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			part := newPartial()
			partials[w] = part
			for i := w; i < len(d.conversions); i += workers {
				if ctx.Err() != nil {
					errs[w] = ctx.Err()
					return
				}
				if err := b.attributeOne(ctx, d, src, scorer, m, d.conversions[i], part); err != nil {
					errs[w] = err
					return
				}
			}
		}(w)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	merged := newPartial()
	for _, part := range partials {
		if part == nil {
			continue
		}
		for k, v := range part.dims {
			a := merged.dims[k]
			if a == nil {
				a = &accum{}
				merged.dims[k] = a
			}
			a.orders += v.orders
			a.revenue += v.revenue
		}
		for day, v := range part.days {
			a := merged.days[day]
			if a == nil {
				a = &accum{}
				merged.days[day] = a
			}
			a.orders += v.orders
			a.revenue += v.revenue
		}
		merged.unattOrders += part.unattOrders
		merged.unattRevenue += part.unattRevenue
		merged.attributed += part.attributed
	}
	return merged, nil
}

func (b *Builder) attributeOne(ctx context.Context, d *dataset, src attribution.TouchpointSource,
	scorer attribution.Scorer, m attribution.Model, conv model.Conversion, part *partial) error {

	p := d.params
	credits, err := b.engine.Attribute(ctx, attribution.Request{
		Source:       src,
		Scorer:       scorer,
		Conversion:   conv,
		Model:        m,
		LookbackDays: p.LookbackDays,
	})
	if err != nil {
		return err
	}

	convDate := conv.TS.UTC().Format(dateLayout)
	convInRange := convDate >= p.StartDate && convDate <= p.EndDate

	if len(credits) == 0 {
		if convInRange {
			part.unattOrders++
			part.unattRevenue += conv.Value
			metrics.RecordUnattributedConversion()
		}
		return nil
	}

	for _, c := range credits {
		creditDate := convDate
		if p.UseClickDate {
			creditDate = c.Touchpoint.TS.UTC().Format(dateLayout)
		}
		if creditDate < p.StartDate || creditDate > p.EndDate {
			continue
		}
		tp := c.Touchpoint
		k := dim{
			Platform:   tp.Platform,
			Channel:    tp.Channel,
			AccountID:  tp.AccountID,
			CampaignID: tp.CampaignID,
			AdSetID:    tp.AdSetID,
			AdID:       tp.AdID,
		}
		if k.AccountID == "" {
			k.AccountID = d.accountByCampaign[string(tp.Platform)+"|"+tp.CampaignID]
		}
		a := part.dims[k]
		if a == nil {
			a = &accum{}
			part.dims[k] = a
		}
		a.orders += c.Weight
		a.revenue += c.Weight * conv.Value
		part.attributed += c.Weight

		day := part.days[creditDate]
		if day == nil {
			day = &accum{}
			part.days[creditDate] = day
		}
		day.orders += c.Weight
		day.revenue += c.Weight * conv.Value
	}
	return nil
}

func modelLabel(m attribution.Model) string {
	switch m {
	case attribution.ModelLastClick:
		return "Last Click"
	case attribution.ModelFirstClick:
		return "First Click"
	case attribution.ModelLinear:
		return "Linear"
	case attribution.ModelTimeDecay:
		return "Time-Decay"
	case attribution.ModelDataDriven:
		return "Data-Driven Proxy"
	}
	return string(m)
}
