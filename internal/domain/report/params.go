package report

import (
	"fmt"
	"time"

	"github.com/okian/attribd/internal/domain/attribution"
	"github.com/okian/attribd/internal/domain/model"
)

// Tab selects the report breakdown level. Tabs drill from traffic source down
// to individual ads.
type Tab string

// Report tabs, coarse to fine.
const (
	TabTrafficSource Tab = "traffic_source"
	TabAdAccount     Tab = "ad_account"
	TabCampaign      Tab = "campaign"
	TabAdSet         Tab = "ad_set"
	TabAd            Tab = "ad"
)

// ParseTab validates a raw tab string. Empty defaults to traffic_source.
func ParseTab(s string) (Tab, error) {
	switch Tab(s) {
	case TabTrafficSource, TabAdAccount, TabCampaign, TabAdSet, TabAd:
		return Tab(s), nil
	case "":
		return TabTrafficSource, nil
	}
	return "", fmt.Errorf("%w: unknown tab %q", ErrInvalidParams, s)
}

// childTab returns the next level down, or "" at the leaf.
func childTab(t Tab) Tab {
	switch t {
	case TabTrafficSource, TabAdAccount:
		return TabCampaign
	case TabCampaign:
		return TabAdSet
	case TabAdSet:
		return TabAd
	}
	return ""
}

const dateLayout = "2006-01-02"

// Params selects what one report build covers.
type Params struct {
	ReportName     string
	StartDate      string // YYYY-MM-DD inclusive
	EndDate        string // YYYY-MM-DD inclusive
	Model          attribution.Model
	LookbackDays   int
	ConversionType string
	UseClickDate   bool
	ActiveTab      Tab
	Currency       string
}

// Normalize validates params in place, filling defaults.
func (p *Params) Normalize() error {
	if p.StartDate == "" || p.EndDate == "" {
		end := time.Now().UTC()
		start := end.AddDate(0, 0, -29)
		p.StartDate, p.EndDate = start.Format(dateLayout), end.Format(dateLayout)
	}
	start, err := time.Parse(dateLayout, p.StartDate)
	if err != nil {
		return fmt.Errorf("%w: bad start_date %q", ErrInvalidParams, p.StartDate)
	}
	end, err := time.Parse(dateLayout, p.EndDate)
	if err != nil {
		return fmt.Errorf("%w: bad end_date %q", ErrInvalidParams, p.EndDate)
	}
	if end.Before(start) {
		return fmt.Errorf("%w: end_date before start_date", ErrInvalidParams)
	}
	if p.Model, err = attribution.ParseModel(string(p.Model)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	if p.ActiveTab, err = ParseTab(string(p.ActiveTab)); err != nil {
		return err
	}
	if p.LookbackDays <= 0 {
		p.LookbackDays = 30
	}
	if p.ConversionType == "" {
		p.ConversionType = model.ConversionPurchase
	}
	if p.Currency == "" {
		p.Currency = "USD"
	}
	if p.ReportName == "" {
		p.ReportName = "Attribution Report"
	}
	return nil
}

// window returns the inclusive time window [00:00:00 start, 23:59:59 end].
func (p Params) window() (time.Time, time.Time) {
	start, _ := time.Parse(dateLayout, p.StartDate)
	end, _ := time.Parse(dateLayout, p.EndDate)
	return start, end.Add(24*time.Hour - time.Second)
}

// days lists every date in the report range.
func (p Params) days() []string {
	start, _ := time.Parse(dateLayout, p.StartDate)
	end, _ := time.Parse(dateLayout, p.EndDate)
	var out []string
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		out = append(out, d.Format(dateLayout))
	}
	return out
}
