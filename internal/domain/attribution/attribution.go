// Package attribution distributes conversion credit across the touchpoints of
// a customer journey under a configurable attribution model.
package attribution

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/okian/attribd/internal/domain/model"
	"github.com/okian/attribd/pkg/metrics"
)

// Model selects a credit distribution rule.
type Model string

// Supported attribution models.
const (
	ModelLastClick  Model = "last_click"
	ModelFirstClick Model = "first_click"
	ModelLinear     Model = "linear"
	ModelTimeDecay  Model = "time_decay"
	ModelDataDriven Model = "data_driven_proxy"
)

// ParseModel validates a raw model string.
func ParseModel(s string) (Model, error) {
	switch Model(s) {
	case ModelLastClick, ModelFirstClick, ModelLinear, ModelTimeDecay, ModelDataDriven:
		return Model(s), nil
	case "":
		return ModelLastClick, nil
	}
	return "", ErrUnknownModel
}

// Credit assigns a fraction of a conversion's value to one touchpoint.
// Weights over one conversion sum to 1 whenever any touchpoint is eligible.
type Credit struct {
	Touchpoint model.Touchpoint
	Weight     float64
}

// TouchpointSource supplies the journey data the engine attributes over.
type TouchpointSource interface {
	VisitorsForCustomer(ctx context.Context, customerKey string) ([]string, error)
	TouchpointsForVisitors(ctx context.Context, visitorIDs []string, from, to time.Time) ([]model.Touchpoint, error)
}

// Scorer supplies historical per-(platform, campaign) performance scores for
// the data-driven model.
type Scorer interface {
	Score(platform model.Platform, campaignID string) float64
}

// Request carries one attribution computation.
type Request struct {
	Source       TouchpointSource
	Scorer       Scorer // consulted only by ModelDataDriven
	Conversion   model.Conversion
	Model        Model
	LookbackDays int
}

// Engine computes attribution credits. Safe for concurrent use.
type Engine struct {
	halfLifeDays float64
}

// New builds an Engine.
func New(opts ...Option) *Engine {
	o := applyOptions(opts)
	return &Engine{halfLifeDays: o.halfLifeDays}
}

// Attribute returns the credit distribution for one conversion. A nil credit
// slice with nil error means the conversion is unattributed: no touchpoint
// fell inside the lookback window.
func (e *Engine) Attribute(ctx context.Context, req Request) ([]Credit, error) {
	m, err := ParseModel(string(req.Model))
	if err != nil {
		return nil, err
	}
	req.Model = m
	if req.Model == ModelDataDriven && req.Scorer == nil {
		return nil, ErrNoScorer
	}

	tps, err := e.eligible(ctx, req)
	if err != nil {
		return nil, err
	}
	metrics.RecordAttributionRun(string(req.Model))
	if len(tps) == 0 {
		return nil, nil
	}
	return e.weigh(req, tps), nil
}

// eligible gathers the conversion's journey touchpoints inside the lookback
// window, across every visitor stitched to the converting customer, in
// (ts, id) order.
func (e *Engine) eligible(ctx context.Context, req Request) ([]model.Touchpoint, error) {
	conv := req.Conversion
	visitors := map[string]struct{}{}
	if conv.CustomerKey != "" {
		ids, err := req.Source.VisitorsForCustomer(ctx, conv.CustomerKey)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			visitors[id] = struct{}{}
		}
	}
	if conv.VisitorID != "" {
		visitors[conv.VisitorID] = struct{}{}
	}
	if len(visitors) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(visitors))
	for id := range visitors {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	lookback := time.Duration(req.LookbackDays) * 24 * time.Hour
	from := conv.TS.Add(-lookback)
	tps, err := req.Source.TouchpointsForVisitors(ctx, ids, from, conv.TS)
	if err != nil {
		return nil, err
	}
	// Sources are expected to return (ts, id) order; enforce it anyway since
	// every model depends on it.
	sort.SliceStable(tps, func(i, j int) bool {
		if !tps[i].TS.Equal(tps[j].TS) {
			return tps[i].TS.Before(tps[j].TS)
		}
		return tps[i].ID < tps[j].ID
	})
	return tps, nil
}

func (e *Engine) weigh(req Request, tps []model.Touchpoint) []Credit {
	n := len(tps)
	weights := make([]float64, n)

	switch req.Model {
	case ModelLastClick:
		weights[n-1] = 1
	case ModelFirstClick:
		weights[0] = 1
	case ModelLinear:
		for i := range weights {
			weights[i] = 1 / float64(n)
		}
	case ModelTimeDecay:
		var sum float64
		for i, tp := range tps {
			ageDays := req.Conversion.TS.Sub(tp.TS).Hours() / 24
			weights[i] = math.Exp2(-ageDays / e.halfLifeDays)
			sum += weights[i]
		}
		for i := range weights {
			weights[i] /= sum
		}
	case ModelDataDriven:
		var sum float64
		for i, tp := range tps {
			weights[i] = req.Scorer.Score(tp.Platform, tp.CampaignID)
			sum += weights[i]
		}
		if sum <= 0 {
			// No historical signal: degrade to linear.
			for i := range weights {
				weights[i] = 1 / float64(n)
			}
		} else {
			for i := range weights {
				weights[i] /= sum
			}
		}
	}

	credits := make([]Credit, n)
	for i, tp := range tps {
		credits[i] = Credit{Touchpoint: tp, Weight: weights[i]}
	}
	return credits
}
