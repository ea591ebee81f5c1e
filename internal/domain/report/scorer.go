package report

import (
	"context"

	"github.com/okian/attribd/internal/domain/attribution"
)

// buildScorer derives the data-driven score table from the loaded window: for
// each (platform, campaign), the Laplace-smoothed rate of last-touch
// conversions per touchpoint. Smoothing keeps sparse campaigns from scoring
// zero or one outright.
func (b *Builder) buildScorer(ctx context.Context, d *dataset) (attribution.MapScorer, error) {
	touches := make(map[attribution.ScoreKey]float64)
	for _, tp := range d.touchpoints {
		touches[attribution.ScoreKey{Platform: tp.Platform, CampaignID: tp.CampaignID}]++
	}

	convs := make(map[attribution.ScoreKey]float64)
	src := memorySource{d: d}
	for _, conv := range d.conversions {
		credits, err := b.engine.Attribute(ctx, attribution.Request{
			Source:       src,
			Conversion:   conv,
			Model:        attribution.ModelLastClick,
			LookbackDays: d.params.LookbackDays,
		})
		if err != nil {
			return nil, err
		}
		for _, c := range credits {
			if c.Weight > 0 {
				convs[attribution.ScoreKey{Platform: c.Touchpoint.Platform, CampaignID: c.Touchpoint.CampaignID}] += c.Weight
			}
		}
	}

	scores := make(attribution.MapScorer, len(touches))
	for k, t := range touches {
		scores[k] = (convs[k] + 1) / (t + 2)
	}
	return scores, nil
}
