package attribution

import "github.com/okian/attribd/internal/domain/model"

// ScoreKey identifies one scored dimension.
type ScoreKey struct {
	Platform   model.Platform
	CampaignID string
}

// MapScorer is a precomputed score table. Unknown dimensions score zero.
type MapScorer map[ScoreKey]float64

var _ Scorer = MapScorer(nil)

// Score returns the stored score for (platform, campaign).
func (m MapScorer) Score(platform model.Platform, campaignID string) float64 {
	return m[ScoreKey{Platform: platform, CampaignID: campaignID}]
}
