package model

import "strings"

// Platform identifies a traffic source.
type Platform string

// Known platforms.
const (
	PlatformMeta    Platform = "meta"
	PlatformGoogle  Platform = "google"
	PlatformTikTok  Platform = "tiktok"
	PlatformOrganic Platform = "organic"
	PlatformDirect  Platform = "direct"
	PlatformOther   Platform = "other"
)

// ParsePlatform normalizes a raw platform string.
func ParsePlatform(s string) Platform {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "meta", "facebook", "fb", "ig", "instagram":
		return PlatformMeta
	case "google", "gads":
		return PlatformGoogle
	case "tiktok", "tt":
		return PlatformTikTok
	case "organic":
		return PlatformOrganic
	case "direct", "":
		return PlatformDirect
	default:
		return PlatformOther
	}
}

// TrafficParams is the raw attribution parameter snapshot sent by the pixel.
type TrafficParams struct {
	UTMSource        string
	UTMMedium        string
	UTMCampaign      string
	DetectedPlatform string
	GCLID            string
	FBCLID           string
	TTCLID           string
	CampaignID       string
	AdSetID          string
	AdID             string
	// GenericAdID is the platform-agnostic "h_ad_id" pixel parameter whose
	// meaning depends on the platform (see genericAdIDTarget).
	GenericAdID string
}

// entityField names a touchpoint hierarchy slot a pixel parameter maps onto.
type entityField int

const (
	fieldAdID entityField = iota
	fieldCampaignID
)

// genericAdIDTarget is the per-platform meaning of the generic ad-id pixel
// parameter. Explicit mapping table rather than dispatch on platform type.
var genericAdIDTarget = map[Platform]entityField{
	PlatformMeta:   fieldAdID,
	PlatformTikTok: fieldCampaignID,
	PlatformGoogle: fieldAdID,
}

// DetectPlatform classifies traffic from click ids, declared platform and UTM
// source. Returns the platform and the marketing channel label.
func DetectPlatform(p TrafficParams) (Platform, string) {
	src := strings.ToLower(strings.TrimSpace(p.UTMSource))
	switch {
	case p.DetectedPlatform == "meta" || p.FBCLID != "" ||
		src == "facebook" || src == "fb" || src == "meta" || src == "ig" || src == "instagram":
		return PlatformMeta, "paid_social"
	case p.DetectedPlatform == "tiktok" || p.TTCLID != "" || src == "tiktok" || src == "tt":
		return PlatformTikTok, "paid_social"
	case p.DetectedPlatform == "google" || p.GCLID != "" || src == "google" || src == "gads":
		return PlatformGoogle, "paid_search"
	case strings.EqualFold(p.UTMMedium, "email"):
		return PlatformOther, "email"
	case src == "" && p.UTMMedium == "":
		return PlatformDirect, "direct"
	default:
		return PlatformOrganic, "organic"
	}
}

// ResolveEntityIDs fills campaign/ad-set/ad ids from the parameter snapshot,
// applying the per-platform meaning of the generic ad-id parameter and the
// UTM campaign fallback.
func ResolveEntityIDs(platform Platform, p TrafficParams) (campaignID, adSetID, adID string) {
	campaignID = p.CampaignID
	if campaignID == "" {
		campaignID = p.UTMCampaign
	}
	if campaignID == "" && platform == PlatformGoogle {
		campaignID = p.GCLID
	}
	adSetID = p.AdSetID
	adID = p.AdID

	if p.GenericAdID != "" {
		target, ok := genericAdIDTarget[platform]
		if !ok {
			target = fieldAdID
		}
		switch target {
		case fieldCampaignID:
			if campaignID == "" {
				campaignID = p.GenericAdID
			}
		case fieldAdID:
			if adID == "" {
				adID = p.GenericAdID
			}
		}
	}
	return campaignID, adSetID, adID
}

// TrafficSourceLabel renders the "source / medium" row label used on the
// traffic_source report tab.
func TrafficSourceLabel(platform Platform, channel string) string {
	switch platform {
	case PlatformMeta:
		return "facebook / paid_social"
	case PlatformGoogle:
		return "google / cpc"
	case PlatformTikTok:
		return "tiktok / paid_social"
	}
	switch channel {
	case "email":
		return "newsletter / email"
	case "organic":
		return "organic / organic"
	case "direct":
		return "direct / (none)"
	}
	return "other / other"
}

// PlatformLabel is the display name for a platform.
func PlatformLabel(p Platform) string {
	switch p {
	case PlatformMeta:
		return "Facebook Ads"
	case PlatformGoogle:
		return "Google Ads"
	case PlatformTikTok:
		return "TikTok Ads"
	default:
		return "Unknown"
	}
}
