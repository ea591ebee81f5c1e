package adsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/okian/attribd/internal/domain/model"
)

// TikTokFetcher pulls campaign, ad-group and ad names from the TikTok
// Marketing API.
type TikTokFetcher struct {
	accessToken  string
	advertiserID string
	client       *http.Client
	baseURL      string
}

var _ Fetcher = (*TikTokFetcher)(nil)

// NewTikTokFetcher builds a TikTok fetcher.
func NewTikTokFetcher(accessToken, advertiserID string, opts ...Option) *TikTokFetcher {
	o := applyOptions(opts)
	base := o.baseURL
	if base == "" {
		base = "https://business-api.tiktok.com/open_api/v1.3"
	}
	return &TikTokFetcher{
		accessToken:  accessToken,
		advertiserID: advertiserID,
		client:       o.client,
		baseURL:      base,
	}
}

func (f *TikTokFetcher) Platform() model.Platform { return model.PlatformTikTok }

type tiktokList struct {
	Data struct {
		List []map[string]any `json:"list"`
	} `json:"data"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (f *TikTokFetcher) Fetch(ctx context.Context) ([]model.AdName, error) {
	if f.accessToken == "" || f.advertiserID == "" {
		return nil, errors.New("tiktok access token and advertiser id required")
	}
	var out []model.AdName
	levels := []struct {
		path       string
		entityType string
		idKey      string
		nameKey    string
		parentKey  string
	}{
		{"/campaign/get/", model.EntityCampaign, "campaign_id", "campaign_name", ""},
		{"/adgroup/get/", model.EntityAdSet, "adgroup_id", "adgroup_name", "campaign_id"},
		{"/ad/get/", model.EntityAd, "ad_id", "ad_name", "adgroup_id"},
	}
	for _, lvl := range levels {
		list, err := f.getList(ctx, lvl.path)
		if err != nil {
			return out, fmt.Errorf("tiktok %s: %w", lvl.entityType, err)
		}
		for _, row := range list {
			parent := ""
			if lvl.parentKey != "" {
				parent = str(row[lvl.parentKey])
			}
			out = append(out, model.AdName{
				Platform:   model.PlatformTikTok,
				EntityType: lvl.entityType,
				EntityID:   str(row[lvl.idKey]),
				Name:       str(row[lvl.nameKey]),
				ParentID:   parent,
			})
		}
	}
	return out, nil
}

func (f *TikTokFetcher) getList(ctx context.Context, path string) ([]map[string]any, error) {
	u := f.baseURL + path + "?" + url.Values{
		"advertiser_id": {f.advertiserID},
		"page_size":     {"200"},
	}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Access-Token", f.accessToken)
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	var list tiktokList
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if list.Code != 0 {
		return nil, fmt.Errorf("api error %d: %s", list.Code, list.Message)
	}
	return list.Data.List, nil
}

func str(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return fmt.Sprintf("%.0f", t)
	}
	return ""
}
