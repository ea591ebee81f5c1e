package adsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/okian/attribd/internal/domain/model"
)

const metaAPIVersion = "v18.0"

// MetaFetcher pulls campaign, ad-set and ad names from the Meta Marketing
// API, following its cursor pagination.
type MetaFetcher struct {
	accessToken string
	accountID   string
	client      *http.Client
	baseURL     string
}

var _ Fetcher = (*MetaFetcher)(nil)

// NewMetaFetcher builds a Meta fetcher. accountID may carry the "act_"
// prefix.
func NewMetaFetcher(accessToken, accountID string, opts ...Option) *MetaFetcher {
	o := applyOptions(opts)
	base := o.baseURL
	if base == "" {
		base = "https://graph.facebook.com/" + metaAPIVersion
	}
	return &MetaFetcher{
		accessToken: accessToken,
		accountID:   strings.TrimPrefix(strings.TrimSpace(accountID), "act_"),
		client:      o.client,
		baseURL:     base,
	}
}

func (f *MetaFetcher) Platform() model.Platform { return model.PlatformMeta }

type metaPage struct {
	Data []struct {
		ID         string `json:"id"`
		Name       string `json:"name"`
		CampaignID string `json:"campaign_id"`
		AdSetID    string `json:"adset_id"`
	} `json:"data"`
	Paging struct {
		Next string `json:"next"`
	} `json:"paging"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// Fetch pulls all three entity levels. Returns whatever was fetched before
// the first error along with it.
func (f *MetaFetcher) Fetch(ctx context.Context) ([]model.AdName, error) {
	if f.accessToken == "" || f.accountID == "" {
		return nil, errors.New("meta access token and ad account id required")
	}
	var out []model.AdName

	levels := []struct {
		endpoint   string
		entityType string
		fields     string
		parent     func(p metaPage, i int) string
	}{
		{"campaigns", model.EntityCampaign, "id,name,status",
			func(metaPage, int) string { return "" }},
		{"adsets", model.EntityAdSet, "id,name,campaign_id,status",
			func(p metaPage, i int) string { return p.Data[i].CampaignID }},
		{"ads", model.EntityAd, "id,name,adset_id,campaign_id,status",
			func(p metaPage, i int) string { return p.Data[i].AdSetID }},
	}
	for _, lvl := range levels {
		next := fmt.Sprintf("%s/act_%s/%s?%s", f.baseURL, f.accountID, lvl.endpoint, url.Values{
			"access_token": {f.accessToken},
			"fields":       {lvl.fields},
			"limit":        {"500"},
		}.Encode())
		for next != "" {
			page, err := f.getPage(ctx, next)
			if err != nil {
				return out, fmt.Errorf("meta %s: %w", lvl.endpoint, err)
			}
			for i, row := range page.Data {
				out = append(out, model.AdName{
					Platform:   model.PlatformMeta,
					EntityType: lvl.entityType,
					EntityID:   row.ID,
					Name:       row.Name,
					ParentID:   lvl.parent(page, i),
				})
			}
			next = page.Paging.Next
		}
	}
	return out, nil
}

func (f *MetaFetcher) getPage(ctx context.Context, pageURL string) (metaPage, error) {
	var page metaPage
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return page, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return page, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return page, err
	}
	if err := json.Unmarshal(data, &page); err != nil {
		return page, fmt.Errorf("decode: %w", err)
	}
	if page.Error != nil {
		return page, fmt.Errorf("api error %d: %s", page.Error.Code, page.Error.Message)
	}
	if resp.StatusCode >= 400 {
		return page, fmt.Errorf("status %d", resp.StatusCode)
	}
	return page, nil
}
