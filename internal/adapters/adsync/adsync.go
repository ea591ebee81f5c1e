// Package adsync pulls campaign, ad-set and ad display names from the ad
// platforms' marketing APIs into the ad_names table.
package adsync

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/okian/attribd/internal/domain/model"
	"github.com/okian/attribd/pkg/logger"
)

// ErrNotSupported indicates the platform has no name sync implementation.
var ErrNotSupported = errors.New("name sync not supported for platform")

// NameStore is the ad-name slice of the event store.
type NameStore interface {
	UpsertAdName(ctx context.Context, n model.AdName) error
}

// Fetcher pulls the entity name list for one platform.
type Fetcher interface {
	Platform() model.Platform
	Fetch(ctx context.Context) ([]model.AdName, error)
}

// Result summarizes one sync run.
type Result struct {
	Platform model.Platform `json:"platform"`
	Synced   int            `json:"synced"`
	Error    string         `json:"error,omitempty"`
}

// Syncer runs fetchers and persists their names.
type Syncer struct {
	store    NameStore
	fetchers map[model.Platform]Fetcher
	log      logger.Logger
}

// NewSyncer builds a Syncer.
func NewSyncer(store NameStore, fetchers ...Fetcher) *Syncer {
	m := make(map[model.Platform]Fetcher, len(fetchers))
	for _, f := range fetchers {
		m[f.Platform()] = f
	}
	return &Syncer{store: store, fetchers: m, log: logger.Named("adsync")}
}

// Sync refreshes names for one platform, or all registered ones when platform
// is empty or "all".
func (s *Syncer) Sync(ctx context.Context, platform string) ([]Result, error) {
	var targets []Fetcher
	if platform == "" || platform == "all" {
		for _, f := range s.fetchers {
			targets = append(targets, f)
		}
	} else {
		f, ok := s.fetchers[model.ParsePlatform(platform)]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotSupported, platform)
		}
		targets = append(targets, f)
	}

	var results []Result
	for _, f := range targets {
		res := Result{Platform: f.Platform()}
		names, err := f.Fetch(ctx)
		if err != nil {
			res.Error = err.Error()
			s.log.Warn(ctx, "ad name fetch failed",
				logger.String("platform", string(f.Platform())), logger.Error(err))
			results = append(results, res)
			continue
		}
		now := time.Now()
		for _, n := range names {
			n.UpdatedAt = now
			if err := s.store.UpsertAdName(ctx, n); err != nil {
				res.Error = err.Error()
				break
			}
			res.Synced++
		}
		results = append(results, res)
	}
	return results, nil
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}
