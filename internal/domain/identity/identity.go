// Package identity resolves visitor identities to stable customer keys by
// stitching an append-only link log.
package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/okian/attribd/internal/domain/model"
	"github.com/okian/attribd/pkg/logger"
)

// ErrEmptyCredential indicates the identify call carried no usable credential.
var ErrEmptyCredential = errors.New("empty credential")

// CustomerKey derives the stable customer key for a credential: the first 32
// hex characters of the SHA-256 of the lowercased, trimmed input. The raw
// credential is never stored.
func CustomerKey(credential string) string {
	norm := strings.ToLower(strings.TrimSpace(credential))
	sum := sha256.Sum256([]byte(norm))
	return hex.EncodeToString(sum[:])[:32]
}

// LinkStore is the identity slice of the event store.
type LinkStore interface {
	AppendIdentityLink(ctx context.Context, visitorID, customerKey string, at time.Time) error
	CurrentLink(ctx context.Context, visitorID string) (model.IdentityLink, error)
	LinkHistory(ctx context.Context, visitorID string) ([]model.IdentityLink, error)
	VisitorsForCustomer(ctx context.Context, customerKey string) ([]string, error)
}

const lockStripes = 256

// Resolver links visitors to customer keys. Writes for one visitor are
// serialized through a lock stripe so concurrent identify calls cannot
// interleave their read-check-append sequences; writes for distinct visitors
// proceed in parallel.
type Resolver struct {
	store LinkStore
	log   logger.Logger
	locks [lockStripes]sync.Mutex
}

// NewResolver builds a Resolver over the given link store.
func NewResolver(store LinkStore, opts ...Option) *Resolver {
	o := applyOptions(opts)
	return &Resolver{store: store, log: o.log}
}

func (r *Resolver) stripe(visitorID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(visitorID))
	return &r.locks[h.Sum32()%lockStripes]
}

// Resolve links visitorID to the customer derived from credential and returns
// the customer key. Relinking to the same customer is a no-op; linking to a
// different customer appends a new log row, which becomes the current mapping
// while the old row stays in the history.
func (r *Resolver) Resolve(ctx context.Context, credential, visitorID string) (string, error) {
	if strings.TrimSpace(credential) == "" {
		return "", ErrEmptyCredential
	}
	key := CustomerKey(credential)

	mu := r.stripe(visitorID)
	mu.Lock()
	defer mu.Unlock()

	cur, err := r.store.CurrentLink(ctx, visitorID)
	if err == nil && cur.CustomerKey == key {
		return key, nil
	}
	if err != nil && !isNotFound(err) {
		return "", err
	}
	if err == nil && cur.CustomerKey != key {
		r.log.Info(ctx, "visitor relinked",
			logger.String("visitor_id", visitorID),
			logger.String("customer_key", key))
	}
	if err := r.store.AppendIdentityLink(ctx, visitorID, key, time.Now()); err != nil {
		return "", err
	}
	return key, nil
}

// Expand returns the set of visitors currently linked to customerKey.
func (r *Resolver) Expand(ctx context.Context, customerKey string) ([]string, error) {
	return r.store.VisitorsForCustomer(ctx, customerKey)
}

// History returns the full link log for a visitor, oldest first.
func (r *Resolver) History(ctx context.Context, visitorID string) ([]model.IdentityLink, error) {
	return r.store.LinkHistory(ctx, visitorID)
}

// Current returns the current customer key for a visitor, or "" when the
// visitor is anonymous.
func (r *Resolver) Current(ctx context.Context, visitorID string) (string, error) {
	cur, err := r.store.CurrentLink(ctx, visitorID)
	if isNotFound(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return cur.CustomerKey, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, model.ErrNotFound)
}
