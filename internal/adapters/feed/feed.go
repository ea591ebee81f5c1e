// Package feed broadcasts ingested events to live dashboard subscribers.
// Delivery is best effort: a slow subscriber loses its oldest buffered events
// rather than slowing ingestion.
package feed

import (
	"sync"

	"github.com/okian/attribd/internal/domain/model"
	"github.com/okian/attribd/pkg/metrics"
)

const defaultBufferSize = 50

// Subscriber receives feed events over a bounded channel.
type Subscriber struct {
	ch chan model.FeedEvent
}

// Events returns the subscriber's event channel. It is closed on unsubscribe.
func (s *Subscriber) Events() <-chan model.FeedEvent { return s.ch }

// Hub fans ingested events out to subscribers.
type Hub struct {
	mu      sync.Mutex
	subs    map[*Subscriber]struct{}
	bufSize int
}

// NewHub builds a Hub. bufSize is the per-subscriber buffer; values below 1
// fall back to the default.
func NewHub(bufSize int) *Hub {
	if bufSize < 1 {
		bufSize = defaultBufferSize
	}
	return &Hub{subs: make(map[*Subscriber]struct{}), bufSize: bufSize}
}

// Subscribe registers a new subscriber.
func (h *Hub) Subscribe() *Subscriber {
	s := &Subscriber{ch: make(chan model.FeedEvent, h.bufSize)}
	h.mu.Lock()
	h.subs[s] = struct{}{}
	n := len(h.subs)
	h.mu.Unlock()
	metrics.UpdateFeedSubscribers(n)
	return s
}

// Unsubscribe removes a subscriber and closes its channel. Safe to call once
// per subscriber.
func (h *Hub) Unsubscribe(s *Subscriber) {
	h.mu.Lock()
	if _, ok := h.subs[s]; ok {
		delete(h.subs, s)
		close(s.ch)
	}
	n := len(h.subs)
	h.mu.Unlock()
	metrics.UpdateFeedSubscribers(n)
}

// Publish delivers ev to every subscriber without ever blocking the caller.
// A full subscriber buffer drops its oldest event to make room.
func (h *Hub) Publish(ev model.FeedEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		for {
			select {
			case s.ch <- ev:
			default:
				select {
				case <-s.ch:
					metrics.RecordFeedDroppedEvent()
				default:
				}
				continue
			}
			break
		}
	}
}
