package identity_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/attribd/internal/domain/identity"
	"github.com/okian/attribd/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

// memLinkStore is an in-memory append-only link log.
type memLinkStore struct {
	mu    sync.Mutex
	seq   int64
	links []model.IdentityLink
}

func (m *memLinkStore) AppendIdentityLink(_ context.Context, visitorID, customerKey string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	m.links = append(m.links, model.IdentityLink{
		Seq: m.seq, VisitorID: visitorID, CustomerKey: customerKey, LinkedAt: at,
	})
	return nil
}

func (m *memLinkStore) CurrentLink(_ context.Context, visitorID string) (model.IdentityLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.links) - 1; i >= 0; i-- {
		if m.links[i].VisitorID == visitorID {
			return m.links[i], nil
		}
	}
	return model.IdentityLink{}, model.ErrNotFound
}

func (m *memLinkStore) LinkHistory(_ context.Context, visitorID string) ([]model.IdentityLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.IdentityLink
	for _, l := range m.links {
		if l.VisitorID == visitorID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *memLinkStore) VisitorsForCustomer(_ context.Context, customerKey string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current := make(map[string]string)
	for _, l := range m.links {
		current[l.VisitorID] = l.CustomerKey
	}
	var out []string
	for v, k := range current {
		if k == customerKey {
			out = append(out, v)
		}
	}
	return out, nil
}

func TestCustomerKey(t *testing.T) {
	Convey("Given customer credentials", t, func() {
		Convey("Then the key is 32 hex characters", func() {
			So(identity.CustomerKey("jane@example.com"), ShouldHaveLength, 32)
		})

		Convey("Then case and surrounding whitespace do not matter", func() {
			base := identity.CustomerKey("jane@example.com")
			So(identity.CustomerKey("  JANE@Example.COM  "), ShouldEqual, base)
		})

		Convey("Then distinct credentials produce distinct keys", func() {
			So(identity.CustomerKey("jane@example.com"), ShouldNotEqual, identity.CustomerKey("john@example.com"))
		})
	})
}

func TestResolver(t *testing.T) {
	ctx := context.Background()

	Convey("Given a resolver over an empty link log", t, func() {
		store := &memLinkStore{}
		r := identity.NewResolver(store)

		Convey("When resolving an empty credential", func() {
			_, err := r.Resolve(ctx, "   ", "v1")

			Convey("Then it is rejected", func() {
				So(err, ShouldEqual, identity.ErrEmptyCredential)
			})
		})

		Convey("When a visitor identifies once", func() {
			key, err := r.Resolve(ctx, "jane@example.com", "v1")
			So(err, ShouldBeNil)

			Convey("Then the visitor's current key matches", func() {
				cur, err := r.Current(ctx, "v1")
				So(err, ShouldBeNil)
				So(cur, ShouldEqual, key)
			})

			Convey("And identifying again with the same credential appends nothing", func() {
				_, err := r.Resolve(ctx, "JANE@example.com", "v1")
				So(err, ShouldBeNil)
				history, err := r.History(ctx, "v1")
				So(err, ShouldBeNil)
				So(history, ShouldHaveLength, 1)
			})

			Convey("And relinking to a different customer keeps the old row", func() {
				newKey, err := r.Resolve(ctx, "john@example.com", "v1")
				So(err, ShouldBeNil)
				So(newKey, ShouldNotEqual, key)

				history, err := r.History(ctx, "v1")
				So(err, ShouldBeNil)
				So(history, ShouldHaveLength, 2)
				So(history[0].CustomerKey, ShouldEqual, key)
				So(history[1].CustomerKey, ShouldEqual, newKey)

				cur, err := r.Current(ctx, "v1")
				So(err, ShouldBeNil)
				So(cur, ShouldEqual, newKey)
			})
		})

		Convey("When several visitors identify as the same customer", func() {
			key1, _ := r.Resolve(ctx, "jane@example.com", "v1")
			key2, _ := r.Resolve(ctx, "jane@example.com", "v2")
			So(key1, ShouldEqual, key2)

			Convey("Then Expand returns both visitors", func() {
				visitors, err := r.Expand(ctx, key1)
				So(err, ShouldBeNil)
				So(visitors, ShouldHaveLength, 2)
				So(visitors, ShouldContain, "v1")
				So(visitors, ShouldContain, "v2")
			})
		})

		Convey("When an unknown visitor is queried", func() {
			cur, err := r.Current(ctx, "ghost")

			Convey("Then the visitor is anonymous, not an error", func() {
				So(err, ShouldBeNil)
				So(cur, ShouldEqual, "")
			})
		})
	})
}

func TestResolverConcurrency(t *testing.T) {
	Convey("Given many concurrent identify calls for the same visitor", t, func() {
		ctx := context.Background()
		store := &memLinkStore{}
		r := identity.NewResolver(store)

		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = r.Resolve(ctx, "jane@example.com", "v1")
			}()
		}
		wg.Wait()

		Convey("Then exactly one link row exists", func() {
			history, err := r.History(ctx, "v1")
			So(err, ShouldBeNil)
			So(history, ShouldHaveLength, 1)
		})
	})

	Convey("Given concurrent identify calls for distinct visitors", t, func() {
		ctx := context.Background()
		store := &memLinkStore{}
		r := identity.NewResolver(store)

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				_, _ = r.Resolve(ctx, "jane@example.com", fmt.Sprintf("v%d", n))
			}(i)
		}
		wg.Wait()

		Convey("Then every visitor is linked", func() {
			visitors, err := r.Expand(ctx, identity.CustomerKey("jane@example.com"))
			So(err, ShouldBeNil)
			So(visitors, ShouldHaveLength, 20)
		})
	})
}
