package api_test

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/okian/attribd/internal/adapters/adsync"
	"github.com/okian/attribd/internal/adapters/capi"
	"github.com/okian/attribd/internal/adapters/feed"
	"github.com/okian/attribd/internal/adapters/http/api"
	service "github.com/okian/attribd/internal/app"
	"github.com/okian/attribd/internal/domain/model"
	"github.com/okian/attribd/internal/domain/report"
)

// stubDeps satisfies api.Dependencies with overridable hooks.
type stubDeps struct {
	hub *feed.Hub

	trackFn      func(ev model.TrackEvent) (api.TrackResult, error)
	identifyFn   func(ev model.IdentifyEvent) (string, error)
	conversionFn func(ev model.ConversionEvent) (api.ConversionResult, error)
	reportFn     func(p report.Params) (*report.Report, error)
	capiStatusFn func() (capi.StatusReport, error)
}

func newStubDeps() *stubDeps { return &stubDeps{hub: feed.NewHub(4)} }

func (s *stubDeps) Track(_ context.Context, ev model.TrackEvent) (api.TrackResult, error) {
	if s.trackFn != nil {
		return s.trackFn(ev)
	}
	return api.TrackResult{VisitorID: "v1", SessionID: "s1"}, nil
}

func (s *stubDeps) Identify(_ context.Context, ev model.IdentifyEvent) (string, error) {
	if s.identifyFn != nil {
		return s.identifyFn(ev)
	}
	return "key", nil
}

func (s *stubDeps) Conversion(_ context.Context, ev model.ConversionEvent) (api.ConversionResult, error) {
	if s.conversionFn != nil {
		return s.conversionFn(ev)
	}
	return api.ConversionResult{OrderID: ev.OrderID, ConversionID: "c1"}, nil
}

func (s *stubDeps) Report(_ context.Context, p report.Params) (*report.Report, error) {
	if s.reportFn != nil {
		return s.reportFn(p)
	}
	return &report.Report{}, nil
}

func (s *stubDeps) ReportChildren(context.Context, report.Tab, string, report.Params) (*report.Children, error) {
	return &report.Children{}, nil
}

func (s *stubDeps) CAPIStatus(context.Context) (capi.StatusReport, error) {
	if s.capiStatusFn != nil {
		return s.capiStatusFn()
	}
	return capi.StatusReport{}, nil
}

func (s *stubDeps) CAPISync(context.Context) (capi.SweepResult, error) {
	return capi.SweepResult{}, nil
}

func (s *stubDeps) CAPILog(context.Context, model.Platform, int, int) ([]model.SyncRecord, error) {
	return nil, nil
}

func (s *stubDeps) AdNames(context.Context, model.Platform, string, string) ([]model.AdName, error) {
	return nil, nil
}

func (s *stubDeps) UpsertAdName(context.Context, model.AdName) error { return nil }

func (s *stubDeps) DeleteAdName(context.Context, model.Platform, string, string) error {
	return nil
}

func (s *stubDeps) SyncAdNames(context.Context, string) ([]adsync.Result, error) {
	return nil, nil
}

func (s *stubDeps) Subscribe() *feed.Subscriber      { return s.hub.Subscribe() }
func (s *stubDeps) Unsubscribe(sub *feed.Subscriber) { s.hub.Unsubscribe(sub) }

func (s *stubDeps) Stats(context.Context) (map[string]any, error) {
	return map[string]any{"visitors": 0}, nil
}

func newTestServer(t *testing.T, deps api.Dependencies, opts ...api.ServerOption) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	api.NewServer(deps, opts...).Register(context.Background(), mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	buf, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(buf))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHandleTrack(t *testing.T) {
	t.Run("accepts a pixel beacon", func(t *testing.T) {
		deps := newStubDeps()
		var got model.TrackEvent
		deps.trackFn = func(ev model.TrackEvent) (api.TrackResult, error) {
			got = ev
			return api.TrackResult{VisitorID: ev.VisitorID, SessionID: "s1", TouchpointID: "tp1"}, nil
		}
		srv := newTestServer(t, deps)

		resp := postJSON(t, srv.URL+"/api/track", map[string]any{
			"visitor_id": "v1",
			"utm_source": "facebook",
			"utm_medium": "paid_social",
			"fbclid":     "fb1",
			"h_ad_id":    "ad9",
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		out := decode[map[string]any](t, resp)
		require.Equal(t, true, out["ok"])
		require.Equal(t, "tp1", out["touchpoint_id"])
		require.Equal(t, "fb1", got.Params.FBCLID)
		require.Equal(t, "ad9", got.Params.GenericAdID)
	})

	t.Run("passes named events and custom data through", func(t *testing.T) {
		deps := newStubDeps()
		var got model.TrackEvent
		deps.trackFn = func(ev model.TrackEvent) (api.TrackResult, error) {
			got = ev
			return api.TrackResult{VisitorID: ev.VisitorID, SessionID: "s1"}, nil
		}
		srv := newTestServer(t, deps)

		resp := postJSON(t, srv.URL+"/api/track", map[string]any{
			"visitor_id":  "v1",
			"event":       "FormSubmit",
			"site_token":  "site-1",
			"custom_data": map[string]any{"form_name": "contact", "calendar": "demo"},
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, "FormSubmit", got.Event)
		require.Equal(t, "site-1", got.SiteToken)
		require.Equal(t, "contact", got.FormName)
		require.Equal(t, "demo", got.Calendar)
	})

	t.Run("rejects a malformed timestamp", func(t *testing.T) {
		srv := newTestServer(t, newStubDeps())
		resp := postJSON(t, srv.URL+"/api/track", map[string]any{"ts": "yesterday"})
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("rejects non-POST methods", func(t *testing.T) {
		srv := newTestServer(t, newStubDeps())
		resp, err := http.Get(srv.URL + "/api/track")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	})
}

func TestHandleIdentify(t *testing.T) {
	t.Run("requires an email", func(t *testing.T) {
		srv := newTestServer(t, newStubDeps())
		resp := postJSON(t, srv.URL+"/api/identify", map[string]any{"visitor_id": "v1"})
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("returns the customer key", func(t *testing.T) {
		deps := newStubDeps()
		deps.identifyFn = func(ev model.IdentifyEvent) (string, error) {
			require.Equal(t, "v1", ev.VisitorID)
			require.Equal(t, "a@b.com", ev.Credential)
			return "custkey", nil
		}
		srv := newTestServer(t, deps)

		resp := postJSON(t, srv.URL+"/api/identify", map[string]any{"visitor_id": "v1", "email": "a@b.com"})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		out := decode[map[string]any](t, resp)
		require.Equal(t, "custkey", out["customer_key"])
	})

	t.Run("maps a missing visitor to 400", func(t *testing.T) {
		deps := newStubDeps()
		deps.identifyFn = func(model.IdentifyEvent) (string, error) {
			return "", service.ErrMissingVisitor
		}
		srv := newTestServer(t, deps)

		resp := postJSON(t, srv.URL+"/api/identify", map[string]any{"email": "a@b.com"})
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestHandleConversion(t *testing.T) {
	t.Run("reports duplicates without erroring", func(t *testing.T) {
		deps := newStubDeps()
		deps.conversionFn = func(ev model.ConversionEvent) (api.ConversionResult, error) {
			return api.ConversionResult{OrderID: ev.OrderID, Duplicate: true}, nil
		}
		srv := newTestServer(t, deps)

		resp := postJSON(t, srv.URL+"/api/conversion", map[string]any{"order_id": "o1", "value": 100})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		out := decode[map[string]any](t, resp)
		require.Equal(t, true, out["duplicate"])
	})

	t.Run("maps a missing order id to 400", func(t *testing.T) {
		deps := newStubDeps()
		deps.conversionFn = func(model.ConversionEvent) (api.ConversionResult, error) {
			return api.ConversionResult{}, service.ErrMissingOrderID
		}
		srv := newTestServer(t, deps)

		resp := postJSON(t, srv.URL+"/api/conversion", map[string]any{"value": 100})
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestHandleShopifyWebhook(t *testing.T) {
	order := map[string]any{
		"id":          4242,
		"email":       "buyer@example.com",
		"total_price": "149.90",
		"currency":    "USD",
		"note_attributes": []map[string]any{
			{"name": "visitor_id", "value": "v1"},
			{"name": "gclid", "value": "gc1"},
			{"name": "utm_source", "value": "google"},
		},
	}

	t.Run("maps note attributes into the conversion", func(t *testing.T) {
		deps := newStubDeps()
		var got model.ConversionEvent
		deps.conversionFn = func(ev model.ConversionEvent) (api.ConversionResult, error) {
			got = ev
			return api.ConversionResult{OrderID: ev.OrderID}, nil
		}
		srv := newTestServer(t, deps)

		resp := postJSON(t, srv.URL+"/api/webhooks/shopify", order)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, "4242", got.OrderID)
		require.Equal(t, "buyer@example.com", got.Email)
		require.InDelta(t, 149.90, got.Value, 1e-9)
		require.Equal(t, "v1", got.VisitorID)
		require.Equal(t, "gc1", got.GCLID)
		require.Equal(t, "google", got.UTMSource)
	})

	t.Run("verifies the HMAC signature when a secret is set", func(t *testing.T) {
		deps := newStubDeps()
		srv := newTestServer(t, deps, api.WithShopifySecret("shh"))

		body, err := json.Marshal(order)
		require.NoError(t, err)
		mac := hmac.New(sha256.New, []byte("shh"))
		mac.Write(body)
		digest := hex.EncodeToString(mac.Sum(nil))

		req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/webhooks/shopify", bytes.NewReader(body))
		require.NoError(t, err)
		req.Header.Set("X-Shopify-Hmac-Sha256", digest)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("rejects a bad signature", func(t *testing.T) {
		srv := newTestServer(t, newStubDeps(), api.WithShopifySecret("shh"))
		resp := postJSON(t, srv.URL+"/api/webhooks/shopify", order)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("rejects a payload without an order id", func(t *testing.T) {
		srv := newTestServer(t, newStubDeps())
		resp := postJSON(t, srv.URL+"/api/webhooks/shopify", map[string]any{"email": "x@y.com"})
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestHandleStripeWebhook(t *testing.T) {
	t.Run("converts cents and reads attribution metadata", func(t *testing.T) {
		deps := newStubDeps()
		var got model.ConversionEvent
		deps.conversionFn = func(ev model.ConversionEvent) (api.ConversionResult, error) {
			got = ev
			return api.ConversionResult{OrderID: ev.OrderID}, nil
		}
		srv := newTestServer(t, deps)

		resp := postJSON(t, srv.URL+"/api/webhooks/stripe", map[string]any{
			"type": "checkout.session.completed",
			"data": map[string]any{"object": map[string]any{
				"id":             "cs_123",
				"customer_email": "buyer@example.com",
				"amount_total":   14990,
				"currency":       "usd",
				"metadata": map[string]string{
					"visitor_id": "v1",
					"fbclid":     "fb1",
				},
			}},
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, "cs_123", got.OrderID)
		require.InDelta(t, 149.90, got.Value, 1e-9)
		require.Equal(t, "fb1", got.FBCLID)
	})

	t.Run("acknowledges non-order events without converting", func(t *testing.T) {
		deps := newStubDeps()
		deps.conversionFn = func(model.ConversionEvent) (api.ConversionResult, error) {
			t.Fatal("non-order event must not convert")
			return api.ConversionResult{}, nil
		}
		srv := newTestServer(t, deps)

		resp := postJSON(t, srv.URL+"/api/webhooks/stripe", map[string]any{"type": "invoice.created"})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		out := decode[map[string]any](t, resp)
		require.Equal(t, true, out["skipped"])
	})

	t.Run("falls back to the payment intent id", func(t *testing.T) {
		deps := newStubDeps()
		var got model.ConversionEvent
		deps.conversionFn = func(ev model.ConversionEvent) (api.ConversionResult, error) {
			got = ev
			return api.ConversionResult{OrderID: ev.OrderID}, nil
		}
		srv := newTestServer(t, deps)

		resp := postJSON(t, srv.URL+"/api/webhooks/stripe", map[string]any{
			"type": "payment_intent.succeeded",
			"data": map[string]any{"object": map[string]any{
				"payment_intent": "pi_9",
				"amount":         5000,
			}},
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, "pi_9", got.OrderID)
		require.InDelta(t, 50.0, got.Value, 1e-9)
	})
}

func TestHandleReport(t *testing.T) {
	t.Run("passes query parameters through", func(t *testing.T) {
		deps := newStubDeps()
		var got report.Params
		deps.reportFn = func(p report.Params) (*report.Report, error) {
			got = p
			return &report.Report{}, nil
		}
		srv := newTestServer(t, deps)

		resp, err := http.Get(srv.URL + "/api/report?start_date=2025-01-01&end_date=2025-01-31&model=linear&tab=campaign&date_basis=click")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, "2025-01-01", got.StartDate)
		require.Equal(t, report.TabCampaign, got.ActiveTab)
		require.True(t, got.UseClickDate)
	})

	t.Run("maps invalid params to 400", func(t *testing.T) {
		deps := newStubDeps()
		deps.reportFn = func(report.Params) (*report.Report, error) {
			return nil, report.ErrInvalidParams
		}
		srv := newTestServer(t, deps)

		resp, err := http.Get(srv.URL + "/api/report?model=nope")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("requires a parent id for children", func(t *testing.T) {
		srv := newTestServer(t, newStubDeps())
		resp, err := http.Get(srv.URL + "/api/report/children")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestHandleCAPIStatus(t *testing.T) {
	t.Run("maps an unconfigured syncer to 501", func(t *testing.T) {
		deps := newStubDeps()
		deps.capiStatusFn = func() (capi.StatusReport, error) {
			return capi.StatusReport{}, service.ErrCAPIDisabled
		}
		srv := newTestServer(t, deps)

		resp, err := http.Get(srv.URL + "/api/capi/status")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusNotImplemented, resp.StatusCode)
	})
}

func TestHandleHealthAndStats(t *testing.T) {
	srv := newTestServer(t, newStubDeps())

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json"))

	stats, err := http.Get(srv.URL + "/stats")
	require.NoError(t, err)
	defer stats.Body.Close()
	require.Equal(t, http.StatusOK, stats.StatusCode)
}
