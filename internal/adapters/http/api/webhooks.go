package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/okian/attribd/internal/domain/model"
)

const maxWebhookBody = 1 << 20

// WebhookHandler receives platform order webhooks and maps them to
// conversions.
type WebhookHandler struct {
	deps          Dependencies
	shopifySecret string
	stripeSecret  string
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(deps Dependencies, shopifySecret, stripeSecret string) *WebhookHandler {
	return &WebhookHandler{deps: deps, shopifySecret: shopifySecret, stripeSecret: stripeSecret}
}

type webhookResponse struct {
	OK        bool   `json:"ok"`
	OrderID   string `json:"order_id,omitempty"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Skipped   bool   `json:"skipped,omitempty"`
	EventType string `json:"event_type,omitempty"`
}

// shopifyOrder mirrors the Shopify orders/paid webhook payload fields we use.
type shopifyOrder struct {
	ID         json.Number `json:"id"`
	Email      string      `json:"email"`
	CreatedAt  string      `json:"created_at"`
	TotalPrice json.Number `json:"total_price"`
	Currency   string      `json:"currency"`
	Customer   struct {
		Email string `json:"email"`
	} `json:"customer"`
	LandingSite    string `json:"landing_site"`
	NoteAttributes []struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	} `json:"note_attributes"`
}

// HandleShopify handles POST /api/webhooks/shopify requests.
func (h *WebhookHandler) HandleShopify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", ErrMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if h.shopifySecret != "" {
		mac := hmac.New(sha256.New, []byte(h.shopifySecret))
		mac.Write(body)
		digest := hex.EncodeToString(mac.Sum(nil))
		if !hmac.Equal([]byte(digest), []byte(r.Header.Get("X-Shopify-Hmac-Sha256"))) {
			writeError(w, http.StatusUnauthorized, "bad_signature", ErrBadSignature)
			return
		}
	}

	var order shopifyOrder
	if err := json.Unmarshal(body, &order); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if order.ID.String() == "" {
		writeError(w, http.StatusBadRequest, "bad_request", errors.New("missing order id"))
		return
	}

	email := order.Email
	if email == "" {
		email = order.Customer.Email
	}
	value, _ := order.TotalPrice.Float64()
	ts := time.Time{}
	if order.CreatedAt != "" {
		if parsed, err := time.Parse(time.RFC3339, order.CreatedAt); err == nil {
			ts = parsed
		}
	}

	ev := model.ConversionEvent{
		OrderID:     order.ID.String(),
		Type:        model.ConversionPurchase,
		Value:       value,
		Currency:    order.Currency,
		TS:          ts,
		Email:       email,
		LandingPage: order.LandingSite,
	}
	for _, attr := range order.NoteAttributes {
		switch attr.Name {
		case "visitor_id":
			ev.VisitorID = attr.Value
		case "session_id":
			ev.SessionID = attr.Value
		case "gclid":
			ev.GCLID = attr.Value
		case "fbclid":
			ev.FBCLID = attr.Value
		case "ttclid":
			ev.TTCLID = attr.Value
		case "utm_source":
			ev.UTMSource = attr.Value
		case "utm_medium":
			ev.UTMMedium = attr.Value
		case "utm_campaign":
			ev.UTMCampaign = attr.Value
		}
	}

	res, err := h.deps.Conversion(r.Context(), ev)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, webhookResponse{OK: true, OrderID: res.OrderID, Duplicate: res.Duplicate})
}

// stripeEvent mirrors the Stripe event envelope fields we use.
type stripeEvent struct {
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID            string            `json:"id"`
			PaymentIntent string            `json:"payment_intent"`
			CustomerEmail string            `json:"customer_email"`
			ReceiptEmail  string            `json:"receipt_email"`
			AmountTotal   int64             `json:"amount_total"`
			Amount        int64             `json:"amount"`
			Currency      string            `json:"currency"`
			Metadata      map[string]string `json:"metadata"`
		} `json:"object"`
	} `json:"data"`
}

// stripeOrderEvents are the event types treated as completed purchases.
var stripeOrderEvents = map[string]struct{}{
	"checkout.session.completed": {},
	"charge.succeeded":           {},
	"payment_intent.succeeded":   {},
}

// HandleStripe handles POST /api/webhooks/stripe requests.
func (h *WebhookHandler) HandleStripe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", ErrMethodNotAllowed)
		return
	}
	if h.stripeSecret != "" && r.Header.Get("Stripe-Signature") == "" {
		writeError(w, http.StatusUnauthorized, "bad_signature", ErrBadSignature)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	var event stripeEvent
	if err := json.Unmarshal(body, &event); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if _, ok := stripeOrderEvents[event.Type]; !ok {
		writeJSON(w, http.StatusOK, webhookResponse{OK: true, Skipped: true, EventType: event.Type})
		return
	}

	obj := event.Data.Object
	orderID := obj.ID
	if orderID == "" {
		orderID = obj.PaymentIntent
	}
	if orderID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", errors.New("missing order id"))
		return
	}
	email := obj.CustomerEmail
	if email == "" {
		email = obj.ReceiptEmail
	}
	amount := obj.AmountTotal
	if amount == 0 {
		amount = obj.Amount
	}

	ev := model.ConversionEvent{
		OrderID:     orderID,
		Type:        model.ConversionPurchase,
		Value:       float64(amount) / 100.0,
		Currency:    obj.Currency,
		Email:       email,
		VisitorID:   obj.Metadata["visitor_id"],
		SessionID:   obj.Metadata["session_id"],
		GCLID:       obj.Metadata["gclid"],
		FBCLID:      obj.Metadata["fbclid"],
		TTCLID:      obj.Metadata["ttclid"],
		UTMSource:   obj.Metadata["utm_source"],
		UTMMedium:   obj.Metadata["utm_medium"],
		UTMCampaign: obj.Metadata["utm_campaign"],
	}
	res, err := h.deps.Conversion(r.Context(), ev)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, webhookResponse{OK: true, OrderID: res.OrderID, Duplicate: res.Duplicate})
}
