package webhook

import (
	"encoding/json"
	"net/http"

	"escrowledger/internal/logging"
	"escrowledger/internal/services"

	"github.com/stripe/stripe-go/v81/webhook"
)

const GatewayStripe = "stripe"

// A failed PaymentIntent returns to requires_payment_method and can still
// succeed; only cancellation ends it.
var stripeEventTypes = map[string]services.GatewayEventType{
	"payment_intent.succeeded":      services.DepositSucceeded,
	"payment_intent.payment_failed": services.DepositAttemptFailed,
	"payment_intent.canceled":       services.DepositFailed,
	"payout.paid":                   services.WithdrawalSucceeded,
	"payout.failed":                 services.WithdrawalFailed,
}

// stripeObject is the subset of a PaymentIntent or Payout the reconciler needs.
type stripeObject struct {
	ID       string            `json:"id"`
	Amount   int64             `json:"amount"`
	Metadata map[string]string `json:"metadata"`
}

// reference prefers the id we stored when the intent was created, carried in
// metadata, over the Stripe object id.
func (o stripeObject) reference() string {
	if ref := o.Metadata["reference"]; ref != "" {
		return ref
	}
	return o.ID
}

type StripeHandler struct {
	secret  string
	applier Applier
}

func NewStripeHandler(secret string, applier Applier) *StripeHandler {
	return &StripeHandler{secret: secret, applier: applier}
}

func (h *StripeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	payload, err := readBody(w, r)
	if err != nil {
		respond(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "unable to read body"})
		return
	}
	if h.secret == "" {
		respond(w, http.StatusBadRequest, map[string]string{"error": "invalid signature"})
		return
	}
	event, err := webhook.ConstructEventWithOptions(payload, r.Header.Get("Stripe-Signature"), h.secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		logging.L(r.Context()).Warn("stripe signature verification failed", "error", err)
		respond(w, http.StatusBadRequest, map[string]string{"error": "invalid signature"})
		return
	}
	eventType, ok := stripeEventTypes[string(event.Type)]
	if !ok {
		ignore(w, r, GatewayStripe, string(event.Type))
		return
	}
	var obj stripeObject
	if event.Data == nil || json.Unmarshal(event.Data.Raw, &obj) != nil || obj.reference() == "" {
		respond(w, http.StatusBadRequest, map[string]string{"error": "malformed event object"})
		return
	}
	apply(w, r, h.applier, services.GatewayEvent{
		Gateway:   GatewayStripe,
		Reference: obj.reference(),
		Type:      eventType,
		Amount:    obj.Amount,
		Payload:   string(payload),
	})
}
