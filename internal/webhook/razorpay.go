package webhook

import (
	"encoding/json"
	"net/http"

	"escrowledger/internal/logging"
	"escrowledger/internal/services"

	"github.com/razorpay/razorpay-go/utils"
)

const GatewayRazorpay = "razorpay"

// payment.failed is a single attempt against the order; the order stays
// payable. payout.reversed only reverses a payout that has not been reported
// processed, after which it is acknowledged as already applied.
var razorpayEventTypes = map[string]services.GatewayEventType{
	"payment.captured": services.DepositSucceeded,
	"payment.failed":   services.DepositAttemptFailed,
	"payout.processed": services.WithdrawalSucceeded,
	"payout.failed":    services.WithdrawalFailed,
	"payout.reversed":  services.WithdrawalFailed,
}

type razorpayEntity struct {
	ID      string `json:"id"`
	OrderID string `json:"order_id"`
	Amount  int64  `json:"amount"`
}

type razorpayEnvelope struct {
	Event   string `json:"event"`
	Payload struct {
		Payment *struct {
			Entity razorpayEntity `json:"entity"`
		} `json:"payment"`
		Payout *struct {
			Entity razorpayEntity `json:"entity"`
		} `json:"payout"`
	} `json:"payload"`
}

// reference returns the entity the event is about and its key. Deposits are keyed by the
// Razorpay order created before checkout, payouts by the payout id.
func (e razorpayEnvelope) reference() (razorpayEntity, string) {
	switch {
	case e.Payload.Payment != nil:
		ent := e.Payload.Payment.Entity
		if ent.OrderID != "" {
			return ent, ent.OrderID
		}
		return ent, ent.ID
	case e.Payload.Payout != nil:
		return e.Payload.Payout.Entity, e.Payload.Payout.Entity.ID
	default:
		return razorpayEntity{}, ""
	}
}

type RazorpayHandler struct {
	secret  string
	applier Applier
}

func NewRazorpayHandler(secret string, applier Applier) *RazorpayHandler {
	return &RazorpayHandler{secret: secret, applier: applier}
}

func (h *RazorpayHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		respond(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "unable to read body"})
		return
	}
	signature := r.Header.Get("X-Razorpay-Signature")
	if signature == "" || h.secret == "" || !utils.VerifyWebhookSignature(string(body), signature, h.secret) {
		logging.L(r.Context()).Warn("razorpay signature verification failed")
		respond(w, http.StatusBadRequest, map[string]string{"error": "invalid signature"})
		return
	}
	var envelope razorpayEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		respond(w, http.StatusBadRequest, map[string]string{"error": "malformed payload"})
		return
	}
	eventType, ok := razorpayEventTypes[envelope.Event]
	if !ok {
		ignore(w, r, GatewayRazorpay, envelope.Event)
		return
	}
	entity, reference := envelope.reference()
	if reference == "" {
		respond(w, http.StatusBadRequest, map[string]string{"error": "malformed payload"})
		return
	}
	apply(w, r, h.applier, services.GatewayEvent{
		Gateway:   GatewayRazorpay,
		Reference: reference,
		Type:      eventType,
		Amount:    entity.Amount,
		Payload:   string(body),
	})
}
