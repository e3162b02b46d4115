// Package webhook receives payment gateway callbacks, verifies their
// signatures and hands them to the reconciler as gateway events.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"escrowledger/internal/logging"
	"escrowledger/internal/services"
)

// Stripe recommends rejecting bodies above 64KiB.
const maxBodyBytes = 65536

type Applier interface {
	ApplyGatewayEvent(ctx context.Context, ev services.GatewayEvent) (services.GatewayResult, error)
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	return io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
}

func respond(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// apply hands ev to the reconciler and acknowledges everything a retry could
// not change. Only infrastructure failures return 5xx.
func apply(w http.ResponseWriter, r *http.Request, applier Applier, ev services.GatewayEvent) {
	ctx := r.Context()
	log := logging.L(ctx).With("gateway", ev.Gateway, "reference", ev.Reference, "type", ev.Type)
	result, err := applier.ApplyGatewayEvent(ctx, ev)
	switch {
	case err == nil:
		respond(w, http.StatusOK, map[string]any{"outcome": result.Outcome})
	case errors.Is(err, services.ErrUnknownReference):
		log.Warn("gateway event for unknown reference")
		respond(w, http.StatusOK, map[string]any{"outcome": services.OutcomeUnknownReference})
	case services.IsRejection(err):
		log.Warn("gateway event rejected", "kind", services.Kind(err), "error", err)
		respond(w, http.StatusOK, map[string]any{"outcome": services.OutcomeRejected, "error": services.Kind(err)})
	default:
		log.Error("gateway event failed", "error", err)
		respond(w, http.StatusInternalServerError, map[string]string{"error": "unable to apply event"})
	}
}

func ignore(w http.ResponseWriter, r *http.Request, gateway, eventType string) {
	logging.L(r.Context()).Debug("ignoring gateway event", "gateway", gateway, "type", eventType)
	respond(w, http.StatusOK, map[string]string{"outcome": "IGNORED"})
}
