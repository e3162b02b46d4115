// Package websocket streams committed wallet balances to their owners.
package websocket

import (
	"encoding/json"
	"sync"

	"escrowledger/internal/metrics"
)

// BalanceUpdate is pushed to a wallet owner after a committed fund movement.
type BalanceUpdate struct {
	WalletID  string `json:"wallet_id"`
	Available string `json:"available_balance"`
	Locked    string `json:"locked_escrow_funds"`
	Currency  string `json:"currency"`
}

type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
	}
}

func (h *Hub) Register(ownerID string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[ownerID] == nil {
		h.clients[ownerID] = make(map[*Client]struct{})
	}
	if _, ok := h.clients[ownerID][client]; ok {
		return
	}
	h.clients[ownerID][client] = struct{}{}
	metrics.ActiveWebSocketClients.Inc()
}

// Unregister is safe to call more than once for the same client.
func (h *Hub) Unregister(ownerID string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[ownerID][client]; !ok {
		return
	}
	delete(h.clients[ownerID], client)
	metrics.ActiveWebSocketClients.Dec()
	if len(h.clients[ownerID]) == 0 {
		delete(h.clients, ownerID)
	}
}

// Clients returns the number of connections registered for ownerID.
func (h *Hub) Clients(ownerID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[ownerID])
}

// BroadcastBalance drops the update for clients whose send buffer is full.
func (h *Hub) BroadcastBalance(ownerID string, update BalanceUpdate) {
	payload, _ := json.Marshal(update)
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[ownerID] {
		select {
		case client.send <- payload:
		default:
		}
	}
}
