// Package notify pushes extraction updates to live clients.
package notify

import (
	"context"
	"log/slog"
	"sync"

	"github.com/dharsanguruparan/ReceiptDrop/internal/model"
	"github.com/dharsanguruparan/ReceiptDrop/internal/ports"
)

const EventExtractionUpdate = "extraction-update"

// Event is the wire envelope sent to clients.
type Event struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Conn is one live client connection. Send must not block.
type Conn interface {
	ID() string
	Send(ev Event) error
}

// Hub maps user ids to the connections subscribed to them. It is the only
// owner of that mapping; all mutation goes through its methods.
type Hub struct {
	mu    sync.RWMutex
	users map[string]map[string]Conn
	conns map[string]map[string]struct{}
	log   *slog.Logger
}

var _ ports.Notifier = (*Hub)(nil)

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		users: make(map[string]map[string]Conn),
		conns: make(map[string]map[string]struct{}),
		log:   logger,
	}
}

// Subscribe registers conn for userID's updates.
func (h *Hub) Subscribe(userID string, conn Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.users[userID]
	if !ok {
		set = make(map[string]Conn)
		h.users[userID] = set
	}
	set[conn.ID()] = conn

	owned, ok := h.conns[conn.ID()]
	if !ok {
		owned = make(map[string]struct{})
		h.conns[conn.ID()] = owned
	}
	owned[userID] = struct{}{}
}

// Unsubscribe removes one user registration of connID.
func (h *Hub) Unsubscribe(userID, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(userID, connID)
}

// Teardown removes connID from every user it was registered under.
func (h *Hub) Teardown(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for userID := range h.conns[connID] {
		h.removeLocked(userID, connID)
	}
	delete(h.conns, connID)
}

func (h *Hub) removeLocked(userID, connID string) {
	if set, ok := h.users[userID]; ok {
		delete(set, connID)
		if len(set) == 0 {
			delete(h.users, userID)
		}
	}
	if owned, ok := h.conns[connID]; ok {
		delete(owned, userID)
		if len(owned) == 0 {
			delete(h.conns, connID)
		}
	}
}

// Subscribers returns how many connections listen for userID.
func (h *Hub) Subscribers(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID])
}

// EmitUpdate sends e to every connection subscribed to its owner. Delivery
// is best effort and never blocks on a slow client.
func (h *Hub) EmitUpdate(_ context.Context, e *model.Extraction) {
	if e == nil {
		return
	}
	h.mu.RLock()
	targets := make([]Conn, 0, len(h.users[e.UserID]))
	for _, c := range h.users[e.UserID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		return
	}
	ev := Event{Event: EventExtractionUpdate, Data: e}
	for _, c := range targets {
		if err := c.Send(ev); err != nil {
			h.log.Debug("notify.send_failed", "conn_id", c.ID(), "user_id", e.UserID, "error", err)
		}
	}
}
