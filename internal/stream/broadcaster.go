// Package stream pushes refreshed decks to WebSocket subscribers.
package stream

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/onnwee/tradematch/internal/matching"
)

// DefaultWriteTimeout bounds a single WebSocket write.
const DefaultWriteTimeout = 5 * time.Second

// EventTypeDeck tags deck refresh messages.
const EventTypeDeck = "deck"

// DeckEvent is the message sent to subscribers when an exporter's deck changes.
type DeckEvent struct {
	Type string        `json:"type"`
	Deck matching.Deck `json:"deck"`
}

// DeckBroadcaster manages WebSocket connections and broadcasts deck refreshes.
// Writes are serialized because a websocket.Conn supports a single concurrent writer.
type DeckBroadcaster struct {
	mu           sync.Mutex
	connections  map[string]map[*websocket.Conn]bool // exporterID -> connections
	writeTimeout time.Duration
	logger       *slog.Logger
	metrics      *Metrics
}

// NewDeckBroadcaster creates a broadcaster. logger and metrics may be nil.
func NewDeckBroadcaster(logger *slog.Logger, metrics *Metrics) *DeckBroadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &DeckBroadcaster{
		connections:  make(map[string]map[*websocket.Conn]bool),
		writeTimeout: DefaultWriteTimeout,
		logger:       logger,
		metrics:      metrics,
	}
}

// Subscribe registers a WebSocket connection for an exporter's deck.
func (b *DeckBroadcaster) Subscribe(exporterID string, conn *websocket.Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.connections[exporterID] == nil {
		b.connections[exporterID] = make(map[*websocket.Conn]bool)
	}
	b.connections[exporterID][conn] = true
	b.updateGauge()
}

// Unsubscribe removes a WebSocket connection from all exporters.
func (b *DeckBroadcaster) Unsubscribe(conn *websocket.Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for exporterID, conns := range b.connections {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(b.connections, exporterID)
		}
	}
	b.updateGauge()
}

// PublishDeck sends a deck to every subscriber of its exporter.
func (b *DeckBroadcaster) PublishDeck(deck matching.Deck) {
	b.mu.Lock()
	defer b.mu.Unlock()

	conns, exists := b.connections[deck.ExporterID]
	if !exists || len(conns) == 0 {
		return
	}

	// Serialize event once
	data, err := json.Marshal(DeckEvent{Type: EventTypeDeck, Deck: deck})
	if err != nil {
		b.logger.Error("failed to marshal deck event", "error", err)
		return
	}

	for conn := range conns {
		_ = conn.SetWriteDeadline(time.Now().Add(b.writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			b.logger.Warn("failed to send deck to websocket client",
				"error", err,
				"exporter_id", deck.ExporterID,
			)
			if b.metrics != nil {
				b.metrics.IncBroadcastFailures()
			}
			// Connection will be cleaned up when client disconnects
			continue
		}
		if b.metrics != nil {
			b.metrics.IncBroadcasts()
		}
	}
}

// ConnectionCount returns the number of active WebSocket connections for an exporter.
func (b *DeckBroadcaster) ConnectionCount(exporterID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.connections[exporterID])
}

// updateGauge must be called with mu held.
func (b *DeckBroadcaster) updateGauge() {
	if b.metrics == nil {
		return
	}
	total := 0
	for _, conns := range b.connections {
		total += len(conns)
	}
	b.metrics.SetSubscribers(total)
}
