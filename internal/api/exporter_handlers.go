package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/onnwee/tradematch/internal/feedback"
	"github.com/onnwee/tradematch/internal/matching"
	"github.com/onnwee/tradematch/internal/middleware"
	"github.com/onnwee/tradematch/internal/trade"
	"github.com/onnwee/tradematch/internal/validate"
)

// maxSwipeBodyBytes caps the swipe request body.
const maxSwipeBodyBytes = 64 << 10

// WebSocket keepalive. The server pings every wsPingPeriod and drops clients that have
// not answered within wsPongWait.
const (
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 54 * time.Second
	wsPingWait   = 10 * time.Second
)

// Catalog resolves exporters and buyers by ID.
type Catalog interface {
	Exporter(id string) (trade.Exporter, bool)
	Buyer(id string) (trade.Buyer, bool)
}

// SwipeEngine records swipes and reads pair feedback.
type SwipeEngine interface {
	ProcessSwipe(ctx context.Context, exporterID string, buyer trade.Buyer, dir feedback.Direction) (feedback.SwipeResult, error)
	PairFactors(ctx context.Context, exporterID string, buyer trade.Buyer) (feedback.SwipeState, feedback.Factors, error)
	Events(ctx context.Context, exporterID string) ([]feedback.SwipeEvent, error)
}

// DeckRanker ranks the catalog for one exporter.
type DeckRanker interface {
	RankExporter(ctx context.Context, exporterID string) (matching.Deck, error)
}

// DirtyTracker records exporters whose decks are stale.
type DirtyTracker interface {
	MarkDirty(exporterID string)
	IsDirty(exporterID string) bool
}

// DeckSubscriber fans refreshed decks out to WebSocket clients.
type DeckSubscriber interface {
	Subscribe(exporterID string, conn *websocket.Conn)
	Unsubscribe(conn *websocket.Conn)
}

// ExporterHandlersConfig wires ExporterHandlers. Catalog, Engine, Ranker and Decks
// are required; Dirty and Subscriber are optional.
type ExporterHandlersConfig struct {
	Catalog    Catalog
	Engine     SwipeEngine
	Ranker     DeckRanker
	Decks      matching.DeckStore
	Dirty      DirtyTracker
	Subscriber DeckSubscriber
	// MaxDeckAge re-ranks cached decks older than this, so read-time recovery shows up
	// without a new swipe. Zero serves cached decks until they are marked dirty.
	MaxDeckAge time.Duration
	// Now overrides the clock used to age cached decks.
	Now func() time.Time
	// CORS supplies the WebSocket origin policy.
	CORS   middleware.CORSConfig
	Logger *slog.Logger
}

// ExporterHandlers serves swipes, decks and swipe state for exporters.
type ExporterHandlers struct {
	catalog    Catalog
	engine     SwipeEngine
	ranker     DeckRanker
	decks      matching.DeckStore
	dirty      DirtyTracker
	subscriber DeckSubscriber
	maxDeckAge time.Duration
	now        func() time.Time
	upgrader   websocket.Upgrader
	logger     *slog.Logger
}

// NewExporterHandlers creates a new ExporterHandlers instance.
func NewExporterHandlers(cfg ExporterHandlersConfig) *ExporterHandlers {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &ExporterHandlers{
		catalog:    cfg.Catalog,
		engine:     cfg.Engine,
		ranker:     cfg.Ranker,
		decks:      cfg.Decks,
		dirty:      cfg.Dirty,
		subscriber: cfg.Subscriber,
		maxDeckAge: cfg.MaxDeckAge,
		now:        now,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     cfg.CORS.OriginChecker(),
		},
		logger: logger,
	}
}

// SwipeRequest is the body of POST /api/v1/swipes.
type SwipeRequest struct {
	ExporterID string `json:"exporter_id"`
	BuyerID    string `json:"buyer_id"`
	Direction  string `json:"direction"`
}

// SwipeResponse reports the pair after a swipe.
type SwipeResponse struct {
	EventID         string              `json:"event_id"`
	ExporterID      string              `json:"exporter_id"`
	BuyerID         string              `json:"buyer_id"`
	Direction       feedback.Direction  `json:"direction"`
	State           feedback.SwipeState `json:"state"`
	Factors         feedback.Factors    `json:"factors"`
	NewlySuppressed bool                `json:"newly_suppressed"`
}

// SwipeStateResponse is the stored state of a pair and its read-time factors.
type SwipeStateResponse struct {
	ExporterID string              `json:"exporter_id"`
	BuyerID    string              `json:"buyer_id"`
	State      feedback.SwipeState `json:"state"`
	Factors    feedback.Factors    `json:"factors"`
}

// SwipeListResponse is the exporter's swipe log.
type SwipeListResponse struct {
	ExporterID string                `json:"exporter_id"`
	Count      int                   `json:"count"`
	Swipes     []feedback.SwipeEvent `json:"swipes"`
}

// RecordSwipe handles POST /api/v1/swipes.
func (h *ExporterHandlers) RecordSwipe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req SwipeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSwipeBodyBytes)).Decode(&req); err != nil {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}
	exporterID, err := validate.RecordID(req.ExporterID)
	if err != nil {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "exporter_id: "+err.Error())
		return
	}
	buyerID, err := validate.RecordID(req.BuyerID)
	if err != nil {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "buyer_id: "+err.Error())
		return
	}
	req.ExporterID, req.BuyerID = exporterID, buyerID
	dir, err := feedback.ParseDirection(req.Direction)
	if err != nil {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeInvalidDirection, "direction must be 'left' or 'right'")
		return
	}

	if _, ok := h.catalog.Exporter(req.ExporterID); !ok {
		WriteError(w, ctx, http.StatusNotFound, ErrCodeExporterNotFound, "Exporter not found")
		return
	}
	buyer, ok := h.catalog.Buyer(req.BuyerID)
	if !ok {
		WriteError(w, ctx, http.StatusNotFound, ErrCodeBuyerNotFound, "Buyer not found")
		return
	}

	result, err := h.engine.ProcessSwipe(ctx, req.ExporterID, buyer, dir)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to record swipe",
			"exporter_id", req.ExporterID,
			"buyer_id", req.BuyerID,
			"error", err,
		)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to record swipe")
		return
	}
	if h.dirty != nil {
		h.dirty.MarkDirty(req.ExporterID)
	}

	state, factors, err := h.engine.PairFactors(ctx, req.ExporterID, buyer)
	if err != nil {
		// The swipe is persisted; report the post-swipe state without recovery applied.
		h.logger.WarnContext(ctx, "failed to read factors after swipe", "error", err)
		state = result.State
		factors = feedback.Factors{
			Penalty:    state.PenaltyFactor,
			Pattern:    1,
			Suppressed: state.Suppressed,
			LeftCount:  state.LeftCount,
			RightCount: state.RightCount,
		}
	}

	h.logger.InfoContext(ctx, "swipe recorded",
		"exporter_id", req.ExporterID,
		"buyer_id", req.BuyerID,
		"direction", string(dir),
		"penalty_factor", state.PenaltyFactor,
		"suppressed", state.Suppressed,
	)

	writeJSON(w, ctx, http.StatusOK, SwipeResponse{
		EventID:         result.Event.ID,
		ExporterID:      req.ExporterID,
		BuyerID:         req.BuyerID,
		Direction:       dir,
		State:           state,
		Factors:         factors,
		NewlySuppressed: result.NewlySuppressed,
	})
}

// ServeHTTP routes the /api/v1/exporters/ subtree:
//
//	GET /api/v1/exporters/{id}
//	GET /api/v1/exporters/{id}/deck?limit=N
//	GET /api/v1/exporters/{id}/deck/ws
//	GET /api/v1/exporters/{id}/swipes
//	GET /api/v1/exporters/{id}/buyers/{buyer_id}/swipe-state
func (h *ExporterHandlers) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	pathParts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/exporters/"), "/"), "/")
	if len(pathParts) == 0 || pathParts[0] == "" {
		WriteError(w, r.Context(), http.StatusNotFound, ErrCodeNotFound, "The requested resource was not found")
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	exporterID := pathParts[0]
	switch {
	case len(pathParts) == 1:
		h.GetExporter(w, r, exporterID)
	case len(pathParts) == 2 && pathParts[1] == "deck":
		h.GetDeck(w, r, exporterID)
	case len(pathParts) == 3 && pathParts[1] == "deck" && pathParts[2] == "ws":
		h.SubscribeDeck(w, r, exporterID)
	case len(pathParts) == 2 && pathParts[1] == "swipes":
		h.ListSwipes(w, r, exporterID)
	case len(pathParts) == 4 && pathParts[1] == "buyers" && pathParts[2] != "" && pathParts[3] == "swipe-state":
		h.GetSwipeState(w, r, exporterID, pathParts[2])
	default:
		WriteError(w, r.Context(), http.StatusNotFound, ErrCodeNotFound, "The requested resource was not found")
	}
}

// GetExporter returns the cleaned exporter record.
func (h *ExporterHandlers) GetExporter(w http.ResponseWriter, r *http.Request, exporterID string) {
	exp, ok := h.catalog.Exporter(exporterID)
	if !ok {
		WriteError(w, r.Context(), http.StatusNotFound, ErrCodeExporterNotFound, "Exporter not found")
		return
	}
	writeJSON(w, r.Context(), http.StatusOK, exp)
}

// fresh reports whether a cached deck is young enough to serve.
func (h *ExporterHandlers) fresh(deck matching.Deck) bool {
	return h.maxDeckAge <= 0 || h.now().Sub(deck.GeneratedAt) < h.maxDeckAge
}

// GetDeck returns the exporter's deck. A cached deck is served unless swipes have
// made it stale or it is older than the max deck age, in which case the deck is ranked
// on demand and cached.
func (h *ExporterHandlers) GetDeck(w http.ResponseWriter, r *http.Request, exporterID string) {
	ctx := r.Context()

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	if _, ok := h.catalog.Exporter(exporterID); !ok {
		WriteError(w, ctx, http.StatusNotFound, ErrCodeExporterNotFound, "Exporter not found")
		return
	}

	stale := h.dirty != nil && h.dirty.IsDirty(exporterID)
	if !stale {
		deck, ok, err := h.decks.Get(ctx, exporterID)
		if err != nil {
			h.logger.WarnContext(ctx, "deck cache read failed", "exporter_id", exporterID, "error", err)
		} else if ok && h.fresh(deck) {
			w.Header().Set("X-Deck-Source", "cache")
			writeJSON(w, ctx, http.StatusOK, deck.Limit(limit))
			return
		}
	}

	start := time.Now()
	deck, err := h.ranker.RankExporter(ctx, exporterID)
	if err != nil {
		if errors.Is(err, matching.ErrUnknownExporter) {
			WriteError(w, ctx, http.StatusNotFound, ErrCodeExporterNotFound, "Exporter not found")
			return
		}
		h.logger.ErrorContext(ctx, "failed to rank exporter", "exporter_id", exporterID, "error", err)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to build deck")
		return
	}
	if err := h.decks.Put(ctx, deck); err != nil {
		h.logger.WarnContext(ctx, "failed to cache deck", "exporter_id", exporterID, "error", err)
	}

	h.logger.DebugContext(ctx, "deck ranked on demand",
		"exporter_id", exporterID,
		"matches", deck.TotalMatches,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	w.Header().Set("X-Deck-Source", "ranked")
	writeJSON(w, ctx, http.StatusOK, deck.Limit(limit))
}

// ListSwipes returns the exporter's swipe log, oldest first.
func (h *ExporterHandlers) ListSwipes(w http.ResponseWriter, r *http.Request, exporterID string) {
	ctx := r.Context()
	if _, ok := h.catalog.Exporter(exporterID); !ok {
		WriteError(w, ctx, http.StatusNotFound, ErrCodeExporterNotFound, "Exporter not found")
		return
	}

	events, err := h.engine.Events(ctx, exporterID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list swipes", "exporter_id", exporterID, "error", err)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to list swipes")
		return
	}
	if events == nil {
		events = []feedback.SwipeEvent{}
	}
	writeJSON(w, ctx, http.StatusOK, SwipeListResponse{
		ExporterID: exporterID,
		Count:      len(events),
		Swipes:     events,
	})
}

// GetSwipeState returns the stored pair state with its read-time factors.
func (h *ExporterHandlers) GetSwipeState(w http.ResponseWriter, r *http.Request, exporterID, buyerID string) {
	ctx := r.Context()
	if _, ok := h.catalog.Exporter(exporterID); !ok {
		WriteError(w, ctx, http.StatusNotFound, ErrCodeExporterNotFound, "Exporter not found")
		return
	}
	buyer, ok := h.catalog.Buyer(buyerID)
	if !ok {
		WriteError(w, ctx, http.StatusNotFound, ErrCodeBuyerNotFound, "Buyer not found")
		return
	}

	state, factors, err := h.engine.PairFactors(ctx, exporterID, buyer)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to load swipe state",
			"exporter_id", exporterID,
			"buyer_id", buyerID,
			"error", err,
		)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to load swipe state")
		return
	}
	writeJSON(w, ctx, http.StatusOK, SwipeStateResponse{
		ExporterID: exporterID,
		BuyerID:    buyerID,
		State:      state,
		Factors:    factors,
	})
}

// SubscribeDeck upgrades to a WebSocket that receives the exporter's refreshed decks.
func (h *ExporterHandlers) SubscribeDeck(w http.ResponseWriter, r *http.Request, exporterID string) {
	ctx := r.Context()
	if h.subscriber == nil {
		WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Deck streaming is not enabled")
		return
	}
	if _, ok := h.catalog.Exporter(exporterID); !ok {
		WriteError(w, ctx, http.StatusNotFound, ErrCodeExporterNotFound, "Exporter not found")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error response
		h.logger.WarnContext(ctx, "failed to upgrade websocket connection",
			"error", err,
			"exporter_id", exporterID,
		)
		return
	}

	h.subscriber.Subscribe(exporterID, conn)
	requestID := middleware.GetRequestID(ctx)
	h.logger.InfoContext(ctx, "websocket client subscribed to deck updates",
		"exporter_id", exporterID,
		"request_id", requestID,
	)

	defer func() {
		h.subscriber.Unsubscribe(conn)
		_ = conn.Close()
		h.logger.InfoContext(ctx, "websocket client unsubscribed",
			"exporter_id", exporterID,
			"request_id", requestID,
		)
	}()

	// The server's request deadlines still apply to the hijacked connection
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(wsPingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				// WriteControl may run concurrently with the broadcaster's writes
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsPingWait)); err != nil {
					return
				}
			}
		}
	}()

	// Clients don't send messages; reading detects disconnection
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.WarnContext(ctx, "websocket connection closed unexpectedly",
					"error", err,
					"exporter_id", exporterID,
				)
			}
			return
		}
	}
}
