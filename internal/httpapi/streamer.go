package httpapi

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/quilan1/ffxiv-market-query/internal/catalog"
	"github.com/quilan1/ffxiv-market-query/internal/market"
	"github.com/quilan1/ffxiv-market-query/internal/metrics"
	"github.com/quilan1/ffxiv-market-query/internal/processor"
	"github.com/quilan1/ffxiv-market-query/internal/signal"
)

// defaultStaleTimeout bounds how long the Streamer may go without sending
// a Status frame while fetches are still outstanding; it is the client's
// liveness signal, independent of packet delivery. NewStreamer sets
// Streamer.StaleTimeout to this value by default; tests can shorten it to
// observe the boundary without a real 10s wait.
const defaultStaleTimeout = 10 * time.Second

// minCoalesceWait is the inner poll granularity used to coalesce bursts
// of state-receiver updates before re-evaluating the outbound frames.
const minCoalesceWait = 10 * time.Millisecond

const defaultRetainNumDays = 7.0

// CatalogResolver resolves a filter query into matching items and the
// full set of item ids (including recipe inputs) that must be priced.
type CatalogResolver interface {
	AllFromFilters(ctx context.Context, query string) (topIDs, allIDs []uint32, items []catalog.ItemInfo, err error)
}

// Streamer drives one WebSocket connection end to end: resolving the
// client's filter query, constructing a market Handle, and multiplexing
// packet completions with periodic status frames until the request
// finishes.
type Streamer struct {
	Catalog      CatalogResolver
	Processor    *processor.Processor
	MaxActive    int
	BaseURL      string
	GetFactory   market.HTTPGetFactory
	Limiter      *ConnLimiter
	Logger       *zap.Logger
	StaleTimeout time.Duration

	upgrader websocket.Upgrader
}

// NewStreamer builds a Streamer with an origin-checking upgrader
// suitable for a browser-facing dashboard.
func NewStreamer(catalogResolver CatalogResolver, proc *processor.Processor, maxActive int, baseURL string, getFactory market.HTTPGetFactory, limiter *ConnLimiter, logger *zap.Logger, allowedOrigins []string) *Streamer {
	originSet := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		originSet[o] = true
	}
	return &Streamer{
		Catalog:      catalogResolver,
		Processor:    proc,
		MaxActive:    maxActive,
		BaseURL:      baseURL,
		GetFactory:   getFactory,
		Limiter:      limiter,
		Logger:       logger,
		StaleTimeout: defaultStaleTimeout,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: 10 * time.Second,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" || len(originSet) == 0 {
					return true
				}
				return originSet[origin]
			},
		},
	}
}

type clientRequest struct {
	Query         string   `json:"query"`
	PurchaseFrom  string   `json:"purchaseFrom"`
	SellTo        string   `json:"sellTo"`
	RetainNumDays *float32 `json:"retainNumDays,omitempty"`
	IsCompressed  bool     `json:"isCompressed,omitempty"`
}

type recipeDetailFrame struct {
	Inputs []catalog.Ingredient `json:"inputs"`
	Output catalog.Ingredient   `json:"output"`
	Level  uint32               `json:"level"`
}

type recipeItemFrame struct {
	ItemID uint32             `json:"itemId"`
	Name   string             `json:"name"`
	Recipe *recipeDetailFrame `json:"recipe,omitempty"`
}

type recipeFrame struct {
	TopIDs   []uint32                   `json:"topIds"`
	ItemInfo map[string]recipeItemFrame `json:"itemInfo"`
}

type successFrame struct {
	Listings market.ListingsMap `json:"listings"`
	History  market.ListingsMap `json:"history"`
}

type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// ServeHTTP upgrades the request to a WebSocket and drives one logical
// request's worth of the protocol: filters payload in, recipe + packet +
// status frames out, terminal Done frame, Close frame on fatal error.
func (s *Streamer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)
	if !s.Limiter.Acquire(ip) {
		metrics.WSConnectionsRejectedTotal.Inc()
		http.Error(w, "too many concurrent streams", http.StatusTooManyRequests)
		return
	}
	defer s.Limiter.Release(ip)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		if s.Logger != nil {
			s.Logger.Warn("websocket upgrade failed", zap.Error(err), zap.String("ip", ip))
		}
		return
	}
	defer conn.Close()

	metrics.WSConnectionsActive.Inc()
	defer metrics.WSConnectionsActive.Dec()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if err := s.run(ctx, cancel, conn); err != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, err.Error()),
			time.Now().Add(5*time.Second))
	}
}

func (s *Streamer) run(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn) error {
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("read filters payload: %w", err)
	}

	// Watch for the client closing its side only once the filters payload
	// has been read, so that no two goroutines read the connection at once.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	var req clientRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		if s.Logger != nil {
			s.Logger.Warn("malformed filters payload", zap.Error(err))
		}
		return fmt.Errorf("malformed filters payload: %w", err)
	}

	retainNumDays := float32(defaultRetainNumDays)
	if req.RetainNumDays != nil {
		retainNumDays = *req.RetainNumDays
	}

	topIDs, allIDs, items, err := s.Catalog.AllFromFilters(ctx, req.Query)
	if err != nil {
		if s.Logger != nil {
			s.Logger.Warn("catalog lookup failed", zap.Error(err), zap.String("query", req.Query))
		}
		return fmt.Errorf("resolve query: %w", err)
	}

	if err := s.sendFrame(conn, "recipe", buildRecipeFrame(topIDs, items), req.IsCompressed); err != nil {
		return err
	}

	worlds := []string{req.PurchaseFrom}
	if req.SellTo != "" && req.SellTo != req.PurchaseFrom {
		worlds = append(worlds, req.SellTo)
	}

	h := market.NewHandle(ctx, s.Processor, s.MaxActive, allIDs, worlds, retainNumDays, s.BaseURL, s.GetFactory)
	defer h.Close()

	if s.Logger != nil {
		s.Logger.Info("request started", zap.String("requestId", h.UUID()), zap.Int("itemCount", len(allIDs)))
	}

	recvs := h.Status().Signals(ctx)

	packetsCh := make(chan market.PacketResult)
	go func() {
		defer close(packetsCh)
		for {
			p, ok := h.Next(ctx)
			if !ok {
				return
			}
			select {
			case packetsCh <- p:
			case <-ctx.Done():
				return
			}
		}
	}()

	if err := s.driveLoop(ctx, conn, h, recvs, packetsCh, req.IsCompressed); err != nil {
		if s.Logger != nil {
			s.Logger.Warn("request ended with error", zap.String("requestId", h.UUID()), zap.Error(err))
		}
		return err
	}

	return s.sendFrame(conn, "done", struct{}{}, req.IsCompressed)
}

func (s *Streamer) driveLoop(
	ctx context.Context,
	conn *websocket.Conn,
	h *market.Handle,
	recvs []*signal.Receiver[market.RequestState],
	packetsCh <-chan market.PacketResult,
	compressed bool,
) error {
	ticker := time.NewTicker(minCoalesceWait)
	defer ticker.Stop()

	lastEmit := time.Now()
	packetsDone := false
	active := make([]bool, len(recvs))
	for i := range active {
		active[i] = true
	}

	for {
		anyActive := false
		for _, a := range active {
			if a {
				anyActive = true
				break
			}
		}
		if packetsDone && !anyActive {
			return nil
		}

		select {
		case <-ctx.Done():
			return nil

		case p, ok := <-packetsCh:
			if !ok {
				// Each packet waits for both of its workers, so a drained
				// stream means every worker has finished, including one whose
				// Finished value was set before its receiver subscribed.
				packetsDone = true
				for i := range active {
					active[i] = false
				}
				continue
			}
			if p.Failed {
				if err := s.sendFrame(conn, "failure", p.IDs, compressed); err != nil {
					return err
				}
			} else {
				if err := s.sendFrame(conn, "success", successFrame{Listings: p.Listings, History: p.History}, compressed); err != nil {
					return err
				}
			}

		case <-ticker.C:
			for i, recv := range recvs {
				if !active[i] {
					continue
				}
				select {
				case v := <-recv.C():
					if v.Kind == market.StateFinished {
						active[i] = false
					}
				default:
				}
			}

			if time.Since(lastEmit) >= s.StaleTimeout {
				if err := s.sendFrame(conn, "status", buildStatusFrame(h.Status().Values()), compressed); err != nil {
					return err
				}
				lastEmit = time.Now()
			}
		}
	}
}

func buildRecipeFrame(topIDs []uint32, items []catalog.ItemInfo) recipeFrame {
	frame := recipeFrame{TopIDs: topIDs, ItemInfo: make(map[string]recipeItemFrame, len(items))}
	for _, it := range items {
		entry := recipeItemFrame{ItemID: it.ItemID, Name: it.Name}
		if it.Recipe != nil {
			entry.Recipe = &recipeDetailFrame{
				Inputs: it.Recipe.Inputs,
				Output: it.Recipe.Output,
				Level:  it.Recipe.Level,
			}
		}
		frame.ItemInfo[strconv.FormatUint(uint64(it.ItemID), 10)] = entry
	}
	return frame
}

func buildStatusFrame(status market.Status) []any {
	states := make([]any, len(status.Processing))
	for i, fs := range status.Processing {
		switch fs.Kind {
		case market.FetchActive:
			states[i] = "active"
		case market.FetchWarn:
			states[i] = "warn"
		case market.FetchFinished:
			states[i] = map[string]bool{"finished": fs.Success}
		case market.FetchQueuedKind:
			states[i] = map[string]int32{"queued": fs.Position}
		}
	}
	return states
}

func (s *Streamer) sendFrame(conn *websocket.Conn, frameType string, data any, compressed bool) error {
	payload, err := json.Marshal(envelope{Type: frameType, Data: data})
	if err != nil {
		return fmt.Errorf("marshal %s frame: %w", frameType, err)
	}

	if !compressed {
		return conn.WriteMessage(websocket.TextMessage, payload)
	}

	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write(payload); err != nil {
		return fmt.Errorf("gzip %s frame: %w", frameType, err)
	}
	if err := gw.Close(); err != nil {
		return fmt.Errorf("gzip %s frame: %w", frameType, err)
	}
	return conn.WriteMessage(websocket.BinaryMessage, buf.Bytes())
}
