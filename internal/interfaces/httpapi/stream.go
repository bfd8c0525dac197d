package httpapi

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	sonic "github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/riskibarqy/fantasy-livefeed/internal/domain/impact"
	"github.com/riskibarqy/fantasy-livefeed/internal/domain/roster"
	"github.com/riskibarqy/fantasy-livefeed/internal/observability"
	"github.com/riskibarqy/fantasy-livefeed/internal/platform/logging"
)

const (
	streamWriteWait      = 10 * time.Second
	streamPongWait       = 60 * time.Second
	streamPingPeriod     = (streamPongWait * 9) / 10
	streamMaxMessageSize = 512
	streamSendBuffer     = 64
)

type streamMessage struct {
	Type string               `json:"type"`
	Data impact.FantasyImpact `json:"data"`
}

type streamClient struct {
	id          string
	leagueID    string
	platform    roster.Platform
	conn        *websocket.Conn
	send        chan []byte
	connectedAt time.Time
	closeOnce   sync.Once
}

func (c *streamClient) close() {
	c.closeOnce.Do(func() { close(c.send) })
}

// StreamHub fans attributed impacts out to websocket clients. Clients may
// narrow the feed with ?league_id= and ?platform=. A client whose buffer is
// full misses messages rather than slowing the pipeline.
type StreamHub struct {
	mu       sync.RWMutex
	clients  map[string]*streamClient
	upgrader websocket.Upgrader
	logger   *logging.Logger
	metrics  *observability.Metrics
}

func NewStreamHub(allowedOrigins []string, logger *logging.Logger, metrics *observability.Metrics) *StreamHub {
	if logger == nil {
		logger = logging.Default()
	}
	h := &StreamHub{
		clients: make(map[string]*streamClient),
		logger:  logger,
		metrics: metrics,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowedOrigins []string) func(r *http.Request) bool {
	allowAll := false
	allowMap := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		candidate := strings.TrimSpace(origin)
		if candidate == "*" {
			allowAll = true
		}
		if candidate != "" {
			allowMap[candidate] = struct{}{}
		}
	}
	return func(r *http.Request) bool {
		origin := strings.TrimSpace(r.Header.Get("Origin"))
		if origin == "" || allowAll {
			return true
		}
		_, ok := allowMap[origin]
		return ok
	}
}

func (h *StreamHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	platform, err := parsePlatformQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WarnContext(r.Context(), "websocket upgrade failed", "error", err)
		return
	}

	c := &streamClient{
		id:          uuid.NewString(),
		leagueID:    strings.TrimSpace(r.URL.Query().Get("league_id")),
		platform:    platform,
		conn:        conn,
		send:        make(chan []byte, streamSendBuffer),
		connectedAt: time.Now(),
	}
	h.register(c)
	h.logger.InfoContext(r.Context(), "stream client connected", "client_id", c.id, "league_id", c.leagueID)

	go h.writePump(c)
	go h.readPump(c)
}

// Publish has the impact subscriber signature.
func (h *StreamHub) Publish(ctx context.Context, impacts []impact.FantasyImpact) error {
	if len(impacts) == 0 {
		return nil
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.clients) == 0 {
		return nil
	}

	for _, in := range impacts {
		payload, err := sonic.Marshal(streamMessage{Type: "impact", Data: in})
		if err != nil {
			return err
		}
		for _, c := range h.clients {
			if (c.leagueID != "" && c.leagueID != in.LeagueID) || (c.platform != "" && c.platform != in.Platform) {
				continue
			}
			select {
			case c.send <- payload:
			default:
				h.logger.WarnContext(ctx, "stream client buffer full, message dropped", "client_id", c.id)
			}
		}
	}
	return nil
}

func (h *StreamHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *StreamHub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[string]*streamClient)
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
	h.metrics.SetStreamClients(0)
}

func (h *StreamHub) register(c *streamClient) {
	h.mu.Lock()
	h.clients[c.id] = c
	count := len(h.clients)
	h.mu.Unlock()
	h.metrics.SetStreamClients(count)
}

func (h *StreamHub) unregister(c *streamClient) {
	h.mu.Lock()
	_, ok := h.clients[c.id]
	delete(h.clients, c.id)
	count := len(h.clients)
	h.mu.Unlock()

	if ok {
		c.close()
		h.metrics.SetStreamClients(count)
		h.logger.Info("stream client disconnected", "client_id", c.id, "connected_for", time.Since(c.connectedAt).String())
	}
}

// readPump only services control frames; clients do not send commands.
func (h *StreamHub) readPump(c *streamClient) {
	defer func() {
		h.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(streamMaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(streamPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn("stream client closed unexpectedly", "client_id", c.id, "error", err)
			}
			return
		}
	}
}

func (h *StreamHub) writePump(c *streamClient) {
	ticker := time.NewTicker(streamPingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				h.logger.Warn("stream write failed", "client_id", c.id, "error", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
