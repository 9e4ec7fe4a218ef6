// Package ws publishes lifecycle events to observers and carries the
// registration channel of live apps. It is the only registrant of the core's
// event sink.
package ws

import (
	"net/http"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/webOS-ports/sam/internal/domain/lifecycle"
	"github.com/webOS-ports/sam/internal/infrastructure/logging"
	"github.com/webOS-ports/sam/internal/infrastructure/monitoring"
)

// Channel names observers may subscribe to.
const (
	ChannelRunning    = "running"
	ChannelLifeStatus = "getAppLifeStatus"
	ChannelLifeEvents = "getAppLifeEvents"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Same-device clients only; the bus has no remote peers
	},
}

type client struct {
	conn     *websocket.Conn
	writeMu  sync.Mutex // One writer at a time; preserves per-handle FIFO
	channels map[string]bool
}

func (c *client) send(payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// Hub fans lifecycle events out to subscribed observers.
type Hub struct {
	logger  *logging.Logger
	metrics *monitoring.Metrics

	mu      sync.Mutex
	clients map[*client]struct{}
}

// NewHub creates an empty hub.
func NewHub(logger *logging.Logger, metrics *monitoring.Metrics) *Hub {
	return &Hub{
		logger:  logger.Named("ws"),
		metrics: metrics,
		clients: make(map[*client]struct{}),
	}
}

// Subscribe upgrades the request and streams the requested channels until
// the peer goes away. Every event posted after the upgrade is delivered in
// post order.
func (h *Hub) Subscribe(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	channels := map[string]bool{}
	for _, name := range c.QueryArray("channels") {
		channels[name] = true
	}
	if len(channels) == 0 {
		channels[ChannelRunning] = true
	}

	cl := &client{conn: conn, channels: channels}
	h.mu.Lock()
	h.clients[cl] = struct{}{}
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.WSConnections.Inc()
	}

	// Reader only notices the close; observers never send.
	go func() {
		defer h.drop(cl)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *Hub) drop(cl *client) {
	h.mu.Lock()
	_, ok := h.clients[cl]
	delete(h.clients, cl)
	h.mu.Unlock()

	if ok {
		cl.conn.Close()
		if h.metrics != nil {
			h.metrics.WSConnections.Dec()
		}
	}
}

// PostRunning publishes the running list to "running" subscribers.
func (h *Hub) PostRunning(apps []map[string]any) {
	h.broadcast(ChannelRunning, map[string]any{
		"returnValue": true,
		"subscribed":  true,
		"running":     apps,
	})
}

// PostLifeStatus publishes one instance's status change.
func (h *Hub) PostLifeStatus(app *lifecycle.RunningApp) {
	payload := app.ToJSON()
	payload["returnValue"] = true
	payload["subscribed"] = true
	h.broadcast(ChannelLifeStatus, payload)
}

// PostLifeEvent publishes one instance's life event.
func (h *Hub) PostLifeEvent(app *lifecycle.RunningApp) {
	h.broadcast(ChannelLifeEvents, map[string]any{
		"returnValue": true,
		"subscribed":  true,
		"instanceId":  app.InstanceID(),
		"appId":       app.AppID(),
		"event":       app.LifeStatus().String(),
	})
}

func (h *Hub) broadcast(channel string, payload map[string]any) {
	data, err := sonic.Marshal(payload)
	if err != nil {
		h.logger.Warn("failed to marshal event", zap.String("channel", channel), zap.Error(err))
		return
	}
	if h.metrics != nil {
		h.metrics.EventsPosted.WithLabelValues(channel).Inc()
	}

	h.mu.Lock()
	targets := make([]*client, 0, len(h.clients))
	for cl := range h.clients {
		if cl.channels[channel] {
			targets = append(targets, cl)
		}
	}
	h.mu.Unlock()

	for _, cl := range targets {
		if err := cl.send(data); err != nil {
			h.drop(cl)
		}
	}
}

// connResponder adapts a websocket connection to the task responder
// interface so it can serve as a registration channel.
type connResponder struct {
	cl *client
}

func (r connResponder) Respond(payload map[string]any) error {
	data, err := sonic.Marshal(payload)
	if err != nil {
		return err
	}
	return r.cl.send(data)
}

// RegisterApp upgrades the connection into an app's registration channel.
// The query carries the app identity; the first frame the app receives is
// the "registered" event, and later relaunch events arrive on the same
// connection.
func (h *Hub) RegisterApp(orchestrator *lifecycle.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		req := lifecycle.Request{
			AppID:         c.Query("appId"),
			LaunchPointID: c.Query("launchPointId"),
			InstanceID:    c.Query("instanceId"),
			DisplayID:     -1,
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			h.logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		cl := &client{conn: conn, channels: map[string]bool{}}
		h.mu.Lock()
		h.clients[cl] = struct{}{}
		h.mu.Unlock()

		task := lifecycle.NewLunaTask(c.Request.Context(), req, connResponder{cl: cl})
		orchestrator.RegisterApp(task)

		go func() {
			defer h.drop(cl)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}
}
