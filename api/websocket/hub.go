package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"cosmossdk.io/log"
	"github.com/google/uuid"

	"github.com/openalpha/sharepool/api/middleware"
	"github.com/openalpha/sharepool/indexer"
	"github.com/openalpha/sharepool/metrics"
	"github.com/openalpha/sharepool/x/pool/types"
)

// Channel names
const (
	ChannelEvents        = "events"
	ChannelPoolPrefix    = "pool:"
	ChannelAccountPrefix = "account:"
)

// PoolChannel returns the channel carrying events of one pool
func PoolChannel(poolID uint64) string {
	return ChannelPoolPrefix + strconv.FormatUint(poolID, 10)
}

// AccountChannel returns the channel carrying events that involve an account
func AccountChannel(address string) string {
	return ChannelAccountPrefix + address
}

// ValidChannel reports whether clients may subscribe to channel
func ValidChannel(channel string) bool {
	switch {
	case channel == ChannelEvents:
		return true
	case strings.HasPrefix(channel, ChannelPoolPrefix):
		id, err := strconv.ParseUint(strings.TrimPrefix(channel, ChannelPoolPrefix), 10, 64)
		return err == nil && id > 0
	case strings.HasPrefix(channel, ChannelAccountPrefix):
		return len(channel) > len(ChannelAccountPrefix)
	}
	return false
}

// Hub maintains active clients and fans ledger events out to channels
type Hub struct {
	clients  map[*Client]bool
	channels map[string]map[*Client]bool // channel -> clients
	perIP    map[string]int

	register    chan *Client
	unregister  chan *Client
	subscribe   chan *SubscriptionRequest
	unsubscribe chan *SubscriptionRequest
	done        chan struct{}

	mu sync.RWMutex

	config  *HubConfig
	logger  log.Logger
	metrics *metrics.Collector
}

// HubConfig contains hub configuration
type HubConfig struct {
	MaxClientsPerIP  int
	MaxSubscriptions int
	MessageRateLimit int // messages per second per client
	AllowedOrigins   []string
}

// DefaultHubConfig returns default hub configuration
func DefaultHubConfig() *HubConfig {
	return &HubConfig{
		MaxClientsPerIP:  10,
		MaxSubscriptions: 50,
		MessageRateLimit: 20,
	}
}

// SubscriptionRequest asks the hub to add or drop a client from a channel
type SubscriptionRequest struct {
	Client  *Client
	Channel string
}

// WSMessage is the envelope of every server message
type WSMessage struct {
	Type    string      `json:"type"`
	Channel string      `json:"channel,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// NewHub creates a hub. collector may be nil.
func NewHub(config *HubConfig, logger log.Logger, collector *metrics.Collector) *Hub {
	if config == nil {
		config = DefaultHubConfig()
	}
	return &Hub{
		clients:     make(map[*Client]bool),
		channels:    make(map[string]map[*Client]bool),
		perIP:       make(map[string]int),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		subscribe:   make(chan *SubscriptionRequest, 256),
		unsubscribe: make(chan *SubscriptionRequest, 256),
		done:        make(chan struct{}),
		config:      config,
		logger:      logger.With("module", "websocket"),
		metrics:     collector,
	}
}

// Run processes hub requests until ctx is done, then disconnects every client
func (h *Hub) Run(ctx context.Context) {
	defer h.shutdown()
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case req := <-h.subscribe:
			h.handleSubscription(req)

		case req := <-h.unsubscribe:
			h.handleUnsubscription(req)

		case <-ctx.Done():
			return
		}
	}
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	close(h.done)
	for client := range h.clients {
		close(client.send)
		if h.metrics != nil {
			h.metrics.RecordWSConnection(-1)
		}
	}
	h.clients = make(map[*Client]bool)
	h.channels = make(map[string]map[*Client]bool)
	h.perIP = make(map[string]int)
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client] = true
	h.perIP[client.ip]++
	if h.metrics != nil {
		h.metrics.RecordWSConnection(1)
	}
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)

	for channel, clients := range h.channels {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.channels, channel)
		}
	}

	h.perIP[client.ip]--
	if h.perIP[client.ip] <= 0 {
		delete(h.perIP, client.ip)
	}

	close(client.send)
	if h.metrics != nil {
		h.metrics.RecordWSConnection(-1)
	}
}

func (h *Hub) handleSubscription(req *SubscriptionRequest) {
	h.mu.Lock()
	if _, ok := h.clients[req.Client]; !ok {
		h.mu.Unlock()
		return
	}
	if _, ok := h.channels[req.Channel]; !ok {
		h.channels[req.Channel] = make(map[*Client]bool)
	}
	h.channels[req.Channel][req.Client] = true
	h.mu.Unlock()

	req.Client.sendMessage(&WSMessage{Type: "subscribed", Channel: req.Channel})
}

func (h *Hub) handleUnsubscription(req *SubscriptionRequest) {
	h.mu.Lock()
	if _, ok := h.clients[req.Client]; !ok {
		h.mu.Unlock()
		return
	}
	if clients, ok := h.channels[req.Channel]; ok {
		delete(clients, req.Client)
		if len(clients) == 0 {
			delete(h.channels, req.Channel)
		}
	}
	h.mu.Unlock()

	req.Client.sendMessage(&WSMessage{Type: "unsubscribed", Channel: req.Channel})
}

// BroadcastToChannel sends message to every client subscribed to channel.
// Slow clients whose buffers are full miss the message.
func (h *Hub) BroadcastToChannel(channel string, message interface{}) int {
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("failed to encode broadcast", "channel", channel, "error", err)
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	sent := 0
	for client := range h.channels[channel] {
		select {
		case client.send <- data:
			sent++
		default:
		}
	}
	if sent > 0 && h.metrics != nil {
		h.metrics.RecordWSMessage(channelKind(channel))
	}
	return sent
}

// Consume pushes a ledger event to the events channel, the pool channel and
// the channel of every account the event names.
func (h *Hub) Consume(_ context.Context, ev indexer.Event) error {
	channels := []string{ChannelEvents, PoolChannel(ev.PoolID)}
	seen := make(map[string]bool)
	for _, key := range []string{
		types.AttributeKeyCreator,
		types.AttributeKeyDonor,
		types.AttributeKeyMember,
		types.AttributeKeyRecipient,
		types.AttributeKeyDeactivatedBy,
	} {
		if addr := ev.Attr(key); addr != "" && !seen[addr] {
			seen[addr] = true
			channels = append(channels, AccountChannel(addr))
		}
	}

	for _, channel := range channels {
		h.BroadcastToChannel(channel, &WSMessage{
			Type:    ev.Type,
			Channel: channel,
			Data:    ev,
		})
	}
	return nil
}

func channelKind(channel string) string {
	if i := strings.IndexByte(channel, ':'); i >= 0 {
		return channel[:i]
	}
	return channel
}

// GetClientCount returns the number of connected clients
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// GetChannelClientCount returns the number of clients in a channel
func (h *Hub) GetChannelClientCount(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}

func (h *Hub) ipCount(ip string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.perIP[ip]
}

// ServeWS upgrades the request and attaches a new client
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	ip := middleware.ClientIP(r)
	if h.config.MaxClientsPerIP > 0 && h.ipCount(ip) >= h.config.MaxClientsPerIP {
		http.Error(w, "too many connections from this IP", http.StatusTooManyRequests)
		return
	}

	conn, err := h.upgrader().Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := NewClient(h, conn, uuid.New().String(), ip)
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
