package stream

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/jany-pan/packwise/internal/metrics"
)

const (
	channelPrefix  = "trip:"
	channelSuffix  = ":updates"
	channelPattern = channelPrefix + "*" + channelSuffix
	sendBuffer     = 64
)

// Hub fans trip documents out to websocket subscribers. With a Redis client
// it also mirrors every broadcast to the other API instances.
type Hub struct {
	redis   *redis.Client
	pubsub  *redis.PubSub
	origin  string
	log     zerolog.Logger
	metrics *metrics.Sync
	clients map[string]map[*Client]struct{}
	mu      sync.RWMutex
}

type Client struct {
	TripID string
	Send   chan []byte
}

type Option func(*Hub)

func WithLogger(log zerolog.Logger) Option {
	return func(h *Hub) { h.log = log }
}

func WithMetrics(m *metrics.Sync) Option {
	return func(h *Hub) { h.metrics = m }
}

// envelope is what travels over Redis; origin lets a hub skip its own echo.
type envelope struct {
	Origin  string `json:"origin"`
	Payload string `json:"payload"`
}

func NewHub(redisClient *redis.Client, opts ...Option) *Hub {
	h := &Hub{
		redis:   redisClient,
		origin:  uuid.NewString(),
		log:     zerolog.Nop(),
		clients: map[string]map[*Client]struct{}{},
	}
	for _, opt := range opts {
		opt(h)
	}

	if redisClient != nil {
		h.subscribeRedis()
	}
	return h
}

func (h *Hub) Register(tripID string) *Client {
	client := &Client{
		TripID: tripID,
		Send:   make(chan []byte, sendBuffer),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[tripID] == nil {
		h.clients[tripID] = map[*Client]struct{}{}
	}
	h.clients[tripID][client] = struct{}{}
	return client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	tripClients, ok := h.clients[client.TripID]
	if !ok {
		return
	}
	if _, registered := tripClients[client]; !registered {
		return
	}
	delete(tripClients, client)
	if len(tripClients) == 0 {
		delete(h.clients, client.TripID)
	}
	close(client.Send)
}

// Subscribers reports how many local clients watch a trip.
func (h *Hub) Subscribers(tripID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[tripID])
}

// Broadcast delivers payload to every local subscriber of tripID and
// publishes it for the other instances.
func (h *Hub) Broadcast(tripID string, payload []byte) {
	h.deliver(tripID, payload)
	h.metrics.Broadcast()

	if h.redis == nil {
		return
	}
	msg, err := json.Marshal(envelope{Origin: h.origin, Payload: string(payload)})
	if err != nil {
		h.log.Error().Err(err).Str("trip_id", tripID).Msg("encode broadcast")
		return
	}
	if err := h.redis.Publish(context.Background(), redisChannel(tripID), msg).Err(); err != nil {
		h.log.Warn().Err(err).Str("trip_id", tripID).Msg("redis publish failed")
	}
}

// Close stops the Redis subscription. Local clients stay registered until
// their connections end.
func (h *Hub) Close() error {
	if h.pubsub == nil {
		return nil
	}
	return h.pubsub.Close()
}

func (h *Hub) deliver(tripID string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients[tripID] {
		select {
		case client.Send <- payload:
		default:
			h.log.Debug().Str("trip_id", tripID).Msg("subscriber buffer full, dropping update")
		}
	}
}

func (h *Hub) subscribeRedis() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	pubsub := h.redis.PSubscribe(ctx, channelPattern)
	if _, err := pubsub.Receive(ctx); err != nil {
		h.log.Warn().Err(err).Msg("redis subscribe failed, cross-instance push disabled")
		_ = pubsub.Close()
		return
	}
	h.pubsub = pubsub

	go func() {
		for msg := range pubsub.Channel() {
			h.handleRedis(msg.Channel, msg.Payload)
		}
	}()
}

func (h *Hub) handleRedis(channel, raw string) {
	tripID := tripIDFromChannel(channel)
	if tripID == "" {
		return
	}
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil || env.Origin == "" {
		// foreign publisher, forward as is
		h.deliver(tripID, []byte(raw))
		return
	}
	if env.Origin == h.origin {
		return
	}
	h.deliver(tripID, []byte(env.Payload))
}

func redisChannel(tripID string) string {
	return channelPrefix + tripID + channelSuffix
}

func tripIDFromChannel(ch string) string {
	if !strings.HasPrefix(ch, channelPrefix) || !strings.HasSuffix(ch, channelSuffix) {
		return ""
	}
	if len(ch) <= len(channelPrefix)+len(channelSuffix) {
		return ""
	}
	return ch[len(channelPrefix) : len(ch)-len(channelSuffix)]
}
