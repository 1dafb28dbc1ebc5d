package ws

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisHub is the multi-server hub: local connections in memory, missing
// users forwarded over Redis pub/sub so the instance that holds their
// connection delivers the notification.
type RedisHub struct {
	clients map[string]*UserClient
	mu      sync.RWMutex

	redisClient *redis.Client
	pubsub      *redis.PubSub
	serverID    string
	log         *zap.SugaredLogger

	Register   chan *UserClient
	Unregister chan *UserClient

	OnClientUnregister func(client *UserClient)
}

type redisEnvelope struct {
	FromServerID string `json:"fromServerId"`
	ToUserID     string `json:"toUserId"`
	Payload      []byte `json:"payload"`
}

func NewRedisHub(redisAddr, serverID string, log *zap.SugaredLogger) IHub {
	rdb := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	hub := &RedisHub{
		clients:     make(map[string]*UserClient),
		redisClient: rdb,
		serverID:    serverID,
		log:         log,
		Register:    make(chan *UserClient),
		Unregister:  make(chan *UserClient),
	}

	hub.pubsub = rdb.PSubscribe(context.Background(), "sync:*")

	return hub
}

func (h *RedisHub) Run() {
	go h.subscribeRedis()

	for {
		select {
		case client := <-h.Register:
			h.mu.Lock()
			if prev, ok := h.clients[client.UserId]; ok {
				close(prev.send)
			}
			h.clients[client.UserId] = client
			h.mu.Unlock()

			// Record where the user is connected so other instances can
			// skip publishing for users nobody holds.
			h.redisClient.Set(context.Background(), "user:"+client.UserId+":server", h.serverID, 0)
			h.log.Infow("client connected", "serverId", h.serverID, "userId", client.UserId)

		case client := <-h.Unregister:
			h.mu.Lock()
			if current, ok := h.clients[client.UserId]; ok && current == client {
				delete(h.clients, client.UserId)
				close(client.send)
				h.redisClient.Del(context.Background(), "user:"+client.UserId+":server")
				h.log.Infow("client disconnected", "serverId", h.serverID, "userId", client.UserId)
			}
			h.mu.Unlock()

			if h.OnClientUnregister != nil {
				h.OnClientUnregister(client)
			}
		}
	}
}

func (h *RedisHub) subscribeRedis() {
	ch := h.pubsub.Channel()
	h.log.Infow("redis subscriber started", "serverId", h.serverID)

	for msg := range ch {
		var envelope redisEnvelope
		if err := json.Unmarshal([]byte(msg.Payload), &envelope); err != nil {
			h.log.Warnw("bad redis envelope", "error", err)
			continue
		}
		if envelope.FromServerID == h.serverID {
			continue
		}

		h.mu.RLock()
		_, existsLocally := h.clients[envelope.ToUserID]
		h.mu.RUnlock()
		if !existsLocally {
			continue
		}

		h.deliverLocal(envelope.ToUserID, envelope.Payload)
	}
}

// SendToUser delivers locally when possible and otherwise publishes to
// Redis for whichever instance holds the user.
func (h *RedisHub) SendToUser(userId string, payload []byte) {
	h.mu.RLock()
	_, existsLocally := h.clients[userId]
	h.mu.RUnlock()

	if existsLocally {
		h.deliverLocal(userId, payload)
		return
	}
	h.publishToRedis(userId, payload)
}

func (h *RedisHub) deliverLocal(userId string, payload []byte) {
	h.mu.RLock()
	client, ok := h.clients[userId]
	h.mu.RUnlock()
	if !ok {
		return
	}
	select {
	case client.send <- payload:
	default:
		h.log.Warnw("dropping notification, client send buffer full", "userId", userId)
	}
}

func (h *RedisHub) publishToRedis(userId string, payload []byte) {
	envelope := redisEnvelope{
		FromServerID: h.serverID,
		ToUserID:     userId,
		Payload:      payload,
	}

	data, err := json.Marshal(envelope)
	if err != nil {
		h.log.Errorw("marshal redis envelope", "error", err)
		return
	}

	if err := h.redisClient.Publish(context.Background(), "sync:"+userId, data).Err(); err != nil {
		h.log.Errorw("publish to redis", "userId", userId, "error", err)
	}
}

func (h *RedisHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *RedisHub) RegisterClient(client *UserClient) {
	h.Register <- client
}

func (h *RedisHub) UnregisterClient(client *UserClient) {
	h.Unregister <- client
}

func (h *RedisHub) SetOnClientUnregister(callback func(client *UserClient)) {
	h.OnClientUnregister = callback
}
