package ws

import (
	"sync"

	"go.uber.org/zap"
)

type Hub struct {
	clients            map[string]*UserClient
	Register           chan *UserClient
	Unregister         chan *UserClient
	mu                 sync.RWMutex
	log                *zap.SugaredLogger
	OnClientUnregister func(client *UserClient)
}

func NewHub(log *zap.SugaredLogger) IHub {
	return &Hub{
		clients:    make(map[string]*UserClient),
		Register:   make(chan *UserClient),
		Unregister: make(chan *UserClient),
		log:        log,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.mu.Lock()
			if prev, ok := h.clients[client.UserId]; ok {
				close(prev.send)
			}
			h.clients[client.UserId] = client
			h.mu.Unlock()
			h.log.Infow("client connected", "userId", client.UserId)

		case client := <-h.Unregister:
			h.mu.Lock()
			if current, ok := h.clients[client.UserId]; ok && current == client {
				delete(h.clients, client.UserId)
				close(client.send)
				h.log.Infow("client disconnected", "userId", client.UserId)
			}
			h.mu.Unlock()

			if h.OnClientUnregister != nil {
				h.OnClientUnregister(client)
			}
		}
	}
}

func (h *Hub) SendToUser(userId string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	client, exists := h.clients[userId]
	if !exists {
		return
	}
	select {
	case client.send <- payload:
	default:
		h.log.Warnw("dropping notification, client send buffer full", "userId", userId)
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) RegisterClient(client *UserClient) {
	h.Register <- client
}

func (h *Hub) UnregisterClient(client *UserClient) {
	h.Unregister <- client
}

func (h *Hub) SetOnClientUnregister(callback func(client *UserClient)) {
	h.OnClientUnregister = callback
}
