package websocket

import (
	"encoding/json"

	"chatsync/infrastructure/ws"
	"chatsync/internal/engine"

	"go.uber.org/zap"
)

// Ack confirms or rejects a client command.
type Ack struct {
	Type      string `json:"type"`
	Command   string `json:"command"`
	ChatId    string `json:"chatId,omitempty"`
	MessageId string `json:"messageId,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Snapshot carries a full list state in response to a snapshot command.
type Snapshot struct {
	Type   string `json:"type"`
	ChatId string `json:"chatId,omitempty"`
	Items  any    `json:"items"`
}

const (
	TypeAck      = "ack"
	TypeSnapshot = "snapshot"
)

// HubNotifier bridges engine notifications onto the websocket hub.
type HubNotifier struct {
	hub ws.IHub
	log *zap.SugaredLogger
}

func NewHubNotifier(hub ws.IHub, log *zap.SugaredLogger) *HubNotifier {
	return &HubNotifier{
		hub: hub,
		log: log,
	}
}

func (n *HubNotifier) Notify(userId string, notification engine.Notification) {
	payload, err := json.Marshal(notification)
	if err != nil {
		n.log.Errorw("marshal notification", "userId", userId, "error", err)
		return
	}
	n.hub.SendToUser(userId, payload)
}
