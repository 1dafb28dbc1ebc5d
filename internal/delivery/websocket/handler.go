package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"chatsync/infrastructure/ws"
	"chatsync/internal/engine"
	"chatsync/internal/usecase"
	"chatsync/pkg/jwt"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var (
	errChatNotOpen = errors.New("chat session not open")
	errListNotOpen = errors.New("chat list session not open")
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type WebsocketHandler struct {
	hub        ws.IHub
	manager    *engine.Manager
	userUc     usecase.UserUsecase
	messageUc  usecase.MessageUsecase
	chatUc     usecase.ChatUsecase
	jwtManager *jwt.JWTManager
	log        *zap.SugaredLogger
}

func NewWebsocketHandler(hub ws.IHub, manager *engine.Manager, userUc usecase.UserUsecase, messageUc usecase.MessageUsecase, chatUc usecase.ChatUsecase, jwtManager *jwt.JWTManager, log *zap.SugaredLogger) *WebsocketHandler {
	return &WebsocketHandler{
		hub:        hub,
		manager:    manager,
		userUc:     userUc,
		messageUc:  messageUc,
		chatUc:     chatUc,
		jwtManager: jwtManager,
		log:        log,
	}
}

// HandleWebSocket upgrades the connection and starts the viewer's chat-list
// session. Browsers cannot set headers on websocket upgrades, so the token
// travels as a query parameter.
func (h *WebsocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	claims, err := h.jwtManager.Validate(r.URL.Query().Get("token"))
	if err != nil {
		http.Error(w, "invalid or expired token", http.StatusUnauthorized)
		return
	}
	userId := claims.UserId

	if _, err := h.userUc.Get(r.Context(), userId); err != nil {
		h.log.Warnw("websocket user lookup failed", "userId", userId, "error", err)
		http.Error(w, "unknown user", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnw("websocket upgrade failed", "userId", userId, "error", err)
		return
	}

	// The session context must outlive the upgrade request.
	ctx := context.Background()

	if err := h.userUc.SetOnline(ctx, userId, true); err != nil {
		h.log.Warnw("set online failed", "userId", userId, "error", err)
	}

	client := ws.NewClient(userId, h.hub, conn)
	h.hub.RegisterClient(client)

	if err := h.manager.OpenList(ctx, userId); err != nil {
		h.log.Errorw("open chat list failed", "userId", userId, "error", err)
	}

	go client.WritePump()
	client.ReadPump(func(data []byte) {
		h.handleCommand(ctx, client, data)
	})
}

// HandleUnregisterClient runs when a connection drops: the viewer's live
// sessions stop and presence flips offline.
func (h *WebsocketHandler) HandleUnregisterClient(client *ws.UserClient) {
	ctx := context.Background()

	h.manager.CloseUser(client.UserId)

	if err := h.userUc.SetOnline(ctx, client.UserId, false); err != nil {
		h.log.Warnw("set offline failed", "userId", client.UserId, "error", err)
	}
}

func (h *WebsocketHandler) handleCommand(ctx context.Context, client *ws.UserClient, data []byte) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		h.log.Warnw("bad command frame", "userId", client.UserId, "error", err)
		return
	}

	userId := client.UserId

	switch cmd.Type {
	case CmdOpenChat:
		// Entering a chat also marks it caught up for the viewer.
		_, err := h.chatUc.Open(ctx, cmd.ChatId, userId)
		if err == nil {
			err = h.manager.OpenChat(ctx, userId, cmd.ChatId)
		}
		h.ack(userId, cmd, err)

	case CmdCloseChat:
		h.manager.CloseChat(userId, cmd.ChatId)
		h.ack(userId, cmd, nil)

	case CmdSend:
		message, err := h.messageUc.Send(ctx, cmd.ChatId, userId, cmd.Text)
		if err != nil {
			h.ack(userId, cmd, err)
			return
		}
		cmd.MessageId = message.Id
		h.ack(userId, cmd, nil)

	case CmdReadAck:
		h.ack(userId, cmd, h.messageUc.MarkRead(ctx, cmd.MessageId))

	case CmdDelete:
		var err error
		if cmd.ForAll {
			err = h.messageUc.DeleteForEveryone(ctx, cmd.ChatId, cmd.MessageId, userId)
		} else {
			err = h.messageUc.DeleteForMe(ctx, cmd.ChatId, cmd.MessageId, userId)
		}
		h.ack(userId, cmd, err)

	case CmdSnapshot:
		h.sendSnapshot(userId, cmd)

	default:
		h.log.Warnw("unknown command", "userId", userId, "type", cmd.Type)
	}
}

// sendSnapshot replays the current session state. With a chatId it is the
// visible timeline of that chat, otherwise the filtered chat list.
func (h *WebsocketHandler) sendSnapshot(userId string, cmd Command) {
	var snapshot Snapshot
	snapshot.Type = TypeSnapshot

	if cmd.ChatId != "" {
		messages, ok := h.manager.ChatSnapshot(userId, cmd.ChatId)
		if !ok {
			h.ack(userId, cmd, errChatNotOpen)
			return
		}
		snapshot.ChatId = cmd.ChatId
		snapshot.Items = messages
	} else {
		views, ok := h.manager.ListSnapshot(userId, engine.ParseTab(cmd.Tab), cmd.Query)
		if !ok {
			h.ack(userId, cmd, errListNotOpen)
			return
		}
		snapshot.Items = views
	}

	payload, err := json.Marshal(snapshot)
	if err != nil {
		h.log.Errorw("marshal snapshot", "userId", userId, "error", err)
		return
	}
	h.hub.SendToUser(userId, payload)
}

func (h *WebsocketHandler) ack(userId string, cmd Command, err error) {
	ack := Ack{
		Type:      TypeAck,
		Command:   cmd.Type,
		ChatId:    cmd.ChatId,
		MessageId: cmd.MessageId,
	}
	if err != nil {
		ack.Error = err.Error()
	}

	payload, marshalErr := json.Marshal(ack)
	if marshalErr != nil {
		h.log.Errorw("marshal ack", "userId", userId, "error", marshalErr)
		return
	}
	h.hub.SendToUser(userId, payload)
}
