package http

import (
	"encoding/json"
	"net/http"

	"chatsync/internal/engine"
	"chatsync/internal/repository"
	"chatsync/internal/usecase"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type HttpHandler struct {
	chatUc    usecase.ChatUsecase
	messageUc usecase.MessageUsecase
	userUc    usecase.UserUsecase
	log       *zap.SugaredLogger
}

func NewHttpHandler(chatUc usecase.ChatUsecase, messageUc usecase.MessageUsecase, userUc usecase.UserUsecase, log *zap.SugaredLogger) *HttpHandler {
	return &HttpHandler{
		chatUc:    chatUc,
		messageUc: messageUc,
		userUc:    userUc,
		log:       log,
	}
}

type Response struct {
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (h *HttpHandler) writeJSON(w http.ResponseWriter, status int, response Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(response)
}

// writeError maps domain errors onto HTTP statuses.
func (h *HttpHandler) writeError(w http.ResponseWriter, op string, err error) {
	switch err {
	case repository.ErrChatNotFound, repository.ErrMessageNotFound, repository.ErrUserNotFound:
		h.writeJSON(w, http.StatusNotFound, Response{Message: err.Error()})
	case repository.ErrNotParticipant, usecase.ErrNotSender:
		h.writeJSON(w, http.StatusForbidden, Response{Message: err.Error()})
	case usecase.ErrEmptyMessage, usecase.ErrSelfChat, usecase.ErrEmptyGroupName,
		usecase.ErrTooFewMembers, usecase.ErrUnknownMember, usecase.ErrWrongChat:
		h.writeJSON(w, http.StatusBadRequest, Response{Message: err.Error()})
	default:
		h.log.Errorw(op, "error", err)
		h.writeJSON(w, http.StatusInternalServerError, Response{Message: "internal server error"})
	}
}

// Method Get /chat
func (h *HttpHandler) ListChats(w http.ResponseWriter, r *http.Request) {
	userId := UserIdFromContext(r.Context())

	views, err := h.chatUc.Index(r.Context(), userId)
	if err != nil {
		h.writeError(w, "list chats", err)
		return
	}

	tab := engine.ParseTab(r.URL.Query().Get("tab"))
	views = engine.FilterChats(views, tab, r.URL.Query().Get("q"), userId)

	h.writeJSON(w, http.StatusOK, Response{Message: "success", Data: views})
}

// Method Post /chat/direct
func (h *HttpHandler) CreateDirect(w http.ResponseWriter, r *http.Request) {
	userId := UserIdFromContext(r.Context())

	var req struct {
		UserId string `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, Response{Message: "invalid request body"})
		return
	}

	chat, err := h.chatUc.CreateDirect(r.Context(), userId, req.UserId)
	if err != nil {
		h.writeError(w, "create direct chat", err)
		return
	}

	h.writeJSON(w, http.StatusOK, Response{Message: "success", Data: chat})
}

// Method Post /chat/group
func (h *HttpHandler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	userId := UserIdFromContext(r.Context())

	var req struct {
		Name    string   `json:"name"`
		Members []string `json:"members"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, Response{Message: "invalid request body"})
		return
	}

	chat, err := h.chatUc.CreateGroup(r.Context(), userId, req.Name, req.Members)
	if err != nil {
		h.writeError(w, "create group chat", err)
		return
	}

	h.writeJSON(w, http.StatusOK, Response{Message: "success", Data: chat})
}

// Method Post /chat/:chatId/open
func (h *HttpHandler) OpenChat(w http.ResponseWriter, r *http.Request) {
	userId := UserIdFromContext(r.Context())
	chatId := chi.URLParam(r, "chatId")

	chat, err := h.chatUc.Open(r.Context(), chatId, userId)
	if err != nil {
		h.writeError(w, "open chat", err)
		return
	}

	h.writeJSON(w, http.StatusOK, Response{Message: "success", Data: chat})
}

// Method Put /chat/:chatId/favourite
func (h *HttpHandler) SetFavourite(w http.ResponseWriter, r *http.Request) {
	userId := UserIdFromContext(r.Context())
	chatId := chi.URLParam(r, "chatId")

	var req struct {
		Favourite bool `json:"favourite"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, Response{Message: "invalid request body"})
		return
	}

	if err := h.chatUc.ToggleFavourite(r.Context(), chatId, userId, req.Favourite); err != nil {
		h.writeError(w, "set favourite", err)
		return
	}

	h.writeJSON(w, http.StatusOK, Response{Message: "success"})
}

// Method Get /chat/:chatId/messages
func (h *HttpHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	userId := UserIdFromContext(r.Context())
	chatId := chi.URLParam(r, "chatId")

	messages, err := h.messageUc.Visible(r.Context(), chatId, userId)
	if err != nil {
		h.writeError(w, "get messages", err)
		return
	}

	h.writeJSON(w, http.StatusOK, Response{Message: "success", Data: messages})
}

// Method Post /chat/:chatId/messages
func (h *HttpHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userId := UserIdFromContext(r.Context())
	chatId := chi.URLParam(r, "chatId")

	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, Response{Message: "invalid request body"})
		return
	}

	message, err := h.messageUc.Send(r.Context(), chatId, userId, req.Text)
	if err != nil {
		h.writeError(w, "send message", err)
		return
	}

	h.writeJSON(w, http.StatusOK, Response{Message: "success", Data: message})
}

// Method Delete /chat/:chatId/messages/:messageId
func (h *HttpHandler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	userId := UserIdFromContext(r.Context())
	chatId := chi.URLParam(r, "chatId")
	messageId := chi.URLParam(r, "messageId")

	var err error
	if r.URL.Query().Get("forEveryone") == "true" {
		err = h.messageUc.DeleteForEveryone(r.Context(), chatId, messageId, userId)
	} else {
		err = h.messageUc.DeleteForMe(r.Context(), chatId, messageId, userId)
	}
	if err != nil {
		h.writeError(w, "delete message", err)
		return
	}

	h.writeJSON(w, http.StatusOK, Response{Message: "success"})
}

// Method Get /user/:id
func (h *HttpHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	userId := chi.URLParam(r, "id")

	user, err := h.userUc.Get(r.Context(), userId)
	if err != nil {
		h.writeError(w, "get user", err)
		return
	}

	h.writeJSON(w, http.StatusOK, Response{Message: "success", Data: user})
}
