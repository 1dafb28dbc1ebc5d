package http

import (
	"net/http"

	wsDelivery "chatsync/internal/delivery/websocket"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func MapHttpRoutes(r *chi.Mux, httpHandler *HttpHandler, websocketHandler *wsDelivery.WebsocketHandler, authMiddleware *AuthMiddleware, registry *prometheus.Registry) {
	r.Handle("/ws", http.HandlerFunc(websocketHandler.HandleWebSocket))
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Authenticate)

		// Chat routes
		r.Route("/chat", func(r chi.Router) {
			r.Get("/", http.HandlerFunc(httpHandler.ListChats))
			r.Post("/direct", http.HandlerFunc(httpHandler.CreateDirect))
			r.Post("/group", http.HandlerFunc(httpHandler.CreateGroup))
			r.Post("/{chatId}/open", http.HandlerFunc(httpHandler.OpenChat))
			r.Put("/{chatId}/favourite", http.HandlerFunc(httpHandler.SetFavourite))
			r.Get("/{chatId}/messages", http.HandlerFunc(httpHandler.GetMessages))
			r.Post("/{chatId}/messages", http.HandlerFunc(httpHandler.SendMessage))
			r.Delete("/{chatId}/messages/{messageId}", http.HandlerFunc(httpHandler.DeleteMessage))
		})

		// User routes
		r.Route("/user", func(r chi.Router) {
			r.Get("/{id}", http.HandlerFunc(httpHandler.GetUser))
		})
	})
}
