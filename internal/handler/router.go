package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"wachannel/internal/middleware"
)

// Routes groups the handlers mounted by NewRouter. Nil handlers are not mounted.
type Routes struct {
	Health    *HealthHandler
	Flow      *FlowHandler
	Webhook   *WebhookHandler
	Messages  *MessageHandler
	ChatLogs  *ChatLogHandler
	Simulator http.Handler
}

// NewRouter builds the API router
func NewRouter(routes Routes) *mux.Router {
	router := mux.NewRouter()
	router.Use(middleware.Recovery)

	if routes.Health != nil {
		router.HandleFunc("/health", routes.Health.HandleHealth).Methods(http.MethodGet)
	}
	if routes.Flow != nil {
		router.HandleFunc("/flows/endpoint", routes.Flow.Exchange).Methods(http.MethodPost)
	}
	if routes.Webhook != nil {
		router.HandleFunc("/webhooks/whatsapp", routes.Webhook.Verify).Methods(http.MethodGet)
		router.HandleFunc("/webhooks/whatsapp", routes.Webhook.Receive).Methods(http.MethodPost)
	}
	if routes.Simulator != nil {
		router.Handle("/simulator", routes.Simulator).Methods(http.MethodGet)
	}

	api := router.PathPrefix("/api/v1").Subrouter()
	if routes.Messages != nil {
		api.HandleFunc("/messages", routes.Messages.Send).Methods(http.MethodPost)
	}
	if routes.ChatLogs != nil {
		api.HandleFunc("/chat-logs", routes.ChatLogs.List).Methods(http.MethodGet)
		api.HandleFunc("/chat-logs/statistics", routes.ChatLogs.Statistics).Methods(http.MethodGet)
		api.HandleFunc("/chat-logs/{provider_message_id}", routes.ChatLogs.Get).Methods(http.MethodGet)
	}

	return router
}
