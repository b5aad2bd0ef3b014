package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/shohag/webhookrouter/internal/models"
)

const historyLimit = 20

type MessageService interface {
	HandleMessage(ctx context.Context, channel string, content, meta any) (any, error)
	GetMessages(ctx context.Context, channel string, limit int) ([]models.Message, error)
}

type WebhookHandler struct {
	messages     MessageService
	maxBodyBytes int64
	log          zerolog.Logger
}

func NewWebhookHandler(messages MessageService, maxBodyBytes int64, log zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{messages: messages, maxBodyBytes: maxBodyBytes, log: log}
}

func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	channel := chi.URLParam(r, "channel")

	if h.maxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	}
	content, err := decodeBody(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		h.log.Debug().Err(err).Str("channel", channel).Interface("headers", r.Header).Msg("rejected webhook body")
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.messages.HandleMessage(r.Context(), channel, content, requestMeta(r))
	if err != nil {
		h.log.Error().Err(err).Str("channel", channel).Msg("failed to handle webhook")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if result == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	reply, ok := result.(map[string]any)
	if !ok {
		h.log.Error().Str("channel", channel).Interface("result", result).Msg("handler result is not an object")
		writeError(w, http.StatusInternalServerError, "handler result is not a JSON object")
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (h *WebhookHandler) History(w http.ResponseWriter, r *http.Request) {
	channel := chi.URLParam(r, "channel")

	msgs, err := h.messages.GetMessages(r.Context(), channel, historyLimit)
	if err != nil {
		h.log.Error().Err(err).Str("channel", channel).Msg("failed to load messages")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"messages": msgs,
	})
}

type HealthHandler struct {
	connected func() bool
}

func NewHealthHandler(connected func() bool) *HealthHandler {
	return &HealthHandler{connected: connected}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	pubsub := "disconnected"
	if h.connected != nil && h.connected() {
		pubsub = "connected"
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "webhook-router",
		"pubsub":  pubsub,
	})
}
