package router

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/shohag/webhookrouter/internal/models"
	"github.com/shohag/webhookrouter/internal/storage"
)

// MessageStore is the part of the store worker the service needs.
type MessageStore interface {
	InsertMessage(t float64, channel, content, meta string) *storage.Future[int64]
	GetMessages(ctx context.Context, channel string, limit int) ([]models.MessageRecord, error)
}

type Dispatcher interface {
	Current() *Table
}

type MessageService struct {
	store    MessageStore
	dispatch Dispatcher
	log      zerolog.Logger
	now      func() time.Time
}

func NewMessageService(store MessageStore, dispatch Dispatcher, log zerolog.Logger) *MessageService {
	return &MessageService{
		store:    store,
		dispatch: dispatch,
		log:      log.With().Str("component", "messages").Logger(),
		now:      time.Now,
	}
}

// HandleMessage records a webhook, broadcasts it and, when a handler is
// registered for channel, returns the handler's reply. A nil result with a
// nil error means the message was accepted and nobody replies.
//
// The store write is submitted before anything else but is not awaited;
// its failures reach the store worker's error sink. Cancelling ctx does not
// cancel the write.
func (s *MessageService) HandleMessage(ctx context.Context, channel string, content, meta any) (any, error) {
	now := s.now().UTC()

	contentText, err := encode("content", content)
	if err != nil {
		return nil, err
	}
	metaText, err := encode("meta", meta)
	if err != nil {
		return nil, err
	}

	s.store.InsertMessage(models.EpochSeconds(now), channel, contentText, metaText)

	table := s.dispatch.Current()
	if table.Broadcast != nil {
		table.Broadcast(Event{Channel: channel, Content: content, Meta: meta, Time: now})
	}

	h, ok := table.Handler(channel)
	if !ok {
		return nil, nil
	}

	s.log.Debug().Str("channel", channel).Str("handler", h.Name).Stringer("kind", h.Kind).Msg("dispatching message")
	result, err := h.invoke(ctx, table.session, Call{Content: content, Channel: channel, Time: now, Meta: meta})
	if err != nil {
		return nil, &DispatchError{Channel: channel, Handler: h.Name, Err: err}
	}
	return result, nil
}

// GetMessages returns up to limit messages for channel, newest first.
func (s *MessageService) GetMessages(ctx context.Context, channel string, limit int) ([]models.Message, error) {
	recs, err := s.store.GetMessages(ctx, channel, limit)
	if err != nil {
		return nil, err
	}

	msgs := make([]models.Message, 0, len(recs))
	for _, rec := range recs {
		msg := models.Message{
			ID:      rec.ID,
			Time:    models.FromEpochSeconds(rec.Time),
			Channel: rec.Channel,
		}
		if msg.Content, err = models.DecodeJSON([]byte(rec.Content)); err != nil {
			return nil, &SerializationError{Field: "content", Err: fmt.Errorf("message %d: %w", rec.ID, err)}
		}
		if msg.Meta, err = models.DecodeJSON([]byte(rec.Meta)); err != nil {
			return nil, &SerializationError{Field: "meta", Err: fmt.Errorf("message %d: %w", rec.ID, err)}
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

func encode(field string, v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", &SerializationError{Field: field, Err: err}
	}
	return string(b), nil
}
