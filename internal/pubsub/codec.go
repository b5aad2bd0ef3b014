package pubsub

import (
	"encoding/json"
	"errors"

	"github.com/nats-io/nats.go"

	"github.com/shohag/webhookrouter/internal/models"
	"github.com/shohag/webhookrouter/internal/router"
)

const (
	// ErrorHeader marks a reply as a handler failure; its value is the message.
	ErrorHeader = "Webhook-Error"
	// EventIDHeader carries a unique id for each broadcast event.
	EventIDHeader = "Webhook-Event-Id"
)

type callRequest struct {
	Args   []any          `json:"args"`
	Kwargs map[string]any `json:"kwargs"`
}

type eventPayload struct {
	Content any     `json:"content"`
	Channel string  `json:"channel"`
	Meta    any     `json:"meta"`
	Time    float64 `json:"time"`
}

// RemoteError is a failure reported by a remote handler.
type RemoteError struct {
	Procedure string
	Message   string
}

func (e *RemoteError) Error() string {
	return e.Procedure + ": " + e.Message
}

func encodeCall(call router.Call) ([]byte, error) {
	return json.Marshal(callRequest{
		Args: []any{call.Content},
		Kwargs: map[string]any{
			"channel": call.Channel,
			"time":    models.EpochSeconds(call.Time),
			"meta":    call.Meta,
		},
	})
}

func decodeReply(procedure string, msg *nats.Msg) (any, error) {
	if msg.Header != nil {
		if reason := msg.Header.Get(ErrorHeader); reason != "" {
			return nil, &RemoteError{Procedure: procedure, Message: reason}
		}
	}
	if len(msg.Data) == 0 {
		return nil, nil
	}
	result, err := models.DecodeJSON(msg.Data)
	if err != nil {
		return nil, errors.Join(errors.New("malformed reply from "+procedure), err)
	}
	return result, nil
}

func encodeEvent(topic string, ev router.Event) (*nats.Msg, error) {
	data, err := json.Marshal(eventPayload{
		Content: ev.Content,
		Channel: ev.Channel,
		Meta:    ev.Meta,
		Time:    models.EpochSeconds(ev.Time),
	})
	if err != nil {
		return nil, err
	}
	msg := nats.NewMsg(topic)
	msg.Data = data
	msg.Header.Set(EventIDHeader, models.NewID(""))
	return msg, nil
}
