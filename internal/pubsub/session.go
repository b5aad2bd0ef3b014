package pubsub

import (
	"context"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/shohag/webhookrouter/internal/router"
)

// Session publishes events and calls remote procedures over one NATS
// connection.
type Session struct {
	conn        *nats.Conn
	callTimeout time.Duration
}

func NewSession(conn *nats.Conn, callTimeout time.Duration) *Session {
	return &Session{conn: conn, callTimeout: callTimeout}
}

func (s *Session) Publish(topic string, ev router.Event) error {
	msg, err := encodeEvent(topic, ev)
	if err != nil {
		return err
	}
	return s.conn.PublishMsg(msg)
}

// Call sends a request to procedure and waits for its reply. No deadline
// is applied unless a call timeout is configured.
func (s *Session) Call(ctx context.Context, procedure string, call router.Call) (any, error) {
	data, err := encodeCall(call)
	if err != nil {
		return nil, err
	}
	if s.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.callTimeout)
		defer cancel()
	}

	reply, err := s.conn.RequestMsgWithContext(ctx, &nats.Msg{Subject: procedure, Data: data})
	if err != nil {
		return nil, err
	}
	return decodeReply(procedure, reply)
}
