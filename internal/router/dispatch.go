package router

import (
	"context"
	"sort"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/shohag/webhookrouter/internal/models"
)

const EchoChannel = "echo"

// Session is a live pub/sub connection.
type Session interface {
	Publish(topic string, ev Event) error
	Call(ctx context.Context, procedure string, call Call) (any, error)
}

// BroadcastFunc publishes an event without waiting for subscribers.
type BroadcastFunc func(ev Event)

type State int

const (
	Disconnected State = iota
	Connected
)

func (s State) String() string {
	if s == Connected {
		return "connected"
	}
	return "disconnected"
}

// Table is one immutable snapshot of the dispatch state. A new Table is
// installed on every connect and disconnect; a Table is never modified
// after installation.
type Table struct {
	State     State
	Broadcast BroadcastFunc
	Handlers  map[string]Handler
	session   Session
}

func (t *Table) Handler(channel string) (Handler, bool) {
	h, ok := t.Handlers[channel]
	return h, ok
}

func disconnectedTable() *Table {
	return &Table{State: Disconnected, Handlers: map[string]Handler{}}
}

// Controller keeps the installed Table in line with the pub/sub
// connection state.
type Controller struct {
	registrations map[string]string
	topicPrefix   string
	log           zerolog.Logger

	// current is swapped whole; a Table is never mutated once installed.
	current atomic.Pointer[Table]
}

// NewController validates the channel registrations loaded at startup.
// They are bound to every session that joins for the controller's
// lifetime.
func NewController(registrations []models.Channel, topicPrefix string, log zerolog.Logger) (*Controller, error) {
	regs := make(map[string]string, len(registrations))
	for _, r := range registrations {
		switch {
		case r.Channel == "":
			return nil, &ConfigurationError{Channel: r.Channel, Reason: "empty channel name"}
		case r.Handler == "":
			return nil, &ConfigurationError{Channel: r.Channel, Reason: "empty handler name"}
		}
		if _, dup := regs[r.Channel]; dup {
			return nil, &ConfigurationError{Channel: r.Channel, Reason: "registered more than once"}
		}
		regs[r.Channel] = r.Handler
	}
	if topicPrefix == "" {
		topicPrefix = "webhooks"
	}

	c := &Controller{
		registrations: regs,
		topicPrefix:   topicPrefix,
		log:           log.With().Str("component", "dispatch").Logger(),
	}
	c.current.Store(disconnectedTable())
	return c, nil
}

// Current returns the installed snapshot. Callers read it once per message.
func (c *Controller) Current() *Table {
	return c.current.Load()
}

func (c *Controller) Topic(channel string) string {
	return c.topicPrefix + "." + channel
}

// Registrations returns the startup channel to procedure mapping, sorted
// by channel.
func (c *Controller) Registrations() []models.Channel {
	out := make([]models.Channel, 0, len(c.registrations))
	for ch, h := range c.registrations {
		out = append(out, models.Channel{Channel: ch, Handler: h})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Channel < out[j].Channel })
	return out
}

// Joined installs a broadcast function and remote handlers bound to
// session.
func (c *Controller) Joined(session Session) {
	handlers := make(map[string]Handler, len(c.registrations)+1)
	for ch, procedure := range c.registrations {
		handlers[ch] = Remote(procedure)
	}
	handlers[EchoChannel] = Local("echo", Echo)

	table := &Table{
		State:     Connected,
		Broadcast: c.broadcaster(session),
		Handlers:  handlers,
		session:   session,
	}

	c.current.Store(table)

	c.log.Info().Int("handlers", len(handlers)).Msg("pub/sub session joined, dispatch installed")
}

// Left clears the broadcast function and all handlers.
func (c *Controller) Left(reason string) {
	prev := c.current.Swap(disconnectedTable())

	if prev.State == Connected {
		c.log.Warn().Str("reason", reason).Msg("pub/sub session lost, dispatch cleared")
	}
}

func (c *Controller) broadcaster(session Session) BroadcastFunc {
	return func(ev Event) {
		if err := session.Publish(c.Topic(ev.Channel), ev); err != nil {
			c.log.Warn().Err(err).Str("channel", ev.Channel).Msg("broadcast failed")
		}
	}
}
