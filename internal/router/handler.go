package router

import (
	"context"
	"errors"
	"time"
)

// Call carries the arguments every handler is invoked with.
type Call struct {
	Content any
	Channel string
	Time    time.Time
	Meta    any
}

// Event is what gets broadcast to subscribers of a channel topic.
type Event struct {
	Channel string
	Content any
	Meta    any
	Time    time.Time
}

// LocalFunc is a built-in handler served in-process.
type LocalFunc func(ctx context.Context, call Call) (any, error)

type HandlerKind int

const (
	HandlerLocal HandlerKind = iota + 1
	HandlerRemote
)

func (k HandlerKind) String() string {
	switch k {
	case HandlerLocal:
		return "local"
	case HandlerRemote:
		return "remote"
	default:
		return "unknown"
	}
}

// Handler is either a local function or the name of a remote procedure.
type Handler struct {
	Kind  HandlerKind
	Name  string
	Local LocalFunc
}

func Local(name string, fn LocalFunc) Handler {
	return Handler{Kind: HandlerLocal, Name: name, Local: fn}
}

func Remote(procedure string) Handler {
	return Handler{Kind: HandlerRemote, Name: procedure}
}

var errNoSession = errors.New("no pub/sub session")

func (h Handler) invoke(ctx context.Context, session Session, call Call) (any, error) {
	switch h.Kind {
	case HandlerLocal:
		return h.Local(ctx, call)
	case HandlerRemote:
		if session == nil {
			return nil, errNoSession
		}
		return session.Call(ctx, h.Name, call)
	default:
		return nil, errors.New("unknown handler kind")
	}
}

// Echo returns its arguments unchanged.
func Echo(_ context.Context, call Call) (any, error) {
	return map[string]any{
		"content": call.Content,
		"channel": call.Channel,
		"time":    call.Time,
		"meta":    call.Meta,
	}, nil
}
