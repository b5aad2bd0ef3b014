package pubsub

import (
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/shohag/webhookrouter/internal/config"
	"github.com/shohag/webhookrouter/internal/models"
	"github.com/shohag/webhookrouter/internal/router"
)

// Lifecycle is notified when the session becomes usable and when it is lost.
type Lifecycle interface {
	Joined(session router.Session)
	Left(reason string)
}

// Client owns the NATS connection and keeps retrying it for the life of
// the process, reporting every transition to a Lifecycle.
type Client struct {
	cfg       config.PubSubConfig
	lifecycle Lifecycle
	log       zerolog.Logger
	conn      *nats.Conn

	mu     sync.Mutex
	joined bool
}

func Connect(cfg config.PubSubConfig, lifecycle Lifecycle, log zerolog.Logger) (*Client, error) {
	c := &Client{
		cfg:       cfg,
		lifecycle: lifecycle,
		log:       log.With().Str("component", "pubsub").Logger(),
	}

	conn, err := nats.Connect(cfg.URL,
		nats.Name(models.NewID(cfg.Name)),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.ConnectHandler(c.onConnect),
		nats.ReconnectHandler(c.onConnect),
		nats.DisconnectErrHandler(c.onDisconnect),
		nats.ClosedHandler(c.onClosed),
	)
	if err != nil {
		return nil, err
	}
	c.conn = conn

	c.mu.Lock()
	if conn.IsConnected() {
		c.join(conn)
	}
	c.mu.Unlock()

	if !c.Connected() {
		c.log.Warn().Str("url", cfg.URL).Msg("pub/sub router unreachable, retrying in background")
	}
	return c, nil
}

func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.joined
}

func (c *Client) Close() {
	if c.conn != nil {
		c.conn.Close()
	}
	c.onClosed(nil)
}

func (c *Client) onConnect(nc *nats.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.join(nc)
}

func (c *Client) onDisconnect(nc *nats.Conn, err error) {
	reason := "disconnected"
	if err != nil {
		reason = err.Error()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.leave(reason)
}

func (c *Client) onClosed(*nats.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.leave("connection closed")
}

// join and leave run with mu held.
func (c *Client) join(nc *nats.Conn) {
	if c.joined {
		return
	}
	c.joined = true
	c.log.Info().Str("server", nc.ConnectedUrlRedacted()).Msg("connected to pub/sub router")
	c.lifecycle.Joined(NewSession(nc, c.cfg.CallTimeout))
}

func (c *Client) leave(reason string) {
	if !c.joined {
		return
	}
	c.joined = false
	c.lifecycle.Left(reason)
}
