// Package natsbus publishes progression events to NATS subjects of the
// form <prefix>.<session>.<kind>.
package natsbus

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/studyaddict/studyaddict/internal/domain"
)

// Config holds NATS connection settings.
type Config struct {
	URL           string
	SubjectPrefix string
	Name          string
}

// DefaultConfig points at a local server.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		SubjectPrefix: "studyaddict.events",
		Name:          "studyaddict",
	}
}

// Publisher sends events to NATS. Publishing is buffered by the client and
// never blocks the engine on the network.
type Publisher struct {
	conn   *nats.Conn
	prefix string
	log    *zap.Logger
}

// Connect dials NATS and keeps reconnecting in the background.
func Connect(cfg Config, log *zap.Logger) (*Publisher, error) {
	if log == nil {
		log = zap.NewNop()
	}
	conn, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return &Publisher{conn: conn, prefix: cfg.SubjectPrefix, log: log}, nil
}

// Subject returns the subject an event is published on.
func Subject(prefix string, ev domain.Event) string {
	session := ev.Session
	if session == "" {
		session = "_"
	}
	return prefix + "." + token(session) + "." + token(string(ev.Kind))
}

var tokenReplacer = strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_")

// token makes s safe as a single subject token.
func token(s string) string {
	return tokenReplacer.Replace(s)
}

// Handle publishes ev as JSON. It matches events.Handler.
func (p *Publisher) Handle(ev domain.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		p.log.Error("encode event", zap.Error(err))
		return
	}
	if err := p.conn.Publish(Subject(p.prefix, ev), data); err != nil {
		p.log.Warn("nats publish failed", zap.String("kind", string(ev.Kind)), zap.Error(err))
	}
}

// Connected reports whether the connection is up.
func (p *Publisher) Connected() bool {
	return p.conn.IsConnected()
}

// Close flushes buffered messages and closes the connection.
func (p *Publisher) Close() error {
	return p.conn.Drain()
}
