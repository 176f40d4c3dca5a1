// Package messaging provides a NATS client wrapper for the Study Chat room
// event firehose. The chat server mirrors every committed room event
// (messages, joins, leaves) onto per-room subjects so external consumers —
// analytics, moderation sidecars — can observe activity without touching the
// coordinator. The firehose is an outbound mirror only: the coordinator
// never reads from it.
package messaging

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// SubjectRoomEvents is the subject prefix for room event streams; the room
// id is appended as the final token (rooms.events.<room_id>).
const SubjectRoomEvents = "rooms.events"

// Config holds NATS connection settings.
type Config struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:           "nats://localhost:4222",
		Name:          "studychat",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1, // infinite reconnects
	}
}

// Client wraps the NATS connection with helper methods for the firehose.
type Client struct {
	conn *nats.Conn
	mu   sync.Mutex
	subs map[string]*nats.Subscription
}

// NewClient connects to NATS with the given config and returns a ready
// client. It returns an error if the initial connection fails.
func NewClient(config Config) (*Client, error) {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("[nats] disconnected: %v", err)
			} else {
				log.Printf("[nats] disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[nats] reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Printf("[nats] connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	log.Printf("[nats] connected to %s", nc.ConnectedUrl())

	return &Client{
		conn: nc,
		subs: make(map[string]*nats.Subscription),
	}, nil
}

// PublishRoomEvent publishes an encoded room event to rooms.events.<roomID>.
func (c *Client) PublishRoomEvent(roomID string, data []byte) error {
	return c.conn.Publish(SubjectRoomEvents+"."+roomID, data)
}

// SubscribeRoomEvents registers a handler for a single room's event stream.
// The subscription is tracked internally for cleanup on Close.
func (c *Client) SubscribeRoomEvents(roomID string, handler func(data []byte)) error {
	subject := SubjectRoomEvents + "." + roomID
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	c.mu.Lock()
	c.subs[subject] = sub
	c.mu.Unlock()
	return nil
}

// SubscribeAllRoomEvents registers a handler for every room's event stream
// using a wildcard subject. The handler receives the room id parsed from the
// subject's final token.
func (c *Client) SubscribeAllRoomEvents(handler func(roomID string, data []byte)) error {
	subject := SubjectRoomEvents + ".>"
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		roomID := msg.Subject[len(SubjectRoomEvents)+1:]
		handler(roomID, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	c.mu.Lock()
	c.subs[subject] = sub
	c.mu.Unlock()
	return nil
}

// UnsubscribeRoomEvents removes a single room's subscription.
func (c *Client) UnsubscribeRoomEvents(roomID string) error {
	subject := SubjectRoomEvents + "." + roomID

	c.mu.Lock()
	sub, ok := c.subs[subject]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("nats: no subscription for subject %s", subject)
	}
	delete(c.subs, subject)
	c.mu.Unlock()

	if err := sub.Unsubscribe(); err != nil {
		return fmt.Errorf("nats unsubscribe %s: %w", subject, err)
	}
	return nil
}

// Close drains all active subscriptions and closes the NATS connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for subject, sub := range c.subs {
		if err := sub.Drain(); err != nil {
			log.Printf("[nats] drain %s: %v", subject, err)
		}
	}
	c.subs = make(map[string]*nats.Subscription)

	if err := c.conn.Drain(); err != nil {
		log.Printf("[nats] connection drain: %v", err)
	}

	log.Printf("[nats] client closed")
}
