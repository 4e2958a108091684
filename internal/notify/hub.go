package notify

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 64
)

var ErrHubClosed = errors.New("hub-closed")

// Conn is the part of a websocket connection the hub uses.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, p []byte, err error)
	SetWriteDeadline(t time.Time) error
	SetReadDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

type client struct {
	id     string
	conn   Conn
	topics []string
	send   chan []byte

	closeOnce sync.Once
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

// Hub fans published payloads out to the websocket clients subscribed to a
// topic. Publishing never blocks on a slow client: its buffer fills up and
// further messages to it are dropped.
type Hub struct {
	mu      sync.RWMutex
	topics  map[string]map[string]*client
	clients map[string]*client
	closed  bool
}

func NewHub() *Hub {
	return &Hub{
		topics:  make(map[string]map[string]*client),
		clients: make(map[string]*client),
	}
}

// Publish implements the game publisher.
func (h *Hub) Publish(topic string, payload string) error {
	// 1. Snapshot subscribers under the read lock
	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return ErrHubClosed
	}
	subscribers := make([]*client, 0, len(h.topics[topic]))
	for _, c := range h.topics[topic] {
		subscribers = append(subscribers, c)
	}

	// 2. Queue the payload without waiting on anybody. The read lock is held
	// so no send channel closes underneath us.
	msg := []byte(payload)
	dropped := 0
	for _, c := range subscribers {
		select {
		case c.send <- msg:
		default:
			dropped++
		}
	}
	h.mu.RUnlock()

	if dropped > 0 {
		log.Warn().Str("topic", topic).Int("dropped", dropped).Int("subscribers", len(subscribers)).
			Msg("[Hub.Publish] slow subscribers, messages dropped")
	}
	return nil
}

// Subscribe registers conn on topics and starts its pumps. It returns the
// client id. The client is removed when its connection fails or closes.
func (h *Hub) Subscribe(conn Conn, topics ...string) (string, error) {
	c := &client{
		id:     uuid.NewString(),
		conn:   conn,
		topics: topics,
		send:   make(chan []byte, sendBufferSize),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return "", ErrHubClosed
	}
	h.clients[c.id] = c
	for _, topic := range topics {
		if h.topics[topic] == nil {
			h.topics[topic] = make(map[string]*client)
		}
		h.topics[topic][c.id] = c
	}
	h.mu.Unlock()

	go h.writePump(c)
	go h.readPump(c)

	log.Debug().Str("client", c.id).Strs("topics", topics).Msg("[Hub.Subscribe] client subscribed")
	return c.id, nil
}

func (h *Hub) unsubscribe(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.id)
	for _, topic := range c.topics {
		delete(h.topics[topic], c.id)
		if len(h.topics[topic]) == 0 {
			delete(h.topics, topic)
		}
	}
	c.close()
	h.mu.Unlock()

	log.Debug().Str("client", c.id).Msg("[Hub] client unsubscribed")
}

// Subscribers counts the clients on topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// Close disconnects every client. Later publishes fail with ErrHubClosed.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[string]*client)
	h.topics = make(map[string]map[string]*client)
	for _, c := range clients {
		c.close()
	}
	h.mu.Unlock()

	log.Info().Int("clients", len(clients)).Msg("[Hub.Close] hub closed")
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.Debug().Err(err).Str("client", c.id).Msg("[Hub] write failed")
				h.unsubscribe(c)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.unsubscribe(c)
				return
			}
		}
	}
}

// readPump only watches for the connection going away; clients act through
// the HTTP API.
func (h *Hub) readPump(c *client) {
	defer h.unsubscribe(c)

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
