package wsbus

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/btouchard/elastic/internal/bus"
)

const (
	// Time allowed to write a frame to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong from the peer.
	pongWait = 60 * time.Second

	// Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Notification payloads are small; this leaves room for long
	// descriptions.
	maxMessageSize = 64 * 1024

	// Publishers beyond this many per connection are opened per frame
	// instead of cached.
	maxCachedPublishers = 256
)

type pubKey struct {
	topic string
	opts  bus.Options
}

// conn is one websocket client of a Server.
type conn struct {
	id      uuid.UUID
	server  *Server
	ws      *websocket.Conn
	send    chan Frame
	done    chan struct{}
	limiter *rate.Limiter

	closeOnce sync.Once

	// mu protects subs and pubs
	mu   sync.Mutex
	subs map[string]*bus.Subscription
	pubs map[pubKey]bus.Publisher

	logger *slog.Logger
}

func newConn(s *Server, ws *websocket.Conn) *conn {
	id := uuid.New()
	return &conn{
		id:      id,
		server:  s,
		ws:      ws,
		send:    make(chan Frame, s.cfg.SendBuffer),
		done:    make(chan struct{}),
		limiter: rate.NewLimiter(rate.Limit(s.cfg.PublishRate), s.cfg.PublishBurst),
		subs:    make(map[string]*bus.Subscription),
		pubs:    make(map[pubKey]bus.Publisher),
		logger:  s.logger.With("client_id", id.String(), "remote", ws.RemoteAddr().String()),
	}
}

// close tears the connection down exactly once: subscriptions are
// released and both pumps stop.
func (c *conn) close() {
	c.closeOnce.Do(func() {
		close(c.done)

		c.mu.Lock()
		subs := c.subs
		c.subs = make(map[string]*bus.Subscription)
		c.mu.Unlock()

		for _, sub := range subs {
			sub.Close()
		}

		c.server.unregister(c)
		_ = c.ws.Close()
	})
}

func (c *conn) readPump() {
	defer c.close()

	c.ws.SetReadLimit(maxMessageSize)
	if err := c.ws.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error("failed to set read deadline", "error", err)
		return
	}
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		c.handle(message)
	}
}

func (c *conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case f := <-c.send:
			if err := c.writeFrame(f); err != nil {
				c.logger.Debug("failed to write frame", "error", err)
				return
			}

		case <-ticker.C:
			if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("failed to send ping", "error", err)
				return
			}

		case <-c.done:
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

func (c *conn) writeFrame(f Frame) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	w, err := c.ws.NextWriter(websocket.TextMessage)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(w).Encode(f); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

func (c *conn) handle(message []byte) {
	var f Frame
	if err := json.Unmarshal(message, &f); err != nil {
		c.logger.Warn("failed to decode frame", "error", err)
		return
	}
	framesReceived.WithLabelValues(f.Type).Inc()

	switch f.Type {
	case FrameSubscribe:
		c.subscribe(f.Topic)
	case FrameUnsubscribe:
		c.unsubscribe(f.Topic)
	case FramePublish:
		c.publish(f)
	case FramePing:
		c.enqueue(Frame{Type: FramePong})
	default:
		c.logger.Debug("unknown frame type", "type", f.Type)
	}
}

func (c *conn) subscribe(topic string) {
	if topic == "" {
		c.logger.Warn("subscribe without topic")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.subs[topic]; ok {
		return
	}
	select {
	case <-c.done:
		return
	default:
	}

	sub := c.server.bus.Subscribe(topic, bus.SubscribeOptions{Buffer: c.server.cfg.SubscriberBuffer})
	if sub.Closed() {
		c.logger.Warn("subscription refused", "topic", topic)
		return
	}
	c.subs[topic] = sub
	go c.forward(sub)

	c.logger.Debug("subscribed", "topic", topic)
}

func (c *conn) unsubscribe(topic string) {
	c.mu.Lock()
	sub, ok := c.subs[topic]
	delete(c.subs, topic)
	c.mu.Unlock()

	if ok {
		sub.Close()
		c.logger.Debug("unsubscribed", "topic", topic)
	}
}

func (c *conn) publish(f Frame) {
	if f.Topic == "" {
		c.logger.Warn("publish without topic")
		return
	}
	if !c.limiter.Allow() {
		publishesLimited.Inc()
		c.logger.Warn("publish rate exceeded, dropping value", "topic", f.Topic)
		return
	}

	var opts bus.Options
	if f.Options != nil {
		opts = *f.Options
	}
	key := pubKey{topic: f.Topic, opts: opts}

	c.mu.Lock()
	pub, ok := c.pubs[key]
	if !ok {
		pub = c.server.bus.Publish(f.Topic, opts)
		if len(c.pubs) < maxCachedPublishers {
			c.pubs[key] = pub
		}
	}
	c.mu.Unlock()

	pub.Set(f.Value)
}

// forward relays subscription values to the write pump until the
// subscription or the connection closes.
func (c *conn) forward(sub *bus.Subscription) {
	for v := range sub.C() {
		select {
		case c.send <- valueFrame(v):
		case <-c.done:
			return
		}
	}
}

func (c *conn) enqueue(f Frame) {
	select {
	case c.send <- f:
	default:
		c.logger.Debug("send buffer full, skipping frame", "type", f.Type)
	}
}
