package wsbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/btouchard/elastic/internal/bus"
)

// DialOptions configures Dial.
type DialOptions struct {
	// Token is sent as a bearer token when non-empty.
	Token string
	// SendBuffer is the number of outbound frames queued before publishes
	// are dropped.
	SendBuffer int
	Logger     *slog.Logger
}

// Client is a bus.Bus backed by a remote Server. Values received from the
// server are mirrored into a local in-memory bus, which serves Subscribe.
type Client struct {
	ws     *websocket.Conn
	local  *bus.Memory
	send   chan Frame
	logger *slog.Logger

	closing   chan struct{}
	closeOnce sync.Once
	readDone  chan struct{}
	writeDone chan struct{}

	mu         sync.Mutex
	subscribed map[string]struct{}
	err        error
}

var _ bus.Bus = (*Client)(nil)

// Dial connects to a wsbus server at url, for example ws://10.0.0.2:5810/nt.
func Dial(ctx context.Context, url string, opts DialOptions) (*Client, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 256
	}

	header := http.Header{}
	if opts.Token != "" {
		header.Set("Authorization", "Bearer "+opts.Token)
	}

	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dialing %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dialing %s: %w", url, err)
	}

	c := &Client{
		ws:         ws,
		local:      bus.NewMemory(logger, nil),
		send:       make(chan Frame, opts.SendBuffer),
		logger:     logger.With("component", "wsbus_client", "url", url),
		closing:    make(chan struct{}),
		readDone:   make(chan struct{}),
		writeDone:  make(chan struct{}),
		subscribed: make(map[string]struct{}),
	}
	ws.SetReadLimit(maxMessageSize)

	go c.readLoop()
	go c.writeLoop()

	c.logger.Debug("connected")
	return c, nil
}

// Publish returns a publisher that forwards values to the server. Values
// are queued without blocking and dropped when the queue is full.
func (c *Client) Publish(topic string, opts bus.Options) bus.Publisher {
	return &remotePublisher{client: c, topic: topic, opts: opts}
}

// Subscribe asks the server for topic values and returns a subscription
// on the local mirror.
func (c *Client) Subscribe(topic string, opts bus.SubscribeOptions) *bus.Subscription {
	sub := c.local.Subscribe(topic, opts)

	c.mu.Lock()
	_, ok := c.subscribed[topic]
	c.subscribed[topic] = struct{}{}
	c.mu.Unlock()

	if !ok {
		c.enqueue(Frame{Type: FrameSubscribe, Topic: topic})
	}
	return sub
}

// Done is closed when the connection is lost or closed.
func (c *Client) Done() <-chan struct{} {
	return c.readDone
}

// Err reports why the connection ended, if it ended unexpectedly.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close sends queued frames, closes the connection and every local
// subscription. It waits at most until ctx is done for the flush.
func (c *Client) Close(ctx context.Context) error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closing)

		select {
		case <-c.writeDone:
		case <-ctx.Done():
			err = fmt.Errorf("flushing frames: %w", ctx.Err())
		}

		_ = c.ws.Close()
		<-c.readDone
		c.local.Close()
	})
	return err
}

func (c *Client) enqueue(f Frame) bool {
	select {
	case <-c.closing:
		return false
	case <-c.readDone:
		return false
	default:
	}

	select {
	case c.send <- f:
		return true
	default:
		return false
	}
}

func (c *Client) readLoop() {
	defer close(c.readDone)

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case <-c.closing:
			default:
				c.mu.Lock()
				c.err = err
				c.mu.Unlock()
				c.logger.Warn("connection lost", "error", err)
			}
			return
		}

		var f Frame
		if err := json.Unmarshal(message, &f); err != nil {
			c.logger.Warn("failed to decode frame", "error", err)
			continue
		}
		if f.Type != FrameValue {
			continue
		}
		c.local.Publish(f.Topic, bus.Options{SendAll: true, KeepDuplicates: true}).Set(f.Value)
	}
}

func (c *Client) writeLoop() {
	defer close(c.writeDone)

	for {
		select {
		case f := <-c.send:
			if err := c.write(f); err != nil {
				c.logger.Debug("failed to write frame", "error", err)
				return
			}

		case <-c.readDone:
			return

		case <-c.closing:
			for {
				select {
				case f := <-c.send:
					if err := c.write(f); err != nil {
						return
					}
				default:
					_ = c.ws.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
						time.Now().Add(writeWait))
					return
				}
			}
		}
	}
}

func (c *Client) write(f Frame) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteJSON(f)
}

// remotePublisher sends publish frames on behalf of one topic.
type remotePublisher struct {
	client *Client
	topic  string
	opts   bus.Options
}

func (p *remotePublisher) Topic() string {
	return p.topic
}

func (p *remotePublisher) Set(value string) {
	opts := p.opts
	if !p.client.enqueue(Frame{Type: FramePublish, Topic: p.topic, Value: value, Options: &opts}) {
		p.client.logger.Warn("value not sent", "topic", p.topic)
	}
}
