package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"annfeed/internal/feed"
	"annfeed/internal/util"
)

// WSOptions configures a WSClient.
type WSOptions struct {
	Header       http.Header
	PingInterval time.Duration // default 30s
	PongWait     time.Duration // default 90s
	BackoffBase  time.Duration // default 1s
	BackoffMax   time.Duration // default 30s
	Status       StatusFunc
	Logger       *slog.Logger
}

// WSClient reads announcement records from a WebSocket, one JSON record per
// text frame, and reconnects with backoff until its context ends.
type WSClient struct {
	url    string
	sink   Sink
	opts   WSOptions
	log    *slog.Logger
	dialer *websocket.Dialer
}

// NewWSClient creates a client for the given ws:// or wss:// URL.
func NewWSClient(url string, sink Sink, opts WSOptions) *WSClient {
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	if opts.PongWait <= 0 {
		opts.PongWait = 90 * time.Second
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = time.Second
	}
	if opts.BackoffMax <= 0 {
		opts.BackoffMax = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = util.Discard()
	}
	return &WSClient{
		url:    url,
		sink:   sink,
		opts:   opts,
		log:    opts.Logger,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

// Run connects and reads until ctx is cancelled, reconnecting after every
// failure. It always returns nil once ctx is done.
func (c *WSClient) Run(ctx context.Context) error {
	backoff := util.Backoff{Base: c.opts.BackoffBase, Max: c.opts.BackoffMax}
	for {
		c.opts.Status.report(feed.LiveConnecting)
		err := c.session(ctx, &backoff)
		c.opts.Status.report(feed.LiveDisconnected)
		if ctx.Err() != nil {
			return nil
		}
		delay := backoff.Next()
		c.log.Warn("push channel disconnected", "url", c.url, "error", err, "retry_in", delay)
		if util.Sleep(ctx, delay) != nil {
			return nil
		}
	}
}

func (c *WSClient) session(ctx context.Context, backoff *util.Backoff) error {
	conn, _, err := c.dialer.DialContext(ctx, c.url, c.opts.Header)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.url, err)
	}
	defer conn.Close()

	backoff.Reset()
	c.opts.Status.report(feed.LiveConnected)
	c.log.Info("push channel connected", "url", c.url)

	done := make(chan struct{})
	defer close(done)
	go func() {
		ping := time.NewTicker(c.opts.PingInterval)
		defer ping.Stop()
		for {
			select {
			case <-ctx.Done():
				// Unblocks ReadMessage.
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
				_ = conn.Close()
				return
			case <-ping.C:
				_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second))
			case <-done:
				return
			}
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	})

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return errors.New("closed by server")
			}
			return fmt.Errorf("read: %w", err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
		if mt != websocket.TextMessage {
			continue
		}
		rec, err := feed.DecodeRecord(data)
		if err != nil {
			c.log.Warn("dropping malformed push payload", "error", err, "bytes", len(data))
			continue
		}
		if c.sink.Merge(rec) {
			c.log.Debug("merged pushed record", "id", rec.ID)
		}
	}
}
