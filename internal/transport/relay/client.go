// Package relay connects to a websocket relay that forwards chat messages
// from any platform. It implements the poller's update source and reply sink
// and the coordinator's roster source.
package relay

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"tradebot/internal/model"
	"tradebot/pkg/backoff"
	"tradebot/pkg/exception"
)

const (
	DefaultPollInterval  = 25 * time.Second
	DefaultRosterTimeout = 5 * time.Second
	DefaultWriteTimeout  = 5 * time.Second
	DefaultInboxSize     = 1024
)

// Config describes the relay endpoint.
type Config struct {
	URL    string
	Header http.Header
	// PollInterval bounds how long Fetch waits for the first message.
	PollInterval  time.Duration
	RosterTimeout time.Duration
	WriteTimeout  time.Duration
	InboxSize     int
	Backoff       backoff.Backoff
	Dialer        *websocket.Dialer
}

// Client keeps one websocket connection to the relay and reconnects on failure.
type Client struct {
	cfg Config

	inbox chan model.Update

	connMu  sync.Mutex
	conn    *websocket.Conn
	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan []model.Profile

	connected atomic.Bool
}

// New validates cfg and fills defaults.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.Wrap(exception.ErrInvalidConfig, "relay url is required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.RosterTimeout <= 0 {
		cfg.RosterTimeout = DefaultRosterTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = DefaultInboxSize
	}
	if cfg.Backoff.IsZero() {
		cfg.Backoff = backoff.Default()
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	return &Client{
		cfg:     cfg,
		inbox:   make(chan model.Update, cfg.InboxSize),
		pending: make(map[string]chan []model.Profile),
	}, nil
}

// Connected reports whether a relay session is open.
func (c *Client) Connected() bool {
	return c.connected.Load()
}

// Run dials the relay and reads frames until ctx ends, reconnecting with backoff.
func (c *Client) Run(ctx context.Context) error {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn, _, err := c.cfg.Dialer.DialContext(ctx, c.cfg.URL, c.cfg.Header)
		if err != nil {
			attempt++
			logs.Errorf("relay: dial %s (attempt %d), err: %+v", c.cfg.URL, attempt, err)
			c.cfg.Backoff.Sleep(ctx, attempt)
			continue
		}

		attempt = 0
		c.setConn(conn)
		logs.Infof("relay: connected to %s", c.cfg.URL)

		err = c.readLoop(ctx, conn)
		c.setConn(nil)
		_ = conn.Close()

		if ctx.Err() != nil {
			return ctx.Err()
		}
		logs.Errorf("relay: session ended, err: %+v", err)
		attempt++
		c.cfg.Backoff.Sleep(ctx, attempt)
	}
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	c.connected.Store(conn != nil)
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) error {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var f Frame
		if err := sonic.ConfigFastest.Unmarshal(payload, &f); err != nil {
			logs.Errorf("relay: decode frame, err: %+v", err)
			continue
		}
		c.route(ctx, f)
	}
}

func (c *Client) route(ctx context.Context, f Frame) {
	switch f.Type {
	case frameMessage:
		select {
		case c.inbox <- f.update():
		case <-ctx.Done():
		}
	case frameRoster:
		c.pendingMu.Lock()
		ch, ok := c.pending[f.RequestID]
		delete(c.pending, f.RequestID)
		c.pendingMu.Unlock()
		if ok {
			ch <- f.profiles()
		}
	default:
		logs.Infof("relay: ignore frame of type %q", f.Type)
	}
}

// Fetch waits up to the poll interval for a message and returns everything
// buffered at that point.
func (c *Client) Fetch(ctx context.Context) ([]model.Update, error) {
	timer := time.NewTimer(c.cfg.PollInterval)
	defer timer.Stop()

	var first model.Update
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, nil
	case first = <-c.inbox:
	}

	updates := []model.Update{first}
	for {
		select {
		case u := <-c.inbox:
			updates = append(updates, u)
		default:
			return updates, nil
		}
	}
}

// Send delivers a reply frame.
func (c *Client) Send(ctx context.Context, conversationID int64, text string) error {
	return c.write(ctx, Frame{
		Type:           frameReply,
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Text:           text,
	})
}

// FetchRoster asks the relay for the conversation members. Failures and
// timeouts are logged and yield an empty roster.
func (c *Client) FetchRoster(ctx context.Context, conversationID int64) []model.Profile {
	id := uuid.NewString()
	ch := make(chan []model.Profile, 1)
	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	err := c.write(ctx, Frame{Type: frameRosterRequest, ID: id, ConversationID: conversationID})
	if err != nil {
		logs.Errorf("relay: request roster of conversation %d, err: %+v", conversationID, err)
		return nil
	}

	timer := time.NewTimer(c.cfg.RosterTimeout)
	defer timer.Stop()
	select {
	case profiles := <-ch:
		return profiles
	case <-timer.C:
		logs.Errorf("relay: roster of conversation %d, err: %+v", conversationID, exception.ErrTransportTimeout)
		return nil
	case <-ctx.Done():
		return nil
	}
}

func (c *Client) write(ctx context.Context, f Frame) error {
	payload, err := sonic.ConfigFastest.Marshal(f)
	if err != nil {
		return errors.Wrap(err, "encode frame")
	}

	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()
	if conn == nil {
		return exception.ErrTransportNotConnected
	}

	deadline := time.Now().Add(c.cfg.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return errors.Wrap(err, "set write deadline")
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return errors.Wrap(err, "write frame").With("type", f.Type)
	}
	return nil
}
