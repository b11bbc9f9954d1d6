// Package vk is the VK community long poll transport. It implements the
// poller's update source and reply sink and the coordinator's roster source.
package vk

import (
	"context"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"tradebot/internal/model"
	"tradebot/pkg/exception"
)

const (
	DefaultAPIURL  = "https://api.vk.com/method/"
	DefaultVersion = "5.131"
	DefaultWait    = 25 * time.Second

	eventMessageNew = "message_new"

	failedHistory    = 1
	failedKeyExpired = 2
	failedInfoLost   = 3
)

// Config identifies the community the bot acts for.
type Config struct {
	Token   string
	GroupID int64
	APIURL  string
	Version string
	// Wait is the long poll hold time requested from the server.
	Wait   time.Duration
	Client *http.Client
}

// Client talks to the VK API. Fetch calls are expected from one goroutine;
// Send and FetchRoster may run concurrently with it.
type Client struct {
	cfg    Config
	client *http.Client

	mu     sync.Mutex
	server string
	key    string
	ts     Timestamp
}

// New validates cfg and fills defaults.
func New(cfg Config) (*Client, error) {
	if cfg.Token == "" || cfg.GroupID <= 0 {
		return nil, errors.Wrap(exception.ErrInvalidConfig, "vk token and group id are required")
	}
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if !strings.HasSuffix(cfg.APIURL, "/") {
		cfg.APIURL += "/"
	}
	if cfg.Version == "" {
		cfg.Version = DefaultVersion
	}
	if cfg.Wait <= 0 {
		cfg.Wait = DefaultWait
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Wait + 10*time.Second}
	}
	return &Client{cfg: cfg, client: client}, nil
}

// Connect obtains a long poll server, key and starting ts.
func (c *Client) Connect(ctx context.Context) error {
	var resp Response[LongPollServer]
	params := url.Values{}
	params.Set("group_id", strconv.FormatInt(c.cfg.GroupID, 10))
	if err := c.call(ctx, "groups.getLongPollServer", params, &resp); err != nil {
		return errors.Wrap(err, "get long poll server")
	}

	c.mu.Lock()
	c.server = resp.Response.Server
	c.key = resp.Response.Key
	c.ts = resp.Response.TS
	c.mu.Unlock()
	logs.Infof("vk: long poll server acquired for group %d", c.cfg.GroupID)
	return nil
}

// Fetch waits for the next batch of new messages.
func (c *Client) Fetch(ctx context.Context) ([]model.Update, error) {
	c.mu.Lock()
	server, key, ts := c.server, c.key, c.ts
	c.mu.Unlock()
	if server == "" {
		if err := c.Connect(ctx); err != nil {
			return nil, err
		}
		return nil, nil
	}

	params := url.Values{}
	params.Set("act", "a_check")
	params.Set("key", key)
	params.Set("ts", string(ts))
	params.Set("wait", strconv.Itoa(int(c.cfg.Wait/time.Second)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server+"?"+params.Encode(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "build long poll request")
	}

	var data LongPollResponse
	if err := c.do(req, &data); err != nil {
		return nil, errors.Wrap(err, "long poll")
	}

	switch data.Failed {
	case 0:
	case failedHistory:
		c.setTS(data.TS)
		return nil, nil
	case failedKeyExpired, failedInfoLost:
		c.mu.Lock()
		c.server = ""
		c.mu.Unlock()
		return nil, c.Connect(ctx)
	default:
		return nil, errors.Wrapf(exception.ErrTransportResponse, "long poll failed with code %d", data.Failed)
	}

	c.setTS(data.TS)
	updates := make([]model.Update, 0, len(data.Updates))
	for _, ev := range data.Updates {
		if ev.Type != eventMessageNew {
			continue
		}
		updates = append(updates, ev.Object.Message.toUpdate())
	}
	return updates, nil
}

func (c *Client) setTS(ts Timestamp) {
	if ts == "" {
		return
	}
	c.mu.Lock()
	c.ts = ts
	c.mu.Unlock()
}

// FetchRoster lists conversation members. Failures are logged and yield an empty roster.
func (c *Client) FetchRoster(ctx context.Context, conversationID int64) []model.Profile {
	var resp Response[ConversationMembers]
	params := url.Values{}
	params.Set("peer_id", strconv.FormatInt(conversationID, 10))
	params.Set("fields", "first_name,last_name")
	if err := c.call(ctx, "messages.getConversationMembers", params, &resp); err != nil {
		logs.Errorf("vk: fetch roster of conversation %d, err: %+v", conversationID, err)
		return nil
	}

	profiles := make([]model.Profile, 0, len(resp.Response.Profiles))
	for _, p := range resp.Response.Profiles {
		profiles = append(profiles, p.toModel())
	}
	return profiles
}

// Send posts text to the conversation.
func (c *Client) Send(ctx context.Context, conversationID int64, text string) error {
	var resp Response[int64]
	params := url.Values{}
	params.Set("random_id", strconv.FormatUint(uint64(rand.Uint32()), 10))
	params.Set("peer_id", strconv.FormatInt(conversationID, 10))
	params.Set("message", text)
	if err := c.call(ctx, "messages.send", params, &resp); err != nil {
		return errors.Wrap(err, "send message").With("conversation", conversationID)
	}
	return nil
}

// call posts an API method with the token and version attached.
func (c *Client) call(ctx context.Context, method string, params url.Values, out any) error {
	params.Set("access_token", c.cfg.Token)
	params.Set("v", c.cfg.Version)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIURL+method, strings.NewReader(params.Encode()))
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	if err := c.do(req, out); err != nil {
		return err
	}
	if e, ok := out.(interface{ apiError() *APIError }); ok {
		if apiErr := e.apiError(); apiErr != nil {
			return errors.Wrapf(exception.ErrTransportResponse, "%s: %d %s", method, apiErr.Code, apiErr.Message)
		}
	}
	return nil
}

func (r *Response[T]) apiError() *APIError {
	return r.Error
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		if req.Context().Err() != nil {
			return req.Context().Err()
		}
		return errors.Wrap(err, "http do")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return errors.Wrapf(exception.ErrTransportStatus, "status %d", resp.StatusCode)
	}
	if err := sonic.ConfigFastest.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decode response")
	}
	return nil
}
