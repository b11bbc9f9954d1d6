package relay

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradebot/internal/model"
	"tradebot/pkg/backoff"
	"tradebot/pkg/exception"
)

type fakeRelay struct {
	t       *testing.T
	greet   []Frame
	replies chan Frame
}

func (f *fakeRelay) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	conn, err := upgrader.Upgrade(w, r, nil)
	if !assert.NoError(f.t, err) {
		return
	}
	defer conn.Close()

	for _, fr := range f.greet {
		if err := conn.WriteJSON(fr); err != nil {
			return
		}
	}
	for {
		var in Frame
		if err := conn.ReadJSON(&in); err != nil {
			return
		}
		switch in.Type {
		case frameRosterRequest:
			if in.ConversationID != 7 {
				continue
			}
			_ = conn.WriteJSON(Frame{
				Type:           frameRoster,
				RequestID:      in.ID,
				ConversationID: in.ConversationID,
				Profiles: []Profile{
					{ID: 101, FirstName: "Ivan", LastName: "Petrov"},
				},
			})
		case frameReply:
			f.replies <- in
		}
	}
}

func connect(t *testing.T, relay *fakeRelay) *Client {
	t.Helper()
	srv := httptest.NewServer(relay)
	t.Cleanup(srv.Close)

	c, err := New(Config{
		URL:           "ws" + strings.TrimPrefix(srv.URL, "http"),
		PollInterval:  200 * time.Millisecond,
		RosterTimeout: 100 * time.Millisecond,
		Backoff:       backoff.Backoff{Min: 10 * time.Millisecond, Max: 10 * time.Millisecond},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	require.Eventually(t, c.Connected, time.Second, 5*time.Millisecond)
	return c
}

func TestNewRequiresURL(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, exception.ErrInvalidConfig)
}

func TestSendWithoutConnection(t *testing.T) {
	c, err := New(Config{URL: "ws://127.0.0.1:1"})
	require.NoError(t, err)
	assert.ErrorIs(t, c.Send(t.Context(), 1, "hi"), exception.ErrTransportNotConnected)
	assert.Empty(t, c.FetchRoster(t.Context(), 1))
}

func TestFetchBuffersMessages(t *testing.T) {
	relay := &fakeRelay{
		t: t,
		greet: []Frame{
			{Type: frameMessage, MessageID: 1, ConversationID: 7, SenderID: 101, Text: "/start_game"},
			{Type: frameMessage, MessageID: 2, ConversationID: 8, SenderID: 102, Text: "/info"},
		},
		replies: make(chan Frame, 4),
	}
	c := connect(t, relay)

	var got []model.Update
	deadline := time.Now().Add(2 * time.Second)
	for len(got) < 2 && time.Now().Before(deadline) {
		batch, err := c.Fetch(t.Context())
		require.NoError(t, err)
		got = append(got, batch...)
	}

	assert.Equal(t, []model.Update{
		{ID: 1, ConversationID: 7, SenderID: 101, Text: "/start_game"},
		{ID: 2, ConversationID: 8, SenderID: 102, Text: "/info"},
	}, got)

	batch, err := c.Fetch(t.Context())
	require.NoError(t, err)
	assert.Empty(t, batch)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err = c.Fetch(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSendAndRoster(t *testing.T) {
	relay := &fakeRelay{t: t, replies: make(chan Frame, 4)}
	c := connect(t, relay)

	require.NoError(t, c.Send(t.Context(), 7, "hello"))
	select {
	case reply := <-relay.replies:
		assert.Equal(t, int64(7), reply.ConversationID)
		assert.Equal(t, "hello", reply.Text)
		assert.NotEmpty(t, reply.ID)
	case <-time.After(time.Second):
		t.Fatalf("reply not received")
	}

	assert.Equal(t, []model.Profile{{ExternalID: 101, FirstName: "Ivan", LastName: "Petrov"}}, c.FetchRoster(t.Context(), 7))
	assert.Empty(t, c.FetchRoster(t.Context(), 8))
}

func TestFrameWireFormat(t *testing.T) {
	payload, err := sonic.ConfigFastest.Marshal(Frame{Type: frameReply, ID: "x", ConversationID: 3, Text: "hi"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"reply","id":"x","conversation_id":3,"text":"hi"}`, string(payload))
}
