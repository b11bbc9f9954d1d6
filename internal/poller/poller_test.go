package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradebot/internal/model"
	"tradebot/internal/obs"
	"tradebot/pkg/backoff"
	"tradebot/pkg/exception"
)

type scriptedSource struct {
	mu      sync.Mutex
	batches [][]model.Update
	errs    []error
	calls   int
	served  chan struct{}
}

func (s *scriptedSource) Fetch(ctx context.Context) ([]model.Update, error) {
	s.mu.Lock()
	s.calls++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		s.mu.Unlock()
		return nil, err
	}
	if len(s.batches) > 0 {
		batch := s.batches[0]
		s.batches = s.batches[1:]
		last := len(s.batches) == 0
		s.mu.Unlock()
		if last && s.served != nil {
			close(s.served)
		}
		return batch, nil
	}
	s.mu.Unlock()
	<-ctx.Done()
	return nil, ctx.Err()
}

type sent struct {
	conversationID int64
	text           string
}

type recordingSink struct {
	mu   sync.Mutex
	sent []sent
	err  error
}

func (s *recordingSink) Send(_ context.Context, conversationID int64, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, sent{conversationID: conversationID, text: text})
	return nil
}

func (s *recordingSink) texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.sent))
	for _, m := range s.sent {
		out = append(out, m.text)
	}
	return out
}

func update(id, conversationID int64, text string) model.Update {
	return model.Update{ID: id, ConversationID: conversationID, SenderID: 1, Text: text}
}

func echo(_ context.Context, u model.Update) (string, error) {
	return "ok:" + u.Text, nil
}

func TestNewRejectsNilCollaborators(t *testing.T) {
	_, err := New(nil, &recordingSink{}, HandlerFunc(echo), nil, Config{})
	assert.ErrorIs(t, err, exception.ErrNilInstance)
	_, err = New(&scriptedSource{}, nil, HandlerFunc(echo), nil, Config{})
	assert.ErrorIs(t, err, exception.ErrNilInstance)
	_, err = New(&scriptedSource{}, &recordingSink{}, nil, nil, Config{})
	assert.ErrorIs(t, err, exception.ErrNilInstance)
}

func TestDispatchKeepsPerConversationOrder(t *testing.T) {
	var (
		mu       sync.Mutex
		seen     = map[int64][]string{}
		inFlight = map[int64]*atomic.Int32{1: {}, 2: {}, 3: {}}
		overlap  atomic.Bool
	)
	handler := HandlerFunc(func(_ context.Context, u model.Update) (string, error) {
		counter := inFlight[u.ConversationID]
		if counter.Add(1) > 1 {
			overlap.Store(true)
		}
		time.Sleep(time.Duration(u.ID%3) * time.Millisecond)
		mu.Lock()
		seen[u.ConversationID] = append(seen[u.ConversationID], u.Text)
		mu.Unlock()
		counter.Add(-1)
		return "", nil
	})

	p, err := New(&scriptedSource{}, &recordingSink{}, handler, nil, Config{})
	require.NoError(t, err)

	var batch []model.Update
	want := map[int64][]string{}
	for i := range 30 {
		conv := int64(i%3 + 1)
		text := fmt.Sprintf("m%d", i)
		batch = append(batch, update(int64(i), conv, text))
		want[conv] = append(want[conv], text)
	}
	p.Dispatch(t.Context(), batch)

	assert.Equal(t, want, seen)
	assert.False(t, overlap.Load())
	assert.Equal(t, 0, p.Pending())
}

func TestDispatchRunsConversationsConcurrently(t *testing.T) {
	release := make(chan struct{})
	var started sync.WaitGroup
	started.Add(2)

	handler := HandlerFunc(func(_ context.Context, u model.Update) (string, error) {
		started.Done()
		<-release
		return "", nil
	})
	p, err := New(&scriptedSource{}, &recordingSink{}, handler, nil, Config{})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Dispatch(t.Context(), []model.Update{update(1, 1, "a"), update(2, 2, "b")})
	}()

	// both handlers are entered before either is released
	started.Wait()
	close(release)
	<-done
}

func TestDispatchIsolatesFailures(t *testing.T) {
	metrics := obs.NewMetrics()
	sink := &recordingSink{}
	handler := HandlerFunc(func(ctx context.Context, u model.Update) (string, error) {
		switch u.Text {
		case "boom":
			return "", errors.New("store down")
		case "panic":
			panic("nil map")
		case "quiet":
			return "", nil
		}
		return echo(ctx, u)
	})
	p, err := New(&scriptedSource{}, sink, handler, metrics, Config{FailureReply: "oops"})
	require.NoError(t, err)

	p.Dispatch(t.Context(), []model.Update{
		update(1, 1, "boom"),
		update(2, 1, "after"),
		update(3, 2, "panic"),
		update(4, 2, "quiet"),
		update(5, 2, "still"),
	})

	assert.ElementsMatch(t, []string{"oops", "ok:after", "oops", "ok:still"}, sink.texts())

	snap := metrics.Snapshot()
	assert.Equal(t, uint64(5), snap.Received)
	assert.Equal(t, uint64(5), snap.Handled)
	assert.Equal(t, uint64(2), snap.Failed)
	assert.Equal(t, uint64(1), snap.Panics)
	assert.Equal(t, uint64(4), snap.Replies)
	assert.Equal(t, uint64(2), snap.Conversations)
}

func TestDispatchCountsReplyFailures(t *testing.T) {
	metrics := obs.NewMetrics()
	sink := &recordingSink{err: errors.New("network")}
	p, err := New(&scriptedSource{}, sink, HandlerFunc(echo), metrics, Config{})
	require.NoError(t, err)

	p.Dispatch(t.Context(), []model.Update{update(1, 1, "a"), update(2, 1, "b")})

	snap := metrics.Snapshot()
	assert.Equal(t, uint64(2), snap.ReplyFailures)
	assert.Equal(t, uint64(0), snap.Replies)
	assert.Equal(t, uint64(0), snap.Failed)
}

func TestRunRetriesFetchFailures(t *testing.T) {
	metrics := obs.NewMetrics()
	source := &scriptedSource{
		errs:    []error{errors.New("timeout"), errors.New("timeout")},
		batches: [][]model.Update{{update(1, 1, "a")}},
		served:  make(chan struct{}),
	}
	sink := &recordingSink{}
	p, err := New(source, sink, HandlerFunc(echo), metrics, Config{
		Backoff: backoff.Backoff{Min: time.Millisecond, Max: time.Millisecond},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	errc := make(chan error, 1)
	go func() { errc <- p.Run(ctx) }()

	<-source.served
	require.Eventually(t, func() bool { return len(sink.texts()) == 1 }, time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)

	assert.Equal(t, uint64(2), metrics.Snapshot().FetchFailures)
	assert.Equal(t, []string{"ok:a"}, sink.texts())
}

func TestStopDrainsFetchedUpdates(t *testing.T) {
	var batch []model.Update
	for i := range 10 {
		batch = append(batch, update(int64(i), int64(i%2), fmt.Sprintf("m%d", i)))
	}
	source := &scriptedSource{batches: [][]model.Update{batch}, served: make(chan struct{})}

	var handled atomic.Int32
	handler := HandlerFunc(func(_ context.Context, u model.Update) (string, error) {
		time.Sleep(5 * time.Millisecond)
		handled.Add(1)
		return "", nil
	})
	p, err := New(source, &recordingSink{}, handler, nil, Config{})
	require.NoError(t, err)

	require.NoError(t, p.Start(t.Context()))
	assert.ErrorIs(t, p.Start(t.Context()), ErrAlreadyRunning)
	assert.True(t, p.Running())

	<-source.served
	p.Stop()

	assert.False(t, p.Running())
	assert.Equal(t, int32(len(batch)), handled.Load())
	assert.Equal(t, 0, p.Pending())

	// a second stop is a no-op
	p.Stop()
}
