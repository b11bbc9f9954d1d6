// Package poller fans inbound chat updates out to per-conversation queues
// and drains every queue with a single worker, so updates of one
// conversation are handled strictly in arrival order while different
// conversations proceed concurrently.
package poller

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"tradebot/internal/bus"
	"tradebot/internal/model"
	"tradebot/internal/obs"
	"tradebot/pkg/backoff"
	"tradebot/pkg/exception"
)

const (
	DefaultReplyTimeout = 10 * time.Second
	DefaultFailureReply = "Something went wrong, please try again later."
)

var ErrAlreadyRunning = errors.New("poller already running")

// Source produces batches of inbound updates. Fetch may block until the
// upstream long poll returns.
type Source interface {
	Fetch(ctx context.Context) ([]model.Update, error)
}

// Sink delivers reply text to a conversation.
type Sink interface {
	Send(ctx context.Context, conversationID int64, text string) error
}

// Handler processes one update. An empty reply means nothing is sent.
type Handler interface {
	Handle(ctx context.Context, u model.Update) (string, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, u model.Update) (string, error)

func (f HandlerFunc) Handle(ctx context.Context, u model.Update) (string, error) {
	return f(ctx, u)
}

// Config tunes the dispatch loop. Zero values fall back to defaults.
type Config struct {
	ReplyTimeout time.Duration
	FailureReply string
	Backoff      backoff.Backoff
}

// Poller owns the conversation queues and the fetch loop.
type Poller struct {
	source  Source
	sink    Sink
	handler Handler
	metrics *obs.Metrics
	cfg     Config

	mu     sync.Mutex
	queues map[int64]*bus.Queue[model.Update]

	cycleMu sync.Mutex

	running atomic.Bool
	lifeMu  sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
}

// New builds a poller. metrics may be nil.
func New(source Source, sink Sink, handler Handler, metrics *obs.Metrics, cfg Config) (*Poller, error) {
	if source == nil || sink == nil || handler == nil {
		return nil, exception.ErrNilInstance
	}
	if cfg.ReplyTimeout <= 0 {
		cfg.ReplyTimeout = DefaultReplyTimeout
	}
	if cfg.FailureReply == "" {
		cfg.FailureReply = DefaultFailureReply
	}
	if cfg.Backoff.IsZero() {
		cfg.Backoff = backoff.Default()
	}
	return &Poller{
		source:  source,
		sink:    sink,
		handler: handler,
		metrics: metrics,
		cfg:     cfg,
		queues:  make(map[int64]*bus.Queue[model.Update]),
	}, nil
}

// Start runs the loop in the background until Stop or ctx ends.
func (p *Poller) Start(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	p.lifeMu.Lock()
	p.cancel = cancel
	p.done = done
	p.lifeMu.Unlock()

	go func() {
		defer close(done)
		_ = p.Run(ctx)
	}()
	logs.Info("poller started")
	return nil
}

// Stop cancels the pending fetch and waits for the in-flight cycle. Updates
// already fetched are handled before Stop returns.
func (p *Poller) Stop() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	p.lifeMu.Lock()
	cancel, done := p.cancel, p.done
	p.lifeMu.Unlock()

	cancel()
	<-done
	logs.Info("poller stopped")
}

// Running reports whether Start is in effect.
func (p *Poller) Running() bool {
	return p.running.Load()
}

// Run fetches and dispatches until ctx ends. Fetch failures are retried
// after a backoff delay.
func (p *Poller) Run(ctx context.Context) error {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		start := time.Now()
		updates, err := p.source.Fetch(ctx)
		p.metrics.ObserveFetch(time.Since(start))
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			attempt++
			p.metrics.IncFetchFailure()
			logs.Errorf("poller: fetch updates (attempt %d), err: %+v", attempt, err)
			if !p.cfg.Backoff.Sleep(ctx, attempt) {
				return ctx.Err()
			}
			continue
		}
		attempt = 0

		// fetched updates are handled even when a stop arrived meanwhile
		p.Dispatch(context.WithoutCancel(ctx), updates)
	}
}

// Dispatch enqueues a batch and blocks until every non-empty queue is drained.
func (p *Poller) Dispatch(ctx context.Context, updates []model.Update) {
	p.cycleMu.Lock()
	defer p.cycleMu.Unlock()

	p.metrics.AddReceived(len(updates))
	for _, u := range updates {
		if err := p.queue(u.ConversationID).Push(u); err != nil {
			logs.Errorf("poller: enqueue update %d for conversation %d, err: %+v", u.ID, u.ConversationID, err)
		}
	}

	var wg sync.WaitGroup
	for _, q := range p.nonEmpty() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.drain(ctx, q)
		}()
	}
	wg.Wait()
}

// Pending returns the number of queued updates across conversations.
func (p *Poller) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, q := range p.queues {
		n += q.Len()
	}
	return n
}

func (p *Poller) queue(conversationID int64) *bus.Queue[model.Update] {
	p.mu.Lock()
	defer p.mu.Unlock()
	q, ok := p.queues[conversationID]
	if !ok {
		q = bus.NewQueue[model.Update](8)
		p.queues[conversationID] = q
		p.metrics.IncConversation()
	}
	return q
}

func (p *Poller) nonEmpty() []*bus.Queue[model.Update] {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*bus.Queue[model.Update], 0, len(p.queues))
	for _, q := range p.queues {
		if q.Len() > 0 {
			out = append(out, q)
		}
	}
	return out
}

func (p *Poller) drain(ctx context.Context, q *bus.Queue[model.Update]) {
	for {
		u, ok := q.Pop()
		if !ok {
			return
		}
		p.process(ctx, u)
	}
}

func (p *Poller) process(ctx context.Context, u model.Update) {
	start := time.Now()
	reply, err := p.handle(ctx, u)
	p.metrics.ObserveHandle(time.Since(start), err != nil)
	if err != nil {
		logs.Errorf("poller: handle update %d in conversation %d, err: %+v", u.ID, u.ConversationID, err)
		reply = p.cfg.FailureReply
	}
	if reply == "" {
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, p.cfg.ReplyTimeout)
	defer cancel()
	if err := p.sink.Send(sendCtx, u.ConversationID, reply); err != nil {
		p.metrics.IncReplyFailure()
		logs.Errorf("poller: send reply to conversation %d, err: %+v", u.ConversationID, err)
		return
	}
	p.metrics.IncReply()
}

func (p *Poller) handle(ctx context.Context, u model.Update) (reply string, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.metrics.IncPanic()
			err = errors.Errorf("handler panic: %v", r)
		}
	}()
	return p.handler.Handle(ctx, u)
}
