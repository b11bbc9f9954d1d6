package round

import (
	"math/rand/v2"
	"sync"

	"tradebot/internal/model"
)

// RandomPicker draws events uniformly with replacement.
type RandomPicker struct {
	mu     sync.Mutex
	rng    *rand.Rand
	events []model.Event
}

func NewRandomPicker(events []model.Event, seed uint64) *RandomPicker {
	copied := make([]model.Event, len(events))
	copy(copied, events)
	return &RandomPicker{
		rng:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		events: copied,
	}
}

func (p *RandomPicker) Pick() (model.Event, bool) {
	if p == nil || len(p.events) == 0 {
		return model.Event{}, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.events[p.rng.IntN(len(p.events))], true
}
