package round

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"tradebot/internal/ledger"
	"tradebot/internal/model"
	"tradebot/internal/model/enum"
)

var (
	ErrGameEnded       = errors.New("round: game already ended")
	ErrNotInGame       = errors.New("round: player is not in game")
	ErrAlreadyFinished = errors.New("round: player already finished this round")
	ErrNoEvents        = errors.New("round: event catalog is empty")
)

// DefaultFinalRound ends the game after ten completed rounds.
const DefaultFinalRound = 11

// OutcomeKind tells what a MarkFinished call did to the game.
type OutcomeKind uint8

const (
	OutcomeWaiting OutcomeKind = iota + 1
	OutcomeAdvanced
	OutcomeEnded
)

// PriceChange is the re-pricing of one security at a round boundary.
type PriceChange struct {
	Code  string
	Old   decimal.Decimal
	New   decimal.Decimal
	Event model.Event
}

// Standing is a player's net worth at the current prices.
type Standing struct {
	Player   model.Player
	NetWorth decimal.Decimal
}

// Outcome is the result of a MarkFinished call.
type Outcome struct {
	Kind      OutcomeKind
	Round     int
	Changes   []PriceChange
	Winner    Standing
	Standings []Standing
}

// EventPicker draws the event applied to a single security. ok is false when
// there is nothing to draw from.
type EventPicker interface {
	Pick() (ev model.Event, ok bool)
}

// Engine advances rounds for one game at a time. It holds no game state; the
// caller passes the aggregate loaded inside a game-scoped transaction.
type Engine struct {
	finalRound int
	picker     EventPicker
	now        func() time.Time
}

// NewEngine creates an engine ending games at finalRound. A finalRound below 2
// falls back to DefaultFinalRound.
func NewEngine(finalRound int, picker EventPicker) *Engine {
	if finalRound < 2 {
		finalRound = DefaultFinalRound
	}
	return &Engine{
		finalRound: finalRound,
		picker:     picker,
		now:        time.Now,
	}
}

// FinalRound returns the round number at which games end.
func (e *Engine) FinalRound() int {
	return e.finalRound
}

// MarkFinished flags the player as done with the current round. When every
// player is done the round advances, every security is re-priced, and at the
// final round the game ends and a winner is set on r.
func (e *Engine) MarkFinished(r *model.Round, playerID int64) (Outcome, error) {
	if !r.Game.Going() {
		return Outcome{}, ErrGameEnded
	}
	done, ok := r.Game.Finished[playerID]
	if !ok {
		return Outcome{}, ErrNotInGame
	}
	if done {
		return Outcome{}, ErrAlreadyFinished
	}

	r.Game.Finished[playerID] = true
	if !allFinished(r.Game.Finished) {
		return Outcome{Kind: OutcomeWaiting, Round: r.Game.Round}, nil
	}

	events, err := e.draw(len(r.Securities))
	if err != nil {
		r.Game.Finished[playerID] = false
		return Outcome{}, err
	}

	for id := range r.Game.Finished {
		r.Game.Finished[id] = false
	}
	r.Game.Round++
	changes := reprice(r, events)

	if r.Game.Round < e.finalRound {
		return Outcome{Kind: OutcomeAdvanced, Round: r.Game.Round, Changes: changes}, nil
	}

	r.Game.State = enum.GameStateEnded
	standings := Standings(r)
	winner, _ := ResolveWinner(r)
	r.Winner = &model.Winner{
		GameID:    r.Game.ID,
		PlayerID:  winner.Player.ID,
		NetWorth:  winner.NetWorth,
		CreatedAt: e.now(),
	}

	return Outcome{
		Kind:      OutcomeEnded,
		Round:     r.Game.Round,
		Changes:   changes,
		Winner:    winner,
		Standings: standings,
	}, nil
}

// draw picks one event per security, with replacement.
func (e *Engine) draw(n int) ([]model.Event, error) {
	events := make([]model.Event, 0, n)
	for range n {
		if e.picker == nil {
			return nil, ErrNoEvents
		}
		ev, ok := e.picker.Pick()
		if !ok {
			return nil, ErrNoEvents
		}
		events = append(events, ev)
	}
	return events, nil
}

func reprice(r *model.Round, events []model.Event) []PriceChange {
	changes := make([]PriceChange, 0, len(r.Securities))
	for i := range r.Securities {
		sec := &r.Securities[i]
		ev := events[i]
		old := sec.Price
		sec.Price = model.Money(old.Mul(ev.Diff))
		changes = append(changes, PriceChange{
			Code:  sec.Code,
			Old:   old,
			New:   sec.Price,
			Event: ev,
		})
	}
	return changes
}

// Standings returns every roster member's net worth in roster order.
// Players without an account count as zero.
func Standings(r *model.Round) []Standing {
	prices := make(map[string]decimal.Decimal, len(r.Securities))
	for _, sec := range r.Securities {
		prices[sec.Code] = sec.Price
	}

	standings := make([]Standing, 0, len(r.Players))
	for _, p := range r.Players {
		worth := decimal.Zero
		if acc := r.Accounts[p.ID]; acc != nil {
			worth = ledger.NetWorth(*acc, prices)
		}
		standings = append(standings, Standing{Player: p, NetWorth: worth})
	}
	return standings
}

// ResolveWinner picks the player with the strictly highest net worth. Ties go
// to the player that comes first in roster order.
func ResolveWinner(r *model.Round) (Standing, bool) {
	var (
		best  Standing
		found bool
	)
	for _, s := range Standings(r) {
		if !found || s.NetWorth.GreaterThan(best.NetWorth) {
			best = s
			found = true
		}
	}
	return best, found
}

func allFinished(flags map[int64]bool) bool {
	for _, done := range flags {
		if !done {
			return false
		}
	}
	return true
}
