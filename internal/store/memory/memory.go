package memory

import (
	"context"
	"sync"
	"time"

	"tradebot/internal/model"
	"tradebot/internal/model/enum"
	"tradebot/internal/store"
	"tradebot/pkg/exception"
)

var _ store.Store = (*Store)(nil)

type gameRecord struct {
	game       model.Game
	roster     []int64
	securities []model.GameSecurity
	accounts   map[int64]*model.BrokerageAccount
}

// Store keeps every record in process memory. Writes to one game are
// serialised by a per-game lock; different games proceed in parallel.
type Store struct {
	mu           sync.RWMutex
	seq          int64
	players      map[int64]*model.Player
	playersByExt map[int64]int64
	listings     []model.SecurityListing
	events       []model.Event
	games        map[int64]*gameRecord
	going        map[int64]int64
	winners      map[int64]model.Winner

	locksMu sync.Mutex
	locks   map[int64]*sync.Mutex

	now func() time.Time
}

// New creates an empty store.
func New() *Store {
	return &Store{
		players:      make(map[int64]*model.Player),
		playersByExt: make(map[int64]int64),
		games:        make(map[int64]*gameRecord),
		going:        make(map[int64]int64),
		winners:      make(map[int64]model.Winner),
		locks:        make(map[int64]*sync.Mutex),
		now:          time.Now,
	}
}

func (s *Store) nextID() int64 {
	s.seq++
	return s.seq
}

func (s *Store) gameLock(gameID int64) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[gameID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[gameID] = l
	}
	return l
}

func (s *Store) GoingGame(ctx context.Context, conversationID int64) (model.GameView, bool, error) {
	if err := ctx.Err(); err != nil {
		return model.GameView{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.going[conversationID]
	if !ok {
		return model.GameView{}, false, nil
	}
	return s.viewLocked(s.games[id]), true, nil
}

func (s *Store) viewLocked(rec *gameRecord) model.GameView {
	view := model.GameView{
		Game:       copyGame(rec.game),
		Players:    make([]model.Player, 0, len(rec.roster)),
		Securities: make([]model.GameSecurity, len(rec.securities)),
	}
	for _, id := range rec.roster {
		view.Players = append(view.Players, *s.players[id])
	}
	copy(view.Securities, rec.securities)
	return view
}

func (s *Store) SecurityListings(ctx context.Context) ([]model.SecurityListing, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.SecurityListing, len(s.listings))
	copy(out, s.listings)
	return out, nil
}

func (s *Store) Events(ctx context.Context) ([]model.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Event, len(s.events))
	copy(out, s.events)
	return out, nil
}

func (s *Store) EnsurePlayers(ctx context.Context, profiles []model.Profile) ([]model.Player, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	players := make([]model.Player, 0, len(profiles))
	for _, profile := range profiles {
		if id, ok := s.playersByExt[profile.ExternalID]; ok {
			players = append(players, *s.players[id])
			continue
		}
		p := &model.Player{
			ID:         s.nextID(),
			ExternalID: profile.ExternalID,
			Name:       profile.Name(),
			CreatedAt:  s.now(),
		}
		s.players[p.ID] = p
		s.playersByExt[p.ExternalID] = p.ID
		players = append(players, *p)
	}
	return players, nil
}

func (s *Store) CreateGame(ctx context.Context, g store.NewGame) (model.GameView, error) {
	if err := ctx.Err(); err != nil {
		return model.GameView{}, err
	}
	if len(g.Players) == 0 {
		return model.GameView{}, exception.ErrStoreEmptyRoster
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.going[g.ConversationID]; ok {
		return model.GameView{}, exception.ErrStoreDuplicateGoing
	}

	rec := &gameRecord{
		game: model.Game{
			ID:             s.nextID(),
			CreatedAt:      s.now(),
			ConversationID: g.ConversationID,
			Round:          1,
			Finished:       make(map[int64]bool, len(g.Players)),
			State:          enum.GameStateGoing,
		},
		accounts: make(map[int64]*model.BrokerageAccount, len(g.Players)),
	}
	for _, p := range g.Players {
		if _, ok := s.players[p.ID]; !ok {
			return model.GameView{}, exception.ErrStoreNotFound
		}
		if _, dup := rec.game.Finished[p.ID]; dup {
			continue
		}
		rec.roster = append(rec.roster, p.ID)
		rec.game.Finished[p.ID] = false
		rec.accounts[p.ID] = &model.BrokerageAccount{
			ID:       s.nextID(),
			GameID:   rec.game.ID,
			PlayerID: p.ID,
			Cash:     model.Money(g.StartingCash),
			Holdings: map[string]int64{},
		}
	}
	for _, l := range g.Listings {
		rec.securities = append(rec.securities, model.GameSecurity{
			ID:          s.nextID(),
			GameID:      rec.game.ID,
			Code:        l.Code,
			Description: l.Description,
			Price:       l.Price,
		})
	}

	s.games[rec.game.ID] = rec
	s.going[g.ConversationID] = rec.game.ID
	return s.viewLocked(rec), nil
}

func (s *Store) UpdateAccount(ctx context.Context, gameID, playerID int64, fn func(acc *model.BrokerageAccount) error) (model.BrokerageAccount, error) {
	if err := ctx.Err(); err != nil {
		return model.BrokerageAccount{}, err
	}
	lock := s.gameLock(gameID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	rec, ok := s.games[gameID]
	var acc model.BrokerageAccount
	if ok {
		if stored := rec.accounts[playerID]; stored != nil {
			acc = stored.Clone()
		} else {
			ok = false
		}
	}
	s.mu.RUnlock()
	if !ok {
		return model.BrokerageAccount{}, exception.ErrStoreNotFound
	}

	if err := fn(&acc); err != nil {
		return model.BrokerageAccount{}, err
	}

	s.mu.Lock()
	stored := acc.Clone()
	rec.accounts[playerID] = &stored
	s.mu.Unlock()
	return acc, nil
}

func (s *Store) UpdateRound(ctx context.Context, gameID int64, fn func(r *model.Round) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	lock := s.gameLock(gameID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	rec, ok := s.games[gameID]
	var r model.Round
	if ok {
		view := s.viewLocked(rec)
		r = model.Round{
			Game:       view.Game,
			Players:    view.Players,
			Securities: view.Securities,
			Accounts:   make(map[int64]*model.BrokerageAccount, len(rec.accounts)),
		}
		for id, acc := range rec.accounts {
			cp := acc.Clone()
			r.Accounts[id] = &cp
		}
	}
	s.mu.RUnlock()
	if !ok {
		return exception.ErrStoreNotFound
	}
	wasGoing := r.Game.Going()

	if err := fn(&r); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rec.game = copyGame(r.Game)
	rec.securities = append(rec.securities[:0], r.Securities...)
	for id, acc := range r.Accounts {
		cp := acc.Clone()
		rec.accounts[id] = &cp
	}
	if wasGoing && !r.Game.Going() && s.going[rec.game.ConversationID] == gameID {
		delete(s.going, rec.game.ConversationID)
	}
	if r.Winner != nil {
		if _, exists := s.winners[gameID]; !exists {
			w := *r.Winner
			w.ID = s.nextID()
			w.GameID = gameID
			s.winners[gameID] = w
			if p := s.players[w.PlayerID]; p != nil {
				p.WinCount++
			}
		}
	}
	return nil
}

func (s *Store) Winner(ctx context.Context, gameID int64) (model.Player, bool, error) {
	if err := ctx.Err(); err != nil {
		return model.Player{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.winners[gameID]
	if !ok {
		return model.Player{}, false, nil
	}
	p, ok := s.players[w.PlayerID]
	if !ok {
		return model.Player{}, false, nil
	}
	return *p, true, nil
}

func (s *Store) PlayerByExternalID(ctx context.Context, externalID int64) (model.Player, bool, error) {
	if err := ctx.Err(); err != nil {
		return model.Player{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.playersByExt[externalID]
	if !ok {
		return model.Player{}, false, nil
	}
	return *s.players[id], true, nil
}

func (s *Store) Seed(ctx context.Context, listings []model.SecurityListing, events []model.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	codes := make(map[string]struct{}, len(s.listings))
	for _, l := range s.listings {
		codes[l.Code] = struct{}{}
	}
	for _, l := range listings {
		if _, ok := codes[l.Code]; ok {
			continue
		}
		l.ID = s.nextID()
		s.listings = append(s.listings, l)
		codes[l.Code] = struct{}{}
	}

	texts := make(map[string]struct{}, len(s.events))
	for _, ev := range s.events {
		texts[ev.Text] = struct{}{}
	}
	for _, ev := range events {
		if _, ok := texts[ev.Text]; ok {
			continue
		}
		ev.ID = s.nextID()
		s.events = append(s.events, ev)
		texts[ev.Text] = struct{}{}
	}
	return nil
}

func (s *Store) Close() error {
	return nil
}

func copyGame(g model.Game) model.Game {
	finished := make(map[int64]bool, len(g.Finished))
	for id, done := range g.Finished {
		finished[id] = done
	}
	g.Finished = finished
	return g
}
