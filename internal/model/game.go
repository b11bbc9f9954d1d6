package model

import (
	"time"

	"github.com/shopspring/decimal"

	"tradebot/internal/model/enum"
)

// Game is a single trading game bound to a conversation.
type Game struct {
	ID             int64
	CreatedAt      time.Time
	ConversationID int64
	Round          int
	Finished       map[int64]bool
	State          enum.GameState
}

// Going reports whether the game still accepts commands.
func (g Game) Going() bool {
	return g.State == enum.GameStateGoing
}

// Player is a chat member known to the bot. WinCount is global across games.
type Player struct {
	ID         int64
	ExternalID int64
	Name       string
	WinCount   int
	CreatedAt  time.Time
}

// SecurityListing is a catalog entry copied into every new game.
type SecurityListing struct {
	ID          int64
	Code        string
	Description string
	Price       decimal.Decimal
}

// GameSecurity is the per-game copy of a listing with its own price.
type GameSecurity struct {
	ID          int64
	GameID      int64
	Code        string
	Description string
	Price       decimal.Decimal
}

// BrokerageAccount holds one player's cash and holdings inside one game.
type BrokerageAccount struct {
	ID       int64
	GameID   int64
	PlayerID int64
	Cash     decimal.Decimal
	Holdings map[string]int64
}

// Held returns the quantity held for code. Missing and zero entries are equivalent.
func (a BrokerageAccount) Held(code string) int64 {
	return a.Holdings[code]
}

// Clone returns a deep copy of the account.
func (a BrokerageAccount) Clone() BrokerageAccount {
	holdings := make(map[string]int64, len(a.Holdings))
	for code, qty := range a.Holdings {
		holdings[code] = qty
	}
	a.Holdings = holdings
	return a
}

// Event re-prices securities by a multiplicative Diff.
type Event struct {
	ID   int64
	Text string
	Diff decimal.Decimal
}

// Winner records the player who won a finished game.
type Winner struct {
	ID        int64
	GameID    int64
	PlayerID  int64
	NetWorth  decimal.Decimal
	CreatedAt time.Time
}

// GameView is a read-only aggregate of a game with its roster and securities.
// Players are in roster (join) order, securities in creation order.
type GameView struct {
	Game       Game
	Players    []Player
	Securities []GameSecurity
}

// Player returns the roster member with the given external id.
func (v GameView) Player(externalID int64) (Player, bool) {
	for _, p := range v.Players {
		if p.ExternalID == externalID {
			return p, true
		}
	}
	return Player{}, false
}

// Security returns the game security with the given code.
func (v GameView) Security(code string) (GameSecurity, bool) {
	for _, s := range v.Securities {
		if s.Code == code {
			return s, true
		}
	}
	return GameSecurity{}, false
}

// Round is the mutable aggregate handed to the round engine inside a
// game-scoped transaction. Accounts are keyed by player id. Winner is set by
// the engine when the game ends and persisted by the store.
type Round struct {
	Game       Game
	Players    []Player
	Securities []GameSecurity
	Accounts   map[int64]*BrokerageAccount
	Winner     *Winner
}

// Update is one inbound chat message.
type Update struct {
	ID             int64
	ConversationID int64
	SenderID       int64
	Text           string
}

// Profile is a conversation member as reported by the chat platform.
type Profile struct {
	ExternalID int64
	FirstName  string
	LastName   string
}

// Name returns "first last" trimmed of empty parts.
func (p Profile) Name() string {
	switch {
	case p.FirstName == "":
		return p.LastName
	case p.LastName == "":
		return p.FirstName
	default:
		return p.FirstName + " " + p.LastName
	}
}
