package pg

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"tradebot/internal/model"
	"tradebot/internal/model/enum"
)

type playerRow struct {
	ID         int64     `gorm:"primaryKey"`
	ExternalID int64     `gorm:"not null;uniqueIndex"`
	Name       string    `gorm:"type:text;not null"`
	WinCount   int       `gorm:"not null;default:0"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
}

func (playerRow) TableName() string { return "players" }

func (r playerRow) toModel() model.Player {
	return model.Player{
		ID:         r.ID,
		ExternalID: r.ExternalID,
		Name:       r.Name,
		WinCount:   r.WinCount,
		CreatedAt:  r.CreatedAt,
	}
}

type listingRow struct {
	ID          int64           `gorm:"primaryKey"`
	Code        string          `gorm:"size:32;not null;uniqueIndex"`
	Description string          `gorm:"type:text;not null"`
	Price       decimal.Decimal `gorm:"type:numeric(20,2);not null"`
}

func (listingRow) TableName() string { return "securities" }

func (r listingRow) toModel() model.SecurityListing {
	return model.SecurityListing{
		ID:          r.ID,
		Code:        r.Code,
		Description: r.Description,
		Price:       r.Price,
	}
}

type eventRow struct {
	ID   int64           `gorm:"primaryKey"`
	Text string          `gorm:"type:text;not null;uniqueIndex"`
	Diff decimal.Decimal `gorm:"type:numeric(10,4);not null"`
}

func (eventRow) TableName() string { return "events" }

func (r eventRow) toModel() model.Event {
	return model.Event{ID: r.ID, Text: r.Text, Diff: r.Diff}
}

// gameRow allows a single GOING game per conversation through a partial unique index.
type gameRow struct {
	ID             int64                              `gorm:"primaryKey"`
	CreatedAt      time.Time                          `gorm:"autoCreateTime"`
	ConversationID int64                              `gorm:"not null;index;uniqueIndex:idx_games_going,where:state = 'GOING'"`
	Round          int                                `gorm:"not null;default:1"`
	Finished       datatypes.JSONType[map[int64]bool] `gorm:"not null"`
	State          string                             `gorm:"size:16;not null;index"`
}

func (gameRow) TableName() string { return "games" }

func (r gameRow) toModel() model.Game {
	finished := make(map[int64]bool, len(r.Finished.Data()))
	for id, done := range r.Finished.Data() {
		finished[id] = done
	}
	return model.Game{
		ID:             r.ID,
		CreatedAt:      r.CreatedAt,
		ConversationID: r.ConversationID,
		Round:          r.Round,
		Finished:       finished,
		State:          enum.ParseGameState(r.State),
	}
}

func fromGame(g model.Game) gameRow {
	return gameRow{
		ID:             g.ID,
		CreatedAt:      g.CreatedAt,
		ConversationID: g.ConversationID,
		Round:          g.Round,
		Finished:       datatypes.NewJSONType(g.Finished),
		State:          g.State.String(),
	}
}

// memberRow keeps roster order: the row id is the join order.
type memberRow struct {
	ID       int64 `gorm:"primaryKey"`
	GameID   int64 `gorm:"not null;uniqueIndex:idx_game_players,priority:1"`
	PlayerID int64 `gorm:"not null;uniqueIndex:idx_game_players,priority:2"`
}

func (memberRow) TableName() string { return "game_players" }

type gameSecurityRow struct {
	ID          int64           `gorm:"primaryKey"`
	GameID      int64           `gorm:"not null;uniqueIndex:idx_game_securities,priority:1"`
	Code        string          `gorm:"size:32;not null;uniqueIndex:idx_game_securities,priority:2"`
	Description string          `gorm:"type:text;not null"`
	Price       decimal.Decimal `gorm:"type:numeric(20,2);not null"`
}

func (gameSecurityRow) TableName() string { return "game_securities" }

func (r gameSecurityRow) toModel() model.GameSecurity {
	return model.GameSecurity{
		ID:          r.ID,
		GameID:      r.GameID,
		Code:        r.Code,
		Description: r.Description,
		Price:       r.Price,
	}
}

type accountRow struct {
	ID       int64                                `gorm:"primaryKey"`
	GameID   int64                                `gorm:"not null;uniqueIndex:idx_accounts_game_player,priority:1"`
	PlayerID int64                                `gorm:"not null;uniqueIndex:idx_accounts_game_player,priority:2"`
	Cash     decimal.Decimal                      `gorm:"type:numeric(20,2);not null"`
	Holdings datatypes.JSONType[map[string]int64] `gorm:"not null"`
}

func (accountRow) TableName() string { return "brokerage_accounts" }

func (r accountRow) toModel() model.BrokerageAccount {
	holdings := make(map[string]int64, len(r.Holdings.Data()))
	for code, qty := range r.Holdings.Data() {
		holdings[code] = qty
	}
	return model.BrokerageAccount{
		ID:       r.ID,
		GameID:   r.GameID,
		PlayerID: r.PlayerID,
		Cash:     r.Cash,
		Holdings: holdings,
	}
}

type winnerRow struct {
	ID        int64           `gorm:"primaryKey"`
	GameID    int64           `gorm:"not null;uniqueIndex"`
	PlayerID  int64           `gorm:"not null;index"`
	NetWorth  decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	CreatedAt time.Time       `gorm:"autoCreateTime"`
}

func (winnerRow) TableName() string { return "winners" }

func tables() []any {
	return []any{
		&playerRow{},
		&listingRow{},
		&eventRow{},
		&gameRow{},
		&memberRow{},
		&gameSecurityRow{},
		&accountRow{},
		&winnerRow{},
	}
}
