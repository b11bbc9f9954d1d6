// Package store declares the persistence contract used by the game
// coordinator. Implementations live in the memory and pg subpackages.
package store

import (
	"context"

	"github.com/shopspring/decimal"

	"tradebot/internal/model"
)

// NewGame is everything needed to start a game in one write.
type NewGame struct {
	ConversationID int64
	Players        []model.Player
	Listings       []model.SecurityListing
	StartingCash   decimal.Decimal
}

// Store persists games, players, catalogs and accounts.
//
// UpdateAccount and UpdateRound are the transactional primitives: fn runs with
// exclusive access to the account (or the whole game) and its changes are
// written only when fn returns nil. Errors returned by fn are passed back
// unchanged.
type Store interface {
	// GoingGame returns the conversation's game in GOING state.
	GoingGame(ctx context.Context, conversationID int64) (model.GameView, bool, error)
	SecurityListings(ctx context.Context) ([]model.SecurityListing, error)
	Events(ctx context.Context) ([]model.Event, error)
	// EnsurePlayers creates missing players and fetches existing ones by
	// external id, returning them in profile order.
	EnsurePlayers(ctx context.Context, profiles []model.Profile) ([]model.Player, error)
	CreateGame(ctx context.Context, g NewGame) (model.GameView, error)
	UpdateAccount(ctx context.Context, gameID, playerID int64, fn func(acc *model.BrokerageAccount) error) (model.BrokerageAccount, error)
	UpdateRound(ctx context.Context, gameID int64, fn func(r *model.Round) error) error
	Winner(ctx context.Context, gameID int64) (model.Player, bool, error)
	PlayerByExternalID(ctx context.Context, externalID int64) (model.Player, bool, error)
	// Seed inserts catalog entries that are not present yet, by code for
	// listings and by text for events.
	Seed(ctx context.Context, listings []model.SecurityListing, events []model.Event) error
	Close() error
}
