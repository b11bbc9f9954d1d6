package game

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"tradebot/internal/command"
	"tradebot/internal/ledger"
	"tradebot/internal/model"
	"tradebot/internal/model/enum"
	"tradebot/internal/round"
	"tradebot/internal/store"
	"tradebot/pkg/exception"
)

// DefaultStartingCash is the balance of every new brokerage account.
var DefaultStartingCash = decimal.NewFromInt(1000)

// RosterSource lists the members of a conversation. It returns an empty
// slice when the upstream call fails.
type RosterSource interface {
	FetchRoster(ctx context.Context, conversationID int64) []model.Profile
}

// Config holds the game rules the coordinator applies.
type Config struct {
	StartingCash decimal.Decimal
}

// Usecase coordinates games for every conversation.
type Usecase struct {
	store        store.Store
	roster       RosterSource
	engine       *round.Engine
	startingCash decimal.Decimal
}

// NewUsecase wires the coordinator.
func NewUsecase(st store.Store, roster RosterSource, engine *round.Engine, cfg Config) (*Usecase, error) {
	if st == nil || roster == nil || engine == nil {
		return nil, exception.ErrNilInstance
	}
	cash := cfg.StartingCash
	if !cash.IsPositive() {
		cash = DefaultStartingCash
	}
	return &Usecase{
		store:        st,
		roster:       roster,
		engine:       engine,
		startingCash: cash,
	}, nil
}

// request carries what the guards resolved for the handler.
type request struct {
	update   model.Update
	cmd      command.Command
	view     model.GameView
	player   model.Player
	security model.GameSecurity
}

// guard returns a non-empty reply to stop the chain.
type guard func(ctx context.Context, req *request) (string, error)

type handler func(ctx context.Context, req *request) (string, error)

// Handle processes one chat update and returns the reply text. An empty
// reply means the update is not addressed to the bot. Errors are
// infrastructure failures.
func (use *Usecase) Handle(ctx context.Context, u model.Update) (string, error) {
	req := &request{update: u, cmd: command.Parse(u.Text)}

	switch req.cmd.Kind {
	case enum.CommandStartGame:
		return use.startGame(ctx, req)
	case enum.CommandInfo:
		return use.check(ctx, req, use.info, use.goingGame)
	case enum.CommandBuy:
		return use.check(ctx, req, use.buy, validSyntax(TextWrongBuy), use.goingGame, securityInGame, inRoster)
	case enum.CommandSell:
		return use.check(ctx, req, use.sell, validSyntax(TextWrongSell), use.goingGame, securityInGame, inRoster)
	case enum.CommandEndRound:
		return use.check(ctx, req, use.endRound, use.goingGame, inRoster)
	case enum.CommandHelp:
		return TextHelp, nil
	default:
		return "", nil
	}
}

// check runs the guards in order and calls next only when all of them pass.
func (use *Usecase) check(ctx context.Context, req *request, next handler, guards ...guard) (string, error) {
	for _, g := range guards {
		reply, err := g(ctx, req)
		if err != nil {
			return "", err
		}
		if reply != "" {
			return reply, nil
		}
	}
	return next(ctx, req)
}

func validSyntax(wrong string) guard {
	return func(_ context.Context, req *request) (string, error) {
		if req.cmd.Err != nil {
			return wrong, nil
		}
		return "", nil
	}
}

func (use *Usecase) goingGame(ctx context.Context, req *request) (string, error) {
	view, ok, err := use.store.GoingGame(ctx, req.update.ConversationID)
	if err != nil {
		return "", errors.Wrap(err, "load going game")
	}
	if !ok {
		return TextGameNotStarted, nil
	}
	req.view = view
	return "", nil
}

func securityInGame(_ context.Context, req *request) (string, error) {
	sec, ok := req.view.Security(req.cmd.Code)
	if !ok {
		return TextSecurityNotExist, nil
	}
	req.security = sec
	return "", nil
}

func inRoster(_ context.Context, req *request) (string, error) {
	p, ok := req.view.Player(req.update.SenderID)
	if !ok {
		return TextUserNotPlaying, nil
	}
	req.player = p
	return "", nil
}

func (use *Usecase) startGame(ctx context.Context, req *request) (string, error) {
	conversationID := req.update.ConversationID

	_, going, err := use.store.GoingGame(ctx, conversationID)
	if err != nil {
		return "", errors.Wrap(err, "load going game")
	}
	if going {
		return TextGameStarted, nil
	}

	profiles := use.roster.FetchRoster(ctx, conversationID)
	if len(profiles) == 0 {
		return TextWaiting, nil
	}

	players, err := use.store.EnsurePlayers(ctx, profiles)
	if err != nil {
		return "", errors.Wrap(err, "ensure players")
	}
	listings, err := use.store.SecurityListings(ctx)
	if err != nil {
		return "", errors.Wrap(err, "load security listings")
	}
	if len(listings) == 0 {
		return "", exception.ErrStoreEmptyCatalog
	}

	view, err := use.store.CreateGame(ctx, store.NewGame{
		ConversationID: conversationID,
		Players:        players,
		Listings:       listings,
		StartingCash:   use.startingCash,
	})
	if stderrors.Is(err, exception.ErrStoreDuplicateGoing) {
		return TextGameStarted, nil
	}
	if err != nil {
		return "", errors.Wrap(err, "create game")
	}

	logs.Infof("game %d started in conversation %d with %d players", view.Game.ID, conversationID, len(view.Players))
	return renderSecurities(view.Securities) + "\n" + TextGameStarting, nil
}

func (use *Usecase) info(_ context.Context, req *request) (string, error) {
	return renderInfo(req.view), nil
}

func (use *Usecase) buy(ctx context.Context, req *request) (string, error) {
	var receipt ledger.Receipt
	_, err := use.store.UpdateAccount(ctx, req.view.Game.ID, req.player.ID, func(acc *model.BrokerageAccount) error {
		var err error
		receipt, err = ledger.ApplyPurchase(acc, req.security, req.cmd.Count)
		return err
	})

	switch {
	case err == nil:
		return fmt.Sprintf(TextBought, req.cmd.Count, receipt.Code, model.FormatMoney(receipt.Amount), model.FormatMoney(receipt.Cash)), nil
	case stderrors.Is(err, ledger.ErrInsufficientFunds):
		return fmt.Sprintf(TextInsufficientFunds, model.FormatMoney(receipt.Amount), model.FormatMoney(receipt.Cash)), nil
	default:
		return "", errors.Wrap(err, "buy security").With("code", req.cmd.Code)
	}
}

func (use *Usecase) sell(ctx context.Context, req *request) (string, error) {
	var receipt ledger.Receipt
	_, err := use.store.UpdateAccount(ctx, req.view.Game.ID, req.player.ID, func(acc *model.BrokerageAccount) error {
		var err error
		receipt, err = ledger.ApplySale(acc, req.security, req.cmd.Count)
		return err
	})

	switch {
	case err == nil:
		return fmt.Sprintf(TextSold, req.cmd.Count, receipt.Code, model.FormatMoney(receipt.Amount), receipt.Code, receipt.Held, model.FormatMoney(receipt.Cash)), nil
	case stderrors.Is(err, ledger.ErrNoSuchHolding):
		return fmt.Sprintf(TextNoSuchHolding, req.security.Code), nil
	case stderrors.Is(err, ledger.ErrInsufficientQuantity):
		return fmt.Sprintf(TextInsufficientQuantity, receipt.Held, req.security.Code), nil
	default:
		return "", errors.Wrap(err, "sell security").With("code", req.cmd.Code)
	}
}

func (use *Usecase) endRound(ctx context.Context, req *request) (string, error) {
	var out round.Outcome
	err := use.store.UpdateRound(ctx, req.view.Game.ID, func(r *model.Round) error {
		var err error
		out, err = use.engine.MarkFinished(r, req.player.ID)
		return err
	})

	switch {
	case err == nil:
	case stderrors.Is(err, round.ErrAlreadyFinished):
		return TextAlreadyFinished, nil
	case stderrors.Is(err, round.ErrGameEnded):
		return TextGameNotStarted, nil
	case stderrors.Is(err, round.ErrNotInGame):
		return TextUserNotPlaying, nil
	default:
		return "", errors.Wrap(err, "end round").With("game", req.view.Game.ID)
	}

	switch out.Kind {
	case round.OutcomeWaiting:
		return TextWaitingOthers, nil
	case round.OutcomeAdvanced:
		return renderAdvanced(out), nil
	}

	winner, ok, err := use.store.Winner(ctx, req.view.Game.ID)
	if err != nil {
		return "", errors.Wrap(err, "load winner").With("game", req.view.Game.ID)
	}
	if !ok {
		winner = out.Winner.Player
	}
	logs.Infof("game %d in conversation %d ended, winner %s", req.view.Game.ID, req.update.ConversationID, winner.Name)
	return renderEnded(out, winner), nil
}
