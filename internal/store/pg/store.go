// Package pg implements store.Store on gorm. Production runs on postgres;
// any gorm dialector works, tests use sqlite.
package pg

import (
	"context"
	stderrors "errors"

	"github.com/yanun0323/errors"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tradebot/internal/model"
	"tradebot/internal/model/enum"
	"tradebot/internal/store"
	"tradebot/pkg/conn"
	"tradebot/pkg/exception"
)

var _ store.Store = (*Store)(nil)

// Store persists games through a gorm connection.
type Store struct {
	client *conn.Client
	db     *gorm.DB
}

// New wraps an opened client. Call Migrate before first use on a fresh database.
func New(client *conn.Client) (*Store, error) {
	if client == nil || client.DB() == nil {
		return nil, exception.ErrNilInstance
	}
	return &Store{client: client, db: client.DB()}, nil
}

// Migrate creates or updates every table the store uses.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(tables()...); err != nil {
		return errors.Wrap(err, "auto migrate")
	}
	return nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) GoingGame(ctx context.Context, conversationID int64) (model.GameView, bool, error) {
	var row gameRow
	err := s.db.WithContext(ctx).
		Where("conversation_id = ? AND state = ?", conversationID, enum.GameStateGoing.String()).
		Take(&row).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return model.GameView{}, false, nil
	}
	if err != nil {
		return model.GameView{}, false, errors.Wrap(err, "find going game").With("conversation", conversationID)
	}

	view, err := loadView(s.db.WithContext(ctx), row)
	if err != nil {
		return model.GameView{}, false, err
	}
	return view, true, nil
}

func loadView(tx *gorm.DB, row gameRow) (model.GameView, error) {
	players, err := loadRoster(tx, row.ID)
	if err != nil {
		return model.GameView{}, err
	}
	securities, err := loadSecurities(tx, row.ID)
	if err != nil {
		return model.GameView{}, err
	}
	return model.GameView{
		Game:       row.toModel(),
		Players:    players,
		Securities: securities,
	}, nil
}

func loadRoster(tx *gorm.DB, gameID int64) ([]model.Player, error) {
	var rows []playerRow
	err := tx.Table("players").
		Select("players.*").
		Joins("JOIN game_players ON game_players.player_id = players.id").
		Where("game_players.game_id = ?", gameID).
		Order("game_players.id").
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "load roster").With("game", gameID)
	}
	players := make([]model.Player, 0, len(rows))
	for _, r := range rows {
		players = append(players, r.toModel())
	}
	return players, nil
}

func loadSecurities(tx *gorm.DB, gameID int64) ([]model.GameSecurity, error) {
	var rows []gameSecurityRow
	if err := tx.Where("game_id = ?", gameID).Order("id").Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "load game securities").With("game", gameID)
	}
	securities := make([]model.GameSecurity, 0, len(rows))
	for _, r := range rows {
		securities = append(securities, r.toModel())
	}
	return securities, nil
}

func (s *Store) SecurityListings(ctx context.Context) ([]model.SecurityListing, error) {
	var rows []listingRow
	if err := s.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "list securities")
	}
	listings := make([]model.SecurityListing, 0, len(rows))
	for _, r := range rows {
		listings = append(listings, r.toModel())
	}
	return listings, nil
}

func (s *Store) Events(ctx context.Context) ([]model.Event, error) {
	var rows []eventRow
	if err := s.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "list events")
	}
	events := make([]model.Event, 0, len(rows))
	for _, r := range rows {
		events = append(events, r.toModel())
	}
	return events, nil
}

func (s *Store) EnsurePlayers(ctx context.Context, profiles []model.Profile) ([]model.Player, error) {
	if len(profiles) == 0 {
		return []model.Player{}, nil
	}

	var players []model.Player
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ids := make([]int64, 0, len(profiles))
		for _, p := range profiles {
			row := playerRow{ExternalID: p.ExternalID, Name: p.Name()}
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "external_id"}},
				DoNothing: true,
			}).Create(&row).Error
			if err != nil {
				return errors.Wrap(err, "insert player").With("external", p.ExternalID)
			}
			ids = append(ids, p.ExternalID)
		}

		var rows []playerRow
		if err := tx.Where("external_id IN ?", ids).Find(&rows).Error; err != nil {
			return errors.Wrap(err, "load players")
		}
		byExt := make(map[int64]playerRow, len(rows))
		for _, r := range rows {
			byExt[r.ExternalID] = r
		}

		players = make([]model.Player, 0, len(profiles))
		for _, p := range profiles {
			r, ok := byExt[p.ExternalID]
			if !ok {
				return errors.Wrap(exception.ErrStoreNotFound, "player vanished").With("external", p.ExternalID)
			}
			players = append(players, r.toModel())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return players, nil
}

func (s *Store) CreateGame(ctx context.Context, g store.NewGame) (model.GameView, error) {
	if len(g.Players) == 0 {
		return model.GameView{}, exception.ErrStoreEmptyRoster
	}

	var view model.GameView
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var going int64
		err := tx.Model(&gameRow{}).
			Where("conversation_id = ? AND state = ?", g.ConversationID, enum.GameStateGoing.String()).
			Count(&going).Error
		if err != nil {
			return errors.Wrap(err, "count going games")
		}
		if going > 0 {
			return exception.ErrStoreDuplicateGoing
		}

		finished := make(map[int64]bool, len(g.Players))
		roster := make([]int64, 0, len(g.Players))
		for _, p := range g.Players {
			if _, dup := finished[p.ID]; dup {
				continue
			}
			finished[p.ID] = false
			roster = append(roster, p.ID)
		}

		var known int64
		if err := tx.Model(&playerRow{}).Where("id IN ?", roster).Count(&known).Error; err != nil {
			return errors.Wrap(err, "count players")
		}
		if int(known) != len(roster) {
			return exception.ErrStoreNotFound
		}

		row := gameRow{
			ConversationID: g.ConversationID,
			Round:          1,
			Finished:       datatypes.NewJSONType(finished),
			State:          enum.GameStateGoing.String(),
		}
		if err := tx.Create(&row).Error; err != nil {
			if stderrors.Is(err, gorm.ErrDuplicatedKey) {
				return exception.ErrStoreDuplicateGoing
			}
			return errors.Wrap(err, "insert game")
		}

		cash := model.Money(g.StartingCash)
		for _, id := range roster {
			if err := tx.Create(&memberRow{GameID: row.ID, PlayerID: id}).Error; err != nil {
				return errors.Wrap(err, "insert game player").With("player", id)
			}
			acc := accountRow{
				GameID:   row.ID,
				PlayerID: id,
				Cash:     cash,
				Holdings: datatypes.NewJSONType(map[string]int64{}),
			}
			if err := tx.Create(&acc).Error; err != nil {
				return errors.Wrap(err, "insert account").With("player", id)
			}
		}
		for _, l := range g.Listings {
			sec := gameSecurityRow{
				GameID:      row.ID,
				Code:        l.Code,
				Description: l.Description,
				Price:       l.Price,
			}
			if err := tx.Create(&sec).Error; err != nil {
				return errors.Wrap(err, "insert game security").With("code", l.Code)
			}
		}

		view, err = loadView(tx, row)
		return err
	})
	if err != nil {
		return model.GameView{}, err
	}
	return view, nil
}

func (s *Store) UpdateAccount(ctx context.Context, gameID, playerID int64, fn func(acc *model.BrokerageAccount) error) (model.BrokerageAccount, error) {
	var result model.BrokerageAccount
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row accountRow
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("game_id = ? AND player_id = ?", gameID, playerID).
			Take(&row).Error
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return exception.ErrStoreNotFound
		}
		if err != nil {
			return errors.Wrap(err, "lock account").With("game", gameID).With("player", playerID)
		}

		acc := row.toModel()
		if err := fn(&acc); err != nil {
			return err
		}
		if err := saveAccount(tx, row.ID, acc); err != nil {
			return err
		}
		result = acc
		return nil
	})
	if err != nil {
		return model.BrokerageAccount{}, err
	}
	return result, nil
}

func saveAccount(tx *gorm.DB, id int64, acc model.BrokerageAccount) error {
	holdings := acc.Holdings
	if holdings == nil {
		holdings = map[string]int64{}
	}
	err := tx.Model(&accountRow{}).Where("id = ?", id).Updates(map[string]any{
		"cash":     model.Money(acc.Cash),
		"holdings": datatypes.NewJSONType(holdings),
	}).Error
	if err != nil {
		return errors.Wrap(err, "save account").With("account", id)
	}
	return nil
}

func (s *Store) UpdateRound(ctx context.Context, gameID int64, fn func(r *model.Round) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row gameRow
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", gameID).Take(&row).Error
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return exception.ErrStoreNotFound
		}
		if err != nil {
			return errors.Wrap(err, "lock game").With("game", gameID)
		}

		view, err := loadView(tx, row)
		if err != nil {
			return err
		}

		var accRows []accountRow
		if err := tx.Where("game_id = ?", gameID).Find(&accRows).Error; err != nil {
			return errors.Wrap(err, "load accounts").With("game", gameID)
		}
		accountIDs := make(map[int64]int64, len(accRows))
		r := model.Round{
			Game:       view.Game,
			Players:    view.Players,
			Securities: view.Securities,
			Accounts:   make(map[int64]*model.BrokerageAccount, len(accRows)),
		}
		for _, a := range accRows {
			acc := a.toModel()
			r.Accounts[a.PlayerID] = &acc
			accountIDs[a.PlayerID] = a.ID
		}

		if err := fn(&r); err != nil {
			return err
		}

		err = tx.Model(&gameRow{}).Where("id = ?", gameID).Updates(map[string]any{
			"round":    r.Game.Round,
			"finished": datatypes.NewJSONType(r.Game.Finished),
			"state":    r.Game.State.String(),
		}).Error
		if err != nil {
			return errors.Wrap(err, "save game").With("game", gameID)
		}

		for _, sec := range r.Securities {
			err := tx.Model(&gameSecurityRow{}).Where("id = ?", sec.ID).Update("price", sec.Price).Error
			if err != nil {
				return errors.Wrap(err, "save security price").With("code", sec.Code)
			}
		}
		for playerID, acc := range r.Accounts {
			id, ok := accountIDs[playerID]
			if !ok {
				continue
			}
			if err := saveAccount(tx, id, *acc); err != nil {
				return err
			}
		}

		if r.Winner != nil {
			return recordWinner(tx, gameID, *r.Winner)
		}
		return nil
	})
}

func recordWinner(tx *gorm.DB, gameID int64, w model.Winner) error {
	row := winnerRow{GameID: gameID, PlayerID: w.PlayerID, NetWorth: model.Money(w.NetWorth)}
	res := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "game_id"}},
		DoNothing: true,
	}).Create(&row)
	if res.Error != nil {
		return errors.Wrap(res.Error, "insert winner").With("game", gameID)
	}
	if res.RowsAffected == 0 {
		return nil
	}
	err := tx.Model(&playerRow{}).
		Where("id = ?", w.PlayerID).
		UpdateColumn("win_count", gorm.Expr("win_count + ?", 1)).Error
	if err != nil {
		return errors.Wrap(err, "increment win count").With("player", w.PlayerID)
	}
	return nil
}

func (s *Store) Winner(ctx context.Context, gameID int64) (model.Player, bool, error) {
	var row playerRow
	err := s.db.WithContext(ctx).Table("players").
		Select("players.*").
		Joins("JOIN winners ON winners.player_id = players.id").
		Where("winners.game_id = ?", gameID).
		Take(&row).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return model.Player{}, false, nil
	}
	if err != nil {
		return model.Player{}, false, errors.Wrap(err, "find winner").With("game", gameID)
	}
	return row.toModel(), true, nil
}

func (s *Store) PlayerByExternalID(ctx context.Context, externalID int64) (model.Player, bool, error) {
	var row playerRow
	err := s.db.WithContext(ctx).Where("external_id = ?", externalID).Take(&row).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return model.Player{}, false, nil
	}
	if err != nil {
		return model.Player{}, false, errors.Wrap(err, "find player").With("external", externalID)
	}
	return row.toModel(), true, nil
}

func (s *Store) Seed(ctx context.Context, listings []model.SecurityListing, events []model.Event) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, l := range listings {
			row := listingRow{Code: l.Code, Description: l.Description, Price: l.Price}
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "code"}},
				DoNothing: true,
			}).Create(&row).Error
			if err != nil {
				return errors.Wrap(err, "seed security").With("code", l.Code)
			}
		}
		for _, ev := range events {
			row := eventRow{Text: ev.Text, Diff: ev.Diff}
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "text"}},
				DoNothing: true,
			}).Create(&row).Error
			if err != nil {
				return errors.Wrap(err, "seed event").With("text", ev.Text)
			}
		}
		return nil
	})
}
