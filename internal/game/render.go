package game

import (
	"fmt"
	"strings"

	"tradebot/internal/model"
	"tradebot/internal/round"
)

func renderSecurities(securities []model.GameSecurity) string {
	lines := make([]string, 0, len(securities))
	for _, s := range securities {
		lines = append(lines, fmt.Sprintf(TextSecurity, s.Description, s.Code, model.FormatMoney(s.Price)))
	}
	return strings.Join(lines, "\n")
}

func renderInfo(view model.GameView) string {
	var b strings.Builder
	b.WriteString(TextInfoPlayers)
	for _, p := range view.Players {
		b.WriteString("\n")
		fmt.Fprintf(&b, TextInfoPlayer, p.Name, p.WinCount)
	}
	b.WriteString("\n")
	b.WriteString(TextInfoSecurities)
	if len(view.Securities) > 0 {
		b.WriteString("\n")
		b.WriteString(renderSecurities(view.Securities))
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, TextInfoRound, view.Game.Round)
	return b.String()
}

func renderChanges(b *strings.Builder, changes []round.PriceChange) {
	for _, c := range changes {
		b.WriteString("\n")
		fmt.Fprintf(b, TextPriceChange, c.Code, model.FormatMoney(c.Old), model.FormatMoney(c.New), c.Event.Text)
	}
}

func renderAdvanced(out round.Outcome) string {
	var b strings.Builder
	fmt.Fprintf(&b, TextRoundStarted, out.Round)
	renderChanges(&b, out.Changes)
	return b.String()
}

func renderEnded(out round.Outcome, winner model.Player) string {
	var b strings.Builder
	b.WriteString(TextGameOver)
	renderChanges(&b, out.Changes)
	for _, s := range out.Standings {
		b.WriteString("\n")
		fmt.Fprintf(&b, TextStanding, s.Player.Name, model.FormatMoney(s.NetWorth))
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, TextWinner, winner.Name, model.FormatMoney(out.Winner.NetWorth), winner.WinCount)
	return b.String()
}
