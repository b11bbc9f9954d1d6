package command

import (
	"errors"
	"strconv"
	"strings"

	"tradebot/internal/model/enum"
)

var ErrWrongSyntax = errors.New("command: wrong syntax")

const (
	prefixStartGame = "/start_game"
	prefixInfo      = "/info"
	prefixBuy       = "/buy"
	prefixCell      = "/cell"
	prefixSell      = "/sell"
	prefixEndRound  = "/end_round"
	prefixHelp      = "/help"
)

var kinds = map[string]enum.CommandKind{
	prefixStartGame: enum.CommandStartGame,
	prefixInfo:      enum.CommandInfo,
	prefixBuy:       enum.CommandBuy,
	prefixCell:      enum.CommandSell,
	prefixSell:      enum.CommandSell,
	prefixEndRound:  enum.CommandEndRound,
	prefixHelp:      enum.CommandHelp,
}

// Command is a parsed chat message. Err is set when the kind was recognised
// but its arguments are malformed.
type Command struct {
	Kind  enum.CommandKind
	Code  string
	Count int64
	Err   error
}

// Parse recognises a command by an exact match on the first token.
func Parse(text string) Command {
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return Command{Kind: enum.CommandUnrecognized}
	}

	kind, ok := kinds[stripMention(tokens[0])]
	if !ok {
		return Command{Kind: enum.CommandUnrecognized}
	}

	switch kind {
	case enum.CommandBuy, enum.CommandSell:
		return parseTrade(kind, tokens)
	default:
		return Command{Kind: kind}
	}
}

// parseTrade expects "<prefix> <code> <count>" with a non-negative integer count.
func parseTrade(kind enum.CommandKind, tokens []string) Command {
	if len(tokens) != 3 {
		return Command{Kind: kind, Err: ErrWrongSyntax}
	}
	count, err := strconv.ParseInt(tokens[2], 10, 64)
	if err != nil || count < 0 {
		return Command{Kind: kind, Err: ErrWrongSyntax}
	}
	return Command{
		Kind:  kind,
		Code:  strings.ToUpper(tokens[1]),
		Count: count,
	}
}

// stripMention turns "/info@trade_bot" into "/info".
func stripMention(token string) string {
	if i := strings.IndexByte(token, '@'); i > 0 {
		return token[:i]
	}
	return token
}
