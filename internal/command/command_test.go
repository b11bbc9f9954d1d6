package command

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"tradebot/internal/model/enum"
)

func TestParse(t *testing.T) {
	testCases := []struct {
		text     string
		expected Command
	}{
		{"/start_game", Command{Kind: enum.CommandStartGame}},
		{"  /info  ", Command{Kind: enum.CommandInfo}},
		{"/info@trade_bot", Command{Kind: enum.CommandInfo}},
		{"/end_round", Command{Kind: enum.CommandEndRound}},
		{"/help", Command{Kind: enum.CommandHelp}},
		{"/buy a 10", Command{Kind: enum.CommandBuy, Code: "A", Count: 10}},
		{"/buy APPLE 0", Command{Kind: enum.CommandBuy, Code: "APPLE", Count: 0}},
		{"/by a 10", Command{Kind: enum.CommandUnrecognized}},
		{"/buy a some", Command{Kind: enum.CommandBuy, Err: ErrWrongSyntax}},
		{"/buy a", Command{Kind: enum.CommandBuy, Err: ErrWrongSyntax}},
		{"/buy a -1", Command{Kind: enum.CommandBuy, Err: ErrWrongSyntax}},
		{"/buy a 1 2", Command{Kind: enum.CommandBuy, Err: ErrWrongSyntax}},
		{"/cell a 10", Command{Kind: enum.CommandSell, Code: "A", Count: 10}},
		{"/sell coca 3", Command{Kind: enum.CommandSell, Code: "COCA", Count: 3}},
		{"/cl a 10", Command{Kind: enum.CommandUnrecognized}},
		{"/cell a some", Command{Kind: enum.CommandSell, Err: ErrWrongSyntax}},
		{"/cell a", Command{Kind: enum.CommandSell, Err: ErrWrongSyntax}},
		{"please /buy a 10", Command{Kind: enum.CommandUnrecognized}},
		{"/buyer a 10", Command{Kind: enum.CommandUnrecognized}},
		{"", Command{Kind: enum.CommandUnrecognized}},
		{"hello there", Command{Kind: enum.CommandUnrecognized}},
	}

	for _, tc := range testCases {
		t.Run(tc.text, func(t *testing.T) {
			assert.Equal(t, tc.expected, Parse(tc.text))
		})
	}
}
