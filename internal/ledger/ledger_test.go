package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradebot/internal/model"
)

func newAccount(cash int64) *model.BrokerageAccount {
	return &model.BrokerageAccount{
		ID:       1,
		GameID:   1,
		PlayerID: 1,
		Cash:     decimal.NewFromInt(cash),
		Holdings: map[string]int64{},
	}
}

func security(code, price string) model.GameSecurity {
	return model.GameSecurity{ID: 1, GameID: 1, Code: code, Price: decimal.RequireFromString(price)}
}

func TestApplyPurchase(t *testing.T) {
	acc := newAccount(1000)
	apple := security("APPLE", "10")

	receipt, err := ApplyPurchase(acc, apple, 2)
	require.NoError(t, err)
	assert.Equal(t, "980.00", model.FormatMoney(receipt.Cash))
	assert.Equal(t, "20.00", model.FormatMoney(receipt.Amount))
	assert.EqualValues(t, 2, receipt.Held)
	assert.Equal(t, map[string]int64{"APPLE": 2}, acc.Holdings)

	receipt, err = ApplyPurchase(acc, apple, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 4, receipt.Held)
	assert.Equal(t, "960.00", model.FormatMoney(acc.Cash))
}

func TestApplyPurchaseInsufficientFunds(t *testing.T) {
	acc := newAccount(1000)
	before := acc.Clone()

	receipt, err := ApplyPurchase(acc, security("APPLE", "10"), 20000)
	require.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, "1000.00", model.FormatMoney(receipt.Cash))
	assert.True(t, before.Cash.Equal(acc.Cash))
	assert.Equal(t, before.Holdings, acc.Holdings)
}

func TestApplyPurchaseSpendsEverything(t *testing.T) {
	acc := newAccount(1000)

	receipt, err := ApplyPurchase(acc, security("APPLE", "10"), 100)
	require.NoError(t, err)
	assert.True(t, receipt.Cash.IsZero())
}

func TestApplyPurchaseNilHoldings(t *testing.T) {
	acc := &model.BrokerageAccount{Cash: decimal.NewFromInt(100)}

	_, err := ApplyPurchase(acc, security("COCA", "1.5"), 3)
	require.NoError(t, err)
	assert.EqualValues(t, 3, acc.Held("COCA"))
	assert.Equal(t, "95.50", model.FormatMoney(acc.Cash))
}

func TestApplySale(t *testing.T) {
	apple := security("APPLE", "10")

	testCases := []struct {
		desc      string
		holdings  map[string]int64
		quantity  int64
		err       error
		cash      string
		remaining int64
	}{
		{"partial", map[string]int64{"APPLE": 2}, 1, nil, "1010.00", 1},
		{"all", map[string]int64{"APPLE": 2}, 2, nil, "1020.00", 0},
		{"missing", map[string]int64{"COCA": 2}, 1, ErrNoSuchHolding, "1000.00", 0},
		{"zero entry", map[string]int64{"APPLE": 0}, 1, ErrNoSuchHolding, "1000.00", 0},
		{"too many", map[string]int64{"APPLE": 4}, 5, ErrInsufficientQuantity, "1000.00", 4},
		{"negative", map[string]int64{"APPLE": 4}, -1, ErrNegativeQuantity, "1000.00", 4},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			acc := newAccount(1000)
			acc.Holdings = tc.holdings

			_, err := ApplySale(acc, apple, tc.quantity)
			if tc.err != nil {
				require.ErrorIs(t, err, tc.err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tc.cash, model.FormatMoney(acc.Cash))
			assert.Equal(t, tc.remaining, acc.Held("APPLE"))
		})
	}
}

func TestApplySaleKeepsZeroEntry(t *testing.T) {
	acc := newAccount(1000)
	acc.Holdings["APPLE"] = 2

	_, err := ApplySale(acc, security("APPLE", "10"), 2)
	require.NoError(t, err)

	qty, ok := acc.Holdings["APPLE"]
	assert.True(t, ok)
	assert.Zero(t, qty)
}

func TestNetWorth(t *testing.T) {
	acc := model.BrokerageAccount{
		Cash:     decimal.NewFromInt(960),
		Holdings: map[string]int64{"APPLE": 4, "COCA": 0, "GONE": 3},
	}
	prices := map[string]decimal.Decimal{
		"APPLE": decimal.RequireFromString("11.5"),
		"COCA":  decimal.RequireFromString("7"),
	}

	assert.Equal(t, "1006.00", model.FormatMoney(NetWorth(acc, prices)))
}
