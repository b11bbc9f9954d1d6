package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
	"pgregory.net/rapid"

	"tradebot/internal/model"
)

func drawSecurity(t *rapid.T, label string) model.GameSecurity {
	cents := rapid.Int64Range(1, 50_000).Draw(t, label+"Cents")
	return model.GameSecurity{Code: label, Price: decimal.New(cents, -2)}
}

// Balance equals the starting cash minus every successful cost and never goes negative.
func TestProperty_PurchaseBalanceLaw(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		start := decimal.NewFromInt(rapid.Int64Range(0, 100_000).Draw(t, "start"))
		acc := &model.BrokerageAccount{Cash: start, Holdings: map[string]int64{}}
		sec := drawSecurity(t, "SEC")
		quantities := rapid.SliceOfN(rapid.Int64Range(0, 500), 1, 30).Draw(t, "quantities")

		spent := decimal.Zero
		var bought int64
		for _, qty := range quantities {
			receipt, err := ApplyPurchase(acc, sec, qty)
			if err == nil {
				spent = spent.Add(receipt.Amount)
				bought += qty
			}
			if acc.Cash.IsNegative() {
				t.Fatalf("negative balance %s after buying %d", acc.Cash, qty)
			}
		}

		if !acc.Cash.Equal(start.Sub(spent)) {
			t.Fatalf("balance %s != start %s - spent %s", acc.Cash, start, spent)
		}
		if acc.Held(sec.Code) != bought {
			t.Fatalf("held %d != bought %d", acc.Held(sec.Code), bought)
		}
	})
}

// A rejected sale changes neither cash nor holdings.
func TestProperty_FailedSaleIsNoop(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		sec := drawSecurity(t, "SEC")
		held := rapid.Int64Range(0, 100).Draw(t, "held")
		extra := rapid.Int64Range(1, 100).Draw(t, "extra")
		acc := &model.BrokerageAccount{
			Cash:     decimal.New(rapid.Int64Range(0, 1_000_000).Draw(t, "cashCents"), -2),
			Holdings: map[string]int64{sec.Code: held},
		}
		before := acc.Clone()

		if _, err := ApplySale(acc, sec, held+extra); err == nil {
			t.Fatalf("selling %d with %d held should fail", held+extra, held)
		}
		if !acc.Cash.Equal(before.Cash) || acc.Held(sec.Code) != before.Held(sec.Code) {
			t.Fatalf("state changed on failed sale: %+v -> %+v", before, acc)
		}
	})
}

// Buying then selling the same quantity at an unchanged price restores the balance.
func TestProperty_BuySellRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		sec := drawSecurity(t, "SEC")
		qty := rapid.Int64Range(1, 200).Draw(t, "qty")
		acc := &model.BrokerageAccount{
			Cash:     model.Cost(sec.Price, qty).Add(decimal.NewFromInt(rapid.Int64Range(0, 1000).Draw(t, "slack"))),
			Holdings: map[string]int64{},
		}
		before := acc.Clone()

		if _, err := ApplyPurchase(acc, sec, qty); err != nil {
			t.Fatalf("purchase failed: %v", err)
		}
		if _, err := ApplySale(acc, sec, qty); err != nil {
			t.Fatalf("sale failed: %v", err)
		}
		if !acc.Cash.Equal(before.Cash) {
			t.Fatalf("round trip balance %s != %s", acc.Cash, before.Cash)
		}
		if acc.Held(sec.Code) != 0 {
			t.Fatalf("round trip left %d held", acc.Held(sec.Code))
		}
	})
}
