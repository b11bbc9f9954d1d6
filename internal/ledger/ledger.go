package ledger

import (
	"errors"

	"github.com/shopspring/decimal"

	"tradebot/internal/model"
)

var (
	ErrInsufficientFunds    = errors.New("ledger: insufficient funds")
	ErrNoSuchHolding        = errors.New("ledger: security is not held")
	ErrInsufficientQuantity = errors.New("ledger: insufficient quantity")
	ErrNegativeQuantity     = errors.New("ledger: negative quantity")
)

// Receipt describes the account after a successful trade.
type Receipt struct {
	Code   string
	Amount decimal.Decimal // cost of a purchase or proceeds of a sale
	Cash   decimal.Decimal
	Held   int64
}

// ApplyPurchase debits price*quantity and credits the holding.
// The account is left untouched when the purchase fails.
func ApplyPurchase(acc *model.BrokerageAccount, sec model.GameSecurity, quantity int64) (Receipt, error) {
	if quantity < 0 {
		return Receipt{}, ErrNegativeQuantity
	}

	cost := model.Cost(sec.Price, quantity)
	next := acc.Cash.Sub(cost)
	if next.IsNegative() {
		return Receipt{Code: sec.Code, Amount: cost, Cash: acc.Cash, Held: acc.Held(sec.Code)}, ErrInsufficientFunds
	}

	if acc.Holdings == nil {
		acc.Holdings = make(map[string]int64, 1)
	}
	acc.Cash = next
	acc.Holdings[sec.Code] += quantity

	return Receipt{Code: sec.Code, Amount: cost, Cash: acc.Cash, Held: acc.Holdings[sec.Code]}, nil
}

// ApplySale credits price*quantity and debits the holding. A holding sold down
// to zero stays in the map as a zero entry.
func ApplySale(acc *model.BrokerageAccount, sec model.GameSecurity, quantity int64) (Receipt, error) {
	if quantity < 0 {
		return Receipt{}, ErrNegativeQuantity
	}

	held := acc.Held(sec.Code)
	if held == 0 {
		return Receipt{Code: sec.Code, Cash: acc.Cash}, ErrNoSuchHolding
	}
	if held < quantity {
		return Receipt{Code: sec.Code, Cash: acc.Cash, Held: held}, ErrInsufficientQuantity
	}

	proceeds := model.Cost(sec.Price, quantity)
	acc.Cash = acc.Cash.Add(proceeds)
	acc.Holdings[sec.Code] = held - quantity

	return Receipt{Code: sec.Code, Amount: proceeds, Cash: acc.Cash, Held: acc.Holdings[sec.Code]}, nil
}

// NetWorth is cash plus the market value of every holding at the given prices.
// Holdings without a price contribute nothing.
func NetWorth(acc model.BrokerageAccount, prices map[string]decimal.Decimal) decimal.Decimal {
	total := acc.Cash
	for code, qty := range acc.Holdings {
		if qty == 0 {
			continue
		}
		price, ok := prices[code]
		if !ok {
			continue
		}
		total = total.Add(model.Cost(price, qty))
	}
	return model.Money(total)
}
