package securities

import (
	"slices"
	"sync"

	"github.com/rxtech-lab/argo-engine/internal/types"
	"github.com/shopspring/decimal"
)

// Cash is one currency balance with its rate into the account currency.
type Cash struct {
	Currency       string
	Amount         decimal.Decimal
	ConversionRate decimal.Decimal
}

// ValueInAccountCurrency converts the balance. Unknown rates count as zero.
func (c Cash) ValueInAccountCurrency() decimal.Decimal {
	return c.Amount.Mul(c.ConversionRate)
}

// CashBook holds the balances of every currency.
type CashBook struct {
	accountCurrency string

	mu   sync.RWMutex
	cash map[string]*Cash
}

func NewCashBook(accountCurrency string) *CashBook {
	if accountCurrency == "" {
		accountCurrency = types.AccountCurrencyDefault
	}

	book := &CashBook{
		accountCurrency: accountCurrency,
		mu:              sync.RWMutex{},
		cash:            make(map[string]*Cash),
	}
	book.cash[accountCurrency] = &Cash{Currency: accountCurrency, Amount: decimal.Zero, ConversionRate: decimal.NewFromInt(1)}

	return book
}

func (b *CashBook) AccountCurrency() string {
	return b.accountCurrency
}

// Ensure adds currency with a zero balance if it is missing and reports
// whether it was added.
func (b *CashBook) Ensure(currency string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.cash[currency]; ok {
		return false
	}

	b.cash[currency] = &Cash{Currency: currency, Amount: decimal.Zero, ConversionRate: decimal.Zero}

	return true
}

// Add changes the balance of currency by amount.
func (b *CashBook) Add(currency string, amount decimal.Decimal) {
	b.Ensure(currency)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.cash[currency].Amount = b.cash[currency].Amount.Add(amount)
}

// Set overwrites the balance of currency.
func (b *CashBook) Set(currency string, amount decimal.Decimal) {
	b.Ensure(currency)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.cash[currency].Amount = amount
}

// SetConversionRate sets the rate of currency into the account currency.
// The account currency always converts at 1.
func (b *CashBook) SetConversionRate(currency string, rate decimal.Decimal) {
	if currency == b.accountCurrency {
		return
	}

	b.Ensure(currency)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.cash[currency].ConversionRate = rate
}

func (b *CashBook) Get(currency string) (Cash, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	cash, ok := b.cash[currency]
	if !ok {
		return Cash{Currency: currency, Amount: decimal.Zero, ConversionRate: decimal.Zero}, false
	}

	return *cash, true
}

// All returns every balance sorted by currency.
func (b *CashBook) All() []Cash {
	b.mu.RLock()
	out := make([]Cash, 0, len(b.cash))
	for _, cash := range b.cash {
		out = append(out, *cash)
	}
	b.mu.RUnlock()

	slices.SortFunc(out, func(a, c Cash) int {
		switch {
		case a.Currency < c.Currency:
			return -1
		case a.Currency > c.Currency:
			return 1
		default:
			return 0
		}
	})

	return out
}

// Convert converts amount from one currency into the account currency.
func (b *CashBook) Convert(amount decimal.Decimal, currency string) decimal.Decimal {
	if currency == "" || currency == b.accountCurrency {
		return amount
	}

	cash, _ := b.Get(currency)

	return amount.Mul(cash.ConversionRate)
}

// TotalValue sums every balance in the account currency.
func (b *CashBook) TotalValue() decimal.Decimal {
	total := decimal.Zero
	for _, cash := range b.All() {
		total = total.Add(cash.ValueInAccountCurrency())
	}

	return total
}

// Overwrite replaces the balances with brokerage-reported amounts. Currencies
// the brokerage did not report are zeroed. Reported rates are kept when set.
func (b *CashBook) Overwrite(balances []types.CashAmount) {
	b.mu.Lock()
	for _, cash := range b.cash {
		cash.Amount = decimal.Zero
	}
	b.mu.Unlock()

	for _, balance := range balances {
		b.Set(balance.Currency, balance.Amount)

		if balance.ConversionRate.Sign() > 0 {
			b.SetConversionRate(balance.Currency, balance.ConversionRate)
		}
	}
}

// ConversionSymbols returns the forex pairs needed to price every non-account
// currency, such as EURUSD for EUR in a USD account.
func (b *CashBook) ConversionSymbols() []types.Symbol {
	var out []types.Symbol

	for _, cash := range b.All() {
		if cash.Currency == b.accountCurrency {
			continue
		}

		out = append(out, ConversionSymbol(cash.Currency, b.accountCurrency))
	}

	return out
}

// ConversionSymbol is the forex pair quoting currency in account currency.
func ConversionSymbol(currency, accountCurrency string) types.Symbol {
	return types.NewForex(currency + accountCurrency)
}

// UpdateConversionRates prices every currency from the securities manager.
func (b *CashBook) UpdateConversionRates(securities *Manager) {
	for _, cash := range b.All() {
		if cash.Currency == b.accountCurrency {
			continue
		}

		if security, ok := securities.Get(ConversionSymbol(cash.Currency, b.accountCurrency)); ok && security.HasPrice() {
			b.SetConversionRate(cash.Currency, security.Price())

			continue
		}

		if security, ok := securities.Get(ConversionSymbol(b.accountCurrency, cash.Currency)); ok && security.HasPrice() {
			b.SetConversionRate(cash.Currency, decimal.NewFromInt(1).Div(security.Price()))
		}
	}
}
