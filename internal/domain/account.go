package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// AmountPrecision is the number of decimal places kept for balances and
// reported cost figures.
const AmountPrecision = 8

// CheckAmount rejects amounts that are not positive or that carry more
// decimals than AmountPrecision.
func CheckAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if !amount.Equal(amount.Round(AmountPrecision)) {
		return ErrAmountPrecision
	}
	return nil
}

type Principal struct {
	UserID           int64     `json:"user_id"`
	Username         string    `json:"username"`
	HashedPassword   string    `json:"hashed_password"`
	Salt             string    `json:"salt"`
	RegistrationDate time.Time `json:"registration_date"`
}

func (p *Principal) Rename(username string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return fmt.Errorf("%w: username must not be empty", ErrValidation)
	}
	p.Username = username
	return nil
}

// Wallet holds one currency balance. Balance never goes below zero.
type Wallet struct {
	CurrencyCode string          `json:"currency_code"`
	Balance      decimal.Decimal `json:"balance"`
}

func (w *Wallet) Credit(amount decimal.Decimal) error {
	if err := CheckAmount(amount); err != nil {
		return err
	}
	w.Balance = w.Balance.Add(amount).Round(AmountPrecision)
	return nil
}

func (w *Wallet) Debit(amount decimal.Decimal) error {
	if err := CheckAmount(amount); err != nil {
		return err
	}
	if amount.GreaterThan(w.Balance) {
		return &InsufficientFundsError{Available: w.Balance, Required: amount, Code: w.CurrencyCode}
	}
	w.Balance = w.Balance.Sub(amount).Round(AmountPrecision)
	return nil
}

// Portfolio maps currency codes to wallets for one principal.
type Portfolio struct {
	UserID  int64              `json:"user_id"`
	Wallets map[string]*Wallet `json:"wallets"`
}

func NewPortfolio(userID int64) *Portfolio {
	return &Portfolio{UserID: userID, Wallets: make(map[string]*Wallet)}
}

// Balance returns zero for currencies without a wallet.
func (p *Portfolio) Balance(code string) decimal.Decimal {
	if w, ok := p.Wallets[code]; ok {
		return w.Balance
	}
	return decimal.Zero
}

// Wallet returns the wallet for code, creating an empty one if absent.
func (p *Portfolio) Wallet(code string) *Wallet {
	if p.Wallets == nil {
		p.Wallets = make(map[string]*Wallet)
	}
	w, ok := p.Wallets[code]
	if !ok {
		w = &Wallet{CurrencyCode: code, Balance: decimal.Zero}
		p.Wallets[code] = w
	}
	return w
}

func (p *Portfolio) Credit(code string, amount decimal.Decimal) error {
	if err := CheckAmount(amount); err != nil {
		return err
	}
	return p.Wallet(code).Credit(amount)
}

// Debit never materializes a wallet: a missing wallet has balance zero.
func (p *Portfolio) Debit(code string, amount decimal.Decimal) error {
	w, ok := p.Wallets[code]
	if !ok {
		if err := CheckAmount(amount); err != nil {
			return err
		}
		return &InsufficientFundsError{Available: decimal.Zero, Required: amount, Code: code}
	}
	return w.Debit(amount)
}

// Codes returns wallet currency codes in sorted order.
func (p *Portfolio) Codes() []string {
	codes := make([]string, 0, len(p.Wallets))
	for code := range p.Wallets {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Clone returns a deep copy so a failed operation can be discarded.
func (p *Portfolio) Clone() *Portfolio {
	out := NewPortfolio(p.UserID)
	for code, w := range p.Wallets {
		cp := *w
		out.Wallets[code] = &cp
	}
	return out
}
