package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Krchnk/valutatrade-wallet/internal/audit"
	"github.com/Krchnk/valutatrade-wallet/internal/auth"
	"github.com/Krchnk/valutatrade-wallet/internal/domain"
	"github.com/Krchnk/valutatrade-wallet/internal/metrics"
	"github.com/Krchnk/valutatrade-wallet/internal/storages"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	ActionBuy     = "buy"
	ActionSell    = "sell"
	ActionDeposit = "deposit"
)

type RateReader interface {
	GetRate(from, to string, ttl time.Duration) (domain.Quote, error)
}

type Ledger struct {
	store    storages.AccountStore
	rates    RateReader
	registry *domain.Registry
	ttl      time.Duration
	funding  FundingPolicy
	audit    audit.Sink
	metrics  *metrics.WalletMetrics

	// mu serializes load-mutate-save cycles within the process.
	mu sync.Mutex
}

type Option func(*Ledger)

func WithFunding(p FundingPolicy) Option { return func(l *Ledger) { l.funding = p } }

func WithAudit(s audit.Sink) Option { return func(l *Ledger) { l.audit = s } }

func WithMetrics(m *metrics.WalletMetrics) Option { return func(l *Ledger) { l.metrics = m } }

func New(store storages.AccountStore, rates RateReader, registry *domain.Registry, ttl time.Duration, opts ...Option) *Ledger {
	l := &Ledger{
		store:    store,
		rates:    rates,
		registry: registry,
		ttl:      ttl,
		funding:  NoFunding{},
		audit:    audit.Nop{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// TradeResult describes an applied buy, sell or deposit. Value is the cost
// of a purchase or the revenue of a sale in USD; it is nil when no rate was
// available, and PriceErr then says why.
type TradeResult struct {
	Action   string
	Currency string
	Amount   decimal.Decimal
	Before   decimal.Decimal
	After    decimal.Decimal
	Rate     float64
	Degraded bool
	Value    *decimal.Decimal
	PriceErr error
}

func (l *Ledger) record(action string, sess auth.Session, currency string, amount decimal.Decimal, err error) {
	userID, _ := sess.UserID()
	l.audit.Record(audit.NewEvent(action, userID, sess.Username(), currency, amount, err))
	l.metrics.RecordOperation(action, currency, amount.InexactFloat64(), domain.ErrorKind(err))
}

// validate checks the session, the amount and the currency, in that order.
func (l *Ledger) validate(sess auth.Session, code string, amount decimal.Decimal) (int64, domain.Currency, error) {
	userID, err := sess.UserID()
	if err != nil {
		return 0, domain.Currency{}, err
	}
	if err := domain.CheckAmount(amount); err != nil {
		return 0, domain.Currency{}, err
	}
	cur, err := l.registry.Get(code)
	if err != nil {
		return 0, domain.Currency{}, err
	}
	return userID, cur, nil
}

// price quotes amount of code in USD. A missing, stale or corrupt rate is
// not an error here: the quote is nil and the reason is returned as priceErr.
func (l *Ledger) price(code string, amount decimal.Decimal) (q *domain.Quote, value *decimal.Decimal, priceErr error, err error) {
	quote, err := l.rates.GetRate(code, domain.USD, l.ttl)
	if err != nil {
		if errors.Is(err, domain.ErrRateUnavailable) || errors.Is(err, domain.ErrInvalidCachedRate) {
			logrus.WithFields(logrus.Fields{
				"currency": code,
			}).WithError(err).Warn("no usable rate, operation is not priced")
			return nil, nil, err, nil
		}
		return nil, nil, nil, err
	}
	v := amount.Mul(decimal.NewFromFloat(quote.Rate)).Round(domain.AmountPrecision)
	return &quote, &v, nil, nil
}

// Buy credits amount of code to the session's portfolio. The purchase is
// priced in USD when a rate is available and paid for by the funding policy.
func (l *Ledger) Buy(ctx context.Context, sess auth.Session, code string, amount decimal.Decimal) (res TradeResult, err error) {
	defer func() { l.record(ActionBuy, sess, strings.ToUpper(strings.TrimSpace(code)), amount, err) }()

	userID, cur, err := l.validate(sess, code, amount)
	if err != nil {
		return TradeResult{}, err
	}
	if cur.Code == domain.USD {
		return TradeResult{}, fmt.Errorf("%w: USD is the settlement currency, use deposit", domain.ErrValidation)
	}

	quote, cost, priceErr, err := l.price(cur.Code, amount)
	if err != nil {
		return TradeResult{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	portfolio, err := l.store.LoadPortfolio(ctx, userID)
	if err != nil {
		return TradeResult{}, err
	}
	next := portfolio.Clone()
	if err := l.funding.Fund(next, cost, priceErr); err != nil {
		return TradeResult{}, err
	}
	if err := next.Credit(cur.Code, amount); err != nil {
		return TradeResult{}, err
	}
	if err := l.store.SavePortfolio(ctx, next); err != nil {
		return TradeResult{}, fmt.Errorf("save portfolio: %w", err)
	}

	res = newTradeResult(ActionBuy, cur.Code, amount, portfolio, next, quote, cost, priceErr)
	logrus.WithFields(logrus.Fields{
		"user_id":  userID,
		"currency": cur.Code,
		"amount":   amount.String(),
		"priced":   cost != nil,
	}).Info("buy applied")
	return res, nil
}

// Sell debits amount of code and credits its USD value when a rate is
// available. The wallet is left untouched when the balance is short.
func (l *Ledger) Sell(ctx context.Context, sess auth.Session, code string, amount decimal.Decimal) (res TradeResult, err error) {
	defer func() { l.record(ActionSell, sess, strings.ToUpper(strings.TrimSpace(code)), amount, err) }()

	userID, cur, err := l.validate(sess, code, amount)
	if err != nil {
		return TradeResult{}, err
	}
	if cur.Code == domain.USD {
		return TradeResult{}, fmt.Errorf("%w: USD is the settlement currency and cannot be sold", domain.ErrValidation)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	portfolio, err := l.store.LoadPortfolio(ctx, userID)
	if err != nil {
		return TradeResult{}, err
	}
	next := portfolio.Clone()
	if err := next.Debit(cur.Code, amount); err != nil {
		return TradeResult{}, err
	}

	quote, revenue, priceErr, err := l.price(cur.Code, amount)
	if err != nil {
		return TradeResult{}, err
	}
	if revenue != nil && revenue.IsPositive() {
		if err := next.Credit(domain.USD, *revenue); err != nil {
			return TradeResult{}, err
		}
	}
	if err := l.store.SavePortfolio(ctx, next); err != nil {
		return TradeResult{}, fmt.Errorf("save portfolio: %w", err)
	}

	res = newTradeResult(ActionSell, cur.Code, amount, portfolio, next, quote, revenue, priceErr)
	logrus.WithFields(logrus.Fields{
		"user_id":  userID,
		"currency": cur.Code,
		"amount":   amount.String(),
		"priced":   revenue != nil,
	}).Info("sell applied")
	return res, nil
}

// Deposit credits amount of code without pricing it.
func (l *Ledger) Deposit(ctx context.Context, sess auth.Session, code string, amount decimal.Decimal) (res TradeResult, err error) {
	defer func() { l.record(ActionDeposit, sess, strings.ToUpper(strings.TrimSpace(code)), amount, err) }()

	userID, cur, err := l.validate(sess, code, amount)
	if err != nil {
		return TradeResult{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	portfolio, err := l.store.LoadPortfolio(ctx, userID)
	if err != nil {
		return TradeResult{}, err
	}
	next := portfolio.Clone()
	if err := next.Credit(cur.Code, amount); err != nil {
		return TradeResult{}, err
	}
	if err := l.store.SavePortfolio(ctx, next); err != nil {
		return TradeResult{}, fmt.Errorf("save portfolio: %w", err)
	}
	return newTradeResult(ActionDeposit, cur.Code, amount, portfolio, next, nil, nil, nil), nil
}

func newTradeResult(action, code string, amount decimal.Decimal, before, after *domain.Portfolio, q *domain.Quote, value *decimal.Decimal, priceErr error) TradeResult {
	res := TradeResult{
		Action:   action,
		Currency: code,
		Amount:   amount,
		Before:   before.Balance(code),
		After:    after.Balance(code),
		Value:    value,
		PriceErr: priceErr,
	}
	if q != nil {
		res.Rate = q.Rate
		res.Degraded = q.Degraded
	}
	return res
}
