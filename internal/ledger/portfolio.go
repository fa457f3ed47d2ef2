package ledger

import (
	"context"

	"github.com/Krchnk/valutatrade-wallet/internal/auth"
	"github.com/Krchnk/valutatrade-wallet/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type WalletView struct {
	Currency string
	Balance  decimal.Decimal
	Value    decimal.Decimal
	Rate     float64
	Priced   bool
	Degraded bool
}

// PortfolioView is a portfolio valued in Base. Total sums priced wallets only.
type PortfolioView struct {
	UserID   int64
	Username string
	Base     string
	Wallets  []WalletView
	Total    decimal.Decimal
}

// ShowPortfolio lists every wallet of the session's portfolio with its value
// in base. Wallets without a usable rate are listed with a zero value.
func (l *Ledger) ShowPortfolio(ctx context.Context, sess auth.Session, base string) (PortfolioView, error) {
	userID, err := sess.UserID()
	if err != nil {
		return PortfolioView{}, err
	}
	if base == "" {
		base = domain.USD
	}
	baseCur, err := l.registry.Get(base)
	if err != nil {
		return PortfolioView{}, err
	}

	portfolio, err := l.store.LoadPortfolio(ctx, userID)
	if err != nil {
		return PortfolioView{}, err
	}

	view := PortfolioView{
		UserID:   userID,
		Username: sess.Username(),
		Base:     baseCur.Code,
		Total:    decimal.Zero,
	}
	for _, code := range portfolio.Codes() {
		w := WalletView{Currency: code, Balance: portfolio.Balance(code), Value: decimal.Zero}

		q, err := l.rates.GetRate(code, baseCur.Code, l.ttl)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"currency": code,
				"base":     baseCur.Code,
			}).WithError(err).Debug("wallet not priced")
		} else {
			w.Rate = q.Rate
			w.Priced = true
			w.Degraded = q.Degraded
			w.Value = w.Balance.Mul(decimal.NewFromFloat(q.Rate)).Round(domain.AmountPrecision)
			view.Total = view.Total.Add(w.Value)
		}
		view.Wallets = append(view.Wallets, w)
	}
	return view, nil
}
