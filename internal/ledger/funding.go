package ledger

import (
	"github.com/Krchnk/valutatrade-wallet/internal/domain"
	"github.com/shopspring/decimal"
)

// FundingPolicy decides how a purchase is paid for. It runs on the working
// copy of the portfolio before the purchased amount is credited; an error
// aborts the purchase with nothing saved.
type FundingPolicy interface {
	Fund(p *domain.Portfolio, cost *decimal.Decimal, priceErr error) error
}

// NoFunding credits purchases without debiting any wallet.
type NoFunding struct{}

func (NoFunding) Fund(*domain.Portfolio, *decimal.Decimal, error) error { return nil }

// DebitUSD pays for purchases from the USD wallet and refuses to buy when
// the cost cannot be priced or rounds to zero.
type DebitUSD struct{}

func (DebitUSD) Fund(p *domain.Portfolio, cost *decimal.Decimal, priceErr error) error {
	if cost == nil {
		if priceErr == nil {
			priceErr = domain.ErrRatesUnavailable
		}
		return priceErr
	}
	if !cost.IsPositive() {
		return domain.ErrValueTooSmall
	}
	return p.Debit(domain.USD, *cost)
}

// PolicyByName maps the BUY_FUNDING setting to a policy.
func PolicyByName(name string) FundingPolicy {
	if name == "usd" {
		return DebitUSD{}
	}
	return NoFunding{}
}
