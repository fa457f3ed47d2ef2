package ledger

import (
	"testing"

	"github.com/Krchnk/valutatrade-wallet/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicyByName(t *testing.T) {
	assert.IsType(t, DebitUSD{}, PolicyByName("usd"))
	assert.IsType(t, NoFunding{}, PolicyByName("none"))
	assert.IsType(t, NoFunding{}, PolicyByName(""))
}

func TestDebitUSD_Fund(t *testing.T) {
	p := domain.NewPortfolio(1)
	require.NoError(t, p.Credit(domain.USD, d("100")))

	cost := d("40")
	require.NoError(t, DebitUSD{}.Fund(p, &cost, nil))
	assert.True(t, p.Balance(domain.USD).Equal(d("60")))

	over := d("61")
	var funds *domain.InsufficientFundsError
	require.ErrorAs(t, DebitUSD{}.Fund(p, &over, nil), &funds)
	assert.True(t, p.Balance(domain.USD).Equal(d("60")))

	assert.ErrorIs(t, DebitUSD{}.Fund(p, nil, nil), domain.ErrRatesUnavailable)
	assert.ErrorIs(t, DebitUSD{}.Fund(p, nil, domain.ErrStaleRate), domain.ErrStaleRate)

	zero := decimal.Zero
	assert.ErrorIs(t, DebitUSD{}.Fund(p, &zero, nil), domain.ErrValueTooSmall)
	assert.True(t, p.Balance(domain.USD).Equal(d("60")))
}
