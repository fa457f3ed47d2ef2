package domain_test

import (
	"errors"
	"testing"

	"github.com/Krchnk/valutatrade-wallet/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistry_GetIsIdempotent(t *testing.T) {
	reg := domain.DefaultRegistry()
	for _, c := range reg.List() {
		first, err := reg.Get(c.Code)
		require.NoError(t, err)
		second, err := reg.Get(c.Code)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	}
	assert.Same(t, reg, domain.DefaultRegistry())
}

func TestRegistry_GetNormalizesCase(t *testing.T) {
	c, err := domain.DefaultRegistry().Get(" btc ")
	require.NoError(t, err)
	assert.Equal(t, "BTC", c.Code)
	assert.Equal(t, domain.Crypto, c.Kind)
}

func TestRegistry_GetUnknown(t *testing.T) {
	_, err := domain.DefaultRegistry().Get("xyz")
	var notFound *domain.CurrencyNotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "XYZ", notFound.Code)
	assert.Equal(t, "CurrencyNotFoundError", domain.ErrorKind(err))

	for _, code := range []string{"b$c1!", "X", "TOOLONG", " "} {
		_, err := domain.DefaultRegistry().Get(code)
		assert.ErrorIs(t, err, domain.ErrInvalidCurrencyCode, code)
		assert.False(t, errors.As(err, &notFound), code)
		assert.Equal(t, "ValidationError", domain.ErrorKind(err), code)
	}
}

func TestNewRegistry_Validation(t *testing.T) {
	tests := []struct {
		name       string
		currencies []domain.Currency
	}{
		{name: "code too short", currencies: []domain.Currency{{Code: "U", Name: "U"}}},
		{name: "code too long", currencies: []domain.Currency{{Code: "ABCDEF", Name: "X"}}},
		{name: "digits", currencies: []domain.Currency{{Code: "US1", Name: "X"}}},
		{name: "empty name", currencies: []domain.Currency{{Code: "USD"}}},
		{name: "duplicate", currencies: []domain.Currency{{Code: "USD", Name: "a"}, {Code: "usd", Name: "b"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := domain.NewRegistry(tt.currencies...)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}

func TestCurrency_Display(t *testing.T) {
	reg := domain.DefaultRegistry()
	usd, _ := reg.Get("USD")
	btc, _ := reg.Get("BTC")
	assert.Equal(t, "[FIAT] USD - US Dollar (Issuing: United States)", usd.Display())
	assert.Equal(t, "[CRYPTO] BTC - Bitcoin (Algo: SHA-256, MCAP: 1.20e+12)", btc.Display())

	small := domain.Currency{Code: "TST", Name: "Test", Kind: domain.Crypto, Algorithm: "PoS", MarketCap: 1500}
	assert.Equal(t, "[CRYPTO] TST - Test (Algo: PoS, MCAP: 1500.00)", small.Display())
}

func TestRegistry_ListOrdersFiatFirst(t *testing.T) {
	list := domain.DefaultRegistry().List()
	require.Len(t, list, 7)
	assert.Equal(t, "EUR", list[0].Code)
	assert.Equal(t, domain.Fiat, list[3].Kind)
	assert.Equal(t, domain.Crypto, list[4].Kind)
	assert.Equal(t, []string{"BTC", "ETH", "SOL"}, domain.DefaultRegistry().Codes(domain.Crypto))
}
