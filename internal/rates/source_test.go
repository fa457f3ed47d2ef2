package rates

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Krchnk/valutatrade-wallet/internal/config"
	"github.com/Krchnk/valutatrade-wallet/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parserConfig(url string) config.ParserConfig {
	return config.ParserConfig{
		BaseCurrency:       "USD",
		CoinGeckoURL:       url + "/simple/price",
		ExchangeRateAPIURL: url + "/v6",
		ExchangeRateAPIKey: "secret",
		RequestTimeout:     time.Second,
		CryptoCurrencies:   []string{"BTC", "ETH", "SOL"},
		FiatCurrencies:     []string{"EUR", "GBP", "RUB"},
		CryptoIDMap:        map[string]string{"BTC": "bitcoin", "ETH": "ethereum", "SOL": "solana"},
	}
}

func byKey(rates []domain.Rate) map[string]domain.Rate {
	out := make(map[string]domain.Rate, len(rates))
	for _, r := range rates {
		out[r.Key()] = r
	}
	return out
}

func TestCoinGeckoSource_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/simple/price", r.URL.Path)
		assert.Equal(t, "bitcoin,ethereum,solana", r.URL.Query().Get("ids"))
		assert.Equal(t, "usd", r.URL.Query().Get("vs_currencies"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"bitcoin": {"usd": 59337.21}, "ethereum": {"usd": 3720}}`))
	}))
	defer srv.Close()

	got, err := NewCoinGeckoSource(parserConfig(srv.URL)).Fetch(context.Background())
	require.NoError(t, err)

	pairs := byKey(got)
	require.Len(t, pairs, 2)
	assert.Equal(t, 59337.21, pairs["BTC_USD"].Rate)
	assert.Equal(t, CoinGeckoName, pairs["BTC_USD"].Source)
	assert.Equal(t, 3720.0, pairs["ETH_USD"].Rate)
	assert.NotContains(t, pairs, "SOL_USD")
}

func TestCoinGeckoSource_HTTPErrorIsSourceUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewCoinGeckoSource(parserConfig(srv.URL)).Fetch(context.Background())
	require.ErrorIs(t, err, domain.ErrSourceUnavailable)
	var srcErr *domain.SourceError
	require.ErrorAs(t, err, &srcErr)
	assert.Equal(t, CoinGeckoName, srcErr.Source)
	assert.Contains(t, err.Error(), "HTTP 429")
}

func TestExchangeRateAPISource_InvertsAndDropsZero(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v6/secret/latest/USD", r.URL.Path)
		w.Write([]byte(`{"result": "success", "conversion_rates": {"USD": 1, "EUR": 0.8, "GBP": 0, "RUB": 100}}`))
	}))
	defer srv.Close()

	got, err := NewExchangeRateAPISource(parserConfig(srv.URL)).Fetch(context.Background())
	require.NoError(t, err)

	pairs := byKey(got)
	require.Len(t, pairs, 2)
	assert.InDelta(t, 1.25, pairs["EUR_USD"].Rate, 1e-12)
	assert.InDelta(t, 0.01, pairs["RUB_USD"].Rate, 1e-12)
	assert.Equal(t, ExchangeRateAPIName, pairs["RUB_USD"].Source)
	assert.NotContains(t, pairs, "GBP_USD")
}

func TestExchangeRateAPISource_ProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result": "error", "error-type": "invalid-key"}`))
	}))
	defer srv.Close()

	_, err := NewExchangeRateAPISource(parserConfig(srv.URL)).Fetch(context.Background())
	require.ErrorIs(t, err, domain.ErrSourceUnavailable)
	assert.Contains(t, err.Error(), "invalid-key")
}

func TestExchangeRateAPISource_MissingKey(t *testing.T) {
	cfg := parserConfig("http://127.0.0.1:0")
	cfg.ExchangeRateAPIKey = ""

	_, err := NewExchangeRateAPISource(cfg).Fetch(context.Background())
	require.ErrorIs(t, err, domain.ErrSourceUnavailable)
	assert.ErrorIs(t, err, errMissingAPIKey)
}

func TestSource_TimeoutIsSourceUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	cfg := parserConfig(srv.URL)
	cfg.RequestTimeout = 20 * time.Millisecond

	_, err := NewCoinGeckoSource(cfg).Fetch(context.Background())
	assert.ErrorIs(t, err, domain.ErrSourceUnavailable)
}

func TestSource_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	_, err := NewExchangeRateAPISource(parserConfig(srv.URL)).Fetch(context.Background())
	assert.ErrorIs(t, err, domain.ErrSourceUnavailable)
}
