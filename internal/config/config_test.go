package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, 300*time.Second, cfg.Rates.TTL)
	assert.Equal(t, "USD", cfg.BaseCurrency)
	assert.Equal(t, "json", cfg.Storage.Driver)
	assert.Equal(t, "none", cfg.BuyFunding)
	assert.Equal(t, []string{"BTC", "ETH", "SOL"}, cfg.Parser.CryptoCurrencies)
	assert.Equal(t, "bitcoin", cfg.Parser.CryptoIDMap["BTC"])
	assert.InDelta(t, 50000.0, cfg.Rates.FallbackRates["BTC"], 1e-9)
	assert.Equal(t, filepath.Join("data", "rates.json"), cfg.Rates.RatesPath)
	assert.Equal(t, filepath.Join("data", "users.json"), cfg.Storage.UsersPath())
}

func TestLoadConfig_FromEnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "test.env")
	content := "DATA_DIR=" + dir + "\nRATES_TTL_SECONDS=60\nBUY_FUNDING=usd\nFIAT_CURRENCIES=eur, gbp\n"
	require.NoError(t, os.WriteFile(envFile, []byte(content), 0o644))

	t.Cleanup(func() {
		for _, k := range []string{"DATA_DIR", "RATES_TTL_SECONDS", "BUY_FUNDING", "FIAT_CURRENCIES"} {
			os.Unsetenv(k)
		}
	})

	cfg, err := LoadConfig(envFile)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, cfg.Rates.TTL)
	assert.Equal(t, "usd", cfg.BuyFunding)
	assert.Equal(t, []string{"EUR", "GBP"}, cfg.Parser.FiatCurrencies)
	assert.Equal(t, filepath.Join(dir, "session.json"), cfg.Storage.SessionPath())
}

func TestLoadConfig_RejectsBadValues(t *testing.T) {
	t.Setenv("RATES_TTL_SECONDS", "soon")
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}

func TestLoadConfig_RejectsUnknownFunding(t *testing.T) {
	t.Setenv("BUY_FUNDING", "credit")
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}

func TestParseRateTable(t *testing.T) {
	table, err := ParseRateTable("eur:1.1, BTC:60000")
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"EUR": 1.1, "BTC": 60000}, table)

	_, err = ParseRateTable("EUR:0")
	assert.Error(t, err)
	_, err = ParseRateTable("EUR")
	assert.Error(t, err)
}

func TestDBConfig_ConnectionString(t *testing.T) {
	d := DBConfig{Host: "h", Port: "1", User: "u", Password: "p", DBName: "n"}
	assert.Equal(t, "host=h port=1 user=u password=p dbname=n sslmode=disable", d.ConnectionString())
}
