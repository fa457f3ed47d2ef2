package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	HTTPPort     string
	JWTSecret    string
	LogLevel     string
	ActionsLog   string
	BaseCurrency string
	BuyFunding   string
	BcryptCost   int

	Storage  StorageConfig
	DBConfig DBConfig
	Rates    RatesConfig
	Parser   ParserConfig
}

type StorageConfig struct {
	Driver  string
	DataDir string
}

func (s StorageConfig) UsersPath() string      { return filepath.Join(s.DataDir, "users.json") }
func (s StorageConfig) PortfoliosPath() string { return filepath.Join(s.DataDir, "portfolios.json") }
func (s StorageConfig) SessionPath() string    { return filepath.Join(s.DataDir, "session.json") }

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

func (d DBConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		d.Host, d.Port, d.User, d.Password, d.DBName)
}

// RatesConfig drives the rate cache.
type RatesConfig struct {
	RatesPath      string
	HistoryPath    string
	TTL            time.Duration
	SnapshotMemo   time.Duration
	UpdateInterval time.Duration
	// FallbackRates maps a currency code to its value in USD. Quotes built
	// from it are flagged as degraded.
	FallbackRates map[string]float64
}

// ParserConfig drives the external rate sources.
type ParserConfig struct {
	BaseCurrency       string
	CoinGeckoURL       string
	ExchangeRateAPIURL string
	ExchangeRateAPIKey string
	RequestTimeout     time.Duration
	CryptoCurrencies   []string
	FiatCurrencies     []string
	CryptoIDMap        map[string]string
}

func LoadConfig(path string) (Config, error) {
	if err := godotenv.Load(path); err != nil {
		logrus.WithError(err).Warn("failed to load config file, using env vars")
	}

	dataDir := getEnv("DATA_DIR", "data")

	ttl, err := getSeconds("RATES_TTL_SECONDS", 300)
	if err != nil {
		return Config{}, err
	}
	memo, err := getSeconds("SNAPSHOT_MEMO_SECONDS", 30)
	if err != nil {
		return Config{}, err
	}
	interval, err := getSeconds("UPDATE_INTERVAL_SECONDS", 0)
	if err != nil {
		return Config{}, err
	}
	timeout, err := getSeconds("REQUEST_TIMEOUT_SECONDS", 10)
	if err != nil {
		return Config{}, err
	}
	fallback, err := ParseRateTable(getEnv("FALLBACK_RATES", "EUR:1.08,BTC:50000,ETH:3000,RUB:0.011"))
	if err != nil {
		return Config{}, err
	}
	idMap, err := parseStringMap(getEnv("CRYPTO_ID_MAP", "BTC:bitcoin,ETH:ethereum,SOL:solana"))
	if err != nil {
		return Config{}, err
	}
	bcryptCost, err := strconv.Atoi(getEnv("BCRYPT_COST", "10"))
	if err != nil {
		return Config{}, fmt.Errorf("BCRYPT_COST: %w", err)
	}

	base := strings.ToUpper(getEnv("DEFAULT_BASE_CURRENCY", "USD"))

	cfg := Config{
		HTTPPort:     getEnv("HTTP_PORT", ":8080"),
		JWTSecret:    getEnv("JWT_SECRET", "your-secret-key"),
		LogLevel:     getEnv("LOG_LEVEL", ""),
		ActionsLog:   getEnv("ACTIONS_LOG", filepath.Join("logs", "actions.log")),
		BaseCurrency: base,
		BuyFunding:   strings.ToLower(getEnv("BUY_FUNDING", "none")),
		BcryptCost:   bcryptCost,
		Storage: StorageConfig{
			Driver:  strings.ToLower(getEnv("STORAGE_DRIVER", "json")),
			DataDir: dataDir,
		},
		DBConfig: DBConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "password"),
			DBName:   getEnv("DB_NAME", "wallet"),
		},
		Rates: RatesConfig{
			RatesPath:      getEnv("RATES_FILE", filepath.Join(dataDir, "rates.json")),
			HistoryPath:    getEnv("HISTORY_FILE", filepath.Join(dataDir, "exchange_rates.json")),
			TTL:            ttl,
			SnapshotMemo:   memo,
			UpdateInterval: interval,
			FallbackRates:  fallback,
		},
		Parser: ParserConfig{
			BaseCurrency:       "USD",
			CoinGeckoURL:       getEnv("COINGECKO_URL", "https://api.coingecko.com/api/v3/simple/price"),
			ExchangeRateAPIURL: getEnv("EXCHANGERATE_API_URL", "https://v6.exchangerate-api.com/v6"),
			ExchangeRateAPIKey: getEnv("EXCHANGERATE_API_KEY", ""),
			RequestTimeout:     timeout,
			CryptoCurrencies:   parseList(getEnv("CRYPTO_CURRENCIES", "BTC,ETH,SOL")),
			FiatCurrencies:     parseList(getEnv("FIAT_CURRENCIES", "EUR,GBP,RUB")),
			CryptoIDMap:        idMap,
		},
	}

	switch cfg.BuyFunding {
	case "none", "usd":
	default:
		return Config{}, fmt.Errorf("BUY_FUNDING must be none or usd, got %q", cfg.BuyFunding)
	}
	switch cfg.Storage.Driver {
	case "json", "postgres":
	default:
		return Config{}, fmt.Errorf("STORAGE_DRIVER must be json or postgres, got %q", cfg.Storage.Driver)
	}

	return cfg, nil
}

// ParseRateTable parses "EUR:1.08,BTC:50000" into code -> value.
func ParseRateTable(raw string) (map[string]float64, error) {
	out := make(map[string]float64)
	pairs, err := parseStringMap(raw)
	if err != nil {
		return nil, err
	}
	for code, value := range pairs {
		v, err := strconv.ParseFloat(value, 64)
		if err != nil || v <= 0 {
			return nil, fmt.Errorf("invalid rate %q for %s", value, code)
		}
		out[code] = v
	}
	return out, nil
}

func parseStringMap(raw string) (map[string]string, error) {
	out := make(map[string]string)
	for _, item := range parseList(raw) {
		k, v, ok := strings.Cut(item, ":")
		if !ok || k == "" || v == "" {
			return nil, fmt.Errorf("invalid entry %q, expected KEY:VALUE", item)
		}
		out[strings.ToUpper(k)] = strings.TrimSpace(v)
	}
	return out, nil
}

func parseList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if !strings.Contains(item, ":") {
			item = strings.ToUpper(item)
		}
		out = append(out, item)
	}
	return out
}

func getSeconds(key string, def int) (time.Duration, error) {
	raw := getEnv(key, strconv.Itoa(def))
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer, got %q", key, raw)
	}
	return time.Duration(n) * time.Second, nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
