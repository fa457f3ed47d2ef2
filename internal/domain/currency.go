package domain

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

type CurrencyKind string

const (
	Fiat   CurrencyKind = "FIAT"
	Crypto CurrencyKind = "CRYPTO"
)

// USD is the settlement currency of every trade.
const USD = "USD"

// Currency is a registry entry. Country is set for fiat, Algorithm and
// MarketCap for crypto.
type Currency struct {
	Code      string       `json:"code"`
	Name      string       `json:"name"`
	Kind      CurrencyKind `json:"kind"`
	Country   string       `json:"issuing_country,omitempty"`
	Algorithm string       `json:"algorithm,omitempty"`
	MarketCap float64      `json:"market_cap,omitempty"`
}

func (c Currency) Display() string {
	base := fmt.Sprintf("%s - %s", c.Code, c.Name)
	switch c.Kind {
	case Fiat:
		return fmt.Sprintf("[FIAT] %s (Issuing: %s)", base, c.Country)
	case Crypto:
		capStr := fmt.Sprintf("%.2f", c.MarketCap)
		if c.MarketCap > 1e6 {
			capStr = fmt.Sprintf("%.2e", c.MarketCap)
		}
		return fmt.Sprintf("[CRYPTO] %s (Algo: %s, MCAP: %s)", base, c.Algorithm, capStr)
	default:
		return base
	}
}

// NormalizeCode upper-cases and validates the shape of a currency code.
func NormalizeCode(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) < 2 || len(code) > 5 {
		return "", fmt.Errorf("%w: got %q", ErrInvalidCurrencyCode, code)
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return "", fmt.Errorf("%w: got %q", ErrInvalidCurrencyCode, code)
		}
	}
	return code, nil
}

// Registry is the closed set of supported currencies. It is never mutated
// after construction.
type Registry struct {
	byCode map[string]Currency
}

func NewRegistry(currencies ...Currency) (*Registry, error) {
	r := &Registry{byCode: make(map[string]Currency, len(currencies))}
	for _, c := range currencies {
		code, err := NormalizeCode(c.Code)
		if err != nil {
			return nil, err
		}
		if c.Name == "" {
			return nil, fmt.Errorf("%w: currency %s has empty name", ErrValidation, code)
		}
		if _, dup := r.byCode[code]; dup {
			return nil, fmt.Errorf("%w: duplicate currency %s", ErrValidation, code)
		}
		c.Code = code
		r.byCode[code] = c
	}
	return r, nil
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// DefaultRegistry returns the built-in registry, built on first use.
func DefaultRegistry() *Registry {
	defaultRegistryOnce.Do(func() {
		r, err := NewRegistry(
			Currency{Code: "USD", Name: "US Dollar", Kind: Fiat, Country: "United States"},
			Currency{Code: "EUR", Name: "Euro", Kind: Fiat, Country: "Eurozone"},
			Currency{Code: "RUB", Name: "Russian Ruble", Kind: Fiat, Country: "Russia"},
			Currency{Code: "GBP", Name: "British Pound", Kind: Fiat, Country: "United Kingdom"},
			Currency{Code: "BTC", Name: "Bitcoin", Kind: Crypto, Algorithm: "SHA-256", MarketCap: 1.2e12},
			Currency{Code: "ETH", Name: "Ethereum", Kind: Crypto, Algorithm: "Ethash", MarketCap: 4e11},
			Currency{Code: "SOL", Name: "Solana", Kind: Crypto, Algorithm: "Proof of History", MarketCap: 6e10},
		)
		if err != nil {
			panic(err)
		}
		defaultRegistry = r
	})
	return defaultRegistry
}

// Get returns the registry entry for code. A malformed code fails with
// ErrInvalidCurrencyCode, a well-formed unknown one with *CurrencyNotFoundError.
func (r *Registry) Get(code string) (Currency, error) {
	normalized, err := NormalizeCode(code)
	if err != nil {
		return Currency{}, err
	}
	c, ok := r.byCode[normalized]
	if !ok {
		return Currency{}, &CurrencyNotFoundError{Code: normalized}
	}
	return c, nil
}

// List returns all currencies, fiat first, each group sorted by code.
func (r *Registry) List() []Currency {
	out := make([]Currency, 0, len(r.byCode))
	for _, c := range r.byCode {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind == Fiat
		}
		return out[i].Code < out[j].Code
	})
	return out
}

// Codes returns the codes of the given kind, sorted.
func (r *Registry) Codes(kind CurrencyKind) []string {
	var out []string
	for _, c := range r.List() {
		if c.Kind == kind {
			out = append(out, c.Code)
		}
	}
	return out
}
