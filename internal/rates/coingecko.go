package rates

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Krchnk/valutatrade-wallet/internal/config"
	"github.com/Krchnk/valutatrade-wallet/internal/domain"
)

const CoinGeckoName = "CoinGecko"

// CoinGeckoSource reads crypto prices quoted in the base currency.
type CoinGeckoSource struct {
	client *http.Client
	url    string
	base   string
	codes  []string
	ids    map[string]string
	now    func() time.Time
}

func NewCoinGeckoSource(cfg config.ParserConfig) *CoinGeckoSource {
	return &CoinGeckoSource{
		client: newHTTPClient(cfg.RequestTimeout),
		url:    cfg.CoinGeckoURL,
		base:   strings.ToUpper(cfg.BaseCurrency),
		codes:  cfg.CryptoCurrencies,
		ids:    cfg.CryptoIDMap,
		now:    time.Now,
	}
}

func (s *CoinGeckoSource) Name() string { return CoinGeckoName }

// Fetch returns {CODE}_{BASE} for every configured code the provider knows.
func (s *CoinGeckoSource) Fetch(ctx context.Context) ([]domain.Rate, error) {
	var (
		ids    []string
		codeOf = make(map[string]string)
	)
	for _, code := range s.codes {
		id, ok := s.ids[code]
		if !ok {
			continue
		}
		ids = append(ids, id)
		codeOf[id] = code
	}
	if len(ids) == 0 {
		return nil, nil
	}

	vs := strings.ToLower(s.base)
	q := url.Values{}
	q.Set("ids", strings.Join(ids, ","))
	q.Set("vs_currencies", vs)

	// {"bitcoin": {"usd": 59337.21}, ...}
	var payload map[string]map[string]float64
	if err := getJSON(ctx, s.client, CoinGeckoName, s.url+"?"+q.Encode(), &payload); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	var out []domain.Rate
	for _, id := range ids {
		price, ok := payload[id][vs]
		if !ok || price <= 0 {
			continue
		}
		out = append(out, domain.Rate{
			From:      codeOf[id],
			To:        s.base,
			Rate:      price,
			UpdatedAt: now,
			Source:    CoinGeckoName,
		})
	}
	return out, nil
}
