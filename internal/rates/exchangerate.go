package rates

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Krchnk/valutatrade-wallet/internal/config"
	"github.com/Krchnk/valutatrade-wallet/internal/domain"
)

const ExchangeRateAPIName = "ExchangeRate-API"

var errMissingAPIKey = errors.New("EXCHANGERATE_API_KEY is not set")

// ExchangeRateAPISource reads fiat rates. The provider quotes units of CODE
// per 1 BASE; Fetch inverts them to the value of 1 CODE in BASE.
type ExchangeRateAPISource struct {
	client *http.Client
	url    string
	key    string
	base   string
	codes  []string
	now    func() time.Time
}

type exchangeRateResponse struct {
	Result          string             `json:"result"`
	ErrorType       string             `json:"error-type"`
	ConversionRates map[string]float64 `json:"conversion_rates"`
	Rates           map[string]float64 `json:"rates"`
}

func NewExchangeRateAPISource(cfg config.ParserConfig) *ExchangeRateAPISource {
	return &ExchangeRateAPISource{
		client: newHTTPClient(cfg.RequestTimeout),
		url:    strings.TrimRight(cfg.ExchangeRateAPIURL, "/"),
		key:    cfg.ExchangeRateAPIKey,
		base:   strings.ToUpper(cfg.BaseCurrency),
		codes:  cfg.FiatCurrencies,
		now:    time.Now,
	}
}

func (s *ExchangeRateAPISource) Name() string { return ExchangeRateAPIName }

func (s *ExchangeRateAPISource) Fetch(ctx context.Context) ([]domain.Rate, error) {
	if s.key == "" {
		return nil, &domain.SourceError{Source: ExchangeRateAPIName, Err: errMissingAPIKey}
	}

	endpoint := fmt.Sprintf("%s/%s/latest/%s", s.url, url.PathEscape(s.key), s.base)
	var payload exchangeRateResponse
	if err := getJSON(ctx, s.client, ExchangeRateAPIName, endpoint, &payload); err != nil {
		return nil, err
	}
	if payload.Result != "success" {
		reason := payload.ErrorType
		if reason == "" {
			reason = "unknown error"
		}
		return nil, &domain.SourceError{Source: ExchangeRateAPIName, Err: errors.New(reason)}
	}

	raw := payload.ConversionRates
	if len(raw) == 0 {
		raw = payload.Rates
	}

	now := s.now().UTC()
	var out []domain.Rate
	for _, code := range s.codes {
		value, ok := raw[code]
		if !ok || value == 0 {
			continue
		}
		out = append(out, domain.Rate{
			From:      code,
			To:        s.base,
			Rate:      1 / value,
			UpdatedAt: now,
			Source:    ExchangeRateAPIName,
		})
	}
	return out, nil
}
