package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Krchnk/valutatrade-wallet/internal/domain"
)

// Source fetches a set of rates from one external provider. A currency the
// provider has no data for is simply absent from the result.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]domain.Rate, error)
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// getJSON performs a GET and decodes the body into v. Every failure is
// reported as a *domain.SourceError for source.
func getJSON(ctx context.Context, client *http.Client, source, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &domain.SourceError{Source: source, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return &domain.SourceError{Source: source, Err: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &domain.SourceError{Source: source, Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &domain.SourceError{Source: source, Err: fmt.Errorf("failed to read response body: %w", err)}
	}
	if err := json.Unmarshal(body, v); err != nil {
		return &domain.SourceError{Source: source, Err: fmt.Errorf("failed to parse response: %w", err)}
	}
	return nil
}
