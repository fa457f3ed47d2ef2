package domain

import "time"

// Rate is the value of 1 unit of From expressed in To.
type Rate struct {
	From      string
	To        string
	Rate      float64
	UpdatedAt time.Time
	Source    string
}

func (r Rate) Key() string { return PairKey(r.From, r.To) }

func PairKey(from, to string) string { return from + "_" + to }

type PairValue struct {
	Rate      float64   `json:"rate"`
	UpdatedAt time.Time `json:"updated_at"`
	Source    string    `json:"source"`
}

// Snapshot is the currently authoritative set of pairs. LastRefresh covers
// the whole snapshot.
type Snapshot struct {
	Pairs       map[string]PairValue `json:"pairs"`
	LastRefresh time.Time            `json:"last_refresh"`
}

type HistoryEntry struct {
	ID           string            `json:"id"`
	FromCurrency string            `json:"from_currency"`
	ToCurrency   string            `json:"to_currency"`
	Rate         float64           `json:"rate"`
	Timestamp    time.Time         `json:"timestamp"`
	Source       string            `json:"source"`
	Meta         map[string]string `json:"meta"`
}

// Quote is the answer to a rate query. Degraded marks values served from
// the built-in fallback table instead of the live cache.
type Quote struct {
	From        string    `json:"from"`
	To          string    `json:"to"`
	Rate        float64   `json:"rate"`
	Source      string    `json:"source"`
	UpdatedAt   time.Time `json:"updated_at"`
	LastRefresh time.Time `json:"last_refresh"`
	Degraded    bool      `json:"degraded"`
}
