package rates

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Krchnk/valutatrade-wallet/internal/config"
	"github.com/Krchnk/valutatrade-wallet/internal/domain"
	"github.com/Krchnk/valutatrade-wallet/internal/metrics"
	"github.com/Krchnk/valutatrade-wallet/internal/storages/jsonfile"
	gocache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

// FallbackSource labels quotes served from the fallback table.
const FallbackSource = "fallback"

const snapshotKey = "snapshot"

// Cache stores the current rate snapshot and the append-only history, and
// answers freshness-gated rate queries.
type Cache struct {
	ratesPath   string
	historyPath string
	fallback    map[string]float64
	registry    *domain.Registry
	metrics     *metrics.WalletMetrics
	memo        *gocache.Cache
	now         func() time.Time

	mu sync.Mutex
}

func NewCache(cfg config.RatesConfig, registry *domain.Registry, m *metrics.WalletMetrics) *Cache {
	c := &Cache{
		ratesPath:   cfg.RatesPath,
		historyPath: cfg.HistoryPath,
		fallback:    cfg.FallbackRates,
		registry:    registry,
		metrics:     m,
		now:         time.Now,
	}
	if cfg.SnapshotMemo > 0 {
		c.memo = gocache.New(cfg.SnapshotMemo, 2*cfg.SnapshotMemo)
	}
	return c
}

// SetClock replaces the wall clock used for freshness checks and timestamps.
func (c *Cache) SetClock(now func() time.Time) {
	c.now = now
}

// Snapshot returns the current snapshot. ok is false when none was written yet.
func (c *Cache) Snapshot() (domain.Snapshot, bool, error) {
	if c.memo != nil {
		if v, found := c.memo.Get(snapshotKey); found {
			return v.(domain.Snapshot), true, nil
		}
	}

	var snap domain.Snapshot
	ok, err := jsonfile.ReadJSON(c.ratesPath, &snap)
	if err != nil {
		return domain.Snapshot{}, false, fmt.Errorf("%w: %v", domain.ErrInvalidCachedRate, err)
	}
	if !ok || snap.Pairs == nil {
		return domain.Snapshot{}, false, nil
	}
	if c.memo != nil {
		c.memo.SetDefault(snapshotKey, snap)
	}
	return snap, true, nil
}

// WriteSnapshot replaces the whole snapshot. last_refresh never moves back.
func (c *Cache) WriteSnapshot(rates []domain.Rate) (domain.Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	refresh := c.now().UTC()
	if prev, ok, err := c.Snapshot(); err == nil && ok && prev.LastRefresh.After(refresh) {
		refresh = prev.LastRefresh
	}

	snap := domain.Snapshot{
		Pairs:       make(map[string]domain.PairValue, len(rates)),
		LastRefresh: refresh,
	}
	for _, r := range rates {
		if r.Rate <= 0 {
			logrus.WithFields(logrus.Fields{
				"pair":   r.Key(),
				"rate":   r.Rate,
				"source": r.Source,
			}).Warn("dropping non-positive rate")
			continue
		}
		snap.Pairs[r.Key()] = domain.PairValue{
			Rate:      r.Rate,
			UpdatedAt: r.UpdatedAt.UTC(),
			Source:    r.Source,
		}
	}

	if err := jsonfile.WriteAtomic(c.ratesPath, snap); err != nil {
		return domain.Snapshot{}, err
	}
	if c.memo != nil {
		c.memo.SetDefault(snapshotKey, snap)
	}
	return snap, nil
}

// AppendHistory adds one entry per rate to the history document.
func (c *Cache) AppendHistory(rates []domain.Rate) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var history []domain.HistoryEntry
	if _, err := jsonfile.ReadJSON(c.historyPath, &history); err != nil {
		return err
	}
	for _, r := range rates {
		ts := r.UpdatedAt.UTC()
		history = append(history, domain.HistoryEntry{
			ID:           fmt.Sprintf("%s_%s", r.Key(), ts.Format(time.RFC3339)),
			FromCurrency: r.From,
			ToCurrency:   r.To,
			Rate:         r.Rate,
			Timestamp:    ts,
			Source:       r.Source,
			Meta:         map[string]string{},
		})
	}
	return jsonfile.WriteAtomic(c.historyPath, history)
}

// History returns the last limit entries, oldest first. limit <= 0 returns all.
func (c *Cache) History(limit int) ([]domain.HistoryEntry, error) {
	var history []domain.HistoryEntry
	if _, err := jsonfile.ReadJSON(c.historyPath, &history); err != nil {
		return nil, err
	}
	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}
	return history, nil
}

// GetRate returns the value of 1 from expressed in to. The snapshot must be
// present and no older than ttl; pairs missing from it are derived from the
// inverse pair, then through USD, then from the fallback table.
func (c *Cache) GetRate(from, to string, ttl time.Duration) (domain.Quote, error) {
	q, err := c.getRate(from, to, ttl)
	switch {
	case err != nil:
		c.metrics.RecordLookup(domain.ErrorKind(err))
	case q.Degraded:
		c.metrics.RecordLookup(FallbackSource)
	default:
		c.metrics.RecordLookup("live")
	}
	return q, err
}

func (c *Cache) getRate(from, to string, ttl time.Duration) (domain.Quote, error) {
	fromCur, err := c.registry.Get(from)
	if err != nil {
		return domain.Quote{}, err
	}
	toCur, err := c.registry.Get(to)
	if err != nil {
		return domain.Quote{}, err
	}
	from, to = fromCur.Code, toCur.Code

	if from == to {
		return domain.Quote{From: from, To: to, Rate: 1}, nil
	}

	snap, ok, err := c.Snapshot()
	if err != nil {
		return domain.Quote{}, err
	}
	if !ok {
		return domain.Quote{}, domain.ErrRatesUnavailable
	}

	now := c.now().UTC()
	if age := now.Sub(snap.LastRefresh); age > ttl {
		return domain.Quote{}, &domain.StaleRateError{LastRefresh: snap.LastRefresh, Age: age, TTL: ttl}
	}

	q := domain.Quote{From: from, To: to, LastRefresh: snap.LastRefresh}

	rate, pv, err := lookupPair(snap, from, to)
	if err == nil {
		q.Rate, q.Source, q.UpdatedAt = rate, pv.Source, pv.UpdatedAt
		return q, nil
	}
	if !errors.Is(err, domain.ErrRateNotFound) {
		return domain.Quote{}, err
	}

	if from != domain.USD && to != domain.USD {
		toUSD, legA, errA := lookupPair(snap, from, domain.USD)
		fromUSD, legB, errB := lookupPair(snap, domain.USD, to)
		if errA == nil && errB == nil {
			q.Rate = toUSD * fromUSD
			q.Source = legA.Source
			if legB.Source != legA.Source {
				q.Source = legA.Source + "+" + legB.Source
			}
			q.UpdatedAt = legA.UpdatedAt
			if legB.UpdatedAt.Before(q.UpdatedAt) {
				q.UpdatedAt = legB.UpdatedAt
			}
			return q, nil
		}
		for _, legErr := range []error{errA, errB} {
			if legErr != nil && !errors.Is(legErr, domain.ErrRateNotFound) {
				return domain.Quote{}, legErr
			}
		}
	}

	if rate, ok := c.fallbackRate(from, to); ok {
		logrus.WithFields(logrus.Fields{
			"from":     from,
			"to":       to,
			"rate":     rate,
			"degraded": true,
		}).Warn("pair missing from live rates, serving fallback value")
		c.metrics.RecordDegraded(from, to)
		q.Rate, q.Source, q.Degraded = rate, FallbackSource, true
		return q, nil
	}

	return domain.Quote{}, fmt.Errorf("%w: %s→%s", domain.ErrRateNotFound, from, to)
}

// lookupPair reads FROM_TO or the reciprocal of TO_FROM.
func lookupPair(snap domain.Snapshot, from, to string) (float64, domain.PairValue, error) {
	if pv, ok := snap.Pairs[domain.PairKey(from, to)]; ok {
		if pv.Rate <= 0 {
			return 0, pv, fmt.Errorf("%w: %s=%v", domain.ErrInvalidCachedRate, domain.PairKey(from, to), pv.Rate)
		}
		return pv.Rate, pv, nil
	}
	if pv, ok := snap.Pairs[domain.PairKey(to, from)]; ok {
		if pv.Rate <= 0 {
			return 0, pv, fmt.Errorf("%w: %s=%v", domain.ErrInvalidCachedRate, domain.PairKey(to, from), pv.Rate)
		}
		return 1 / pv.Rate, pv, nil
	}
	return 0, domain.PairValue{}, domain.ErrRateNotFound
}

// fallbackRate converts through the USD values of the fallback table.
func (c *Cache) fallbackRate(from, to string) (float64, bool) {
	usdValue := func(code string) (float64, bool) {
		if code == domain.USD {
			return 1, true
		}
		v, ok := c.fallback[code]
		return v, ok && v > 0
	}
	a, okA := usdValue(from)
	b, okB := usdValue(to)
	if !okA || !okB {
		return 0, false
	}
	return a / b, true
}
