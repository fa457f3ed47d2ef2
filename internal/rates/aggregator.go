package rates

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Krchnk/valutatrade-wallet/internal/domain"
	"github.com/Krchnk/valutatrade-wallet/internal/metrics"
	"github.com/sirupsen/logrus"
)

// SnapshotStore persists merged rates.
type SnapshotStore interface {
	WriteSnapshot(rates []domain.Rate) (domain.Snapshot, error)
	AppendHistory(rates []domain.Rate) error
}

// SourceResult is the outcome of one source within an update.
type SourceResult struct {
	Source string
	Pairs  int
	Err    error
}

type UpdateReport struct {
	Sources  []SourceResult
	Snapshot domain.Snapshot
}

type Aggregator struct {
	sources []Source
	store   SnapshotStore
	metrics *metrics.WalletMetrics
}

// NewAggregator queries sources in the given order; for the same pair a
// later source overrides an earlier one.
func NewAggregator(store SnapshotStore, m *metrics.WalletMetrics, sources ...Source) *Aggregator {
	return &Aggregator{
		sources: sources,
		store:   store,
		metrics: m,
	}
}

// RunUpdate fetches every source once and persists the merged result. A
// failing source is skipped; the update fails only when no source returned
// any pair, in which case nothing is written.
func (a *Aggregator) RunUpdate(ctx context.Context) (UpdateReport, error) {
	var (
		report UpdateReport
		merged = make(map[string]domain.Rate)
	)

	for _, src := range a.sources {
		start := time.Now()
		fetched, err := src.Fetch(ctx)
		a.metrics.RecordSourceFetch(src.Name(), len(fetched), time.Since(start).Seconds(), err)

		if err != nil {
			logrus.WithFields(logrus.Fields{
				"source": src.Name(),
			}).WithError(err).Warn("rate source failed, continuing with the others")
			report.Sources = append(report.Sources, SourceResult{Source: src.Name(), Err: err})
			continue
		}

		for _, r := range fetched {
			merged[r.Key()] = r
		}
		report.Sources = append(report.Sources, SourceResult{Source: src.Name(), Pairs: len(fetched)})
		logrus.WithFields(logrus.Fields{
			"source": src.Name(),
			"pairs":  len(fetched),
		}).Info("rates fetched")
	}

	if len(merged) == 0 {
		a.metrics.RecordUpdate(false, 0)
		logrus.Error("rates update failed: no source returned data")
		return report, domain.ErrAllSourcesUnavailable
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	rates := make([]domain.Rate, 0, len(keys))
	for _, k := range keys {
		rates = append(rates, merged[k])
	}

	snap, err := a.store.WriteSnapshot(rates)
	if err != nil {
		a.metrics.RecordUpdate(false, 0)
		logrus.WithError(err).Error("failed to write rates snapshot")
		return report, fmt.Errorf("write snapshot: %w", err)
	}
	report.Snapshot = snap

	if err := a.store.AppendHistory(rates); err != nil {
		logrus.WithError(err).Error("failed to append rates history, snapshot kept")
	}

	a.metrics.RecordUpdate(true, float64(snap.LastRefresh.Unix()))
	logrus.WithFields(logrus.Fields{
		"pairs":        len(snap.Pairs),
		"last_refresh": snap.LastRefresh.Format(time.RFC3339),
	}).Info("rates snapshot updated")
	return report, nil
}

// Run calls RunUpdate every interval until ctx is done.
func (a *Aggregator) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := a.RunUpdate(ctx); err != nil {
				logrus.WithError(err).Warn("scheduled rates update failed")
			}
		}
	}
}
