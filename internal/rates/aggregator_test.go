package rates

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Krchnk/valutatrade-wallet/internal/domain"
	"github.com/Krchnk/valutatrade-wallet/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockSource struct {
	mock.Mock
	name string
}

func (m *MockSource) Name() string { return m.name }

func (m *MockSource) Fetch(ctx context.Context) ([]domain.Rate, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Rate), args.Error(1)
}

func newMockSource(name string, rates []domain.Rate, err error) *MockSource {
	m := &MockSource{name: name}
	if rates == nil {
		m.On("Fetch", mock.Anything).Return(nil, err)
	} else {
		m.On("Fetch", mock.Anything).Return(rates, err)
	}
	return m
}

type failingHistoryStore struct {
	*Cache
}

func (failingHistoryStore) AppendHistory([]domain.Rate) error {
	return errors.New("disk full")
}

func TestAggregator_PartialFailureIsTolerated(t *testing.T) {
	c, _, _ := newTestCache(t)
	down := newMockSource("down", nil, &domain.SourceError{Source: "down", Err: errors.New("timeout")})
	up := newMockSource("up", []domain.Rate{rate("BTC", "USD", 50000)}, nil)
	m := metrics.NewWalletMetrics(prometheus.NewRegistry())

	report, err := NewAggregator(c, m, down, up).RunUpdate(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Sources, 2)
	assert.Error(t, report.Sources[0].Err)
	assert.Equal(t, 1, report.Sources[1].Pairs)
	assert.Contains(t, report.Snapshot.Pairs, "BTC_USD")

	q, err := c.GetRate("BTC", "USD", ttl)
	require.NoError(t, err)
	assert.Equal(t, 50000.0, q.Rate)

	history, err := c.History(0)
	require.NoError(t, err)
	assert.Len(t, history, 1)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SourceFetchTotal.WithLabelValues("down", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RateUpdatesTotal.WithLabelValues("ok")))
	down.AssertExpectations(t)
	up.AssertExpectations(t)
}

func TestAggregator_AllSourcesDown(t *testing.T) {
	c, _, _ := newTestCache(t)
	a := newMockSource("a", nil, errors.New("boom"))
	b := newMockSource("b", []domain.Rate{}, nil)

	_, err := NewAggregator(c, nil, a, b).RunUpdate(context.Background())
	require.ErrorIs(t, err, domain.ErrAllSourcesUnavailable)
	assert.Equal(t, "AllSourcesUnavailable", domain.ErrorKind(err))

	_, ok, err := c.Snapshot()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAggregator_FailedUpdateKeepsPreviousSnapshot(t *testing.T) {
	c, _, _ := newTestCache(t)
	_, err := c.WriteSnapshot([]domain.Rate{rate("ETH", "USD", 3000)})
	require.NoError(t, err)

	_, err = NewAggregator(c, nil, newMockSource("a", nil, errors.New("boom"))).RunUpdate(context.Background())
	require.ErrorIs(t, err, domain.ErrAllSourcesUnavailable)

	q, err := c.GetRate("ETH", "USD", ttl)
	require.NoError(t, err)
	assert.Equal(t, 3000.0, q.Rate)
}

func TestAggregator_LaterSourceWins(t *testing.T) {
	c, _, _ := newTestCache(t)
	first := newMockSource("first", []domain.Rate{rate("BTC", "USD", 1), rate("EUR", "USD", 1.1)}, nil)
	second := newMockSource("second", []domain.Rate{{From: "BTC", To: "USD", Rate: 2, UpdatedAt: t0, Source: "second"}}, nil)

	report, err := NewAggregator(c, nil, first, second).RunUpdate(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2.0, report.Snapshot.Pairs["BTC_USD"].Rate)
	assert.Equal(t, "second", report.Snapshot.Pairs["BTC_USD"].Source)
	assert.Equal(t, 1.1, report.Snapshot.Pairs["EUR_USD"].Rate)
}

func TestAggregator_HistoryFailureIsNotFatal(t *testing.T) {
	c, _, _ := newTestCache(t)
	src := newMockSource("up", []domain.Rate{rate("BTC", "USD", 50000)}, nil)

	_, err := NewAggregator(failingHistoryStore{c}, nil, src).RunUpdate(context.Background())
	require.NoError(t, err)

	_, ok, err := c.Snapshot()
	require.NoError(t, err)
	assert.True(t, ok)
}

type countingSource struct {
	calls atomic.Int32
}

func (s *countingSource) Name() string { return "counting" }

func (s *countingSource) Fetch(context.Context) ([]domain.Rate, error) {
	s.calls.Add(1)
	return []domain.Rate{rate("BTC", "USD", 50000)}, nil
}

func TestAggregator_RunStopsWithContext(t *testing.T) {
	c, _, _ := newTestCache(t)
	src := &countingSource{}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		NewAggregator(c, nil, src).Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return src.calls.Load() >= 2 }, time.Second, time.Millisecond)
	cancel()
	require.Eventually(t, func() bool {
		select {
		case <-done:
			return true
		default:
			return false
		}
	}, time.Second, time.Millisecond)
}
