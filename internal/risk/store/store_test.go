package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"sentrix/internal/risk"
	"sentrix/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *HistoryStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "risk.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestHistoryStore_TradesRoundTrip(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.SaveTrade(ctx, risk.TradeRecord{
			ID:        string(rune('a' + i)),
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Symbol:    "ETH",
			Action:    types.ActionBuy,
			SizeUSD:   100,
			Success:   true,
		}))
	}
	trades, err := s.LoadTrades(ctx, 3)
	require.NoError(t, err)
	require.Len(t, trades, 3)
	assert.Equal(t, "c", trades[0].ID)
	assert.Equal(t, "e", trades[2].ID)
	assert.Equal(t, base.Add(4*time.Minute), trades[2].Timestamp)
	assert.True(t, trades[2].Success)
	assert.Equal(t, types.ActionBuy, trades[2].Action)

	require.NoError(t, s.Prune(ctx, base, 2))
	trades, err = s.LoadTrades(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, trades, 2)
}

func TestHistoryStore_SnapshotsSince(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	for i, v := range []float64{1000, 950, 900} {
		require.NoError(t, s.SaveSnapshot(ctx, risk.PortfolioSnapshot{Timestamp: base.Add(time.Duration(i) * time.Hour), ValueUSD: v}))
	}
	snaps, err := s.LoadSnapshots(ctx, base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, 950.0, snaps[0].ValueUSD)
	assert.Equal(t, base.Add(2*time.Hour), snaps[1].Timestamp)
}

func TestHistoryStore_Events(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveEvent(ctx, risk.BreakerEvent{Kind: risk.EventTrip, Reason: risk.TriggerDrawdown, Detail: "dd", At: at, ResetAt: at.Add(2 * time.Hour)}))
	require.NoError(t, s.SaveEvent(ctx, risk.BreakerEvent{Kind: risk.EventReset, Reason: risk.TriggerDrawdown, At: at.Add(2 * time.Hour), Auto: true}))

	events, err := s.Events(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, risk.EventReset, events[0].Kind)
	assert.True(t, events[0].Auto)
	assert.True(t, events[0].ResetAt.IsZero())
	assert.Equal(t, at.Add(2*time.Hour), events[1].ResetAt)
}

func TestHistoryStore_ManagerRestore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "risk.db")
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	s, err := Open(path)
	require.NoError(t, err)
	m := risk.NewManager(risk.DefaultConfig(), risk.WithHistoryStore(s), risk.WithBreakerOptions(risk.WithClock(clock)))
	ctx := context.Background()
	m.RecordSnapshot(ctx, risk.PortfolioSnapshot{Timestamp: now.Add(-time.Hour), ValueUSD: 1000})
	m.RecordSnapshot(ctx, risk.PortfolioSnapshot{Timestamp: now, ValueUSD: 840})
	require.NoError(t, s.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()
	m2 := risk.NewManager(risk.DefaultConfig(), risk.WithHistoryStore(s2), risk.WithBreakerOptions(risk.WithClock(clock)))
	require.NoError(t, m2.Restore(ctx))
	st := m2.Check(now)
	assert.True(t, st.Triggered)
	assert.Equal(t, risk.TriggerDrawdown, st.Reason)

	events, err := s2.Events(ctx, 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, risk.EventTrip, events[0].Kind)
}

func TestHistoryStore_ManualTripSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "risk.db")
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	m := risk.NewManager(risk.DefaultConfig(), risk.WithHistoryStore(s), risk.WithBreakerOptions(risk.WithClock(clock)))
	tripped := m.Trip("operator halt")
	require.True(t, tripped.Triggered)
	require.NoError(t, s.Close())

	reopen := func() *risk.Manager {
		st, err := Open(path)
		require.NoError(t, err)
		t.Cleanup(func() { _ = st.Close() })
		mgr := risk.NewManager(risk.DefaultConfig(), risk.WithHistoryStore(st), risk.WithBreakerOptions(risk.WithClock(clock)))
		require.NoError(t, mgr.Restore(ctx))
		return mgr
	}

	now = now.Add(time.Minute)
	st := reopen().Check(now)
	assert.True(t, st.Triggered)
	assert.Equal(t, risk.TriggerManual, st.Reason)
	assert.Equal(t, "operator halt", st.Detail)
	assert.Equal(t, tripped.ResetAt, st.ResetAt)

	now = tripped.ResetAt.Add(time.Minute)
	assert.False(t, reopen().Check(now).Triggered, "expired trips are not restored")
}
