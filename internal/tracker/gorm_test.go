package tracker

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"sentrix/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTracker(t *testing.T) *GormTracker {
	t.Helper()
	tr, err := NewGormTracker(filepath.Join(t.TempDir(), "tracker.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })
	return tr
}

func samplePrediction(symbol string, action types.Action, at time.Time) Prediction {
	return Prediction{
		Symbol:   symbol,
		Strategy: "sentiment_momentum",
		Signal: types.AggregatedSignal{
			Symbol:            symbol,
			OverallScore:      60,
			OverallConfidence: 0.85,
			Recommendation:    types.RecStrongBuy,
		},
		Intent: types.TradeIntent{
			Action:               action,
			Symbol:               symbol,
			SuggestedSizePercent: 14.22,
		},
		PriceAtExecution: 2500,
		TxHash:           "0xabc",
		CreatedAt:        at,
	}
}

func TestGormTracker_RecordAndGet(t *testing.T) {
	tr := openTracker(t)
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	id, err := tr.Record(ctx, samplePrediction("eth", types.ActionBuy, at))
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	got, err := tr.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "ETH", got.Symbol)
	assert.Equal(t, 60.0, got.Signal.OverallScore)
	assert.Equal(t, types.RecStrongBuy, got.Signal.Recommendation)
	assert.Equal(t, 14.22, got.Intent.SuggestedSizePercent)
	assert.Equal(t, at, got.CreatedAt)
	assert.False(t, got.Resolved)

	_, err = tr.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrPredictionNotFound)
}

func TestGormTracker_RecentAndResolve(t *testing.T) {
	tr := openTracker(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	_, err := tr.Record(ctx, samplePrediction("ETH", types.ActionBuy, base))
	require.NoError(t, err)
	sellID, err := tr.Record(ctx, samplePrediction("ETH", types.ActionSell, base.Add(time.Hour)))
	require.NoError(t, err)
	_, err = tr.Record(ctx, samplePrediction("BTC", types.ActionBuy, base.Add(2*time.Hour)))
	require.NoError(t, err)

	recent, err := tr.Recent(ctx, "eth", 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, sellID, recent[0].ID)

	all, err := tr.Recent(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	resolved, err := tr.Resolve(ctx, sellID, 2250, base.Add(5*time.Hour))
	require.NoError(t, err)
	assert.InDelta(t, 10, resolved.ReturnPercent, 1e-9)
	again, err := tr.Get(ctx, sellID)
	require.NoError(t, err)
	assert.True(t, again.Resolved)
	assert.Equal(t, 2250.0, again.OutcomePrice)
}

func TestReturnPercent(t *testing.T) {
	assert.InDelta(t, 10, ReturnPercent(types.ActionBuy, 100, 110), 1e-9)
	assert.InDelta(t, -10, ReturnPercent(types.ActionSell, 100, 110), 1e-9)
	assert.Zero(t, ReturnPercent(types.ActionBuy, 0, 110))
}
