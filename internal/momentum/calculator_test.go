package momentum

import (
	"math"
	"testing"
	"time"

	"sentrix/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

func hourlyBars(closes []float64, volume float64) []types.PriceBar {
	out := make([]types.PriceBar, len(closes))
	for i, c := range closes {
		out[i] = types.PriceBar{
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Open:      c,
			High:      c * 1.01,
			Low:       c * 0.99,
			Close:     c,
			Volume:    volume,
		}
	}
	return out
}

func series(n int, f func(i int) float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = f(i)
	}
	return out
}

func TestRSI_InsufficientHistory(t *testing.T) {
	assert.Equal(t, 50.0, RSI([]float64{1, 2, 3}, 14))
	assert.Equal(t, 50.0, RSI(series(14, func(i int) float64 { return float64(i) }), 14))
}

func TestRSI_NoLosses(t *testing.T) {
	up := series(30, func(i int) float64 { return 100 + float64(i) })
	assert.Equal(t, 100.0, RSI(up, 14))
}

func TestRSI_Bounded(t *testing.T) {
	inputs := [][]float64{
		series(40, func(i int) float64 { return 100 - float64(i) }),
		series(40, func(i int) float64 { return 100 + 10*math.Sin(float64(i)) }),
		series(60, func(i int) float64 { return 50 + float64(i%7) - float64(i%3) }),
	}
	for _, in := range inputs {
		v := RSI(in, 14)
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 100.0)
	}
	down := RSI(inputs[0], 14)
	assert.Less(t, down, 30.0)
}

func TestMACD(t *testing.T) {
	short := series(30, func(i int) float64 { return float64(i) })
	assert.Equal(t, MACDResult{}, MACD(short, 12, 26, 9))

	up := series(60, func(i int) float64 { return 100 * math.Pow(1.01, float64(i)) })
	res := MACD(up, 12, 26, 9)
	require.True(t, res.Valid)
	assert.Greater(t, res.Line, 0.0)
	assert.InDelta(t, res.Line-res.Signal, res.Histogram, 1e-9)
}

func TestCalculate_InsufficientBars(t *testing.T) {
	c := NewCalculator(DefaultConfig())
	_, err := c.Calculate(hourlyBars([]float64{1}, 1))
	assert.ErrorIs(t, err, ErrInsufficientBars)
}

func TestCalculate_StrongUptrend(t *testing.T) {
	c := NewCalculator(DefaultConfig())
	bars := hourlyBars(series(72, func(i int) float64 { return 100 * math.Pow(1.005, float64(i)) }), 10)
	sig, err := c.Calculate(bars)
	require.NoError(t, err)
	assert.Equal(t, types.TrendStrongUp, sig.Trend)
	assert.Equal(t, 100.0, sig.RSI)
	assert.Greater(t, sig.MACDSignal, 0.0)
	assert.InDelta(t, (math.Pow(1.005, 24)-1)*100, sig.PriceChange24h, 1e-6)
	assert.InDelta(t, 1.0, sig.Confidence, 1e-9)
}

func TestCalculate_Downtrend(t *testing.T) {
	c := NewCalculator(DefaultConfig())
	bars := hourlyBars(series(72, func(i int) float64 {
		return 100*math.Pow(0.995, float64(i)) + 0.3*math.Sin(float64(i))
	}), 10)
	sig, err := c.Calculate(bars)
	require.NoError(t, err)
	assert.Contains(t, []types.Trend{types.TrendDown, types.TrendStrongDown}, sig.Trend)
	assert.Less(t, sig.PriceChange24h, 0.0)
}

func TestCalculate_ConfidenceWithoutVolume(t *testing.T) {
	c := NewCalculator(DefaultConfig())
	sig, err := c.Calculate(hourlyBars([]float64{10, 11}, 0))
	require.NoError(t, err)
	assert.InDelta(t, 0.3+0.4*2.0/28.0, sig.Confidence, 1e-9)
	assert.Equal(t, 50.0, sig.RSI)
	assert.Equal(t, 0.0, sig.MACDSignal)
}

func TestChanges24h(t *testing.T) {
	closes := series(49, func(i int) float64 { return 100 + float64(i) })
	bars := hourlyBars(closes, 0)
	for i := range bars {
		if i > 24 {
			bars[i].Volume = 30
		} else {
			bars[i].Volume = 10
		}
	}
	price, vol := Changes24h(bars)
	// last close 148 vs close 24h earlier (index 24 -> 124)
	assert.InDelta(t, (148.0-124.0)/124.0*100, price, 1e-9)
	assert.InDelta(t, (24*30.0-24*10.0)/(24*10.0)*100, vol, 1e-9)
}

func TestChanges24h_ZeroGuards(t *testing.T) {
	bars := hourlyBars([]float64{0, 5}, 0)
	price, vol := Changes24h(bars)
	assert.Equal(t, 0.0, price)
	assert.Equal(t, 0.0, vol)
}

func TestTrendScoreOrdering(t *testing.T) {
	hot := TrendScore(75, 1, 100, 5, 70, 30)
	warm := TrendScore(62, 1, 100, 2, 70, 30)
	flat := TrendScore(50, 0, 100, 0, 70, 30)
	cold := TrendScore(25, -1, 100, -5, 70, 30)
	assert.Greater(t, hot, warm)
	assert.Greater(t, warm, flat)
	assert.Greater(t, flat, cold)
	assert.LessOrEqual(t, TrendScore(50, 0, 100, 1000, 70, 30), 40.0)
}
