package risk

import (
	"testing"

	"sentrix/internal/types"

	"github.com/stretchr/testify/assert"
)

func samplePortfolio() types.Portfolio {
	return types.Portfolio{Holdings: []types.Holding{
		{Token: "0xusdc", Symbol: "USDC", ValueUSD: 500},
		{Token: "0xeth", Symbol: "ETH", ValueUSD: 250},
	}}
}

func TestSizePosition_ConfidenceScaling(t *testing.T) {
	cfg := DefaultConfig()
	res := SizePosition(SizeRequest{RequestedPercent: 20, Confidence: 1, Portfolio: samplePortfolio(), FromToken: "USDC"}, cfg)
	assert.InDelta(t, 20, res.Percent, 1e-9)
	assert.InDelta(t, 150, res.USD, 1e-9)
	assert.Empty(t, res.Adjustments)

	res = SizePosition(SizeRequest{RequestedPercent: 20, Confidence: 0.6, Portfolio: samplePortfolio(), FromToken: "USDC"}, cfg)
	assert.InDelta(t, 10, res.Percent, 1e-9)
	assert.Len(t, res.Adjustments, 1)

	res = SizePosition(SizeRequest{RequestedPercent: 20, Confidence: 0.5, Portfolio: samplePortfolio(), FromToken: "USDC"}, cfg)
	assert.Zero(t, res.Percent)
	assert.Zero(t, res.USD)

	cfg.ConfidenceScaling = false
	res = SizePosition(SizeRequest{RequestedPercent: 20, Confidence: 0.1, Portfolio: samplePortfolio(), FromToken: "USDC"}, cfg)
	assert.InDelta(t, 20, res.Percent, 1e-9)
}

func TestSizePosition_Caps(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ConfidenceScaling = false

	res := SizePosition(SizeRequest{RequestedPercent: 40, Portfolio: samplePortfolio(), FromToken: "USDC"}, cfg)
	assert.InDelta(t, 25, res.Percent, 1e-9, "percent cap")

	big := types.Portfolio{Holdings: []types.Holding{{Symbol: "USDC", ValueUSD: 10000}}}
	res = SizePosition(SizeRequest{RequestedPercent: 25, Portfolio: big, FromToken: "USDC"}, cfg)
	assert.InDelta(t, 1000, res.USD, 1e-9, "usd cap")
	assert.InDelta(t, 10, res.Percent, 1e-9)

	res = SizePosition(SizeRequest{RequestedPercent: 25, Portfolio: samplePortfolio(), FromToken: "ETH"}, cfg)
	// 25% of 750 = 187.5 < 95% of 250 = 237.5
	assert.InDelta(t, 25, res.Percent, 1e-9)

	small := types.Portfolio{Holdings: []types.Holding{
		{Symbol: "USDC", ValueUSD: 100},
		{Symbol: "ETH", ValueUSD: 900},
	}}
	res = SizePosition(SizeRequest{RequestedPercent: 25, Portfolio: small, FromToken: "USDC"}, cfg)
	assert.InDelta(t, 95, res.USD, 1e-9, "balance cap with buffer")
	assert.InDelta(t, 9.5, res.Percent, 1e-9)

	res = SizePosition(SizeRequest{RequestedPercent: 25, Portfolio: samplePortfolio(), FromToken: "WBTC"}, cfg)
	assert.Zero(t, res.Percent)
	assert.Contains(t, res.Adjustments[len(res.Adjustments)-1], "not held")
}

func TestSizePosition_NeverExceedsLimits(t *testing.T) {
	cfg := DefaultConfig()
	portfolios := []types.Portfolio{
		samplePortfolio(),
		{Holdings: []types.Holding{{Symbol: "USDC", ValueUSD: 20000}, {Symbol: "ETH", ValueUSD: 100}}},
		{Holdings: []types.Holding{{Symbol: "USDC", ValueUSD: 3}, {Symbol: "ETH", ValueUSD: 5000}}},
	}
	for _, pf := range portfolios {
		total := pf.TotalValueUSD()
		for _, req := range []float64{0, 1, 10, 30, 80, 150} {
			for _, conf := range []float64{0, 0.6, 0.75, 1} {
				res := SizePosition(SizeRequest{RequestedPercent: req, Confidence: conf, Portfolio: pf, FromToken: "USDC"}, cfg)
				limit := cfg.MaxPositionPercent
				limit = minf(limit, cfg.MaxPositionSizeUSD/total*100)
				limit = minf(limit, pf.ValueOf("USDC")/total*100*0.95)
				assert.LessOrEqual(t, res.Percent, limit+1e-4)
				assert.GreaterOrEqual(t, res.Percent, 0.0)
			}
		}
	}
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func TestSizePosition_EmptyPortfolio(t *testing.T) {
	res := SizePosition(SizeRequest{RequestedPercent: 10, Confidence: 1}, DefaultConfig())
	assert.Zero(t, res.Percent)
	assert.Equal(t, []string{"portfolio value is zero"}, res.Adjustments)
}

func TestCheckConcentration(t *testing.T) {
	exceeds, post := CheckConcentration(samplePortfolio(), "ETH", 150, 60)
	assert.False(t, exceeds)
	assert.InDelta(t, 53.3333, post, 1e-3)

	exceeds, post = CheckConcentration(samplePortfolio(), "0xeth", 300, 60)
	assert.True(t, exceeds)
	assert.InDelta(t, 73.3333, post, 1e-3)

	exceeds, _ = CheckConcentration(types.Portfolio{}, "ETH", 100, 60)
	assert.False(t, exceeds)
}

func TestKellyFraction(t *testing.T) {
	// p=0.6, b=1.5: (0.9-0.4)/1.5 = 0.3333, quarter = 0.0833
	assert.InDelta(t, 0.08333, KellyFraction(0.6, 1.5, 1, 0.25), 1e-4)
	assert.Zero(t, KellyFraction(0.3, 1, 1, 0.25), "negative edge clamps to zero")
	assert.Zero(t, KellyFraction(0.6, 1, 0, 0.25))
	assert.LessOrEqual(t, KellyFraction(1, 10, 1, 1), 1.0)
}

func TestConfidenceMultiplier(t *testing.T) {
	assert.Zero(t, ConfidenceMultiplier(0.59, 0.6))
	assert.InDelta(t, 0.5, ConfidenceMultiplier(0.6, 0.6), 1e-9)
	assert.InDelta(t, 0.75, ConfidenceMultiplier(0.8, 0.6), 1e-9)
	assert.InDelta(t, 1.0, ConfidenceMultiplier(1, 0.6), 1e-9)
	assert.Equal(t, 1.0, ConfidenceMultiplier(1, 1))
}
