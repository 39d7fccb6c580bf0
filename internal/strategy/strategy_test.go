package strategy

import (
	"testing"
	"time"

	"sentrix/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPortfolio() types.Portfolio {
	return types.Portfolio{Holdings: []types.Holding{
		{ChainID: 8453, Token: "0xusdc", Symbol: "USDC", Balance: 500, ValueUSD: 500},
		{ChainID: 8453, Token: "0xeth", Symbol: "ETH", Balance: 0.1, ValueUSD: 250},
	}}
}

func signalOf(score, conf float64) types.AggregatedSignal {
	return types.AggregatedSignal{Symbol: "ETH", OverallScore: score, OverallConfidence: conf}
}

func evalDefault(sig types.AggregatedSignal, pf types.Portfolio) Outcome {
	s := NewSentimentMomentum()
	return s.Evaluate(Context{Signal: sig, Portfolio: pf, Config: s.DefaultConfig(), Now: time.Now()})
}

func TestSentimentMomentum_BuyScenario(t *testing.T) {
	out := evalDefault(signalOf(60, 0.85), testPortfolio())
	require.True(t, out.IsTrade(), out.Reason)
	intent := out.Intent
	assert.Equal(t, types.ActionBuy, intent.Action)
	assert.Equal(t, "0xusdc", intent.FromToken)
	assert.Equal(t, "0xeth", intent.ToToken)
	assert.Equal(t, "ETH", intent.Symbol)
	assert.LessOrEqual(t, intent.SuggestedSizePercent, 25.0)
	assert.LessOrEqual(t, intent.SuggestedSizePercent, 500*0.9/750*100)
	assert.InDelta(t, 17.5, intent.SuggestedSizePercent, 1e-9)
	assert.Equal(t, types.UrgencyMedium, intent.Urgency)
	assert.Equal(t, 0.03, intent.MaxSlippage)
	assert.NotEmpty(t, intent.Signals)
}

func TestSentimentMomentum_SellUsesRiskBalance(t *testing.T) {
	out := evalDefault(signalOf(-80, 1.0), testPortfolio())
	require.True(t, out.IsTrade(), out.Reason)
	intent := out.Intent
	assert.Equal(t, types.ActionSell, intent.Action)
	assert.Equal(t, "0xeth", intent.FromToken)
	assert.Equal(t, "0xusdc", intent.ToToken)
	// 90% of 250/750 = 30% > 25% cap
	assert.Equal(t, 25.0, intent.SuggestedSizePercent)
	assert.Equal(t, types.UrgencyHigh, intent.Urgency)
	assert.Equal(t, 0.05, intent.MaxSlippage)
}

func TestSentimentMomentum_NoTradeCases(t *testing.T) {
	cases := []struct {
		name string
		sig  types.AggregatedSignal
		pf   types.Portfolio
	}{
		{"low confidence", signalOf(80, 0.5), testPortfolio()},
		{"hold band", signalOf(10, 0.9), testPortfolio()},
		{"empty portfolio", signalOf(80, 0.9), types.Portfolio{}},
		{"nothing to sell", signalOf(-80, 0.9), types.Portfolio{Holdings: []types.Holding{{Symbol: "USDC", ValueUSD: 1000}}}},
		{"dust balance", signalOf(80, 0.9), types.Portfolio{Holdings: []types.Holding{
			{Symbol: "USDC", ValueUSD: 5},
			{Symbol: "ETH", ValueUSD: 995},
		}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := evalDefault(tc.sig, tc.pf)
			assert.False(t, out.IsTrade())
			assert.Equal(t, OutcomeNoTrade, out.Kind)
			assert.NotEmpty(t, out.Reason)
		})
	}
}

func TestSentimentMomentum_SymbolFallbackToConfig(t *testing.T) {
	sig := signalOf(60, 0.85)
	sig.Symbol = ""
	out := evalDefault(sig, testPortfolio())
	require.True(t, out.IsTrade())
	assert.Equal(t, "0xeth", out.Intent.ToToken)
}

func TestUrgencyFor(t *testing.T) {
	assert.Equal(t, types.UrgencyHigh, UrgencyFor(70, 0.8))
	assert.Equal(t, types.UrgencyHigh, UrgencyFor(-75, 0.9))
	assert.Equal(t, types.UrgencyMedium, UrgencyFor(70, 0.7))
	assert.Equal(t, types.UrgencyMedium, UrgencyFor(50, 0.6))
	assert.Equal(t, types.UrgencyLow, UrgencyFor(49, 0.99))
}

func TestConservative(t *testing.T) {
	c := NewConservative()
	pf := testPortfolio()
	sig := signalOf(60, 0.85)
	sig.Recommendation = types.RecBuy
	out := c.Evaluate(Context{Signal: sig, Portfolio: pf, Config: c.DefaultConfig()})
	assert.False(t, out.IsTrade())

	sig.Recommendation = types.RecStrongBuy
	out = c.Evaluate(Context{Signal: sig, Portfolio: pf, Config: c.DefaultConfig()})
	assert.False(t, out.IsTrade(), "no momentum confirmation")

	sig.Momentum = &types.MomentumSignal{Trend: types.TrendUp}
	out = c.Evaluate(Context{Signal: sig, Portfolio: pf, Config: c.DefaultConfig()})
	require.True(t, out.IsTrade(), out.Reason)
	// base: 5 + 10*(0.15/0.3) = 10, halved
	assert.InDelta(t, 5.0, out.Intent.SuggestedSizePercent, 1e-9)
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, BaseConfig().Validate())

	bad := BaseConfig()
	bad.MinConfidence = 1.5
	assert.Error(t, bad.Validate())

	bad = BaseConfig()
	bad.BearishThreshold = 10
	assert.Error(t, bad.Validate())

	bad = BaseConfig()
	bad.StableToken = ""
	assert.Error(t, bad.Validate())

	bad = BaseConfig()
	bad.MinPositionPercent = 30
	assert.Error(t, bad.Validate())
}

func TestConfigWithParams(t *testing.T) {
	cfg, err := BaseConfig().WithParams(map[string]any{
		"min_confidence":       "0.7",
		"max_position_percent": 10,
		"stable_token":         "USDT",
	})
	require.NoError(t, err)
	assert.Equal(t, 0.7, cfg.MinConfidence)
	assert.Equal(t, 10.0, cfg.MaxPositionPercent)
	assert.Equal(t, "USDT", cfg.StableToken)
	assert.Equal(t, 30.0, cfg.BullishThreshold)

	text, err := cfg.YAML()
	require.NoError(t, err)
	assert.Contains(t, text, "stable_token: USDT")
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	calls := 0
	require.NoError(t, r.Register("Custom", func() Strategy {
		calls++
		return NewSentimentMomentum()
	}))
	assert.Error(t, r.Register(" ", func() Strategy { return nil }))
	assert.Error(t, r.Register("x", nil))
	assert.Equal(t, 0, calls, "factories run lazily")

	s1, err := r.Get("custom")
	require.NoError(t, err)
	s2, err := r.Get("CUSTOM")
	require.NoError(t, err)
	assert.Same(t, s1, s2)
	assert.Equal(t, 1, calls)

	_, err = r.Get("missing")
	assert.ErrorIs(t, err, ErrStrategyNotFound)

	assert.True(t, r.Has("custom"))
	assert.True(t, r.Remove("custom"))
	assert.False(t, r.Remove("custom"))
	assert.False(t, r.Has("custom"))
}

func TestDefaultRegistryList(t *testing.T) {
	r := NewDefaultRegistry()
	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, ConservativeName, list[0].Name)
	assert.Equal(t, SentimentMomentumName, list[1].Name)
	assert.NotEmpty(t, list[1].Version)
}
