package strategy

import "sentrix/internal/types"

const (
	ConservativeName    = "conservative"
	conservativeVersion = "1.0.0"
)

// Conservative only acts on strong recommendations confirmed by the price
// trend, at half the default size.
type Conservative struct{}

func NewConservative() *Conservative { return &Conservative{} }

func (c *Conservative) Name() string    { return ConservativeName }
func (c *Conservative) Version() string { return conservativeVersion }
func (c *Conservative) Description() string {
	return "Half-size trades on strong recommendations that the momentum trend confirms"
}

func (c *Conservative) DefaultConfig() Config {
	cfg := BaseConfig()
	cfg.MinConfidence = 0.7
	cfg.MaxPositionPercent = 15
	return cfg
}

func (c *Conservative) ValidateConfig(cfg Config) error { return cfg.Validate() }

func (c *Conservative) Evaluate(ctx Context) Outcome {
	sig := ctx.Signal
	switch sig.Recommendation {
	case types.RecStrongBuy:
		if !trendConfirms(sig.Momentum, true) {
			return NoTrade("strong_buy without confirming uptrend")
		}
	case types.RecStrongSell:
		if !trendConfirms(sig.Momentum, false) {
			return NoTrade("strong_sell without confirming downtrend")
		}
	default:
		return NoTrade("recommendation %s is not strong", sig.Recommendation)
	}
	return buildIntent(ctx, ctx.Config, 0.5, ConservativeName)
}

func trendConfirms(m *types.MomentumSignal, up bool) bool {
	if m == nil {
		return false
	}
	if up {
		return m.Trend == types.TrendUp || m.Trend == types.TrendStrongUp
	}
	return m.Trend == types.TrendDown || m.Trend == types.TrendStrongDown
}
