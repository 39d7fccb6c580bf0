package strategy

import (
	"fmt"
	"math"
	"strings"

	"sentrix/internal/types"
)

const balanceUsage = 0.9

// pair 是一次兑换的源/目标资产。
type pair struct {
	fromSymbol string
	fromToken  string
	toSymbol   string
	toToken    string
}

// selectPair: buy 为 stable→风险资产，sell 为风险资产→stable；地址优先取自持仓。
func selectPair(action types.Action, symbol string, cfg Config, pf types.Portfolio) pair {
	risk := strings.ToUpper(strings.TrimSpace(symbol))
	if risk == "" {
		risk = strings.ToUpper(strings.TrimSpace(cfg.RiskToken))
	}
	stable := strings.ToUpper(strings.TrimSpace(cfg.StableToken))
	resolve := func(sym string) string {
		if h, ok := pf.Find(sym); ok && strings.TrimSpace(h.Token) != "" {
			return h.Token
		}
		return sym
	}
	if action == types.ActionSell {
		return pair{fromSymbol: risk, fromToken: resolve(risk), toSymbol: stable, toToken: resolve(stable)}
	}
	return pair{fromSymbol: stable, fromToken: resolve(stable), toSymbol: risk, toToken: resolve(risk)}
}

// actionFor maps score to an action using the strategy thresholds.
func actionFor(score float64, cfg Config) types.Action {
	switch {
	case score >= cfg.BullishThreshold:
		return types.ActionBuy
	case score <= cfg.BearishThreshold:
		return types.ActionSell
	default:
		return types.ActionHold
	}
}

// baseSize 在 [MinPositionPercent, MaxPositionPercent] 间按置信度超出门槛的比例线性插值。
func baseSize(confidence float64, cfg Config) float64 {
	span := 1 - cfg.MinConfidence
	ratio := 1.0
	if span > 0 {
		ratio = (confidence - cfg.MinConfidence) / span
	}
	ratio = math.Max(0, math.Min(1, ratio))
	return cfg.MinPositionPercent + (cfg.MaxPositionPercent-cfg.MinPositionPercent)*ratio
}

// capSize limits size by 90% of the source balance and by the max position.
func capSize(size float64, available, total float64, cfg Config) float64 {
	if total <= 0 {
		return 0
	}
	availPct := available * balanceUsage / total * 100
	size = math.Min(size, availPct)
	size = math.Min(size, cfg.MaxPositionPercent)
	return math.Max(0, size)
}

// UrgencyFor grades how quickly a trade should be filled.
func UrgencyFor(score, confidence float64) types.Urgency {
	abs := math.Abs(score)
	switch {
	case abs >= 70 && confidence >= 0.8:
		return types.UrgencyHigh
	case abs >= 50 && confidence >= 0.6:
		return types.UrgencyMedium
	default:
		return types.UrgencyLow
	}
}

func roundPct(v float64) float64 {
	return math.Round(v*100) / 100
}

func describeSignals(sig types.AggregatedSignal) []string {
	out := []string{
		fmt.Sprintf("sentiment %.1f (%s, conf %.2f, n=%d)", sig.Sentiment.Score, sig.Sentiment.Label, sig.Sentiment.Confidence, sig.Sentiment.SampleSize),
	}
	if sig.Momentum != nil {
		m := sig.Momentum
		out = append(out, fmt.Sprintf("momentum %s rsi=%.1f macd_hist=%.4f 24h=%.2f%%", m.Trend, m.RSI, m.MACDSignal, m.PriceChange24h))
	}
	out = append(out, fmt.Sprintf("overall %.1f conf %.2f -> %s", sig.OverallScore, sig.OverallConfidence, sig.Recommendation))
	return out
}

// buildIntent runs the shared gate → action → pair → size → urgency chain.
// sizeFactor scales the base size before caps are applied.
func buildIntent(sctx Context, cfg Config, sizeFactor float64, tag string) Outcome {
	sig := sctx.Signal
	if sig.OverallConfidence < cfg.MinConfidence {
		return NoTrade("confidence %.2f below minimum %.2f", sig.OverallConfidence, cfg.MinConfidence)
	}
	action := actionFor(sig.OverallScore, cfg)
	if action == types.ActionHold {
		return NoTrade("score %.1f inside hold band [%.1f, %.1f]", sig.OverallScore, cfg.BearishThreshold, cfg.BullishThreshold)
	}
	total := sctx.Portfolio.TotalValueUSD()
	if total <= 0 {
		return NoTrade("portfolio value is zero")
	}
	p := selectPair(action, sig.Symbol, cfg, sctx.Portfolio)
	size := baseSize(sig.OverallConfidence, cfg) * sizeFactor
	size = roundPct(capSize(size, sctx.Portfolio.ValueOf(p.fromSymbol), total, cfg))
	if size < 1 {
		return NoTrade("position size %.2f%% below 1%% (available %s=%.2f USD)", size, p.fromSymbol, sctx.Portfolio.ValueOf(p.fromSymbol))
	}
	urgency := UrgencyFor(sig.OverallScore, sig.OverallConfidence)
	intent := types.TradeIntent{
		Action:               action,
		Symbol:               p.toSymbol,
		FromToken:            p.fromToken,
		ToToken:              p.toToken,
		ChainID:              cfg.ChainID,
		SuggestedSizePercent: size,
		Confidence:           sig.OverallConfidence,
		Reason: fmt.Sprintf("[%s] %s %s: score %.1f conf %.2f size %.2f%%",
			tag, action, strings.ToUpper(sig.Symbol), sig.OverallScore, sig.OverallConfidence, size),
		Signals:     describeSignals(sig),
		Urgency:     urgency,
		MaxSlippage: types.SlippageFor(urgency),
	}
	if action == types.ActionSell {
		intent.Symbol = p.fromSymbol
	}
	return Trade(intent)
}
