// Package signal 融合情绪与动量信号，输出整体分数、置信度与建议。
package signal

import (
	"fmt"
	"math"
	"time"

	"sentrix/internal/types"
)

const (
	agreementBoost      = 1.15
	disagreementPenalty = 0.7
	disagreementLevel   = 30.0
	conflictLevel       = 40.0
	sentimentOnlyFactor = 0.85
	overboughtRSI       = 80.0
	oversoldRSI         = 20.0
)

// Config 描述融合权重与建议阈值。
type Config struct {
	SentimentWeight  float64 `toml:"sentiment_weight"`
	MomentumWeight   float64 `toml:"momentum_weight"`
	MinConfidence    float64 `toml:"min_confidence"`
	BullishThreshold float64 `toml:"bullish_threshold"`
	BearishThreshold float64 `toml:"bearish_threshold"`
	StrongMultiplier float64 `toml:"strong_multiplier"`
}

func DefaultConfig() Config {
	return Config{
		SentimentWeight:  0.6,
		MomentumWeight:   0.4,
		MinConfidence:    0.5,
		BullishThreshold: 25,
		BearishThreshold: -25,
		StrongMultiplier: 2,
	}
}

type Aggregator struct {
	cfg Config
	now func() time.Time
}

func NewAggregator(cfg Config) *Aggregator {
	def := DefaultConfig()
	if cfg.SentimentWeight < 0 || cfg.MomentumWeight < 0 || cfg.SentimentWeight+cfg.MomentumWeight <= 0 {
		cfg.SentimentWeight, cfg.MomentumWeight = def.SentimentWeight, def.MomentumWeight
	}
	if cfg.BullishThreshold <= 0 {
		cfg.BullishThreshold = def.BullishThreshold
	}
	if cfg.BearishThreshold >= 0 {
		cfg.BearishThreshold = def.BearishThreshold
	}
	if cfg.StrongMultiplier < 1 {
		cfg.StrongMultiplier = def.StrongMultiplier
	}
	return &Aggregator{cfg: cfg, now: time.Now}
}

// Config returns the effective configuration.
func (a *Aggregator) Config() Config { return a.cfg }

// Aggregate fuses sentiment with optional momentum. A momentum signal with
// zero confidence is treated as absent.
func (a *Aggregator) Aggregate(symbol string, s types.SentimentSignal, m *types.MomentumSignal) types.AggregatedSignal {
	out := types.AggregatedSignal{
		Symbol:    symbol,
		Sentiment: s,
		Momentum:  m,
		Timestamp: a.now(),
	}
	if m == nil || m.Confidence <= 0 {
		out.OverallScore = clamp(s.Score, -100, 100)
		out.OverallConfidence = clamp(s.Confidence*sentimentOnlyFactor, 0, 1)
		out.Recommendation = a.recommend(&out, s.Score, 0, nil)
		return out
	}

	mScore := MomentumToScore(*m)
	out.MomentumScore = mScore
	total := a.cfg.SentimentWeight + a.cfg.MomentumWeight
	out.OverallScore = clamp((s.Score*a.cfg.SentimentWeight+mScore*a.cfg.MomentumWeight)/total, -100, 100)

	conf := math.Sqrt(clamp(s.Confidence, 0, 1) * clamp(m.Confidence, 0, 1))
	switch {
	case s.Score*mScore > 0 && !strongDisagreement(s.Score, mScore, disagreementLevel):
		conf *= agreementBoost
		out.Notes = append(out.Notes, "sentiment and momentum agree")
	case strongDisagreement(s.Score, mScore, disagreementLevel):
		conf *= disagreementPenalty
		out.Notes = append(out.Notes, fmt.Sprintf("sentiment %.1f disagrees with momentum %.1f", s.Score, mScore))
	}
	out.OverallConfidence = clamp(conf, 0, 1)
	out.Recommendation = a.recommend(&out, s.Score, mScore, m)
	return out
}

func (a *Aggregator) recommend(out *types.AggregatedSignal, sScore, mScore float64, m *types.MomentumSignal) types.Recommendation {
	if out.OverallConfidence < a.cfg.MinConfidence {
		out.Notes = append(out.Notes, fmt.Sprintf("confidence %.2f below %.2f", out.OverallConfidence, a.cfg.MinConfidence))
		return types.RecHold
	}
	if m != nil {
		if strongDisagreement(sScore, mScore, conflictLevel) {
			out.Conflict = true
			out.Notes = append(out.Notes, "conflict veto")
			return types.RecHold
		}
		if m.RSI > overboughtRSI && out.OverallScore > 0 {
			out.Notes = append(out.Notes, fmt.Sprintf("overbought caution rsi=%.1f", m.RSI))
			return types.RecHold
		}
		if m.RSI < oversoldRSI && out.OverallScore < 0 {
			out.Notes = append(out.Notes, fmt.Sprintf("oversold caution rsi=%.1f", m.RSI))
			return types.RecHold
		}
	}
	return a.MapScore(out.OverallScore)
}

// MapScore maps a score to a recommendation using the configured thresholds.
func (a *Aggregator) MapScore(score float64) types.Recommendation {
	bull := a.cfg.BullishThreshold
	bear := a.cfg.BearishThreshold
	strong := a.cfg.StrongMultiplier
	switch {
	case score >= bull*strong:
		return types.RecStrongBuy
	case score >= bull:
		return types.RecBuy
	case score <= bear*strong:
		return types.RecStrongSell
	case score <= bear:
		return types.RecSell
	default:
		return types.RecHold
	}
}

// MomentumToScore converts indicators into a [-100, 100] score comparable
// with sentiment: RSI distance from 50, MACD histogram sign, 24h change.
func MomentumToScore(m types.MomentumSignal) float64 {
	score := clamp((m.RSI-50)*0.8, -40, 40)
	switch {
	case m.MACDSignal > 0:
		score += 20
	case m.MACDSignal < 0:
		score -= 20
	}
	score += clamp(m.PriceChange24h*2, -40, 40)
	return clamp(score, -100, 100)
}

func strongDisagreement(a, b, level float64) bool {
	return math.Abs(a) > level && math.Abs(b) > level && a*b < 0
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
