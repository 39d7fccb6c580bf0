// Package sentiment 把多来源的原始文本转成归一化情绪分与置信度。
package sentiment

import (
	"math"
	"sort"
	"time"

	"sentrix/internal/types"
)

const (
	defaultRecencyDecayHours = 24.0
	defaultMinDataPoints     = 3
	defaultNormalization     = 3.0
)

// Config 控制 SentimentAnalyzer 行为。
type Config struct {
	RecencyDecayHours  float64            `toml:"recency_decay_hours"`
	NegationEnabled    bool               `toml:"negation_enabled"`
	MinDataPoints      int                `toml:"min_data_points"`
	NormalizationScale float64            `toml:"normalization_scale"`
	Keywords           map[string]float64 `toml:"keywords"`
	SourceWeights      map[string]float64 `toml:"source_weights"`
}

// DefaultConfig returns the analyzer defaults.
func DefaultConfig() Config {
	return Config{
		RecencyDecayHours:  defaultRecencyDecayHours,
		NegationEnabled:    true,
		MinDataPoints:      defaultMinDataPoints,
		NormalizationScale: defaultNormalization,
	}
}

// Analyzer 是无状态的：同样的输入与时钟总得到同样的输出。
type Analyzer struct {
	cfg           Config
	lexicon       lexicon
	sourceWeights map[string]float64
	now           func() time.Time
}

// NewAnalyzer 构造 Analyzer，非法配置项回落到默认值。
func NewAnalyzer(cfg Config) *Analyzer {
	if cfg.RecencyDecayHours <= 0 {
		cfg.RecencyDecayHours = defaultRecencyDecayHours
	}
	if cfg.MinDataPoints <= 0 {
		cfg.MinDataPoints = defaultMinDataPoints
	}
	if cfg.NormalizationScale <= 0 {
		cfg.NormalizationScale = defaultNormalization
	}
	weights := make(map[string]float64, len(defaultSourceWeights)+len(cfg.SourceWeights))
	for k, v := range defaultSourceWeights {
		weights[k] = v
	}
	for k, v := range cfg.SourceWeights {
		if v > 0 {
			weights[normalizeSource(k)] = v
		}
	}
	return &Analyzer{
		cfg:           cfg,
		lexicon:       newLexicon(cfg.Keywords),
		sourceWeights: weights,
		now:           time.Now,
	}
}

// Analyze scores items against the wall clock.
func (a *Analyzer) Analyze(items []types.RawSentimentItem) types.SentimentSignal {
	return a.AnalyzeAt(items, a.now())
}

type sourceAcc struct {
	sum   float64
	count int
}

// AnalyzeAt scores items as of now.
func (a *Analyzer) AnalyzeAt(items []types.RawSentimentItem, now time.Time) types.SentimentSignal {
	if len(items) == 0 {
		return types.SentimentSignal{
			Score:         0,
			Confidence:    0,
			Label:         types.LabelNeutral,
			RecencyFactor: 1,
			Timestamp:     now,
		}
	}
	var (
		total       float64
		negationAdj float64
		recencySum  float64
		perSource   = make(map[string]*sourceAcc)
	)
	for _, item := range items {
		raw, delta := a.scoreText(item.Text())
		ageHours := now.Sub(item.Timestamp).Hours()
		if item.Timestamp.IsZero() {
			ageHours = 0
		}
		recency := RecencyMultiplier(ageHours, a.cfg.RecencyDecayHours)
		mult := recency * EngagementMultiplier(item.Source, item.Engagement) * a.sourceWeight(item.Source)

		weighted := raw * mult
		total += weighted
		negationAdj += delta * mult
		recencySum += recency

		src := normalizeSource(item.Source)
		if src == "" {
			src = "unknown"
		}
		acc, ok := perSource[src]
		if !ok {
			acc = &sourceAcc{}
			perSource[src] = acc
		}
		acc.sum += weighted
		acc.count++
	}

	n := float64(len(items))
	avgRecency := recencySum / n
	score := a.normalize(total / n)

	components := make(map[string]types.SourceComponent, len(perSource))
	for src, acc := range perSource {
		components[src] = types.SourceComponent{
			Score:      a.normalize(acc.sum / float64(acc.count)),
			Weight:     a.sourceWeight(src),
			SampleSize: acc.count,
		}
	}

	return types.SentimentSignal{
		Score:              score,
		Confidence:         a.confidence(len(items), avgRecency),
		Label:              LabelFor(score),
		Components:         components,
		RecencyFactor:      clamp(avgRecency, minRecency, 1),
		NegationAdjustment: negationAdj / n,
		SampleSize:         len(items),
		Timestamp:          now,
	}
}

// scoreText returns the raw keyword score of text and the signed change
// caused by negation handling.
func (a *Analyzer) scoreText(text string) (score, negationDelta float64) {
	for _, m := range a.lexicon.scan(text, a.cfg.NegationEnabled) {
		if m.negated {
			adjusted := m.weight * negationFactor
			negationDelta += adjusted - m.weight
			score += adjusted
			continue
		}
		score += m.weight
	}
	return score, negationDelta
}

func (a *Analyzer) normalize(raw float64) float64 {
	return clamp(100*math.Tanh(raw/a.cfg.NormalizationScale), -100, 100)
}

// confidence 为样本量项与时效项的几何平均；样本量在 2×MinDataPoints 处饱和。
func (a *Analyzer) confidence(samples int, avgRecency float64) float64 {
	if samples <= 0 {
		return 0
	}
	sampleTerm := math.Min(1, float64(samples)/float64(2*a.cfg.MinDataPoints))
	recencyTerm := clamp(avgRecency, 0, 1)
	return clamp(math.Sqrt(sampleTerm*recencyTerm), 0, 1)
}

// LabelFor maps a normalized score to its label.
func LabelFor(score float64) types.SentimentLabel {
	switch {
	case score >= 60:
		return types.LabelVeryBullish
	case score >= 20:
		return types.LabelBullish
	case score <= -60:
		return types.LabelVeryBearish
	case score <= -20:
		return types.LabelBearish
	default:
		return types.LabelNeutral
	}
}

// Sources lists the sources that contributed to s, sorted.
func Sources(s types.SentimentSignal) []string {
	out := make([]string, 0, len(s.Components))
	for k := range s.Components {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
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
