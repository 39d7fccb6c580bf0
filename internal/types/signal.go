package types

import "time"

// RawSentimentItem 是 provider 抓取到的一条原始文本。
type RawSentimentItem struct {
	Source     string         `json:"source"`
	Title      string         `json:"title"`
	Content    string         `json:"content,omitempty"`
	URL        string         `json:"url,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	Engagement float64        `json:"engagement"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Text 返回标题与正文拼接后的文本。
func (i RawSentimentItem) Text() string {
	if i.Content == "" {
		return i.Title
	}
	if i.Title == "" {
		return i.Content
	}
	return i.Title + " " + i.Content
}

type SentimentLabel string

const (
	LabelVeryBullish SentimentLabel = "very_bullish"
	LabelBullish     SentimentLabel = "bullish"
	LabelNeutral     SentimentLabel = "neutral"
	LabelBearish     SentimentLabel = "bearish"
	LabelVeryBearish SentimentLabel = "very_bearish"
)

// IsBullish reports whether the label leans long.
func (l SentimentLabel) IsBullish() bool {
	return l == LabelBullish || l == LabelVeryBullish
}

// IsBearish reports whether the label leans short.
func (l SentimentLabel) IsBearish() bool {
	return l == LabelBearish || l == LabelVeryBearish
}

// SourceComponent 记录单个来源对情绪分的贡献。
type SourceComponent struct {
	Score      float64 `json:"score"`
	Weight     float64 `json:"weight"`
	SampleSize int     `json:"sample_size"`
}

// SentimentSignal 是 SentimentAnalyzer 的输出。
type SentimentSignal struct {
	Score              float64                    `json:"score"`
	Confidence         float64                    `json:"confidence"`
	Label              SentimentLabel             `json:"label"`
	Components         map[string]SourceComponent `json:"components,omitempty"`
	RecencyFactor      float64                    `json:"recency_factor"`
	NegationAdjustment float64                    `json:"negation_adjustment"`
	SampleSize         int                        `json:"sample_size"`
	Timestamp          time.Time                  `json:"timestamp"`
}

type Trend string

const (
	TrendStrongUp   Trend = "strong_up"
	TrendUp         Trend = "up"
	TrendSideways   Trend = "sideways"
	TrendDown       Trend = "down"
	TrendStrongDown Trend = "strong_down"
)

// PriceBar 是一根 OHLCV K 线。
type PriceBar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// MomentumSignal 汇总技术指标与趋势分类。
type MomentumSignal struct {
	Trend           Trend     `json:"trend"`
	RSI             float64   `json:"rsi"`
	MACDSignal      float64   `json:"macd_signal"`
	MACDLine        float64   `json:"macd_line"`
	SignalLine      float64   `json:"signal_line"`
	PriceChange24h  float64   `json:"price_change_24h"`
	VolumeChange24h float64   `json:"volume_change_24h"`
	LastPrice       float64   `json:"last_price"`
	Confidence      float64   `json:"confidence"`
	Timestamp       time.Time `json:"timestamp"`
}

type Recommendation string

const (
	RecStrongBuy  Recommendation = "strong_buy"
	RecBuy        Recommendation = "buy"
	RecHold       Recommendation = "hold"
	RecSell       Recommendation = "sell"
	RecStrongSell Recommendation = "strong_sell"
)

// AggregatedSignal 是情绪与动量融合后的结果。
type AggregatedSignal struct {
	Symbol            string          `json:"symbol"`
	Sentiment         SentimentSignal `json:"sentiment"`
	Momentum          *MomentumSignal `json:"momentum,omitempty"`
	MomentumScore     float64         `json:"momentum_score"`
	OverallScore      float64         `json:"overall_score"`
	OverallConfidence float64         `json:"overall_confidence"`
	Recommendation    Recommendation  `json:"recommendation"`
	Conflict          bool            `json:"conflict"`
	Notes             []string        `json:"notes,omitempty"`
	Timestamp         time.Time       `json:"timestamp"`
}
