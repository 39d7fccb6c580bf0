// Package momentum computes technical indicators and a trend label from
// price bars.
package momentum

import (
	"errors"
	"fmt"
	"math"
	"time"

	"sentrix/internal/types"
)

const (
	defaultRSIPeriod  = 14
	defaultMACDFast   = 12
	defaultMACDSlow   = 26
	defaultMACDSignal = 9
	defaultMinBars    = 14
	defaultOverbought = 70
	defaultOversold   = 30
	changeWindow      = 24 * time.Hour
)

// ErrInsufficientBars is returned when fewer than two bars are supplied.
var ErrInsufficientBars = errors.New("momentum: at least 2 price bars required")

// Config 控制指标参数。
type Config struct {
	RSIPeriod  int     `toml:"rsi_period"`
	MACDFast   int     `toml:"macd_fast"`
	MACDSlow   int     `toml:"macd_slow"`
	MACDSignal int     `toml:"macd_signal"`
	MinBars    int     `toml:"min_bars"`
	Overbought float64 `toml:"overbought"`
	Oversold   float64 `toml:"oversold"`
}

func DefaultConfig() Config {
	return Config{
		RSIPeriod:  defaultRSIPeriod,
		MACDFast:   defaultMACDFast,
		MACDSlow:   defaultMACDSlow,
		MACDSignal: defaultMACDSignal,
		MinBars:    defaultMinBars,
		Overbought: defaultOverbought,
		Oversold:   defaultOversold,
	}
}

type Calculator struct {
	cfg Config
	now func() time.Time
}

func NewCalculator(cfg Config) *Calculator {
	def := DefaultConfig()
	if cfg.RSIPeriod <= 0 {
		cfg.RSIPeriod = def.RSIPeriod
	}
	if cfg.MACDFast <= 0 {
		cfg.MACDFast = def.MACDFast
	}
	if cfg.MACDSlow <= 0 {
		cfg.MACDSlow = def.MACDSlow
	}
	if cfg.MACDSignal <= 0 {
		cfg.MACDSignal = def.MACDSignal
	}
	if cfg.MinBars <= 0 {
		cfg.MinBars = def.MinBars
	}
	if cfg.Overbought <= 0 {
		cfg.Overbought = def.Overbought
	}
	if cfg.Oversold <= 0 {
		cfg.Oversold = def.Oversold
	}
	return &Calculator{cfg: cfg, now: time.Now}
}

// Calculate 输入按时间升序的 K 线。
func (c *Calculator) Calculate(bars []types.PriceBar) (types.MomentumSignal, error) {
	if len(bars) < 2 {
		return types.MomentumSignal{}, fmt.Errorf("%w: got %d", ErrInsufficientBars, len(bars))
	}
	closes := make([]float64, len(bars))
	hasVolume := false
	for i, b := range bars {
		closes[i] = b.Close
		if b.Volume > 0 {
			hasVolume = true
		}
	}
	rsi := RSI(closes, c.cfg.RSIPeriod)
	macd := MACD(closes, c.cfg.MACDFast, c.cfg.MACDSlow, c.cfg.MACDSignal)
	priceChange, volumeChange := Changes24h(bars)
	last := bars[len(bars)-1]

	sig := types.MomentumSignal{
		RSI:             rsi,
		MACDSignal:      macd.Histogram,
		MACDLine:        macd.Line,
		SignalLine:      macd.Signal,
		PriceChange24h:  priceChange,
		VolumeChange24h: volumeChange,
		LastPrice:       last.Close,
		Timestamp:       c.now(),
	}
	sig.Trend = c.classify(rsi, macd.Histogram, last.Close, priceChange)
	sig.Confidence = c.confidence(len(bars), hasVolume, macd.Valid)
	return sig, nil
}

// Changes24h compares the last bar against the bar at or just before 24h
// earlier; volume compares the last 24h with the 24h before it.
func Changes24h(bars []types.PriceBar) (priceChange, volumeChange float64) {
	if len(bars) < 2 {
		return 0, 0
	}
	last := bars[len(bars)-1]
	cutoff := last.Timestamp.Add(-changeWindow)
	prevCutoff := cutoff.Add(-changeWindow)

	ref := bars[0]
	for _, b := range bars[:len(bars)-1] {
		if b.Timestamp.After(cutoff) {
			break
		}
		ref = b
	}
	if ref.Close != 0 {
		priceChange = (last.Close - ref.Close) / ref.Close * 100
	}

	var recent, previous float64
	for _, b := range bars {
		switch {
		case b.Timestamp.After(cutoff):
			recent += b.Volume
		case b.Timestamp.After(prevCutoff):
			previous += b.Volume
		}
	}
	if previous != 0 {
		volumeChange = (recent - previous) / previous * 100
	}
	return priceChange, volumeChange
}

// classify 把 RSI、MACD 柱与涨跌幅的分段贡献相加后按阈值映射为趋势。
func (c *Calculator) classify(rsi, hist, price, change float64) types.Trend {
	score := TrendScore(rsi, hist, price, change, c.cfg.Overbought, c.cfg.Oversold)
	switch {
	case score >= 50:
		return types.TrendStrongUp
	case score >= 20:
		return types.TrendUp
	case score <= -50:
		return types.TrendStrongDown
	case score <= -20:
		return types.TrendDown
	default:
		return types.TrendSideways
	}
}

// TrendScore is the bucketed sum used by trend classification.
func TrendScore(rsi, hist, price, change, overbought, oversold float64) float64 {
	score := 0.0
	switch {
	case rsi > overbought:
		score += 30
	case rsi > 60:
		score += 15
	case rsi < oversold:
		score -= 30
	case rsi < 40:
		score -= 15
	}
	if hist != 0 {
		weight := 20.0
		if price > 0 && math.Abs(hist) < price*0.0001 {
			weight = 10
		}
		if hist > 0 {
			score += weight
		} else {
			score -= weight
		}
	}
	score += clamp(change*4, -40, 40)
	return score
}

func (c *Calculator) confidence(n int, hasVolume, macdValid bool) float64 {
	conf := 0.3 + 0.4*math.Min(1, float64(n)/float64(2*c.cfg.MinBars))
	if hasVolume {
		conf += 0.2
	}
	if macdValid {
		conf += 0.1
	}
	return clamp(conf, 0, 1)
}
