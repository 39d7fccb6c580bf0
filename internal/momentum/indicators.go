package momentum

import (
	"math"

	talib "github.com/markcheno/go-talib"
)

// RSI 使用 Wilder 平滑（go-talib），数据不足返回 50，窗口内无下跌返回 100。
func RSI(closes []float64, period int) float64 {
	if period <= 0 {
		period = defaultRSIPeriod
	}
	if len(closes) < period+1 {
		return 50
	}
	if !hasLoss(closes) {
		return 100
	}
	series := talib.Rsi(closes, period)
	if len(series) == 0 {
		return 50
	}
	return clamp(series[len(series)-1], 0, 100)
}

func hasLoss(closes []float64) bool {
	for i := 1; i < len(closes); i++ {
		if closes[i] < closes[i-1] {
			return true
		}
	}
	return false
}

// MACDResult 为最新一根的 MACD 三元组。
type MACDResult struct {
	Line      float64
	Signal    float64
	Histogram float64
	Valid     bool
}

// MACD derives line/signal/histogram from fast and slow EMAs. It needs at
// least slow+signal closes, otherwise the zero result is returned.
func MACD(closes []float64, fast, slow, signal int) MACDResult {
	if fast <= 0 || slow <= 0 || signal <= 0 || fast >= slow {
		return MACDResult{}
	}
	if len(closes) < slow+signal {
		return MACDResult{}
	}
	emaFast := talib.Ema(closes, fast)
	emaSlow := talib.Ema(closes, slow)
	line := make([]float64, 0, len(closes)-slow+1)
	for i := slow - 1; i < len(closes); i++ {
		line = append(line, emaFast[i]-emaSlow[i])
	}
	sig := talib.Ema(line, signal)
	last := line[len(line)-1]
	lastSig := sig[len(sig)-1]
	if math.IsNaN(last) || math.IsNaN(lastSig) {
		return MACDResult{}
	}
	return MACDResult{
		Line:      last,
		Signal:    lastSig,
		Histogram: last - lastSig,
		Valid:     true,
	}
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
