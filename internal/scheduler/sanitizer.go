package scheduler

import (
	"time"

	"sentrix/internal/types"
)

const DefaultKlineGrace = 10 * time.Second

// DropUnclosedBar drops the last bar if it is still in progress. Exchanges
// such as Binance return the current, not-yet-closed candle last.
//
// Bar timestamps are open times.
func DropUnclosedBar(bars []types.PriceBar, interval time.Duration) []types.PriceBar {
	return dropUnclosedBarAt(bars, interval, time.Now().UTC(), DefaultKlineGrace)
}

func dropUnclosedBarAt(bars []types.PriceBar, interval time.Duration, now time.Time, grace time.Duration) []types.PriceBar {
	if len(bars) == 0 || interval <= 0 {
		return bars
	}
	if grace < 0 {
		grace = 0
	}
	last := bars[len(bars)-1]
	if last.Timestamp.IsZero() {
		return bars
	}
	if now.Before(last.Timestamp.Add(interval + grace)) {
		return bars[:len(bars)-1]
	}
	return bars
}
