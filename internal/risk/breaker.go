package risk

import (
	"fmt"
	"sync"
	"time"

	"sentrix/internal/logger"
	"sentrix/internal/types"
)

// TriggerReason 标识熔断触发类型。
type TriggerReason string

const (
	TriggerNone      TriggerReason = ""
	TriggerDrawdown  TriggerReason = "max_drawdown"
	TriggerFrequency TriggerReason = "trade_frequency"
	TriggerDailyLoss TriggerReason = "daily_loss"
	TriggerErrors    TriggerReason = "consecutive_errors"
	TriggerManual    TriggerReason = "manual"
)

// BreakerState 是熔断器对外暴露的快照。
type BreakerState struct {
	Triggered         bool          `json:"triggered"`
	Reason            TriggerReason `json:"reason,omitempty"`
	Detail            string        `json:"detail,omitempty"`
	TriggeredAt       time.Time     `json:"triggered_at,omitempty"`
	ResetAt           time.Time     `json:"reset_at,omitempty"`
	CurrentDrawdown   float64       `json:"current_drawdown"`
	TradesLastHour    int           `json:"trades_last_hour"`
	DailyPnLPercent   float64       `json:"daily_pnl_percent"`
	ConsecutiveErrors int           `json:"consecutive_errors"`
}

// TradeRecord 是一次已执行交易。
type TradeRecord struct {
	ID        string       `json:"id"`
	Timestamp time.Time    `json:"timestamp"`
	Symbol    string       `json:"symbol"`
	Action    types.Action `json:"action"`
	SizeUSD   float64      `json:"size_usd"`
	Success   bool         `json:"success"`
	TxHash    string       `json:"tx_hash,omitempty"`
}

// PortfolioSnapshot 是某一时刻的组合总值。
type PortfolioSnapshot struct {
	Timestamp time.Time `json:"timestamp"`
	ValueUSD  float64   `json:"value_usd"`
}

type EventKind string

const (
	EventTrip  EventKind = "trip"
	EventReset EventKind = "reset"
)

// BreakerEvent describes a trip or reset transition.
type BreakerEvent struct {
	Kind   EventKind     `json:"kind"`
	Reason TriggerReason `json:"reason,omitempty"`
	Detail string        `json:"detail,omitempty"`
	At     time.Time     `json:"at"`
	// ResetAt is set on trips.
	ResetAt time.Time `json:"reset_at,omitempty"`
	// Auto marks resets caused by the cooldown elapsing.
	Auto bool `json:"auto,omitempty"`
}

type BreakerOption func(*CircuitBreaker)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) BreakerOption {
	return func(cb *CircuitBreaker) {
		if now != nil {
			cb.now = now
		}
	}
}

// CircuitBreaker 追踪回撤、交易频率、日内亏损与连续错误，任一触发后拒绝所有新交易直到冷却结束或手动复位。
type CircuitBreaker struct {
	mu        sync.Mutex
	cfg       Config
	now       func() time.Time
	state     BreakerState
	trades    []TradeRecord
	snapshots []PortfolioSnapshot

	day        string
	dayStart   float64
	dayHigh    float64
	errorCount int

	pending       []BreakerEvent
	onStateChange func(BreakerEvent)
}

func NewCircuitBreaker(cfg Config, opts ...BreakerOption) *CircuitBreaker {
	cb := &CircuitBreaker{cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(cb)
	}
	return cb
}

// SetStateChangeHandler registers the callback fired after every trip or
// reset. It runs outside the breaker lock.
func (cb *CircuitBreaker) SetStateChangeHandler(handler func(BreakerEvent)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.onStateChange = handler
}

// locked runs fn under the lock and then delivers queued transitions.
func (cb *CircuitBreaker) locked(fn func()) {
	cb.mu.Lock()
	fn()
	events := cb.pending
	cb.pending = nil
	handler := cb.onStateChange
	cb.mu.Unlock()
	for _, ev := range events {
		if ev.Kind == EventTrip {
			logger.Warnf("[risk] circuit breaker tripped: %s (%s), resets at %s", ev.Reason, ev.Detail, ev.ResetAt.Format(time.RFC3339))
		} else {
			logger.Infof("[risk] circuit breaker reset (auto=%v)", ev.Auto)
		}
		if handler != nil {
			handler(ev)
		}
	}
}

// Check 先处理到期自动复位，再计算指标并按回撤→频率→日亏损的优先级评估触发条件。
func (cb *CircuitBreaker) Check(now time.Time) BreakerState {
	var out BreakerState
	cb.locked(func() {
		cb.rollDay(now)
		if cb.state.Triggered && !now.Before(cb.state.ResetAt) {
			cb.reset(now, true)
		}
		cb.refreshMetrics(now)
		if !cb.state.Triggered {
			cb.evaluate(now)
		}
		out = cb.state
	})
	return out
}

func (cb *CircuitBreaker) evaluate(now time.Time) {
	s := cb.state
	switch {
	case cb.cfg.MaxDrawdownPercent > 0 && s.CurrentDrawdown >= cb.cfg.MaxDrawdownPercent:
		cb.trip(TriggerDrawdown, fmt.Sprintf("drawdown %.2f%% >= %.2f%%", s.CurrentDrawdown, cb.cfg.MaxDrawdownPercent), now)
	case cb.cfg.MaxTradesPerHour > 0 && s.TradesLastHour >= cb.cfg.MaxTradesPerHour:
		cb.trip(TriggerFrequency, fmt.Sprintf("%d trades in the last hour >= %d", s.TradesLastHour, cb.cfg.MaxTradesPerHour), now)
	case cb.cfg.DailyLossLimitPercent > 0 && s.DailyPnLPercent <= -cb.cfg.DailyLossLimitPercent:
		cb.trip(TriggerDailyLoss, fmt.Sprintf("daily pnl %.2f%% <= -%.2f%%", s.DailyPnLPercent, cb.cfg.DailyLossLimitPercent), now)
	}
}

func (cb *CircuitBreaker) trip(reason TriggerReason, detail string, now time.Time) {
	cb.state.Triggered = true
	cb.state.Reason = reason
	cb.state.Detail = detail
	cb.state.TriggeredAt = now
	cb.state.ResetAt = now.Add(Cooldown(reason))
	cb.pending = append(cb.pending, BreakerEvent{
		Kind: EventTrip, Reason: reason, Detail: detail, At: now, ResetAt: cb.state.ResetAt,
	})
}

// restoreTrip 恢复重启前尚未到期的触发状态，不产生新的事件。
func (cb *CircuitBreaker) restoreTrip(ev BreakerEvent) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state.Triggered = true
	cb.state.Reason = ev.Reason
	cb.state.Detail = ev.Detail
	cb.state.TriggeredAt = ev.At
	cb.state.ResetAt = ev.ResetAt
}

func (cb *CircuitBreaker) reset(now time.Time, auto bool) {
	if !cb.state.Triggered {
		return
	}
	reason := cb.state.Reason
	cb.state.Triggered = false
	cb.state.Reason = TriggerNone
	cb.state.Detail = ""
	cb.state.TriggeredAt = time.Time{}
	cb.state.ResetAt = time.Time{}
	cb.errorCount = 0
	cb.state.ConsecutiveErrors = 0
	cb.pending = append(cb.pending, BreakerEvent{Kind: EventReset, Reason: reason, At: now, Auto: auto})
}

func (cb *CircuitBreaker) refreshMetrics(now time.Time) {
	current := cb.latestValue()
	cb.state.CurrentDrawdown = 0
	if cb.dayHigh > 0 && current > 0 && current < cb.dayHigh {
		cb.state.CurrentDrawdown = (cb.dayHigh - current) / cb.dayHigh * 100
	}
	cb.state.DailyPnLPercent = 0
	if cb.dayStart > 0 && current > 0 {
		cb.state.DailyPnLPercent = (current - cb.dayStart) / cb.dayStart * 100
	}
	hourAgo := now.Add(-time.Hour)
	count := 0
	for _, t := range cb.trades {
		if t.Timestamp.After(hourAgo) && !t.Timestamp.After(now) {
			count++
		}
	}
	cb.state.TradesLastHour = count
	cb.state.ConsecutiveErrors = cb.errorCount
}

func (cb *CircuitBreaker) latestValue() float64 {
	if len(cb.snapshots) == 0 {
		return 0
	}
	return cb.snapshots[len(cb.snapshots)-1].ValueUSD
}

// rollDay 在日期变化时以最新组合值重置日初值与日内高点。
func (cb *CircuitBreaker) rollDay(now time.Time) {
	day := now.UTC().Format("2006-01-02")
	if day == cb.day {
		return
	}
	cb.day = day
	v := cb.latestValue()
	cb.dayStart, cb.dayHigh = v, v
}

// RecordTrade appends to the bounded trade history.
func (cb *CircuitBreaker) RecordTrade(rec TradeRecord) {
	cb.locked(func() {
		if rec.Timestamp.IsZero() {
			rec.Timestamp = cb.now()
		}
		cb.trades = append(cb.trades, rec)
		if over := len(cb.trades) - maxTradeHistory; over > 0 {
			cb.trades = append([]TradeRecord(nil), cb.trades[over:]...)
		}
	})
}

// RecordSnapshot appends a portfolio value and updates the day's start value
// and high-watermark. Snapshots older than 48h are dropped.
func (cb *CircuitBreaker) RecordSnapshot(snap PortfolioSnapshot) {
	cb.locked(func() {
		if snap.Timestamp.IsZero() {
			snap.Timestamp = cb.now()
		}
		cb.snapshots = append(cb.snapshots, snap)
		cutoff := snap.Timestamp.Add(-snapshotRetention)
		i := 0
		for i < len(cb.snapshots) && cb.snapshots[i].Timestamp.Before(cutoff) {
			i++
		}
		if i > 0 {
			cb.snapshots = append([]PortfolioSnapshot(nil), cb.snapshots[i:]...)
		}
		day := snap.Timestamp.UTC().Format("2006-01-02")
		if day != cb.day || cb.dayStart <= 0 {
			cb.day = day
			cb.dayStart, cb.dayHigh = snap.ValueUSD, snap.ValueUSD
			return
		}
		if snap.ValueUSD > cb.dayHigh {
			cb.dayHigh = snap.ValueUSD
		}
	})
}

// RecordError counts a failed external call; the configured number of
// consecutive errors trips the breaker.
func (cb *CircuitBreaker) RecordError(err error) BreakerState {
	var out BreakerState
	cb.locked(func() {
		cb.errorCount++
		cb.state.ConsecutiveErrors = cb.errorCount
		threshold := cb.cfg.ErrorThreshold
		if threshold <= 0 {
			threshold = 3
		}
		if !cb.state.Triggered && cb.errorCount >= threshold {
			detail := fmt.Sprintf("%d consecutive errors", cb.errorCount)
			if err != nil {
				detail += ": " + err.Error()
			}
			cb.trip(TriggerErrors, detail, cb.now())
		}
		out = cb.state
	})
	return out
}

// RecordSuccess clears the consecutive error count.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.locked(func() {
		cb.errorCount = 0
		cb.state.ConsecutiveErrors = 0
	})
}

// Trip opens the breaker manually. An already open breaker is left as is.
func (cb *CircuitBreaker) Trip(detail string) BreakerState {
	var out BreakerState
	cb.locked(func() {
		if !cb.state.Triggered {
			cb.trip(TriggerManual, detail, cb.now())
		}
		out = cb.state
	})
	return out
}

// Reset closes the breaker immediately.
func (cb *CircuitBreaker) Reset() BreakerState {
	var out BreakerState
	cb.locked(func() {
		cb.reset(cb.now(), false)
		cb.errorCount = 0
		cb.state.ConsecutiveErrors = 0
		out = cb.state
	})
	return out
}

// State returns the state as of the last check, without evaluating triggers.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Trades returns a copy of the trade history, oldest first.
func (cb *CircuitBreaker) Trades() []TradeRecord {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return append([]TradeRecord(nil), cb.trades...)
}

// Snapshots returns a copy of the retained snapshots, oldest first.
func (cb *CircuitBreaker) Snapshots() []PortfolioSnapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return append([]PortfolioSnapshot(nil), cb.snapshots...)
}
