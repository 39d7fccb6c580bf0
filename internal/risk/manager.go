package risk

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"sentrix/internal/logger"
	"sentrix/internal/types"
)

// HistoryStore persists breaker history across restarts.
type HistoryStore interface {
	SaveTrade(ctx context.Context, rec TradeRecord) error
	SaveSnapshot(ctx context.Context, snap PortfolioSnapshot) error
	SaveEvent(ctx context.Context, ev BreakerEvent) error
	LoadTrades(ctx context.Context, limit int) ([]TradeRecord, error)
	LoadSnapshots(ctx context.Context, since time.Time) ([]PortfolioSnapshot, error)
}

// Status 是风控评估结论。
type Status string

const (
	StatusApproved Status = "approved"
	StatusAdjusted Status = "adjusted"
	StatusRejected Status = "rejected"
)

// RiskAssessment 是对单个意图的评估结果；拒绝同样是数据而非错误。
type RiskAssessment struct {
	Status         Status             `json:"status"`
	Approved       bool               `json:"approved"`
	AdjustedIntent *types.TradeIntent `json:"adjusted_intent,omitempty"`
	RiskScore      float64            `json:"risk_score"`
	SizeUSD        float64            `json:"size_usd"`
	KellyPercent   float64            `json:"kelly_percent"`
	Reasons        []string           `json:"reasons,omitempty"`
	Breaker        BreakerState       `json:"breaker"`
	Timestamp      time.Time          `json:"timestamp"`
}

func rejected(st BreakerState, now time.Time, reasons ...string) RiskAssessment {
	return RiskAssessment{Status: StatusRejected, Reasons: reasons, Breaker: st, Timestamp: now}
}

type ManagerOption func(*Manager)

// WithHistoryStore enables persistence of trades, snapshots and transitions.
func WithHistoryStore(store HistoryStore) ManagerOption {
	return func(m *Manager) { m.store = store }
}

// WithBreakerOptions forwards options to the underlying CircuitBreaker.
func WithBreakerOptions(opts ...BreakerOption) ManagerOption {
	return func(m *Manager) { m.breakerOpts = append(m.breakerOpts, opts...) }
}

// Manager 组合 PositionSizer 与 CircuitBreaker，并负责历史持久化。
type Manager struct {
	cfg         Config
	breaker     *CircuitBreaker
	breakerOpts []BreakerOption
	store       HistoryStore

	mu        sync.Mutex
	listeners map[int]func(BreakerEvent)
	nextID    int
}

func NewManager(cfg Config, opts ...ManagerOption) *Manager {
	m := &Manager{cfg: cfg, listeners: make(map[int]func(BreakerEvent))}
	for _, opt := range opts {
		opt(m)
	}
	m.breaker = NewCircuitBreaker(cfg, m.breakerOpts...)
	m.breaker.SetStateChangeHandler(m.handleTransition)
	return m
}

func (m *Manager) Config() Config                   { return m.cfg }
func (m *Manager) Breaker() *CircuitBreaker         { return m.breaker }
func (m *Manager) State() BreakerState              { return m.breaker.State() }
func (m *Manager) Check(now time.Time) BreakerState { return m.breaker.Check(now) }

// OnBreakerEvent registers fn for trips and resets and returns a func that
// removes it.
func (m *Manager) OnBreakerEvent(fn func(BreakerEvent)) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

func (m *Manager) handleTransition(ev BreakerEvent) {
	if m.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := m.store.SaveEvent(ctx, ev); err != nil {
			logger.Warnf("[risk] persist breaker event failed: %v", err)
		}
		cancel()
	}
	m.mu.Lock()
	fns := make([]func(BreakerEvent), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// Restore 从存储回放交易与快照历史。
func (m *Manager) Restore(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	trades, err := m.store.LoadTrades(ctx, maxTradeHistory)
	if err != nil {
		return fmt.Errorf("load trades: %w", err)
	}
	snaps, err := m.store.LoadSnapshots(ctx, m.breaker.now().Add(-snapshotRetention))
	if err != nil {
		return fmt.Errorf("load snapshots: %w", err)
	}
	for _, t := range trades {
		m.breaker.RecordTrade(t)
	}
	for _, s := range snaps {
		m.breaker.RecordSnapshot(s)
	}
	logger.Infof("[risk] restored %d trades, %d snapshots", len(trades), len(snaps))
	if l, ok := m.store.(eventLoader); ok {
		events, err := l.Events(ctx, 1)
		if err != nil {
			return fmt.Errorf("load breaker events: %w", err)
		}
		if len(events) > 0 && events[0].Kind == EventTrip && events[0].ResetAt.After(m.breaker.now()) {
			m.breaker.restoreTrip(events[0])
			logger.Warnf("[risk] breaker still tripped after restart: %s (%s), resets at %s",
				events[0].Reason, events[0].Detail, events[0].ResetAt.Format(time.RFC3339))
		}
	}
	if p, ok := m.store.(historyPruner); ok {
		if err := p.Prune(ctx, m.breaker.now().Add(-snapshotRetention), maxTradeHistory); err != nil {
			logger.Warnf("[risk] prune history failed: %v", err)
		}
	}
	return nil
}

// eventLoader 返回最近的熔断事件，新的在前。
type eventLoader interface {
	Events(ctx context.Context, limit int) ([]BreakerEvent, error)
}

// historyPruner 由支持裁剪的存储实现，恢复后丢弃超出保留窗口的记录。
type historyPruner interface {
	Prune(ctx context.Context, before time.Time, keepTrades int) error
}

func (m *Manager) RecordTrade(ctx context.Context, rec TradeRecord) {
	m.breaker.RecordTrade(rec)
	if m.store != nil {
		if err := m.store.SaveTrade(ctx, rec); err != nil {
			logger.Warnf("[risk] persist trade failed: %v", err)
		}
	}
}

func (m *Manager) RecordSnapshot(ctx context.Context, snap PortfolioSnapshot) {
	m.breaker.RecordSnapshot(snap)
	if m.store != nil {
		if err := m.store.SaveSnapshot(ctx, snap); err != nil {
			logger.Warnf("[risk] persist snapshot failed: %v", err)
		}
	}
}

func (m *Manager) RecordError(err error) BreakerState { return m.breaker.RecordError(err) }
func (m *Manager) RecordSuccess()                     { m.breaker.RecordSuccess() }
func (m *Manager) Trip(detail string) BreakerState    { return m.breaker.Trip(detail) }
func (m *Manager) Reset() BreakerState                { return m.breaker.Reset() }

// Assess runs breaker gate → hold check → sizing → concentration → scoring
// and returns an adjusted copy of intent when approved.
func (m *Manager) Assess(intent types.TradeIntent, pf types.Portfolio, now time.Time) RiskAssessment {
	st := m.breaker.Check(now)
	if st.Triggered {
		return rejected(st, now, fmt.Sprintf("circuit breaker open: %s (%s), resets at %s",
			st.Reason, st.Detail, st.ResetAt.Format(time.RFC3339)))
	}
	if intent.Action == types.ActionHold || intent.Action == "" {
		return rejected(st, now, "hold intent is not tradable")
	}
	total := pf.TotalValueUSD()
	if total <= 0 {
		return rejected(st, now, "portfolio value is zero")
	}

	size := SizePosition(SizeRequest{
		RequestedPercent: intent.SuggestedSizePercent,
		Confidence:       intent.Confidence,
		Portfolio:        pf,
		TotalValueUSD:    total,
		FromToken:        intent.FromToken,
	}, m.cfg)
	reasons := append([]string(nil), size.Adjustments...)
	if size.Percent < minTradePercent {
		reasons = append(reasons, fmt.Sprintf("size %.2f%% below minimum %.0f%%", size.Percent, minTradePercent))
		return rejected(st, now, reasons...)
	}

	if intent.Action == types.ActionBuy {
		if exceeds, post := CheckConcentration(pf, intent.ToToken, size.USD, m.cfg.MaxConcentrationPercent); exceeds {
			room := m.cfg.MaxConcentrationPercent/100*total - pf.ValueOf(intent.ToToken)
			roomPct := room / total * 100
			if roomPct < minTradePercent {
				reasons = append(reasons, fmt.Sprintf("%s concentration %.2f%% would exceed %.2f%%", intent.ToToken, post, m.cfg.MaxConcentrationPercent))
				return rejected(st, now, reasons...)
			}
			size.Percent = roomPct
			size.USD = room
			reasons = append(reasons, fmt.Sprintf("reduced to keep %s concentration at %.2f%%", intent.ToToken, m.cfg.MaxConcentrationPercent))
		}
	}

	kelly := KellyFraction(intent.Confidence, m.cfg.KellyPayoffRatio, 1, m.cfg.KellyFraction) * 100
	reasons = append(reasons, fmt.Sprintf("kelly reference %.2f%%", kelly))

	adjusted := intent.Clone()
	adjusted.SuggestedSizePercent = math.Round(size.Percent*100) / 100
	status := StatusApproved
	if adjusted.SuggestedSizePercent != intent.SuggestedSizePercent {
		status = StatusAdjusted
	}
	return RiskAssessment{
		Status:         status,
		Approved:       true,
		AdjustedIntent: &adjusted,
		RiskScore:      m.riskScore(adjusted.SuggestedSizePercent, intent.Confidence, st.CurrentDrawdown),
		SizeUSD:        math.Round(size.USD*100) / 100,
		KellyPercent:   kelly,
		Reasons:        reasons,
		Breaker:        st,
		Timestamp:      now,
	}
}

// riskScore 0-100：仓位占上限 40 分，置信度缺口 30 分，回撤接近上限 30 分。
func (m *Manager) riskScore(sizePct, confidence, drawdown float64) float64 {
	score := 0.0
	if m.cfg.MaxPositionPercent > 0 {
		score += math.Min(1, sizePct/m.cfg.MaxPositionPercent) * 40
	}
	score += (1 - math.Max(0, math.Min(1, confidence))) * 30
	if m.cfg.MaxDrawdownPercent > 0 {
		score += math.Min(1, drawdown/m.cfg.MaxDrawdownPercent) * 30
	}
	return math.Round(math.Max(0, math.Min(100, score))*10) / 10
}
