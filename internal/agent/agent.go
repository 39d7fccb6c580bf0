// Package agent 编排单个交易周期：监控 -> 决策(含风控) -> 询价 -> 执行 -> 记录。
package agent

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"sentrix/internal/executor"
	"sentrix/internal/logger"
	"sentrix/internal/momentum"
	"sentrix/internal/provider"
	"sentrix/internal/risk"
	"sentrix/internal/sentiment"
	"sentrix/internal/signal"
	"sentrix/internal/strategy"
	"sentrix/internal/tracker"
	"sentrix/internal/types"
)

var (
	ErrCycleInProgress = errors.New("cycle already in progress")
	ErrNoPortfolio     = errors.New("portfolio source not configured")
)

const (
	maxLogEntries       = 500
	defaultNewsLookback = 48 * time.Hour
)

// PriceSink 接收最新行情，纸面执行器用它给持仓估值。
type PriceSink interface {
	SetPrice(token string, usd float64)
}

// Params 汇总 Agent 的依赖；Tracker 与 Prices 可为空。
type Params struct {
	Providers      *provider.Registry
	Analyzer       *sentiment.Analyzer
	Calculator     *momentum.Calculator
	Aggregator     *signal.Aggregator
	Strategies     *strategy.Registry
	StrategyName   string
	StrategyConfig *strategy.Config
	Risk           *risk.Manager
	Executor       executor.Executor
	Portfolio      executor.PortfolioSource
	Tracker        tracker.Tracker
	Prices         PriceSink
	WalletAddress  string
	AutoExecute    bool
	NewsLookback   time.Duration
	BarInterval    string
	Clock          func() time.Time
}

// State 是 Agent 状态的只读快照。
type State struct {
	Phase          Phase                    `json:"phase"`
	CycleID        string                   `json:"cycle_id,omitempty"`
	Symbol         string                   `json:"symbol,omitempty"`
	Strategy       string                   `json:"strategy"`
	AutoExecute    bool                     `json:"auto_execute"`
	Portfolio      *types.Portfolio         `json:"portfolio,omitempty"`
	LastSignal     *types.AggregatedSignal  `json:"last_signal,omitempty"`
	LastIntent     *types.TradeIntent       `json:"last_intent,omitempty"`
	LastAssessment *risk.RiskAssessment     `json:"last_assessment,omitempty"`
	LastQuote      *executor.QuoteResult    `json:"last_quote,omitempty"`
	LastExecution  *executor.ExecutionResult `json:"last_execution,omitempty"`
	LastCycle      *CycleResult             `json:"last_cycle,omitempty"`
	Cycles         int                      `json:"cycles"`
}

// Agent 串行执行周期；cycleMu 保证同一实例上不会有两个周期并发，
// 因而风控状态只会被一个周期修改。
type Agent struct {
	providers  *provider.Registry
	analyzer   *sentiment.Analyzer
	calculator *momentum.Calculator
	aggregator *signal.Aggregator
	strategies *strategy.Registry
	risk       *risk.Manager
	exec       executor.Executor
	portfolio  executor.PortfolioSource
	tracker    tracker.Tracker
	prices     PriceSink

	wallet       string
	newsLookback time.Duration
	barInterval  string
	now          func() time.Time

	cycleMu sync.Mutex

	mu          sync.RWMutex
	state       State
	strategyCfg strategy.Config
	autoExecute bool
	log         []LogEntry

	subs observers
}

func New(p Params) (*Agent, error) {
	if p.Providers == nil {
		return nil, fmt.Errorf("agent requires a provider registry")
	}
	if p.Strategies == nil {
		return nil, fmt.Errorf("agent requires a strategy registry")
	}
	if p.Risk == nil {
		return nil, fmt.Errorf("agent requires a risk manager")
	}
	if p.Executor == nil {
		return nil, fmt.Errorf("agent requires an executor")
	}
	if p.Analyzer == nil {
		p.Analyzer = sentiment.NewAnalyzer(sentiment.DefaultConfig())
	}
	if p.Calculator == nil {
		p.Calculator = momentum.NewCalculator(momentum.DefaultConfig())
	}
	if p.Aggregator == nil {
		p.Aggregator = signal.NewAggregator(signal.DefaultConfig())
	}
	if p.Clock == nil {
		p.Clock = time.Now
	}
	if p.NewsLookback <= 0 {
		p.NewsLookback = defaultNewsLookback
	}
	if p.Portfolio == nil {
		if src, ok := p.Executor.(executor.PortfolioSource); ok {
			p.Portfolio = src
		}
	}
	name := strings.ToLower(strings.TrimSpace(p.StrategyName))
	if name == "" {
		name = strategy.SentimentMomentumName
	}
	strat, err := p.Strategies.Get(name)
	if err != nil {
		return nil, err
	}
	cfg := strat.DefaultConfig()
	if p.StrategyConfig != nil {
		cfg = *p.StrategyConfig
	}
	if err := strat.ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("strategy %s config: %w", name, err)
	}
	a := &Agent{
		providers:    p.Providers,
		analyzer:     p.Analyzer,
		calculator:   p.Calculator,
		aggregator:   p.Aggregator,
		strategies:   p.Strategies,
		risk:         p.Risk,
		exec:         p.Executor,
		portfolio:    p.Portfolio,
		tracker:      p.Tracker,
		prices:       p.Prices,
		wallet:       strings.TrimSpace(p.WalletAddress),
		newsLookback: p.NewsLookback,
		barInterval:  p.BarInterval,
		now:          p.Clock,
		strategyCfg:  cfg,
		autoExecute:  p.AutoExecute,
	}
	a.state = State{Phase: PhaseInit, Strategy: name, AutoExecute: p.AutoExecute}
	return a, nil
}

// Subscribe 注册事件处理器，返回的函数用于取消订阅（可重复调用）。
// 事件在产生它的 goroutine 中按顺序同步投递，处理器 panic 会被恢复并记录。
func (a *Agent) Subscribe(fn Handler) func() {
	if fn == nil {
		return func() {}
	}
	return a.subs.add(fn)
}

func (a *Agent) Subscribers() int { return a.subs.count() }

// State 返回当前状态的拷贝。
func (a *Agent) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

func (a *Agent) StrategyName() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state.Strategy
}

func (a *Agent) StrategyConfig() strategy.Config {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.strategyCfg
}

// SetStrategy 切换策略及参数；参数先经策略自身校验。
func (a *Agent) SetStrategy(name string, cfg *strategy.Config) error {
	name = strings.ToLower(strings.TrimSpace(name))
	strat, err := a.strategies.Get(name)
	if err != nil {
		return err
	}
	next := strat.DefaultConfig()
	if cfg != nil {
		next = *cfg
	}
	if err := strat.ValidateConfig(next); err != nil {
		return fmt.Errorf("strategy %s config: %w", name, err)
	}
	a.mu.Lock()
	a.state.Strategy = name
	a.strategyCfg = next
	a.mu.Unlock()
	a.logf(LogInfo, "", "", "strategy set to %s v%s", name, strat.Version())
	return nil
}

func (a *Agent) SetAutoExecute(on bool) {
	a.mu.Lock()
	a.autoExecute = on
	a.state.AutoExecute = on
	a.mu.Unlock()
}

func (a *Agent) Risk() *risk.Manager { return a.risk }

func (a *Agent) Strategies() *strategy.Registry { return a.strategies }

// Log 返回最近 limit 条日志（limit<=0 返回全部），按时间升序。
func (a *Agent) Log(limit int) []LogEntry {
	a.mu.RLock()
	defer a.mu.RUnlock()
	start := 0
	if limit > 0 && len(a.log) > limit {
		start = len(a.log) - limit
	}
	return append([]LogEntry(nil), a.log[start:]...)
}

func (a *Agent) emit(kind EventKind, symbol, cycleID string, data any) {
	a.subs.publish(Event{Kind: kind, Symbol: symbol, CycleID: cycleID, At: a.now().UTC(), Data: data})
}

func (a *Agent) logf(level LogLevel, symbol, cycleID, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	a.mu.Lock()
	entry := LogEntry{
		At:      a.now().UTC(),
		Level:   level,
		Phase:   a.state.Phase,
		Symbol:  symbol,
		CycleID: cycleID,
		Message: msg,
	}
	a.log = append(a.log, entry)
	if over := len(a.log) - maxLogEntries; over > 0 {
		a.log = append(a.log[:0:0], a.log[over:]...)
	}
	a.mu.Unlock()

	switch level {
	case LogError:
		logger.Errorf("[agent] %s %s", symbol, msg)
	case LogWarn:
		logger.Warnf("[agent] %s %s", symbol, msg)
	default:
		logger.Infof("[agent] %s %s", symbol, msg)
	}
	a.emit(EventLog, symbol, cycleID, entry)
}

// begin 开始新一轮周期，阶段回到 init。
func (a *Agent) begin(symbol, cycleID string) {
	a.mu.Lock()
	from := a.state.Phase
	a.state.Phase = PhaseInit
	a.state.CycleID = cycleID
	a.state.Symbol = symbol
	a.mu.Unlock()
	a.emit(EventPhaseChange, symbol, cycleID, PhaseChange{From: from, To: PhaseInit})
	a.logf(LogInfo, symbol, cycleID, "cycle started")
}

// advance 只向前推进阶段，试图回退或原地不动时忽略。
func (a *Agent) advance(to Phase) bool {
	a.mu.Lock()
	from := a.state.Phase
	if phaseOrder[to] <= phaseOrder[from] {
		a.mu.Unlock()
		logger.Debugf("[agent] ignore phase move %s -> %s", from, to)
		return false
	}
	a.state.Phase = to
	symbol, cycleID := a.state.Symbol, a.state.CycleID
	a.mu.Unlock()
	a.emit(EventPhaseChange, symbol, cycleID, PhaseChange{From: from, To: to})
	a.logf(LogInfo, symbol, cycleID, "phase %s -> %s", from, to)
	return true
}

func (a *Agent) update(fn func(*State)) {
	a.mu.Lock()
	fn(&a.state)
	a.mu.Unlock()
}
