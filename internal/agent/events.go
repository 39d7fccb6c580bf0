package agent

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"sentrix/internal/logger"
)

// Phase 是单轮周期所处的阶段，只会向前推进。
type Phase string

const (
	PhaseInit    Phase = "init"
	PhaseMonitor Phase = "monitor"
	PhaseDecide  Phase = "decide"
	PhaseQuote   Phase = "quote"
	PhaseExecute Phase = "execute"
	PhaseDone    Phase = "done"
)

var phaseOrder = map[Phase]int{
	PhaseInit:    0,
	PhaseMonitor: 1,
	PhaseDecide:  2,
	PhaseQuote:   3,
	PhaseExecute: 4,
	PhaseDone:    5,
}

type EventKind string

const (
	EventPhaseChange EventKind = "phase_change"
	EventSignal      EventKind = "signal"
	EventDecision    EventKind = "decision"
	EventRisk        EventKind = "risk"
	EventQuote       EventKind = "quote"
	EventExecution   EventKind = "execution"
	EventError       EventKind = "error"
	EventLog         EventKind = "log"
)

// Event 是推送给订阅者的通知，Data 的具体类型由 Kind 决定：
//
//	phase_change -> PhaseChange
//	signal       -> types.AggregatedSignal
//	decision     -> strategy.Outcome
//	risk         -> risk.RiskAssessment
//	quote        -> executor.QuoteResult
//	execution    -> executor.ExecutionResult
//	error        -> error
//	log          -> LogEntry
type Event struct {
	Kind    EventKind `json:"kind"`
	Symbol  string    `json:"symbol,omitempty"`
	CycleID string    `json:"cycle_id,omitempty"`
	At      time.Time `json:"at"`
	Data    any       `json:"data,omitempty"`
}

type PhaseChange struct {
	From Phase `json:"from"`
	To   Phase `json:"to"`
}

type Handler func(Event)

type LogLevel string

const (
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// LogEntry 是 agent 内存日志中的一行。
type LogEntry struct {
	At      time.Time `json:"at"`
	Level   LogLevel  `json:"level"`
	Phase   Phase     `json:"phase"`
	Symbol  string    `json:"symbol,omitempty"`
	CycleID string    `json:"cycle_id,omitempty"`
	Message string    `json:"message"`
}

// observers 是按注册顺序同步投递的订阅者列表。
type observers struct {
	mu       sync.RWMutex
	handlers map[int]Handler
	nextID   int
}

func (o *observers) add(fn Handler) func() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.handlers == nil {
		o.handlers = make(map[int]Handler)
	}
	id := o.nextID
	o.nextID++
	o.handlers[id] = fn
	var once sync.Once
	return func() {
		once.Do(func() {
			o.mu.Lock()
			delete(o.handlers, id)
			o.mu.Unlock()
		})
	}
}

func (o *observers) count() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.handlers)
}

func (o *observers) snapshot() []Handler {
	o.mu.RLock()
	defer o.mu.RUnlock()
	ids := make([]int, 0, len(o.handlers))
	for id := range o.handlers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]Handler, 0, len(ids))
	for _, id := range ids {
		out = append(out, o.handlers[id])
	}
	return out
}

func (o *observers) publish(ev Event) {
	for _, fn := range o.snapshot() {
		deliver(fn, ev)
	}
}

func deliver(fn Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("[agent] event handler panic kind=%s: %v", ev.Kind, r)
		}
	}()
	fn(ev)
}

func (e Event) String() string {
	return fmt.Sprintf("%s symbol=%s cycle=%s", e.Kind, e.Symbol, e.CycleID)
}
