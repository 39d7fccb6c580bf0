// Package circuit 提供按名称区分的三态熔断器，用于隔离反复失败的外部依赖。
package circuit

import (
	"sync"
	"time"

	"sentrix/internal/logger"
)

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Status 是熔断器的只读快照。
type Status struct {
	Name     string    `json:"name"`
	State    State     `json:"state"`
	Failures int       `json:"failures"`
	RetryAt  time.Time `json:"retry_at,omitempty"`
}

type CircuitBreaker struct {
	mu           sync.Mutex
	name         string
	state        State
	failures     int
	threshold    int
	cooldown     time.Duration
	openedAt     time.Time
	probing      bool
	now          func() time.Time
	onTransition func(name string, from, to State)
}

// NewCircuitBreaker 连续 threshold 次失败后打开；cooldown 过后只放行一个试探请求。
func NewCircuitBreaker(name string, threshold int, cooldown time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 1
	}
	return &CircuitBreaker{
		name:      name,
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// SetClock replaces the time source, for tests.
func (cb *CircuitBreaker) SetClock(now func() time.Time) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if now != nil {
		cb.now = now
	}
}

func (cb *CircuitBreaker) SetStateChangeHandler(handler func(name string, from, to State)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.onTransition = handler
}

func (cb *CircuitBreaker) Name() string { return cb.name }

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) Status() Status {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	st := Status{Name: cb.name, State: cb.state, Failures: cb.failures}
	if cb.state == StateOpen {
		st.RetryAt = cb.openedAt.Add(cb.cooldown)
	}
	return st
}

// Allow 报告本次调用能否放行。半开状态下试探请求返回前，其余调用都被拒绝。
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.openedAt) < cb.cooldown {
			return false
		}
		cb.moveTo(StateHalfOpen)
		cb.probing = true
		return true
	case StateHalfOpen:
		if cb.probing {
			return false
		}
		cb.probing = true
		return true
	default:
		return true
	}
}

func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	cb.probing = false
	if cb.state != StateClosed {
		cb.moveTo(StateClosed)
	}
}

func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.probing = false
	switch cb.state {
	case StateClosed:
		if cb.failures >= cb.threshold {
			cb.open()
		}
	case StateHalfOpen:
		cb.open()
	}
}

// Abandon 放弃被外部取消的调用，不计成功也不计失败。
func (cb *CircuitBreaker) Abandon() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.probing = false
}

func (cb *CircuitBreaker) open() {
	cb.openedAt = cb.now()
	cb.moveTo(StateOpen)
}

func (cb *CircuitBreaker) moveTo(to State) {
	from := cb.state
	cb.state = to
	if cb.onTransition != nil {
		go cb.onTransition(cb.name, from, to)
		return
	}
	if to == StateOpen {
		logger.Warnf("[circuit] %s %s -> %s failures=%d/%d retry in %s", cb.name, from, to, cb.failures, cb.threshold, cb.cooldown)
		return
	}
	logger.Infof("[circuit] %s %s -> %s", cb.name, from, to)
}
