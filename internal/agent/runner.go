package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"sentrix/internal/logger"
	"sentrix/internal/scheduler"
)

// RunnerParams 配置周期调度。
type RunnerParams struct {
	Agent          *Agent
	Symbols        []string
	Interval       string
	Offset         time.Duration
	RunImmediately bool
}

// Runner 在每个 K 线边界依次为各标的跑一轮周期。
// 同一 Agent 的周期必须串行，所以一个 tick 内逐个标的执行而不是并发。
type Runner struct {
	agent          *Agent
	symbols        []string
	interval       time.Duration
	offset         time.Duration
	runImmediately bool

	newScheduler func(ctx context.Context, interval, offset time.Duration) *scheduler.AlignedScheduler
}

func NewRunner(p RunnerParams) (*Runner, error) {
	if p.Agent == nil {
		return nil, fmt.Errorf("runner requires an agent")
	}
	interval, ok := scheduler.ParseIntervalDuration(p.Interval)
	if !ok {
		return nil, fmt.Errorf("invalid agent interval %q", p.Interval)
	}
	symbols := make([]string, 0, len(p.Symbols))
	for _, sym := range p.Symbols {
		if sym = strings.ToUpper(strings.TrimSpace(sym)); sym != "" {
			symbols = append(symbols, sym)
		}
	}
	return &Runner{
		agent:          p.Agent,
		symbols:        symbols,
		interval:       interval,
		offset:         p.Offset,
		runImmediately: p.RunImmediately,
		newScheduler:   scheduler.NewAlignedScheduler,
	}, nil
}

func (r *Runner) Symbols() []string { return append([]string(nil), r.symbols...) }

// Run 阻塞直到 ctx 结束。
func (r *Runner) Run(ctx context.Context) error {
	if len(r.symbols) == 0 {
		logger.Warnf("[runner] no symbols configured")
		<-ctx.Done()
		return ctx.Err()
	}
	logger.Infof("[runner] starting symbols=%v interval=%s offset=%s run_immediately=%v",
		r.symbols, r.interval, r.offset, r.runImmediately)
	sched := r.newScheduler(ctx, r.interval, r.offset)
	sched.RunImmediately = r.runImmediately
	sched.Start(func() { r.Tick(ctx) })
	return ctx.Err()
}

// Tick 为每个标的跑一轮周期并返回结果。
func (r *Runner) Tick(ctx context.Context) []CycleResult {
	out := make([]CycleResult, 0, len(r.symbols))
	for _, sym := range r.symbols {
		if ctx.Err() != nil {
			break
		}
		res := r.agent.RunCycle(ctx, sym)
		if res.Err != nil {
			logger.Warnf("[runner] %s cycle stage=%s err=%v", sym, res.Stage, res.Err)
		}
		out = append(out, res)
	}
	return out
}
