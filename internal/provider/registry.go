package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"sentrix/internal/logger"
	"sentrix/internal/pkg/circuit"
	"sentrix/internal/types"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultTimeout  = 10 * time.Second
	DefaultCooldown = 5 * time.Minute
)

// Options 控制 FetchAll 的超时与降级行为。
// FailureThreshold>0 时，每个数据源连续失败该次数后在 Cooldown 内被跳过。
type Options struct {
	Timeout          time.Duration
	ContinueOnError  bool
	FailureThreshold int
	Cooldown         time.Duration
}

// FetchError 记录单个数据源的失败。
type FetchError struct {
	Provider string
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Batch 汇总一次 FetchAll 的结果；失败的数据源以空 Result 占位。
type Batch struct {
	Results []Result
	Errors  []*FetchError
}

// Items concatenates the sentiment items of every result.
func (b Batch) Items() []types.RawSentimentItem {
	var out []types.RawSentimentItem
	for _, r := range b.Results {
		out = append(out, r.Items...)
	}
	return out
}

// Bars returns the longest bar series in the batch.
func (b Batch) Bars() []types.PriceBar {
	var best []types.PriceBar
	for _, r := range b.Results {
		if len(r.Bars) > len(best) {
			best = r.Bars
		}
	}
	return best
}

// Failed reports whether any provider failed.
func (b Batch) Failed() bool { return len(b.Errors) > 0 }

// Registry 保存已注册的数据源并负责并发拉取。
type Registry struct {
	mu        sync.RWMutex
	providers []Provider
	breakers  map[string]*circuit.CircuitBreaker
	opts      Options
	now       func() time.Time
}

func NewRegistry(opts Options) *Registry {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.FailureThreshold > 0 && opts.Cooldown <= 0 {
		opts.Cooldown = DefaultCooldown
	}
	return &Registry{opts: opts, now: time.Now, breakers: make(map[string]*circuit.CircuitBreaker)}
}

func (r *Registry) breakerFor(name string) *circuit.CircuitBreaker {
	if r.opts.FailureThreshold <= 0 {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.breakers[strings.ToLower(name)]
}

// Suspended 返回当前被熔断跳过的数据源。
func (r *Registry) Suspended() []string {
	var out []string
	for _, p := range r.Providers() {
		if cb := r.breakerFor(p.Name()); cb != nil && cb.State() == circuit.StateOpen {
			out = append(out, p.Name())
		}
	}
	return out
}

// Register 追加数据源，名称重复时报错。
func (r *Registry) Register(p Provider) error {
	if p == nil {
		return fmt.Errorf("provider is nil")
	}
	name := strings.TrimSpace(p.Name())
	if name == "" {
		return fmt.Errorf("provider name cannot be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.providers {
		if strings.EqualFold(existing.Name(), name) {
			return fmt.Errorf("provider %s already registered", name)
		}
	}
	r.providers = append(r.providers, p)
	if r.opts.FailureThreshold > 0 {
		cb := circuit.NewCircuitBreaker(name, r.opts.FailureThreshold, r.opts.Cooldown)
		cb.SetClock(func() time.Time { return r.now() })
		r.breakers[strings.ToLower(name)] = cb
	}
	return nil
}

func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, p := range r.providers {
		if strings.EqualFold(p.Name(), name) {
			r.providers = append(r.providers[:i:i], r.providers[i+1:]...)
			delete(r.breakers, strings.ToLower(name))
			return true
		}
	}
	return false
}

func (r *Registry) Providers() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Provider(nil), r.providers...)
}

// Names returns provider names in registration order.
func (r *Registry) Names() []string {
	ps := r.Providers()
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.Name())
	}
	return out
}

// FetchAll 并发拉取所有数据源，每个数据源单独超时。ContinueOnError 时失败只记录，
// 否则第一个失败会取消其余请求并返回错误。
func (r *Registry) FetchAll(ctx context.Context, req Request) (Batch, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	providers := r.Providers()
	results := make([]Result, len(providers))
	var (
		errMu sync.Mutex
		fails []*FetchError
	)
	group, groupCtx := errgroup.WithContext(ctx)
	for i, p := range providers {
		i, p := i, p
		group.Go(func() error {
			cb := r.breakerFor(p.Name())
			var (
				res Result
				err error
			)
			if cb != nil && !cb.Allow() {
				err = ErrProviderSuspended
			} else {
				res, err = r.fetchOne(groupCtx, p, req)
				if cb != nil {
					switch {
					case groupCtx.Err() != nil:
						cb.Abandon()
					case err != nil:
						cb.RecordFailure()
					default:
						cb.RecordSuccess()
					}
				}
			}
			if err == nil {
				if res.Source == "" {
					res.Source = p.Name()
				}
				if res.FetchedAt.IsZero() {
					res.FetchedAt = r.now()
				}
				results[i] = res
				return nil
			}
			fe := &FetchError{Provider: p.Name(), Err: err}
			results[i] = Result{Source: p.Name(), FetchedAt: r.now()}
			errMu.Lock()
			fails = append(fails, fe)
			errMu.Unlock()
			if r.opts.ContinueOnError {
				return nil
			}
			return fe
		})
	}
	err := group.Wait()
	sort.SliceStable(fails, func(a, b int) bool { return fails[a].Provider < fails[b].Provider })
	for _, fe := range fails {
		logger.Warnf("[provider] %s fetch %s failed: %v", fe.Provider, req.Symbol, fe.Err)
	}
	return Batch{Results: results, Errors: fails}, err
}

// fetchOne 让单次拉取与超时赛跑；超时后迟到的结果被丢弃。
func (r *Registry) fetchOne(ctx context.Context, p Provider, req Request) (Result, error) {
	runCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	type outcome struct {
		res Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := p.Fetch(runCtx, req)
		done <- outcome{res: res, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return Result{}, fmt.Errorf("%w after %s: %v", ErrProviderTimeout, r.opts.Timeout, out.err)
		}
		return out.res, out.err
	case <-runCtx.Done():
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return Result{}, fmt.Errorf("%w after %s", ErrProviderTimeout, r.opts.Timeout)
	}
}

// HealthCheckAll 检查所有数据源，返回失败的名称与原因。
func (r *Registry) HealthCheckAll(ctx context.Context) map[string]error {
	providers := r.Providers()
	out := make(map[string]error)
	var mu sync.Mutex
	var group errgroup.Group
	for _, p := range providers {
		p := p
		group.Go(func() error {
			runCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
			defer cancel()
			if err := p.HealthCheck(runCtx); err != nil {
				mu.Lock()
				out[p.Name()] = err
				mu.Unlock()
			}
			return nil
		})
	}
	_ = group.Wait()
	return out
}
