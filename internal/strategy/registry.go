package strategy

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var ErrStrategyNotFound = errors.New("strategy not registered")

// Factory 构造策略实例；Registry 对每个名称最多调用一次。
type Factory func() Strategy

// Info 描述一个已注册策略。
type Info struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`
}

// Registry 维护名称到策略单例的映射，实例在首次 Get 时才创建。
type Registry struct {
	mu        sync.Mutex
	factories map[string]Factory
	instances map[string]Strategy
}

func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		instances: make(map[string]Strategy),
	}
}

// NewDefaultRegistry 预注册内置策略。
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	_ = r.Register(SentimentMomentumName, func() Strategy { return NewSentimentMomentum() })
	_ = r.Register(ConservativeName, func() Strategy { return NewConservative() })
	return r
}

// Register 注册工厂；同名覆盖并丢弃旧实例。
func (r *Registry) Register(name string, f Factory) error {
	key := normalizeName(name)
	if key == "" {
		return fmt.Errorf("strategy name cannot be empty")
	}
	if f == nil {
		return fmt.Errorf("strategy %s: nil factory", key)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[key] = f
	delete(r.instances, key)
	return nil
}

// Get 返回策略单例，必要时惰性创建。
func (r *Registry) Get(name string) (Strategy, error) {
	key := normalizeName(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	if inst, ok := r.instances[key]; ok {
		return inst, nil
	}
	f, ok := r.factories[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrStrategyNotFound, name)
	}
	inst := f()
	if inst == nil {
		return nil, fmt.Errorf("strategy %s: factory returned nil", key)
	}
	r.instances[key] = inst
	return inst, nil
}

func (r *Registry) Has(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.factories[normalizeName(name)]
	return ok
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.factories))
	for name := range r.factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// List describes every registered strategy. Describing a strategy
// instantiates it.
func (r *Registry) List() []Info {
	names := r.Names()
	out := make([]Info, 0, len(names))
	for _, name := range names {
		s, err := r.Get(name)
		if err != nil {
			continue
		}
		out = append(out, Info{Name: name, Description: s.Description(), Version: s.Version()})
	}
	return out
}

// Remove 删除注册项及其实例。
func (r *Registry) Remove(name string) bool {
	key := normalizeName(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[key]; !ok {
		return false
	}
	delete(r.factories, key)
	delete(r.instances, key)
	return true
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
