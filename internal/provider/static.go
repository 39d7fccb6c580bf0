package provider

import (
	"context"
	"sync"
	"time"

	"sentrix/internal/types"
)

// Static 返回预设数据，供 dry-run 与测试使用。
type Static struct {
	name string

	mu    sync.RWMutex
	items []types.RawSentimentItem
	bars  []types.PriceBar
	err   error
}

func NewStatic(name string, items []types.RawSentimentItem, bars []types.PriceBar) *Static {
	return &Static{name: name, items: items, bars: bars}
}

func (s *Static) Name() string    { return s.name }
func (s *Static) Version() string { return "static" }

// Set replaces the data served by Fetch.
func (s *Static) Set(items []types.RawSentimentItem, bars []types.PriceBar) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items, s.bars = items, bars
}

// FailWith makes Fetch and HealthCheck return err until cleared with nil.
func (s *Static) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *Static) HealthCheck(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

func (s *Static) Fetch(ctx context.Context, req Request) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return Result{}, s.err
	}
	items := make([]types.RawSentimentItem, 0, len(s.items))
	for _, it := range s.items {
		if !req.Since.IsZero() && !it.Timestamp.IsZero() && it.Timestamp.Before(req.Since) {
			continue
		}
		items = append(items, it)
	}
	return Result{
		Source:    s.name,
		FetchedAt: time.Now().UTC(),
		Items:     items,
		Bars:      append([]types.PriceBar(nil), s.bars...),
	}, nil
}
