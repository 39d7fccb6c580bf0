package provider

import (
	"context"
	"errors"
	"time"

	"sentrix/internal/types"
)

var (
	ErrProviderTimeout   = errors.New("provider timed out")
	ErrProviderSuspended = errors.New("provider suspended after repeated failures")
)

// Request 是一次拉取的参数；Provider 可忽略与自己无关的字段。
type Request struct {
	Symbol   string
	Interval string
	Limit    int
	Since    time.Time
}

// Result 是单个数据源的输出，情绪条目与K线可二选一或同时提供。
type Result struct {
	Source    string                   `json:"source"`
	FetchedAt time.Time                `json:"fetched_at"`
	Items     []types.RawSentimentItem `json:"items,omitempty"`
	Bars      []types.PriceBar         `json:"bars,omitempty"`
}

// Provider 是可插拔数据源。
type Provider interface {
	Name() string
	Version() string
	Fetch(ctx context.Context, req Request) (Result, error)
	HealthCheck(ctx context.Context) error
}
