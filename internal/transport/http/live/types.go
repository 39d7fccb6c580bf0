package livehttp

import (
	"context"

	"sentrix/internal/agent"
	"sentrix/internal/risk"
	"sentrix/internal/strategy"
	"sentrix/internal/tracker"
)

// AgentAPI 是 HTTP 层对 agent 的全部依赖。
type AgentAPI interface {
	State() agent.State
	RunCycle(ctx context.Context, symbol string) agent.CycleResult
	StrategyName() string
	StrategyConfig() strategy.Config
	SetStrategy(name string, cfg *strategy.Config) error
	SetAutoExecute(on bool)
	Log(limit int) []agent.LogEntry
	Subscribe(fn agent.Handler) func()
}

type BreakerControl interface {
	State() risk.BreakerState
	Trip(detail string) risk.BreakerState
	Reset() risk.BreakerState
}

type StrategyCatalog interface {
	List() []strategy.Info
	Get(name string) (strategy.Strategy, error)
}

// HealthChecker 的 HealthCheckAll 只返回失败的数据源；Suspended 列出熔断中的数据源。
type HealthChecker interface {
	Names() []string
	Suspended() []string
	HealthCheckAll(ctx context.Context) map[string]error
}

// PredictionSource 可选，未配置 tracker 时 /predictions 返回 503。
type PredictionSource interface {
	Recent(ctx context.Context, symbol string, limit int) ([]tracker.Prediction, error)
}

type tripRequest struct {
	Detail string `json:"detail"`
}

type strategyRequest struct {
	Name   string         `json:"name"`
	Params map[string]any `json:"params,omitempty"`
}

type autoExecuteRequest struct {
	Enabled *bool `json:"enabled"`
}

type strategyResponse struct {
	Active     string          `json:"active"`
	Config     strategy.Config `json:"config"`
	Strategies []strategy.Info `json:"strategies"`
}

type healthResponse struct {
	Status    string            `json:"status"`
	Providers map[string]string `json:"providers"`
	Suspended []string          `json:"suspended,omitempty"`
}
