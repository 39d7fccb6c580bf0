// Package strategy 定义可插拔的交易策略：把聚合信号与持仓上下文映射为交易意图。
package strategy

import (
	"fmt"
	"time"

	"sentrix/internal/types"
)

// Strategy 是对外暴露的插件接口，通过 Registry 按名称选择。
type Strategy interface {
	Name() string
	Description() string
	Version() string
	// Evaluate 永不返回 error：不交易也是一种结果。
	Evaluate(ctx Context) Outcome
	ValidateConfig(cfg Config) error
	DefaultConfig() Config
}

// Context 是一次评估所需的全部输入。
type Context struct {
	Signal    types.AggregatedSignal
	Portfolio types.Portfolio
	Config    Config
	Now       time.Time
}

type OutcomeKind int

const (
	OutcomeNoTrade OutcomeKind = iota
	OutcomeTrade
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeTrade:
		return "trade"
	default:
		return "no_trade"
	}
}

// Outcome is the tagged result of Evaluate. Intent is set only for
// OutcomeTrade.
type Outcome struct {
	Kind   OutcomeKind
	Intent *types.TradeIntent
	Reason string
}

func (o Outcome) IsTrade() bool {
	return o.Kind == OutcomeTrade && o.Intent != nil
}

func Trade(intent types.TradeIntent) Outcome {
	return Outcome{Kind: OutcomeTrade, Intent: &intent, Reason: intent.Reason}
}

func NoTrade(format string, args ...any) Outcome {
	return Outcome{Kind: OutcomeNoTrade, Reason: fmt.Sprintf(format, args...)}
}
