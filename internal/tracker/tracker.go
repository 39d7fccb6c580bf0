package tracker

import (
	"context"
	"time"

	"sentrix/internal/types"
)

// Prediction 是一次成交时的信号与意图快照，供外部评估结果。
type Prediction struct {
	ID               string                 `json:"id"`
	Symbol           string                 `json:"symbol"`
	Strategy         string                 `json:"strategy"`
	Signal           types.AggregatedSignal `json:"signal"`
	Intent           types.TradeIntent      `json:"intent"`
	PriceAtExecution float64                `json:"price_at_execution"`
	TxHash           string                 `json:"tx_hash,omitempty"`
	CreatedAt        time.Time              `json:"created_at"`

	OutcomePrice  float64   `json:"outcome_price,omitempty"`
	OutcomeAt     time.Time `json:"outcome_at,omitempty"`
	ReturnPercent float64   `json:"return_percent,omitempty"`
	Resolved      bool      `json:"resolved"`
}

// Tracker 只追加，返回记录 ID。
type Tracker interface {
	Record(ctx context.Context, p Prediction) (string, error)
}

// ReturnPercent is the signed return of a prediction given a later price:
// positive when the price moved in the direction of the intent.
func ReturnPercent(action types.Action, entry, exit float64) float64 {
	if entry <= 0 || exit <= 0 {
		return 0
	}
	change := (exit - entry) / entry * 100
	if action == types.ActionSell {
		return -change
	}
	return change
}
