package executor

import (
	"context"
	"time"

	"sentrix/internal/types"

	"github.com/shopspring/decimal"
)

// QuoteRequest 描述一次兑换询价，Amount 以源代币数量计。
type QuoteRequest struct {
	FromToken string          `json:"fromToken"`
	ToToken   string          `json:"toToken"`
	ChainID   int64           `json:"chainId"`
	Amount    decimal.Decimal `json:"amount"`
	Slippage  float64         `json:"slippage"`
}

// QuoteResult 是询价结果；Success=false 时 Error 给出原因。
type QuoteResult struct {
	Success         bool            `json:"success"`
	QuoteID         string          `json:"quote_id,omitempty"`
	EstimatedOutput decimal.Decimal `json:"estimated_output"`
	Fee             decimal.Decimal `json:"fee"`
	GasEstimate     decimal.Decimal `json:"gas_estimate"`
	Route           string          `json:"route,omitempty"`
	Error           string          `json:"error,omitempty"`
}

// ExecuteRequest 在询价参数之上附带钱包地址与显式批准标记。
type ExecuteRequest struct {
	QuoteRequest
	QuoteID       string `json:"quoteId,omitempty"`
	WalletAddress string `json:"walletAddress"`
	Approved      bool   `json:"approved"`
}

// ExecutionResult 是成交结果。
type ExecutionResult struct {
	Success      bool            `json:"success"`
	TxHash       string          `json:"tx_hash,omitempty"`
	OutputAmount decimal.Decimal `json:"output_amount"`
	Error        string          `json:"error,omitempty"`
	ExecutedAt   time.Time       `json:"executed_at"`
}

// Executor 是外部兑换服务。传输层故障返回 error，业务失败体现在结果的 Success 字段。
type Executor interface {
	Quote(ctx context.Context, req QuoteRequest) (QuoteResult, error)
	Execute(ctx context.Context, req ExecuteRequest) (ExecutionResult, error)
}

// PortfolioSource supplies the current holdings of a wallet.
type PortfolioSource interface {
	Portfolio(ctx context.Context) (types.Portfolio, error)
}
