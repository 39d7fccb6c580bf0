package executor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"sentrix/internal/types"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaperConfig 配置模拟撮合。
type PaperConfig struct {
	Holdings []types.Holding
	// FeeBps 按输入价值收取，单位万分之一。
	FeeBps float64
	GasUSD float64
}

// Paper 在内存中模拟兑换并维护一个纸面组合，用于 dry-run。
type Paper struct {
	mu       sync.Mutex
	holdings []types.Holding
	prices   map[string]decimal.Decimal
	feeBps   decimal.Decimal
	gasUSD   decimal.Decimal
	now      func() time.Time
}

func NewPaper(cfg PaperConfig) *Paper {
	p := &Paper{
		holdings: append([]types.Holding(nil), cfg.Holdings...),
		prices:   make(map[string]decimal.Decimal),
		feeBps:   decimal.NewFromFloat(cfg.FeeBps),
		gasUSD:   decimal.NewFromFloat(cfg.GasUSD),
		now:      time.Now,
	}
	for _, h := range p.holdings {
		if h.Balance > 0 && h.ValueUSD > 0 {
			price := decimal.NewFromFloat(h.ValueUSD).Div(decimal.NewFromFloat(h.Balance))
			p.prices[priceKey(h.Symbol)] = price
			p.prices[priceKey(h.Token)] = price
		}
	}
	return p
}

func priceKey(token string) string { return strings.ToUpper(strings.TrimSpace(token)) }

// SetPrice 更新代币美元价格，持仓估值随之刷新。
func (p *Paper) SetPrice(token string, usd float64) {
	if usd <= 0 || strings.TrimSpace(token) == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	price := decimal.NewFromFloat(usd)
	p.prices[priceKey(token)] = price
	for i := range p.holdings {
		h := &p.holdings[i]
		if strings.EqualFold(h.Symbol, token) || strings.EqualFold(h.Token, token) {
			p.prices[priceKey(h.Symbol)] = price
			p.prices[priceKey(h.Token)] = price
		}
	}
	p.revalue()
}

func (p *Paper) priceOf(token string) (decimal.Decimal, bool) {
	price, ok := p.prices[priceKey(token)]
	if ok && price.IsPositive() {
		return price, true
	}
	return decimal.Zero, false
}

func (p *Paper) revalue() {
	for i := range p.holdings {
		h := &p.holdings[i]
		price, ok := p.priceOf(h.Symbol)
		if !ok {
			price, ok = p.priceOf(h.Token)
		}
		if ok {
			h.ValueUSD, _ = decimal.NewFromFloat(h.Balance).Mul(price).Round(6).Float64()
		}
	}
}

func (p *Paper) Portfolio(ctx context.Context) (types.Portfolio, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return types.Portfolio{Holdings: append([]types.Holding(nil), p.holdings...), UpdatedAt: p.now().UTC()}, nil
}

func (p *Paper) Quote(ctx context.Context, req QuoteRequest) (QuoteResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.quote(req), nil
}

func (p *Paper) quote(req QuoteRequest) QuoteResult {
	if !req.Amount.IsPositive() {
		return QuoteResult{Error: "amount must be positive"}
	}
	fromPrice, ok := p.priceOf(req.FromToken)
	if !ok {
		return QuoteResult{Error: fmt.Sprintf("no price for %s", req.FromToken)}
	}
	toPrice, ok := p.priceOf(req.ToToken)
	if !ok {
		return QuoteResult{Error: fmt.Sprintf("no price for %s", req.ToToken)}
	}
	inUSD := req.Amount.Mul(fromPrice)
	fee := inUSD.Mul(p.feeBps).Div(decimal.NewFromInt(10000))
	out := inUSD.Sub(fee).Div(toPrice)
	return QuoteResult{
		Success:         true,
		QuoteID:         uuid.NewString(),
		EstimatedOutput: out.Round(8),
		Fee:             fee.Round(6),
		GasEstimate:     p.gasUSD,
		Route:           fmt.Sprintf("paper:%s->%s", priceKey(req.FromToken), priceKey(req.ToToken)),
	}
}

// Execute 按当前价格成交并移动纸面余额；未批准或余额不足时返回失败结果。
func (p *Paper) Execute(ctx context.Context, req ExecuteRequest) (ExecutionResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now().UTC()
	if !req.Approved {
		return ExecutionResult{Error: "execution not approved", ExecutedAt: now}, nil
	}
	q := p.quote(req.QuoteRequest)
	if !q.Success {
		return ExecutionResult{Error: q.Error, ExecutedAt: now}, nil
	}
	from := p.find(req.FromToken)
	if from < 0 {
		return ExecutionResult{Error: fmt.Sprintf("%s not held", req.FromToken), ExecutedAt: now}, nil
	}
	balance := decimal.NewFromFloat(p.holdings[from].Balance)
	if balance.LessThan(req.Amount) {
		return ExecutionResult{Error: fmt.Sprintf("insufficient %s balance: %s < %s", req.FromToken, balance, req.Amount), ExecutedAt: now}, nil
	}
	p.holdings[from].Balance, _ = balance.Sub(req.Amount).Float64()
	to := p.find(req.ToToken)
	if to < 0 {
		p.holdings = append(p.holdings, types.Holding{
			ChainID: req.ChainID,
			Token:   req.ToToken,
			Symbol:  priceKey(req.ToToken),
		})
		to = len(p.holdings) - 1
	}
	p.holdings[to].Balance, _ = decimal.NewFromFloat(p.holdings[to].Balance).Add(q.EstimatedOutput).Float64()
	p.revalue()
	return ExecutionResult{
		Success:      true,
		TxHash:       "paper-" + uuid.NewString(),
		OutputAmount: q.EstimatedOutput,
		ExecutedAt:   now,
	}, nil
}

func (p *Paper) find(token string) int {
	for i, h := range p.holdings {
		if strings.EqualFold(h.Symbol, token) || strings.EqualFold(h.Token, token) {
			return i
		}
	}
	return -1
}
