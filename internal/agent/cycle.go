package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"sentrix/internal/executor"
	"sentrix/internal/logger"
	symbolpkg "sentrix/internal/pkg/symbol"
	"sentrix/internal/provider"
	"sentrix/internal/risk"
	"sentrix/internal/strategy"
	"sentrix/internal/tracker"
	"sentrix/internal/types"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Stage 标记周期停在哪一步；除 failed/busy 外都是预期内的结果。
type Stage string

const (
	StageNoTrade         Stage = "no_trade"
	StageRejected        Stage = "rejected"
	StageBreakerOpen     Stage = "breaker_open"
	StageQuoteFailed     Stage = "quote_failed"
	StageQuoted          Stage = "quoted"
	StageExecuted        Stage = "executed"
	StageExecutionFailed Stage = "execution_failed"
	StageFailed          Stage = "failed"
	StageBusy            Stage = "busy"
)

// CycleResult 携带周期在停止前产生的全部中间结果。
type CycleResult struct {
	CycleID      string                    `json:"cycle_id"`
	Symbol       string                    `json:"symbol"`
	Stage        Stage                     `json:"stage"`
	Signal       *types.AggregatedSignal   `json:"signal,omitempty"`
	Outcome      *strategy.Outcome         `json:"outcome,omitempty"`
	Assessment   *risk.RiskAssessment      `json:"assessment,omitempty"`
	Quote        *executor.QuoteResult     `json:"quote,omitempty"`
	Execution    *executor.ExecutionResult `json:"execution,omitempty"`
	PredictionID string                    `json:"prediction_id,omitempty"`
	Err          error                     `json:"-"`
	Error        string                    `json:"error,omitempty"`
	StartedAt    time.Time                 `json:"started_at"`
	FinishedAt   time.Time                 `json:"finished_at"`
}

// Decision 是 Decide 的输出：策略结论，以及产生交易意图时的风控评估。
type Decision struct {
	Outcome    strategy.Outcome     `json:"outcome"`
	Assessment *risk.RiskAssessment `json:"assessment,omitempty"`
	Portfolio  types.Portfolio      `json:"portfolio"`
}

// Analyze 拉取数据并生成聚合信号。数据源失败降级为空结果并计入熔断错误计数。
func (a *Agent) Analyze(ctx context.Context, symbol string) (types.AggregatedSignal, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return types.AggregatedSignal{}, fmt.Errorf("symbol is required")
	}
	a.advance(PhaseMonitor)
	cycleID := a.State().CycleID
	now := a.now()

	batch, err := a.providers.FetchAll(ctx, provider.Request{
		Symbol:   symbol,
		Interval: a.barInterval,
		Since:    now.Add(-a.newsLookback),
	})
	if err != nil {
		a.risk.RecordError(err)
		a.fail(symbol, cycleID, fmt.Errorf("fetch %s: %w", symbol, err))
		return types.AggregatedSignal{}, err
	}
	if batch.Failed() {
		for _, fe := range batch.Errors {
			a.logf(LogWarn, symbol, cycleID, "provider %s degraded to empty result: %v", fe.Provider, fe.Err)
		}
		a.risk.RecordError(batch.Errors[0])
	} else {
		a.risk.RecordSuccess()
	}

	items := batch.Items()
	sent := a.analyzer.AnalyzeAt(items, now)

	var mom *types.MomentumSignal
	if bars := batch.Bars(); len(bars) > 0 {
		m, err := a.calculator.Calculate(bars)
		if err != nil {
			a.logf(LogWarn, symbol, cycleID, "momentum skipped: %v", err)
		} else {
			mom = &m
			if a.prices != nil && m.LastPrice > 0 {
				a.prices.SetPrice(symbolpkg.Asset(symbol), m.LastPrice)
			}
		}
	}

	sig := a.aggregator.Aggregate(symbol, sent, mom)
	a.update(func(s *State) { s.LastSignal = &sig })
	a.emit(EventSignal, symbol, cycleID, sig)
	a.logf(LogInfo, symbol, cycleID, "signal score=%.2f confidence=%.2f rec=%s items=%d momentum=%v",
		sig.OverallScore, sig.OverallConfidence, sig.Recommendation, len(items), mom != nil)
	return sig, nil
}

// Decide 评估策略并对交易意图做风控评估。
func (a *Agent) Decide(ctx context.Context, sig types.AggregatedSignal) (Decision, error) {
	a.advance(PhaseDecide)
	cycleID := a.State().CycleID
	symbol := sig.Symbol
	now := a.now()

	pf, err := a.fetchPortfolio(ctx)
	if err != nil {
		a.risk.RecordError(err)
		a.fail(symbol, cycleID, err)
		return Decision{}, err
	}
	a.risk.RecordSnapshot(ctx, risk.PortfolioSnapshot{Timestamp: now, ValueUSD: pf.TotalValueUSD()})
	a.update(func(s *State) { s.Portfolio = &pf })

	a.mu.RLock()
	name, cfg := a.state.Strategy, a.strategyCfg
	a.mu.RUnlock()
	strat, err := a.strategies.Get(name)
	if err != nil {
		a.fail(symbol, cycleID, err)
		return Decision{}, err
	}

	outcome := strat.Evaluate(strategy.Context{Signal: sig, Portfolio: pf, Config: cfg, Now: now})
	a.emit(EventDecision, symbol, cycleID, outcome)
	dec := Decision{Outcome: outcome, Portfolio: pf}
	if !outcome.IsTrade() {
		a.update(func(s *State) { s.LastIntent = nil; s.LastAssessment = nil })
		a.logf(LogInfo, symbol, cycleID, "%s: no trade (%s)", name, outcome.Reason)
		return dec, nil
	}
	intent := *outcome.Intent
	a.update(func(s *State) { s.LastIntent = &intent })
	a.logf(LogInfo, symbol, cycleID, "%s: %s %s->%s size=%.2f%% urgency=%s",
		name, intent.Action, intent.FromToken, intent.ToToken, intent.SuggestedSizePercent, intent.Urgency)

	assessment := a.risk.Assess(intent, pf, now)
	dec.Assessment = &assessment
	a.update(func(s *State) { s.LastAssessment = &assessment })
	a.emit(EventRisk, symbol, cycleID, assessment)
	if assessment.Approved {
		a.logf(LogInfo, symbol, cycleID, "risk %s size=$%.2f score=%.1f", assessment.Status, assessment.SizeUSD, assessment.RiskScore)
	} else {
		a.logf(LogWarn, symbol, cycleID, "risk rejected: %s", strings.Join(assessment.Reasons, "; "))
	}
	return dec, nil
}

// RunCycle 执行一轮完整周期。预期内的"不行动"以 Stage 表达，不返回 error；
// 已有周期在运行时立即返回 StageBusy。
func (a *Agent) RunCycle(ctx context.Context, symbol string) CycleResult {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	res := CycleResult{Symbol: symbol, StartedAt: a.now().UTC()}
	if !a.cycleMu.TryLock() {
		res.Stage = StageBusy
		res.Err = ErrCycleInProgress
		res.Error = ErrCycleInProgress.Error()
		res.FinishedAt = a.now().UTC()
		return res
	}
	defer a.cycleMu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	res.CycleID = uuid.NewString()
	a.begin(symbol, res.CycleID)
	a.risk.Check(a.now())

	a.runStages(ctx, &res)

	a.advance(PhaseDone)
	res.FinishedAt = a.now().UTC()
	if res.Err != nil {
		res.Error = res.Err.Error()
	}
	a.update(func(s *State) {
		s.Cycles++
		last := res
		s.LastCycle = &last
	})
	a.logf(LogInfo, symbol, res.CycleID, "cycle finished stage=%s in %s", res.Stage, res.FinishedAt.Sub(res.StartedAt).Truncate(time.Millisecond))
	a.audit(res)
	return res
}

func (a *Agent) runStages(ctx context.Context, res *CycleResult) {
	sig, err := a.Analyze(ctx, res.Symbol)
	if err != nil {
		res.Stage, res.Err = StageFailed, err
		return
	}
	res.Signal = &sig

	dec, err := a.Decide(ctx, sig)
	if err != nil {
		res.Stage, res.Err = StageFailed, err
		return
	}
	res.Outcome = &dec.Outcome
	if !dec.Outcome.IsTrade() {
		res.Stage = StageNoTrade
		return
	}
	res.Assessment = dec.Assessment
	if !dec.Assessment.Approved {
		res.Stage = StageRejected
		if dec.Assessment.Breaker.Triggered {
			res.Stage = StageBreakerOpen
		}
		return
	}
	intent := *dec.Assessment.AdjustedIntent

	a.advance(PhaseQuote)
	req, err := buildQuoteRequest(intent, dec.Assessment.SizeUSD, dec.Portfolio)
	if err != nil {
		a.fail(res.Symbol, res.CycleID, err)
		res.Stage, res.Err = StageQuoteFailed, err
		return
	}
	quote, err := a.exec.Quote(ctx, req)
	if err == nil {
		res.Quote = &quote
		if !quote.Success {
			err = fmt.Errorf("quote rejected: %s", quote.Error)
		}
	}
	if err != nil {
		a.risk.RecordError(err)
		a.fail(res.Symbol, res.CycleID, err)
		res.Stage, res.Err = StageQuoteFailed, err
		return
	}
	a.risk.RecordSuccess()
	a.update(func(s *State) { s.LastQuote = &quote })
	a.emit(EventQuote, res.Symbol, res.CycleID, quote)
	a.logf(LogInfo, res.Symbol, res.CycleID, "quote %s %s -> %s %s route=%s",
		req.Amount.String(), req.FromToken, quote.EstimatedOutput.String(), req.ToToken, quote.Route)

	a.mu.RLock()
	auto := a.autoExecute
	a.mu.RUnlock()
	if !auto {
		res.Stage = StageQuoted
		return
	}

	a.advance(PhaseExecute)
	exec, err := a.exec.Execute(ctx, executor.ExecuteRequest{
		QuoteRequest:  req,
		QuoteID:       quote.QuoteID,
		WalletAddress: a.wallet,
		Approved:      true,
	})
	if err == nil && !exec.Success {
		err = fmt.Errorf("execution failed: %s", exec.Error)
	}
	if exec.ExecutedAt.IsZero() {
		exec.ExecutedAt = a.now().UTC()
	}
	res.Execution = &exec
	a.update(func(s *State) { s.LastExecution = &exec })
	a.emit(EventExecution, res.Symbol, res.CycleID, exec)
	a.risk.RecordTrade(ctx, risk.TradeRecord{
		ID:        uuid.NewString(),
		Timestamp: exec.ExecutedAt,
		Symbol:    intent.Symbol,
		Action:    intent.Action,
		SizeUSD:   dec.Assessment.SizeUSD,
		Success:   err == nil,
		TxHash:    exec.TxHash,
	})
	if err != nil {
		a.risk.RecordError(err)
		a.fail(res.Symbol, res.CycleID, err)
		res.Stage, res.Err = StageExecutionFailed, err
		return
	}
	a.risk.RecordSuccess()
	res.Stage = StageExecuted
	a.logf(LogInfo, res.Symbol, res.CycleID, "executed tx=%s output=%s", exec.TxHash, exec.OutputAmount.String())

	if pf, err := a.fetchPortfolio(ctx); err == nil {
		a.risk.RecordSnapshot(ctx, risk.PortfolioSnapshot{Timestamp: exec.ExecutedAt, ValueUSD: pf.TotalValueUSD()})
		a.update(func(s *State) { s.Portfolio = &pf })
	} else {
		logger.Warnf("[agent] refresh portfolio after execution failed: %v", err)
	}
	price := executionPrice(sig, intent, req, dec.Assessment.SizeUSD, exec, dec.Portfolio)
	res.PredictionID = a.recordPrediction(ctx, sig, intent, price, exec)
}

func (a *Agent) recordPrediction(ctx context.Context, sig types.AggregatedSignal, intent types.TradeIntent, price float64, exec executor.ExecutionResult) string {
	if a.tracker == nil {
		return ""
	}
	id, err := a.tracker.Record(ctx, tracker.Prediction{
		Symbol:           sig.Symbol,
		Strategy:         a.StrategyName(),
		Signal:           sig,
		Intent:           intent,
		PriceAtExecution: price,
		TxHash:           exec.TxHash,
		CreatedAt:        exec.ExecutedAt,
	})
	if err != nil {
		a.logf(LogWarn, sig.Symbol, a.State().CycleID, "record prediction failed: %v", err)
		return ""
	}
	return id
}

// executionPrice 返回风险代币的成交价：优先取 K 线收盘价，其次由成交数量反推，
// 最后用执行前持仓的 ValueUSD/Balance。
func executionPrice(sig types.AggregatedSignal, intent types.TradeIntent, req executor.QuoteRequest, sizeUSD float64, exec executor.ExecutionResult, pf types.Portfolio) float64 {
	if sig.Momentum != nil && sig.Momentum.LastPrice > 0 {
		return sig.Momentum.LastPrice
	}
	riskToken := intent.ToToken
	switch intent.Action {
	case types.ActionBuy:
		if exec.OutputAmount.IsPositive() && sizeUSD > 0 {
			return decimal.NewFromFloat(sizeUSD).Div(exec.OutputAmount).InexactFloat64()
		}
	case types.ActionSell:
		riskToken = intent.FromToken
		if req.Amount.IsPositive() && exec.OutputAmount.IsPositive() {
			return exec.OutputAmount.Div(req.Amount).InexactFloat64()
		}
	}
	if h, ok := pf.Find(riskToken); ok && h.Balance > 0 {
		return h.ValueUSD / h.Balance
	}
	return 0
}

func (a *Agent) fetchPortfolio(ctx context.Context) (types.Portfolio, error) {
	if a.portfolio == nil {
		return types.Portfolio{}, ErrNoPortfolio
	}
	pf, err := a.portfolio.Portfolio(ctx)
	if err != nil {
		return types.Portfolio{}, fmt.Errorf("load portfolio: %w", err)
	}
	return pf, nil
}

func (a *Agent) fail(symbol, cycleID string, err error) {
	a.emit(EventError, symbol, cycleID, err)
	a.logf(LogError, symbol, cycleID, "%v", err)
}

// buildQuoteRequest 把美元仓位换算成源代币数量：balance * sizeUSD / valueUSD。
func buildQuoteRequest(intent types.TradeIntent, sizeUSD float64, pf types.Portfolio) (executor.QuoteRequest, error) {
	h, ok := pf.Find(intent.FromToken)
	if !ok {
		return executor.QuoteRequest{}, fmt.Errorf("source token %s not held", intent.FromToken)
	}
	if h.ValueUSD <= 0 || h.Balance <= 0 {
		return executor.QuoteRequest{}, fmt.Errorf("source token %s has no value", intent.FromToken)
	}
	if sizeUSD <= 0 {
		return executor.QuoteRequest{}, errors.New("trade size is zero")
	}
	amount := decimal.NewFromFloat(h.Balance).
		Mul(decimal.NewFromFloat(sizeUSD)).
		Div(decimal.NewFromFloat(h.ValueUSD)).
		Round(8)
	if balance := decimal.NewFromFloat(h.Balance); amount.GreaterThan(balance) {
		amount = balance
	}
	return executor.QuoteRequest{
		FromToken: intent.FromToken,
		ToToken:   intent.ToToken,
		ChainID:   intent.ChainID,
		Amount:    amount,
		Slippage:  intent.MaxSlippage,
	}, nil
}
