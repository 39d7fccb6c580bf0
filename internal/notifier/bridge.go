package notifier

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"sentrix/internal/agent"
	"sentrix/internal/executor"
	"sentrix/internal/logger"
	"sentrix/internal/risk"
	"sentrix/internal/types"
)

const (
	bridgeQueueSize   = 32
	errorDedupeWindow = 10 * time.Minute
)

// Bridge 把 agent 与熔断事件转成推送。发送在独立 goroutine 中进行，
// 队列满时丢弃并告警，不阻塞周期。
type Bridge struct {
	n     TextNotifier
	queue chan string
	now   func() time.Time

	mu         sync.Mutex
	lastIntent *types.TradeIntent
	lastErrors map[string]time.Time
}

func NewBridge(n TextNotifier) *Bridge {
	return &Bridge{
		n:          n,
		queue:      make(chan string, bridgeQueueSize),
		now:        time.Now,
		lastErrors: make(map[string]time.Time),
	}
}

// Attach 订阅 agent 与风控事件，返回取消订阅函数。
func (b *Bridge) Attach(a *agent.Agent, m *risk.Manager) func() {
	var unsubs []func()
	if a != nil {
		unsubs = append(unsubs, a.Subscribe(b.HandleAgentEvent))
	}
	if m != nil {
		unsubs = append(unsubs, m.OnBreakerEvent(b.HandleBreakerEvent))
	}
	return func() {
		for _, fn := range unsubs {
			fn()
		}
	}
}

// Run 消费队列直到 ctx 结束。
func (b *Bridge) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case text := <-b.queue:
			if err := b.n.SendText(text); err != nil {
				logger.Warnf("[notifier] send failed: %v", err)
			}
		}
	}
}

func (b *Bridge) enqueue(text string) {
	select {
	case b.queue <- text:
	default:
		logger.Warnf("[notifier] queue full, drop message")
	}
}

func (b *Bridge) HandleAgentEvent(ev agent.Event) {
	switch ev.Kind {
	case agent.EventRisk:
		if ra, ok := ev.Data.(risk.RiskAssessment); ok {
			b.mu.Lock()
			b.lastIntent = ra.AdjustedIntent
			b.mu.Unlock()
		}
	case agent.EventExecution:
		res, ok := ev.Data.(executor.ExecutionResult)
		if !ok {
			return
		}
		b.mu.Lock()
		intent := b.lastIntent
		b.mu.Unlock()
		b.enqueue(ExecutionMessage(ev.Symbol, intent, res).RenderMarkdown())
	case agent.EventError:
		err, ok := ev.Data.(error)
		if !ok || err == nil {
			return
		}
		key := ev.Symbol + "|" + err.Error()
		now := b.now()
		b.mu.Lock()
		last, seen := b.lastErrors[key]
		if seen && now.Sub(last) < errorDedupeWindow {
			b.mu.Unlock()
			return
		}
		b.lastErrors[key] = now
		b.mu.Unlock()
		b.enqueue(Message{
			Icon:      "⚠️",
			Title:     "周期异常 " + strings.ToUpper(ev.Symbol),
			Sections:  []Section{{Fields: []Field{F("error", "%v", err), F("cycle", "%s", ev.CycleID)}}},
			Timestamp: ev.At,
		}.RenderMarkdown())
	}
}

func (b *Bridge) HandleBreakerEvent(ev risk.BreakerEvent) {
	b.enqueue(BreakerMessage(ev).RenderMarkdown())
}

// ExecutionMessage 描述一笔成交。
func ExecutionMessage(symbol string, intent *types.TradeIntent, res executor.ExecutionResult) Message {
	msg := Message{Icon: "✅", Title: "成交 " + strings.ToUpper(symbol), Timestamp: res.ExecutedAt}
	if !res.Success {
		msg.Icon, msg.Title = "❌", "成交失败 "+strings.ToUpper(symbol)
	}
	if intent != nil {
		msg.Sections = append(msg.Sections, Section{Title: "意图", Fields: []Field{
			F("action", "%s %s -> %s", intent.Action, intent.FromToken, intent.ToToken),
			F("size", "%.2f%%", intent.SuggestedSizePercent),
			F("confidence", "%.2f", intent.Confidence),
			F("urgency", "%s (slippage %.1f%%)", intent.Urgency, intent.MaxSlippage*100),
		}})
	}
	msg.Sections = append(msg.Sections, Section{Title: "结果", Fields: []Field{
		F("tx", "%s", res.TxHash),
		F("output", "%s", res.OutputAmount.String()),
		F("error", "%s", res.Error),
	}})
	return msg
}

// BreakerMessage 描述熔断触发或恢复。
func BreakerMessage(ev risk.BreakerEvent) Message {
	if ev.Kind == risk.EventReset {
		how := "manual"
		if ev.Auto {
			how = "auto"
		}
		return Message{
			Icon:      "🟢",
			Title:     "熔断解除",
			Sections:  []Section{{Fields: []Field{F("reset", "%s", how)}}},
			Timestamp: ev.At,
		}
	}
	return Message{
		Icon:  "🛑",
		Title: fmt.Sprintf("熔断触发 %s", ev.Reason),
		Sections: []Section{{Fields: []Field{
			F("detail", "%s", ev.Detail),
			F("reset_at", "%s", ev.ResetAt.UTC().Format(time.RFC3339)),
		}}},
		Timestamp: ev.At,
	}
}
