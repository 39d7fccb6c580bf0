package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"sentrix/internal/logger"
)

// audit 把周期结果按段写入审计日志。
func (a *Agent) audit(res CycleResult) {
	if !logger.AuditEnabled() {
		return
	}
	sections := []logger.AuditSection{{
		Title: "summary",
		Body: fmt.Sprintf("stage=%s strategy=%s started=%s finished=%s error=%s",
			res.Stage, a.StrategyName(), res.StartedAt.Format("15:04:05"), res.FinishedAt.Format("15:04:05"), res.Error),
	}}
	add := func(title string, v any) {
		raw, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			raw = []byte(err.Error())
		}
		sections = append(sections, logger.AuditSection{Title: title, Body: string(raw)})
	}
	if res.Signal != nil {
		add("signal", res.Signal)
	}
	if res.Outcome != nil {
		add("outcome", map[string]any{"kind": res.Outcome.Kind.String(), "reason": res.Outcome.Reason, "intent": res.Outcome.Intent})
	}
	if res.Assessment != nil {
		add("risk", res.Assessment)
	}
	if res.Quote != nil {
		add("quote", res.Quote)
	}
	if res.Execution != nil {
		add("execution", res.Execution)
	}
	logger.Audit("cycle", strings.ToUpper(res.Symbol), res.CycleID, sections...)
}
