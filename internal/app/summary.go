package app

import (
	"fmt"
	"strings"

	"sentrix/internal/config"
)

type StartupSummary struct {
	Agent     AgentSummary
	Providers []string
	Strategy  string
	Executor  string
	Stores    map[string]string
	HTTPAddr  string
	Telegram  bool
}

type AgentSummary struct {
	Symbols     []string
	Interval    string
	AutoExecute bool
	DryRun      bool
	Wallet      string
}

func buildSummary(cfg *config.Config, providers []string) *StartupSummary {
	mode := cfg.Executor.Mode
	if cfg.Agent.DryRun {
		mode = config.ExecutorModePaper + " (dry_run)"
	}
	stores := map[string]string{}
	if cfg.Tracker.Enabled {
		stores["tracker"] = cfg.Tracker.Path
	}
	if cfg.RiskStore.Enabled {
		stores["risk_store"] = cfg.RiskStore.Path
	}
	return &StartupSummary{
		Agent: AgentSummary{
			Symbols:     cfg.Agent.Symbols,
			Interval:    cfg.Agent.Interval,
			AutoExecute: cfg.Agent.AutoExecute,
			DryRun:      cfg.Agent.DryRun,
			Wallet:      cfg.Agent.WalletAddress,
		},
		Providers: providers,
		Strategy:  cfg.Strategy.Name,
		Executor:  mode,
		Stores:    stores,
		HTTPAddr:  cfg.App.HTTPAddr,
		Telegram:  cfg.Notify.Telegram.Enabled,
	}
}

func (s *StartupSummary) String() string {
	var b strings.Builder
	line := strings.Repeat("=", 80)
	title := "启动配置摘要 (STARTUP SUMMARY)"
	fmt.Fprintln(&b, line)
	fmt.Fprintf(&b, "%*s\n", 40+len(title)/2, title)
	fmt.Fprintln(&b, line)

	fmt.Fprintln(&b, "[周期 (AGENT)]")
	fmt.Fprintf(&b, "  监控币种: %s\n", formatList(s.Agent.Symbols))
	fmt.Fprintf(&b, "  周期: %s\n", s.Agent.Interval)
	fmt.Fprintf(&b, "  自动执行: %v  dry_run: %v\n", s.Agent.AutoExecute, s.Agent.DryRun)
	if s.Agent.Wallet != "" {
		fmt.Fprintf(&b, "  钱包: %s\n", s.Agent.Wallet)
	}
	fmt.Fprintln(&b)

	fmt.Fprintln(&b, "[数据源与策略 (PROVIDERS & STRATEGY)]")
	fmt.Fprintf(&b, "  数据源: %s\n", formatList(s.Providers))
	fmt.Fprintf(&b, "  策略: %s\n", s.Strategy)
	fmt.Fprintf(&b, "  执行器: %s\n", s.Executor)
	fmt.Fprintln(&b)

	fmt.Fprintln(&b, "[存储与接口 (STORAGE & API)]")
	if len(s.Stores) == 0 {
		fmt.Fprintln(&b, "  (无持久化)")
	}
	for _, name := range []string{"tracker", "risk_store"} {
		if path, ok := s.Stores[name]; ok {
			fmt.Fprintf(&b, "  %s: %s\n", name, path)
		}
	}
	addr := s.HTTPAddr
	if addr == "" {
		addr = "-"
	}
	fmt.Fprintf(&b, "  HTTP: %s\n", addr)
	fmt.Fprintf(&b, "  Telegram: %v\n", s.Telegram)
	fmt.Fprint(&b, line)
	return b.String()
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}
