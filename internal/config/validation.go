package config

import (
	"fmt"
	"net/url"
	"strings"
)

// validate 对配置进行基础校验。
func validate(c *Config) error {
	if err := c.App.validate(); err != nil {
		return err
	}
	if err := c.Agent.validate(); err != nil {
		return err
	}
	if err := c.validateDomain(); err != nil {
		return err
	}
	if err := c.Providers.validate(); err != nil {
		return err
	}
	if err := c.Executor.validate(); err != nil {
		return err
	}
	if c.Tracker.Enabled && strings.TrimSpace(c.Tracker.Path) == "" {
		return fmt.Errorf("tracker.path cannot be empty when tracker is enabled")
	}
	if c.RiskStore.Enabled && strings.TrimSpace(c.RiskStore.Path) == "" {
		return fmt.Errorf("risk_store.path cannot be empty when risk_store is enabled")
	}
	if err := c.Notify.validate(); err != nil {
		return err
	}
	return nil
}

func (a *AppConfig) validate() error {
	switch a.LogLevel {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("app.log_level must be one of debug/info/warn/error, got %q", a.LogLevel)
	}
	switch a.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("app.log_format must be text or json, got %q", a.LogFormat)
	}
	return nil
}

func (a *AgentConfig) validate() error {
	if len(a.Symbols) == 0 {
		return fmt.Errorf("agent.symbols requires at least one symbol")
	}
	if strings.TrimSpace(a.Interval) == "" {
		return fmt.Errorf("agent.interval cannot be empty")
	}
	if a.OffsetSeconds < 0 {
		return fmt.Errorf("agent.offset_seconds must be >= 0")
	}
	if a.ProviderTimeoutSeconds <= 0 {
		return fmt.Errorf("agent.provider_timeout_seconds must be > 0")
	}
	if a.AutoExecute && !a.DryRun && strings.TrimSpace(a.WalletAddress) == "" {
		return fmt.Errorf("agent.wallet_address is required for live execution")
	}
	return nil
}

func (c *Config) validateDomain() error {
	s := c.Sentiment
	if s.RecencyDecayHours <= 0 {
		return fmt.Errorf("sentiment.recency_decay_hours must be > 0")
	}
	if s.MinDataPoints <= 0 {
		return fmt.Errorf("sentiment.min_data_points must be > 0")
	}
	if s.NormalizationScale <= 0 {
		return fmt.Errorf("sentiment.normalization_scale must be > 0")
	}
	m := c.Momentum
	if m.RSIPeriod <= 0 || m.MACDFast <= 0 || m.MACDSlow <= 0 || m.MACDSignal <= 0 {
		return fmt.Errorf("momentum periods must be > 0")
	}
	if m.MACDFast >= m.MACDSlow {
		return fmt.Errorf("momentum.macd_fast (%d) must be < macd_slow (%d)", m.MACDFast, m.MACDSlow)
	}
	if m.Oversold >= m.Overbought {
		return fmt.Errorf("momentum.oversold must be < overbought")
	}
	g := c.Aggregator
	if g.SentimentWeight < 0 || g.MomentumWeight < 0 || g.SentimentWeight+g.MomentumWeight <= 0 {
		return fmt.Errorf("aggregator weights must be >= 0 with a positive sum")
	}
	if g.MinConfidence < 0 || g.MinConfidence > 1 {
		return fmt.Errorf("aggregator.min_confidence must be within [0,1]")
	}
	if g.BullishThreshold <= 0 || g.BearishThreshold >= 0 {
		return fmt.Errorf("aggregator thresholds must satisfy bearish < 0 < bullish")
	}
	if g.StrongMultiplier < 1 {
		return fmt.Errorf("aggregator.strong_multiplier must be >= 1")
	}
	r := c.Risk
	for name, pct := range map[string]float64{
		"risk.max_position_percent":      r.MaxPositionPercent,
		"risk.max_concentration_percent": r.MaxConcentrationPercent,
		"risk.max_drawdown_percent":      r.MaxDrawdownPercent,
		"risk.daily_loss_limit_percent":  r.DailyLossLimitPercent,
	} {
		if pct <= 0 || pct > 100 {
			return fmt.Errorf("%s must be within (0,100], got %.2f", name, pct)
		}
	}
	if r.MaxPositionSizeUSD <= 0 {
		return fmt.Errorf("risk.max_position_size_usd must be > 0")
	}
	if r.MinConfidence < 0 || r.MinConfidence >= 1 {
		return fmt.Errorf("risk.min_confidence must be within [0,1)")
	}
	if r.MaxTradesPerHour <= 0 {
		return fmt.Errorf("risk.max_trades_per_hour must be > 0")
	}
	if r.KellyFraction < 0 || r.KellyFraction > 1 {
		return fmt.Errorf("risk.kelly_fraction must be within [0,1]")
	}
	if r.ErrorThreshold <= 0 {
		return fmt.Errorf("risk.error_threshold must be > 0")
	}
	if strings.TrimSpace(c.Strategy.Name) == "" {
		return fmt.Errorf("strategy.name cannot be empty")
	}
	return nil
}

func (p *ProvidersConfig) validate() error {
	enabled := 0
	if p.Binance.Enabled {
		enabled++
		if err := validateURL("providers.binance.rest_base_url", p.Binance.RESTBaseURL); err != nil {
			return err
		}
	}
	seen := make(map[string]bool, len(p.Feeds))
	for _, feed := range p.Feeds {
		key := strings.ToLower(feed.Name)
		if seen[key] {
			return fmt.Errorf("providers.feeds contains duplicate name %q", feed.Name)
		}
		seen[key] = true
		if feed.Disabled {
			continue
		}
		enabled++
		if err := validateURL("providers.feeds."+feed.Name+".url", feed.URL); err != nil {
			return err
		}
		if strings.TrimSpace(feed.ItemsPath) == "" {
			return fmt.Errorf("providers.feeds.%s.items_path cannot be empty", feed.Name)
		}
	}
	if enabled == 0 {
		return fmt.Errorf("providers requires at least one enabled source")
	}
	if p.FailureThreshold < 0 {
		return fmt.Errorf("providers.failure_threshold must be >= 0")
	}
	return nil
}

func (e *ExecutorConfig) validate() error {
	switch e.Mode {
	case ExecutorModePaper:
		for _, h := range e.Paper.Holdings {
			if h.Symbol == "" {
				return fmt.Errorf("executor.paper.holdings entry without symbol")
			}
			if h.Balance < 0 || h.ValueUSD < 0 {
				return fmt.Errorf("executor.paper.holdings.%s must not be negative", h.Symbol)
			}
		}
	case ExecutorModeHTTP:
		if err := validateURL("executor.base_url", e.BaseURL); err != nil {
			return err
		}
	default:
		return fmt.Errorf("executor.mode must be %s or %s, got %q", ExecutorModeHTTP, ExecutorModePaper, e.Mode)
	}
	return nil
}

func (n *NotifyConfig) validate() error {
	if !n.Telegram.Enabled {
		return nil
	}
	if strings.TrimSpace(n.Telegram.BotToken) == "" || strings.TrimSpace(n.Telegram.ChatID) == "" {
		return fmt.Errorf("notify.telegram requires bot_token and chat_id when enabled")
	}
	return nil
}

func validateURL(field, raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("%s cannot be empty", field)
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%s is not a valid url: %q", field, raw)
	}
	return nil
}
