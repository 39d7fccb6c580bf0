package config

import (
	"fmt"
	"strings"

	"sentrix/internal/momentum"
	"sentrix/internal/risk"
	"sentrix/internal/sentiment"
	"sentrix/internal/signal"
)

// 默认值常量
const (
	defaultAppEnv             = "dev"
	defaultAppLogLevel        = "info"
	defaultAppLogFormat       = "text"
	defaultAppHTTPAddr        = ":9991"
	defaultAppLogPath         = "data/logs/sentrix.log"
	defaultAppAuditPath       = "data/logs/sentrix-audit.log"
	defaultAgentSymbol        = "ETH"
	defaultAgentInterval      = "1h"
	defaultAgentOffset        = 10
	defaultProviderTimeout    = 10
	defaultNewsLookbackHours  = 48
	defaultStrategyName       = "sentiment_momentum"
	defaultBinanceREST        = "https://api.binance.com"
	defaultBinanceInterval    = "1h"
	defaultBinanceLimit       = 72
	defaultBinanceQuote       = "USDT"
	defaultBinanceTimeout     = 15
	defaultFeedTimeout        = 15
	defaultProviderFailures   = 3
	defaultProviderCooldown   = 300
	defaultFeedRate           = 1.0
	defaultExecutorMode       = ExecutorModePaper
	defaultExecutorTimeout    = 20
	defaultPaperFeeBps        = 30
	defaultPaperGasUSD        = 0.5
	defaultTrackerPath        = "data/db/predictions.db"
	defaultRiskStorePath      = "data/db/risk.db"
	defaultPaperStableBalance = 1000
)

// seedDomainDefaults 预填各计算组件的默认参数，解码时只覆盖文件中出现的键。
func seedDomainDefaults(c *Config) {
	c.Sentiment = sentiment.DefaultConfig()
	c.Momentum = momentum.DefaultConfig()
	c.Aggregator = signal.DefaultConfig()
	c.Risk = risk.DefaultConfig()
}

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Agent.applyDefaults(keys)
	c.Strategy.applyDefaults(keys)
	c.Providers.applyDefaults(keys)
	c.Executor.applyDefaults(keys)
	c.Tracker.applyDefaults(keys, "tracker", defaultTrackerPath)
	c.RiskStore.applyDefaults(keys, "risk_store", defaultRiskStorePath)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.log_format", &a.LogFormat, defaultAppLogFormat),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
		stringFieldDefault("app.audit_log_path", &a.AuditLogPath, defaultAppAuditPath),
	)
	a.LogLevel = strings.ToLower(strings.TrimSpace(a.LogLevel))
	a.LogFormat = strings.ToLower(strings.TrimSpace(a.LogFormat))
}

func (a *AgentConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("agent.interval", &a.Interval, defaultAgentInterval),
		boolFieldDefault("agent.run_immediately", &a.RunImmediately, true),
		boolFieldDefault("agent.auto_execute", &a.AutoExecute, true),
		boolFieldDefault("agent.dry_run", &a.DryRun, true),
		boolFieldDefault("agent.continue_on_error", &a.ContinueOnError, true),
		fieldDefault{
			key:   "agent.offset_seconds",
			need:  func() bool { return a.OffsetSeconds == 0 },
			apply: func() { a.OffsetSeconds = defaultAgentOffset },
		},
		fieldDefault{
			key:   "agent.provider_timeout_seconds",
			need:  func() bool { return a.ProviderTimeoutSeconds <= 0 },
			apply: func() { a.ProviderTimeoutSeconds = defaultProviderTimeout },
		},
		fieldDefault{
			key:   "agent.news_lookback_hours",
			need:  func() bool { return a.NewsLookbackHours <= 0 },
			apply: func() { a.NewsLookbackHours = defaultNewsLookbackHours },
		},
	)
	a.Symbols = normalizeSymbolList(a.Symbols)
	if len(a.Symbols) == 0 {
		a.Symbols = []string{defaultAgentSymbol}
	}
}

func (s *StrategyConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("strategy.name", &s.Name, defaultStrategyName),
	)
	s.Name = strings.ToLower(strings.TrimSpace(s.Name))
}

func (p *ProvidersConfig) applyDefaults(keys keySet) {
	if p == nil {
		return
	}
	b := &p.Binance
	applyFieldDefaults(keys,
		boolFieldDefault("providers.binance.enabled", &b.Enabled, true),
		stringFieldDefault("providers.binance.rest_base_url", &b.RESTBaseURL, defaultBinanceREST),
		stringFieldDefault("providers.binance.interval", &b.Interval, defaultBinanceInterval),
		stringFieldDefault("providers.binance.quote", &b.Quote, defaultBinanceQuote),
		fieldDefault{
			key:   "providers.binance.limit",
			need:  func() bool { return b.Limit <= 0 },
			apply: func() { b.Limit = defaultBinanceLimit },
		},
		fieldDefault{
			key:   "providers.binance.timeout_seconds",
			need:  func() bool { return b.TimeoutSeconds <= 0 },
			apply: func() { b.TimeoutSeconds = defaultBinanceTimeout },
		},
		fieldDefault{
			key:   "providers.failure_threshold",
			apply: func() { p.FailureThreshold = defaultProviderFailures },
		},
		fieldDefault{
			key:   "providers.cooldown_seconds",
			need:  func() bool { return p.CooldownSeconds <= 0 },
			apply: func() { p.CooldownSeconds = defaultProviderCooldown },
		},
	)
	b.Quote = strings.ToUpper(strings.TrimSpace(b.Quote))
	for i := range p.Feeds {
		feed := &p.Feeds[i]
		feed.Name = strings.TrimSpace(feed.Name)
		if feed.Name == "" {
			feed.Name = fmt.Sprintf("feed_%d", i)
		}
		if strings.TrimSpace(feed.Source) == "" {
			feed.Source = feed.Name
		}
		feed.Source = strings.ToLower(strings.TrimSpace(feed.Source))
		if feed.TimeoutSeconds <= 0 {
			feed.TimeoutSeconds = defaultFeedTimeout
		}
		if feed.RequestsPerSecond <= 0 {
			feed.RequestsPerSecond = defaultFeedRate
		}
		if feed.Burst <= 0 {
			feed.Burst = 1
		}
	}
}

func (e *ExecutorConfig) applyDefaults(keys keySet) {
	if e == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("executor.mode", &e.Mode, defaultExecutorMode),
		fieldDefault{
			key:   "executor.timeout_seconds",
			need:  func() bool { return e.TimeoutSeconds <= 0 },
			apply: func() { e.TimeoutSeconds = defaultExecutorTimeout },
		},
		fieldDefault{
			key:   "executor.paper.fee_bps",
			need:  func() bool { return e.Paper.FeeBps <= 0 },
			apply: func() { e.Paper.FeeBps = defaultPaperFeeBps },
		},
		fieldDefault{
			key:   "executor.paper.gas_usd",
			need:  func() bool { return e.Paper.GasUSD <= 0 },
			apply: func() { e.Paper.GasUSD = defaultPaperGasUSD },
		},
		fieldDefault{
			key:  "executor.paper.holdings",
			need: func() bool { return len(e.Paper.Holdings) == 0 },
			apply: func() {
				e.Paper.Holdings = []HoldingConfig{{
					Symbol:   "USDC",
					Token:    "USDC",
					Balance:  defaultPaperStableBalance,
					ValueUSD: defaultPaperStableBalance,
				}}
			},
		},
	)
	e.Mode = strings.ToLower(strings.TrimSpace(e.Mode))
	for i := range e.Paper.Holdings {
		h := &e.Paper.Holdings[i]
		h.Symbol = strings.ToUpper(strings.TrimSpace(h.Symbol))
		if strings.TrimSpace(h.Token) == "" {
			h.Token = h.Symbol
		}
	}
}

func (s *StoreConfig) applyDefaults(keys keySet, section, path string) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		boolFieldDefault(section+".enabled", &s.Enabled, true),
		stringFieldDefault(section+".path", &s.Path, path),
	)
}

// Helper functions

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func boolFieldDefault(key string, target *bool, def bool) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func normalizeSymbolList(list []string) []string {
	if len(list) == 0 {
		return nil
	}
	out := make([]string, 0, len(list))
	seen := make(map[string]bool, len(list))
	for _, sym := range list {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym == "" || seen[sym] {
			continue
		}
		seen[sym] = true
		out = append(out, sym)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
