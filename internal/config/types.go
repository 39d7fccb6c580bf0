package config

import (
	"strings"
	"time"

	"sentrix/internal/momentum"
	"sentrix/internal/risk"
	"sentrix/internal/sentiment"
	"sentrix/internal/signal"
)

// Config 是 sentrix 的完整配置，字段按 YAML 段划分。
type Config struct {
	App        AppConfig        `toml:"app"`
	Agent      AgentConfig      `toml:"agent"`
	Sentiment  sentiment.Config `toml:"sentiment"`
	Momentum   momentum.Config  `toml:"momentum"`
	Aggregator signal.Config    `toml:"aggregator"`
	Strategy   StrategyConfig   `toml:"strategy"`
	Risk       risk.Config      `toml:"risk"`
	Providers  ProvidersConfig  `toml:"providers"`
	Executor   ExecutorConfig   `toml:"executor"`
	Tracker    StoreConfig      `toml:"tracker"`
	RiskStore  StoreConfig      `toml:"risk_store"`
	Notify     NotifyConfig     `toml:"notify"`
}

type AppConfig struct {
	Env          string `toml:"env"`
	LogLevel     string `toml:"log_level"`
	LogFormat    string `toml:"log_format"`
	LogPath      string `toml:"log_path"`
	AuditLogPath string `toml:"audit_log_path"`
	HTTPAddr     string `toml:"http_addr"`
}

// AgentConfig 控制周期调度与执行行为。
type AgentConfig struct {
	Symbols                []string `toml:"symbols"`
	Interval               string   `toml:"interval"`
	OffsetSeconds          int      `toml:"offset_seconds"`
	RunImmediately         bool     `toml:"run_immediately"`
	AutoExecute            bool     `toml:"auto_execute"`
	DryRun                 bool     `toml:"dry_run"`
	WalletAddress          string   `toml:"wallet_address"`
	ProviderTimeoutSeconds int      `toml:"provider_timeout_seconds"`
	ContinueOnError        bool     `toml:"continue_on_error"`
	NewsLookbackHours      int      `toml:"news_lookback_hours"`
}

func (a AgentConfig) ProviderTimeout() time.Duration {
	return time.Duration(a.ProviderTimeoutSeconds) * time.Second
}

func (a AgentConfig) Offset() time.Duration {
	return time.Duration(a.OffsetSeconds) * time.Second
}

func (a AgentConfig) NewsLookback() time.Duration {
	return time.Duration(a.NewsLookbackHours) * time.Hour
}

// StrategyConfig 选择策略；params 覆盖策略默认参数，由策略自身校验。
type StrategyConfig struct {
	Name   string         `toml:"name"`
	Params map[string]any `toml:"params"`
}

// ProvidersConfig 中 failure_threshold 为 0 时不做单源熔断。
type ProvidersConfig struct {
	Binance          BinanceConfig `toml:"binance"`
	Feeds            []FeedConfig  `toml:"feeds"`
	FailureThreshold int           `toml:"failure_threshold"`
	CooldownSeconds  int           `toml:"cooldown_seconds"`
}

func (p ProvidersConfig) Cooldown() time.Duration {
	return time.Duration(p.CooldownSeconds) * time.Second
}

type BinanceConfig struct {
	Enabled        bool   `toml:"enabled"`
	RESTBaseURL    string `toml:"rest_base_url"`
	Interval       string `toml:"interval"`
	Limit          int    `toml:"limit"`
	Quote          string `toml:"quote"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	Proxy          string `toml:"proxy"`
}

// FeedConfig 描述一个 JSON 情绪源，*_path 字段是 gjson 路径。
type FeedConfig struct {
	Name              string            `toml:"name"`
	Disabled          bool              `toml:"disabled"`
	Source            string            `toml:"source"`
	URL               string            `toml:"url"`
	HealthURL         string            `toml:"health_url"`
	Headers           map[string]string `toml:"headers"`
	TimeoutSeconds    int               `toml:"timeout_seconds"`
	RequestsPerSecond float64           `toml:"requests_per_second"`
	Burst             int               `toml:"burst"`
	ItemsPath         string            `toml:"items_path"`
	TitlePath         string            `toml:"title_path"`
	ContentPath       string            `toml:"content_path"`
	URLPath           string            `toml:"url_path"`
	TimePath          string            `toml:"time_path"`
	EngagementPath    string            `toml:"engagement_path"`
}

const (
	ExecutorModeHTTP  = "http"
	ExecutorModePaper = "paper"
)

type ExecutorConfig struct {
	Mode           string      `toml:"mode"`
	BaseURL        string      `toml:"base_url"`
	APIKey         string      `toml:"api_key"`
	TimeoutSeconds int         `toml:"timeout_seconds"`
	Paper          PaperConfig `toml:"paper"`
}

type PaperConfig struct {
	FeeBps   float64         `toml:"fee_bps"`
	GasUSD   float64         `toml:"gas_usd"`
	Holdings []HoldingConfig `toml:"holdings"`
}

type HoldingConfig struct {
	Symbol   string  `toml:"symbol"`
	Token    string  `toml:"token"`
	ChainID  int64   `toml:"chain_id"`
	Balance  float64 `toml:"balance"`
	ValueUSD float64 `toml:"value_usd"`
}

// StoreConfig 指向一个 sqlite 文件。
type StoreConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `toml:"telegram"`
}

type TelegramConfig struct {
	Enabled  bool   `toml:"enabled"`
	BotToken string `toml:"bot_token"`
	ChatID   string `toml:"chat_id"`
}

// keySet 用于追踪配置文件中显式设置的字段路径。
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault 描述单个字段的默认值设置规则。
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
