package app

import (
	"context"
	"fmt"
	"strings"

	"sentrix/internal/agent"
	"sentrix/internal/config"
	"sentrix/internal/executor"
	"sentrix/internal/logger"
	"sentrix/internal/momentum"
	"sentrix/internal/notifier"
	"sentrix/internal/provider"
	"sentrix/internal/risk"
	riskstore "sentrix/internal/risk/store"
	"sentrix/internal/sentiment"
	"sentrix/internal/signal"
	"sentrix/internal/strategy"
	"sentrix/internal/tracker"
	livehttp "sentrix/internal/transport/http/live"
)

// AppBuilder 把配置装配成可运行的 App；各 *Fn 字段便于测试替换外部依赖。
type AppBuilder struct {
	cfg *config.Config

	providersFn func(config.ProvidersConfig, config.AgentConfig) (*provider.Registry, error)
	executorFn  func(config.ExecutorConfig, config.AgentConfig) (executor.Executor, error)
	trackerFn   func(config.StoreConfig) (*tracker.GormTracker, error)
	riskStoreFn func(config.StoreConfig) (*riskstore.HistoryStore, error)
	notifierFn  func(config.NotifyConfig) notifier.TextNotifier
	liveHTTPFn  func(config.AppConfig, httpDeps) (*livehttp.Server, error)
}

type AppBuilderOption func(*AppBuilder)

// WithProviderRegistry 用现成的数据源注册表替代配置中的数据源。
func WithProviderRegistry(reg *provider.Registry) AppBuilderOption {
	return func(b *AppBuilder) {
		b.providersFn = func(config.ProvidersConfig, config.AgentConfig) (*provider.Registry, error) {
			return reg, nil
		}
	}
}

func WithExecutor(exec executor.Executor) AppBuilderOption {
	return func(b *AppBuilder) {
		b.executorFn = func(config.ExecutorConfig, config.AgentConfig) (executor.Executor, error) {
			return exec, nil
		}
	}
}

func WithNotifier(n notifier.TextNotifier) AppBuilderOption {
	return func(b *AppBuilder) {
		b.notifierFn = func(config.NotifyConfig) notifier.TextNotifier { return n }
	}
}

func NewAppBuilder(cfg *config.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:         cfg,
		providersFn: buildProviderRegistry,
		executorFn:  buildExecutor,
		trackerFn:   buildTracker,
		riskStoreFn: buildRiskStore,
		notifierFn:  newTelegram,
		liveHTTPFn:  buildLiveHTTPServer,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func (b *AppBuilder) Build(ctx context.Context) (app *App, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	logger.SetLevel(cfg.App.LogLevel)

	var closers []func() error
	defer func() {
		if err != nil {
			for i := len(closers) - 1; i >= 0; i-- {
				_ = closers[i]()
			}
		}
	}()

	providers, err := b.providersFn(cfg.Providers, cfg.Agent)
	if err != nil {
		return nil, err
	}
	logger.Infof("✓ 数据源就绪: %v", providers.Names())

	strategies := strategy.NewDefaultRegistry()
	stratCfg, err := resolveStrategyConfig(strategies, cfg.Strategy)
	if err != nil {
		return nil, err
	}

	history, err := b.riskStoreFn(cfg.RiskStore)
	if err != nil {
		return nil, err
	}
	var riskOpts []risk.ManagerOption
	if history != nil {
		closers = append(closers, history.Close)
		riskOpts = append(riskOpts, risk.WithHistoryStore(history))
	}
	riskMgr := risk.NewManager(cfg.Risk, riskOpts...)
	if history != nil {
		if err := riskMgr.Restore(ctx); err != nil {
			return nil, fmt.Errorf("恢复风控历史失败: %w", err)
		}
		st := riskMgr.State()
		logger.Infof("✓ 风控历史已恢复 trades=%d triggered=%v", len(riskMgr.Breaker().Trades()), st.Triggered)
	}

	exec, err := b.executorFn(cfg.Executor, cfg.Agent)
	if err != nil {
		return nil, err
	}

	preds, err := b.trackerFn(cfg.Tracker)
	if err != nil {
		return nil, err
	}
	params := agent.Params{
		Providers:      providers,
		Analyzer:       sentiment.NewAnalyzer(cfg.Sentiment),
		Calculator:     momentum.NewCalculator(cfg.Momentum),
		Aggregator:     signal.NewAggregator(cfg.Aggregator),
		Strategies:     strategies,
		StrategyName:   cfg.Strategy.Name,
		StrategyConfig: stratCfg,
		Risk:           riskMgr,
		Executor:       exec,
		WalletAddress:  cfg.Agent.WalletAddress,
		AutoExecute:    cfg.Agent.AutoExecute,
		NewsLookback:   cfg.Agent.NewsLookback(),
		BarInterval:    cfg.Providers.Binance.Interval,
	}
	if preds != nil {
		closers = append(closers, preds.Close)
		params.Tracker = preds
	}
	if sink, ok := exec.(agent.PriceSink); ok {
		params.Prices = sink
	}
	ag, err := agent.New(params)
	if err != nil {
		return nil, err
	}

	runner, err := agent.NewRunner(agent.RunnerParams{
		Agent:          ag,
		Symbols:        cfg.Agent.Symbols,
		Interval:       cfg.Agent.Interval,
		Offset:         cfg.Agent.Offset(),
		RunImmediately: cfg.Agent.RunImmediately,
	})
	if err != nil {
		return nil, err
	}

	var bridge *notifier.Bridge
	if n := b.notifierFn(cfg.Notify); n != nil {
		bridge = notifier.NewBridge(n)
	}

	deps := httpDeps{agent: ag, risk: riskMgr, strategies: strategies, providers: providers}
	if preds != nil {
		deps.predictions = preds
	}
	server, err := b.liveHTTPFn(cfg.App, deps)
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:     cfg,
		agent:   ag,
		runner:  runner,
		risk:    riskMgr,
		server:  server,
		bridge:  bridge,
		closers: closers,
		Summary: buildSummary(cfg, providers.Names()),
	}, nil
}

// resolveStrategyConfig 以所选策略的默认参数为底，覆盖配置文件中的 params。
func resolveStrategyConfig(reg *strategy.Registry, sc config.StrategyConfig) (*strategy.Config, error) {
	name := strings.ToLower(strings.TrimSpace(sc.Name))
	strat, err := reg.Get(name)
	if err != nil {
		return nil, err
	}
	merged, err := strat.DefaultConfig().WithParams(sc.Params)
	if err != nil {
		return nil, fmt.Errorf("strategy %s: %w", name, err)
	}
	if err := strat.ValidateConfig(merged); err != nil {
		return nil, fmt.Errorf("strategy %s: %w", name, err)
	}
	return &merged, nil
}
