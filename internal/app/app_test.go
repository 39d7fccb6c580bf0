package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"sentrix/internal/agent"
	"sentrix/internal/config"
	"sentrix/internal/executor"
	"sentrix/internal/provider"
	riskstore "sentrix/internal/risk/store"
	"sentrix/internal/strategy"
	"sentrix/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const appConfigTemplate = `
app:
  log_level: warn
  http_addr: "127.0.0.1:0"
agent:
  symbols: [ETH]
  interval: 1h
  run_immediately: false
strategy:
  name: %s
executor:
  mode: paper
  paper:
    fee_bps: 30
    gas_usd: 0
    holdings:
      - {symbol: USDC, token: USDC, chain_id: 8453, balance: 500, value_usd: 500}
      - {symbol: ETH, token: ETH, chain_id: 8453, balance: 0.1, value_usd: 250}
tracker:
  path: %s
risk_store:
  path: %s
`

func writeConfig(t *testing.T, dir, strategyName string) string {
	t.Helper()
	body := fmt.Sprintf(appConfigTemplate, strategyName,
		filepath.Join(dir, "predictions.db"), filepath.Join(dir, "risk.db"))
	path := filepath.Join(dir, "sentrix.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func bullishItems(n int) []types.RawSentimentItem {
	now := time.Now()
	out := make([]types.RawSentimentItem, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, types.RawSentimentItem{
			Source:     "reddit",
			Title:      fmt.Sprintf("ETH looking bullish #%d, moon soon, buy", i),
			Timestamp:  now.Add(-time.Minute),
			Engagement: 500,
		})
	}
	return out
}

func buildTestApp(t *testing.T, items []types.RawSentimentItem) (*App, *config.Config, string) {
	t.Helper()
	dir := t.TempDir()
	path := writeConfig(t, dir, strategy.SentimentMomentumName)
	cfg, err := config.Load(path)
	require.NoError(t, err)

	reg := provider.NewRegistry(provider.Options{Timeout: time.Second, ContinueOnError: true})
	require.NoError(t, reg.Register(provider.NewStatic("reddit", items, nil)))

	a, err := NewAppBuilder(cfg, WithProviderRegistry(reg)).Build(context.Background())
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a, cfg, dir
}

func TestNewApp_NilConfig(t *testing.T) {
	_, err := NewApp(nil)
	assert.Error(t, err)
}

func TestBuild_WiresComponents(t *testing.T) {
	a, _, _ := buildTestApp(t, nil)

	require.NotNil(t, a.Agent())
	require.NotNil(t, a.server)
	assert.Nil(t, a.bridge, "telegram disabled")
	assert.Equal(t, []string{"ETH"}, a.Runner().Symbols())
	assert.Equal(t, strategy.SentimentMomentumName, a.Agent().StrategyName())
	assert.Len(t, a.closers, 2)

	out := a.Summary.String()
	assert.Contains(t, out, "sentiment_momentum")
	assert.Contains(t, out, "reddit")
	assert.Contains(t, out, "paper (dry_run)")
}

func TestBuild_RejectsUnknownStrategy(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.Load(writeConfig(t, dir, strategy.SentimentMomentumName))
	require.NoError(t, err)
	cfg.Strategy.Name = "martingale"

	_, err = NewAppBuilder(cfg, WithExecutor(executor.NewPaper(executor.PaperConfig{}))).Build(context.Background())
	assert.ErrorIs(t, err, strategy.ErrStrategyNotFound)
}

func TestTick_ExecutesAndPersists(t *testing.T) {
	a, cfg, _ := buildTestApp(t, bullishItems(10))

	results := a.Runner().Tick(context.Background())
	require.Len(t, results, 1)
	res := results[0]
	require.Equal(t, agent.StageExecuted, res.Stage, res.Error)
	assert.NotEmpty(t, res.PredictionID)
	require.NotNil(t, res.Execution)
	assert.True(t, res.Execution.Success)

	a.Close()
	st, err := riskstore.Open(cfg.RiskStore.Path)
	require.NoError(t, err)
	defer st.Close()
	trades, err := st.LoadTrades(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, "ETH", trades[0].Symbol)
}

func TestTick_NoDataNoTrade(t *testing.T) {
	a, _, _ := buildTestApp(t, nil)
	results := a.Runner().Tick(context.Background())
	require.Len(t, results, 1)
	assert.Equal(t, agent.StageNoTrade, results[0].Stage)
}

func TestApplyConfig(t *testing.T) {
	a, cfg, _ := buildTestApp(t, nil)

	next := *cfg
	next.Strategy = config.StrategyConfig{
		Name:   strategy.ConservativeName,
		Params: map[string]any{"min_confidence": 0.8},
	}
	next.Agent.AutoExecute = false
	require.NoError(t, a.ApplyConfig(&next))

	assert.Equal(t, strategy.ConservativeName, a.Agent().StrategyName())
	assert.InDelta(t, 0.8, a.Agent().StrategyConfig().MinConfidence, 1e-9)
	assert.InDelta(t, 15, a.Agent().StrategyConfig().MaxPositionPercent, 1e-9)
	assert.False(t, a.Agent().State().AutoExecute)

	bad := next
	bad.Strategy = config.StrategyConfig{Name: strategy.ConservativeName, Params: map[string]any{"min_confidence": 2}}
	assert.Error(t, a.ApplyConfig(&bad))
	assert.InDelta(t, 0.8, a.Agent().StrategyConfig().MinConfidence, 1e-9)
}

func TestWatchConfig_SwitchesStrategy(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, strategy.SentimentMomentumName)
	cfg, err := config.Load(path)
	require.NoError(t, err)
	reg := provider.NewRegistry(provider.Options{Timeout: time.Second})
	require.NoError(t, reg.Register(provider.NewStatic("reddit", nil, nil)))
	a, err := NewAppBuilder(cfg, WithProviderRegistry(reg)).Build(context.Background())
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.WatchConfig(path))
	writeConfig(t, dir, strategy.ConservativeName)

	assert.Eventually(t, func() bool {
		return a.Agent().StrategyName() == strategy.ConservativeName
	}, 5*time.Second, 50*time.Millisecond)
}
