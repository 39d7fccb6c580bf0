package livehttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"sentrix/internal/agent"
	"sentrix/internal/risk"
	"sentrix/internal/strategy"
	"sentrix/internal/tracker"
	"sentrix/internal/types"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAgent struct {
	mu       sync.Mutex
	name     string
	cfg      strategy.Config
	auto     bool
	cycles   []string
	result   agent.CycleResult
	logs     []agent.LogEntry
	handlers map[int]agent.Handler
	next     int
	reg      *strategy.Registry
}

func newFakeAgent() *fakeAgent {
	return &fakeAgent{
		name:     strategy.SentimentMomentumName,
		cfg:      strategy.BaseConfig(),
		handlers: map[int]agent.Handler{},
		reg:      strategy.NewDefaultRegistry(),
	}
}

func (f *fakeAgent) State() agent.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return agent.State{Phase: agent.PhaseDone, Strategy: f.name, AutoExecute: f.auto, Cycles: len(f.cycles)}
}

func (f *fakeAgent) RunCycle(_ context.Context, symbol string) agent.CycleResult {
	f.mu.Lock()
	f.cycles = append(f.cycles, symbol)
	res := f.result
	f.mu.Unlock()
	res.Symbol = symbol
	return res
}

func (f *fakeAgent) StrategyName() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.name
}

func (f *fakeAgent) StrategyConfig() strategy.Config {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cfg
}

func (f *fakeAgent) SetStrategy(name string, cfg *strategy.Config) error {
	strat, err := f.reg.Get(name)
	if err != nil {
		return err
	}
	next := strat.DefaultConfig()
	if cfg != nil {
		next = *cfg
	}
	if err := strat.ValidateConfig(next); err != nil {
		return err
	}
	f.mu.Lock()
	f.name, f.cfg = name, next
	f.mu.Unlock()
	return nil
}

func (f *fakeAgent) SetAutoExecute(on bool) {
	f.mu.Lock()
	f.auto = on
	f.mu.Unlock()
}

func (f *fakeAgent) Log(limit int) []agent.LogEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	if limit > 0 && len(f.logs) > limit {
		return append([]agent.LogEntry(nil), f.logs[len(f.logs)-limit:]...)
	}
	return append([]agent.LogEntry(nil), f.logs...)
}

func (f *fakeAgent) Subscribe(fn agent.Handler) func() {
	f.mu.Lock()
	id := f.next
	f.next++
	f.handlers[id] = fn
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		delete(f.handlers, id)
		f.mu.Unlock()
	}
}

func (f *fakeAgent) subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handlers)
}

func (f *fakeAgent) publish(ev agent.Event) {
	f.mu.Lock()
	list := make([]agent.Handler, 0, len(f.handlers))
	for _, h := range f.handlers {
		list = append(list, h)
	}
	f.mu.Unlock()
	for _, h := range list {
		h(ev)
	}
}

type fakeHealth map[string]error

func (f fakeHealth) Names() []string {
	out := make([]string, 0, len(f))
	for name := range f {
		out = append(out, name)
	}
	return out
}

var errFakeSuspended = errors.New("suspended")

func (f fakeHealth) Suspended() []string {
	var out []string
	for name, err := range f {
		if errors.Is(err, errFakeSuspended) {
			out = append(out, name)
		}
	}
	return out
}

func (f fakeHealth) HealthCheckAll(context.Context) map[string]error {
	out := map[string]error{}
	for name, err := range f {
		if err != nil {
			out[name] = err
		}
	}
	return out
}

type fakePredictions struct {
	symbol string
	limit  int
	list   []tracker.Prediction
}

func (f *fakePredictions) Recent(_ context.Context, symbol string, limit int) ([]tracker.Prediction, error) {
	f.symbol, f.limit = symbol, limit
	return f.list, nil
}

type fixture struct {
	srv     *Server
	agent   *fakeAgent
	breaker *risk.Manager
}

func newFixture(t *testing.T, mutate func(*ServerConfig)) fixture {
	t.Helper()
	fa := newFakeAgent()
	mgr := risk.NewManager(risk.DefaultConfig())
	cfg := ServerConfig{
		Agent:      fa,
		Breaker:    mgr,
		Strategies: fa.reg,
		Health:     fakeHealth{"binance": nil},
	}
	if mutate != nil {
		mutate(&cfg)
	}
	srv, err := NewServer(cfg)
	require.NoError(t, err)
	detach := srv.routes.Attach()
	t.Cleanup(detach)
	return fixture{srv: srv, agent: fa, breaker: mgr}
}

func (f fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestNewServer_RequiresAgentAndBreaker(t *testing.T) {
	_, err := NewServer(ServerConfig{Breaker: risk.NewManager(risk.DefaultConfig())})
	assert.Error(t, err)
	_, err = NewServer(ServerConfig{Agent: newFakeAgent()})
	assert.Error(t, err)
}

func TestStatus(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	out := decode[struct {
		Agent   agent.State       `json:"agent"`
		Breaker risk.BreakerState `json:"breaker"`
	}](t, rec)
	assert.Equal(t, strategy.SentimentMomentumName, out.Agent.Strategy)
	assert.False(t, out.Breaker.Triggered)
}

func TestBreakerTripAndReset(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/api/breaker/trip", tripRequest{Detail: "maintenance"})
	require.Equal(t, http.StatusOK, rec.Code)
	st := decode[risk.BreakerState](t, rec)
	assert.True(t, st.Triggered)
	assert.Equal(t, risk.TriggerManual, st.Reason)
	assert.Equal(t, "maintenance", st.Detail)
	assert.True(t, f.breaker.State().Triggered)

	rec = f.do(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, "halted", decode[healthResponse](t, rec).Status)

	rec = f.do(t, http.MethodPost, "/api/breaker/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[risk.BreakerState](t, rec).Triggered)
	assert.False(t, f.breaker.State().Triggered)
}

func TestBreakerTrip_DefaultDetail(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodPost, "/api/breaker/trip", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "manual trip via admin api", decode[risk.BreakerState](t, rec).Detail)
}

func TestRunCycle(t *testing.T) {
	f := newFixture(t, nil)
	f.agent.result = agent.CycleResult{CycleID: "c1", Stage: agent.StageNoTrade}

	rec := f.do(t, http.MethodPost, "/api/cycle/eth", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	out := decode[agent.CycleResult](t, rec)
	assert.Equal(t, "ETH", out.Symbol)
	assert.Equal(t, agent.StageNoTrade, out.Stage)
	assert.Equal(t, []string{"ETH"}, f.agent.cycles)

	f.agent.result = agent.CycleResult{Stage: agent.StageBusy, Error: agent.ErrCycleInProgress.Error()}
	rec = f.do(t, http.MethodPost, "/api/cycle/eth", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestStrategies_ListAndSwitch(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/api/strategies", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[strategyResponse](t, rec)
	assert.Equal(t, strategy.SentimentMomentumName, list.Active)
	assert.Len(t, list.Strategies, 2)

	rec = f.do(t, http.MethodPut, "/api/strategy", strategyRequest{
		Name:   strategy.ConservativeName,
		Params: map[string]any{"min_confidence": "0.8"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decode[strategyResponse](t, rec)
	assert.Equal(t, strategy.ConservativeName, out.Active)
	assert.InDelta(t, 0.8, out.Config.MinConfidence, 1e-9)
	assert.InDelta(t, 15, out.Config.MaxPositionPercent, 1e-9)
	assert.Equal(t, strategy.ConservativeName, f.agent.StrategyName())
}

func TestStrategies_Errors(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPut, "/api/strategy", strategyRequest{Name: "martingale"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPut, "/api/strategy", strategyRequest{Name: "martingale", Params: map[string]any{"min_confidence": 0.9}})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPut, "/api/strategy", strategyRequest{Params: map[string]any{"min_confidence": 3}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.InDelta(t, strategy.BaseConfig().MinConfidence, f.agent.StrategyConfig().MinConfidence, 1e-9)

	req := httptest.NewRequest(http.MethodPut, "/api/strategy", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAutoExecute(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodPut, "/api/auto-execute", map[string]any{"enabled": true})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, f.agent.State().AutoExecute)

	rec = f.do(t, http.MethodPut, "/api/auto-execute", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLog_Limit(t *testing.T) {
	f := newFixture(t, nil)
	for i := 0; i < 5; i++ {
		f.agent.logs = append(f.agent.logs, agent.LogEntry{Level: agent.LogInfo, Message: "line"})
	}
	rec := f.do(t, http.MethodGet, "/api/log?limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	out := decode[struct {
		Entries []agent.LogEntry `json:"entries"`
	}](t, rec)
	assert.Len(t, out.Entries, 2)
}

func TestHealth_Degraded(t *testing.T) {
	f := newFixture(t, func(cfg *ServerConfig) {
		cfg.Health = fakeHealth{"binance": nil, "reddit": errors.New("status 503")}
	})
	rec := f.do(t, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	out := decode[healthResponse](t, rec)
	assert.Equal(t, "degraded", out.Status)
	assert.Equal(t, "ok", out.Providers["binance"])
	assert.Equal(t, "status 503", out.Providers["reddit"])
	assert.Empty(t, out.Suspended)
}

func TestHealth_ReportsSuspendedProviders(t *testing.T) {
	f := newFixture(t, func(cfg *ServerConfig) {
		cfg.Health = fakeHealth{"binance": nil, "news": errFakeSuspended}
	})
	out := decode[healthResponse](t, f.do(t, http.MethodGet, "/api/health", nil))
	assert.Equal(t, "degraded", out.Status)
	assert.Equal(t, []string{"news"}, out.Suspended)
}

func TestPredictions(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/api/predictions", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	src := &fakePredictions{list: []tracker.Prediction{{ID: "p1", Symbol: "ETH"}}}
	f = newFixture(t, func(cfg *ServerConfig) { cfg.Predictions = src })
	rec = f.do(t, http.MethodGet, "/api/predictions?symbol=eth&limit=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ETH", src.symbol)
	assert.Equal(t, 10, src.limit)
	assert.Contains(t, rec.Body.String(), `"p1"`)
}

func TestScoresAndChart(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/api/chart/ETH", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	base := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		f.agent.publish(agent.Event{
			Kind:   agent.EventSignal,
			Symbol: "ETH",
			At:     base,
			Data: types.AggregatedSignal{
				Symbol:        "ETH",
				Sentiment:     types.SentimentSignal{Score: 40},
				MomentumScore: 10,
				OverallScore:  float64(20 + i),
				Timestamp:     base.Add(time.Duration(i) * time.Hour),
			},
		})
	}
	f.agent.publish(agent.Event{Kind: agent.EventLog, Symbol: "ETH"})

	rec = f.do(t, http.MethodGet, "/api/scores", nil)
	assert.Contains(t, rec.Body.String(), `"ETH"`)

	rec = f.do(t, http.MethodGet, "/api/scores/eth", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	out := decode[struct {
		Points []ScorePoint `json:"points"`
	}](t, rec)
	require.Len(t, out.Points, 3)
	assert.InDelta(t, 22, out.Points[2].Overall, 1e-9)
	assert.InDelta(t, 40, out.Points[0].Sentiment, 1e-9)

	rec = f.do(t, http.MethodGet, "/api/chart/eth", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "Overall")
}

func TestScoreHistory_Bounded(t *testing.T) {
	h := newScoreHistory(2)
	for i := 0; i < 5; i++ {
		h.add("eth", ScorePoint{Overall: float64(i)})
	}
	got := h.get("ETH")
	require.Len(t, got, 2)
	assert.InDelta(t, 3, got[0].Overall, 1e-9)
	assert.InDelta(t, 4, got[1].Overall, 1e-9)
}

func TestEvents_WebSocketStream(t *testing.T) {
	f := newFixture(t, nil)
	ts := httptest.NewServer(f.srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/events?kinds=execution,error"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// history subscription plus the websocket one
	require.Eventually(t, func() bool { return f.agent.subscribers() == 2 }, time.Second, 10*time.Millisecond)

	f.agent.publish(agent.Event{Kind: agent.EventLog, Symbol: "ETH", Data: agent.LogEntry{Message: "skip"}})
	f.agent.publish(agent.Event{Kind: agent.EventError, Symbol: "ETH", CycleID: "c9", Data: errors.New("quote failed")})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got wireEvent
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, agent.EventError, got.Kind)
	assert.Equal(t, "c9", got.CycleID)
	assert.Equal(t, "quote failed", got.Data)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return f.agent.subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestEventFilter(t *testing.T) {
	f := eventFilter{symbol: "ETH", kinds: map[agent.EventKind]bool{agent.EventSignal: true}}
	assert.True(t, f.allow(agent.Event{Kind: agent.EventSignal, Symbol: "eth"}))
	assert.True(t, f.allow(agent.Event{Kind: agent.EventSignal}))
	assert.False(t, f.allow(agent.Event{Kind: agent.EventSignal, Symbol: "BTC"}))
	assert.False(t, f.allow(agent.Event{Kind: agent.EventRisk, Symbol: "ETH"}))
	assert.True(t, eventFilter{}.allow(agent.Event{Kind: agent.EventLog}))
}
