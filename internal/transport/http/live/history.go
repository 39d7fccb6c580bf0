package livehttp

import (
	"sort"
	"strings"
	"sync"
	"time"

	"sentrix/internal/agent"
	"sentrix/internal/types"
)

const defaultHistorySize = 240

// ScorePoint 是一次聚合信号的得分快照。
type ScorePoint struct {
	At         time.Time `json:"at"`
	Overall    float64   `json:"overall"`
	Sentiment  float64   `json:"sentiment"`
	Momentum   float64   `json:"momentum"`
	Confidence float64   `json:"confidence"`
}

// scoreHistory 按币种保存最近 size 个信号点，由 agent 的 signal 事件喂入。
type scoreHistory struct {
	mu     sync.RWMutex
	size   int
	points map[string][]ScorePoint
}

func newScoreHistory(size int) *scoreHistory {
	if size <= 0 {
		size = defaultHistorySize
	}
	return &scoreHistory{size: size, points: make(map[string][]ScorePoint)}
}

func (h *scoreHistory) handle(ev agent.Event) {
	if ev.Kind != agent.EventSignal {
		return
	}
	sig, ok := ev.Data.(types.AggregatedSignal)
	if !ok {
		return
	}
	at := sig.Timestamp
	if at.IsZero() {
		at = ev.At
	}
	h.add(sig.Symbol, ScorePoint{
		At:         at,
		Overall:    sig.OverallScore,
		Sentiment:  sig.Sentiment.Score,
		Momentum:   sig.MomentumScore,
		Confidence: sig.OverallConfidence,
	})
}

func (h *scoreHistory) add(symbol string, p ScorePoint) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	list := append(h.points[symbol], p)
	if len(list) > h.size {
		list = list[len(list)-h.size:]
	}
	h.points[symbol] = list
}

func (h *scoreHistory) get(symbol string) []ScorePoint {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]ScorePoint(nil), h.points[strings.ToUpper(strings.TrimSpace(symbol))]...)
}

func (h *scoreHistory) symbols() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.points))
	for sym := range h.points {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}
