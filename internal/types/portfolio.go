package types

import (
	"strings"
	"time"
)

// Holding 由外部 portfolio 提供，核心逻辑只读。
type Holding struct {
	ChainID  int64   `json:"chain_id"`
	Token    string  `json:"token"`
	Symbol   string  `json:"symbol"`
	Balance  float64 `json:"balance"`
	ValueUSD float64 `json:"value_usd"`
}

// Portfolio 是某一时刻的持仓快照。
type Portfolio struct {
	Holdings  []Holding `json:"holdings"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TotalValueUSD sums all holdings.
func (p Portfolio) TotalValueUSD() float64 {
	total := 0.0
	for _, h := range p.Holdings {
		if h.ValueUSD > 0 {
			total += h.ValueUSD
		}
	}
	return total
}

// Find looks a holding up by symbol or token address, case-insensitively.
func (p Portfolio) Find(token string) (Holding, bool) {
	key := strings.TrimSpace(token)
	if key == "" {
		return Holding{}, false
	}
	for _, h := range p.Holdings {
		if strings.EqualFold(h.Symbol, key) || strings.EqualFold(h.Token, key) {
			return h, true
		}
	}
	return Holding{}, false
}

// ValueOf returns the USD value held in token, 0 when absent.
func (p Portfolio) ValueOf(token string) float64 {
	h, ok := p.Find(token)
	if !ok {
		return 0
	}
	return h.ValueUSD
}
