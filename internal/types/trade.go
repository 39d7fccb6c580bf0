package types

type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	ActionHold Action = "hold"
)

type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

// SlippageFor maps urgency to a max slippage fraction.
func SlippageFor(u Urgency) float64 {
	switch u {
	case UrgencyHigh:
		return 0.05
	case UrgencyMedium:
		return 0.03
	default:
		return 0.01
	}
}

// TradeIntent 由策略生成，风控只会产出调整后的副本。
type TradeIntent struct {
	Action               Action   `json:"action"`
	Symbol               string   `json:"symbol"`
	FromToken            string   `json:"from_token"`
	ToToken              string   `json:"to_token"`
	ChainID              int64    `json:"chain_id"`
	SuggestedSizePercent float64  `json:"suggested_size_percent"`
	Confidence           float64  `json:"confidence"`
	Reason               string   `json:"reason"`
	Signals              []string `json:"signals,omitempty"`
	Urgency              Urgency  `json:"urgency"`
	MaxSlippage          float64  `json:"max_slippage"`
}

// Clone returns a deep copy so adjustments never touch the original.
func (t TradeIntent) Clone() TradeIntent {
	out := t
	if len(t.Signals) > 0 {
		out.Signals = append([]string(nil), t.Signals...)
	}
	return out
}
