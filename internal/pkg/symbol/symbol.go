package symbol

import (
	"strings"
)

// Symbol 是交易对的基础/计价资产。
type Symbol struct {
	Base  string
	Quote string
}

func (s Symbol) Internal() string {
	if s.Base == "" || s.Quote == "" {
		return ""
	}
	return s.Base + "/" + s.Quote
}

func (s Symbol) Binance() string {
	if s.Base == "" || s.Quote == "" {
		return ""
	}
	return s.Base + s.Quote
}

var (
	stableQuotes    = []string{"USDT", "BUSD", "USDC", "TUSD", "FDUSD"}
	quoteCurrencies = append(append([]string(nil), stableQuotes...), "BTC", "ETH", "BNB")
)

// Parse 支持 "ETH/USDT"、"ETH/USDT:USDT" 与 "ETHUSDT"；无法识别计价资产时返回空值。
func Parse(s string) Symbol {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return Symbol{}
	}

	if idx := strings.Index(s, ":"); idx >= 0 {
		s = s[:idx]
	}

	if parts := strings.SplitN(s, "/", 2); len(parts) == 2 {
		return Symbol{
			Base:  strings.TrimSpace(parts[0]),
			Quote: strings.TrimSpace(parts[1]),
		}
	}

	return splitQuote(s, quoteCurrencies)
}

func splitQuote(s string, quotes []string) Symbol {
	for _, quote := range quotes {
		if strings.HasSuffix(s, quote) && len(s) > len(quote) {
			return Symbol{
				Base:  s[:len(s)-len(quote)],
				Quote: quote,
			}
		}
	}
	return Symbol{}
}

// parseAsset is Parse restricted to stable quotes, so "WETH" stays an asset.
func parseAsset(s string) Symbol {
	s = strings.ToUpper(strings.TrimSpace(s))
	if strings.ContainsAny(s, "/:") {
		return Parse(s)
	}
	return splitQuote(s, stableQuotes)
}

// Pair resolves s to a trading pair, treating a bare asset such as "ETH" as
// quoted in defaultQuote.
func Pair(s, defaultQuote string) Symbol {
	if sym := parseAsset(s); sym.Base != "" {
		return sym
	}
	base := strings.ToUpper(strings.TrimSpace(s))
	if base == "" {
		return Symbol{}
	}
	return Symbol{Base: base, Quote: strings.ToUpper(strings.TrimSpace(defaultQuote))}
}

// Asset returns the base asset of s, or s itself when it is already bare.
func Asset(s string) string {
	if sym := parseAsset(s); sym.Base != "" {
		return sym.Base
	}
	return strings.ToUpper(strings.TrimSpace(s))
}

// NormalizeList 去重并统一为大写资产名。
func NormalizeList(symbols []string) []string {
	if len(symbols) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		norm := Asset(s)
		if norm == "" {
			continue
		}
		if _, ok := seen[norm]; ok {
			continue
		}
		seen[norm] = struct{}{}
		out = append(out, norm)
	}
	return out
}
