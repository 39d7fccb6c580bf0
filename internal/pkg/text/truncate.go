// Package text holds small string helpers shared by providers and notifiers.
package text

import "unicode/utf8"

// Truncate 截断到最多 max 字节并追加 "..."，不会切断多字节字符。
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
