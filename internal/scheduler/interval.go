package scheduler

import (
	"strconv"
	"strings"
	"time"
)

// ParseIntervalDuration 解析 K 线周期写法 "30s"、"15m"、"1h"、"1d"、"1w"，
// 其余情况退回 time.ParseDuration（如 "1h30m"）。非正值返回 (0, false)。
func ParseIntervalDuration(interval string) (time.Duration, bool) {
	interval = strings.ToLower(strings.TrimSpace(interval))
	if interval == "" {
		return 0, false
	}
	unit := interval[len(interval)-1]
	if n, err := strconv.Atoi(strings.TrimSpace(interval[:len(interval)-1])); err == nil {
		if n <= 0 {
			return 0, false
		}
		switch unit {
		case 's':
			return time.Duration(n) * time.Second, true
		case 'm':
			return time.Duration(n) * time.Minute, true
		case 'h':
			return time.Duration(n) * time.Hour, true
		case 'd':
			return time.Duration(n) * 24 * time.Hour, true
		case 'w':
			return time.Duration(n) * 7 * 24 * time.Hour, true
		}
	}
	d, err := time.ParseDuration(interval)
	if err != nil || d <= 0 {
		return 0, false
	}
	return d, true
}
