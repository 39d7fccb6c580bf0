package logger

import (
	"io"
	"log"
	"strings"
	"sync"
)

// 决策审计日志：每轮周期的信号、意图与风控结果以分段文本写入独立文件。

var (
	auditMu  sync.Mutex
	auditLog *log.Logger
)

// AuditSection 是审计记录中的一个段落。
type AuditSection struct {
	Title string
	Body  string
}

func SetAuditWriter(w io.Writer) {
	auditMu.Lock()
	defer auditMu.Unlock()
	if w == nil {
		auditLog = nil
		return
	}
	auditLog = log.New(w, "", log.LstdFlags)
}

func AuditEnabled() bool {
	auditMu.Lock()
	defer auditMu.Unlock()
	return auditLog != nil
}

// Audit 写入一条审计记录，未设置 writer 时直接丢弃。
func Audit(kind, symbol, cycleID string, sections ...AuditSection) {
	auditMu.Lock()
	defer auditMu.Unlock()
	if auditLog == nil {
		return
	}
	var b strings.Builder
	b.WriteString("[AUDIT]")
	for _, tag := range []string{kind, symbol, cycleID} {
		if tag = strings.TrimSpace(tag); tag != "" {
			b.WriteString("[")
			b.WriteString(tag)
			b.WriteString("]")
		}
	}
	b.WriteString("\n")
	for _, sec := range sections {
		t := strings.TrimSpace(sec.Title)
		if t == "" {
			t = "CONTENT"
		}
		b.WriteString("--- ")
		b.WriteString(strings.ToUpper(t))
		b.WriteString(" ---\n")
		b.WriteString(sec.Body)
		if !strings.HasSuffix(sec.Body, "\n") {
			b.WriteString("\n")
		}
	}
	b.WriteString("=====\n")
	auditLog.Print(b.String())
}
