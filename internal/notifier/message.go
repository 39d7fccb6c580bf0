package notifier

import (
	"fmt"
	"strings"
	"time"

	"sentrix/internal/pkg/text"
)

const maxMessageLen = 3800

// Field 是段落中的一行 "名称: 值"。
type Field struct {
	Name  string
	Value string
}

func F(name string, format string, args ...any) Field {
	return Field{Name: name, Value: fmt.Sprintf(format, args...)}
}

// Section 表示通知中的一个段落。
type Section struct {
	Title  string
	Fields []Field
}

// Message 描述统一格式的推送。
type Message struct {
	Icon      string
	Title     string
	Sections  []Section
	Footer    string
	Timestamp time.Time
}

// RenderMarkdown 生成 Markdown 文本，超长时截断。
func (m Message) RenderMarkdown() string {
	var b strings.Builder
	if header := strings.TrimSpace(m.Icon + " " + m.Title); header != "" {
		b.WriteString("*" + escapeMarkdown(header) + "*\n\n")
	}
	b.WriteString(renderSections(m.Sections))
	if footer := strings.TrimSpace(m.Footer); footer != "" {
		b.WriteString(escapeMarkdown(footer))
		b.WriteString("\n")
	}
	if !m.Timestamp.IsZero() {
		b.WriteString("时间：" + m.Timestamp.UTC().Format("2006-01-02 15:04:05 MST"))
	}
	body := strings.TrimSpace(b.String())
	if len(body) > maxMessageLen {
		body = text.Truncate(body, maxMessageLen)
	}
	return body
}

func renderSections(secs []Section) string {
	var b strings.Builder
	for _, sec := range secs {
		lines := make([]string, 0, len(sec.Fields))
		for _, f := range sec.Fields {
			name, value := strings.TrimSpace(f.Name), strings.TrimSpace(f.Value)
			if value == "" {
				continue
			}
			if name == "" {
				lines = append(lines, value)
				continue
			}
			lines = append(lines, name+": "+value)
		}
		if len(lines) == 0 {
			continue
		}
		if b.Len() == 0 {
			b.WriteString("```\n")
		} else {
			b.WriteString("\n")
		}
		if title := strings.TrimSpace(sec.Title); title != "" {
			b.WriteString(sanitize(title) + "\n")
		}
		for _, line := range lines {
			b.WriteString("- " + sanitize(line) + "\n")
		}
	}
	if b.Len() == 0 {
		return ""
	}
	b.WriteString("```\n\n")
	return b.String()
}

func sanitize(s string) string {
	return strings.ReplaceAll(s, "```", "'''")
}

func escapeMarkdown(s string) string {
	r := strings.NewReplacer("*", "\\*", "_", "\\_", "`", "'")
	return r.Replace(s)
}
