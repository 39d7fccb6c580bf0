package livehttp

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"sentrix/internal/agent"
	"sentrix/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
	wsBufferSize = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wireEvent 是推送到 websocket 的事件；error 类型的 Data 转成字符串。
type wireEvent struct {
	Kind    agent.EventKind `json:"kind"`
	Symbol  string          `json:"symbol,omitempty"`
	CycleID string          `json:"cycle_id,omitempty"`
	At      time.Time       `json:"at"`
	Data    any             `json:"data,omitempty"`
}

func toWire(ev agent.Event) wireEvent {
	data := ev.Data
	if err, ok := data.(error); ok {
		data = err.Error()
	}
	return wireEvent{Kind: ev.Kind, Symbol: ev.Symbol, CycleID: ev.CycleID, At: ev.At, Data: data}
}

// eventFilter 由 ?kinds=signal,execution 和 ?symbol=ETH 组成，空表示不过滤。
type eventFilter struct {
	kinds  map[agent.EventKind]bool
	symbol string
}

func parseEventFilter(c *gin.Context) eventFilter {
	f := eventFilter{symbol: strings.ToUpper(strings.TrimSpace(c.Query("symbol")))}
	if raw := strings.TrimSpace(c.Query("kinds")); raw != "" {
		f.kinds = make(map[agent.EventKind]bool)
		for _, k := range strings.Split(raw, ",") {
			if k = strings.TrimSpace(k); k != "" {
				f.kinds[agent.EventKind(strings.ToLower(k))] = true
			}
		}
	}
	return f
}

func (f eventFilter) allow(ev agent.Event) bool {
	if len(f.kinds) > 0 && !f.kinds[ev.Kind] {
		return false
	}
	if f.symbol != "" && ev.Symbol != "" && !strings.EqualFold(ev.Symbol, f.symbol) {
		return false
	}
	return true
}

// handleEvents 把 agent 事件流推到 websocket；慢客户端的事件直接丢弃，不阻塞周期。
func (r *Router) handleEvents(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warnf("[http] websocket upgrade failed: %v", err)
		return
	}
	filter := parseEventFilter(c)
	out := make(chan wireEvent, wsBufferSize)
	var (
		closed bool
		mu     sync.Mutex
	)
	unsubscribe := r.agent.Subscribe(func(ev agent.Event) {
		if !filter.allow(ev) {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case out <- toWire(ev):
		default:
			logger.Debugf("[http] websocket client slow, dropped %s event", ev.Kind)
		}
	})
	defer func() {
		unsubscribe()
		mu.Lock()
		closed = true
		mu.Unlock()
		_ = conn.Close()
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-c.Request.Context().Done():
			return
		case ev := <-out:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(ev); err != nil {
				logger.Debugf("[http] websocket write failed: %v", err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
