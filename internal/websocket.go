package internal

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// 系統設計問題：
//   如何把原始 WebSocket 連接適配成核心需要的傳輸契約？
//
// 核心只要求：穩定的連接識別、按到達順序交付的 (事件, 負載) 對、
// 斷線通知、強制關閉能力、盡力而為的來源位址（優先
// X-Forwarded-For，回退到對端位址）。
//
// 設計方案：
//   ✅ Hub 模式 - 集中管理所有連接（註冊 / 註銷 / 全體關閉）
//   ✅ Ping/Pong 心跳 - 檢測死連接（54s/60s）
//   ✅ 緩衝 channel - 異步發送（慢消費者不拖累房間廣播）
//   ✅ readPump 同步調度 - 同一連接的訊息按到達順序進入 Registry

// envelope 出站訊息封包
type envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// WebSocketHub WebSocket 連接中心
type WebSocketHub struct {
	registry  *Registry
	logger    *slog.Logger
	upgrader  websocket.Upgrader
	readLimit int64

	mu    sync.Mutex
	conns map[string]*Connection // 連接 ID -> Connection
}

// Connection 一條 WebSocket 連接（實現 Conn 契約）
type Connection struct {
	id         string
	remoteAddr string
	conn       *websocket.Conn
	send       chan []byte
	hub        *WebSocketHub

	mu     sync.Mutex
	closed bool // send channel 是否已關閉
}

// NewWebSocketHub 創建 WebSocket Hub
//
// 來源檢查：配置了 Origins 時按完整匹配放行；空名單表示不限制
// （開發環境）。讀取上限設為負載上限的兩倍：上限以內的超大訊息
// 必須交給濫用防護處理（記錄來源並斷線），傳輸層只擋極端值。
func NewWebSocketHub(registry *Registry, cfg *Config, logger *slog.Logger) *WebSocketHub {
	allowed := make(map[string]struct{}, len(cfg.Origins))
	for _, origin := range cfg.Origins {
		allowed[origin] = struct{}{}
	}

	return &WebSocketHub{
		registry: registry,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if len(allowed) == 0 {
					return true
				}
				_, ok := allowed[r.Header.Get("Origin")]
				return ok
			},
		},
		readLimit: int64(cfg.MaxPayloadBytes) * 2,
		conns:     make(map[string]*Connection),
	}
}

// ServeWS 處理 WebSocket 連接
func (hub *WebSocketHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Error("升級 WebSocket 失敗", "error", err)
		return
	}

	connection := &Connection{
		id:         uuid.NewString(),
		remoteAddr: clientIP(r),
		conn:       conn,
		send:       make(chan []byte, 256),
		hub:        hub,
	}

	hub.register(connection)
	hub.registry.OnConnect(connection)

	go connection.writePump()
	go connection.readPump()
}

// ID 連接識別（連接生命期內穩定）
func (c *Connection) ID() string {
	return c.id
}

// RemoteAddr 來源位址
func (c *Connection) RemoteAddr() string {
	return c.remoteAddr
}

// Emit 異步發送事件
func (c *Connection) Emit(event string, data any) {
	payload, err := json.Marshal(envelope{Event: event, Data: data})
	if err != nil {
		c.hub.logger.Error("序列化出站事件失敗", "event", event, "error", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	select {
	case c.send <- payload:
	default:
		// 緩衝區滿：丟棄，慢客戶端不拖累整個房間
		c.hub.logger.Warn("連接緩衝區滿，丟棄事件",
			"conn_id", c.id,
			"event", event)
	}
}

// Close 強制關閉連接（濫用防護觸發）
//
// 只關閉 send channel：writePump 收到後發送關閉幀並關閉底層連接，
// readPump 隨之出錯退出並觸發斷線清理。
func (c *Connection) Close() {
	c.shutdown()
}

// shutdown 關閉 send channel（冪等）
func (c *Connection) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// register 登記連接
func (hub *WebSocketHub) register(conn *Connection) {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	hub.conns[conn.id] = conn
}

// unregister 註銷連接
func (hub *WebSocketHub) unregister(conn *Connection) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	if actual, ok := hub.conns[conn.id]; ok && actual == conn {
		delete(hub.conns, conn.id)
	}
	conn.shutdown()
}

// Stop 關閉所有連接
func (hub *WebSocketHub) Stop() {
	hub.mu.Lock()
	conns := make([]*Connection, 0, len(hub.conns))
	for _, conn := range hub.conns {
		conns = append(conns, conn)
	}
	hub.conns = make(map[string]*Connection)
	hub.mu.Unlock()

	for _, conn := range conns {
		conn.shutdown()
	}

	hub.logger.Info("WebSocket Hub 已停止")
}

// readPump 讀取客戶端訊息並同步調度
//
// 心跳：60 秒讀取超時，收到 Pong 重置（配合 writePump 的 54 秒
// Ping，留 6 秒余量）。訊息在本 goroutine 內同步進入 Registry，
// 保證同一連接的處理順序即到達順序。
func (c *Connection) readPump() {
	defer func() {
		c.hub.registry.OnDisconnect(c.id)
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.hub.readLimit)
	if err := c.conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
		c.hub.logger.Error("設置讀取期限失敗", "error", err)
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Error("WebSocket 讀取錯誤",
					"error", err,
					"conn_id", c.id)
			}
			break
		}

		if messageType == websocket.TextMessage {
			c.hub.registry.Dispatch(c.id, message)
		}
	}
}

// writePump 寫入訊息到客戶端並定期發送 Ping
func (c *Connection) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
				c.hub.logger.Error("設置寫入期限失敗", "error", err)
			}
			if !ok {
				// send channel 已關閉：發送關閉幀後退出
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			// 批量發送隊列中的訊息
			n := len(c.send)
			for i := 0; i < n; i++ {
				if err := c.conn.WriteMessage(websocket.TextMessage, <-c.send); err != nil {
					return
				}
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
				c.hub.logger.Error("設置寫入期限失敗", "error", err)
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// clientIP 盡力而為的來源位址：優先 X-Forwarded-For，回退對端位址
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if ip := strings.TrimSpace(strings.Split(fwd, ",")[0]); ip != "" {
			return ip
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "0.0.0.0"
}
