package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/sdk-detect/sdk-detect-go/internal/service"
)

// EventHandler 向 WebSocket 订阅端广播扫描事件。
// 实现 service.EventSink，由 ScanService 在任务状态变化时调用。
type EventHandler struct {
	logger    *logrus.Logger
	upgrader  websocket.Upgrader
	broadcast chan eventMessage

	mu      sync.Mutex
	clients map[*websocket.Conn]bool
}

type eventMessage struct {
	service.ScanEvent
	Timestamp int64 `json:"timestamp"`
}

func NewEventHandler(logger *logrus.Logger) *EventHandler {
	return &EventHandler{
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 允许所有来源（生产环境需要限制）
			},
		},
		broadcast: make(chan eventMessage, 100),
		clients:   make(map[*websocket.Conn]bool),
	}
}

// Start 启动广播协程
func (h *EventHandler) Start() {
	go h.runBroadcaster()
}

func (h *EventHandler) runBroadcaster() {
	for msg := range h.broadcast {
		h.mu.Lock()
		for conn := range h.clients {
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.WithError(err).Warn("Failed to write to WebSocket client")
				conn.Close()
				delete(h.clients, conn)
			}
		}
		h.mu.Unlock()
	}
}

// PublishScanEvent 入队待广播事件（非阻塞，满则丢弃）
func (h *EventHandler) PublishScanEvent(event service.ScanEvent) {
	msg := eventMessage{ScanEvent: event, Timestamp: time.Now().Unix()}

	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("Event broadcast channel is full, dropping message")
	}
}

// HandleWebSocket 处理订阅连接
// GET /ws/events
func (h *EventHandler) HandleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithError(err).Error("Failed to upgrade to WebSocket")
		return
	}
	defer conn.Close()

	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()

	h.logger.Info("WebSocket client connected")

	// 保持连接，忽略客户端消息
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.WithError(err).Warn("WebSocket error")
			}
			break
		}
	}

	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()

	h.logger.Info("WebSocket client disconnected")
}
