// internal/api/websocket.go
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/Corphon/AnimeStoryboard/internal/services"
	"github.com/Corphon/AnimeStoryboard/internal/utils"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/atomic"
)

// WebSocket 升级器配置
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// progressClient 一个订阅进度的 WebSocket 连接
type progressClient struct {
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closed    atomic.Bool
	lastPing  atomic.Time
	createdAt time.Time
}

// Close 安全关闭客户端连接
func (client *progressClient) Close() {
	if client.closed.CompareAndSwap(false, true) {
		close(client.done)
		client.conn.Close()
	}
}

// ProgressHub 把进度服务的更新转发给所有 WebSocket 客户端
type ProgressHub struct {
	progress *services.ProgressService
	logger   *utils.Logger

	clients    map[*progressClient]bool
	broadcast  chan []byte
	register   chan *progressClient
	unregister chan *progressClient
	mutex      sync.RWMutex

	pingTimeout time.Duration
}

// NewProgressHub 创建进度中心，需要调用 Run 启动
func NewProgressHub(progress *services.ProgressService, logger *utils.Logger) *ProgressHub {
	if logger == nil {
		logger = utils.GetLogger()
	}
	return &ProgressHub{
		progress:    progress,
		logger:      logger,
		clients:     make(map[*progressClient]bool),
		broadcast:   make(chan []byte, 256),
		register:    make(chan *progressClient, 64),
		unregister:  make(chan *progressClient, 64),
		pingTimeout: pongWait,
	}
}

// Run 运行主循环，ctx 结束时关闭所有连接
func (hub *ProgressHub) Run(ctx context.Context) {
	updates := hub.progress.Subscribe()
	defer hub.progress.Unsubscribe(updates)

	cleanup := time.NewTicker(30 * time.Second)
	defer cleanup.Stop()

	for {
		select {
		case client := <-hub.register:
			hub.mutex.Lock()
			hub.clients[client] = true
			hub.mutex.Unlock()

		case client := <-hub.unregister:
			hub.remove(client)

		case update, ok := <-updates:
			if !ok {
				return
			}
			hub.publish(map[string]interface{}{
				"type":     "progress",
				"progress": update,
			})

		case message := <-hub.broadcast:
			hub.broadcastMessage(message)

		case <-cleanup.C:
			hub.cleanupExpiredConnections()

		case <-ctx.Done():
			hub.shutdown()
			return
		}
	}
}

func (hub *ProgressHub) remove(client *progressClient) {
	hub.mutex.Lock()
	delete(hub.clients, client)
	hub.mutex.Unlock()
	client.Close()
}

// Publish 向所有客户端广播一条消息
func (hub *ProgressHub) Publish(message map[string]interface{}) {
	data, err := json.Marshal(message)
	if err != nil {
		hub.logger.Error("Failed to encode websocket message", map[string]interface{}{"error": err.Error()})
		return
	}
	select {
	case hub.broadcast <- data:
	default:
		hub.logger.Warn("Websocket broadcast queue full", nil)
	}
}

// publish 在主循环内直接发送
func (hub *ProgressHub) publish(message map[string]interface{}) {
	data, err := json.Marshal(message)
	if err != nil {
		return
	}
	hub.broadcastMessage(data)
}

func (hub *ProgressHub) broadcastMessage(message []byte) {
	hub.mutex.RLock()
	clients := make([]*progressClient, 0, len(hub.clients))
	for client := range hub.clients {
		clients = append(clients, client)
	}
	hub.mutex.RUnlock()

	for _, client := range clients {
		if client.closed.Load() {
			continue
		}
		select {
		case client.send <- message:
		default:
			// 消费过慢的客户端直接断开
			hub.remove(client)
		}
	}
}

// cleanupExpiredConnections 清理过期和死连接
func (hub *ProgressHub) cleanupExpiredConnections() {
	hub.mutex.Lock()
	defer hub.mutex.Unlock()

	for client := range hub.clients {
		if client.closed.Load() || time.Since(client.lastPing.Load()) > hub.pingTimeout {
			delete(hub.clients, client)
			client.Close()
		}
	}
}

func (hub *ProgressHub) shutdown() {
	hub.mutex.Lock()
	defer hub.mutex.Unlock()

	for client := range hub.clients {
		client.Close()
	}
	hub.clients = make(map[*progressClient]bool)
	hub.logger.Info("Progress hub stopped", nil)
}

// ClientCount 当前连接数
func (hub *ProgressHub) ClientCount() int {
	hub.mutex.RLock()
	defer hub.mutex.RUnlock()
	return len(hub.clients)
}

func (hub *ProgressHub) accept(c *gin.Context) *progressClient {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		hub.logger.Warn("Websocket upgrade failed", map[string]interface{}{"error": err.Error()})
		return nil
	}

	client := &progressClient{
		conn:      conn,
		send:      make(chan []byte, 64),
		done:      make(chan struct{}),
		createdAt: time.Now(),
	}
	client.lastPing.Store(time.Now())
	return client
}

// ServeWS 升级连接并开始推送所有任务的进度
func (hub *ProgressHub) ServeWS(c *gin.Context, welcome map[string]interface{}) {
	client := hub.accept(c)
	if client == nil {
		return
	}

	if welcome != nil {
		if data, err := json.Marshal(welcome); err == nil {
			client.send <- data
		}
	}

	select {
	case hub.register <- client:
	case <-time.After(time.Second):
		hub.logger.Warn("Websocket register queue full", nil)
		client.Close()
		return
	}

	go hub.writePump(client)
	hub.readPump(client)
}

// ServeTaskWS 只推送单个任务的进度，任务结束后停止推送
func (hub *ProgressHub) ServeTaskWS(c *gin.Context, tracker *services.ProgressTracker) {
	client := hub.accept(c)
	if client == nil {
		return
	}

	updates := tracker.Subscribe()
	go hub.relayTask(client, tracker, updates)
	go hub.writePump(client)
	hub.readPump(client)
}

func (hub *ProgressHub) relayTask(client *progressClient, tracker *services.ProgressTracker, updates chan services.ProgressUpdate) {
	defer tracker.Unsubscribe(updates)

	for {
		select {
		case update := <-updates:
			data, err := json.Marshal(map[string]interface{}{
				"type":     "progress",
				"progress": update,
			})
			if err != nil {
				return
			}
			select {
			case client.send <- data:
			case <-client.done:
				return
			}
			if update.Status != services.ProgressRunning {
				return
			}
		case <-client.done:
			return
		}
	}
}

// readPump 只处理 pong 与关闭，客户端消息被忽略
func (hub *ProgressHub) readPump(client *progressClient) {
	defer func() {
		select {
		case hub.unregister <- client:
		case <-time.After(time.Second):
			client.Close()
		}
	}()

	client.conn.SetReadLimit(4096)
	client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		client.lastPing.Store(time.Now())
		return client.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				hub.logger.Debug("Websocket read error", map[string]interface{}{"error": err.Error()})
			}
			return
		}
		client.lastPing.Store(time.Now())
	}
}

// writePump 发送消息与心跳
func (hub *ProgressHub) writePump(client *progressClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.Close()
	}()

	for {
		select {
		case message := <-client.send:
			if client.closed.Load() {
				return
			}
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-client.done:
			return

		case <-ticker.C:
			if client.closed.Load() {
				return
			}
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
