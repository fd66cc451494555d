// internal/api/websocket.go
package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Corphon/CineGenieMCP/internal/utils"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// WebSocket 升级器配置
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// 在生产环境中应该进行更严格的检查
		return true
	},
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 45 * time.Second
)

// assetsClient 表示一个资产库订阅连接
type assetsClient struct {
	conn   *websocket.Conn
	send   chan []byte
	closed int32 // 原子操作标志，0=开启，1=关闭
}

// close 安全关闭客户端连接
func (client *assetsClient) close() {
	if atomic.CompareAndSwapInt32(&client.closed, 0, 1) {
		client.conn.Close()
	}
}

// AssetsHub 管理所有资产库订阅连接
//
// 资产集合只有一个全局视图，所有订阅者收到同样的变更通知。
// 通知不携带资产内容，客户端收到后自行重新拉取列表
type AssetsHub struct {
	clients    map[*assetsClient]bool
	broadcast  chan []byte
	register   chan *assetsClient
	unregister chan *assetsClient
	shutdown   chan bool
	mutex      sync.RWMutex
}

// NewAssetsHub 创建资产库通知中心并启动主循环
func NewAssetsHub() *AssetsHub {
	hub := &AssetsHub{
		clients:    make(map[*assetsClient]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *assetsClient, 64),
		unregister: make(chan *assetsClient, 64),
		shutdown:   make(chan bool, 1),
	}

	go hub.run()
	return hub
}

// run 运行通知中心主循环
func (hub *AssetsHub) run() {
	for {
		select {
		case client := <-hub.register:
			hub.mutex.Lock()
			hub.clients[client] = true
			hub.mutex.Unlock()
			utils.GetLogger().Debug("资产库订阅已建立，当前连接数: %d", hub.ClientCount())

		case client := <-hub.unregister:
			hub.mutex.Lock()
			if _, ok := hub.clients[client]; ok {
				delete(hub.clients, client)
				close(client.send)
			}
			hub.mutex.Unlock()

		case message := <-hub.broadcast:
			hub.mutex.RLock()
			for client := range hub.clients {
				select {
				case client.send <- message:
				default:
					// 队列满的客户端视为失速，丢弃本条消息
					utils.GetLogger().Warning("资产库订阅消息队列已满，消息被丢弃")
				}
			}
			hub.mutex.RUnlock()

		case <-hub.shutdown:
			hub.mutex.Lock()
			for client := range hub.clients {
				close(client.send)
				client.close()
			}
			hub.clients = make(map[*assetsClient]bool)
			hub.mutex.Unlock()
			return
		}
	}
}

// ClientCount 当前订阅连接数
func (hub *AssetsHub) ClientCount() int {
	hub.mutex.RLock()
	defer hub.mutex.RUnlock()

	return len(hub.clients)
}

// OnAssetsChanged 实现 services.AssetsObserver
// 资产集合变更时向所有订阅者推送通知
func (hub *AssetsHub) OnAssetsChanged() {
	message, err := json.Marshal(map[string]interface{}{
		"type":      "assets_changed",
		"timestamp": time.Now().Format(time.RFC3339),
	})
	if err != nil {
		return
	}

	select {
	case hub.broadcast <- message:
	default:
		utils.GetLogger().Warning("资产库广播队列已满，通知被丢弃")
	}
}

// Shutdown 关闭通知中心和所有订阅连接
func (hub *AssetsHub) Shutdown() {
	select {
	case hub.shutdown <- true:
	default:
	}
}

// HandleAssetsWebSocket 升级连接并订阅资产库变更通知
func (h *Handler) HandleAssetsWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		utils.GetLogger().Warning("WebSocket 升级失败: %v", err)
		return
	}

	client := &assetsClient{
		conn: conn,
		send: make(chan []byte, 16),
	}

	h.AssetsHub.register <- client

	go h.writeAssetsClient(client)
	go h.readAssetsClient(client)
}

// writeAssetsClient 写泵：转发通知并维持心跳
func (h *Handler) writeAssetsClient(client *assetsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.close()
	}()

	for {
		select {
		case message, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readAssetsClient 读泵：订阅是单向的，入站消息只用于保活
func (h *Handler) readAssetsClient(client *assetsClient) {
	defer func() {
		h.AssetsHub.unregister <- client
		client.close()
	}()

	client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}
