package ws

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/RishiVykunta/Real-Time-SaaS-Dashboard/internal/auth"
	"github.com/RishiVykunta/Real-Time-SaaS-Dashboard/internal/config"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Client 代表一条实时连接。userID 在客户端宣告身份前为 0，
// 只由 Hub 的事件循环读写。
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	userID uint
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// inboundEvent 客户端上行的事件帧。
type inboundEvent struct {
	Type   string `json:"type"`
	UserID uint   `json:"user_id"`
}

// ActivityEvent 广播给客户端的日志事件帧，带冗余的操作者字段。
type ActivityEvent struct {
	Type      string    `json:"type"`
	ID        uint      `json:"id"`
	Action    string    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
	UserID    uint      `json:"user_id"`
	UserName  string    `json:"user_name"`
	UserEmail string    `json:"user_email"`
	UserRole  string    `json:"user_role"`
}

// Serve 校验 token 后把 HTTP 连接升级为 WebSocket 并注册到 Hub。
// 升级成功只代表持有合法 token，连接在发送 user_connected 前保持匿名。
func Serve(h *Hub, cfg config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Token via Authorization header or token query param for WS
		authz := c.GetHeader("Authorization")
		token := c.Query("token")
		if token == "" && len(authz) > 7 && (authz[:7] == "Bearer " || authz[:7] == "bearer ") {
			token = authz[7:]
		}
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}
		if _, err := auth.ParseAccessToken(token, cfg.JWTSecret); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		client := &Client{hub: h, conn: conn, send: make(chan []byte, 256)}
		h.register <- client

		go client.writePump()
		client.readPump()
	}
}

func (c *Client) readPump() {
	defer func() {
		// 正常关闭和异常断开都走同一条注销路径，注册表不会残留死连接。
		c.hub.unregister <- c
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(1 << 20) // 1MB
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		var in inboundEvent
		if err := json.Unmarshal(data, &in); err != nil {
			continue
		}
		switch in.Type {
		case "user_connected":
			// 缺 user_id 的宣告直接忽略，连接保持匿名。
			if in.UserID == 0 {
				continue
			}
			c.hub.announce <- announcement{client: c, userID: in.UserID}
		case "user_disconnected":
			if in.UserID == 0 {
				continue
			}
			c.hub.depart <- announcement{client: c, userID: in.UserID}
		case "activity_created":
			// 客户端转发的日志事件原样发给其他连接。
			c.hub.RelayActivity(c, data)
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)
			_ = w.Close()
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
