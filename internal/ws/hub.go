package ws

import (
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/RishiVykunta/Real-Time-SaaS-Dashboard/internal/metrics"
	"github.com/rs/zerolog/log"
)

// SessionCounter 是 Hub 对会话存储的唯一依赖：
// 返回当前有未关闭且未过期会话的用户 ID 集合。
type SessionCounter interface {
	ActiveUserIDs() ([]uint, error)
}

// envelope 是一条待分发的出站消息，origin 不为空时跳过来源连接。
type envelope struct {
	origin *Client
	data   []byte
}

type announcement struct {
	client *Client
	userID uint
}

// Hub 维护实时连接注册表，把身份映射到连接，并向订阅者扇出
// user_connected / user_disconnected / active_users_updated / activity_created 事件。
// 所有注册表状态只在 run 循环里读写，外部通过 channel 投递命令。
// 在线人数每次成员变更后都从会话存储重新计算，而不是数 socket：
// 同一用户开多个标签页不会重复计数，Hub 重启后也不会和持久化记录脱节。
type Hub struct {
	sessions SessionCounter

	clients map[*Client]bool
	users   map[uint]map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	announce   chan announcement
	depart     chan announcement
	broadcast  chan envelope

	online int32
}

func NewHub(sessions SessionCounter) *Hub {
	return &Hub{
		sessions:   sessions,
		clients:    make(map[*Client]bool),
		users:      make(map[uint]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		announce:   make(chan announcement),
		depart:     make(chan announcement),
		broadcast:  make(chan envelope, 256),
	}
}

// Run 启动事件循环，需在独立 goroutine 中运行。
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.clients[c] = true
			atomic.StoreInt32(&h.online, int32(len(h.clients)))
			metrics.WsConnections.Inc()

		case c := <-h.unregister:
			if _, ok := h.clients[c]; !ok {
				continue
			}
			// 未显式告别就断开的连接走同一条清理路径。
			if c.userID != 0 {
				h.handleDepart(c, c.userID)
			}
			delete(h.clients, c)
			close(c.send)
			atomic.StoreInt32(&h.online, int32(len(h.clients)))
			metrics.WsConnections.Dec()

		case a := <-h.announce:
			if _, ok := h.clients[a.client]; !ok || a.userID == 0 {
				continue
			}
			// 换身份重新宣告时先退出旧分组，不留下陈旧的成员关系。
			if prev := a.client.userID; prev != 0 && prev != a.userID {
				h.leaveGroup(a.client, prev)
			}
			a.client.userID = a.userID
			group := h.users[a.userID]
			if group == nil {
				group = make(map[*Client]struct{})
				h.users[a.userID] = group
			}
			group[a.client] = struct{}{}
			h.sendToOthers(a.client, presenceFrame("user_connected", a.userID))
			metrics.WsEventsTotal.WithLabelValues("user_connected").Inc()
			h.requestRecount()

		case a := <-h.depart:
			if _, ok := h.clients[a.client]; !ok {
				continue
			}
			h.handleDepart(a.client, a.userID)
			// 身份不匹配的告别只转发通知，真实成员关系留给断开清理。
			if a.client.userID == a.userID {
				a.client.userID = 0
			}

		case env := <-h.broadcast:
			for c := range h.clients {
				if c == env.origin {
					continue
				}
				h.send(c, env.data)
			}
		}
	}
}

func (h *Hub) leaveGroup(c *Client, userID uint) {
	if group, ok := h.users[userID]; ok {
		delete(group, c)
		if len(group) == 0 {
			delete(h.users, userID)
		}
	}
}

func (h *Hub) handleDepart(c *Client, userID uint) {
	h.leaveGroup(c, userID)
	h.sendToOthers(c, presenceFrame("user_disconnected", userID))
	metrics.WsEventsTotal.WithLabelValues("user_disconnected").Inc()
	h.requestRecount()
}

// requestRecount 异步查询会话存储并广播最新在线人数。
// 查询在独立 goroutine 里完成，事件循环不会被存储往返阻塞；
// 代价是连续两次重算可能乱序落地，人数短暂偏差会被下一次事件修正。
// 存储不可用时只记日志跳过广播，不影响连接处理。
func (h *Hub) requestRecount() {
	go func() {
		ids, err := h.sessions.ActiveUserIDs()
		if err != nil {
			log.Error().Err(err).Msg("recount active sessions")
			return
		}
		b, err := json.Marshal(struct {
			Type  string `json:"type"`
			Count int    `json:"count"`
		}{Type: "active_users_updated", Count: len(ids)})
		if err != nil {
			return
		}
		metrics.WsEventsTotal.WithLabelValues("active_users_updated").Inc()
		h.broadcast <- envelope{data: b}
	}()
}

func (h *Hub) sendToOthers(origin *Client, data []byte) {
	for c := range h.clients {
		if c == origin {
			continue
		}
		h.send(c, data)
	}
}

// send 投递一条消息，消费不过来的慢连接直接剔除。
func (h *Hub) send(c *Client, data []byte) {
	select {
	case c.send <- data:
	default:
		h.leaveGroup(c, c.userID)
		delete(h.clients, c)
		close(c.send)
		atomic.StoreInt32(&h.online, int32(len(h.clients)))
		metrics.WsConnections.Dec()
	}
}

// RelayActivity 把一条已落库的日志事件广播出去。
// origin 为来源连接时跳过它（它本地已有数据）；HTTP 侧创建的
// 日志没有来源连接，传 nil，事件发给所有人。
func (h *Hub) RelayActivity(origin *Client, frame []byte) {
	metrics.WsEventsTotal.WithLabelValues("activity_created").Inc()
	h.broadcast <- envelope{origin: origin, data: frame}
}

// Connections 返回当前注册的连接数，供 REST 接口和测试复用。
func (h *Hub) Connections() int { return int(atomic.LoadInt32(&h.online)) }

func presenceFrame(eventType string, userID uint) []byte {
	b, _ := json.Marshal(struct {
		Type      string    `json:"type"`
		UserID    uint      `json:"user_id"`
		Timestamp time.Time `json:"timestamp"`
	}{Type: eventType, UserID: userID, Timestamp: time.Now()})
	return b
}
