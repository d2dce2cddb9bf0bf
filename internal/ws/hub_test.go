package ws

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeSessions struct {
	mu    sync.Mutex
	ids   []uint
	err   error
	calls int
}

func (f *fakeSessions) ActiveUserIDs() ([]uint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.ids, nil
}

func (f *fakeSessions) set(ids []uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = ids
}

func (f *fakeSessions) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestClient(h *Hub) *Client {
	return &Client{hub: h, send: make(chan []byte, 256)}
}

type frame map[string]interface{}

// collectFrames 在给定时间窗口内收集一个客户端收到的所有事件帧。
func collectFrames(c *Client, wait time.Duration) []frame {
	var out []frame
	deadline := time.After(wait)
	for {
		select {
		case b, ok := <-c.send:
			if !ok {
				return out
			}
			var f frame
			if err := json.Unmarshal(b, &f); err == nil {
				out = append(out, f)
			}
		case <-deadline:
			return out
		}
	}
}

func hasFrame(frames []frame, eventType string) bool {
	for _, f := range frames {
		if f["type"] == eventType {
			return true
		}
	}
	return false
}

func TestNewHub(t *testing.T) {
	hub := NewHub(&fakeSessions{})
	if hub == nil {
		t.Fatal("NewHub() returned nil")
	}
	if hub.clients == nil || hub.users == nil {
		t.Error("NewHub() registry maps are nil")
	}
}

func TestHub_RegisterUnregister(t *testing.T) {
	hub := NewHub(&fakeSessions{})
	go hub.Run()

	c := newTestClient(hub)
	hub.register <- c
	time.Sleep(10 * time.Millisecond)

	if hub.Connections() != 1 {
		t.Errorf("Connections() after register = %d, want 1", hub.Connections())
	}

	hub.unregister <- c
	time.Sleep(10 * time.Millisecond)

	if hub.Connections() != 0 {
		t.Errorf("Connections() after unregister = %d, want 0", hub.Connections())
	}

	// send channel must be closed so the write pump exits
	if _, ok := <-c.send; ok {
		t.Error("send channel still open after unregister")
	}
}

func TestHub_AnnounceBroadcastsToOthers(t *testing.T) {
	sessions := &fakeSessions{ids: []uint{1}}
	hub := NewHub(sessions)
	go hub.Run()

	a := newTestClient(hub)
	b := newTestClient(hub)
	hub.register <- a
	hub.register <- b
	time.Sleep(10 * time.Millisecond)

	hub.announce <- announcement{client: a, userID: 1}

	bFrames := collectFrames(b, 200*time.Millisecond)
	if !hasFrame(bFrames, "user_connected") {
		t.Error("other connection did not receive user_connected")
	}
	if !hasFrame(bFrames, "active_users_updated") {
		t.Error("other connection did not receive active_users_updated")
	}
	for _, f := range bFrames {
		if f["type"] == "user_connected" && f["user_id"] != float64(1) {
			t.Errorf("user_connected user_id = %v, want 1", f["user_id"])
		}
		if f["type"] == "active_users_updated" && f["count"] != float64(1) {
			t.Errorf("active_users_updated count = %v, want 1", f["count"])
		}
	}

	// the announcing connection gets the count update but not its own presence echo
	aFrames := collectFrames(a, 100*time.Millisecond)
	if hasFrame(aFrames, "user_connected") {
		t.Error("announcing connection received its own user_connected")
	}
	if !hasFrame(aFrames, "active_users_updated") {
		t.Error("announcing connection did not receive active_users_updated")
	}
}

func TestHub_AnnounceWithoutUserIDIgnored(t *testing.T) {
	sessions := &fakeSessions{}
	hub := NewHub(sessions)
	go hub.Run()

	a := newTestClient(hub)
	b := newTestClient(hub)
	hub.register <- a
	hub.register <- b
	time.Sleep(10 * time.Millisecond)

	hub.announce <- announcement{client: a, userID: 0}
	time.Sleep(50 * time.Millisecond)

	if frames := collectFrames(b, 50*time.Millisecond); len(frames) != 0 {
		t.Errorf("anonymous announce produced %d frames, want 0", len(frames))
	}
	if sessions.callCount() != 0 {
		t.Errorf("anonymous announce triggered %d recounts, want 0", sessions.callCount())
	}
}

// 宣告身份后断开，注册表必须不再持有该连接，且其他客户端收到离线通知。
func TestHub_AnnounceThenDisconnect(t *testing.T) {
	sessions := &fakeSessions{ids: []uint{1}}
	hub := NewHub(sessions)
	go hub.Run()

	a := newTestClient(hub)
	b := newTestClient(hub)
	hub.register <- a
	hub.register <- b
	time.Sleep(10 * time.Millisecond)

	hub.announce <- announcement{client: a, userID: 1}
	time.Sleep(50 * time.Millisecond)
	collectFrames(b, 50*time.Millisecond) // drain the announce-era frames
	recountsAfterAnnounce := sessions.callCount()

	// 未显式告别，直接断开：走和显式告别相同的重算路径
	sessions.set([]uint{})
	hub.unregister <- a
	time.Sleep(50 * time.Millisecond)

	if hub.Connections() != 1 {
		t.Errorf("Connections() after disconnect = %d, want 1", hub.Connections())
	}
	if sessions.callCount() <= recountsAfterAnnounce {
		t.Error("disconnect of announced connection did not trigger recount")
	}

	frames := collectFrames(b, 100*time.Millisecond)
	if !hasFrame(frames, "user_disconnected") {
		t.Error("other connection did not receive user_disconnected")
	}
	for _, f := range frames {
		if f["type"] == "active_users_updated" && f["count"] != float64(0) {
			t.Errorf("active_users_updated count = %v, want 0", f["count"])
		}
	}
}

func TestHub_DisconnectWithoutAnnounce(t *testing.T) {
	sessions := &fakeSessions{}
	hub := NewHub(sessions)
	go hub.Run()

	a := newTestClient(hub)
	b := newTestClient(hub)
	hub.register <- a
	hub.register <- b
	time.Sleep(10 * time.Millisecond)

	hub.unregister <- a
	time.Sleep(50 * time.Millisecond)

	if sessions.callCount() != 0 {
		t.Errorf("anonymous disconnect triggered %d recounts, want 0", sessions.callCount())
	}
	if frames := collectFrames(b, 50*time.Millisecond); hasFrame(frames, "user_disconnected") {
		t.Error("anonymous disconnect broadcast user_disconnected")
	}
}

// 同一用户从两个连接宣告身份：人数来自会话存储，开两个标签页只算一个人。
func TestHub_SameUserTwoConnections(t *testing.T) {
	sessions := &fakeSessions{ids: []uint{7}}
	hub := NewHub(sessions)
	go hub.Run()

	a := newTestClient(hub)
	b := newTestClient(hub)
	watcher := newTestClient(hub)
	hub.register <- a
	hub.register <- b
	hub.register <- watcher
	time.Sleep(10 * time.Millisecond)

	hub.announce <- announcement{client: a, userID: 7}
	hub.announce <- announcement{client: b, userID: 7}
	time.Sleep(50 * time.Millisecond)

	frames := collectFrames(watcher, 100*time.Millisecond)
	for _, f := range frames {
		if f["type"] == "active_users_updated" && f["count"] != float64(1) {
			t.Errorf("active_users_updated count = %v, want 1", f["count"])
		}
	}

	// 两个连接都关闭后在线数归零（存储里的会话也随之关闭）
	sessions.set([]uint{})
	hub.unregister <- a
	hub.unregister <- b
	time.Sleep(50 * time.Millisecond)

	final := collectFrames(watcher, 100*time.Millisecond)
	var lastCount float64 = -1
	for _, f := range final {
		if f["type"] == "active_users_updated" {
			lastCount = f["count"].(float64)
		}
	}
	if lastCount != 0 {
		t.Errorf("final active_users_updated count = %v, want 0", lastCount)
	}
}

func TestHub_RelayActivitySkipsOrigin(t *testing.T) {
	hub := NewHub(&fakeSessions{})
	go hub.Run()

	origin := newTestClient(hub)
	other := newTestClient(hub)
	hub.register <- origin
	hub.register <- other
	time.Sleep(10 * time.Millisecond)

	payload := []byte(`{"type":"activity_created","action":"Updated user 5 status to inactive","user_id":2}`)
	hub.RelayActivity(origin, payload)
	time.Sleep(50 * time.Millisecond)

	if frames := collectFrames(origin, 50*time.Millisecond); hasFrame(frames, "activity_created") {
		t.Error("relay delivered the event back to the originating connection")
	}
	if frames := collectFrames(other, 50*time.Millisecond); !hasFrame(frames, "activity_created") {
		t.Error("relay did not deliver the event to other connections")
	}
}

func TestHub_RelayActivityNilOriginReachesAll(t *testing.T) {
	hub := NewHub(&fakeSessions{})
	go hub.Run()

	a := newTestClient(hub)
	b := newTestClient(hub)
	hub.register <- a
	hub.register <- b
	time.Sleep(10 * time.Millisecond)

	hub.RelayActivity(nil, []byte(`{"type":"activity_created","action":"x"}`))
	time.Sleep(50 * time.Millisecond)

	for i, c := range []*Client{a, b} {
		if frames := collectFrames(c, 50*time.Millisecond); !hasFrame(frames, "activity_created") {
			t.Errorf("client %d did not receive HTTP-originated activity", i)
		}
	}
}

// 会话存储不可用时跳过广播，连接处理不受影响，下一次成功的重算自行修正。
func TestHub_RecountStorageError(t *testing.T) {
	sessions := &fakeSessions{err: errors.New("storage unreachable")}
	hub := NewHub(sessions)
	go hub.Run()

	a := newTestClient(hub)
	b := newTestClient(hub)
	hub.register <- a
	hub.register <- b
	time.Sleep(10 * time.Millisecond)

	hub.announce <- announcement{client: a, userID: 1}
	time.Sleep(50 * time.Millisecond)

	frames := collectFrames(b, 100*time.Millisecond)
	if hasFrame(frames, "active_users_updated") {
		t.Error("recount broadcast despite storage error")
	}
	if !hasFrame(frames, "user_connected") {
		t.Error("presence notification suppressed by storage error")
	}
	if hub.Connections() != 2 {
		t.Errorf("Connections() = %d, want 2", hub.Connections())
	}
}

func TestHub_ExplicitDepartClearsIdentity(t *testing.T) {
	sessions := &fakeSessions{ids: []uint{3}}
	hub := NewHub(sessions)
	go hub.Run()

	a := newTestClient(hub)
	b := newTestClient(hub)
	hub.register <- a
	hub.register <- b
	time.Sleep(10 * time.Millisecond)

	hub.announce <- announcement{client: a, userID: 3}
	time.Sleep(50 * time.Millisecond)
	hub.depart <- announcement{client: a, userID: 3}
	time.Sleep(50 * time.Millisecond)
	recounts := sessions.callCount()

	// 已告别的连接再断开，不应再次广播离线或触发重算
	hub.unregister <- a
	time.Sleep(50 * time.Millisecond)
	if sessions.callCount() != recounts {
		t.Error("disconnect after explicit departure triggered an extra recount")
	}

	frames := collectFrames(b, 100*time.Millisecond)
	count := 0
	for _, f := range frames {
		if f["type"] == "user_disconnected" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("user_disconnected broadcast %d times, want 1", count)
	}
}

// 换身份重新宣告：旧分组不得残留成员，断开时只广播当前身份的离线。
func TestHub_ReannounceSwitchesGroup(t *testing.T) {
	sessions := &fakeSessions{ids: []uint{2}}
	hub := NewHub(sessions)
	go hub.Run()

	c := newTestClient(hub)
	watcher := newTestClient(hub)
	hub.register <- c
	hub.register <- watcher
	time.Sleep(10 * time.Millisecond)

	hub.announce <- announcement{client: c, userID: 1}
	hub.announce <- announcement{client: c, userID: 2}

	// 经由广播帧同步：收到转发说明 run 循环已消化前面的宣告
	hub.RelayActivity(nil, []byte(`{"type":"activity_created"}`))
	deadline := time.After(200 * time.Millisecond)
	for synced := false; !synced; {
		select {
		case b := <-watcher.send:
			var f frame
			if json.Unmarshal(b, &f) == nil && f["type"] == "activity_created" {
				synced = true
			}
		case <-deadline:
			t.Fatal("relay frame never arrived")
		}
	}

	if _, ok := hub.users[1]; ok {
		t.Error("previous group still holds the re-announced connection")
	}
	if len(hub.users[2]) != 1 {
		t.Errorf("current group size = %d, want 1", len(hub.users[2]))
	}

	hub.unregister <- c
	time.Sleep(50 * time.Millisecond)

	frames := collectFrames(watcher, 100*time.Millisecond)
	for _, f := range frames {
		if f["type"] == "user_disconnected" && f["user_id"] != float64(2) {
			t.Errorf("user_disconnected user_id = %v, want 2", f["user_id"])
		}
	}
}

// 身份不匹配的告别不清除连接的真实身份，断开时仍按真实身份清理。
func TestHub_MismatchedDepartKeepsIdentity(t *testing.T) {
	sessions := &fakeSessions{ids: []uint{5}}
	hub := NewHub(sessions)
	go hub.Run()

	c := newTestClient(hub)
	watcher := newTestClient(hub)
	hub.register <- c
	hub.register <- watcher
	time.Sleep(10 * time.Millisecond)

	hub.announce <- announcement{client: c, userID: 5}
	time.Sleep(50 * time.Millisecond)
	hub.depart <- announcement{client: c, userID: 9}
	time.Sleep(50 * time.Millisecond)
	collectFrames(watcher, 50*time.Millisecond)

	hub.unregister <- c
	time.Sleep(50 * time.Millisecond)

	frames := collectFrames(watcher, 100*time.Millisecond)
	found := false
	for _, f := range frames {
		if f["type"] == "user_disconnected" && f["user_id"] == float64(5) {
			found = true
		}
	}
	if !found {
		t.Error("disconnect did not clean up the real announced identity")
	}
}

func TestHub_SlowConsumerDropped(t *testing.T) {
	hub := NewHub(&fakeSessions{})
	go hub.Run()

	slow := &Client{hub: hub, send: make(chan []byte)} // no buffer, nobody reading
	ok := newTestClient(hub)
	hub.register <- slow
	hub.register <- ok
	time.Sleep(10 * time.Millisecond)

	hub.RelayActivity(nil, []byte(`{"type":"activity_created"}`))
	time.Sleep(50 * time.Millisecond)

	if hub.Connections() != 1 {
		t.Errorf("Connections() = %d, want 1 after slow consumer dropped", hub.Connections())
	}
}
