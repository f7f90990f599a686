package websocket

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Message 线上传输的消息结构
type Message struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp int64       `json:"timestamp"`
	From      string      `json:"from,omitempty"`
	To        string      `json:"to,omitempty"`
	Group     string      `json:"group,omitempty"`
}

// Event 发布到主题的事件
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Publisher 业务层依赖的发布接口
type Publisher interface {
	Publish(topic string, ev Event)
}

// LocationUpdate 客户端上报的位置
type LocationUpdate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address"`
}

// Hooks 连接收到业务消息时的回调，未设置的回调跳过对应的校验或持久化
type Hooks struct {
	OnLocationUpdate func(ctx context.Context, userID string, u LocationUpdate) error
	AuthorizeGroup   func(ctx context.Context, userID, groupID string) bool
	OnGroupMessage   func(ctx context.Context, userID, groupID, message string) error
}

// Connection 表示一个WebSocket连接
type Connection struct {
	ID       string
	UserID   string
	Conn     *websocket.Conn
	Send     chan []byte
	Hub      *Hub
	LastPing time.Time
	IsAlive  bool
	mu       sync.RWMutex
	Topics   map[string]bool
}

type envelope struct {
	msg     *Message
	topic   string
	exclude string
}

// Hub 管理所有连接与主题订阅
type Hub struct {
	connections      map[string]*Connection
	userConnections  map[string]map[string]bool
	topicConnections map[string]map[string]bool

	broadcast  chan *envelope
	register   chan *Connection
	unregister chan *Connection

	connectionCount int64
	config          *Config
	hooks           Hooks
	mu              sync.RWMutex

	// 进程内订阅者
	subMu       sync.RWMutex
	subscribers map[string]map[uint64]chan Event
	subSeq      uint64

	ctx    context.Context
	cancel context.CancelFunc

	shardCount    int
	shardConns    []map[string]*Connection
	shardLocks    []sync.RWMutex
	broadcastJobs chan broadcastJob
}

type broadcastJob struct {
	shard int
	data  []byte
}

// NewHub 创建新的Hub实例
func NewHub(config *Config) *Hub {
	if config == nil {
		config = DefaultConfig()
	}
	ctx, cancel := context.WithCancel(context.Background())

	hub := &Hub{
		connections:      make(map[string]*Connection),
		userConnections:  make(map[string]map[string]bool),
		topicConnections: make(map[string]map[string]bool),
		broadcast:        make(chan *envelope, config.MessageQueueSize),
		register:         make(chan *Connection, 256),
		unregister:       make(chan *Connection, 256),
		subscribers:      make(map[string]map[uint64]chan Event),
		config:           config,
		ctx:              ctx,
		cancel:           cancel,
	}

	if hub.config.ShardCount <= 0 {
		hub.config.ShardCount = 1
	}
	hub.shardCount = hub.config.ShardCount
	hub.shardConns = make([]map[string]*Connection, hub.shardCount)
	hub.shardLocks = make([]sync.RWMutex, hub.shardCount)
	for i := 0; i < hub.shardCount; i++ {
		hub.shardConns[i] = make(map[string]*Connection)
	}

	if hub.config.BroadcastWorkerCount <= 0 {
		hub.config.BroadcastWorkerCount = 1
	}
	hub.broadcastJobs = make(chan broadcastJob, hub.config.MessageQueueSize)
	for i := 0; i < hub.config.BroadcastWorkerCount; i++ {
		go hub.broadcastWorker()
	}

	go hub.run()
	return hub
}

// SetHooks 设置业务回调，需在接受连接前调用
func (h *Hub) SetHooks(hooks Hooks) {
	h.mu.Lock()
	h.hooks = hooks
	h.mu.Unlock()
}

func (h *Hub) getHooks() Hooks {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.hooks
}

// run Hub主循环
func (h *Hub) run() {
	ticker := time.NewTicker(h.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return
		case conn := <-h.register:
			h.registerConnection(conn)
		case conn := <-h.unregister:
			h.unregisterConnection(conn)
		case env := <-h.broadcast:
			// 单次序列化减少重复开销
			data, err := json.Marshal(env.msg)
			if err != nil {
				logrus.Errorf("消息序列化失败: %v", err)
				continue
			}
			if env.topic == "" {
				h.enqueueBroadcastAll(data)
			} else {
				h.sendToTopic(env.topic, data, env.exclude)
			}
		case <-ticker.C:
			h.checkHeartbeats()
		}
	}
}

// Publish 向主题发布事件：本地订阅者同步投递，socket 连接异步投递
func (h *Hub) Publish(topic string, ev Event) {
	h.publish(topic, ev, "", "")
}

// Broadcast 发送给所有连接
func (h *Hub) Broadcast(ev Event) {
	h.enqueue(&envelope{msg: &Message{Type: ev.Type, Data: ev.Data, Timestamp: time.Now().Unix()}})
}

func (h *Hub) publish(topic string, ev Event, from, excludeConn string) {
	h.deliverLocal(topic, ev)
	h.enqueue(&envelope{
		msg:     &Message{Type: ev.Type, Data: ev.Data, Timestamp: time.Now().Unix(), From: from, Group: topic},
		topic:   topic,
		exclude: excludeConn,
	})
}

func (h *Hub) enqueue(env *envelope) {
	select {
	case <-h.ctx.Done():
	case h.broadcast <- env:
	default:
		logrus.Warnf("事件队列已满，丢弃 %s/%s", env.topic, env.msg.Type)
	}
}

// Subscribe 订阅主题，返回的 cancel 可重复调用
func (h *Hub) Subscribe(topic string) (<-chan Event, func()) {
	ch := make(chan Event, h.config.MessageBufferSize)
	id := atomic.AddUint64(&h.subSeq, 1)

	h.subMu.Lock()
	if h.subscribers[topic] == nil {
		h.subscribers[topic] = make(map[uint64]chan Event)
	}
	h.subscribers[topic][id] = ch
	h.subMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.subMu.Lock()
			defer h.subMu.Unlock()
			if subs, ok := h.subscribers[topic]; ok {
				if _, ok := subs[id]; ok {
					delete(subs, id)
					close(ch)
				}
				if len(subs) == 0 {
					delete(h.subscribers, topic)
				}
			}
		})
	}
	return ch, cancel
}

func (h *Hub) deliverLocal(topic string, ev Event) {
	h.subMu.RLock()
	defer h.subMu.RUnlock()
	for id, ch := range h.subscribers[topic] {
		select {
		case ch <- ev:
		default:
			logrus.Debugf("订阅者 %d 缓冲区已满，丢弃 %s", id, ev.Type)
		}
	}
}

// registerConnection 注册连接，并加入个人主题
func (h *Hub) registerConnection(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if atomic.LoadInt64(&h.connectionCount) >= h.config.MaxConnections {
		if conn.Conn != nil {
			conn.Conn.Close()
		}
		logrus.Warnf("达到最大连接数限制: %d", h.config.MaxConnections)
		return
	}

	h.connections[conn.ID] = conn
	atomic.AddInt64(&h.connectionCount, 1)

	sh := h.shardIndex(conn.ID)
	h.shardLocks[sh].Lock()
	h.shardConns[sh][conn.ID] = conn
	h.shardLocks[sh].Unlock()

	if conn.UserID != "" {
		if h.userConnections[conn.UserID] == nil {
			h.userConnections[conn.UserID] = make(map[string]bool)
		}
		h.userConnections[conn.UserID][conn.ID] = true
		conn.mu.Lock()
		conn.Topics[UserTopic(conn.UserID)] = true
		conn.mu.Unlock()
	}

	conn.mu.RLock()
	for topic := range conn.Topics {
		h.addTopicLocked(topic, conn.ID)
	}
	conn.mu.RUnlock()

	logrus.Infof("WebSocket连接已注册: %s, 用户: %s, 当前连接数: %d",
		conn.ID, conn.UserID, atomic.LoadInt64(&h.connectionCount))
}

// unregisterConnection 注销连接
func (h *Hub) unregisterConnection(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.connections[conn.ID]; !exists {
		return
	}
	delete(h.connections, conn.ID)
	atomic.AddInt64(&h.connectionCount, -1)

	sh := h.shardIndex(conn.ID)
	h.shardLocks[sh].Lock()
	delete(h.shardConns[sh], conn.ID)
	h.shardLocks[sh].Unlock()

	if conn.UserID != "" && h.userConnections[conn.UserID] != nil {
		delete(h.userConnections[conn.UserID], conn.ID)
		if len(h.userConnections[conn.UserID]) == 0 {
			delete(h.userConnections, conn.UserID)
		}
	}

	conn.mu.RLock()
	for topic := range conn.Topics {
		h.removeTopicLocked(topic, conn.ID)
	}
	conn.mu.RUnlock()

	close(conn.Send)
	logrus.Infof("WebSocket连接已注销: %s, 当前连接数: %d",
		conn.ID, atomic.LoadInt64(&h.connectionCount))
}

func (h *Hub) addTopicLocked(topic, connID string) {
	if h.topicConnections[topic] == nil {
		h.topicConnections[topic] = make(map[string]bool)
	}
	h.topicConnections[topic][connID] = true
}

func (h *Hub) removeTopicLocked(topic, connID string) {
	if h.topicConnections[topic] == nil {
		return
	}
	delete(h.topicConnections[topic], connID)
	if len(h.topicConnections[topic]) == 0 {
		delete(h.topicConnections, topic)
	}
}

// sendToTopic 发送给主题下的连接，exclude 为发送方连接
func (h *Hub) sendToTopic(topic string, data []byte, exclude string) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for connID := range h.topicConnections[topic] {
		if connID == exclude {
			continue
		}
		if conn, ok := h.connections[connID]; ok && conn.alive() {
			h.trySend(conn, data, func() { logrus.Warnf("主题 %s 的连接 %s 发送缓冲区已满", topic, connID) })
		}
	}
}

// checkHeartbeats 检查心跳
func (h *Hub) checkHeartbeats() {
	h.mu.RLock()
	defer h.mu.RUnlock()

	now := time.Now()
	for _, conn := range h.connections {
		conn.mu.Lock()
		expired := now.Sub(conn.LastPing) > h.config.ConnectionTimeout
		if expired {
			conn.IsAlive = false
		}
		conn.mu.Unlock()
		if expired && conn.Conn != nil {
			logrus.Warnf("连接 %s 心跳超时，准备关闭", conn.ID)
			conn.Conn.Close()
		}
	}
}

// GetConnectionCount 获取当前连接数
func (h *Hub) GetConnectionCount() int64 {
	return atomic.LoadInt64(&h.connectionCount)
}

// GetUserConnections 获取用户的连接数
func (h *Hub) GetUserConnections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.userConnections[userID])
}

// GetTopicConnections 获取主题下的连接数
func (h *Hub) GetTopicConnections(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topicConnections[topic])
}

// Close 关闭Hub
func (h *Hub) Close() {
	h.cancel()

	h.mu.Lock()
	for _, conn := range h.connections {
		if conn.Conn != nil {
			conn.Conn.Close()
		}
	}
	h.mu.Unlock()

	h.subMu.Lock()
	for topic, subs := range h.subscribers {
		for id, ch := range subs {
			close(ch)
			delete(subs, id)
		}
		delete(h.subscribers, topic)
	}
	h.subMu.Unlock()

	logrus.Info("WebSocket Hub已关闭")
}

// shardIndex 计算分片索引
func (h *Hub) shardIndex(id string) int {
	if h.shardCount <= 1 {
		return 0
	}
	hasher := fnv.New32a()
	_, _ = hasher.Write([]byte(id))
	return int(hasher.Sum32() % uint32(h.shardCount))
}

// enqueueBroadcastAll 将广播任务按分片入队
func (h *Hub) enqueueBroadcastAll(data []byte) {
	for i := 0; i < h.shardCount; i++ {
		select {
		case h.broadcastJobs <- broadcastJob{shard: i, data: data}:
		default:
			logrus.Warnf("广播作业队列已满，消息被丢弃")
		}
	}
}

// broadcastWorker 广播worker
func (h *Hub) broadcastWorker() {
	for {
		select {
		case <-h.ctx.Done():
			return
		case job := <-h.broadcastJobs:
			h.shardLocks[job.shard].RLock()
			for _, conn := range h.shardConns[job.shard] {
				if conn.alive() {
					h.trySend(conn, job.data, func() { logrus.Debugf("连接 %s 发送缓冲区满，已按策略处理", conn.ID) })
				}
			}
			h.shardLocks[job.shard].RUnlock()
		}
	}
}

// trySend 背压策略
func (h *Hub) trySend(conn *Connection, data []byte, onDrop func()) {
	if h.config.DropOnFull {
		select {
		case conn.Send <- data:
		default:
			onDrop()
			if h.config.CloseOnBackpressure && conn.Conn != nil {
				conn.Conn.Close()
			}
		}
		return
	}
	timeout := h.config.SendTimeout
	if timeout <= 0 {
		timeout = 50 * time.Millisecond
	}
	select {
	case conn.Send <- data:
	case <-time.After(timeout):
		onDrop()
		if h.config.CloseOnBackpressure && conn.Conn != nil {
			conn.Conn.Close()
		}
	}
}
