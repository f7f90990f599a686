package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	constants "Travault/pkg/constant"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"
)

// newUpgrader 根据配置创建WebSocket升级器
func newUpgrader(cfg *Config) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
		EnableCompression: cfg.EnableCompression,
	}
}

// NewConnection 创建未注册的连接
func NewConnection(hub *Hub, conn *websocket.Conn, userID string) *Connection {
	return &Connection{
		ID:       "conn_" + uuid.NewString(),
		UserID:   userID,
		Conn:     conn,
		Send:     make(chan []byte, hub.config.MessageBufferSize),
		Hub:      hub,
		LastPing: time.Now(),
		IsAlive:  true,
		Topics:   make(map[string]bool),
	}
}

// HandleWebSocket 升级连接并启动读写协程
func HandleWebSocket(hub *Hub, w http.ResponseWriter, r *http.Request, userID string) {
	upgrader := newUpgrader(hub.config)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.Errorf("WebSocket升级失败: %v", err)
		return
	}
	if hub.config.EnableCompression {
		conn.EnableWriteCompression(true)
	}

	connection := NewConnection(hub, conn, userID)
	hub.register <- connection

	go connection.writePump()
	go connection.readPump()
}

func (c *Connection) alive() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.IsAlive
}

// readPump 读取消息的协程
func (c *Connection) readPump() {
	defer func() {
		c.Hub.unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(int64(c.Hub.config.MaxMessageSize))
	_ = c.Conn.SetReadDeadline(time.Now().Add(c.Hub.config.ConnectionTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.touch()
		return c.Conn.SetReadDeadline(time.Now().Add(c.Hub.config.ConnectionTimeout))
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logrus.Errorf("WebSocket读取错误: %v", err)
			}
			break
		}
		c.handleMessage(message)
	}
}

// writePump 发送消息的协程
func (c *Connection) writePump() {
	interval := c.Hub.config.HeartbeatInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(time.Duration(float64(interval) * 0.9))
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			// 每条消息一个帧，客户端按 JSON 对象解析
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Connection) touch() {
	c.mu.Lock()
	c.LastPing = time.Now()
	c.mu.Unlock()
}

// handleMessage 处理客户端消息
func (c *Connection) handleMessage(message []byte) {
	var msg Message
	if err := json.Unmarshal(message, &msg); err != nil {
		logrus.Errorf("消息解析失败: %v", err)
		c.reply(MessageTypeError, ErrInvalidMessageData)
		return
	}
	msg.From = c.UserID
	c.touch()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch msg.Type {
	case MessageTypePing:
		c.reply(MessageTypePong, nil)
	case MessageTypeJoinGroup:
		c.handleJoinGroup(ctx, msg)
	case MessageTypeLeaveGroup:
		c.handleLeaveGroup(msg)
	case MessageTypeLocationUpdate:
		c.handleLocationUpdate(ctx, msg)
	case MessageTypeGroupMessage:
		c.handleGroupMessage(ctx, msg)
	case MessageTypeEmergencyAlert:
		c.handleEmergencyAlert(msg)
	default:
		logrus.Warnf("未知的消息类型: %s", msg.Type)
		c.reply(MessageTypeError, ErrInvalidMessageType)
	}
}

// groupID 兼容 "id" 与 {"groupId": "id"} 两种写法
func groupID(data interface{}) string {
	if m, ok := data.(map[string]interface{}); ok {
		return strings.TrimSpace(cast.ToString(m["groupId"]))
	}
	return strings.TrimSpace(cast.ToString(data))
}

func (c *Connection) handleJoinGroup(ctx context.Context, msg Message) {
	id := groupID(msg.Data)
	if id == "" {
		c.reply(MessageTypeError, ErrInvalidMessageData)
		return
	}
	if auth := c.Hub.getHooks().AuthorizeGroup; auth != nil && !auth(ctx, c.UserID, id) {
		c.reply(MessageTypeError, ErrNotInGroup)
		return
	}
	c.JoinTopic(GroupTopic(id))
	c.reply(MessageTypeGroupJoined, id)
	logrus.Infof("用户 %s 加入组 %s", c.UserID, id)
}

func (c *Connection) handleLeaveGroup(msg Message) {
	id := groupID(msg.Data)
	if id == "" {
		c.reply(MessageTypeError, ErrInvalidMessageData)
		return
	}
	c.LeaveTopic(GroupTopic(id))
	c.reply(MessageTypeGroupLeft, id)
	logrus.Infof("用户 %s 离开组 %s", c.UserID, id)
}

func (c *Connection) handleLocationUpdate(ctx context.Context, msg Message) {
	var u LocationUpdate
	if err := decodeData(msg.Data, &u); err != nil {
		c.reply(MessageTypeError, ErrInvalidMessageData)
		return
	}
	if hook := c.Hub.getHooks().OnLocationUpdate; hook != nil {
		if err := hook(ctx, c.UserID, u); err != nil {
			logrus.Warnf("用户 %s 位置更新失败: %v", c.UserID, err)
			c.reply(MessageTypeError, err.Error())
		}
		return
	}
	c.Hub.publish(ContactsTopic(c.UserID), Event{
		Type: MessageTypeContactLocationUpdate,
		Data: map[string]interface{}{"userId": c.UserID, "location": u, "timestamp": time.Now().UTC()},
	}, c.UserID, c.ID)
}

func (c *Connection) handleGroupMessage(ctx context.Context, msg Message) {
	var body struct {
		GroupID string `json:"groupId"`
		Message string `json:"message"`
	}
	if err := decodeData(msg.Data, &body); err != nil || body.GroupID == "" || strings.TrimSpace(body.Message) == "" {
		c.reply(MessageTypeError, ErrInvalidMessageData)
		return
	}
	topic := GroupTopic(body.GroupID)
	if !c.IsInTopic(topic) {
		c.reply(MessageTypeError, ErrNotInGroup)
		return
	}
	if hook := c.Hub.getHooks().OnGroupMessage; hook != nil {
		if err := hook(ctx, c.UserID, body.GroupID, body.Message); err != nil {
			c.reply(MessageTypeError, err.Error())
			return
		}
	}
	c.Hub.publish(topic, Event{
		Type: MessageTypeNewGroupMessage,
		Data: map[string]interface{}{"userId": c.UserID, "groupId": body.GroupID, "message": body.Message, "timestamp": time.Now().UTC()},
	}, c.UserID, c.ID)
}

func (c *Connection) handleEmergencyAlert(msg Message) {
	data := map[string]interface{}{}
	if m, ok := msg.Data.(map[string]interface{}); ok {
		for k, v := range m {
			data[k] = v
		}
	}
	data["userId"] = c.UserID
	data["timestamp"] = time.Now().UTC()
	c.Hub.publish(constants.TopicEmergencyResponders, Event{Type: MessageTypeNewEmergency, Data: data}, c.UserID, c.ID)
}

func decodeData(data interface{}, v interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

// reply 直接回复当前连接
func (c *Connection) reply(msgType string, data interface{}) {
	if err := c.SendMessage(&Message{Type: msgType, Data: data, Timestamp: time.Now().Unix()}); err != nil {
		logrus.Warnf("连接 %s 发送缓冲区已满", c.ID)
	}
}

// SendMessage 发送消息给当前连接
func (c *Connection) SendMessage(message *Message) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	select {
	case c.Send <- data:
		return nil
	default:
		return fmt.Errorf("发送缓冲区已满")
	}
}

// JoinTopic 订阅主题
func (c *Connection) JoinTopic(topic string) {
	c.mu.Lock()
	c.Topics[topic] = true
	c.mu.Unlock()

	c.Hub.mu.Lock()
	if _, ok := c.Hub.connections[c.ID]; ok {
		c.Hub.addTopicLocked(topic, c.ID)
	}
	c.Hub.mu.Unlock()
}

// LeaveTopic 取消订阅
func (c *Connection) LeaveTopic(topic string) {
	c.mu.Lock()
	delete(c.Topics, topic)
	c.mu.Unlock()

	c.Hub.mu.Lock()
	c.Hub.removeTopicLocked(topic, c.ID)
	c.Hub.mu.Unlock()
}

// IsInTopic 是否已订阅
func (c *Connection) IsInTopic(topic string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Topics[topic]
}
