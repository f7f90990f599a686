package websocket

import (
	"fmt"

	constants "Travault/pkg/constant"
)

// 客户端 -> 服务端
const (
	MessageTypePing           = "ping"
	MessageTypeJoinGroup      = "join_group"
	MessageTypeLeaveGroup     = "leave_group"
	MessageTypeLocationUpdate = "location_update"
	MessageTypeGroupMessage   = "group_message"
	MessageTypeEmergencyAlert = "emergency_alert"
)

// 服务端 -> 客户端
const (
	MessageTypePong                  = "pong"
	MessageTypeGroupJoined           = "group_joined"
	MessageTypeGroupLeft             = "group_left"
	MessageTypeError                 = "error"
	MessageTypeNotification          = "notification"
	MessageTypeNewEmergency          = "new_emergency"
	MessageTypeNewSafetyAlert        = "new_safety_alert"
	MessageTypeContactLocationUpdate = "contact_location_update"
	MessageTypeNewGroupMessage       = "new_group_message"
)

const (
	DefaultMaxConnections    = 10000
	DefaultHeartbeatInterval = 30
	DefaultConnectionTimeout = 60
	DefaultMessageBufferSize = 256
	DefaultMessageQueueSize  = 1000
	DefaultReadBufferSize    = 1024
	DefaultWriteBufferSize   = 1024
	DefaultMaxMessageSize    = 4096

	EnvWebSocketMaxConnections      = "WEBSOCKET_MAX_CONNECTIONS"
	EnvWebSocketHeartbeatInterval   = "WEBSOCKET_HEARTBEAT_INTERVAL"
	EnvWebSocketConnectionTimeout   = "WEBSOCKET_CONNECTION_TIMEOUT"
	EnvWebSocketMessageBufferSize   = "WEBSOCKET_MESSAGE_BUFFER_SIZE"
	EnvWebSocketMessageQueueSize    = "WEBSOCKET_MESSAGE_QUEUE_SIZE"
	EnvWebSocketEnableCompression   = "WEBSOCKET_ENABLE_COMPRESSION"
	EnvWebSocketShardCount          = "WEBSOCKET_SHARD_COUNT"
	EnvWebSocketBroadcastWorkers    = "WEBSOCKET_BROADCAST_WORKERS"
	EnvWebSocketDropOnFull          = "WEBSOCKET_DROP_ON_FULL"
	EnvWebSocketReadBufferSize      = "WEBSOCKET_READ_BUFFER_SIZE"
	EnvWebSocketWriteBufferSize     = "WEBSOCKET_WRITE_BUFFER_SIZE"
	EnvWebSocketMaxMessageSize      = "WEBSOCKET_MAX_MESSAGE_SIZE"
	EnvWebSocketCloseOnBackpressure = "WEBSOCKET_CLOSE_ON_BACKPRESSURE"
	EnvWebSocketSendTimeoutMs       = "WEBSOCKET_SEND_TIMEOUT_MS"

	ErrInvalidMessageType = "invalid message type"
	ErrInvalidMessageData = "invalid message data"
	ErrNotInGroup         = "not a member of this group"

	RouteWebSocket      = "/ws"
	RouteWebSocketStats = "/ws/stats"
)

// UserTopic 用户的个人主题
func UserTopic(userID interface{}) string {
	return fmt.Sprintf("%s%v", constants.TopicUserPrefix, userID)
}

// ContactsTopic 关注某个用户位置的主题
func ContactsTopic(userID interface{}) string {
	return UserTopic(userID) + constants.TopicContactsSuffix
}

// GroupTopic 旅行小组的聊天主题
func GroupTopic(groupID string) string {
	return constants.TopicGroupPrefix + groupID
}
