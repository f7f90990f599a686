package websocket

import (
	"fmt"
	"time"

	"Travault/pkg/util"
)

// Config WebSocket配置
type Config struct {
	// 最大连接数
	MaxConnections int64
	// 心跳间隔
	HeartbeatInterval time.Duration
	// 连接超时时间
	ConnectionTimeout time.Duration
	// 每个连接/订阅者的缓冲区大小
	MessageBufferSize int
	// 待分发事件队列大小
	MessageQueueSize int
	ReadBufferSize   int
	WriteBufferSize  int
	MaxMessageSize   int
	// 是否启用压缩
	EnableCompression bool
	// 分片数量
	ShardCount int
	// 广播worker数量
	BroadcastWorkerCount int
	// 发送缓冲区满时是否丢弃
	DropOnFull bool
	// 慢消费者策略：背压触发时直接断开
	CloseOnBackpressure bool
	// 发送阻塞超时（用于非 DropOnFull 模式）
	SendTimeout time.Duration
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		MaxConnections:       DefaultMaxConnections,
		HeartbeatInterval:    DefaultHeartbeatInterval * time.Second,
		ConnectionTimeout:    DefaultConnectionTimeout * time.Second,
		MessageBufferSize:    DefaultMessageBufferSize,
		MessageQueueSize:     DefaultMessageQueueSize,
		ReadBufferSize:       DefaultReadBufferSize,
		WriteBufferSize:      DefaultWriteBufferSize,
		MaxMessageSize:       DefaultMaxMessageSize,
		EnableCompression:    true,
		ShardCount:           8,
		BroadcastWorkerCount: 4,
		DropOnFull:           true,
		SendTimeout:          50 * time.Millisecond,
	}
}

// LoadConfigFromEnv 从环境变量加载WebSocket配置
func LoadConfigFromEnv() *Config {
	config := DefaultConfig()

	if v := util.GetIntEnv(EnvWebSocketMaxConnections); v > 0 {
		config.MaxConnections = v
	}
	if v := util.GetIntEnv(EnvWebSocketHeartbeatInterval); v > 0 {
		config.HeartbeatInterval = time.Duration(v) * time.Second
	}
	if v := util.GetIntEnv(EnvWebSocketConnectionTimeout); v > 0 {
		config.ConnectionTimeout = time.Duration(v) * time.Second
	}
	if v := util.GetIntEnv(EnvWebSocketMessageBufferSize); v > 0 {
		config.MessageBufferSize = int(v)
	}
	if v := util.GetIntEnv(EnvWebSocketMessageQueueSize); v > 0 {
		config.MessageQueueSize = int(v)
	}
	if v := util.GetIntEnv(EnvWebSocketShardCount); v > 0 {
		config.ShardCount = int(v)
	}
	if v := util.GetIntEnv(EnvWebSocketBroadcastWorkers); v > 0 {
		config.BroadcastWorkerCount = int(v)
	}
	if v := util.GetIntEnv(EnvWebSocketReadBufferSize); v > 0 {
		config.ReadBufferSize = int(v)
	}
	if v := util.GetIntEnv(EnvWebSocketWriteBufferSize); v > 0 {
		config.WriteBufferSize = int(v)
	}
	if v := util.GetIntEnv(EnvWebSocketMaxMessageSize); v > 0 {
		config.MaxMessageSize = int(v)
	}
	if v := util.GetIntEnv(EnvWebSocketSendTimeoutMs); v > 0 {
		config.SendTimeout = time.Duration(v) * time.Millisecond
	}
	if util.GetEnv(EnvWebSocketEnableCompression) != "" {
		config.EnableCompression = util.GetBoolEnv(EnvWebSocketEnableCompression)
	}
	if util.GetEnv(EnvWebSocketDropOnFull) != "" {
		config.DropOnFull = util.GetBoolEnv(EnvWebSocketDropOnFull)
	}
	if util.GetEnv(EnvWebSocketCloseOnBackpressure) != "" {
		config.CloseOnBackpressure = util.GetBoolEnv(EnvWebSocketCloseOnBackpressure)
	}
	return config
}

// ValidateConfig 验证WebSocket配置
func ValidateConfig(config *Config) error {
	if config == nil {
		return fmt.Errorf("配置不能为空")
	}
	if config.MaxConnections <= 0 {
		return fmt.Errorf("最大连接数必须大于0")
	}
	if config.HeartbeatInterval <= 0 || config.ConnectionTimeout <= 0 {
		return fmt.Errorf("心跳间隔和连接超时时间必须大于0")
	}
	// 心跳间隔应该小于连接超时时间
	if config.HeartbeatInterval >= config.ConnectionTimeout {
		return fmt.Errorf("心跳间隔必须小于连接超时时间")
	}
	if config.MessageBufferSize <= 0 || config.MessageQueueSize <= 0 {
		return fmt.Errorf("缓冲区大小必须大于0")
	}
	if config.ReadBufferSize <= 0 || config.WriteBufferSize <= 0 || config.MaxMessageSize <= 0 {
		return fmt.Errorf("读/写缓冲区与最大消息大小必须大于0")
	}
	if config.CloseOnBackpressure && !config.DropOnFull && config.SendTimeout <= 0 {
		return fmt.Errorf("启用背压断连时必须设置 send timeout")
	}
	return nil
}
