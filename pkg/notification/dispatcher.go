package notification

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"Travault/pkg/logger"

	"go.uber.org/zap"
)

// Channel 通知渠道
type Channel string

const (
	ChannelEmergencyServices Channel = "emergency-services"
	ChannelSMS               Channel = "sms"
)

var ErrChannelNotConfigured = errors.New("channel not configured")

// Contact 用户登记的紧急联系人
type Contact struct {
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	Relationship string `json:"relationship"`
}

// Payload 一次紧急通知携带的数据
type Payload struct {
	ReportID         string    `json:"reportId"`
	UserID           uint      `json:"userId"`
	UserName         string    `json:"userName"`
	UserPhone        string    `json:"userPhone"`
	Type             string    `json:"type"`
	Severity         string    `json:"severity"`
	Message          string    `json:"message"`
	Latitude         float64   `json:"latitude"`
	Longitude        float64   `json:"longitude"`
	Timestamp        time.Time `json:"timestamp"`
	EmergencyContact *Contact  `json:"emergencyContact,omitempty"`
	// CheckIn 为 true 时表示来自安全签到
	CheckIn bool `json:"checkIn"`
}

// Coordinates 按 "lon, lat" 输出
func (p Payload) Coordinates() string {
	return fmt.Sprintf("%g, %g", p.Longitude, p.Latitude)
}

// DispatchError 某个渠道发送失败
type DispatchError struct {
	Channel Channel
	Err     error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("%s dispatch failed: %v", e.Channel, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// Sender 单个渠道的发送实现
type Sender interface {
	Send(ctx context.Context, p Payload) error
}

// SenderFunc 便于测试时直接传函数
type SenderFunc func(ctx context.Context, p Payload) error

func (f SenderFunc) Send(ctx context.Context, p Payload) error { return f(ctx, p) }

// Notifier 工作流依赖的发送接口
type Notifier interface {
	Dispatch(ctx context.Context, channel Channel, p Payload) error
}

// Dispatcher 按渠道路由，每次调用最多尝试一次，不重试
type Dispatcher struct {
	mu      sync.RWMutex
	senders map[Channel]Sender
	timeout time.Duration
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{senders: make(map[Channel]Sender)}
}

// WithTimeout 单个渠道一次尝试的最长时间，0 表示不限
func (d *Dispatcher) WithTimeout(timeout time.Duration) *Dispatcher {
	d.timeout = timeout
	return d
}

// Register 注册渠道，重复注册会覆盖
func (d *Dispatcher) Register(ch Channel, s Sender) *Dispatcher {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.senders[ch] = s
	return d
}

func (d *Dispatcher) Dispatch(ctx context.Context, ch Channel, p Payload) error {
	d.mu.RLock()
	s, ok := d.senders[ch]
	d.mu.RUnlock()
	if !ok || s == nil {
		return &DispatchError{Channel: ch, Err: ErrChannelNotConfigured}
	}
	if err := ctx.Err(); err != nil {
		return &DispatchError{Channel: ch, Err: err}
	}
	if err := d.send(ctx, s, p); err != nil {
		logger.Warn("notification dispatch failed",
			zap.String("channel", string(ch)),
			zap.String("reportId", p.ReportID),
			zap.Error(err))
		return &DispatchError{Channel: ch, Err: err}
	}
	logger.Info("notification dispatched",
		zap.String("channel", string(ch)),
		zap.String("reportId", p.ReportID),
		zap.Uint("userId", p.UserID),
		zap.String("type", p.Type),
		zap.String("severity", p.Severity))
	return nil
}

// send 超时后直接返回，不等待忽略 ctx 的发送实现
func (d *Dispatcher) send(ctx context.Context, s Sender, p Payload) error {
	if d.timeout <= 0 {
		return s.Send(ctx, p)
	}
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Send(ctx, p) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
