package notification

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"Travault/pkg/logger"

	"go.uber.org/zap"
)

type SMSConfig struct {
	Provider  string // log | http
	Endpoint  string
	AccountID string
	AuthToken string
	From      string
	Timeout   time.Duration
}

var ErrNoRecipient = errors.New("sms recipient phone is empty")

// SMSClient 便于替换/注入的短信发送接口
type SMSClient interface {
	Send(ctx context.Context, phone, text string) error
}

// SMSSender 向用户的紧急联系人发送短信
type SMSSender struct {
	cli SMSClient
}

func NewSMSSender(cli SMSClient) *SMSSender {
	return &SMSSender{cli: cli}
}

// NewSMSClient 按 Provider 创建客户端，默认只写日志
func NewSMSClient(cfg SMSConfig) (SMSClient, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "log":
		return LogSMSClient{}, nil
	case "http":
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("SMS_ENDPOINT is required for http provider")
		}
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		return &HTTPSMSClient{cfg: cfg, hc: &http.Client{Timeout: timeout}}, nil
	default:
		return nil, fmt.Errorf("unsupported sms provider: %s", cfg.Provider)
	}
}

func (s *SMSSender) Send(ctx context.Context, p Payload) error {
	if s.cli == nil {
		return ErrChannelNotConfigured
	}
	if p.EmergencyContact == nil || p.EmergencyContact.Phone == "" {
		return ErrNoRecipient
	}
	return s.cli.Send(ctx, p.EmergencyContact.Phone, SMSText(p))
}

// SMSText 短信正文
func SMSText(p Payload) string {
	ts := p.Timestamp.UTC().Format("2006-01-02 15:04:05 UTC")
	if p.CheckIn {
		msg := p.Message
		if msg == "" {
			msg = "No additional message"
		}
		return fmt.Sprintf("SAFETY CHECK-IN ALERT: %s has requested help. Message: %s. Location: %s. Time: %s",
			p.UserName, msg, p.Coordinates(), ts)
	}
	return fmt.Sprintf("EMERGENCY ALERT: %s has reported a %s emergency. %s Location: %s. Time: %s",
		p.UserName, p.Type, p.Message, p.Coordinates(), ts)
}

// LogSMSClient 只记录日志，不真正发送
type LogSMSClient struct{}

func (LogSMSClient) Send(ctx context.Context, phone, text string) error {
	logger.Info("sms would be sent", zap.String("to", phone), zap.String("message", text))
	return nil
}

// HTTPSMSClient 以表单方式调用短信网关
type HTTPSMSClient struct {
	cfg SMSConfig
	hc  *http.Client
}

func (h *HTTPSMSClient) Send(ctx context.Context, phone, text string) error {
	form := url.Values{}
	form.Set("To", phone)
	form.Set("From", h.cfg.From)
	form.Set("Body", text)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.cfg.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if h.cfg.AccountID != "" {
		req.SetBasicAuth(h.cfg.AccountID, h.cfg.AuthToken)
	}
	resp, err := h.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("sms gateway status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
