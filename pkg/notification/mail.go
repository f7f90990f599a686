package notification

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net"
	"strings"
	"time"

	"github.com/wneessen/go-mail"
)

type MailConfig struct {
	Host     string
	Username string
	Password string
	Port     int64
	From     string
	// Timeout 连接与单次会话的上限，默认 10s
	Timeout time.Duration
}

var ErrMailNotConfigured = errors.New("mail host or recipient not configured")

const (
	emergencySubject   = "EMERGENCY ALERT - Immediate Action Required"
	defaultMailPort    = 587
	defaultMailTimeout = 10 * time.Second
)

var emergencyTmpl = template.Must(template.New("emergency").Parse(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; border: 3px solid #dc3545;">
<div style="background: #dc3545; padding: 20px; text-align: center;"><h1 style="color: white; margin: 0;">EMERGENCY ALERT</h1></div>
<div style="padding: 30px; background: #fff3cd;">
<h2>Emergency Report Details</h2>
<p><strong>Report:</strong> {{.ReportID}}</p>
<p><strong>User:</strong> {{.UserName}}</p>
<p><strong>Type:</strong> {{.Type}}</p>
<p><strong>Severity:</strong> {{.Severity}}</p>
<p><strong>Message:</strong> {{.Message}}</p>
<p><strong>Location:</strong> {{.Coordinates}}</p>
<p><strong>Time:</strong> {{.Timestamp.Format "2006-01-02 15:04:05 MST"}}</p>
<p><strong>Contact:</strong> {{.UserPhone}}</p>
{{with .EmergencyContact}}<p><strong>Emergency Contact:</strong> {{.Name}} - {{.Phone}}</p>{{end}}
<div style="background: #f8d7da; padding: 15px; border-radius: 5px; margin: 20px 0;"><strong>This is an automated emergency alert. Please respond immediately.</strong></div>
</div>
</div>`))

type deliverFunc func(ctx context.Context, msg *mail.Msg) error

// MailSender 通过 SMTP 把紧急报告发送到紧急服务邮箱
type MailSender struct {
	cfg     MailConfig
	to      string
	deliver deliverFunc
}

func NewMailSender(cfg MailConfig, to string) *MailSender {
	if cfg.Port == 0 {
		cfg.Port = defaultMailPort
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultMailTimeout
	}
	m := &MailSender{cfg: cfg, to: to}
	m.deliver = m.dialAndSend
	return m
}

func (m *MailSender) Send(ctx context.Context, p Payload) error {
	if m.cfg.Host == "" || m.to == "" {
		return ErrMailNotConfigured
	}
	msg, err := m.buildMessage(p)
	if err != nil {
		return err
	}
	return m.deliver(ctx, msg)
}

func (m *MailSender) from() string {
	if m.cfg.From != "" {
		return m.cfg.From
	}
	return m.cfg.Username
}

func (m *MailSender) buildMessage(p Payload) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.FromFormat("Travault", m.from()); err != nil {
		return nil, fmt.Errorf("mail sender address: %w", err)
	}
	if err := msg.To(m.to); err != nil {
		return nil, fmt.Errorf("mail recipient address: %w", err)
	}
	msg.Subject(emergencySubject)
	msg.SetDate()
	msg.SetImportance(mail.ImportanceUrgent)
	msg.SetBodyString(mail.TypeTextPlain, plainText(p))
	if err := msg.AddAlternativeHTMLTemplate(emergencyTmpl, p); err != nil {
		return nil, fmt.Errorf("render emergency mail: %w", err)
	}
	return msg, nil
}

// plainText 邮件纯文本部分
func plainText(p Payload) string {
	var b strings.Builder
	b.WriteString("EMERGENCY ALERT\n\n")
	fmt.Fprintf(&b, "Report: %s\nUser: %s\nType: %s\nSeverity: %s\n", p.ReportID, p.UserName, p.Type, p.Severity)
	fmt.Fprintf(&b, "Message: %s\nLocation: %s\n", p.Message, p.Coordinates())
	fmt.Fprintf(&b, "Time: %s\nContact: %s\n", p.Timestamp.Format("2006-01-02 15:04:05 MST"), p.UserPhone)
	if c := p.EmergencyContact; c != nil {
		fmt.Fprintf(&b, "Emergency Contact: %s - %s\n", c.Name, c.Phone)
	}
	b.WriteString("\nThis is an automated emergency alert. Please respond immediately.\n")
	return b.String()
}

func (m *MailSender) dialAndSend(ctx context.Context, msg *mail.Msg) error {
	opts := []mail.Option{
		mail.WithPort(int(m.cfg.Port)),
		mail.WithTimeout(m.cfg.Timeout),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
		mail.WithDialContextFunc(deadlineDialer(m.cfg.Timeout)),
	}
	if m.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.cfg.Username),
			mail.WithPassword(m.cfg.Password))
	}
	client, err := mail.NewClient(m.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("init mail client: %w", err)
	}
	return client.DialAndSendWithContext(ctx, msg)
}

// deadlineDialer 连接建立后设置读写期限，服务端不回应问候时也能超时返回
func deadlineDialer(timeout time.Duration) mail.DialContextFunc {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		d := net.Dialer{Timeout: timeout}
		conn, err := d.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
			conn.Close()
			return nil, err
		}
		return conn, nil
	}
}
