// Package mail SMTP 邮件通知客户端
package mail

import (
	"crypto/tls"
	"fmt"
	"net/mail"
	"net/url"
	"strings"

	"github.com/dajohi/goemail"

	"contacts-api/internal/config"
	"contacts-api/pkg/logging"
)

// Client SMTP 邮件客户端
//
// 缺少 SMTP 凭据时进入禁用模式：发送调用直接成功返回，
// 开发环境不需要真实邮件服务也能跑通注册和找回密码流程。
type Client struct {
	smtp     *goemail.SMTP
	fromName string
	fromAddr string
	baseURL  string
	disabled bool
	log      *logging.Logger
}

// NewClient 创建邮件客户端
//
// baseURL 是服务对外可达的地址，邮件里的确认/重置链接以此开头。
func NewClient(cfg config.SMTPConfig, baseURL string, logger *logging.Logger) (*Client, error) {
	if cfg.Host == "" || cfg.User == "" || cfg.Password == "" {
		logger.Warn("Mail sending DISABLED, missing SMTP credentials")
		return &Client{disabled: true, log: logger}, nil
	}

	h := fmt.Sprintf("smtps://%v:%v@%v", cfg.User, cfg.Password, cfg.Host)
	u, err := url.Parse(h)
	if err != nil {
		return nil, fmt.Errorf("parse smtp url: %w", err)
	}

	from, err := mail.ParseAddress(cfg.From)
	if err != nil {
		return nil, fmt.Errorf("parse from address: %w", err)
	}

	smtp, err := goemail.NewSMTP(u.String(), &tls.Config{
		InsecureSkipVerify: cfg.SkipVerify,
	})
	if err != nil {
		return nil, fmt.Errorf("smtp setup: %w", err)
	}

	logger.Info("Mail sender ready", "host", cfg.Host, "from", from.Address)

	return &Client{
		smtp:     smtp,
		fromName: from.Name,
		fromAddr: from.Address,
		baseURL:  strings.TrimRight(baseURL, "/"),
		log:      logger,
	}, nil
}

// SendConfirmation 发送邮箱确认邮件
func (c *Client) SendConfirmation(to, username, token string) error {
	link := fmt.Sprintf("%s/api/v1/auth/confirmed_email/%s", c.baseURL, token)
	body := fmt.Sprintf(
		"Hi %s,\n\nWelcome! Please confirm your email address by opening the link below:\n\n%s\n\nThe link is valid for 7 days. If you did not register, ignore this message.\n",
		username, link)
	return c.send("confirmation", to, "Confirm your email", body)
}

// SendPasswordReset 发送密码重置邮件
func (c *Client) SendPasswordReset(to, username, token string) error {
	link := fmt.Sprintf("%s/api/v1/auth/reset-password/%s", c.baseURL, token)
	body := fmt.Sprintf(
		"Hi %s,\n\nA password reset was requested for your account. Submit your new password to the link below:\n\n%s\n\nThe link is valid for 7 days. If you did not request this, ignore this message.\n",
		username, link)
	return c.send("password_reset", to, "Reset your password", body)
}

func (c *Client) send(kind, to, subject, body string) error {
	if c.disabled {
		c.log.Debug("Mail disabled, skipping", "kind", kind, "to", to)
		return nil
	}

	msg := goemail.NewMessage(c.fromAddr, subject, body)
	msg.SetName(c.fromName)
	msg.AddTo(to)

	err := c.smtp.Send(msg)
	c.log.MailLog(kind, to, err)
	return err
}
