// Package email 封装SMTP邮件发送，用于质量预警等系统通知
package email

import (
	"fmt"
	"net/smtp"
	"strings"
)

// Config SMTP配置
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

// Sender SMTP邮件发送器
type Sender struct {
	config Config
	server string
	auth   smtp.Auth
}

// NewSender 创建邮件发送器实例
func NewSender(config Config) *Sender {
	var auth smtp.Auth
	if config.Username != "" {
		auth = smtp.PlainAuth("", config.Username, config.Password, config.Host)
	}

	return &Sender{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   auth,
	}
}

// IsConfigured 判断SMTP是否已配置，未配置时调用方应跳过邮件通道
func (s *Sender) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

// SendText 发送纯文本邮件
func (s *Sender) SendText(to []string, subject, body string) error {
	if !s.IsConfigured() {
		return fmt.Errorf("SMTP未配置")
	}
	if len(to) == 0 {
		return nil
	}

	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}

	msg := []byte(fmt.Sprintf(
		"To: %s\r\n"+
			"From: %s\r\n"+
			"Subject: %s\r\n"+
			"MIME-Version: 1.0\r\n"+
			"Content-Type: text/plain; charset=UTF-8\r\n"+
			"\r\n"+
			"%s",
		strings.Join(to, ", "),
		from,
		subject,
		body,
	))

	if err := smtp.SendMail(s.server, s.auth, s.config.From, to, msg); err != nil {
		return fmt.Errorf("发送邮件失败: %w", err)
	}
	return nil
}
