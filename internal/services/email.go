package services

import (
	"crypto/tls"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/lifetravel/cartguard/internal/config"
	"github.com/lifetravel/cartguard/pkg/logger"
	"gorm.io/gorm"
)

type EmailConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Username string
	Password string
	From     string
	UseTLS   bool
}

// sendFunc delivers a rendered message. Swappable in tests.
type sendFunc func(cfg *EmailConfig, from string, to []string, msg []byte) error

type EmailService struct {
	db       *gorm.DB
	fallback *config.SMTPConfig
	send     sendFunc
}

func NewEmailService(db *gorm.DB, fallback *config.SMTPConfig) *EmailService {
	return &EmailService{
		db:       db,
		fallback: fallback,
		send:     smtpSend,
	}
}

// SetTransport replaces the SMTP delivery function (tests only).
func (s *EmailService) SetTransport(fn sendFunc) {
	s.send = fn
}

// GetConfig reads mail settings from system_configs, falling back to the
// static SMTP section of the config file for any unset field.
func (s *EmailService) GetConfig() *EmailConfig {
	cfg := &EmailConfig{}
	sc := NewSystemConfigService(s.db)

	cfg.Enabled = sc.GetBool("email_enabled", false)
	cfg.Host = sc.GetString("email_host", "")
	cfg.Port = sc.GetInt("email_port", 0)
	cfg.Username = sc.GetString("email_username", "")
	cfg.Password = sc.GetString("email_password", "")
	cfg.From = sc.GetString("email_from", "")
	cfg.UseTLS = sc.GetBool("email_use_tls", false)

	if s.fallback != nil {
		if cfg.Host == "" {
			cfg.Host = s.fallback.Host
		}
		if cfg.Port == 0 {
			cfg.Port = s.fallback.Port
		}
		if cfg.Username == "" {
			cfg.Username = s.fallback.Username
		}
		if cfg.Password == "" {
			cfg.Password = s.fallback.Password
		}
		if cfg.From == "" {
			cfg.From = s.fallback.From
		}
		if s.fallback.Host != "" && cfg.Host == s.fallback.Host {
			cfg.UseTLS = cfg.UseTLS || s.fallback.UseTLS
		}
	}

	if cfg.Port == 0 {
		cfg.Port = 587
	}

	return cfg
}

// SendHTML sends an HTML email to the given recipients. Returns an error
// when mail is disabled or delivery fails.
func (s *EmailService) SendHTML(to []string, subject, body string) error {
	cfg := s.GetConfig()
	if !cfg.Enabled || cfg.Host == "" {
		return fmt.Errorf("email disabled or unconfigured")
	}
	if len(to) == 0 {
		return fmt.Errorf("no recipients")
	}

	from := cfg.From
	if from == "" {
		from = cfg.Username
	}

	headers := []string{
		"From: " + from,
		"To: " + strings.Join(to, ","),
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/html; charset=UTF-8",
	}

	var message strings.Builder
	for _, h := range headers {
		message.WriteString(h)
		message.WriteString("\r\n")
	}
	message.WriteString("\r\n")
	message.WriteString(body)

	if err := s.send(cfg, from, to, []byte(message.String())); err != nil {
		logger.Error().Err(err).Strs("to", to).Msg("email delivery failed")
		return err
	}

	logger.Info().Strs("to", to).Str("subject", subject).Msg("email sent")
	return nil
}

func smtpSend(cfg *EmailConfig, from string, to []string, msg []byte) error {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	var auth smtp.Auth
	if cfg.Username != "" && cfg.Password != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}

	if cfg.UseTLS {
		return smtpSendTLS(cfg, addr, auth, from, to, msg)
	}
	return smtp.SendMail(addr, auth, from, to, msg)
}

func smtpSendTLS(cfg *EmailConfig, addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: cfg.Host})
	if err != nil {
		return err
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, cfg.Host)
	if err != nil {
		return err
	}
	defer client.Close()

	if auth != nil {
		if err := client.Auth(auth); err != nil {
			return err
		}
	}

	if err := client.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return err
		}
	}

	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	return w.Close()
}
