package email

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kaanagar1/equimarket-sub000/internal/config"
)

// Sender delivers a fully composed message (headers and body) to its recipients.
type Sender interface {
	Send(ctx context.Context, to []string, subject string, rawMessage []byte) error
}

// NewSender builds the sender stack for cfg. SMTP is used when a host is
// configured, otherwise messages are only logged. Outside production the
// Redis mailbox and the optional log file are added alongside.
func NewSender(cfg *config.Config, rdb *redis.Client, logger *zap.Logger) (Sender, error) {
	composite := NewCompositeSender()
	if cfg.SmtpHost != "" {
		composite.AddSender(NewSMTPSender(cfg, logger))
	} else {
		logger.Info("SMTP host not configured, emails will only be logged")
		composite.AddSender(NewLoggingSender(logger))
	}
	if !cfg.IsProduction() {
		if rdb != nil {
			composite.AddSender(NewRedisSender(rdb, logger))
		}
		if cfg.EmailLogFile != "" {
			fileSender, err := NewFileSender(cfg.EmailLogFile, logger)
			if err != nil {
				return nil, err
			}
			composite.AddSender(fileSender)
		}
	}
	return composite, nil
}

// SMTPSender sends through an SMTP relay with PLAIN auth.
type SMTPSender struct {
	from   string
	auth   smtp.Auth
	addr   string
	logger *zap.Logger
}

// NewSMTPSender creates an SMTPSender from the SMTP settings in cfg.
func NewSMTPSender(cfg *config.Config, logger *zap.Logger) *SMTPSender {
	var auth smtp.Auth
	if cfg.SmtpUsername != "" {
		auth = smtp.PlainAuth("", cfg.SmtpUsername, cfg.SmtpPassword, cfg.SmtpHost)
	}
	return &SMTPSender{
		from:   cfg.SmtpFromAddress,
		auth:   auth,
		addr:   fmt.Sprintf("%s:%d", cfg.SmtpHost, cfg.SmtpPort),
		logger: logger.Named("smtp"),
	}
}

// Send relays rawMessage to the SMTP server.
func (s *SMTPSender) Send(ctx context.Context, to []string, subject string, rawMessage []byte) error {
	if err := smtp.SendMail(s.addr, s.auth, s.from, to, rawMessage); err != nil {
		return fmt.Errorf("smtp error: %w", err)
	}
	s.logger.Info("email sent", zap.Strings("to", to), zap.String("subject", subject))
	return nil
}

// LoggingSender writes the message to the log instead of sending it.
type LoggingSender struct {
	logger *zap.Logger
}

// NewLoggingSender creates a LoggingSender.
func NewLoggingSender(logger *zap.Logger) *LoggingSender {
	return &LoggingSender{logger: logger.Named("email")}
}

func (s *LoggingSender) Send(ctx context.Context, to []string, subject string, rawMessage []byte) error {
	s.logger.Info("email (not sent)",
		zap.Strings("to", to),
		zap.String("subject", subject),
		zap.ByteString("message", rawMessage),
	)
	return nil
}
