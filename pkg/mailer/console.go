package mailer

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ConsoleMailer logs messages instead of delivering them. Used in
// development when no provider API key is configured.
type ConsoleMailer struct {
	logger *zap.Logger
}

var _ Mailer = (*ConsoleMailer)(nil)

// NewConsole builds a log-only mailer.
func NewConsole(logger *zap.Logger) *ConsoleMailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConsoleMailer{logger: logger}
}

func (m *ConsoleMailer) SendNow(ctx context.Context, msg Message) (string, error) {
	handle := uuid.NewString()
	m.logger.Info("mail would be sent",
		zap.String("handle", handle),
		zap.String("subject", msg.Subject),
		zap.Int("recipients", len(msg.To)),
	)
	return handle, nil
}

func (m *ConsoleMailer) ScheduleAt(ctx context.Context, msg Message, at time.Time) (string, error) {
	handle := uuid.NewString()
	m.logger.Info("mail would be scheduled",
		zap.String("handle", handle),
		zap.String("subject", msg.Subject),
		zap.Int("recipients", len(msg.To)),
		zap.Time("send_at", at),
	)
	return handle, nil
}
