package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/kaanagar1/equimarket-sub000/internal/email"
)

const fallbackFromAddress = "noreply@example.com"

// HandleEmailDeliveryTask renders a template and sends the result.
func (p *TaskProcessor) HandleEmailDeliveryTask(ctx context.Context, t *asynq.Task) error {
	var payload EmailTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal email task payload: %v: %w", err, asynq.SkipRetry)
	}

	rendered, err := p.templates.Render(ctx, payload.TemplateID, payload.Locale, payload.Data)
	if err != nil {
		p.logger.Error("email template unavailable", zap.String("template", payload.TemplateID), zap.Error(err))
		return fmt.Errorf("email template %s: %v: %w", payload.TemplateID, err, asynq.SkipRetry)
	}

	from := p.cfg.SmtpFromAddress
	if from == "" {
		from = fallbackFromAddress
	}
	raw, err := email.Compose(from, p.cfg.AppName, payload.To, rendered.Subject, rendered.Body)
	if err != nil {
		return fmt.Errorf("compose email: %v: %w", err, asynq.SkipRetry)
	}

	if err := p.sender.Send(ctx, []string{payload.To}, rendered.Subject, raw); err != nil {
		p.logger.Warn("email delivery failed, will retry", zap.String("template", payload.TemplateID), zap.Error(err))
		return err
	}
	p.logger.Debug("email delivered", zap.String("template", payload.TemplateID))
	return nil
}
