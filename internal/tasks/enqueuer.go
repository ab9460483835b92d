package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/kaanagar1/equimarket-sub000/internal/utils"
)

// TaskEnqueuer is implemented by *asynq.Client.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// EmailTaskPayload is the payload of an email delivery task.
type EmailTaskPayload struct {
	To         string         `json:"to"`
	TemplateID string         `json:"template_id"`
	Locale     string         `json:"locale,omitempty"`
	Data       map[string]any `json:"data"`
}

// ImageTaskPayload is the payload of an image normalisation task.
type ImageTaskPayload struct {
	Key       string      `json:"key"`
	ListingID utils.SixID `json:"listing_id"`
}

// Enqueuer hands work to the background workers.
type Enqueuer struct {
	client TaskEnqueuer
	logger *zap.Logger
}

// NewEnqueuer creates an Enqueuer.
func NewEnqueuer(client TaskEnqueuer, logger *zap.Logger) *Enqueuer {
	return &Enqueuer{client: client, logger: logger.Named("enqueuer")}
}

// EnqueueEmail schedules delivery of a templated email.
func (e *Enqueuer) EnqueueEmail(ctx context.Context, to, templateID string, data map[string]any) error {
	payload, err := json.Marshal(EmailTaskPayload{To: to, TemplateID: templateID, Data: data})
	if err != nil {
		return fmt.Errorf("marshal email payload: %w", err)
	}
	info, err := e.client.EnqueueContext(ctx, asynq.NewTask(TypeEmailDelivery, payload), asynq.Queue(QueueDefault), asynq.MaxRetry(5))
	if err != nil {
		return fmt.Errorf("enqueue email to %s: %w", to, err)
	}
	e.logger.Debug("email enqueued", zap.String("task", info.ID), zap.String("template", templateID))
	return nil
}

// EnqueueImage schedules normalisation of an uploaded listing image.
func (e *Enqueuer) EnqueueImage(ctx context.Context, listingID utils.SixID, key string) error {
	payload, err := json.Marshal(ImageTaskPayload{Key: key, ListingID: listingID})
	if err != nil {
		return fmt.Errorf("marshal image payload: %w", err)
	}
	if _, err := e.client.EnqueueContext(ctx, asynq.NewTask(TypeImageProcess, payload), asynq.Queue(QueueImages), asynq.MaxRetry(3)); err != nil {
		return fmt.Errorf("enqueue image %s: %w", key, err)
	}
	return nil
}
