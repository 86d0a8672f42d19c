package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const TypeDispatchNotification = "notification:dispatch"

// DispatchPayload identifies the notification a dispatch task delivers.
type DispatchPayload struct {
	NotificationID string `json:"notificationId"`
	Attempt        int    `json:"attempt"`
}

// dispatchTaskID makes re-enqueueing the same attempt a no-op.
func dispatchTaskID(notificationID string, attempt int) string {
	return fmt.Sprintf("dispatch:%s:%d", notificationID, attempt)
}

func NewDispatchTask(payload DispatchPayload, fireAt time.Time) (*asynq.Task, []asynq.Option, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, err
	}
	task := asynq.NewTask(TypeDispatchNotification, b)
	opts := []asynq.Option{
		asynq.ProcessAt(fireAt),
		asynq.TaskID(dispatchTaskID(payload.NotificationID, payload.Attempt)),
		// the notification state machine owns retries, not asynq
		asynq.MaxRetry(0),
	}
	return task, opts, nil
}

// ParseDispatchPayload decodes a dispatch task payload.
func ParseDispatchPayload(task *asynq.Task) (DispatchPayload, error) {
	var p DispatchPayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		return p, fmt.Errorf("invalid dispatch payload: %w", err)
	}
	if p.NotificationID == "" {
		return p, fmt.Errorf("invalid dispatch payload: notificationId is empty")
	}
	return p, nil
}

// Enqueuer is the subset of *asynq.Client used to schedule tasks.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// DispatchScheduler schedules retry attempts on the asynq queue.
type DispatchScheduler struct {
	client Enqueuer
}

func NewDispatchScheduler(client Enqueuer) *DispatchScheduler {
	return &DispatchScheduler{client: client}
}

func (s *DispatchScheduler) EnqueueDispatch(ctx context.Context, notificationID string, attempt int, at time.Time) error {
	task, opts, err := NewDispatchTask(DispatchPayload{NotificationID: notificationID, Attempt: attempt}, at)
	if err != nil {
		return err
	}
	if _, err := s.client.EnqueueContext(ctx, task, opts...); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
			return nil
		}
		return fmt.Errorf("failed to enqueue dispatch task for %s: %w", notificationID, err)
	}
	return nil
}
