package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeRecordLogin stamps a user's last login time.
	TaskTypeRecordLogin = "auth:record_login"
)

// RecordLoginPayload identifies the login to record.
type RecordLoginPayload struct {
	UserID int64     `json:"user_id"`
	At     time.Time `json:"at"`
}

// NewRecordLoginTask constructs an Asynq task.
func NewRecordLoginTask(payload RecordLoginPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeRecordLogin, data, asynq.MaxRetry(5), asynq.Timeout(30*time.Second)), nil
}

// LoginRecorder persists login timestamps.
type LoginRecorder interface {
	RecordLogin(ctx context.Context, userID int64, at time.Time) error
}

// HandleRecordLoginTask builds the TaskTypeRecordLogin handler.
func HandleRecordLoginTask(recorder LoginRecorder, logger *slog.Logger) asynq.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, t *asynq.Task) error {
		var payload RecordLoginPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("decode %s: %v: %w", TaskTypeRecordLogin, err, asynq.SkipRetry)
		}
		if payload.UserID <= 0 || payload.At.IsZero() {
			return fmt.Errorf("invalid %s payload: %w", TaskTypeRecordLogin, asynq.SkipRetry)
		}
		if err := recorder.RecordLogin(ctx, payload.UserID, payload.At); err != nil {
			return err
		}
		logger.Debug("login recorded", slog.Int64("user_id", payload.UserID))
		return nil
	}
}
