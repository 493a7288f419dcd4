package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
)

// TaskEvent is a change notification for a task record.
type TaskEvent struct {
	TaskID string `json:"task_id"`
	Event  string `json:"event"`
}

// TaskListener subscribes to task change notifications over a dedicated
// LISTEN connection. Reconnects with backoff when the connection drops.
type TaskListener struct {
	dsn    string
	logger *slog.Logger
}

// NewTaskListener creates a listener for the task change channel.
func NewTaskListener(dsn string, logger *slog.Logger) *TaskListener {
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskListener{dsn: dsn, logger: logger}
}

// Listen blocks, delivering task events to handler until the context is
// cancelled. Notification payloads that fail to decode are dropped with a log.
func (l *TaskListener) Listen(ctx context.Context, handler func(TaskEvent)) error {
	for {
		err := l.listenOnce(ctx, handler)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		l.logger.Warn("task listener disconnected, reconnecting", "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Second):
		}
	}
}

func (l *TaskListener) listenOnce(ctx context.Context, handler func(TaskEvent)) error {
	conn, err := pgx.Connect(ctx, l.dsn)
	if err != nil {
		return fmt.Errorf("connecting listener: %w", err)
	}
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+taskChannel); err != nil {
		return fmt.Errorf("listening on %s: %w", taskChannel, err)
	}
	l.logger.Info("subscribed to task change notifications", "channel", taskChannel)

	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("waiting for notification: %w", err)
		}

		var event TaskEvent
		if err := json.Unmarshal([]byte(notification.Payload), &event); err != nil {
			l.logger.Warn("dropping malformed task event", "payload", notification.Payload, "error", err)
			continue
		}
		handler(event)
	}
}
