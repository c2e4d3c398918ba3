package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/employee-directory/internal/config"
	"github.com/spec-kit/employee-directory/internal/events"
)

// StreamWriter is the subset of the redis client the relay needs.
type StreamWriter interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// EventRelay appends hierarchy events to a Redis stream so other services
// can follow directory changes.
type EventRelay struct {
	client StreamWriter
	stream string
	maxLen int64
	logger *zap.Logger
}

// NewEventRelay builds a relay writing to cfg.Stream.
func NewEventRelay(client StreamWriter, cfg config.EventsConfig, logger *zap.Logger) *EventRelay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventRelay{client: client, stream: cfg.Stream, maxLen: cfg.StreamMaxLen, logger: logger}
}

// Handle writes a single event as a stream entry.
func (r *EventRelay) Handle(ctx context.Context, event events.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", event.ID, err)
	}

	args := &redis.XAddArgs{
		Stream: r.stream,
		Values: map[string]any{
			"type":        string(event.Type),
			"employee_id": event.EmployeeID,
			"event":       string(body),
		},
	}
	if r.maxLen > 0 {
		args.MaxLen = r.maxLen
		args.Approx = true
	}

	entryID, err := r.client.XAdd(ctx, args).Result()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", r.stream, err)
	}
	r.logger.Debug("event relayed",
		zap.String("event_type", string(event.Type)),
		zap.String("employee_id", event.EmployeeID),
		zap.String("entry_id", entryID),
	)
	return nil
}

// StartEventRelay subscribes the relay to every directory event.
func StartEventRelay(dispatcher events.Dispatcher, relay *EventRelay) {
	if dispatcher == nil || relay == nil {
		return
	}
	for _, eventType := range events.AllEventTypes() {
		dispatcher.Subscribe(eventType, relay.Handle)
	}
}
