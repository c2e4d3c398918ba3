package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/employee-directory/internal/config"
	"github.com/spec-kit/employee-directory/internal/events"
)

type fakeStream struct {
	calls []*redis.XAddArgs
	err   error
}

func (f *fakeStream) XAdd(_ context.Context, a *redis.XAddArgs) *redis.StringCmd {
	f.calls = append(f.calls, a)
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	return redis.NewStringResult("1700000000000-0", nil)
}

func TestRelayWritesEventsToStream(t *testing.T) {
	stream := &fakeStream{}
	relay := NewEventRelay(stream, config.EventsConfig{Stream: "employee-events", StreamMaxLen: 100}, nil)
	dispatcher := events.NewInMemoryDispatcher(nil)
	StartEventRelay(dispatcher, relay)

	manager := "m1"
	event := events.Event{
		ID:         "evt-1",
		Type:       events.EventEmployeeCreated,
		EmployeeID: "e1",
		Timestamp:  time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Payload:    events.EmployeeCreatedPayload{FullName: "Ada", Position: "CTO", ManagerID: &manager},
	}
	if err := dispatcher.Publish(context.Background(), event); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if len(stream.calls) != 1 {
		t.Fatalf("expected one XADD, got %d", len(stream.calls))
	}
	args := stream.calls[0]
	if args.Stream != "employee-events" || args.MaxLen != 100 || !args.Approx {
		t.Fatalf("unexpected args %+v", args)
	}
	values := args.Values.(map[string]any)
	if values["type"] != "employee_created" || values["employee_id"] != "e1" {
		t.Fatalf("unexpected values %v", values)
	}

	var decoded struct {
		ID      string `json:"id"`
		Payload struct {
			ManagerID string `json:"manager_id"`
		} `json:"payload"`
	}
	if err := json.Unmarshal([]byte(values["event"].(string)), &decoded); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if decoded.ID != "evt-1" || decoded.Payload.ManagerID != "m1" {
		t.Fatalf("unexpected body %+v", decoded)
	}
}

func TestRelayFailuresReachErrorHook(t *testing.T) {
	stream := &fakeStream{err: errors.New("connection refused")}
	var reported []error
	dispatcher := events.NewInMemoryDispatcher(func(_ events.Event, err error) { reported = append(reported, err) })
	StartEventRelay(dispatcher, NewEventRelay(stream, config.EventsConfig{Stream: "s"}, nil))

	_ = dispatcher.Publish(context.Background(), events.Event{Type: events.EventEmployeeDeleted, EmployeeID: "e1"})

	if len(reported) != 1 {
		t.Fatalf("expected relay failure to be reported once, got %v", reported)
	}
	if stream.calls[0].MaxLen != 0 {
		t.Fatal("zero max length must not trim the stream")
	}
}

func TestStartEventRelayIgnoresNil(t *testing.T) {
	StartEventRelay(nil, nil)
	StartEventRelay(events.NewInMemoryDispatcher(nil), nil)
}
