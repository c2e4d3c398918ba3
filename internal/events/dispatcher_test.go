package events

import (
	"context"
	"errors"
	"testing"
)

func TestPublishInvokesHandlersInOrder(t *testing.T) {
	d := NewInMemoryDispatcher(nil)
	var calls []string
	d.Subscribe(EventEmployeeCreated, func(_ context.Context, e Event) error {
		calls = append(calls, "first:"+e.EmployeeID)
		return nil
	})
	d.Subscribe(EventEmployeeCreated, func(_ context.Context, e Event) error {
		calls = append(calls, "second:"+e.EmployeeID)
		return nil
	})
	d.Subscribe(EventEmployeeDeleted, func(context.Context, Event) error {
		calls = append(calls, "deleted")
		return nil
	})

	if err := d.Publish(context.Background(), Event{Type: EventEmployeeCreated, EmployeeID: "e1"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(calls) != 2 || calls[0] != "first:e1" || calls[1] != "second:e1" {
		t.Fatalf("unexpected calls %v", calls)
	}
}

func TestPublishReportsHandlerErrorsAndContinues(t *testing.T) {
	var reported []error
	d := NewInMemoryDispatcher(func(_ Event, err error) { reported = append(reported, err) })
	boom := errors.New("relay down")
	reached := false
	d.Subscribe(EventEmployeeUpdated, func(context.Context, Event) error { return boom })
	d.Subscribe(EventEmployeeUpdated, func(context.Context, Event) error {
		reached = true
		return nil
	})

	if err := d.Publish(context.Background(), Event{Type: EventEmployeeUpdated}); err != nil {
		t.Fatalf("Publish should not fail: %v", err)
	}
	if !reached {
		t.Fatal("expected second handler to run")
	}
	if len(reported) != 1 || !errors.Is(reported[0], boom) {
		t.Fatalf("unexpected reported errors %v", reported)
	}
}
