package events

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"growthdesk_backend/platform/logger"
)

type testEvent struct {
	BaseEvent
	name string
}

func (e testEvent) EventName() string { return e.name }

func newTestEvent(name string) testEvent {
	return testEvent{BaseEvent: NewBaseEvent(), name: name}
}

func TestPublishSyncRunsAllHandlers(t *testing.T) {
	bus := NewInMemoryBus(logger.New("development"))

	var calls int32
	for i := 0; i < 3; i++ {
		bus.Subscribe("leads.test", HandlerFunc(func(ctx context.Context, event Event) error {
			atomic.AddInt32(&calls, 1)
			return nil
		}))
	}

	if err := bus.PublishSync(context.Background(), newTestEvent("leads.test")); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("expected 3 handler calls, got %d", got)
	}
}

func TestPublishSyncJoinsHandlerErrors(t *testing.T) {
	bus := NewInMemoryBus(logger.New("development"))

	wantErr := errors.New("handler failed")
	bus.Subscribe("leads.test", HandlerFunc(func(ctx context.Context, event Event) error {
		return wantErr
	}))
	bus.Subscribe("leads.test", HandlerFunc(func(ctx context.Context, event Event) error {
		return nil
	}))

	err := bus.PublishSync(context.Background(), newTestEvent("leads.test"))
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected wrapped handler error, got %v", err)
	}
}

func TestPublishIsAsyncAndWaitable(t *testing.T) {
	bus := NewInMemoryBus(logger.New("development"))

	var calls int32
	bus.Subscribe("leads.test", HandlerFunc(func(ctx context.Context, event Event) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}))

	bus.Publish(context.Background(), newTestEvent("leads.test"))
	bus.Wait()

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected 1 handler call after Wait, got %d", got)
	}
}

func TestPublishRecoversFromPanic(t *testing.T) {
	bus := NewInMemoryBus(logger.New("development"))

	bus.Subscribe("leads.test", HandlerFunc(func(ctx context.Context, event Event) error {
		panic("boom")
	}))

	var after int32
	bus.Subscribe("leads.test", HandlerFunc(func(ctx context.Context, event Event) error {
		atomic.AddInt32(&after, 1)
		return nil
	}))

	bus.Publish(context.Background(), newTestEvent("leads.test"))
	bus.Wait()

	if got := atomic.LoadInt32(&after); got != 1 {
		t.Fatalf("expected sibling handler to run despite panic, got %d calls", got)
	}
}

func TestPublishWithNoSubscribersIsNoOp(t *testing.T) {
	bus := NewInMemoryBus(logger.New("development"))

	bus.Publish(context.Background(), newTestEvent("leads.unheard"))
	bus.Wait()

	if err := bus.PublishSync(context.Background(), newTestEvent("leads.unheard")); err != nil {
		t.Fatalf("expected nil error for event without subscribers, got %v", err)
	}
}
