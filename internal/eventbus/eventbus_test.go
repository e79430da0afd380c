package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMemoryBusPublishSubscribe(t *testing.T) {
	bus := NewMemoryBus(16)
	defer bus.Close()
	ctx := context.Background()

	var mu sync.Mutex
	received := make([]*Envelope, 0)

	_, err := bus.Subscribe(ctx, Filter{Types: []string{EventPositionUpdated}}, func(ctx context.Context, ev *Envelope) {
		mu.Lock()
		received = append(received, ev)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("Ошибка подписки: %v", err)
	}

	// Событие подходящего типа доставляется
	ev := NewEnvelope("test", EventPositionUpdated, map[string]interface{}{"x": 1.0})
	if err := bus.Publish(ctx, ev); err != nil {
		t.Fatalf("Ошибка публикации: %v", err)
	}

	// Событие другого типа отфильтровывается
	other := NewEnvelope("test", EventAccountRegistered, nil)
	bus.Publish(ctx, other)

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		n := len(received)
		mu.Unlock()
		if n >= 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("Событие не доставлено за отведённое время")
		case <-time.After(10 * time.Millisecond):
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 {
		t.Fatalf("Ожидалось 1 событие, получено %d", len(received))
	}
	if received[0].EventType != EventPositionUpdated {
		t.Errorf("Неверный тип события: %s", received[0].EventType)
	}
	if received[0].ID == "" {
		t.Error("Пустой ID события")
	}
}

func TestMemoryBusDropOnFull(t *testing.T) {
	bus := NewMemoryBus(1)
	defer bus.Close()
	ctx := context.Background()

	// Переполняем буфер: публикация не блокируется и не ошибается
	for i := 0; i < 100; i++ {
		if err := bus.Publish(ctx, NewEnvelope("test", EventSessionOpened, nil)); err != nil {
			t.Fatalf("Публикация не должна ошибаться при переполнении: %v", err)
		}
	}

	stats := bus.Metrics()
	if stats.Published+stats.Dropped != 100 {
		t.Errorf("Published+Dropped=%d, ожидалось 100", stats.Published+stats.Dropped)
	}
}

func TestMemoryBusUnsubscribe(t *testing.T) {
	bus := NewMemoryBus(16)
	defer bus.Close()
	ctx := context.Background()

	var mu sync.Mutex
	count := 0
	sub, _ := bus.Subscribe(ctx, Filter{}, func(ctx context.Context, ev *Envelope) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	sub.Unsubscribe()
	bus.Publish(ctx, NewEnvelope("test", EventSessionClosed, nil))
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if count != 0 {
		t.Errorf("События доставлялись после отписки: %d", count)
	}
}

func TestMemoryBusCloseIdempotent(t *testing.T) {
	bus := NewMemoryBus(4)
	if err := bus.Close(); err != nil {
		t.Fatalf("Ошибка закрытия: %v", err)
	}
	if err := bus.Close(); err != nil {
		t.Errorf("Повторное закрытие должно быть no-op: %v", err)
	}
	if err := bus.Publish(context.Background(), NewEnvelope("test", EventSessionOpened, nil)); err == nil {
		t.Error("Публикация в закрытую шину должна вернуть ошибку")
	}
}
