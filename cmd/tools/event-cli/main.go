package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/annel0/rpg-server/internal/eventbus"
)

const defaultNatsURL = "nats://localhost:4222"

// event-cli — консольная утилита для наблюдения за доменными событиями
// сервера (rpg.events.*) через NATS JetStream.
//
// Примеры:
//
//	event-cli -cmd tail
//	event-cli -cmd tail -types position_updated,session_opened
//	event-cli -cmd stats -interval 5s
func main() {
	var (
		natsURL  = flag.String("nats", defaultNatsURL, "NATS server URL")
		command  = flag.String("cmd", "tail", "Command: tail, stats, types")
		types    = flag.String("types", "", "Event types filter (comma-separated)")
		stream   = flag.String("stream", "RPG_EVENTS", "JetStream stream name")
		interval = flag.Duration("interval", 5*time.Second, "Stats polling interval")
	)
	flag.Parse()

	switch *command {
	case "types":
		showTypes()
		return
	}

	bus, err := eventbus.NewJetStreamBus(*natsURL, *stream, 24*time.Hour)
	if err != nil {
		log.Fatalf("❌ Не удалось подключиться к NATS: %v", err)
	}
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	switch *command {
	case "tail":
		if err := tailEvents(ctx, bus, parseStringList(*types)); err != nil {
			log.Fatalf("❌ Ошибка подписки: %v", err)
		}
		<-sigCh

	case "stats":
		go pollStats(ctx, bus, *interval)
		<-sigCh

	default:
		log.Fatalf("❌ Неизвестная команда: %s", *command)
	}
}

// tailEvents печатает события по мере поступления (как tail -f).
func tailEvents(ctx context.Context, bus eventbus.EventBus, types []string) error {
	_, err := bus.Subscribe(ctx, eventbus.Filter{Types: types}, func(ctx context.Context, ev *eventbus.Envelope) {
		fmt.Printf("%s  %-20s  src=%s  %s\n",
			ev.Timestamp.Format("15:04:05.000"), ev.EventType, ev.Source, string(ev.Payload))
	})
	if err != nil {
		return err
	}
	fmt.Println("📡 Подписка активна, Ctrl+C для выхода...")
	return nil
}

// pollStats периодически печатает статистику шины.
func pollStats(ctx context.Context, bus eventbus.EventBus, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := bus.Metrics()
			fmt.Printf("published=%d consumed=%d dropped=%d in_flight=%d\n",
				s.Published, s.Consumed, s.Dropped, s.InFlight)
		}
	}
}

// showTypes печатает известные типы доменных событий.
func showTypes() {
	for _, t := range []string{
		eventbus.EventAccountRegistered,
		eventbus.EventCharacterCreated,
		eventbus.EventPositionUpdated,
		eventbus.EventSessionOpened,
		eventbus.EventSessionClosed,
	} {
		fmt.Println(t)
	}
}

func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
