package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/annel0/rpg-server/internal/api"
	"github.com/annel0/rpg-server/internal/cache"
	"github.com/annel0/rpg-server/internal/config"
	"github.com/annel0/rpg-server/internal/eventbus"
	"github.com/annel0/rpg-server/internal/game"
	"github.com/annel0/rpg-server/internal/logging"
	"github.com/annel0/rpg-server/internal/observability"
	"github.com/annel0/rpg-server/internal/store"
)

func main() {
	// Инициализируем систему логирования
	if err := logging.InitDefaultLogger("server"); err != nil {
		log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
	}
	defer logging.CloseDefaultLogger()

	logging.Info("🎮 Запуск RPG Server — транзакционное ядро состояния игры...")

	// === КОНФИГУРАЦИЯ ===
	cfg, err := config.Load("")
	if err != nil {
		logging.Error("❌ Ошибка чтения конфигурации: %v", err)
		log.Fatalf("❌ Ошибка чтения конфигурации: %v", err)
	}
	if cfg == nil {
		cfg = &config.Config{}
	}

	restPort := fmt.Sprintf(":%d", cfg.Server.GetRESTPort())
	backend := cfg.Storage.GetBackend()
	logging.Info("📡 Конфигурация сервера: REST API=%s, storage=%s", restPort, backend)

	// === OBSERVABILITY ===
	ctx := context.Background()
	shutdownTelemetry, err := observability.InitTelemetry(ctx, "rpg-server")
	if err != nil {
		// Телеметрия необязательна: без коллектора работаем дальше.
		logging.Warn("OpenTelemetry не инициализирован: %v", err)
		shutdownTelemetry = func(context.Context) error { return nil }
	}

	// === ШИНА СОБЫТИЙ ===
	var bus eventbus.EventBus
	if cfg.EventBus.URL != "" {
		retention := time.Duration(cfg.EventBus.Retention) * time.Hour
		if retention == 0 {
			retention = 24 * time.Hour
		}
		jsBus, err := eventbus.NewJetStreamBus(cfg.EventBus.URL, cfg.EventBus.Stream, retention)
		if err != nil {
			logging.Warn("JetStream недоступен (%v) — используется in-memory шина", err)
			bus = eventbus.NewMemoryBus(1024)
		} else {
			logging.Info("✅ Шина событий: NATS JetStream (%s)", cfg.EventBus.URL)
			bus = jsBus
		}
	} else {
		bus = eventbus.NewMemoryBus(1024)
		logging.Info("✅ Шина событий: in-memory")
	}
	eventbus.Init(bus)

	if err := eventbus.StartLoggingListener(bus); err != nil {
		logging.Warn("Слушатель журнала событий не запущен: %v", err)
	}
	busMetrics := eventbus.NewMetricsExporter(bus)
	busMetrics.Start()
	defer busMetrics.Stop()

	// === ХРАНИЛИЩЕ ===
	st := openStore(backend, cfg)
	defer st.Close()

	// === КЕШ ПОЗИЦИЙ (опционально) ===
	var positions *cache.PositionCache
	if cfg.Redis.Enabled {
		redisCfg := cache.DefaultConfig()
		if cfg.Redis.Addr != "" {
			redisCfg.Addr = cfg.Redis.Addr
		}
		redisCfg.Password = cfg.Redis.Password
		redisCfg.DB = cfg.Redis.DB
		if cfg.Redis.TTLSec > 0 {
			redisCfg.TTL = time.Duration(cfg.Redis.TTLSec) * time.Second
		}
		positions, err = cache.NewPositionCache(redisCfg)
		if err != nil {
			logging.Warn("Redis недоступен (%v) — кеш позиций отключён", err)
			positions = nil
		} else {
			logging.Info("✅ Кеш позиций: Redis (%s)", redisCfg.Addr)
			defer positions.Close()
		}
	}

	// === ИГРОВОЕ ЯДРО ===
	g := game.NewGame(st, positions)

	// === REST API ===
	restServer := api.NewRestServer(api.Config{
		Port: restPort,
		Game: g,
	})
	go func() {
		if err := restServer.Start(); err != nil {
			logging.Error("❌ Ошибка REST API: %v", err)
			log.Fatalf("❌ Ошибка REST API: %v", err)
		}
	}()

	logging.Info("✅ Все сервисы запущены и готовы принимать соединения")
	logging.Info("   🌐 REST API: http://localhost%s", restPort)
	logging.Info("   🔐 JWT аутентификация активирована")
	logging.Info("   ❤️  Health check: http://localhost%s/health", restPort)

	logging.Info("💡 Примеры использования REST API:")
	logging.Info("   curl http://localhost%s/health", restPort)
	logging.Info("   curl -X POST http://localhost%s/api/auth/handshake", restPort)
	logging.Info("   curl -X POST http://localhost%s/api/register -H 'Authorization: Bearer <token>' -d '{\"username\":\"alice\"}'", restPort)

	// Канал для получения сигналов ОС
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logging.Info("📡 Получен сигнал %v, завершение работы...", sig)

	// === GRACEFUL SHUTDOWN ===
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		logging.Warn("Ошибка остановки телеметрии: %v", err)
	}
	if err := bus.Close(); err != nil {
		logging.Warn("Ошибка остановки шины событий: %v", err)
	}

	logging.Info("👋 Сервер остановлен")
}

// openStore подключает выбранный бэкенд хранилища. При недоступности
// внешней БД сервер стартует на in-memory хранилище, как и при
// backend=memory — данные при этом не переживают рестарт.
func openStore(backend string, cfg *config.Config) store.Store {
	switch backend {
	case "mongo":
		mongoCfg := store.MongoConfig{
			URI:      cfg.Storage.Mongo.URI,
			Database: cfg.Storage.Mongo.Database,
		}
		st, err := store.NewMongoStore(mongoCfg)
		if err != nil {
			logging.Warn("MongoDB недоступна (%v) — используется in-memory хранилище", err)
			return store.NewMemoryStore()
		}
		logging.Info("✅ Хранилище: MongoDB (%s)", mongoCfg.Database)
		return st

	case "maria", "mariadb", "mysql":
		mariaCfg := store.MariaConfig{
			Host:     cfg.Storage.Maria.Host,
			Port:     cfg.Storage.Maria.Port,
			Database: cfg.Storage.Maria.Database,
			Username: cfg.Storage.Maria.Username,
			Password: cfg.Storage.Maria.Password,
		}
		st, err := store.NewMariaStore(mariaCfg)
		if err != nil {
			logging.Warn("MariaDB недоступна (%v) — используется in-memory хранилище", err)
			return store.NewMemoryStore()
		}
		logging.Info("✅ Хранилище: MariaDB (%s)", mariaCfg.Database)
		return st

	case "badger":
		path := cfg.Storage.Badger.Path
		if path == "" {
			path = "data/badger"
		}
		st, err := store.NewBadgerStore(path)
		if err != nil {
			logging.Warn("BadgerDB не открылась (%v) — используется in-memory хранилище", err)
			return store.NewMemoryStore()
		}
		logging.Info("✅ Хранилище: BadgerDB (%s)", path)
		return st

	default:
		logging.Info("✅ Хранилище: in-memory")
		return store.NewMemoryStore()
	}
}
