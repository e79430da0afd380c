package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// LastPosition — последняя известная позиция персонажа для быстрой
// выдачи клиентам при догоняющей синхронизации.
type LastPosition struct {
	CharacterID uint64    `json:"character_id"`
	X           float64   `json:"x"`
	Y           float64   `json:"y"`
	Direction   string    `json:"direction"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Config содержит настройки подключения к Redis.
type Config struct {
	Addr      string        // Адрес Redis сервера
	Password  string        // Пароль (пустой если не требуется)
	DB        int           // Номер базы данных
	KeyPrefix string        // Префикс для ключей
	TTL       time.Duration // Время жизни записей
}

// DefaultConfig возвращает конфигурацию по умолчанию.
func DefaultConfig() *Config {
	return &Config{
		Addr:      "localhost:6379",
		KeyPrefix: "rpg:pos:",
		TTL:       5 * time.Minute,
	}
}

// PositionCache хранит последние позиции персонажей в Redis.
// Кеш — чистая проекция: источник истины всегда в Store, промах
// или недоступность Redis не ошибка игровой операции.
type PositionCache struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewPositionCache создаёт кеш и проверяет подключение.
func NewPositionCache(cfg *Config) (*PositionCache, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "rpg:pos:"
	}
	if cfg.TTL == 0 {
		cfg.TTL = 5 * time.Minute
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &PositionCache{client: client, keyPrefix: cfg.KeyPrefix, ttl: cfg.TTL}, nil
}

func (c *PositionCache) key(characterID uint64) string {
	return fmt.Sprintf("%s%d", c.keyPrefix, characterID)
}

// Save записывает позицию. Nil-receiver безопасен: кеш не настроен — no-op.
func (c *PositionCache) Save(ctx context.Context, pos *LastPosition) error {
	if c == nil {
		return nil
	}
	data, err := json.Marshal(pos)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(pos.CharacterID), data, c.ttl).Err()
}

// Load возвращает позицию и признак попадания.
func (c *PositionCache) Load(ctx context.Context, characterID uint64) (*LastPosition, bool, error) {
	if c == nil {
		return nil, false, nil
	}
	data, err := c.client.Get(ctx, c.key(characterID)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var pos LastPosition
	if err := json.Unmarshal(data, &pos); err != nil {
		return nil, false, err
	}
	return &pos, true, nil
}

// Delete убирает позицию из кеша.
func (c *PositionCache) Delete(ctx context.Context, characterID uint64) error {
	if c == nil {
		return nil
	}
	return c.client.Del(ctx, c.key(characterID)).Err()
}

// Close закрывает подключение.
func (c *PositionCache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}
