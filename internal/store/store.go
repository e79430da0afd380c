package store

import (
	"context"
	"errors"
)

// Ошибки уровня хранилища. Компоненты-реестры переводят их в доменные
// ошибки (NotRegistered, NameTaken и т.д.), наружу они не протекают.
var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("record already exists")
)

// AccountRepo управляет записями аккаунтов, ключ — identity.
type AccountRepo interface {
	// Insert добавляет новый аккаунт. Возвращает ErrDuplicate,
	// если аккаунт с таким identity уже существует.
	Insert(ctx context.Context, acc *Account) error

	// Get возвращает аккаунт по identity или ErrNotFound.
	Get(ctx context.Context, identity string) (*Account, error)

	// Replace атомарно заменяет запись целиком (дисциплина
	// полной замены записи — никаких частичных патчей полей).
	// Возвращает ErrNotFound, если записи нет.
	Replace(ctx context.Context, acc *Account) error

	// Delete удаляет аккаунт. Используется только для компенсации
	// незавершённой регистрации; в обычном цикле аккаунты не удаляются.
	Delete(ctx context.Context, identity string) error
}

// CharacterRepo управляет записями персонажей, ключ — числовой ID.
type CharacterRepo interface {
	// Insert добавляет персонажа. ErrDuplicate при коллизии ID
	// или имени (имя уникально глобально, без учёта регистра).
	Insert(ctx context.Context, ch *Character) error

	// Get возвращает персонажа по ID или ErrNotFound.
	Get(ctx context.Context, id uint64) (*Character, error)

	// GetByName возвращает персонажа по имени (без учёта регистра)
	// или ErrNotFound.
	GetByName(ctx context.Context, name string) (*Character, error)

	// ListByOwner возвращает всех персонажей аккаунта.
	ListByOwner(ctx context.Context, identity string) ([]*Character, error)

	// Replace атомарно заменяет запись целиком. ErrNotFound, если нет.
	Replace(ctx context.Context, ch *Character) error

	// Delete удаляет персонажа. Используется только для компенсации.
	Delete(ctx context.Context, id uint64) error
}

// AppearanceRepo управляет внешностью персонажей, ключ — ID персонажа.
type AppearanceRepo interface {
	Insert(ctx context.Context, ap *Appearance) error
	Get(ctx context.Context, characterID uint64) (*Appearance, error)
	Delete(ctx context.Context, characterID uint64) error
}

// SessionRepo управляет активными сессиями, ключ — identity.
type SessionRepo interface {
	// Upsert создаёт или целиком заменяет сессию по ключу.
	// Замена вместо вставки закрепляет инвариант
	// «не более одной сессии на identity» на уровне хранилища.
	Upsert(ctx context.Context, s *Session) error

	// Get возвращает сессию по identity или ErrNotFound.
	Get(ctx context.Context, identity string) (*Session, error)

	// Delete удаляет сессию. ErrNotFound, если её нет.
	Delete(ctx context.Context, identity string) error

	// Count возвращает число активных сессий (для health/статистики).
	Count(ctx context.Context) (int, error)
}

// CounterRepo выдаёт значения именованных монотонных счётчиков.
type CounterRepo interface {
	// Next атомарно инкрементирует счётчик и возвращает новое значение.
	// Два конкурентных вызова никогда не получают одно и то же число:
	// каждая реализация обязана выполнять read-modify-write как одну
	// неделимую операцию хранилища, а не отдельные чтение и запись.
	Next(ctx context.Context, name string) (uint64, error)
}

// Store агрегирует репозитории пяти таблиц. Одна реализация на бэкенд:
// память (тесты и fallback), MongoDB, MariaDB, BadgerDB.
type Store interface {
	Accounts() AccountRepo
	Characters() CharacterRepo
	Appearances() AppearanceRepo
	Sessions() SessionRepo
	Counters() CounterRepo

	// Close освобождает ресурсы бэкенда.
	Close() error
}
