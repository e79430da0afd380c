package registry

import (
	"context"
	"fmt"

	"github.com/annel0/rpg-server/internal/store"
)

// CharacterIDCounter — имя счётчика, из которого выдаются ID персонажей.
const CharacterIDCounter = "character_id"

// IDAllocator выдаёт уникальные, строго возрастающие числовые ID.
// Вся гарантия отсутствия коллизий лежит на CounterRepo: инкремент
// обязан выполняться как одна неделимая операция хранилища.
type IDAllocator struct {
	counters store.CounterRepo
}

// NewIDAllocator создаёт аллокатор поверх репозитория счётчиков.
func NewIDAllocator(counters store.CounterRepo) *IDAllocator {
	return &IDAllocator{counters: counters}
}

// Next возвращает следующее значение именованного счётчика.
// При недоступности хранилища возвращает ErrAllocation: вызывающая
// операция обязана прерваться без каких-либо частичных записей.
func (a *IDAllocator) Next(ctx context.Context, name string) (uint64, error) {
	id, err := a.counters.Next(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrAllocation, err)
	}
	return id, nil
}
