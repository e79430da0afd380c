package tests

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/annel0/rpg-server/internal/registry"
	"github.com/annel0/rpg-server/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestConcurrentIDAllocation проверяет, что при параллельном создании
// персонажей ID выдаются без повторов и без дыр.
func TestConcurrentIDAllocation(t *testing.T) {
	st := store.NewMemoryStore()
	defer st.Close()
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	accounts := registry.NewAccountRegistry(st.Accounts())
	alloc := registry.NewIDAllocator(st.Counters())
	characters := registry.NewCharacterRegistry(st.Characters(), st.Appearances(), alloc, accounts)

	const workers = 64
	for i := 0; i < workers; i++ {
		identity := fmt.Sprintf("id-%d", i)
		_, err := accounts.Register(ctx, identity, fmt.Sprintf("user%d", i), base)
		require.NoError(t, err)
	}

	ids := make(chan uint64, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id, err := characters.Create(ctx, fmt.Sprintf("id-%d", n),
				fmt.Sprintf("Hero%d", n), "warrior", registry.AppearanceFields{}, base)
			assert.NoError(t, err)
			ids <- id
		}(i)
	}
	wg.Wait()
	close(ids)

	seen := make(map[uint64]bool, workers)
	var max uint64
	for id := range ids {
		assert.False(t, seen[id], "повторный ID %d", id)
		seen[id] = true
		if id > max {
			max = id
		}
	}
	assert.Len(t, seen, workers)
	assert.Equal(t, uint64(workers), max, "ID должны быть плотными 1..%d", workers)
}

// TestConcurrentCounterNames проверяет независимость именованных счётчиков
// при параллельном доступе.
func TestConcurrentCounterNames(t *testing.T) {
	st := store.NewMemoryStore()
	defer st.Close()
	ctx := context.Background()

	const perCounter = 50
	counters := []string{"alpha", "beta", "gamma"}

	var wg sync.WaitGroup
	results := make(map[string]chan uint64, len(counters))
	for _, name := range counters {
		results[name] = make(chan uint64, perCounter)
	}

	for _, name := range counters {
		for i := 0; i < perCounter; i++ {
			wg.Add(1)
			go func(counter string) {
				defer wg.Done()
				v, err := st.Counters().Next(ctx, counter)
				assert.NoError(t, err)
				results[counter] <- v
			}(name)
		}
	}
	wg.Wait()

	for _, name := range counters {
		close(results[name])
		seen := make(map[uint64]bool, perCounter)
		for v := range results[name] {
			assert.False(t, seen[v], "счётчик %s выдал повтор %d", name, v)
			seen[v] = true
		}
		assert.Len(t, seen, perCounter)
	}
}
