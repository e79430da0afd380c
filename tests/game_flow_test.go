package tests

import (
	"context"
	"testing"
	"time"

	"github.com/annel0/rpg-server/internal/game"
	"github.com/annel0/rpg-server/internal/registry"
	"github.com/annel0/rpg-server/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestFullGameFlow проверяет полный игровой сценарий: подключение,
// регистрация, создание персонажа, вход, перемещение, выход.
func TestFullGameFlow(t *testing.T) {
	st := store.NewMemoryStore()
	defer st.Close()
	g := game.NewGame(st, nil)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// Подключение и регистрация
	require.NoError(t, g.Connect(ctx, "alice-id", base))
	created, err := g.Register(ctx, "alice-id", "alice", base)
	require.NoError(t, err)
	require.True(t, created)

	// Стартовые персонажи выданы
	starters, err := g.CharactersOf(ctx, "alice-id")
	require.NoError(t, err)
	assert.Len(t, starters, 2)

	// Создание собственного персонажа
	charID, err := g.CreateCharacter(ctx, "alice-id", "Aria", "mage",
		registry.AppearanceFields{Skin: "pale", Hair: "silver", Eyes: "blue", Outfit: "robe"}, base)
	require.NoError(t, err)
	assert.NotZero(t, charID)

	view, err := g.Character(ctx, charID)
	require.NoError(t, err)
	assert.Equal(t, "Aria", view.Character.Name)
	assert.Equal(t, "robe", view.Appearance.Outfit)
	assert.Equal(t, registry.SpawnX, view.Character.X)
	assert.Equal(t, registry.SpawnY, view.Character.Y)

	// Вход выбранным персонажем
	require.NoError(t, g.Login(ctx, "alice-id", charID, base.Add(time.Minute)))
	ses, err := g.Session(ctx, "alice-id")
	require.NoError(t, err)
	assert.Equal(t, charID, ses.CharacterID)

	// Перемещение
	moveAt := base.Add(2 * time.Minute)
	require.NoError(t, g.UpdatePosition(ctx, "alice-id", charID, 15.5, -2.25, "left", moveAt))

	pos, err := g.LastPosition(ctx, charID)
	require.NoError(t, err)
	assert.Equal(t, 15.5, pos.X)
	assert.Equal(t, -2.25, pos.Y)
	assert.Equal(t, "left", pos.Direction)

	// Выход и перемещение после выхода: операция привязана к владению,
	// а не к сессии
	require.NoError(t, g.Logout(ctx, "alice-id", base.Add(3*time.Minute)))
	require.NoError(t, g.UpdatePosition(ctx, "alice-id", charID, 1, 1, "down", base.Add(4*time.Minute)))

	// Сессии больше нет
	_, err = g.Session(ctx, "alice-id")
	assert.ErrorIs(t, err, registry.ErrNotLoggedIn)
}

// TestCrossAccountIsolation проверяет, что операции чужих аккаунтов
// отклоняются без следов в состоянии.
func TestCrossAccountIsolation(t *testing.T) {
	st := store.NewMemoryStore()
	defer st.Close()
	g := game.NewGame(st, nil)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	_, err := g.Register(ctx, "alice-id", "alice", base)
	require.NoError(t, err)
	_, err = g.Register(ctx, "bob-id", "bob", base)
	require.NoError(t, err)

	charID, err := g.CreateCharacter(ctx, "alice-id", "Aria", "mage", registry.AppearanceFields{}, base)
	require.NoError(t, err)

	// Чужое перемещение отклоняется
	err = g.UpdatePosition(ctx, "bob-id", charID, 50, 50, "up", base)
	assert.ErrorIs(t, err, registry.ErrNotOwner)

	// Чужой вход отклоняется
	err = g.Login(ctx, "bob-id", charID, base)
	assert.ErrorIs(t, err, registry.ErrNotOwner)

	// Состояние персонажа не изменилось
	view, err := g.Character(ctx, charID)
	require.NoError(t, err)
	assert.Equal(t, registry.SpawnX, view.Character.X)
	assert.Equal(t, registry.SpawnY, view.Character.Y)

	// Имя занято глобально независимо от регистра
	_, err = g.CreateCharacter(ctx, "bob-id", "aria", "warrior", registry.AppearanceFields{}, base)
	assert.ErrorIs(t, err, registry.ErrNameTaken)
}

// TestUnregisteredOperationsRejected проверяет, что операции до
// регистрации аккаунта отклоняются.
func TestUnregisteredOperationsRejected(t *testing.T) {
	st := store.NewMemoryStore()
	defer st.Close()
	g := game.NewGame(st, nil)
	ctx := context.Background()
	base := time.Now().UTC()

	_, err := g.CreateCharacter(ctx, "ghost-id", "Aria", "mage", registry.AppearanceFields{}, base)
	assert.ErrorIs(t, err, registry.ErrNotRegistered)

	err = g.Login(ctx, "ghost-id", 1, base)
	assert.ErrorIs(t, err, registry.ErrNotRegistered)

	_, err = g.Account(ctx, "ghost-id")
	assert.ErrorIs(t, err, registry.ErrNotRegistered)
}
