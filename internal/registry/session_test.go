package registry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSessionLifecycle(t *testing.T) {
	accounts, characters, sessions := newTestRegistries(t)
	ctx := context.Background()

	accounts.Register(ctx, "id-1", "alice", testTime)
	charID, err := characters.Create(ctx, "id-1", "Aria", "mage", AppearanceFields{}, testTime)
	if err != nil {
		t.Fatalf("Ошибка создания персонажа: %v", err)
	}

	// Подключение открывает сессию без выбранного персонажа
	if err := sessions.OnConnect(ctx, "id-1", testTime); err != nil {
		t.Fatalf("Ошибка подключения: %v", err)
	}
	ses, err := sessions.Current(ctx, "id-1")
	if err != nil {
		t.Fatalf("Сессия не найдена: %v", err)
	}
	if ses.CharacterID != 0 {
		t.Errorf("Новая сессия не должна иметь персонажа, получено %d", ses.CharacterID)
	}

	// Вход персонажем сохраняет время подключения
	loginAt := testTime.Add(time.Minute)
	if err := sessions.Login(ctx, "id-1", charID, loginAt); err != nil {
		t.Fatalf("Ошибка входа: %v", err)
	}
	ses, _ = sessions.Current(ctx, "id-1")
	if ses.CharacterID != charID {
		t.Errorf("Персонаж не привязался к сессии: %d", ses.CharacterID)
	}
	if !ses.ConnectedAt.Equal(testTime) {
		t.Errorf("Вход не должен менять connected_at: %v", ses.ConnectedAt)
	}

	// Вход обновляет last_login аккаунта
	acc, _ := accounts.Get(ctx, "id-1")
	if !acc.LastLogin.Equal(loginAt) {
		t.Errorf("last_login не обновился при входе: %v", acc.LastLogin)
	}

	// Выход удаляет сессию
	if err := sessions.Logout(ctx, "id-1"); err != nil {
		t.Fatalf("Ошибка выхода: %v", err)
	}
	if _, err := sessions.Current(ctx, "id-1"); !errors.Is(err, ErrNotLoggedIn) {
		t.Errorf("Сессия не удалилась после выхода")
	}

	// Повторный выход — ошибка
	if err := sessions.Logout(ctx, "id-1"); !errors.Is(err, ErrNotLoggedIn) {
		t.Errorf("Ожидался ErrNotLoggedIn, получено %v", err)
	}
}

func TestLoginValidation(t *testing.T) {
	accounts, characters, sessions := newTestRegistries(t)
	ctx := context.Background()

	accounts.Register(ctx, "id-1", "alice", testTime)
	accounts.Register(ctx, "id-2", "bob", testTime)
	charID, _ := characters.Create(ctx, "id-1", "Aria", "mage", AppearanceFields{}, testTime)

	// Незарегистрированный аккаунт
	err := sessions.Login(ctx, "ghost", charID, testTime)
	if !errors.Is(err, ErrNotRegistered) {
		t.Errorf("Ожидался ErrNotRegistered, получено %v", err)
	}

	// Чужой персонаж
	err = sessions.Login(ctx, "id-2", charID, testTime)
	if !errors.Is(err, ErrNotOwner) {
		t.Errorf("Ожидался ErrNotOwner, получено %v", err)
	}

	// Несуществующий персонаж
	err = sessions.Login(ctx, "id-1", 9999, testTime)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Ожидался ErrNotFound, получено %v", err)
	}
}

func TestDisconnectSilent(t *testing.T) {
	accounts, _, sessions := newTestRegistries(t)
	ctx := context.Background()

	// Разрыв без сессии — не ошибка
	if err := sessions.OnDisconnect(ctx, "nobody"); err != nil {
		t.Errorf("Разрыв без сессии должен быть тихим: %v", err)
	}

	accounts.Register(ctx, "id-1", "alice", testTime)
	sessions.OnConnect(ctx, "id-1", testTime)
	if err := sessions.OnDisconnect(ctx, "id-1"); err != nil {
		t.Fatalf("Ошибка разрыва: %v", err)
	}
	if _, err := sessions.Current(ctx, "id-1"); !errors.Is(err, ErrNotLoggedIn) {
		t.Errorf("Сессия осталась после разрыва")
	}
}

func TestTouchActivity(t *testing.T) {
	accounts, _, sessions := newTestRegistries(t)
	ctx := context.Background()

	// Без сессии — тихий no-op
	if err := sessions.TouchActivity(ctx, "nobody", testTime); err != nil {
		t.Errorf("TouchActivity без сессии должен быть no-op: %v", err)
	}

	accounts.Register(ctx, "id-1", "alice", testTime)
	sessions.OnConnect(ctx, "id-1", testTime)

	later := testTime.Add(5 * time.Minute)
	if err := sessions.TouchActivity(ctx, "id-1", later); err != nil {
		t.Fatalf("Ошибка TouchActivity: %v", err)
	}
	ses, _ := sessions.Current(ctx, "id-1")
	if !ses.LastActivity.Equal(later) {
		t.Errorf("last_activity не обновился: %v", ses.LastActivity)
	}
	if !ses.ConnectedAt.Equal(testTime) {
		t.Errorf("connected_at не должен меняться: %v", ses.ConnectedAt)
	}
}

func TestOnlineCount(t *testing.T) {
	accounts, _, sessions := newTestRegistries(t)
	ctx := context.Background()

	n, err := sessions.OnlineCount(ctx)
	if err != nil || n != 0 {
		t.Errorf("Ожидалось 0 сессий, получено %d (err=%v)", n, err)
	}

	for i, id := range []string{"id-1", "id-2", "id-3"} {
		accounts.Register(ctx, id, "user"+itoa(uint64(i)), testTime)
		sessions.OnConnect(ctx, id, testTime)
	}
	n, _ = sessions.OnlineCount(ctx)
	if n != 3 {
		t.Errorf("Ожидалось 3 сессии, получено %d", n)
	}

	sessions.OnDisconnect(ctx, "id-2")
	n, _ = sessions.OnlineCount(ctx)
	if n != 2 {
		t.Errorf("Ожидалось 2 сессии, получено %d", n)
	}
}
