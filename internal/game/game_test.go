package game

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/annel0/rpg-server/internal/registry"
	"github.com/annel0/rpg-server/internal/store"
)

var testTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestGame(t *testing.T) *Game {
	t.Helper()
	st := store.NewMemoryStore()
	t.Cleanup(func() { st.Close() })
	return NewGame(st, nil)
}

func TestRegisterProvisionsStarters(t *testing.T) {
	g := newTestGame(t)
	ctx := context.Background()

	created, err := g.Register(ctx, "id-1", "alice", testTime)
	if err != nil {
		t.Fatalf("Ошибка регистрации: %v", err)
	}
	if !created {
		t.Fatal("Ожидалось created=true")
	}

	chars, err := g.CharactersOf(ctx, "id-1")
	if err != nil {
		t.Fatalf("Ошибка списка персонажей: %v", err)
	}
	if len(chars) != len(StarterClasses) {
		t.Fatalf("Ожидалось %d стартовых персонажей, получено %d", len(StarterClasses), len(chars))
	}

	classes := make(map[string]bool)
	for _, ch := range chars {
		classes[ch.Class] = true
		if ch.X != registry.SpawnX || ch.Y != registry.SpawnY {
			t.Errorf("Стартовый персонаж %q не в точке спауна", ch.Name)
		}
		if ch.Level != registry.StartLevel {
			t.Errorf("Стартовый персонаж %q не первого уровня", ch.Name)
		}
		// У каждого персонажа есть внешность
		view, err := g.Character(ctx, ch.ID)
		if err != nil {
			t.Errorf("Персонаж %q без внешности: %v", ch.Name, err)
		} else if view.Appearance.Outfit == "" {
			t.Errorf("Пустая внешность у %q", ch.Name)
		}
	}
	if !classes["warrior"] || !classes["mage"] {
		t.Errorf("Ожидались классы warrior и mage, получено %v", classes)
	}
}

func TestRegisterRepeatDoesNotReprovision(t *testing.T) {
	g := newTestGame(t)
	ctx := context.Background()

	g.Register(ctx, "id-1", "alice", testTime)
	created, err := g.Register(ctx, "id-1", "alice", testTime.Add(time.Hour))
	if err != nil {
		t.Fatalf("Повторная регистрация вернула ошибку: %v", err)
	}
	if created {
		t.Error("Повторная регистрация должна вернуть created=false")
	}

	chars, _ := g.CharactersOf(ctx, "id-1")
	if len(chars) != len(StarterClasses) {
		t.Errorf("Стартовые персонажи выдались повторно: %d", len(chars))
	}

	acc, _ := g.Account(ctx, "id-1")
	if !acc.LastLogin.Equal(testTime.Add(time.Hour)) {
		t.Errorf("last_login не обновился при повторной регистрации")
	}
}

func TestStarterNamesUniqueAcrossAccounts(t *testing.T) {
	g := newTestGame(t)
	ctx := context.Background()

	g.Register(ctx, "id-1", "alice", testTime)
	if _, err := g.Register(ctx, "id-2", "bob", testTime); err != nil {
		t.Fatalf("Вторая регистрация не прошла: %v", err)
	}

	aChars, _ := g.CharactersOf(ctx, "id-1")
	bChars, _ := g.CharactersOf(ctx, "id-2")

	seen := make(map[string]bool)
	for _, ch := range append(aChars, bChars...) {
		key := strings.ToLower(ch.Name)
		if seen[key] {
			t.Errorf("Повторное имя персонажа %q", ch.Name)
		}
		seen[key] = true
	}

	// У второго аккаунта имена с суффиксом выданного ID
	for _, ch := range bChars {
		if !strings.Contains(ch.Name, "#") {
			t.Errorf("Ожидалось имя с суффиксом, получено %q", ch.Name)
		}
	}
}

func TestGameScenario(t *testing.T) {
	g := newTestGame(t)
	ctx := context.Background()

	if err := g.Connect(ctx, "id-1", testTime); err != nil {
		t.Fatalf("Ошибка подключения: %v", err)
	}
	g.Register(ctx, "id-1", "alice", testTime)

	charID, err := g.CreateCharacter(ctx, "id-1", "Aria", "mage",
		registry.AppearanceFields{Skin: "pale", Hair: "silver", Eyes: "blue", Outfit: "robe"}, testTime)
	if err != nil {
		t.Fatalf("Ошибка создания персонажа: %v", err)
	}

	if err := g.Login(ctx, "id-1", charID, testTime.Add(time.Minute)); err != nil {
		t.Fatalf("Ошибка входа: %v", err)
	}

	moveAt := testTime.Add(2 * time.Minute)
	if err := g.UpdatePosition(ctx, "id-1", charID, 12.5, 7.75, "right", moveAt); err != nil {
		t.Fatalf("Ошибка перемещения: %v", err)
	}

	// Активность сессии обновилась вместе с позицией
	ses, err := g.Session(ctx, "id-1")
	if err != nil {
		t.Fatalf("Сессия не найдена: %v", err)
	}
	if !ses.LastActivity.Equal(moveAt) {
		t.Errorf("last_activity не обновился: %v", ses.LastActivity)
	}

	if err := g.Logout(ctx, "id-1", testTime.Add(3*time.Minute)); err != nil {
		t.Fatalf("Ошибка выхода: %v", err)
	}

	// Перемещение доступно владельцу и после выхода из игры
	afterLogout := testTime.Add(4 * time.Minute)
	if err := g.UpdatePosition(ctx, "id-1", charID, 1, 1, "down", afterLogout); err != nil {
		t.Errorf("Перемещение после выхода должно работать: %v", err)
	}

	pos, err := g.LastPosition(ctx, charID)
	if err != nil {
		t.Fatalf("Ошибка чтения позиции: %v", err)
	}
	if pos.X != 1 || pos.Y != 1 || pos.Direction != "down" {
		t.Errorf("Неверная последняя позиция: %+v", pos)
	}
}

func TestUpdatePositionRejectsStranger(t *testing.T) {
	g := newTestGame(t)
	ctx := context.Background()

	g.Register(ctx, "id-1", "alice", testTime)
	g.Register(ctx, "id-2", "bob", testTime)
	charID, _ := g.CreateCharacter(ctx, "id-1", "Aria", "mage", registry.AppearanceFields{}, testTime)

	err := g.UpdatePosition(ctx, "id-2", charID, 5, 5, "up", testTime)
	if !errors.Is(err, registry.ErrNotOwner) {
		t.Errorf("Ожидался ErrNotOwner, получено %v", err)
	}

	view, _ := g.Character(ctx, charID)
	if view.Character.X != registry.SpawnX || view.Character.Y != registry.SpawnY {
		t.Errorf("Отклонённая операция сдвинула персонажа: %+v", view.Character)
	}
}

func TestLogoutWithoutSession(t *testing.T) {
	g := newTestGame(t)
	ctx := context.Background()

	g.Register(ctx, "id-1", "alice", testTime)
	err := g.Logout(ctx, "id-1", testTime)
	if !errors.Is(err, registry.ErrNotLoggedIn) {
		t.Errorf("Ожидался ErrNotLoggedIn, получено %v", err)
	}

	// Разрыв соединения без сессии — тихий
	if err := g.Disconnect(ctx, "id-1", testTime); err != nil {
		t.Errorf("Disconnect без сессии должен быть тихим: %v", err)
	}
}
