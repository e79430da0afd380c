package game

import (
	"context"
	"sync"
	"time"

	"github.com/annel0/rpg-server/internal/cache"
	"github.com/annel0/rpg-server/internal/eventbus"
	"github.com/annel0/rpg-server/internal/logging"
	"github.com/annel0/rpg-server/internal/registry"
	"github.com/annel0/rpg-server/internal/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

//================ Игровые операции =================//

// Game — фасад над реестрами: единственная точка входа для игровых
// операций. Каждая операция атомарна (всё или ничего) и выполняется
// под общим мьютексом — он сериализует изменяющие операции так, что
// читатель никогда не увидит частично применённую операцию.
// Identity вызывающего и момент времени всегда передаёт хост — сама
// игровая логика часы не читает.
type Game struct {
	mu         sync.Mutex
	accounts   *registry.AccountRegistry
	characters *registry.CharacterRegistry
	sessions   *registry.SessionManager
	positions  *cache.PositionCache // может быть nil — кеш опционален
	tracer     trace.Tracer
}

// StarterClasses — классы персонажей, заводимых каждому новому аккаунту.
var StarterClasses = []struct {
	Name  string
	Class string
	Look  registry.AppearanceFields
}{
	{Name: "Warrior", Class: "warrior", Look: registry.AppearanceFields{Skin: "tan", Hair: "brown", Eyes: "brown", Outfit: "plate"}},
	{Name: "Mage", Class: "mage", Look: registry.AppearanceFields{Skin: "pale", Hair: "silver", Eyes: "blue", Outfit: "robe"}},
}

// NewGame собирает фасад поверх хранилища. positions может быть nil.
func NewGame(st store.Store, positions *cache.PositionCache) *Game {
	accounts := registry.NewAccountRegistry(st.Accounts())
	alloc := registry.NewIDAllocator(st.Counters())
	characters := registry.NewCharacterRegistry(st.Characters(), st.Appearances(), alloc, accounts)
	sessions := registry.NewSessionManager(st.Sessions(), accounts, characters)

	return &Game{
		accounts:   accounts,
		characters: characters,
		sessions:   sessions,
		positions:  positions,
		tracer:     otel.Tracer("game"),
	}
}

// Register регистрирует аккаунт. Повторная регистрация — не ошибка:
// обновляется last_login, стартовые персонажи повторно не заводятся.
// Новому аккаунту атомарно создаются стартовые персонажи; если хоть
// один из них не создался, откатывается вся регистрация.
func (g *Game) Register(ctx context.Context, identity, username string, at time.Time) (created bool, err error) {
	ctx, span := g.tracer.Start(ctx, "game.Register")
	defer span.End()
	defer func() { observeOp("register", err) }()

	g.mu.Lock()
	defer g.mu.Unlock()

	created, err = g.accounts.Register(ctx, identity, username, at)
	if err != nil {
		span.RecordError(err)
		return false, err
	}
	if !created {
		logging.Debug("Повторная регистрация identity=%s — обновлён last_login", identity)
		return false, nil
	}

	// Стартовые персонажи. Откат по первой же ошибке: частично
	// заведённый аккаунт существовать не должен.
	var starterIDs []uint64
	for _, s := range StarterClasses {
		id, serr := g.characters.CreateStarter(ctx, identity, s.Name, s.Class, s.Look, at)
		if serr != nil {
			for _, rid := range starterIDs {
				_ = g.characters.Remove(ctx, rid)
			}
			_ = g.accounts.Remove(ctx, identity)
			span.RecordError(serr)
			return false, serr
		}
		starterIDs = append(starterIDs, id)
	}

	logging.Info("Зарегистрирован аккаунт %s (username=%s, стартовых персонажей: %d)",
		identity, username, len(starterIDs))

	g.publish(ctx, eventbus.EventAccountRegistered, accountEvent{
		Identity: identity,
		Username: username,
		At:       at,
	})
	for _, id := range starterIDs {
		g.publish(ctx, eventbus.EventCharacterCreated, characterEvent{
			CharacterID: id,
			Owner:       identity,
			At:          at,
		})
	}
	return true, nil
}

// CreateCharacter создаёт персонажа с внешностью для identity.
func (g *Game) CreateCharacter(ctx context.Context, identity, name, class string,
	look registry.AppearanceFields, at time.Time) (id uint64, err error) {

	ctx, span := g.tracer.Start(ctx, "game.CreateCharacter")
	defer span.End()
	defer func() { observeOp("create_character", err) }()

	g.mu.Lock()
	defer g.mu.Unlock()

	id, err = g.characters.Create(ctx, identity, name, class, look, at)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}

	logging.Info("Создан персонаж #%d %q (%s) для %s", id, name, class, identity)
	g.publish(ctx, eventbus.EventCharacterCreated, characterEvent{
		CharacterID: id,
		Owner:       identity,
		Name:        name,
		Class:       class,
		At:          at,
	})
	return id, nil
}

// UpdatePosition перемещает персонажа. Доступна только владельцу,
// активная сессия не требуется; при её наличии обновляется
// last_activity. Пустой direction сохраняет текущее направление.
func (g *Game) UpdatePosition(ctx context.Context, identity string, characterID uint64,
	x, y float64, direction string, at time.Time) (err error) {

	ctx, span := g.tracer.Start(ctx, "game.UpdatePosition")
	defer span.End()
	defer func() { observeOp("update_position", err) }()

	g.mu.Lock()
	defer g.mu.Unlock()

	if err = g.characters.UpdatePosition(ctx, identity, characterID, x, y, direction, at); err != nil {
		span.RecordError(err)
		return err
	}
	if err = g.sessions.TouchActivity(ctx, identity, at); err != nil {
		span.RecordError(err)
		return err
	}

	// Проекция в Redis — best-effort, провал кеша не откатывает операцию.
	if cerr := g.positions.Save(ctx, &cache.LastPosition{
		CharacterID: characterID,
		X:           x,
		Y:           y,
		Direction:   direction,
		UpdatedAt:   at,
	}); cerr != nil {
		logging.Warn("Кеш позиций недоступен: %v", cerr)
	}

	g.publish(ctx, eventbus.EventPositionUpdated, positionEvent{
		CharacterID: characterID,
		X:           x,
		Y:           y,
		Direction:   direction,
		At:          at,
	})
	return nil
}

// Connect открывает свежую сессию подключения (без выбранного персонажа).
func (g *Game) Connect(ctx context.Context, identity string, at time.Time) (err error) {
	ctx, span := g.tracer.Start(ctx, "game.Connect")
	defer span.End()
	defer func() { observeOp("connect", err) }()

	g.mu.Lock()
	defer g.mu.Unlock()

	if err = g.sessions.OnConnect(ctx, identity, at); err != nil {
		span.RecordError(err)
		return err
	}
	g.publish(ctx, eventbus.EventSessionOpened, sessionEvent{Identity: identity, At: at})
	return nil
}

// Disconnect снимает сессию при разрыве соединения. Отсутствие
// сессии — не ошибка: разрыв может прийти раньше любых операций.
func (g *Game) Disconnect(ctx context.Context, identity string, at time.Time) (err error) {
	ctx, span := g.tracer.Start(ctx, "game.Disconnect")
	defer span.End()
	defer func() { observeOp("disconnect", err) }()

	g.mu.Lock()
	defer g.mu.Unlock()

	if err = g.sessions.OnDisconnect(ctx, identity); err != nil {
		span.RecordError(err)
		return err
	}
	g.publish(ctx, eventbus.EventSessionClosed, sessionEvent{Identity: identity, Reason: "disconnect", At: at})
	return nil
}

// Login входит в игру выбранным персонажем: персонаж должен существовать
// и принадлежать identity. Обновляет last_login аккаунта.
func (g *Game) Login(ctx context.Context, identity string, characterID uint64, at time.Time) (err error) {
	ctx, span := g.tracer.Start(ctx, "game.Login")
	defer span.End()
	defer func() { observeOp("login", err) }()

	g.mu.Lock()
	defer g.mu.Unlock()

	if err = g.sessions.Login(ctx, identity, characterID, at); err != nil {
		span.RecordError(err)
		return err
	}
	logging.Info("Вход в игру: %s персонажем #%d", identity, characterID)
	g.publish(ctx, eventbus.EventSessionOpened, sessionEvent{
		Identity:    identity,
		CharacterID: characterID,
		At:          at,
	})
	return nil
}

// Logout — явный выход из игры; без активной сессии это ошибка.
func (g *Game) Logout(ctx context.Context, identity string, at time.Time) (err error) {
	ctx, span := g.tracer.Start(ctx, "game.Logout")
	defer span.End()
	defer func() { observeOp("logout", err) }()

	g.mu.Lock()
	defer g.mu.Unlock()

	if err = g.sessions.Logout(ctx, identity); err != nil {
		span.RecordError(err)
		return err
	}
	g.publish(ctx, eventbus.EventSessionClosed, sessionEvent{Identity: identity, Reason: "logout", At: at})
	return nil
}

// publish отправляет событие в глобальную шину, не роняя операцию:
// шина — побочный канал, а не часть транзакции.
func (g *Game) publish(ctx context.Context, eventType string, payload interface{}) {
	ev := eventbus.NewEnvelope("game", eventType, payload)
	if err := eventbus.Publish(ctx, ev); err != nil {
		logging.Warn("Событие %s не опубликовано: %v", eventType, err)
	}
}
