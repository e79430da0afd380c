package game

import (
	"context"

	"github.com/annel0/rpg-server/internal/cache"
	"github.com/annel0/rpg-server/internal/logging"
	"github.com/annel0/rpg-server/internal/store"
)

//================ Проекции чтения =================//

// Читающие методы не берут операционный мьютекс: изменяющие операции
// атомарны на уровне хранилища, поэтому одиночное чтение записи всегда
// видит либо состояние до операции, либо после неё.

// CharacterView — персонаж вместе с внешностью для выдачи клиенту.
type CharacterView struct {
	Character  *store.Character  `json:"character"`
	Appearance *store.Appearance `json:"appearance"`
}

// Account возвращает запись аккаунта (ErrNotRegistered если аккаунта нет).
func (g *Game) Account(ctx context.Context, identity string) (*store.Account, error) {
	return g.accounts.Get(ctx, identity)
}

// Character возвращает персонажа с внешностью по ID.
func (g *Game) Character(ctx context.Context, id uint64) (*CharacterView, error) {
	ch, err := g.characters.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	ap, err := g.characters.AppearanceOf(ctx, id)
	if err != nil {
		return nil, err
	}
	return &CharacterView{Character: ch, Appearance: ap}, nil
}

// CharacterByName ищет персонажа по имени (без учёта регистра).
func (g *Game) CharacterByName(ctx context.Context, name string) (*store.Character, error) {
	return g.characters.ByName(ctx, name)
}

// CharactersOf возвращает всех персонажей аккаунта.
func (g *Game) CharactersOf(ctx context.Context, identity string) ([]*store.Character, error) {
	return g.characters.ListByOwner(ctx, identity)
}

// Session возвращает активную сессию identity (ErrNotLoggedIn если нет).
func (g *Game) Session(ctx context.Context, identity string) (*store.Session, error) {
	return g.sessions.Current(ctx, identity)
}

// OnlineCount — число активных сессий.
func (g *Game) OnlineCount(ctx context.Context) (int, error) {
	return g.sessions.OnlineCount(ctx)
}

// LastPosition возвращает последнюю позицию персонажа: сперва из кеша,
// при промахе — из хранилища с обратной записью в кеш.
func (g *Game) LastPosition(ctx context.Context, characterID uint64) (*cache.LastPosition, error) {
	pos, hit, err := g.positions.Load(ctx, characterID)
	if err != nil {
		logging.Warn("Кеш позиций недоступен: %v", err)
	}
	if hit {
		return pos, nil
	}

	ch, err := g.characters.ByID(ctx, characterID)
	if err != nil {
		return nil, err
	}
	pos = &cache.LastPosition{
		CharacterID: ch.ID,
		X:           ch.X,
		Y:           ch.Y,
		Direction:   ch.Direction,
		UpdatedAt:   ch.LastUpdated,
	}
	if cerr := g.positions.Save(ctx, pos); cerr != nil {
		logging.Debug("Обратная запись в кеш позиций не удалась: %v", cerr)
	}
	return pos, nil
}
