package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/annel0/rpg-server/internal/store"
)

// Параметры спауна: каждый новый персонаж появляется в начале координат
// лицом вниз, на первом уровне.
const (
	SpawnX           = 0.0
	SpawnY           = 0.0
	DefaultDirection = "down"
	StartLevel       = 1
)

// AppearanceFields — поля внешности, задаваемые при создании персонажа.
type AppearanceFields struct {
	Skin   string `json:"skin"`
	Hair   string `json:"hair"`
	Eyes   string `json:"eyes"`
	Outfit string `json:"outfit"`
}

// CharacterRegistry владеет записями персонажей и их внешностью.
// Инварианты: глобально уникальное имя (без учёта регистра), владелец
// обязан быть зарегистрированным аккаунтом, ID выдаются аллокатором и
// не переиспользуются.
type CharacterRegistry struct {
	characters  store.CharacterRepo
	appearances store.AppearanceRepo
	alloc       *IDAllocator
	accounts    *AccountRegistry
}

// NewCharacterRegistry создаёт реестр персонажей.
func NewCharacterRegistry(characters store.CharacterRepo, appearances store.AppearanceRepo,
	alloc *IDAllocator, accounts *AccountRegistry) *CharacterRegistry {
	return &CharacterRegistry{
		characters:  characters,
		appearances: appearances,
		alloc:       alloc,
		accounts:    accounts,
	}
}

// Create создаёт персонажа вместе с внешностью — всё или ничего.
// Персонаж появляется в точке спауна. Возвращает выданный ID.
func (r *CharacterRegistry) Create(ctx context.Context, owner, name, class string,
	look AppearanceFields, at time.Time) (uint64, error) {

	exists, err := r.accounts.Exists(ctx, owner)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, ErrNotRegistered
	}

	if _, err := r.characters.GetByName(ctx, name); err == nil {
		return 0, ErrNameTaken
	} else if !errors.Is(err, store.ErrNotFound) {
		return 0, err
	}

	id, err := r.alloc.Next(ctx, CharacterIDCounter)
	if err != nil {
		return 0, err
	}

	ch := &store.Character{
		ID:            id,
		OwnerIdentity: owner,
		Name:          name,
		Class:         class,
		Level:         StartLevel,
		X:             SpawnX,
		Y:             SpawnY,
		Direction:     DefaultDirection,
		CreatedAt:     at,
		LastUpdated:   at,
	}
	if err := r.characters.Insert(ctx, ch); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			// Гонка по имени между проверкой и вставкой.
			return 0, ErrNameTaken
		}
		return 0, err
	}

	ap := &store.Appearance{
		CharacterID: id,
		Skin:        look.Skin,
		Hair:        look.Hair,
		Eyes:        look.Eyes,
		Outfit:      look.Outfit,
	}
	if err := r.appearances.Insert(ctx, ap); err != nil {
		// Компенсация: персонаж без внешности не должен сохраниться.
		_ = r.characters.Delete(ctx, id)
		return 0, err
	}
	return id, nil
}

// CreateStarter — как Create, но имя подбирается автоматически: базовое
// имя, а если оно занято — имя с суффиксом выданного ID ("Warrior#42").
// Используется при заведении стартовых персонажей нового аккаунта.
func (r *CharacterRegistry) CreateStarter(ctx context.Context, owner, base, class string,
	look AppearanceFields, at time.Time) (uint64, error) {

	id, err := r.alloc.Next(ctx, CharacterIDCounter)
	if err != nil {
		return 0, err
	}

	name := base
	if _, err := r.characters.GetByName(ctx, name); err == nil {
		name = fmt.Sprintf("%s#%d", base, id)
	} else if !errors.Is(err, store.ErrNotFound) {
		return 0, err
	}

	ch := &store.Character{
		ID:            id,
		OwnerIdentity: owner,
		Name:          name,
		Class:         class,
		Level:         StartLevel,
		X:             SpawnX,
		Y:             SpawnY,
		Direction:     DefaultDirection,
		CreatedAt:     at,
		LastUpdated:   at,
	}
	if err := r.characters.Insert(ctx, ch); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			// Базовое имя заняли в промежутке — суффикс с ID уникален.
			ch.Name = fmt.Sprintf("%s#%d", base, id)
			if err := r.characters.Insert(ctx, ch); err != nil {
				return 0, err
			}
		} else {
			return 0, err
		}
	}

	ap := &store.Appearance{
		CharacterID: id,
		Skin:        look.Skin,
		Hair:        look.Hair,
		Eyes:        look.Eyes,
		Outfit:      look.Outfit,
	}
	if err := r.appearances.Insert(ctx, ap); err != nil {
		_ = r.characters.Delete(ctx, id)
		return 0, err
	}
	return id, nil
}

// Remove удаляет персонажа вместе с внешностью. Только для компенсации
// незавершённой регистрации; игровых операций удаления персонажа нет.
func (r *CharacterRegistry) Remove(ctx context.Context, id uint64) error {
	if err := r.appearances.Delete(ctx, id); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	err := r.characters.Delete(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}

// UpdatePosition заменяет запись персонажа новой позицией и временем.
// Полная замена записи, а не патч отдельных полей: при конкурентных
// записях действует last-write-wins на уровне всей записи.
// Пустой direction сохраняет текущее направление.
func (r *CharacterRegistry) UpdatePosition(ctx context.Context, caller string, id uint64,
	x, y float64, direction string, at time.Time) error {

	ch, err := r.characters.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	if ch.OwnerIdentity != caller {
		return ErrNotOwner
	}

	updated := *ch
	updated.X = x
	updated.Y = y
	if direction != "" {
		updated.Direction = direction
	}
	updated.LastUpdated = at
	return r.characters.Replace(ctx, &updated)
}

// OwnerOf возвращает identity владельца персонажа.
func (r *CharacterRegistry) OwnerOf(ctx context.Context, id uint64) (string, error) {
	ch, err := r.characters.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", err
	}
	return ch.OwnerIdentity, nil
}

// ByID возвращает персонажа по ID.
func (r *CharacterRegistry) ByID(ctx context.Context, id uint64) (*store.Character, error) {
	ch, err := r.characters.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return ch, nil
}

// ByName возвращает персонажа по имени (без учёта регистра).
func (r *CharacterRegistry) ByName(ctx context.Context, name string) (*store.Character, error) {
	ch, err := r.characters.GetByName(ctx, name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return ch, nil
}

// ListByOwner возвращает всех персонажей аккаунта в порядке создания.
func (r *CharacterRegistry) ListByOwner(ctx context.Context, owner string) ([]*store.Character, error) {
	return r.characters.ListByOwner(ctx, owner)
}

// AppearanceOf возвращает внешность персонажа.
func (r *CharacterRegistry) AppearanceOf(ctx context.Context, id uint64) (*store.Appearance, error) {
	ap, err := r.appearances.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return ap, nil
}
