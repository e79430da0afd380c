package registry

import (
	"context"
	"errors"
	"time"

	"github.com/annel0/rpg-server/internal/store"
)

// AccountRegistry владеет записями аккаунтов. Все проверки существования
// аккаунта другими компонентами идут через его API, прямого доступа к
// таблице у них нет.
type AccountRegistry struct {
	accounts store.AccountRepo
}

// NewAccountRegistry создаёт реестр поверх репозитория аккаунтов.
func NewAccountRegistry(accounts store.AccountRepo) *AccountRegistry {
	return &AccountRegistry{accounts: accounts}
}

// Register регистрирует аккаунт для identity. Повторная регистрация
// идемпотентна: уже существующий аккаунт получает обновлённый
// last_login, username при этом не перезаписывается.
// Возвращает created=true, если аккаунт был создан впервые —
// вызывающий слой по этому признаку выдаёт стартовых персонажей.
func (r *AccountRegistry) Register(ctx context.Context, identity, username string, at time.Time) (created bool, err error) {
	existing, err := r.accounts.Get(ctx, identity)
	if err == nil {
		// Полная замена записи: новое значение собирается из текущего.
		updated := *existing
		updated.LastLogin = at
		if err := r.accounts.Replace(ctx, &updated); err != nil {
			return false, err
		}
		return false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return false, err
	}

	acc := &store.Account{
		Identity:  identity,
		Username:  username,
		CreatedAt: at,
		LastLogin: at,
	}
	if err := r.accounts.Insert(ctx, acc); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return false, ErrAlreadyRegistered
		}
		return false, err
	}
	return true, nil
}

// TouchLogin обновляет last_login существующего аккаунта.
func (r *AccountRegistry) TouchLogin(ctx context.Context, identity string, at time.Time) error {
	acc, err := r.accounts.Get(ctx, identity)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotRegistered
		}
		return err
	}
	updated := *acc
	updated.LastLogin = at
	return r.accounts.Replace(ctx, &updated)
}

// Exists сообщает, зарегистрирован ли аккаунт. Без побочных эффектов.
func (r *AccountRegistry) Exists(ctx context.Context, identity string) (bool, error) {
	_, err := r.accounts.Get(ctx, identity)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	return false, err
}

// Get возвращает аккаунт или ErrNotRegistered.
func (r *AccountRegistry) Get(ctx context.Context, identity string) (*store.Account, error) {
	acc, err := r.accounts.Get(ctx, identity)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotRegistered
		}
		return nil, err
	}
	return acc, nil
}

// Remove удаляет аккаунт. Используется исключительно для компенсации
// незавершённой регистрации (откат «аккаунт + стартовые персонажи»);
// в обычном жизненном цикле аккаунты не удаляются.
func (r *AccountRegistry) Remove(ctx context.Context, identity string) error {
	err := r.accounts.Delete(ctx, identity)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}
