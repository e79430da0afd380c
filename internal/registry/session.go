package registry

import (
	"context"
	"errors"
	"time"

	"github.com/annel0/rpg-server/internal/store"
)

// SessionManager владеет инвариантом «не более одной активной сессии
// на identity». Управляется двумя путями: транспортными событиями
// connect/disconnect (молчаливые, не ошибаются) и явными операциями
// login/logout (сообщают об ошибках состояния).
//
// Машина состояний per identity:
//
//	Disconnected -> Connected -> LoggedIn
//
// LoggedIn подразумевает Connected; CharacterID == 0 означает
// «подключён без персонажа».
type SessionManager struct {
	sessions   store.SessionRepo
	accounts   *AccountRegistry
	characters *CharacterRegistry
}

// NewSessionManager создаёт менеджер сессий.
func NewSessionManager(sessions store.SessionRepo, accounts *AccountRegistry,
	characters *CharacterRegistry) *SessionManager {
	return &SessionManager{sessions: sessions, accounts: accounts, characters: characters}
}

// OnConnect регистрирует подключение. Идемпотентна: перезапись
// устаревшей сессии (reconnect без чистого disconnect) закрепляет
// инвариант единственности вместо дублирования.
func (m *SessionManager) OnConnect(ctx context.Context, identity string, at time.Time) error {
	return m.sessions.Upsert(ctx, &store.Session{
		Identity:     identity,
		CharacterID:  0,
		ConnectedAt:  at,
		LastActivity: at,
	})
}

// OnDisconnect убирает сессию, если она есть. Никогда не ошибается:
// транспортный разрыв обязан быть безопасным при любом состоянии.
func (m *SessionManager) OnDisconnect(ctx context.Context, identity string) error {
	err := m.sessions.Delete(ctx, identity)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}

// Login привязывает сессию к персонажу и обновляет last_login аккаунта.
// Если сессии ещё нет (вход без транспортного connect), она создаётся;
// существующая сессия сохраняет время подключения.
func (m *SessionManager) Login(ctx context.Context, identity string, characterID uint64, at time.Time) error {
	exists, err := m.accounts.Exists(ctx, identity)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotRegistered
	}

	owner, err := m.characters.OwnerOf(ctx, characterID)
	if err != nil {
		return err
	}
	if owner != identity {
		return ErrNotOwner
	}

	connectedAt := at
	if current, err := m.sessions.Get(ctx, identity); err == nil {
		connectedAt = current.ConnectedAt
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	if err := m.sessions.Upsert(ctx, &store.Session{
		Identity:     identity,
		CharacterID:  characterID,
		ConnectedAt:  connectedAt,
		LastActivity: at,
	}); err != nil {
		return err
	}

	return m.accounts.TouchLogin(ctx, identity, at)
}

// Logout снимает сессию. В отличие от OnDisconnect — явное действие
// игрока, поэтому отсутствие сессии является ошибкой.
func (m *SessionManager) Logout(ctx context.Context, identity string) error {
	err := m.sessions.Delete(ctx, identity)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotLoggedIn
	}
	return err
}

// TouchActivity обновляет last_activity существующей сессии.
// Вызывается на каждом обновлении позиции: без сессии — тихий no-op,
// затрагивается только запись сессии.
func (m *SessionManager) TouchActivity(ctx context.Context, identity string, at time.Time) error {
	current, err := m.sessions.Get(ctx, identity)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	updated := *current
	updated.LastActivity = at
	return m.sessions.Upsert(ctx, &updated)
}

// Current возвращает активную сессию identity или ErrNotLoggedIn.
func (m *SessionManager) Current(ctx context.Context, identity string) (*store.Session, error) {
	s, err := m.sessions.Get(ctx, identity)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotLoggedIn
		}
		return nil, err
	}
	return s, nil
}

// OnlineCount возвращает число активных сессий.
func (m *SessionManager) OnlineCount(ctx context.Context) (int, error) {
	return m.sessions.Count(ctx)
}
