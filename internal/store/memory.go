package store

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryStore реализует Store в памяти. Потокобезопасен.
// Используется как fallback, когда БД недоступна,
// и для CI/локальной разработки без внешних сервисов.
// ВНИМАНИЕ: Данные теряются при перезапуске сервера!
type MemoryStore struct {
	accounts    *memoryAccountRepo
	characters  *memoryCharacterRepo
	appearances *memoryAppearanceRepo
	sessions    *memorySessionRepo
	counters    *memoryCounterRepo
}

// NewMemoryStore создаёт пустое хранилище в памяти.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:    &memoryAccountRepo{data: make(map[string]Account)},
		characters:  &memoryCharacterRepo{data: make(map[uint64]Character), byName: make(map[string]uint64)},
		appearances: &memoryAppearanceRepo{data: make(map[uint64]Appearance)},
		sessions:    &memorySessionRepo{data: make(map[string]Session)},
		counters:    &memoryCounterRepo{data: make(map[string]uint64)},
	}
}

func (s *MemoryStore) Accounts() AccountRepo       { return s.accounts }
func (s *MemoryStore) Characters() CharacterRepo   { return s.characters }
func (s *MemoryStore) Appearances() AppearanceRepo { return s.appearances }
func (s *MemoryStore) Sessions() SessionRepo       { return s.sessions }
func (s *MemoryStore) Counters() CounterRepo       { return s.counters }
func (s *MemoryStore) Close() error                { return nil }

// normalizeName приводит ключ к нижнему регистру: identity и имена
// персонажей сравниваются без учёта регистра.
func normalizeName(name string) string {
	return strings.ToLower(name)
}

// ctxErr возвращает ошибку контекста, если операция уже отменена.
func ctxErr(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

//================ Аккаунты =================//

type memoryAccountRepo struct {
	mu   sync.RWMutex
	data map[string]Account // key = identity
}

func (r *memoryAccountRepo) Insert(ctx context.Context, acc *Account) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.data[acc.Identity]; exists {
		return ErrDuplicate
	}
	r.data[acc.Identity] = *acc
	return nil
}

func (r *memoryAccountRepo) Get(ctx context.Context, identity string) (*Account, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	acc, ok := r.data[identity]
	if !ok {
		return nil, ErrNotFound
	}
	return &acc, nil
}

func (r *memoryAccountRepo) Replace(ctx context.Context, acc *Account) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.data[acc.Identity]; !exists {
		return ErrNotFound
	}
	r.data[acc.Identity] = *acc
	return nil
}

func (r *memoryAccountRepo) Delete(ctx context.Context, identity string) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.data[identity]; !exists {
		return ErrNotFound
	}
	delete(r.data, identity)
	return nil
}

//================ Персонажи =================//

type memoryCharacterRepo struct {
	mu     sync.RWMutex
	data   map[uint64]Character // key = character ID
	byName map[string]uint64    // lowercase(name) -> ID
}

func (r *memoryCharacterRepo) Insert(ctx context.Context, ch *Character) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	key := normalizeName(ch.Name)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.data[ch.ID]; exists {
		return ErrDuplicate
	}
	if _, exists := r.byName[key]; exists {
		return ErrDuplicate
	}
	r.data[ch.ID] = *ch
	r.byName[key] = ch.ID
	return nil
}

func (r *memoryCharacterRepo) Get(ctx context.Context, id uint64) (*Character, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.data[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &ch, nil
}

func (r *memoryCharacterRepo) GetByName(ctx context.Context, name string) (*Character, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byName[normalizeName(name)]
	if !ok {
		return nil, ErrNotFound
	}
	ch := r.data[id]
	return &ch, nil
}

func (r *memoryCharacterRepo) ListByOwner(ctx context.Context, identity string) ([]*Character, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []*Character
	for _, ch := range r.data {
		if ch.OwnerIdentity == identity {
			c := ch
			result = append(result, &c)
		}
	}
	// Стабильный порядок для предсказуемых ответов API и тестов.
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (r *memoryCharacterRepo) Replace(ctx context.Context, ch *Character) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, exists := r.data[ch.ID]
	if !exists {
		return ErrNotFound
	}
	// Имя персонажа неизменяемо после создания, но индекс
	// поддерживаем на случай расширения дисциплиной полной замены.
	if normalizeName(prev.Name) != normalizeName(ch.Name) {
		if _, taken := r.byName[normalizeName(ch.Name)]; taken {
			return ErrDuplicate
		}
		delete(r.byName, normalizeName(prev.Name))
		r.byName[normalizeName(ch.Name)] = ch.ID
	}
	r.data[ch.ID] = *ch
	return nil
}

func (r *memoryCharacterRepo) Delete(ctx context.Context, id uint64) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, exists := r.data[id]
	if !exists {
		return ErrNotFound
	}
	delete(r.byName, normalizeName(ch.Name))
	delete(r.data, id)
	return nil
}

//================ Внешность =================//

type memoryAppearanceRepo struct {
	mu   sync.RWMutex
	data map[uint64]Appearance // key = character ID
}

func (r *memoryAppearanceRepo) Insert(ctx context.Context, ap *Appearance) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.data[ap.CharacterID]; exists {
		return ErrDuplicate
	}
	r.data[ap.CharacterID] = *ap
	return nil
}

func (r *memoryAppearanceRepo) Get(ctx context.Context, characterID uint64) (*Appearance, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	ap, ok := r.data[characterID]
	if !ok {
		return nil, ErrNotFound
	}
	return &ap, nil
}

func (r *memoryAppearanceRepo) Delete(ctx context.Context, characterID uint64) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.data[characterID]; !exists {
		return ErrNotFound
	}
	delete(r.data, characterID)
	return nil
}

//================ Сессии =================//

type memorySessionRepo struct {
	mu   sync.RWMutex
	data map[string]Session // key = identity
}

func (r *memorySessionRepo) Upsert(ctx context.Context, s *Session) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[s.Identity] = *s
	return nil
}

func (r *memorySessionRepo) Get(ctx context.Context, identity string) (*Session, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.data[identity]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (r *memorySessionRepo) Delete(ctx context.Context, identity string) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.data[identity]; !exists {
		return ErrNotFound
	}
	delete(r.data, identity)
	return nil
}

func (r *memorySessionRepo) Count(ctx context.Context) (int, error) {
	if err := ctxErr(ctx); err != nil {
		return 0, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.data), nil
}

//================ Счётчики =================//

type memoryCounterRepo struct {
	mu   sync.Mutex
	data map[string]uint64 // name -> последнее выданное значение
}

// Next инкрементирует счётчик под мьютексом: чтение и запись —
// одна неделимая секция, потерянных обновлений не бывает.
func (r *memoryCounterRepo) Next(ctx context.Context, name string) (uint64, error) {
	if err := ctxErr(ctx); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	next := r.data[name] + 1
	r.data[name] = next
	return next, nil
}
