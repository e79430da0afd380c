package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dgraph-io/badger/v3"
)

// Префиксы ключей: по одному «пространству» на таблицу.
const (
	prefixAccount    = "acc:"
	prefixCharacter  = "chr:"
	prefixCharName   = "chrname:" // lowercase(name) -> id (уникальность имён)
	prefixAppearance = "app:"
	prefixSession    = "ses:"
	prefixCounter    = "ctr:"
)

// BadgerStore реализует Store поверх встраиваемой BadgerDB.
// Подходит для single-node развёртывания без внешней БД:
// данные переживают перезапуск, транзакции Badger дают
// сериализуемость операций со счётчиком.
type BadgerStore struct {
	db     *badger.DB
	dbPath string
}

// NewBadgerStore открывает (или создает) базу в каталоге dataPath.
func NewBadgerStore(dataPath string) (*BadgerStore, error) {
	path := filepath.Join(dataPath, "state")
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // Отключаем логирование BadgerDB

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть BadgerDB: %w", err)
	}
	return &BadgerStore{db: db, dbPath: path}, nil
}

func (s *BadgerStore) Accounts() AccountRepo       { return &badgerAccountRepo{db: s.db} }
func (s *BadgerStore) Characters() CharacterRepo   { return &badgerCharacterRepo{db: s.db} }
func (s *BadgerStore) Appearances() AppearanceRepo { return &badgerAppearanceRepo{db: s.db} }
func (s *BadgerStore) Sessions() SessionRepo       { return &badgerSessionRepo{db: s.db} }
func (s *BadgerStore) Counters() CounterRepo       { return &badgerCounterRepo{db: s.db} }

// Close закрывает базу.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func characterKey(id uint64) []byte {
	key := make([]byte, len(prefixCharacter)+8)
	copy(key, prefixCharacter)
	binary.BigEndian.PutUint64(key[len(prefixCharacter):], id)
	return key
}

func appearanceKey(id uint64) []byte {
	key := make([]byte, len(prefixAppearance)+8)
	copy(key, prefixAppearance)
	binary.BigEndian.PutUint64(key[len(prefixAppearance):], id)
	return key
}

// getJSON читает ключ и декодирует JSON-значение в out.
func getJSON(txn *badger.Txn, key []byte, out interface{}) error {
	item, err := txn.Get(key)
	if err == badger.ErrKeyNotFound {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, out)
	})
}

// setJSON сериализует значение и записывает его по ключу.
func setJSON(txn *badger.Txn, key []byte, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}

func keyExists(txn *badger.Txn, key []byte) (bool, error) {
	_, err := txn.Get(key)
	if err == badger.ErrKeyNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

//================ Аккаунты =================//

type badgerAccountRepo struct {
	db *badger.DB
}

func (r *badgerAccountRepo) Insert(ctx context.Context, acc *Account) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	key := []byte(prefixAccount + acc.Identity)
	return r.db.Update(func(txn *badger.Txn) error {
		exists, err := keyExists(txn, key)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicate
		}
		return setJSON(txn, key, acc)
	})
}

func (r *badgerAccountRepo) Get(ctx context.Context, identity string) (*Account, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	var acc Account
	err := r.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, []byte(prefixAccount+identity), &acc)
	})
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

func (r *badgerAccountRepo) Replace(ctx context.Context, acc *Account) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	key := []byte(prefixAccount + acc.Identity)
	return r.db.Update(func(txn *badger.Txn) error {
		exists, err := keyExists(txn, key)
		if err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		return setJSON(txn, key, acc)
	})
}

func (r *badgerAccountRepo) Delete(ctx context.Context, identity string) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	key := []byte(prefixAccount + identity)
	return r.db.Update(func(txn *badger.Txn) error {
		exists, err := keyExists(txn, key)
		if err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		return txn.Delete(key)
	})
}

//================ Персонажи =================//

type badgerCharacterRepo struct {
	db *badger.DB
}

func (r *badgerCharacterRepo) Insert(ctx context.Context, ch *Character) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	idKey := characterKey(ch.ID)
	nameKey := []byte(prefixCharName + strings.ToLower(ch.Name))
	return r.db.Update(func(txn *badger.Txn) error {
		if exists, err := keyExists(txn, idKey); err != nil {
			return err
		} else if exists {
			return ErrDuplicate
		}
		if exists, err := keyExists(txn, nameKey); err != nil {
			return err
		} else if exists {
			return ErrDuplicate
		}
		if err := setJSON(txn, idKey, ch); err != nil {
			return err
		}
		idVal := make([]byte, 8)
		binary.BigEndian.PutUint64(idVal, ch.ID)
		return txn.Set(nameKey, idVal)
	})
}

func (r *badgerCharacterRepo) Get(ctx context.Context, id uint64) (*Character, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	var ch Character
	err := r.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, characterKey(id), &ch)
	})
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

func (r *badgerCharacterRepo) GetByName(ctx context.Context, name string) (*Character, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	var ch Character
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(prefixCharName + strings.ToLower(name)))
		if err == badger.ErrKeyNotFound {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		var id uint64
		if err := item.Value(func(val []byte) error {
			id = binary.BigEndian.Uint64(val)
			return nil
		}); err != nil {
			return err
		}
		return getJSON(txn, characterKey(id), &ch)
	})
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

func (r *badgerCharacterRepo) ListByOwner(ctx context.Context, identity string) ([]*Character, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	var result []*Character
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixCharacter)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var ch Character
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &ch)
			}); err != nil {
				return err
			}
			if ch.OwnerIdentity == identity {
				c := ch
				result = append(result, &c)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (r *badgerCharacterRepo) Replace(ctx context.Context, ch *Character) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	idKey := characterKey(ch.ID)
	return r.db.Update(func(txn *badger.Txn) error {
		var prev Character
		if err := getJSON(txn, idKey, &prev); err != nil {
			return err
		}
		if strings.ToLower(prev.Name) != strings.ToLower(ch.Name) {
			newNameKey := []byte(prefixCharName + strings.ToLower(ch.Name))
			if exists, err := keyExists(txn, newNameKey); err != nil {
				return err
			} else if exists {
				return ErrDuplicate
			}
			if err := txn.Delete([]byte(prefixCharName + strings.ToLower(prev.Name))); err != nil {
				return err
			}
			idVal := make([]byte, 8)
			binary.BigEndian.PutUint64(idVal, ch.ID)
			if err := txn.Set(newNameKey, idVal); err != nil {
				return err
			}
		}
		return setJSON(txn, idKey, ch)
	})
}

func (r *badgerCharacterRepo) Delete(ctx context.Context, id uint64) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	idKey := characterKey(id)
	return r.db.Update(func(txn *badger.Txn) error {
		var ch Character
		if err := getJSON(txn, idKey, &ch); err != nil {
			return err
		}
		if err := txn.Delete([]byte(prefixCharName + strings.ToLower(ch.Name))); err != nil {
			return err
		}
		return txn.Delete(idKey)
	})
}

//================ Внешность =================//

type badgerAppearanceRepo struct {
	db *badger.DB
}

func (r *badgerAppearanceRepo) Insert(ctx context.Context, ap *Appearance) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	key := appearanceKey(ap.CharacterID)
	return r.db.Update(func(txn *badger.Txn) error {
		exists, err := keyExists(txn, key)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicate
		}
		return setJSON(txn, key, ap)
	})
}

func (r *badgerAppearanceRepo) Get(ctx context.Context, characterID uint64) (*Appearance, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	var ap Appearance
	err := r.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, appearanceKey(characterID), &ap)
	})
	if err != nil {
		return nil, err
	}
	return &ap, nil
}

func (r *badgerAppearanceRepo) Delete(ctx context.Context, characterID uint64) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	key := appearanceKey(characterID)
	return r.db.Update(func(txn *badger.Txn) error {
		exists, err := keyExists(txn, key)
		if err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		return txn.Delete(key)
	})
}

//================ Сессии =================//

type badgerSessionRepo struct {
	db *badger.DB
}

func (r *badgerSessionRepo) Upsert(ctx context.Context, s *Session) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return setJSON(txn, []byte(prefixSession+s.Identity), s)
	})
}

func (r *badgerSessionRepo) Get(ctx context.Context, identity string) (*Session, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	var s Session
	err := r.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, []byte(prefixSession+identity), &s)
	})
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *badgerSessionRepo) Delete(ctx context.Context, identity string) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	key := []byte(prefixSession + identity)
	return r.db.Update(func(txn *badger.Txn) error {
		exists, err := keyExists(txn, key)
		if err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		return txn.Delete(key)
	})
}

func (r *badgerSessionRepo) Count(ctx context.Context) (int, error) {
	if err := ctxErr(ctx); err != nil {
		return 0, err
	}
	count := 0
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixSession)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

//================ Счётчики =================//

type badgerCounterRepo struct {
	db *badger.DB
}

// Next инкрементирует счётчик внутри одной Badger-транзакции.
// При конкурентном конфликте (ErrConflict, SSI) транзакция
// повторяется: значение никогда не выдаётся дважды.
func (r *badgerCounterRepo) Next(ctx context.Context, name string) (uint64, error) {
	key := []byte(prefixCounter + name)
	for {
		if err := ctxErr(ctx); err != nil {
			return 0, err
		}
		var next uint64
		err := r.db.Update(func(txn *badger.Txn) error {
			var current uint64
			item, err := txn.Get(key)
			if err == nil {
				if err := item.Value(func(val []byte) error {
					current = binary.BigEndian.Uint64(val)
					return nil
				}); err != nil {
					return err
				}
			} else if err != badger.ErrKeyNotFound {
				return err
			}
			next = current + 1
			buf := make([]byte, 8)
			binary.BigEndian.PutUint64(buf, next)
			return txn.Set(key, buf)
		})
		if err == badger.ErrConflict {
			continue
		}
		if err != nil {
			return 0, err
		}
		return next, nil
	}
}
