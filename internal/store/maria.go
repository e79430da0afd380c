package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"
)

// MariaConfig содержит настройки подключения к MariaDB.
type MariaConfig struct {
	Host     string // например, localhost
	Port     int    // например, 3306
	Database string // например, rpgserver
	Username string // пользователь БД
	Password string // пароль БД
}

// MariaStore реализует Store для MariaDB.
// Счётчики инкрементируются одним запросом через
// ON DUPLICATE KEY UPDATE + LAST_INSERT_ID, без отдельного чтения.
type MariaStore struct {
	db          *sql.DB
	accounts    *mariaAccountRepo
	characters  *mariaCharacterRepo
	appearances *mariaAppearanceRepo
	sessions    *mariaSessionRepo
	counters    *mariaCounterRepo
}

// NewMariaStore создает подключение к MariaDB и возвращает хранилище.
func NewMariaStore(cfg MariaConfig) (*MariaStore, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 3306
	}
	if cfg.Database == "" {
		cfg.Database = "rpgserver"
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть подключение к MariaDB: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("не удалось подключиться к MariaDB: %w", err)
	}

	s := &MariaStore{
		db:          db,
		accounts:    &mariaAccountRepo{db: db},
		characters:  &mariaCharacterRepo{db: db},
		appearances: &mariaAppearanceRepo{db: db},
		sessions:    &mariaSessionRepo{db: db},
		counters:    &mariaCounterRepo{db: db},
	}

	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("не удалось создать таблицы: %w", err)
	}
	return s, nil
}

// createTables создает необходимые таблицы в БД.
func (s *MariaStore) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			identity VARCHAR(64) PRIMARY KEY,
			username VARCHAR(50) NOT NULL,
			created_at DATETIME NOT NULL,
			last_login DATETIME NOT NULL
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;`,
		`CREATE TABLE IF NOT EXISTS characters (
			id BIGINT UNSIGNED PRIMARY KEY,
			owner_identity VARCHAR(64) NOT NULL,
			name VARCHAR(50) NOT NULL,
			name_key VARCHAR(50) NOT NULL UNIQUE,
			class VARCHAR(30) NOT NULL,
			level INT NOT NULL DEFAULT 1,
			x DOUBLE NOT NULL DEFAULT 0,
			y DOUBLE NOT NULL DEFAULT 0,
			direction VARCHAR(10) NOT NULL DEFAULT 'down',
			created_at DATETIME NOT NULL,
			last_updated DATETIME NOT NULL,
			INDEX idx_owner (owner_identity)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;`,
		`CREATE TABLE IF NOT EXISTS appearances (
			character_id BIGINT UNSIGNED PRIMARY KEY,
			skin VARCHAR(50) NOT NULL,
			hair VARCHAR(50) NOT NULL,
			eyes VARCHAR(50) NOT NULL,
			outfit VARCHAR(50) NOT NULL
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;`,
		`CREATE TABLE IF NOT EXISTS sessions (
			identity VARCHAR(64) PRIMARY KEY,
			character_id BIGINT UNSIGNED NOT NULL DEFAULT 0,
			connected_at DATETIME NOT NULL,
			last_activity DATETIME NOT NULL
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;`,
		`CREATE TABLE IF NOT EXISTS counters (
			name VARCHAR(64) PRIMARY KEY,
			value BIGINT UNSIGNED NOT NULL
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *MariaStore) Accounts() AccountRepo       { return s.accounts }
func (s *MariaStore) Characters() CharacterRepo   { return s.characters }
func (s *MariaStore) Appearances() AppearanceRepo { return s.appearances }
func (s *MariaStore) Sessions() SessionRepo       { return s.sessions }
func (s *MariaStore) Counters() CounterRepo       { return s.counters }

// Close закрывает подключение к БД.
func (s *MariaStore) Close() error {
	return s.db.Close()
}

// isDuplicate проверяет ошибку на нарушение уникального ключа.
func isDuplicate(err error) bool {
	return err != nil && strings.Contains(err.Error(), "Duplicate entry")
}

//================ Аккаунты =================//

type mariaAccountRepo struct {
	db *sql.DB
}

func (r *mariaAccountRepo) Insert(ctx context.Context, acc *Account) error {
	query := `INSERT INTO accounts (identity, username, created_at, last_login) VALUES (?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query, acc.Identity, acc.Username, acc.CreatedAt, acc.LastLogin)
	if isDuplicate(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("ошибка при создании аккаунта: %w", err)
	}
	return nil
}

func (r *mariaAccountRepo) Get(ctx context.Context, identity string) (*Account, error) {
	query := `SELECT identity, username, created_at, last_login FROM accounts WHERE identity = ?`
	var acc Account
	err := r.db.QueryRowContext(ctx, query, identity).Scan(
		&acc.Identity, &acc.Username, &acc.CreatedAt, &acc.LastLogin)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка при получении аккаунта: %w", err)
	}
	return &acc, nil
}

func (r *mariaAccountRepo) Replace(ctx context.Context, acc *Account) error {
	query := `UPDATE accounts SET username = ?, created_at = ?, last_login = ? WHERE identity = ?`
	res, err := r.db.ExecContext(ctx, query, acc.Username, acc.CreatedAt, acc.LastLogin, acc.Identity)
	if err != nil {
		return fmt.Errorf("ошибка при обновлении аккаунта: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// RowsAffected == 0 может означать и «нет строки», и «ничего не
		// изменилось» — различаем отдельным чтением.
		if _, err := r.Get(ctx, acc.Identity); err != nil {
			return err
		}
	}
	return nil
}

func (r *mariaAccountRepo) Delete(ctx context.Context, identity string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM accounts WHERE identity = ?`, identity)
	if err != nil {
		return fmt.Errorf("ошибка при удалении аккаунта: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

//================ Персонажи =================//

type mariaCharacterRepo struct {
	db *sql.DB
}

const characterColumns = `id, owner_identity, name, class, level, x, y, direction, created_at, last_updated`

func scanCharacter(row *sql.Row) (*Character, error) {
	var ch Character
	err := row.Scan(&ch.ID, &ch.OwnerIdentity, &ch.Name, &ch.Class, &ch.Level,
		&ch.X, &ch.Y, &ch.Direction, &ch.CreatedAt, &ch.LastUpdated)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка при получении персонажа: %w", err)
	}
	return &ch, nil
}

func (r *mariaCharacterRepo) Insert(ctx context.Context, ch *Character) error {
	query := `INSERT INTO characters (` + characterColumns + `, name_key)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		ch.ID, ch.OwnerIdentity, ch.Name, ch.Class, ch.Level,
		ch.X, ch.Y, ch.Direction, ch.CreatedAt, ch.LastUpdated,
		strings.ToLower(ch.Name))
	if isDuplicate(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("ошибка при создании персонажа: %w", err)
	}
	return nil
}

func (r *mariaCharacterRepo) Get(ctx context.Context, id uint64) (*Character, error) {
	query := `SELECT ` + characterColumns + ` FROM characters WHERE id = ?`
	return scanCharacter(r.db.QueryRowContext(ctx, query, id))
}

func (r *mariaCharacterRepo) GetByName(ctx context.Context, name string) (*Character, error) {
	query := `SELECT ` + characterColumns + ` FROM characters WHERE name_key = ?`
	return scanCharacter(r.db.QueryRowContext(ctx, query, strings.ToLower(name)))
}

func (r *mariaCharacterRepo) ListByOwner(ctx context.Context, identity string) ([]*Character, error) {
	query := `SELECT ` + characterColumns + ` FROM characters WHERE owner_identity = ? ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, identity)
	if err != nil {
		return nil, fmt.Errorf("ошибка при выборке персонажей: %w", err)
	}
	defer rows.Close()

	var result []*Character
	for rows.Next() {
		var ch Character
		if err := rows.Scan(&ch.ID, &ch.OwnerIdentity, &ch.Name, &ch.Class, &ch.Level,
			&ch.X, &ch.Y, &ch.Direction, &ch.CreatedAt, &ch.LastUpdated); err != nil {
			return nil, err
		}
		result = append(result, &ch)
	}
	return result, rows.Err()
}

func (r *mariaCharacterRepo) Replace(ctx context.Context, ch *Character) error {
	query := `UPDATE characters SET owner_identity = ?, name = ?, name_key = ?, class = ?,
			  level = ?, x = ?, y = ?, direction = ?, created_at = ?, last_updated = ?
			  WHERE id = ?`
	res, err := r.db.ExecContext(ctx, query,
		ch.OwnerIdentity, ch.Name, strings.ToLower(ch.Name), ch.Class,
		ch.Level, ch.X, ch.Y, ch.Direction, ch.CreatedAt, ch.LastUpdated,
		ch.ID)
	if isDuplicate(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("ошибка при обновлении персонажа: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := r.Get(ctx, ch.ID); err != nil {
			return err
		}
	}
	return nil
}

func (r *mariaCharacterRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM characters WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("ошибка при удалении персонажа: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

//================ Внешность =================//

type mariaAppearanceRepo struct {
	db *sql.DB
}

func (r *mariaAppearanceRepo) Insert(ctx context.Context, ap *Appearance) error {
	query := `INSERT INTO appearances (character_id, skin, hair, eyes, outfit) VALUES (?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query, ap.CharacterID, ap.Skin, ap.Hair, ap.Eyes, ap.Outfit)
	if isDuplicate(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("ошибка при создании внешности: %w", err)
	}
	return nil
}

func (r *mariaAppearanceRepo) Get(ctx context.Context, characterID uint64) (*Appearance, error) {
	query := `SELECT character_id, skin, hair, eyes, outfit FROM appearances WHERE character_id = ?`
	var ap Appearance
	err := r.db.QueryRowContext(ctx, query, characterID).Scan(
		&ap.CharacterID, &ap.Skin, &ap.Hair, &ap.Eyes, &ap.Outfit)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка при получении внешности: %w", err)
	}
	return &ap, nil
}

func (r *mariaAppearanceRepo) Delete(ctx context.Context, characterID uint64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM appearances WHERE character_id = ?`, characterID)
	if err != nil {
		return fmt.Errorf("ошибка при удалении внешности: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

//================ Сессии =================//

type mariaSessionRepo struct {
	db *sql.DB
}

func (r *mariaSessionRepo) Upsert(ctx context.Context, s *Session) error {
	query := `INSERT INTO sessions (identity, character_id, connected_at, last_activity)
			  VALUES (?, ?, ?, ?)
			  ON DUPLICATE KEY UPDATE character_id = VALUES(character_id),
			  connected_at = VALUES(connected_at), last_activity = VALUES(last_activity)`
	_, err := r.db.ExecContext(ctx, query, s.Identity, s.CharacterID, s.ConnectedAt, s.LastActivity)
	if err != nil {
		return fmt.Errorf("ошибка при сохранении сессии: %w", err)
	}
	return nil
}

func (r *mariaSessionRepo) Get(ctx context.Context, identity string) (*Session, error) {
	query := `SELECT identity, character_id, connected_at, last_activity FROM sessions WHERE identity = ?`
	var s Session
	err := r.db.QueryRowContext(ctx, query, identity).Scan(
		&s.Identity, &s.CharacterID, &s.ConnectedAt, &s.LastActivity)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка при получении сессии: %w", err)
	}
	return &s, nil
}

func (r *mariaSessionRepo) Delete(ctx context.Context, identity string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE identity = ?`, identity)
	if err != nil {
		return fmt.Errorf("ошибка при удалении сессии: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mariaSessionRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("ошибка при подсчёте сессий: %w", err)
	}
	return n, nil
}

//================ Счётчики =================//

type mariaCounterRepo struct {
	db *sql.DB
}

// Next инкрементирует счётчик одним запросом. LAST_INSERT_ID(expr)
// возвращает новое значение и для вставки, и для обновления, поэтому
// read-modify-write выполняется на стороне БД без потерянных обновлений.
func (r *mariaCounterRepo) Next(ctx context.Context, name string) (uint64, error) {
	query := `INSERT INTO counters (name, value) VALUES (?, LAST_INSERT_ID(1))
			  ON DUPLICATE KEY UPDATE value = LAST_INSERT_ID(value + 1)`
	res, err := r.db.ExecContext(ctx, query, name)
	if err != nil {
		return 0, fmt.Errorf("ошибка при инкременте счётчика: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}
