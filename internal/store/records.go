package store

import "time"

// Account представляет аккаунт игрока, привязанный к непрозрачной
// identity, которую выдаёт хостинговый слой при рукопожатии.
// Username не обязан быть уникальным — уникален только identity.
type Account struct {
	Identity  string    `json:"identity"`   // Первичный ключ (lowercase hex)
	Username  string    `json:"username"`   // Отображаемое имя
	CreatedAt time.Time `json:"created_at"` // Время регистрации (серверное)
	LastLogin time.Time `json:"last_login"` // Последний вход
}

// Character представляет игрового персонажа.
// ID выдаётся аллокатором и никогда не переиспользуется.
type Character struct {
	ID            uint64    `json:"id"`             // Первичный ключ (монотонный)
	OwnerIdentity string    `json:"owner_identity"` // Владелец (FK на Account)
	Name          string    `json:"name"`           // Глобально уникальное имя
	Class         string    `json:"class"`          // Класс (warrior, mage, …)
	Level         int32     `json:"level"`          // Уровень, с 1
	X             float64   `json:"x"`              // Позиция в мире
	Y             float64   `json:"y"`
	Direction     string    `json:"direction"`    // down/left/right/up
	CreatedAt     time.Time `json:"created_at"`   // Время создания
	LastUpdated   time.Time `json:"last_updated"` // Последнее изменение позиции
}

// Appearance описывает внешность персонажа. Создаётся атомарно вместе
// с персонажем и после этого не изменяется.
type Appearance struct {
	CharacterID uint64 `json:"character_id"` // Первичный ключ (= Character.ID)
	Skin        string `json:"skin"`
	Hair        string `json:"hair"`
	Eyes        string `json:"eyes"`
	Outfit      string `json:"outfit"`
}

// Session представляет активное подключение игрока.
// Инвариант: не более одной сессии на identity.
// CharacterID == 0 означает «подключён, но не вошёл за персонажа».
type Session struct {
	Identity     string    `json:"identity"`      // Первичный ключ
	CharacterID  uint64    `json:"character_id"`  // Выбранный персонаж (0 = нет)
	ConnectedAt  time.Time `json:"connected_at"`  // Время подключения
	LastActivity time.Time `json:"last_activity"` // Последняя активность
}

// Counter хранит последнее выданное значение именованного счётчика.
// Значение монотонно не убывает; следующий ID = Value + 1.
type Counter struct {
	Name  string `json:"name"` // Первичный ключ
	Value uint64 `json:"value"`
}
