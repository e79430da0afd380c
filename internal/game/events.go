package game

import "time"

// Полезные нагрузки событий игровых операций. Схема стабильна:
// на неё подписываются внешние потребители через JetStream.

type accountEvent struct {
	Identity string    `json:"identity"`
	Username string    `json:"username"`
	At       time.Time `json:"at"`
}

type characterEvent struct {
	CharacterID uint64    `json:"character_id"`
	Owner       string    `json:"owner"`
	Name        string    `json:"name,omitempty"`
	Class       string    `json:"class,omitempty"`
	At          time.Time `json:"at"`
}

type positionEvent struct {
	CharacterID uint64    `json:"character_id"`
	X           float64   `json:"x"`
	Y           float64   `json:"y"`
	Direction   string    `json:"direction,omitempty"`
	At          time.Time `json:"at"`
}

type sessionEvent struct {
	Identity    string    `json:"identity"`
	CharacterID uint64    `json:"character_id,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	At          time.Time `json:"at"`
}
