package registry

import "errors"

// Доменные ошибки операций. Все они ожидаемы и восстановимы на стороне
// вызывающего: операция, вернувшая ошибку, не оставляет частичных записей.
var (
	ErrAlreadyRegistered = errors.New("account already registered")
	ErrNotRegistered     = errors.New("account not registered")
	ErrNameTaken         = errors.New("character name already taken")
	ErrNotFound          = errors.New("character not found")
	ErrNotOwner          = errors.New("character does not belong to caller")
	ErrNotLoggedIn       = errors.New("not logged in")
	ErrAllocation        = errors.New("id allocation failed")
)
