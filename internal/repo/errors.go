package repo

import (
	"errors"

	"github.com/shaiso/playbook/internal/coord"
)

// Общие ошибки репозиториев.
//
// Ошибки entries — те же значения, что в coord, чтобы вызывающий
// код матчил их одинаково для любого хранилища.
var (
	// ErrNotFound — запись не найдена в БД.
	ErrNotFound = coord.ErrEntryNotFound

	// ErrAlreadyExists — запись уже существует (конфликт уникальности).
	ErrAlreadyExists = coord.ErrEntryExists

	// ErrInvocationNotFound — запись invocation не найдена.
	ErrInvocationNotFound = errors.New("invocation not found")
)
