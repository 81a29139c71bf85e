package repo

import "errors"

// Общие ошибки репозиториев.
var (
	// ErrNotFound — запись не найдена в БД.
	ErrNotFound = errors.New("not found")

	// ErrNoDSN — не задана строка подключения (DB_URL).
	ErrNoDSN = errors.New("database url is empty")
)
