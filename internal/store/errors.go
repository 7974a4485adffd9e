package store

import "errors"

var (
	// ErrNotAuthenticated blocks mutating operations without a current user.
	ErrNotAuthenticated = errors.New("не авторизован")

	// Validation failures: reported inline, never fatal.
	ErrNameRequired  = errors.New("введите название")
	ErrInvalidEmail  = errors.New("некорректный email")
	ErrInvalidAmount = errors.New("количество должно быть положительным")

	// ErrInvalidImport is returned when an import snapshot is malformed or
	// there is no current user to import into.
	ErrInvalidImport = errors.New("некорректный файл импорта")

	// ErrRemoteWrite wraps persistence gateway failures that triggered a
	// rollback of the optimistic local change.
	ErrRemoteWrite = errors.New("remote write failed")
)
