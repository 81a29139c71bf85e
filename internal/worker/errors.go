package worker

import "errors"

// Ошибки исполнителей.
var (
	// ErrUnknownRunner — нет исполнителя ни для шага, ни для его вида.
	ErrUnknownRunner = errors.New("unknown runner")

	// ErrMissingCommand — у шага не задан params.command.
	ErrMissingCommand = errors.New("missing command")

	// ErrInvalidParam — параметр шага имеет неверный тип.
	ErrInvalidParam = errors.New("invalid param")

	// ErrExecutionFailed — команда завершилась с ненулевым кодом.
	ErrExecutionFailed = errors.New("execution failed")

	// ErrRetryExhausted — все попытки retry исчерпаны.
	ErrRetryExhausted = errors.New("retry attempts exhausted")
)
