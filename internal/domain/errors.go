package domain

import "errors"

var (
	// ErrNotFound - запись не найдена. Аксессоры превращают его в nil-результат.
	ErrNotFound = errors.New("not found")
	// ErrConflict - нарушение уникальности (email уже занят и т.п.).
	ErrConflict = errors.New("conflict")
	// ErrInvalidInput - некорректные входные данные.
	ErrInvalidInput = errors.New("invalid input")
)
