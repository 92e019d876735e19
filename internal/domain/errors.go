package domain

import (
	"errors"
	"fmt"
)

// Детерминированные бизнес-исходы. Не ретраятся никогда:
// дубликат и отсутствие записи — это ответ каталога, а не его сбой.
var (
	ErrDuplicateAgent = errors.New("agent mapping already exists")
	ErrAgentNotFound  = errors.New("agent mapping not found")
)

// StoreError — транзиентный сбой хранилища (коннект, таймаут, 5xx-класс).
// Единственный вид ошибок, который ResilientClient ретраит с бэкоффом.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// IsTransient сообщает, можно ли повторить операцию.
func IsTransient(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}

// ValidationError — некорректный ввод клиента. Всегда 4xx, без ретраев.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "validation: " + e.Reason }
