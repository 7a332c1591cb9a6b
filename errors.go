package doctemplar

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTemplateNotFound — исходный шаблон отсутствует на диске.
	ErrTemplateNotFound = errors.New("шаблон не найден")
	// ErrLimitExceeded — превышены ограничения на число макросов или элементов коллекции.
	ErrLimitExceeded = errors.New("превышено ограничение")
)

// FunctionParseError — токен похож на вызов функции, но не соответствует грамматике NAME(args).
type FunctionParseError struct {
	Token  string
	Reason string
}

func (e *FunctionParseError) Error() string {
	return fmt.Sprintf("ошибка разбора функции %q: %s", e.Token, e.Reason)
}

// UnknownFunctionError — имя функции отсутствует в реестре.
type UnknownFunctionError struct {
	Name string
}

func (e *UnknownFunctionError) Error() string {
	return fmt.Sprintf("неизвестная функция %s", e.Name)
}

// FunctionError оборачивает ошибку обработчика функции.
type FunctionError struct {
	Name string
	Args []string
	Err  error
}

func (e *FunctionError) Error() string {
	return fmt.Sprintf("функция %s(%s): %v", e.Name, strings.Join(e.Args, ", "), e.Err)
}

func (e *FunctionError) Unwrap() error { return e.Err }

type LimitError struct {
	What  string
	Limit int
	Got   int
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("%s: %d > %d", e.What, e.Got, e.Limit)
}

func (e *LimitError) Unwrap() error { return ErrLimitExceeded }

// DocumentError описывает сбой файловой операции или разбора архива.
type DocumentError struct {
	Op   string
	Path string
	Err  error
}

func (e *DocumentError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *DocumentError) Unwrap() error { return e.Err }
