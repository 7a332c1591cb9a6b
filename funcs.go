package doctemplar

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// FunctionCall — разобранный макрос вида NAME('arg1', 'arg2').
type FunctionCall struct {
	Name string
	Args []string
}

var (
	rxFunctionCall = regexp.MustCompile(`(?s)^([\p{Lu}_]+)\((.*)\)$`)
	rxFunctionName = regexp.MustCompile(`^[\p{Lu}_]+$`)
)

// ParseFunctionCall разбирает текст макроса по грамматике NAME '(' [ARG (',' ARG)*] ')'.
// ARG — строка в одинарных или двойных кавычках (кавычка экранируется обратным слешем)
// либо голый текст, который обрезается по краям.
func ParseFunctionCall(text string) (FunctionCall, error) {
	m := rxFunctionCall.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return FunctionCall{}, &FunctionParseError{Token: text, Reason: "ожидается NAME(аргументы)"}
	}
	args, err := splitCallArgs(m[2])
	if err != nil {
		return FunctionCall{}, &FunctionParseError{Token: text, Reason: err.Error()}
	}
	return FunctionCall{Name: m[1], Args: args}, nil
}

// splitCallArgs делит список аргументов по запятым верхнего уровня.
// Запятые внутри кавычек не разделяют аргументы.
func splitCallArgs(s string) ([]string, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var (
		args   []string
		b      strings.Builder
		quote  rune
		quoted bool
	)
	rs := []rune(s)
	flush := func() {
		if quoted {
			args = append(args, b.String())
		} else {
			args = append(args, strings.TrimSpace(b.String()))
		}
		b.Reset()
		quoted = false
	}
	for i := 0; i < len(rs); i++ {
		r := rs[i]
		if quote != 0 {
			switch {
			case r == '\\' && i+1 < len(rs) && (rs[i+1] == '\'' || rs[i+1] == '"' || rs[i+1] == '\\'):
				b.WriteRune(rs[i+1])
				i++
			case r == quote:
				quote = 0
			default:
				b.WriteRune(r)
			}
			continue
		}
		switch {
		case r == ',':
			flush()
		case (r == '\'' || r == '"') && !quoted && strings.TrimSpace(b.String()) == "":
			b.Reset()
			quote = r
			quoted = true
		case quoted && r != ' ' && r != '\t':
			return nil, fmt.Errorf("лишний текст после закрывающей кавычки в позиции %d", i)
		case quoted:
			// пробелы после закрывающей кавычки
		default:
			b.WriteRune(r)
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("незакрытая кавычка %c", quote)
	}
	flush()
	return args, nil
}

// FuncContext — окружение вызова функции.
type FuncContext struct {
	Now  time.Time
	Root any
	// Resolve разрешает путь свойства от корневого объекта по политике макросов значений.
	Resolve func(path string) (Value, bool)
	Format  func(Value) string
}

type FuncHandler func(ctx FuncContext, args []string) (string, error)

// Functions — реестр пользовательских функций по имени в верхнем регистре.
// Нулевое значение готово к Register, но встроенных функций в нём нет; их даёт NewFunctions.
type Functions struct {
	handlers map[string]FuncHandler
}

// NewFunctions возвращает реестр со встроенными функциями.
func NewFunctions() *Functions {
	f := &Functions{handlers: map[string]FuncHandler{}}
	f.handlers[FuncCurrentDate] = fnCurrentDate
	f.handlers[FuncDate] = fnDate
	f.handlers[FuncUpper] = fnUpper
	return f
}

func (f *Functions) Register(name string, h FuncHandler) error {
	if !rxFunctionName.MatchString(name) {
		return fmt.Errorf("недопустимое имя функции %q: только заглавные буквы и _", name)
	}
	if h == nil {
		return fmt.Errorf("функция %s: пустой обработчик", name)
	}
	if f.handlers == nil {
		f.handlers = map[string]FuncHandler{}
	}
	f.handlers[name] = h
	return nil
}

func (f *Functions) Has(name string) bool {
	_, ok := f.handlers[name]
	return ok
}

// Call выполняет вызов; имя, отсутствующее в реестре, даёт UnknownFunctionError.
func (f *Functions) Call(ctx FuncContext, call FunctionCall) (string, error) {
	h, ok := f.handlers[call.Name]
	if !ok {
		return "", &UnknownFunctionError{Name: call.Name}
	}
	out, err := h(ctx, call.Args)
	if err != nil {
		return "", &FunctionError{Name: call.Name, Args: call.Args, Err: err}
	}
	return out, nil
}
