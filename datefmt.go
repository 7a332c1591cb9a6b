package doctemplar

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	FuncCurrentDate = "ТЕКУЩАЯ_ДАТА"
	FuncDate        = "ДАТА"
	FuncUpper       = "ПРОПИСНЫЕ"

	DefaultDatePattern = "дд.ММ.гггг"
)

var monthNames = [12]string{
	"январь", "февраль", "март", "апрель", "май", "июнь",
	"июль", "август", "сентябрь", "октябрь", "ноябрь", "декабрь",
}

// Порядок важен: длинные токены проверяются раньше перекрывающихся коротких.
var datePatternTokens = []struct {
	token  string
	format func(t time.Time) string
}{
	{"ММММ", func(t time.Time) string { return monthNames[t.Month()-1] }},
	{"МММ", func(t time.Time) string { return string([]rune(monthNames[t.Month()-1])[:3]) + "." }},
	{"ММ", func(t time.Time) string { return fmt.Sprintf("%02d", int(t.Month())) }},
	{"дд", func(t time.Time) string { return fmt.Sprintf("%02d", t.Day()) }},
	{"гггг", func(t time.Time) string { return fmt.Sprintf("%04d", t.Year()) }},
	{"гг", func(t time.Time) string { return fmt.Sprintf("%02d", t.Year()%100) }},
}

// FormatDatePattern форматирует дату по шаблону из токенов дд, ММММ, МММ, ММ, гггг, гг.
// Шаблон просматривается за один проход, поэтому подставленный текст повторно не разбирается.
// Неизвестные символы копируются как есть.
func FormatDatePattern(t time.Time, pattern string) string {
	var b strings.Builder
	for i := 0; i < len(pattern); {
		matched := false
		for _, tok := range datePatternTokens {
			if strings.HasPrefix(pattern[i:], tok.token) {
				b.WriteString(tok.format(t))
				i += len(tok.token)
				matched = true
				break
			}
		}
		if matched {
			continue
		}
		r := []rune(pattern[i:])[0]
		b.WriteRune(r)
		i += len(string(r))
	}
	return b.String()
}

func fnCurrentDate(ctx FuncContext, args []string) (string, error) {
	switch len(args) {
	case 0:
		return FormatDatePattern(ctx.Now, DefaultDatePattern), nil
	case 1:
		pattern := args[0]
		if pattern == "" {
			pattern = DefaultDatePattern
		}
		return FormatDatePattern(ctx.Now, pattern), nil
	default:
		return "", fmt.Errorf("ожидается не более одного аргумента, получено %d", len(args))
	}
}

// fnDate: ДАТА('contracts.date_of_signing', 'дд ММММ гггг')
func fnDate(ctx FuncContext, args []string) (string, error) {
	if len(args) == 0 || len(args) > 2 {
		return "", fmt.Errorf("ожидается путь и необязательный шаблон, получено %d аргументов", len(args))
	}
	pattern := DefaultDatePattern
	if len(args) == 2 && args[1] != "" {
		pattern = args[1]
	}
	if ctx.Resolve == nil {
		return "", nil
	}
	v, ok := ctx.Resolve(args[0])
	if !ok {
		return "", nil
	}
	if d, ok := v.(DateValue); ok {
		return FormatDatePattern(d.Time, pattern), nil
	}
	return ctx.Format(v), nil
}

func fnUpper(ctx FuncContext, args []string) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("ожидается один аргумент, получено %d", len(args))
	}
	if ctx.Resolve == nil {
		return "", nil
	}
	v, ok := ctx.Resolve(args[0])
	if !ok {
		return "", nil
	}
	return cases.Upper(language.Russian).String(ctx.Format(v)), nil
}
