package doctemplar

import (
	"regexp"
	"strings"
)

type MacroKind int

const (
	KindValue MacroKind = iota
	KindFunction
	KindBlockStart
	KindBlockEnd
	KindItem
	KindOther
)

func (k MacroKind) String() string {
	switch k {
	case KindValue:
		return "value"
	case KindFunction:
		return "function"
	case KindBlockStart:
		return "block-start"
	case KindBlockEnd:
		return "block-end"
	case KindItem:
		return "item"
	default:
		return "other"
	}
}

var (
	// Вызов функции: заглавные буквы (кириллица или латиница) и подчёркивание, затем "("
	rxFunctionHead = regexp.MustCompile(`^[\p{Lu}_]+\(`)
	rxBlockName    = regexp.MustCompile(`^[\p{L}_][\p{L}\p{N}_]*$`)
)

// Classify делит очищенные макросы значений на вызовы функций и пути свойств.
func Classify(text string) MacroKind {
	if rxFunctionHead.MatchString(text) {
		return KindFunction
	}
	return KindValue
}

// classifyBlockToken определяет роль токена блочного прохода и возвращает имя:
// имя блока для начала/конца или "item.prop" для переменной элемента.
func classifyBlockToken(t MacroToken) (MacroKind, string) {
	text := t.Text
	if t.Bare {
		return KindItem, text
	}
	switch {
	case strings.HasPrefix(text, "/"):
		name := strings.TrimSpace(text[1:])
		if rxBlockName.MatchString(name) {
			return KindBlockEnd, name
		}
	case strings.Contains(text, "."):
		text = strings.TrimPrefix(text, "$")
		if m := rxItemVar.FindString("$" + text); m == "$"+text {
			return KindItem, text
		}
	case rxBlockName.MatchString(text):
		return KindBlockStart, text
	}
	return KindOther, text
}

// splitItemVar делит "creditor.address.city" на имя элемента и путь свойства.
func splitItemVar(text string) (item, prop string) {
	item, prop, _ = strings.Cut(text, ".")
	return item, prop
}
