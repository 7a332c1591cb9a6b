package doctemplar

import (
	"reflect"
	"regexp"
	"strings"
	"sync"

	expro "github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Accessors — таблица свойств одного доменного типа: имя геттера → функция чтения.
// Ключи приводятся к виду геттера (full_name, fullName → FullName) при регистрации.
type Accessors[T any] map[string]func(T) any

type accessorTable interface {
	// lookup возвращает значение, признак найденного свойства и признак совпадения типа.
	lookup(obj any, name string) (any, bool, bool)
}

type typedTable[T any] struct {
	props map[string]func(T) any
}

func (t typedTable[T]) lookup(obj any, name string) (any, bool, bool) {
	v, ok := obj.(T)
	if !ok {
		return nil, false, false
	}
	fn, ok := t.props[name]
	if !ok {
		return nil, false, true
	}
	return fn(v), true, true
}

// AccessorRegistry хранит таблицы свойств доменных типов.
// После настройки используется только на чтение.
type AccessorRegistry struct {
	tables []accessorTable
}

func NewAccessorRegistry() *AccessorRegistry { return &AccessorRegistry{} }

// Register добавляет таблицу свойств для типа T.
func Register[T any](r *AccessorRegistry, props Accessors[T]) {
	norm := make(map[string]func(T) any, len(props))
	for k, fn := range props {
		norm[getterName(k)] = fn
	}
	r.tables = append(r.tables, typedTable[T]{props: norm})
}

// PropertyGetter — объект с собственным поиском свойств по ключу.
type PropertyGetter interface {
	Property(name string) (any, bool)
}

// Sequence — упорядоченная коллекция, которую можно размножить блоком.
type Sequence interface {
	Len() int
	At(i int) any
}

// Items упаковывает типизированный срез для возврата из таблицы свойств.
func Items[T any](s []T) []any {
	out := make([]any, len(s))
	for i := range s {
		out[i] = s[i]
	}
	return out
}

// Lookup ищет свойство объекта: таблица геттеров, затем поиск по ключу, затем поле
// или метод Get<Имя> обычной структуры.
// У пустого объекта (nil или nil-указатель) свойств нет.
func (r *AccessorRegistry) Lookup(obj any, segment string) (any, bool) {
	if obj == nil || segment == "" || isNilRef(obj) {
		return nil, false
	}
	name := getterName(segment)
	if r != nil {
		for _, t := range r.tables {
			v, found, matched := t.lookup(obj, name)
			if matched {
				if found {
					return v, true
				}
				break
			}
		}
	}
	return keyedLookup(obj, segment, name)
}

// Walk проходит путь от obj без отбрасывания сегментов. Пустое промежуточное звено
// (nil, nil-указатель) останавливает проход с признаком успеха и значением nil.
func (r *AccessorRegistry) Walk(obj any, segs []string) (any, bool) {
	cur := obj
	for _, seg := range segs {
		if isNull(cur) {
			return nil, true
		}
		v, ok := r.Lookup(cur, seg)
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

func keyedLookup(obj any, segment, name string) (any, bool) {
	switch m := obj.(type) {
	case PropertyGetter:
		if v, ok := m.Property(segment); ok {
			return v, true
		}
		return m.Property(name)
	case map[string]any:
		for _, k := range keyVariants(segment, name) {
			if v, ok := m[k]; ok {
				return v, true
			}
		}
		return nil, false
	case map[string]string:
		for _, k := range keyVariants(segment, name) {
			if v, ok := m[k]; ok {
				return v, true
			}
		}
		return nil, false
	}
	if !isStruct(obj) {
		return nil, false
	}
	if v, err := runMember(obj, "v."+name); err == nil {
		return v, true
	}
	if v, err := runMember(obj, "v.Get"+name+"()"); err == nil {
		return v, true
	}
	return nil, false
}

func keyVariants(segment, name string) []string {
	lower := name
	if r := []rune(name); len(r) > 0 {
		lower = strings.ToLower(string(r[0])) + string(r[1:])
	}
	return []string{segment, name, lower}
}

func isStruct(obj any) bool {
	t := reflect.TypeOf(obj)
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Kind() == reflect.Struct
}

var (
	memberPrograms sync.Map // string → *vm.Program
	rxIdent        = regexp.MustCompile(`^[\p{L}_][\p{L}\p{N}_]*$`)
)

// runMember читает поле или вызывает метод структуры через expr-lang.
// Скомпилированные программы кешируются по тексту выражения.
func runMember(obj any, code string) (any, error) {
	var program *vm.Program
	if p, ok := memberPrograms.Load(code); ok {
		program = p.(*vm.Program)
	} else {
		p, err := expro.Compile(code)
		if err != nil {
			return nil, err
		}
		memberPrograms.Store(code, p)
		program = p
	}
	return expro.Run(program, map[string]any{"v": obj})
}

// getterName: full_name → FullName, fullName → FullName.
func getterName(segment string) string {
	parts := strings.Split(segment, "_")
	caser := cases.Title(language.Und, cases.NoLower)
	var b strings.Builder
	for _, p := range parts {
		if p == "" {
			continue
		}
		b.WriteString(caser.String(p))
	}
	name := b.String()
	if !rxIdent.MatchString(name) {
		return segment
	}
	return name
}
