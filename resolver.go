package doctemplar

import "strings"

// Resolver разрешает путь свойства от корня в отображаемую строку.
type Resolver interface {
	Resolve(root any, path string) string
	ResolveValue(root any, path string) (Value, bool)
}

// PathResolver реализует обе политики разрешения.
//
// Мягкая (lenient): первый сегмент — условное имя корня, отбрасывается; любое
// неразрешённое звено даёт пустую строку.
//
// Строгая (strict): все звенья, кроме последнего, обязаны дать не-nil объект, иначе
// результатом будет маркер «нет данных». Путь из одного сегмента разрешается прямо
// от корня.
type PathResolver struct {
	acc    *AccessorRegistry
	format Formatter
	strict bool
	noData string
}

func NewLenientResolver(acc *AccessorRegistry, f Formatter) *PathResolver {
	return &PathResolver{acc: acc, format: f}
}

func NewStrictResolver(acc *AccessorRegistry, f Formatter, noData string) *PathResolver {
	return &PathResolver{acc: acc, format: f, strict: true, noData: noData}
}

// NewResolver выбирает политику по имени из конфигурации.
func NewResolver(policy string, acc *AccessorRegistry, f Formatter, noData string) *PathResolver {
	if policy == PolicyStrict {
		return NewStrictResolver(acc, f, noData)
	}
	return NewLenientResolver(acc, f)
}

func (r *PathResolver) Strict() bool { return r.strict }

// SplitPath делит путь по точкам, отбрасывая пустые сегменты.
func SplitPath(path string) []string {
	raw := strings.Split(strings.TrimSpace(path), ".")
	segs := raw[:0]
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}

func (r *PathResolver) Resolve(root any, path string) string {
	s, _ := r.render(root, path)
	return s
}

func (r *PathResolver) render(root any, path string) (string, bool) {
	v, ok := r.ResolveValue(root, path)
	if !ok {
		if r.strict {
			return r.noData, false
		}
		return "", false
	}
	return r.format.Format(v), true
}

// ResolveValue возвращает false, если путь не разрешён (это не то же самое, что nil).
func (r *PathResolver) ResolveValue(root any, path string) (Value, bool) {
	segs := SplitPath(path)
	if r.strict {
		return r.resolveStrict(root, segs)
	}
	if len(segs) > 0 {
		segs = segs[1:]
	}
	cur := root
	for _, seg := range segs {
		if isNull(cur) {
			return NullValue{}, true
		}
		v, ok := r.acc.Lookup(cur, seg)
		if !ok {
			return nil, false
		}
		cur = v
	}
	return ValueOf(cur), true
}

func (r *PathResolver) resolveStrict(root any, segs []string) (Value, bool) {
	switch len(segs) {
	case 0:
		return nil, false
	case 1:
		v, ok := r.acc.Lookup(root, segs[0])
		if !ok {
			return nil, false
		}
		return ValueOf(v), true
	}
	cur := root
	for _, seg := range segs[1 : len(segs)-1] {
		v, ok := r.acc.Lookup(cur, seg)
		if !ok {
			return nil, false
		}
		if isNull(v) {
			return nil, false
		}
		cur = v
	}
	v, ok := r.acc.Lookup(cur, segs[len(segs)-1])
	if !ok {
		return nil, false
	}
	return ValueOf(v), true
}
