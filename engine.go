// Package doctemplar заполняет шаблоны документов (DOCX, XLSX, текст) данными из графа объектов.
//
// Синтаксис:
//   - {{contracts.full_name}} — путь свойства, первый сегмент — условное имя корня;
//   - {{ТЕКУЩАЯ_ДАТА('дд.ММ.гггг')}} — вызов функции из реестра;
//   - ${creditors} ... $creditor.name ... ${/creditors} — блок, повторяемый для каждого
//     элемента коллекции; $creditor.index — порядковый номер с 1.
package doctemplar

import (
	"log"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Engine подставляет значения в шаблон. Состояние после New только читается,
// поэтому один Engine можно использовать из нескольких горутин.
type Engine struct {
	cfg      Config
	funcs    *Functions
	acc      *AccessorRegistry
	now      func() time.Time
	log      *log.Logger
	valueRes *PathResolver
	itemRes  *PathResolver
}

type Option func(*Engine)

// WithFunctions задаёт реестр пользовательских функций.
func WithFunctions(f *Functions) Option { return func(e *Engine) { e.funcs = f } }

// WithAccessors задаёт таблицы свойств доменных типов.
func WithAccessors(r *AccessorRegistry) Option { return func(e *Engine) { e.acc = r } }

// WithClock подменяет источник текущего времени.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

func New(cfg Config, opts ...Option) (*Engine, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{cfg: cfg, now: time.Now}
	for _, o := range opts {
		o(e)
	}
	if e.funcs == nil {
		e.funcs = NewFunctions()
	}
	if e.acc == nil {
		e.acc = NewAccessorRegistry()
	}
	e.log = cfg.logger()
	f := NewFormatter(cfg)
	e.valueRes = NewResolver(cfg.ValuePolicy, e.acc, f, cfg.NoDataMarker)
	e.itemRes = NewResolver(cfg.ItemPolicy, e.acc, f, cfg.NoDataMarker)
	return e, nil
}

func (e *Engine) Config() Config { return e.cfg }

func (e *Engine) valueDelims() Delimiters {
	return Delimiters{Open: e.cfg.ValueOpen, Close: e.cfg.ValueClose}
}

func (e *Engine) blockDelims() Delimiters {
	return Delimiters{Open: e.cfg.BlockOpen, Close: e.cfg.BlockClose}
}

// Render обрабатывает поток как обычный текст: подстановка значений и функций,
// затем размножение блоков.
func (e *Engine) Render(stream string, root any) (string, error) {
	return e.renderStream(stream, root, plainText)
}

func (e *Engine) renderStream(stream string, root any, m markup) (string, error) {
	out, written, err := e.substituteValues(stream, root, m)
	if err != nil {
		return "", err
	}
	return e.blockPass(out, written, root, m)
}

func (e *Engine) valuePass(stream string, root any, m markup) (string, error) {
	out, _, err := e.substituteValues(stream, root, m)
	return out, err
}

// substituteValues заменяет макросы {{...}}. Функции вычисляются раньше путей свойств:
// ошибка в функции прерывает генерацию до разрешения остальных макросов.
// Второе значение — участки результата, занятые подставленными данными.
func (e *Engine) substituteValues(stream string, root any, m markup) (string, []span, error) {
	toks := ScanVariables(stream, e.valueDelims())
	if len(toks) == 0 {
		return stream, nil, nil
	}
	if len(toks) > e.cfg.MaxMacros {
		return "", nil, &LimitError{What: "число макросов", Limit: e.cfg.MaxMacros, Got: len(toks)}
	}
	vals := make([]string, len(toks))
	fctx := FuncContext{
		Now:     e.now(),
		Root:    root,
		Resolve: func(path string) (Value, bool) { return e.valueRes.ResolveValue(root, path) },
		Format:  NewFormatter(e.cfg).Format,
	}
	for i, t := range toks {
		if Classify(t.Text) != KindFunction {
			continue
		}
		call, err := ParseFunctionCall(t.Text)
		if err != nil {
			return "", nil, err
		}
		v, err := e.funcs.Call(fctx, call)
		if err != nil {
			return "", nil, err
		}
		vals[i] = m.escape(v)
	}
	for i, t := range toks {
		if Classify(t.Text) != KindValue {
			continue
		}
		v, ok := e.valueRes.render(root, t.Text)
		if !ok {
			e.log.Printf("⚠️ Путь %q не разрешён", t.Text)
		}
		vals[i] = m.escape(v)
	}
	return spliceTokens(stream, toks, vals), writtenSpans(toks, vals), nil
}

// blockPass повторно сканирует уже заполненный поток и размножает блоки ${name}...${/name}.
// Токены внутри подставленных данных (written) блоками не считаются.
func (e *Engine) blockPass(stream string, written []span, root any, m markup) (string, error) {
	blocks, unmatched := matchBlocks(stream, e.blockDelims(), m.containers, written)
	for _, t := range unmatched {
		e.log.Printf("⚠️ Блок %s не закрыт, маркер оставлен как есть", t.Text)
	}
	// с конца, чтобы смещения предыдущих блоков оставались верными
	for i := len(blocks) - 1; i >= 0; i-- {
		b := blocks[i]
		subs, err := e.blockSubstitutions(b, root, m)
		if err != nil {
			return "", err
		}
		if len(subs) == 0 {
			e.log.Printf("⚠️ Блок %s: коллекция %s пуста или не найдена", b.Name, b.CollectionName)
		}
		stream = cloneMatched(stream, b, subs)
	}
	return stream, nil
}

func (e *Engine) blockSubstitutions(b Block, root any, m markup) ([]map[string]string, error) {
	items := e.collection(root, b.CollectionName)
	if len(items) > e.cfg.MaxItems {
		return nil, &LimitError{What: "размер коллекции " + b.CollectionName, Limit: e.cfg.MaxItems, Got: len(items)}
	}
	subs := make([]map[string]string, len(items))
	for idx, item := range items {
		sm := make(map[string]string, len(b.Items))
		for _, t := range b.Items {
			path := strings.TrimPrefix(t.Text, "$")
			if _, prop := splitItemVar(path); prop == "index" {
				sm[t.Raw] = strconv.Itoa(idx + 1)
				continue
			}
			sm[t.Raw] = m.escape(e.itemRes.Resolve(item, path))
		}
		subs[idx] = sm
	}
	return subs, nil
}

// collection разрешает путь коллекции от корня без отбрасывания сегментов.
func (e *Engine) collection(root any, path string) []any {
	v, ok := e.acc.Walk(root, SplitPath(path))
	if !ok || isNull(v) {
		return nil
	}
	items, _ := toItems(v)
	return items
}

func toItems(v any) ([]any, bool) {
	switch vv := v.(type) {
	case []any:
		return vv, true
	case []map[string]any:
		return Items(vv), true
	case []string:
		return Items(vv), true
	case Sequence:
		out := make([]any, vv.Len())
		for i := range out {
			out[i] = vv.At(i)
		}
		return out, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func spliceTokens(stream string, toks []MacroToken, vals []string) string {
	var b strings.Builder
	b.Grow(len(stream))
	last := 0
	for i, t := range toks {
		b.WriteString(stream[last:t.Offset])
		b.WriteString(vals[i])
		last = t.End()
	}
	b.WriteString(stream[last:])
	return b.String()
}

// span — полуинтервал [start, end) потока.
type span struct{ start, end int }

// writtenSpans возвращает места подставленных значений в результате spliceTokens.
func writtenSpans(toks []MacroToken, vals []string) []span {
	out := make([]span, 0, len(toks))
	shift := 0
	for i, t := range toks {
		start := t.Offset + shift
		if len(vals[i]) > 0 {
			out = append(out, span{start, start + len(vals[i])})
		}
		shift += len(vals[i]) - len(t.Raw)
	}
	return out
}

// overlaps: пересекается ли [start, end) с одним из отсортированных участков.
func overlaps(spans []span, start, end int) bool {
	i := sort.Search(len(spans), func(i int) bool { return spans[i].end > start })
	return i < len(spans) && spans[i].start < end
}

// markup — диалект потока: экранирование подставляемого текста и контейнеры маркеров блоков.
type markup struct {
	name       string
	escape     func(string) string
	containers []string
}

var plainText = markup{name: "text", escape: func(s string) string { return s }}
