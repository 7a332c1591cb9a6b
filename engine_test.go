package doctemplar

import (
	"bytes"
	"errors"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type contract struct {
	lastName, firstName, middleName string
	creditors                       []*creditor
}

type creditor struct {
	name string
	inn  string
}

func contractAccessors() *AccessorRegistry {
	acc := NewAccessorRegistry()
	Register(acc, Accessors[*contract]{
		"fullName": func(c *contract) any {
			return c.lastName + " " + c.firstName + " " + c.middleName
		},
		"creditors": func(c *contract) any { return Items(c.creditors) },
	})
	Register(acc, Accessors[*creditor]{
		"name": func(c *creditor) any { return c.name },
		"inn":  func(c *creditor) any { return c.inn },
	})
	return acc
}

func newTestEngine(t *testing.T, cfg Config, opts ...Option) *Engine {
	t.Helper()
	cfg.Quiet = true
	e, err := New(cfg, opts...)
	require.NoError(t, err)
	return e
}

func TestRender_FullNameScenario(t *testing.T) {
	e := newTestEngine(t, DefaultConfig(), WithAccessors(contractAccessors()))
	c := &contract{lastName: "Иванов", firstName: "Иван", middleName: "Иванович"}

	out, err := e.Render("Должник: {{contracts.fullName}}", c)
	require.NoError(t, err)
	assert.Equal(t, "Должник: Иванов Иван Иванович", out)
}

func TestRender_CurrentDateScenario(t *testing.T) {
	clock := func() time.Time { return time.Date(2025, 3, 7, 16, 45, 0, 0, time.UTC) }
	e := newTestEngine(t, DefaultConfig(), WithClock(clock))

	out, err := e.Render("{{ТЕКУЩАЯ_ДАТА('дд.ММ.гггг')}}", nil)
	require.NoError(t, err)
	assert.Equal(t, "07.03.2025", out)
}

func TestRender_CreditorsScenario(t *testing.T) {
	e := newTestEngine(t, DefaultConfig(), WithAccessors(contractAccessors()))
	c := &contract{creditors: []*creditor{{name: "Bank A"}, {name: "Bank B"}}}

	out, err := e.Render("${creditors}$creditor.name${/creditors}", c)
	require.NoError(t, err)
	assert.Equal(t, "Bank ABank B", out)
}

func TestRender_ValuesInsideBlock(t *testing.T) {
	e := newTestEngine(t, DefaultConfig(), WithAccessors(contractAccessors()))
	c := &contract{
		lastName:  "Петров",
		creditors: []*creditor{{name: "Bank A", inn: "7701"}, {name: "Bank B"}},
	}
	tpl := "${creditors}$creditor.index) ${creditor.name}, ИНН $creditor.inn, должник {{c.fullName}}\n${/creditors}"

	out, err := e.Render(tpl, c)
	require.NoError(t, err)
	assert.Equal(t,
		"1) Bank A, ИНН 7701, должник Петров  \n"+
			"2) Bank B, ИНН , должник Петров  \n", out)
}

// Пустой объект-владелец коллекции: ноль копий блока, пустые значения
func TestRender_NilPointerOwner(t *testing.T) {
	e := newTestEngine(t, DefaultConfig(), WithAccessors(contractAccessors()))
	var nobody *contract

	out, err := e.Render("[${creditors}$creditor.name;${/creditors}][{{c.fullName}}]", nobody)
	require.NoError(t, err)
	assert.Equal(t, "[][]", out)

	out, err = e.Render("[{{r.debtor.fullName}}]", map[string]any{"debtor": nobody})
	require.NoError(t, err)
	assert.Equal(t, "[]", out)
}

// Подставленные данные, похожие на маркеры блоков, остаются текстом
func TestRender_DataLooksLikeMarkers(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())
	root := map[string]any{
		"note":      "цена $creditor.name и ${creditors}",
		"creditors": []any{map[string]any{"name": "Bank A"}, map[string]any{"name": "Bank B"}},
	}
	out, err := e.Render("Примечание: {{d.note}}. ${creditors}$creditor.name;${/creditors}", root)
	require.NoError(t, err)
	assert.Equal(t, "Примечание: цена $creditor.name и ${creditors}. Bank A;Bank B;", out)

	out, err = e.Render("${creditors}[{{d.note}}]${/creditors}", root)
	require.NoError(t, err)
	assert.Equal(t, "[цена $creditor.name и ${creditors}][цена $creditor.name и ${creditors}]", out)
}

func TestWrittenSpans(t *testing.T) {
	s := "a{{x.y}}bb{{x.z}}{{x.w}}c"
	toks := ScanVariables(s, valueDelims)
	vals := []string{"XYZ", "", "W"}
	out := spliceTokens(s, toks, vals)
	require.Equal(t, "aXYZbbWc", out)

	spans := writtenSpans(toks, vals)
	require.Equal(t, []span{{1, 4}, {6, 7}}, spans)
	assert.True(t, overlaps(spans, 3, 5))
	assert.False(t, overlaps(spans, 4, 6))
	assert.True(t, overlaps(spans, 0, 10))
	assert.False(t, overlaps(spans, 7, 8))
}

func TestRender_UnresolvedPathIsEmpty(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())
	out, err := e.Render("[{{a.missing}}][{{a.x.y.z}}]", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "[][]", out)
}

func TestRender_StrictValuePolicy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ValuePolicy = PolicyStrict
	cfg.NoDataMarker = "—"
	e := newTestEngine(t, cfg)

	out, err := e.Render("{{a.b.c}}/{{a.d}}", map[string]any{"b": nil, "d": "есть"})
	require.NoError(t, err)
	assert.Equal(t, "—/есть", out)
}

func TestRender_FunctionErrors(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())

	_, err := e.Render("{{a.b}} {{НЕИЗВЕСТНАЯ()}}", nil)
	var uerr *UnknownFunctionError
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, "НЕИЗВЕСТНАЯ", uerr.Name)

	_, err = e.Render("{{ТЕКУЩАЯ_ДАТА('дд)}}", nil)
	var perr *FunctionParseError
	require.ErrorAs(t, err, &perr)

	_, err = e.Render("{{ТЕКУЩАЯ_ДАТА('a', 'b')}}", nil)
	var ferr *FunctionError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, FuncCurrentDate, ferr.Name)
}

func TestRender_CustomFunction(t *testing.T) {
	funcs := NewFunctions()
	require.NoError(t, funcs.Register("ИНИЦИАЛЫ", func(ctx FuncContext, args []string) (string, error) {
		v, _ := ctx.Resolve(args[0])
		s := []rune(ctx.Format(v))
		if len(s) == 0 {
			return "", nil
		}
		return string(s[0]) + ".", nil
	}))
	e := newTestEngine(t, DefaultConfig(), WithFunctions(funcs))

	out, err := e.Render("{{ИНИЦИАЛЫ('p.first')}}", map[string]any{"first": "Иван"})
	require.NoError(t, err)
	assert.Equal(t, "И.", out)
}

func TestRender_Limits(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxMacros = 2
	e := newTestEngine(t, cfg)
	_, err := e.Render("{{a.a}}{{a.b}}{{a.c}}", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLimitExceeded))

	cfg = DefaultConfig()
	cfg.MaxItems = 1
	e = newTestEngine(t, cfg)
	_, err = e.Render("${rows}$row.x${/rows}", map[string]any{"rows": []any{"a", "b"}})
	var lerr *LimitError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, 2, lerr.Got)
	assert.ErrorIs(t, err, ErrLimitExceeded)
}

func TestRender_CustomDelimiters(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ValueOpen, cfg.ValueClose = "[[", "]]"
	cfg.BlockOpen, cfg.BlockClose = "#[", "]"
	e := newTestEngine(t, cfg)

	out, err := e.Render("[[x.name]]: #[items]$item.v,#[/items] {{x.name}}", map[string]any{
		"name":  "итого",
		"items": []any{map[string]any{"v": 1}, map[string]any{"v": 2}},
	})
	require.NoError(t, err)
	assert.Equal(t, "итого: 1,2, {{x.name}}", out)
}

func TestRender_WordEscaping(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())
	root := map[string]any{
		"name": `ООО "Рога & Копыта" <опт>`,
		"note": "строка 1\nстрока 2",
	}
	out, err := e.renderStream("<w:t>{{r.name}}</w:t><w:t>{{r.note}}</w:t>", root, wordML)
	require.NoError(t, err)
	assert.Equal(t,
		`<w:t>ООО &quot;Рога &amp; Копыта&quot; &lt;опт&gt;</w:t>`+
			`<w:t>строка 1</w:t><w:br/><w:t xml:space="preserve">строка 2</w:t>`, out)

	plain, err := e.Render("{{r.name}}", root)
	require.NoError(t, err)
	assert.Equal(t, root["name"], plain)
}

func TestRender_LogsUnmatchedBlock(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Logger = log.New(&buf, "", 0)
	e, err := New(cfg)
	require.NoError(t, err)

	out, err := e.Render("${creditors}$creditor.name", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "${creditors}$creditor.name", out)
	assert.Contains(t, buf.String(), "creditors")
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ItemPolicy = "fuzzy"
	_, err := New(cfg)
	require.Error(t, err)
}

func TestEngine_ConcurrentRender(t *testing.T) {
	e := newTestEngine(t, DefaultConfig(), WithAccessors(contractAccessors()))
	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := &contract{lastName: "Иванов", creditors: []*creditor{{name: "A"}, {name: "B"}}}
			out, err := e.Render("{{c.fullName}}|${creditors}$creditor.name${/creditors}", c)
			if err != nil {
				errs <- err
				return
			}
			if out != "Иванов  |AB" {
				errs <- errors.New("неожиданный результат: " + out)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
