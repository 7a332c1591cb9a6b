package doctemplar

import (
	"regexp"
	"sort"
	"strings"

	"golang.org/x/net/html"
)

// Delimiters — пара открывающего и закрывающего маркеров макроса.
type Delimiters struct {
	Open  string
	Close string
}

// MacroToken — найденный в потоке макрос.
// Raw совпадает с stream[Offset:End()] и включает разделители и попавшую внутрь разметку.
type MacroToken struct {
	Raw    string
	Body   string
	Text   string
	Offset int
	Bare   bool
}

func (t MacroToken) End() int { return t.Offset + len(t.Raw) }

// ScanVariables возвращает макросы потока в порядке следования.
// Теги разметки внутри тела макроса (Word режет текст на несколько w:r) вырезаются,
// HTML/XML-сущности раскодируются, пробелы по краям отбрасываются.
func ScanVariables(stream string, d Delimiters) []MacroToken {
	if d.Open == "" || d.Close == "" {
		return nil
	}
	var toks []MacroToken
	pos := 0
	for pos < len(stream) {
		i := strings.Index(stream[pos:], d.Open)
		if i < 0 {
			break
		}
		start := pos + i
		bodyStart := start + len(d.Open)
		closeAt, reopen := findClose(stream, bodyStart, d)
		if reopen >= 0 {
			// незакрытый маркер перед новым открытием — пропускаем его
			pos = reopen
			continue
		}
		if closeAt < 0 {
			break
		}
		end := closeAt + len(d.Close)
		body := stream[bodyStart:closeAt]
		toks = append(toks, MacroToken{
			Raw:    stream[start:end],
			Body:   body,
			Text:   cleanMacroText(body),
			Offset: start,
		})
		pos = end
	}
	return toks
}

// findClose ищет закрывающий маркер, перешагивая через теги разметки.
// Если раньше встречается новый открывающий маркер, его позиция возвращается вторым значением.
func findClose(stream string, from int, d Delimiters) (int, int) {
	p := from
	for p < len(stream) {
		switch {
		case stream[p] == '<':
			gt := strings.IndexByte(stream[p:], '>')
			if gt < 0 {
				return -1, -1
			}
			p += gt + 1
			continue
		case strings.HasPrefix(stream[p:], d.Close):
			return p, -1
		case strings.HasPrefix(stream[p:], d.Open):
			return -1, p
		}
		p++
	}
	return -1, -1
}

var rxTag = regexp.MustCompile(`<[^>]*>`)

func stripTags(s string) string {
	if !strings.Contains(s, "<") {
		return s
	}
	return rxTag.ReplaceAllString(s, "")
}

func cleanMacroText(body string) string {
	return strings.TrimSpace(html.UnescapeString(stripTags(body)))
}

// Переменная элемента блока без разделителей: $creditor.name, $creditor.address.city
var rxItemVar = regexp.MustCompile(`\$([\p{L}_][\p{L}\p{N}_]*)((?:\.[\p{L}_][\p{L}\p{N}_]*)+)`)

// ScanItemVariables находит голые переменные вида $item.property.
func ScanItemVariables(stream string) []MacroToken {
	ms := rxItemVar.FindAllStringIndex(stream, -1)
	toks := make([]MacroToken, 0, len(ms))
	for _, m := range ms {
		raw := stream[m[0]:m[1]]
		toks = append(toks, MacroToken{Raw: raw, Body: raw[1:], Text: raw[1:], Offset: m[0], Bare: true})
	}
	return toks
}

// scanBlockTokens объединяет макросы блочного стиля и голые переменные элементов
// в один список по порядку документа. Пересекающиеся голые переменные отбрасываются.
func scanBlockTokens(stream string, d Delimiters) []MacroToken {
	delimited := ScanVariables(stream, d)
	bare := ScanItemVariables(stream)
	all := make([]MacroToken, 0, len(delimited)+len(bare))
	all = append(all, delimited...)
	for _, b := range bare {
		inside := false
		for _, t := range delimited {
			if b.Offset < t.End() && t.Offset < b.End() {
				inside = true
				break
			}
		}
		if !inside {
			all = append(all, b)
		}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Offset < all[j].Offset })
	return all
}
