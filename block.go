package doctemplar

import (
	"strings"
)

// Block — найденная пара маркеров ${name} ... ${/name}.
type Block struct {
	Name           string
	ItemName       string
	CollectionName string

	Open  MacroToken
	Close MacroToken
	// Items — переменные элемента внутри тела, относящиеся к ItemName.
	Items []MacroToken

	// [Start, End) заменяется клонами; [BodyStart, BodyEnd) — тело блока.
	Start, End         int
	BodyStart, BodyEnd int
}

// InferBlockNames выводит имя элемента и коллекции из имени блока по окончанию "s":
// creditors → creditor, creditors; creditor → creditor, creditors.
func InferBlockNames(blockName string) (item, collection string) {
	if strings.HasSuffix(blockName, "s") && len(blockName) > 1 {
		return strings.TrimSuffix(blockName, "s"), blockName
	}
	return blockName, blockName + "s"
}

// MatchBlocks находит блоки в потоке одним проходом по токенам.
// Вложенные блоки не поддерживаются: начало блока внутри открытого игнорируется.
// Начало без парного конца остаётся в тексте как есть.
// containers — имена элементов разметки (например w:tr, w:p), которые удаляются
// вместе с маркером, если маркер — их единственный текст.
func MatchBlocks(stream string, d Delimiters, containers ...string) []Block {
	blocks, _ := matchBlocks(stream, d, containers, nil)
	return blocks
}

// matchBlocks пропускает токены, задевающие участки skip (подставленные данные).
func matchBlocks(stream string, d Delimiters, containers []string, skip []span) ([]Block, []MacroToken) {
	toks := scanBlockTokens(stream, d)
	if len(skip) > 0 {
		kept := toks[:0]
		for _, t := range toks {
			if !overlaps(skip, t.Offset, t.End()) {
				kept = append(kept, t)
			}
		}
		toks = kept
	}
	kinds := make([]MacroKind, len(toks))
	names := make([]string, len(toks))
	lastClose := map[string]int{}
	for i, t := range toks {
		kinds[i], names[i] = classifyBlockToken(t)
		if kinds[i] == KindBlockEnd {
			lastClose[names[i]] = i
		}
	}

	var (
		blocks    []Block
		unmatched []MacroToken
		cur       *Block
		inner     []MacroToken
	)
	for i, t := range toks {
		switch kinds[i] {
		case KindBlockStart:
			if cur != nil {
				continue
			}
			if last, ok := lastClose[names[i]]; !ok || last < i {
				unmatched = append(unmatched, t)
				continue
			}
			cur = &Block{Name: names[i], Open: t}
			inner = inner[:0]
		case KindBlockEnd:
			if cur == nil || names[i] != cur.Name {
				continue
			}
			cur.Close = t
			finalizeBlock(cur, inner)
			setSpans(stream, cur, containers)
			blocks = append(blocks, *cur)
			cur = nil
		case KindItem:
			if cur != nil {
				inner = append(inner, t)
			}
		}
	}
	return blocks, unmatched
}

func finalizeBlock(b *Block, inner []MacroToken) {
	var seen []string
	for _, t := range inner {
		seen = append(seen, itemNameOf(t))
	}
	b.ItemName, b.CollectionName = chooseItemName(b.Name, seen)
	for _, t := range inner {
		if itemNameOf(t) == b.ItemName {
			b.Items = append(b.Items, t)
		}
	}
}

// chooseItemName предпочитает явную переменную $item.*, совпадающую с выведенным
// именем, затем первую встреченную, затем выведенное имя.
func chooseItemName(blockName string, seen []string) (item, collection string) {
	item, collection = InferBlockNames(blockName)
	for _, s := range seen {
		if s == item {
			return item, collection
		}
	}
	if len(seen) > 0 {
		return seen[0], collection
	}
	return item, collection
}

func itemNameOf(t MacroToken) string {
	item, _ := splitItemVar(strings.TrimPrefix(t.Text, "$"))
	return item
}

func setSpans(stream string, b *Block, containers []string) {
	b.Start, b.BodyStart = b.Open.Offset, b.Open.End()
	b.BodyEnd, b.End = b.Close.Offset, b.Close.End()
	for _, tag := range containers {
		ostart, oend, ok := markerContainer(stream, b.Open, tag)
		if !ok {
			continue
		}
		cstart, cend, ok := markerContainer(stream, b.Close, tag)
		if !ok || oend > cstart {
			continue
		}
		b.Start, b.BodyStart, b.BodyEnd, b.End = ostart, oend, cstart, cend
		return
	}
}

// markerContainer возвращает границы ближайшего элемента tag вокруг маркера,
// если в нём нет другого текста, кроме самого маркера.
func markerContainer(stream string, t MacroToken, tag string) (int, int, bool) {
	start := lastOpenTag(stream[:t.Offset], tag)
	if start < 0 {
		return 0, 0, false
	}
	closeTag := "</" + tag + ">"
	if strings.Contains(stream[start:t.Offset], closeTag) {
		return 0, 0, false
	}
	rel := strings.Index(stream[t.End():], closeTag)
	if rel < 0 {
		return 0, 0, false
	}
	end := t.End() + rel + len(closeTag)
	if lastOpenTag(stream[t.End():t.End()+rel], tag) >= 0 {
		return 0, 0, false
	}
	text := strings.TrimSpace(stripTags(stream[start:end]))
	if text != strings.TrimSpace(stripTags(t.Raw)) {
		return 0, 0, false
	}
	return start, end, true
}

// lastOpenTag ищет последний открывающий тег <tag> или <tag ...>, не путая w:p с w:pPr.
func lastOpenTag(s, tag string) int {
	prefix := "<" + tag
	for end := len(s); end > 0; {
		i := strings.LastIndex(s[:end], prefix)
		if i < 0 {
			return -1
		}
		if j := i + len(prefix); j < len(s) && (s[j] == '>' || s[j] == ' ' || s[j] == '/') {
			if s[j] == '/' {
				// пустой элемент <tag/>
				end = i
				continue
			}
			return i
		}
		end = i
	}
	return -1
}

// CloneBlock размножает блок blockName: по одной копии тела на каждую карту подстановок.
// Ключи карты — исходный текст переменных элемента ($creditor.name).
// Если блок не найден, поток возвращается без изменений и false.
func CloneBlock(stream string, d Delimiters, blockName string, substitutionsPerItem []map[string]string) (string, bool) {
	for _, b := range MatchBlocks(stream, d) {
		if b.Name == blockName {
			return cloneMatched(stream, b, substitutionsPerItem), true
		}
	}
	return stream, false
}

func cloneMatched(stream string, b Block, subs []map[string]string) string {
	body := stream[b.BodyStart:b.BodyEnd]
	var out strings.Builder
	out.Grow(len(stream) - (b.End - b.Start) + len(body)*len(subs))
	out.WriteString(stream[:b.Start])
	for _, m := range subs {
		last := 0
		for _, t := range b.Items {
			off := t.Offset - b.BodyStart
			if off < last || t.End() > b.BodyEnd {
				continue
			}
			v, ok := m[t.Raw]
			if !ok {
				continue
			}
			out.WriteString(body[last:off])
			out.WriteString(v)
			last = off + len(t.Raw)
		}
		out.WriteString(body[last:])
	}
	out.WriteString(stream[b.End:])
	return out.String()
}
