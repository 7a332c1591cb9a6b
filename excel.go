package doctemplar

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Книги Excel: макросы {{...}} подставляются в каждую ячейку, а строки между строками-маркерами
// ${name} и ${/name} повторяются для каждого элемента коллекции.

// rowTpl описывает шаблонную строку (стили, исходные значения, горизонтальные слияния)
type rowTpl struct {
	styles  map[int]int
	rawVals map[int]string
	merges  []struct {
		startCol int
		endCol   int
	}
}

// rowBlock — блок строк: маркеры в строках start и end (1-based).
type rowBlock struct {
	name       string
	item       string
	collection string
	start, end int
}

const maxTemplateCols = 100

// GenerateWorkbook заполняет книгу templatePath и сохраняет результат в destPath.
func (e *Engine) GenerateWorkbook(templatePath, destPath string, root any) error {
	work, err := e.workCopy(templatePath)
	if err != nil {
		return err
	}
	defer os.Remove(work)

	e.log.Printf("🔄 Загрузка Excel шаблона...")
	f, err := excelize.OpenFile(work)
	if err != nil {
		return &DocumentError{Op: "открытие книги", Path: templatePath, Err: err}
	}
	defer f.Close()

	for _, sheet := range f.GetSheetList() {
		if err := e.renderSheet(f, sheet, root); err != nil {
			return fmt.Errorf("лист %s: %w", sheet, err)
		}
	}

	e.log.Printf("💾 Сохранение файла...")
	tmp, err := os.CreateTemp(filepath.Dir(destPath), ".doctemplar-*.xlsx")
	if err != nil {
		return &DocumentError{Op: "сохранение", Path: destPath, Err: err}
	}
	tmpName := tmp.Name()
	tmp.Close()
	if err := f.SaveAs(tmpName); err != nil {
		os.Remove(tmpName)
		return &DocumentError{Op: "сохранение", Path: destPath, Err: err}
	}
	if err := os.Rename(tmpName, destPath); err != nil {
		os.Remove(tmpName)
		return &DocumentError{Op: "сохранение", Path: destPath, Err: err}
	}
	return nil
}

func (e *Engine) renderSheet(f *excelize.File, sheet string, root any) error {
	rows, err := f.GetRows(sheet)
	if err != nil {
		return err
	}
	// маркеры блоков ищутся по тексту шаблона, а не по подставленным данным
	tpl := make([][]string, len(rows))
	for r, row := range rows {
		tpl[r] = append([]string(nil), row...)
	}
	for r, row := range rows {
		for c, cell := range row {
			if !strings.Contains(cell, e.cfg.ValueOpen) {
				continue
			}
			out, err := e.valuePass(cell, root, plainText)
			if err != nil {
				return fmt.Errorf("ячейка %d:%d: %w", r+1, c+1, err)
			}
			addr, _ := excelize.CoordinatesToCellName(c+1, r+1)
			if err := f.SetCellValue(sheet, addr, out); err != nil {
				return err
			}
			rows[r][c] = out
		}
	}
	blocks := e.matchRowBlocks(tpl)
	// снизу вверх: вставка строк не сдвигает ещё не обработанные блоки
	for i := len(blocks) - 1; i >= 0; i-- {
		if err := e.applyRowBlock(f, sheet, rows, blocks[i], root); err != nil {
			return err
		}
	}
	return nil
}

// rowMarker возвращает маркер блока, если он — единственное непустое значение строки.
func (e *Engine) rowMarker(row []string) (MacroKind, string) {
	marker := ""
	for _, cell := range row {
		c := strings.TrimSpace(cell)
		if c == "" {
			continue
		}
		if marker != "" {
			return KindOther, ""
		}
		marker = c
	}
	if marker == "" {
		return KindOther, ""
	}
	toks := ScanVariables(marker, e.blockDelims())
	if len(toks) != 1 || toks[0].Raw != marker {
		return KindOther, ""
	}
	return classifyBlockToken(toks[0])
}

func (e *Engine) matchRowBlocks(rows [][]string) []rowBlock {
	kinds := make([]MacroKind, len(rows))
	names := make([]string, len(rows))
	lastClose := map[string]int{}
	for i, row := range rows {
		kinds[i], names[i] = e.rowMarker(row)
		if kinds[i] == KindBlockEnd {
			lastClose[names[i]] = i
		}
	}
	var (
		out  []rowBlock
		cur  *rowBlock
		seen []string
	)
	for i, row := range rows {
		switch kinds[i] {
		case KindBlockStart:
			if cur != nil {
				continue
			}
			if last, ok := lastClose[names[i]]; !ok || last < i {
				e.log.Printf("⚠️ Блок %s не закрыт, строка %d оставлена как есть", names[i], i+1)
				continue
			}
			cur = &rowBlock{name: names[i], start: i + 1}
			seen = seen[:0]
		case KindBlockEnd:
			if cur == nil || names[i] != cur.name {
				continue
			}
			cur.end = i + 1
			cur.item, cur.collection = chooseItemName(cur.name, seen)
			out = append(out, *cur)
			cur = nil
		default:
			if cur == nil {
				continue
			}
			for _, cell := range row {
				for _, t := range scanBlockTokens(cell, e.blockDelims()) {
					if k, _ := classifyBlockToken(t); k == KindItem {
						seen = append(seen, itemNameOf(t))
					}
				}
			}
		}
	}
	return out
}

func (e *Engine) applyRowBlock(f *excelize.File, sheet string, rows [][]string, b rowBlock, root any) error {
	items := e.collection(root, b.collection)
	if len(items) > e.cfg.MaxItems {
		return &LimitError{What: "размер коллекции " + b.collection, Limit: e.cfg.MaxItems, Got: len(items)}
	}
	if len(items) == 0 {
		e.log.Printf("⚠️ Блок %s: коллекция %s пуста или не найдена", b.name, b.collection)
	}
	k := b.end - b.start - 1
	tpls := make([]rowTpl, k)
	for j := range tpls {
		tpls[j] = captureRowTpl(f, sheet, rows, b.start+1+j)
	}
	if n := len(items) * k; n > 0 {
		if err := f.InsertRows(sheet, b.end+1, n); err != nil {
			return err
		}
		for idx, item := range items {
			for j, rt := range tpls {
				dstRow := b.end + 1 + idx*k + j
				// Стили из образца
				for col, sid := range rt.styles {
					addr, _ := excelize.CoordinatesToCellName(col, dstRow)
					if err := f.SetCellStyle(sheet, addr, addr, sid); err != nil {
						return err
					}
				}
				for col, raw := range rt.rawVals {
					addr, _ := excelize.CoordinatesToCellName(col, dstRow)
					if err := f.SetCellValue(sheet, addr, e.substituteItem(raw, b.item, idx, item)); err != nil {
						return err
					}
				}
				// Горизонтальные слияния
				for _, mg := range rt.merges {
					c1, _ := excelize.CoordinatesToCellName(mg.startCol, dstRow)
					c2, _ := excelize.CoordinatesToCellName(mg.endCol, dstRow)
					_ = f.MergeCell(sheet, c1, c2)
				}
			}
		}
	}
	// Удаляем маркеры и исходные шаблонные строки снизу вверх
	for r := b.end; r >= b.start; r-- {
		if err := f.RemoveRow(sheet, r); err != nil {
			return err
		}
	}
	return nil
}

// substituteItem заменяет переменные элемента в тексте ячейки.
func (e *Engine) substituteItem(text, itemName string, idx int, item any) string {
	var toks []MacroToken
	var vals []string
	for _, t := range scanBlockTokens(text, e.blockDelims()) {
		if k, _ := classifyBlockToken(t); k != KindItem || itemNameOf(t) != itemName {
			continue
		}
		path := strings.TrimPrefix(t.Text, "$")
		toks = append(toks, t)
		if _, prop := splitItemVar(path); prop == "index" {
			vals = append(vals, strconv.Itoa(idx+1))
			continue
		}
		vals = append(vals, e.itemRes.Resolve(item, path))
	}
	return spliceTokens(text, toks, vals)
}

func captureRowTpl(f *excelize.File, sheet string, rows [][]string, tplRow int) rowTpl {
	rt := rowTpl{styles: make(map[int]int), rawVals: make(map[int]string)}
	if tplRow-1 < len(rows) {
		for c, v := range rows[tplRow-1] {
			if v != "" {
				rt.rawVals[c+1] = v
			}
		}
	}
	for col := 1; col <= maxTemplateCols; col++ {
		addr, _ := excelize.CoordinatesToCellName(col, tplRow)
		if sid, err := f.GetCellStyle(sheet, addr); err == nil && sid != 0 {
			rt.styles[col] = sid
		}
	}
	merges, _ := f.GetMergeCells(sheet)
	for _, m := range merges {
		sc, sr, _ := excelize.SplitCellName(m.GetStartAxis())
		ec, er, _ := excelize.SplitCellName(m.GetEndAxis())
		if sr == tplRow && er == tplRow {
			scn, _ := excelize.ColumnNameToNumber(sc)
			ecn, _ := excelize.ColumnNameToNumber(ec)
			rt.merges = append(rt.merges, struct{ startCol, endCol int }{startCol: scn, endCol: ecn})
		}
	}
	return rt
}
