package doctemplar

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// sanitizeJSONBlock извлекает JSON, обёрнутый в тройные кавычки ``` ... ```.
// Если таких кавычек нет, либо структура неверная, возвращает исходную строку.
var fenceRx = regexp.MustCompile("(?s)```[a-zA-Z]*\\n(.*?)```")

func sanitizeJSONBlock(s string) string {
	if !strings.Contains(s, "```") {
		return s
	}
	m := fenceRx.FindStringSubmatch(s)
	if len(m) >= 2 {
		return strings.TrimSpace(m[1])
	}
	return s
}

// RootFromJSON собирает корневой объект из одного или нескольких JSON-документов.
// Ключи верхнего уровня объединяются, при совпадении побеждает более поздний документ.
// Строки с датой (2006-01-02 или RFC 3339) становятся time.Time и выводятся как дд.мм.гггг.
func RootFromJSON(docs ...string) (map[string]any, error) {
	root := map[string]any{}
	for i, s := range docs {
		s = sanitizeJSONBlock(s)
		if strings.TrimSpace(s) == "" {
			continue
		}
		var v map[string]any
		if err := json.Unmarshal([]byte(s), &v); err != nil {
			return nil, fmt.Errorf("документ %d: %w", i+1, err)
		}
		for k, val := range v {
			root[k] = deepNormalize(val)
		}
	}
	return root, nil
}

var dateLayouts = []string{time.RFC3339, "2006-01-02"}

func deepNormalize(v any) any {
	switch vv := v.(type) {
	case []any:
		// сохраняем исходный порядок, просто рекурсивно нормализуем элементы
		for i := range vv {
			vv[i] = deepNormalize(vv[i])
		}
		return vv
	case map[string]any:
		for k, val := range vv {
			vv[k] = deepNormalize(val)
		}
		return vv
	case string:
		for _, layout := range dateLayouts {
			if len(vv) < len("2006-01-02") {
				break
			}
			if t, err := time.Parse(layout, vv); err == nil {
				return t
			}
		}
		return vv
	default:
		return vv
	}
}
