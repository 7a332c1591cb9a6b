package doctemplar

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"
)

const docxMainPart = "word/document.xml"

var rxDocxTextPart = regexp.MustCompile(`^word/(document|header\d+|footer\d+)\.xml$`)

// wordML — диалект WordprocessingML: текст экранируется для XML, переводы строк
// становятся <w:br/>, маркеры блоков снимаются вместе со строкой таблицы или абзацем.
var wordML = markup{name: "docx", escape: escapeWordText, containers: []string{"w:tr", "w:p"}}

var wordTextEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
	"\r\n", "</w:t><w:br/><w:t xml:space=\"preserve\">",
	"\n", "</w:t><w:br/><w:t xml:space=\"preserve\">",
	"\t", "</w:t><w:tab/><w:t xml:space=\"preserve\">",
)

func escapeWordText(s string) string { return wordTextEscaper.Replace(s) }

func isZip(b []byte) bool { return bytes.HasPrefix(b, []byte("PK\x03\x04")) }

// renderDocx переписывает пакет DOCX: текстовые части (тело, колонтитулы) проходят через
// движок, остальные копируются без перепаковки.
func (e *Engine) renderDocx(src []byte, root any) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(src), int64(len(src)))
	if err != nil {
		return nil, &DocumentError{Op: "чтение архива", Err: err}
	}
	hasMain := false
	for _, f := range zr.File {
		if f.Name == docxMainPart {
			hasMain = true
			break
		}
	}
	if !hasMain {
		return nil, &DocumentError{Op: "чтение архива", Err: fmt.Errorf("нет части %s", docxMainPart)}
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range zr.File {
		if !rxDocxTextPart.MatchString(f.Name) {
			if err := zw.Copy(f); err != nil {
				return nil, &DocumentError{Op: "копирование части", Path: f.Name, Err: err}
			}
			continue
		}
		content, err := readZipFile(f)
		if err != nil {
			return nil, err
		}
		e.log.Printf("🔄 Обработка части %s (%s)", f.Name, wordML.name)
		rendered, err := e.renderStream(string(content), root, wordML)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Name, err)
		}
		w, err := zw.CreateHeader(&zip.FileHeader{Name: f.Name, Method: zip.Deflate, Modified: f.Modified})
		if err != nil {
			return nil, &DocumentError{Op: "запись части", Path: f.Name, Err: err}
		}
		if _, err := io.WriteString(w, rendered); err != nil {
			return nil, &DocumentError{Op: "запись части", Path: f.Name, Err: err}
		}
	}
	if err := zw.Close(); err != nil {
		return nil, &DocumentError{Op: "запись архива", Err: err}
	}
	return buf.Bytes(), nil
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, &DocumentError{Op: "открытие части", Path: f.Name, Err: err}
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		return nil, &DocumentError{Op: "чтение части", Path: f.Name, Err: err}
	}
	return b, nil
}
