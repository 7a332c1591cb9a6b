package doctemplar

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Generate заполняет шаблон: DOCX-пакет (по сигнатуре zip) или обычный текст/разметку.
func (e *Engine) Generate(template []byte, root any) ([]byte, error) {
	if isZip(template) {
		return e.renderDocx(template, root)
	}
	out, err := e.Render(string(template), root)
	if err != nil {
		return nil, err
	}
	return []byte(out), nil
}

// GenerateFromFile снимает рабочую копию шаблона и возвращает готовый документ.
// Рабочая копия удаляется в любом случае.
func (e *Engine) GenerateFromFile(templatePath string, root any) ([]byte, error) {
	work, err := e.workCopy(templatePath)
	if err != nil {
		return nil, err
	}
	defer os.Remove(work)

	src, err := os.ReadFile(work)
	if err != nil {
		return nil, &DocumentError{Op: "чтение рабочей копии", Path: work, Err: err}
	}
	return e.Generate(src, root)
}

// GenerateToFile записывает документ в destPath атомарно: во временный файл рядом
// с назначением, затем переименование. При ошибке destPath не меняется.
func (e *Engine) GenerateToFile(templatePath, destPath string, root any) error {
	out, err := e.GenerateFromFile(templatePath, root)
	if err != nil {
		return err
	}
	return writeFileAtomic(destPath, out)
}

// GenerateToTemp сохраняет документ во временный файл и возвращает путь к нему
// для потоковой отдачи. Удаление файла — забота вызывающего.
func (e *Engine) GenerateToTemp(templatePath string, root any) (string, error) {
	out, err := e.GenerateFromFile(templatePath, root)
	if err != nil {
		return "", err
	}
	f, err := os.CreateTemp(e.cfg.WorkDir, "doctemplar-out-*"+filepath.Ext(templatePath))
	if err != nil {
		return "", &DocumentError{Op: "создание файла результата", Err: err}
	}
	name := f.Name()
	if _, err := f.Write(out); err != nil {
		f.Close()
		os.Remove(name)
		return "", &DocumentError{Op: "запись результата", Path: name, Err: err}
	}
	if err := f.Close(); err != nil {
		os.Remove(name)
		return "", &DocumentError{Op: "запись результата", Path: name, Err: err}
	}
	return name, nil
}

// workCopy копирует шаблон в файл с уникальным именем, общий шаблон не изменяется.
func (e *Engine) workCopy(templatePath string) (path string, err error) {
	src, err := os.Open(templatePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", &DocumentError{Op: "открытие шаблона", Path: templatePath, Err: ErrTemplateNotFound}
		}
		return "", &DocumentError{Op: "открытие шаблона", Path: templatePath, Err: err}
	}
	defer src.Close()

	dst, err := os.CreateTemp(e.cfg.WorkDir, "doctemplar-*"+filepath.Ext(templatePath))
	if err != nil {
		return "", &DocumentError{Op: "создание рабочей копии", Err: err}
	}
	defer func() {
		if cerr := dst.Close(); cerr != nil && err == nil {
			err = &DocumentError{Op: "создание рабочей копии", Path: dst.Name(), Err: cerr}
		}
		if err != nil {
			os.Remove(dst.Name())
		}
	}()
	if _, err = io.Copy(dst, src); err != nil {
		return "", &DocumentError{Op: "копирование шаблона", Path: templatePath, Err: err}
	}
	return dst.Name(), nil
}

func writeFileAtomic(destPath string, data []byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(destPath), ".doctemplar-*.tmp")
	if err != nil {
		return &DocumentError{Op: "сохранение", Path: destPath, Err: err}
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()
	if _, err = tmp.Write(data); err != nil {
		return &DocumentError{Op: "сохранение", Path: destPath, Err: err}
	}
	if err = tmp.Close(); err != nil {
		return &DocumentError{Op: "сохранение", Path: destPath, Err: err}
	}
	if err = os.Rename(tmp.Name(), destPath); err != nil {
		return &DocumentError{Op: "сохранение", Path: destPath, Err: err}
	}
	return nil
}

// WriteDocumentWithTemplate — точка входа для вызывающего кода: формат выбирается по
// расширению шаблона (.xlsx — книга Excel, остальное — DOCX или текст).
func (e *Engine) WriteDocumentWithTemplate(templatePath, destPath string, root any) error {
	e.log.Printf("📄 Шаблон: %s", templatePath)
	e.log.Printf("📄 Выходной файл: %s", destPath)
	startTime := time.Now()

	var err error
	if strings.EqualFold(filepath.Ext(templatePath), ".xlsx") {
		err = e.GenerateWorkbook(templatePath, destPath, root)
	} else {
		e.log.Printf("🔄 Заполнение документа...")
		err = e.GenerateToFile(templatePath, destPath, root)
	}
	if err != nil {
		e.log.Printf("❌ Ошибка формирования документа: %v", err)
		return fmt.Errorf("формирование %s: %w", filepath.Base(destPath), err)
	}
	e.log.Printf("✅ Документ создан за %v", time.Since(startTime))
	return nil
}
