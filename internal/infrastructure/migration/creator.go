package migration

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"
	"unicode"
)

// versionLayout sorts lexically in creation order
const versionLayout = "20060102150405"

var (
	upTemplate = template.Must(template.New("up").Parse(`-- Migration: {{.Name}}
-- Description: {{.Description}}

`))
	downTemplate = template.Must(template.New("down").Parse(`-- Migration: {{.Name}} (Rollback)

`))
)

// ErrEmptyName is returned when a migration name has no usable characters
var ErrEmptyName = errors.New("migration: name is empty")

// clock is replaced in tests
var clock = time.Now

// CreateMigration writes an empty up/down pair named after name. The files
// carry the headers Scan reads back. Existing files are never overwritten.
func CreateMigration(migrationsDir, name, description string) (*Migration, error) {
	safe := sanitizeName(name)
	if safe == "" {
		return nil, ErrEmptyName
	}
	if description == "" {
		description = strings.ReplaceAll(safe, "_", " ")
	}

	if err := os.MkdirAll(migrationsDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create migrations directory: %w", err)
	}

	version := clock().UTC().Format(versionLayout)
	base := version + "_" + safe
	m := &Migration{
		Name:        safe,
		Description: description,
		UpFile:      base + ".up.sql",
		DownFile:    base + ".down.sql",
	}
	if _, err := fmt.Sscan(version, &m.Version); err != nil {
		return nil, fmt.Errorf("failed to parse version %s: %w", version, err)
	}

	upPath := filepath.Join(migrationsDir, m.UpFile)
	if err := writeNew(upPath, upTemplate, m); err != nil {
		return nil, fmt.Errorf("failed to create up migration: %w", err)
	}
	if err := writeNew(filepath.Join(migrationsDir, m.DownFile), downTemplate, m); err != nil {
		_ = os.Remove(upPath)
		return nil, fmt.Errorf("failed to create down migration: %w", err)
	}
	return m, nil
}

func writeNew(path string, tmpl *template.Template, m *Migration) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if err := tmpl.Execute(f, m); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return err
	}
	return f.Close()
}

// sanitizeName lowercases name and joins its words with single underscores.
// Anything other than ASCII letters and digits separates words.
func sanitizeName(name string) string {
	words := strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r))
	})
	return strings.Join(words, "_")
}
