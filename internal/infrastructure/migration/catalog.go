package migration

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// fileNamePattern matches the golang-migrate file source naming
var fileNamePattern = regexp.MustCompile(`^([0-9]+)_(.+)\.(up|down)\.sql$`)

const (
	nameHeader        = "-- Migration:"
	descriptionHeader = "-- Description:"
	rollbackSuffix    = " (Rollback)"
)

// ErrInvalidCatalog is wrapped by every Scan failure
var ErrInvalidCatalog = errors.New("migration: invalid migration set")

// Migration is one up/down pair of the catalog
type Migration struct {
	Version     uint
	Name        string
	Description string
	UpFile      string
	DownFile    string
}

// BaseName is the file name without the direction suffix
func (m Migration) BaseName() string {
	return fmt.Sprintf("%d_%s", m.Version, m.Name)
}

// Scan reads the migration pairs of fsys, ordered by version. Every up file
// needs a down file and a "-- Migration:" header naming the same migration.
func Scan(fsys fs.FS) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	byVersion := make(map[uint]*Migration)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		parts := fileNamePattern.FindStringSubmatch(entry.Name())
		if parts == nil {
			continue
		}
		v, err := strconv.ParseUint(parts[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: bad version: %v", ErrInvalidCatalog, entry.Name(), err)
		}
		version := uint(v)

		m, ok := byVersion[version]
		if !ok {
			m = &Migration{Version: version, Name: parts[2]}
			byVersion[version] = m
		} else if m.Name != parts[2] {
			return nil, fmt.Errorf("%w: version %d is used by %s and %s", ErrInvalidCatalog, version, m.Name, parts[2])
		}

		if parts[3] == "up" {
			m.UpFile = entry.Name()
		} else {
			m.DownFile = entry.Name()
		}
	}

	out := make([]Migration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.UpFile == "" || m.DownFile == "" {
			return nil, fmt.Errorf("%w: %s has no %s file", ErrInvalidCatalog, m.BaseName(), missingDirection(m))
		}
		name, description, err := readHeader(fsys, m.UpFile)
		if err != nil {
			return nil, err
		}
		if name != m.Name {
			return nil, fmt.Errorf("%w: %s declares migration %q", ErrInvalidCatalog, m.UpFile, name)
		}
		m.Description = description
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func missingDirection(m *Migration) string {
	if m.UpFile == "" {
		return "up"
	}
	return "down"
}

// readHeader returns the migration name and description of the leading
// comment block
func readHeader(fsys fs.FS, file string) (name, description string, err error) {
	f, err := fsys.Open(file)
	if err != nil {
		return "", "", fmt.Errorf("failed to open %s: %w", file, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(line, "--") {
			break
		}
		switch {
		case strings.HasPrefix(line, nameHeader):
			name = strings.TrimSuffix(strings.TrimSpace(strings.TrimPrefix(line, nameHeader)), rollbackSuffix)
		case strings.HasPrefix(line, descriptionHeader):
			description = strings.TrimSpace(strings.TrimPrefix(line, descriptionHeader))
		}
	}
	if err := sc.Err(); err != nil {
		return "", "", fmt.Errorf("failed to read %s: %w", file, err)
	}
	if name == "" {
		return "", "", fmt.Errorf("%w: %s has no %q header", ErrInvalidCatalog, file, nameHeader)
	}
	return name, description, nil
}

// Latest is the highest version of fsys, 0 when it holds no migrations
func Latest(fsys fs.FS) (uint, error) {
	all, err := Scan(fsys)
	if err != nil {
		return 0, err
	}
	if len(all) == 0 {
		return 0, nil
	}
	return all[len(all)-1].Version, nil
}

// ListMigrations scans a migrations directory. A missing directory holds
// no migrations.
func ListMigrations(migrationsDir string) ([]Migration, error) {
	if _, err := os.Stat(migrationsDir); errors.Is(err, fs.ErrNotExist) {
		return []Migration{}, nil
	}
	return Scan(os.DirFS(migrationsDir))
}
