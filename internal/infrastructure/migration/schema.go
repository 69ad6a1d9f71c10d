package migration

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"gorm.io/gorm"
)

// versionTable is where golang-migrate records the applied version
const versionTable = "schema_migrations"

var (
	// ErrSchemaBehind means migrations shipped with the binary are not applied
	ErrSchemaBehind = errors.New("migration: database schema is behind")
	// ErrSchemaDirty means a migration failed halfway and needs a forced version
	ErrSchemaDirty = errors.New("migration: database schema is dirty")
)

// Status compares the applied schema version with the shipped migrations
type Status struct {
	Current uint
	Latest  uint
	Dirty   bool
	// Pending counts shipped migrations newer than Current
	Pending int
}

// AtHead reports whether every shipped migration is applied cleanly.
// A database ahead of the binary counts as at head.
func (s Status) AtHead() bool {
	return !s.Dirty && s.Current >= s.Latest
}

// CheckSchema reads the applied version from db and compares it with the
// migrations in fsys. It returns ErrSchemaDirty or ErrSchemaBehind alongside
// the status when the schema is not usable as is.
func CheckSchema(ctx context.Context, db *gorm.DB, fsys fs.FS) (Status, error) {
	shipped, err := Scan(fsys)
	if err != nil {
		return Status{}, err
	}

	var st Status
	if len(shipped) > 0 {
		st.Latest = shipped[len(shipped)-1].Version
	}

	db = db.WithContext(ctx)
	if db.Migrator().HasTable(versionTable) {
		var row struct {
			Version int64
			Dirty   bool
		}
		res := db.Table(versionTable).Select("version", "dirty").Limit(1).Find(&row)
		if res.Error != nil {
			return st, fmt.Errorf("failed to read schema version: %w", res.Error)
		}
		if res.RowsAffected > 0 && row.Version > 0 {
			st.Current = uint(row.Version)
		}
		st.Dirty = row.Dirty
	}

	for _, m := range shipped {
		if m.Version > st.Current {
			st.Pending++
		}
	}

	switch {
	case st.Dirty:
		return st, fmt.Errorf("%w at version %d", ErrSchemaDirty, st.Current)
	case !st.AtHead():
		return st, fmt.Errorf("%w: at %d, latest is %d with %d pending", ErrSchemaBehind, st.Current, st.Latest, st.Pending)
	}
	return st, nil
}
