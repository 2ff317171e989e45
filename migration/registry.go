package migration

import (
	"cmp"
	"fmt"
	"iter"
	"path/filepath"
	"slices"
	"strings"

	"github.com/mandelsoft/vfs/pkg/vfs"
)

// Registry is the in-memory, version-ordered set of all known migrations.
// It's immutable and safe for concurrent use once created.
type Registry struct {
	byScope map[Scope][]*Migration
	byKind  map[Kind][]*Migration
}

// Load parses all migration files found in the scope directories of dir.
// Missing scope directories are treated as empty. Any malformed file or
// duplicate version aborts loading.
func Load(fs vfs.FileSystem, dir string) (*Registry, error) {
	var migrations []*Migration
	for _, scope := range Scopes {
		scopeDir := filepath.Join(dir, string(scope))
		entries, err := vfs.ReadDir(fs, scopeDir)
		if err != nil {
			if vfs.IsErrNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("failed reading migrations directory '%s': %w", scopeDir, err)
		}

		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
				continue
			}
			path := filepath.Join(scopeDir, entry.Name())
			content, err := vfs.ReadFile(fs, path)
			if err != nil {
				return nil, fmt.Errorf("failed reading migration file '%s': %w", path, err)
			}
			m, err := Parse(path, content)
			if err != nil {
				return nil, err
			}
			migrations = append(migrations, m)
		}
	}

	return New(migrations...)
}

// New creates a registry from already parsed migrations. It returns a
// ConflictError if two migrations that would run against the same database
// share a version.
func New(migrations ...*Migration) (*Registry, error) {
	r := &Registry{
		byScope: make(map[Scope][]*Migration, len(Scopes)),
		byKind:  make(map[Kind][]*Migration, 2),
	}

	for _, m := range migrations {
		r.byScope[m.Scope] = append(r.byScope[m.Scope], m)
	}
	for _, scope := range Scopes {
		ms := r.byScope[scope]
		sortAsc(ms)
		if err := checkUnique(scope, ms); err != nil {
			return nil, err
		}
	}

	for _, kind := range []Kind{KindHost, KindTenant} {
		var ms []*Migration
		for _, scope := range kind.Scopes() {
			ms = append(ms, r.byScope[scope]...)
		}
		sortAsc(ms)
		if err := checkUnique(ScopeBoth, ms); err != nil {
			return nil, err
		}
		r.byKind[kind] = ms
	}

	return r, nil
}

// Pending returns the migrations that apply to databases of kind with a
// version greater than current, in ascending version order.
func (r *Registry) Pending(kind Kind, current int) iter.Seq[*Migration] {
	return func(yield func(*Migration) bool) {
		for _, m := range r.byKind[kind] {
			if m.Version <= current {
				continue
			}
			if !yield(m) {
				return
			}
		}
	}
}

// AppliedAbove returns the migrations that apply to databases of kind with a
// version greater than target, in descending version order. This is the
// order in which they're rolled back.
func (r *Registry) AppliedAbove(kind Kind, target int) iter.Seq[*Migration] {
	return func(yield func(*Migration) bool) {
		ms := r.byKind[kind]
		for i := len(ms) - 1; i >= 0; i-- {
			if ms[i].Version <= target {
				return
			}
			if !yield(ms[i]) {
				return
			}
		}
	}
}

// Get returns the migration with version that applies to databases of kind.
func (r *Registry) Get(kind Kind, version int) (*Migration, bool) {
	ms := r.byKind[kind]
	i, found := slices.BinarySearchFunc(ms, version, func(m *Migration, v int) int {
		return cmp.Compare(m.Version, v)
	})
	if !found {
		return nil, false
	}
	return ms[i], true
}

// Latest returns the highest version that applies to databases of kind, or 0
// if there are no migrations for it.
func (r *Registry) Latest(kind Kind) int {
	ms := r.byKind[kind]
	if len(ms) == 0 {
		return 0
	}
	return ms[len(ms)-1].Version
}

// Len returns the number of migrations that apply to databases of kind.
func (r *Registry) Len(kind Kind) int {
	return len(r.byKind[kind])
}

func sortAsc(ms []*Migration) {
	slices.SortStableFunc(ms, func(a, b *Migration) int {
		return cmp.Or(cmp.Compare(a.Version, b.Version), strings.Compare(a.Path, b.Path))
	})
}

func checkUnique(scope Scope, ms []*Migration) error {
	for i := 1; i < len(ms); i++ {
		if ms[i].Version == ms[i-1].Version {
			return ConflictError{
				Scope:   scope,
				Version: ms[i].Version,
				Paths:   []string{ms[i-1].Path, ms[i].Path},
			}
		}
	}
	return nil
}
