package migration

import (
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2b"
)

// Scope is the class of database a migration targets.
type Scope string

// Migration scopes. Each scope corresponds to a directory of the same name.
const (
	ScopeHost   Scope = "host"
	ScopeTenant Scope = "tenant"
	ScopeBoth   Scope = "both"
)

// Scopes lists all scopes in the order their directories are loaded.
var Scopes = []Scope{ScopeHost, ScopeTenant, ScopeBoth}

// ScopeFromString parses a scope name.
func ScopeFromString(s string) (Scope, error) {
	sc := Scope(strings.ToLower(strings.TrimSpace(s)))
	switch sc {
	case ScopeHost, ScopeTenant, ScopeBoth:
		return sc, nil
	}
	return "", fmt.Errorf("invalid scope '%s'", s)
}

// Kind is the class of a concrete database: the host, or one tenant.
type Kind string

// Target kinds.
const (
	KindHost   Kind = "host"
	KindTenant Kind = "tenant"
)

// Scopes returns the migration scopes that apply to databases of this kind.
func (k Kind) Scopes() []Scope {
	switch k {
	case KindHost:
		return []Scope{ScopeHost, ScopeBoth}
	case KindTenant:
		return []Scope{ScopeTenant, ScopeBoth}
	}
	return nil
}

// Direction is the direction in which a migration is executed.
type Direction string

// Migration directions.
const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// Migration is an immutable description of one schema change.
type Migration struct {
	Version     int
	Name        string
	Description string
	Scope       Scope
	Up          []string
	Down        []string
	Path        string
}

// String returns the canonical label of the migration, e.g. 003_add_profile.
func (m *Migration) String() string {
	return fmt.Sprintf("%03d_%s", m.Version, m.Name)
}

// Statements returns the statements of the section for direction d.
func (m *Migration) Statements(d Direction) []string {
	if d == DirectionDown {
		return m.Down
	}
	return m.Up
}

// HasDown returns true if the migration can be rolled back.
func (m *Migration) HasDown() bool {
	return len(m.Down) > 0
}

// Checksum returns a short, stable digest of the section for direction d.
// Whitespace around statements doesn't affect the result.
func (m *Migration) Checksum(d Direction) string {
	sum := blake2b.Sum256([]byte(strings.Join(m.Statements(d), ";\n")))
	return base58.Encode(sum[:12])
}
