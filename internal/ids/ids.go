// Package ids issues and validates the identifiers used as keys for every
// tenant-scoped record.
//
// Resource identifiers are version 7 UUIDs: the leading 48 bits hold the Unix
// millisecond timestamp and the following 12 bits a sub-millisecond sequence,
// so values sort by creation time. Identifiers carrying any other version are
// rejected wherever they enter the process.
package ids

import (
	"database/sql/driver"
	"errors"
	"fmt"
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// Version is the only UUID version this system issues or accepts.
const Version = uuid.Version(7)

const canonicalLen = 36

var (
	// ErrInvalidFormat reports text that is not a canonical UUID.
	ErrInvalidFormat = errors.New("ids: invalid identifier format")
	// ErrInvalidVersion reports a well-formed UUID with a foreign version tag.
	ErrInvalidVersion = errors.New("ids: invalid identifier version")
)

// ID is a version 7 UUID. The zero value is not a valid identifier.
type ID uuid.UUID

// Nil is the zero identifier.
var Nil ID

// New returns a fresh identifier. Successive calls within the process return
// strictly increasing values, including under concurrent use.
func New() ID {
	return ID(uuid.Must(uuid.NewV7()))
}

// Parse decodes the canonical hyphenated form and enforces the version tag.
func Parse(s string) (ID, error) {
	if len(s) != canonicalLen {
		return Nil, fmt.Errorf("%w: %q", ErrInvalidFormat, s)
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("%w: %q", ErrInvalidFormat, s)
	}
	id := ID(u)
	if err := id.Validate(); err != nil {
		return Nil, err
	}
	return id, nil
}

// MustParse is like Parse but panics on error. Intended for tests and constants.
func MustParse(s string) ID {
	id, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return id
}

// Validate reports whether id carries the expected version and variant.
func (id ID) Validate() error {
	u := uuid.UUID(id)
	if u.Version() != Version || u.Variant() != uuid.RFC4122 {
		return fmt.Errorf("%w: got version %d", ErrInvalidVersion, u.Version())
	}
	return nil
}

// IsZero reports whether id is the zero value.
func (id ID) IsZero() bool { return id == Nil }

// String returns the canonical lower-case hyphenated form.
func (id ID) String() string { return uuid.UUID(id).String() }

// Time returns the creation timestamp embedded in the identifier.
func (id ID) Time() time.Time {
	sec, nsec := uuid.UUID(id).Time().UnixTime()
	return time.Unix(sec, nsec).UTC()
}

// MarshalText implements encoding.TextMarshaler.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Foreign versions are rejected.
func (id *ID) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Value implements driver.Valuer.
func (id ID) Value() (driver.Value, error) {
	return id.String(), nil
}

// Scan implements sql.Scanner. Values read back from storage are validated as
// strictly as values arriving over the wire.
func (id *ID) Scan(src any) error {
	var u uuid.UUID
	if err := u.Scan(src); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	parsed := ID(u)
	if err := parsed.Validate(); err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Strings renders a slice of identifiers, typically for array parameters.
func Strings(list []ID) []string {
	out := make([]string, len(list))
	for i, id := range list {
		out[i] = id.String()
	}
	return out
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// NewRequestID returns a lexicographically sortable correlation id for
// requests and log lines. It is never used as a resource key.
func NewRequestID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}
