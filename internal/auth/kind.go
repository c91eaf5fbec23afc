package auth

import "fmt"

// Kind is the principal class a token is issued for.
type Kind uint8

const (
	KindAdmin Kind = iota + 1
	KindUser
)

// String returns the wire name of the kind.
func (k Kind) String() string {
	switch k {
	case KindAdmin:
		return "admin"
	case KindUser:
		return "user"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Valid reports whether k is one of the defined kinds.
func (k Kind) Valid() bool {
	return k == KindAdmin || k == KindUser
}

// ParseKind maps a wire name back to a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "admin":
		return KindAdmin, nil
	case "user":
		return KindUser, nil
	default:
		return 0, fmt.Errorf("auth: unknown principal kind %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("auth: cannot marshal %s", k)
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
