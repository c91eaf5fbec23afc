package auth

import (
	"errors"
	"net/http"
	"strings"
)

// ParseBearer extracts the token from an Authorization header value.
func ParseBearer(header string) (string, error) {
	if strings.TrimSpace(header) == "" {
		return "", ErrHeaderMissing
	}
	fields := strings.Fields(header)
	if len(fields) != 2 || !strings.EqualFold(fields[0], "Bearer") {
		return "", ErrInvalidToken
	}
	return fields[1], nil
}

// Verifier is the subset of TokenService the guard depends on.
type Verifier interface {
	Verify(token string, kind Kind) (Claims, error)
}

// recognizer is implemented by verifiers that can check a token against a
// kind without counting it as a verification.
type recognizer interface {
	Recognize(token string, kind Kind) error
}

// Guard admits requests that carry a valid token of a given kind.
type Guard struct {
	tokens Verifier
	kind   Kind
}

// NewAdminGuard returns a guard for administrative routes.
func NewAdminGuard(tokens Verifier) *Guard {
	return &Guard{tokens: tokens, kind: KindAdmin}
}

// NewUserGuard returns a guard for end-user routes.
func NewUserGuard(tokens Verifier) *Guard {
	return &Guard{tokens: tokens, kind: KindUser}
}

// Kind reports the principal kind the guard admits.
func (g *Guard) Kind() Kind { return g.kind }

// Authorize decides on a raw Authorization header. A token that fails as the
// guarded kind but verifies as the other kind is ErrForbidden.
func (g *Guard) Authorize(header string) (Principal, error) {
	token, err := ParseBearer(header)
	if err != nil {
		return Principal{}, err
	}
	claims, err := g.tokens.Verify(token, g.kind)
	if err == nil {
		return Principal{Subject: claims.Subject, Kind: claims.Kind}, nil
	}
	if errors.Is(err, ErrClock) {
		return Principal{}, err
	}
	if otherErr := g.recognize(token, g.other()); otherErr == nil {
		return Principal{}, ErrForbidden
	} else if errors.Is(otherErr, ErrClock) {
		return Principal{}, otherErr
	}
	return Principal{}, ErrInvalidToken
}

// Check is the request hook: on success it returns r with the principal
// attached to its context. On error r must not be forwarded.
func (g *Guard) Check(r *http.Request) (*http.Request, error) {
	principal, err := g.Authorize(r.Header.Get("Authorization"))
	if err != nil {
		return nil, err
	}
	return r.WithContext(ContextWithPrincipal(r.Context(), principal)), nil
}

func (g *Guard) recognize(token string, kind Kind) error {
	if r, ok := g.tokens.(recognizer); ok {
		return r.Recognize(token, kind)
	}
	_, err := g.tokens.Verify(token, kind)
	return err
}

func (g *Guard) other() Kind {
	if g.kind == KindAdmin {
		return KindUser
	}
	return KindAdmin
}
