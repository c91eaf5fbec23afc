package directory

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"tessera.id/internal/ids"
)

// checkRef re-validates an identifier received from a caller. Missing ids are
// field errors; ids with a foreign version are returned as such.
func checkRef(v *ValidationError, field string, id ids.ID) error {
	if id.IsZero() {
		v.Add(field, "is required")
		return nil
	}
	if err := id.Validate(); err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	return nil
}

func checkLength(v *ValidationError, field, value string, min, max int) {
	n := utf8.RuneCountInString(value)
	switch {
	case n == 0:
		v.Add(field, "is required")
	case n < min || n > max:
		v.Add(field, fmt.Sprintf("must be between %d and %d characters", min, max))
	}
}

func checkRedirectURI(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if !u.IsAbs() {
		return errors.New("must be an absolute URI")
	}
	if u.Fragment != "" {
		return errors.New("must not contain a fragment")
	}
	return nil
}

func trimAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.TrimSpace(s)
	}
	return out
}
