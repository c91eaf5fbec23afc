package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"tessera.id/internal/ids"
)

// Clock reports the current time. A failing clock is surfaced as ErrClock and
// never replaced with a default.
type Clock func() (time.Time, error)

// SystemClock reads the wall clock. Times before the Unix epoch are treated
// as a broken clock.
func SystemClock() (time.Time, error) {
	now := time.Now()
	if now.Unix() <= 0 {
		return time.Time{}, fmt.Errorf("%w: system time %s precedes epoch", ErrClock, now)
	}
	return now, nil
}

// KindConfig holds the signing secret and lifetime for one principal kind.
type KindConfig struct {
	Secret []byte
	TTL    time.Duration
}

// TokenConfig maps every principal kind to its secret and lifetime.
type TokenConfig struct {
	Admin KindConfig
	User  KindConfig
}

// For returns the configuration for kind.
func (c TokenConfig) For(kind Kind) (KindConfig, error) {
	switch kind {
	case KindAdmin:
		return c.Admin, nil
	case KindUser:
		return c.User, nil
	default:
		return KindConfig{}, fmt.Errorf("auth: no token configuration for %s", kind)
	}
}

func (c TokenConfig) validate() error {
	for _, kind := range []Kind{KindAdmin, KindUser} {
		kc, _ := c.For(kind)
		if len(kc.Secret) == 0 {
			return fmt.Errorf("auth: %s secret is empty", kind)
		}
		if kc.TTL <= 0 {
			return fmt.Errorf("auth: %s ttl must be greater than zero", kind)
		}
	}
	if string(c.Admin.Secret) == string(c.User.Secret) {
		return errors.New("auth: admin and user secrets must differ")
	}
	return nil
}

// TokenObserver receives issuance and verification outcomes, typically to
// feed metrics.
type TokenObserver interface {
	TokenIssued(kind Kind)
	TokenVerified(kind Kind, ok bool)
}

type nopObserver struct{}

func (nopObserver) TokenIssued(Kind)         {}
func (nopObserver) TokenVerified(Kind, bool) {}

// Option configures a TokenService.
type Option func(*TokenService)

// WithClock overrides the time source.
func WithClock(clock Clock) Option {
	return func(s *TokenService) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLeeway accepts tokens up to d past their expiry.
func WithLeeway(d time.Duration) Option {
	return func(s *TokenService) {
		if d > 0 {
			s.leeway = d
		}
	}
}

// WithObserver attaches an observer for issuance and verification outcomes.
func WithObserver(o TokenObserver) Option {
	return func(s *TokenService) {
		if o != nil {
			s.observer = o
		}
	}
}

// Claims is the verified content of a token.
type Claims struct {
	Subject   string
	Kind      Kind
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// IssuedToken is a signed token and the instant it stops being accepted.
type IssuedToken struct {
	Value     string
	ExpiresAt time.Time
}

type tokenClaims struct {
	Kind Kind `json:"kind"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies HS256 access tokens. Each principal kind
// signs with its own secret, so a token minted for one kind never verifies as
// another. Safe for concurrent use.
type TokenService struct {
	cfg      TokenConfig
	clock    Clock
	leeway   time.Duration
	observer TokenObserver
}

// NewTokenService validates cfg and returns a ready service.
func NewTokenService(cfg TokenConfig, opts ...Option) (*TokenService, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	s := &TokenService{
		cfg:      cfg,
		clock:    SystemClock,
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Leeway reports the clock skew tolerated past expiry.
func (s *TokenService) Leeway() time.Duration { return s.leeway }

// Issue signs a token for subject as kind.
func (s *TokenService) Issue(subject string, kind Kind) (IssuedToken, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return IssuedToken{}, errors.New("auth: subject is required")
	}
	kc, err := s.cfg.For(kind)
	if err != nil {
		return IssuedToken{}, err
	}
	now, err := s.now()
	if err != nil {
		return IssuedToken{}, err
	}

	exp := jwt.NewNumericDate(now.Add(kc.TTL))
	claims := tokenClaims{
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: exp,
			ID:        ids.New().String(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(kc.Secret)
	if err != nil {
		return IssuedToken{}, fmt.Errorf("sign token: %w", err)
	}
	s.observer.TokenIssued(kind)
	return IssuedToken{Value: signed, ExpiresAt: exp.Time.UTC()}, nil
}

// Verify checks token against the secret of kind. Any signature, format,
// expiry or kind mismatch yields ErrInvalidToken; an unreadable clock yields
// ErrClock.
func (s *TokenService) Verify(token string, kind Kind) (Claims, error) {
	claims, err := s.verify(token, kind)
	if errors.Is(err, ErrClock) {
		return Claims{}, err
	}
	s.observer.TokenVerified(kind, err == nil)
	return claims, err
}

// Recognize reports whether token verifies as kind without notifying the
// observer. Guards use it to tell a wrong-kind token from an invalid one.
func (s *TokenService) Recognize(token string, kind Kind) error {
	_, err := s.verify(token, kind)
	return err
}

func (s *TokenService) verify(token string, kind Kind) (Claims, error) {
	kc, err := s.cfg.For(kind)
	if err != nil {
		return Claims{}, ErrInvalidToken
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return Claims{}, ErrInvalidToken
	}
	now, err := s.now()
	if err != nil {
		return Claims{}, err
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(s.leeway),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	var tc tokenClaims
	parsed, err := parser.ParseWithClaims(token, &tc, func(*jwt.Token) (any, error) {
		return kc.Secret, nil
	})
	if err != nil || !parsed.Valid {
		return Claims{}, ErrInvalidToken
	}
	if tc.Kind != kind || strings.TrimSpace(tc.Subject) == "" || tc.IssuedAt == nil {
		return Claims{}, ErrInvalidToken
	}
	return Claims{
		Subject:   tc.Subject,
		Kind:      tc.Kind,
		IssuedAt:  tc.IssuedAt.Time.UTC(),
		ExpiresAt: tc.ExpiresAt.Time.UTC(),
	}, nil
}

func (s *TokenService) now() (time.Time, error) {
	now, err := s.clock()
	if err != nil {
		if errors.Is(err, ErrClock) {
			return time.Time{}, err
		}
		return time.Time{}, fmt.Errorf("%w: %v", ErrClock, err)
	}
	return now.UTC(), nil
}
