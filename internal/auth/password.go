package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Supported password hashing algorithms.
const (
	AlgorithmArgon2id = "argon2id"
	AlgorithmBcrypt   = "bcrypt"
)

// ErrPasswordMismatch is returned when a password does not match its hash.
var ErrPasswordMismatch = errors.New("auth: password mismatch")

type argonParams struct {
	memory  uint32
	time    uint32
	threads uint8
	saltLen uint32
	keyLen  uint32
}

var defaultArgon = argonParams{memory: 64 * 1024, time: 1, threads: 4, saltLen: 16, keyLen: 32}

// Limits on parameters read back from stored argon2id hashes. Memory is in KiB.
const (
	maxArgonMemory  = 1024 * 1024
	maxArgonTime    = 16
	minArgonKeyLen  = 16
	maxArgonKeyLen  = 64
	minArgonSaltLen = 8
)

// PasswordHasher produces new hashes with the configured algorithm and
// verifies hashes produced by either supported algorithm.
type PasswordHasher struct {
	algorithm  string
	argon      argonParams
	bcryptCost int
}

// NewPasswordHasher returns a hasher for algorithm ("" selects argon2id).
func NewPasswordHasher(algorithm string) (*PasswordHasher, error) {
	switch strings.ToLower(strings.TrimSpace(algorithm)) {
	case "", AlgorithmArgon2id:
		algorithm = AlgorithmArgon2id
	case AlgorithmBcrypt:
		algorithm = AlgorithmBcrypt
	default:
		return nil, fmt.Errorf("auth: unsupported password algorithm %q", algorithm)
	}
	return &PasswordHasher{algorithm: algorithm, argon: defaultArgon, bcryptCost: bcrypt.DefaultCost}, nil
}

// Algorithm reports the algorithm used for new hashes.
func (h *PasswordHasher) Algorithm() string { return h.algorithm }

// Hash hashes a plaintext password.
func (h *PasswordHasher) Hash(password string) (string, error) {
	if len(password) == 0 {
		return "", errors.New("password is empty")
	}
	if h.algorithm == AlgorithmBcrypt {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), h.bcryptCost)
		if err != nil {
			return "", err
		}
		return string(hash), nil
	}
	salt := make([]byte, h.argon.saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	p := h.argon
	key := argon2.IDKey([]byte(password), salt, p.time, p.memory, p.threads, p.keyLen)
	enc := base64.RawStdEncoding
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.memory, p.time, p.threads, enc.EncodeToString(salt), enc.EncodeToString(key)), nil
}

// Verify compares a plaintext password with a stored hash.
func (h *PasswordHasher) Verify(hash, password string) error {
	switch {
	case hash == "":
		return errors.New("password hash is empty")
	case strings.HasPrefix(hash, "$2"):
		if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
			if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
				return ErrPasswordMismatch
			}
			return err
		}
		return nil
	case strings.HasPrefix(hash, "$argon2id$"):
		return verifyArgon2id(hash, password)
	default:
		return errors.New("auth: unrecognised password hash format")
	}
}

func verifyArgon2id(encoded, password string) error {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 {
		return errors.New("auth: malformed argon2id hash")
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return errors.New("auth: unsupported argon2id version")
	}
	var p argonParams
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &p.threads); err != nil {
		return fmt.Errorf("auth: malformed argon2id parameters: %w", err)
	}
	if err := p.checkStored(); err != nil {
		return err
	}
	enc := base64.RawStdEncoding
	salt, err := enc.DecodeString(parts[4])
	if err != nil {
		return fmt.Errorf("auth: malformed argon2id salt: %w", err)
	}
	want, err := enc.DecodeString(parts[5])
	if err != nil {
		return fmt.Errorf("auth: malformed argon2id key: %w", err)
	}
	if len(salt) < minArgonSaltLen || len(want) < minArgonKeyLen || len(want) > maxArgonKeyLen {
		return errors.New("auth: argon2id salt or key length out of range")
	}
	got := argon2.IDKey([]byte(password), salt, p.time, p.memory, p.threads, uint32(len(want)))
	if subtle.ConstantTimeCompare(got, want) != 1 {
		return ErrPasswordMismatch
	}
	return nil
}

// checkStored rejects parameters that would panic or exhaust memory in
// argon2.IDKey.
func (p argonParams) checkStored() error {
	switch {
	case p.threads == 0:
		return errors.New("auth: argon2id parallelism must be at least 1")
	case p.time == 0 || p.time > maxArgonTime:
		return fmt.Errorf("auth: argon2id time %d out of range", p.time)
	case p.memory < 8*uint32(p.threads) || p.memory > maxArgonMemory:
		return fmt.Errorf("auth: argon2id memory %d KiB out of range", p.memory)
	}
	return nil
}
