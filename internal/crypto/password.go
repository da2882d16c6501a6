// Package crypto hashes user passwords before they are stored. Argon2id is the default;
// bcrypt is available for deployments that standardise on it, and unsalted SHA-256 is kept
// only to stay compatible with hashes written by earlier versions of the directory. Verify
// recognises all three encodings so existing rows keep working after the algorithm changes.
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Supported algorithm names, as used in configuration
const (
	AlgorithmArgon2id = "argon2id"
	AlgorithmBcrypt   = "bcrypt"
	AlgorithmSHA256   = "sha256"
)

var (
	// ErrUnknownAlgorithm is returned for an unsupported algorithm name
	ErrUnknownAlgorithm = errors.New("crypto: unknown password hashing algorithm")
	// ErrPasswordTooLong is returned when the algorithm cannot hash the full password (bcrypt caps input at 72 bytes)
	ErrPasswordTooLong = errors.New("crypto: password too long for the configured algorithm")
	// ErrMalformedHash is returned when a stored hash cannot be parsed
	ErrMalformedHash = errors.New("crypto: malformed password hash")
)

// PasswordHasher turns plaintext passwords into storable hashes
type PasswordHasher interface {
	Hash(password string) (string, error)
	Algorithm() string
}

// NewPasswordHasher returns the hasher for a configured algorithm name.
// An empty name selects argon2id.
func NewPasswordHasher(algorithm string) (PasswordHasher, error) {
	switch strings.ToLower(algorithm) {
	case "", AlgorithmArgon2id:
		return NewArgon2idHasher(DefaultArgon2Params), nil
	case AlgorithmBcrypt:
		return &BcryptHasher{Cost: bcrypt.DefaultCost}, nil
	case AlgorithmSHA256:
		return SHA256Hasher{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownAlgorithm, algorithm)
	}
}

// IsLegacy reports whether the algorithm is only kept for compatibility
func IsLegacy(algorithm string) bool {
	return strings.EqualFold(algorithm, AlgorithmSHA256)
}

// ---------------------------------------------------------------------------
// Argon2id
// ---------------------------------------------------------------------------

// Argon2Params tunes the argon2id key derivation
type Argon2Params struct {
	Memory     uint32 // KiB
	Iterations uint32
	Threads    uint8
	SaltLength uint32
	KeyLength  uint32
}

// DefaultArgon2Params follows the RFC 9106 second recommended option
var DefaultArgon2Params = Argon2Params{
	Memory:     64 * 1024,
	Iterations: 3,
	Threads:    4,
	SaltLength: 16,
	KeyLength:  32,
}

// maxArgon2Memory caps the m= parameter accepted from a stored hash (KiB)
const maxArgon2Memory = 1 << 20

// Argon2idHasher produces PHC-formatted argon2id hashes
type Argon2idHasher struct {
	params Argon2Params
}

// NewArgon2idHasher creates an argon2id hasher with the given parameters
func NewArgon2idHasher(p Argon2Params) *Argon2idHasher {
	return &Argon2idHasher{params: p}
}

func (h *Argon2idHasher) Algorithm() string { return AlgorithmArgon2id }

// Hash returns $argon2id$v=19$m=..,t=..,p=..$salt$key with unpadded base64 segments
func (h *Argon2idHasher) Hash(password string) (string, error) {
	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, h.params.Iterations, h.params.Memory, h.params.Threads, h.params.KeyLength)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.Memory, h.params.Iterations, h.params.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// valid reports whether argon2.IDKey can run with p without panicking or
// allocating beyond maxArgon2Memory.
func (p Argon2Params) valid() bool {
	return p.Iterations >= 1 &&
		p.Threads >= 1 &&
		p.Memory >= 8*uint32(p.Threads) &&
		p.Memory <= maxArgon2Memory
}

func verifyArgon2id(password, encoded string) (bool, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != AlgorithmArgon2id {
		return false, ErrMalformedHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return false, ErrMalformedHash
	}

	var p Argon2Params
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Iterations, &p.Threads); err != nil {
		return false, ErrMalformedHash
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, ErrMalformedHash
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, ErrMalformedHash
	}
	if !p.valid() || len(salt) == 0 || len(want) == 0 {
		return false, ErrMalformedHash
	}

	got := argon2.IDKey([]byte(password), salt, p.Iterations, p.Memory, p.Threads, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

// ---------------------------------------------------------------------------
// bcrypt
// ---------------------------------------------------------------------------

// BcryptHasher produces bcrypt hashes at the configured cost
type BcryptHasher struct {
	Cost int
}

func (h *BcryptHasher) Algorithm() string { return AlgorithmBcrypt }

func (h *BcryptHasher) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.Cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", ErrPasswordTooLong
		}
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// ---------------------------------------------------------------------------
// Legacy SHA-256
// ---------------------------------------------------------------------------

// SHA256Hasher writes the unsalted hex digest used by earlier releases.
// It offers no protection against offline guessing and exists only for compatibility.
type SHA256Hasher struct{}

func (SHA256Hasher) Algorithm() string { return AlgorithmSHA256 }

func (SHA256Hasher) Hash(password string) (string, error) {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:]), nil
}

// ---------------------------------------------------------------------------
// Verification
// ---------------------------------------------------------------------------

// Verify checks password against a stored hash in any supported encoding
func Verify(password, encoded string) (bool, error) {
	switch {
	case strings.HasPrefix(encoded, "$argon2id$"):
		return verifyArgon2id(password, encoded)
	case strings.HasPrefix(encoded, "$2a$"), strings.HasPrefix(encoded, "$2b$"), strings.HasPrefix(encoded, "$2y$"):
		err := bcrypt.CompareHashAndPassword([]byte(encoded), []byte(password))
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		if err != nil {
			return false, ErrMalformedHash
		}
		return true, nil
	case len(encoded) == hex.EncodedLen(sha256.Size):
		want, err := hex.DecodeString(encoded)
		if err != nil {
			return false, ErrMalformedHash
		}
		sum := sha256.Sum256([]byte(password))
		return subtle.ConstantTimeCompare(sum[:], want) == 1, nil
	default:
		return false, ErrMalformedHash
	}
}
