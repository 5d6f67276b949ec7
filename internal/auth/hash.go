package auth

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

// Modern hashing schemes.
const (
	SchemeBcrypt   = "bcrypt"
	SchemeArgon2id = "argon2id"
)

// ErrUnknownHashFormat is returned by ParseHash for strings that are neither
// a modern nor a legacy hash.
var ErrUnknownHashFormat = errors.New("unknown password hash format")

// StoredHash is a password hash as kept in the users table: either a
// ModernHash or a LegacyHash.
type StoredHash interface {
	storedHash()
}

// ModernHash is a salted, slow hash in its encoded form.
type ModernHash struct {
	Scheme  string
	Encoded string
}

// LegacyHash is an unsalted SHA-256 digest written by the previous system.
type LegacyHash struct {
	Digest []byte
}

func (ModernHash) storedHash() {}
func (LegacyHash) storedHash() {}

// ParseHash infers the format of a stored hash from its shape.
func ParseHash(encoded string) (StoredHash, error) {
	switch {
	case strings.HasPrefix(encoded, "$2a$"), strings.HasPrefix(encoded, "$2b$"), strings.HasPrefix(encoded, "$2y$"):
		return ModernHash{Scheme: SchemeBcrypt, Encoded: encoded}, nil
	case strings.HasPrefix(encoded, "$argon2id$"):
		return ModernHash{Scheme: SchemeArgon2id, Encoded: encoded}, nil
	case isLegacyDigest(encoded):
		digest, err := hex.DecodeString(encoded)
		if err != nil {
			return nil, ErrUnknownHashFormat
		}
		return LegacyHash{Digest: digest}, nil
	}
	return nil, ErrUnknownHashFormat
}

// isLegacyDigest reports whether s is 64 lowercase hex characters.
func isLegacyDigest(s string) bool {
	if len(s) != 2*sha256.Size {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// Matches compares password against the digest in constant time.
func (h LegacyHash) Matches(password string) bool {
	sum := sha256.Sum256([]byte(password))
	return subtle.ConstantTimeCompare(sum[:], h.Digest) == 1
}

// LegacyDigest returns the legacy encoding of password. Only used to seed
// test data and imports; new credentials are never stored this way.
func LegacyDigest(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// Argon2Params are the argon2id cost parameters.
type Argon2Params struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultArgon2Params follow the RFC 9106 second recommended option.
var DefaultArgon2Params = Argon2Params{
	MemoryKiB:   64 * 1024,
	Iterations:  3,
	Parallelism: 2,
	SaltLength:  16,
	KeyLength:   32,
}

// Hasher produces and verifies modern hashes. New hashes use Scheme;
// verification accepts either scheme.
type Hasher struct {
	Scheme     string
	BcryptCost int
	Argon2     Argon2Params
}

// NewHasher returns a Hasher for the named scheme. A zero bcryptCost means
// bcrypt.DefaultCost.
func NewHasher(scheme string, bcryptCost int) (Hasher, error) {
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		return Hasher{}, fmt.Errorf("bcrypt cost %d out of range", bcryptCost)
	}
	switch scheme {
	case "", SchemeBcrypt:
		scheme = SchemeBcrypt
	case SchemeArgon2id:
	default:
		return Hasher{}, fmt.Errorf("unknown hash scheme %q", scheme)
	}
	return Hasher{Scheme: scheme, BcryptCost: bcryptCost, Argon2: DefaultArgon2Params}, nil
}

// Hash hashes password with the configured scheme.
func (h Hasher) Hash(password string) (string, error) {
	if h.Scheme == SchemeArgon2id {
		return h.hashArgon2id(password)
	}
	cost := h.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}

// Verify reports whether password matches hash. A malformed hash is an error.
func (h Hasher) Verify(hash ModernHash, password string) (bool, error) {
	switch hash.Scheme {
	case SchemeBcrypt:
		err := bcrypt.CompareHashAndPassword([]byte(hash.Encoded), []byte(password))
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("verifying bcrypt hash: %w", err)
		}
		return true, nil
	case SchemeArgon2id:
		return h.verifyArgon2id(hash.Encoded, password)
	}
	return false, ErrUnknownHashFormat
}

// NeedsRehash reports whether hash was produced with weaker settings than
// the hasher would use now.
func (h Hasher) NeedsRehash(hash ModernHash) bool {
	if hash.Scheme != SchemeBcrypt || h.Scheme != SchemeBcrypt {
		return false
	}
	cost, err := bcrypt.Cost([]byte(hash.Encoded))
	return err == nil && cost < h.BcryptCost
}

func (h Hasher) hashArgon2id(password string) (string, error) {
	p := h.Argon2
	salt := make([]byte, p.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}
	key := argon2.IDKey([]byte(password), salt, p.Iterations, p.MemoryKiB, p.Parallelism, p.KeyLength)

	b64 := base64.RawStdEncoding
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.MemoryKiB, p.Iterations, p.Parallelism,
		b64.EncodeToString(salt), b64.EncodeToString(key)), nil
}

func (h Hasher) verifyArgon2id(encoded, password string) (bool, error) {
	p, salt, want, err := decodeArgon2id(encoded)
	if err != nil {
		return false, err
	}
	// Refuse parameters far above our own so a planted hash cannot pin the CPU.
	limit := h.Argon2
	if limit.MemoryKiB == 0 {
		limit = DefaultArgon2Params
	}
	if p.MemoryKiB > 2*limit.MemoryKiB || p.Iterations > 2*limit.Iterations {
		return false, fmt.Errorf("argon2id parameters out of bounds")
	}

	got := argon2.IDKey([]byte(password), salt, p.Iterations, p.MemoryKiB, p.Parallelism, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

// decodeArgon2id parses $argon2id$v=19$m=<mem>,t=<iter>,p=<par>$<salt>$<key>.
func decodeArgon2id(encoded string) (Argon2Params, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != SchemeArgon2id || parts[2] != fmt.Sprintf("v=%d", argon2.Version) {
		return Argon2Params{}, nil, nil, ErrUnknownHashFormat
	}
	var mem, iter, par uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &mem, &iter, &par); err != nil {
		return Argon2Params{}, nil, nil, ErrUnknownHashFormat
	}
	if mem == 0 || iter == 0 || par == 0 || par > 255 {
		return Argon2Params{}, nil, nil, ErrUnknownHashFormat
	}

	b64 := base64.RawStdEncoding
	salt, err := b64.DecodeString(parts[4])
	if err != nil {
		return Argon2Params{}, nil, nil, ErrUnknownHashFormat
	}
	key, err := b64.DecodeString(parts[5])
	if err != nil || len(key) < 16 {
		return Argon2Params{}, nil, nil, ErrUnknownHashFormat
	}
	p := Argon2Params{
		MemoryKiB:   mem,
		Iterations:  iter,
		Parallelism: uint8(par),
		SaltLength:  uint32(len(salt)),
		KeyLength:   uint32(len(key)),
	}
	return p, salt, key, nil
}
