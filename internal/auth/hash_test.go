package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestParseHash(t *testing.T) {
	bcryptHash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	require.NoError(t, err)

	tests := []struct {
		name    string
		encoded string
		want    string
	}{
		{"bcrypt", string(bcryptHash), "modern"},
		{"bcrypt 2y", "$2y$" + string(bcryptHash[4:]), "modern"},
		{"argon2id", "$argon2id$v=19$m=65536,t=3,p=2$c2FsdA$a2V5", "modern"},
		{"legacy", LegacyDigest("admin123"), "legacy"},
		{"uppercase hex", strings.ToUpper(LegacyDigest("admin123")), "unknown"},
		{"short hex", LegacyDigest("x")[:40], "unknown"},
		{"plaintext", "admin123", "unknown"},
		{"empty", "", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseHash(tt.encoded)
			switch tt.want {
			case "modern":
				require.NoError(t, err)
				assert.IsType(t, ModernHash{}, got)
			case "legacy":
				require.NoError(t, err)
				assert.IsType(t, LegacyHash{}, got)
			default:
				assert.ErrorIs(t, err, ErrUnknownHashFormat)
			}
		})
	}
}

func TestLegacyHashMatches(t *testing.T) {
	// SHA-256("admin123")
	h, err := ParseHash("240be518fabd2724ddb6f04eeb1da5967448d7e831c08c8fa822809f74c720a9")
	require.NoError(t, err)
	legacy := h.(LegacyHash)

	assert.True(t, legacy.Matches("admin123"))
	assert.False(t, legacy.Matches("admin124"))
	assert.False(t, legacy.Matches(""))
}

func TestHasherRoundTrip(t *testing.T) {
	for _, scheme := range []string{SchemeBcrypt, SchemeArgon2id} {
		t.Run(scheme, func(t *testing.T) {
			h, err := NewHasher(scheme, bcrypt.MinCost)
			require.NoError(t, err)
			if scheme == SchemeArgon2id {
				h.Argon2 = Argon2Params{MemoryKiB: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
			}

			encoded, err := h.Hash("correct horse")
			require.NoError(t, err)

			parsed, err := ParseHash(encoded)
			require.NoError(t, err)
			modern, ok := parsed.(ModernHash)
			require.True(t, ok, "new hashes must be modern")
			assert.Equal(t, scheme, modern.Scheme)

			ok, err = h.Verify(modern, "correct horse")
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = h.Verify(modern, "wrong horse")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestHasherVerifiesOtherScheme(t *testing.T) {
	argon, err := NewHasher(SchemeArgon2id, 0)
	require.NoError(t, err)
	argon.Argon2 = Argon2Params{MemoryKiB: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
	bc, err := NewHasher(SchemeBcrypt, bcrypt.MinCost)
	require.NoError(t, err)

	encoded, err := bc.Hash("pw-12345")
	require.NoError(t, err)
	ok, err := argon.Verify(ModernHash{Scheme: SchemeBcrypt, Encoded: encoded}, "pw-12345")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestArgon2idRejectsMalformed(t *testing.T) {
	h, err := NewHasher(SchemeArgon2id, 0)
	require.NoError(t, err)

	for _, encoded := range []string{
		"$argon2id$v=18$m=1024,t=1,p=1$c2FsdHNhbHQ$a2V5a2V5a2V5a2V5a2V5",
		"$argon2id$v=19$m=0,t=1,p=1$c2FsdHNhbHQ$a2V5a2V5a2V5a2V5a2V5",
		"$argon2id$v=19$m=1024,t=1,p=1$!!$a2V5a2V5a2V5a2V5a2V5",
		"$argon2id$v=19$m=99999999,t=1,p=1$c2FsdHNhbHQ$a2V5a2V5a2V5a2V5a2V5",
	} {
		_, err := h.Verify(ModernHash{Scheme: SchemeArgon2id, Encoded: encoded}, "x")
		assert.Error(t, err, encoded)
	}
}

func TestNewHasherRejectsUnknownScheme(t *testing.T) {
	_, err := NewHasher("md5", 0)
	assert.Error(t, err)
	_, err = NewHasher(SchemeBcrypt, 99)
	assert.Error(t, err)
}

func TestNeedsRehash(t *testing.T) {
	weak, err := bcrypt.GenerateFromPassword([]byte("pw"), bcrypt.MinCost)
	require.NoError(t, err)
	h, err := NewHasher(SchemeBcrypt, bcrypt.MinCost+1)
	require.NoError(t, err)

	assert.True(t, h.NeedsRehash(ModernHash{Scheme: SchemeBcrypt, Encoded: string(weak)}))

	h.BcryptCost = bcrypt.MinCost
	assert.False(t, h.NeedsRehash(ModernHash{Scheme: SchemeBcrypt, Encoded: string(weak)}))
}
