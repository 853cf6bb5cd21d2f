package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Fast parameters so the test suite does not burn CPU on argon2
var testHasher = Argon2idHasher{
	Memory:      8 * 1024,
	Iterations:  1,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

func TestArgon2idHasher_HashAndCompare(t *testing.T) {
	hash, err := testHasher.Hash("correct horse battery 1")
	require.NoError(t, err)

	require.NoError(t, testHasher.Compare(hash, "correct horse battery 1"))
	assert.ErrorIs(t, testHasher.Compare(hash, "wrong password 1"), ErrPasswordMismatch)
}

func TestArgon2idHasher_HashIsSalted(t *testing.T) {
	first, err := testHasher.Hash("same password 1")
	require.NoError(t, err)

	second, err := testHasher.Hash("same password 1")
	require.NoError(t, err)

	assert.NotEqual(t, first, second, "two hashes of one password must differ by salt")
}

func TestArgon2idHasher_PHCFormat(t *testing.T) {
	hash, err := testHasher.Hash("some password 1")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=8192,t=1,p=1$"), "got: %s", hash)
	assert.Len(t, strings.Split(hash, "$"), 6)
}

func TestArgon2idHasher_CompareRejectsGarbage(t *testing.T) {
	cases := []struct {
		name string
		hash string
	}{
		{name: "empty", hash: ""},
		{name: "not a phc string", hash: "plaintext"},
		{name: "wrong algorithm", hash: "$bcrypt$v=19$m=8192,t=1,p=1$c2FsdA$a2V5"},
		{name: "bad salt encoding", hash: "$argon2id$v=19$m=8192,t=1,p=1$!!!$a2V5"},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			err := testHasher.Compare(tt.hash, "whatever password 1")
			require.Error(t, err)
			assert.NotErrorIs(t, err, ErrPasswordMismatch)
		})
	}
}

func TestArgon2idHasher_CompareUsesParamsFromHash(t *testing.T) {
	// Hash with one parameter set, compare with a hasher configured
	// differently. The stored parameters must win.
	hash, err := testHasher.Hash("portable password 1")
	require.NoError(t, err)

	require.NoError(t, DefaultHasher.Compare(hash, "portable password 1"))
}
