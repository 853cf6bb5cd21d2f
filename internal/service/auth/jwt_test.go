package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopcore/authcore/internal/apperrors"
	"github.com/shopcore/authcore/internal/clock"
)

func generateTestKeypair(t *testing.T) (privatePEM []byte, publicPEM []byte) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	privatePEM = pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})

	publicDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	publicPEM = pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: publicDER})

	return privatePEM, publicPEM
}

func newTestIssuer(t *testing.T, c clock.Clock) *JwtIssuer {
	t.Helper()

	privatePEM, publicPEM := generateTestKeypair(t)

	issuer, err := NewJwtIssuer(JwtIssuerConfig{
		PrivateKeyPEM: privatePEM,
		PublicKeyPEM:  publicPEM,
		KeyID:         "test-key-1",
		Clock:         c,
	})
	require.NoError(t, err)

	return issuer
}

func TestJwtIssuer_IssueAndVerify(t *testing.T) {
	c := clock.NewFixed(time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC))
	issuer := newTestIssuer(t, c)
	userID := uuid.New()

	token, expiresAt, err := issuer.Issue(userID, []string{"customer", "staff"}, 3)
	require.NoError(t, err)
	assert.Equal(t, c.Now().Add(defaultAccessTokenTTL), expiresAt)

	claims, err := issuer.Verify(token)
	require.NoError(t, err)

	gotID, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, userID, gotID)
	assert.Equal(t, []string{"customer", "staff"}, claims.Roles)
	assert.Equal(t, 3, claims.TokenVersion)
	assert.Equal(t, defaultIssuer, claims.Issuer)
}

func TestJwtIssuer_VerifyExpired(t *testing.T) {
	c := clock.NewFixed(time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC))
	issuer := newTestIssuer(t, c)

	token, _, err := issuer.Issue(uuid.New(), nil, 0)
	require.NoError(t, err)

	c.Advance(defaultAccessTokenTTL + time.Second)

	_, err = issuer.Verify(token)
	assert.ErrorIs(t, err, apperrors.ErrTokenExpired)
}

func TestJwtIssuer_VerifyRejectsForeignToken(t *testing.T) {
	c := clock.NewFixed(time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC))
	issuer := newTestIssuer(t, c)
	foreign := newTestIssuer(t, c) // different keypair

	token, _, err := foreign.Issue(uuid.New(), nil, 0)
	require.NoError(t, err)

	_, err = issuer.Verify(token)
	assert.ErrorIs(t, err, apperrors.ErrTokenInvalid)
	assert.NotErrorIs(t, err, apperrors.ErrTokenExpired)
}

func TestJwtIssuer_VerifyRejectsWrongIssuerAndAudience(t *testing.T) {
	c := clock.NewFixed(time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC))
	privatePEM, publicPEM := generateTestKeypair(t)

	signer, err := NewJwtIssuer(JwtIssuerConfig{
		PrivateKeyPEM: privatePEM,
		PublicKeyPEM:  publicPEM,
		Issuer:        "somebody-else",
		Audience:      "another-api",
		Clock:         c,
	})
	require.NoError(t, err)

	verifier, err := NewJwtIssuer(JwtIssuerConfig{
		PublicKeyPEM: publicPEM,
		Clock:        c,
	})
	require.NoError(t, err)

	token, _, err := signer.Issue(uuid.New(), nil, 0)
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	assert.ErrorIs(t, err, apperrors.ErrTokenInvalid)
}

func TestJwtIssuer_VerifyGarbage(t *testing.T) {
	issuer := newTestIssuer(t, clock.System{})

	_, err := issuer.Verify("not.a.jwt")
	assert.ErrorIs(t, err, apperrors.ErrTokenInvalid)
}

func TestJwtIssuer_VerificationOnlyCannotSign(t *testing.T) {
	_, publicPEM := generateTestKeypair(t)

	issuer, err := NewJwtIssuer(JwtIssuerConfig{PublicKeyPEM: publicPEM})
	require.NoError(t, err)

	_, _, err = issuer.Issue(uuid.New(), nil, 0)
	require.Error(t, err)
}
