package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/shopcore/authcore/internal/apperrors"
	"github.com/shopcore/authcore/internal/clock"
)

const (
	defaultAccessTokenTTL = 15 * time.Minute
	defaultIssuer         = "authcore"
	defaultAudience       = "authcore-api"
)

type AccessTokenClaims struct {
	jwt.RegisteredClaims
	Roles        []string `json:"roles"`
	TokenVersion int      `json:"ver"`
}

type JwtIssuerConfig struct {
	// PEM encoded RSA keypair. Private key signs, public key verifies,
	// so verification-only deployments may leave the private key empty.
	PrivateKeyPEM []byte
	PublicKeyPEM  []byte

	// Key id published in the token header to support key rotation
	KeyID string

	Issuer   string
	Audience string

	AccessTTL time.Duration

	Clock clock.Clock
}

// JwtIssuer issues and verifies RS256 signed access tokens carrying
// subject, roles and token version
type JwtIssuer struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	keyID      string
	issuer     string
	audience   string
	accessTTL  time.Duration
	clock      clock.Clock
}

func NewJwtIssuer(cfg JwtIssuerConfig) (*JwtIssuer, error) {
	if len(cfg.PublicKeyPEM) == 0 {
		return nil, errors.New("public key must not be empty")
	}

	publicKey, err := jwt.ParseRSAPublicKeyFromPEM(cfg.PublicKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("error while parsing public key. Err: %w", err)
	}

	var privateKey *rsa.PrivateKey
	if len(cfg.PrivateKeyPEM) != 0 {
		privateKey, err = jwt.ParseRSAPrivateKeyFromPEM(cfg.PrivateKeyPEM)
		if err != nil {
			return nil, fmt.Errorf("error while parsing private key. Err: %w", err)
		}
	}

	if cfg.Issuer == "" {
		cfg.Issuer = defaultIssuer
	}
	if cfg.Audience == "" {
		cfg.Audience = defaultAudience
	}
	if cfg.AccessTTL == 0 {
		cfg.AccessTTL = defaultAccessTokenTTL
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System{}
	}

	return &JwtIssuer{
		privateKey: privateKey,
		publicKey:  publicKey,
		keyID:      cfg.KeyID,
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
		accessTTL:  cfg.AccessTTL,
		clock:      cfg.Clock,
	}, nil
}

// Issue signs a short lived access token for the user
func (i *JwtIssuer) Issue(userID uuid.UUID, roles []string, tokenVersion int) (token string, expiresAt time.Time, err error) {
	if i.privateKey == nil {
		return "", time.Time{}, errors.New("issuer has no private key")
	}

	now := i.clock.Now().Truncate(time.Second)
	expiresAt = now.Add(i.accessTTL)

	accessToken := jwt.NewWithClaims(
		jwt.SigningMethodRS256,
		AccessTokenClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				ID:        uuid.NewString(),
				Subject:   userID.String(),
				Issuer:    i.issuer,
				Audience:  jwt.ClaimStrings{i.audience},
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(expiresAt),
			},
			Roles:        roles,
			TokenVersion: tokenVersion,
		},
	)
	accessToken.Header["kid"] = i.keyID

	token, err = accessToken.SignedString(i.privateKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("error while signing access token. Err: %w", err)
	}

	return token, expiresAt, nil
}

// Verify validates signature, issuer, audience and required claims.
// Expired tokens fail with apperrors.ErrTokenExpired, everything else
// wrong with the token fails with apperrors.ErrTokenInvalid.
func (i *JwtIssuer) Verify(token string) (AccessTokenClaims, error) {
	claims := AccessTokenClaims{}

	_, err := jwt.ParseWithClaims(
		token,
		&claims,
		func(t *jwt.Token) (any, error) { return i.publicKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithAudience(i.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.clock.Now),
	)

	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return claims, fmt.Errorf("%w: %w", apperrors.ErrTokenExpired, err)
	default:
		return claims, fmt.Errorf("%w: %w", apperrors.ErrTokenInvalid, err)
	}

	if claims.Subject == "" {
		return claims, fmt.Errorf("%w: subject claim is missing", apperrors.ErrTokenInvalid)
	}

	return claims, nil
}

// Subject parses the sub claim as user id
func (c AccessTokenClaims) UserID() (uuid.UUID, error) {
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: bad subject claim", apperrors.ErrTokenInvalid)
	}

	return id, nil
}
