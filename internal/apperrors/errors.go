package apperrors

import (
	"errors"
	"fmt"
)

var (
	// Covers both unknown email and wrong password so a caller can't tell
	// one case from the other
	ErrAuthenticationFailed = errors.New("authentication failed")

	ErrUserAlreadyExists = errors.New("user already exists")
	ErrUserNotFound      = errors.New("user not found")
	ErrUserNotActive     = errors.New("user is not active")

	ErrTokenExpired         = errors.New("access token is expired")
	ErrTokenInvalid         = errors.New("access token is invalid")
	ErrTokenVersionMismatch = errors.New("access token version mismatch")

	ErrRefreshTokenNotFound      = errors.New("refresh token not found")
	ErrRefreshTokenExpired       = errors.New("refresh token is expired")
	ErrRefreshTokenRevoked       = errors.New("refresh token is revoked")
	ErrRefreshTokenReuseDetected = errors.New("refresh token reuse detected")

	ErrInsufficientPermissions = errors.New("insufficient permissions")

	ErrValidation       = errors.New("validation failed")
	ErrResourceNotFound = errors.New("resource not found")

	// Matches ErrResourceNotFound too
	ErrRoleNotFound = fmt.Errorf("%w: role", ErrResourceNotFound)
)
