package main

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/shopcore/authcore/internal/logger"
)

const (
	defaultListenAddr   = "localhost:8000"
	defaultLoggingLevel = logger.LevelInfo
	defaultEnvironment  = logger.EnvProduction
	defaultAccessTTL    = 15 * time.Minute
	defaultRefreshTTL   = 14 * 24 * time.Hour
)

type Config struct {
	// Default logging level
	LogLevel string

	// Environment (dev, prod)
	Environment string

	// Address on which the service will be run
	ListenAddr string

	// Database to connect to
	DatabaseDSN string

	// Redis address for the permissions cache
	// Empty means an in-process cache is used
	RedisAddr string

	// Secret key for refresh token digests
	TokenSecret string

	// PEM files with the RSA keypair for access tokens and the key id
	// published in the token header
	JWTPrivateKeyPath string
	JWTPublicKeyPath  string
	JWTKeyID          string

	// Token lifetimes
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// Set Secure flag on session cookies, disable for local http runs
	SecureCookies bool
}

func NewConfig() *Config {
	return &Config{
		LogLevel:      defaultLoggingLevel,
		Environment:   defaultEnvironment,
		ListenAddr:    defaultListenAddr,
		JWTKeyID:      "authcore-1",
		AccessTTL:     defaultAccessTTL,
		RefreshTTL:    defaultRefreshTTL,
		SecureCookies: true,
	}
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		c.LoadEnv(func(key string) string {
			return envMap[key]
		})
		return nil
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) {
		return func(value string) {
			if value != "" {
				*o = value
			}
		}
	}
	setDuration := func(o *time.Duration) func(value string) {
		return func(value string) {
			if d, err := time.ParseDuration(value); err == nil {
				*o = d
			}
		}
	}
	setBool := func(o *bool) func(value string) {
		return func(value string) {
			switch value {
			case "true", "1":
				*o = true
			case "false", "0":
				*o = false
			}
		}
	}

	envMap := map[string]func(string){
		"RUN_ADDRESS":          setString(&c.ListenAddr),
		"DATABASE_URI":         setString(&c.DatabaseDSN),
		"REDIS_ADDRESS":        setString(&c.RedisAddr),
		"TOKEN_SECRET":         setString(&c.TokenSecret),
		"JWT_PRIVATE_KEY_PATH": setString(&c.JWTPrivateKeyPath),
		"JWT_PUBLIC_KEY_PATH":  setString(&c.JWTPublicKeyPath),
		"JWT_KEY_ID":           setString(&c.JWTKeyID),
		"ACCESS_TTL":           setDuration(&c.AccessTTL),
		"REFRESH_TTL":          setDuration(&c.RefreshTTL),
		"SECURE_COOKIES":       setBool(&c.SecureCookies),
		"LOG_LEVEL":            setString(&c.LogLevel),
		"ENVIRONMENT":          setString(&c.Environment),
	}

	for key, parseFn := range envMap {
		parseFn(getenv(key))
	}
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("authcore", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string")
	fs.StringVar(&c.RedisAddr, "redis", c.RedisAddr, "Redis address for the permissions cache")
	fs.StringVarP(&c.TokenSecret, "token-secret", "s", c.TokenSecret, "Secret key for refresh token digests")
	fs.StringVar(&c.JWTPrivateKeyPath, "jwt-private-key", c.JWTPrivateKeyPath, "Path to RSA private key PEM")
	fs.StringVar(&c.JWTPublicKeyPath, "jwt-public-key", c.JWTPublicKeyPath, "Path to RSA public key PEM")
	fs.StringVar(&c.JWTKeyID, "jwt-key-id", c.JWTKeyID, "Key id published in the token header")
	fs.DurationVar(&c.AccessTTL, "access-ttl", c.AccessTTL, "Access token lifetime")
	fs.DurationVar(&c.RefreshTTL, "refresh-ttl", c.RefreshTTL, "Refresh token lifetime")
	fs.BoolVar(&c.SecureCookies, "secure-cookies", c.SecureCookies, "Set Secure flag on session cookies")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")

	return fs.Parse(args)
}

// Validate checks the options the service cannot run without
func (c *Config) Validate() error {
	if c.DatabaseDSN == "" {
		return errors.New("database DSN is required")
	}
	if c.TokenSecret == "" {
		return errors.New("token secret is required")
	}
	if c.JWTPrivateKeyPath == "" || c.JWTPublicKeyPath == "" {
		return errors.New("jwt keypair paths are required")
	}

	return nil
}
