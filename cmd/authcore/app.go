package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shopcore/authcore/internal/audit"
	"github.com/shopcore/authcore/internal/cache"
	"github.com/shopcore/authcore/internal/db"
	"github.com/shopcore/authcore/internal/handlers"
	"github.com/shopcore/authcore/internal/logger"
	"github.com/shopcore/authcore/internal/repository/postgres"
	"github.com/shopcore/authcore/internal/service/auth"
	"github.com/shopcore/authcore/internal/service/rbac"
)

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler

	logger  logger.Logger
	janitor *auth.Janitor
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
	log, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	// Connect to the database and run migrations
	pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}

	storage := postgres.NewStorage(pool)
	auditLog := audit.NewLog(log)

	privateKey, err := os.ReadFile(c.JWTPrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("error while reading jwt private key. Err: %w", err)
	}
	publicKey, err := os.ReadFile(c.JWTPublicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("error while reading jwt public key. Err: %w", err)
	}

	issuer, err := auth.NewJwtIssuer(auth.JwtIssuerConfig{
		PrivateKeyPEM: privateKey,
		PublicKeyPEM:  publicKey,
		KeyID:         c.JWTKeyID,
		AccessTTL:     c.AccessTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("error while creating jwt issuer. Err: %w", err)
	}

	authService, err := auth.NewService(auth.Config{
		TokenSecret: c.TokenSecret,
		Jwt:         issuer,
		RefreshTTL:  c.RefreshTTL,
		AuditLog:    auditLog,
	}, storage)
	if err != nil {
		return nil, fmt.Errorf("error while creating auth service. Err: %w", err)
	}

	// Permission sets live in redis when an address is configured,
	// otherwise in process memory
	var permCache cache.Cache = cache.NewMemory(nil)
	if c.RedisAddr != "" {
		permCache = cache.NewRedis(redis.NewClient(&redis.Options{Addr: c.RedisAddr}))
	}

	checker, err := rbac.NewChecker(rbac.Config{
		AuditLog: auditLog,
		Logger:   log,
	}, storage, permCache)
	if err != nil {
		return nil, fmt.Errorf("error while creating permission checker. Err: %w", err)
	}

	janitor := auth.NewJanitor(auth.JanitorConfig{Logger: log}, storage)

	mux := handlers.NewRouter(
		handlers.RouterConfig{Secure: c.SecureCookies},
		authService,
		checker,
		log,
	)

	return &ServerApp{
		ListenAddr: c.ListenAddr,
		Handler:    mux,
		logger:     log,
		janitor:    janitor,
	}, nil
}

// Run starts http server and closes gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    s.ListenAddr,
		Handler: s.Handler,
	}

	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	go s.janitor.Run(srvCtx)

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); err == context.DeadlineExceeded {
			s.logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		s.logger.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	s.logger.Info("Starting server", "address", s.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed

	return err
}
