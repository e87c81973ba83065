package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"anonmsg/pkg/store"
)

const (
	driverPostgres = "postgres"
	driverMongo    = "mongo"
	driverMemory   = "memory"

	connectTimeout = 10 * time.Second
)

// Config holds runtime configuration for the core application.
type Config struct {
	StoreDriver   string
	DatabaseURL   string
	MongoURI      string
	MongoDatabase string
	RedisAddr     string
	RedisPassword string
	JWTSecret     string
	SessionTTL    time.Duration
	JWTIssuer     string
	JWTAudience   string
	JWTLeeway     time.Duration
	// BcryptCost overrides the password work factor; zero keeps the default.
	BcryptCost int
	Store      store.Store
	Sessions   store.SessionStore
}

// App wires storage and sessions behind the credential, delivery and inbox
// operations.
type App struct {
	store      store.Store
	sessions   store.SessionStore
	bcryptCost int
	closers    []func() error
}

// New constructs the application, opening the configured store and session
// backend unless they are injected.
func New(cfg Config) (*App, error) {
	a := &App{bcryptCost: cfg.BcryptCost}

	dataStore := cfg.Store
	if dataStore == nil {
		var err error
		dataStore, err = openStore(cfg)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, dataStore.Close)
	}
	a.store = dataStore

	sessionStore := cfg.Sessions
	if sessionStore == nil {
		var revoker store.TokenRevoker = store.NewMemoryTokenRevoker()
		if strings.TrimSpace(cfg.RedisAddr) != "" {
			redisRevoker := store.NewRedisTokenRevoker(cfg.RedisAddr, cfg.RedisPassword)
			ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
			err := redisRevoker.Ping(ctx)
			cancel()
			if err != nil {
				_ = redisRevoker.Close()
				a.Close()
				return nil, fmt.Errorf("init redis token revoker: %w", err)
			}
			revoker = redisRevoker
			a.closers = append(a.closers, redisRevoker.Close)
		}
		jwtStore, err := store.NewJWTSessionStore(cfg.JWTSecret, cfg.SessionTTL, revoker, store.JWTOptions{
			Issuer:   cfg.JWTIssuer,
			Audience: cfg.JWTAudience,
			Leeway:   cfg.JWTLeeway,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("init jwt session store: %w", err)
		}
		sessionStore = jwtStore
	}
	a.sessions = sessionStore
	return a, nil
}

func openStore(cfg Config) (store.Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.StoreDriver)) {
	case "", driverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		s, err := store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
		return s, nil
	case driverMongo:
		if cfg.MongoURI == "" {
			return nil, fmt.Errorf("mongo URI required")
		}
		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()
		s, err := store.NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, fmt.Errorf("init mongo store: %w", err)
		}
		return s, nil
	case driverMemory:
		return store.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// Close releases the backends New opened. Injected stores are left alone.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
