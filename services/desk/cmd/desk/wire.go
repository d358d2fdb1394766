package main

import (
	"fmt"
	"log/slog"
	"time"

	"murojaat/internal/ratelimit"
	"murojaat/internal/util"
	"murojaat/pkg/auth"
	"murojaat/pkg/store"
	"murojaat/services/desk/internal/config"
	"murojaat/services/desk/internal/security"
)

type closer interface {
	Close() error
}

// deps holds the backends chosen by config.
type deps struct {
	store           store.Store
	sessions        store.SessionStore
	hasher          auth.Hasher
	loginLimiter    ratelimit.Limiter
	registerLimiter ratelimit.Limiter
	alerter         *security.AuditAlerter
	trustedProxies  *util.TrustedProxies
	closers         []closer
}

func (d *deps) close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i].Close(); err != nil {
			slog.Warn("close dependency", "err", err)
		}
	}
}

func wire(cfg config.FileConfig) (*deps, error) {
	d := &deps{}
	ok := false
	defer func() {
		if !ok {
			d.close()
		}
	}()

	hasher, err := auth.NewHasher(cfg.CredentialMode)
	if err != nil {
		return nil, err
	}
	if hasher.Mode() == auth.ModePlain {
		slog.Warn("credential mode is plain: credentials are stored and compared verbatim; demo use only")
	}
	d.hasher = hasher

	switch cfg.StoreBackend {
	case config.StoreSQLite:
		s, err := store.NewSQLiteMemoryStore()
		if err != nil {
			return nil, fmt.Errorf("init sqlite store: %w", err)
		}
		d.store = s
		d.closers = append(d.closers, s)
	case config.StorePostgres:
		s, err := store.NewPostgresStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
		d.store = s
		d.closers = append(d.closers, s)
	default:
		d.store = store.NewMemoryStore()
	}

	sessionTTL, err := config.ParseSessionTTL(cfg.SessionTTL)
	if err != nil {
		return nil, err
	}
	switch cfg.SessionBackend {
	case config.SessionRedis:
		s, err := store.NewRedisSessionStore(cfg.RedisAddr, cfg.RedisPassword, sessionTTL)
		if err != nil {
			return nil, fmt.Errorf("init redis sessions: %w", err)
		}
		d.sessions = s
		d.closers = append(d.closers, s)
	case config.SessionJWT:
		var revoker store.TokenRevoker = store.NewMemoryTokenRevoker()
		if cfg.RedisAddr != "" {
			r := store.NewRedisTokenRevoker(cfg.RedisAddr, cfg.RedisPassword, cfg.RevokedTokenPrefix)
			revoker = r
			d.closers = append(d.closers, r)
		}
		s, err := store.NewJWTSessionStore(cfg.JWTSecret, sessionTTL, revoker)
		if err != nil {
			return nil, fmt.Errorf("init jwt sessions: %w", err)
		}
		d.sessions = s
	default:
		d.sessions = store.NewMemorySessionStore(sessionTTL)
	}

	if d.loginLimiter, err = newLimiter(cfg, "murojaat:ratelimit:login", cfg.LoginRateLimitPerMinute, d); err != nil {
		return nil, fmt.Errorf("init login limiter: %w", err)
	}
	if d.registerLimiter, err = newLimiter(cfg, "murojaat:ratelimit:register", cfg.RegisterRateLimitPerMinute, d); err != nil {
		return nil, fmt.Errorf("init register limiter: %w", err)
	}

	if counter := security.NewRedisCounter(cfg.RedisAddr, cfg.RedisPassword); counter != nil {
		d.alerter = security.NewAuditAlerter(counter, "", cfg.LoginFailureAlertThreshold)
		d.closers = append(d.closers, counter)
	} else {
		d.alerter = security.NewAuditAlerter(security.NewMemoryCounter(), "", cfg.LoginFailureAlertThreshold)
	}

	if d.trustedProxies, err = util.NewTrustedProxies(cfg.TrustedProxyCIDRs); err != nil {
		return nil, fmt.Errorf("parse trusted proxies: %w", err)
	}
	ok = true
	return d, nil
}

// newLimiter returns nil when perMinute is zero, which leaves the endpoint
// unthrottled.
func newLimiter(cfg config.FileConfig, prefix string, perMinute int, d *deps) (ratelimit.Limiter, error) {
	if perMinute <= 0 {
		return nil, nil
	}
	if cfg.RedisAddr != "" {
		l, err := ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, prefix, perMinute, time.Minute)
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, l)
		return l, nil
	}
	l, err := ratelimit.NewMemoryLimiter(perMinute, time.Minute)
	if err != nil {
		return nil, err
	}
	return l, nil
}
