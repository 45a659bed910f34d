// Package ratelimit implements fixed-window request counting keyed by
// (category, user, client IP). Windows reset lazily on the first hit past
// their deadline; different keys never interfere.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/kuwago-ai/datagate/internal/config"
	"github.com/kuwago-ai/datagate/internal/logger"
	"go.uber.org/zap"
)

// Rule defines one fixed window.
type Rule struct {
	Window time.Duration
	Max    int
}

// Decision is the outcome of one hit against a window.
type Decision struct {
	Limited   bool          `json:"limited"`
	Remaining int           `json:"remaining"`
	ResetIn   time.Duration `json:"reset_in"`
}

// Store counts hits per key. Implementations must make the read-modify-write
// for a given key atomic; cross-key calls need no coordination.
type Store interface {
	Hit(ctx context.Context, key string, rule Rule) (Decision, error)
	Close() error
}

// Limiter resolves per-category rules and applies them through a Store.
type Limiter struct {
	store    Store
	rules    map[string]Rule
	fallback Rule
	enabled  bool
	logger   *logger.Logger
}

// New creates a Limiter from configuration, selecting the memory or Redis
// store.
func New(cfg config.RateLimitConfig, log *logger.Logger) (*Limiter, error) {
	var store Store
	var err error

	switch cfg.Store {
	case "redis":
		store, err = NewRedisStore(cfg.Redis, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create redis store: %w", err)
		}
	default:
		memory := NewMemoryStore()
		memory.StartSweep(cfg.SweepInterval)
		store = memory
	}

	rules := make(map[string]Rule, len(cfg.Rules))
	for category, rule := range cfg.Rules {
		rules[category] = Rule{Window: rule.Window, Max: rule.Max}
	}

	log.Info("Rate limiter initialized",
		zap.String("store", cfg.Store),
		zap.Int("category_rules", len(rules)),
		zap.Bool("enabled", cfg.Enabled),
	)

	return &Limiter{
		store:    store,
		rules:    rules,
		fallback: Rule{Window: cfg.Default.Window, Max: cfg.Default.Max},
		enabled:  cfg.Enabled,
		logger:   log,
	}, nil
}

// Key builds the composite window key for a request.
func Key(category, userID, ip string) string {
	if userID == "" {
		userID = "anonymous"
	}
	return fmt.Sprintf("%s:%s:%s", category, userID, ip)
}

// Allow records one hit for the request identity and reports the window
// state. A disabled limiter admits everything.
func (l *Limiter) Allow(ctx context.Context, category, userID, ip string) (Decision, error) {
	rule := l.RuleFor(category)

	if !l.enabled {
		return Decision{Limited: false, Remaining: rule.Max, ResetIn: 0}, nil
	}

	decision, err := l.store.Hit(ctx, Key(category, userID, ip), rule)
	if err != nil {
		return decision, fmt.Errorf("rate limit store: %w", err)
	}

	if decision.Limited {
		l.logger.Debug("Request rate limited",
			zap.String("category", category),
			zap.String("ip", ip),
			zap.Duration("reset_in", decision.ResetIn),
		)
	}

	return decision, nil
}

// RuleFor returns the rule for a category, or the default rule.
func (l *Limiter) RuleFor(category string) Rule {
	if rule, ok := l.rules[category]; ok {
		return rule
	}
	return l.fallback
}

// Close releases store resources.
func (l *Limiter) Close() error {
	return l.store.Close()
}
