// Package ratelimit guards command execution with three controls: a
// per-user cooldown, a global concurrency cap and per-account write
// serialization.
package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"qq-farm-runtime/errors"
)

// Lease holds the slots acquired for one command. Release is
// idempotent.
type Lease struct {
	global  *semaphore.Weighted
	account *semaphore.Weighted

	once sync.Once
}

// Release frees the account slot before the global one.
func (l *Lease) Release() {
	l.once.Do(func() {
		if l.account != nil {
			l.account.Release(1)
		}
		l.global.Release(1)
	})
}

// Limiter applies the three controls. The zero value is not usable;
// construct with New.
type Limiter struct {
	readCooldown  time.Duration
	writeCooldown time.Duration
	serializeAcct bool

	global *semaphore.Weighted

	mu            sync.Mutex
	readLimiters  map[string]*rate.Limiter
	writeLimiters map[string]*rate.Limiter
	accountLocks  map[string]*semaphore.Weighted
}

// Config carries the limiter knobs.
type Config struct {
	ReadCooldown           time.Duration
	WriteCooldown          time.Duration
	GlobalConcurrency      int
	AccountWriteSerialized bool
}

// DefaultConfig mirrors the service defaults: 1s read cooldown, 2s
// write cooldown, 20 concurrent commands, serialized account writes.
func DefaultConfig() Config {
	return Config{
		ReadCooldown:           time.Second,
		WriteCooldown:          2 * time.Second,
		GlobalConcurrency:      20,
		AccountWriteSerialized: true,
	}
}

func New(cfg Config) *Limiter {
	if cfg.GlobalConcurrency < 1 {
		cfg.GlobalConcurrency = 1
	}
	if cfg.ReadCooldown < 0 {
		cfg.ReadCooldown = 0
	}
	if cfg.WriteCooldown < 0 {
		cfg.WriteCooldown = 0
	}
	return &Limiter{
		readCooldown:  cfg.ReadCooldown,
		writeCooldown: cfg.WriteCooldown,
		serializeAcct: cfg.AccountWriteSerialized,
		global:        semaphore.NewWeighted(int64(cfg.GlobalConcurrency)),
		readLimiters:  make(map[string]*rate.Limiter),
		writeLimiters: make(map[string]*rate.Limiter),
		accountLocks:  make(map[string]*semaphore.Weighted),
	}
}

// Acquire admits one command for the user. Write commands against an
// account additionally hold that account's write slot. The caller must
// Release the returned lease. A cooldown violation fails immediately
// with ErrRateLimited and the remaining wait.
func (l *Limiter) Acquire(ctx context.Context, userID string, isWrite bool, accountID string) (*Lease, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return nil, errors.Wrap(errors.ErrRateLimited, "无法识别用户身份，拒绝执行。")
	}

	if err := l.checkCooldown(uid, isWrite); err != nil {
		return nil, err
	}

	if err := l.global.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	lease := &Lease{global: l.global}
	aid := strings.TrimSpace(accountID)
	if isWrite && l.serializeAcct && aid != "" {
		lock := l.accountLock(aid)
		if err := lock.Acquire(ctx, 1); err != nil {
			l.global.Release(1)
			return nil, err
		}
		lease.account = lock
	}
	return lease, nil
}

// checkCooldown consumes the user's token or reports the wait left.
func (l *Limiter) checkCooldown(uid string, isWrite bool) error {
	cooldown := l.readCooldown
	kind := "读操作"
	if isWrite {
		cooldown = l.writeCooldown
		kind = "写操作"
	}
	if cooldown <= 0 {
		return nil
	}

	l.mu.Lock()
	limiters := l.readLimiters
	if isWrite {
		limiters = l.writeLimiters
	}
	lim, ok := limiters[uid]
	if !ok {
		lim = rate.NewLimiter(rate.Every(cooldown), 1)
		limiters[uid] = lim
	}
	l.mu.Unlock()

	reservation := lim.Reserve()
	wait := reservation.Delay()
	if wait > 0 {
		reservation.Cancel()
		waitSec := wait.Seconds()
		if waitSec < 0.1 {
			waitSec = 0.1
		}
		return errors.Wrap(errors.ErrRateLimited, fmt.Sprintf("%s过于频繁，请 %.1fs 后再试。", kind, waitSec))
	}
	return nil
}

func (l *Limiter) accountLock(accountID string) *semaphore.Weighted {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.accountLocks[accountID]
	if !ok {
		lock = semaphore.NewWeighted(1)
		l.accountLocks[accountID] = lock
	}
	return lock
}
