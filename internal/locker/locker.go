package locker

import (
	"errors"
	"fmt"
	"time"

	"github.com/nimasrn/payment-gateway/pkg/logger"
	"github.com/nimasrn/payment-gateway/pkg/redis"
)

var (
	ErrLockHeld          = errors.New("verification already in progress for this order")
	ErrLockAcquireFailed = errors.New("failed to acquire verification lock")
)

type Config struct {
	LockTTL time.Duration

	LockKeyPrefix string
}

func DefaultConfig() Config {
	return Config{
		LockTTL:       30 * time.Second,
		LockKeyPrefix: "verify:lock:",
	}
}

// Locker serializes concurrent verification attempts for the same
// order. The database's conditional status guard is the source of
// truth; the lock only keeps racing callers from both paying for a
// gateway round-trip.
type Locker struct {
	redis  redis.RedisAdapter
	config Config
}

func NewLocker(redisAdapter redis.RedisAdapter, config Config) *Locker {
	if config.LockTTL == 0 {
		config.LockTTL = DefaultConfig().LockTTL
	}
	if config.LockKeyPrefix == "" {
		config.LockKeyPrefix = DefaultConfig().LockKeyPrefix
	}
	return &Locker{
		redis:  redisAdapter,
		config: config,
	}
}

type Lock struct {
	OrderID  string
	acquired bool
	locker   *Locker
}

// Acquire takes the verification lock for orderID. ErrLockHeld means
// another request is already verifying the same order.
func (l *Locker) Acquire(orderID string) (*Lock, error) {
	lockKey := l.config.LockKeyPrefix + orderID
	lockValue := []byte(fmt.Sprintf("%d", time.Now().UnixNano()))

	acquired, err := l.redis.SetNX(lockKey, lockValue, l.config.LockTTL)
	if err != nil {
		logger.Error("Failed to acquire verification lock", "order_id", orderID, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrLockAcquireFailed, err)
	}

	if !acquired {
		logger.Info("Verification lock already held", "order_id", orderID)
		return nil, ErrLockHeld
	}

	logger.Debug("Verification lock acquired", "order_id", orderID, "lock_ttl", l.config.LockTTL)

	return &Lock{
		OrderID:  orderID,
		acquired: true,
		locker:   l,
	}, nil
}

func (l *Locker) Release(lock *Lock) error {
	if lock == nil || !lock.acquired {
		return nil
	}

	lockKey := l.config.LockKeyPrefix + lock.OrderID
	if err := l.redis.Del(lockKey); err != nil {
		logger.Warn("Failed to release verification lock", "order_id", lock.OrderID, "error", err)
		return err
	}

	lock.acquired = false
	logger.Debug("Verification lock released", "order_id", lock.OrderID)
	return nil
}
