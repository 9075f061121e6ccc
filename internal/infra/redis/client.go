package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/go-redsync/redsync/v4"
	redsyncpool "github.com/go-redsync/redsync/v4/redis/goredis/v8"
)

func NewClient(ctx context.Context, addr, password string, db int) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     20,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return rdb, nil
}

// Locker hands out short-lived distributed locks, one attempt each.
type Locker struct {
	rs     *redsync.Redsync
	prefix string
	expiry time.Duration
}

func NewLocker(rdb *goredis.Client, prefix string, expiry time.Duration) *Locker {
	return &Locker{
		rs:     redsync.New(redsyncpool.NewPool(rdb)),
		prefix: prefix,
		expiry: expiry,
	}
}

// TryLock reports ok=false when another holder owns key.
func (l *Locker) TryLock(ctx context.Context, key string) (func(), bool, error) {
	mutex := l.rs.NewMutex(
		l.prefix+":lock:"+key,
		redsync.WithExpiry(l.expiry),
		redsync.WithTries(1),
	)
	if err := mutex.LockContext(ctx); err != nil {
		var taken *redsync.ErrTaken
		if errors.Is(err, redsync.ErrFailed) || errors.As(err, &taken) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	return func() {
		// expiry releases the lock if this fails
		_, _ = mutex.UnlockContext(context.Background())
	}, true, nil
}
