package workers

import "context"

// Worker is a background job with its own schedule.
type Worker interface {
	Start() error
	// Stop waits for a running pass to finish.
	Stop()
	Name() string
}

// Locker guards one unit of work across instances. TryLock does not wait:
// ok is false when the key is held elsewhere.
type Locker interface {
	TryLock(ctx context.Context, key string) (unlock func(), ok bool, err error)
}

// LocalLocker is used when no Redis is configured; the in-flight maps of the
// workers already cover a single instance.
type LocalLocker struct{}

func (LocalLocker) TryLock(context.Context, string) (func(), bool, error) {
	return func() {}, true, nil
}
