package realtime

import (
	"context"
	"errors"
)

// Publisher is the shape shared by every transport in this package.
type Publisher interface {
	Publish(ctx context.Context, topic, event string, payload any) error
}

type Noop struct{}

func (Noop) Publish(context.Context, string, string, any) error { return nil }

// Multi publishes to every transport and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, topic, event string, payload any) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, topic, event, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
