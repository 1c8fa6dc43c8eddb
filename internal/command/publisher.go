package command

import (
	"context"
	"errors"

	"github.com/nerrad567/gray-logic-acbridge/internal/climate"
)

// MultiPublisher fans a state out to several publishers. Every publisher is
// called; their errors are joined.
type MultiPublisher []Publisher

// PublishState implements Publisher.
func (m MultiPublisher) PublishState(ctx context.Context, deviceID string, st climate.State) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.PublishState(ctx, deviceID, st); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
