package bridge

import (
	"context"
	"sync"
	"time"
)

// Default announcer intervals.
const (
	DefaultAvailabilityInterval = 30 * time.Second
	DefaultStateInterval        = 60 * time.Second
	DefaultDiscoveryInterval    = 60 * time.Second
)

// announceTarget performs the announcer's jobs. Implemented by Bridge.
type announceTarget interface {
	announceAvailability(ctx context.Context, online bool)
	announceStates(ctx context.Context)
	announceDiscovery(ctx context.Context)
}

// Intervals configures how often each announcer job runs.
// Zero values fall back to the defaults.
type Intervals struct {
	Availability time.Duration
	State        time.Duration
	Discovery    time.Duration
}

func (i Intervals) withDefaults() Intervals {
	if i.Availability <= 0 {
		i.Availability = DefaultAvailabilityInterval
	}
	if i.State <= 0 {
		i.State = DefaultStateInterval
	}
	if i.Discovery <= 0 {
		i.Discovery = DefaultDiscoveryInterval
	}
	return i
}

// Announcer republishes availability, state and discovery on fixed
// intervals. Retained messages are lost if the broker restarts without
// persistence; the periodic jobs put them back.
type Announcer struct {
	target    announceTarget
	intervals Intervals

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
	started  bool
	mu       sync.Mutex
}

// NewAnnouncer creates an announcer. Call Start to begin.
func NewAnnouncer(target announceTarget, intervals Intervals) *Announcer {
	return &Announcer{
		target:    target,
		intervals: intervals.withDefaults(),
		done:      make(chan struct{}),
	}
}

// Start runs every job once, then keeps running them on their intervals
// until ctx is cancelled or Stop is called.
func (a *Announcer) Start(ctx context.Context) {
	a.mu.Lock()
	a.started = true
	a.mu.Unlock()

	a.wg.Add(1)
	go a.loop(ctx)
}

// Stop ends the loop and publishes offline availability for every device.
// Safe to call multiple times.
func (a *Announcer) Stop() {
	a.stopOnce.Do(func() {
		close(a.done)
		a.wg.Wait()

		a.mu.Lock()
		started := a.started
		a.mu.Unlock()
		if started {
			a.target.announceAvailability(context.Background(), false)
		}
	})
}

func (a *Announcer) loop(ctx context.Context) {
	defer a.wg.Done()

	availability := time.NewTicker(a.intervals.Availability)
	defer availability.Stop()
	states := time.NewTicker(a.intervals.State)
	defer states.Stop()
	discovery := time.NewTicker(a.intervals.Discovery)
	defer discovery.Stop()

	a.target.announceDiscovery(ctx)
	a.target.announceAvailability(ctx, true)
	a.target.announceStates(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-a.done:
			return
		case <-availability.C:
			a.target.announceAvailability(ctx, true)
		case <-states.C:
			a.target.announceStates(ctx)
		case <-discovery.C:
			a.target.announceDiscovery(ctx)
		}
	}
}
