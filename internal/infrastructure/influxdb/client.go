package influxdb

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gray-logic-acbridge/internal/infrastructure/config"
)

var (
	// ErrDisabled is returned by Connect when influxdb.enabled is false.
	// Callers treat it as "run without metrics".
	ErrDisabled = errors.New("influxdb: metrics disabled")

	ErrConnectionFailed = errors.New("influxdb: server unreachable")
	ErrNotConnected     = errors.New("influxdb: client closed")
)

const (
	connectTimeout = 10 * time.Second
	pingTimeout    = 5 * time.Second

	fallbackBatchSize    = 100
	fallbackFlushSeconds = 10
)

// Client is the optional metrics sink for the bridge.
//
// Points go through the batched, non-blocking WriteAPI. Write failures
// arrive later on the callback set with SetOnError. All methods are safe
// for concurrent use, and a nil or closed Client drops writes.
type Client struct {
	client influxdb2.Client
	writes api.WriteAPI

	open    atomic.Bool
	onError atomic.Pointer[func(error)]
}

// Connect builds the client and checks the server answers a ping.
//
// Parameters:
//   - ctx: bounds the initial ping, itself capped at 10s
//   - cfg: the influxdb section of config.yaml
//
// Returns:
//   - *Client: ready for WriteCommandMetric and WriteStateMetric
//   - error: ErrDisabled, or ErrConnectionFailed wrapping the cause
func Connect(ctx context.Context, cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	size, flushMillis := batchSettings(cfg)
	opts := influxdb2.DefaultOptions().SetBatchSize(size).SetFlushInterval(flushMillis)
	raw := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)

	if err := ping(ctx, raw, connectTimeout); err != nil {
		raw.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, cfg.URL, err)
	}

	c := &Client{client: raw, writes: raw.WriteAPI(cfg.Org, cfg.Bucket)}
	c.open.Store(true)
	go c.drainErrors()
	return c, nil
}

func ping(ctx context.Context, raw influxdb2.Client, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	healthy, err := raw.Ping(ctx)
	switch {
	case err != nil:
		return err
	case !healthy:
		return errors.New("server reports unhealthy")
	}
	return nil
}

// batchSettings returns the batch size and flush interval (ms), using
// fallbacks for unset values.
func batchSettings(cfg config.InfluxDBConfig) (size, flushMillis uint) {
	batch, seconds := cfg.BatchSize, cfg.FlushInterval
	if batch <= 0 {
		batch = fallbackBatchSize
	}
	if seconds <= 0 {
		seconds = fallbackFlushSeconds
	}
	// #nosec G115 -- both positive
	return uint(batch), uint(seconds) * 1000
}

// drainErrors ends when the write API's error channel closes on Close.
func (c *Client) drainErrors() {
	for err := range c.writes.Errors() {
		if fn := c.onError.Load(); fn != nil {
			(*fn)(err)
		}
	}
}

// SetOnError registers the callback for asynchronous write failures.
func (c *Client) SetOnError(fn func(err error)) {
	c.onError.Store(&fn)
}

// IsConnected reports whether the client is open.
func (c *Client) IsConnected() bool {
	return c != nil && c.open.Load()
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	if err := ping(ctx, c.client, pingTimeout); err != nil {
		return fmt.Errorf("influxdb health check: %w", err)
	}
	return nil
}

// Flush blocks until buffered points are sent.
func (c *Client) Flush() {
	if c.IsConnected() {
		c.writes.Flush()
	}
}

// Close flushes what is buffered and releases the client. Safe on nil
// and safe to call twice.
func (c *Client) Close() error {
	if c == nil || !c.open.CompareAndSwap(true, false) {
		return nil
	}
	c.writes.Flush()
	c.client.Close()
	return nil
}

func (c *Client) writePoint(p *write.Point) {
	if c.IsConnected() {
		c.writes.WritePoint(p)
	}
}
