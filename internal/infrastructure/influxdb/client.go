package influxdb

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/switchbridge/internal/infrastructure/config"
)

const (
	connectPingTimeout = 10 * time.Second
	healthPingTimeout  = 5 * time.Second

	fallbackBatchSize     = 100
	fallbackFlushInterval = 10 * time.Second

	// queueSize bounds the points waiting for the write API.
	queueSize = 1024
)

// queued is one entry of the write queue: a point, or a flush request
// whose channel is closed once the write API has flushed.
type queued struct {
	point   *write.Point
	flushed chan struct{}
}

// Client records accessory characteristic changes in InfluxDB.
//
// Points go through a bounded queue to the batched write API and are never
// read back. The library's WritePoint blocks once its own buffer is full
// (server unreachable, retries pending); the queue keeps that off the
// caller, and points that do not fit are dropped and counted.
// All methods are safe for concurrent use.
type Client struct {
	influx influxdb2.Client
	points api.WriteAPI

	queue   chan queued
	drained chan struct{}
	dropped atomic.Uint64

	mu      sync.RWMutex
	open    bool
	onError func(err error)
}

// Connect pings the server and starts the write API for cfg.Bucket.
//
// ErrDisabled is returned when influxdb.enabled is false and
// ErrConnectionFailed when the server does not answer the ping.
func Connect(ctx context.Context, cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	influx := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, writeOptions(cfg))

	pingCtx, cancel := context.WithTimeout(ctx, connectPingTimeout)
	defer cancel()

	ok, err := influx.Ping(pingCtx)
	switch {
	case err != nil:
		influx.Close()
		return nil, fmt.Errorf("%w: ping %s: %w", ErrConnectionFailed, cfg.URL, err)
	case !ok:
		influx.Close()
		return nil, fmt.Errorf("%w: %s reports unhealthy", ErrConnectionFailed, cfg.URL)
	}

	c := &Client{
		influx:  influx,
		points:  influx.WriteAPI(cfg.Org, cfg.Bucket),
		queue:   make(chan queued, queueSize),
		drained: make(chan struct{}),
		open:    true,
	}
	go c.forwardErrors(c.points.Errors())
	go c.drain()

	return c, nil
}

// writeOptions maps the batching settings onto client options. Unset values
// fall back to 100 points and 10s.
func writeOptions(cfg config.InfluxDBConfig) *influxdb2.Options {
	batch := uint(fallbackBatchSize)
	if cfg.BatchSize > 0 {
		batch = uint(cfg.BatchSize)
	}
	flush := fallbackFlushInterval
	if cfg.FlushInterval > 0 {
		flush = time.Duration(cfg.FlushInterval) * time.Second
	}

	return influxdb2.DefaultOptions().
		SetBatchSize(batch).
		SetFlushInterval(uint(flush.Milliseconds()))
}

// forwardErrors hands asynchronous write failures to the OnError callback.
// It exits when the write API closes the channel.
func (c *Client) forwardErrors(errs <-chan error) {
	for err := range errs {
		c.mu.RLock()
		fn := c.onError
		c.mu.RUnlock()

		if fn != nil {
			fn(err)
		}
	}
}

// drain hands queued points to the write API until Close closes the queue.
func (c *Client) drain() {
	defer close(c.drained)
	for item := range c.queue {
		if item.point != nil {
			c.points.WritePoint(item.point)
		}
		if item.flushed != nil {
			c.points.Flush()
			close(item.flushed)
		}
	}
}

// enqueue adds a point without blocking. Points written after Close are
// ignored; points that do not fit are counted as dropped.
func (c *Client) enqueue(p *write.Point) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.open {
		return
	}

	select {
	case c.queue <- queued{point: p}:
	default:
		c.dropped.Add(1)
	}
}

// Dropped returns how many points were discarded because the queue was full.
func (c *Client) Dropped() uint64 {
	return c.dropped.Load()
}

// SetOnError installs the callback for failed background writes.
func (c *Client) SetOnError(fn func(err error)) {
	c.mu.Lock()
	c.onError = fn
	c.mu.Unlock()
}

// IsConnected reports whether Close has not been called yet.
func (c *Client) IsConnected() bool {
	if c == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.open
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	pingCtx, cancel := context.WithTimeout(ctx, healthPingTimeout)
	defer cancel()

	ok, err := c.influx.Ping(pingCtx)
	if err != nil {
		return fmt.Errorf("influxdb ping: %w", err)
	}
	if !ok {
		return fmt.Errorf("influxdb ping: server not healthy")
	}
	return nil
}

// Flush sends every queued and buffered point, blocking until done.
// No-op after Close.
func (c *Client) Flush() {
	done := make(chan struct{})

	c.mu.RLock()
	if !c.open {
		c.mu.RUnlock()
		return
	}
	c.queue <- queued{flushed: done}
	c.mu.RUnlock()

	<-done
}

// Close flushes buffered points and releases the client. Safe to call twice.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}

	c.mu.Lock()
	wasOpen := c.open
	if wasOpen {
		c.open = false
		close(c.queue)
	}
	c.mu.Unlock()

	if wasOpen {
		<-c.drained
		c.points.Flush()
		c.influx.Close()
	}
	return nil
}
