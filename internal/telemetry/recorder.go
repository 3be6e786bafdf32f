package telemetry

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/conduit-core/internal/device"
	"github.com/nerrad567/conduit-core/internal/infrastructure/config"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultPingTimeout    = 5 * time.Second

	// millisecondsPerSecond converts seconds to milliseconds for the InfluxDB API.
	millisecondsPerSecond = 1000
)

// Recorder wraps the InfluxDB v2 client and records connect lifecycle
// metrics. It implements the device monitor contract.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Write operations are non-blocking and batched.
type Recorder struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	site     string

	connected bool
	mu        sync.RWMutex

	// onError is called when async write errors occur.
	onError func(err error)
}

// Connect establishes a connection to the InfluxDB server.
//
// It creates the client with token authentication, verifies connectivity
// with a ping, and configures the non-blocking write API with batching.
//
// Returns:
//   - *Recorder: Connected recorder ready for use
//   - error: ErrDisabled if telemetry is off, ErrConnectionFailed otherwise
func Connect(cfg config.InfluxDBConfig, site string) (*Recorder, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	flushInterval := cfg.FlushInterval
	if flushInterval <= 0 {
		flushInterval = 10
	}

	// #nosec G115 -- values validated above to be positive
	client := influxdb2.NewClientWithOptions(
		cfg.URL,
		cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(uint(batchSize)).
			SetFlushInterval(uint(flushInterval)*millisecondsPerSecond),
	)

	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
	defer cancel()

	healthy, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping failed: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	r := &Recorder{
		client:    client,
		writeAPI:  client.WriteAPI(cfg.Org, cfg.Bucket),
		site:      site,
		connected: true,
	}

	go r.handleWriteErrors(r.writeAPI.Errors())

	return r, nil
}

// handleWriteErrors processes async write errors from the WriteAPI.
func (r *Recorder) handleWriteErrors(errorsCh <-chan error) {
	for err := range errorsCh {
		r.mu.RLock()
		callback := r.onError
		r.mu.RUnlock()

		if callback != nil {
			callback(err)
		}
	}
}

// ConnectStarted is a no-op; only finished attempts are measured.
func (r *Recorder) ConnectStarted(device.Device, string, bool) {}

// ConnectFinished writes one point for the finished attempt. Non-blocking;
// the point is batched and sent asynchronously.
func (r *Recorder) ConnectFinished(d device.Device, attemptID string, mock bool, elapsed time.Duration, err error) {
	if !r.IsConnected() {
		return
	}

	fields := map[string]interface{}{
		"elapsed_ms": float64(elapsed.Milliseconds()),
		"attempt_id": attemptID,
	}
	if err != nil {
		fields["error"] = err.Error()
	}

	point := write.NewPoint(
		"connect_attempts",
		map[string]string{
			"site":    r.site,
			"device":  d.Name(),
			"mock":    strconv.FormatBool(mock),
			"success": strconv.FormatBool(err == nil),
		},
		fields,
		time.Now(),
	)

	r.writeAPI.WritePoint(point)
}

// Close flushes pending writes and shuts the client down.
func (r *Recorder) Close() error {
	if r.client == nil {
		return nil
	}

	r.mu.Lock()
	r.connected = false
	r.mu.Unlock()

	r.writeAPI.Flush()
	r.client.Close()
	return nil
}

// HealthCheck verifies the InfluxDB connection is alive.
func (r *Recorder) HealthCheck(ctx context.Context) error {
	if !r.IsConnected() {
		return ErrNotConnected
	}

	checkCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()

	healthy, err := r.client.Ping(checkCtx)
	if err != nil {
		return fmt.Errorf("influxdb health check failed: %w", err)
	}
	if !healthy {
		return fmt.Errorf("influxdb health check failed: server not healthy")
	}
	return nil
}

// IsConnected returns the last known connection state.
func (r *Recorder) IsConnected() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.connected
}

// SetOnError sets a callback invoked when async write errors occur.
//
// Since writes are non-blocking, errors are delivered asynchronously.
func (r *Recorder) SetOnError(callback func(err error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onError = callback
}

// Flush forces all pending writes to be sent. Blocks until buffered
// points are written; safe to call after Close (no-op).
func (r *Recorder) Flush() {
	if r.writeAPI == nil {
		return
	}
	if !r.IsConnected() {
		return
	}
	r.writeAPI.Flush()
}
