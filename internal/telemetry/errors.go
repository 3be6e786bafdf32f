package telemetry

import "errors"

var (
	// ErrDisabled is returned when connecting with telemetry disabled in config.
	ErrDisabled = errors.New("telemetry: influxdb is disabled in configuration")

	// ErrConnectionFailed is returned when the InfluxDB server cannot be reached.
	ErrConnectionFailed = errors.New("telemetry: influxdb connection failed")

	// ErrNotConnected is returned for operations on a closed recorder.
	ErrNotConnected = errors.New("telemetry: not connected")
)
