// Package telemetry ships connect metrics to InfluxDB.
//
// Recorder implements the device monitor contract over the InfluxDB v2
// non-blocking write API: every finished connect attempt becomes one
// point in the connect_attempts measurement, batched and flushed in the
// background. Writes never block or fail a connect; async write errors
// surface through an optional callback.
package telemetry
