package metrics

import "errors"

// Sentinel errors for metrics operations. Check with errors.Is().
var (
	// ErrNotConnected indicates the client is not connected to InfluxDB.
	ErrNotConnected = errors.New("metrics: not connected")

	// ErrConnectionFailed indicates the initial connection attempt failed.
	ErrConnectionFailed = errors.New("metrics: connection failed")

	// ErrDisabled indicates metrics are disabled in config.
	ErrDisabled = errors.New("metrics: disabled in configuration")
)
