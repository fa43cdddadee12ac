package influxdb

import "errors"

// Sentinel errors; match with errors.Is. ErrDisabled lets the caller treat
// a disabled time-series section as "skip wiring" rather than a failure.
var (
	ErrNotConnected     = errors.New("influxdb: not connected")
	ErrConnectionFailed = errors.New("influxdb: connection failed")
	ErrWriteFailed      = errors.New("influxdb: write failed")
	ErrDisabled         = errors.New("influxdb: disabled in configuration")
)
