// Package influxdb records discovery history as time series: SSDP scan
// timing and device counts, device lifecycle events, and ContentDirectory
// request latency per media source.
//
// Writes go through the non-blocking batched API of influxdb-client-go v2;
// batch size and flush interval come from config.yaml, and asynchronous
// write failures surface through SetOnError. The whole package is optional:
// Connect returns ErrDisabled when the config section is off and callers
// skip the wiring.
package influxdb
