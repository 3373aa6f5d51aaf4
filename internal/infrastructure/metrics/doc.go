// Package metrics records authentication activity to InfluxDB.
//
// Writes are non-blocking and batched by the underlying client, so a slow
// or unavailable time-series backend never delays a login. Write failures
// surface asynchronously through an optional error callback.
package metrics
