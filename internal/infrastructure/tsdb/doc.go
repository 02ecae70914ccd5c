// Package tsdb provides InfluxDB connectivity for PBSG Core.
//
// It wraps the official influxdb-client-go v2 library with the patterns
// this service uses for connection management, point writing, and health
// monitoring.
//
// # Purpose
//
// This package handles time-series storage for:
//   - Applied transition points (which button, which rule, when)
//   - Active-button gauges per group
//   - Configuration size over time
//
// # Usage
//
//	cfg := config.InfluxDBConfig{
//	    URL:    "http://localhost:8086",
//	    Token:  "your-token",
//	    Org:    "pbsg",
//	    Bucket: "telemetry",
//	}
//
//	client, err := tsdb.Connect(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Record an applied transition
//	client.WriteTransition("lounge-scenes", "activate", "activated", "Evening", 0)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are logged via a callback.
// Connection and health check errors are returned directly.
//
// # Performance
//
// Writes are batched according to config.yaml settings (batch_size, flush_interval).
// This keeps telemetry off the command processor's critical path.
package tsdb
