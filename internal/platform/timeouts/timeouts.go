// Package timeouts defines timeout constants shared by the HTTP surface and
// background work.
package timeouts

import "time"

// ReadHeader limits how long an HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long an HTTP server waits for in-flight requests
// during graceful shutdown.
const Shutdown = 5 * time.Second

// Notify caps a single best-effort bridge-updated publish.
const Notify = 3 * time.Second
