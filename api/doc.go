// Package api exposes the temporal compute engine over a length-prefixed
// TCP protocol carrying Arrow IPC payloads, together with its Prometheus
// metrics.
package api
