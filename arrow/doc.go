// Package arrow provides Apache Arrow integration for HieraTime-Engine.
// This package implements:
// - Arrow IPC codec with optional body compression
// - Request/response record layout for the compute transports
// - JSON column converter for the CLI and tools
package arrow
