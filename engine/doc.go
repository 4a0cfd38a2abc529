// Package engine provides parallel execution of temporal kernels.
// This package implements:
// - Worker pool with goroutines and per-task results
// - Chunked executor splitting large arrays by index range
package engine
