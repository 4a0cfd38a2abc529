package temporal

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow/memory"
)

// OverflowPolicy selects how a result outside the representable range is
// reported.
type OverflowPolicy int

const (
	// OverflowError aborts the whole call with ErrArithmeticOverflow.
	OverflowError OverflowPolicy = iota
	// OverflowNull turns the overflowing position into a null.
	OverflowNull
)

func (p OverflowPolicy) String() string {
	switch p {
	case OverflowError:
		return "error"
	case OverflowNull:
		return "null"
	default:
		return "unknown"
	}
}

// ParseOverflowPolicy parses "error" or "null".
func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch s {
	case "", "error":
		return OverflowError, nil
	case "null":
		return OverflowNull, nil
	default:
		return OverflowError, fmt.Errorf("invalid overflow policy %q: must be error or null", s)
	}
}

// Option configures a single operation call.
type Option func(*callConfig)

type callConfig struct {
	mem      memory.Allocator
	overflow OverflowPolicy
}

func newCallConfig(opts []Option) callConfig {
	cfg := callConfig{
		mem:      memory.DefaultAllocator,
		overflow: OverflowError,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithAllocator sets the allocator used for the output array.
func WithAllocator(mem memory.Allocator) Option {
	return func(cfg *callConfig) {
		if mem != nil {
			cfg.mem = mem
		}
	}
}

// WithOverflowPolicy sets the overflow policy.
func WithOverflowPolicy(p OverflowPolicy) Option {
	return func(cfg *callConfig) {
		cfg.overflow = p
	}
}
