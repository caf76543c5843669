package engine

import "errors"

// ErrConfigInvalid is returned at construction when the configuration
// violates an invariant (weights not summing to 1.0, out-of-range
// thresholds). No rating is ever attempted with an invalid config.
var ErrConfigInvalid = errors.New("engine config invalid")

// ErrOverallTimeout is returned when the whole rating call exceeds the
// outer timeout. No partial result accompanies it.
var ErrOverallTimeout = errors.New("rating timed out")
