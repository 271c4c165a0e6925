package slsi

import (
	"math"
	"time"

	"golang.org/x/exp/constraints"
)

// clamp limits val to [lo, hi].
func clamp[T constraints.Integer](val, lo, hi T) T {
	if val < lo {
		return lo
	}
	if val > hi {
		return hi
	}
	return val
}

// millis16 converts a duration to the firmware's 16 bit millisecond fields.
func millis16(d time.Duration) uint16 {
	return uint16(clamp(d/time.Millisecond, 0, math.MaxUint16))
}

// millis32 converts a duration to the firmware's 32 bit millisecond fields.
func millis32(d time.Duration) uint32 {
	return uint32(clamp(d/time.Millisecond, 0, math.MaxUint32))
}

//go:inline
func b2u16(b bool) uint16 {
	if b {
		return 1
	}
	return 0
}
