// Package tick implements the 32-bit millisecond tick arithmetic used
// throughout the scheduler: a reserved ETERNITY sentinel for "no deadline"
// and modular before/after comparison so a wrapped counter still orders
// correctly.
package tick

import "math"

// Tick is milliseconds since an arbitrary epoch, wrapping at 2^32.
type Tick uint32

// Eternity means "no deadline". Comparisons treat it as +infinity.
const Eternity Tick = math.MaxUint32

// lookBack bounds how far into the "past" a tick may be considered
// relative to another before wrap-around makes the comparison ambiguous.
const lookBack = 1 << 31

// IsSet reports whether t carries a real deadline.
func IsSet(t Tick) bool { return t != Eternity }

// IsBefore reports whether a is chronologically before b using the
// ±2^31 window: a is before b iff (b-a) mod 2^32 lies in (0, 2^31].
func IsBefore(a, b Tick) bool {
	d := uint32(b - a)
	return d > 0 && d <= lookBack
}

// IsLT is IsBefore guarded by IsSet on both operands — the form used
// whenever either tick might be Eternity.
func IsLT(a, b Tick) bool {
	return IsSet(a) && IsSet(b) && IsBefore(a, b)
}

// First returns the earlier of a and b, treating Eternity as +infinity.
func First(a, b Tick) Tick {
	switch {
	case !IsSet(a):
		return b
	case !IsSet(b):
		return a
	case IsBefore(a, b):
		return a
	default:
		return b
	}
}

// Add returns t+d, saturating to Eternity if either operand is unset or
// if the sum would wrap past the look-back window (i.e. would appear to
// be "before" t once wrapped).
func Add(t Tick, d uint32) Tick {
	if !IsSet(t) {
		return Eternity
	}
	sum := t + Tick(d)
	if d >= lookBack || IsBefore(sum, t) {
		return Eternity
	}
	return sum
}

// IsExpired reports whether t names a deadline that has passed as of now.
func IsExpired(t, now Tick) bool {
	return IsSet(t) && !IsBefore(now, t)
}
