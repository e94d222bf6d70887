package sched

// State is the atomic flag word carried by both Task and Tasklet, per
// spec.md §3. Not every flag applies to both: Tasklet never carries
// SLEEPING, GLOBAL, SHARED_WQ or the WOKEN_* reason bits beyond the
// generic "woken" notion — it only cares that it was woken at all.
type State uint32

const (
	StateSleeping State = 1 << iota
	StateRunning
	StateQueued
	StateGlobal
	StateKilled
	StateSharedWQ
	StateWokenTimer
	StateWokenIO
	StateWokenMsg
	StateWokenOther
	StateWokenSignal
	StateSelfWaking
	StateInList // tasklet-only: linked into one of the class lists
)

// wokenMask is the union of every WOKEN_* reason bit.
const wokenMask = StateWokenTimer | StateWokenIO | StateWokenMsg | StateWokenOther | StateWokenSignal

// Has reports whether every bit in mask is set.
func (s State) Has(mask State) bool { return s&mask == mask }

// Any reports whether at least one bit in mask is set.
func (s State) Any(mask State) bool { return s&mask != 0 }

// WasWoken reports whether any WOKEN_* reason bit is present — the
// condition the run-loop uses to decide whether to re-wake instead of
// passively re-queue after a task returns from Process (spec.md §4.2
// step 6: "WOKEN_ANY in state ⇒ re-wake").
func (s State) WasWoken() bool { return s.Any(wokenMask) }
