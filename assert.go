//go:build debug

package impulse3d

import "fmt"

// assert panics with a formatted message when cond is false. Compiled only
// under -tags debug: a release build pays nothing for these checks, a debug
// build catches invariant violations (pool partition corruption,
// cross-island writes, lock-word misuse) at the point they happen instead of
// as a confusing downstream symptom.
func assert(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf("impulse3d: assertion failed: "+format, args...))
	}
}

// lockBody marks rec as being written by the current solve pass. Islands
// partition bodies so two concurrent island solves should never touch the
// same body; this only checks that invariant in debug builds rather than
// enforcing it with a real mutex on the hot path.
func lockBody(rec *bodyRecord) {
	assert(rec.lock == 0, "body %d already locked by a concurrent island solve", rec.self)
	rec.lock = 1
}

func unlockBody(rec *bodyRecord) {
	assert(rec.lock == 1, "body %d unlocked without a matching lock", rec.self)
	rec.lock = 0
}
