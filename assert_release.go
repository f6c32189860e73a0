//go:build !debug

package impulse3d

// assert, lockBody, and unlockBody compile to no-ops outside -tags debug, so
// call sites that guard against cross-island body writes pay nothing in a
// release build; assert.go supplies the checked versions.
func assert(cond bool, format string, args ...any) {}

func lockBody(rec *bodyRecord) {}

func unlockBody(rec *bodyRecord) {}
