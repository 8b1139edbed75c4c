// Package priority applies a session's requested scheduling priority to the
// goroutine that serves it.
//
// Each session worker runs on its own goroutine. On Linux the worker locks
// that goroutine to its OS thread and changes the thread's nice value, so the
// priority affects only that session. The thread is never unlocked: when the
// worker goroutine exits, the runtime discards the thread instead of reusing
// it with a modified nice value.
package priority

// Setter applies a nice value to the calling goroutine.
type Setter interface {
	Apply(priority int) error
}

// SetterFunc adapts a function to Setter.
type SetterFunc func(priority int) error

// Apply calls f.
func (f SetterFunc) Apply(priority int) error {
	return f(priority)
}

// Nop returns a Setter that accepts every priority and changes nothing.
func Nop() Setter {
	return SetterFunc(func(int) error { return nil })
}

// New returns the platform Setter when enabled is true and Nop otherwise.
func New(enabled bool) Setter {
	if !enabled {
		return Nop()
	}
	return platformSetter()
}
