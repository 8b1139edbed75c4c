//go:build !linux

package priority

// Per-thread nice values are only supported on Linux; elsewhere the
// priority is validated but not applied.
func platformSetter() Setter {
	return Nop()
}

// Current always reports 0 on platforms without per-thread priorities.
func Current() (int, error) {
	return 0, nil
}
