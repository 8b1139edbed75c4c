//go:build linux

package priority

import (
	"runtime"

	"golang.org/x/sys/unix"
)

type threadSetter struct{}

func platformSetter() Setter {
	return threadSetter{}
}

// Apply pins the goroutine to its thread and sets the thread's nice value.
// The pin is intentionally never released.
func (threadSetter) Apply(priority int) error {
	runtime.LockOSThread()
	return unix.Setpriority(unix.PRIO_PROCESS, unix.Gettid(), priority)
}

// Current returns the nice value of the calling thread.
func Current() (int, error) {
	// getpriority(2) returns 20-nice on Linux to avoid negative results.
	v, err := unix.Getpriority(unix.PRIO_PROCESS, unix.Gettid())
	if err != nil {
		return 0, err
	}
	return 20 - v, nil
}
