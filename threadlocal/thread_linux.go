//go:build linux

package threadlocal

import (
	"golang.org/x/sys/unix"
)

func osThreadID() int {
	return unix.Gettid()
}

// setAffinity binds the calling OS thread to cpu.
func setAffinity(cpu int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)
	return unix.SchedSetaffinity(0, &set)
}
