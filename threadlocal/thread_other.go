//go:build !linux

package threadlocal

import "errors"

func osThreadID() int {
	return 0
}

func setAffinity(int) error {
	return errors.ErrUnsupported
}
