//go:build !darwin && !linux

package device

import "errors"

var errUnsupported = errors.New("device: enumeration not supported on this platform")

func Probe() ([]Candidate, error) {
	return nil, errUnsupported
}

func BootDisk() (string, error) {
	return "", errUnsupported
}

func Unmount(string) error {
	return errUnsupported
}
