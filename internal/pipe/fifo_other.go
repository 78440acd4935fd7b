//go:build !unix

package pipe

import "errors"

var errUnsupported = errors.New("pipe: named pipes not supported on this platform")

func Create(string) error {
	return errUnsupported
}

func Remove(string) error {
	return nil
}

func Exists(string) bool {
	return false
}
