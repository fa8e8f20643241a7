package script

import "errors"

// ErrHostClosed is returned when running code on a closed host.
var ErrHostClosed = errors.New("script host is closed")
