package live

import "errors"

var (
	ErrClosed       = errors.New("live view is closed")
	ErrSubscription = errors.New("live subscription failed")
)
