package produce

import "errors"

var (
	ErrFeedUnavailable = errors.New("Failed to connect to the marketplace. Please check your connection.")
	ErrInvalidForm     = errors.New("Please fix the errors in the form")
)
