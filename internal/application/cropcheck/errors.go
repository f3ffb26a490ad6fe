package cropcheck

import "errors"

var (
	ErrImageRequired = errors.New("An image file is required")
	ErrNotConfigured = errors.New("Crop check is not configured")
	ErrModel         = errors.New("Crop analysis failed")
)
