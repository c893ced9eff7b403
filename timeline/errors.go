package timeline

import "errors"

var (
	ErrInvalidInput    = errors.New("timeline: invalid input")
	ErrNotFound        = errors.New("timeline: not found")
	ErrCaptureDisabled = errors.New("timeline: capture is unavailable")
	ErrArchiveDisabled = errors.New("timeline: archive is unavailable")
)
