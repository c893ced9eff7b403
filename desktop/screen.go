package desktop

import (
	"context"
	"fmt"
	"image"

	"github.com/kbinani/screenshot"
)

// Screen grabs monitors through the native screen capture APIs.
type Screen struct {
	PrimaryOnly bool
}

func (s *Screen) Grab(ctx context.Context) ([]*image.RGBA, error) {
	n := screenshot.NumActiveDisplays()
	if n <= 0 {
		return nil, ErrNoDisplay
	}
	if s.PrimaryOnly {
		n = 1
	}
	frames := make([]*image.RGBA, 0, n)
	for i := range n {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := screenshot.CaptureRect(screenshot.GetDisplayBounds(i))
		if err != nil {
			return nil, fmt.Errorf("desktop: capture display %d: %w", i, err)
		}
		frames = append(frames, img)
	}
	return frames, nil
}
