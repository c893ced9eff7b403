package scheduler

import (
	"image"

	"github.com/hazyhaar/rewind/framediff"
)

// baselines holds the last accepted frame per monitor. It is either stable,
// with one slot per monitor, or reinitializing, with no usable slots. Any
// change in monitor count replaces every slot at once.
type baselines struct {
	stable bool
	slots  []framediff.Baseline
}

// fits reports whether the slots can be compared against n frames.
func (b *baselines) fits(n int) bool {
	return b.stable && len(b.slots) == n
}

// reset makes frames the new baseline for every monitor. A frame that cannot
// be fingerprinted leaves its slot empty, which never matches.
func (b *baselines) reset(g *framediff.Gate, frames []*image.RGBA) error {
	slots := make([]framediff.Baseline, len(frames))
	var firstErr error
	for i, f := range frames {
		fp, err := g.Fingerprint(f)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		slots[i] = fp
	}
	b.slots = slots
	b.stable = true
	return firstErr
}

func (b *baselines) set(i int, fp framediff.Baseline) {
	b.slots[i] = fp
}

func (b *baselines) get(i int) framediff.Baseline {
	return b.slots[i]
}
