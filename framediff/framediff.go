// Package framediff decides whether a newly captured frame shows the same
// scene as the last accepted one. Two independent metrics must both say
// "similar" before a frame is discarded: a whole-image structural
// similarity index, which misses small localized text edits, and a
// perceptual hash distance, which misses global brightness shifts.
package framediff

import (
	"fmt"
	"image"

	"github.com/corona10/goimagehash"
)

// Config holds the similarity thresholds.
type Config struct {
	// MSSIMThreshold is the minimum index for "similar". Default 0.70.
	MSSIMThreshold float64 `yaml:"mssim_threshold"`

	// MaxHashDistance is the largest Hamming distance still "similar".
	// Default 10.
	MaxHashDistance int `yaml:"max_hash_distance"`

	// ThumbWidth and ThumbHeight bound the thumbnail hashed for phash.
	// Default 960x600.
	ThumbWidth  int `yaml:"thumb_width"`
	ThumbHeight int `yaml:"thumb_height"`
}

func (c *Config) defaults() {
	if c.MSSIMThreshold == 0 {
		c.MSSIMThreshold = 0.70
	}
	if c.MaxHashDistance == 0 {
		c.MaxHashDistance = 10
	}
	if c.ThumbWidth <= 0 {
		c.ThumbWidth = 960
	}
	if c.ThumbHeight <= 0 {
		c.ThumbHeight = 600
	}
}

// Baseline is the last accepted frame of one monitor and its hash.
type Baseline struct {
	Frame image.Image
	Hash  *goimagehash.ImageHash
}

// Verdict is the outcome of comparing a frame to a baseline.
type Verdict struct {
	Duplicate bool
	MSSIM     float64
	Distance  int

	// Next is the baseline to keep if the frame is accepted.
	Next Baseline
}

// Gate applies both metrics with fixed thresholds.
type Gate struct {
	cfg Config
}

func NewGate(cfg Config) *Gate {
	cfg.defaults()
	return &Gate{cfg: cfg}
}

// Fingerprint builds the baseline for frame.
func (g *Gate) Fingerprint(frame image.Image) (Baseline, error) {
	h, err := PHash(Thumbnail(frame, g.cfg.ThumbWidth, g.cfg.ThumbHeight))
	if err != nil {
		return Baseline{}, err
	}
	return Baseline{Frame: frame, Hash: h}, nil
}

// Compare reports whether frame duplicates base. Frames of a different size
// are never duplicates. A zero baseline never matches.
func (g *Gate) Compare(base Baseline, frame image.Image) (Verdict, error) {
	next, err := g.Fingerprint(frame)
	if err != nil {
		return Verdict{}, err
	}
	v := Verdict{Next: next, Distance: -1}
	if base.Frame == nil || base.Hash == nil {
		return v, nil
	}

	score, ok := MSSIM(base.Frame, frame)
	if !ok {
		return v, nil
	}
	v.MSSIM = score

	d, err := base.Hash.Distance(next.Hash)
	if err != nil {
		return v, fmt.Errorf("framediff: hash distance: %w", err)
	}
	v.Distance = d

	v.Duplicate = score >= g.cfg.MSSIMThreshold && d <= g.cfg.MaxHashDistance
	return v, nil
}

// PHash is the 64-bit DCT perceptual hash of img.
func PHash(img image.Image) (*goimagehash.ImageHash, error) {
	h, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return nil, fmt.Errorf("framediff: phash: %w", err)
	}
	return h, nil
}
