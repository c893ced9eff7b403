// Package horosafe guards the points where user input reaches the
// filesystem: artifact names served over HTTP and uploaded image bodies.
package horosafe

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// ErrPathTraversal is returned when a user-supplied path escapes its base.
var ErrPathTraversal = errors.New("horosafe: path traversal detected")

// ErrTooLarge is returned by LimitedReadAll when the reader exceeds the cap.
var ErrTooLarge = errors.New("horosafe: input exceeds size limit")

// SafePath joins base and userInput and rejects results outside base.
func SafePath(base, userInput string) (string, error) {
	if strings.Contains(userInput, "..") {
		return "", ErrPathTraversal
	}
	root := filepath.Clean(base)
	joined := filepath.Join(root, filepath.Clean("/"+userInput))
	if joined != root && !strings.HasPrefix(joined, root+string(filepath.Separator)) {
		return "", ErrPathTraversal
	}
	return joined, nil
}

// ValidateFilename accepts a single path component made of ASCII letters,
// digits, '_', '-' and '.'. It rejects "." and "..".
func ValidateFilename(s string) error {
	if s == "" {
		return errors.New("horosafe: empty filename")
	}
	if len(s) > 255 {
		return errors.New("horosafe: filename too long")
	}
	if s == "." || s == ".." {
		return ErrPathTraversal
	}
	for _, r := range s {
		ok := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '_' || r == '-' || r == '.'
		if !ok {
			return fmt.Errorf("horosafe: invalid character %q in filename", r)
		}
	}
	return nil
}

// LimitedReadAll reads r fully unless it holds more than maxBytes.
func LimitedReadAll(r io.Reader, maxBytes int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w (%d bytes)", ErrTooLarge, maxBytes)
	}
	return data, nil
}
