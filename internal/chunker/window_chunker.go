package chunker

import (
	"errors"
	"fmt"
)

const (
	DefaultSize    = 500
	DefaultOverlap = 50
)

// ErrInvalidWindow is returned when size and overlap would not advance the window.
var ErrInvalidWindow = errors.New("chunker: overlap must be >= 0 and less than size")

// Split cuts text into windows of size code points, each starting size-overlap
// after the previous one. The last window may be shorter.
func Split(text string, size, overlap int) ([]string, error) {
	if size <= 0 || overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w (size=%d, overlap=%d)", ErrInvalidWindow, size, overlap)
	}
	runes := []rune(text)
	if len(runes) == 0 {
		return nil, nil
	}
	step := size - overlap
	chunks := make([]string, 0, len(runes)/step+1)
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks, nil
}

// WindowChunker is a Chunker with a fixed window configuration.
type WindowChunker struct {
	size    int
	overlap int
}

// NewWindowChunker validates the window up front so Chunk never loops forever.
func NewWindowChunker(size, overlap int) (*WindowChunker, error) {
	if size == 0 {
		size = DefaultSize
	}
	if size <= 0 || overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w (size=%d, overlap=%d)", ErrInvalidWindow, size, overlap)
	}
	return &WindowChunker{size: size, overlap: overlap}, nil
}

func (c *WindowChunker) Chunk(text string) ([]string, error) {
	return Split(text, c.size, c.overlap)
}

func (c *WindowChunker) Size() int    { return c.size }
func (c *WindowChunker) Overlap() int { return c.overlap }
