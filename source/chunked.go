package source

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/arloliu/framepipe/types"
)

// ErrInvalidChunkSize indicates a non-positive chunk size.
var ErrInvalidChunkSize = errors.New("chunk size must be positive")

// Chunked splits a reader into fixed-size units. The last unit may be shorter.
type Chunked struct {
	r    io.Reader
	size int
}

var _ types.UnitSource = (*Chunked)(nil)

// NewChunked creates a source reading size-byte units from r.
//
// The reader is consumed by the first Units call.
func NewChunked(r io.Reader, size int) *Chunked {
	return &Chunked{r: r, size: size}
}

// Units reads r to the end and returns its chunks.
func (c *Chunked) Units(ctx context.Context) ([][]byte, error) {
	if c.size <= 0 {
		return nil, ErrInvalidChunkSize
	}

	var units [][]byte
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		buf := make([]byte, c.size)
		n, err := io.ReadFull(c.r, buf)
		if n > 0 {
			units = append(units, buf[:n])
		}

		switch {
		case err == nil:
			continue
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			return units, nil
		default:
			return nil, fmt.Errorf("read unit %d: %w", len(units), err)
		}
	}
}
