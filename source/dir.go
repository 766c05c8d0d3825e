package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/arloliu/framepipe/types"
)

// Dir reads one unit per regular file in a directory, ordered by file name.
//
// Frame dumps such as frame_000000.png, frame_000001.png sort correctly
// because their numbers are zero padded.
type Dir struct {
	dir     string
	pattern string
}

var _ types.UnitSource = (*Dir)(nil)

// NewDir creates a directory source. An empty pattern matches every file.
func NewDir(dir, pattern string) *Dir {
	if pattern == "" {
		pattern = "*"
	}

	return &Dir{dir: dir, pattern: pattern}
}

// Units reads every matching file in name order.
func (d *Dir) Units(ctx context.Context) ([][]byte, error) {
	matches, err := filepath.Glob(filepath.Join(d.dir, d.pattern))
	if err != nil {
		return nil, fmt.Errorf("match %s: %w", d.pattern, err)
	}
	slices.Sort(matches)

	units := make([][]byte, 0, len(matches))
	for _, path := range matches {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		if !info.Mode().IsRegular() {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read unit %s: %w", filepath.Base(path), err)
		}
		units = append(units, data)
	}

	return units, nil
}
