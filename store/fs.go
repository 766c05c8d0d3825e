package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/arloliu/framepipe/types"
)

// FS is a result store on a shared directory.
type FS struct {
	dir string
}

var (
	_ types.ResultStore  = (*FS)(nil)
	_ types.ResultWriter = (*FS)(nil)
)

// NewFS creates a store rooted at dir, creating it if needed.
func NewFS(dir string) (*FS, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}

	return &FS{dir: dir}, nil
}

// ArtifactPath returns the artifact file of a unit.
func (s *FS) ArtifactPath(sessionID string, seq int) string {
	return filepath.Join(s.dir, sessionID, fmt.Sprintf("unit_%06d.bin", seq))
}

// MetadataPath returns the metadata file of a unit.
func (s *FS) MetadataPath(sessionID string, seq int) string {
	return filepath.Join(s.dir, sessionID, fmt.Sprintf("unit_%06d.json", seq))
}

// PutArtifact writes the artifact unless it already exists.
func (s *FS) PutArtifact(_ context.Context, sessionID string, seq int, data []byte) error {
	return writeOnce(s.ArtifactPath(sessionID, seq), data)
}

// PutMetadata writes the metadata record unless it already exists.
func (s *FS) PutMetadata(_ context.Context, sessionID string, seq int, md types.Metadata) error {
	raw, err := json.Marshal(md)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	return writeOnce(s.MetadataPath(sessionID, seq), raw)
}

// Lookup reports which files exist for a unit.
func (s *FS) Lookup(_ context.Context, sessionID string, seq int) (types.StoreEntry, error) {
	path := s.ArtifactPath(sessionID, seq)
	entry := types.StoreEntry{ArtifactRef: path}

	if _, err := os.Stat(path); err == nil {
		entry.ArtifactPresent = true
	} else if !errors.Is(err, fs.ErrNotExist) {
		return types.StoreEntry{}, fmt.Errorf("stat artifact: %w: %w", types.ErrStoreUnavailable, err)
	}

	raw, err := os.ReadFile(s.MetadataPath(sessionID, seq))
	switch {
	case err == nil:
		entry.MetadataPresent = true
		entry.Metadata = raw
	case !errors.Is(err, fs.ErrNotExist):
		return types.StoreEntry{}, fmt.Errorf("read metadata: %w: %w", types.ErrStoreUnavailable, err)
	}

	return entry, nil
}

// ReadArtifact returns the artifact bytes of a unit.
func (s *FS) ReadArtifact(_ context.Context, sessionID string, seq int) ([]byte, error) {
	data, err := os.ReadFile(s.ArtifactPath(sessionID, seq))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("unit %d: %w", seq, types.ErrUnitMissing)
		}

		return nil, fmt.Errorf("read artifact: %w: %w", types.ErrStoreUnavailable, err)
	}

	return data, nil
}

// Purge removes the session directory.
func (s *FS) Purge(_ context.Context, sessionID string) error {
	return os.RemoveAll(filepath.Join(s.dir, sessionID))
}

// writeOnce writes data to a temporary file in the target directory and
// links it into place, so readers see either nothing or the whole file.
func writeOnce(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	// Link fails if the target exists; the first writer wins.
	if err := os.Link(tmp.Name(), path); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil
		}

		return fmt.Errorf("link %s: %w", filepath.Base(path), err)
	}

	return nil
}
