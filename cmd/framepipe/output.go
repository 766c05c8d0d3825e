package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/arloliu/framepipe"
)

// outputWriter is a framepipe.Writer that must be closed after the session.
type outputWriter interface {
	framepipe.Writer
	Close() error
}

// fileWriter concatenates every unit into one file.
type fileWriter struct {
	f   *os.File
	buf *bufio.Writer
}

func newFileWriter(path string) (*fileWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create output: %w", err)
	}

	return &fileWriter{f: f, buf: bufio.NewWriter(f)}, nil
}

func (w *fileWriter) WriteUnit(_ context.Context, entry framepipe.OutputEntry) error {
	_, err := w.buf.Write(entry.Data)
	return err
}

func (w *fileWriter) Close() error {
	if err := w.buf.Flush(); err != nil {
		_ = w.f.Close()
		return err
	}

	return w.f.Close()
}

// dirWriter writes each unit to its own numbered file.
type dirWriter struct {
	dir string
	ext string
}

func newDirWriter(dir, ext string) (*dirWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	return &dirWriter{dir: dir, ext: ext}, nil
}

func (w *dirWriter) path(seq int) string {
	return filepath.Join(w.dir, fmt.Sprintf("unit_%06d%s", seq, w.ext))
}

func (w *dirWriter) WriteUnit(_ context.Context, entry framepipe.OutputEntry) error {
	return os.WriteFile(w.path(entry.Seq), entry.Data, 0o644) //nolint:gosec // output files are meant to be readable
}

func (w *dirWriter) Close() error {
	return nil
}
