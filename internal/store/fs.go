package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Compile-time interface check.
var _ ObjectSink = (*FSSink)(nil)

// FSSink writes partition objects to a local directory. It backs tests and
// bucketless local runs.
type FSSink struct {
	dir string
}

// NewFSSink creates an FSSink rooted at dir, creating it if needed.
func NewFSSink(dir string) (*FSSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output dir: %w", err)
	}
	return &FSSink{dir: dir}, nil
}

// Put writes body to <dir>/<key>. The write goes to a temp file first and
// is renamed into place, so a reader never observes a partial object.
func (s *FSSink) Put(_ context.Context, key string, body []byte) error {
	dst := filepath.Join(s.dir, key)

	tmp, err := os.CreateTemp(s.dir, "."+key+".tmp-*")
	if err != nil {
		return &SinkUnavailableError{Key: key, Err: err}
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &SinkUnavailableError{Key: key, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &SinkUnavailableError{Key: key, Err: err}
	}

	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return &SinkUnavailableError{Key: key, Err: err}
	}
	return nil
}
