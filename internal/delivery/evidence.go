package delivery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// EvidenceStore keeps proof-of-delivery documents.
type EvidenceStore interface {
	Save(ctx context.Context, name string, r io.Reader) (string, error)
	Delete(ctx context.Context, ref string) error
}

// LocalEvidenceStore writes evidence files under a directory.
type LocalEvidenceStore struct {
	dir string
}

// NewLocalEvidenceStore constructs the store, creating dir when missing.
func NewLocalEvidenceStore(dir string) (*LocalEvidenceStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("evidence: directory required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("evidence: create dir: %w", err)
	}
	return &LocalEvidenceStore{dir: dir}, nil
}

// Save stores r under a random name keeping the original extension and
// returns the stored file name as reference.
func (s *LocalEvidenceStore) Save(ctx context.Context, name string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	ext := strings.ToLower(filepath.Ext(filepath.Base(name)))
	if len(ext) > 10 {
		ext = ""
	}
	ref := uuid.NewString() + ext
	f, err := os.OpenFile(filepath.Join(s.dir, ref), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return "", fmt.Errorf("evidence: create: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("evidence: write: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("evidence: close: %w", err)
	}
	return ref, nil
}

// Delete removes a stored file. A missing file is not an error.
func (s *LocalEvidenceStore) Delete(_ context.Context, ref string) error {
	if ref == "" || ref != filepath.Base(ref) {
		return fmt.Errorf("evidence: invalid reference %q", ref)
	}
	if err := os.Remove(filepath.Join(s.dir, ref)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("evidence: delete: %w", err)
	}
	return nil
}
