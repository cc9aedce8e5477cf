package uploads

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"resume-rag/internal/helper"
	"resume-rag/internal/models"
)

const stagingPrefix = ".staging-"

// Store keeps ingested PDFs under sanitised names so retrieval can find them
// again for rendering.
type Store struct {
	dir string
}

func New(dir string) (*Store, error) {
	if err := helper.CreateFolder(dir); err != nil {
		return nil, err
	}
	return &Store{dir: dir}, nil
}

func (s *Store) Dir() string {
	return s.dir
}

// Staged is a copy of an incoming file that is not visible in the store until
// Promote succeeds
type Staged struct {
	Name   string
	Path   string
	tmpDir string
	store  *Store
}

// Stage copies src into a private staging directory under its secure name
func (s *Store) Stage(src string) (*Staged, error) {
	name := helper.SecureFilename(filepath.Base(src))
	if name == "" || !helper.IsPDF(name) {
		return nil, fmt.Errorf("%w: %q is not a PDF file name", models.ErrInvalidFile, filepath.Base(src))
	}

	tmpDir, err := os.MkdirTemp(s.dir, stagingPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	st := &Staged{Name: name, Path: filepath.Join(tmpDir, name), tmpDir: tmpDir, store: s}
	if err := copyFile(src, st.Path); err != nil {
		st.Cleanup()
		return nil, err
	}
	return st, nil
}

// Promote moves the staged file into the store, replacing a file of the same
// name, and returns its final path
func (st *Staged) Promote() (string, error) {
	dst := filepath.Join(st.store.dir, st.Name)
	if err := os.Rename(st.Path, dst); err != nil {
		return "", fmt.Errorf("failed to store %s: %w", st.Name, err)
	}
	st.Path = dst
	return dst, nil
}

// Cleanup removes the staging directory; safe to call after Promote
func (st *Staged) Cleanup() {
	if err := os.RemoveAll(st.tmpDir); err != nil {
		log.Warn().Err(err).Str("dir", st.tmpDir).Msg("Failed to remove staging directory")
	}
}

// Resolve returns the path of a stored file. Names that would not survive
// sanitising are rejected so a filename from the index cannot escape the
// store.
func (s *Store) Resolve(filename string) (string, error) {
	if filename == "" || helper.SecureFilename(filename) != filename {
		return "", fmt.Errorf("%w: unsafe file name %q", models.ErrInvalidFile, filename)
	}
	path := filepath.Join(s.dir, filename)
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("resume %s not found: %w", filename, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %s is a directory", models.ErrInvalidFile, filename)
	}
	return path, nil
}

// List returns the paths of all stored PDFs sorted by name
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), stagingPrefix) || !helper.IsPDF(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(s.dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrInvalidFile, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	return out.Close()
}
