package prompts

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// FileStore keeps one directory per category and one flat file per template.
// The file name is the template name and the contents are the raw body.
//
// Save is last-writer-wins. SaveAs relies on O_EXCL, so two writers racing
// for the same new name cannot both succeed on a local filesystem.
type FileStore struct {
	root string
}

// NewFileStore returns a store rooted at dir. Nothing is created until a
// category is first used.
func NewFileStore(root string) *FileStore {
	return &FileStore{root: root}
}

func (s *FileStore) EnsureCategory(category, body string) error {
	dir, err := s.categoryDir(category)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create category %q: %w", category, err)
	}
	if hasTemplates(dir) {
		return nil
	}
	err = createExclusive(filepath.Join(dir, DefaultName), body)
	if errors.Is(err, fs.ErrExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("seed category %q: %w", category, err)
	}
	return nil
}

func (s *FileStore) List(category string) ([]string, error) {
	dir, err := s.categoryDir(category)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list category %q: %w", category, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() && ValidName(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *FileStore) Load(category, name string) (string, error) {
	path, err := s.templatePath(category, name)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: %s/%s", ErrNotFound, category, name)
	}
	if err != nil {
		return "", fmt.Errorf("load %s/%s: %w", category, name, err)
	}
	return string(data), nil
}

func (s *FileStore) Save(category, name, body string) error {
	path, err := s.templatePath(category, name)
	if err != nil {
		return err
	}
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, category, name)
	}
	if err != nil {
		return fmt.Errorf("stat %s/%s: %w", category, name, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, category, name)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-"+name+"-*")
	if err != nil {
		return fmt.Errorf("save %s/%s: %w", category, name, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(body); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("save %s/%s: %w", category, name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("save %s/%s: %w", category, name, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("save %s/%s: %w", category, name, err)
	}
	return nil
}

func (s *FileStore) SaveAs(category, name, body string) error {
	path, err := s.templatePath(category, name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create category %q: %w", category, err)
	}
	err = createExclusive(path, body)
	if errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("%w: %s/%s", ErrCollision, category, name)
	}
	if err != nil {
		return fmt.Errorf("save as %s/%s: %w", category, name, err)
	}
	return nil
}

func (s *FileStore) categoryDir(category string) (string, error) {
	if !ValidName(category) {
		return "", fmt.Errorf("%w: category %q", ErrInvalidName, category)
	}
	return filepath.Join(s.root, category), nil
}

func (s *FileStore) templatePath(category, name string) (string, error) {
	dir, err := s.categoryDir(category)
	if err != nil {
		return "", err
	}
	if !ValidName(name) {
		return "", fmt.Errorf("%w: name %q", ErrInvalidName, name)
	}
	return filepath.Join(dir, name), nil
}

func hasTemplates(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if e.Type().IsRegular() && ValidName(e.Name()) {
			return true
		}
	}
	return false
}

// createExclusive writes body to a file that must not exist yet. A partially
// written file is removed so the name stays free.
func createExclusive(path, body string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(body); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return err
	}
	return nil
}
