package adapters

import (
	"os"
	"path/filepath"

	"usbnic-failover/internal/domain/interfaces"

	"github.com/spf13/afero"
)

// AferoFileSystem is a FileSystem on top of an afero.Fs
type AferoFileSystem struct {
	fs afero.Fs
}

// NewRealFileSystem creates a FileSystem backed by the OS
func NewRealFileSystem() interfaces.FileSystem {
	return NewAferoFileSystem(afero.NewOsFs())
}

// NewAferoFileSystem wraps fs. Tests pass afero.NewMemMapFs().
func NewAferoFileSystem(fs afero.Fs) interfaces.FileSystem {
	return &AferoFileSystem{fs: fs}
}

// ReadFile reads a file
func (a *AferoFileSystem) ReadFile(path string) ([]byte, error) {
	return afero.ReadFile(a.fs, path)
}

// WriteFile writes data to a file, creating missing parent directories
func (a *AferoFileSystem) WriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := a.fs.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return afero.WriteFile(a.fs, path, data, perm)
}

// Exists reports whether a file or directory exists
func (a *AferoFileSystem) Exists(path string) bool {
	ok, err := afero.Exists(a.fs, path)
	return err == nil && ok
}

// MkdirAll creates a directory tree
func (a *AferoFileSystem) MkdirAll(path string, perm os.FileMode) error {
	return a.fs.MkdirAll(path, perm)
}

// Remove deletes a file or empty directory
func (a *AferoFileSystem) Remove(path string) error {
	return a.fs.Remove(path)
}

// Rename moves oldpath over newpath
func (a *AferoFileSystem) Rename(oldpath, newpath string) error {
	return a.fs.Rename(oldpath, newpath)
}

// ListFiles returns the regular files of a directory
func (a *AferoFileSystem) ListFiles(path string) ([]string, error) {
	entries, err := afero.ReadDir(a.fs, path)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() {
			files = append(files, entry.Name())
		}
	}

	return files, nil
}
