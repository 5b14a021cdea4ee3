package fs

import (
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
)

// FileSystem interface for dependency injection and improved testability
type FileSystem interface {
	Stat(name string) (os.FileInfo, error)
	DoublestarGlob(pattern string) ([]string, error)
}

// RealFileSystem implements FileSystem interface using actual OS calls
type RealFileSystem struct{}

func (RealFileSystem) Stat(name string) (os.FileInfo, error) { return os.Stat(name) }

// DoublestarGlob expands a doublestar pattern relative to the working
// directory. Matches come back in lexical order with OS-native separators.
func (RealFileSystem) DoublestarGlob(pattern string) ([]string, error) {
	matches, err := doublestar.FilepathGlob(filepath.ToSlash(pattern))
	if err != nil {
		return nil, err
	}
	return matches, nil
}
