package mock

import (
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

type mockFileInfo struct {
	name  string
	mode  os.FileMode
	size  int64
	isDir bool
}

func (m *mockFileInfo) Name() string       { return m.name }
func (m *mockFileInfo) Size() int64        { return m.size }
func (m *mockFileInfo) Mode() os.FileMode  { return m.mode }
func (m *mockFileInfo) ModTime() time.Time { return time.Now() }
func (m *mockFileInfo) IsDir() bool        { return m.isDir }
func (m *mockFileInfo) Sys() interface{}   { return nil }

// MockFileSystem implements the fs.FileSystem interface for testing. Paths are
// plain map keys; globs match against them with doublestar.
type MockFileSystem struct {
	Files map[string][]byte
	Dirs  map[string]bool
}

func NewMockFileSystem() *MockFileSystem {
	return &MockFileSystem{
		Files: make(map[string][]byte),
		Dirs:  make(map[string]bool),
	}
}

// AddFile registers a file so later globs can see it.
func (m *MockFileSystem) AddFile(path string, content []byte) {
	m.Files[path] = content
}

// AddDir registers a directory so later globs can see it.
func (m *MockFileSystem) AddDir(path string) {
	m.Dirs[path] = true
}

// RemoveFile drops a file, mimicking e.g. a clean step mutating the tree
// between target executions.
func (m *MockFileSystem) RemoveFile(path string) {
	delete(m.Files, path)
}

func (m *MockFileSystem) Stat(name string) (os.FileInfo, error) {
	if content, ok := m.Files[name]; ok {
		return &mockFileInfo{name: filepath.Base(name), size: int64(len(content))}, nil
	}
	if m.Dirs[name] {
		return &mockFileInfo{name: filepath.Base(name), mode: os.ModeDir, isDir: true}, nil
	}
	return nil, os.ErrNotExist
}

func (m *MockFileSystem) DoublestarGlob(pattern string) ([]string, error) {
	var matches []string
	for path := range m.Files {
		matched, err := doublestar.Match(pattern, path)
		if err != nil {
			return nil, err
		}
		if matched {
			matches = append(matches, path)
		}
	}
	for path := range m.Dirs {
		matched, err := doublestar.Match(pattern, path)
		if err != nil {
			return nil, err
		}
		if matched {
			matches = append(matches, path)
		}
	}
	sort.Strings(matches)
	return matches, nil
}
