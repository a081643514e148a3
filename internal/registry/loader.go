package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileName is the registry document name looked up in each search directory.
const FileName = "models.json"

// ConfigError reports a registry that could not be found or parsed. Any
// operation that needs model resolution treats it as fatal.
type ConfigError struct {
	Searched []string
	Err      error
}

func (e *ConfigError) Error() string {
	if len(e.Searched) == 0 {
		return fmt.Sprintf("model registry: %v", e.Err)
	}
	return fmt.Sprintf("model registry (searched %s): %v", strings.Join(e.Searched, ", "), e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// ErrNotFound is returned when no registry file exists in any search location.
var ErrNotFound = errors.New("models.json not found; place it in the current directory or next to the binary")

// Loader locates and parses the registry once per process.
type Loader struct {
	// Path, when set, is the only location tried.
	Path string
	// ReadFile defaults to os.ReadFile.
	ReadFile func(string) ([]byte, error)
	// Executable defaults to os.Executable.
	Executable func() (string, error)

	mu     sync.Mutex
	cached *Registry
}

// NewLoader returns a Loader. An empty path selects the default search order.
func NewLoader(path string) *Loader {
	return &Loader{Path: path}
}

// SearchPaths returns the candidate files in lookup order.
func (l *Loader) SearchPaths() []string {
	if l.Path != "" {
		return []string{l.Path}
	}
	paths := []string{FileName}
	exe := l.Executable
	if exe == nil {
		exe = os.Executable
	}
	if p, err := exe(); err == nil {
		paths = append(paths, filepath.Join(filepath.Dir(p), FileName))
	}
	return paths
}

// Load returns the registry, reading it on first success and returning the
// cached value afterwards. Failures are not cached.
func (l *Loader) Load() (*Registry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cached != nil {
		return l.cached, nil
	}

	read := l.ReadFile
	if read == nil {
		read = os.ReadFile
	}

	paths := l.SearchPaths()
	var data []byte
	var found bool
	for _, p := range paths {
		b, err := read(p)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, &ConfigError{Searched: paths, Err: fmt.Errorf("reading %s: %w", p, err)}
		}
		data, found = b, true
		break
	}
	if !found {
		return nil, &ConfigError{Searched: paths, Err: ErrNotFound}
	}

	reg, err := Parse(data)
	if err != nil {
		return nil, &ConfigError{Searched: paths, Err: err}
	}
	l.cached = reg
	return reg, nil
}
