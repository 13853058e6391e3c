package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// File names inside a session directory.
const (
	BufferFile  = "buffer.wav"
	SessionFile = "session.yaml"
	MusicDir    = "cut"
)

// dirNameLayout names new session directories so that they sort chronologically.
const dirNameLayout = "2006-01-02-15-04-05"

// ErrSessionNotFound is returned when a session directory does not exist or
// has no session file.
var ErrSessionNotFound = errors.New("session not found")

var validate = validator.New()

// Path is the directory of one recorded session.
type Path string

// NewPath returns the path of a new session directory below outputDir,
// named after the capture start time.
func NewPath(outputDir string, startedAt time.Time) Path {
	return Path(filepath.Join(outputDir, startedAt.Format(dirNameLayout)))
}

// Name is the base name of the session directory.
func (p Path) Name() string {
	return filepath.Base(string(p))
}

// SessionFile is the YAML descriptor of the session.
func (p Path) SessionFile() string {
	return filepath.Join(string(p), SessionFile)
}

// BufferFile is the WAV capture of the session.
func (p Path) BufferFile() string {
	return filepath.Join(string(p), BufferFile)
}

// MusicDir is the root below which cut songs are written.
func (p Path) MusicDir() string {
	return filepath.Join(string(p), MusicDir)
}

// Load reads and validates the session descriptor of p.
func Load(p Path) (*Session, error) {
	data, err := os.ReadFile(p.SessionFile())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, p)
		}
		return nil, fmt.Errorf("read session file %s: %w", p.SessionFile(), err)
	}

	var s Session
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode session file %s: %w", p.SessionFile(), err)
	}
	if err := validate.Struct(&s); err != nil {
		return nil, fmt.Errorf("invalid session file %s: %w", p.SessionFile(), err)
	}
	if len(s.Timestamps) < len(s.Songs) {
		return nil, fmt.Errorf("invalid session file %s: %d timestamps for %d songs", p.SessionFile(), len(s.Timestamps), len(s.Songs))
	}
	return &s, nil
}

// Save writes the session descriptor of p, creating the directory if needed.
func Save(p Path, s *Session) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := os.MkdirAll(string(p), 0o750); err != nil {
		return fmt.Errorf("create session directory %s: %w", p, err)
	}
	if err := os.WriteFile(p.SessionFile(), data, 0o600); err != nil {
		return fmt.Errorf("write session file %s: %w", p.SessionFile(), err)
	}
	return nil
}

// Manager lists the sessions recorded below a root directory.
type Manager struct {
	root string
}

// NewManager creates a Manager for the sessions below root.
func NewManager(root string) *Manager {
	return &Manager{root: root}
}

// Root returns the directory the manager scans.
func (m *Manager) Root() string {
	return m.root
}

// List returns all session directories, newest first. Directories without a
// session file are skipped.
func (m *Manager) List() ([]Path, error) {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		return nil, fmt.Errorf("read sessions directory %s: %w", m.root, err)
	}

	var paths []Path
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if p := Path(filepath.Join(m.root, e.Name())); p.exists() {
			paths = append(paths, p)
		}
	}
	sort.Slice(paths, func(i, j int) bool { return paths[i] > paths[j] })
	return paths, nil
}

// Get returns the session directory with the given name.
func (m *Manager) Get(name string) (Path, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return "", fmt.Errorf("%w: %q", ErrSessionNotFound, name)
	}
	p := Path(filepath.Join(m.root, name))
	if !p.exists() {
		return "", fmt.Errorf("%w: %q", ErrSessionNotFound, name)
	}
	return p, nil
}

// exists reports whether p holds a session file.
func (p Path) exists() bool {
	info, err := os.Stat(p.SessionFile())
	return err == nil && info.Mode().IsRegular()
}
