package session

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// FileProfile remembers the chosen identity in a file under the user's
// config directory, so the confirmation step can prefill it next session.
type FileProfile struct {
	path string
}

func NewFileProfile() (*FileProfile, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return nil, err
	}
	return &FileProfile{path: filepath.Join(dir, "chat-app", "username")}, nil
}

// NewFileProfileAt uses an explicit path. For tests.
func NewFileProfileAt(path string) *FileProfile {
	return &FileProfile{path: path}
}

func (p *FileProfile) Load() (string, error) {
	data, err := os.ReadFile(p.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func (p *FileProfile) Save(identity string) error {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return errors.New("refusing to save empty identity")
	}
	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(p.path, []byte(identity+"\n"), 0o600)
}
