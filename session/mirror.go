package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Mirror keeps a best-effort copy of the access token for secondary
// consumers outside the process. It is never read back by the session core.
type Mirror interface {
	Save(accessToken string) error
	Clear() error
}

// NopMirror discards everything.
type NopMirror struct{}

func (NopMirror) Save(string) error { return nil }
func (NopMirror) Clear() error      { return nil }

// FileMirror writes the token to a file readable only by the current user.
type FileMirror struct {
	Path string
}

func NewFileMirror(path string) *FileMirror {
	return &FileMirror{Path: path}
}

func (m *FileMirror) Save(accessToken string) error {
	if err := os.MkdirAll(filepath.Dir(m.Path), 0o700); err != nil {
		return fmt.Errorf("token mirror: %w", err)
	}
	tmp := m.Path + ".tmp"
	if err := os.WriteFile(tmp, []byte(accessToken), 0o600); err != nil {
		return fmt.Errorf("token mirror: %w", err)
	}
	if err := os.Rename(tmp, m.Path); err != nil {
		return fmt.Errorf("token mirror: %w", err)
	}
	return nil
}

func (m *FileMirror) Clear() error {
	if err := os.Remove(m.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("token mirror: %w", err)
	}
	return nil
}
