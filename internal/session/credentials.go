package session

import (
	"os"
	"path/filepath"
	"strings"

	"herald/pkg/logx"
)

// Credentials persists one opaque session token per account under dir,
// one "<sessionName>.session" file each. Tokens are never interpreted.
type Credentials struct {
	dir string
	log logx.Logger
}

func NewCredentials(dir string, log logx.Logger) (*Credentials, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	return &Credentials{dir: dir, log: log}, nil
}

// Load returns the stored token for name. Any read failure is treated as
// "absent": the caller falls back to a fresh login.
func (c *Credentials) Load(name string) (string, bool) {
	b, err := os.ReadFile(c.path(name))
	if err != nil {
		return "", false
	}
	token := strings.TrimSpace(string(b))
	if token == "" {
		return "", false
	}
	return token, true
}

// Save writes the token atomically (tmp + rename) so a crash can never
// leave a partially written record behind.
func (c *Credentials) Save(name, token string) error {
	path := c.path(name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(token), 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	c.log.Debug("credential saved", logx.String("session", name))
	return nil
}

func (c *Credentials) path(name string) string {
	// Session names are generated internally, but never trust them as path
	// components.
	return filepath.Join(c.dir, filepath.Base(name)+".session")
}
