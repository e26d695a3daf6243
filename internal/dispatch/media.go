package dispatch

import (
	"errors"
	"os"
	"path/filepath"
)

// stageMedia writes the payload into the scratch directory under its
// original filename and returns the staged path. The caller removes the
// file after the send attempt, success or not.
func stageMedia(dir string, m Media) (string, error) {
	name := filepath.Base(m.Name)
	if name == "" || name == "." || name == string(filepath.Separator) {
		return "", errors.New("media has no usable filename")
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, m.Data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}
