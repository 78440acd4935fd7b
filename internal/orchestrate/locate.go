package orchestrate

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// WriterBinary is the privileged writer's executable name.
const WriterBinary = "bmapflash-writer"

// LocateWriter finds the privileged writer binary: an explicit override
// wins, then a sibling of the running executable, then PATH.
func LocateWriter(override string) (string, error) {
	if override != "" {
		if _, err := os.Stat(override); err != nil {
			return "", fmt.Errorf("writer binary %s: %w", override, err)
		}
		return override, nil
	}

	if self, err := os.Executable(); err == nil {
		sibling := filepath.Join(filepath.Dir(self), WriterBinary)
		if fi, err := os.Stat(sibling); err == nil && !fi.IsDir() {
			return sibling, nil
		}
	}

	path, err := exec.LookPath(WriterBinary)
	if err != nil {
		return "", fmt.Errorf("writer binary %s not found: %w", WriterBinary, err)
	}
	return path, nil
}
