package runstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	lockDirSuffix = ".lock"
	lockOwnerFile = "owner.json"
)

type JobLock struct {
	lockDir string
}

type lockOwner struct {
	PID       int    `json:"pid"`
	CreatedAt string `json:"created_at"`
	Hostname  string `json:"hostname,omitempty"`
}

// AcquireJobLock fails if another runner already holds the key.
func AcquireJobLock(l Layout, key string) (JobLock, error) {
	if strings.TrimSpace(key) == "" {
		return JobLock{}, fmt.Errorf("job key is required")
	}
	if err := Mkdir(l.OutputDir); err != nil {
		return JobLock{}, err
	}

	lockDir := l.LockDir(key)
	if err := os.Mkdir(lockDir, 0o755); err != nil {
		if os.IsExist(err) {
			ownerPath := filepath.Join(lockDir, lockOwnerFile)
			var owner lockOwner
			if readErr := ReadJSON(ownerPath, &owner); readErr == nil && owner.PID > 0 && owner.CreatedAt != "" {
				return JobLock{}, fmt.Errorf(
					"job is locked: %s (pid=%d created_at=%s host=%s)",
					key, owner.PID, owner.CreatedAt, owner.Hostname,
				)
			}
			return JobLock{}, fmt.Errorf("job is locked: %s", key)
		}
		return JobLock{}, fmt.Errorf("acquire job lock for %s: %w", key, err)
	}

	owner := lockOwner{
		PID:       os.Getpid(),
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Hostname:  hostnameOrUnknown(),
	}
	if err := WriteJSON(filepath.Join(lockDir, lockOwnerFile), owner); err != nil {
		_ = os.Remove(lockDir)
		return JobLock{}, fmt.Errorf("write job lock owner for %s: %w", key, err)
	}

	return JobLock{lockDir: lockDir}, nil
}

func (l JobLock) Release() error {
	if strings.TrimSpace(l.lockDir) == "" {
		return nil
	}
	_ = os.Remove(filepath.Join(l.lockDir, lockOwnerFile))
	if err := os.Remove(l.lockDir); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("release job lock %s: %w", l.lockDir, err)
	}
	return nil
}

func hostnameOrUnknown() string {
	host, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	host = strings.TrimSpace(host)
	if host == "" {
		return "unknown"
	}
	return host
}
