package worker

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

type DependencyReport struct {
	Command     string `json:"command"`
	WorkerFound bool   `json:"worker_found"`
	WorkerPath  string `json:"worker_path,omitempty"`
	Module      string `json:"module,omitempty"`
	ModuleDir   string `json:"module_dir,omitempty"`
	DirFound    bool   `json:"module_dir_found"`
}

func DependencyStatus(inv Invocation) DependencyReport {
	report := DependencyReport{
		Command: inv.Command,
		Module:  inv.Module,
	}
	if path, err := exec.LookPath(inv.Command); err == nil {
		report.WorkerFound = true
		report.WorkerPath = path
	}
	dir := strings.TrimSpace(inv.Dir)
	if dir == "" {
		dir = "."
	}
	if abs, err := filepath.Abs(dir); err == nil {
		report.ModuleDir = abs
		report.DirFound = isDir(abs)
	}
	return report
}

func CheckDependencies(inv Invocation) error {
	report := DependencyStatus(inv)
	if !report.WorkerFound {
		return fmt.Errorf("missing dependency: %s is not installed or not on PATH", inv.Command)
	}
	if !report.DirFound {
		return fmt.Errorf("worker directory %s does not exist", report.ModuleDir)
	}
	return nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
