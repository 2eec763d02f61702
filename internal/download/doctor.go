package download

import (
	"context"
	"os"
	"slices"
	"strings"

	"ytdl-web/internal/runstore"
	"ytdl-web/internal/worker"
)

type DoctorOptions struct {
	Worker worker.Invocation
	Dirs   map[string]string
	// Ping checks the job store backend; nil skips the check.
	Ping func(ctx context.Context) error
}

type DoctorResult struct {
	OK     bool          `json:"ok"`
	Checks []DoctorCheck `json:"checks"`
}

type DoctorCheck struct {
	Name    string `json:"name"`
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// Doctor runs preflight checks: worker resolvable, folders writable, store
// reachable.
func Doctor(ctx context.Context, opts DoctorOptions) DoctorResult {
	checks := make([]DoctorCheck, 0, len(opts.Dirs)+3)

	dep := worker.DependencyStatus(opts.Worker)
	checks = append(checks, DoctorCheck{
		Name:    "dependency:worker",
		OK:      dep.WorkerFound,
		Message: dependencyMessage(dep.WorkerFound, dep.WorkerPath, opts.Worker.Command),
	})
	dirMessage := "found " + dep.ModuleDir
	if !dep.DirFound {
		dirMessage = "missing " + dep.ModuleDir
	}
	checks = append(checks, DoctorCheck{
		Name:    "directory:module",
		OK:      dep.DirFound,
		Message: dirMessage,
	})

	for _, name := range sortedKeys(opts.Dirs) {
		ok, msg := ensureWritableDir(opts.Dirs[name])
		checks = append(checks, DoctorCheck{Name: "directory:" + name, OK: ok, Message: msg})
	}

	if opts.Ping != nil {
		check := DoctorCheck{Name: "store", OK: true, Message: "reachable"}
		if err := opts.Ping(ctx); err != nil {
			check.OK = false
			check.Message = err.Error()
		}
		checks = append(checks, check)
	}

	ok := true
	for _, c := range checks {
		if !c.OK {
			ok = false
			break
		}
	}
	return DoctorResult{OK: ok, Checks: checks}
}

func dependencyMessage(ok bool, path, name string) string {
	if strings.TrimSpace(name) == "" {
		return "worker command is not configured"
	}
	if ok {
		return name + " found at " + path
	}
	return name + " not found on PATH"
}

func ensureWritableDir(path string) (bool, string) {
	if strings.TrimSpace(path) == "" {
		return false, "empty path"
	}
	if err := runstore.Mkdir(path); err != nil {
		return false, err.Error()
	}
	f, err := os.CreateTemp(path, "ytdl-web-check-*.tmp")
	if err != nil {
		return false, err.Error()
	}
	_ = f.Close()
	_ = os.Remove(f.Name())
	return true, "writable"
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
