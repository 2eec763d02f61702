package runstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"ytdl-web/internal/keygen"
	"ytdl-web/internal/model"
)

// Layout names every artifact of a job under the downloads and output roots.
// All paths use the sanitized key.
type Layout struct {
	DownloadsDir string
	OutputDir    string
}

func (l Layout) JobDir(key string) string {
	return filepath.Join(l.DownloadsDir, keygen.Sanitize(key))
}

func (l Layout) ArchivePath(key string) string {
	return l.JobDir(key) + ".zip"
}

func (l Layout) DebugLogPath(key string) string {
	return filepath.Join(l.OutputDir, keygen.Sanitize(key)+"_debug.txt")
}

func (l Layout) DownloadLogPath(key string) string {
	return filepath.Join(l.OutputDir, keygen.Sanitize(key)+"_download.txt")
}

func (l Layout) MetaPath(key string) string {
	return filepath.Join(l.OutputDir, keygen.Sanitize(key)+".json")
}

func (l Layout) LockDir(key string) string {
	return filepath.Join(l.OutputDir, keygen.Sanitize(key)+lockDirSuffix)
}

func Mkdir(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", path, err)
	}
	return nil
}

func WriteBytes(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create parent for %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(dir, ".ytdl-tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", path, err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = os.Remove(tmpPath)
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp file for %s: %w", path, err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("chmod temp file for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file for %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		cleanup()
		return fmt.Errorf("atomic rename for %s: %w", path, err)
	}
	return nil
}

func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON for %s: %w", path, err)
	}
	data = append(data, '\n')
	return WriteBytes(path, data)
}

func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse JSON %s: %w", path, err)
	}
	return nil
}

// ReadText returns the file contents and false when the file does not exist.
func ReadText(path string) (string, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("read file %s: %w", path, err)
	}
	return string(data), true, nil
}

func LoadJobMeta(l Layout, key string) (model.JobMeta, error) {
	var meta model.JobMeta
	if err := ReadJSON(l.MetaPath(key), &meta); err != nil {
		return model.JobMeta{}, err
	}
	return meta, nil
}

func SaveJobMeta(l Layout, meta model.JobMeta) error {
	return WriteJSON(l.MetaPath(meta.Key), meta)
}

// ListJobKeys returns the keys of every job with persisted metadata, oldest
// first by the timestamp suffix of the key.
func ListJobKeys(l Layout) ([]string, error) {
	entries, err := os.ReadDir(l.OutputDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("read output directory %s: %w", l.OutputDir, err)
	}

	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		key := strings.TrimSuffix(name, ".json")
		if key == "" || keygen.Sanitize(key) != key {
			continue
		}
		keys = append(keys, key)
	}
	sort.SliceStable(keys, func(i, j int) bool {
		ti, tj := keyTimestamp(keys[i]), keyTimestamp(keys[j])
		if ti != tj {
			return ti < tj
		}
		return keys[i] < keys[j]
	})
	return keys, nil
}

func keyTimestamp(key string) string {
	idx := strings.LastIndex(key, "_")
	if idx < 0 {
		return ""
	}
	ts := key[idx+1:]
	// left-pad so lexical order matches numeric order
	return strings.Repeat("0", max(20-len(ts), 0)) + ts
}
