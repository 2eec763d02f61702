package download

import (
	"archive/zip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"ytdl-web/internal/jobstore"
	"ytdl-web/internal/model"
	"ytdl-web/internal/progress"
	"ytdl-web/internal/runstore"
	"ytdl-web/internal/worker"
)

const fakeWorkerScript = `#!/usr/bin/env bash
set -euo pipefail
out=""
url=""
while [ $# -gt 0 ]; do
  case "$1" in
    --output) out="$2"; shift 2 ;;
    --*) shift ;;
    *) url="$1"; shift ;;
  esac
done
dir="$(dirname "$out")"
echo "[debug] System config: []"
echo "[debug] Command-line args"
echo "[youtube] abc: Downloading webpage for $url"
echo "[download] Destination: $dir/Clip_abc.mp4"
printf '[download]  50.0%% of 1.00MiB at 1.00MiB/s ETA 00:01\r'
echo "payload" > "$dir/Clip_abc.mp4"
printf '[download] 100.0%% of 1.00MiB at 1.00MiB/s ETA 00:00\n'
`

func writeWorker(t *testing.T, body string) string {
	t.Helper()
	binDir := filepath.Join(t.TempDir(), "bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(binDir, "fake-ytdl")
	if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func testLayout(t *testing.T) runstore.Layout {
	t.Helper()
	root := t.TempDir()
	l := runstore.Layout{
		DownloadsDir: filepath.Join(root, "downloads"),
		OutputDir:    filepath.Join(root, "output"),
	}
	if err := runstore.Mkdir(l.DownloadsDir); err != nil {
		t.Fatal(err)
	}
	if err := runstore.Mkdir(l.OutputDir); err != nil {
		t.Fatal(err)
	}
	return l
}

func newTestRunner(t *testing.T, script string) (*Runner, *jobstore.Memory) {
	t.Helper()
	store := jobstore.NewMemory()
	return &Runner{
		Worker: worker.Invocation{Command: writeWorker(t, script)},
		Layout: testLayout(t),
		Store:  store,
		Logger: zerolog.Nop(),
	}, store
}

func zipEntries(t *testing.T, path string) []string {
	t.Helper()
	zr, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	defer zr.Close()
	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	return names
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestRunnerRun_SplitsLogsTracksProgressAndArchives(t *testing.T) {
	r, store := newTestRunner(t, fakeWorkerScript)
	key := "abcdefghij_1700000000"
	job := Job{
		Key: key,
		URL: "https://example.com/v",
		Flags: []model.Flag{
			{Name: "--output", Value: filepath.Join(r.Layout.JobDir(key), DefaultOutputTemplate)},
		},
	}

	if err := r.Run(context.Background(), job); err != nil {
		t.Fatalf("run: %v", err)
	}

	debugLog := readFile(t, r.Layout.DebugLogPath(key))
	if debugLog != "[debug] System config: []\n[debug] Command-line args\n" {
		t.Fatalf("unexpected debug log: %q", debugLog)
	}
	downloadLog := readFile(t, r.Layout.DownloadLogPath(key))
	for _, want := range []string{
		"[youtube] abc: Downloading webpage for https://example.com/v\n",
		"[download] Destination: ",
		"[download]  50.0% of 1.00MiB at 1.00MiB/s ETA 00:01\n",
		"[download] 100.0% of 1.00MiB at 1.00MiB/s ETA 00:00\n",
	} {
		if !strings.Contains(downloadLog, want) {
			t.Fatalf("download log missing %q:\n%s", want, downloadLog)
		}
	}
	if strings.Contains(downloadLog, "[debug]") {
		t.Fatalf("debug line leaked into download log:\n%s", downloadLog)
	}

	p, ok, err := store.Get(context.Background(), key)
	if err != nil || !ok {
		t.Fatalf("expected progress, ok=%v err=%v", ok, err)
	}
	if !p.Finished || p.TimeFinished == nil {
		t.Fatalf("expected finished progress, got %+v", p)
	}
	if p.DownloadedVideos != 1 || p.TotalVideos != 1 {
		t.Fatalf("unexpected counters: %d/%d", p.DownloadedVideos, p.TotalVideos)
	}

	entries := zipEntries(t, r.Layout.ArchivePath(key))
	want := []string{key + "/", key + "/Clip_abc.mp4"}
	if strings.Join(entries, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected archive entries: %v", entries)
	}

	meta, err := runstore.LoadJobMeta(r.Layout, key)
	if err != nil {
		t.Fatal(err)
	}
	if meta.Status != model.StatusExited || meta.Reason != "" {
		t.Fatalf("unexpected meta status: %s/%s", meta.Status, meta.Reason)
	}
	if meta.ArchivePath != r.Layout.ArchivePath(key) {
		t.Fatalf("unexpected archive path in meta: %s", meta.ArchivePath)
	}
	if len(meta.Command) == 0 || meta.Command[len(meta.Command)-1] != "https://example.com/v" {
		t.Fatalf("expected url as last argv element, got %v", meta.Command)
	}
	if _, err := os.Stat(r.Layout.LockDir(key)); !os.IsNotExist(err) {
		t.Fatalf("expected lock released, stat err=%v", err)
	}
}

func TestRunnerRun_NonZeroExitStillArchives(t *testing.T) {
	r, store := newTestRunner(t, `#!/usr/bin/env bash
out=""
while [ $# -gt 0 ]; do
  case "$1" in
    --output) out="$2"; shift 2 ;;
    *) shift ;;
  esac
done
dir="$(dirname "$out")"
echo "[download] Destination: $dir/part.mp4"
echo "partial" > "$dir/part.mp4.part"
echo "ERROR: unable to download video data: HTTP Error 403" >&2
exit 1
`)
	key := "exitexitex_1700000001"
	err := r.Run(context.Background(), Job{
		Key:   key,
		URL:   "https://example.com/v",
		Flags: []model.Flag{{Name: "--output", Value: filepath.Join(r.Layout.JobDir(key), "%(id)s.%(ext)s")}},
	})
	if err == nil {
		t.Fatalf("expected exit error")
	}

	p, ok, getErr := store.Get(context.Background(), key)
	if getErr != nil || !ok {
		t.Fatalf("expected progress for job with output, ok=%v err=%v", ok, getErr)
	}
	if p.Finished {
		t.Fatalf("job that failed mid-download must not be finished")
	}
	if p.CurrentVideoTitle != "part.mp4" {
		t.Fatalf("unexpected title: %q", p.CurrentVideoTitle)
	}

	entries := zipEntries(t, r.Layout.ArchivePath(key))
	if len(entries) != 2 || entries[1] != key+"/part.mp4.part" {
		t.Fatalf("expected partial artifact archived, got %v", entries)
	}

	meta, err := runstore.LoadJobMeta(r.Layout, key)
	if err != nil {
		t.Fatal(err)
	}
	if meta.Status != model.StatusExited || meta.Reason != "exit_error" {
		t.Fatalf("unexpected meta status: %s/%s", meta.Status, meta.Reason)
	}
	if !strings.Contains(meta.LastError, "HTTP Error 403") {
		t.Fatalf("expected output tail in last error, got %q", meta.LastError)
	}
}

func TestRunnerRun_OverLongOutputLineDoesNotStallJob(t *testing.T) {
	r, store := newTestRunner(t, `#!/usr/bin/env bash
set -euo pipefail
out=""
while [ $# -gt 0 ]; do
  case "$1" in
    --output) out="$2"; shift 2 ;;
    *) shift ;;
  esac
done
dir="$(dirname "$out")"
head -c 2000000 /dev/zero | tr '\0' '{'
echo
echo "[download] Destination: $dir/big.json"
for i in $(seq 1 2000); do echo "[info] entry $i"; done
echo "{}" > "$dir/big.json"
printf '[download] 100.0%% of 2.00MiB at 1.00MiB/s ETA 00:00\n'
`)
	key := "longlineab_1700000005"
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := r.Run(ctx, Job{
		Key:   key,
		URL:   "https://example.com/playlist",
		Flags: []model.Flag{{Name: "--output", Value: filepath.Join(r.Layout.JobDir(key), "%(id)s.%(ext)s")}},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if ctx.Err() != nil {
		t.Fatalf("job only ended at the deadline")
	}

	p, ok, _ := store.Get(context.Background(), key)
	if !ok || !p.Finished {
		t.Fatalf("expected finished progress, got ok=%v %+v", ok, p)
	}
	downloadLog := readFile(t, r.Layout.DownloadLogPath(key))
	if !strings.HasSuffix(downloadLog, "[download] 100.0% of 2.00MiB at 1.00MiB/s ETA 00:00\n") {
		t.Fatalf("download log is missing the lines after the long one")
	}
	entries := zipEntries(t, r.Layout.ArchivePath(key))
	if len(entries) != 2 || entries[1] != key+"/big.json" {
		t.Fatalf("unexpected archive entries: %v", entries)
	}
}

func TestRunnerRun_SpawnFailureLeavesProgressAbsent(t *testing.T) {
	store := jobstore.NewMemory()
	r := &Runner{
		Worker: worker.Invocation{Command: filepath.Join(t.TempDir(), "missing-worker")},
		Layout: testLayout(t),
		Store:  store,
		Logger: zerolog.Nop(),
	}
	key := "spawnspawn_1700000002"
	if err := r.Run(context.Background(), Job{Key: key, URL: "https://example.com/v"}); err == nil {
		t.Fatalf("expected spawn error")
	}
	if _, ok, _ := store.Get(context.Background(), key); ok {
		t.Fatalf("expected no progress record after spawn failure")
	}
	meta, err := runstore.LoadJobMeta(r.Layout, key)
	if err != nil {
		t.Fatal(err)
	}
	if meta.Status != model.StatusFailed || meta.Reason != "spawn_error" {
		t.Fatalf("unexpected meta status: %s/%s", meta.Status, meta.Reason)
	}
	if _, err := os.Stat(r.Layout.ArchivePath(key)); !os.IsNotExist(err) {
		t.Fatalf("expected no archive after spawn failure")
	}
}

func TestRunnerRun_TimeoutKillsWorker(t *testing.T) {
	r, store := newTestRunner(t, `#!/usr/bin/env bash
echo "[download] Destination: /tmp/slow.mp4"
printf '[download]  10.0%% of 1.00MiB at 1.00KiB/s ETA 09:59\n'
exec sleep 30
`)
	key := "slowslowsl_1700000003"
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	started := time.Now()
	err := r.Run(ctx, Job{Key: key, URL: "https://example.com/v"})
	if err == nil {
		t.Fatalf("expected error from killed worker")
	}
	if time.Since(started) > 10*time.Second {
		t.Fatalf("worker was not killed in time")
	}

	p, ok, _ := store.Get(context.Background(), key)
	if !ok {
		t.Fatalf("expected progress written before the deadline")
	}
	if p.Finished || p.CurrentVideoProgress != 0.1 {
		t.Fatalf("unexpected progress after timeout: %+v", p)
	}
	meta, err := runstore.LoadJobMeta(r.Layout, key)
	if err != nil {
		t.Fatal(err)
	}
	if meta.Reason != "timeout" {
		t.Fatalf("expected timeout reason, got %q", meta.Reason)
	}
	if _, err := os.Stat(r.Layout.ArchivePath(key)); err != nil {
		t.Fatalf("expected archive after timeout: %v", err)
	}
}

func TestRunnerRun_RejectsConcurrentRunOfSameKey(t *testing.T) {
	r, _ := newTestRunner(t, fakeWorkerScript)
	key := "lockedlock_1700000004"
	lock, err := runstore.AcquireJobLock(r.Layout, key)
	if err != nil {
		t.Fatal(err)
	}
	defer lock.Release()

	if err := r.Run(context.Background(), Job{Key: key, URL: "https://example.com/v"}); err == nil {
		t.Fatalf("expected lock error")
	}
	if _, err := os.Stat(r.Layout.JobDir(key)); !os.IsNotExist(err) {
		t.Fatalf("expected locked run to leave no job directory")
	}
}

func TestRunnerRun_InvalidKey(t *testing.T) {
	r, _ := newTestRunner(t, fakeWorkerScript)
	if err := r.Run(context.Background(), Job{Key: "../..", URL: "u"}); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
}

func TestLineSink_WritesEveryLineOnceInOrder(t *testing.T) {
	var debug, download strings.Builder
	store := jobstore.NewMemory()
	sink := &lineSink{
		ctx:      context.Background(),
		key:      "k",
		store:    store,
		parser:   progress.NewYoutubeDL(),
		debug:    &debug,
		download: &download,
		log:      zerolog.Nop(),
	}

	for _, line := range []string{
		"[debug] a",
		"continuation of debug",
		"[info] b",
		"plain",
		"",
	} {
		sink.handle(line)
	}
	if debug.String() != "[debug] a\ncontinuation of debug\n" {
		t.Fatalf("unexpected debug stream: %q", debug.String())
	}
	if download.String() != "[info] b\nplain\n\n" {
		t.Fatalf("unexpected download stream: %q", download.String())
	}
	if sink.lines != 5 {
		t.Fatalf("expected 5 lines, got %d", sink.lines)
	}
	if _, ok, _ := store.Get(context.Background(), "k"); !ok {
		t.Fatalf("expected progress record after first line")
	}
}
