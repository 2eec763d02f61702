package worker

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

const (
	maxLineBytes = 1024 * 1024
	maxTailBytes = 8192
	waitDelay    = 5 * time.Second
)

// Invocation describes one worker run. With a Module set the worker is
// started as `Command -m Module Args...`, otherwise as `Command Args...`.
type Invocation struct {
	Command string
	Module  string
	Dir     string
	Args    []string
}

func (inv Invocation) Argv() []string {
	argv := make([]string, 0, len(inv.Args)+3)
	argv = append(argv, inv.Command)
	if strings.TrimSpace(inv.Module) != "" {
		argv = append(argv, "-m", inv.Module)
	}
	return append(argv, inv.Args...)
}

// Process is a running worker whose stdout and stderr share one pipe, so
// lines arrive in the order the worker wrote them.
type Process struct {
	cmd    *exec.Cmd
	output *os.File

	mu   sync.Mutex
	tail strings.Builder
}

func Start(ctx context.Context, inv Invocation) (*Process, error) {
	if strings.TrimSpace(inv.Command) == "" {
		return nil, fmt.Errorf("worker command is required")
	}
	argv := inv.Argv()

	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("setup output pipe: %w", err)
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = inv.Dir
	cmd.Stdout = pw
	cmd.Stderr = pw
	cmd.WaitDelay = waitDelay

	if err := cmd.Start(); err != nil {
		_ = pr.Close()
		_ = pw.Close()
		return nil, fmt.Errorf("start %s: %w", argv[0], err)
	}
	// the child holds its own copy; ours must go so the reader sees EOF
	_ = pw.Close()

	return &Process{cmd: cmd, output: pr}, nil
}

func (p *Process) Pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Drain calls fn with every output line, in order, until the worker closes
// its output. Lines longer than maxLineBytes are cut to that length and the
// rest of the line is dropped. Invalid UTF-8 is replaced.
func (p *Process) Drain(fn func(line string)) error {
	lr := newLineReader(p.output, maxLineBytes)
	for {
		line, err := lr.next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			// keep the pipe empty so the worker never blocks on a write
			_, _ = io.Copy(io.Discard, p.output)
			return fmt.Errorf("read worker output: %w", err)
		}
		line = strings.ToValidUTF8(line, "\uFFFD")
		p.mu.Lock()
		appendLimited(&p.tail, line)
		p.mu.Unlock()
		fn(line)
	}
}

func (p *Process) Wait() error {
	return p.cmd.Wait()
}

// Close releases the read end of the output pipe, unblocking Drain.
func (p *Process) Close() error {
	return p.output.Close()
}

// Tail returns the last output kept for error reports.
func (p *Process) Tail() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return strings.TrimSpace(p.tail.String())
}

// lineReader ends a line at "\n", "\r" or "\r\n". Progress ticks are
// redrawn with a bare carriage return, so a "\r" line is returned at once
// and a directly following "\n" is skipped on the next call.
type lineReader struct {
	r      *bufio.Reader
	max    int
	buf    []byte
	skipLF bool
}

func newLineReader(r io.Reader, limit int) *lineReader {
	return &lineReader{r: bufio.NewReaderSize(r, 64*1024), max: limit}
}

func (lr *lineReader) next() (string, error) {
	lr.buf = lr.buf[:0]
	for {
		c, err := lr.r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) && len(lr.buf) > 0 {
				return string(lr.buf), nil
			}
			return "", err
		}
		if lr.skipLF {
			lr.skipLF = false
			if c == '\n' {
				continue
			}
		}
		switch c {
		case '\n':
			return string(lr.buf), nil
		case '\r':
			lr.skipLF = true
			return string(lr.buf), nil
		}
		if len(lr.buf) < lr.max {
			lr.buf = append(lr.buf, c)
		}
	}
}

func appendLimited(b *strings.Builder, line string) {
	toWrite := line + "\n"
	if len(toWrite) >= maxTailBytes {
		b.Reset()
		b.WriteString(toWrite[len(toWrite)-maxTailBytes:])
		return
	}
	if b.Len()+len(toWrite) > maxTailBytes {
		kept := b.String()
		cut := b.Len() + len(toWrite) - maxTailBytes
		if idx := strings.IndexByte(kept[cut:], '\n'); idx >= 0 {
			cut += idx + 1
		}
		b.Reset()
		if cut < len(kept) {
			b.WriteString(kept[cut:])
		}
	}
	b.WriteString(toWrite)
}
