package progress

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const currentName = "progress-current.log"

// RotatingFile appends lines to <dir>/progress-current.log and, once the file
// holds maxLines lines, renames it to progress-<timestamp>.log and starts a
// new one.
type RotatingFile struct {
	dir      string
	maxLines int

	mu    sync.Mutex
	f     *os.File
	lines int
}

func NewRotatingFile(dir string, maxLines int) *RotatingFile {
	if maxLines <= 0 {
		maxLines = 10000
	}
	return &RotatingFile{dir: dir, maxLines: maxLines}
}

// Write expects whole lines; zap hands over one encoded entry per call.
func (w *RotatingFile) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.ensureOpen(); err != nil {
		return 0, err
	}
	if w.lines >= w.maxLines {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}

	n, err := w.f.Write(p)
	w.lines += bytes.Count(p[:n], []byte{'\n'})
	return n, err
}

func (w *RotatingFile) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.f == nil {
		return nil
	}
	return w.f.Sync()
}

func (w *RotatingFile) ensureOpen() error {
	if w.f != nil {
		return nil
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(w.dir, currentName), os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o644)
	if err != nil {
		return err
	}
	lines, err := countLines(f)
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.lines = lines
	return nil
}

func (w *RotatingFile) rotate() error {
	oldPath := w.f.Name()
	_ = w.f.Close()
	w.f = nil

	ts := time.Now().UTC().Format("20060102-150405.000000000")
	rotated := filepath.Join(w.dir, fmt.Sprintf("progress-%s.log", ts))
	if err := os.Rename(oldPath, rotated); err != nil {
		return fmt.Errorf("rename rotated file: %w", err)
	}
	return w.ensureOpen()
}

func (w *RotatingFile) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.f != nil {
		err := w.f.Close()
		w.f = nil
		return err
	}
	return nil
}

func countLines(f *os.File) (int, error) {
	if _, err := f.Seek(0, 0); err != nil {
		return 0, err
	}
	buf := make([]byte, 32*1024)
	lines := 0
	for {
		n, err := f.Read(buf)
		lines += bytes.Count(buf[:n], []byte{'\n'})
		if err != nil {
			break
		}
	}
	return lines, nil
}
