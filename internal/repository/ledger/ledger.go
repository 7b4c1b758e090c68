// Package ledger persists the coordinates of tiles that failed to fetch.
//
// The ledger is a plain text file with one "provider,zoom,x,y,locale" record
// per line. It behaves as a set: appending a record that is already present is
// a no-op.
package ledger

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/jaennil/guide_helper/backend/prefetch/internal/tile"
)

var (
	// ErrLedgerIO wraps read, write and parse failures of the ledger file.
	ErrLedgerIO = errors.New("failure ledger i/o")

	ErrInvalidRecord = errors.New("invalid ledger record")
)

type Ledger struct {
	path string

	mu   sync.Mutex
	seen map[string]struct{}
}

func New(path string) *Ledger {
	return &Ledger{path: path}
}

func (l *Ledger) Path() string {
	return l.path
}

// Append durably records c unless it is already in the ledger. Concurrent
// callers are serialized; each record is written with a single write call.
func (l *Ledger) Append(c tile.Coordinate) error {
	line, err := FormatRecord(c)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.seen == nil {
		records, err := l.read()
		if err != nil {
			return err
		}
		l.remember(records)
	}
	if _, dup := l.seen[c.Key()]; dup {
		return nil
	}

	if dir := filepath.Dir(l.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("%w: %w", ErrLedgerIO, err)
		}
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLedgerIO, err)
	}
	if _, err := f.WriteString(line + "\n"); err != nil {
		_ = f.Close()
		return fmt.Errorf("%w: %w", ErrLedgerIO, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("%w: %w", ErrLedgerIO, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrLedgerIO, err)
	}

	l.seen[c.Key()] = struct{}{}
	return nil
}

// DrainAll returns every recorded coordinate in file order without duplicates.
// The ledger itself is left untouched. A missing file is an empty ledger.
func (l *Ledger) DrainAll() ([]tile.Coordinate, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	records, err := l.read()
	if err != nil {
		return nil, err
	}
	l.remember(records)
	return records, nil
}

// Replace atomically overwrites the ledger with exactly records.
func (l *Ledger) Replace(records []tile.Coordinate) error {
	var buf bytes.Buffer
	unique := dedupe(records)
	for _, c := range unique {
		line, err := FormatRecord(c)
		if err != nil {
			return err
		}
		buf.WriteString(line)
		buf.WriteByte('\n')
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := writeFileAtomic(l.path, buf.Bytes()); err != nil {
		return fmt.Errorf("%w: %w", ErrLedgerIO, err)
	}
	l.remember(unique)
	return nil
}

// Clear removes the ledger file.
func (l *Ledger) Clear() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %w", ErrLedgerIO, err)
	}
	l.seen = map[string]struct{}{}
	return nil
}

func (l *Ledger) read() ([]tile.Coordinate, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %w", ErrLedgerIO, err)
	}
	defer f.Close()

	var records []tile.Coordinate
	sc := bufio.NewScanner(f)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		c, err := ParseRecord(line)
		if err != nil {
			return nil, fmt.Errorf("%w: %s line %d: %w", ErrLedgerIO, l.path, lineNo, err)
		}
		records = append(records, c)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLedgerIO, err)
	}
	return dedupe(records), nil
}

func (l *Ledger) remember(records []tile.Coordinate) {
	l.seen = make(map[string]struct{}, len(records))
	for _, c := range records {
		l.seen[c.Key()] = struct{}{}
	}
}

func dedupe(records []tile.Coordinate) []tile.Coordinate {
	seen := make(map[string]struct{}, len(records))
	out := make([]tile.Coordinate, 0, len(records))
	for _, c := range records {
		if _, dup := seen[c.Key()]; dup {
			continue
		}
		seen[c.Key()] = struct{}{}
		out = append(out, c)
	}
	return out
}

// FormatRecord renders c as one ledger line without the trailing newline.
func FormatRecord(c tile.Coordinate) (string, error) {
	if c.Provider == "" || strings.ContainsAny(c.Provider, ",\r\n") {
		return "", fmt.Errorf("%w: provider %q", ErrInvalidRecord, c.Provider)
	}
	if strings.ContainsAny(c.Locale, ",\r\n") {
		return "", fmt.Errorf("%w: locale %q", ErrInvalidRecord, c.Locale)
	}
	return fmt.Sprintf("%s,%d,%d,%d,%s", c.Provider, c.Zoom, c.X, c.Y, c.Locale), nil
}

// ParseRecord parses one ledger line. The locale field may be absent.
func ParseRecord(line string) (tile.Coordinate, error) {
	parts := strings.Split(line, ",")
	if len(parts) != 4 && len(parts) != 5 {
		return tile.Coordinate{}, fmt.Errorf("%w: want 5 fields, got %d", ErrInvalidRecord, len(parts))
	}

	c := tile.Coordinate{Provider: strings.TrimSpace(parts[0])}
	if c.Provider == "" {
		return tile.Coordinate{}, fmt.Errorf("%w: empty provider", ErrInvalidRecord)
	}
	fields := []*uint32{&c.Zoom, &c.X, &c.Y}
	for i, dst := range fields {
		v, err := strconv.ParseUint(strings.TrimSpace(parts[i+1]), 10, 32)
		if err != nil {
			return tile.Coordinate{}, fmt.Errorf("%w: %w", ErrInvalidRecord, err)
		}
		*dst = uint32(v)
	}
	if len(parts) == 5 {
		c.Locale = strings.TrimSpace(parts[4])
	}
	if !c.Valid() {
		return tile.Coordinate{}, fmt.Errorf("%w: %s outside the tile grid", ErrInvalidRecord, c)
	}
	return c, nil
}

func writeFileAtomic(dest string, data []byte) error {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".ledger-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}
