package gather

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	triedEmptyFile    = ".tried-empty"
	lastCompletedFile = ".last-completed"
)

// progressTracker makes warm passes idempotent per day. Symbols that had no
// data are listed in .tried-empty and skipped for the rest of the day; the
// day of the last finished pass is kept in .last-completed.
type progressTracker struct {
	mu         sync.Mutex
	dir        string
	day        string
	triedEmpty map[string]struct{}
	file       *os.File
	writer     *bufio.Writer
}

func newProgressTracker(dir string) (*progressTracker, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating progress dir: %w", err)
	}
	return &progressTracker{dir: dir, triedEmpty: make(map[string]struct{})}, nil
}

// Begin starts the pass for day. It reports done when day already
// completed. A tried-empty list left by an earlier day is discarded; one
// left by an interrupted pass of the same day is resumed.
func (p *progressTracker) Begin(day string) (done bool, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.day = day
	last := p.lastCompleted()
	if last == day {
		return true, nil
	}

	path := filepath.Join(p.dir, triedEmptyFile)
	if last != "" {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return false, fmt.Errorf("resetting %s: %w", triedEmptyFile, err)
		}
	} else if data, err := os.ReadFile(path); err == nil {
		for _, line := range strings.Split(string(data), "\n") {
			if sym := strings.TrimSpace(line); sym != "" {
				p.triedEmpty[sym] = struct{}{}
			}
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return false, fmt.Errorf("opening %s: %w", triedEmptyFile, err)
	}
	p.file = f
	p.writer = bufio.NewWriter(f)
	return false, nil
}

func (p *progressTracker) lastCompleted() string {
	data, err := os.ReadFile(filepath.Join(p.dir, lastCompletedFile))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// IsTriedEmpty reports whether symbol already came back empty today.
func (p *progressTracker) IsTriedEmpty(symbol string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.triedEmpty[symbol]
	return ok
}

// MarkEmpty records symbol as tried-empty.
func (p *progressTracker) MarkEmpty(symbol string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.triedEmpty[symbol]; ok {
		return nil
	}
	p.triedEmpty[symbol] = struct{}{}
	if p.writer == nil {
		return nil
	}
	if _, err := p.writer.WriteString(symbol + "\n"); err != nil {
		return fmt.Errorf("writing %s: %w", triedEmptyFile, err)
	}
	return p.writer.Flush()
}

// Complete marks the current day as finished.
func (p *progressTracker) Complete() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return os.WriteFile(filepath.Join(p.dir, lastCompletedFile), []byte(p.day), 0o644)
}

// Close flushes and closes the tried-empty file.
func (p *progressTracker) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writer != nil {
		p.writer.Flush()
	}
	if p.file != nil {
		return p.file.Close()
	}
	return nil
}
