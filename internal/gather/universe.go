package gather

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"simtrader/internal/domain"
)

// universeWriter maintains per-date symbol lists (<dir>/YYYY-MM-DD.txt).
// Symbols are buffered, appended on Flush and sorted and de-duplicated on
// Finalize.
type universeWriter struct {
	mu      sync.Mutex
	dir     string
	buffers map[string][]string // date → symbols
	touched map[string]bool
}

func newUniverseWriter(dir string) *universeWriter {
	return &universeWriter{
		dir:     dir,
		buffers: make(map[string][]string),
		touched: make(map[string]bool),
	}
}

// Add buffers symbols for date.
func (u *universeWriter) Add(date string, symbols ...string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.buffers[date] = append(u.buffers[date], symbols...)
}

// AddBars buffers the symbol of every bar under the bar's date.
func (u *universeWriter) AddBars(bars []domain.Bar) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, b := range bars {
		date := b.Timestamp.Format(domain.DateLayout)
		u.buffers[date] = append(u.buffers[date], b.Symbol)
	}
}

// Flush appends the buffered symbols to their date files.
func (u *universeWriter) Flush() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if len(u.buffers) == 0 {
		return nil
	}
	if err := os.MkdirAll(u.dir, 0o755); err != nil {
		return fmt.Errorf("creating universe dir: %w", err)
	}
	for date, symbols := range u.buffers {
		path := filepath.Join(u.dir, date+".txt")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("opening universe file %s: %w", path, err)
		}
		_, err = f.WriteString(strings.Join(symbols, "\n") + "\n")
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("writing universe file %s: %w", path, err)
		}
		u.touched[date] = true
	}
	u.buffers = make(map[string][]string)
	return nil
}

// Finalize sorts and de-duplicates every file written since creation.
func (u *universeWriter) Finalize() error {
	u.mu.Lock()
	dates := make([]string, 0, len(u.touched))
	for date := range u.touched {
		dates = append(dates, date)
	}
	u.mu.Unlock()

	for _, date := range dates {
		if err := sortDedup(filepath.Join(u.dir, date+".txt")); err != nil {
			return fmt.Errorf("finalizing universe file %s: %w", date, err)
		}
	}
	return nil
}

func sortDedup(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	lines := strings.Fields(string(data))
	sort.Strings(lines)

	out := lines[:0]
	for i, l := range lines {
		if i == 0 || l != lines[i-1] {
			out = append(out, l)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(strings.Join(out, "\n")+"\n"), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
