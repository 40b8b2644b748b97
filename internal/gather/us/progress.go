package us

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/multierr"
)

// progressTracker remembers, per end date, which tickers came back empty and
// whether the run finished. It lets a crashed run resume and makes a second
// run on the same day a no-op.
type progressTracker struct {
	mu     sync.Mutex
	empty  map[string]struct{}
	writer *bufio.Writer
	file   *os.File
	dir    string
}

func newProgressTracker(dir string) (*progressTracker, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating progress dir: %w", err)
	}
	pt := &progressTracker{empty: make(map[string]struct{}), dir: dir}

	if data, err := os.ReadFile(pt.emptyPath()); err == nil {
		for _, line := range strings.Split(string(data), "\n") {
			if t := strings.TrimSpace(line); t != "" {
				pt.empty[t] = struct{}{}
			}
		}
	}
	if err := pt.open(); err != nil {
		return nil, err
	}
	return pt, nil
}

func (p *progressTracker) emptyPath() string     { return filepath.Join(p.dir, ".empty-tickers") }
func (p *progressTracker) completedPath() string { return filepath.Join(p.dir, ".last-completed") }

func (p *progressTracker) open() error {
	f, err := os.OpenFile(p.emptyPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening .empty-tickers: %w", err)
	}
	p.file = f
	p.writer = bufio.NewWriter(f)
	return nil
}

// IsEmpty reports whether ticker already returned no bars for this end date.
func (p *progressTracker) IsEmpty(ticker string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.empty[ticker]
	return ok
}

// MarkEmpty records tickers that returned no bars.
func (p *progressTracker) MarkEmpty(tickers []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range tickers {
		if _, ok := p.empty[t]; ok {
			continue
		}
		p.empty[t] = struct{}{}
		if _, err := p.writer.WriteString(t + "\n"); err != nil {
			return fmt.Errorf("writing .empty-tickers: %w", err)
		}
	}
	return p.writer.Flush()
}

// MarkCompleted records date as fully gathered.
func (p *progressTracker) MarkCompleted(date string) error {
	return os.WriteFile(p.completedPath(), []byte(date), 0o644)
}

// LastCompleted returns the last fully gathered date, or "".
func (p *progressTracker) LastCompleted() string {
	data, err := os.ReadFile(p.completedPath())
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// IsCompleted reports whether date was fully gathered.
func (p *progressTracker) IsCompleted(date string) bool {
	return p.LastCompleted() == date
}

// Reset forgets the empty tickers of a previous end date.
func (p *progressTracker) Reset() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	err := p.closeLocked()
	p.empty = make(map[string]struct{})
	if rerr := os.Remove(p.emptyPath()); rerr != nil && !os.IsNotExist(rerr) {
		err = multierr.Append(err, rerr)
	}
	return multierr.Append(err, p.open())
}

// Close flushes and closes the .empty-tickers file.
func (p *progressTracker) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closeLocked()
}

func (p *progressTracker) closeLocked() error {
	var err error
	if p.writer != nil {
		err = p.writer.Flush()
	}
	if p.file != nil {
		err = multierr.Append(err, p.file.Close())
		p.file, p.writer = nil, nil
	}
	return err
}
