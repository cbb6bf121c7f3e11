package reconcile

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"hve/internal/domain"
)

// NoDataCache remembers symbols the provider returned zero bars for, scoped
// to one target date. Restarting an interrupted pass for the same target can
// then skip them instead of re-fetching thousands of empty histories. A new
// target date resets the cache: a symbol empty yesterday may have listed
// since.
type NoDataCache struct {
	mu      sync.Mutex
	dir     string
	symbols map[string]struct{}
	file    *os.File
	writer  *bufio.Writer
}

// OpenNoDataCache opens (or resets) the cache in dir for the given target
// date.
func OpenNoDataCache(dir string, target time.Time) (*NoDataCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}

	c := &NoDataCache{
		dir:     dir,
		symbols: make(map[string]struct{}),
	}

	targetStr := target.Format(domain.DateLayout)
	datePath := filepath.Join(dir, ".no-data-date")
	listPath := filepath.Join(dir, ".no-data")

	prev, _ := os.ReadFile(datePath)
	if strings.TrimSpace(string(prev)) != targetStr {
		// Different target: the cached misses are stale.
		os.Remove(listPath)
		if err := os.WriteFile(datePath, []byte(targetStr), 0o644); err != nil {
			return nil, fmt.Errorf("writing cache date: %w", err)
		}
	} else if data, err := os.ReadFile(listPath); err == nil {
		for _, line := range strings.Split(string(data), "\n") {
			if sym := strings.TrimSpace(line); sym != "" {
				c.symbols[sym] = struct{}{}
			}
		}
	}

	f, err := os.OpenFile(listPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening cache list: %w", err)
	}
	c.file = f
	c.writer = bufio.NewWriter(f)

	return c, nil
}

// Skip reports whether symbol is a known miss for the current target.
func (c *NoDataCache) Skip(symbol string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.symbols[symbol]
	return ok
}

// Mark records symbols as misses.
func (c *NoDataCache) Mark(symbols []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, sym := range symbols {
		if _, ok := c.symbols[sym]; ok {
			continue
		}
		c.symbols[sym] = struct{}{}
		if _, err := c.writer.WriteString(sym + "\n"); err != nil {
			return fmt.Errorf("writing cache list: %w", err)
		}
	}
	return c.writer.Flush()
}

// Close flushes and closes the cache file.
func (c *NoDataCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writer != nil {
		c.writer.Flush()
	}
	if c.file != nil {
		return c.file.Close()
	}
	return nil
}
