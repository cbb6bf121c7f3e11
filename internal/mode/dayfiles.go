package mode

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"hve/internal/domain"
)

// writeDayFiles writes one text file per event day (<dir>/YYYY-MM-DD.txt)
// listing the symbols whose record was set that day, one per line,
// alphabetically sorted. Existing files are overwritten so a re-run is
// idempotent. Returns the number of files written.
func writeDayFiles(dir string, records []domain.VolumeRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("creating output dir: %w", err)
	}

	byDay := make(map[string][]string)
	for _, rec := range records {
		day := rec.Date.Format(domain.DateLayout)
		byDay[day] = append(byDay[day], rec.Symbol)
	}

	for day, symbols := range byDay {
		sort.Strings(symbols)
		path := filepath.Join(dir, day+".txt")
		data := strings.Join(symbols, "\n") + "\n"
		if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
			return 0, fmt.Errorf("writing %s: %w", path, err)
		}
	}
	return len(byDay), nil
}
