package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/MeteoSwiss/mwr-raw2l1/internal/rpg"
)

// DirExtractor scans a directory for instrument files and groups them into
// observation units by basename, the way the instrument software names one
// day's output (station_20190803.BRT, station_20190803.HKD, ...). Units
// already handed out are remembered so daemon mode does not reprocess them.
type DirExtractor struct {
	dir    string
	logger *slog.Logger

	mu   sync.Mutex
	seen map[string]bool
}

// NewDirExtractor creates a DirExtractor over the given directory.
func NewDirExtractor(dir string, logger *slog.Logger) *DirExtractor {
	return &DirExtractor{
		dir:    dir,
		logger: logger,
		seen:   make(map[string]bool),
	}
}

// Extract returns the unprocessed observation units currently on disk,
// sorted by name. A unit is marked as handed out even if its processing
// later fails; a failed unit needs operator attention, not a retry loop.
func (e *DirExtractor) Extract(ctx context.Context) ([]FileSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(e.dir)
	if err != nil {
		return nil, fmt.Errorf("reading data directory: %w", err)
	}

	groups := make(map[string]map[rpg.Kind][]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
		kind, ok := rpg.KindForExtension(ext)
		if !ok {
			e.logger.Debug("skipping file with unknown extension", "file", name)
			continue
		}
		base := strings.TrimSuffix(name, filepath.Ext(name))
		if groups[base] == nil {
			groups[base] = make(map[rpg.Kind][]string)
		}
		groups[base][kind] = append(groups[base][kind], filepath.Join(e.dir, name))
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var sets []FileSet
	for base, files := range groups {
		if e.seen[base] {
			continue
		}
		e.seen[base] = true
		for _, paths := range files {
			sort.Strings(paths)
		}
		sets = append(sets, FileSet{Name: base, Files: files})
	}
	sort.Slice(sets, func(i, j int) bool { return sets[i].Name < sets[j].Name })
	return sets, nil
}
