package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// tempPrefixes are the names the fetcher and runner give their scratch files.
var tempPrefixes = []string{"pdfdl-", "s3pdf-", "decrypted-", "cropped-"}

// CleanupTemps removes scratch files in dir older than maxAge and returns how
// many were removed.
func CleanupTemps(dir string, maxAge time.Duration) int {
	if dir == "" {
		dir = os.TempDir()
	}
	now := time.Now()
	removed := 0
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	for _, e := range entries {
		if e.IsDir() || !isScratch(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil || now.Sub(info.ModTime()) < maxAge {
			continue
		}
		if os.Remove(filepath.Join(dir, e.Name())) == nil {
			removed++
		}
	}
	return removed
}

// RunJanitor calls CleanupTemps every interval until ctx is done.
func RunJanitor(ctx context.Context, dir string, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := CleanupTemps(dir, maxAge); n > 0 {
				log.Info().Int("removed", n).Str("dir", dir).Msg("removed stale scratch files")
			}
		}
	}
}

func isScratch(name string) bool {
	for _, p := range tempPrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}
