package shim

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// Sweep removes upload and output temp files older than maxAge that no
// request in flight still owns. Requests clean up after themselves; this only
// catches files left by a crashed process.
func (s *Shim) Sweep(now time.Time, maxAge time.Duration) int {
	removed := 0
	for _, pattern := range []string{inputPattern, "output*"} {
		matches, err := filepath.Glob(filepath.Join(s.cfg.TempDir, pattern))
		if err != nil {
			continue
		}
		for _, path := range matches {
			info, err := os.Stat(path)
			if err != nil || info.IsDir() || now.Sub(info.ModTime()) < maxAge || s.inUse(path) {
				continue
			}
			if err := os.Remove(path); err != nil {
				s.logger.Warn("janitor could not remove temp file", zap.String("path", path), zap.Error(err))
				continue
			}
			removed++
		}
	}
	return removed
}

func (s *Shim) StartJanitor(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if n := s.Sweep(now, maxAge); n > 0 {
					s.logger.Info("janitor removed stale temp files", zap.Int("count", n))
				}
			}
		}
	}()
}
