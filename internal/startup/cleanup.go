// Package startup provides utilities for application startup tasks.
package startup

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// TempDirPrefix is the prefix used for smartcut workspace temp directories
// (re-encode scratch files, trimmed audio/subtitle output, chapter files).
const TempDirPrefix = "smartcut-cut-"

// CleanupOrphanedTempDirs removes orphaned temporary directories that are older
// than the specified maxAge. It looks for directories matching the pattern
// "smartcut-cut-*" in the specified base directory.
//
// Returns the number of directories removed and any error encountered.
func CleanupOrphanedTempDirs(logger *slog.Logger, baseDir string, maxAge time.Duration) (int, error) {
	// Check if the base directory exists
	if _, err := os.Stat(baseDir); os.IsNotExist(err) {
		logger.Debug("base directory does not exist, skipping cleanup",
			"path", baseDir,
		)
		return 0, nil
	}

	entries, err := os.ReadDir(baseDir)
	if err != nil {
		logger.Error("failed to read directory for cleanup",
			"path", baseDir,
			"error", err,
		)
		return 0, err
	}

	cutoff := time.Now().Add(-maxAge)
	var removed int

	for _, entry := range entries {
		// Only process directories
		if !entry.IsDir() {
			continue
		}

		// Only process directories matching our prefix
		if !strings.HasPrefix(entry.Name(), TempDirPrefix) {
			continue
		}

		dirPath := filepath.Join(baseDir, entry.Name())

		// Get file info for modification time
		info, err := entry.Info()
		if err != nil {
			logger.Warn("failed to get directory info",
				"path", dirPath,
				"error", err,
			)
			continue
		}

		// Check if directory is older than cutoff
		if info.ModTime().After(cutoff) {
			logger.Debug("preserving recent temp directory",
				"path", dirPath,
				"age", time.Since(info.ModTime()).Round(time.Second),
			)
			continue
		}

		// Remove the orphaned directory
		if err := os.RemoveAll(dirPath); err != nil {
			logger.Warn("failed to remove orphaned temp directory",
				"path", dirPath,
				"error", err,
			)
			continue
		}

		logger.Info("removed orphaned temp directory",
			"path", dirPath,
			"age", time.Since(info.ModTime()).Round(time.Second),
		)
		removed++
	}

	return removed, nil
}

// DefaultCleanupAge is the default maximum age for orphaned temp directories (1 hour).
const DefaultCleanupAge = 1 * time.Hour

// CleanupSystemTempDirs cleans up orphaned smartcut temp directories from the system
// temp directory using the default cleanup age.
func CleanupSystemTempDirs(logger *slog.Logger) (int, error) {
	return CleanupOrphanedTempDirs(logger, os.TempDir(), DefaultCleanupAge)
}

// WorkspaceSweeper periodically removes orphaned smartcut-cut-* temp
// directories from a workspace directory on a cron schedule. A job that
// crashes mid-run (process killed, OOM, power loss) leaves its temp
// directory behind; the in-memory job state is lost on restart, so
// nothing else will ever clean it up.
type WorkspaceSweeper struct {
	cron   *cron.Cron
	logger *slog.Logger
	dir    string
	maxAge time.Duration
}

// NewWorkspaceSweeper builds a sweeper for dir using a standard 5-field
// cron schedule. maxAge is the minimum age before an orphaned directory
// is considered safe to remove.
func NewWorkspaceSweeper(logger *slog.Logger, dir string, schedule string, maxAge time.Duration) (*WorkspaceSweeper, error) {
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(cron.WithParser(parser))
	s := &WorkspaceSweeper{cron: c, logger: logger, dir: dir, maxAge: maxAge}
	if _, err := c.AddFunc(schedule, s.sweepOnce); err != nil {
		return nil, fmt.Errorf("scheduling workspace sweep %q: %w", schedule, err)
	}
	return s, nil
}

func (s *WorkspaceSweeper) sweepOnce() {
	count, err := CleanupOrphanedTempDirs(s.logger, s.dir, s.maxAge)
	if err != nil {
		s.logger.Error("workspace sweep failed", "dir", s.dir, "error", err)
		return
	}
	if count > 0 {
		s.logger.Info("workspace sweep removed orphaned directories", "dir", s.dir, "count", count)
	}
}

// Start runs the sweep schedule in the background until ctx is cancelled.
func (s *WorkspaceSweeper) Start(ctx context.Context) {
	s.cron.Start()
	go func() {
		<-ctx.Done()
		<-s.cron.Stop().Done()
	}()
}
