package monitor

import (
	"context"
	"io/fs"
	"os"
	"strings"
	"time"

	"fsindex/internal/logging"
	"fsindex/internal/metrics"
)

// snapshot captures the cheap-to-read shape of the indexed root: its own
// mtime, the number of top-level items, and each top-level subdirectory's
// mtime. Comparing snapshots catches changes the notification stream missed
// (network filesystems, editors that bypass the watched inode) without
// walking the whole tree.
type snapshot struct {
	taken     time.Time
	rootMod   time.Time
	itemCount int
	subdirMod map[string]time.Time
}

func (m *Monitor) takeSnapshot() snapshot {
	snap := snapshot{
		taken:     time.Now(),
		subdirMod: make(map[string]time.Time),
	}

	info, err := os.Stat(m.root)
	if err != nil {
		return snap
	}
	snap.rootMod = info.ModTime()

	dirents, err := os.ReadDir(m.root)
	if err != nil {
		return snap
	}
	for _, d := range dirents {
		name := d.Name()
		if m.cfg.SkipHidden && strings.HasPrefix(name, ".") {
			continue
		}
		if d.Type()&fs.ModeSymlink != 0 {
			continue
		}
		snap.itemCount++
		if d.IsDir() {
			if di, err := d.Info(); err == nil {
				snap.subdirMod[name] = di.ModTime()
			}
		}
	}
	return snap
}

// reconcileLoop periodically diffs the current root snapshot against the
// previous one and rescans only what moved.
func (m *Monitor) reconcileLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.reconcile(ctx)
		}
	}
}

func (m *Monitor) reconcile(ctx context.Context) {
	metrics.ReconcileChecksTotal.Inc()

	cur := m.takeSnapshot()
	prev := m.snap
	m.snap = cur

	drift := false

	// Root-level drift: mtime or item count moved, meaning something was
	// added or removed directly under the root.
	if !cur.rootMod.Equal(prev.rootMod) || cur.itemCount != prev.itemCount {
		drift = true
		logging.Debug("Reconcile: root changed (items %d -> %d)", prev.itemCount, cur.itemCount)
		m.rescanChildren(ctx, ".", "reconcile")
	}

	for name, mod := range cur.subdirMod {
		prevMod, known := prev.subdirMod[name]
		if known && mod.Equal(prevMod) {
			continue
		}
		drift = true
		if !known {
			// New top-level directory the watcher never reported.
			m.indexSubtree(ctx, name)
			continue
		}
		logging.Debug("Reconcile: %s changed", name)
		m.rescanChildren(ctx, name, "reconcile")
	}

	// Vanished top-level subdirectories surface through the root rescan
	// above; nothing more to do for them here.

	if drift {
		metrics.ReconcileChangesDetected.Inc()
	}
}
