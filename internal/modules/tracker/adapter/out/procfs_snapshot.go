package out

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gametrack/internal/modules/tracker/domain"
	trackerout "gametrack/internal/modules/tracker/port/out"
)

// ProcfsSnapshotSource enumerates processes by scanning /proc. This is
// the built-in Linux source; other platforms ship as snapshot provider
// plugins.
type ProcfsSnapshotSource struct {
	root string
}

func NewProcfsSnapshotSource() trackerout.SnapshotSource {
	return &ProcfsSnapshotSource{root: "/proc"}
}

// NewProcfsSnapshotSourceAt exists for tests that point at a fake tree.
func NewProcfsSnapshotSourceAt(root string) trackerout.SnapshotSource {
	return &ProcfsSnapshotSource{root: root}
}

func (s *ProcfsSnapshotSource) Snapshot(ctx context.Context) ([]domain.Process, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, err
	}
	processes := []domain.Process{}
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !entry.IsDir() {
			continue
		}
		pid, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(s.root, entry.Name(), "comm"))
		if err != nil {
			// Process exited between the listing and the read.
			continue
		}
		name := strings.TrimSpace(string(raw))
		if name == "" {
			continue
		}
		processes = append(processes, domain.Process{Name: name, PID: pid})
	}
	return processes, nil
}
