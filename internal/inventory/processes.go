package inventory

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// LoadProcesses snapshots the running processes. Processes that vanish or
// cannot be inspected while the snapshot is taken are skipped.
func LoadProcesses(ctx context.Context) ([]Process, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list processes: %w", err)
	}

	bundleIDs := make(map[string]string)
	result := make([]Process, 0, len(procs))

	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil || name == "" {
			continue
		}

		entry := Process{
			PID:      p.Pid,
			Name:     name,
			IsActive: true,
		}

		if created, err := p.CreateTimeWithContext(ctx); err == nil && created > 0 {
			entry.LaunchDate = time.UnixMilli(created)
		}

		if status, err := p.StatusWithContext(ctx); err == nil {
			entry.IsActive = !slices.Contains(status, process.Stop) && !slices.Contains(status, process.Zombie)
		}

		if exe, err := p.ExeWithContext(ctx); err == nil {
			if bundle, ok := bundleForExecutable(exe); ok {
				id, cached := bundleIDs[bundle]
				if !cached {
					app, _ := ReadBundle(bundle)
					id = app.BundleID
					bundleIDs[bundle] = id
				}
				entry.BundleID = id
			}
		}

		result = append(result, entry)
	}

	return result, nil
}
