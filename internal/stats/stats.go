// Package stats samples host performance counters for the PC_PERFORMANCE
// display page.
package stats

import "context"

// Snapshot holds whole percentages, each 0-100.
type Snapshot struct {
	RAM     int `json:"ram"`
	CPU     int `json:"cpu"`
	Battery int `json:"battery"` // 0 when the host has no battery
}

// Source is the interface all counter backends implement.
type Source interface {
	// Name returns a human-readable backend name.
	Name() string
	// Snapshot samples the counters. Unreadable counters report 0.
	Snapshot(ctx context.Context) Snapshot
}

func clampPercent(v float64) int {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return int(v + 0.5)
}
