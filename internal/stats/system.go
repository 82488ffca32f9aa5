package stats

import (
	"context"
	"errors"

	"github.com/distatus/battery"
	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// System reads the real host counters.
type System struct{}

// NewSystem primes the CPU counter so the first Snapshot reports the
// usage since startup rather than 0.
func NewSystem() *System {
	if _, err := cpu.Percent(0, false); err != nil {
		log.Warn().Str("component", "stats").Err(err).Msg("cpu counter unavailable")
	}
	return &System{}
}

func (s *System) Name() string { return "System" }

func (s *System) Snapshot(ctx context.Context) Snapshot {
	var snap Snapshot

	if vm, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		log.Debug().Str("component", "stats").Err(err).Msg("read memory")
	} else {
		snap.RAM = clampPercent(vm.UsedPercent)
	}

	// Interval 0 compares against the previous call.
	if pct, err := cpu.PercentWithContext(ctx, 0, false); err != nil || len(pct) == 0 {
		log.Debug().Str("component", "stats").Err(err).Msg("read cpu")
	} else {
		snap.CPU = clampPercent(pct[0])
	}

	snap.Battery = batteryPercent()
	return snap
}

// batteryPercent aggregates all batteries; partial read errors are
// tolerated as long as some capacity figures came back.
func batteryPercent() int {
	bats, err := battery.GetAll()
	if err != nil {
		var partial battery.Errors
		if !errors.As(err, &partial) {
			log.Debug().Str("component", "stats").Err(err).Msg("read battery")
			return 0
		}
	}

	var current, full float64
	for _, b := range bats {
		if b == nil {
			continue
		}
		current += b.Current
		full += b.Full
	}
	if full <= 0 {
		return 0
	}
	return clampPercent(current / full * 100)
}
