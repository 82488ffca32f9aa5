package stats

import (
	"context"
	"math"
	"math/rand"
	"sync"
)

// Demo generates plausible drifting counters.
type Demo struct {
	mu      sync.Mutex
	t       float64 // virtual time accumulator
	battery float64
}

func NewDemo() *Demo {
	return &Demo{battery: 100}
}

func (d *Demo) Name() string { return "Demo (Simulated)" }

func (d *Demo) Snapshot(context.Context) Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.t += 1 // one tick per service interval

	cpu := 15 + 60*math.Sin(d.t*0.2)*math.Sin(d.t*0.2) + rand.Float64()*5
	ram := 45 + 10*math.Sin(d.t*0.05) + rand.Float64()*2

	d.battery -= 0.05
	if d.battery < 5 {
		d.battery = 100
	}

	return Snapshot{
		RAM:     clampPercent(ram),
		CPU:     clampPercent(cpu),
		Battery: clampPercent(d.battery),
	}
}
