package stats

import (
	"context"
	"testing"
)

func TestClampPercent(t *testing.T) {
	tests := []struct {
		in   float64
		want int
	}{
		{-3, 0},
		{0, 0},
		{4.4, 4},
		{4.5, 5},
		{99.6, 100},
		{140, 100},
	}
	for _, tt := range tests {
		if got := clampPercent(tt.in); got != tt.want {
			t.Errorf("clampPercent(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestDemoStaysInRange(t *testing.T) {
	d := NewDemo()
	for i := 0; i < 5000; i++ {
		s := d.Snapshot(context.Background())
		for name, v := range map[string]int{"ram": s.RAM, "cpu": s.CPU, "battery": s.Battery} {
			if v < 0 || v > 100 {
				t.Fatalf("tick %d: %s = %d out of range", i, name, v)
			}
		}
	}
}
