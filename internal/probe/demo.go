package probe

import (
	"context"
	"math/rand"
	"time"
)

// Demo simulates a measurement that takes d and returns plausible numbers.
func Demo(d time.Duration) Func {
	return func(ctx context.Context) (Result, error) {
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-time.After(d):
		}
		return Result{
			Download: round1(80 + rand.Float64()*40),
			Upload:   round1(15 + rand.Float64()*10),
		}, nil
	}
}
