package probe

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog/log"
	"github.com/showwin/speedtest-go/speedtest"
)

// Speedtest measures against the closest speedtest.net server.
func Speedtest() Func {
	client := speedtest.New()
	return func(ctx context.Context) (Result, error) {
		servers, err := client.FetchServerListContext(ctx)
		if err != nil {
			return Result{}, fmt.Errorf("probe: fetch servers: %w", err)
		}
		targets, err := servers.FindServer(nil)
		if err != nil {
			return Result{}, fmt.Errorf("probe: find server: %w", err)
		}
		if len(targets) == 0 {
			return Result{}, errors.New("probe: no speedtest server available")
		}

		s := targets[0]
		log.Debug().Str("component", "probe").Str("server", s.Name).Str("sponsor", s.Sponsor).Msg("measuring")

		if err := s.DownloadTestContext(ctx); err != nil {
			return Result{}, fmt.Errorf("probe: download: %w", err)
		}
		if err := s.UploadTestContext(ctx); err != nil {
			return Result{}, fmt.Errorf("probe: upload: %w", err)
		}
		return Result{
			Download: round1(s.DLSpeed.Mbps()),
			Upload:   round1(s.ULSpeed.Mbps()),
		}, nil
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
