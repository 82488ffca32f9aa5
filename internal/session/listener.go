package session

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/shaunagostinho/macropad-link/internal/protocol"
)

// listen is the only reader of a generation's handle. Relay interrupts go
// to the interrupts channel, everything else answers the pending exchange.
// It exits on a read error, when retired, or once a newer generation exists.
func (s *Session) listen(g *generation) {
	defer close(g.exited)

	buf := make([]byte, s.cfg.ReportLength)
	for {
		select {
		case <-g.stop:
			return
		default:
		}
		if s.genID.Load() != g.id {
			return
		}

		n, err := g.conn.ReadTimeout(buf, s.cfg.ListenTimeout)
		if err != nil {
			select {
			case <-g.stop:
				// Retired while reading; the owner already knows.
			default:
				log.Warn().Str("component", "listener").Uint64("generation", g.id).Err(err).Msg("read failed, listener exiting")
				g.fail(err)
				if s.genID.Load() == g.id {
					s.transition(evLost)
				}
			}
			return
		}

		if n > 0 {
			frame := make([]byte, n)
			copy(frame, buf[:n])
			s.route(g, frame)
		}

		select {
		case <-g.stop:
			return
		case <-time.After(s.cfg.ListenYield):
		}
	}
}

func (s *Session) route(g *generation, frame []byte) {
	if protocol.RequestType(frame[0]) == protocol.RGBRelay {
		if len(frame) < 2 {
			return
		}
		layer := frame[1]
		log.Debug().Str("component", "listener").Uint8("layer", layer).Msg("relay interrupt received")
		select {
		case s.interrupts <- layer:
		default:
			log.Warn().Str("component", "listener").Uint8("layer", layer).Msg("relay queue full, interrupt dropped")
		}
		return
	}

	select {
	case g.replies <- frame:
	default:
		log.Warn().Str("component", "listener").Uint8("tag", frame[0]).Msg("reply queue full, frame dropped")
	}
}
