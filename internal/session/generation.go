package session

import (
	"sync"

	"github.com/shaunagostinho/macropad-link/internal/device"
)

// generation is one opened handle plus the channels of its single reader.
type generation struct {
	id   uint64
	conn device.Conn

	replies chan []byte

	stop     chan struct{} // closed by the owner to retire the reader
	stopOnce sync.Once
	exited   chan struct{} // closed when the reader returns

	done     chan struct{} // closed once the handle is known dead
	failOnce sync.Once
	mu       sync.Mutex
	err      error
}

func newGeneration(id uint64, conn device.Conn) *generation {
	return &generation{
		id:      id,
		conn:    conn,
		replies: make(chan []byte, 4),
		stop:    make(chan struct{}),
		exited:  make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func (g *generation) fail(err error) {
	g.failOnce.Do(func() {
		g.mu.Lock()
		g.err = err
		g.mu.Unlock()
		close(g.done)
	})
}

func (g *generation) cause() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.err
}

func (g *generation) drain() {
	for {
		select {
		case <-g.replies:
		default:
			return
		}
	}
}
