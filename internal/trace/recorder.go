package trace

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Recorder appends events to CSV files with automatic rotation.
type Recorder struct {
	mu      sync.Mutex
	dir     string
	enabled bool

	file   *os.File
	writer *csv.Writer
	rows   int

	maxRows int
	now     func() time.Time
}

const maxRowsPerFile = 100_000 // about a day of one-second exchanges

var csvHeader = []string{"timestamp", "direction", "type", "text", "generation"}

// NewRecorder creates a recorder writing under dir.
func NewRecorder(dir string, enabled bool) *Recorder {
	if dir == "" {
		dir = "traces"
	}
	return &Recorder{dir: dir, enabled: enabled, maxRows: maxRowsPerFile, now: time.Now}
}

// SetEnabled allows toggling recording at runtime.
func (r *Recorder) SetEnabled(on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = on
	if !on && r.file != nil {
		r.closeFile()
	}
}

// IsEnabled returns whether recording is active.
func (r *Recorder) IsEnabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enabled
}

// Record writes one event.
func (r *Recorder) Record(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.enabled {
		return
	}

	if r.writer == nil || r.rows >= r.maxRows {
		if err := r.rotateFile(r.now()); err != nil {
			log.Warn().Str("component", "trace").Err(err).Msg("rotate failed")
			return
		}
	}

	row := []string{
		time.UnixMilli(e.Stamp).Format(time.RFC3339Nano),
		e.Direction,
		e.Type,
		e.Text,
		strconv.FormatUint(e.Generation, 10),
	}
	if err := r.writer.Write(row); err != nil {
		log.Warn().Str("component", "trace").Err(err).Msg("write failed")
		return
	}
	r.writer.Flush()
	r.rows++
}

// Close flushes and closes the current file.
func (r *Recorder) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeFile()
}

func (r *Recorder) rotateFile(now time.Time) error {
	r.closeFile()

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", r.dir, err)
	}

	name := fmt.Sprintf("macropad_%s.csv", now.Format("2006-01-02_150405.000"))
	path := filepath.Join(r.dir, name)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	r.file = f
	r.writer = csv.NewWriter(f)
	r.rows = 0

	if err := r.writer.Write(csvHeader); err != nil {
		return err
	}
	r.writer.Flush()

	log.Info().Str("component", "trace").Str("path", path).Msg("trace file opened")
	return nil
}

func (r *Recorder) closeFile() {
	if r.writer != nil {
		r.writer.Flush()
		r.writer = nil
	}
	if r.file != nil {
		r.file.Close()
		r.file = nil
	}
}
