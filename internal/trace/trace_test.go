package trace

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/shaunagostinho/macropad-link/internal/protocol"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	return rows
}

func traceFiles(t *testing.T, dir string) []string {
	t.Helper()
	files, err := filepath.Glob(filepath.Join(dir, "macropad_*.csv"))
	if err != nil {
		t.Fatal(err)
	}
	sort.Strings(files)
	return files
}

func TestRecorderWritesRows(t *testing.T) {
	dir := t.TempDir()
	r := NewRecorder(dir, true)
	defer r.Close()

	r.Record(Event{Direction: Out, Type: "PC_PERFORMANCE", Text: "145|07|100", Generation: 1, Stamp: 1000})
	r.Record(Event{Direction: In, Type: "TIMER_STATUS", Generation: 1, Stamp: 2000})

	files := traceFiles(t, dir)
	if len(files) != 1 {
		t.Fatalf("files = %v", files)
	}
	rows := readCSV(t, files[0])
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want header + 2", len(rows))
	}
	if rows[1][1] != Out || rows[1][3] != "145|07|100" || rows[1][4] != "1" {
		t.Errorf("row = %v", rows[1])
	}
}

func TestRecorderDisabled(t *testing.T) {
	dir := t.TempDir()
	r := NewRecorder(dir, false)
	r.Record(Event{Direction: Out})
	if files := traceFiles(t, dir); len(files) != 0 {
		t.Errorf("disabled recorder wrote %v", files)
	}

	r.SetEnabled(true)
	r.Record(Event{Direction: Out})
	r.SetEnabled(false)
	if !(len(traceFiles(t, dir)) == 1 && !r.IsEnabled()) {
		t.Error("toggle did not take effect")
	}
}

func TestRecorderRotates(t *testing.T) {
	dir := t.TempDir()
	r := NewRecorder(dir, true)
	defer r.Close()
	r.maxRows = 2
	clock := time.Unix(1700000000, 0)
	r.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	for i := 0; i < 5; i++ {
		r.Record(Event{Direction: Out, Stamp: int64(i)})
	}
	if files := traceFiles(t, dir); len(files) != 3 {
		t.Errorf("files = %d, want 3", len(files))
	}
}

func TestOutboundAndInbound(t *testing.T) {
	now := time.UnixMilli(5000)
	report, _ := protocol.DefaultCodec.EncodeText(protocol.TimerStatus, "RUNNING|00:24:59")

	out := Outbound(report, 3, now)
	if out.Type != "TIMER_STATUS" || out.Text != "6RUNNING|00:24:59" || out.Generation != 3 || out.Stamp != 5000 {
		t.Errorf("outbound = %+v", out)
	}

	in := Inbound([]byte{byte(protocol.CurrentSong), 0, 0}, 3, now)
	if in.Direction != In || in.Type != "CURRENT_SONG" {
		t.Errorf("inbound = %+v", in)
	}
	if e := Inbound(nil, 1, now); e.Type != "" {
		t.Errorf("empty inbound type = %q", e.Type)
	}
}

type countSink struct{ n int }

func (c *countSink) Record(Event) { c.n++ }

func TestMulti(t *testing.T) {
	a, b := &countSink{}, &countSink{}
	Multi{a, nil, b}.Record(Event{})
	if a.n != 1 || b.n != 1 {
		t.Errorf("counts = %d %d", a.n, b.n)
	}
}
