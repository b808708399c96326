package transcript

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestRecorder_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	r := NewRecorder(&buf)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	r.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	lines := []string{"bob>hi", "alice>hello there", ""}
	for _, line := range lines {
		if err := r.Chat(line); err != nil {
			t.Fatalf("Chat(%q) error = %v", line, err)
		}
	}
	if err := r.Disconnected("Server disconnected"); err != nil {
		t.Fatalf("Disconnected() error = %v", err)
	}

	entries, err := Read(&buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("Read() returned %d entries, want 4", len(entries))
	}
	for i, line := range lines {
		if entries[i].Kind != KindChat || entries[i].Text != line {
			t.Errorf("entry %d = %+v, want chat %q", i, entries[i], line)
		}
	}
	last := entries[3]
	if last.Kind != KindDisconnected || last.Text != "Server disconnected" {
		t.Errorf("last entry = %+v", last)
	}
	if !last.Time.Equal(base.Add(4 * time.Second)) {
		t.Errorf("last entry time = %v", last.Time)
	}
}

func TestRecorder_File(t *testing.T) {
	for _, name := range []string{"chat.pb", "chat.pb.zst"} {
		t.Run(name, func(t *testing.T) {
			testRecorderFile(t, filepath.Join(t.TempDir(), name))
		})
	}
}

func testRecorderFile(t *testing.T, path string) {
	for _, line := range []string{"first", "second"} {
		r, err := Create(path)
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if err := r.Chat(line); err != nil {
			t.Fatal(err)
		}
		if err := r.Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}
		if err := r.Chat("late"); !errors.Is(err, os.ErrClosed) {
			t.Errorf("Chat() after Close error = %v, want os.ErrClosed", err)
		}
	}

	entries, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if len(entries) != 2 || entries[0].Text != "first" || entries[1].Text != "second" {
		t.Errorf("entries = %+v", entries)
	}
}

func TestRead_Truncated(t *testing.T) {
	var buf bytes.Buffer
	if err := NewRecorder(&buf).Chat("a complete line"); err != nil {
		t.Fatal(err)
	}
	data := buf.Bytes()
	entries, err := Read(bytes.NewReader(data[:len(data)-3]))
	if err == nil {
		t.Error("Read() of a truncated transcript succeeded")
	}
	if len(entries) != 0 {
		t.Errorf("entries = %+v", entries)
	}
}
