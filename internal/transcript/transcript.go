// Package transcript records what a chat session received: chat lines and
// the reason the connection was lost. Entries are length-delimited protobuf
// Struct messages, so a transcript can be read back while it is still
// being appended to. Files ending in .zst are zstd-compressed, one flushed
// block per entry.
package transcript

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"google.golang.org/protobuf/encoding/protodelim"
	"google.golang.org/protobuf/types/known/structpb"
)

// Kind is the type of a transcript entry.
type Kind string

const (
	KindChat         Kind = "chat"
	KindDisconnected Kind = "disconnected"
)

// Entry is one recorded event.
type Entry struct {
	Time time.Time
	Kind Kind
	Text string
}

func (e Entry) toProto() (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"time": e.Time.UTC().Format(time.RFC3339Nano),
		"kind": string(e.Kind),
		"text": e.Text,
	})
}

func fromProto(s *structpb.Struct) (Entry, error) {
	fields := s.GetFields()
	ts, err := time.Parse(time.RFC3339Nano, fields["time"].GetStringValue())
	if err != nil {
		return Entry{}, fmt.Errorf("transcript entry time: %w", err)
	}
	return Entry{
		Time: ts,
		Kind: Kind(fields["kind"].GetStringValue()),
		Text: fields["text"].GetStringValue(),
	}, nil
}

// Recorder appends entries to a writer. It is safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	w       io.Writer
	flush   func() error
	closers []io.Closer
	now     func() time.Time
}

// NewRecorder records to w.
func NewRecorder(w io.Writer) *Recorder {
	return &Recorder{w: w, now: time.Now}
}

func compressed(path string) bool {
	return strings.HasSuffix(path, ".zst")
}

// Create opens path for appending, creating it if needed.
func Create(path string) (*Recorder, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening transcript: %w", err)
	}
	if !compressed(path) {
		r := NewRecorder(f)
		r.closers = []io.Closer{f}
		return r, nil
	}

	enc, err := zstd.NewWriter(f, zstd.WithEncoderConcurrency(1))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("opening transcript: %w", err)
	}
	r := NewRecorder(enc)
	r.flush = enc.Flush
	r.closers = []io.Closer{enc, f}
	return r, nil
}

// Chat records a received chat line.
func (r *Recorder) Chat(line string) error {
	return r.record(KindChat, line)
}

// Disconnected records that the connection was lost.
func (r *Recorder) Disconnected(reason string) error {
	return r.record(KindDisconnected, reason)
}

func (r *Recorder) record(kind Kind, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.w == nil {
		return os.ErrClosed
	}

	msg, err := Entry{Time: r.now(), Kind: kind, Text: text}.toProto()
	if err != nil {
		return err
	}
	if _, err := protodelim.MarshalTo(r.w, msg); err != nil {
		return fmt.Errorf("writing transcript: %w", err)
	}
	if r.flush != nil {
		if err := r.flush(); err != nil {
			return fmt.Errorf("writing transcript: %w", err)
		}
	}
	return nil
}

// Close stops recording and closes the file opened by Create.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.w = nil
	var errs []error
	for _, c := range r.closers {
		errs = append(errs, c.Close())
	}
	r.closers = nil
	return errors.Join(errs...)
}

// Read decodes every entry in rd.
func Read(rd io.Reader) ([]Entry, error) {
	br := bufio.NewReader(rd)
	var entries []Entry
	for {
		msg := &structpb.Struct{}
		if err := protodelim.UnmarshalFrom(br, msg); err != nil {
			if errors.Is(err, io.EOF) {
				return entries, nil
			}
			return entries, fmt.Errorf("reading transcript: %w", err)
		}
		entry, err := fromProto(msg)
		if err != nil {
			return entries, err
		}
		entries = append(entries, entry)
	}
}

// ReadFile decodes the transcript at path.
func ReadFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if !compressed(path) {
		return Read(f)
	}

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("reading transcript: %w", err)
	}
	defer dec.Close()
	return Read(dec)
}
