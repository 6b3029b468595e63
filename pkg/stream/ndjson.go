package stream

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sync"

	jsoniter "github.com/json-iterator/go"
)

// ContentType is the media type of an encoded event stream.
const ContentType = "application/jsonl"

// ErrClosed is returned by Emit once the terminal event has been written.
var ErrClosed = errors.New("stream closed")

// EncodeError reports an event whose payload cannot be encoded. The sink
// itself is still usable.
type EncodeError struct {
	Type Kind
	Err  error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode %s event: %v", e.Type, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }

// Encode marshals one event. Failures are returned as *EncodeError.
func Encode(ev Event) ([]byte, error) {
	line, err := json.Marshal(ev)
	if err != nil {
		return nil, &EncodeError{Type: ev.Type, Err: err}
	}
	return line, nil
}

type flusher interface {
	Flush()
}

// Writer encodes events as one JSON object per line and flushes after each
// line when the underlying writer supports it (http.ResponseWriter does).
type Writer struct {
	mu     sync.Mutex
	w      io.Writer
	closed bool
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (sw *Writer) Emit(ev Event) error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if sw.closed {
		return ErrClosed
	}

	line, err := Encode(ev)
	if err != nil {
		return err
	}
	line = append(line, '\n')
	if _, err := sw.w.Write(line); err != nil {
		return err
	}
	if f, ok := sw.w.(flusher); ok {
		f.Flush()
	}
	if ev.Type == KindEnd {
		sw.closed = true
	}
	return nil
}

// RawEvent is a decoded record whose payload has not been interpreted yet.
type RawEvent struct {
	Type Kind                `json:"type"`
	Data jsoniter.RawMessage `json:"data"`
}

// Decode unmarshals the payload into v.
func (e RawEvent) Decode(v any) error {
	return json.Unmarshal(e.Data, v)
}

// Reader consumes an encoded stream line by line.
type Reader struct {
	sc   *bufio.Scanner
	done bool
}

func NewReader(r io.Reader) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	return &Reader{sc: sc}
}

// Next returns the next event. It returns io.EOF after an end event, after
// an unparseable line, or when the input is exhausted; the end event itself
// is returned before that.
func (sr *Reader) Next() (RawEvent, error) {
	if sr.done {
		return RawEvent{}, io.EOF
	}
	for sr.sc.Scan() {
		line := sr.sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev RawEvent
		if err := json.Unmarshal(line, &ev); err != nil || ev.Type == "" {
			sr.done = true
			return RawEvent{}, io.EOF
		}
		if ev.Type == KindEnd {
			sr.done = true
		}
		return ev, nil
	}
	sr.done = true
	if err := sr.sc.Err(); err != nil {
		return RawEvent{}, err
	}
	return RawEvent{}, io.EOF
}

// ReadAll drains r into a slice.
func ReadAll(r io.Reader) ([]RawEvent, error) {
	sr := NewReader(r)
	var out []RawEvent
	for {
		ev, err := sr.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, ev)
	}
}
