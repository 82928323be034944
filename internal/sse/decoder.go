// Package sse decodes server-sent event streams into discrete events.
//
// The decoder makes no attempt to interpret event payloads; whatever is
// embedded in the data lines is the caller's business.
package sse

import (
	"bufio"
	"io"
	"strings"
)

// DefaultEventType is used when a frame carries no event field.
const DefaultEventType = "message"

// Event is one complete server-sent event frame.
type Event struct {
	Type string
	ID   string
	Data string
}

// frameState accumulates the fields of the frame currently being
// decoded. Decoding is a pure step function over lines, so the state can
// be exercised without a live connection.
type frameState struct {
	eventType string
	data      []string
	id        string
}

// feed applies one line to the state. ok reports whether the line
// completed a frame.
func (s *frameState) feed(line string) (Event, bool) {
	line = strings.TrimRight(line, " \t\r\n")

	switch {
	case line == "":
		// a blank line finishes the frame
		return s.flush()
	case strings.HasPrefix(line, "event:"):
		s.eventType = strings.TrimSpace(line[len("event:"):])
	case strings.HasPrefix(line, "data:"):
		s.data = append(s.data, strings.TrimSpace(line[len("data:"):]))
	case strings.HasPrefix(line, "id:"):
		s.id = strings.TrimSpace(line[len("id:"):])
	case strings.HasPrefix(line, ":"):
		// comment, often used as a heartbeat
	default:
		// not a recognized field
	}

	return Event{}, false
}

// flush emits the pending frame, if anything accumulated, and resets the
// state. A frame with neither an event type nor data emits nothing.
func (s *frameState) flush() (Event, bool) {
	if s.eventType == "" && len(s.data) == 0 {
		return Event{}, false
	}

	event := Event{
		Type: s.eventType,
		ID:   s.id,
		Data: strings.Join(s.data, "\n"),
	}
	if event.Type == "" {
		event.Type = DefaultEventType
	}

	*s = frameState{}

	return event, true
}

// Decoder reads server-sent events off an incremental line stream, one
// decoder per response body.
type Decoder struct {
	r     *bufio.Reader
	state frameState
	err   error
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Next blocks until the next frame completes and returns it. At end of
// input an unterminated frame with accumulated content is still
// returned; after that, Next returns io.EOF.
func (d *Decoder) Next() (Event, error) {
	for {
		if d.err != nil {
			if event, ok := d.state.flush(); ok {
				return event, nil
			}
			return Event{}, d.err
		}

		line, err := d.r.ReadString('\n')
		if err != nil {
			// a final line without a trailing newline still counts
			d.err = err
			if line == "" {
				continue
			}
		}

		if event, ok := d.state.feed(line); ok {
			return event, nil
		}
	}
}
