package vision

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
)

const dataPrefix = "data: "

// maxEventSize bounds a single SSE line; model deltas are tiny but error
// payloads embedded in events can be large.
const maxEventSize = 1 << 20

// Stream is a single-pass reader over the model's token fragments,
// parsed from the SSE response body. It is not restartable: once Recv
// returns io.EOF the underlying connection is closed. Recv and Close
// must not be called concurrently.
type Stream struct {
	body io.ReadCloser
	sc   *bufio.Scanner
	done bool
}

func newStream(body io.ReadCloser) *Stream {
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 64*1024), maxEventSize)
	return &Stream{body: body, sc: sc}
}

// sseEvent is the slice of the event payload we consume; everything else
// is ignored.
type sseEvent struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// Recv returns the next non-empty text fragment in wire order. It
// returns io.EOF after the `[DONE]` event or when the body ends.
// Malformed event lines, lines without the data prefix, and events
// lacking the delta path are skipped, never surfaced as errors.
func (s *Stream) Recv() (string, error) {
	if s.done {
		return "", io.EOF
	}

	for s.sc.Scan() {
		line := s.sc.Text()
		if !strings.HasPrefix(line, dataPrefix) {
			continue
		}
		payload := line[len(dataPrefix):]

		if strings.TrimSpace(payload) == "[DONE]" {
			return "", s.finish()
		}

		var ev sseEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			continue
		}
		if len(ev.Choices) == 0 {
			continue
		}
		if content := ev.Choices[0].Delta.Content; content != "" {
			return content, nil
		}
	}

	if err := s.sc.Err(); err != nil {
		s.finish()
		return "", &TransportError{Op: "read", Err: err}
	}
	return "", s.finish()
}

func (s *Stream) finish() error {
	s.done = true
	s.body.Close()
	return io.EOF
}

// Close releases the underlying connection. Safe to call more than once
// and after Recv has returned io.EOF. A caller abandoning a live stream
// must Close it; no further fragments are produced afterwards.
func (s *Stream) Close() error {
	if s.done {
		return nil
	}
	s.done = true
	return s.body.Close()
}

// Collect drains the stream into the full reply text and closes it.
// Concatenating the fragments reconstructs the model output exactly.
func (s *Stream) Collect() (string, error) {
	defer s.Close()
	var b strings.Builder
	for {
		frag, err := s.Recv()
		if err == io.EOF {
			return b.String(), nil
		}
		if err != nil {
			return "", err
		}
		b.WriteString(frag)
	}
}
