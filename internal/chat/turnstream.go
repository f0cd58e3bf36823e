package chat

import (
	"io"
	"log"
	"strings"

	"github.com/rxlens/rxlens/internal/vision"
)

// TurnStream is the single-pass fragment sequence of one chat turn.
// The last fragment is always the disclaimer; history is recorded at
// the moment the model stream is exhausted, before the disclaimer is
// handed out, so a consumer that saw the disclaimer is guaranteed the
// turn was persisted.
type TurnStream struct {
	inner    *vision.Stream
	userText string
	rec      Recorder

	reply      strings.Builder
	disclaimed bool
	closed     bool
}

// Recv returns the next fragment, ending with io.EOF after the
// disclaimer. A transport error aborts the turn: nothing is recorded.
func (t *TurnStream) Recv() (string, error) {
	if t.closed {
		return "", io.EOF
	}
	if t.disclaimed {
		t.closed = true
		return "", io.EOF
	}

	frag, err := t.inner.Recv()
	if err == io.EOF {
		t.disclaimed = true
		t.record()
		return Disclaimer, nil
	}
	if err != nil {
		t.closed = true
		return "", err
	}
	t.reply.WriteString(frag)
	return frag, nil
}

func (t *TurnStream) record() {
	if t.rec == nil {
		return
	}
	user := Turn{Role: "user", Text: t.userText}
	assistant := Turn{Role: "assistant", Text: t.reply.String() + Disclaimer}
	if err := t.rec.AppendTurns(user, assistant); err != nil {
		log.Printf("chat: recording turn: %v", err)
	}
}

// Close abandons the turn, releasing the underlying connection. If the
// stream had not completed, no history is recorded.
func (t *TurnStream) Close() error {
	t.closed = true
	return t.inner.Close()
}
