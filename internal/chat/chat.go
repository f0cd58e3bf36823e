// Package chat builds and streams the constrained follow-up
// conversation about an analyzed prescription. The analysis result is
// the grounding context for every turn; when it is UNRESOLVABLE a
// safety directive blocks medicine-name guessing regardless of mode.
package chat

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rxlens/rxlens/internal/analysis"
	"github.com/rxlens/rxlens/internal/vision"
)

// Mode selects the base system instruction for a chat turn. The set is
// closed; an unrecognized mode is a configuration error, never a
// generic-assistant default.
type Mode string

const (
	ModeExplain  Mode = "explain"
	ModeSchedule Mode = "schedule"
)

var modePrompts = map[Mode]string{
	ModeExplain: `You are a medical assistant.
STRICT RULE: If no valid prescription data is provided in context, refuse to answer and ask the user to upload a prescription.
Use the provided structured data to explain medicine purposes and usage.
STRICT: Only refer to the medicines in the current prescription.
DISCLAIMER: Always start with "Note: This is an AI explanation, not medical advice."`,

	ModeSchedule: `You are a medication scheduling assistant.
STRICT RULE: If no valid prescription data is provided in context, refuse to answer and ask the user to upload a prescription.
Convert the prescription into a daily schedule.
DISCLAIMER: "Note: Confirm this schedule with your pharmacist."`,
}

// Disclaimer is appended as the final fragment of every chat reply. It
// is a process-wide constant, never model-generated.
const Disclaimer = "\n\n**⚠️ Disclaimer:** This is an AI-generated analysis of a prescription. It is not a medical diagnosis or professional advice. Always verify with your doctor or pharmacist before taking any medication."

// unresolvableDirective is injected verbatim into the system message
// whenever the ambiguity state is UNRESOLVABLE. It cannot be suppressed
// by mode.
const unresolvableDirective = "\n\nSAFETY RULE: The current prescription handwriting is UNRESOLVABLE. Do NOT infer or suggest medicine names unless the user explicitly provides them in this chat. Avoid all guesses."

// Turn is one entry of a conversation history. Append-only, owned by
// the session, cleared only on session reset.
type Turn struct {
	Role string `json:"role"` // "user" or "assistant"
	Text string `json:"text"`
}

// Recorder receives the two turns of a completed chat exchange, exactly
// once per completed turn. Aborted streams record nothing.
type Recorder interface {
	AppendTurns(user, assistant Turn) error
}

// Streamer drives chat turns through the vision client.
type Streamer struct {
	client *vision.Client
}

// NewStreamer creates a Streamer on the given client.
func NewStreamer(client *vision.Client) *Streamer {
	return &Streamer{client: client}
}

// BuildMessages assembles the outgoing message set for one turn: the
// mode's system instruction with the extraction context (and the safety
// directive when UNRESOLVABLE), the prior history in order, then the
// new user turn carrying the prescription image and the user's text.
func BuildMessages(res *analysis.Result, mode Mode, userText, imageDataURL string, history []Turn) ([]vision.Message, error) {
	base, ok := modePrompts[mode]
	if !ok {
		return nil, &vision.ConfigurationError{Reason: fmt.Sprintf("unknown chat mode %q", mode)}
	}

	if res.AmbiguityState == analysis.StateUnresolvable {
		base += unresolvableDirective
	}

	contextJSON, err := json.Marshal(res.Extraction)
	if err != nil {
		return nil, fmt.Errorf("marshalling extraction context: %w", err)
	}
	system := fmt.Sprintf("%s\n\nContext: The following verified data was extracted from the prescription: %s", base, contextJSON)

	messages := []vision.Message{vision.SystemMessage(system)}
	for _, turn := range history {
		if turn.Role == "assistant" {
			messages = append(messages, vision.AssistantText(turn.Text))
		} else {
			messages = append(messages, vision.UserText(turn.Text))
		}
	}
	messages = append(messages, vision.UserImage(imageDataURL, userText))
	return messages, nil
}

// Continue streams the next reply for a conversation. The returned
// TurnStream yields the model's fragments in order, then the disclaimer
// as one final fragment. The user and assistant turns are recorded
// through rec only when the stream completes.
func (s *Streamer) Continue(ctx context.Context, res *analysis.Result, mode Mode, userText, imageDataURL string, history []Turn, rec Recorder, p vision.Params) (*TurnStream, error) {
	messages, err := BuildMessages(res, mode, userText, imageDataURL, history)
	if err != nil {
		return nil, err
	}
	stream, err := s.client.Stream(ctx, messages, p)
	if err != nil {
		return nil, err
	}
	return &TurnStream{inner: stream, userText: userText, rec: rec}, nil
}
