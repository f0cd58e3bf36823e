package vision

import "encoding/base64"

// Role identifies the sender of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ContentPart is one ordered part of a message: text or an embedded image.
type ContentPart struct {
	Type     string    `json:"type"` // "text" or "image_url"
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageRef `json:"image_url,omitempty"`
}

// ImageRef wraps an image data URL in the wire shape the endpoint expects.
type ImageRef struct {
	URL string `json:"url"`
}

// Message is one multi-part message in a conversation. Immutable once sent.
type Message struct {
	Role    Role          `json:"role"`
	Content []ContentPart `json:"content"`
}

// TextPart builds a text content part.
func TextPart(text string) ContentPart {
	return ContentPart{Type: "text", Text: text}
}

// ImagePart builds an image content part from a data URL.
func ImagePart(dataURL string) ContentPart {
	return ContentPart{Type: "image_url", ImageURL: &ImageRef{URL: dataURL}}
}

// SystemMessage builds a single-part system message.
func SystemMessage(text string) Message {
	return Message{Role: RoleSystem, Content: []ContentPart{TextPart(text)}}
}

// UserText builds a plain-text user message.
func UserText(text string) Message {
	return Message{Role: RoleUser, Content: []ContentPart{TextPart(text)}}
}

// UserImage builds a user message carrying an image followed by an
// instruction. The image comes first so the model reads the instruction
// in context of it.
func UserImage(dataURL, text string) Message {
	return Message{Role: RoleUser, Content: []ContentPart{ImagePart(dataURL), TextPart(text)}}
}

// AssistantText builds a plain-text assistant message, used when
// replaying conversation history.
func AssistantText(text string) Message {
	return Message{Role: RoleAssistant, Content: []ContentPart{TextPart(text)}}
}

// Params are the sampling parameters forwarded to the model. The client
// passes them through as-is; out-of-range values are the endpoint's
// problem to reject.
type Params struct {
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
	TopP        float64 `json:"top_p"`
}

// DefaultParams returns the conversational defaults.
func DefaultParams() Params {
	return Params{Temperature: 0.7, MaxTokens: 1024, TopP: 0.9}
}

// SniffMIME detects the image MIME type from magic bytes, defaulting to
// a generic binary type for anything unrecognized.
func SniffMIME(b []byte) string {
	if len(b) >= 2 && b[0] == 0xFF && b[1] == 0xD8 {
		return "image/jpeg"
	}
	if len(b) >= 8 &&
		b[0] == 0x89 && b[1] == 0x50 && b[2] == 0x4E && b[3] == 0x47 &&
		b[4] == 0x0D && b[5] == 0x0A && b[6] == 0x1A && b[7] == 0x0A {
		return "image/png"
	}
	return "application/octet-stream"
}

// DataURL encodes raw image bytes as a base64 data URL, sniffing the
// MIME type when none is given.
func DataURL(mime string, data []byte) string {
	if mime == "" {
		mime = SniffMIME(data)
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}
