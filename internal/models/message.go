package models

import (
	"encoding/json"
	"time"
)

// Message represents an individual entry in a paper's chat transcript. The
// transcript is append-only; the only mutation an existing message ever
// sees is a pending assistant placeholder being resolved into its final
// text and sources.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Sources   []Source  `json:"sources,omitempty"`
	Pending   bool      `json:"pending,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Source is the citation metadata attached to an assistant answer, pointing
// at the passage(s) the answer was grounded in. All fields are optional.
type Source struct {
	Section string `json:"section,omitempty"`
	Index   int    `json:"index,omitempty"`
	Excerpt string `json:"excerpt,omitempty"`
}

// Role represents the role of a message participant.
type Role string

const (
	// RoleUser represents a message typed by the user.
	RoleUser Role = "user"
	// RoleAssistant represents an answer (or pending placeholder) from the
	// backend.
	RoleAssistant Role = "assistant"
)

// PendingAnswerText is the provisional text shown in an assistant
// placeholder while the backend works on the answer.
const PendingAnswerText = "Thinking…"

// UnmarshalJSON accepts both source shapes the backend emits: a structured
// object, or a bare string which becomes the excerpt.
func (s *Source) UnmarshalJSON(data []byte) error {
	var excerpt string
	if err := json.Unmarshal(data, &excerpt); err == nil {
		*s = Source{Excerpt: excerpt}
		return nil
	}

	type source Source
	var raw source
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = Source(raw)
	return nil
}
