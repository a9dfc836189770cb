package relay

import "strings"

type Speaker string

const (
	SpeakerCustomer  Speaker = "customer"
	SpeakerAssistant Speaker = "assistant"
)

// Utterance is one finalized speaker turn.
type Utterance struct {
	Speaker Speaker
	Text    string
}

// Transcript is the append-only record of a call. Entries are stored in
// the order their completion events arrived, which is conversational
// order because each leg delivers in arrival order.
type Transcript struct {
	entries []Utterance
}

// Append records one turn. Blank text is dropped.
func (t *Transcript) Append(speaker Speaker, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	t.entries = append(t.entries, Utterance{Speaker: speaker, Text: text})
}

func (t *Transcript) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

// Utterances returns a copy of the recorded turns.
func (t *Transcript) Utterances() []Utterance {
	if t == nil {
		return nil
	}
	out := make([]Utterance, len(t.entries))
	copy(out, t.entries)
	return out
}

// Join renders the transcript as "<speaker>: <text>" lines for the
// order extraction prompt.
func (t *Transcript) Join() string {
	if t == nil {
		return ""
	}
	lines := make([]string, 0, len(t.entries))
	for _, u := range t.entries {
		lines = append(lines, string(u.Speaker)+": "+u.Text)
	}
	return strings.Join(lines, "\n")
}
