package ai

import (
	"context"
	"strings"
)

// Payload is the full instruction set for one language-model call: the
// fixed persona preamble, a summary of the engine-tracked record state,
// the phase-specific directive and the candidate's raw message.
type Payload struct {
	Preamble     string
	StateSummary string
	Directive    string
	RawUserText  string
}

// Message renders the per-turn part of the payload. The preamble is
// delivered separately as the system instruction.
func (p *Payload) Message() string {
	sections := make([]string, 0, 3)
	if s := strings.TrimSpace(p.StateSummary); s != "" {
		sections = append(sections, s)
	}
	if d := strings.TrimSpace(p.Directive); d != "" {
		sections = append(sections, d)
	}
	if t := strings.TrimSpace(p.RawUserText); t != "" {
		sections = append(sections, "Candidate's message: "+t)
	}
	return strings.Join(sections, "\n\n")
}

// Completer is the language-model gateway. Implementations must treat
// empty model output as an error so callers have a single failure path.
type Completer interface {
	Complete(ctx context.Context, payload *Payload) (string, error)
}
