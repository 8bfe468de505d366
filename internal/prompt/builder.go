package prompt

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/talentscout/talentscout/internal/ai"
	"github.com/talentscout/talentscout/internal/candidate"
)

//go:embed persona.md
var persona string

// Preamble returns the fixed persona and guardrail instructions sent
// with every model call.
func Preamble() string {
	return strings.TrimSpace(persona)
}

// StateSummary renders the engine-tracked record state for context
// injection. Contact fields appear masked: the model phrases questions
// around them and never needs the raw values.
func StateSummary(record *candidate.Record) string {
	var b strings.Builder

	collected := make([]string, 0, len(candidate.CollectOrder)+1)
	for _, field := range candidate.CollectOrder {
		value := record.FieldValue(field)
		if value == "" {
			continue
		}
		switch field {
		case candidate.FieldEmail:
			value = candidate.MaskEmail(value)
		case candidate.FieldPhone:
			value = candidate.MaskPhone(value)
		}
		collected = append(collected, fmt.Sprintf("- %s: %s", field.Label(), value))
	}
	if len(record.TechStack) > 0 {
		collected = append(collected, fmt.Sprintf("- tech stack: %s", strings.Join(record.TechStack, ", ")))
	}

	if len(collected) > 0 {
		b.WriteString("Information already collected:\n")
		b.WriteString(strings.Join(collected, "\n"))
		b.WriteString("\n")
	}

	missing := record.MissingFields()
	if len(missing) > 0 {
		labels := make([]string, 0, len(missing))
		for _, field := range missing {
			labels = append(labels, field.Label())
		}
		b.WriteString("Still missing: ")
		b.WriteString(strings.Join(labels, ", "))
		b.WriteString("\n")
	}

	return strings.TrimSpace(b.String())
}

// Greeting is the directive for the very first assistant message.
func Greeting() string {
	return "Greet the candidate warmly, introduce yourself as TalentScout's " +
		"AI Hiring Assistant and briefly explain the screening process: a few " +
		"questions about their background followed by a short technical " +
		"assessment. Then ask for their full name."
}

// NextField is the directive asking for one specific missing field.
func NextField(field candidate.Field) string {
	return fmt.Sprintf(
		"Ask the candidate for their %s. Ask only for this one piece of "+
			"information and nothing else.", field.Label())
}

// TechStackElicitation asks the candidate to declare their stack.
func TechStackElicitation() string {
	return "Ask the candidate to list their tech stack: the programming " +
		"languages, frameworks, databases and tools they are proficient in. " +
		"Mention that a comma-separated list is fine."
}

// Questions is the directive generating the technical question batch
// for one technology, calibrated to the candidate's experience.
func Questions(tech string, years int) string {
	var focus string
	switch {
	case years < 2:
		focus = "fundamental concepts and simple practical usage"
	case years < 5:
		focus = "applied problem-solving and common patterns"
	default:
		focus = "architecture decisions, optimization and complex production scenarios"
	}

	return fmt.Sprintf(
		"Produce 3 to 5 technical interview questions about %s only, one "+
			"question per line, numbered. The candidate has %d years of "+
			"experience, so focus on %s. Output nothing but the questions.",
		tech, years, focus)
}

// Build assembles the model payload for the record's current phase.
// It is a pure function of the record.
func Build(record *candidate.Record, rawUserText string) *ai.Payload {
	payload := &ai.Payload{
		Preamble:     Preamble(),
		StateSummary: StateSummary(record),
		RawUserText:  rawUserText,
	}

	switch record.Phase {
	case candidate.Greeting:
		payload.Directive = Greeting()
	case candidate.CollectingInfo:
		if field, ok := record.FirstMissing(); ok {
			payload.Directive = NextField(field)
		} else {
			payload.Directive = TechStackElicitation()
		}
	case candidate.TechStack:
		payload.Directive = TechStackElicitation()
	case candidate.TechnicalAssessment:
		if record.Assessment.TechIndex < len(record.TechStack) {
			payload.Directive = Questions(record.TechStack[record.Assessment.TechIndex], record.Years())
		}
	}

	return payload
}
