package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/talentscout/talentscout/internal/ai"
	"github.com/talentscout/talentscout/internal/candidate"

	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"
)

const maxExperienceYears = 60

// ValidationError reports a value that was present but failed a format
// constraint. The engine turns it into a conversational re-prompt, not
// a hard failure.
type ValidationError struct {
	Field candidate.Field
	Hint  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field.Label(), e.Hint)
}

// Value is the outcome of one extraction attempt.
type Value struct {
	Text  string
	Years int
	Found bool
}

func absent() Value { return Value{} }

// Extractor pulls structured field values out of free-text candidate
// replies. Cheap pattern strategies always run before the model
// fallback, so results stay auditable where possible.
type Extractor struct {
	completer ai.Completer
	logger    *zap.Logger
}

func New(completer ai.Completer, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{completer: completer, logger: logger}
}

type strategy struct {
	name string
	run  func(ctx context.Context, rawText, lastPrompt string) (Value, error)
}

// Extract tries each strategy for the field in order and stops at the
// first one that produces a value. lastPrompt is the previous assistant
// message; it gates context-dependent heuristics.
func (e *Extractor) Extract(ctx context.Context, field candidate.Field, rawText, lastPrompt string) (Value, error) {
	for _, s := range e.strategies(field) {
		value, err := s.run(ctx, rawText, lastPrompt)
		if err != nil {
			return absent(), err
		}
		if value.Found {
			e.logger.Debug("field extracted",
				zap.String("field", string(field)),
				zap.String("strategy", s.name),
			)
			return value, nil
		}
	}
	return absent(), nil
}

func (e *Extractor) strategies(field candidate.Field) []strategy {
	switch field {
	case candidate.FieldEmail:
		return []strategy{{name: "pattern", run: func(_ context.Context, text, _ string) (Value, error) {
			return Email(text), nil
		}}}
	case candidate.FieldPhone:
		return []strategy{{name: "pattern", run: func(_ context.Context, text, prompt string) (Value, error) {
			return Phone(text, prompt)
		}}}
	case candidate.FieldExperience:
		return []strategy{{name: "pattern", run: func(_ context.Context, text, prompt string) (Value, error) {
			return Experience(text, prompt)
		}}}
	default:
		return []strategy{
			{name: "direct-answer", run: func(_ context.Context, text, prompt string) (Value, error) {
				return directAnswer(field, text, prompt), nil
			}},
			{name: "model", run: func(ctx context.Context, text, _ string) (Value, error) {
				return e.modelFallback(ctx, field, text)
			}},
		}
	}
}

var emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)

// Email returns the first well-formed email address in the text.
func Email(text string) Value {
	match := emailPattern.FindString(text)
	if match == "" {
		return absent()
	}
	return Value{Text: match, Found: true}
}

var phonePattern = regexp.MustCompile(`\+?\(?\d[\d\s\-().]{3,}\d`)

// Phone returns the first phone-shaped token with 7 to 15 digits.
// A phone-shaped token with the wrong digit count is a validation
// failure when the previous prompt asked for the phone number.
func Phone(text, lastPrompt string) (Value, error) {
	match := phonePattern.FindString(text)
	if match == "" {
		return absent(), nil
	}

	digits := 0
	for _, r := range match {
		if r >= '0' && r <= '9' {
			digits++
		}
	}

	if digits < 7 || digits > 15 {
		if promptMentions(candidate.FieldPhone, lastPrompt) {
			return absent(), &ValidationError{
				Field: candidate.FieldPhone,
				Hint:  "a phone number has 7 to 15 digits, separators and a leading + are fine",
			}
		}
		return absent(), nil
	}

	return Value{Text: strings.TrimSpace(match), Found: true}, nil
}

var (
	experiencePattern     = regexp.MustCompile(`(?i)\b(\d{1,2})\s*\+?\s*(?:years?|yrs?)\b`)
	bareExperiencePattern = regexp.MustCompile(`^\s*(\d{1,2})\s*\+?\s*$`)
)

// Experience parses a years-of-experience value. Bare integers count
// only when the previous prompt asked about experience, so an unrelated
// number is not misread.
func Experience(text, lastPrompt string) (Value, error) {
	match := experiencePattern.FindStringSubmatch(text)
	if match == nil && promptMentions(candidate.FieldExperience, lastPrompt) {
		match = bareExperiencePattern.FindStringSubmatch(text)
	}
	if match == nil {
		return absent(), nil
	}

	years, err := strconv.Atoi(match[1])
	if err != nil {
		return absent(), nil
	}
	if years > maxExperienceYears {
		if promptMentions(candidate.FieldExperience, lastPrompt) {
			return absent(), &ValidationError{
				Field: candidate.FieldExperience,
				Hint:  fmt.Sprintf("years of experience should be between 0 and %d", maxExperienceYears),
			}
		}
		return absent(), nil
	}

	return Value{Text: match[1], Years: years, Found: true}, nil
}

var techStackSplitPattern = regexp.MustCompile(`(?i)[,;/\n]+|\band\b|&`)

// TechStack splits a free-text stack declaration on common delimiters
// and normalizes each entry (trim, case-fold). Duplicates are kept here
// and dropped when appended to the record.
func TechStack(text string) []string {
	parts := techStackSplitPattern.Split(text, -1)
	techs := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.ToLower(strings.Trim(strings.TrimSpace(part), ".!"))
		if part == "" {
			continue
		}
		techs = append(techs, part)
	}
	return techs
}

var fieldKeywords = map[candidate.Field][]string{
	candidate.FieldFullName:   {"name"},
	candidate.FieldEmail:      {"email"},
	candidate.FieldPhone:      {"phone", "number to reach"},
	candidate.FieldExperience: {"experience", "years"},
	candidate.FieldPosition:   {"position", "role", "applying"},
	candidate.FieldLocation:   {"location", "located", "based"},
}

func promptMentions(field candidate.Field, lastPrompt string) bool {
	lower := strings.ToLower(lastPrompt)
	for _, keyword := range fieldKeywords[field] {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

var namePattern = regexp.MustCompile(`^\s*\p{Lu}[\p{L}'-]*(?:\s+\p{Lu}[\p{L}'-]*){1,3}\s*$`)

// directAnswer accepts short, digit-free replies verbatim when the
// previous prompt explicitly asked for the field. Names additionally
// match on shape alone.
func directAnswer(field candidate.Field, text, lastPrompt string) Value {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return absent()
	}

	if field == candidate.FieldFullName && namePattern.MatchString(trimmed) {
		return Value{Text: trimmed, Found: true}
	}

	if !promptMentions(field, lastPrompt) {
		return absent()
	}
	if len(strings.Fields(trimmed)) > 6 {
		return absent()
	}
	if strings.ContainsAny(trimmed, "@0123456789") {
		return absent()
	}

	return Value{Text: strings.Trim(trimmed, ".!"), Found: true}
}

type modelValue struct {
	Value string `mapstructure:"value"`
	Found bool   `mapstructure:"found"`
}

// modelFallback asks the language model to isolate the field value. The
// model must answer with a small JSON object; anything else counts as
// absent rather than an error, since extraction misses are recovered
// conversationally.
func (e *Extractor) modelFallback(ctx context.Context, field candidate.Field, rawText string) (Value, error) {
	if e.completer == nil {
		return absent(), nil
	}

	payload := &ai.Payload{
		Directive: fmt.Sprintf(
			"From the candidate's message below, extract their %s. "+
				"Respond with only a JSON object: {\"value\": \"<the isolated %s>\", \"found\": true} "+
				"or {\"found\": false} when the message does not contain it.",
			field.Label(), field.Label(),
		),
		RawUserText: rawText,
	}

	raw, err := e.completer.Complete(ctx, payload)
	if err != nil {
		e.logger.Debug("model extraction failed",
			zap.String("field", string(field)),
			zap.Error(err),
		)
		return absent(), nil
	}

	var loose map[string]any
	if err := json.Unmarshal([]byte(stripFences(raw)), &loose); err != nil {
		e.logger.Debug("model extraction returned non-json output",
			zap.String("field", string(field)),
		)
		return absent(), nil
	}

	var parsed modelValue
	if err := mapstructure.Decode(loose, &parsed); err != nil {
		return absent(), nil
	}

	value := strings.TrimSpace(parsed.Value)
	if !parsed.Found || value == "" || strings.EqualFold(value, "none") {
		return absent(), nil
	}

	return Value{Text: value, Found: true}, nil
}

func stripFences(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	return strings.TrimSpace(strings.Trim(raw, "`"))
}
