package candidate

import (
	"fmt"
	"strings"
	"time"
)

// DefaultRetention is how long a record is kept before the purge sweep
// removes it, matching the 90-day policy communicated to candidates.
const DefaultRetention = 90 * 24 * time.Hour

// Phase is one state of the screening state machine. Transitions are
// monotonic forward, except that exit intent short-circuits to Closing
// from any phase.
type Phase int

const (
	Greeting Phase = iota
	CollectingInfo
	TechStack
	TechnicalAssessment
	Closing
	Ended
)

var phaseNames = map[Phase]string{
	Greeting:            "greeting",
	CollectingInfo:      "collecting_info",
	TechStack:           "tech_stack",
	TechnicalAssessment: "technical_assessment",
	Closing:             "closing",
	Ended:               "ended",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// MarshalText makes the persisted record document carry readable phase names.
func (p Phase) MarshalText() ([]byte, error) {
	name, ok := phaseNames[p]
	if !ok {
		return nil, fmt.Errorf("unknown phase %d", int(p))
	}
	return []byte(name), nil
}

func (p *Phase) UnmarshalText(text []byte) error {
	for phase, name := range phaseNames {
		if name == string(text) {
			*p = phase
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", string(text))
}

// Field names one collectable attribute of a record.
type Field string

const (
	FieldFullName   Field = "full_name"
	FieldEmail      Field = "email"
	FieldPhone      Field = "phone"
	FieldExperience Field = "years_experience"
	FieldPosition   Field = "desired_position"
	FieldLocation   Field = "location"
	FieldTechStack  Field = "tech_stack"
)

// CollectOrder is the canonical question order for the info-collection
// phase. The engine always targets the first missing field in this
// order, so the conversation stays deterministic.
var CollectOrder = []Field{
	FieldFullName,
	FieldEmail,
	FieldPhone,
	FieldExperience,
	FieldPosition,
	FieldLocation,
}

// Label returns the human-readable name used in prompts and summaries.
func (f Field) Label() string {
	return strings.ReplaceAll(string(f), "_", " ")
}

// QA is one question/answer exchange from the technical assessment.
type QA struct {
	Tech     string `json:"tech"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Assessment tracks progress through the technical assessment: which
// tech-stack entry is under discussion, the generated questions not yet
// asked, and the question currently awaiting an answer.
type Assessment struct {
	TechIndex int      `json:"tech_index"`
	Pending   []string `json:"pending,omitempty"`
	Current   string   `json:"current,omitempty"`
}

// Record is the single candidate record mutated by the conversation
// engine. It is persisted as one self-contained JSON document.
type Record struct {
	ID              string     `json:"id"`
	FullName        string     `json:"full_name,omitempty"`
	Email           string     `json:"email,omitempty"`
	Phone           string     `json:"phone,omitempty"`
	YearsExperience *int       `json:"years_experience,omitempty"`
	DesiredPosition string     `json:"desired_position,omitempty"`
	Location        string     `json:"location,omitempty"`
	TechStack       []string   `json:"tech_stack,omitempty"`
	QALog           []QA       `json:"qa_log,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	ExpiresAt       time.Time  `json:"expires_at"`
	Phase           Phase      `json:"phase"`
	Assessment      Assessment `json:"assessment"`

	// LastPrompt is the previous assistant reply. The extractor uses it
	// to decide whether a bare number answers an experience question.
	LastPrompt string `json:"last_prompt,omitempty"`
}

// FieldValue returns the current value of a collectable field, empty
// when not yet captured.
func (r *Record) FieldValue(f Field) string {
	switch f {
	case FieldFullName:
		return r.FullName
	case FieldEmail:
		return r.Email
	case FieldPhone:
		return r.Phone
	case FieldExperience:
		if r.YearsExperience == nil {
			return ""
		}
		return fmt.Sprintf("%d", *r.YearsExperience)
	case FieldPosition:
		return r.DesiredPosition
	case FieldLocation:
		return r.Location
	case FieldTechStack:
		return strings.Join(r.TechStack, ", ")
	}
	return ""
}

// SetField stores a captured value. Values are last-write-wins: a later
// successful extraction of the same field overwrites, but nothing here
// ever resets a field to empty.
func (r *Record) SetField(f Field, value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	switch f {
	case FieldFullName:
		r.FullName = value
	case FieldEmail:
		r.Email = value
	case FieldPhone:
		r.Phone = value
	case FieldPosition:
		r.DesiredPosition = value
	case FieldLocation:
		r.Location = value
	}
}

// SetExperience stores a validated years-of-experience value.
func (r *Record) SetExperience(years int) {
	if years < 0 {
		return
	}
	r.YearsExperience = &years
}

// FirstMissing returns the first field of the canonical collection
// order that has no value yet.
func (r *Record) FirstMissing() (Field, bool) {
	for _, f := range CollectOrder {
		if r.FieldValue(f) == "" {
			return f, true
		}
	}
	return "", false
}

// MissingFields lists all still-missing collectable fields in order.
func (r *Record) MissingFields() []Field {
	missing := make([]Field, 0, len(CollectOrder))
	for _, f := range CollectOrder {
		if r.FieldValue(f) == "" {
			missing = append(missing, f)
		}
	}
	return missing
}

// AppendTech adds technologies to the stack, case-normalized and
// deduplicated, preserving first-seen order.
func (r *Record) AppendTech(techs []string) int {
	seen := make(map[string]struct{}, len(r.TechStack))
	for _, t := range r.TechStack {
		seen[t] = struct{}{}
	}
	added := 0
	for _, t := range techs {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		r.TechStack = append(r.TechStack, t)
		added++
	}
	return added
}

// Expired reports whether the record is past its retention deadline.
func (r *Record) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// Years returns the captured experience, zero when not yet known.
func (r *Record) Years() int {
	if r.YearsExperience == nil {
		return 0
	}
	return *r.YearsExperience
}
