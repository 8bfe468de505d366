package engine

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/talentscout/talentscout/internal/ai"
	"github.com/talentscout/talentscout/internal/candidate"
	"github.com/talentscout/talentscout/internal/extract"
	"github.com/talentscout/talentscout/internal/logger"
	"github.com/talentscout/talentscout/internal/prompt"
	"github.com/talentscout/talentscout/internal/store"

	"go.uber.org/zap"
)

const (
	maxInputLength = 5000
	// Generated question batches are clamped to this range per technology.
	minQuestions = 3
	maxQuestions = 5

	defaultGatewayTimeout = 30 * time.Second
)

// errSkipSave aborts the store mutation while still delivering a reply:
// the gateway-failure path must leave the record untouched.
var errSkipSave = errors.New("skip save")

// Turn is the outcome of processing one candidate message.
type Turn struct {
	Reply string
	Phase candidate.Phase
}

// Engine owns the screening phase machine. It extracts fields from
// candidate replies, asks the language model to phrase the next step
// and applies every record mutation through the store, serialized per
// record id.
type Engine struct {
	store     *store.Store
	completer ai.Completer
	extractor *extract.Extractor
	logger    *zap.Logger
	timeout   time.Duration
}

func New(st *store.Store, completer ai.Completer, log *zap.Logger, timeout time.Duration) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = defaultGatewayTimeout
	}
	return &Engine{
		store:     st,
		completer: completer,
		extractor: extract.New(completer, log),
		logger:    log,
		timeout:   timeout,
	}
}

// ProcessTurn handles one candidate message and returns the assistant
// reply with the resulting phase. It never fails on bad input: the only
// errors it returns are lifecycle ones (unknown, erased or expired
// record ids).
func (e *Engine) ProcessTurn(ctx context.Context, id, rawText string) (*Turn, error) {
	text := sanitize(rawText)

	var turn Turn
	_, err := e.store.Update(ctx, id, func(record *candidate.Record) error {
		phaseBefore := record.Phase
		reply, err := e.advance(ctx, record, text)
		turn = Turn{Reply: reply, Phase: record.Phase}
		if errors.Is(err, errSkipSave) {
			// The discarded mutation may have advanced the in-memory
			// phase; report the phase that stays persisted.
			turn.Phase = phaseBefore
		}
		return err
	})
	if err != nil && !errors.Is(err, errSkipSave) {
		return nil, err
	}

	logger.WithConversation(e.logger, id, turn.Phase.String()).Info("turn processed",
		zap.Int("input_length", len(text)),
	)

	return &turn, nil
}

// advance runs the state machine for one turn. It mutates the record
// in place; returning errSkipSave tells the store to discard the
// mutation (reply still goes out).
func (e *Engine) advance(ctx context.Context, record *candidate.Record, text string) (string, error) {
	if record.Phase == candidate.Ended {
		return msgSessionEnded, errSkipSave
	}

	// A turn in the closing phase, however it was reached, ends the
	// conversation.
	if record.Phase == candidate.Closing {
		record.Phase = candidate.Ended
		e.logCompletion(record)
		return msgFarewell, nil
	}

	// Exit intent overrides normal progression from any phase.
	if ExitIntent(text) {
		record.Phase = candidate.Closing
		return closingMessage(record.FullName), nil
	}

	switch record.Phase {
	case candidate.Greeting:
		return e.greet(ctx, record, text)
	case candidate.CollectingInfo:
		return e.collect(ctx, record, text)
	case candidate.TechStack:
		return e.collectTechStack(ctx, record, text)
	case candidate.TechnicalAssessment:
		return e.assess(ctx, record, text)
	}

	// Unknown phase value in a stored document. Recover by re-greeting.
	record.Phase = candidate.Greeting
	return e.greet(ctx, record, text)
}

func (e *Engine) greet(ctx context.Context, record *candidate.Record, text string) (string, error) {
	out, err := e.complete(ctx, prompt.Build(record, text))
	if err != nil {
		return msgApology, errSkipSave
	}

	record.Phase = candidate.CollectingInfo
	record.LastPrompt = out
	return out, nil
}

func (e *Engine) collect(ctx context.Context, record *candidate.Record, text string) (string, error) {
	target, hasTarget := record.FirstMissing()
	if hasTarget {
		value, err := e.extractor.Extract(ctx, target, text, record.LastPrompt)

		var validation *extract.ValidationError
		if errors.As(err, &validation) {
			reply := validationMessage(&candidateValidation{field: validation.Field, hint: validation.Hint})
			record.LastPrompt = reply
			return reply, nil
		}
		if err != nil {
			return msgApology, errSkipSave
		}

		if value.Found {
			if target == candidate.FieldExperience {
				record.SetExperience(value.Years)
			} else {
				record.SetField(target, value.Text)
			}
		}

		// Candidates often answer several things at once, so structured
		// patterns are always tried for the remaining fields too.
		e.captureOpportunistic(record, text)

		if value.Found {
			e.logger.Debug("field captured",
				zap.String("field", string(target)),
				zap.String("session_id", record.ID),
			)
		}
	}

	if _, missing := record.FirstMissing(); missing {
		out, err := e.complete(ctx, prompt.Build(record, text))
		if err != nil {
			return msgApology, errSkipSave
		}
		record.LastPrompt = out
		return out, nil
	}

	// Everything collected: elicit the tech stack.
	record.Phase = candidate.TechStack
	out, err := e.complete(ctx, prompt.Build(record, text))
	if err != nil {
		return msgApology, errSkipSave
	}
	record.LastPrompt = out
	return out, nil
}

func (e *Engine) captureOpportunistic(record *candidate.Record, text string) {
	if record.Email == "" {
		if v := extract.Email(text); v.Found {
			record.SetField(candidate.FieldEmail, v.Text)
		}
	}
	if record.Phone == "" {
		if v, err := extract.Phone(text, ""); err == nil && v.Found {
			record.SetField(candidate.FieldPhone, v.Text)
		}
	}
	if record.YearsExperience == nil {
		if v, err := extract.Experience(text, ""); err == nil && v.Found {
			record.SetExperience(v.Years)
		}
	}
}

func (e *Engine) collectTechStack(ctx context.Context, record *candidate.Record, text string) (string, error) {
	techs := extract.TechStack(text)
	record.AppendTech(techs)
	if len(record.TechStack) == 0 {
		// Nothing parseable: re-ask in the same phase.
		out, err := e.complete(ctx, prompt.Build(record, text))
		if err != nil {
			return msgApology, errSkipSave
		}
		record.LastPrompt = out
		return out, nil
	}

	record.Phase = candidate.TechnicalAssessment
	record.Assessment = candidate.Assessment{TechIndex: 0}

	tech := record.TechStack[0]
	questions, err := e.generateQuestions(ctx, record, tech)
	if err != nil {
		return msgApology, errSkipSave
	}

	record.Assessment.Current = questions[0]
	record.Assessment.Pending = questions[1:]

	reply := assessmentIntro(tech, questions[0])
	record.LastPrompt = reply
	return reply, nil
}

func (e *Engine) assess(ctx context.Context, record *candidate.Record, text string) (string, error) {
	asmt := &record.Assessment
	if asmt.TechIndex >= len(record.TechStack) {
		record.Phase = candidate.Closing
		return closingMessage(record.FullName), nil
	}

	tech := record.TechStack[asmt.TechIndex]
	if asmt.Current != "" {
		record.QALog = append(record.QALog, candidate.QA{
			Tech:     tech,
			Question: asmt.Current,
			Answer:   text,
		})
	}

	if len(asmt.Pending) > 0 {
		asmt.Current = asmt.Pending[0]
		asmt.Pending = asmt.Pending[1:]
		reply := nextQuestionMessage(asmt.Current)
		record.LastPrompt = reply
		return reply, nil
	}

	// Current technology covered; move to the next one or close.
	asmt.TechIndex++
	asmt.Current = ""
	if asmt.TechIndex >= len(record.TechStack) {
		record.Phase = candidate.Closing
		return closingMessage(record.FullName), nil
	}

	next := record.TechStack[asmt.TechIndex]
	questions, err := e.generateQuestions(ctx, record, next)
	if err != nil {
		return msgApology, errSkipSave
	}

	asmt.Current = questions[0]
	asmt.Pending = questions[1:]

	reply := techTransitionMessage(next, questions[0])
	record.LastPrompt = reply
	return reply, nil
}

// generateQuestions asks the gateway for the question batch of one
// technology and clamps it to the allowed size, padding short batches
// from the scripted follow-ups.
func (e *Engine) generateQuestions(ctx context.Context, record *candidate.Record, tech string) ([]string, error) {
	payload := &ai.Payload{
		Preamble:     prompt.Preamble(),
		StateSummary: prompt.StateSummary(record),
		Directive:    prompt.Questions(tech, record.Years()),
	}

	out, err := e.complete(ctx, payload)
	if err != nil {
		return nil, err
	}

	questions := parseQuestions(out)
	if len(questions) == 0 {
		return nil, errors.New("gateway returned no usable questions")
	}
	if len(questions) > maxQuestions {
		questions = questions[:maxQuestions]
	}
	for _, fallback := range fallbackQuestions(tech) {
		if len(questions) >= minQuestions {
			break
		}
		questions = append(questions, fallback)
	}

	return questions, nil
}

// logCompletion records the finished screening with masked contact
// fields only; raw values never reach the logs.
func (e *Engine) logCompletion(record *candidate.Record) {
	summary := record.MaskedSummary()
	fields := make([]logger.StringField, 0, len(summary))
	for key, value := range summary {
		fields = append(fields, logger.StringField{Key: key, Value: value})
	}

	logger.WithConversation(e.logger, record.ID, record.Phase.String()).Info(
		"screening complete",
		append(logger.StringFields(fields...),
			zap.Int("tech_count", len(record.TechStack)),
			zap.Int("answers_recorded", len(record.QALog)),
		)...,
	)
}

func (e *Engine) complete(ctx context.Context, payload *ai.Payload) (string, error) {
	if e.completer == nil {
		return "", errors.New("language model gateway is not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	out, err := e.completer.Complete(ctx, payload)
	if err != nil {
		e.logger.Warn("language model gateway failed", zap.Error(err))
		return "", err
	}
	return out, nil
}

var questionPrefixPattern = regexp.MustCompile(`^\s*(?:[-*]|\d+[.)])\s*`)

// parseQuestions splits gateway output into individual questions,
// stripping list markers.
func parseQuestions(raw string) []string {
	lines := strings.Split(raw, "\n")
	questions := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(questionPrefixPattern.ReplaceAllString(line, ""))
		if line == "" {
			continue
		}
		questions = append(questions, line)
	}
	return questions
}

var controlCharPattern = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]`)

// sanitize strips control characters and caps the input length before
// any processing or storage. The cap lands on a rune boundary so the
// stored document stays valid UTF-8.
func sanitize(text string) string {
	text = controlCharPattern.ReplaceAllString(text, "")
	text = strings.TrimSpace(text)
	if len(text) > maxInputLength {
		cut := maxInputLength
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}
	return text
}
