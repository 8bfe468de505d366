package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/talentscout/talentscout/internal/ai"
	"github.com/talentscout/talentscout/internal/candidate"
	"github.com/talentscout/talentscout/internal/store"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// scriptedCompleter replies with canned text keyed on payload content,
// falling back to a generic acknowledgement.
type scriptedCompleter struct {
	calls []ai.Payload
	fail  bool
}

func (c *scriptedCompleter) Complete(_ context.Context, payload *ai.Payload) (string, error) {
	c.calls = append(c.calls, *payload)
	if c.fail {
		return "", errors.New("model unavailable")
	}
	if strings.Contains(payload.Directive, "technical interview questions") {
		return "1. What is a goroutine?\n2. How do channels work?\n3. Explain defer semantics.", nil
	}
	// Echo the directive so field prompts carry the field name, as the
	// real model's questions would.
	return "Thanks! " + payload.Directive, nil
}

func newTestEngine(t *testing.T, completer ai.Completer) (*Engine, *store.Store, string) {
	t.Helper()

	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	record, err := st.Create(context.Background(), time.Hour)
	if err != nil {
		t.Fatalf("create record: %v", err)
	}

	return New(st, completer, zap.NewNop(), time.Second), st, record.ID
}

func TestGreetingAdvancesToCollecting(t *testing.T) {
	eng, st, id := newTestEngine(t, &scriptedCompleter{})

	turn, err := eng.ProcessTurn(context.Background(), id, "hi")
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	if turn.Phase != candidate.CollectingInfo {
		t.Fatalf("phase = %v, want %v", turn.Phase, candidate.CollectingInfo)
	}

	record, err := st.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if record.Phase != candidate.CollectingInfo {
		t.Fatalf("persisted phase = %v, want %v", record.Phase, candidate.CollectingInfo)
	}
	if record.LastPrompt == "" {
		t.Fatal("expected last prompt to be persisted")
	}
}

func TestExitIntentShortCircuitsToClosing(t *testing.T) {
	for _, phrase := range []string{"bye", "goodbye", "I have to go now, bye", "exit", "thank you"} {
		t.Run(phrase, func(t *testing.T) {
			eng, _, id := newTestEngine(t, &scriptedCompleter{})

			turn, err := eng.ProcessTurn(context.Background(), id, phrase)
			if err != nil {
				t.Fatalf("ProcessTurn: %v", err)
			}
			if turn.Phase != candidate.Closing {
				t.Fatalf("phase = %v, want %v", turn.Phase, candidate.Closing)
			}

			turn, err = eng.ProcessTurn(context.Background(), id, "ok")
			if err != nil {
				t.Fatalf("ProcessTurn: %v", err)
			}
			if turn.Phase != candidate.Ended {
				t.Fatalf("phase = %v, want %v", turn.Phase, candidate.Ended)
			}
			if turn.Reply != msgFarewell {
				t.Fatalf("reply = %q, want farewell", turn.Reply)
			}
		})
	}
}

func TestAmbiguousExitWordsOnlyMatchAlone(t *testing.T) {
	eng, st, id := newTestEngine(t, &scriptedCompleter{})

	turn, err := eng.ProcessTurn(context.Background(), id, "my current job is done mostly in Go")
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	if turn.Phase == candidate.Closing {
		t.Fatal("mid-sentence 'done' must not end the conversation")
	}

	record, _ := st.Get(context.Background(), id)
	if record.Phase == candidate.Closing || record.Phase == candidate.Ended {
		t.Fatalf("persisted phase = %v, conversation should continue", record.Phase)
	}
}

func TestEndedSessionRefusesFurtherInput(t *testing.T) {
	eng, st, id := newTestEngine(t, &scriptedCompleter{})

	if _, err := eng.ProcessTurn(context.Background(), id, "bye"); err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	if _, err := eng.ProcessTurn(context.Background(), id, "ok"); err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}

	turn, err := eng.ProcessTurn(context.Background(), id, "hello again")
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	if turn.Reply != msgSessionEnded {
		t.Fatalf("reply = %q, want session-ended notice", turn.Reply)
	}
	record, _ := st.Get(context.Background(), id)
	if record.Phase != candidate.Ended {
		t.Fatalf("persisted phase = %v, want %v", record.Phase, candidate.Ended)
	}
}

func TestGatewayFailureLeavesRecordUntouched(t *testing.T) {
	completer := &scriptedCompleter{}
	eng, st, id := newTestEngine(t, completer)

	if _, err := eng.ProcessTurn(context.Background(), id, "hi"); err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	before, _ := st.Get(context.Background(), id)

	completer.fail = true
	turn, err := eng.ProcessTurn(context.Background(), id, "Jane Doe")
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	if turn.Reply != msgApology {
		t.Fatalf("reply = %q, want apology", turn.Reply)
	}

	after, _ := st.Get(context.Background(), id)
	if after.FullName != before.FullName || after.Phase != before.Phase {
		t.Fatalf("record changed on gateway failure: before=%+v after=%+v", before, after)
	}
}

func TestGatewayFailureReportsPersistedPhase(t *testing.T) {
	completer := &scriptedCompleter{}
	eng, st, id := newTestEngine(t, completer)
	ctx := context.Background()

	// Collect everything except the location, so the next capture
	// would trigger the transition out of info collection.
	for _, input := range []string{"hi", "Jane Doe", "jane@doe.com", "+1 555-123-4567", "3 years", "Backend Engineer"} {
		if _, err := eng.ProcessTurn(ctx, id, input); err != nil {
			t.Fatalf("ProcessTurn(%q): %v", input, err)
		}
	}

	completer.fail = true
	turn, err := eng.ProcessTurn(ctx, id, "Berlin")
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	if turn.Reply != msgApology {
		t.Fatalf("reply = %q, want apology", turn.Reply)
	}

	record, err := st.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if turn.Phase != record.Phase {
		t.Fatalf("reported phase %v disagrees with persisted phase %v", turn.Phase, record.Phase)
	}
	if turn.Phase != candidate.CollectingInfo {
		t.Fatalf("phase = %v, want %v", turn.Phase, candidate.CollectingInfo)
	}
	if record.Location != "" {
		t.Fatalf("location persisted despite gateway failure: %q", record.Location)
	}
}

func TestCompletionLogMasksContactFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)

	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	record, err := st.Create(ctx, time.Hour)
	if err != nil {
		t.Fatalf("create record: %v", err)
	}

	eng := New(st, &scriptedCompleter{}, zap.New(core), time.Second)

	for _, input := range []string{"hi", "Jane Doe", "jane@doe.com", "bye", "ok"} {
		if _, err := eng.ProcessTurn(ctx, record.ID, input); err != nil {
			t.Fatalf("ProcessTurn(%q): %v", input, err)
		}
	}

	entries := logs.FilterMessage("screening complete").All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 completion entry, got %d", len(entries))
	}

	var email string
	for _, field := range entries[0].Context {
		if field.Key == "email" {
			email = field.String
		}
	}
	if email != "ja**@doe.com" {
		t.Fatalf("completion log email = %q, want masked", email)
	}

	for _, entry := range logs.All() {
		for _, field := range entry.Context {
			if strings.Contains(field.String, "jane@doe.com") {
				t.Fatalf("raw email leaked into log field %q of %q", field.Key, entry.Message)
			}
		}
	}
}

func TestFullScreeningFlow(t *testing.T) {
	completer := &scriptedCompleter{}
	eng, st, id := newTestEngine(t, completer)
	ctx := context.Background()

	steps := []struct {
		input   string
		phase   candidate.Phase
		mention string
	}{
		{"hi", candidate.CollectingInfo, ""},
		{"Jane Doe", candidate.CollectingInfo, ""},
		{"jane@doe.com", candidate.CollectingInfo, ""},
		{"+1 555-123-4567", candidate.CollectingInfo, ""},
		{"3 years", candidate.CollectingInfo, ""},
		{"Backend Engineer", candidate.CollectingInfo, ""},
		{"Berlin", candidate.TechStack, ""},
		{"Python and PostgreSQL", candidate.TechnicalAssessment, "python"},
	}
	for _, step := range steps {
		turn, err := eng.ProcessTurn(ctx, id, step.input)
		if err != nil {
			t.Fatalf("ProcessTurn(%q): %v", step.input, err)
		}
		if turn.Phase != step.phase {
			t.Fatalf("after %q: phase = %v, want %v", step.input, turn.Phase, step.phase)
		}
		if step.mention != "" && !strings.Contains(strings.ToLower(turn.Reply), step.mention) {
			t.Fatalf("after %q: reply %q does not mention %q", step.input, turn.Reply, step.mention)
		}
	}

	record, err := st.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if record.FullName != "Jane Doe" {
		t.Fatalf("full name = %q", record.FullName)
	}
	if record.Email != "jane@doe.com" {
		t.Fatalf("email = %q", record.Email)
	}
	if record.Years() != 3 {
		t.Fatalf("years = %d", record.Years())
	}
	if record.Location != "Berlin" {
		t.Fatalf("location = %q", record.Location)
	}
	if len(record.TechStack) != 2 {
		t.Fatalf("tech stack = %v", record.TechStack)
	}

	// Answer every question for both technologies; the scripted model
	// supplies three questions per batch.
	var last *Turn
	for i := 0; i < 6; i++ {
		turn, err := eng.ProcessTurn(ctx, id, "it works like this")
		if err != nil {
			t.Fatalf("assessment turn %d: %v", i, err)
		}
		last = turn
		if turn.Phase == candidate.Closing {
			break
		}
	}
	if last.Phase != candidate.Closing {
		t.Fatalf("phase after assessment = %v, want %v", last.Phase, candidate.Closing)
	}

	record, _ = st.Get(ctx, id)
	if len(record.QALog) != 6 {
		t.Fatalf("qa log length = %d, want 6", len(record.QALog))
	}
	techs := map[string]bool{}
	for _, qa := range record.QALog {
		techs[qa.Tech] = true
		if qa.Answer == "" {
			t.Fatal("empty answer recorded")
		}
	}
	if !techs["python"] || !techs["postgresql"] {
		t.Fatalf("qa log covers %v, want both technologies", techs)
	}

	turn, err := eng.ProcessTurn(ctx, id, "thanks")
	if err != nil {
		t.Fatalf("final turn: %v", err)
	}
	if turn.Phase != candidate.Ended {
		t.Fatalf("final phase = %v, want %v", turn.Phase, candidate.Ended)
	}
}

func TestParseQuestions(t *testing.T) {
	raw := "1. First question?\n\n2) Second question?\n- Third question?\nPlain line"
	got := parseQuestions(raw)
	want := []string{"First question?", "Second question?", "Third question?", "Plain line"}
	if len(got) != len(want) {
		t.Fatalf("parseQuestions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("questions[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSanitizeStripsControlCharsAndCapsLength(t *testing.T) {
	if got := sanitize("hel\x00lo\x1b[2J"); got != "hello[2J" {
		t.Fatalf("sanitize = %q", got)
	}
	long := strings.Repeat("a", maxInputLength+100)
	if got := sanitize(long); len(got) != maxInputLength {
		t.Fatalf("len = %d, want %d", len(got), maxInputLength)
	}
}

func TestSanitizeCapsOnRuneBoundary(t *testing.T) {
	long := strings.Repeat("⌘", maxInputLength)
	got := sanitize(long)
	if len(got) > maxInputLength {
		t.Fatalf("len = %d, want at most %d", len(got), maxInputLength)
	}
	if !utf8.ValidString(got) {
		t.Fatal("truncation produced invalid UTF-8")
	}
}
