package engine

import (
	"fmt"
	"strings"

	"github.com/talentscout/talentscout/internal/candidate"
)

// Fixed conversational texts. Everything here is deterministic on
// purpose: these are the replies that must work when the language model
// does not.
const (
	msgApology = "I apologize, but I ran into a brief technical issue. " +
		"Could you please repeat your last response? I want to make sure I capture everything correctly."

	msgSessionEnded = "This screening session has ended. Thank you again for your time!"

	msgFarewell = "Goodbye, and best of luck with your application!"
)

func closingMessage(name string) string {
	greeting := "there"
	if name = strings.TrimSpace(name); name != "" {
		greeting = name
	}
	return fmt.Sprintf(
		"Thank you so much for taking the time to speak with me today, %s!\n\n"+
			"I've collected everything needed for your initial screening. Our recruitment "+
			"team will review your responses within 2-3 business days, and if your profile "+
			"matches an open position a recruiter will reach out to schedule a detailed "+
			"interview.\n\nBest of luck with your application!", greeting)
}

func validationMessage(err *candidateValidation) string {
	return fmt.Sprintf(
		"Hmm, that %s doesn't look quite right - %s. Could you share it again?",
		err.field.Label(), err.hint)
}

type candidateValidation struct {
	field candidate.Field
	hint  string
}

// Scripted follow-up questions used to pad short generated batches, so
// every technology gets at least three questions.
func fallbackQuestions(tech string) []string {
	return []string{
		fmt.Sprintf("Can you explain what %s is and what it is primarily used for?", tech),
		fmt.Sprintf("Describe a challenging problem you solved using %s and how you approached it.", tech),
		fmt.Sprintf("How would you investigate a production issue involving %s?", tech),
	}
}

func assessmentIntro(tech string, first string) string {
	return fmt.Sprintf(
		"Great, let's talk about %s. %s", tech, first)
}

func nextQuestionMessage(question string) string {
	return "Thanks for that answer! Next question:\n\n" + question
}

func techTransitionMessage(tech string, first string) string {
	return fmt.Sprintf(
		"Nice, that covers it. Let's move on to %s.\n\n%s", tech, first)
}
