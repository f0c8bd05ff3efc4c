package conversation

import (
	"fmt"

	"github.com/silverstar/intake/internal/profile"
)

const greetingText = "Hello! I'm here to help you find work that fits you. I'll ask a few quick questions to build your profile."

const apologyGeneral = "I'm sorry, I'm having a little trouble right now. Could you say that again?"

const closingText = "You're all set! Your profile is complete. Feel free to ask me anything about job opportunities whenever you like."

const consentQuestion = "Would you like me to look for jobs that match your profile? (yes/no)"

const fieldSelectionQuestion = "Which detail would you like to change? (name, location, age, physical condition, interests, or limitations)"

var fieldQuestions = map[profile.Field]string{
	profile.FieldFullName:          "Could you tell me your full name?",
	profile.FieldLocation:          "Where are you located? A city and state is perfect.",
	profile.FieldAge:               "How old are you?",
	profile.FieldPhysicalCondition: "How would you describe your physical condition or general health?",
	profile.FieldInterests:         "What kind of work or activities are you interested in?",
	profile.FieldLimitations:       "Do you have any limitations I should keep in mind, like no remote work or physical restrictions?",
}

var fieldExamples = map[profile.Field]string{
	profile.FieldFullName:          "Jane Smith",
	profile.FieldLocation:          "Austin, TX",
	profile.FieldAge:               "65",
	profile.FieldPhysicalCondition: "good health, fully mobile",
	profile.FieldInterests:         "tutoring and community work",
	profile.FieldLimitations:       "no heavy lifting",
}

func questionFor(f profile.Field) string {
	return fieldQuestions[f]
}

// plainReask is the first-retry response: short, no example, no skip hint.
func plainReask(f profile.Field) string {
	return "I didn't quite catch that. " + questionFor(f)
}

// escalatedReask is used from the second consecutive failure on: it includes
// a concrete example value and tells the user they can skip.
func escalatedReask(f profile.Field) string {
	return fmt.Sprintf("Let me try once more. %s For example, you could say %q. If you'd rather not answer, just type \"skip\".",
		questionFor(f), fieldExamples[f])
}

func correctionQuestion(original, corrected string) string {
	return fmt.Sprintf("Just to double-check: did you mean %q rather than %q? (yes/no)", corrected, original)
}

func profileSummaryLine(p *profile.CandidateProfile) string {
	return fmt.Sprintf("Here's what I have: %s, %s, age %s, %s, interested in %s, limitations: %s.",
		p.FullName, p.Location, p.Age, p.PhysicalCondition, p.Interests, p.Limitations)
}
