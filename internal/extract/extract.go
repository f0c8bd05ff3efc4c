// Package extract contains pure heuristic extractors that pull candidate
// attributes out of raw utterances. Every extractor is advisory: it returns
// "" when nothing confident is found, and the caller falls back to the
// inference oracle. No extractor ever touches network or state.
package extract

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// Canonical phrases produced by normalization. Stored values compare against
// these exact strings.
const (
	// CanonicalNonRemote is the fixed phrase recorded when a candidate
	// expresses that they do NOT want remote work. Negated remote
	// preferences must never be recorded as a remote preference.
	CanonicalNonRemote = "prefers in-person work (not open to remote roles)"

	// CanonicalRemote is recorded for an affirmative remote preference.
	CanonicalRemote = "prefers remote work"

	// CanonicalNoLimitations is recorded when the candidate explicitly
	// states they have no limitations.
	CanonicalNoLimitations = "no known limitations"
)

const (
	maxNameLen     = 80
	maxLocationLen = 80
	maxFreeTextLen = 160
	minAge         = 10
	maxAge         = 120
)

var spacesRe = regexp.MustCompile(`\s+`)

// nameStoplist rejects bare-name candidates whose first token is a greeting,
// filler, or other common non-name opener. Known-incomplete; extend as
// misfires are observed.
var nameStoplist = map[string]bool{
	"hi": true, "hello": true, "hey": true, "thanks": true, "thank": true,
	"yes": true, "yeah": true, "no": true, "nope": true, "ok": true,
	"okay": true, "sure": true, "not": true, "skip": true, "none": true,
	"in": true, "a": true, "an": true, "the": true, "good": true,
	"fine": true, "well": true, "here": true, "just": true, "really": true,
	"very": true, "looking": true, "interested": true, "based": true,
	"from": true, "tell": true, "what": true, "where": true, "when": true,
	"why": true, "how": true, "please": true, "sorry": true, "my": true,
	"i": true, "im": true, "me": true,
}

var (
	nameIntroRe = regexp.MustCompile(`(?i)\b(?:my name is|i'?m|i am|call me|this is|name's)\s+([A-Za-z][A-Za-z'\-]*(?:\s+[A-Za-z][A-Za-z'\-]*){0,3})`)
	bareNameRe  = regexp.MustCompile(`^([A-Za-z][A-Za-z'\-]*(?:\s+[A-Za-z][A-Za-z'\-]*){0,2})[.!]?$`)
)

// FullName tries explicit-introduction patterns, then a bare-name fallback
// (the whole message is plausibly a name). Returns a title-cased name or "".
func FullName(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}

	if m := nameIntroRe.FindStringSubmatch(text); m != nil {
		if name := cleanName(m[1]); name != "" {
			return name
		}
	}
	if m := bareNameRe.FindStringSubmatch(text); m != nil {
		return cleanName(m[1])
	}
	return ""
}

func cleanName(candidate string) string {
	candidate = strings.Trim(candidate, " ,.!?")
	candidate = spacesRe.ReplaceAllString(candidate, " ")

	if len(candidate) < 2 || len(candidate) > maxNameLen {
		return ""
	}
	lower := strings.ToLower(candidate)
	if strings.HasPrefix(lower, "not ") {
		return ""
	}
	if strings.ContainsFunc(candidate, unicode.IsDigit) {
		return ""
	}
	if !strings.ContainsFunc(candidate, unicode.IsLetter) {
		return ""
	}
	firstToken := strings.ToLower(strings.Trim(strings.Fields(lower)[0], "',.-"))
	if nameStoplist[firstToken] || nameStoplist[strings.TrimSuffix(firstToken, "'s")] {
		return ""
	}
	return titleCase(candidate)
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		runes := []rune(strings.ToLower(w))
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}

// locationExclusions mark sentences that talk about something other than
// where the candidate lives.
var locationExclusions = []string{
	"health", "condition", "interest", "limitation", "disability",
	"remote", "in-person", "work from home", "work as", "job", "position",
	"role", "career", "hobby", "years old",
}

var (
	sentenceSplitRe  = regexp.MustCompile(`[.!?;\n]+`)
	locationLeadInRe = regexp.MustCompile(`(?i)\b(?:i\s+(?:currently\s+)?(?:live|reside|stay)\s+(?:in|at|near|around)|(?:i'?m|i am)\s+(?:based|located|living)\s+(?:in|at|near)|(?:based|located)\s+(?:in|at)|(?:i'?m|i am)\s+(?:from|in)|my location is|i moved to|from)\s+([A-Za-z][A-Za-z0-9 ,'\-]*)`)
	clauseBoundaryRe = regexp.MustCompile(`(?i)\s+(?:and|but|because|since|so|where|which|with)\b.*$`)
	ageStatementRe   = regexp.MustCompile(`(?i)^i?\s*(?:'m|am)?\s*\d+`)
)

// Location splits the input into sentences and looks for a location lead-in
// phrase in each sentence that is not about health, interests, limitations,
// or job titles. Returns the captured place or "".
func Location(text string) string {
	for _, sentence := range sentenceSplitRe.Split(text, -1) {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" || containsAny(strings.ToLower(sentence), locationExclusions) {
			continue
		}

		m := locationLeadInRe.FindStringSubmatch(sentence)
		if m == nil {
			continue
		}

		candidate := clauseBoundaryRe.ReplaceAllString(m[1], "")
		candidate = strings.Trim(spacesRe.ReplaceAllString(candidate, " "), " ,.!")
		if len(candidate) < 2 || len(candidate) > maxLocationLen {
			continue
		}
		if ageStatementRe.MatchString(candidate) || startsWithDigit(candidate) {
			continue
		}
		return candidate
	}
	return ""
}

func containsAny(s string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(s, term) {
			return true
		}
	}
	return false
}

func startsWithDigit(s string) bool {
	return len(s) > 0 && unicode.IsDigit(rune(s[0]))
}

var agePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bi(?:'m| am)\s+(\d{1,3})\b`),
	regexp.MustCompile(`(?i)\b(\d{1,3})\s+years?\s*(?:old|of age)\b`),
	regexp.MustCompile(`(?i)\bage\s*(?:is|:)?\s*(\d{1,3})\b`),
	regexp.MustCompile(`(?i)\bturn(?:ed|ing)?\s+(\d{1,3})\b`),
	regexp.MustCompile(`^\s*(\d{1,3})\s*[.!]?\s*$`),
}

// Age extracts a 1-3 digit run from an age-shaped phrase and accepts it only
// if it falls in the plausible working range [10,120]. Returns the numeric
// string or "".
func Age(text string) string {
	for _, re := range agePatterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil || n < minAge || n > maxAge {
			continue
		}
		return m[1]
	}
	return ""
}

var conditionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:my\s+)?physical condition is\s+([^,.;]+)`),
	regexp.MustCompile(`(?i)\bmy (?:health|condition) is\s+([^,.;]+)`),
	regexp.MustCompile(`(?i)\b(?:i'?m|i am)\s+in\s+((?:excellent|good|great|fair|poor|decent|reasonable)\s+(?:health|shape|condition)[^,.;]*)`),
	regexp.MustCompile(`(?i)\bin\s+((?:excellent|good|great|fair|poor|decent)\s+(?:health|shape))\b`),
	regexp.MustCompile(`(?i)\bhealth[- ]?wise,?\s*(?:i'?m|i am)?\s*([^,.;]+)`),
	regexp.MustCompile(`(?i)\b(?:i'?m|i am)\s+((?:very\s+|fairly\s+|quite\s+)?(?:healthy|fit|active|mobile)[^,.;]*)`),
}

// Condition pulls a physical condition statement out of the text.
func Condition(text string) string {
	return firstMatch(text, conditionPatterns)
}

var interestTrailingClauseRe = regexp.MustCompile(`(?i),\s*(?:no|but|however|although)\b.*$`)

var interestPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:i would like to be|i'?d like to be|i would like to work|i'?d like to work)\s+([^.;]+)`),
	regexp.MustCompile(`(?i)\b(?:i'?m|i am)?\s*interested in\s+([^.;]+)`),
	regexp.MustCompile(`(?i)\bmy interests?\s+(?:are|include)\s+([^.;]+)`),
	regexp.MustCompile(`(?i)\bi (?:enjoy|love|like)\s+([^.;]+)`),
	regexp.MustCompile(`(?i)\bpassionate about\s+([^.;]+)`),
}

// Interests pulls an interest statement out of the text, trimming trailing
// negated clauses ("..., no limitations") that belong to other fields.
func Interests(text string) string {
	got := firstMatch(text, interestPatterns)
	if got == "" {
		return ""
	}
	got = interestTrailingClauseRe.ReplaceAllString(got, "")
	return strings.Trim(got, " ,.!")
}

// Negated remote preference. Checked before anything else so that phrases
// like "I do not want remote work" are never recorded as wanting remote
// work. The list is known-incomplete; the invariant is what matters.
var nonRemotePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:no|not|never|don'?t|do not|can'?t|cannot|won'?t|avoid|dislike|hate)\b[^.;]*\b(?:remote|work(?:ing)? from home|wfh|telework(?:ing)?)\b`),
	regexp.MustCompile(`(?i)\bprefer(?:s)?\s+(?:to work\s+)?(?:in[- ]person|on[- ]?site|face[- ]to[- ]face)\b`),
	regexp.MustCompile(`(?i)\bin[- ]person\s+(?:only|work|roles?|positions?)\b`),
	regexp.MustCompile(`(?i)\bonly\s+(?:in[- ]person|on[- ]?site)\b`),
	regexp.MustCompile(`(?i)\brather\s+(?:work\s+)?(?:in[- ]person|on[- ]?site)\b`),
}

var remotePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:prefer|want|love|need|seeking|looking for)\b[^.;]*\b(?:remote|work(?:ing)? from home|wfh|telework(?:ing)?)\b`),
	regexp.MustCompile(`(?i)\bremote\s+(?:only|work only|positions? only)\b`),
	regexp.MustCompile(`(?i)\bonly\s+remote\b`),
}

var noLimitationsRe = regexp.MustCompile(`(?i)\b(?:no|without(?: any)?|don'?t have(?: any)?|do not have(?: any)?|free of)\s+(?:known\s+)?(?:limitations?|restrictions?|constraints?|health issues?)\b`)

var noneAnswerRe = regexp.MustCompile(`(?i)^\s*(?:none|nothing|nothing really)\s*[.!]?\s*$`)

var limitationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bprefer to avoid\s+([^.;]+)`),
	regexp.MustCompile(`(?i)\bneed to avoid\s+([^.;]+)`),
	regexp.MustCompile(`(?i)\bmy limitations?\s+(?:are|include)\s+([^.;]+)`),
	regexp.MustCompile(`(?i)\blimitations?:\s*([^.;]+)`),
	regexp.MustCompile(`(?i)\bi (?:can'?t|cannot|am unable to|have trouble with|struggle with)\s+([^.;]+)`),
	regexp.MustCompile(`(?i)\bunable to\s+([^.;]+)`),
}

// Limitations pulls a work-limitation statement out of the text, normalizing
// polarity: any phrasing that means "I do NOT want remote work" canonicalizes
// to CanonicalNonRemote, and an explicit statement of no limitations
// canonicalizes to CanonicalNoLimitations.
func Limitations(text string) string {
	for _, re := range nonRemotePatterns {
		if re.MatchString(text) {
			return CanonicalNonRemote
		}
	}
	if noLimitationsRe.MatchString(text) || noneAnswerRe.MatchString(text) {
		return CanonicalNoLimitations
	}
	for _, re := range remotePatterns {
		if re.MatchString(text) {
			return CanonicalRemote
		}
	}
	return firstMatch(text, limitationPatterns)
}

func firstMatch(text string, patterns []*regexp.Regexp) string {
	for _, re := range patterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		got := strings.Trim(spacesRe.ReplaceAllString(m[1], " "), " ,.!?")
		if got == "" || len(got) > maxFreeTextLen {
			continue
		}
		return got
	}
	return ""
}
