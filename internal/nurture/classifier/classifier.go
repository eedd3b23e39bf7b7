// Package classifier judges the sentiment of inbound lead replies. The
// interface is deliberately narrow so the keyword baseline can later be
// swapped for a real model without touching the engagement state machine.
package classifier

import "strings"

// Verdict is the classification of a reply.
type Verdict string

const (
	// VerdictPositive means the lead wants to move forward.
	VerdictPositive Verdict = "positive"
	// VerdictNegative means the lead is declining or objecting.
	VerdictNegative Verdict = "negative"
	// VerdictNeutral covers questions and everything else.
	VerdictNeutral Verdict = "neutral"
)

// ReplyClassifier turns free-text reply bodies into a verdict.
type ReplyClassifier interface {
	Classify(text string) Verdict
}

// Keyword is the tested baseline: literal keyword matching, negative
// signals checked first so "please don't book me" never reads as intent.
type Keyword struct{}

func NewKeyword() *Keyword { return &Keyword{} }

var negativeKeywords = []string{
	"not interested",
	"no thanks",
	"no thank you",
	"stop contacting",
	"don't contact",
	"do not contact",
	"leave me alone",
	"too expensive",
	"went with another",
	"chose another",
	"unsubscribe",
	"remove me",
	"wrong number",
	"wrong person",
}

var positiveKeywords = []string{
	"yes",
	"interested",
	"book",
	"schedule",
	"appointment",
	"sign me up",
	"sounds good",
	"let's do it",
	"when can",
	"how soon",
	"available",
	"call me",
	"please call",
}

func (k *Keyword) Classify(text string) Verdict {
	lowered := strings.ToLower(strings.TrimSpace(text))
	if lowered == "" {
		return VerdictNeutral
	}

	for _, kw := range negativeKeywords {
		if matches(lowered, kw) {
			return VerdictNegative
		}
	}
	for _, kw := range positiveKeywords {
		if matches(lowered, kw) {
			return VerdictPositive
		}
	}
	return VerdictNeutral
}

// matches does substring matching for phrases and whole-word matching for
// single keywords, so "yes" never fires on "eyes".
func matches(text, keyword string) bool {
	if strings.ContainsRune(keyword, ' ') {
		return strings.Contains(text, keyword)
	}
	for _, word := range strings.FieldsFunc(text, func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9' || r == '\'')
	}) {
		if word == keyword {
			return true
		}
	}
	return false
}
